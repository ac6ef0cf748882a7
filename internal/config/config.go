package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models machinepulse.yml.
type Config struct {
	Plant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"plant"`
	Production struct {
		// IdealRatePerHour is the line's theoretical maximum throughput
		// (units/hour) used by the availability calculation.
		IdealRatePerHour float64 `yaml:"ideal_rate_per_hour"`
	} `yaml:"production"`
	Alerts struct {
		// StopLevel is the level assigned to alerts raised when a machine stops.
		StopLevel string `yaml:"stop_level"`
	} `yaml:"alerts"`
	Reports struct {
		// RecentAlerts is how many alerts a report carries, most recent first.
		RecentAlerts int `yaml:"recent_alerts"`
	} `yaml:"reports"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Plant.ID == "" {
		return fmt.Errorf("config.plant.id is required")
	}
	if c.Production.IdealRatePerHour <= 0 {
		return fmt.Errorf("config.production.ideal_rate_per_hour must be > 0")
	}
	switch c.Alerts.StopLevel {
	case "info", "warning", "critical":
	default:
		return fmt.Errorf("config.alerts.stop_level must be info, warning or critical")
	}
	if c.Reports.RecentAlerts <= 0 {
		return fmt.Errorf("config.reports.recent_alerts must be > 0")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "machinepulse.yml")
}

// Default returns the default Config for a plant.
func Default(plantID string) *Config {
	var cfg Config
	cfg.Plant.ID = plantID
	cfg.Plant.Name = plantID
	cfg.Production.IdealRatePerHour = 100
	cfg.Alerts.StopLevel = "warning"
	cfg.Reports.RecentAlerts = 10
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace, plantID string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(plantID), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left out
// of the file keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("plant")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
