// Package db opens the SQLite database backing a machinepulse workspace.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".machinepulse"
	dbFile   = "machinepulse.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the hidden state directory under the workspace root
// and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace %s: %w", workspace, err)
	}
	return dir, nil
}

// Path returns where the database lives for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, dbFile)
}

// Open ensures the workspace state directory exists and opens its database.
// WAL keeps concurrent API readers off the writer's lock; foreign keys and a
// busy timeout are set per connection.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)",
		Path(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}
