// Package metrics derives production KPIs from record snapshots.
package metrics

import (
	"math"
	"time"

	"machinepulse/internal/domain"
)

// Metrics are the scalar KPIs derived from a set of production records.
// Rates are percentages at full precision; callers round for presentation.
type Metrics struct {
	TotalQuantity int     `json:"total_quantity"`
	TotalDefects  int     `json:"total_defects"`
	TotalRecords  int     `json:"total_records"`
	TotalHours    float64 `json:"total_hours"`
	DefectRate    float64 `json:"defect_rate"`
	QualityRate   float64 `json:"quality_rate"`
	Availability  float64 `json:"availability"`
	OEE           float64 `json:"oee"`
}

// Calculator computes Metrics against a configured ideal throughput.
type Calculator struct {
	// IdealRatePerHour is the line's theoretical maximum output in
	// units/hour. It comes from configuration, not from data.
	IdealRatePerHour float64
}

// Compute is a pure function of its input: no side effects, deterministic,
// and zero-safe (empty input yields all-zero metrics with QualityRate 100).
func (c Calculator) Compute(records []domain.ProductionRecord) Metrics {
	var m Metrics
	m.TotalRecords = len(records)
	for _, r := range records {
		m.TotalQuantity += r.Quantity
		m.TotalDefects += r.Defects
		m.TotalHours += hours(r.StartTime, r.EndTime)
	}
	if m.TotalQuantity > 0 {
		m.DefectRate = float64(m.TotalDefects) / float64(m.TotalQuantity) * 100
	}
	m.QualityRate = 100 - m.DefectRate
	if m.TotalHours > 0 {
		m.Availability = float64(m.TotalQuantity) / (c.IdealRatePerHour * m.TotalHours) * 100
	}
	m.OEE = m.Availability * m.QualityRate / 100
	return m
}

// hours returns the record duration in hours. Records are validated at
// ingestion (end >= start, RFC3339), so parse failures map to zero.
func hours(start, end string) float64 {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0
	}
	return e.Sub(s).Hours()
}

// Round2 rounds a rate to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
