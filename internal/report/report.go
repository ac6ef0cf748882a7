// Package report aggregates production records and alerts into rollups over
// machine and calendar-day dimensions.
package report

import (
	"machinepulse/internal/domain"
)

// Rollup accumulates totals for one grouping key.
type Rollup struct {
	TotalQuantity int `json:"total_quantity"`
	TotalDefects  int `json:"total_defects"`
	Records       int `json:"records"`
}

type Summary struct {
	TotalProductions int `json:"total_productions"`
	TotalMachines    int `json:"total_machines"`
	TotalAlerts      int `json:"total_alerts"`
	UnresolvedAlerts int `json:"unresolved_alerts"`
}

type Report struct {
	Summary      Summary           `json:"summary"`
	ByMachine    map[string]Rollup `json:"by_machine"`
	ByDate       map[string]Rollup `json:"by_date"`
	RecentAlerts []domain.Alert    `json:"recent_alerts"`
}

// Builder builds reports from store snapshots. Time-range filtering happens
// in the store query; Build aggregates whatever it is given.
type Builder struct {
	// RecentAlerts caps the alert tail carried in a report.
	RecentAlerts int
}

// Build groups records by machine display name and by UTC calendar day.
// A record referencing a machine absent from machines is excluded from
// ByMachine but still counted in ByDate and Summary.TotalProductions, so one
// orphaned reference cannot fail the whole aggregation. Machines is the full
// set (not time-filtered); records and alerts are the filtered sets in the
// store's descending created_at order, which Build trusts and does not re-sort.
func (b Builder) Build(records []domain.ProductionRecord, alerts []domain.Alert, machines []domain.Machine) Report {
	names := make(map[string]string, len(machines))
	for _, m := range machines {
		names[m.ID] = m.Name
	}

	byMachine := map[string]Rollup{}
	byDate := map[string]Rollup{}
	for _, rec := range records {
		if name, ok := names[rec.MachineID]; ok {
			g := byMachine[name]
			g.TotalQuantity += rec.Quantity
			g.TotalDefects += rec.Defects
			g.Records++
			byMachine[name] = g
		}
		day := calendarDay(rec.CreatedAt)
		g := byDate[day]
		g.TotalQuantity += rec.Quantity
		g.TotalDefects += rec.Defects
		g.Records++
		byDate[day] = g
	}

	unresolved := 0
	for _, a := range alerts {
		if !a.Resolved {
			unresolved++
		}
	}
	limit := b.RecentAlerts
	if limit <= 0 {
		limit = 10
	}
	recent := alerts
	if len(recent) > limit {
		recent = recent[:limit]
	}

	return Report{
		Summary: Summary{
			TotalProductions: len(records),
			TotalMachines:    len(machines),
			TotalAlerts:      len(alerts),
			UnresolvedAlerts: unresolved,
		},
		ByMachine:    byMachine,
		ByDate:       byDate,
		RecentAlerts: recent,
	}
}

// calendarDay extracts the UTC YYYY-MM-DD prefix of an RFC3339 timestamp.
func calendarDay(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}
