package server

import (
	"machinepulse/internal/domain"
	"machinepulse/internal/metrics"
	"machinepulse/internal/report"
)

// Request payloads

type CreateMachineRequest struct {
	Name string `json:"name" minLength:"1"`
	Line string `json:"line" minLength:"1"`
}

type UpdateMachineStatusRequest struct {
	Status string `json:"status" doc:"running, stopped or maintenance"`
}

type CreateProductionRequest struct {
	MachineID string `json:"machine_id" minLength:"1"`
	Quantity  int    `json:"quantity" minimum:"0"`
	Defects   *int   `json:"defects,omitempty" minimum:"0"`
	StartTime string `json:"start_time" format:"date-time"`
	EndTime   string `json:"end_time" format:"date-time"`
}

// Response payloads

// MetricsResponse carries KPIs with rates rounded to two decimals.
type MetricsResponse struct {
	TotalQuantity int     `json:"total_quantity"`
	TotalDefects  int     `json:"total_defects"`
	TotalRecords  int     `json:"total_records"`
	TotalHours    float64 `json:"total_hours"`
	DefectRate    float64 `json:"defect_rate"`
	QualityRate   float64 `json:"quality_rate"`
	Availability  float64 `json:"availability"`
	OEE           float64 `json:"oee"`
}

func metricsResponse(m metrics.Metrics) MetricsResponse {
	return MetricsResponse{
		TotalQuantity: m.TotalQuantity,
		TotalDefects:  m.TotalDefects,
		TotalRecords:  m.TotalRecords,
		TotalHours:    metrics.Round2(m.TotalHours),
		DefectRate:    metrics.Round2(m.DefectRate),
		QualityRate:   metrics.Round2(m.QualityRate),
		Availability:  metrics.Round2(m.Availability),
		OEE:           metrics.Round2(m.OEE),
	}
}

type ReportResponse struct {
	Summary      report.Summary           `json:"summary"`
	ByMachine    map[string]report.Rollup `json:"by_machine"`
	ByDate       map[string]report.Rollup `json:"by_date"`
	RecentAlerts []domain.Alert           `json:"recent_alerts"`
}

func reportResponse(r report.Report) ReportResponse {
	return ReportResponse{
		Summary:      r.Summary,
		ByMachine:    r.ByMachine,
		ByDate:       r.ByDate,
		RecentAlerts: r.RecentAlerts,
	}
}
