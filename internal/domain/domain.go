package domain

// Machine statuses. Unknown values are rejected before they reach storage.
const (
	StatusRunning     = "running"
	StatusStopped     = "stopped"
	StatusMaintenance = "maintenance"
)

// ValidStatus reports whether s is one of the three machine statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusRunning, StatusStopped, StatusMaintenance:
		return true
	}
	return false
}

// Alert levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

type Machine struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Line          string `json:"line"`
	Status        string `json:"status" enum:"running,stopped,maintenance"`
	LastHeartbeat string `json:"last_heartbeat" format:"date-time"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// ProductionRecord is immutable once created.
type ProductionRecord struct {
	ID         string `json:"id"`
	MachineID  string `json:"machine_id"`
	OperatorID string `json:"operator_id"`
	Quantity   int    `json:"quantity"`
	Defects    int    `json:"defects"`
	StartTime  string `json:"start_time" format:"date-time"`
	EndTime    string `json:"end_time" format:"date-time"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// MachineRef is the resolved machine reference carried in production payloads.
type MachineRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Line string `json:"line"`
}

// OperatorRef is the resolved operator reference carried in production payloads.
type OperatorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductionView is a ProductionRecord with its references resolved,
// the shape broadcast to subscribers and returned by list endpoints.
type ProductionView struct {
	ID        string      `json:"id"`
	Machine   MachineRef  `json:"machine"`
	Operator  OperatorRef `json:"operator"`
	Quantity  int         `json:"quantity"`
	Defects   int         `json:"defects"`
	StartTime string      `json:"start_time" format:"date-time"`
	EndTime   string      `json:"end_time" format:"date-time"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}

type Alert struct {
	ID        string `json:"id"`
	MachineID string `json:"machine_id"`
	Message   string `json:"message"`
	Level     string `json:"level" enum:"info,warning,critical"`
	Resolved  bool   `json:"resolved"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Operator struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
