// Package health provides pool health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the pool or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StoreHealth reports whether the snapshot backend is reachable.
type StoreHealth struct {
	Backend string `json:"backend"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// HealthReport contains the full pool health report.
type HealthReport struct {
	SystemStatus SystemStatus   `json:"system_status"`
	Total        int            `json:"total"`
	Reconnecting int            `json:"reconnecting"`
	ByStatus     map[string]int `json:"by_status"`
	Store        StoreHealth    `json:"store"`
}
