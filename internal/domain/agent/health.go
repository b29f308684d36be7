package agent

import (
	"fmt"
	"time"
)

// Health is the outcome of the most recent sync.
type Health string

const (
	HealthUnknown  Health = "unknown"
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded" // last sync failed; the previous remote snapshot is still served
)

// HealthStatus is the health of the agent as of LastCheck.
type HealthStatus struct {
	Status    Health    `json:"status"`
	LastCheck time.Time `json:"last_check"`
	Message   string    `json:"message,omitempty"`
}

// IsHealthy reports whether the last sync succeeded.
func (h HealthStatus) IsHealthy() bool {
	return h.Status == HealthHealthy
}

// IsDegraded reports whether the last sync failed.
func (h HealthStatus) IsDegraded() bool {
	return h.Status == HealthDegraded
}

// String returns the status with its message, if any.
func (h HealthStatus) String() string {
	if h.Message == "" {
		return string(h.Status)
	}
	return fmt.Sprintf("%s: %s", h.Status, h.Message)
}
