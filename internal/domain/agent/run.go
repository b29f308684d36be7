package agent

import (
	"time"

	"github.com/google/uuid"
)

// SyncRun describes one sync cycle.
type SyncRun struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	// Catalogs is the size of the remote snapshot after the run.
	Catalogs int    `json:"catalogs"`
	Error    string `json:"error,omitempty"`
}

// NewSyncRun starts a run with a fresh id.
func NewSyncRun() *SyncRun {
	return &SyncRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}
}

// Complete records the outcome of the run.
func (r *SyncRun) Complete(catalogs int, err error) {
	r.Duration = time.Since(r.StartedAt)
	r.Catalogs = catalogs
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether the run finished without error.
func (r *SyncRun) Succeeded() bool {
	return r.Error == ""
}
