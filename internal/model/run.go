package model

import (
	"time"
)

// RunStatus represents the current state of a discovery run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusGeocoding   RunStatus = "geocoding"
	RunStatusQuerying    RunStatus = "querying"
	RunStatusNormalizing RunStatus = "normalizing"
	RunStatusEnriching   RunStatus = "enriching"
	RunStatusComplete    RunStatus = "complete"
	RunStatusNoResults   RunStatus = "no_results"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// Terminal reports whether the run will not change status on its own.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusComplete, RunStatusNoResults, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run is one discovery run as seen by the caller and stored by the store.
type Run struct {
	ID         string           `json:"id"`
	Params     SearchParameters `json:"params"`
	Status     RunStatus        `json:"status"`
	Center     *Location        `json:"center,omitempty"`
	Businesses []Business       `json:"businesses,omitempty"`
	Enriched   int              `json:"enriched"`
	Error      string           `json:"error,omitempty"`
	Progress   *Progress        `json:"progress,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Result returns the run's DiscoveryResult, or nil if discovery has not finished.
func (r *Run) Result() *DiscoveryResult {
	if r.Center == nil {
		return nil
	}
	return &DiscoveryResult{Businesses: r.Businesses, Center: *r.Center}
}

// FindBusiness returns the index of the business with the given name, or -1.
func (r *Run) FindBusiness(name string) int {
	for i := range r.Businesses {
		if r.Businesses[i].Name == name {
			return i
		}
	}
	return -1
}
