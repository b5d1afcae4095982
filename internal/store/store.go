// Package store persists discovery runs and their businesses.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/business-finder/internal/model"
)

// ErrNotFound is returned when a run or business does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for discovery runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.SearchParameters) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveResult(ctx context.Context, runID string, status model.RunStatus, result *model.DiscoveryResult, enriched int) error
	UpdateWebsite(ctx context.Context, runID, name string, website *string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
