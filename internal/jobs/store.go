// internal/jobs/store.go
package jobs

import (
	"context"
	"errors"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// ErrNotFound is returned for lookups of unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Store is the repository contract for job state. Implementations must be
// safe for concurrent use; the HTTP layer and running missions touch the
// same records.
type Store interface {
	// Create persists a new job record. The ID must be unique.
	Create(ctx context.Context, rec schemas.JobRecord) error
	// Get returns a copy of the stored record.
	Get(ctx context.Context, id string) (*schemas.JobRecord, error)
	// UpdateState transitions the job's lifecycle state.
	UpdateState(ctx context.Context, id string, state schemas.JobState) error
	// SetResult stores the terminal payload and marks the job completed.
	SetResult(ctx context.Context, id string, result *schemas.ResultPayload) error
	// AppendEvent records one status event for later replay.
	AppendEvent(ctx context.Context, id string, event schemas.StatusEvent) error
	// Events returns all recorded events for a job, oldest first.
	Events(ctx context.Context, id string) ([]schemas.StatusEvent, error)
}
