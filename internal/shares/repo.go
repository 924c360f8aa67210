package shares

import (
	"context"
	"time"
)

// Repo defines persistence operations for share records. It is the only
// component that touches the record's mutable fields.
type Repo interface {
	// Create inserts a new record. It returns ErrConflict when a record
	// with the same id already exists; the check and insert are atomic.
	Create(ctx context.Context, share Share) error
	// GetByID returns the record or ErrNotFound.
	GetByID(ctx context.Context, id string) (Share, error)
	// RecordAccess atomically increments the download count and stamps the
	// last access time. Concurrent calls never lose an increment.
	RecordAccess(ctx context.Context, id string, at time.Time) error
}
