package shares

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo, used in dev and tests.
type MemoryRepo struct {
	mu   sync.Mutex
	data map[string]Share
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Share),
	}
}

// Create stores the record, failing with ErrConflict if the id is taken.
// The existence check and the insert happen under one lock.
func (r *MemoryRepo) Create(ctx context.Context, share Share) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[share.ID]; exists {
		return ErrConflict
	}
	r.data[share.ID] = share
	return nil
}

// GetByID returns the record or ErrNotFound.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.data[id]
	if !ok {
		return Share{}, ErrNotFound
	}
	return share, nil
}

// RecordAccess increments the download count under the repo lock.
func (r *MemoryRepo) RecordAccess(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	share.DownloadCount++
	share.LastAccessedAt = &at
	r.data[id] = share
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
