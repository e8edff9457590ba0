package memory

import (
	"context"
	"sort"
	"sync"

	"torrentbridge/internal/domain"
)

// JobRepository keeps the job journal in process memory. It is used when no
// Mongo URI is configured; nothing survives a restart.
type JobRepository struct {
	mu      sync.RWMutex
	records map[domain.JobID]domain.JobRecord
}

func NewJobRepository() *JobRepository {
	return &JobRepository{records: make(map[domain.JobID]domain.JobRecord)}
}

func (r *JobRepository) Upsert(ctx context.Context, rec domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.JobRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// List returns records oldest first.
func (r *JobRepository) List(ctx context.Context) ([]domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]domain.JobRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *JobRepository) Delete(ctx context.Context, id domain.JobID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, id)
	return nil
}
