package ports

import (
	"context"

	"torrentbridge/internal/domain"
)

type JobRepository interface {
	Upsert(ctx context.Context, rec domain.JobRecord) error
	Get(ctx context.Context, id domain.JobID) (domain.JobRecord, error)
	List(ctx context.Context) ([]domain.JobRecord, error)
	Delete(ctx context.Context, id domain.JobID) error
}
