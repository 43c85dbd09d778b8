package repository

import (
	"context"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// JobRepository defines the interface for batch job history
type JobRepository interface {
	// SaveJob stores a finished job, replacing any record with the same id
	SaveJob(ctx context.Context, rec models.JobRecord) error

	// GetJob retrieves a stored job with its per-item outcomes
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)

	// ListJobs returns the most recently finished jobs first, without outcomes
	ListJobs(ctx context.Context, limit int) ([]models.JobRecord, error)

	Close() error
}
