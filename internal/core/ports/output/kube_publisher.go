package ports

import (
	"context"

	"model-registrar/internal/core/domain"
)

// ResultPublisher mirrors a result record to somewhere other than the output file.
type ResultPublisher interface {
	// Publish stores the record. It overwrites any earlier publication.
	Publish(ctx context.Context, record *domain.ResultRecord) error

	// IsAvailable checks if publishing is enabled and configured
	IsAvailable() bool
}
