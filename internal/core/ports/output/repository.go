package ports

import (
	"context"

	"model-registrar/internal/core/domain"
)

// ModelLoader deserializes a model artifact from local storage.
type ModelLoader interface {
	Load(ctx context.Context, path string) (*domain.Model, error)
}

// Tracker opens and closes tracking runs and logs models under them.
type Tracker interface {
	// StartRun opens a new run. The caller owns the returned run and must end it.
	StartRun(ctx context.Context, opts domain.RunOptions) (*domain.TrackingRun, error)

	// LogModel stores model under artifactPath in run.
	LogModel(ctx context.Context, run *domain.TrackingRun, model *domain.Model, artifactPath string) (*domain.LoggedModel, error)

	// EndRun terminates run with status.
	EndRun(ctx context.Context, run *domain.TrackingRun, status domain.RunStatus) error
}

// Registry creates model versions from logged models.
type Registry interface {
	// Register creates a new version of name whose source is the logged model.
	Register(ctx context.Context, name string, logged *domain.LoggedModel) (*domain.RegistryEntry, error)

	// GetVersion fetches a previously created version.
	GetVersion(ctx context.Context, name string, version int64) (*domain.RegistryEntry, error)
}

// ResultWriter persists the result record of a registration.
type ResultWriter interface {
	Write(ctx context.Context, path string, format domain.OutputFormat, record *domain.ResultRecord) error
}
