package cli

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"model-registrar/internal/adapters/secondary/filestore"
	"model-registrar/internal/adapters/secondary/kube"
	"model-registrar/internal/adapters/secondary/mlflow"
	"model-registrar/internal/adapters/secondary/mlmodel"
	"model-registrar/internal/adapters/secondary/postgres"
	"model-registrar/internal/adapters/secondary/pushgateway"
	"model-registrar/internal/adapters/secondary/resultfile"
	"model-registrar/internal/config"
	ports "model-registrar/internal/core/ports/output"
	"model-registrar/internal/core/services"
)

// newRegistrar wires the secondary adapters selected by cfg into a registrar.
// The returned cleanup releases any connections opened along the way.
func newRegistrar(ctx context.Context, cfg *config.Config) (*services.RegistrarService, func(), error) {
	cleanup := func() {}

	// ============================================================================
	// Tracking
	// ============================================================================

	var client *mlflow.Client
	if cfg.Tracking.Backend == config.BackendMLflow {
		client = mlflow.NewClient(&cfg.Tracking)
	}

	var tracker ports.Tracker
	switch cfg.Tracking.Backend {
	case config.BackendMLflow:
		tracker = mlflow.NewTracker(client)
		log.WithField("tracking_uri", cfg.Tracking.URI).Info("mlflow tracking backend")
	case config.BackendFile:
		t, err := filestore.NewTracker(cfg.Tracking.FileRoot)
		if err != nil {
			return nil, cleanup, fmt.Errorf("create file tracker: %w", err)
		}
		tracker = t
		log.WithField("root", cfg.Tracking.FileRoot).Info("file tracking backend")
	default:
		return nil, cleanup, &usageError{fmt.Errorf("unknown tracking backend %q", cfg.Tracking.Backend)}
	}

	// ============================================================================
	// Registry
	// ============================================================================

	var registry ports.Registry
	switch cfg.Registry.Backend {
	case config.BackendMLflow:
		registry = mlflow.NewRegistry(client)
	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = pool.Close
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, cleanup, err
		}
		registry = postgres.NewModelVersionRepository(pool)
		log.Info("postgres registry backend")
	default:
		return nil, cleanup, &usageError{fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)}
	}

	// ============================================================================
	// Optional integrations
	// ============================================================================

	publisher, err := kube.NewConfigMapPublisher(&cfg.Kubernetes)
	if err != nil {
		log.Warnf("ConfigMap publisher init failed (continuing without it): %v", err)
		publisher = nil
	} else if publisher.IsAvailable() {
		log.WithFields(log.Fields{
			"namespace": cfg.Kubernetes.Namespace,
			"configmap": cfg.Kubernetes.ConfigMapName,
		}).Info("ConfigMap publisher initialized")
	}

	metrics := pushgateway.NewRecorder(&cfg.Metrics)

	svc := services.NewRegistrarService(
		mlmodel.NewLoader(),
		tracker,
		registry,
		resultfile.NewWriter(),
		publisher,
		metrics,
		services.RegistrarConfig{
			ExperimentName:    cfg.Tracking.ExperimentName,
			AwaitRegistration: cfg.Registration.AwaitRegistration,
			PollInterval:      cfg.Registration.PollInterval,
		},
	)
	return svc, cleanup, nil
}
