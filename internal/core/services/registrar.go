package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

const (
	defaultPollInterval = time.Second
	endRunTimeout       = 30 * time.Second
)

type RegistrarConfig struct {
	ExperimentName string
	// AwaitRegistration bounds how long Register waits for a pending version to
	// become READY. Zero disables waiting.
	AwaitRegistration time.Duration
	PollInterval      time.Duration
}

type RegistrarService struct {
	loader    ports.ModelLoader
	tracker   ports.Tracker
	registry  ports.Registry
	writer    ports.ResultWriter
	publisher ports.ResultPublisher
	metrics   ports.MetricsRecorder
	cfg       RegistrarConfig
}

func NewRegistrarService(
	loader ports.ModelLoader,
	tracker ports.Tracker,
	registry ports.Registry,
	writer ports.ResultWriter,
	publisher ports.ResultPublisher,
	metrics ports.MetricsRecorder,
	cfg RegistrarConfig,
) *RegistrarService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &RegistrarService{
		loader:    loader,
		tracker:   tracker,
		registry:  registry,
		writer:    writer,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Register logs the model at req.ModelPath to a new tracking run, registers it
// under req.ModelName and writes the result record to req.OutputPath.
//
// A missing model path fails before any run is started or file is written. Once
// started, the run is ended on every return path.
func (s *RegistrarService) Register(ctx context.Context, req domain.RegistrationRequest) (record *domain.ResultRecord, err error) {
	start := time.Now()
	obs := ports.RegistrationMetrics{ModelName: req.ModelName}
	defer func() {
		obs.Outcome = Outcome(err)
		obs.Duration = time.Since(start)
		s.record(obs)
	}()

	if err = CheckRequest(&req); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"model_name":    req.ModelName,
		"model_path":    req.ModelPath,
		"artifact_path": req.ArtifactPath,
	})
	logger.Info("registering model")

	run, err := s.tracker.StartRun(ctx, domain.RunOptions{
		ExperimentName: s.cfg.ExperimentName,
		RunName:        req.RunName,
		Tags:           req.Tags,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.WithField("run_id", run.RunID)
	logger.Info("tracking run started")

	defer func() {
		if endErr := s.endRun(ctx, run, err); endErr != nil {
			if err == nil {
				record, err = nil, endErr
				return
			}
			logger.WithError(endErr).Warn("failed to end tracking run")
		}
	}()

	model, err := s.loader.Load(ctx, req.ModelPath)
	if err != nil {
		return nil, err
	}
	obs.ModelSize = model.TotalSize()
	logger.WithFields(log.Fields{
		"framework": model.Framework,
		"files":     len(model.Files),
	}).Info("model loaded")

	logged, err := s.tracker.LogModel(ctx, run, model, req.ArtifactPath)
	if err != nil {
		return nil, err
	}
	logger.WithField("model_uri", logged.ModelURI).Info("model logged")

	entry, err := s.registry.Register(ctx, req.ModelName, logged)
	if err != nil {
		return nil, err
	}
	entry, err = s.awaitReady(ctx, entry)
	if err != nil {
		return nil, err
	}
	obs.Version = entry.Version
	logger.WithFields(log.Fields{
		"version": entry.Version,
		"source":  entry.Source,
	}).Info("model registered")

	record = domain.NewResultRecord(&req, entry)
	if err = s.writer.Write(ctx, req.OutputPath, req.OutputFormat, record); err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{
		"output_path": req.OutputPath,
		"format":      req.OutputFormat,
	}).Info("model info written")

	if s.publisher != nil && s.publisher.IsAvailable() {
		if err = s.publisher.Publish(ctx, record); err != nil {
			return nil, err
		}
		logger.Info("model info published")
	}

	return record, nil
}

// CheckRequest validates req and verifies that its model path exists. It has
// no side effects, so callers may run it before connecting to any backend.
func CheckRequest(req *domain.RegistrationRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if _, err := os.Stat(req.ModelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrModelPathNotFound, req.ModelPath)
		}
		return fmt.Errorf("stat model path: %w", err)
	}
	return nil
}

func (s *RegistrarService) endRun(ctx context.Context, run *domain.TrackingRun, cause error) error {
	status := domain.RunStatusFinished
	switch {
	case errors.Is(cause, context.Canceled):
		status = domain.RunStatusKilled
	case cause != nil:
		status = domain.RunStatusFailed
	}

	// The run is released even when ctx was cancelled.
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endRunTimeout)
	defer cancel()
	return s.tracker.EndRun(endCtx, run, status)
}

func (s *RegistrarService) awaitReady(ctx context.Context, entry *domain.RegistryEntry) (*domain.RegistryEntry, error) {
	if entry.Status == domain.VersionStatusFailed {
		return nil, fmt.Errorf("%w: version %s failed registration", domain.ErrRegistry, entry.ID())
	}
	if entry.Status == "" || entry.Status.IsTerminal() || s.cfg.AwaitRegistration <= 0 {
		return entry, nil
	}

	deadline := time.NewTimer(s.cfg.AwaitRegistration)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: version %s not ready after %s", domain.ErrRegistry, entry.ID(), s.cfg.AwaitRegistration)
		case <-ticker.C:
		}

		current, err := s.registry.GetVersion(ctx, entry.Name, entry.Version)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case domain.VersionStatusReady:
			return current, nil
		case domain.VersionStatusFailed:
			return nil, fmt.Errorf("%w: version %s failed registration", domain.ErrRegistry, current.ID())
		}
		log.WithFields(log.Fields{
			"model_name": entry.Name,
			"version":    entry.Version,
			"status":     current.Status,
		}).Debug("waiting for model version")
	}
}

func (s *RegistrarService) record(m ports.RegistrationMetrics) {
	if s.metrics == nil {
		return
	}
	s.metrics.Record(m)
	if err := s.metrics.Flush(); err != nil {
		log.WithError(err).Warn("failed to push registration metrics")
	}
}

// Outcome classifies err into one of the metric outcome labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return ports.OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidRequest):
		return ports.OutcomeInvalidRequest
	case errors.Is(err, domain.ErrModelPathNotFound):
		return ports.OutcomeNotFound
	case errors.Is(err, domain.ErrDeserialization):
		return ports.OutcomeDeserialization
	case errors.Is(err, domain.ErrTracking):
		return ports.OutcomeTracking
	case errors.Is(err, domain.ErrRegistry):
		return ports.OutcomeRegistry
	case errors.Is(err, domain.ErrOutputWrite), errors.Is(err, domain.ErrPublish):
		return ports.OutcomeOutput
	default:
		return ports.OutcomeUnknown
	}
}
