package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

// MockModelLoader is a mock of ModelLoader.
type MockModelLoader struct {
	mock.Mock
}

func (m *MockModelLoader) Load(ctx context.Context, path string) (*domain.Model, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Model), args.Error(1)
}

// MockTracker is a mock of Tracker.
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) StartRun(ctx context.Context, opts domain.RunOptions) (*domain.TrackingRun, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrackingRun), args.Error(1)
}

func (m *MockTracker) LogModel(ctx context.Context, run *domain.TrackingRun, model *domain.Model, artifactPath string) (*domain.LoggedModel, error) {
	args := m.Called(ctx, run, model, artifactPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoggedModel), args.Error(1)
}

func (m *MockTracker) EndRun(ctx context.Context, run *domain.TrackingRun, status domain.RunStatus) error {
	args := m.Called(ctx, run, status)
	return args.Error(0)
}

// MockRegistry is a mock of Registry.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(ctx context.Context, name string, logged *domain.LoggedModel) (*domain.RegistryEntry, error) {
	args := m.Called(ctx, name, logged)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistryEntry), args.Error(1)
}

func (m *MockRegistry) GetVersion(ctx context.Context, name string, version int64) (*domain.RegistryEntry, error) {
	args := m.Called(ctx, name, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegistryEntry), args.Error(1)
}

// MockResultWriter is a mock of ResultWriter.
type MockResultWriter struct {
	mock.Mock
}

func (m *MockResultWriter) Write(ctx context.Context, path string, format domain.OutputFormat, record *domain.ResultRecord) error {
	args := m.Called(ctx, path, format, record)
	return args.Error(0)
}

// MockResultPublisher is a mock of ResultPublisher.
type MockResultPublisher struct {
	mock.Mock
}

func (m *MockResultPublisher) Publish(ctx context.Context, record *domain.ResultRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockResultPublisher) IsAvailable() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockMetricsRecorder is a mock of MetricsRecorder.
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) Record(metrics ports.RegistrationMetrics) {
	m.Called(metrics)
}

func (m *MockMetricsRecorder) Flush() error {
	args := m.Called()
	return args.Error(0)
}
