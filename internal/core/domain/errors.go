package domain

import "errors"

// ============================================================================
// Request Errors
// ============================================================================

var (
	ErrInvalidRequest       = errors.New("invalid registration request")
	ErrMissingModelName     = errors.New("model name is required")
	ErrModelNameEncoding    = errors.New("model name must be valid UTF-8")
	ErrMissingModelPath     = errors.New("model path is required")
	ErrMissingOutputPath    = errors.New("model info output path is required")
	ErrUnsupportedFormat    = errors.New("unsupported output format")
	ErrMissingArtifactPath  = errors.New("artifact path is required")
	ErrUnsupportedFramework = errors.New("unsupported model framework")
)

// ============================================================================
// Registration Errors
// ============================================================================

// Not found errors
var (
	ErrModelPathNotFound = errors.New("model path does not exist")
)

// Artifact errors
var (
	ErrDeserialization = errors.New("model artifact could not be deserialized")
)

// Collaborator errors
var (
	ErrTracking = errors.New("tracking server request failed")
	ErrRegistry = errors.New("model registry request failed")
)

// Output errors
var (
	ErrOutputWrite = errors.New("result record could not be written")
	ErrPublish     = errors.New("result record could not be published")
)
