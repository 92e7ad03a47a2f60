package cli

import (
	"errors"

	"model-registrar/internal/core/domain"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitNotFound        = 3
	ExitDeserialization = 4
	ExitCollaborator    = 5
	ExitOutput          = 6
)

// usageError marks failures caused by the command line or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return ExitOK

	// Usage errors
	case errors.As(err, &usage),
		errors.Is(err, domain.ErrInvalidRequest):
		return ExitUsage

	// Not found errors
	case errors.Is(err, domain.ErrModelPathNotFound):
		return ExitNotFound

	// Artifact errors
	case errors.Is(err, domain.ErrDeserialization):
		return ExitDeserialization

	// Tracking server and registry errors
	case errors.Is(err, domain.ErrTracking),
		errors.Is(err, domain.ErrRegistry):
		return ExitCollaborator

	// Output errors
	case errors.Is(err, domain.ErrOutputWrite),
		errors.Is(err, domain.ErrPublish):
		return ExitOutput

	default:
		return ExitFailure
	}
}
