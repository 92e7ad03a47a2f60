package ports

import "time"

// Outcome labels recorded for a registration.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeNotFound        = "not_found"
	OutcomeDeserialization = "deserialization_error"
	OutcomeTracking        = "tracking_error"
	OutcomeRegistry        = "registry_error"
	OutcomeOutput          = "output_error"
	OutcomeUnknown         = "error"
)

// RegistrationMetrics is one observation of a registration attempt.
type RegistrationMetrics struct {
	ModelName string
	Outcome   string
	Version   int64
	Duration  time.Duration
	ModelSize int64
}

// MetricsRecorder records registration metrics for the batch job.
type MetricsRecorder interface {
	Record(m RegistrationMetrics)

	// Flush delivers recorded metrics. Implementations without a sink return nil.
	Flush() error
}
