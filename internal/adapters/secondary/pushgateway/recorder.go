package pushgateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"

	"model-registrar/internal/config"
	ports "model-registrar/internal/core/ports/output"
)

type recorder struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	enabled  bool

	registrations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastVersion   *prometheus.GaugeVec
	modelSize     *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
}

// NewRecorder creates a MetricsRecorder that pushes to a Prometheus Pushgateway.
// With no pushgateway URL configured, metrics are collected but Flush is a no-op.
func NewRecorder(cfg *config.MetricsConfig) ports.MetricsRecorder {
	r := &recorder{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registrar",
			Name:      "registrations_total",
			Help:      "Model registration attempts by outcome.",
		}, []string{"model_name", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registrar",
			Name:      "registration_duration_seconds",
			Help:      "Wall time of a model registration.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"model_name", "outcome"}),
		lastVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "registrar",
			Name:      "last_registered_version",
			Help:      "Version assigned by the registry on the last successful registration.",
		}, []string{"model_name"}),
		modelSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "registrar",
			Name:      "model_size_bytes",
			Help:      "Total size of the registered model artifact.",
		}, []string{"model_name"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "registrar",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful registration.",
		}, []string{"model_name"}),
	}
	r.registry.MustRegister(r.registrations, r.duration, r.lastVersion, r.modelSize, r.lastSuccess)

	if cfg.PushgatewayURL != "" {
		job := cfg.Job
		if job == "" {
			job = "model_registrar"
		}
		r.enabled = true
		r.pusher = push.New(cfg.PushgatewayURL, job).
			Gatherer(r.registry).
			Client(&http.Client{Timeout: 10 * time.Second})
	}
	return r
}

func (r *recorder) Record(m ports.RegistrationMetrics) {
	r.registrations.WithLabelValues(m.ModelName, m.Outcome).Inc()
	r.duration.WithLabelValues(m.ModelName, m.Outcome).Observe(m.Duration.Seconds())

	if m.Outcome != ports.OutcomeSuccess {
		return
	}
	r.lastVersion.WithLabelValues(m.ModelName).Set(float64(m.Version))
	r.lastSuccess.WithLabelValues(m.ModelName).SetToCurrentTime()
	if m.ModelSize > 0 {
		r.modelSize.WithLabelValues(m.ModelName).Set(float64(m.ModelSize))
	}
}

func (r *recorder) Flush() error {
	if !r.enabled {
		return nil
	}
	if err := r.pusher.Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	log.Debug("Pushed registration metrics")
	return nil
}
