// Package monitoring exposes batch-run counters in the Prometheus text
// format, written to a file for the node-exporter textfile collector.
package monitoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketpulse/internal/domain"
)

// Skip reasons.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonAlignment        = "alignment"
	ReasonInvalidInput     = "invalid_input"
	ReasonError            = "error"
)

// Recorder holds the metrics of one process run. A nil *Recorder discards
// everything.
type Recorder struct {
	registry *prometheus.Registry

	unitsEvaluated *prometheus.CounterVec
	unitsSkipped   *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	lastRun        *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry so runs never share
// state through the global default registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		unitsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_units_evaluated_total",
				Help: "Total number of (ticker, strategy) units evaluated and recorded",
			},
			[]string{"job"},
		),
		unitsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_units_skipped_total",
				Help: "Total number of units skipped",
			},
			[]string{"job", "reason"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_unit_duration_seconds",
				Help:    "Distribution of per-unit evaluation time",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"job"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
			[]string{"job"},
		),
	}
	r.registry.MustRegister(r.unitsEvaluated, r.unitsSkipped, r.unitDuration, r.lastRun)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// UnitEvaluated records a unit that completed in d.
func (r *Recorder) UnitEvaluated(job string, d time.Duration) {
	if r == nil {
		return
	}
	r.unitsEvaluated.WithLabelValues(job).Inc()
	r.unitDuration.WithLabelValues(job).Observe(d.Seconds())
}

// UnitSkipped records a unit that was skipped because of err.
func (r *Recorder) UnitSkipped(job string, err error) {
	if r == nil {
		return
	}
	r.unitsSkipped.WithLabelValues(job, Reason(err)).Inc()
}

// RunFinished stamps the completion time of job.
func (r *Recorder) RunFinished(job string, at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.WithLabelValues(job).Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Reason maps an error to its skip-reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, domain.ErrAlignment):
		return ReasonAlignment
	case errors.Is(err, domain.ErrInvalidInput):
		return ReasonInvalidInput
	default:
		return ReasonError
	}
}
