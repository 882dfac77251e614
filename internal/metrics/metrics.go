// Package metrics exposes the service's Prometheus collectors. A single
// Metrics value owns a private registry so tests can build isolated
// instances without duplicate-registration panics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tuanvc/snaptext/internal/record"
)

// Recognition outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Enhancement outcome label values.
const (
	OutcomeEnhanced = "enhanced"
	OutcomeFallback = "fallback"
)

type Metrics struct {
	registry *prometheus.Registry

	imagesAdded        prometheus.Counter
	validationRejected *prometheus.CounterVec
	recognitions       *prometheus.CounterVec
	recognitionRetries prometheus.Counter
	recognitionSeconds prometheus.Histogram
	enhancements       *prometheus.CounterVec
	records            *prometheus.GaugeVec
	wsConnections      prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a Metrics with its own registry, runtime collectors
// included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		imagesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "snaptext_images_added_total",
			Help: "Images admitted to the store.",
		}),
		validationRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaptext_validation_rejected_total",
			Help: "Uploads rejected at admission, by reason.",
		}, []string{"reason"}),
		recognitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaptext_recognitions_total",
			Help: "Recognition runs by terminal outcome.",
		}, []string{"outcome"}),
		recognitionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "snaptext_recognition_retries_total",
			Help: "Automatic retries scheduled for transient failures.",
		}),
		recognitionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snaptext_recognition_duration_seconds",
			Help:    "Wall time of one recognition run, retries included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		enhancements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snaptext_enhancements_total",
			Help: "Enhancement requests by outcome.",
		}, []string{"outcome"}),
		records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "snaptext_records",
			Help: "Records currently held, by status.",
		}, []string{"status"}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "snaptext_ws_connections",
			Help: "Connected websocket clients.",
		}),
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ImageAdded() { m.imagesAdded.Inc() }

func (m *Metrics) ValidationRejected(reason string) {
	m.validationRejected.WithLabelValues(reason).Inc()
}

// RecognitionFinished records one run's terminal outcome and duration.
func (m *Metrics) RecognitionFinished(outcome string, d time.Duration) {
	m.recognitions.WithLabelValues(outcome).Inc()
	m.recognitionSeconds.Observe(d.Seconds())
}

func (m *Metrics) RecognitionRetried() { m.recognitionRetries.Inc() }

func (m *Metrics) EnhancementFinished(outcome string) {
	m.enhancements.WithLabelValues(outcome).Inc()
}

// SetRecordCounts mirrors the store's status counts, typically fed from
// store events.
func (m *Metrics) SetRecordCounts(c record.Counts) {
	m.records.WithLabelValues(string(record.StatusPending)).Set(float64(c.Pending))
	m.records.WithLabelValues(string(record.StatusProcessing)).Set(float64(c.Processing))
	m.records.WithLabelValues(string(record.StatusCompleted)).Set(float64(c.Completed))
	m.records.WithLabelValues(string(record.StatusError)).Set(float64(c.Error))
}

func (m *Metrics) WSConnected()    { m.wsConnections.Inc() }
func (m *Metrics) WSDisconnected() { m.wsConnections.Dec() }
