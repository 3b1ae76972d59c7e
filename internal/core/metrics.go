package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business metric identifiers.
const (
	MetricTypeBusiness = "BUSINESS_METRIC"
	ActionUploadCSV    = "upload_csv"
)

// MetricEvent is the structured record emitted once per successful upload.
type MetricEvent struct {
	Type          string `json:"type"`
	OperationID   string `json:"operation_id"`
	CorrelationID string `json:"correlation_id"`
	Action        string `json:"action"`
	Inserted      int    `json:"inserted"`
	Rejected      int    `json:"rejected"`
	DurationMS    int64  `json:"duration_ms"`
}

// MetricSink receives business metric events. Emit must not block the
// upload for long and must not fail it; sinks log their own errors.
type MetricSink interface {
	Emit(ctx context.Context, ev MetricEvent)
}

// MetricSinkFunc adapts a function to MetricSink.
type MetricSinkFunc func(ctx context.Context, ev MetricEvent)

// Emit calls f(ctx, ev).
func (f MetricSinkFunc) Emit(ctx context.Context, ev MetricEvent) {
	f(ctx, ev)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []MetricSink

// Emit implements MetricSink.
func (m MultiSink) Emit(ctx context.Context, ev MetricEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// LogSink writes events as structured log entries.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements MetricSink.
func (s LogSink) Emit(ctx context.Context, ev MetricEvent) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "business metric",
		"type", ev.Type,
		"operation_id", ev.OperationID,
		"correlation_id", ev.CorrelationID,
		"action", ev.Action,
		"inserted", ev.Inserted,
		"rejected", ev.Rejected,
		"duration_ms", ev.DurationMS,
	)
}

// Metrics holds the Prometheus collectors for ingestion.
type Metrics struct {
	UploadsTotal   *prometheus.CounterVec
	RowsTotal      *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	ActiveUploads  prometheus.Gauge
}

// NewMetrics registers the ingestion collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_uploads_total",
			Help: "Uploads processed, by final operation status",
		}, []string{"status"}),
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_rows_total",
			Help: "Data rows processed, by outcome",
		}, []string{"outcome"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_upload_duration_seconds",
			Help:    "Wall-clock duration of successful uploads",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveUploads: factory.NewGauge(prometheus.GaugeOpts{
			Name: "policy_uploads_active",
			Help: "Uploads currently holding a processing slot",
		}),
	}
}

// Emit implements MetricSink for completed uploads.
func (m *Metrics) Emit(_ context.Context, ev MetricEvent) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(string(OperationCompleted)).Inc()
	m.RowsTotal.WithLabelValues("inserted").Add(float64(ev.Inserted))
	m.RowsTotal.WithLabelValues("rejected").Add(float64(ev.Rejected))
	m.UploadDuration.Observe((time.Duration(ev.DurationMS) * time.Millisecond).Seconds())
}

// ObserveFailure counts an upload that ended FAILED.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(string(OperationFailed)).Inc()
}

// ObserveDuplicates counts accepted rows the store skipped as duplicates.
func (m *Metrics) ObserveDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.WithLabelValues("duplicate").Add(float64(n))
}

// uploadStarted and uploadFinished track slot occupancy.
func (m *Metrics) uploadStarted() {
	if m != nil {
		m.ActiveUploads.Inc()
	}
}

func (m *Metrics) uploadFinished() {
	if m != nil {
		m.ActiveUploads.Dec()
	}
}
