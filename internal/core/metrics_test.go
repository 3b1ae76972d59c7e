package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Emit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Emit(context.Background(), MetricEvent{Inserted: 3, Rejected: 2, DurationMS: 40})
	m.ObserveFailure()
	m.ObserveDuplicates(1)
	m.ObserveDuplicates(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("duplicate")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), MetricEvent{})
		m.ObserveFailure()
		m.uploadStarted()
		m.uploadFinished()
	})
}

func TestLogSink_WritesBusinessMetric(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	sink.Emit(context.Background(), MetricEvent{
		Type:          MetricTypeBusiness,
		OperationID:   "op-1",
		CorrelationID: "corr-1",
		Action:        ActionUploadCSV,
		Inserted:      5,
		Rejected:      1,
		DurationMS:    12,
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "BUSINESS_METRIC", entry["type"])
	assert.Equal(t, "upload_csv", entry["action"])
	assert.Equal(t, "op-1", entry["operation_id"])
	assert.EqualValues(t, 5, entry["inserted"])
	assert.EqualValues(t, 12, entry["duration_ms"])
}

func TestMultiSink_FansOut(t *testing.T) {
	var got []string
	sink := MultiSink{
		MetricSinkFunc(func(_ context.Context, ev MetricEvent) { got = append(got, "a:"+ev.OperationID) }),
		nil,
		MetricSinkFunc(func(_ context.Context, ev MetricEvent) { got = append(got, "b:"+ev.OperationID) }),
	}

	sink.Emit(context.Background(), MetricEvent{OperationID: "x"})
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}
