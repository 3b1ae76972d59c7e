package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTracer_BeginCreatesReceived(t *testing.T) {
	ctrl := gomock.NewController(t)
	ops := NewMockOperationStore(ctrl)

	var created Operation
	ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, op Operation) error {
			created = op
			return nil
		})

	op, err := NewTracer(ops, nil).Begin(context.Background(), "corr-1", "/api/policies/upload")
	require.NoError(t, err)

	assert.Equal(t, created, op)
	assert.Equal(t, OperationReceived, op.Status)
	assert.Equal(t, "corr-1", op.CorrelationID)
	assert.Equal(t, "/api/policies/upload", op.Endpoint)
	_, perr := uuid.Parse(op.ID)
	assert.NoError(t, perr)
	assert.False(t, op.CreatedAt.IsZero())
}

func TestTracer_BeginFailureIsPersistenceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ops := NewMockOperationStore(ctrl)
	ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	_, err := NewTracer(ops, nil).Begin(context.Background(), "c", "/x")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestTracer_CompleteCarriesCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	ops := NewMockOperationStore(ctrl)

	ops.EXPECT().UpdateOperation(gomock.Any(), "op-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, upd OperationUpdate) error {
			assert.Equal(t, OperationCompleted, upd.Status)
			require.NotNil(t, upd.RowsInserted)
			require.NotNil(t, upd.RowsRejected)
			assert.Equal(t, 7, *upd.RowsInserted)
			assert.Equal(t, 2, *upd.RowsRejected)
			assert.Equal(t, int64(1500), upd.DurationMS)
			assert.Empty(t, upd.ErrorSummary)
			return nil
		})

	NewTracer(ops, nil).Complete(context.Background(), "op-1", &IngestionResult{
		InsertedCount: 7,
		RejectedCount: 2,
		Duration:      1500 * time.Millisecond,
	})
}

func TestTracer_FailSurvivesCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	ops := NewMockOperationStore(ctrl)

	ops.EXPECT().UpdateOperation(gomock.Any(), "op-2", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, upd OperationUpdate) error {
			assert.NoError(t, ctx.Err(), "trace update must not inherit request cancellation")
			assert.Equal(t, OperationFailed, upd.Status)
			assert.Contains(t, upd.ErrorSummary, "FILE004")
			assert.Nil(t, upd.RowsInserted)
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewTracer(ops, nil).Fail(ctx, "op-2", ErrNoFile, time.Second)
}

func TestTracer_UpdateErrorsAreLoggedNotReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	ops := NewMockOperationStore(ctrl)
	ops.EXPECT().UpdateOperation(gomock.Any(), gomock.Any(), gomock.Any()).Return(ErrInvalidTransition)

	var buf bytes.Buffer
	tracer := NewTracer(ops, slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NotPanics(t, func() {
		tracer.Complete(context.Background(), "op-3", &IngestionResult{})
	})
	assert.Contains(t, buf.String(), "operation trace update failed")
	assert.Contains(t, buf.String(), "op-3")
}

func TestOperationStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to OperationStatus
		want     bool
	}{
		{OperationReceived, OperationCompleted, true},
		{OperationReceived, OperationFailed, true},
		{OperationReceived, OperationReceived, false},
		{OperationCompleted, OperationFailed, false},
		{OperationFailed, OperationCompleted, false},
		{OperationCompleted, OperationCompleted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOperationUpdate_Apply(t *testing.T) {
	n := 3
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	op := OperationUpdate{Status: OperationCompleted, RowsInserted: &n, DurationMS: 42}.
		Apply(Operation{ID: "x", Status: OperationReceived}, now)

	assert.Equal(t, OperationCompleted, op.Status)
	assert.Equal(t, 3, *op.RowsInserted)
	assert.Equal(t, int64(42), *op.DurationMS)
	assert.Equal(t, now, op.UpdatedAt)
}
