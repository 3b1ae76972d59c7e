package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyhub/internal/logging"
)

// traceUpdateTimeout bounds a terminal status write. Updates run detached
// from the request so a cancelled upload can still be marked FAILED.
const traceUpdateTimeout = 5 * time.Second

// maxErrorSummary caps the stored failure text.
const maxErrorSummary = 1000

// Tracer records the lifecycle of each upload as an Operation.
type Tracer struct {
	store  OperationStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTracer returns a tracer persisting to store. A nil logger uses the
// default.
func NewTracer(store OperationStore, logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{store: store, logger: logger, now: time.Now}
}

// Begin creates a RECEIVED operation. It is the only trace call whose
// failure is reported: without it the upload has no audit record.
func (t *Tracer) Begin(ctx context.Context, correlationID, endpoint string) (Operation, error) {
	now := t.now().UTC()
	op := Operation{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Endpoint:      endpoint,
		Status:        OperationReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := t.store.CreateOperation(ctx, op); err != nil {
		return Operation{}, fmt.Errorf("%w: create operation: %w", ErrPersistence, err)
	}
	return op, nil
}

// Complete marks id COMPLETED with the result's counts and duration.
func (t *Tracer) Complete(ctx context.Context, id string, result *IngestionResult) {
	inserted, rejected := result.InsertedCount, result.RejectedCount
	t.update(ctx, id, OperationUpdate{
		Status:       OperationCompleted,
		RowsInserted: &inserted,
		RowsRejected: &rejected,
		DurationMS:   result.Duration.Milliseconds(),
	})
}

// Fail marks id FAILED with a summary of cause.
func (t *Tracer) Fail(ctx context.Context, id string, cause error, elapsed time.Duration) {
	t.update(ctx, id, OperationUpdate{
		Status:       OperationFailed,
		DurationMS:   elapsed.Milliseconds(),
		ErrorSummary: ErrorSummary(cause),
	})
}

// update writes a terminal status. Errors are logged, never returned.
func (t *Tracer) update(ctx context.Context, id string, upd OperationUpdate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceUpdateTimeout)
	defer cancel()

	if err := t.store.UpdateOperation(ctx, id, upd); err != nil {
		logging.Enrich(ctx, t.logger).Error("operation trace update failed",
			"operation_id", id,
			"status", upd.Status,
			"error", err,
		)
	}
}

// ErrorSummary renders err for the operation record: the user-facing
// message and code followed by the technical detail.
func ErrorSummary(err error) string {
	if err == nil {
		return ""
	}
	msg := MapError(err)
	s := fmt.Sprintf("%s (%s): %s", msg.Message, msg.Code, err.Error())
	if r := []rune(s); len(r) > maxErrorSummary {
		s = string(r[:maxErrorSummary])
	}
	return s
}
