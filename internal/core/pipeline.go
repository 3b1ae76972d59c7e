package core

// pipeline.go orchestrates a single upload:
//
//	parse -> normalize -> rules -> bulk insert -> metric
//
// Row validation is spread over a bounded worker pool; persistence is one
// BulkInsert call for all accepted rows. Row-level problems become entries
// in IngestionResult.Errors and never abort the upload. Fatal problems
// (oversized or malformed file, store failure, deadline) abort it with an
// error wrapping one of the sentinels in errors.go.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Pipeline defaults.
const (
	DefaultMaxFileSize       int64 = 5 << 20
	DefaultUploadTimeout           = 2 * time.Minute
	DefaultValidationWorkers       = 4
)

// minRowsPerWorker keeps tiny uploads on a single goroutine.
const minRowsPerWorker = 256

const tracerName = "github.com/JonMunkholm/policyhub/internal/core"

// PipelineOptions tunes a Pipeline. Zero values select the defaults.
type PipelineOptions struct {
	MaxFileSize int64
	Timeout     time.Duration
	Workers     int
	Logger      *slog.Logger
}

func (o PipelineOptions) withDefaults() PipelineOptions {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultUploadTimeout
	}
	if o.Workers <= 0 {
		o.Workers = DefaultValidationWorkers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// UploadInput is the payload of one upload. A nil Data means no file was
// provided; an empty non-nil Data is an empty file.
type UploadInput struct {
	FileName      string
	Data          []byte
	OperationID   string
	CorrelationID string
}

// Pipeline runs uploads end to end. It holds no per-upload state and is
// safe for concurrent use.
type Pipeline struct {
	store  PolicyStore
	engine *RuleEngine
	sink   MetricSink
	opts   PipelineOptions
	tracer trace.Tracer
	now    func() time.Time
}

// NewPipeline wires a pipeline. A nil engine selects [DefaultRuleEngine]; a
// nil sink logs events with [LogSink].
func NewPipeline(store PolicyStore, engine *RuleEngine, sink MetricSink, opts PipelineOptions) *Pipeline {
	opts = opts.withDefaults()
	if engine == nil {
		engine = DefaultRuleEngine()
	}
	if sink == nil {
		sink = LogSink{Logger: opts.Logger}
	}
	return &Pipeline{
		store:  store,
		engine: engine,
		sink:   sink,
		opts:   opts,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Process ingests one upload. On success it returns the result and emits
// exactly one MetricEvent; on failure it returns an error and persists
// nothing beyond what the store had already committed.
func (p *Pipeline) Process(ctx context.Context, in UploadInput) (*IngestionResult, error) {
	start := p.now()

	ctx, span := p.tracer.Start(ctx, "ingest.process", trace.WithAttributes(
		attribute.String("operation.id", in.OperationID),
		attribute.String("correlation.id", in.CorrelationID),
		attribute.String("file.name", in.FileName),
		attribute.Int("file.size", len(in.Data)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	result, err := p.process(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Duration = p.now().Sub(start)
	span.SetAttributes(
		attribute.Int("rows.inserted", result.InsertedCount),
		attribute.Int("rows.rejected", result.RejectedCount),
		attribute.Int("rows.duplicates", result.DuplicatesSkipped),
	)

	p.sink.Emit(ctx, MetricEvent{
		Type:          MetricTypeBusiness,
		OperationID:   in.OperationID,
		CorrelationID: in.CorrelationID,
		Action:        ActionUploadCSV,
		Inserted:      result.InsertedCount,
		Rejected:      result.RejectedCount,
		DurationMS:    result.Duration.Milliseconds(),
	})

	return result, nil
}

func (p *Pipeline) process(ctx context.Context, in UploadInput) (*IngestionResult, error) {
	if in.Data == nil {
		return nil, ErrNoFile
	}
	if size := int64(len(in.Data)); size > p.opts.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, size, p.opts.MaxFileSize)
	}

	rows, err := ParseFile(in.FileName, in.Data)
	if err != nil {
		return nil, err
	}
	if err := deadlineErr(ctx); err != nil {
		return nil, err
	}

	outcomes, err := p.validate(ctx, rows)
	if err != nil {
		return nil, err
	}

	result := &IngestionResult{Errors: []RowError{}}
	accepted := make([]Candidate, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, *o.err)
			continue
		}
		accepted = append(accepted, o.candidate)
	}
	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].RowNumber < result.Errors[j].RowNumber
	})

	if len(accepted) > 0 {
		stored, err := p.store.BulkInsert(ctx, accepted)
		if err != nil {
			if ctxErr := deadlineErr(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if stored < len(accepted) {
			result.DuplicatesSkipped = len(accepted) - stored
		}
	}

	result.InsertedCount = len(accepted)
	result.RejectedCount = len(result.Errors)
	return result, nil
}

// rowOutcome is either an accepted candidate or the row's first error.
type rowOutcome struct {
	candidate Candidate
	err       *RowError
}

// validate evaluates every row, preserving input order in the returned
// slice.
func (p *Pipeline) validate(ctx context.Context, rows []RawRow) ([]rowOutcome, error) {
	outcomes := make([]rowOutcome, len(rows))
	if len(rows) == 0 {
		return outcomes, nil
	}

	workers := p.opts.Workers
	if limit := (len(rows) + minRowsPerWorker - 1) / minRowsPerWorker; workers > limit {
		workers = limit
	}
	chunk := (len(rows) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(rows); lo += chunk {
		hi := min(lo+chunk, len(rows))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%minRowsPerWorker == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				outcomes[i] = p.evaluate(rows[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := deadlineErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return outcomes, nil
}

// evaluate applies technical validation and then business rules to one
// row. Only the first error is kept.
func (p *Pipeline) evaluate(raw RawRow) rowOutcome {
	c, techErr := Normalize(raw)
	if techErr != nil {
		return rowOutcome{err: techErr}
	}

	if errs := p.engine.Evaluate(c); len(errs) > 0 {
		first := errs[0]
		first.RowNumber = raw.Number
		return rowOutcome{err: &first}
	}
	return rowOutcome{candidate: c}
}

// deadlineErr maps an expired context to ErrUploadTimeout.
func deadlineErr(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUploadTimeout, err)
	default:
		return err
	}
}
