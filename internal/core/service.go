package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyhub/internal/logging"
)

// DefaultUploadEndpoint is recorded on operations created by uploads.
const DefaultUploadEndpoint = "/api/policies/upload"

// SummaryCache stores the portfolio summary between uploads. Get reports a
// miss with false; cache failures are handled inside the implementation.
type SummaryCache interface {
	Get(ctx context.Context) (Summary, bool)
	Set(ctx context.Context, s Summary)
	Invalidate(ctx context.Context)
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	Pipeline      PipelineOptions
	MaxConcurrent int
	MaxWait       time.Duration
	Endpoint      string
}

// ServiceDeps are the collaborators a Service is built from. Policies,
// Operations and Reports are required; the rest are optional.
type ServiceDeps struct {
	Policies   PolicyStore
	Operations OperationStore
	Reports    ReportStore
	Engine     *RuleEngine
	Sink       MetricSink
	Metrics    *Metrics
	Cache      SummaryCache
	Logger     *slog.Logger
}

// Service is the entry point for uploads and portfolio queries.
type Service struct {
	pipeline *Pipeline
	tracer   *Tracer
	limiter  *UploadLimiter
	reports  ReportStore
	ops      OperationStore
	metrics  *Metrics
	cache    SummaryCache
	logger   *slog.Logger
	endpoint string
}

// NewService wires a Service from deps.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	if deps.Policies == nil || deps.Operations == nil || deps.Reports == nil {
		return nil, errors.New("core: policy, operation and report stores are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultUploadEndpoint
	}
	cfg.Pipeline.Logger = logger

	sink := MultiSink{LogSink{Logger: logger}}
	if deps.Metrics != nil {
		sink = append(sink, deps.Metrics)
	}
	if deps.Sink != nil {
		sink = append(sink, deps.Sink)
	}

	return &Service{
		pipeline: NewPipeline(deps.Policies, deps.Engine, sink, cfg.Pipeline),
		tracer:   NewTracer(deps.Operations, logger),
		limiter:  NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		reports:  deps.Reports,
		ops:      deps.Operations,
		metrics:  deps.Metrics,
		cache:    deps.Cache,
		logger:   logger,
		endpoint: cfg.Endpoint,
	}, nil
}

// UploadRequest is one file submitted for ingestion. Data is nil when the
// request carried no file.
type UploadRequest struct {
	FileName      string
	Data          []byte
	CorrelationID string
}

// UploadResponse identifies the traced operation and, on success, carries
// the ingestion result.
type UploadResponse struct {
	OperationID   string `json:"operation_id"`
	CorrelationID string `json:"correlation_id"`
	*IngestionResult
}

// Upload ingests one file under a traced operation.
//
// When the upload fails after its operation was created, the returned
// response still identifies the operation alongside the error.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = logging.CorrelationID(ctx)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	ctx = logging.WithCorrelationID(ctx, req.CorrelationID)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()
	s.metrics.uploadStarted()
	defer s.metrics.uploadFinished()

	start := time.Now()
	op, err := s.tracer.Begin(ctx, req.CorrelationID, s.endpoint)
	if err != nil {
		return nil, err
	}

	logger := logging.Enrich(ctx, s.logger).With("operation_id", op.ID)
	logger.Info("upload received", "file", req.FileName, "bytes", len(req.Data))

	resp := &UploadResponse{OperationID: op.ID, CorrelationID: req.CorrelationID}

	result, err := s.pipeline.Process(ctx, UploadInput{
		FileName:      req.FileName,
		Data:          req.Data,
		OperationID:   op.ID,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.tracer.Fail(ctx, op.ID, err, time.Since(start))
		s.metrics.ObserveFailure()
		logger.Warn("upload failed", "error", err)
		return resp, err
	}

	s.tracer.Complete(ctx, op.ID, result)
	s.metrics.ObserveDuplicates(result.DuplicatesSkipped)
	if result.InsertedCount > result.DuplicatesSkipped && s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	logger.Info("upload completed",
		"inserted", result.InsertedCount,
		"rejected", result.RejectedCount,
		"duplicates", result.DuplicatesSkipped,
		"duration_ms", result.Duration.Milliseconds(),
	)

	resp.IngestionResult = result
	return resp, nil
}

// Summary returns portfolio aggregates, served from cache when possible.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	if s.cache != nil {
		if sum, ok := s.cache.Get(ctx); ok {
			return sum, nil
		}
	}

	sum, err := s.reports.Summary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: summary: %w", ErrPersistence, err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, sum)
	}
	return sum, nil
}

// ListPolicies returns one page of policies, newest first.
func (s *Service) ListPolicies(ctx context.Context, filter ListFilter) (PolicyPage, error) {
	filter = filter.Normalized()
	page, err := s.reports.ListPolicies(ctx, filter)
	if err != nil {
		return PolicyPage{}, fmt.Errorf("%w: list policies: %w", ErrPersistence, err)
	}
	page.Limit, page.Offset = filter.Limit, filter.Offset
	if page.Items == nil {
		page.Items = []Policy{}
	}
	return page, nil
}

// Operation returns the traced operation with the given id.
func (s *Service) Operation(ctx context.Context, id string) (Operation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Operation{}, ErrOperationNotFound
	}
	op, err := s.ops.GetOperation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOperationNotFound) {
			return Operation{}, err
		}
		return Operation{}, fmt.Errorf("%w: get operation: %w", ErrPersistence, err)
	}
	return op, nil
}

// UploadStatus returns limiter occupancy for health reporting.
func (s *Service) UploadStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
