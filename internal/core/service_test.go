package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/JonMunkholm/policyhub/internal/logging"
)

type serviceMocks struct {
	policies *MockPolicyStore
	ops      *MockOperationStore
	reports  *MockReportStore
	cache    *fakeCache
	metrics  *Metrics
}

type fakeCache struct {
	summary     *Summary
	sets        int
	invalidated int
}

func (c *fakeCache) Get(context.Context) (Summary, bool) {
	if c.summary == nil {
		return Summary{}, false
	}
	return *c.summary, true
}

func (c *fakeCache) Set(_ context.Context, s Summary) {
	c.sets++
	c.summary = &s
}

func (c *fakeCache) Invalidate(context.Context) {
	c.invalidated++
	c.summary = nil
}

func newTestService(t *testing.T, cfg ServiceConfig) (*Service, serviceMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := serviceMocks{
		policies: NewMockPolicyStore(ctrl),
		ops:      NewMockOperationStore(ctrl),
		reports:  NewMockReportStore(ctrl),
		cache:    &fakeCache{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}

	svc, err := NewService(ServiceDeps{
		Policies:   m.policies,
		Operations: m.ops,
		Reports:    m.reports,
		Metrics:    m.metrics,
		Cache:      m.cache,
	}, cfg)
	require.NoError(t, err)
	return svc, m
}

func TestNewService_RequiresStores(t *testing.T) {
	_, err := NewService(ServiceDeps{}, ServiceConfig{})
	assert.Error(t, err)
}

func TestService_UploadCompletes(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	var opID string
	gomock.InOrder(
		m.ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, op Operation) error {
				opID = op.ID
				assert.Equal(t, DefaultUploadEndpoint, op.Endpoint)
				assert.Equal(t, "corr-9", op.CorrelationID)
				return nil
			}),
		m.policies.EXPECT().BulkInsert(gomock.Any(), gomock.Len(1)).Return(1, nil),
		m.ops.EXPECT().UpdateOperation(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, id string, upd OperationUpdate) error {
				assert.Equal(t, opID, id)
				assert.Equal(t, OperationCompleted, upd.Status)
				assert.Equal(t, 1, *upd.RowsInserted)
				assert.Equal(t, 1, *upd.RowsRejected)
				return nil
			}),
	)

	data := csvOf(
		policyLine("P-1", "Auto", "20000", "active", "2024-01-01", "2025-01-01"),
		policyLine("P-2", "Property", "10", "active", "2024-01-01", "2025-01-01"),
	)

	ctx := logging.WithCorrelationID(context.Background(), "corr-9")
	resp, err := svc.Upload(ctx, UploadRequest{FileName: "p.csv", Data: data})
	require.NoError(t, err)

	assert.Equal(t, opID, resp.OperationID)
	assert.Equal(t, "corr-9", resp.CorrelationID)
	assert.Equal(t, 1, resp.InsertedCount)
	assert.Equal(t, 1, resp.RejectedCount)
	assert.Equal(t, 1, m.cache.invalidated)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.UploadsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, 0, svc.UploadStatus().Active)
}

func TestService_UploadMissingFileFails(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	m.ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).Return(nil)
	m.ops.EXPECT().UpdateOperation(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, upd OperationUpdate) error {
			assert.Equal(t, OperationFailed, upd.Status)
			assert.Contains(t, upd.ErrorSummary, "no file provided")
			return nil
		})

	resp, err := svc.Upload(context.Background(), UploadRequest{})
	assert.ErrorIs(t, err, ErrNoFile)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.OperationID)
	assert.NotEmpty(t, resp.CorrelationID, "a correlation id is generated when absent")
	assert.Nil(t, resp.IngestionResult)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.UploadsTotal.WithLabelValues("FAILED")))
}

func TestService_UploadPersistenceFailureMarksFailed(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	m.ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).Return(nil)
	m.policies.EXPECT().BulkInsert(gomock.Any(), gomock.Any()).Return(0, errors.New("connection reset by peer"))
	m.ops.EXPECT().UpdateOperation(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, upd OperationUpdate) error {
			assert.Equal(t, OperationFailed, upd.Status)
			assert.Contains(t, upd.ErrorSummary, "DB005")
			return nil
		})

	resp, err := svc.Upload(context.Background(), UploadRequest{
		Data: csvOf(policyLine("P-1", "Auto", "20000", "active", "2024-01-01", "2025-01-01")),
	})
	assert.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, resp)
	assert.Nil(t, resp.IngestionResult)
	assert.Zero(t, m.cache.invalidated)
}

func TestService_TraceFailureDoesNotMaskResult(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	m.ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).Return(nil)
	m.policies.EXPECT().BulkInsert(gomock.Any(), gomock.Any()).Return(1, nil)
	m.ops.EXPECT().UpdateOperation(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("db gone"))

	resp, err := svc.Upload(context.Background(), UploadRequest{
		Data: csvOf(policyLine("P-1", "Auto", "20000", "active", "2024-01-01", "2025-01-01")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.InsertedCount)
}

func TestService_UploadBeginFailure(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})
	m.ops.EXPECT().CreateOperation(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	resp, err := svc.Upload(context.Background(), UploadRequest{Data: []byte{}})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Nil(t, resp)
}

func TestService_UploadBusy(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})

	require.NoError(t, svc.limiter.Acquire(context.Background()))
	defer svc.limiter.Release()

	_, err := svc.Upload(context.Background(), UploadRequest{Data: []byte{}})
	assert.ErrorIs(t, err, ErrTooManyUploads)
}

func TestService_SummaryUsesCache(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	sum := NewSummary()
	sum.Add(StatusActive, PolicyAuto, 2, decimal.NewFromInt(300))
	m.reports.EXPECT().Summary(gomock.Any()).Return(sum, nil).Times(1)

	first, err := svc.Summary(context.Background())
	require.NoError(t, err)
	second, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), first.TotalPolicies)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.cache.sets)
}

func TestService_SummaryStoreError(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})
	m.reports.EXPECT().Summary(gomock.Any()).Return(Summary{}, errors.New("boom"))

	_, err := svc.Summary(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, m.cache.sets)
}

func TestService_ListPoliciesNormalizesFilter(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	m.reports.EXPECT().
		ListPolicies(gomock.Any(), ListFilter{Limit: MaxListLimit, Offset: 0, Query: "acme"}).
		Return(PolicyPage{Total: 0}, nil)

	page, err := svc.ListPolicies(context.Background(), ListFilter{Limit: 1000, Offset: -5, Query: "acme"})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, page.Limit)
	assert.NotNil(t, page.Items)
}

func TestService_Operation(t *testing.T) {
	svc, m := newTestService(t, ServiceConfig{})

	_, err := svc.Operation(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrOperationNotFound)

	id := "0b6f1d9e-7f43-4c4e-9a8e-0a6f3c1c2b11"
	m.ops.EXPECT().GetOperation(gomock.Any(), id).Return(Operation{ID: id, Status: OperationReceived}, nil)

	op, err := svc.Operation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, OperationReceived, op.Status)
}
