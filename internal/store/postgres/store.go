// Package postgres implements the core store ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/policyhub/internal/config"
	"github.com/JonMunkholm/policyhub/internal/core"
)

const insertPolicySQL = `
INSERT INTO policies (policy_number, customer, policy_type, start_date, end_date,
	premium_usd, status, insured_value_usd)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric)
ON CONFLICT (policy_number) DO NOTHING`

const policyColumns = `id, policy_number, customer, policy_type, start_date, end_date,
	premium_usd::text, status, insured_value_usd::text, created_at`

const operationColumns = `id, correlation_id, endpoint, status, rows_inserted, rows_rejected,
	duration_ms, error_summary, created_at, updated_at`

// Store is the PostgreSQL-backed implementation of the core store ports.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool opens and pings a connection pool sized from cfg.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// BulkInsert implements core.PolicyStore. All candidates are sent as one
// batch inside a transaction; conflicting policy numbers are skipped.
func (s *Store) BulkInsert(ctx context.Context, candidates []core.Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(insertPolicySQL,
			c.PolicyNumber,
			c.Customer,
			string(c.PolicyType),
			pgtype.Date{Time: c.StartDate, Valid: true},
			pgtype.Date{Time: c.EndDate, Valid: true},
			c.PremiumUSD.String(),
			string(c.Status),
			c.InsuredValueUSD.String(),
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range candidates {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert policy %q: %w", candidates[i].PolicyNumber, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// CreateOperation implements core.OperationStore.
func (s *Store) CreateOperation(ctx context.Context, op core.Operation) error {
	id, err := uuid.Parse(op.ID)
	if err != nil {
		return fmt.Errorf("operation id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO operations (id, correlation_id, endpoint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, op.CorrelationID, op.Endpoint, string(op.Status), op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// UpdateOperation implements core.OperationStore. Only RECEIVED operations
// are updated; the status guard lives in the WHERE clause.
func (s *Store) UpdateOperation(ctx context.Context, id string, upd core.OperationUpdate) error {
	opID, err := uuid.Parse(id)
	if err != nil {
		return core.ErrOperationNotFound
	}
	if !core.OperationReceived.CanTransition(upd.Status) {
		return core.ErrInvalidTransition
	}

	var summary *string
	if upd.ErrorSummary != "" {
		summary = &upd.ErrorSummary
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE operations
		SET status = $2, rows_inserted = $3, rows_rejected = $4, duration_ms = $5,
			error_summary = $6, updated_at = now()
		WHERE id = $1 AND status = $7`,
		opID, string(upd.Status), upd.RowsInserted, upd.RowsRejected, upd.DurationMS,
		summary, string(core.OperationReceived))
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM operations WHERE id = $1)`, opID).Scan(&exists); err != nil {
		return fmt.Errorf("check operation: %w", err)
	}
	if !exists {
		return core.ErrOperationNotFound
	}
	return core.ErrInvalidTransition
}

// GetOperation implements core.OperationStore.
func (s *Store) GetOperation(ctx context.Context, id string) (core.Operation, error) {
	opID, err := uuid.Parse(id)
	if err != nil {
		return core.Operation{}, core.ErrOperationNotFound
	}

	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = $1`, opID)
	op, err := scanOperation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Operation{}, core.ErrOperationNotFound
	}
	if err != nil {
		return core.Operation{}, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

func scanOperation(row pgx.Row) (core.Operation, error) {
	var (
		op           core.Operation
		id           uuid.UUID
		status       string
		inserted     *int32
		rejected     *int32
		duration     *int64
		errorSummary *string
	)
	if err := row.Scan(&id, &op.CorrelationID, &op.Endpoint, &status, &inserted, &rejected,
		&duration, &errorSummary, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return core.Operation{}, err
	}

	op.ID = id.String()
	op.Status = core.OperationStatus(status)
	op.RowsInserted = intPtr(inserted)
	op.RowsRejected = intPtr(rejected)
	op.DurationMS = duration
	if errorSummary != nil {
		op.ErrorSummary = *errorSummary
	}
	return op, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// Summary implements core.ReportStore.
func (s *Store) Summary(ctx context.Context) (core.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, policy_type, COUNT(*), COALESCE(SUM(premium_usd), 0)::text
		FROM policies
		GROUP BY status, policy_type`)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary query: %w", err)
	}
	defer rows.Close()

	sum := core.NewSummary()
	for rows.Next() {
		var (
			status, policyType, premium string
			count                       int64
		)
		if err := rows.Scan(&status, &policyType, &count, &premium); err != nil {
			return core.Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		amount, err := decimal.NewFromString(premium)
		if err != nil {
			return core.Summary{}, fmt.Errorf("parse premium sum %q: %w", premium, err)
		}
		sum.Add(core.PolicyStatus(status), core.PolicyType(policyType), count, amount)
	}
	if err := rows.Err(); err != nil {
		return core.Summary{}, fmt.Errorf("summary rows: %w", err)
	}
	return sum, nil
}

// ListPolicies implements core.ReportStore.
func (s *Store) ListPolicies(ctx context.Context, filter core.ListFilter) (core.PolicyPage, error) {
	filter = filter.Normalized()

	wb := newWhereBuilder()
	wb.Add("status", string(filter.Status))
	wb.Add("policy_type", string(filter.PolicyType))
	wb.AddSearch(filter.Query, "policy_number", "customer")
	whereClause, args := wb.Build()

	page := core.PolicyPage{Items: []core.Policy{}, Limit: filter.Limit, Offset: filter.Offset}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM policies"+whereClause, args...).Scan(&page.Total); err != nil {
		return core.PolicyPage{}, fmt.Errorf("count policies: %w", err)
	}
	if page.Total == 0 || int64(filter.Offset) >= page.Total {
		return page, nil
	}

	query := `SELECT ` + policyColumns + ` FROM policies` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", wb.NextArgIndex(), wb.NextArgIndex()+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return core.PolicyPage{}, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return core.PolicyPage{}, err
		}
		page.Items = append(page.Items, p)
	}
	if err := rows.Err(); err != nil {
		return core.PolicyPage{}, fmt.Errorf("list rows: %w", err)
	}
	return page, nil
}

func scanPolicy(row pgx.Row) (core.Policy, error) {
	var (
		p                  core.Policy
		policyType, status string
		premium, insured   string
		start, end         pgtype.Date
		createdAt          time.Time
	)
	if err := row.Scan(&p.ID, &p.PolicyNumber, &p.Customer, &policyType, &start, &end,
		&premium, &status, &insured, &createdAt); err != nil {
		return core.Policy{}, fmt.Errorf("scan policy: %w", err)
	}

	var err error
	if p.PremiumUSD, err = decimal.NewFromString(premium); err != nil {
		return core.Policy{}, fmt.Errorf("policy %s premium: %w", p.PolicyNumber, err)
	}
	if p.InsuredValueUSD, err = decimal.NewFromString(insured); err != nil {
		return core.Policy{}, fmt.Errorf("policy %s insured value: %w", p.PolicyNumber, err)
	}
	p.PolicyType = core.PolicyType(policyType)
	p.Status = core.PolicyStatus(status)
	p.StartDate = start.Time
	p.EndDate = end.Time
	p.CreatedAt = createdAt.UTC()
	return p, nil
}
