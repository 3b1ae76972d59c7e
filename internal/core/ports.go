package core

//go:generate mockgen -source=ports.go -destination=store_mock_test.go -package=core

import "context"

// PolicyStore persists validated policies.
type PolicyStore interface {
	// BulkInsert stores candidates in one round trip, silently skipping any
	// whose policy number already exists. It returns the number of rows
	// actually written.
	BulkInsert(ctx context.Context, candidates []Candidate) (int, error)
}

// OperationStore persists upload audit records.
type OperationStore interface {
	CreateOperation(ctx context.Context, op Operation) error
	// UpdateOperation applies a terminal update. It returns
	// ErrOperationNotFound for unknown ids and ErrInvalidTransition when the
	// operation is already terminal.
	UpdateOperation(ctx context.Context, id string, upd OperationUpdate) error
	GetOperation(ctx context.Context, id string) (Operation, error)
}

// ReportStore answers read-side queries over stored policies.
type ReportStore interface {
	Summary(ctx context.Context) (Summary, error)
	ListPolicies(ctx context.Context, filter ListFilter) (PolicyPage, error)
}
