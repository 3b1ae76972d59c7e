// Package memory is an in-process implementation of the core store ports.
// It backs tests and local runs started with DATABASE_URL=memory://.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/policyhub/internal/core"
)

// Store holds policies and operations in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	policies map[string]core.Policy
	nextID   int64
	ops      map[string]core.Operation
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		policies: make(map[string]core.Policy),
		ops:      make(map[string]core.Operation),
		now:      time.Now,
	}
}

// BulkInsert implements core.PolicyStore. Policy numbers already present,
// including ones repeated within candidates, are skipped.
func (s *Store) BulkInsert(ctx context.Context, candidates []core.Candidate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	inserted := 0
	for _, c := range candidates {
		if _, exists := s.policies[c.PolicyNumber]; exists {
			continue
		}
		s.nextID++
		s.policies[c.PolicyNumber] = core.Policy{ID: s.nextID, Candidate: c, CreatedAt: now}
		inserted++
	}
	return inserted, nil
}

// CreateOperation implements core.OperationStore.
func (s *Store) CreateOperation(_ context.Context, op core.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops[op.ID] = op
	return nil
}

// UpdateOperation implements core.OperationStore.
func (s *Store) UpdateOperation(_ context.Context, id string, upd core.OperationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return core.ErrOperationNotFound
	}
	if !op.Status.CanTransition(upd.Status) {
		return core.ErrInvalidTransition
	}
	s.ops[id] = upd.Apply(op, s.now().UTC())
	return nil
}

// GetOperation implements core.OperationStore.
func (s *Store) GetOperation(_ context.Context, id string) (core.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[id]
	if !ok {
		return core.Operation{}, core.ErrOperationNotFound
	}
	return op, nil
}

// Summary implements core.ReportStore.
func (s *Store) Summary(_ context.Context) (core.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := core.NewSummary()
	for _, p := range s.policies {
		sum.Add(p.Status, p.PolicyType, 1, p.PremiumUSD)
	}
	return sum, nil
}

// ListPolicies implements core.ReportStore. Results are newest first, ties
// broken by descending id.
func (s *Store) ListPolicies(_ context.Context, filter core.ListFilter) (core.PolicyPage, error) {
	filter = filter.Normalized()
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	s.mu.RLock()
	matched := make([]core.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.PolicyType != "" && p.PolicyType != filter.PolicyType {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.PolicyNumber), query) &&
			!strings.Contains(strings.ToLower(p.Customer), query) {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page := core.PolicyPage{
		Items:  []core.Policy{},
		Total:  int64(len(matched)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Items = matched[filter.Offset:end]
	}
	return page, nil
}

// Ping implements the health check contract shared with the postgres store.
func (s *Store) Ping(context.Context) error {
	return nil
}
