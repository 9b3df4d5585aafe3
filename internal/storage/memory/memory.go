// Package memory is an in-process storage.Repository used for development
// and as the persistence fake in tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"faturas/internal/core"
	"faturas/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]core.Dataset
	profiles map[string]core.Profile
	activity []storage.Activity
	applies  int
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]core.Dataset),
		profiles: make(map[string]core.Profile),
	}
}

// Seed replaces a user's dataset.
func (s *Store) Seed(userID string, ds core.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = ds.Clone()
}

// SaveProfile stores plan flags for a user.
func (s *Store) SaveProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// Applies counts committed batches.
func (s *Store) Applies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}

func (s *Store) LoadDataset(_ context.Context, userID string) (core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := s.users[userID].Clone()
	ds.Version = 0
	return ds, nil
}

func (s *Store) LoadCollection(_ context.Context, userID string, c core.Collection) (core.Dataset, error) {
	if !slices.Contains(core.AllCollections, c) {
		return core.Dataset{}, fmt.Errorf("unknown collection %q", c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out core.Dataset
	out.Merge(c, s.users[userID].Clone())
	return out, nil
}

func (s *Store) GetLoan(_ context.Context, userID, id string) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID].LoanByID(id)
	if !ok {
		return core.Loan{}, fmt.Errorf("loan %s: %w", id, core.ErrNotFound)
	}
	return l.Clone(), nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID].ExpenseByID(id)
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return core.Profile{UserID: userID, Plan: core.PlanFree}, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Apply runs the batch against a copy of the user's data and swaps it in only
// when every op succeeded.
func (s *Store) Apply(ctx context.Context, userID string, b *storage.Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.users[userID].Clone()
	for i, op := range b.Ops() {
		if err := apply(&next, op); err != nil {
			return fmt.Errorf("batch op %d (%T): %w", i, op, err)
		}
	}
	s.users[userID] = next
	s.applies++
	return nil
}

func apply(ds *core.Dataset, op storage.Op) error {
	switch op := op.(type) {
	case storage.PutCard:
		ds.Cards = upsert(ds.Cards, op.Card, func(c core.Card) string { return c.ID })
	case storage.PutClient:
		ds.Clients = upsert(ds.Clients, op.Client, func(c core.Client) string { return c.ID })
	case storage.PutLoan:
		ds.Loans = upsert(ds.Loans, op.Loan.Clone(), func(l core.Loan) string { return l.ID })
	case storage.PutSubscription:
		ds.Subscriptions = upsert(ds.Subscriptions, op.Subscription, func(s core.Subscription) string { return s.ID })
	case storage.PutExpense:
		ds.Expenses = upsert(ds.Expenses, op.Expense, func(e core.Expense) string { return e.ID })
	case storage.PutIncome:
		ds.Incomes = upsert(ds.Incomes, op.Income, func(in core.Income) string { return in.ID })
	case storage.PutMarker:
		if !ds.HasMarker(op.Marker.SubscriptionID, op.Marker.Month) {
			ds.Markers = append(ds.Markers, op.Marker)
		}
	case storage.DeleteMarkers:
		ds.Markers = slices.DeleteFunc(ds.Markers, func(m core.PaidSubscriptionMarker) bool {
			return m.SubscriptionID == op.SubscriptionID && m.Month == op.Month
		})
	case storage.SetExpenseStatus:
		if !op.Status.Valid() {
			return core.ErrInvalidStatus
		}
		i := slices.IndexFunc(ds.Expenses, func(e core.Expense) bool { return e.ID == op.ExpenseID })
		if i < 0 {
			return fmt.Errorf("expense %s: %w", op.ExpenseID, core.ErrNotFound)
		}
		ds.Expenses[i].Status = op.Status
	case storage.Delete:
		return remove(ds, op)
	default:
		return fmt.Errorf("unsupported op %T", op)
	}
	return nil
}

func remove(ds *core.Dataset, op storage.Delete) error {
	var n int
	switch op.Target {
	case core.CollectionCards:
		ds.Cards, n = without(ds.Cards, op.ID, func(c core.Card) string { return c.ID })
	case core.CollectionClients:
		ds.Clients, n = without(ds.Clients, op.ID, func(c core.Client) string { return c.ID })
	case core.CollectionLoans:
		ds.Loans, n = without(ds.Loans, op.ID, func(l core.Loan) string { return l.ID })
	case core.CollectionSubscriptions:
		ds.Subscriptions, n = without(ds.Subscriptions, op.ID, func(s core.Subscription) string { return s.ID })
	case core.CollectionExpenses:
		ds.Expenses, n = without(ds.Expenses, op.ID, func(e core.Expense) string { return e.ID })
	case core.CollectionIncomes:
		ds.Incomes, n = without(ds.Incomes, op.ID, func(in core.Income) string { return in.ID })
	default:
		return fmt.Errorf("collection %q is not deletable", op.Target)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op.Target, op.ID, core.ErrNotFound)
	}
	return nil
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	if i := slices.IndexFunc(items, func(v T) bool { return id(v) == key }); i >= 0 {
		items[i] = item
		return items
	}
	return append(items, item)
}

func without[T any](items []T, key string, id func(T) string) ([]T, int) {
	before := len(items)
	items = slices.DeleteFunc(items, func(v T) bool { return id(v) == key })
	return items, before - len(items)
}

func (s *Store) RecordActivity(_ context.Context, a storage.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.activity) + 1)
	s.activity = append(s.activity, a)
	return nil
}

// ListActivity returns the newest entries first.
func (s *Store) ListActivity(_ context.Context, userID string, limit int) ([]storage.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Activity
	for _, a := range s.activity {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b storage.Activity) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
