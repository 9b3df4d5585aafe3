package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"faturas/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadDataset reads every collection of a user.
func (r *SQLiteRepository) LoadDataset(ctx context.Context, userID string) (core.Dataset, error) {
	var ds core.Dataset
	for _, c := range core.AllCollections {
		part, err := r.LoadCollection(ctx, userID, c)
		if err != nil {
			return core.Dataset{}, err
		}
		ds.Merge(c, part)
	}
	return ds, nil
}

// LoadCollection reads one collection of a user into an otherwise empty dataset.
func (r *SQLiteRepository) LoadCollection(ctx context.Context, userID string, c core.Collection) (core.Dataset, error) {
	var (
		ds  core.Dataset
		err error
	)
	switch c {
	case core.CollectionCards:
		ds.Cards, err = r.queries.ListCards(ctx, userID)
	case core.CollectionClients:
		ds.Clients, err = r.queries.ListClients(ctx, userID)
	case core.CollectionLoans:
		ds.Loans, err = r.queries.ListLoans(ctx, userID)
	case core.CollectionSubscriptions:
		ds.Subscriptions, err = r.queries.ListSubscriptions(ctx, userID)
	case core.CollectionExpenses:
		ds.Expenses, err = r.queries.ListExpenses(ctx, userID)
	case core.CollectionIncomes:
		ds.Incomes, err = r.queries.ListIncomes(ctx, userID)
	case core.CollectionPaidMarkers:
		ds.Markers, err = r.queries.ListMarkers(ctx, userID)
	default:
		return core.Dataset{}, fmt.Errorf("unknown collection %q", c)
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("load %s: %w", c, err)
	}
	return ds, nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, userID, id string) (core.Loan, error) {
	return r.queries.GetLoan(ctx, userID, id)
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	return r.queries.GetExpense(ctx, userID, id)
}

// GetProfile returns the user's plan flags. Users without a stored profile
// are on the free plan.
func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	p, err := r.queries.GetProfile(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{UserID: userID, Plan: core.PlanFree}, nil
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SaveProfile stores plan flags as written by the payment collaborator.
func (r *SQLiteRepository) SaveProfile(ctx context.Context, p core.Profile) error {
	if p.Plan != core.PlanFree && p.Plan != core.PlanPro {
		return fmt.Errorf("unknown plan %q", p.Plan)
	}
	return r.queries.UpsertProfile(ctx, p)
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	return r.queries.ListUserIDs(ctx)
}

// Apply commits every op of the batch in one transaction.
func (r *SQLiteRepository) Apply(ctx context.Context, userID string, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for i, op := range b.Ops() {
		if err := applyOp(ctx, q, userID, op); err != nil {
			return fmt.Errorf("batch op %d (%T): %w", i, op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Batch committed to SQLite",
		"user_id", userID,
		"ops", b.Len(),
		"collections", b.Collections())
	return nil
}

func applyOp(ctx context.Context, q *Queries, userID string, op Op) error {
	switch op := op.(type) {
	case PutCard:
		return q.UpsertCard(ctx, userID, op.Card)
	case PutClient:
		return q.UpsertClient(ctx, userID, op.Client)
	case PutLoan:
		return q.UpsertLoan(ctx, userID, op.Loan)
	case PutSubscription:
		return q.UpsertSubscription(ctx, userID, op.Subscription)
	case PutExpense:
		return q.UpsertExpense(ctx, userID, op.Expense)
	case PutIncome:
		return q.UpsertIncome(ctx, userID, op.Income)
	case PutMarker:
		return q.InsertMarker(ctx, userID, op.Marker)
	case DeleteMarkers:
		return q.DeleteMarkers(ctx, userID, op.SubscriptionID, op.Month)
	case SetExpenseStatus:
		if !op.Status.Valid() {
			return core.ErrInvalidStatus
		}
		n, err := q.SetExpenseStatus(ctx, userID, op.ExpenseID, op.Status)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("expense %s: %w", op.ExpenseID, core.ErrNotFound)
		}
		return nil
	case Delete:
		n, err := q.DeleteRecord(ctx, op.Target, userID, op.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", op.Target, op.ID, core.ErrNotFound)
		}
		return nil
	default:
		return fmt.Errorf("unsupported op %T", op)
	}
}

func (r *SQLiteRepository) RecordActivity(ctx context.Context, a Activity) error {
	id, err := r.queries.InsertActivity(ctx, a)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	slog.DebugContext(ctx, "Payment activity recorded", "id", id, "user_id", a.UserID, "kind", a.Kind)
	return nil
}

func (r *SQLiteRepository) ListActivity(ctx context.Context, userID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := r.queries.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return items, nil
}

// LoadCollections reads several collections concurrently and merges them.
func LoadCollections(ctx context.Context, r Reader, userID string, collections ...core.Collection) (core.Dataset, error) {
	parts := make([]core.Dataset, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range collections {
		g.Go(func() error {
			part, err := r.LoadCollection(gctx, userID, c)
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Dataset{}, err
	}

	var ds core.Dataset
	for i, c := range collections {
		ds.Merge(c, parts[i])
	}
	return ds, nil
}
