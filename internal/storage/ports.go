package storage

import (
	"context"
	"time"

	"faturas/internal/core"
)

// Ports implemented by the SQLite repository and the in-memory store.
type (
	// Reader loads per-user collections. Missing documents are reported with
	// an error wrapping core.ErrNotFound.
	Reader interface {
		LoadDataset(ctx context.Context, userID string) (core.Dataset, error)
		LoadCollection(ctx context.Context, userID string, c core.Collection) (core.Dataset, error)
		GetLoan(ctx context.Context, userID, id string) (core.Loan, error)
		GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
		GetProfile(ctx context.Context, userID string) (core.Profile, error)
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// Writer commits a batch atomically: either every op applies or none does.
	Writer interface {
		Apply(ctx context.Context, userID string, b *Batch) error
	}

	// ActivityLog stores payment events consumed from the message queue.
	ActivityLog interface {
		RecordActivity(ctx context.Context, a Activity) error
		ListActivity(ctx context.Context, userID string, limit int) ([]Activity, error)
	}

	Repository interface {
		Reader
		Writer
		ActivityLog
		Close() error
	}
)

// Activity is one entry of a user's payment history.
type Activity struct {
	ID         int64
	UserID     string
	Kind       string
	ItemID     string
	Status     string
	Month      string
	Detail     string
	OccurredAt time.Time
}
