package storage

import "faturas/internal/core"

// Op is one document write inside a Batch.
type Op interface {
	Collection() core.Collection
}

type (
	PutCard struct {
		Card core.Card
	}

	PutClient struct {
		Client core.Client
	}

	// PutLoan replaces the whole loan document, installment lists included.
	PutLoan struct {
		Loan core.Loan
	}

	PutSubscription struct {
		Subscription core.Subscription
	}

	PutExpense struct {
		Expense core.Expense
	}

	PutIncome struct {
		Income core.Income
	}

	// PutMarker records a paid subscription charge. Writing a marker that
	// already exists for the same subscription and month is a no-op.
	PutMarker struct {
		Marker core.PaidSubscriptionMarker
	}

	// DeleteMarkers removes every marker of a subscription for one month.
	DeleteMarkers struct {
		SubscriptionID string
		Month          core.YearMonth
	}

	// SetExpenseStatus toggles an expense's status in place.
	SetExpenseStatus struct {
		ExpenseID string
		Status    core.Status
	}

	// Delete removes a document by id from any collection but the markers.
	Delete struct {
		Target core.Collection
		ID     string
	}
)

func (PutCard) Collection() core.Collection          { return core.CollectionCards }
func (PutClient) Collection() core.Collection        { return core.CollectionClients }
func (PutLoan) Collection() core.Collection          { return core.CollectionLoans }
func (PutSubscription) Collection() core.Collection  { return core.CollectionSubscriptions }
func (PutExpense) Collection() core.Collection       { return core.CollectionExpenses }
func (PutIncome) Collection() core.Collection        { return core.CollectionIncomes }
func (PutMarker) Collection() core.Collection        { return core.CollectionPaidMarkers }
func (DeleteMarkers) Collection() core.Collection    { return core.CollectionPaidMarkers }
func (SetExpenseStatus) Collection() core.Collection { return core.CollectionExpenses }
func (d Delete) Collection() core.Collection         { return d.Target }

// Batch groups writes that are committed all together or not at all.
type Batch struct {
	ops []Op
}

// NewBatch creates a batch holding ops.
func NewBatch(ops ...Op) *Batch {
	return &Batch{ops: ops}
}

// Add appends ops to the batch.
func (b *Batch) Add(ops ...Op) *Batch {
	b.ops = append(b.ops, ops...)
	return b
}

func (b *Batch) Ops() []Op {
	return b.ops
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Collections lists the collections touched by the batch, in first-write order.
func (b *Batch) Collections() []core.Collection {
	seen := make(map[core.Collection]struct{}, len(b.ops))
	var out []core.Collection
	for _, op := range b.ops {
		c := op.Collection()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
