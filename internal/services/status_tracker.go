package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/core"
	"faturas/internal/metrics"
	"faturas/internal/storage"
)

// Store is the persistence collaborator the mutating services need.
type Store interface {
	storage.Reader
	storage.Writer
}

// EventPublisher publishes committed payment changes. Implemented by amqp.Client.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error
}

// ChangeNotifier is told which collections changed after a commit so live
// listeners can reload them. Implemented by snapshot.Hub.
type ChangeNotifier interface {
	Notify(ctx context.Context, userID string, collections ...core.Collection)
}

// BulkResult reports the outcome of MarkAllPaid.
type BulkResult struct {
	Updated        int
	NothingPending bool
}

// recomputeAccount derives the paid value, balance and aggregate status of an
// account from its installments.
func recomputeAccount(acc core.PayerAccount) core.PayerAccount {
	var paid core.Money
	for _, in := range acc.Installments {
		if in.Status == core.StatusPaga {
			paid = paid.Add(in.Value)
		}
	}
	acc.ValuePaid = paid
	acc.BalanceDue = acc.ShareAmount.Sub(paid)

	switch {
	case acc.BalanceDue.Cents <= 1:
		acc.StatusPayment = core.PaymentTotal
	case paid.Cents > 0:
		acc.StatusPayment = core.PaymentParcial
	default:
		acc.StatusPayment = core.PaymentPendente
	}
	return acc
}

// ApplyInstallmentStatus returns a copy of loan with one installment moved to
// status and the payer's balances recomputed. The input loan is never modified.
func ApplyInstallmentStatus(loan core.Loan, payer core.PayerKey, number int, status core.Status, today core.Date) (core.Loan, error) {
	if !status.Valid() {
		return core.Loan{}, fmt.Errorf("status %q: %w", status, core.ErrInvalidStatus)
	}
	if err := loan.CheckIntegrity(); err != nil {
		return core.Loan{}, err
	}

	next := loan.Clone()
	acc, ok := next.Account(payer)
	if !ok {
		return core.Loan{}, fmt.Errorf("loan %s payer %s: %w", loan.ID, payer, core.ErrInstallmentNotFound)
	}

	idx := -1
	for i, in := range acc.Installments {
		if in.Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.Loan{}, fmt.Errorf("loan %s payer %s installment %d: %w", loan.ID, payer, number, core.ErrInstallmentNotFound)
	}

	in := &acc.Installments[idx]
	in.Status = status
	if status == core.StatusPaga {
		paid := today
		in.PaidDate = &paid
	} else {
		in.PaidDate = nil
	}

	return next.WithAccount(payer, recomputeAccount(acc))
}

// StatusTracker applies payment status changes to stored records.
type StatusTracker struct {
	store    Store
	events   EventPublisher
	notifier ChangeNotifier
	metrics  *metrics.Collectors
	loc      *time.Location
	now      func() time.Time
}

// NewStatusTracker creates a tracker. events, notifier and m may be nil.
func NewStatusTracker(store Store, events EventPublisher, notifier ChangeNotifier, m *metrics.Collectors, loc *time.Location) *StatusTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &StatusTracker{
		store:    store,
		events:   events,
		notifier: notifier,
		metrics:  m,
		loc:      loc,
		now:      time.Now,
	}
}

func (t *StatusTracker) today() core.Date {
	return core.DateOf(t.now(), t.loc)
}

// SetItemStatus moves the record behind itemID to status.
func (t *StatusTracker) SetItemStatus(ctx context.Context, userID, itemID string, status core.Status) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, core.ErrInvalidStatus)
	}
	ref, err := core.ParseItemID(itemID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}

	op, ev, err := t.statusOp(ctx, userID, ref, status, t.today())
	if err != nil {
		return err
	}

	batch := storage.NewBatch(op)
	if err := t.store.Apply(ctx, userID, batch); err != nil {
		return fmt.Errorf("update %s: %w", itemID, err)
	}

	t.metrics.RecordStatusUpdate(string(ref.Type), string(status))
	slog.InfoContext(ctx, "Item status updated",
		"user_id", userID,
		"item_id", itemID,
		"status", status)

	t.committed(ctx, userID, batch, ev)
	return nil
}

// statusOp reads what it needs and returns the write for one item plus the
// event describing it.
func (t *StatusTracker) statusOp(ctx context.Context, userID string, ref core.ItemRef, status core.Status, today core.Date) (storage.Op, *amqp.PaymentEvent, error) {
	ev := amqp.NewPaymentEvent(amqp.KindStatusChanged, userID)
	ev.ItemID = ref.ID()
	ev.ItemType = string(ref.Type)
	ev.Status = string(status)

	switch ref.Type {
	case core.ItemInstallment:
		loan, err := t.store.GetLoan(ctx, userID, ref.LoanID)
		if err != nil {
			return nil, nil, fmt.Errorf("load loan %s: %w", ref.LoanID, err)
		}
		updated, err := ApplyInstallmentStatus(loan, ref.Payer, ref.Number, status, today)
		if err != nil {
			return nil, nil, err
		}
		ev.Description = loan.Description
		if acc, ok := updated.Account(ref.Payer); ok {
			ev.AmountCents = installmentValue(acc, ref.Number).Cents
		}
		return storage.PutLoan{Loan: updated}, ev, nil

	case core.ItemExpense:
		exp, err := t.store.GetExpense(ctx, userID, ref.ExpenseID)
		if err != nil {
			return nil, nil, fmt.Errorf("load expense %s: %w", ref.ExpenseID, err)
		}
		ev.Description = exp.Description
		ev.AmountCents = exp.Value.Cents
		ev.Month = exp.Date.YearMonth().String()
		return storage.SetExpenseStatus{ExpenseID: exp.ID, Status: status}, ev, nil

	case core.ItemSubscription:
		ev.Month = ref.Month.String()
		if status == core.StatusPaga {
			return storage.PutMarker{Marker: core.PaidSubscriptionMarker{
				SubscriptionID: ref.SubscriptionID,
				Month:          ref.Month,
				PaidDate:       today,
			}}, ev, nil
		}
		return storage.DeleteMarkers{SubscriptionID: ref.SubscriptionID, Month: ref.Month}, ev, nil

	default:
		return nil, nil, fmt.Errorf("item type %q: %w", ref.Type, core.ErrNotFound)
	}
}

// MarkAllPaid marks every item of items that is not yet paid, in one atomic
// batch. Installments of the same loan fold into a single loan write.
func (t *StatusTracker) MarkAllPaid(ctx context.Context, userID string, items []core.LineItem) (BulkResult, error) {
	today := t.today()
	batch := storage.NewBatch()
	loans := make(map[string]core.Loan)
	var loanOrder []string
	var total core.Money
	updated := 0

	for _, item := range items {
		if item.Status == core.StatusPaga {
			continue
		}
		ref := item.Ref
		switch ref.Type {
		case core.ItemInstallment:
			loan, ok := loans[ref.LoanID]
			if !ok {
				var err error
				loan, err = t.store.GetLoan(ctx, userID, ref.LoanID)
				if err != nil {
					return BulkResult{}, fmt.Errorf("load loan %s: %w", ref.LoanID, err)
				}
				loanOrder = append(loanOrder, ref.LoanID)
			}
			next, err := ApplyInstallmentStatus(loan, ref.Payer, ref.Number, core.StatusPaga, today)
			if err != nil {
				return BulkResult{}, err
			}
			loans[ref.LoanID] = next
		case core.ItemExpense:
			batch.Add(storage.SetExpenseStatus{ExpenseID: ref.ExpenseID, Status: core.StatusPaga})
		case core.ItemSubscription:
			batch.Add(storage.PutMarker{Marker: core.PaidSubscriptionMarker{
				SubscriptionID: ref.SubscriptionID,
				Month:          ref.Month,
				PaidDate:       today,
			}})
		default:
			return BulkResult{}, fmt.Errorf("item %s: unknown type %q", item.ID, ref.Type)
		}
		total = total.Add(item.Value)
		updated++
	}

	if updated == 0 {
		return BulkResult{NothingPending: true}, nil
	}
	for _, id := range loanOrder {
		batch.Add(storage.PutLoan{Loan: loans[id]})
	}

	if err := t.store.Apply(ctx, userID, batch); err != nil {
		return BulkResult{}, fmt.Errorf("mark all paid: %w", err)
	}

	t.metrics.RecordBulkUpdate(updated)
	slog.InfoContext(ctx, "Marked items as paid",
		"user_id", userID,
		"items", updated,
		"writes", batch.Len(),
		"amount_cents", total.Cents)

	ev := amqp.NewPaymentEvent(amqp.KindBulkPaid, userID)
	ev.Status = string(core.StatusPaga)
	ev.Count = updated
	ev.AmountCents = total.Cents
	t.committed(ctx, userID, batch, ev)

	return BulkResult{Updated: updated}, nil
}

// committed runs the post-commit side effects. Failures here never undo or
// fail the write.
func (t *StatusTracker) committed(ctx context.Context, userID string, batch *storage.Batch, ev *amqp.PaymentEvent) {
	if t.notifier != nil {
		t.notifier.Notify(ctx, userID, batch.Collections()...)
	}
	publishEvent(ctx, t.events, t.metrics, ev)
}

func publishEvent(ctx context.Context, events EventPublisher, m *metrics.Collectors, ev *amqp.PaymentEvent) {
	if events == nil || ev == nil {
		return
	}
	err := events.PublishPaymentEvent(ctx, ev)
	m.RecordEventPublish(err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment event",
			"kind", ev.Kind,
			"user_id", ev.UserID,
			"item_id", ev.ItemID,
			"error", err)
	}
}

func installmentValue(acc core.PayerAccount, number int) core.Money {
	for _, in := range acc.Installments {
		if in.Number == number {
			return in.Value
		}
	}
	return core.Money{}
}
