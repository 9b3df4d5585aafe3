package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/core"
	"faturas/internal/storage/memory"
)

func TestApplyInstallmentStatus(t *testing.T) {
	loan := soloLoan("l1", "ana", "c1", 30000, 3, core.NewDate(2024, 1, 5))
	today := core.NewDate(2024, 1, 6)

	paid, err := ApplyInstallmentStatus(loan, core.PayerClient, 1, core.StatusPaga, today)
	if err != nil {
		t.Fatal(err)
	}
	acc, _ := paid.Account(core.PayerClient)
	if acc.ValuePaid != core.Cents(10000) || acc.BalanceDue != core.Cents(20000) {
		t.Errorf("paid/balance = %v/%v", acc.ValuePaid, acc.BalanceDue)
	}
	if acc.StatusPayment != core.PaymentParcial {
		t.Errorf("status payment = %s, want Pago Parcial", acc.StatusPayment)
	}
	if pd := acc.Installments[0].PaidDate; pd == nil || !pd.Equal(today) {
		t.Errorf("paid date = %v, want %s", pd, today)
	}

	orig, _ := loan.Account(core.PayerClient)
	if orig.Installments[0].Status != core.StatusPendente || orig.ValuePaid.Cents != 0 {
		t.Fatal("input loan was modified")
	}

	all := paid
	for _, n := range []int{2, 3} {
		if all, err = ApplyInstallmentStatus(all, core.PayerClient, n, core.StatusPaga, today); err != nil {
			t.Fatal(err)
		}
	}
	acc, _ = all.Account(core.PayerClient)
	if acc.StatusPayment != core.PaymentTotal || !acc.BalanceDue.IsZero() {
		t.Errorf("fully paid account = %s / %v", acc.StatusPayment, acc.BalanceDue)
	}

	back, err := ApplyInstallmentStatus(all, core.PayerClient, 3, core.StatusPendente, today)
	if err != nil {
		t.Fatal(err)
	}
	acc, _ = back.Account(core.PayerClient)
	if acc.Installments[2].PaidDate != nil {
		t.Error("paid date kept after unmarking")
	}
	if acc.StatusPayment != core.PaymentParcial || acc.BalanceDue != core.Cents(10000) {
		t.Errorf("after unmark = %s / %v", acc.StatusPayment, acc.BalanceDue)
	}
}

func TestApplyInstallmentStatusBalanceDecreases(t *testing.T) {
	loan := sharedLoan("l2", "c2", 10001, 5000, 3, core.NewDate(2024, 2, 5))
	today := core.NewDate(2024, 2, 6)

	prev, _ := loan.Account(core.PayerPerson1)
	cur := loan
	for n := 1; n <= 3; n++ {
		next, err := ApplyInstallmentStatus(cur, core.PayerPerson1, n, core.StatusPaga, today)
		if err != nil {
			t.Fatal(err)
		}
		acc, _ := next.Account(core.PayerPerson1)
		value := acc.Installments[n-1].Value
		if got := prev.BalanceDue.Sub(acc.BalanceDue); got != value {
			t.Errorf("installment %d: balance dropped by %v, want %v", n, got, value)
		}
		wantTotal := acc.BalanceDue.Cents <= 1
		if (acc.StatusPayment == core.PaymentTotal) != wantTotal {
			t.Errorf("installment %d: status %s with balance %v", n, acc.StatusPayment, acc.BalanceDue)
		}
		prev, cur = acc, next
	}

	p2, _ := cur.Account(core.PayerPerson2)
	if p2.ValuePaid.Cents != 0 {
		t.Error("person2 changed while paying person1")
	}
}

func TestRecomputeAccountTolerance(t *testing.T) {
	acc := recomputeAccount(core.PayerAccount{
		ShareAmount: core.Cents(10001),
		Installments: []core.Installment{
			{Number: 1, Value: core.Cents(10000), Status: core.StatusPaga},
		},
	})
	if acc.StatusPayment != core.PaymentTotal {
		t.Errorf("one cent left: status = %s, want Pago Total", acc.StatusPayment)
	}

	acc = recomputeAccount(core.PayerAccount{ShareAmount: core.Cents(500), Installments: []core.Installment{{Number: 1, Value: core.Cents(500), Status: core.StatusPendente}}})
	if acc.StatusPayment != core.PaymentPendente {
		t.Errorf("nothing paid: status = %s", acc.StatusPayment)
	}
}

func TestApplyInstallmentStatusErrors(t *testing.T) {
	loan := soloLoan("l1", "ana", "c1", 30000, 3, core.NewDate(2024, 1, 5))
	today := core.NewDate(2024, 1, 6)

	tests := []struct {
		name   string
		loan   core.Loan
		payer  core.PayerKey
		number int
		status core.Status
		want   error
	}{
		{"overdue is derived, not stored", loan, core.PayerClient, 1, core.StatusAtrasado, core.ErrInvalidStatus},
		{"shared payer on solo loan", loan, core.PayerPerson1, 1, core.StatusPaga, core.ErrInstallmentNotFound},
		{"installment out of range", loan, core.PayerClient, 4, core.StatusPaga, core.ErrInstallmentNotFound},
		{"malformed loan", core.Loan{ID: "bad", TotalValue: core.Cents(100), Defect: "x"}, core.PayerClient, 1, core.StatusPaga, core.ErrMalformedLoan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyInstallmentStatus(tt.loan, tt.payer, tt.number, tt.status, today)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func newTestTracker(t *testing.T, ds core.Dataset, day int) (*StatusTracker, *memory.Store, *fakePublisher, *fakeNotifier) {
	t.Helper()
	store := memory.New()
	store.Seed("u1", ds)
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	tracker := NewStatusTracker(store, pub, notifier, nil, time.UTC)
	tracker.now = fixedClock(t, 2024, time.June, day)
	return tracker, store, pub, notifier
}

func TestSetItemStatusSubscription(t *testing.T) {
	ctx := context.Background()
	tracker, store, pub, notifier := newTestTracker(t, testDataset(), 10)
	june := month(2024, time.June)
	q := InvoiceQuery{Month: june, CardID: "c1"}

	ds, _ := store.LoadDataset(ctx, "u1")
	items := BuildInvoiceItems(q, ds, core.NewDate(2024, 6, 10)).Items
	if len(items) != 1 || items[0].Status != core.StatusPendente {
		t.Fatalf("items = %+v", items)
	}
	id := items[0].ID

	for range 2 {
		if err := tracker.SetItemStatus(ctx, "u1", id, core.StatusPaga); err != nil {
			t.Fatal(err)
		}
	}
	ds, _ = store.LoadDataset(ctx, "u1")
	if len(ds.Markers) != 1 || !ds.HasMarker("s1", june) {
		t.Fatalf("markers = %+v, want exactly one for s1/2024-06", ds.Markers)
	}
	if got := BuildInvoiceItems(q, ds, core.NewDate(2024, 6, 10)).Items[0].Status; got != core.StatusPaga {
		t.Errorf("status after marking = %s", got)
	}

	if err := tracker.SetItemStatus(ctx, "u1", id, core.StatusPendente); err != nil {
		t.Fatal(err)
	}
	ds, _ = store.LoadDataset(ctx, "u1")
	if len(ds.Markers) != 0 {
		t.Fatalf("markers after unmark = %+v", ds.Markers)
	}

	if pub.count() != 3 {
		t.Errorf("events = %d, want 3", pub.count())
	}
	if ev := pub.events[0]; ev.Kind != amqp.KindStatusChanged || ev.Month != "2024-06" {
		t.Errorf("event = %+v", ev)
	}
	if len(notifier.calls) != 3 || !slices.Equal(notifier.calls[0], []core.Collection{core.CollectionPaidMarkers}) {
		t.Errorf("notifications = %v", notifier.calls)
	}
}

func TestSetItemStatusInstallmentAndExpense(t *testing.T) {
	ctx := context.Background()
	tracker, store, _, _ := newTestTracker(t, testDataset(), 10)

	if err := tracker.SetItemStatus(ctx, "u1", "parcela:l2:person2:1", core.StatusPaga); err != nil {
		t.Fatal(err)
	}
	loan, _ := store.GetLoan(ctx, "u1", "l2")
	p2, _ := loan.Account(core.PayerPerson2)
	if p2.Installments[0].Status != core.StatusPaga || p2.ValuePaid != core.Cents(2000) {
		t.Errorf("person2 account = %+v", p2)
	}
	if pd := p2.Installments[0].PaidDate; pd == nil || !pd.Equal(core.NewDate(2024, 6, 10)) {
		t.Errorf("paid date = %v", pd)
	}

	if err := tracker.SetItemStatus(ctx, "u1", "despesa:e1", core.StatusPaga); err != nil {
		t.Fatal(err)
	}
	exp, _ := store.GetExpense(ctx, "u1", "e1")
	if exp.Status != core.StatusPaga {
		t.Errorf("expense status = %s", exp.Status)
	}

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"unknown loan", "parcela:nope:client:1", core.ErrNotFound},
		{"malformed loan", "parcela:bad:client:1", core.ErrMalformedLoan},
		{"unknown expense", "despesa:nope", core.ErrNotFound},
		{"garbage id", "boleto:1", core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tracker.SetItemStatus(ctx, "u1", tt.id, core.StatusPaga); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetItemStatusPublishFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	tracker, store, pub, _ := newTestTracker(t, testDataset(), 10)
	pub.err = errors.New("broker unavailable")

	if err := tracker.SetItemStatus(ctx, "u1", "despesa:e2", core.StatusPaga); err != nil {
		t.Fatalf("publish failure leaked into the mutation: %v", err)
	}
	if exp, _ := store.GetExpense(ctx, "u1", "e2"); exp.Status != core.StatusPaga {
		t.Error("expense not updated")
	}
}

func TestMarkAllPaid(t *testing.T) {
	ctx := context.Background()
	tracker, store, pub, notifier := newTestTracker(t, testDataset(), 10)
	q := InvoiceQuery{Month: month(2024, time.March)}
	today := core.NewDate(2024, 6, 10)

	ds, _ := store.LoadDataset(ctx, "u1")
	items := BuildInvoiceItems(q, ds, today).Items

	res, err := tracker.MarkAllPaid(ctx, "u1", items)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != len(items) || res.NothingPending {
		t.Fatalf("result = %+v, want %d updated", res, len(items))
	}
	if store.Applies() != 1 {
		t.Errorf("batches = %d, want a single atomic batch", store.Applies())
	}

	ds, _ = store.LoadDataset(ctx, "u1")
	after := BuildInvoiceItems(q, ds, today).Items
	for _, it := range after {
		if it.Status != core.StatusPaga {
			t.Errorf("%s still %s", it.ID, it.Status)
		}
	}
	l2, _ := ds.LoanByID("l2")
	for _, payer := range l2.Payers() {
		if payer.Account.StatusPayment != core.PaymentParcial {
			t.Errorf("l2 %s = %s, only the second installment was paid", payer.Key, payer.Account.StatusPayment)
		}
	}

	res, err = tracker.MarkAllPaid(ctx, "u1", after)
	if err != nil || !res.NothingPending || res.Updated != 0 {
		t.Fatalf("second run = %+v, %v", res, err)
	}
	if store.Applies() != 1 {
		t.Error("nothing-pending run wrote to the store")
	}

	if pub.count() != 1 || pub.events[0].Kind != amqp.KindBulkPaid || pub.events[0].Count != len(items) {
		t.Errorf("events = %+v", pub.events)
	}
	if len(notifier.calls) != 1 {
		t.Errorf("notifications = %v", notifier.calls)
	}
}

func TestMarkAllPaidIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	tracker, store, _, _ := newTestTracker(t, testDataset(), 10)

	ds, _ := store.LoadDataset(ctx, "u1")
	items := BuildInvoiceItems(InvoiceQuery{Month: month(2024, time.March)}, ds, core.NewDate(2024, 3, 1)).Items
	ghost := core.ItemRef{Type: core.ItemExpense, ExpenseID: "deleted-meanwhile"}
	items = append(items, core.LineItem{ID: ghost.ID(), Type: core.ItemExpense, Status: core.StatusPendente, Ref: ghost})

	if _, err := tracker.MarkAllPaid(ctx, "u1", items); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	l1, _ := store.GetLoan(ctx, "u1", "l1")
	acc, _ := l1.Account(core.PayerClient)
	if acc.ValuePaid.Cents != 0 {
		t.Fatal("partial batch was applied")
	}
}
