package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/core"
)

func month(y int, m time.Month) core.YearMonth {
	return core.YearMonth{Year: y, Month: m}
}

func soloLoan(id, clientID, cardID string, total int64, count int, firstDue core.Date) core.Loan {
	return core.Loan{
		ID:                id,
		Description:       "Compra " + id,
		TotalValue:        core.Cents(total),
		InstallmentsCount: count,
		PurchaseDate:      firstDue.AddMonths(-1),
		CardID:            cardID,
		Plan:              core.SoloPlan{Account: newAccount(clientID, core.Cents(total), count, firstDue)},
	}
}

func sharedLoan(id, cardID string, p1, p2 int64, count int, firstDue core.Date) core.Loan {
	return core.Loan{
		ID:                id,
		Description:       "Compra " + id,
		TotalValue:        core.Cents(p1 + p2),
		InstallmentsCount: count,
		PurchaseDate:      firstDue.AddMonths(-1),
		CardID:            cardID,
		Plan: core.SharedPlan{
			Person1: newAccount("ana", core.Cents(p1), count, firstDue),
			Person2: newAccount("bia", core.Cents(p2), count, firstDue),
		},
	}
}

// testDataset:
//   - c1 closes on the 3rd, due the 10th; c2 closes on the 25th, due the 5th
//   - l1: ana, 3 x 100.00 due 2024-01-05..03-05 on c1
//   - l2: shared ana 60.00 / bia 40.00, 2 installments due 2024-02-05 and 03-05 on c2
//   - bad: malformed loan
//   - s1 on c1 (ana), s2 inactive, s3 without card (bia)
//   - e1 no card 2024-04-20, e2 on c1 2024-03-03, e3 on a deleted card 2024-04-10
func testDataset() core.Dataset {
	return core.Dataset{
		Cards: []core.Card{
			{ID: "c1", Name: "Nubank", Limit: core.Cents(100000), ClosingDay: 3, DueDay: 10},
			{ID: "c2", Name: "Inter", Limit: core.Cents(5000), ClosingDay: 25, DueDay: 5},
		},
		Clients: []core.Client{{ID: "ana", Name: "Ana"}, {ID: "bia", Name: "Bia"}},
		Loans: []core.Loan{
			soloLoan("l1", "ana", "c1", 30000, 3, core.NewDate(2024, 1, 5)),
			sharedLoan("l2", "c2", 6000, 4000, 2, core.NewDate(2024, 2, 5)),
			{ID: "bad", Description: "Quebrado", TotalValue: core.Cents(1000), Defect: "unreadable plan"},
		},
		Subscriptions: []core.Subscription{
			{ID: "s1", Description: "Streaming", Amount: core.Cents(2990), DueDay: 12, CardID: "c1", ClientID: "ana", Active: true},
			{ID: "s2", Description: "Academia", Amount: core.Cents(9990), DueDay: 5, CardID: "c1", ClientID: "ana", Active: false},
			{ID: "s3", Description: "Nuvem", Amount: core.Cents(1000), DueDay: 20, ClientID: "bia", Active: true},
		},
		Expenses: []core.Expense{
			{ID: "e1", Description: "Farmácia", Value: core.Cents(4500), Date: core.NewDate(2024, 4, 20), Status: core.StatusPendente},
			{ID: "e2", Description: "Mercado", Value: core.Cents(12000), Date: core.NewDate(2024, 3, 3), CardID: "c1", Status: core.StatusPendente},
			{ID: "e3", Description: "Posto", Value: core.Cents(20000), Date: core.NewDate(2024, 4, 10), CardID: "ghost", Status: core.StatusPaga},
		},
		Incomes: []core.Income{
			{ID: "i1", Description: "Salário", Value: core.Cents(500000), Date: core.NewDate(2024, 4, 5)},
			{ID: "i2", Description: "Freela", Value: core.Cents(80000), Date: core.NewDate(2024, 5, 5)},
		},
	}
}

func itemIDs(items []core.LineItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.PaymentEvent
	err    error
}

func (f *fakePublisher) PublishPaymentEvent(_ context.Context, ev *amqp.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeNotifier struct {
	calls [][]core.Collection
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, collections ...core.Collection) {
	f.calls = append(f.calls, collections)
}

func fixedClock(t *testing.T, year int, m time.Month, day int) func() time.Time {
	t.Helper()
	at := time.Date(year, m, day, 15, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}
