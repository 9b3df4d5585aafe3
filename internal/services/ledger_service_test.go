package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"faturas/internal/core"
	"faturas/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*LedgerService, *memory.Store, *fakeNotifier) {
	t.Helper()
	store := memory.New()
	store.Seed("u1", testDataset())
	notifier := &fakeNotifier{}
	svc := NewLedgerService(store, notifier)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return svc, store, notifier
}

func TestLedgerCreateCard(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestLedger(t)

	_, err := svc.CreateCard(ctx, "u1", core.Card{Name: "Ruim", ClosingDay: 0, DueDay: 10})
	if !core.IsValidation(err) {
		t.Fatalf("invalid closing day: got %v", err)
	}
	if store.Applies() != 0 || len(notifier.calls) != 0 {
		t.Fatal("rejected input reached the store")
	}

	card, err := svc.CreateCard(ctx, "u1", core.Card{Name: "  C6  ", Limit: core.Cents(300000), ClosingDay: 28, DueDay: 7})
	if err != nil {
		t.Fatal(err)
	}
	if card.ID != "id1" || card.Name != "C6" {
		t.Errorf("card = %+v", card)
	}
	ds, _ := store.LoadDataset(ctx, "u1")
	if _, ok := ds.CardByID("id1"); !ok {
		t.Error("card not stored")
	}
	if len(notifier.calls) != 1 || notifier.calls[0][0] != core.CollectionCards {
		t.Errorf("notifications = %v", notifier.calls)
	}
}

func TestLedgerCreateLoan(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestLedger(t)

	loan, err := svc.CreateLoan(ctx, "u1", LoanInput{
		Description:       "Geladeira",
		TotalValue:        core.Cents(30000),
		InstallmentsCount: 3,
		PurchaseDate:      core.NewDate(2024, 5, 10),
		CardID:            "c1",
		ClientID:          "ana",
	})
	if err != nil {
		t.Fatal(err)
	}
	acc, _ := loan.Account(core.PayerClient)
	if len(acc.Installments) != 3 || !acc.Installments[0].DueDate.Equal(core.NewDate(2024, 6, 10)) {
		t.Fatalf("installments = %+v", acc.Installments)
	}
	stored, err := store.GetLoan(ctx, "u1", loan.ID)
	if err != nil || stored.CheckIntegrity() != nil {
		t.Fatalf("stored loan = %+v, %v", stored, err)
	}

	tests := []struct {
		name string
		in   LoanInput
		want error
	}{
		{
			name: "unknown card",
			in:   LoanInput{Description: "X", TotalValue: core.Cents(100), InstallmentsCount: 1, PurchaseDate: core.NewDate(2024, 5, 1), CardID: "nope", ClientID: "ana"},
			want: core.ErrNotFound,
		},
		{
			name: "shares do not add up",
			in: LoanInput{
				Description: "Viagem", TotalValue: core.Cents(10000), InstallmentsCount: 2, PurchaseDate: core.NewDate(2024, 5, 1),
				Shared:  true,
				Person1: PayerInput{ClientID: "ana", ShareAmount: core.Cents(6000)},
				Person2: PayerInput{ClientID: "bia", ShareAmount: core.Cents(3000)},
			},
			want: core.ErrShareMismatch,
		},
		{
			name: "zero installments",
			in:   LoanInput{Description: "X", TotalValue: core.Cents(100), InstallmentsCount: 0, PurchaseDate: core.NewDate(2024, 5, 1), ClientID: "ana"},
			want: core.ErrInvalidInstallmentCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.Applies()
			if _, err := svc.CreateLoan(ctx, "u1", tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if store.Applies() != before {
				t.Error("failed create wrote to the store")
			}
		})
	}
}

func TestLedgerUpdateLoan(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestLedger(t)

	desc := "Compra renomeada"
	card := "c2"
	loan, err := svc.UpdateLoan(ctx, "u1", "l1", LoanPatch{Description: &desc, CardID: &card})
	if err != nil {
		t.Fatal(err)
	}
	if loan.Description != desc || loan.CardID != "c2" {
		t.Errorf("loan = %+v", loan)
	}
	stored, _ := store.GetLoan(ctx, "u1", "l1")
	if stored.Description != desc {
		t.Error("update not stored")
	}

	if _, err := svc.UpdateLoan(ctx, "u1", "bad", LoanPatch{Description: &desc}); !errors.Is(err, core.ErrMalformedLoan) {
		t.Errorf("malformed loan edit: got %v", err)
	}
	ghost := "ghost"
	if _, err := svc.UpdateLoan(ctx, "u1", "l1", LoanPatch{CardID: &ghost}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown card: got %v", err)
	}
	blank := "   "
	if _, err := svc.UpdateLoan(ctx, "u1", "l1", LoanPatch{Description: &blank}); !errors.Is(err, core.ErrEmptyDescription) {
		t.Errorf("blank description: got %v", err)
	}
}

func TestLedgerCreateRecords(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestLedger(t)

	exp, err := svc.CreateExpense(ctx, "u1", core.Expense{Description: "Padaria", Value: core.Cents(1250), Date: core.NewDate(2024, 6, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if exp.Status != core.StatusPendente {
		t.Errorf("default status = %s", exp.Status)
	}
	if _, err := svc.CreateExpense(ctx, "u1", core.Expense{Description: "Padaria", Value: core.Cents(1250), Date: core.NewDate(2024, 6, 2), Status: core.StatusAtrasado}); !errors.Is(err, core.ErrInvalidStatus) {
		t.Errorf("stored overdue status: got %v", err)
	}

	if _, err := svc.CreateSubscription(ctx, "u1", core.Subscription{Description: "Música", Amount: core.Cents(2190), DueDay: 15, CardID: "c2", Active: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSubscription(ctx, "u1", core.Subscription{Description: "Música", Amount: core.Cents(2190), DueDay: 32}); !errors.Is(err, core.ErrInvalidDay) {
		t.Errorf("due day 32: got %v", err)
	}

	if _, err := svc.CreateIncome(ctx, "u1", core.Income{Description: "Bônus", Value: core.Cents(100000), Date: core.NewDate(2024, 6, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateIncome(ctx, "u1", core.Income{Description: "Bônus", Value: core.Cents(0), Date: core.NewDate(2024, 6, 1)}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero income: got %v", err)
	}

	if _, err := svc.CreateClient(ctx, "u1", core.Client{Name: " "}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("blank client: got %v", err)
	}

	ds, _ := store.LoadDataset(ctx, "u1")
	if len(ds.Expenses) != 4 || len(ds.Subscriptions) != 4 || len(ds.Incomes) != 3 {
		t.Errorf("counts = %d expenses, %d subscriptions, %d incomes", len(ds.Expenses), len(ds.Subscriptions), len(ds.Incomes))
	}
}

func TestLedgerDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestLedger(t)

	if err := svc.Delete(ctx, "u1", core.CollectionLoans, "bad"); err != nil {
		t.Fatalf("malformed loans must be deletable: %v", err)
	}
	if err := svc.Delete(ctx, "u1", core.CollectionExpenses, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing record: got %v", err)
	}
	if err := svc.Delete(ctx, "u1", core.CollectionPaidMarkers, "s1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("markers: got %v", err)
	}

	ds, _ := store.LoadDataset(ctx, "u1")
	if _, ok := ds.LoanByID("bad"); ok {
		t.Error("loan still stored")
	}
	if len(notifier.calls) != 1 || !slices.Equal(notifier.calls[0], []core.Collection{core.CollectionLoans}) {
		t.Errorf("notifications = %v", notifier.calls)
	}
}
