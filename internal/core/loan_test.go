package core

import (
	"errors"
	"testing"
)

func soloLoan() Loan {
	return Loan{
		ID:                "l1",
		Description:       "Geladeira",
		TotalValue:        Cents(10000),
		InstallmentsCount: 2,
		Plan: SoloPlan{Account: PayerAccount{
			ClientID:    "c1",
			ShareAmount: Cents(10000),
			Installments: []Installment{
				{Number: 1, Value: Cents(5000), DueDate: NewDate(2024, 5, 10), Status: StatusPendente},
				{Number: 2, Value: Cents(5000), DueDate: NewDate(2024, 6, 10), Status: StatusPendente},
			},
			BalanceDue:    Cents(10000),
			StatusPayment: PaymentPendente,
		}},
	}
}

func TestLoanCheckIntegrity(t *testing.T) {
	tests := []struct {
		name  string
		loan  func() Loan
		valid bool
	}{
		{"valid solo", soloLoan, true},
		{"defect recorded", func() Loan { l := soloLoan(); l.Defect = "bad json"; return l }, false},
		{"missing plan", func() Loan { l := soloLoan(); l.Plan = nil; return l }, false},
		{"missing installments", func() Loan {
			l := soloLoan()
			l.Plan = SoloPlan{Account: PayerAccount{ClientID: "c1"}}
			return l
		}, false},
		{"shared with zero second share", func() Loan {
			l := soloLoan()
			l.Plan = SharedPlan{
				Person1: PayerAccount{ClientID: "c1", ShareAmount: Cents(10000), Installments: []Installment{}},
				Person2: PayerAccount{},
			}
			return l
		}, true},
		{"shared missing second list", func() Loan {
			l := soloLoan()
			l.Plan = SharedPlan{
				Person1: PayerAccount{ClientID: "c1", ShareAmount: Cents(5000), Installments: []Installment{}},
				Person2: PayerAccount{ClientID: "c2", ShareAmount: Cents(5000)},
			}
			return l
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loan().CheckIntegrity()
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrMalformedLoan) {
				t.Fatalf("got %v, want ErrMalformedLoan", err)
			}
		})
	}
}

func TestLoanCloneIsIndependent(t *testing.T) {
	orig := soloLoan()
	cp := orig.Clone()
	acc, _ := cp.Account(PayerClient)
	acc.Installments[0].Status = StatusPaga

	origAcc, _ := orig.Account(PayerClient)
	if origAcc.Installments[0].Status != StatusPendente {
		t.Fatal("clone shares installment storage with the original")
	}
}

func TestLoanWithAccountRejectsWrongPayer(t *testing.T) {
	_, err := soloLoan().WithAccount(PayerPerson2, PayerAccount{})
	if !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("got %v, want ErrInstallmentNotFound", err)
	}
}

func TestParseItemID(t *testing.T) {
	refs := []ItemRef{
		{Type: ItemInstallment, LoanID: "abc", Payer: PayerPerson2, Number: 3},
		{Type: ItemExpense, ExpenseID: "e-1"},
		{Type: ItemSubscription, SubscriptionID: "s1", Month: YearMonth{2024, 6}, ChargeDate: NewDate(2024, 5, 20)},
	}
	for _, ref := range refs {
		got, err := ParseItemID(ref.ID())
		if err != nil {
			t.Fatalf("ParseItemID(%q): %v", ref.ID(), err)
		}
		if got.ID() != ref.ID() {
			t.Errorf("ParseItemID(%q) = %q", ref.ID(), got.ID())
		}
	}
	for _, bad := range []string{"", "parcela:", "parcela:l1:nobody:1", "parcela:l1:client:0", "boleto:1"} {
		if _, err := ParseItemID(bad); err == nil {
			t.Errorf("ParseItemID(%q) expected error", bad)
		}
	}
}
