package core

import (
	"fmt"
	"slices"
)

// Plan is the installment layout of a loan: either a SoloPlan or a SharedPlan.
// Consumers switch on the concrete type; any other value is a malformed record.
type Plan interface {
	isPlan()
}

// SoloPlan is a purchase owned by a single client. The account's share is the
// loan total.
type SoloPlan struct {
	Account PayerAccount
}

// SharedPlan splits a purchase between two payers. Person2 may hold a zero
// share, in which case its installment list is empty.
type SharedPlan struct {
	Person1 PayerAccount
	Person2 PayerAccount
}

func (SoloPlan) isPlan()   {}
func (SharedPlan) isPlan() {}

// PayerAccount tracks what one payer owes on a loan.
type PayerAccount struct {
	ClientID      string
	ShareAmount   Money
	Installments  []Installment
	ValuePaid     Money
	BalanceDue    Money
	StatusPayment PaymentStatus
}

type Loan struct {
	ID                string
	Description       string
	TotalValue        Money
	InstallmentsCount int
	PurchaseDate      Date
	CardID            string
	Plan              Plan

	// Defect describes why a stored record could not be read back. A loan
	// with a defect is listed but never aggregated or edited.
	Defect string
}

// PayerShare pairs an account with the key that addresses it.
type PayerShare struct {
	Key     PayerKey
	Account PayerAccount
}

// Shared reports whether the loan is split between two payers.
func (l Loan) Shared() bool {
	_, ok := l.Plan.(SharedPlan)
	return ok
}

// Payers lists the installment owners of the loan in a stable order.
func (l Loan) Payers() []PayerShare {
	switch p := l.Plan.(type) {
	case SoloPlan:
		return []PayerShare{{Key: PayerClient, Account: p.Account}}
	case SharedPlan:
		return []PayerShare{
			{Key: PayerPerson1, Account: p.Person1},
			{Key: PayerPerson2, Account: p.Person2},
		}
	default:
		return nil
	}
}

// Account returns the payer account addressed by key.
func (l Loan) Account(key PayerKey) (PayerAccount, bool) {
	for _, ps := range l.Payers() {
		if ps.Key == key {
			return ps.Account, true
		}
	}
	return PayerAccount{}, false
}

// WithAccount returns a copy of the loan with the account at key replaced.
func (l Loan) WithAccount(key PayerKey, acc PayerAccount) (Loan, error) {
	switch p := l.Plan.(type) {
	case SoloPlan:
		if key != PayerClient {
			return Loan{}, fmt.Errorf("payer %q on non-shared loan %s: %w", key, l.ID, ErrInstallmentNotFound)
		}
		l.Plan = SoloPlan{Account: acc}
	case SharedPlan:
		switch key {
		case PayerPerson1:
			p.Person1 = acc
		case PayerPerson2:
			p.Person2 = acc
		default:
			return Loan{}, fmt.Errorf("payer %q on shared loan %s: %w", key, l.ID, ErrInstallmentNotFound)
		}
		l.Plan = p
	default:
		return Loan{}, fmt.Errorf("loan %s: %w", l.ID, ErrMalformedLoan)
	}
	return l, nil
}

// BalanceDue is the outstanding debt across every payer of the loan.
func (l Loan) BalanceDue() Money {
	var total Money
	for _, ps := range l.Payers() {
		total = total.Add(ps.Account.BalanceDue)
	}
	return total
}

// CheckIntegrity reports whether the record is usable for aggregation and
// edits. Installment lists must be present; an empty list is only allowed
// for a shared payer holding a zero share.
func (l Loan) CheckIntegrity() error {
	if l.Defect != "" {
		return fmt.Errorf("loan %s: %s: %w", l.ID, l.Defect, ErrMalformedLoan)
	}
	if l.TotalValue.Cents <= 0 {
		return fmt.Errorf("loan %s: non-positive total: %w", l.ID, ErrMalformedLoan)
	}
	switch p := l.Plan.(type) {
	case SoloPlan:
		if p.Account.Installments == nil {
			return fmt.Errorf("loan %s: missing installments: %w", l.ID, ErrMalformedLoan)
		}
	case SharedPlan:
		if p.Person1.Installments == nil {
			return fmt.Errorf("loan %s: missing person1 installments: %w", l.ID, ErrMalformedLoan)
		}
		if p.Person2.Installments == nil && p.Person2.ShareAmount.Cents > 0 {
			return fmt.Errorf("loan %s: missing person2 installments: %w", l.ID, ErrMalformedLoan)
		}
	default:
		return fmt.Errorf("loan %s: missing plan: %w", l.ID, ErrMalformedLoan)
	}
	return nil
}

// Clone deep-copies the installment lists so the copy can be changed freely.
func (l Loan) Clone() Loan {
	switch p := l.Plan.(type) {
	case SoloPlan:
		p.Account = p.Account.clone()
		l.Plan = p
	case SharedPlan:
		p.Person1 = p.Person1.clone()
		p.Person2 = p.Person2.clone()
		l.Plan = p
	}
	return l
}

func (a PayerAccount) clone() PayerAccount {
	if a.Installments != nil {
		a.Installments = slices.Clone(a.Installments)
		for i := range a.Installments {
			if pd := a.Installments[i].PaidDate; pd != nil {
				d := *pd
				a.Installments[i].PaidDate = &d
			}
		}
	}
	return a
}
