package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"faturas/internal/core"
)

// PayerInput is one side of a shared purchase.
type PayerInput struct {
	ClientID    string
	ShareAmount core.Money
}

// LoanInput carries the user-entered fields of a purchase.
type LoanInput struct {
	Description       string
	TotalValue        core.Money
	InstallmentsCount int
	PurchaseDate      core.Date
	CardID            string

	// FirstDueDate overrides the due date derived from the card cycle.
	FirstDueDate core.Date

	// ClientID owns a non-shared purchase.
	ClientID string

	Shared  bool
	Person1 PayerInput
	Person2 PayerInput
}

// Validate rejects input that must never reach storage.
func (in LoanInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return core.ErrEmptyDescription
	}
	if err := in.TotalValue.Validate(); err != nil {
		return err
	}
	if in.InstallmentsCount < 1 {
		return core.ErrInvalidInstallmentCount
	}
	if err := in.PurchaseDate.Validate(); err != nil {
		return fmt.Errorf("purchase date: %w", err)
	}
	if !in.Shared {
		if strings.TrimSpace(in.ClientID) == "" {
			return core.ErrMissingPayer
		}
		return nil
	}
	if strings.TrimSpace(in.Person1.ClientID) == "" {
		return fmt.Errorf("person1: %w", core.ErrMissingPayer)
	}
	if err := in.Person1.ShareAmount.Validate(); err != nil {
		return fmt.Errorf("person1 share: %w", err)
	}
	if in.Person2.ShareAmount.Cents < 0 {
		return fmt.Errorf("person2 share: %w", core.ErrInvalidAmount)
	}
	if in.Person2.ShareAmount.Cents > 0 && strings.TrimSpace(in.Person2.ClientID) == "" {
		return fmt.Errorf("person2: %w", core.ErrMissingPayer)
	}
	if in.Person2.ClientID != "" && in.Person2.ClientID == in.Person1.ClientID {
		return core.ErrSamePayer
	}
	if in.Person1.ShareAmount.Add(in.Person2.ShareAmount) != in.TotalValue {
		return core.ErrShareMismatch
	}
	return nil
}

// GenerateInstallments splits total into count monthly installments starting
// at firstDue. Each installment is total/count rounded half-up to cents; the
// last one absorbs the remainder so the values add up to total exactly. When
// rounding up would leave the last installment negative the per-installment
// value is truncated to cents instead.
func GenerateInstallments(total core.Money, count int, firstDue core.Date) []core.Installment {
	if count < 1 || total.Cents <= 0 {
		return []core.Installment{}
	}

	share := total.Decimal().Div(decimal.NewFromInt(int64(count)))
	each := core.NewMoney(share)
	if each.Cents*int64(count-1) > total.Cents {
		each = core.Money{Cents: share.Shift(2).IntPart()}
	}

	out := make([]core.Installment, count)
	var sum core.Money
	for i := range out {
		value := each
		if i == count-1 {
			value = total.Sub(sum)
		}
		sum = sum.Add(value)
		out[i] = core.Installment{
			Number:  i + 1,
			Value:   value,
			DueDate: firstDue.AddMonths(i),
			Status:  core.StatusPendente,
		}
	}
	return out
}

// BuildLoan turns validated input into a loan with fresh installment plans.
// Shared purchases get one independent plan per payer share.
func BuildLoan(id string, in LoanInput, card *core.Card) (core.Loan, error) {
	if err := in.Validate(); err != nil {
		return core.Loan{}, err
	}

	firstDue := in.FirstDueDate
	if firstDue.IsZero() {
		firstDue = FirstDueDate(in.PurchaseDate, card)
	}

	loan := core.Loan{
		ID:                id,
		Description:       strings.TrimSpace(in.Description),
		TotalValue:        in.TotalValue,
		InstallmentsCount: in.InstallmentsCount,
		PurchaseDate:      in.PurchaseDate,
		CardID:            in.CardID,
	}

	if !in.Shared {
		loan.Plan = core.SoloPlan{
			Account: newAccount(in.ClientID, in.TotalValue, in.InstallmentsCount, firstDue),
		}
		return loan, nil
	}

	loan.Plan = core.SharedPlan{
		Person1: newAccount(in.Person1.ClientID, in.Person1.ShareAmount, in.InstallmentsCount, firstDue),
		Person2: newAccount(in.Person2.ClientID, in.Person2.ShareAmount, in.InstallmentsCount, firstDue),
	}
	return loan, nil
}

func newAccount(clientID string, share core.Money, count int, firstDue core.Date) core.PayerAccount {
	return recomputeAccount(core.PayerAccount{
		ClientID:     clientID,
		ShareAmount:  share,
		Installments: GenerateInstallments(share, count, firstDue),
	})
}
