package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ItemInstallment  ItemType = "Parcela"
	ItemExpense      ItemType = "Despesa"
	ItemSubscription ItemType = "Assinatura"
)

// ItemType tells which record a line item was derived from.
type ItemType string

// ItemRef addresses the record behind a line item.
type ItemRef struct {
	Type ItemType

	// Installment
	LoanID string
	Payer  PayerKey
	Number int

	// Expense
	ExpenseID string

	// Subscription charge
	SubscriptionID string
	Month          YearMonth
	ChargeDate     Date
}

// LineItem is one row of a monthly invoice. It is derived on every query and
// never stored.
type LineItem struct {
	ID          string
	Type        ItemType
	Description string
	ClientID    string
	CardID      string
	Value       Money
	DueDate     Date
	Status      Status
	PayerLabel  string
	Ref         ItemRef
}

// ID renders the reference as an opaque, parseable identifier.
func (r ItemRef) ID() string {
	switch r.Type {
	case ItemInstallment:
		return "parcela:" + r.LoanID + ":" + string(r.Payer) + ":" + strconv.Itoa(r.Number)
	case ItemExpense:
		return "despesa:" + r.ExpenseID
	case ItemSubscription:
		return "assinatura:" + r.SubscriptionID + ":" + r.Month.String() + ":" + r.ChargeDate.String()
	default:
		return ""
	}
}

// ParseItemID is the inverse of ItemRef.ID.
func ParseItemID(id string) (ItemRef, error) {
	kind, rest, ok := strings.Cut(id, ":")
	if !ok || rest == "" {
		return ItemRef{}, fmt.Errorf("invalid item id %q", id)
	}
	switch kind {
	case "parcela":
		parts := strings.Split(rest, ":")
		if len(parts) != 3 || parts[0] == "" {
			return ItemRef{}, fmt.Errorf("invalid installment id %q", id)
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 {
			return ItemRef{}, fmt.Errorf("invalid installment number in %q", id)
		}
		payer := PayerKey(parts[1])
		if payer != PayerClient && payer != PayerPerson1 && payer != PayerPerson2 {
			return ItemRef{}, fmt.Errorf("invalid payer in %q", id)
		}
		return ItemRef{Type: ItemInstallment, LoanID: parts[0], Payer: payer, Number: n}, nil
	case "despesa":
		return ItemRef{Type: ItemExpense, ExpenseID: rest}, nil
	case "assinatura":
		parts := strings.Split(rest, ":")
		if len(parts) != 3 || parts[0] == "" {
			return ItemRef{}, fmt.Errorf("invalid subscription charge id %q", id)
		}
		month, err := ParseYearMonth(parts[1])
		if err != nil {
			return ItemRef{}, err
		}
		charge, err := ParseDate(parts[2])
		if err != nil {
			return ItemRef{}, err
		}
		return ItemRef{Type: ItemSubscription, SubscriptionID: parts[0], Month: month, ChargeDate: charge}, nil
	default:
		return ItemRef{}, fmt.Errorf("unknown item kind %q", kind)
	}
}
