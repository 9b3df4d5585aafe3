// Package services provides business logic and orchestration services.
//
// This file maps transaction dates to the invoice month of a credit card.
// Each cycle layout (closing before the due day, or closing on/after it so the
// due day wraps into the following month) has its own strategy.
package services

import (
	"faturas/internal/core"
)

// CycleKind classifies a card by how its closing day relates to its due day.
type CycleKind string

const (
	// CycleClosesBeforeDue covers cards whose closing day precedes the due day
	// of the same month.
	CycleClosesBeforeDue CycleKind = "closes_before_due"
	// CycleDueWraps covers cards whose due day falls in the month after closing.
	// A card closing and due on the same day belongs here.
	CycleDueWraps CycleKind = "due_wraps"
)

// CycleResolver is the strategy interface for placing a transaction into an
// invoice month.
type CycleResolver interface {
	// InvoiceMonth returns the month whose invoice carries a transaction
	// made on date with the given card.
	InvoiceMonth(date core.Date, card core.Card) core.YearMonth
}

// ClosesBeforeDueResolver implements CycleResolver for closingDay < dueDay.
type ClosesBeforeDueResolver struct{}

// InvoiceMonth pushes transactions made on or after closing to the next month.
func (ClosesBeforeDueResolver) InvoiceMonth(date core.Date, card core.Card) core.YearMonth {
	month := date.YearMonth()
	if date.Day() >= closingDate(month, card).Day() {
		return month.AddMonths(1)
	}
	return month
}

// DueWrapsResolver implements CycleResolver for closingDay >= dueDay.
type DueWrapsResolver struct{}

// InvoiceMonth returns two months ahead once the month's closing date has
// passed (inclusive), one month ahead otherwise.
func (DueWrapsResolver) InvoiceMonth(date core.Date, card core.Card) core.YearMonth {
	month := date.YearMonth()
	if !date.Before(closingDate(month, card)) {
		return month.AddMonths(2)
	}
	return month.AddMonths(1)
}

// closingDate clamps the card's closing day to the length of month.
func closingDate(month core.YearMonth, card core.Card) core.Date {
	return month.Day(card.ClosingDay)
}

// KindOf classifies a card's cycle.
func KindOf(card core.Card) CycleKind {
	if card.ClosingDay < card.DueDay {
		return CycleClosesBeforeDue
	}
	return CycleDueWraps
}

var cycleStrategies = map[CycleKind]CycleResolver{
	CycleClosesBeforeDue: ClosesBeforeDueResolver{},
	CycleDueWraps:        DueWrapsResolver{},
}

// ResolveInvoiceMonth returns the invoice month of a transaction. Without a
// card the transaction's own month is used.
func ResolveInvoiceMonth(date core.Date, card *core.Card) core.YearMonth {
	if card == nil {
		return date.YearMonth()
	}
	return cycleStrategies[KindOf(*card)].InvoiceMonth(date, *card)
}

// FirstDueDate is the due date of the first installment of a purchase: the
// card's due day inside the purchase's invoice month. Without a card the
// purchase date itself is used.
func FirstDueDate(purchase core.Date, card *core.Card) core.Date {
	if card == nil {
		return purchase
	}
	return ResolveInvoiceMonth(purchase, card).Day(card.DueDay)
}
