package services

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"faturas/internal/core"
)

var (
	hundred = decimal.NewFromInt(100)
)

// Summarize totals a list of line items. Pending is whatever is not paid,
// overdue items included.
func Summarize(items []core.LineItem) core.InvoiceSummary {
	total := lo.SumBy(items, func(it core.LineItem) int64 { return it.Value.Cents })
	paidItems := lo.Filter(items, func(it core.LineItem, _ int) bool { return it.Status == core.StatusPaga })
	received := lo.SumBy(paidItems, func(it core.LineItem) int64 { return it.Value.Cents })

	return core.InvoiceSummary{
		TotalInvoice:  core.Cents(total),
		TotalReceived: core.Cents(received),
		TotalPending:  core.Cents(total - received),
		Count:         len(items),
		PaidCount:     len(paidItems),
	}
}

// CardUtilization measures how much of a card's limit is taken by the
// outstanding balance of its valid loans, across every future month.
func CardUtilization(card core.Card, loans []core.Loan) core.CardUsage {
	var outstanding core.Money
	for _, loan := range loans {
		if loan.CardID != card.ID || loan.CheckIntegrity() != nil {
			continue
		}
		outstanding = outstanding.Add(loan.BalanceDue())
	}

	usage := core.CardUsage{
		CardID:      card.ID,
		CardName:    card.Name,
		Limit:       card.Limit,
		Outstanding: outstanding,
	}
	if card.Limit.Cents <= 0 {
		return usage
	}

	pct := outstanding.Decimal().Div(card.Limit.Decimal()).Mul(hundred).Round(2)
	usage.UsedPercentage = pct.InexactFloat64()
	usage.DisplayPercentage = decimal.Min(decimal.Max(pct, decimal.Zero), hundred).InexactFloat64()
	return usage
}

// CardsUtilization computes CardUtilization for every card of the dataset.
func CardsUtilization(ds core.Dataset) []core.CardUsage {
	return lo.Map(ds.Cards, func(c core.Card, _ int) core.CardUsage {
		return CardUtilization(c, ds.Loans)
	})
}

// MonthBalance compares the incomes dated in month with the month's invoice total.
func MonthBalance(ds core.Dataset, month core.YearMonth, invoiceTotal core.Money) core.MonthBalance {
	incomes := lo.SumBy(ds.Incomes, func(in core.Income) int64 {
		if !month.Contains(in.Date) {
			return 0
		}
		return in.Value.Cents
	})
	return core.MonthBalance{
		Month:   month,
		Incomes: core.Cents(incomes),
		Invoice: invoiceTotal,
		Balance: core.Cents(incomes).Sub(invoiceTotal),
	}
}
