package services

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"faturas/internal/core"
)

const (
	maxTrendMonths = 24
	unattributed   = "Sem cliente"
)

// InvoiceTrend returns the totals of the months-long window ending at end,
// oldest first.
func InvoiceTrend(ds core.Dataset, end core.YearMonth, months int, today core.Date) []core.MonthTotal {
	months = min(max(months, 1), maxTrendMonths)
	out := make([]core.MonthTotal, 0, months)
	for i := months - 1; i >= 0; i-- {
		month := end.AddMonths(-i)
		res := BuildInvoiceItems(InvoiceQuery{Month: month}, ds, today)
		sum := Summarize(res.Items)
		out = append(out, core.MonthTotal{
			Month:    month,
			Total:    sum.TotalInvoice,
			Received: sum.TotalReceived,
		})
	}
	return out
}

// ClientBreakdown groups an invoice by client, largest amount first. Items
// without a client are grouped under an empty id.
func ClientBreakdown(items []core.LineItem, names map[string]string) []core.ClientAmount {
	groups := lo.GroupBy(items, func(it core.LineItem) string { return it.ClientID })

	out := make([]core.ClientAmount, 0, len(groups))
	for id, group := range groups {
		sum := Summarize(group)
		name := names[id]
		if id == "" {
			name = unattributed
		} else if name == "" {
			name = id
		}
		out = append(out, core.ClientAmount{
			ClientID: id,
			Name:     name,
			Amount:   sum.TotalInvoice,
			Pending:  sum.TotalPending,
		})
	}

	slices.SortFunc(out, func(a, b core.ClientAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// RequirePro gates Pro-only computations on the profile's plan flags.
func RequirePro(p core.Profile, now time.Time) error {
	if !p.HasProAccess(now) {
		return core.ErrProRequired
	}
	return nil
}
