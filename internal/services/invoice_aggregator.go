package services

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"faturas/internal/core"
)

// SortKey selects the field an invoice is ordered by.
type SortKey string

const (
	SortDueDate SortKey = "dueDate"
	SortType    SortKey = "type"
	SortClient  SortKey = "clientId"
	SortCard    SortKey = "cardId"
)

// Direction of an invoice sort.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseSortKey accepts the sort keys used by the API; empty means due date.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortDueDate, nil
	case SortDueDate, SortType, SortClient, SortCard:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// ParseDirection accepts asc/ascending and desc/descending; empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", s)
	}
}

// InvoiceQuery selects one month of one user's invoice.
type InvoiceQuery struct {
	Month     core.YearMonth
	CardID    string
	ClientID  string
	Sort      SortKey
	Direction Direction
}

// CacheKey identifies the query inside a user's cache namespace.
func (q InvoiceQuery) CacheKey() string {
	return strings.Join([]string{q.Month.String(), q.CardID, q.ClientID, string(q.Sort), string(q.Direction)}, "|")
}

// SkippedRecord is a stored record left out of an invoice because it is malformed.
type SkippedRecord struct {
	ID     string
	Reason string
}

// InvoiceResult is the aggregated invoice of one month.
type InvoiceResult struct {
	Items   []core.LineItem
	Skipped []SkippedRecord

	// Failed is set when aggregation aborted and Items fell back to empty.
	Failed bool
}

// BuildInvoiceItems collects every installment, subscription charge and
// expense belonging to q.Month. It is a pure function of its inputs: the same
// dataset, query and day always produce the same ordered list.
func BuildInvoiceItems(q InvoiceQuery, ds core.Dataset, today core.Date) (res InvoiceResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Invoice aggregation failed",
				"month", q.Month.String(),
				"panic", fmt.Sprint(r))
			res = InvoiceResult{Items: []core.LineItem{}, Failed: true}
		}
	}()

	if q.Month.IsZero() {
		return InvoiceResult{Items: []core.LineItem{}}
	}

	items, skipped := installmentItems(q, ds.Loans, today)
	items = append(items, subscriptionItems(q, ds)...)
	items = append(items, expenseItems(q, ds)...)

	sortItems(items, q, ds)
	return InvoiceResult{Items: items, Skipped: skipped}
}

func installmentItems(q InvoiceQuery, loans []core.Loan, today core.Date) ([]core.LineItem, []SkippedRecord) {
	items := []core.LineItem{}
	var skipped []SkippedRecord

	for _, loan := range loans {
		if err := loan.CheckIntegrity(); err != nil {
			skipped = append(skipped, SkippedRecord{ID: loan.ID, Reason: err.Error()})
			continue
		}
		if q.CardID != "" && loan.CardID != q.CardID {
			continue
		}

		shared := loan.Shared()
		for _, payer := range loan.Payers() {
			if q.ClientID != "" && payer.Account.ClientID != q.ClientID {
				continue
			}
			label := ""
			if shared {
				label = payer.Key.Label()
			}
			for _, in := range payer.Account.Installments {
				if !q.Month.Contains(in.DueDate) {
					continue
				}
				ref := core.ItemRef{
					Type:   core.ItemInstallment,
					LoanID: loan.ID,
					Payer:  payer.Key,
					Number: in.Number,
				}
				items = append(items, core.LineItem{
					ID:          ref.ID(),
					Type:        core.ItemInstallment,
					Description: fmt.Sprintf("%s (%d/%d)", loan.Description, in.Number, len(payer.Account.Installments)),
					ClientID:    payer.Account.ClientID,
					CardID:      loan.CardID,
					Value:       in.Value,
					DueDate:     in.DueDate,
					Status:      currentStatus(in, today),
					PayerLabel:  label,
					Ref:         ref,
				})
			}
		}
	}
	return items, skipped
}

// currentStatus promotes a pending installment past its due date to overdue.
func currentStatus(in core.Installment, today core.Date) core.Status {
	if in.Status == core.StatusPendente && in.DueDate.Before(today) {
		return core.StatusAtrasado
	}
	return in.Status
}

// subscriptionItems derives the monthly charges of active subscriptions. A
// card cycle moves a charge at most two months ahead, so the charges of the
// target month and the two before it are probed, newest first. At most one
// charge per subscription is listed for a month.
func subscriptionItems(q InvoiceQuery, ds core.Dataset) []core.LineItem {
	subs := lo.Filter(ds.Subscriptions, func(s core.Subscription, _ int) bool {
		if !s.Active {
			return false
		}
		if q.CardID != "" && s.CardID != q.CardID {
			return false
		}
		return q.ClientID == "" || s.ClientID == q.ClientID
	})

	var items []core.LineItem
	for _, sub := range subs {
		card := lookupCard(ds, sub.CardID)
		status := core.StatusPendente
		if ds.HasMarker(sub.ID, q.Month) {
			status = core.StatusPaga
		}

		for _, chargeMonth := range []core.YearMonth{q.Month, q.Month.AddMonths(-1), q.Month.AddMonths(-2)} {
			charge := chargeMonth.Day(sub.DueDay)
			if ResolveInvoiceMonth(charge, card) != q.Month {
				continue
			}
			ref := core.ItemRef{
				Type:           core.ItemSubscription,
				SubscriptionID: sub.ID,
				Month:          q.Month,
				ChargeDate:     charge,
			}
			items = append(items, core.LineItem{
				ID:          ref.ID(),
				Type:        core.ItemSubscription,
				Description: sub.Description,
				ClientID:    sub.ClientID,
				CardID:      sub.CardID,
				Value:       sub.Amount,
				DueDate:     charge,
				Status:      status,
				Ref:         ref,
			})
			break
		}
	}
	return items
}

// expenseItems lists expenses whose resolved invoice month is the target.
// Expenses without a client pass any client filter.
func expenseItems(q InvoiceQuery, ds core.Dataset) []core.LineItem {
	var items []core.LineItem
	for _, e := range ds.Expenses {
		if q.CardID != "" && e.CardID != q.CardID {
			continue
		}
		if q.ClientID != "" && e.ClientID != "" && e.ClientID != q.ClientID {
			continue
		}
		if ResolveInvoiceMonth(e.Date, lookupCard(ds, e.CardID)) != q.Month {
			continue
		}
		ref := core.ItemRef{Type: core.ItemExpense, ExpenseID: e.ID}
		items = append(items, core.LineItem{
			ID:          ref.ID(),
			Type:        core.ItemExpense,
			Description: e.Description,
			ClientID:    e.ClientID,
			CardID:      e.CardID,
			Value:       e.Value,
			DueDate:     e.Date,
			Status:      e.Status,
			Ref:         ref,
		})
	}
	return items
}

// lookupCard returns nil for an empty or dangling card id, which resolves the
// record by its own date.
func lookupCard(ds core.Dataset, id string) *core.Card {
	if id == "" {
		return nil
	}
	card, ok := ds.CardByID(id)
	if !ok {
		return nil
	}
	return &card
}

func sortItems(items []core.LineItem, q InvoiceQuery, ds core.Dataset) {
	var compare func(a, b core.LineItem) int
	switch q.Sort {
	case SortType:
		compare = func(a, b core.LineItem) int { return strings.Compare(string(a.Type), string(b.Type)) }
	case SortClient:
		names := ds.ClientNames()
		compare = func(a, b core.LineItem) int { return strings.Compare(names[a.ClientID], names[b.ClientID]) }
	case SortCard:
		names := ds.CardNames()
		compare = func(a, b core.LineItem) int { return strings.Compare(names[a.CardID], names[b.CardID]) }
	default:
		compare = func(a, b core.LineItem) int { return cmp.Compare(a.DueDate.Unix(), b.DueDate.Unix()) }
	}

	if q.Direction == Descending {
		asc := compare
		compare = func(a, b core.LineItem) int { return asc(b, a) }
	}
	slices.SortStableFunc(items, compare)
}
