package core

import (
	"slices"
	"time"
)

const (
	CollectionCards         Collection = "cards"
	CollectionClients       Collection = "clients"
	CollectionLoans         Collection = "loans"
	CollectionSubscriptions Collection = "subscriptions"
	CollectionExpenses      Collection = "expenses"
	CollectionIncomes       Collection = "incomes"
	CollectionPaidMarkers   Collection = "paidSubscriptions"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Collection names one per-user record collection.
type Collection string

// AllCollections lists every per-user collection.
var AllCollections = []Collection{
	CollectionCards,
	CollectionClients,
	CollectionLoans,
	CollectionSubscriptions,
	CollectionExpenses,
	CollectionIncomes,
	CollectionPaidMarkers,
}

// Dataset is the full snapshot set of one user.
type Dataset struct {
	Cards         []Card
	Clients       []Client
	Loans         []Loan
	Subscriptions []Subscription
	Expenses      []Expense
	Incomes       []Income
	Markers       []PaidSubscriptionMarker

	// Version increases every time a collection is replaced.
	Version uint64
}

// Profile holds the plan flags written by the payment collaborator.
type Profile struct {
	UserID         string
	Plan           string
	TrialExpiresAt *time.Time
}

// HasProAccess reports whether Pro-only computations may run.
func (p Profile) HasProAccess(now time.Time) bool {
	if p.Plan == PlanPro {
		return true
	}
	return p.TrialExpiresAt != nil && now.Before(*p.TrialExpiresAt)
}

// Merge copies collection c from src into d.
func (d *Dataset) Merge(c Collection, src Dataset) {
	switch c {
	case CollectionCards:
		d.Cards = src.Cards
	case CollectionClients:
		d.Clients = src.Clients
	case CollectionLoans:
		d.Loans = src.Loans
	case CollectionSubscriptions:
		d.Subscriptions = src.Subscriptions
	case CollectionExpenses:
		d.Expenses = src.Expenses
	case CollectionIncomes:
		d.Incomes = src.Incomes
	case CollectionPaidMarkers:
		d.Markers = src.Markers
	}
}

// Clone returns a copy whose slices can be replaced without touching d.
// Loans are deep-copied since their installment lists are edited copy-on-write.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Cards:         slices.Clone(d.Cards),
		Clients:       slices.Clone(d.Clients),
		Subscriptions: slices.Clone(d.Subscriptions),
		Expenses:      slices.Clone(d.Expenses),
		Incomes:       slices.Clone(d.Incomes),
		Markers:       slices.Clone(d.Markers),
		Version:       d.Version,
	}
	if d.Loans != nil {
		out.Loans = make([]Loan, len(d.Loans))
		for i, l := range d.Loans {
			out.Loans[i] = l.Clone()
		}
	}
	return out
}

func (d Dataset) CardByID(id string) (Card, bool) {
	for _, c := range d.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

func (d Dataset) LoanByID(id string) (Loan, bool) {
	for _, l := range d.Loans {
		if l.ID == id {
			return l, true
		}
	}
	return Loan{}, false
}

func (d Dataset) ExpenseByID(id string) (Expense, bool) {
	for _, e := range d.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// ClientNames maps client ids to names.
func (d Dataset) ClientNames() map[string]string {
	out := make(map[string]string, len(d.Clients))
	for _, c := range d.Clients {
		out[c.ID] = c.Name
	}
	return out
}

// CardNames maps card ids to names.
func (d Dataset) CardNames() map[string]string {
	out := make(map[string]string, len(d.Cards))
	for _, c := range d.Cards {
		out[c.ID] = c.Name
	}
	return out
}

// HasMarker reports whether the subscription charge of month was marked paid.
func (d Dataset) HasMarker(subscriptionID string, month YearMonth) bool {
	for _, m := range d.Markers {
		if m.SubscriptionID == subscriptionID && m.Month == month {
			return true
		}
	}
	return false
}
