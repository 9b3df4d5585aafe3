package http

import (
	"time"

	"github.com/samber/lo"

	"faturas/internal/core"
	"faturas/internal/services"
	"faturas/internal/storage"
)

// invalidLoanNotice is shown next to loans that cannot be read back.
const invalidLoanNotice = "registro inválido, cadastre novamente"

type moneyView struct {
	Cents     int64   `json:"cents"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
}

func money(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Value: m.Reais(), Formatted: m.Format()}
}

type cardView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Limit      moneyView `json:"limit"`
	ClosingDay int       `json:"closingDay"`
	DueDay     int       `json:"dueDay"`
	Color      string    `json:"color,omitempty"`
}

func cardOf(c core.Card) cardView {
	return cardView{
		ID:         c.ID,
		Name:       c.Name,
		Limit:      money(c.Limit),
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
		Color:      c.Color,
	}
}

type cardUsageView struct {
	CardID            string    `json:"cardId"`
	CardName          string    `json:"cardName"`
	Limit             moneyView `json:"limit"`
	Outstanding       moneyView `json:"outstanding"`
	UsedPercentage    float64   `json:"usedPercentage"`
	DisplayPercentage float64   `json:"displayPercentage"`
}

func cardUsageOf(u core.CardUsage) cardUsageView {
	return cardUsageView{
		CardID:            u.CardID,
		CardName:          u.CardName,
		Limit:             money(u.Limit),
		Outstanding:       money(u.Outstanding),
		UsedPercentage:    u.UsedPercentage,
		DisplayPercentage: u.DisplayPercentage,
	}
}

type clientView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func clientOf(c core.Client) clientView {
	return clientView{ID: c.ID, Name: c.Name}
}

type installmentView struct {
	Number   int        `json:"number"`
	Value    moneyView  `json:"value"`
	DueDate  core.Date  `json:"dueDate"`
	Status   string     `json:"status"`
	PaidDate *core.Date `json:"paidDate,omitempty"`
}

type payerView struct {
	Key           string            `json:"key"`
	Label         string            `json:"label,omitempty"`
	ClientID      string            `json:"clientId"`
	Share         moneyView         `json:"share"`
	ValuePaid     moneyView         `json:"valuePaid"`
	BalanceDue    moneyView         `json:"balanceDue"`
	StatusPayment string            `json:"statusPayment"`
	Installments  []installmentView `json:"installments"`
}

type loanView struct {
	ID                string      `json:"id"`
	Description       string      `json:"description"`
	TotalValue        moneyView   `json:"totalValue"`
	InstallmentsCount int         `json:"installmentsCount"`
	PurchaseDate      core.Date   `json:"purchaseDate"`
	CardID            string      `json:"cardId,omitempty"`
	Shared            bool        `json:"shared"`
	BalanceDue        moneyView   `json:"balanceDue"`
	Payers            []payerView `json:"payers"`
	Invalid           bool        `json:"invalid,omitempty"`
	Notice            string      `json:"notice,omitempty"`
}

func loanOf(l core.Loan) loanView {
	v := loanView{
		ID:                l.ID,
		Description:       l.Description,
		TotalValue:        money(l.TotalValue),
		InstallmentsCount: l.InstallmentsCount,
		PurchaseDate:      l.PurchaseDate,
		CardID:            l.CardID,
		Payers:            []payerView{},
	}
	if err := l.CheckIntegrity(); err != nil {
		v.Invalid = true
		v.Notice = invalidLoanNotice
		return v
	}
	v.Shared = l.Shared()
	v.BalanceDue = money(l.BalanceDue())
	for _, ps := range l.Payers() {
		acc := ps.Account
		v.Payers = append(v.Payers, payerView{
			Key:           string(ps.Key),
			Label:         ps.Key.Label(),
			ClientID:      acc.ClientID,
			Share:         money(acc.ShareAmount),
			ValuePaid:     money(acc.ValuePaid),
			BalanceDue:    money(acc.BalanceDue),
			StatusPayment: string(acc.StatusPayment),
			Installments: lo.Map(acc.Installments, func(in core.Installment, _ int) installmentView {
				return installmentView{
					Number:   in.Number,
					Value:    money(in.Value),
					DueDate:  in.DueDate,
					Status:   string(in.Status),
					PaidDate: in.PaidDate,
				}
			}),
		})
	}
	return v
}

type subscriptionView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      moneyView `json:"amount"`
	DueDay      int       `json:"dueDay"`
	CardID      string    `json:"cardId,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	Active      bool      `json:"active"`
}

func subscriptionOf(s core.Subscription) subscriptionView {
	return subscriptionView{
		ID:          s.ID,
		Description: s.Description,
		Amount:      money(s.Amount),
		DueDay:      s.DueDay,
		CardID:      s.CardID,
		ClientID:    s.ClientID,
		Active:      s.Active,
	}
}

type expenseView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Value       moneyView `json:"value"`
	Date        core.Date `json:"date"`
	Category    string    `json:"category,omitempty"`
	CardID      string    `json:"cardId,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	Status      string    `json:"status"`
}

func expenseOf(e core.Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		Description: e.Description,
		Value:       money(e.Value),
		Date:        e.Date,
		Category:    e.Category,
		CardID:      e.CardID,
		ClientID:    e.ClientID,
		Status:      string(e.Status),
	}
}

type incomeView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Value       moneyView `json:"value"`
	Date        core.Date `json:"date"`
	ClientID    string    `json:"clientId,omitempty"`
}

func incomeOf(i core.Income) incomeView {
	return incomeView{
		ID:          i.ID,
		Description: i.Description,
		Value:       money(i.Value),
		Date:        i.Date,
		ClientID:    i.ClientID,
	}
}

type lineItemView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ClientID    string    `json:"clientId,omitempty"`
	ClientName  string    `json:"clientName,omitempty"`
	CardID      string    `json:"cardId,omitempty"`
	CardName    string    `json:"cardName,omitempty"`
	Value       moneyView `json:"value"`
	DueDate     core.Date `json:"dueDate"`
	Status      string    `json:"status"`
	PayerLabel  string    `json:"payerLabel,omitempty"`
}

type summaryView struct {
	TotalInvoice  moneyView `json:"totalInvoice"`
	TotalReceived moneyView `json:"totalReceived"`
	TotalPending  moneyView `json:"totalPending"`
	Count         int       `json:"count"`
	PaidCount     int       `json:"paidCount"`
}

func summaryOf(s core.InvoiceSummary) summaryView {
	return summaryView{
		TotalInvoice:  money(s.TotalInvoice),
		TotalReceived: money(s.TotalReceived),
		TotalPending:  money(s.TotalPending),
		Count:         s.Count,
		PaidCount:     s.PaidCount,
	}
}

type skippedView struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type invoiceView struct {
	Month   core.YearMonth `json:"month"`
	Items   []lineItemView `json:"items"`
	Summary summaryView    `json:"summary"`
	Skipped []skippedView  `json:"skipped,omitempty"`
	Failed  bool           `json:"failed,omitempty"`
}

func invoiceOf(month core.YearMonth, res services.InvoiceResult, ds core.Dataset) invoiceView {
	clients := ds.ClientNames()
	cards := ds.CardNames()
	return invoiceView{
		Month: month,
		Items: lo.Map(res.Items, func(it core.LineItem, _ int) lineItemView {
			return lineItemView{
				ID:          it.ID,
				Type:        string(it.Type),
				Description: it.Description,
				ClientID:    it.ClientID,
				ClientName:  clients[it.ClientID],
				CardID:      it.CardID,
				CardName:    cards[it.CardID],
				Value:       money(it.Value),
				DueDate:     it.DueDate,
				Status:      string(it.Status),
				PayerLabel:  it.PayerLabel,
			}
		}),
		Summary: summaryOf(services.Summarize(res.Items)),
		Skipped: lo.Map(res.Skipped, func(s services.SkippedRecord, _ int) skippedView {
			return skippedView{ID: s.ID, Reason: s.Reason}
		}),
		Failed: res.Failed,
	}
}

type balanceView struct {
	Month   core.YearMonth `json:"month"`
	Incomes moneyView      `json:"incomes"`
	Invoice moneyView      `json:"invoice"`
	Balance moneyView      `json:"balance"`
}

type monthTotalView struct {
	Month    core.YearMonth `json:"month"`
	Total    moneyView      `json:"total"`
	Received moneyView      `json:"received"`
}

type clientAmountView struct {
	ClientID string    `json:"clientId,omitempty"`
	Name     string    `json:"name"`
	Amount   moneyView `json:"amount"`
	Pending  moneyView `json:"pending"`
}

type activityView struct {
	Kind       string    `json:"kind"`
	ItemID     string    `json:"itemId,omitempty"`
	Status     string    `json:"status,omitempty"`
	Month      string    `json:"month,omitempty"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurredAt"`
}

func activityOf(a storage.Activity) activityView {
	return activityView{
		Kind:       a.Kind,
		ItemID:     a.ItemID,
		Status:     a.Status,
		Month:      a.Month,
		Detail:     a.Detail,
		OccurredAt: a.OccurredAt,
	}
}

type sessionView struct {
	UserID    string `json:"userId"`
	Plan      string `json:"plan"`
	ProAccess bool   `json:"proAccess"`
	Version   uint64 `json:"version"`
}
