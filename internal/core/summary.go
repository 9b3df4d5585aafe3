package core

// InvoiceSummary totals a list of line items.
type InvoiceSummary struct {
	TotalInvoice  Money
	TotalReceived Money
	TotalPending  Money
	Count         int
	PaidCount     int
}

// CardUsage is the utilization of a card's limit by outstanding debt.
type CardUsage struct {
	CardID      string
	CardName    string
	Limit       Money
	Outstanding Money

	// UsedPercentage is the raw ratio; DisplayPercentage is clamped to 100.
	UsedPercentage    float64
	DisplayPercentage float64
}

// MonthBalance compares a month's incomes with its invoice.
type MonthBalance struct {
	Month   YearMonth
	Incomes Money
	Invoice Money
	Balance Money
}

// MonthTotal is one point of the invoice trend.
type MonthTotal struct {
	Month    YearMonth
	Total    Money
	Received Money
}

// ClientAmount is the invoice share attributed to one client.
type ClientAmount struct {
	ClientID string
	Name     string
	Amount   Money
	Pending  Money
}
