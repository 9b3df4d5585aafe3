package services

import (
	"errors"
	"testing"
	"time"

	"faturas/internal/core"
)

func aprilItems(t *testing.T) []core.LineItem {
	t.Helper()
	res := BuildInvoiceItems(InvoiceQuery{Month: month(2024, time.April)}, testDataset(), core.NewDate(2024, 4, 1))
	if len(res.Items) != 5 {
		t.Fatalf("april items = %v", itemIDs(res.Items))
	}
	return res.Items
}

func TestSummarize(t *testing.T) {
	sum := Summarize(aprilItems(t))

	want := core.InvoiceSummary{
		TotalInvoice:  core.Cents(40490),
		TotalReceived: core.Cents(20000),
		TotalPending:  core.Cents(20490),
		Count:         5,
		PaidCount:     1,
	}
	if sum != want {
		t.Errorf("summary = %+v\nwant      %+v", sum, want)
	}

	if empty := Summarize(nil); empty != (core.InvoiceSummary{}) {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestCardUtilization(t *testing.T) {
	ds := testDataset()

	tests := []struct {
		name        string
		card        core.Card
		outstanding int64
		used        float64
		display     float64
	}{
		{"within limit", ds.Cards[0], 30000, 30, 30},
		{"over limit is clamped for display", ds.Cards[1], 10000, 200, 100},
		{"zero limit", core.Card{ID: "c1", Name: "Sem limite"}, 30000, 0, 0},
		{"no loans", core.Card{ID: "c9", Name: "Vazio", Limit: core.Cents(1000)}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := CardUtilization(tt.card, ds.Loans)
			if u.Outstanding != core.Cents(tt.outstanding) {
				t.Errorf("outstanding = %v, want %d", u.Outstanding, tt.outstanding)
			}
			if u.UsedPercentage != tt.used || u.DisplayPercentage != tt.display {
				t.Errorf("percentages = %v / %v, want %v / %v", u.UsedPercentage, u.DisplayPercentage, tt.used, tt.display)
			}
		})
	}
}

func TestCardUtilizationFollowsPayments(t *testing.T) {
	ds := testDataset()
	paid, err := ApplyInstallmentStatus(ds.Loans[0], core.PayerClient, 1, core.StatusPaga, core.NewDate(2024, 1, 5))
	if err != nil {
		t.Fatal(err)
	}
	ds.Loans[0] = paid

	u := CardUtilization(ds.Cards[0], ds.Loans)
	if u.Outstanding != core.Cents(20000) || u.UsedPercentage != 20 {
		t.Errorf("usage after payment = %+v", u)
	}
	if len(CardsUtilization(ds)) != len(ds.Cards) {
		t.Error("CardsUtilization skipped cards")
	}
}

func TestMonthBalance(t *testing.T) {
	ds := testDataset()
	april := month(2024, time.April)

	b := MonthBalance(ds, april, Summarize(aprilItems(t)).TotalInvoice)
	if b.Incomes != core.Cents(500000) || b.Balance != core.Cents(459510) {
		t.Errorf("balance = %+v", b)
	}

	b = MonthBalance(ds, month(2024, time.July), core.Cents(1000))
	if b.Incomes.Cents != 0 || b.Balance != core.Cents(-1000) {
		t.Errorf("month without income = %+v", b)
	}
}

func TestClientBreakdown(t *testing.T) {
	ds := testDataset()
	got := ClientBreakdown(aprilItems(t), ds.ClientNames())

	want := []core.ClientAmount{
		{ClientID: "", Name: "Sem cliente", Amount: core.Cents(36500), Pending: core.Cents(16500)},
		{ClientID: "ana", Name: "Ana", Amount: core.Cents(2990), Pending: core.Cents(2990)},
		{ClientID: "bia", Name: "Bia", Amount: core.Cents(1000), Pending: core.Cents(1000)},
	}
	if len(got) != len(want) {
		t.Fatalf("breakdown = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInvoiceTrend(t *testing.T) {
	ds := testDataset()
	trend := InvoiceTrend(ds, month(2024, time.April), 3, core.NewDate(2024, 4, 1))

	want := []struct {
		month    core.YearMonth
		total    int64
		received int64
	}{
		{month(2024, time.February), 18990, 0},
		{month(2024, time.March), 18990, 0},
		{month(2024, time.April), 40490, 20000},
	}
	if len(trend) != len(want) {
		t.Fatalf("trend = %+v", trend)
	}
	for i, w := range want {
		if trend[i].Month != w.month || trend[i].Total.Cents != w.total || trend[i].Received.Cents != w.received {
			t.Errorf("point %d = %+v, want %+v", i, trend[i], w)
		}
	}

	if n := len(InvoiceTrend(ds, month(2024, time.April), 0, core.NewDate(2024, 4, 1))); n != 1 {
		t.Errorf("zero months gave %d points", n)
	}
	if n := len(InvoiceTrend(ds, month(2024, time.April), 100, core.NewDate(2024, 4, 1))); n != 24 {
		t.Errorf("window not capped: %d points", n)
	}
}

func TestRequirePro(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		profile core.Profile
		allowed bool
	}{
		{"pro plan", core.Profile{Plan: core.PlanPro}, true},
		{"free plan", core.Profile{Plan: core.PlanFree}, false},
		{"running trial", core.Profile{Plan: core.PlanFree, TrialExpiresAt: &future}, true},
		{"expired trial", core.Profile{Plan: core.PlanFree, TrialExpiresAt: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequirePro(tt.profile, now)
			if tt.allowed && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.allowed && !errors.Is(err, core.ErrProRequired) {
				t.Fatalf("got %v, want ErrProRequired", err)
			}
		})
	}
}
