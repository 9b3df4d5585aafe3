package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"faturas/internal/cache"
	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/middleware/identity"
	"faturas/internal/services"
	"faturas/internal/session"
	"faturas/internal/snapshot"
	"faturas/internal/storage"
	"faturas/internal/storage/memory"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	sessions *session.Manager
}

// seedDataset: c1 closes on the 3rd and is due on the 10th.
//   - e1 on c1 2024-03-05 (resolves to April), e2 without card 2024-04-20
//   - i1 2024-04-05
//   - broken: a loan that cannot be read back
func seedDataset() core.Dataset {
	return core.Dataset{
		Cards:   []core.Card{{ID: "c1", Name: "Nubank", Limit: core.Cents(100000), ClosingDay: 3, DueDay: 10}},
		Clients: []core.Client{{ID: "ana", Name: "Ana"}, {ID: "bia", Name: "Bia"}},
		Loans:   []core.Loan{{ID: "broken", Description: "Quebrado", TotalValue: core.Cents(1000), Defect: "unreadable plan"}},
		Expenses: []core.Expense{
			{ID: "e1", Description: "Mercado", Value: core.Cents(10000), Date: core.NewDate(2024, 3, 5), CardID: "c1", Status: core.StatusPendente},
			{ID: "e2", Description: "Farmácia", Value: core.Cents(4500), Date: core.NewDate(2024, 4, 20), Status: core.StatusPendente},
		},
		Incomes: []core.Income{{ID: "i1", Description: "Salário", Value: core.Cents(500000), Date: core.NewDate(2024, 4, 5)}},
	}
}

func newTestEnv(t *testing.T, rateLimit int, ready func(context.Context) error) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	store.Seed("u1", seedDataset())
	store.Seed("pro", seedDataset())
	if err := store.SaveProfile(ctx, core.Profile{UserID: "pro", Plan: core.PlanPro}); err != nil {
		t.Fatal(err)
	}

	hub := snapshot.NewHub(store, nil)
	sessions := session.NewManager(store, hub, time.Hour, nil, nil)
	invoices := services.NewInvoiceService(cache.NewLRUCache[services.InvoiceResult](32, time.Minute), nil, time.UTC)
	sessions.OnTeardown = invoices.Invalidate

	srv := NewServer(":0", Deps{
		Sessions:           sessions,
		Invoices:           invoices,
		Tracker:            services.NewStatusTracker(store, nil, hub, nil, time.UTC),
		Ledger:             services.NewLedgerService(store, hub),
		Activity:           store,
		Auth:               identity.NewAuthenticator(identity.Config{DevHeader: true}),
		Metrics:            metrics.New(),
		Logger:             applog.New(applog.Config{Output: io.Discard}),
		Ready:              ready,
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() {
		srv.limiter.Stop()
		sessions.Close()
	})
	return &testEnv{srv: srv, store: store, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set(identity.DevHeader, user)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id", path)
		}
	}

	down := newTestEnv(t, 100, func(context.Context) error { return errors.New("database is locked") })
	if rr := down.do(t, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store = %d", rr.Code)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	env := newTestEnv(t, 100, nil)
	rr := env.do(t, http.MethodGet, "/api/invoice", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode[errorBody](t, rr)
	if body.Error == "" || !strings.HasPrefix(body.RequestID, "req_") {
		t.Errorf("body = %+v", body)
	}
}

type invoiceBody struct {
	Month string `json:"month"`
	Items []struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"items"`
	Summary struct {
		TotalInvoice moneyView `json:"totalInvoice"`
		Count        int       `json:"count"`
		PaidCount    int       `json:"paidCount"`
	} `json:"summary"`
	Skipped []skippedView `json:"skipped"`
}

func TestInvoicePaymentFlow(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	rr := env.do(t, http.MethodPost, "/api/loans", "u1", `{
		"description": "Geladeira",
		"totalValue": "300,00",
		"installmentsCount": 3,
		"purchaseDate": "2024-03-05",
		"cardId": "c1",
		"clientId": "ana"
	}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create loan status = %d: %s", rr.Code, rr.Body.String())
	}
	loan := decode[loanView](t, rr)
	if len(loan.Payers) != 1 || len(loan.Payers[0].Installments) != 3 {
		t.Fatalf("loan = %+v", loan)
	}
	if got := loan.Payers[0].Installments[0].DueDate.String(); got != "2024-04-10" {
		t.Errorf("first due date = %s, want 2024-04-10", got)
	}

	rr = env.do(t, http.MethodGet, "/api/invoice?month=2024-04&sort=type", "u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("invoice status = %d: %s", rr.Code, rr.Body.String())
	}
	inv := decode[invoiceBody](t, rr)
	if inv.Month != "2024-04" || inv.Summary.Count != 3 || inv.Summary.TotalInvoice.Cents != 24500 {
		t.Fatalf("invoice = %+v", inv)
	}
	if len(inv.Skipped) != 1 || inv.Skipped[0].ID != "broken" {
		t.Errorf("skipped = %+v", inv.Skipped)
	}

	rr = env.do(t, http.MethodPost, "/api/invoice/items/status", "u1", `{"itemId":"despesa:e1","status":"Paga"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set status = %d: %s", rr.Code, rr.Body.String())
	}
	inv = decode[invoiceBody](t, env.do(t, http.MethodGet, "/api/invoice?month=2024-04", "u1", ""))
	if inv.Summary.PaidCount != 1 {
		t.Errorf("paid count = %d, want 1", inv.Summary.PaidCount)
	}

	rr = env.do(t, http.MethodPost, "/api/invoice/pay-all", "u1", `{"month":"2024-04"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("pay-all = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[payAllResponse](t, rr); got.Updated != 2 || got.NothingPending {
		t.Errorf("pay-all = %+v", got)
	}
	if got := decode[payAllResponse](t, env.do(t, http.MethodPost, "/api/invoice/pay-all", "u1", `{"month":"2024-04"}`)); !got.NothingPending {
		t.Errorf("second pay-all = %+v", got)
	}

	inv = decode[invoiceBody](t, env.do(t, http.MethodGet, "/api/invoice?month=2024-04", "u1", ""))
	for _, it := range inv.Items {
		if it.Status != string(core.StatusPaga) {
			t.Errorf("item %s status = %s", it.ID, it.Status)
		}
	}

	bal := decode[balanceView](t, env.do(t, http.MethodGet, "/api/balance?month=2024-04", "u1", ""))
	if bal.Incomes.Cents != 500000 || bal.Balance.Cents != 475500 {
		t.Errorf("balance = %+v", bal)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"zero expense", http.MethodPost, "/api/expenses", `{"description":"x","value":"0","date":"2024-04-01"}`, http.StatusUnprocessableEntity},
		{"empty description", http.MethodPost, "/api/expenses", `{"description":" ","value":"10","date":"2024-04-01"}`, http.StatusUnprocessableEntity},
		{"unknown card", http.MethodPost, "/api/expenses", `{"description":"x","value":"10","date":"2024-04-01","cardId":"nope"}`, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/clients", `{"name":"Ana","age":3}`, http.StatusBadRequest},
		{"broken json", http.MethodPost, "/api/clients", `{"name":`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/clients", ``, http.StatusBadRequest},
		{"bad month", http.MethodGet, "/api/invoice?month=2024-13", ``, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/invoice?sort=amount", ``, http.StatusBadRequest},
		{"overdue is derived", http.MethodPost, "/api/invoice/items/status", `{"itemId":"despesa:e1","status":"Atrasado"}`, http.StatusUnprocessableEntity},
		{"unknown expense", http.MethodPost, "/api/invoice/items/status", `{"itemId":"despesa:nope","status":"Paga"}`, http.StatusNotFound},
		{"garbage item id", http.MethodPost, "/api/invoice/items/status", `{"itemId":"xyz","status":"Paga"}`, http.StatusNotFound},
		{"shares do not add up", http.MethodPost, "/api/loans", `{"description":"TV","totalValue":"100","installmentsCount":2,"purchaseDate":"2024-03-01","shared":true,"person1":{"clientId":"ana","share":"60"},"person2":{"clientId":"bia","share":"30"}}`, http.StatusUnprocessableEntity},
		{"same payer twice", http.MethodPost, "/api/loans", `{"description":"TV","totalValue":"100","installmentsCount":2,"purchaseDate":"2024-03-01","shared":true,"person1":{"clientId":"ana","share":"60"},"person2":{"clientId":"ana","share":"40"}}`, http.StatusUnprocessableEntity},
		{"edit malformed loan", http.MethodPatch, "/api/loans/broken", `{"description":"Novo"}`, http.StatusConflict},
		{"delete unknown card", http.MethodDelete, "/api/cards/nope", ``, http.StatusNotFound},
		{"trend on free plan", http.MethodGet, "/api/analytics/trend", ``, http.StatusForbidden},
		{"clients on free plan", http.MethodGet, "/api/analytics/clients", ``, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, "u1", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if body := decode[errorBody](t, rr); body.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestLedgerEndpoints(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	rr := env.do(t, http.MethodPost, "/api/cards", "u1", `{"name":"Inter","limit":"500,00","closingDay":25,"dueDay":5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create card = %d: %s", rr.Code, rr.Body.String())
	}
	card := decode[cardView](t, rr)
	if card.ID == "" || card.Limit.Cents != 50000 {
		t.Errorf("card = %+v", card)
	}

	rr = env.do(t, http.MethodPost, "/api/loans", "u1", `{
		"description": "Sofá",
		"totalValue": "100,01",
		"installmentsCount": 3,
		"purchaseDate": "2024-03-26",
		"cardId": "`+card.ID+`",
		"shared": true,
		"person1": {"clientId": "ana", "share": "50,01"},
		"person2": {"clientId": "bia", "share": "50"}
	}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create shared loan = %d: %s", rr.Code, rr.Body.String())
	}
	loan := decode[loanView](t, rr)
	if !loan.Shared || len(loan.Payers) != 2 || loan.Payers[1].Label != "P2" {
		t.Fatalf("loan = %+v", loan)
	}

	usage := decode[[]cardUsageView](t, env.do(t, http.MethodGet, "/api/cards/utilization", "u1", ""))
	var inter cardUsageView
	for _, u := range usage {
		if u.CardID == card.ID {
			inter = u
		}
	}
	if inter.Outstanding.Cents != 10001 || inter.DisplayPercentage != 20 {
		t.Errorf("usage = %+v", inter)
	}

	rr = env.do(t, http.MethodPatch, "/api/loans/"+loan.ID, "u1", `{"description":"Sofá novo"}`)
	if rr.Code != http.StatusOK || decode[loanView](t, rr).Description != "Sofá novo" {
		t.Errorf("patch = %d: %s", rr.Code, rr.Body.String())
	}

	loans := decode[[]loanView](t, env.do(t, http.MethodGet, "/api/loans", "u1", ""))
	var broken loanView
	for _, l := range loans {
		if l.ID == "broken" {
			broken = l
		}
	}
	if !broken.Invalid || broken.Notice == "" {
		t.Errorf("broken loan = %+v", broken)
	}
	if rr := env.do(t, http.MethodDelete, "/api/loans/broken", "u1", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete malformed loan = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/subscriptions", "u1", `{"description":"Streaming","amount":"29,90","dueDay":12,"cardId":"c1","clientId":"ana"}`)
	if rr.Code != http.StatusCreated || !decode[subscriptionView](t, rr).Active {
		t.Errorf("create subscription = %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/incomes", "u1", `{"description":"Freela","value":"800","date":"2024-05-05"}`)
	if rr.Code != http.StatusCreated {
		t.Errorf("create income = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[[]incomeView](t, env.do(t, http.MethodGet, "/api/incomes?month=2024-05", "u1", "")); len(got) != 1 {
		t.Errorf("May incomes = %d, want 1", len(got))
	}
	if got := decode[[]expenseView](t, env.do(t, http.MethodGet, "/api/expenses?month=2024-03", "u1", "")); len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("March expenses = %+v", got)
	}
	if rr := env.do(t, http.MethodDelete, "/api/expenses/e2", "u1", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete expense = %d", rr.Code)
	}
	if got := decode[[]expenseView](t, env.do(t, http.MethodGet, "/api/expenses", "u1", "")); len(got) != 1 {
		t.Errorf("expenses after delete = %d, want 1", len(got))
	}
}

func TestProAnalytics(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	rr := env.do(t, http.MethodGet, "/api/analytics/trend?end=2024-04&months=3", "pro", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("trend = %d: %s", rr.Code, rr.Body.String())
	}
	trend := decode[[]monthTotalView](t, rr)
	if len(trend) != 3 || trend[2].Month.String() != "2024-04" || trend[2].Total.Cents != 14500 {
		t.Errorf("trend = %+v", trend)
	}

	rr = env.do(t, http.MethodGet, "/api/analytics/clients?month=2024-04", "pro", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("clients = %d: %s", rr.Code, rr.Body.String())
	}
	breakdown := decode[[]clientAmountView](t, rr)
	if len(breakdown) != 1 || breakdown[0].Name != "Sem cliente" || breakdown[0].Amount.Cents != 14500 {
		t.Errorf("breakdown = %+v", breakdown)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, 100, nil)

	rr := env.do(t, http.MethodPost, "/api/session", "pro", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("sign in = %d", rr.Code)
	}
	sess := decode[sessionView](t, rr)
	if sess.UserID != "pro" || !sess.ProAccess || sess.Version == 0 {
		t.Errorf("session = %+v", sess)
	}
	if env.sessions.Active() != 1 {
		t.Fatalf("active = %d", env.sessions.Active())
	}

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodDelete, "/api/session", "pro", ""); rr.Code != http.StatusNoContent {
			t.Fatalf("sign out = %d", rr.Code)
		}
	}
	if env.sessions.Active() != 0 {
		t.Errorf("active after sign out = %d", env.sessions.Active())
	}
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t, 100, nil)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, a := range []storage.Activity{
		{UserID: "u1", Kind: "status_changed", ItemID: "despesa:e1", Status: "Paga", Detail: "Mercado: Paga (2024-04)"},
		{UserID: "u1", Kind: "bulk_paid", Detail: "2 itens marcados como pagos (2024-04)"},
		{UserID: "pro", Kind: "bulk_paid", Detail: "outro usuário"},
	} {
		a.OccurredAt = base.Add(time.Duration(i) * time.Minute)
		if err := env.store.RecordActivity(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got := decode[[]activityView](t, env.do(t, http.MethodGet, "/api/activity?limit=500", "u1", ""))
	if len(got) != 2 || got[0].Kind != "bulk_paid" {
		t.Errorf("activity = %+v", got)
	}
	if rr := env.do(t, http.MethodGet, "/api/activity?limit=x", "u1", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", rr.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	env := newTestEnv(t, 1, nil)

	if rr := env.do(t, http.MethodPost, "/api/clients", "u1", `{"name":"Caio"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first = %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/clients", "u1", `{"name":"Duda"}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Errorf("second = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/clients", "pro", `{"name":"Duda"}`); rr.Code != http.StatusCreated {
		t.Errorf("other user = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/clients", "u1", ""); rr.Code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", rr.Code)
	}
}
