package http

import (
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"faturas/internal/core"
	"faturas/internal/middleware/identity"
	"faturas/internal/services"
	"faturas/internal/session"
	"faturas/internal/storage"
)

const (
	defaultTrendMonths   = 6
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request, st *session.State) error {
	if err := services.RequirePro(st.Profile(), s.invoices.Now()); err != nil {
		return err
	}
	q := r.URL.Query()
	end, err := parseMonth(q, "end", s.invoices.CurrentMonth())
	if err != nil {
		return err
	}
	months, err := parseIntParam(q, "months", defaultTrendMonths)
	if err != nil {
		return err
	}

	trend := services.InvoiceTrend(st.Dataset(), end, months, s.invoices.Today())
	writeJSON(w, http.StatusOK, lo.Map(trend, func(m core.MonthTotal, _ int) monthTotalView {
		return monthTotalView{Month: m.Month, Total: money(m.Total), Received: money(m.Received)}
	}))
	return nil
}

func (s *Server) handleClientBreakdown(w http.ResponseWriter, r *http.Request, st *session.State) error {
	if err := services.RequirePro(st.Profile(), s.invoices.Now()); err != nil {
		return err
	}
	month, err := parseMonth(r.URL.Query(), "month", s.invoices.CurrentMonth())
	if err != nil {
		return err
	}

	ds := st.Dataset()
	res := s.invoices.Invoice(st.UserID(), ds, services.InvoiceQuery{Month: month})
	breakdown := services.ClientBreakdown(res.Items, ds.ClientNames())
	writeJSON(w, http.StatusOK, lo.Map(breakdown, func(c core.ClientAmount, _ int) clientAmountView {
		return clientAmountView{ClientID: c.ClientID, Name: c.Name, Amount: money(c.Amount), Pending: money(c.Pending)}
	}))
	return nil
}

// handleActivity lists the payment history recorded by the activity worker.
// It reads the log directly and needs no session state.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) error {
	userID, _ := identity.FromContext(r.Context())
	limit, err := parseIntParam(r.URL.Query(), "limit", defaultActivityLimit)
	if err != nil {
		return err
	}
	limit = min(max(limit, 1), maxActivityLimit)

	if s.activity == nil {
		writeJSON(w, http.StatusOK, []activityView{})
		return nil
	}
	entries, err := s.activity.ListActivity(r.Context(), userID, limit)
	if err != nil {
		return fmt.Errorf("list activity: %w", err)
	}
	writeJSON(w, http.StatusOK, lo.Map(entries, func(a storage.Activity, _ int) activityView { return activityOf(a) }))
	return nil
}
