package http

import (
	"net/http"
	"strings"

	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/services"
	"faturas/internal/session"
)

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request, st *session.State) error {
	q, err := parseInvoiceQuery(r.URL.Query(), s.invoices.CurrentMonth())
	if err != nil {
		return err
	}
	ds := st.Dataset()
	res := s.invoices.Invoice(st.UserID(), ds, q)
	if len(res.Skipped) > 0 {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Malformed records left out of invoice",
			applog.FieldMonth, q.Month.String(),
			"skipped", len(res.Skipped))
	}
	writeJSON(w, http.StatusOK, invoiceOf(q.Month, res, ds))
	return nil
}

type itemStatusRequest struct {
	ItemID string `json:"itemId"`
	Status string `json:"status"`
}

func (s *Server) handleSetItemStatus(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req itemStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	itemID := strings.TrimSpace(req.ItemID)
	status := core.Status(strings.TrimSpace(req.Status))
	if err := s.tracker.SetItemStatus(r.Context(), st.UserID(), itemID, status); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"itemId": itemID, "status": string(status)})
	return nil
}

type payAllResponse struct {
	Updated        int    `json:"updated"`
	NothingPending bool   `json:"nothingPending"`
	Message        string `json:"message"`
}

// handlePayAll marks every unpaid item of the selected view as paid.
func (s *Server) handlePayAll(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var filter invoiceFilter
	if err := decodeJSON(w, r, &filter); err != nil {
		return err
	}
	q, err := filter.query(s.invoices.CurrentMonth())
	if err != nil {
		return err
	}

	res := s.invoices.Invoice(st.UserID(), st.Dataset(), q)
	out, err := s.tracker.MarkAllPaid(r.Context(), st.UserID(), res.Items)
	if err != nil {
		return err
	}

	resp := payAllResponse{Updated: out.Updated, NothingPending: out.NothingPending}
	if out.NothingPending {
		resp.Message = "Nenhum item pendente"
	} else {
		resp.Message = "Itens marcados como pagos"
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, st *session.State) error {
	month, err := parseMonth(r.URL.Query(), "month", s.invoices.CurrentMonth())
	if err != nil {
		return err
	}
	ds := st.Dataset()
	res := s.invoices.Invoice(st.UserID(), ds, services.InvoiceQuery{Month: month})
	b := services.MonthBalance(ds, month, services.Summarize(res.Items).TotalInvoice)

	writeJSON(w, http.StatusOK, balanceView{
		Month:   b.Month,
		Incomes: money(b.Incomes),
		Invoice: money(b.Invoice),
		Balance: money(b.Balance),
	})
	return nil
}
