package http

import (
	"net/http"

	"github.com/samber/lo"

	"faturas/internal/core"
	"faturas/internal/services"
	"faturas/internal/session"
)

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request, st *session.State) error {
	writeJSON(w, http.StatusOK, lo.Map(st.Dataset().Cards, func(c core.Card, _ int) cardView { return cardOf(c) }))
	return nil
}

func (s *Server) handleCardUtilization(w http.ResponseWriter, r *http.Request, st *session.State) error {
	usage := services.CardsUtilization(st.Dataset())
	writeJSON(w, http.StatusOK, lo.Map(usage, func(u core.CardUsage, _ int) cardUsageView { return cardUsageOf(u) }))
	return nil
}

type cardRequest struct {
	Name       string `json:"name"`
	Limit      string `json:"limit"`
	ClosingDay int    `json:"closingDay"`
	DueDay     int    `json:"dueDay"`
	Color      string `json:"color"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	limit, err := parseAmount("limit", req.Limit, true)
	if err != nil {
		return err
	}
	card, err := s.ledger.CreateCard(r.Context(), st.UserID(), core.Card{
		Name:       req.Name,
		Limit:      limit,
		ClosingDay: req.ClosingDay,
		DueDay:     req.DueDay,
		Color:      req.Color,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, cardOf(card))
	return nil
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request, st *session.State) error {
	writeJSON(w, http.StatusOK, lo.Map(st.Dataset().Clients, func(c core.Client, _ int) clientView { return clientOf(c) }))
	return nil
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	client, err := s.ledger.CreateClient(r.Context(), st.UserID(), core.Client{Name: req.Name})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, clientOf(client))
	return nil
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request, st *session.State) error {
	writeJSON(w, http.StatusOK, lo.Map(st.Dataset().Loans, func(l core.Loan, _ int) loanView { return loanOf(l) }))
	return nil
}

type payerRequest struct {
	ClientID string `json:"clientId"`
	Share    string `json:"share"`
}

type loanRequest struct {
	Description       string        `json:"description"`
	TotalValue        string        `json:"totalValue"`
	InstallmentsCount int           `json:"installmentsCount"`
	PurchaseDate      core.Date     `json:"purchaseDate"`
	CardID            string        `json:"cardId"`
	FirstDueDate      core.Date     `json:"firstDueDate"`
	ClientID          string        `json:"clientId"`
	Shared            bool          `json:"shared"`
	Person1           *payerRequest `json:"person1"`
	Person2           *payerRequest `json:"person2"`
}

func (req loanRequest) input() (services.LoanInput, error) {
	total, err := parseAmount("totalValue", req.TotalValue, false)
	if err != nil {
		return services.LoanInput{}, err
	}
	in := services.LoanInput{
		Description:       req.Description,
		TotalValue:        total,
		InstallmentsCount: req.InstallmentsCount,
		PurchaseDate:      req.PurchaseDate,
		CardID:            req.CardID,
		FirstDueDate:      req.FirstDueDate,
		ClientID:          req.ClientID,
		Shared:            req.Shared,
	}
	if !req.Shared {
		return in, nil
	}
	if in.Person1, err = req.Person1.input("person1"); err != nil {
		return services.LoanInput{}, err
	}
	if in.Person2, err = req.Person2.input("person2"); err != nil {
		return services.LoanInput{}, err
	}
	return in, nil
}

func (p *payerRequest) input(field string) (services.PayerInput, error) {
	if p == nil {
		return services.PayerInput{}, nil
	}
	share, err := parseAmount(field+".share", p.Share, true)
	if err != nil {
		return services.PayerInput{}, err
	}
	return services.PayerInput{ClientID: p.ClientID, ShareAmount: share}, nil
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req loanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	loan, err := s.ledger.CreateLoan(r.Context(), st.UserID(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, loanOf(loan))
	return nil
}

func (s *Server) handleUpdateLoan(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req struct {
		Description *string `json:"description"`
		CardID      *string `json:"cardId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	loan, err := s.ledger.UpdateLoan(r.Context(), st.UserID(), r.PathValue("id"), services.LoanPatch{
		Description: req.Description,
		CardID:      req.CardID,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, loanOf(loan))
	return nil
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request, st *session.State) error {
	writeJSON(w, http.StatusOK, lo.Map(st.Dataset().Subscriptions, func(sub core.Subscription, _ int) subscriptionView {
		return subscriptionOf(sub)
	}))
	return nil
}

type subscriptionRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	DueDay      int    `json:"dueDay"`
	CardID      string `json:"cardId"`
	ClientID    string `json:"clientId"`
	Active      *bool  `json:"active"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req subscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		return err
	}
	sub, err := s.ledger.CreateSubscription(r.Context(), st.UserID(), core.Subscription{
		Description: req.Description,
		Amount:      amount,
		DueDay:      req.DueDay,
		CardID:      req.CardID,
		ClientID:    req.ClientID,
		Active:      req.Active == nil || *req.Active,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, subscriptionOf(sub))
	return nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, st *session.State) error {
	expenses := st.Dataset().Expenses
	month, err := parseMonth(r.URL.Query(), "month", core.YearMonth{})
	if err != nil {
		return err
	}
	if !month.IsZero() {
		expenses = lo.Filter(expenses, func(e core.Expense, _ int) bool { return month.Contains(e.Date) })
	}
	writeJSON(w, http.StatusOK, lo.Map(expenses, func(e core.Expense, _ int) expenseView { return expenseOf(e) }))
	return nil
}

type expenseRequest struct {
	Description string    `json:"description"`
	Value       string    `json:"value"`
	Date        core.Date `json:"date"`
	Category    string    `json:"category"`
	CardID      string    `json:"cardId"`
	ClientID    string    `json:"clientId"`
	Status      string    `json:"status"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	value, err := parseAmount("value", req.Value, false)
	if err != nil {
		return err
	}
	exp, err := s.ledger.CreateExpense(r.Context(), st.UserID(), core.Expense{
		Description: req.Description,
		Value:       value,
		Date:        req.Date,
		Category:    req.Category,
		CardID:      req.CardID,
		ClientID:    req.ClientID,
		Status:      core.Status(req.Status),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, expenseOf(exp))
	return nil
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request, st *session.State) error {
	incomes := st.Dataset().Incomes
	month, err := parseMonth(r.URL.Query(), "month", core.YearMonth{})
	if err != nil {
		return err
	}
	if !month.IsZero() {
		incomes = lo.Filter(incomes, func(i core.Income, _ int) bool { return month.Contains(i.Date) })
	}
	writeJSON(w, http.StatusOK, lo.Map(incomes, func(i core.Income, _ int) incomeView { return incomeOf(i) }))
	return nil
}

type incomeRequest struct {
	Description string    `json:"description"`
	Value       string    `json:"value"`
	Date        core.Date `json:"date"`
	ClientID    string    `json:"clientId"`
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request, st *session.State) error {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	value, err := parseAmount("value", req.Value, false)
	if err != nil {
		return err
	}
	income, err := s.ledger.CreateIncome(r.Context(), st.UserID(), core.Income{
		Description: req.Description,
		Value:       value,
		Date:        req.Date,
		ClientID:    req.ClientID,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, incomeOf(income))
	return nil
}

func (s *Server) handleDelete(c core.Collection) apiFunc {
	return func(w http.ResponseWriter, r *http.Request, st *session.State) error {
		if err := s.ledger.Delete(r.Context(), st.UserID(), c, r.PathValue("id")); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}
