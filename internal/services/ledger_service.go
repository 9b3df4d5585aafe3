package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"faturas/internal/core"
	"faturas/internal/storage"
)

// LedgerService creates, edits and deletes the records a user keeps: cards,
// clients, loans, subscriptions, expenses and incomes. Input is validated
// before anything is written.
type LedgerService struct {
	store    Store
	notifier ChangeNotifier
	newID    func() string
}

func NewLedgerService(store Store, notifier ChangeNotifier) *LedgerService {
	return &LedgerService{
		store:    store,
		notifier: notifier,
		newID:    uuid.NewString,
	}
}

// LoanPatch carries the loan fields that can change after creation.
// Amounts and installment layout are fixed; delete and re-enter instead.
type LoanPatch struct {
	Description *string
	CardID      *string
}

func (s *LedgerService) CreateCard(ctx context.Context, userID string, c core.Card) (core.Card, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Card{}, err
	}
	c.ID = s.newID()
	if err := s.commit(ctx, userID, storage.PutCard{Card: c}); err != nil {
		return core.Card{}, fmt.Errorf("save card: %w", err)
	}
	slog.InfoContext(ctx, "Card created", "user_id", userID, "card_id", c.ID,
		"closing_day", c.ClosingDay, "due_day", c.DueDay)
	return c, nil
}

func (s *LedgerService) CreateClient(ctx context.Context, userID string, c core.Client) (core.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}
	c.ID = s.newID()
	if err := s.commit(ctx, userID, storage.PutClient{Client: c}); err != nil {
		return core.Client{}, fmt.Errorf("save client: %w", err)
	}
	slog.InfoContext(ctx, "Client created", "user_id", userID, "client_id", c.ID)
	return c, nil
}

// CreateLoan builds the installment plan of a purchase and stores it. When
// FirstDueDate is not given it is derived from the card's cycle.
func (s *LedgerService) CreateLoan(ctx context.Context, userID string, in LoanInput) (core.Loan, error) {
	if err := in.Validate(); err != nil {
		return core.Loan{}, err
	}
	card, err := s.card(ctx, userID, in.CardID)
	if err != nil {
		return core.Loan{}, err
	}

	loan, err := BuildLoan(s.newID(), in, card)
	if err != nil {
		return core.Loan{}, err
	}
	if err := s.commit(ctx, userID, storage.PutLoan{Loan: loan}); err != nil {
		return core.Loan{}, fmt.Errorf("save loan: %w", err)
	}
	slog.InfoContext(ctx, "Loan created",
		"user_id", userID,
		"loan_id", loan.ID,
		"shared", loan.Shared(),
		"installments", loan.InstallmentsCount,
		"total_cents", loan.TotalValue.Cents)
	return loan, nil
}

// UpdateLoan edits a loan's description or card. Malformed loans can only be deleted.
func (s *LedgerService) UpdateLoan(ctx context.Context, userID, id string, patch LoanPatch) (core.Loan, error) {
	loan, err := s.store.GetLoan(ctx, userID, id)
	if err != nil {
		return core.Loan{}, err
	}
	if err := loan.CheckIntegrity(); err != nil {
		return core.Loan{}, err
	}

	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc == "" {
			return core.Loan{}, core.ErrEmptyDescription
		}
		loan.Description = desc
	}
	if patch.CardID != nil {
		if _, err := s.card(ctx, userID, *patch.CardID); err != nil {
			return core.Loan{}, err
		}
		loan.CardID = *patch.CardID
	}

	if err := s.commit(ctx, userID, storage.PutLoan{Loan: loan}); err != nil {
		return core.Loan{}, fmt.Errorf("update loan: %w", err)
	}
	slog.InfoContext(ctx, "Loan updated", "user_id", userID, "loan_id", id)
	return loan, nil
}

func (s *LedgerService) CreateSubscription(ctx context.Context, userID string, sub core.Subscription) (core.Subscription, error) {
	sub.Description = strings.TrimSpace(sub.Description)
	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}
	if _, err := s.card(ctx, userID, sub.CardID); err != nil {
		return core.Subscription{}, err
	}
	sub.ID = s.newID()
	if err := s.commit(ctx, userID, storage.PutSubscription{Subscription: sub}); err != nil {
		return core.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}
	slog.InfoContext(ctx, "Subscription created", "user_id", userID, "subscription_id", sub.ID,
		"amount_cents", sub.Amount.Cents, "due_day", sub.DueDay)
	return sub, nil
}

func (s *LedgerService) CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	e.Description = strings.TrimSpace(e.Description)
	if e.Status == "" {
		e.Status = core.StatusPendente
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.card(ctx, userID, e.CardID); err != nil {
		return core.Expense{}, err
	}
	e.ID = s.newID()
	if err := s.commit(ctx, userID, storage.PutExpense{Expense: e}); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense created", "user_id", userID, "expense_id", e.ID,
		"amount_cents", e.Value.Cents, "card_id", e.CardID)
	return e, nil
}

func (s *LedgerService) CreateIncome(ctx context.Context, userID string, in core.Income) (core.Income, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	in.ID = s.newID()
	if err := s.commit(ctx, userID, storage.PutIncome{Income: in}); err != nil {
		return core.Income{}, fmt.Errorf("save income: %w", err)
	}
	slog.InfoContext(ctx, "Income created", "user_id", userID, "income_id", in.ID,
		"amount_cents", in.Value.Cents)
	return in, nil
}

// Delete removes a record. Malformed loans are deletable like any other.
func (s *LedgerService) Delete(ctx context.Context, userID string, c core.Collection, id string) error {
	if c == core.CollectionPaidMarkers {
		return fmt.Errorf("collection %s: %w", c, core.ErrNotFound)
	}
	if err := s.commit(ctx, userID, storage.Delete{Target: c, ID: id}); err != nil {
		return fmt.Errorf("delete %s %s: %w", c, id, err)
	}
	slog.InfoContext(ctx, "Record deleted", "user_id", userID, "collection", c, "id", id)
	return nil
}

// card resolves an optional card reference. An empty id means no card.
func (s *LedgerService) card(ctx context.Context, userID, id string) (*core.Card, error) {
	if id == "" {
		return nil, nil
	}
	ds, err := s.store.LoadCollection(ctx, userID, core.CollectionCards)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	card, ok := ds.CardByID(id)
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	return &card, nil
}

func (s *LedgerService) commit(ctx context.Context, userID string, ops ...storage.Op) error {
	batch := storage.NewBatch(ops...)
	if err := s.store.Apply(ctx, userID, batch); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, batch.Collections()...)
	}
	return nil
}
