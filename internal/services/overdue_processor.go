package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"faturas/internal/amqp"
	"faturas/internal/core"
	"faturas/internal/storage"
)

// OverdueProcessor publishes a reminder for every installment that became
// overdue since the previous run: still pending and due yesterday.
type OverdueProcessor struct {
	store       storage.Reader
	events      EventPublisher
	loc         *time.Location
	concurrency int
}

// NewOverdueProcessor creates a new overdue installment processor
func NewOverdueProcessor(store storage.Reader, events EventPublisher, loc *time.Location, concurrency int) *OverdueProcessor {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &OverdueProcessor{
		store:       store,
		events:      events,
		loc:         loc,
		concurrency: concurrency,
	}
}

// ProcessOverdue sweeps every user and returns how many reminders were sent.
// A failing user is logged and skipped.
func (p *OverdueProcessor) ProcessOverdue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.events == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	dueDay := core.DateOf(now, p.loc).AddDays(-1)
	slog.InfoContext(ctx, "Processing overdue installments",
		"users", len(users),
		"due_date", dueDay.String())

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, userID := range users {
		g.Go(func() error {
			n, err := p.processUser(gctx, userID, dueDay)
			sent.Add(int64(n))
			if err != nil {
				slog.ErrorContext(gctx, "Failed to process overdue installments",
					"user_id", userID,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "Overdue installment processing complete",
		"reminders", sent.Load(),
		"users", len(users))

	return int(sent.Load()), ctx.Err()
}

func (p *OverdueProcessor) processUser(ctx context.Context, userID string, dueDay core.Date) (int, error) {
	ds, err := p.store.LoadCollection(ctx, userID, core.CollectionLoans)
	if err != nil {
		return 0, fmt.Errorf("load loans: %w", err)
	}

	sent := 0
	for _, item := range OverdueSince(ds.Loans, dueDay) {
		ev := amqp.NewPaymentEvent(amqp.KindInstallmentOverdue, userID)
		ev.ItemID = item.ID
		ev.ItemType = string(item.Type)
		ev.Status = string(item.Status)
		ev.Month = item.DueDate.YearMonth().String()
		ev.Description = item.Description
		ev.AmountCents = item.Value.Cents

		if err := p.events.PublishPaymentEvent(ctx, ev); err != nil {
			return sent, fmt.Errorf("publish reminder %s: %w", ev.ItemID, err)
		}
		sent++
	}
	return sent, nil
}

// OverdueSince lists the pending installments of valid loans due exactly on day.
func OverdueSince(loans []core.Loan, day core.Date) []core.LineItem {
	var out []core.LineItem
	for _, loan := range loans {
		if loan.CheckIntegrity() != nil {
			continue
		}
		for _, payer := range loan.Payers() {
			for _, in := range payer.Account.Installments {
				if in.Status != core.StatusPendente || !in.DueDate.Equal(day) {
					continue
				}
				ref := core.ItemRef{Type: core.ItemInstallment, LoanID: loan.ID, Payer: payer.Key, Number: in.Number}
				out = append(out, core.LineItem{
					ID:          ref.ID(),
					Type:        core.ItemInstallment,
					Description: loan.Description,
					ClientID:    payer.Account.ClientID,
					CardID:      loan.CardID,
					Value:       in.Value,
					DueDate:     in.DueDate,
					Status:      core.StatusAtrasado,
					Ref:         ref,
				})
			}
		}
	}
	return out
}
