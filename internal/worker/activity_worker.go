package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"faturas/internal/amqp"
	"faturas/internal/core"
	"faturas/internal/storage"
)

var errInvalidEvent = errors.New("invalid payment event")

// ActivityWorker stores consumed payment events in each user's activity log.
type ActivityWorker struct {
	log storage.ActivityLog
	now func() time.Time
}

func NewActivityWorker(log storage.ActivityLog) *ActivityWorker {
	return &ActivityWorker{log: log, now: time.Now}
}

// HandlePaymentEvent processes a single payment event from AMQP. Events
// that can never be stored are acknowledged and dropped.
func (w *ActivityWorker) HandlePaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error {
	if ev == nil {
		return nil
	}
	if err := validateEvent(ev); err != nil {
		slog.WarnContext(ctx, "Dropping payment event", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		return nil
	}

	occurred := ev.Timestamp
	if occurred.IsZero() {
		occurred = w.now()
	}

	a := storage.Activity{
		UserID:     ev.UserID,
		Kind:       ev.Kind,
		ItemID:     ev.ItemID,
		Status:     ev.Status,
		Month:      ev.Month,
		Detail:     Describe(ev),
		OccurredAt: occurred.UTC(),
	}
	if err := w.log.RecordActivity(ctx, a); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	slog.InfoContext(ctx, "Payment activity recorded",
		"kind", ev.Kind,
		"user_id", ev.UserID,
		"item_id", ev.ItemID)
	return nil
}

func validateEvent(ev *amqp.PaymentEvent) error {
	if strings.TrimSpace(ev.UserID) == "" {
		return fmt.Errorf("%w: missing user id", errInvalidEvent)
	}
	switch ev.Kind {
	case amqp.KindStatusChanged, amqp.KindBulkPaid, amqp.KindInstallmentOverdue:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", errInvalidEvent, ev.Kind)
	}
}

// Describe renders the human readable line shown in the activity log.
func Describe(ev *amqp.PaymentEvent) string {
	amount := core.Cents(ev.AmountCents).Format()
	switch ev.Kind {
	case amqp.KindBulkPaid:
		return fmt.Sprintf("%d itens marcados como pagos (%s)", ev.Count, amount)
	case amqp.KindInstallmentOverdue:
		return fmt.Sprintf("%s venceu sem pagamento (%s)", label(ev), amount)
	default:
		return fmt.Sprintf("%s: %s (%s)", label(ev), ev.Status, amount)
	}
}

func label(ev *amqp.PaymentEvent) string {
	if ev.Description != "" {
		return ev.Description
	}
	if ev.ItemType != "" {
		return ev.ItemType
	}
	return "Item"
}
