package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snackngo/internal/chat"
	"snackngo/internal/model"
)

// StaleLister is the slice of the order store the worker needs.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	Touch(ctx context.Context, conversationID string) error
}

// Sender is the outbound side of the conversation transport.
type Sender interface {
	Send(ctx context.Context, conversationID string, msg chat.Message) error
}

// ReminderWorker periodically re-sends the current stage's prompt to orders
// that have been idle in a non-terminal stage for too long.
type ReminderWorker struct {
	orders    StaleLister
	sender    Sender
	interval  time.Duration
	idleAfter time.Duration
	batchSize int
}

func NewReminderWorker(orders StaleLister, sender Sender) *ReminderWorker {
	return &ReminderWorker{
		orders:    orders,
		sender:    sender,
		interval:  15 * time.Minute,
		idleAfter: 2 * time.Hour,
		batchSize: 20,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	slog.Info("starting reminder worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				slog.Error("reminder batch failed", "error", err)
			}
		}
	}
}

func (w *ReminderWorker) processBatch(ctx context.Context) error {
	cutoff := time.Now().Add(-w.idleAfter)
	stale, err := w.orders.ListStale(ctx, cutoff, w.batchSize)
	if err != nil {
		return fmt.Errorf("list stale orders: %w", err)
	}

	for _, order := range stale {
		nudge := chat.Message{
			Kind: chat.MessageInfo,
			Text: "Just checking in — your order submission isn't finished yet.",
		}
		if err := w.sender.Send(ctx, order.ConversationID, nudge); err != nil {
			slog.Error("nudge failed", "order_id", order.ID, "error", err)
			continue
		}
		if err := w.sender.Send(ctx, order.ConversationID, chat.StagePrompt(order.Status)); err != nil {
			slog.Error("nudge prompt failed", "order_id", order.ID, "error", err)
			continue
		}
		if err := w.orders.Touch(ctx, order.ConversationID); err != nil {
			slog.Error("touch after nudge failed", "order_id", order.ID, "error", err)
		}
		slog.Info("nudged stale order", "order_id", order.ID, "stage", order.Status)
	}

	return nil
}
