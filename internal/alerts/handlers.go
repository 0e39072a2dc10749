package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Handlers below decode payloads and hand the envelope to the mailer.
type taskHandlers struct {
	mailer Mailer
}

func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (h *taskHandlers) send(ctx context.Context, taskType string, env EmailEnvelope, attrs ...any) error {
	if err := h.mailer.Send(ctx, env); err != nil {
		slog.ErrorContext(ctx, "email send failed", append([]any{"task", taskType, "to", env.To, "error", err}, attrs...)...)
		return err
	}
	slog.InfoContext(ctx, "email sent", append([]any{"task", taskType, "to", env.To}, attrs...)...)
	return nil
}

func (h *taskHandlers) welcomeEmail(ctx context.Context, t *asynq.Task) error {
	var p WelcomeEmailPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope, "user_id", p.UserID)
}

func (h *taskHandlers) orderConfirmation(ctx context.Context, t *asynq.Task) error {
	var p OrderConfirmationPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope, "order_id", p.OrderID)
}

func (h *taskHandlers) bookingConfirmation(ctx context.Context, t *asynq.Task) error {
	var p BookingConfirmationPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope, "booking_id", p.BookingID, "order_id", p.OrderID)
}

func (h *taskHandlers) orderStatusChanged(ctx context.Context, t *asynq.Task) error {
	var p OrderStatusChangedPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope, "order_id", p.OrderID, "status", p.Status)
}

func (h *taskHandlers) passwordReset(ctx context.Context, t *asynq.Task) error {
	var p PasswordResetPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope)
}

func (h *taskHandlers) messageNew(ctx context.Context, t *asynq.Task) error {
	var p MessageNewPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	return h.send(ctx, t.Type(), p.Envelope, "conversation_id", p.ConversationID)
}
