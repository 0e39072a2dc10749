package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

// ErrDisabled is returned by every Enqueue function until Init has run.
var ErrDisabled = errors.New("alerts: task queue not configured")

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var (
	client      Enqueuer
	asynqClient *asynq.Client

	appURL   = "http://localhost:3000"
	resetTTL = 15 * time.Minute
)

// Init connects the shared task client to Redis.
func Init(cfg *config.Config) {
	asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	client = asynqClient
	configure(cfg)
	slog.Info("asynq client initialized", "addr", cfg.RedisAddr)
}

func configure(cfg *config.Config) {
	if cfg.AppURL != "" {
		appURL = strings.TrimRight(cfg.AppURL, "/")
	}
	if cfg.PasswordResetTTL > 0 {
		resetTTL = cfg.PasswordResetTTL
	}
}

// SetEnqueuer replaces the task client; nil disables enqueueing.
func SetEnqueuer(e Enqueuer) {
	client = e
}

// Close releases the client opened by Init.
func Close() {
	if asynqClient != nil {
		_ = asynqClient.Close()
		asynqClient = nil
	}
	client = nil
}

func enqueue(taskType, queue string, payload any) error {
	if client == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, b, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	if _, err := client.Enqueue(task, asynq.Queue(queue)); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

// EnqueueWelcomeEmail schedules a welcome email to the user
func EnqueueWelcomeEmail(userID int64, email, name, userType string) error {
	subject := fmt.Sprintf("Welcome to DutyDinar, %s!", name)
	body := fmt.Sprintf("Hi %s,\n\nYour %s account is ready.\n\nOpen DutyDinar: %s\n", name, userType, appURL)

	payload := WelcomeEmailPayload{
		UserID:   userID,
		Name:     name,
		Email:    email,
		UserType: userType,
		Envelope: EmailEnvelope{To: email, Subject: subject, Body: body},
		SentAt:   time.Now(),
	}
	return enqueue(TaskWelcomeEmail, QueueEmails, payload)
}

// EnqueueOrderConfirmation tells the buyer their order was placed
func EnqueueOrderConfirmation(orderID, buyerID int64, email string, amount decimal.Decimal, items int) error {
	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("Order #%d received", orderID),
		Body: fmt.Sprintf("Thanks for your order.\n\nOrder #%d with %d item(s), total %s.\n\nTrack it at %s/orders/%d\n",
			orderID, items, amount.StringFixed(2), appURL, orderID),
	}
	payload := OrderConfirmationPayload{OrderID: orderID, BuyerID: buyerID, Email: email, Amount: amount, Items: items, Envelope: env, SentAt: time.Now()}
	return enqueue(TaskOrderConfirmation, QueueEmails, payload)
}

// EnqueueBookingConfirmation sends the ticket email with wallet pass links.
// Envelope and SentAt are filled in here.
func EnqueueBookingConfirmation(p BookingConfirmationPayload) error {
	p.Envelope = EmailEnvelope{
		To:      p.Email,
		Subject: fmt.Sprintf("Your tickets for %s", p.EventName),
		Body: fmt.Sprintf("Booking #%d is confirmed: %d ticket(s) for %s, total %s.\n\nAdd to Google Wallet: %s\nAdd to Apple Wallet: %s\n",
			p.BookingID, p.Quantity, p.EventName, p.Amount.StringFixed(2), p.GoogleWalletURL, p.AppleWalletURL),
	}
	p.SentAt = time.Now()
	return enqueue(TaskBookingConfirmation, QueueEmails, p)
}

// EnqueueOrderStatusChanged notifies the buyer that a seller updated their items
func EnqueueOrderStatusChanged(orderID, buyerID, sellerID int64, email, status string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("Order #%d is now %s", orderID, status),
		Body:    fmt.Sprintf("A seller updated items in order #%d to %q.\n\nDetails: %s/orders/%d\n", orderID, status, appURL, orderID),
	}
	payload := OrderStatusChangedPayload{OrderID: orderID, BuyerID: buyerID, SellerID: sellerID, Email: email, Status: status, Envelope: env, SentAt: time.Now()}
	return enqueue(TaskOrderStatusChanged, QueueEmails, payload)
}

// EnqueuePasswordReset schedules the reset code email
func EnqueuePasswordReset(email, name, code string) error {
	minutes := int(resetTTL.Minutes())
	body := fmt.Sprintf("Hello %s,\n\nYour DutyDinar password reset code is %s.\n\nIt expires in %d minutes. If you did not request this, no action is required.\n",
		name, code, minutes)

	payload := PasswordResetPayload{
		Email:     email,
		Code:      code,
		Envelope:  EmailEnvelope{To: email, Subject: "Password reset code", Body: body},
		Requested: time.Now(),
	}
	return enqueue(TaskPasswordReset, QueueEmails, payload)
}

const previewRunes = 140

// EnqueueNewMessage emails a participant about an unread chat message
func EnqueueNewMessage(conversationID, senderID int64, senderName, email, preview string) error {
	if r := []rune(preview); len(r) > previewRunes {
		preview = string(r[:previewRunes-1]) + "…"
	}
	env := EmailEnvelope{
		To:      email,
		Subject: fmt.Sprintf("New message from %s", senderName),
		Body:    fmt.Sprintf("%s wrote:\n\n%s\n\nReply at %s/messages/%d\n", senderName, preview, appURL, conversationID),
	}
	payload := MessageNewPayload{ConversationID: conversationID, SenderID: senderID, SenderName: senderName, Email: email, Envelope: env, SentAt: time.Now()}
	return enqueue(TaskMessageNew, QueueAlerts, payload)
}
