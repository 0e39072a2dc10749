package alerts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Task type constants
const (
	TaskWelcomeEmail        = "email:welcome"
	TaskOrderConfirmation   = "email:order_confirmation"
	TaskBookingConfirmation = "email:booking_confirmation"
	TaskOrderStatusChanged  = "email:order_status_changed"
	TaskPasswordReset       = "email:password_reset"
	TaskMessageNew          = "email:message_new"
)

const (
	QueueEmails = "emails"
	QueueAlerts = "alerts"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type WelcomeEmailPayload struct {
	UserID   int64         `json:"user_id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	UserType string        `json:"user_type"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Sent to the buyer once an order commits.
type OrderConfirmationPayload struct {
	OrderID  int64           `json:"order_id"`
	BuyerID  int64           `json:"buyer_id"`
	Email    string          `json:"email"`
	Amount   decimal.Decimal `json:"amount"`
	Items    int             `json:"items"`
	Envelope EmailEnvelope   `json:"envelope"`
	SentAt   time.Time       `json:"sent_at"`
}

// Sent to the buyer after an event booking, with the wallet pass links.
type BookingConfirmationPayload struct {
	BookingID       int64           `json:"booking_id"`
	OrderID         int64           `json:"order_id"`
	EventID         int64           `json:"event_id"`
	EventName       string          `json:"event_name"`
	Email           string          `json:"email"`
	Quantity        int             `json:"quantity"`
	Amount          decimal.Decimal `json:"amount"`
	GoogleWalletURL string          `json:"google_wallet_url"`
	AppleWalletURL  string          `json:"apple_wallet_url"`
	Envelope        EmailEnvelope   `json:"envelope"`
	SentAt          time.Time       `json:"sent_at"`
}

// Sent to the buyer when a seller moves their items.
type OrderStatusChangedPayload struct {
	OrderID  int64         `json:"order_id"`
	BuyerID  int64         `json:"buyer_id"`
	SellerID int64         `json:"seller_id"`
	Email    string        `json:"email"`
	Status   string        `json:"status"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

type PasswordResetPayload struct {
	Email     string        `json:"email"`
	Code      string        `json:"code"`
	Envelope  EmailEnvelope `json:"envelope"`
	Requested time.Time     `json:"requested"`
}

// Sent to the other participants when a chat message arrives.
type MessageNewPayload struct {
	ConversationID int64         `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	SenderName     string        `json:"sender_name"`
	Email          string        `json:"email"`
	Envelope       EmailEnvelope `json:"envelope"`
	SentAt         time.Time     `json:"sent_at"`
}
