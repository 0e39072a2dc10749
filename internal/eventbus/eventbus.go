package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrders   = "dutydinar.orders"
	TopicBookings = "dutydinar.bookings"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventTicketsBooked      = "event.booked"
)

// Publisher delivers domain events to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

// Envelope wraps every payload published by this service.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type OrderCreated struct {
	OrderID     int64           `json:"order_id"`
	BuyerID     int64           `json:"buyer_id"`
	OrderType   string          `json:"order_type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

type OrderStatusChanged struct {
	OrderID     int64   `json:"order_id"`
	SellerID    int64   `json:"seller_id"`
	ItemIDs     []int64 `json:"item_ids"`
	Status      string  `json:"status"`
	OrderStatus string  `json:"order_status"`
}

type TicketsBooked struct {
	BookingID int64 `json:"booking_id"`
	OrderID   int64 `json:"order_id"`
	EventID   int64 `json:"event_id"`
	UserID    int64 `json:"user_id"`
	Quantity  int   `json:"quantity"`
}

var pub Publisher = Noop{}

// Init selects the Kafka publisher when brokers are configured.
func Init(brokers []string) {
	if len(brokers) == 0 {
		slog.Info("event bus disabled, no kafka brokers configured")
		pub = Noop{}
		return
	}
	pub = NewKafkaPublisher(brokers)
	slog.Info("event bus ready", "brokers", brokers)
}

// SetPublisher swaps the process-wide publisher.
func SetPublisher(p Publisher) {
	if p == nil {
		p = Noop{}
	}
	pub = p
}

func Close() error {
	return pub.Close()
}

// Emit publishes one event and only logs failures; callers have already
// committed the work the event describes.
func Emit(ctx context.Context, topic, key, eventType string, data any) {
	env := Envelope{Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
	if err := pub.Publish(ctx, topic, key, env); err != nil {
		slog.WarnContext(ctx, "publish event failed", "topic", topic, "type", eventType, "key", key, "error", err)
	}
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }
func (Noop) Close() error                                      { return nil }
