package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a seller listing sold in quantities of at least MinOrderQuantity.
type Product struct {
	ID               int64           `json:"id"`
	SellerID         int64           `json:"seller_id"`
	SellerName       string          `json:"seller_name,omitempty"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Stock            int             `json:"stock"`
	MinOrderQuantity int             `json:"min_order_quantity"`
	Category         string          `json:"category"`
	ImageURL         string          `json:"image_url"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Event is a ticketed listing; AvailableTickets only ever goes down.
type Event struct {
	ID               int64           `json:"id"`
	SellerID         int64           `json:"seller_id"`
	SellerName       string          `json:"seller_name,omitempty"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	EventDate        time.Time       `json:"event_date"`
	Location         string          `json:"location"`
	Price            decimal.Decimal `json:"price"`
	AvailableTickets int             `json:"available_tickets"`
	ImageURL         string          `json:"image_url"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CartItem holds either a product or an event line.
type CartItem struct {
	ID               int64           `json:"id"`
	ItemType         string          `json:"item_type"`
	ProductID        *int64          `json:"product_id,omitempty"`
	EventID          *int64          `json:"event_id,omitempty"`
	SellerID         int64           `json:"seller_id"`
	Name             string          `json:"name"`
	ImageURL         string          `json:"image_url"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	MinOrderQuantity int             `json:"min_order_quantity,omitempty"`
	Available        int             `json:"available"`
}

type WishlistItem struct {
	ID        int64           `json:"id"`
	ItemType  string          `json:"item_type"`
	ProductID *int64          `json:"product_id,omitempty"`
	EventID   *int64          `json:"event_id,omitempty"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Order aggregates line items that may belong to several sellers.
type Order struct {
	ID            int64           `json:"id"`
	BuyerID       int64           `json:"buyer_id"`
	BuyerName     string          `json:"buyer_name,omitempty"`
	BuyerEmail    string          `json:"buyer_email,omitempty"`
	OrderType     string          `json:"order_type"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []OrderItem     `json:"items"`
}

// OrderItem carries its own seller and fulfilment status.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID *int64          `json:"product_id,omitempty"`
	EventID   *int64          `json:"event_id,omitempty"`
	SellerID  int64           `json:"seller_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"status_updated_at"`
}

type Booking struct {
	ID        int64           `json:"id"`
	EventID   int64           `json:"event_id"`
	EventName string          `json:"event_name"`
	EventDate time.Time       `json:"event_date"`
	Location  string          `json:"location"`
	OrderID   *int64          `json:"order_id,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	BookedAt  time.Time       `json:"booked_at"`
}

type Review struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	UserID           int64     `json:"user_id"`
	UserName         string    `json:"user_name"`
	UserType         string    `json:"user_type"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RatingSummary aggregates the reviews of one product.
type RatingSummary struct {
	TotalReviews  int         `json:"total_reviews"`
	AverageRating float64     `json:"average_rating"`
	RatingCounts  map[int]int `json:"rating_counts"`
}
