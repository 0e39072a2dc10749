package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

var (
	provider        Provider = disabled{}
	defaultCurrency          = "usd"
)

// Configure enables Stripe when a secret key is set.
func Configure(cfg *config.Config) {
	if cfg.StripeCurrency != "" {
		defaultCurrency = cfg.StripeCurrency
	}
	if cfg.StripeSecretKey == "" {
		slog.Warn("stripe disabled, STRIPE_SECRET_KEY not set")
		provider = disabled{}
		return
	}
	provider = NewStripeProvider(cfg.StripeSecretKey)
}

// SetProvider swaps the provider; nil disables payments.
func SetProvider(p Provider) {
	if p == nil {
		p = disabled{}
	}
	provider = p
}

type CreateIntentRequest struct {
	OrderID  int64           `json:"order_id" validate:"gte=0"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
}

// CreatePaymentIntent starts a Stripe payment for an order (amount read from
// the order) or for an explicit amount.
// POST /create_payment_intent.php
func CreatePaymentIntent(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	req := new(CreateIntentRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	if req.OrderID == 0 && !req.Amount.IsPositive() {
		return apperr.Respond(c, apperr.Validation("order_id or amount is required"))
	}

	ctx := c.Request().Context()
	amount := req.Amount
	if req.OrderID > 0 {
		err := db.Conn.QueryRow(ctx,
			`SELECT total_amount FROM orders WHERE id = $1 AND buyer_id = $2`, req.OrderID, userID,
		).Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.NotFound("Order not found"))
		}
		if err != nil {
			return apperr.Respond(c, apperr.Internal("load order amount", err))
		}
	}
	if !amount.IsPositive() {
		return apperr.Respond(c, apperr.Validation("amount must be greater than zero"))
	}

	currency := defaultCurrency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}

	intent, err := provider.CreateIntent(ctx, amount, currency, orderMetadata(req.OrderID, userID))
	if errors.Is(err, ErrNotConfigured) {
		return apperr.Respond(c, apperr.New(apperr.CodeUnavailable, "Payments are not available"))
	}
	if err != nil {
		slog.ErrorContext(ctx, "stripe payment intent failed", "order_id", req.OrderID, "user_id", userID, "error", err)
		return apperr.Respond(c, apperr.New(apperr.CodeUnavailable, "Payment provider error, please try again"))
	}

	if req.OrderID > 0 {
		if _, err := db.Conn.Exec(ctx,
			`UPDATE payments SET status = 'intent_created' WHERE order_id = $1 AND status = 'pending'`, req.OrderID,
		); err != nil {
			slog.WarnContext(ctx, "mark payment intent failed", "order_id", req.OrderID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":         true,
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"amount":          intent.Amount,
		"currency":        intent.Currency,
	})
}
