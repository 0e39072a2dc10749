package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/eventbus"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/wallet"
)

type BookEventRequest struct {
	EventID        int64  `json:"event_id" validate:"required,gt=0"`
	Quantity       int    `json:"quantity" validate:"gte=0"`
	PaymentMethod  string `json:"payment_method" validate:"max=50"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=100"`
}

var errAlreadyBooked = apperr.New(apperr.CodeAlreadyBooked, "You have already booked this event")

func checkBookable(l listing, qty int) error {
	if !l.eventDate.After(now()) {
		return apperr.Validation("This event has already taken place")
	}
	return checkQuantity(l, qty)
}

// BookEvent reserves tickets and records the booking in one transaction.
// Wallet links and the confirmation email come after the commit and never
// undo the booking.
// POST /book_event.php
func BookEvent(c echo.Context) error {
	userID, _ := caller(c)
	req := new(BookEventRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	key := idempotencyKey(c, req.IdempotencyKey)
	if len(key) > 100 {
		return apperr.Respond(c, apperr.Validation("Idempotency key must be at most 100 characters"))
	}

	ctx := c.Request().Context()
	if key != "" {
		orderID, _, found, err := orderByKey(ctx, db.Conn, userID, key)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("lookup idempotency key", err))
		}
		if found {
			return replayBooking(c, userID, orderID)
		}
	}

	pre, err := loadListing(ctx, db.Conn, 0, req.EventID, "")
	if err != nil {
		return apperr.Respond(c, err)
	}
	if err := checkBookable(pre, qty); err != nil {
		return apperr.Respond(c, err)
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin booking", err))
	}
	defer tx.Rollback(ctx)

	ev, err := loadListing(ctx, tx, 0, req.EventID, "FOR UPDATE")
	if err != nil {
		return apperr.Respond(c, err)
	}
	if ev.sellerID == userID {
		return apperr.Respond(c, apperr.Validation("You cannot book your own event"))
	}
	if err := checkBookable(ev, qty); err != nil {
		return apperr.Respond(c, err)
	}

	var holder, email string
	if err := tx.QueryRow(ctx, `SELECT name, email FROM users WHERE id = $1`, userID).Scan(&holder, &email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.ErrAuthRequired)
		}
		return apperr.Respond(c, apperr.Internal("load booking user", err))
	}

	total := ev.price.Mul(decimal.NewFromInt(int64(qty)))
	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, order_type, total_amount, status, payment_method, idempotency_key)
		VALUES ($1, 'event', $2, 'pending', $3, $4)
		ON CONFLICT (buyer_id, idempotency_key) DO NOTHING
		RETURNING id
	`, userID, total, req.PaymentMethod, nullString(key)).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		id, _, found, lerr := orderByKey(ctx, db.Conn, userID, key)
		if lerr != nil || !found {
			return apperr.Respond(c, apperr.Internal("replay booking", lerr))
		}
		return replayBooking(c, userID, id)
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert booking order", err))
	}

	if _, err := insertOrderItem(ctx, tx, orderID, ev, qty); err != nil {
		return apperr.Respond(c, apperr.Internal("insert booking item", err))
	}
	bookingID, err := reserveTickets(ctx, tx, userID, orderID, ev, qty)
	if err != nil {
		return apperr.Respond(c, err)
	}

	if req.PaymentMethod != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO payments (order_id, amount, payment_method, status) VALUES ($1, $2, $3, 'pending')`,
			orderID, total, req.PaymentMethod,
		); err != nil {
			return apperr.Respond(c, apperr.Internal("insert booking payment", err))
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart WHERE buyer_id = $1 AND event_id = $2`, userID, ev.id); err != nil {
		return apperr.Respond(c, apperr.Internal("clear booked cart line", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit booking", err))
	}

	links := issuePass(ctx, ev, bookingID, holder, qty)
	emailErr := alerts.EnqueueBookingConfirmation(alerts.BookingConfirmationPayload{
		BookingID:       bookingID,
		OrderID:         orderID,
		EventID:         ev.id,
		EventName:       ev.name,
		Email:           email,
		Quantity:        qty,
		Amount:          total,
		GoogleWalletURL: links.Google,
		AppleWalletURL:  links.Apple,
	})
	if emailErr != nil {
		slog.WarnContext(ctx, "booking email not queued", "booking_id", bookingID, "error", emailErr)
	}
	eventbus.Emit(ctx, eventbus.TopicBookings, strconv.FormatInt(ev.id, 10), eventbus.EventTicketsBooked, eventbus.TicketsBooked{
		BookingID: bookingID,
		OrderID:   orderID,
		EventID:   ev.id,
		UserID:    userID,
		Quantity:  qty,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"success":           true,
		"message":           "Event booked successfully",
		"order_id":          orderID,
		"booking_id":        bookingID,
		"google_wallet_url": links.Google,
		"apple_wallet_url":  links.Apple,
		"email_sent":        emailErr == nil,
	})
}

// ticketsCheck is the constraint that keeps available_tickets non-negative.
const ticketsCheck = "events_available_tickets_check"

// reserveTickets takes qty tickets of ev and records the user's booking
// against orderID. The caller holds the event row lock.
func reserveTickets(ctx context.Context, tx pgx.Tx, userID, orderID int64, ev listing, qty int) (int64, error) {
	if _, err := tx.Exec(ctx,
		`UPDATE events SET available_tickets = available_tickets - $1, updated_at = NOW() WHERE id = $2`,
		qty, ev.id,
	); err != nil {
		return 0, reserveError(err, ev, "reserve tickets")
	}

	var bookingID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO event_bookings (user_id, event_id, order_id, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, userID, ev.id, orderID, qty).Scan(&bookingID)
	if err != nil {
		return 0, reserveError(err, ev, "insert booking")
	}
	return bookingID, nil
}

// reserveError maps constraint failures from reserveTickets onto booking
// errors.
func reserveError(err error, ev listing, op string) error {
	switch {
	case db.IsUniqueViolation(err):
		return errAlreadyBooked
	case db.IsCheckViolation(err) && db.ConstraintName(err) == ticketsCheck:
		return apperr.New(apperr.CodeSoldOut, fmt.Sprintf("%s is sold out", ev.name))
	default:
		return apperr.Internal(op, err)
	}
}

// bookedPass is one booking created by an order, with its wallet links.
type bookedPass struct {
	BookingID       int64  `json:"booking_id"`
	EventID         int64  `json:"event_id"`
	Quantity        int    `json:"quantity"`
	GoogleWalletURL string `json:"google_wallet_url"`
	AppleWalletURL  string `json:"apple_wallet_url"`
}

func issuePass(ctx context.Context, ev listing, bookingID int64, holder string, qty int) wallet.Links {
	links, err := wallet.IssueLinks(wallet.Pass{
		BookingID: bookingID,
		EventID:   ev.id,
		EventName: ev.name,
		EventDate: ev.eventDate,
		Location:  ev.location,
		Holder:    holder,
		Quantity:  qty,
	})
	if err != nil {
		slog.WarnContext(ctx, "wallet pass not issued", "booking_id", bookingID, "error", err)
	}
	return links
}

// replayBooking answers a repeated request with the booking created by the
// first one.
func replayBooking(c echo.Context, userID, orderID int64) error {
	ctx := c.Request().Context()
	var (
		bookingID, eventID int64
		qty                int
		holder             string
	)
	err := db.Conn.QueryRow(ctx, `
		SELECT b.id, b.event_id, b.quantity, u.name
		FROM event_bookings b JOIN users u ON u.id = b.user_id
		WHERE b.order_id = $1 AND b.user_id = $2
	`, orderID, userID).Scan(&bookingID, &eventID, &qty, &holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.Conflict("Idempotency key already used for another order"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load replayed booking", err))
	}
	ev, err := loadListing(ctx, db.Conn, 0, eventID, "")
	if err != nil {
		return apperr.Respond(c, err)
	}
	links := issuePass(ctx, ev, bookingID, holder, qty)
	return c.JSON(http.StatusOK, echo.Map{
		"success":           true,
		"message":           "Event already booked",
		"order_id":          orderID,
		"booking_id":        bookingID,
		"google_wallet_url": links.Google,
		"apple_wallet_url":  links.Apple,
		"email_sent":        false,
		"replayed":          true,
	})
}

// GET /get_bookings.php
func GetBookings(c echo.Context) error {
	userID, _ := caller(c)
	rows, err := db.Conn.Query(c.Request().Context(), `
		SELECT b.id, b.event_id, e.name, e.event_date, e.location, b.order_id, b.quantity, e.price, b.booked_at
		FROM event_bookings b
		JOIN events e ON e.id = b.event_id
		WHERE b.user_id = $1
		ORDER BY e.event_date, b.id
	`, userID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list bookings", err))
	}
	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Booking, error) {
		var b Booking
		err := row.Scan(&b.ID, &b.EventID, &b.EventName, &b.EventDate, &b.Location, &b.OrderID,
			&b.Quantity, &b.Price, &b.BookedAt)
		return b, err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("scan bookings", err))
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"bookings": bookings}})
}
