package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

const eventColumns = `
	e.id, e.seller_id, u.name, e.name, e.description, e.event_date, e.location, e.price,
	e.available_tickets, e.image_url, e.created_at, e.updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.SellerID, &ev.SellerName, &ev.Name, &ev.Description, &ev.EventDate, &ev.Location,
		&ev.Price, &ev.AvailableTickets, &ev.ImageURL, &ev.CreatedAt, &ev.UpdatedAt)
	return ev, err
}

var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseEventDate accepts the formats browsers send from date and
// datetime-local inputs as well as RFC 3339.
func parseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised event date %q", s)
}

// GET /get_events.php?id=|seller_id=|search=
// Listings hide past events unless include_past=1.
func GetEvents(c echo.Context) error {
	ctx := c.Request().Context()

	if c.QueryParam("id") != "" {
		id, ok := queryID(c, "id")
		if !ok {
			return apperr.Respond(c, apperr.Validation("Invalid event id"))
		}
		ev, err := scanEvent(db.Conn.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events e JOIN users u ON u.id = e.seller_id WHERE e.id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.NotFound("Event not found"))
		}
		if err != nil {
			return apperr.Respond(c, apperr.Internal("load event", err))
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"event": ev}})
	}

	var (
		where []string
		args  []any
	)
	if sellerID, ok := queryID(c, "seller_id"); ok {
		args = append(args, sellerID)
		where = append(where, fmt.Sprintf("e.seller_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(e.name ILIKE $%d OR e.description ILIKE $%d OR e.location ILIKE $%d)", len(args), len(args), len(args)))
	}
	if c.QueryParam("include_past") != "1" {
		where = append(where, "e.event_date >= NOW()")
	}

	query := `SELECT ` + eventColumns + ` FROM events e JOIN users u ON u.id = e.seller_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := page(c)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY e.event_date ASC, e.id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Conn.Query(ctx, query, args...)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list events", err))
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("scan event", err))
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return apperr.Respond(c, apperr.Internal("list events", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"events": events}})
}

type EventRequest struct {
	Name             string          `json:"name" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=5000"`
	EventDate        string          `json:"event_date" validate:"required"`
	Location         string          `json:"location" validate:"required,max=300"`
	Price            decimal.Decimal `json:"price"`
	AvailableTickets int             `json:"available_tickets" validate:"gte=0"`
	ImageURL         string          `json:"image_url" validate:"max=2000"`
}

// POST /add_event.php
func AddEvent(c echo.Context) error {
	sellerID, _ := caller(c)
	req := new(EventRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	when, err := parseEventDate(req.EventDate)
	if err != nil {
		return apperr.Respond(c, apperr.Validation("event_date is not a valid date"))
	}
	if !when.After(now()) {
		return apperr.Respond(c, apperr.Validation("event_date must be in the future"))
	}
	if !validPrice(req.Price) {
		return apperr.Respond(c, apperr.Validation("price must be zero or a positive amount with at most 2 decimals"))
	}

	var id int64
	err = db.Conn.QueryRow(c.Request().Context(), `
		INSERT INTO events (seller_id, name, description, event_date, location, price, available_tickets, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, sellerID, strings.TrimSpace(req.Name), req.Description, when, strings.TrimSpace(req.Location),
		req.Price, req.AvailableTickets, req.ImageURL).Scan(&id)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert event", err))
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Event added", "event_id": id})
}

type UpdateEventRequest struct {
	ID               int64            `json:"id" validate:"required,gt=0"`
	Name             *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=5000"`
	EventDate        *string          `json:"event_date"`
	Location         *string          `json:"location" validate:"omitempty,max=300"`
	Price            *decimal.Decimal `json:"price"`
	AvailableTickets *int             `json:"available_tickets" validate:"omitempty,gte=0"`
	ImageURL         *string          `json:"image_url" validate:"omitempty,max=2000"`
}

// POST /update_event.php
func UpdateEvent(c echo.Context) error {
	userID, _ := caller(c)
	req := new(UpdateEventRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	var when *time.Time
	if req.EventDate != nil {
		t, err := parseEventDate(*req.EventDate)
		if err != nil {
			return apperr.Respond(c, apperr.Validation("event_date is not a valid date"))
		}
		when = &t
	}
	if req.Price != nil && !validPrice(*req.Price) {
		return apperr.Respond(c, apperr.Validation("price must be zero or a positive amount with at most 2 decimals"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(), `
		UPDATE events SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			event_date = COALESCE($5, event_date),
			location = COALESCE($6, location),
			price = COALESCE($7, price),
			available_tickets = COALESCE($8, available_tickets),
			image_url = COALESCE($9, image_url),
			updated_at = NOW()
		WHERE id = $1 AND (seller_id = $2 OR $10)
	`, req.ID, userID, req.Name, req.Description, when, req.Location, req.Price, req.AvailableTickets,
		req.ImageURL, isAdmin(c))
	if err != nil {
		return apperr.Respond(c, apperr.Internal("update event", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, ownershipError(c, "events", "Event", req.ID))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Event updated"})
}

// DELETE /delete_event.php?id=
func DeleteEvent(c echo.Context) error {
	userID, _ := caller(c)
	id, ok := queryID(c, "id")
	if !ok {
		return apperr.Respond(c, apperr.Validation("Valid event id is required"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(),
		`DELETE FROM events WHERE id = $1 AND (seller_id = $2 OR $3)`, id, userID, isAdmin(c))
	if err != nil {
		return apperr.Respond(c, apperr.Internal("delete event", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, ownershipError(c, "events", "Event", id))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Event deleted"})
}
