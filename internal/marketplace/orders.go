package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/eventbus"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type OrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"gte=0"`
	EventID   int64 `json:"event_id" validate:"gte=0"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

type CreateOrderRequest struct {
	OrderType      string             `json:"order_type" validate:"required,oneof=product event"`
	Items          []OrderItemRequest `json:"items" validate:"dive"`
	PaymentMethod  string             `json:"payment_method" validate:"max=50"`
	IdempotencyKey string             `json:"idempotency_key" validate:"max=100"`
}

// mergeItems validates the lines and folds duplicates together. The result is
// sorted so concurrent orders lock rows in the same order.
func mergeItems(orderType string, items []OrderItemRequest) ([]OrderItemRequest, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("Order must contain at least one item")
	}
	merged := map[[2]int64]int{}
	for _, it := range items {
		if !exactlyOne(it.ProductID, it.EventID) {
			return nil, apperr.Validation("Each item needs exactly one of product_id or event_id")
		}
		if it.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1")
		}
		if (orderType == kindProduct) != (it.ProductID > 0) {
			return nil, apperr.Validation(fmt.Sprintf("All items of a %s order must be %ss", orderType, orderType))
		}
		merged[[2]int64{it.ProductID, it.EventID}] += it.Quantity
	}

	out := make([]OrderItemRequest, 0, len(merged))
	for k, qty := range merged {
		out = append(out, OrderItemRequest{ProductID: k[0], EventID: k[1], Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// orderByKey finds an order the buyer already placed with the idempotency key.
func orderByKey(ctx context.Context, q db.Querier, buyerID int64, key string) (int64, decimal.Decimal, bool, error) {
	var (
		id    int64
		total decimal.Decimal
	)
	err := q.QueryRow(ctx,
		`SELECT id, total_amount FROM orders WHERE buyer_id = $1 AND idempotency_key = $2`,
		buyerID, key,
	).Scan(&id, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, total, false, nil
	}
	if err != nil {
		return 0, total, false, err
	}
	return id, total, true, nil
}

func replayOrder(c echo.Context, orderID int64, total decimal.Decimal) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      "Order already placed",
		"order_id":     orderID,
		"total_amount": total.StringFixed(2),
		"replayed":     true,
	})
}

// CreateOrder prices every line from the listing rows and writes the order,
// its items, their statuses and an optional payment in one transaction.
// POST /create_order.php
func CreateOrder(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(CreateOrderRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	items, err := mergeItems(req.OrderType, req.Items)
	if err != nil {
		return apperr.Respond(c, err)
	}
	key := idempotencyKey(c, req.IdempotencyKey)
	if len(key) > 100 {
		return apperr.Respond(c, apperr.Validation("Idempotency key must be at most 100 characters"))
	}

	ctx := c.Request().Context()
	if key != "" {
		id, total, found, err := orderByKey(ctx, db.Conn, buyerID, key)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("lookup idempotency key", err))
		}
		if found {
			return replayOrder(c, id, total)
		}
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin create order", err))
	}
	defer tx.Rollback(ctx)

	var buyerName, buyerEmail string
	if err := tx.QueryRow(ctx, `SELECT name, email FROM users WHERE id = $1`, buyerID).Scan(&buyerName, &buyerEmail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.ErrAuthRequired)
		}
		return apperr.Respond(c, apperr.Internal("load buyer", err))
	}

	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, order_type, status, payment_method, idempotency_key)
		VALUES ($1, $2, 'pending', $3, $4)
		ON CONFLICT (buyer_id, idempotency_key) DO NOTHING
		RETURNING id
	`, buyerID, req.OrderType, req.PaymentMethod, nullString(key)).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent request with the same key won.
		_ = tx.Rollback(ctx)
		id, total, found, lerr := orderByKey(ctx, db.Conn, buyerID, key)
		if lerr != nil || !found {
			return apperr.Respond(c, apperr.Internal("replay order", lerr))
		}
		return replayOrder(c, id, total)
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert order", err))
	}

	total := decimal.Zero
	var productIDs, eventIDs []int64
	type pendingPass struct {
		bookingID int64
		ev        listing
		qty       int
	}
	var passes []pendingPass
	for _, it := range items {
		l, err := loadListing(ctx, tx, it.ProductID, it.EventID, "FOR UPDATE")
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				label, id := "Product", it.ProductID
				if it.EventID > 0 {
					label, id = "Event", it.EventID
				}
				return apperr.Respond(c, apperr.NotFound(fmt.Sprintf("%s %d not found", label, id)))
			}
			return apperr.Respond(c, err)
		}
		if l.sellerID == buyerID {
			return apperr.Respond(c, apperr.Validation("You cannot order your own listing"))
		}
		if err := checkQuantity(l, it.Quantity); err != nil {
			return apperr.Respond(c, err)
		}

		if l.kind == kindEvent {
			if !l.eventDate.After(now()) {
				return apperr.Respond(c, apperr.Validation(fmt.Sprintf("%s has already taken place", l.name)))
			}
			eventIDs = append(eventIDs, l.id)
		} else {
			productIDs = append(productIDs, l.id)
		}

		if _, err := insertOrderItem(ctx, tx, orderID, l, it.Quantity); err != nil {
			return apperr.Respond(c, apperr.Internal("insert order item", err))
		}
		if l.kind == kindEvent {
			bookingID, err := reserveTickets(ctx, tx, buyerID, orderID, l, it.Quantity)
			if err != nil {
				return apperr.Respond(c, err)
			}
			passes = append(passes, pendingPass{bookingID: bookingID, ev: l, qty: it.Quantity})
		}
		total = total.Add(l.price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET total_amount = $1 WHERE id = $2`, total, orderID); err != nil {
		return apperr.Respond(c, apperr.Internal("update order total", err))
	}
	if req.PaymentMethod != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO payments (order_id, amount, payment_method, status) VALUES ($1, $2, $3, 'pending')`,
			orderID, total, req.PaymentMethod,
		); err != nil {
			return apperr.Respond(c, apperr.Internal("insert payment", err))
		}
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM cart
		WHERE buyer_id = $1 AND (product_id = ANY($2) OR event_id = ANY($3))
	`, buyerID, productIDs, eventIDs); err != nil {
		return apperr.Respond(c, apperr.Internal("clear ordered cart lines", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit create order", err))
	}

	bookings := make([]bookedPass, 0, len(passes))
	for _, p := range passes {
		links := issuePass(ctx, p.ev, p.bookingID, buyerName, p.qty)
		bookings = append(bookings, bookedPass{
			BookingID:       p.bookingID,
			EventID:         p.ev.id,
			Quantity:        p.qty,
			GoogleWalletURL: links.Google,
			AppleWalletURL:  links.Apple,
		})
	}

	if err := alerts.EnqueueOrderConfirmation(orderID, buyerID, buyerEmail, total, len(items)); err != nil {
		slog.WarnContext(ctx, "order confirmation email not queued", "order_id", orderID, "error", err)
	}
	eventbus.Emit(ctx, eventbus.TopicOrders, strconv.FormatInt(orderID, 10), eventbus.EventOrderCreated, eventbus.OrderCreated{
		OrderID:     orderID,
		BuyerID:     buyerID,
		OrderType:   req.OrderType,
		TotalAmount: total,
		ItemCount:   len(items),
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"message":      "Order placed successfully",
		"order_id":     orderID,
		"total_amount": total.StringFixed(2),
		"bookings":     bookings,
	})
}

// insertOrderItem writes the line and its pending status row.
func insertOrderItem(ctx context.Context, tx pgx.Tx, orderID int64, l listing, qty int) (int64, error) {
	var productID, eventID *int64
	if l.kind == kindProduct {
		productID = &l.id
	} else {
		eventID = &l.id
	}
	var itemID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, event_id, seller_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, orderID, productID, eventID, l.sellerID, qty, l.price).Scan(&itemID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO order_item_status (order_item_id, status) VALUES ($1, 'pending')`, itemID,
	); err != nil {
		return 0, err
	}
	return itemID, nil
}

// OrderFilter narrows LoadOrders. Zero values match everything. A SellerID
// also restricts the returned items to that seller's lines.
type OrderFilter struct {
	OrderID  int64
	BuyerID  int64
	SellerID int64
	Status   string
	Limit    int
	Offset   int
}

// LoadOrders returns the matching orders, newest first, with their items.
func LoadOrders(ctx context.Context, q db.Querier, f OrderFilter) ([]Order, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	rows, err := q.Query(ctx, `
		SELECT o.id, o.buyer_id, u.name, u.email, o.order_type, o.total_amount, o.status,
			o.payment_method, o.created_at, o.updated_at
		FROM orders o
		JOIN users u ON u.id = o.buyer_id
		WHERE ($1::bigint = 0 OR o.id = $1)
			AND ($2::bigint = 0 OR o.buyer_id = $2)
			AND ($3::bigint = 0 OR EXISTS (
				SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $3))
			AND ($4::text = '' OR o.status = $4)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $5 OFFSET $6
	`, f.OrderID, f.BuyerID, f.SellerID, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var o Order
		err := row.Scan(&o.ID, &o.BuyerID, &o.BuyerName, &o.BuyerEmail, &o.OrderType, &o.TotalAmount,
			&o.Status, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt)
		o.Items = []OrderItem{}
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	if len(orders) == 0 {
		return []Order{}, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	itemRows, err := q.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.event_id, oi.seller_id,
			COALESCE(p.name, e.name, ''), oi.quantity, oi.price,
			COALESCE(s.status, 'pending'), COALESCE(s.updated_at, o.created_at)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN order_item_status s ON s.order_item_id = oi.id
		LEFT JOIN products p ON p.id = oi.product_id
		LEFT JOIN events e ON e.id = oi.event_id
		WHERE oi.order_id = ANY($1) AND ($2::bigint = 0 OR oi.seller_id = $2)
		ORDER BY oi.order_id, oi.id
	`, ids, f.SellerID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.EventID, &it.SellerID, &it.Name,
			&it.Quantity, &it.Price, &it.Status, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Subtotal = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("read order items: %w", err)
	}
	return orders, nil
}

func statusFilter(c echo.Context) (string, error) {
	s := c.QueryParam("status")
	if s != "" && !IsValidStatus(s) {
		return "", apperr.Validation("Invalid status")
	}
	return s, nil
}

// GET /get_orders.php
func GetOrders(c echo.Context) error {
	buyerID, _ := caller(c)
	status, err := statusFilter(c)
	if err != nil {
		return apperr.Respond(c, err)
	}
	limit, offset := page(c)
	orders, err := LoadOrders(c.Request().Context(), db.Conn, OrderFilter{
		BuyerID: buyerID, Status: status, Limit: limit, Offset: offset,
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list buyer orders", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"orders": orders}})
}

// GetSellerOrders lists orders holding at least one of the seller's items,
// each carrying only those items.
// GET /get_seller_orders.php
func GetSellerOrders(c echo.Context) error {
	sellerID, _ := caller(c)
	status, err := statusFilter(c)
	if err != nil {
		return apperr.Respond(c, err)
	}
	limit, offset := page(c)
	orders, err := LoadOrders(c.Request().Context(), db.Conn, OrderFilter{
		SellerID: sellerID, Status: status, Limit: limit, Offset: offset,
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list seller orders", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"orders": orders}})
}

// GetOrderDetails is visible to the buyer, to admins, and to sellers with an
// item in the order (who only see their own items).
// GET /get_order_details.php?id=
func GetOrderDetails(c echo.Context) error {
	userID, role := caller(c)
	id, ok := queryID(c, "id")
	if !ok {
		return apperr.Respond(c, apperr.Validation("Invalid order id"))
	}
	ctx := c.Request().Context()

	orders, err := LoadOrders(ctx, db.Conn, OrderFilter{OrderID: id, Limit: 1})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load order", err))
	}
	if len(orders) == 0 {
		return apperr.Respond(c, apperr.NotFound("Order not found"))
	}
	order := orders[0]

	switch {
	case role == "admin" || order.BuyerID == userID:
	case role == "seller":
		scoped, err := LoadOrders(ctx, db.Conn, OrderFilter{OrderID: id, SellerID: userID, Limit: 1})
		if err != nil {
			return apperr.Respond(c, apperr.Internal("load seller order", err))
		}
		if len(scoped) == 0 {
			return apperr.Respond(c, apperr.Forbidden("You do not have access to this order"))
		}
		order = scoped[0]
	default:
		return apperr.Respond(c, apperr.Forbidden("You do not have access to this order"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"order": order}})
}
