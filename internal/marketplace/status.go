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

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/eventbus"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// reserves reports whether an item in status s holds product stock.
func reserves(s string) bool {
	return s == StatusProcessing || s == StatusShipped || s == StatusDelivered
}

// stockDelta is the sign of the stock change for one unit moving from one
// status to another: -1 when it starts holding stock, +1 when it releases it.
func stockDelta(from, to string) int {
	switch {
	case !reserves(from) && reserves(to):
		return -1
	case reserves(from) && !reserves(to):
		return 1
	default:
		return 0
	}
}

// rollupStatus returns the shared status of all items, if they agree.
func rollupStatus(statuses []string) (string, bool) {
	if len(statuses) == 0 {
		return "", false
	}
	for _, s := range statuses[1:] {
		if s != statuses[0] {
			return "", false
		}
	}
	return statuses[0], true
}

type UpdateStatusRequest struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	ItemID  int64  `json:"item_id" validate:"gte=0"`
	Status  string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

type statusLine struct {
	itemID    int64
	productID *int64
	quantity  int
	status    string
}

// UpdateOrderStatus moves the caller's items in an order to a new status and
// adjusts product stock for every item that starts or stops holding it.
// Admins may update any item.
// POST /update_order_status.php
func UpdateOrderStatus(c echo.Context) error {
	userID, role := caller(c)
	req := new(UpdateStatusRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	var sellerFilter *int64
	if role != "admin" {
		sellerFilter = &userID
	}

	ctx := c.Request().Context()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin status update", err))
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT oi.id, oi.product_id, oi.quantity, s.status
		FROM order_items oi
		JOIN order_item_status s ON s.order_item_id = oi.id
		WHERE oi.order_id = $1
			AND ($2::bigint IS NULL OR oi.seller_id = $2)
			AND ($3::bigint = 0 OR oi.id = $3)
		ORDER BY oi.product_id NULLS LAST, oi.id
		FOR UPDATE OF s
	`, req.OrderID, sellerFilter, req.ItemID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("lock order items", err))
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (statusLine, error) {
		var l statusLine
		err := row.Scan(&l.itemID, &l.productID, &l.quantity, &l.status)
		return l, err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("scan order items", err))
	}
	if len(lines) == 0 {
		return apperr.Respond(c, noItemsError(ctx, tx, req.OrderID, req.ItemID))
	}

	itemIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		itemIDs = append(itemIDs, l.itemID)
		if l.productID == nil {
			continue
		}
		if err := adjustStock(ctx, tx, *l.productID, l.quantity*stockDelta(l.status, req.Status)); err != nil {
			return apperr.Respond(c, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE order_item_status SET status = $1, updated_at = NOW() WHERE order_item_id = ANY($2)`,
		req.Status, itemIDs,
	); err != nil {
		return apperr.Respond(c, apperr.Internal("update item status", err))
	}

	orderStatus, buyerID, buyerEmail, err := rollupOrder(ctx, tx, req.OrderID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("roll up order status", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit status update", err))
	}

	if err := alerts.EnqueueOrderStatusChanged(req.OrderID, buyerID, userID, buyerEmail, req.Status); err != nil {
		slog.WarnContext(ctx, "status email not queued", "order_id", req.OrderID, "error", err)
	}
	eventbus.Emit(ctx, eventbus.TopicOrders, strconv.FormatInt(req.OrderID, 10), eventbus.EventOrderStatusChanged, eventbus.OrderStatusChanged{
		OrderID:     req.OrderID,
		SellerID:    userID,
		ItemIDs:     itemIDs,
		Status:      req.Status,
		OrderStatus: orderStatus,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"message":       "Order status updated",
		"order_id":      req.OrderID,
		"status":        req.Status,
		"updated_items": itemIDs,
		"order_status":  orderStatus,
	})
}

// noItemsError tells a missing order or item apart from one the caller has
// no items in.
func noItemsError(ctx context.Context, q db.Querier, orderID, itemID int64) error {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders o
			LEFT JOIN order_items oi ON oi.order_id = o.id
			WHERE o.id = $1 AND ($2::bigint = 0 OR oi.id = $2)
		)
	`, orderID, itemID).Scan(&exists)
	if err != nil {
		return apperr.Internal("check order exists", err)
	}
	if !exists {
		return apperr.NotFound("Order not found")
	}
	return apperr.Forbidden("You do not have items in this order")
}

// adjustStock applies delta units to a product. A deleted product is skipped.
func adjustStock(ctx context.Context, tx pgx.Tx, productID int64, delta int) error {
	switch {
	case delta == 0:
		return nil
	case delta > 0:
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`, delta, productID,
		); err != nil {
			return apperr.Internal("restore stock", err)
		}
		return nil
	}

	need := -delta
	tag, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, need, productID)
	if err != nil {
		return apperr.Internal("decrement stock", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperr.Internal("load product stock", err)
	}
	return apperr.New(apperr.CodeInsufficientStock,
		fmt.Sprintf("Not enough stock for %s: %d available, %d needed", name, stock, need))
}

// rollupOrder sets the order status when all items agree and returns the
// resulting status with the buyer to notify.
func rollupOrder(ctx context.Context, tx pgx.Tx, orderID int64) (string, int64, string, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.status FROM order_items oi
		JOIN order_item_status s ON s.order_item_id = oi.id
		WHERE oi.order_id = $1
	`, orderID)
	if err != nil {
		return "", 0, "", err
	}
	statuses, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", 0, "", err
	}
	common, _ := rollupStatus(statuses)

	var (
		status  string
		buyerID int64
		email   string
	)
	err = tx.QueryRow(ctx, `
		UPDATE orders o SET
			status = CASE WHEN $2::text = '' THEN o.status ELSE $2::text END,
			updated_at = NOW()
		FROM users u
		WHERE o.id = $1 AND u.id = o.buyer_id
		RETURNING o.status, o.buyer_id, u.email
	`, orderID, common).Scan(&status, &buyerID, &email)
	return status, buyerID, email, err
}
