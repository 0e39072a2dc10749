package marketplace

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type CartRequest struct {
	CartID    int64 `json:"cart_id" validate:"gte=0"`
	ProductID int64 `json:"product_id" validate:"gte=0"`
	EventID   int64 `json:"event_id" validate:"gte=0"`
	Quantity  int   `json:"quantity" validate:"gte=0"`
}

// GET /get_cart.php
func GetCart(c echo.Context) error {
	buyerID, _ := caller(c)
	ctx := c.Request().Context()

	rows, err := db.Conn.Query(ctx, `
		SELECT c.id, c.product_id, c.event_id, c.quantity,
			COALESCE(p.seller_id, e.seller_id),
			COALESCE(p.name, e.name),
			COALESCE(p.image_url, e.image_url),
			COALESCE(p.price, e.price),
			COALESCE(p.min_order_quantity, 1),
			COALESCE(p.stock, e.available_tickets)
		FROM cart c
		LEFT JOIN products p ON p.id = c.product_id
		LEFT JOIN events e ON e.id = c.event_id
		WHERE c.buyer_id = $1
		ORDER BY c.created_at, c.id
	`, buyerID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load cart", err))
	}
	defer rows.Close()

	items := []CartItem{}
	total := decimal.Zero
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.EventID, &it.Quantity, &it.SellerID, &it.Name,
			&it.ImageURL, &it.Price, &it.MinOrderQuantity, &it.Available); err != nil {
			return apperr.Respond(c, apperr.Internal("scan cart", err))
		}
		it.ItemType = kindProduct
		if it.EventID != nil {
			it.ItemType = kindEvent
		}
		it.Subtotal = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(it.Subtotal)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return apperr.Respond(c, apperr.Internal("load cart", err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"items":      items,
			"total":      total.StringFixed(2),
			"item_count": len(items),
		},
	})
}

// AddToCart upserts the line and adds the quantity to any existing one. The
// resulting quantity must satisfy the listing's MOQ and availability.
// POST /add_cart.php
func AddToCart(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(CartRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if !exactlyOne(req.ProductID, req.EventID) {
		return apperr.Respond(c, apperr.Validation("Provide exactly one of product_id or event_id"))
	}

	ctx := c.Request().Context()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin add to cart", err))
	}
	defer tx.Rollback(ctx)

	l, err := loadListing(ctx, tx, req.ProductID, req.EventID, "FOR SHARE")
	if err != nil {
		return apperr.Respond(c, err)
	}
	if l.sellerID == buyerID {
		return apperr.Respond(c, apperr.Validation("You cannot add your own listing to the cart"))
	}
	qty := req.Quantity
	if qty == 0 {
		qty = l.moq
	}

	var (
		cartID   int64
		quantity int
	)
	if l.kind == kindProduct {
		err = tx.QueryRow(ctx, `
			INSERT INTO cart (buyer_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (buyer_id, product_id) WHERE product_id IS NOT NULL
			DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING id, quantity
		`, buyerID, l.id, qty).Scan(&cartID, &quantity)
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO cart (buyer_id, event_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (buyer_id, event_id) WHERE event_id IS NOT NULL
			DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING id, quantity
		`, buyerID, l.id, qty).Scan(&cartID, &quantity)
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("upsert cart", err))
	}
	if err := checkQuantity(l, quantity); err != nil {
		return apperr.Respond(c, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit add to cart", err))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "Added to cart",
		"cart_id":  cartID,
		"quantity": quantity,
	})
}

// findCartLine resolves the buyer's line by cart id, product id or event id.
func findCartLine(c echo.Context, q db.Querier, buyerID int64, req *CartRequest) (int64, int64, int64, error) {
	if req.CartID == 0 && req.ProductID == 0 && req.EventID == 0 {
		return 0, 0, 0, apperr.Validation("cart_id, product_id or event_id is required")
	}
	var (
		id                 int64
		productID, eventID *int64
	)
	err := q.QueryRow(c.Request().Context(), `
		SELECT id, product_id, event_id FROM cart
		WHERE buyer_id = $1 AND (id = $2 OR product_id = $3 OR event_id = $4)
		ORDER BY id LIMIT 1
		FOR UPDATE
	`, buyerID, req.CartID, req.ProductID, req.EventID).Scan(&id, &productID, &eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, 0, apperr.NotFound("Cart item not found")
	}
	if err != nil {
		return 0, 0, 0, apperr.Internal("find cart line", err)
	}
	var pid, eid int64
	if productID != nil {
		pid = *productID
	}
	if eventID != nil {
		eid = *eventID
	}
	return id, pid, eid, nil
}

// POST /update_cart.php
func UpdateCart(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(CartRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if req.Quantity < 1 {
		return apperr.Respond(c, apperr.Validation("quantity must be at least 1"))
	}

	ctx := c.Request().Context()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin update cart", err))
	}
	defer tx.Rollback(ctx)

	cartID, productID, eventID, err := findCartLine(c, tx, buyerID, req)
	if err != nil {
		return apperr.Respond(c, err)
	}
	l, err := loadListing(ctx, tx, productID, eventID, "FOR SHARE")
	if err != nil {
		return apperr.Respond(c, err)
	}
	if err := checkQuantity(l, req.Quantity); err != nil {
		return apperr.Respond(c, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE cart SET quantity = $1, updated_at = NOW() WHERE id = $2`, req.Quantity, cartID,
	); err != nil {
		return apperr.Respond(c, apperr.Internal("update cart", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit update cart", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Cart updated", "cart_id": cartID, "quantity": req.Quantity})
}

// POST /delete_cart.php
func DeleteFromCart(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(CartRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if req.CartID == 0 && req.ProductID == 0 && req.EventID == 0 {
		return apperr.Respond(c, apperr.Validation("cart_id, product_id or event_id is required"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(), `
		DELETE FROM cart
		WHERE buyer_id = $1 AND (id = $2 OR product_id = $3 OR event_id = $4)
	`, buyerID, req.CartID, req.ProductID, req.EventID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("delete cart line", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, apperr.NotFound("Cart item not found"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Removed from cart"})
}

// POST /clear_cart.php
func ClearCart(c echo.Context) error {
	buyerID, _ := caller(c)
	tag, err := db.Conn.Exec(c.Request().Context(), `DELETE FROM cart WHERE buyer_id = $1`, buyerID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("clear cart", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Cart cleared", "removed": tag.RowsAffected()})
}
