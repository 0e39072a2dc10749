package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type WishlistRequest struct {
	WishlistID int64 `json:"wishlist_id" validate:"gte=0"`
	ProductID  int64 `json:"product_id" validate:"gte=0"`
	EventID    int64 `json:"event_id" validate:"gte=0"`
}

// GET /get_wishlist.php
func GetWishlist(c echo.Context) error {
	buyerID, _ := caller(c)
	rows, err := db.Conn.Query(c.Request().Context(), `
		SELECT w.id, w.product_id, w.event_id,
			COALESCE(p.name, e.name), COALESCE(p.image_url, e.image_url), COALESCE(p.price, e.price),
			w.created_at
		FROM wishlist w
		LEFT JOIN products p ON p.id = w.product_id
		LEFT JOIN events e ON e.id = w.event_id
		WHERE w.buyer_id = $1
		ORDER BY w.created_at DESC, w.id DESC
	`, buyerID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load wishlist", err))
	}
	defer rows.Close()

	items := []WishlistItem{}
	for rows.Next() {
		var it WishlistItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.EventID, &it.Name, &it.ImageURL, &it.Price, &it.CreatedAt); err != nil {
			return apperr.Respond(c, apperr.Internal("scan wishlist", err))
		}
		it.ItemType = kindProduct
		if it.EventID != nil {
			it.ItemType = kindEvent
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return apperr.Respond(c, apperr.Internal("load wishlist", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"items": items}})
}

// AddToWishlist is idempotent; added is false when the item was already saved.
// POST /add_wishlist.php
func AddToWishlist(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(WishlistRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if !exactlyOne(req.ProductID, req.EventID) {
		return apperr.Respond(c, apperr.Validation("Provide exactly one of product_id or event_id"))
	}

	ctx := c.Request().Context()
	if _, err := loadListing(ctx, db.Conn, req.ProductID, req.EventID, ""); err != nil {
		return apperr.Respond(c, err)
	}

	var sql string
	var id int64
	if req.ProductID > 0 {
		id = req.ProductID
		sql = `INSERT INTO wishlist (buyer_id, product_id) VALUES ($1, $2)
			ON CONFLICT (buyer_id, product_id) WHERE product_id IS NOT NULL DO NOTHING`
	} else {
		id = req.EventID
		sql = `INSERT INTO wishlist (buyer_id, event_id) VALUES ($1, $2)
			ON CONFLICT (buyer_id, event_id) WHERE event_id IS NOT NULL DO NOTHING`
	}
	tag, err := db.Conn.Exec(ctx, sql, buyerID, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Respond(c, apperr.NotFound("Item not found"))
		}
		return apperr.Respond(c, apperr.Internal("insert wishlist", err))
	}

	added := tag.RowsAffected() > 0
	msg := "Added to wishlist"
	if !added {
		msg = "Already in wishlist"
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "added": added})
}

// POST /delete_wishlist.php
func DeleteFromWishlist(c echo.Context) error {
	buyerID, _ := caller(c)
	req := new(WishlistRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if req.WishlistID == 0 && req.ProductID == 0 && req.EventID == 0 {
		return apperr.Respond(c, apperr.Validation("wishlist_id, product_id or event_id is required"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(), `
		DELETE FROM wishlist
		WHERE buyer_id = $1 AND (id = $2 OR product_id = $3 OR event_id = $4)
	`, buyerID, req.WishlistID, req.ProductID, req.EventID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("delete wishlist", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, apperr.NotFound("Wishlist item not found"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Removed from wishlist"})
}
