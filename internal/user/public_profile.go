package user

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
)

// GetSellerProfile is the public storefront view of a seller.
// GET /get_seller.php?id=
func GetSellerProfile(c echo.Context) error {
	sellerID, err := strconv.ParseInt(c.QueryParam("id"), 10, 64)
	if err != nil || sellerID <= 0 {
		return apperr.Respond(c, apperr.Validation("Valid seller id is required"))
	}

	var (
		name         string
		companyName  string
		createdAt    time.Time
		productCount int
		eventCount   int
		avgRating    float64
		reviewCount  int
	)
	err = db.Conn.QueryRow(c.Request().Context(), `
		SELECT u.name, u.company_name, u.created_at,
			(SELECT COUNT(*) FROM products p WHERE p.seller_id = u.id),
			(SELECT COUNT(*) FROM events e WHERE e.seller_id = u.id),
			COALESCE((SELECT AVG(r.rating)::float8 FROM reviews r JOIN products p ON p.id = r.product_id WHERE p.seller_id = u.id), 0),
			(SELECT COUNT(*) FROM reviews r JOIN products p ON p.id = r.product_id WHERE p.seller_id = u.id)
		FROM users u
		WHERE u.id = $1 AND u.user_type = 'seller'
	`, sellerID).Scan(&name, &companyName, &createdAt, &productCount, &eventCount, &avgRating, &reviewCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.NotFound("Seller not found"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load seller profile", err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{"seller": echo.Map{
			"id":             sellerID,
			"name":           name,
			"company_name":   companyName,
			"member_since":   createdAt.Format(time.RFC3339),
			"product_count":  productCount,
			"event_count":    eventCount,
			"average_rating": avgRating,
			"review_count":   reviewCount,
		}},
	})
}
