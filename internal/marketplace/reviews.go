package marketplace

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type ReviewRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment   string `json:"comment" validate:"max=1000"`
}

// GetReviews lists a product's reviews with their rating summary.
// GET /get_reviews.php?product_id=
func GetReviews(c echo.Context) error {
	productID, ok := queryID(c, "product_id")
	if !ok {
		return apperr.Respond(c, apperr.Validation("Invalid product id"))
	}
	ctx := c.Request().Context()

	var exists bool
	if err := db.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return apperr.Respond(c, apperr.Internal("check product", err))
	}
	if !exists {
		return apperr.Respond(c, apperr.NotFound("Product not found"))
	}

	limit, offset := page(c)
	rows, err := db.Conn.Query(ctx, `
		SELECT r.id, r.product_id, r.user_id, u.name, r.user_type, r.rating, r.comment,
			EXISTS (
				SELECT 1 FROM order_items oi
				JOIN orders o ON o.id = oi.order_id
				WHERE o.buyer_id = r.user_id AND oi.product_id = r.product_id
			),
			r.created_at, r.updated_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2 OFFSET $3
	`, productID, limit, offset)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list reviews", err))
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Review, error) {
		var r Review
		err := row.Scan(&r.ID, &r.ProductID, &r.UserID, &r.UserName, &r.UserType, &r.Rating, &r.Comment,
			&r.VerifiedPurchase, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("scan reviews", err))
	}
	if reviews == nil {
		reviews = []Review{}
	}

	summary, err := ratingSummary(ctx, db.Conn, productID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("rating summary", err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"reviews": reviews,
			"summary": summary,
		},
	})
}

func ratingSummary(ctx context.Context, q db.Querier, productID int64) (RatingSummary, error) {
	s := RatingSummary{RatingCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	rows, err := q.Query(ctx,
		`SELECT rating, COUNT(*) FROM reviews WHERE product_id = $1 GROUP BY rating`, productID)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return s, err
		}
		s.RatingCounts[rating] = count
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	s.finish()
	return s, nil
}

// finish derives the totals from RatingCounts, rounding the average to one
// decimal place.
func (s *RatingSummary) finish() {
	sum := 0
	s.TotalReviews = 0
	for rating, count := range s.RatingCounts {
		s.TotalReviews += count
		sum += rating * count
	}
	s.AverageRating = 0
	if s.TotalReviews > 0 {
		s.AverageRating = math.Round(float64(sum)/float64(s.TotalReviews)*10) / 10
	}
}

// AddReview creates or replaces the caller's review of a product.
// POST /add_review.php
func AddReview(c echo.Context) error {
	userID, role := caller(c)
	req := new(ReviewRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	ctx := c.Request().Context()

	var sellerID int64
	err := db.Conn.QueryRow(ctx, `SELECT seller_id FROM products WHERE id = $1`, req.ProductID).Scan(&sellerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.NotFound("Product not found"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load review product", err))
	}
	if sellerID == userID {
		return apperr.Respond(c, apperr.Validation("You cannot review your own product"))
	}

	var (
		reviewID int64
		created  bool
	)
	err = db.Conn.QueryRow(ctx, `
		INSERT INTO reviews (user_id, user_type, product_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`, userID, role, req.ProductID, req.Rating, req.Comment).Scan(&reviewID, &created)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Respond(c, apperr.NotFound("Product not found"))
		}
		return apperr.Respond(c, apperr.Internal("upsert review", err))
	}

	status, msg := http.StatusOK, "Review updated"
	if created {
		status, msg = http.StatusCreated, "Review added"
	}
	return c.JSON(status, echo.Map{"success": true, "message": msg, "review_id": reviewID})
}
