package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
)

type UserStats struct {
	Total   int `json:"total"`
	Buyers  int `json:"buyers"`
	Sellers int `json:"sellers"`
	Admins  int `json:"admins"`
	New     int `json:"new_in_period"`
}

type ListingStats struct {
	Products       int `json:"products"`
	Events         int `json:"events"`
	UpcomingEvents int `json:"upcoming_events"`
	LowStock       int `json:"low_stock_products"`
}

type OrderStats struct {
	Total    int             `json:"total"`
	ByStatus map[string]int  `json:"by_status"`
	Revenue  decimal.Decimal `json:"revenue"`
	Average  decimal.Decimal `json:"average_order_value"`
}

type BookingStats struct {
	Bookings int `json:"bookings"`
	Tickets  int `json:"tickets"`
}

type DailyPoint struct {
	Day     string          `json:"day"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Units     int             `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type Analytics struct {
	PeriodDays  int          `json:"period_days"`
	Users       UserStats    `json:"users"`
	Listings    ListingStats `json:"listings"`
	Orders      OrderStats   `json:"orders"`
	Bookings    BookingStats `json:"bookings"`
	Daily       []DailyPoint `json:"daily"`
	TopProducts []TopProduct `json:"top_products"`
}

// periodDays reads ?days=, defaulting to 30 and capped at a year.
func periodDays(c echo.Context) int {
	days := 30
	if v, err := strconv.Atoi(c.QueryParam("days")); err == nil && v > 0 {
		days = min(v, 365)
	}
	return days
}

// GET /admin_analytics.php?days=
func GetAnalytics(c echo.Context) error {
	days := periodDays(c)
	a, err := LoadAnalytics(c.Request().Context(), db.Conn, days)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load analytics", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": a})
}

// LoadAnalytics gathers the dashboard figures. Revenue excludes cancelled
// orders.
func LoadAnalytics(ctx context.Context, q db.Querier, days int) (Analytics, error) {
	a := Analytics{PeriodDays: days, Orders: OrderStats{ByStatus: map[string]int{}}}
	since := time.Now().AddDate(0, 0, -days)

	err := q.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE user_type = 'buyer'),
			COUNT(*) FILTER (WHERE user_type = 'seller'),
			COUNT(*) FILTER (WHERE user_type = 'admin'),
			COUNT(*) FILTER (WHERE created_at >= $1)
		FROM users
	`, since).Scan(&a.Users.Total, &a.Users.Buyers, &a.Users.Sellers, &a.Users.Admins, &a.Users.New)
	if err != nil {
		return a, err
	}

	err = q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM events WHERE event_date > NOW()),
			(SELECT COUNT(*) FROM products WHERE stock < min_order_quantity)
	`).Scan(&a.Listings.Products, &a.Listings.Events, &a.Listings.UpcomingEvents, &a.Listings.LowStock)
	if err != nil {
		return a, err
	}

	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return a, err
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return a, err
		}
		a.Orders.ByStatus[status] = n
		a.Orders.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return a, err
	}

	var paid int
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM orders WHERE status <> 'cancelled'
	`).Scan(&a.Orders.Revenue, &paid)
	if err != nil {
		return a, err
	}
	a.Orders.Average = averageOrder(a.Orders.Revenue, paid)

	err = q.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM event_bookings`).
		Scan(&a.Bookings.Bookings, &a.Bookings.Tickets)
	if err != nil {
		return a, err
	}

	rows, err = q.Query(ctx, `
		SELECT to_char(d.day, 'YYYY-MM-DD'), COUNT(o.id), COALESCE(SUM(o.total_amount), 0)
		FROM generate_series(date_trunc('day', $1::timestamptz), date_trunc('day', NOW()), interval '1 day') AS d(day)
		LEFT JOIN orders o ON date_trunc('day', o.created_at) = d.day AND o.status <> 'cancelled'
		GROUP BY d.day
		ORDER BY d.day
	`, since)
	if err != nil {
		return a, err
	}
	a.Daily, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyPoint, error) {
		var p DailyPoint
		err := row.Scan(&p.Day, &p.Orders, &p.Revenue)
		return p, err
	})
	if err != nil {
		return a, err
	}

	rows, err = q.Query(ctx, `
		SELECT oi.product_id, COALESCE(p.name, ''), SUM(oi.quantity), SUM(oi.quantity * oi.price)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id AND o.status <> 'cancelled'
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.product_id IS NOT NULL AND o.created_at >= $1
		GROUP BY oi.product_id, p.name
		ORDER BY SUM(oi.quantity) DESC, oi.product_id
		LIMIT 5
	`, since)
	if err != nil {
		return a, err
	}
	a.TopProducts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopProduct, error) {
		var p TopProduct
		err := row.Scan(&p.ProductID, &p.Name, &p.Units, &p.Revenue)
		return p, err
	})
	if err != nil {
		return a, err
	}
	if a.TopProducts == nil {
		a.TopProducts = []TopProduct{}
	}
	return a, nil
}

func averageOrder(revenue decimal.Decimal, orders int) decimal.Decimal {
	if orders == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(int64(orders))).Round(2)
}
