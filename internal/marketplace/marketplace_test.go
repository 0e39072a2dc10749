package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

func call(t *testing.T, h echo.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	e.Validator = mware.NewValidator()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", int64(7))
	c.Set("role", "buyer")

	require.NoError(t, h(c))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestStockDelta(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{StatusPending, StatusProcessing, -1},
		{StatusPending, StatusShipped, -1},
		{StatusProcessing, StatusShipped, 0},
		{StatusShipped, StatusDelivered, 0},
		{StatusProcessing, StatusCancelled, 1},
		{StatusDelivered, StatusCancelled, 1},
		{StatusShipped, StatusPending, 1},
		{StatusPending, StatusCancelled, 0},
		{StatusCancelled, StatusProcessing, -1},
		{StatusCancelled, StatusPending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, stockDelta(tt.from, tt.to))
		})
	}
}

func TestStockDeltaRoundTripIsBalanced(t *testing.T) {
	path := []string{StatusPending, StatusShipped, StatusCancelled, StatusProcessing, StatusDelivered, StatusPending}
	sum := 0
	for i := 1; i < len(path); i++ {
		sum += stockDelta(path[i-1], path[i])
	}
	assert.Zero(t, sum)
}

func TestRollupStatus(t *testing.T) {
	s, ok := rollupStatus([]string{StatusShipped, StatusShipped})
	assert.True(t, ok)
	assert.Equal(t, StatusShipped, s)

	_, ok = rollupStatus([]string{StatusShipped, StatusPending})
	assert.False(t, ok)

	_, ok = rollupStatus(nil)
	assert.False(t, ok)
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("delivered"))
	assert.False(t, IsValidStatus("completed"))
	assert.False(t, IsValidStatus(""))
}

func TestCheckQuantity(t *testing.T) {
	widgets := listing{kind: kindProduct, name: "Widgets", moq: 10, available: 50}
	gala := listing{kind: kindEvent, name: "Gala", moq: 1, available: 2}
	soldOut := listing{kind: kindEvent, name: "Gala", moq: 1, available: 0}

	assert.NoError(t, checkQuantity(widgets, 10))
	assert.NoError(t, checkQuantity(widgets, 50))
	assert.Equal(t, apperr.CodeBelowMinimumOrder, apperr.CodeOf(checkQuantity(widgets, 9)))
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(checkQuantity(widgets, 51)))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(checkQuantity(widgets, 0)))

	assert.NoError(t, checkQuantity(gala, 2))
	err := checkQuantity(gala, 3)
	assert.Equal(t, apperr.CodeSoldOut, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "Only 2 tickets left")
	assert.Contains(t, checkQuantity(soldOut, 1).Error(), "sold out")
}

func TestMergeItems(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := mergeItems(kindProduct, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Order must contain at least one item")
	})

	t.Run("duplicates folded and sorted", func(t *testing.T) {
		items, err := mergeItems(kindProduct, []OrderItemRequest{
			{ProductID: 9, Quantity: 2},
			{ProductID: 3, Quantity: 1},
			{ProductID: 9, Quantity: 5},
		})
		require.NoError(t, err)
		assert.Equal(t, []OrderItemRequest{
			{ProductID: 3, Quantity: 1},
			{ProductID: 9, Quantity: 7},
		}, items)
	})

	t.Run("both ids", func(t *testing.T) {
		_, err := mergeItems(kindProduct, []OrderItemRequest{{ProductID: 1, EventID: 2, Quantity: 1}})
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := mergeItems(kindProduct, []OrderItemRequest{{EventID: 2, Quantity: 1}})
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
		_, err = mergeItems(kindEvent, []OrderItemRequest{{ProductID: 2, Quantity: 1}})
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})
}

func TestRatingSummaryFinish(t *testing.T) {
	s := RatingSummary{RatingCounts: map[int]int{1: 0, 2: 1, 3: 0, 4: 1, 5: 1}}
	s.finish()
	assert.Equal(t, 3, s.TotalReviews)
	assert.InDelta(t, 3.7, s.AverageRating, 0.001)

	empty := RatingSummary{RatingCounts: map[int]int{}}
	empty.finish()
	assert.Zero(t, empty.AverageRating)
}

func TestParseEventDate(t *testing.T) {
	for _, in := range []string{"2030-05-01T18:30:00Z", "2030-05-01T18:30", "2030-05-01 18:30:00", "2030-05-01 18:30"} {
		got, err := parseEventDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2030, 5, 1, 18, 30, 0, 0, time.UTC), got.UTC(), in)
	}
	got, err := parseEventDate(" 2030-05-01 ")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Day())

	_, err = parseEventDate("next friday")
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?id=12&bad=-3&limit=500&offset=20", nil)
	req.Header.Set("Idempotency-Key", " hdr-key ")
	c := e.NewContext(req, httptest.NewRecorder())

	id, ok := queryID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
	_, ok = queryID(c, "bad")
	assert.False(t, ok)
	_, ok = queryID(c, "missing")
	assert.False(t, ok)

	limit, offset := page(c)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, 20, offset)

	assert.Equal(t, "hdr-key", idempotencyKey(c, "body-key"))
	c2 := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "body-key", idempotencyKey(c2, " body-key"))
	l, o := page(c2)
	assert.Equal(t, defaultPageSize, l)
	assert.Zero(t, o)
}

func TestExactlyOne(t *testing.T) {
	assert.True(t, exactlyOne(1, 0))
	assert.True(t, exactlyOne(0, 1))
	assert.False(t, exactlyOne(0, 0))
	assert.False(t, exactlyOne(1, 1))
}

func TestCheckBookable(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	past := listing{kind: kindEvent, name: "Expo", available: 5, eventDate: fixed.Add(-time.Hour)}
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(checkBookable(past, 1)))

	future := listing{kind: kindEvent, name: "Expo", available: 5, eventDate: fixed.Add(time.Hour), price: decimal.NewFromInt(10)}
	assert.NoError(t, checkBookable(future, 5))
	assert.Equal(t, apperr.CodeSoldOut, apperr.CodeOf(checkBookable(future, 6)))
}

func TestHandlersRejectBadInputBeforeTouchingTheDatabase(t *testing.T) {
	tests := []struct {
		name    string
		h       echo.HandlerFunc
		method  string
		target  string
		body    string
		status  int
		message string
	}{
		{"empty order", CreateOrder, http.MethodPost, "/create_order.php",
			`{"order_type":"product","items":[]}`, http.StatusBadRequest, "Order must contain at least one item"},
		{"bad order type", CreateOrder, http.MethodPost, "/create_order.php",
			`{"order_type":"service","items":[{"product_id":1,"quantity":1}]}`, http.StatusBadRequest, "order_type must be one of: product, event"},
		{"long idempotency key", CreateOrder, http.MethodPost, "/create_order.php",
			`{"order_type":"product","items":[{"product_id":1,"quantity":1}],"idempotency_key":"` + strings.Repeat("k", 101) + `"}`,
			http.StatusBadRequest, ""},
		{"cart needs one id", AddToCart, http.MethodPost, "/add_cart.php",
			`{"product_id":1,"event_id":2,"quantity":1}`, http.StatusBadRequest, "Provide exactly one of product_id or event_id"},
		{"cart update zero", UpdateCart, http.MethodPost, "/update_cart.php",
			`{"product_id":1,"quantity":0}`, http.StatusBadRequest, "quantity must be at least 1"},
		{"cart delete no id", DeleteFromCart, http.MethodPost, "/delete_cart.php",
			`{}`, http.StatusBadRequest, "cart_id, product_id or event_id is required"},
		{"wishlist needs one id", AddToWishlist, http.MethodPost, "/add_wishlist.php",
			`{}`, http.StatusBadRequest, "Provide exactly one of product_id or event_id"},
		{"bad status", UpdateOrderStatus, http.MethodPost, "/update_order_status.php",
			`{"order_id":1,"status":"completed"}`, http.StatusBadRequest, ""},
		{"booking without event", BookEvent, http.MethodPost, "/book_event.php",
			`{"quantity":1}`, http.StatusBadRequest, "event_id is required"},
		{"review rating range", AddReview, http.MethodPost, "/add_review.php",
			`{"product_id":1,"rating":6}`, http.StatusBadRequest, ""},
		{"bad product id", GetProducts, http.MethodGet, "/get_products.php?id=abc",
			"", http.StatusBadRequest, "Invalid product id"},
		{"reviews need product", GetReviews, http.MethodGet, "/get_reviews.php",
			"", http.StatusBadRequest, "Invalid product id"},
		{"order details need id", GetOrderDetails, http.MethodGet, "/get_order_details.php",
			"", http.StatusBadRequest, "Invalid order id"},
		{"orders bad status", GetOrders, http.MethodGet, "/get_orders.php?status=lost",
			"", http.StatusBadRequest, "Invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := call(t, tt.h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestReserveErrorMapsConstraints(t *testing.T) {
	ev := listing{kind: kindEvent, id: 3, name: "Trade Expo"}

	err := reserveError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_event_bookings_user_event"}, ev, "insert booking")
	assert.Equal(t, apperr.CodeAlreadyBooked, apperr.CodeOf(err))

	err = reserveError(&pgconn.PgError{Code: "23514", ConstraintName: ticketsCheck}, ev, "reserve tickets")
	assert.Equal(t, apperr.CodeSoldOut, apperr.CodeOf(err))
	assert.Equal(t, "Trade Expo is sold out", err.(*apperr.Error).Message)

	err = reserveError(&pgconn.PgError{Code: "23514", ConstraintName: "events_price_check"}, ev, "reserve tickets")
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))

	err = reserveError(errors.New("conn reset"), ev, "insert booking")
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}
