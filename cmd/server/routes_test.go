package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:           "test",
		Port:          "0",
		CORSOrigin:    "http://localhost:3000",
		AuthRateLimit: 100,
	}
}

func TestRoutesRegistered(t *testing.T) {
	e := newServer(testConfig())

	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}

	want := []string{
		"POST /signup.php", "POST /login.php", "POST /logout.php", "GET /check_session.php",
		"POST /forgot_password.php", "POST /verify_reset_code.php", "POST /reset_password.php",
		"GET /get_profile.php", "POST /update_profile.php", "POST /change_password.php", "DELETE /delete_account.php",
		"GET /get_products.php", "POST /add_product.php", "POST /update_product.php", "DELETE /delete_product.php",
		"GET /get_events.php", "POST /add_event.php", "POST /update_event.php", "DELETE /delete_event.php",
		"POST /book_event.php", "GET /get_bookings.php",
		"GET /get_cart.php", "POST /add_cart.php", "POST /update_cart.php", "POST /delete_cart.php", "POST /clear_cart.php",
		"GET /get_wishlist.php", "POST /add_wishlist.php", "POST /delete_wishlist.php",
		"POST /create_order.php", "GET /get_orders.php", "GET /get_order_details.php",
		"GET /get_seller_orders.php", "POST /update_order_status.php",
		"POST /create_payment_intent.php",
		"GET /get_reviews.php", "POST /add_review.php",
		"GET /get_conversations.php", "POST /start_conversation.php", "GET /get_messages.php",
		"POST /send_message.php", "GET /ws/conversations/:id",
		"GET /admin_users.php", "POST /admin_users.php", "PUT /admin_users.php", "DELETE /admin_users.php",
		"GET /admin_analytics.php", "GET /admin_orders.php",
		"GET /get_seller.php", "GET /wallet_pass.php", "GET /health", "GET /ready",
	}
	for _, route := range want {
		assert.True(t, have[route], "missing route %s", route)
	}
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	e := newServer(testConfig())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/get_cart.php"},
		{http.MethodPost, "/create_order.php"},
		{http.MethodGet, "/admin_users.php"},
		{http.MethodPost, "/update_order_status.php"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), `"auth_required":true`, tc.path)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	e := newServer(testConfig())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope.php", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
}

func TestHealth(t *testing.T) {
	e := newServer(testConfig())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
