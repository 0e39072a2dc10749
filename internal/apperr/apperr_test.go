package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeBelowMinimumOrder, http.StatusBadRequest},
		{CodeAuthRequired, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyBooked, http.StatusConflict},
		{CodeInsufficientStock, http.StatusConflict},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
		{Code("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Status())
		})
	}
}

func TestErrorsIsAndAs(t *testing.T) {
	wrapped := fmt.Errorf("booking: %w", New(CodeAlreadyBooked, "You have already booked this event"))

	assert.True(t, errors.Is(wrapped, &Error{Code: CodeAlreadyBooked}))
	assert.False(t, errors.Is(wrapped, &Error{Code: CodeSoldOut}))
	assert.Equal(t, CodeAlreadyBooked, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))

	cause := errors.New("connection reset")
	assert.ErrorIs(t, Internal("db", cause), cause)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespond(t *testing.T) {
	e := echo.New()

	t.Run("validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

		require.NoError(t, Respond(c, Validation("Order must contain at least one item")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Order must contain at least one item", body["message"])
		assert.Equal(t, "validation_error", body["code"])
		assert.NotContains(t, body, "auth_required")
	})

	t.Run("auth required flag", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		require.NoError(t, Respond(c, ErrAuthRequired))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, true, decode(t, rec)["auth_required"])
	})

	t.Run("plain error hides cause", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		require.NoError(t, Respond(c, errors.New("pq: secret detail")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
	})

	t.Run("internal hides operation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		require.NoError(t, Respond(c, Internal("insert order_items", errors.New("deadlock"))))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "Something went wrong, please try again", body["message"])
		assert.Equal(t, "internal_error", body["code"])
	})
}

func TestHTTPErrorHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/nope", nil), rec)

	HTTPErrorHandler(echo.ErrNotFound, c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_found", body["code"])
	assert.Equal(t, false, body["success"])
}
