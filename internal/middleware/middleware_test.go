package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func run(t *testing.T, h echo.HandlerFunc, setup func(c echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if setup != nil {
		setup(c)
	}
	require.NoError(t, h(c))
	return rec
}

func TestRequireRoles(t *testing.T) {
	h := RequireRoles("seller", "admin")(ok)

	rec := run(t, h, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"auth_required":true`)

	rec = run(t, h, func(c echo.Context) { c.Set("role", "buyer") })
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = run(t, h, func(c echo.Context) { c.Set("role", "seller") })
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = run(t, h, func(c echo.Context) { c.Set("role", "admin") })
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminGuard(t *testing.T) {
	h := AdminGuard(ok)

	assert.Equal(t, http.StatusUnauthorized, run(t, h, nil).Code)
	assert.Equal(t, http.StatusForbidden, run(t, h, func(c echo.Context) { c.Set("role", "seller") }).Code)
	assert.Equal(t, http.StatusOK, run(t, h, func(c echo.Context) { c.Set("role", "admin") }).Code)
}

func TestRequireSessionWithoutCookie(t *testing.T) {
	rec := run(t, RequireSession(ok), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"auth_required":true`)
	assert.Contains(t, rec.Body.String(), `"code":"auth_required"`)
}

type itemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity" validate:"gte=1"`
}

type orderInput struct {
	OrderType string      `json:"order_type" validate:"required,oneof=product event"`
	Items     []itemInput `json:"items" validate:"required,min=1,dive"`
	Note      string      `json:"note" validate:"max=5"`
}

func bind(t *testing.T, body string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return Bind(e.NewContext(req, httptest.NewRecorder()), new(orderInput))
}

func TestBindMessages(t *testing.T) {
	cases := map[string]string{
		`{"items":[{"quantity":1}]}`:                                         "order_type is required",
		`{"order_type":"gift","items":[{"quantity":1}]}`:                     "order_type must be one of: product, event",
		`{"order_type":"product","items":[]}`:                                "items must contain at least 1 entries",
		`{"order_type":"product","items":[{"quantity":0}]}`:                  "quantity must be at least 1",
		`{"order_type":"product","items":[{"quantity":1}],"note":"abcdefg"}`: "note must be at most 5",
		`{"order_type":`:                                                     "Invalid request body",
	}
	for body, want := range cases {
		err := bind(t, body)
		require.Error(t, err, body)
		assert.Equal(t, want, messageOf(err), body)
	}

	assert.NoError(t, bind(t, `{"order_type":"event","items":[{"quantity":2}]}`))
}

func messageOf(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

type rejectAll struct{ calls int }

func (r *rejectAll) Validate(any) error {
	r.calls++
	return apperr.Validation("rejected by registered validator")
}

func TestBindUsesRegisteredValidator(t *testing.T) {
	e := echo.New()
	v := &rejectAll{}
	e.Validator = v
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_type":"event","items":[{"quantity":2}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := Bind(e.NewContext(req, httptest.NewRecorder()), new(orderInput))
	require.Error(t, err)
	assert.Equal(t, "rejected by registered validator", messageOf(err))
	assert.Equal(t, 1, v.calls)
}

type plainErrValidator struct{}

func (plainErrValidator) Validate(any) error { return errors.New("boom") }

func TestBindWrapsForeignValidatorErrors(t *testing.T) {
	e := echo.New()
	e.Validator = plainErrValidator{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := Bind(e.NewContext(req, httptest.NewRecorder()), new(orderInput))
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Equal(t, "Invalid request", messageOf(err))
}
