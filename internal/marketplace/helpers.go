package marketplace

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// now is swapped in tests.
var now = time.Now

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// caller returns the session identity set by RequireSession.
func caller(c echo.Context) (int64, string) {
	userID, _ := c.Get("user_id").(int64)
	role, _ := c.Get("role").(string)
	return userID, role
}

func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == "admin"
}

// queryID parses a positive integer query parameter.
func queryID(c echo.Context, name string) (int64, bool) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// page reads limit/offset with sane bounds.
func page(c echo.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// idempotencyKey prefers the header over the body field.
func idempotencyKey(c echo.Context, fromBody string) string {
	if h := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")); h != "" {
		return h
	}
	return strings.TrimSpace(fromBody)
}
