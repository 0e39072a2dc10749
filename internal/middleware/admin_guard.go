package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
)

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, ok := c.Get("role").(string)
		if !ok || role == "" {
			return apperr.Respond(c, apperr.ErrAuthRequired)
		}
		if role != "admin" {
			return apperr.Respond(c, apperr.Forbidden("Admin access only"))
		}
		return next(c)
	}
}
