package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
)

// RequireRoles ensures the requester's user type is one of the allowed roles.
// Usage: route(..., RequireRoles("seller", "admin"))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if role == "" {
				return apperr.Respond(c, apperr.ErrAuthRequired)
			}

			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return apperr.Respond(c, apperr.ErrForbidden)
		}
	}
}
