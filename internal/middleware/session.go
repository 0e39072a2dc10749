package middleware

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

// RequireSession resolves the session cookie and exposes the caller as
// "user_id" (int64), "role", "username" and "session_id" on the context.
func RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := session.FromRequest(c)
		if id == "" {
			return apperr.Respond(c, apperr.ErrAuthRequired)
		}

		s, err := session.Lookup(c.Request().Context(), db.Conn, id)
		if errors.Is(err, session.ErrNotFound) {
			return apperr.Respond(c, apperr.ErrAuthRequired)
		}
		if err != nil {
			slog.ErrorContext(c.Request().Context(), "session lookup failed", "error", err)
			return apperr.Respond(c, apperr.Internal("session lookup", err))
		}

		c.Set("session_id", s.ID)
		c.Set("user_id", s.UserID)
		c.Set("role", s.UserType)
		c.Set("username", s.Username)
		return next(c)
	}
}
