package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var errBadCredentials = apperr.New(apperr.CodeAuthRequired, "Invalid email or password")

// ===== Login =====
// POST /login.php
func Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	ctx := c.Request().Context()
	var (
		userID   int64
		name     string
		password string
		userType string
	)
	err := db.Conn.QueryRow(ctx, `
		SELECT id, name, password, user_type FROM users WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(req.Email))).Scan(&userID, &name, &password, &userType)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, errBadCredentials)
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load user for login", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(password), []byte(req.Password)); err != nil {
		return apperr.Respond(c, errBadCredentials)
	}

	// Drop any session the browser already carried before issuing a new one.
	if old := session.FromRequest(c); old != "" {
		_ = session.Destroy(ctx, db.Conn, old)
	}

	s, err := session.Create(ctx, db.Conn, userID, userType, name, cfg.sessionTTL)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("create session", err))
	}
	session.SetCookie(c, s, cfg.cookieSecure)
	slog.InfoContext(ctx, "user logged in", "user_id", userID, "user_type", userType)

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "Login successful",
		"userType": userType,
		"userId":   userID,
		"username": name,
	})
}

// POST /logout.php
func Logout(c echo.Context) error {
	if id := session.FromRequest(c); id != "" {
		if err := session.Destroy(c.Request().Context(), db.Conn, id); err != nil {
			slog.WarnContext(c.Request().Context(), "destroy session failed", "error", err)
		}
	}
	session.ClearCookie(c, cfg.cookieSecure)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logged out"})
}

// CheckSession reports whether the cookie maps to a live session. It never
// answers 401 so the frontend can call it on every page load.
// GET /check_session.php
func CheckSession(c echo.Context) error {
	id := session.FromRequest(c)
	if id == "" {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "loggedIn": false})
	}

	s, err := session.Lookup(c.Request().Context(), db.Conn, id)
	if errors.Is(err, session.ErrNotFound) {
		session.ClearCookie(c, cfg.cookieSecure)
		return c.JSON(http.StatusOK, echo.Map{"success": true, "loggedIn": false})
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("check session", err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"loggedIn": true,
		"userId":   s.UserID,
		"userType": s.UserType,
		"username": s.Username,
	})
}
