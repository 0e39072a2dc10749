package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// DeleteAccount removes the caller. Sessions, cart, wishlist, bookings and
// reviews go with the user row through ON DELETE CASCADE.
// DELETE /delete_account.php
func DeleteAccount(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)

	req := new(DeleteAccountRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	ctx := c.Request().Context()
	var hashed string
	err := db.Conn.QueryRow(ctx, `SELECT password FROM users WHERE id = $1`, userID).Scan(&hashed)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.NotFound("User not found"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load password", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(req.Password)) != nil {
		return apperr.Respond(c, apperr.Validation("Password is incorrect"))
	}

	if _, err := db.Conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return apperr.Respond(c, apperr.Internal("delete account", err))
	}
	session.ClearCookie(c, c.Scheme() == "https")
	slog.InfoContext(ctx, "account deleted", "user_id", userID)

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Account deleted"})
}
