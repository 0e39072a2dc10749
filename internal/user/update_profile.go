package user

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type UpdateProfileRequest struct {
	Name        string `json:"name" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	CompanyName string `json:"company_name" validate:"max=150"`
	Phone       string `json:"phone" validate:"max=30"`
}

// POST /update_profile.php
// Empty fields keep their current value.
func UpdateProfile(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)

	req := new(UpdateProfileRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	ctx := c.Request().Context()
	var u User
	err := db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE users
			SET name = COALESCE(NULLIF($1, ''), name),
			    email = COALESCE(NULLIF($2, ''), email),
			    company_name = COALESCE(NULLIF($3, ''), company_name),
			    phone = COALESCE(NULLIF($4, ''), phone),
			    updated_at = NOW()
			WHERE id = $5
			RETURNING id, name, email, user_type, company_name, phone, created_at, updated_at
		`, req.Name, req.Email, req.CompanyName, req.Phone, userID).
			Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.CompanyName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE sessions SET username = $1 WHERE user_id = $2`, u.Name, userID)
		return err
	})
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Respond(c, apperr.Conflict("Email already registered"))
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.Respond(c, apperr.NotFound("User not found"))
	case err != nil:
		return apperr.Respond(c, apperr.Internal("update profile", err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Profile updated successfully",
		"data":    echo.Map{"user": u},
	})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,nefield=CurrentPassword"`
}

// POST /change_password.php
// Other sessions of the user are signed out; the current one stays.
func ChangePassword(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	sessionID, _ := c.Get("session_id").(string)

	req := new(ChangePasswordRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	ctx := c.Request().Context()
	var current string
	err := db.Conn.QueryRow(ctx, `SELECT password FROM users WHERE id = $1`, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.NotFound("User not found"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load password", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(current), []byte(req.CurrentPassword)) != nil {
		return apperr.Respond(c, apperr.Validation("Current password is incorrect"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("hash password", err))
	}

	err = db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2`, string(hashed), userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`, userID, sessionID)
		return err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("change password", err))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password changed successfully"})
}
