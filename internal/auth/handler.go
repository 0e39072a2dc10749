package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

type SignupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	UserType    string `json:"userType" validate:"required,oneof=buyer seller"`
	CompanyName string `json:"companyName" validate:"required_if=UserType seller,max=150"`
	Phone       string `json:"phone" validate:"max=30"`
}

// ===== Signup =====
// POST /signup.php
func Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("hash password", err))
	}

	ctx := c.Request().Context()
	var userID int64
	err = db.Conn.QueryRow(ctx, `
		INSERT INTO users (name, email, password, user_type, company_name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, req.Name, req.Email, string(hashed), req.UserType, req.CompanyName, req.Phone).Scan(&userID)
	if db.IsUniqueViolation(err) {
		return apperr.Respond(c, apperr.Conflict("Email already registered"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert user", err))
	}

	if err := alerts.EnqueueWelcomeEmail(userID, req.Email, req.Name, req.UserType); err != nil {
		slog.WarnContext(ctx, "welcome email not queued", "user_id", userID, "error", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Registration successful",
		"userId":  userID,
	})
}
