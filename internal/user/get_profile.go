package user

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
)

// GET /get_profile.php
func GetProfile(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)

	var u User
	err := db.Conn.QueryRow(c.Request().Context(), `
		SELECT id, name, email, user_type, company_name, phone, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.CompanyName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Respond(c, apperr.NotFound("User not found"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load profile", err))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"user": u}})
}
