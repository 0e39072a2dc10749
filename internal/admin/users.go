package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/session"
	"github.com/sudo-init-do/dutydinar/internal/user"
)

const userColumns = `id, name, email, user_type, company_name, phone, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.CompanyName, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

type CreateUserRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	UserType    string `json:"userType" validate:"required,oneof=buyer seller admin"`
	CompanyName string `json:"companyName" validate:"max=150"`
	Phone       string `json:"phone" validate:"max=30"`
}

// UpdateUserRequest leaves nil fields unchanged.
type UpdateUserRequest struct {
	ID          int64   `json:"id" validate:"gte=0"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Password    *string `json:"password" validate:"omitempty,min=6"`
	UserType    *string `json:"userType" validate:"omitempty,oneof=buyer seller admin"`
	CompanyName *string `json:"companyName" validate:"omitempty,max=150"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
}

// targetID reads the user id from the query string or, failing that, the body.
func targetID(c echo.Context, fromBody int64) (int64, error) {
	if v := c.QueryParam("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, apperr.Validation("Invalid user id")
		}
		return id, nil
	}
	if fromBody > 0 {
		return fromBody, nil
	}
	return 0, apperr.Validation("User id is required")
}

// Users dispatches /admin_users.php on the request method.
func Users(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodGet:
		return ListUsers(c)
	case http.MethodPost:
		return CreateUser(c)
	case http.MethodPut, http.MethodPatch:
		return UpdateUser(c)
	case http.MethodDelete:
		return DeleteUser(c)
	}
	return apperr.Respond(c, apperr.Validation("Unsupported method"))
}

// GET /admin_users.php?id=|user_type=|search=
func ListUsers(c echo.Context) error {
	ctx := c.Request().Context()

	if c.QueryParam("id") != "" {
		id, err := targetID(c, 0)
		if err != nil {
			return apperr.Respond(c, err)
		}
		u, err := scanUser(db.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Respond(c, apperr.NotFound("User not found"))
		}
		if err != nil {
			return apperr.Respond(c, apperr.Internal("load user", err))
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"user": u}})
	}

	userType := c.QueryParam("user_type")
	if userType != "" && userType != "buyer" && userType != "seller" && userType != "admin" {
		return apperr.Respond(c, apperr.Validation("user_type must be one of: buyer, seller, admin"))
	}
	search := strings.TrimSpace(c.QueryParam("search"))
	limit, offset := pageParams(c)

	rows, err := db.Conn.Query(ctx, `
		SELECT `+userColumns+`, COUNT(*) OVER ()
		FROM users
		WHERE ($1 = '' OR user_type = $1)
			AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userType, search, limit, offset)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list users", err))
	}
	defer rows.Close()

	users := []user.User{}
	total := 0
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.CompanyName, &u.Phone,
			&u.CreatedAt, &u.UpdatedAt, &total); err != nil {
			return apperr.Respond(c, apperr.Internal("scan user", err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return apperr.Respond(c, apperr.Internal("list users", err))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"users": users, "total": total, "limit": limit, "offset": offset},
	})
}

// POST /admin_users.php
func CreateUser(c echo.Context) error {
	req := new(CreateUserRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.UserType == "seller" && strings.TrimSpace(req.CompanyName) == "" {
		return apperr.Respond(c, apperr.Validation("companyName is required"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("hash password", err))
	}

	u, err := scanUser(db.Conn.QueryRow(c.Request().Context(), `
		INSERT INTO users (name, email, password, user_type, company_name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		strings.TrimSpace(req.Name), req.Email, string(hashed), req.UserType, req.CompanyName, req.Phone))
	if db.IsUniqueViolation(err) {
		return apperr.Respond(c, apperr.Conflict("Email already registered"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("create user", err))
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "User created",
		"userId":  u.ID,
		"data":    echo.Map{"user": u},
	})
}

// PUT /admin_users.php?id=
func UpdateUser(c echo.Context) error {
	adminID, _ := c.Get("user_id").(int64)
	req := new(UpdateUserRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	id, err := targetID(c, req.ID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	if id == adminID && req.UserType != nil && *req.UserType != "admin" {
		return apperr.Respond(c, apperr.Validation("You cannot remove your own admin role"))
	}

	var hashed *string
	if req.Password != nil {
		h, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("hash password", err))
		}
		s := string(h)
		hashed = &s
	}
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &e
	}

	ctx := c.Request().Context()
	var u user.User
	err = db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, `
			UPDATE users SET
				name = COALESCE($1, name),
				email = COALESCE($2, email),
				password = COALESCE($3, password),
				user_type = COALESCE($4, user_type),
				company_name = COALESCE($5, company_name),
				phone = COALESCE($6, phone),
				updated_at = NOW()
			WHERE id = $7
			RETURNING `+userColumns,
			req.Name, req.Email, hashed, req.UserType, req.CompanyName, req.Phone, id))
		if err != nil {
			return err
		}
		if hashed != nil {
			return session.DestroyForUser(ctx, tx, id)
		}
		_, err = tx.Exec(ctx, `UPDATE sessions SET username = $1, user_type = $2 WHERE user_id = $3`, u.Name, u.UserType, id)
		return err
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.Respond(c, apperr.NotFound("User not found"))
	case db.IsUniqueViolation(err):
		return apperr.Respond(c, apperr.Conflict("Email already registered"))
	case err != nil:
		return apperr.Respond(c, apperr.Internal("update user", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "User updated", "data": echo.Map{"user": u}})
}

// DELETE /admin_users.php?id=
// Listings, carts, sessions and messages of the user go with it.
func DeleteUser(c echo.Context) error {
	adminID, _ := c.Get("user_id").(int64)
	id, err := targetID(c, 0)
	if err != nil {
		return apperr.Respond(c, err)
	}
	if id == adminID {
		return apperr.Respond(c, apperr.Validation("Use delete_account.php to delete your own account"))
	}

	tag, err := db.Conn.Exec(c.Request().Context(), `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("delete user", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.Respond(c, apperr.NotFound("User not found"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": fmt.Sprintf("User %d deleted", id)})
}

func pageParams(c echo.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = min(v, 200)
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
