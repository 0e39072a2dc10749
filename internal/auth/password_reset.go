package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

const resetPurpose = "password_reset"

// maxResetAttempts bounds code guesses per issued code, independent of the client IP.
const maxResetAttempts = 5

var errBadResetToken = apperr.Validation("Invalid or expired reset token")

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

const forgotMessage = "If the email exists, a reset code has been sent."

// POST /forgot_password.php
// Always responds with the same message to avoid user enumeration.
func ForgotPassword(c echo.Context) error {
	req := new(ForgotPasswordRequest)
	if err := mware.Bind(c, req); err != nil {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": forgotMessage})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request().Context()

	var name string
	err := db.Conn.QueryRow(ctx, `SELECT name FROM users WHERE email = $1`, email).Scan(&name)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.ErrorContext(ctx, "forgot password lookup failed", "error", err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": forgotMessage})
	}

	code, err := generateCode()
	if err != nil {
		return apperr.Respond(c, apperr.Internal("generate reset code", err))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("hash reset code", err))
	}

	err = db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM password_reset_codes WHERE email = $1`, email); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO password_reset_codes (email, reset_code, expires_at)
			VALUES ($1, $2, $3)
		`, email, string(hashed), time.Now().Add(cfg.resetTTL))
		return err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("store reset code", err))
	}

	if err := alerts.EnqueuePasswordReset(email, name, code); err != nil {
		slog.WarnContext(ctx, "password reset email not queued", "error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": forgotMessage})
}

type VerifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// POST /verify_reset_code.php
// A matching code is exchanged for a short-lived reset token.
func VerifyResetCode(c echo.Context) error {
	req := new(VerifyResetCodeRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request().Context()

	var (
		rowID     int64
		hashed    string
		expiresAt time.Time
	)
	// Every guess spends an attempt before the code is compared.
	err := db.Conn.QueryRow(ctx, `
		UPDATE password_reset_codes SET attempts = attempts + 1
		WHERE id = (
			SELECT id FROM password_reset_codes
			WHERE email = $1 AND expires_at > NOW()
			ORDER BY created_at DESC LIMIT 1
		) AND attempts < $2
		RETURNING id, reset_code, expires_at
	`, email, maxResetAttempts).Scan(&rowID, &hashed, &expiresAt)
	if db.IsNoRows(err) {
		return apperr.Respond(c, apperr.Validation("Invalid or expired reset code"))
	}
	if err != nil {
		return apperr.Respond(c, apperr.Internal("load reset code", err))
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(req.Code)) != nil {
		return apperr.Respond(c, apperr.Validation("Invalid or expired reset code"))
	}

	nonce := uuid.NewString()
	token, err := signResetToken(email, nonce, expiresAt)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("sign reset token", err))
	}
	if _, err := db.Conn.Exec(ctx,
		`UPDATE password_reset_codes SET reset_token = $1 WHERE id = $2`, hashResetNonce(nonce), rowID,
	); err != nil {
		return apperr.Respond(c, apperr.Internal("store reset token", err))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "reset_token": token})
}

type ResetPasswordRequest struct {
	Token       string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// POST /reset_password.php
func ResetPassword(c echo.Context) error {
	req := new(ResetPasswordRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}

	email, nonce, err := parseResetToken(req.Token)
	if err != nil {
		return apperr.Respond(c, errBadResetToken)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("hash password", err))
	}

	ctx := c.Request().Context()
	var userID int64
	err = db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		// Deleting the code row makes the token single use.
		tag, err := tx.Exec(ctx, `
			DELETE FROM password_reset_codes
			WHERE email = $1 AND reset_token = $2 AND expires_at > NOW()
		`, email, hashResetNonce(nonce))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errBadResetToken
		}
		err = tx.QueryRow(ctx,
			`UPDATE users SET password = $1, updated_at = NOW() WHERE email = $2 RETURNING id`, string(hashed), email,
		).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("User not found")
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM password_reset_codes WHERE email = $1`, email); err != nil {
			return err
		}
		return session.DestroyForUser(ctx, tx, userID)
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeInternal {
			return apperr.Respond(c, err)
		}
		return apperr.Respond(c, apperr.Internal("reset password", err))
	}

	slog.InfoContext(ctx, "password reset", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password updated successfully"})
}

type resetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// signResetToken binds a one-time nonce to email. Only the nonce hash is stored.
func signResetToken(email, nonce string, expiresAt time.Time) (string, error) {
	claims := resetClaims{
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.jwtSecret)
}

func parseResetToken(token string) (string, string, error) {
	var claims resetClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return cfg.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", "", fmt.Errorf("invalid reset token: %w", err)
	}
	if claims.Purpose != resetPurpose || claims.Subject == "" || claims.ID == "" {
		return "", "", errors.New("invalid reset token purpose")
	}
	return claims.Subject, claims.ID, nil
}

func hashResetNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}

// generateCode returns a zero padded 6 digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
