package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/db"
)

const CookieName = "DUTYDINAR_SESSID"

var ErrNotFound = errors.New("session not found or expired")

// Session is the server-side state behind the session cookie.
type Session struct {
	ID        string    `json:"-"`
	UserID    int64     `json:"userId"`
	UserType  string    `json:"userType"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Create stores a new session for the user and returns it.
func Create(ctx context.Context, q db.Querier, userID int64, userType, username string, ttl time.Duration) (Session, error) {
	s := Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserType: userType,
		Username: username,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, user_type, username, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, expires_at
	`, s.ID, userID, userType, username, time.Now().Add(ttl)).Scan(&s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Lookup returns the live session for id. The join against users means a
// deleted account invalidates its sessions even before the cascade runs.
func Lookup(ctx context.Context, q db.Querier, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNotFound
	}
	var s Session
	err := q.QueryRow(ctx, `
		SELECT s.id, s.user_id, u.user_type, s.username, s.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.expires_at > NOW()
	`, id).Scan(&s.ID, &s.UserID, &s.UserType, &s.Username, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func Destroy(ctx context.Context, q db.Querier, id string) error {
	_, err := q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DestroyForUser logs a user out everywhere.
func DestroyForUser(ctx context.Context, q db.Querier, userID int64) error {
	_, err := q.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// PurgeExpired removes expired rows and reports how many were deleted.
func PurgeExpired(ctx context.Context, q db.Querier) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetCookie writes the session cookie onto the response.
func SetCookie(c echo.Context, s Session, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on the client.
func ClearCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the session id carried by the request cookie, if any.
func FromRequest(c echo.Context) string {
	cookie, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
