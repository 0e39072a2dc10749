package auth

import (
	"time"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

type settings struct {
	sessionTTL   time.Duration
	cookieSecure bool
	jwtSecret    []byte
	resetTTL     time.Duration
}

var cfg = settings{
	sessionTTL: 7 * 24 * time.Hour,
	jwtSecret:  []byte("dev-only-secret"),
	resetTTL:   15 * time.Minute,
}

// Configure copies the auth related settings out of the loaded config.
func Configure(c *config.Config) {
	cfg = settings{
		sessionTTL:   c.SessionTTL,
		cookieSecure: c.SessionCookieSecure,
		jwtSecret:    []byte(c.JWTSecret),
		resetTTL:     c.PasswordResetTTL,
	}
}
