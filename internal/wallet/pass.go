package wallet

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const passPurpose = "wallet_pass"

var ErrInvalidPass = errors.New("invalid or expired wallet pass")

// Issuer builds signed wallet pass links. There is no real Google or Apple
// integration; the token is what a pass service would redeem.
type Issuer struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewIssuer(baseURL, secret string) *Issuer {
	return &Issuer{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
}

type passClaims struct {
	Purpose   string    `json:"purpose"`
	BookingID int64     `json:"booking_id"`
	EventID   int64     `json:"event_id"`
	EventName string    `json:"event_name"`
	EventDate time.Time `json:"event_date"`
	Location  string    `json:"location"`
	Holder    string    `json:"holder"`
	Quantity  int       `json:"quantity"`
	jwt.RegisteredClaims
}

// Issue assigns a serial when p has none and returns both wallet links.
// Passes stay valid until one day after the event.
func (i *Issuer) Issue(p Pass) (Links, Pass, error) {
	if p.BookingID <= 0 || p.EventID <= 0 {
		return Links{}, p, fmt.Errorf("wallet pass needs booking and event ids")
	}
	if p.Serial == "" {
		p.Serial = uuid.NewString()
	}

	expires := p.EventDate.Add(24 * time.Hour)
	if p.EventDate.IsZero() || expires.Before(i.now()) {
		expires = i.now().Add(24 * time.Hour)
	}
	claims := passClaims{
		Purpose:   passPurpose,
		BookingID: p.BookingID,
		EventID:   p.EventID,
		EventName: p.EventName,
		EventDate: p.EventDate,
		Location:  p.Location,
		Holder:    p.Holder,
		Quantity:  p.Quantity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.Serial,
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Links{}, p, fmt.Errorf("sign wallet pass: %w", err)
	}

	token := url.QueryEscape(signed)
	links := Links{
		Google: fmt.Sprintf("%s/google/save?serial=%s&token=%s", i.baseURL, p.Serial, token),
		Apple:  fmt.Sprintf("%s/apple/%s.pkpass?token=%s", i.baseURL, p.Serial, token),
	}
	return links, p, nil
}

// Verify parses a pass token produced by Issue.
func (i *Issuer) Verify(token string) (Pass, error) {
	var claims passClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid || claims.Purpose != passPurpose {
		return Pass{}, ErrInvalidPass
	}
	return Pass{
		Serial:    claims.ID,
		BookingID: claims.BookingID,
		EventID:   claims.EventID,
		EventName: claims.EventName,
		EventDate: claims.EventDate,
		Location:  claims.Location,
		Holder:    claims.Holder,
		Quantity:  claims.Quantity,
	}, nil
}
