//go:build integration

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/db/dbtest"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

func TestMain(m *testing.M) {
	stop, err := dbtest.Start(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := m.Run()
	stop()
	os.Exit(code)
}

func serve(t *testing.T, h echo.HandlerFunc, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = mware.NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	return nil
}

func TestSignupLoginAndCheckSession(t *testing.T) {
	dbtest.Reset(t)

	rec := serve(t, Signup, http.MethodPost, "/signup.php",
		`{"name":"Acme Supplies","email":"Sales@Acme.example","password":"secret1","userType":"seller","companyName":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(t, Signup, http.MethodPost, "/signup.php",
		`{"name":"Acme Again","email":"sales@acme.example","password":"secret1","userType":"buyer"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, Login, http.MethodPost, "/login.php", `{"email":"sales@acme.example","password":"wrong-one"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	rec = serve(t, Login, http.MethodPost, "/login.php", `{"email":"sales@acme.example","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "seller", body(t, rec)["userType"])
	ck := sessionCookie(rec)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)

	rec = serve(t, CheckSession, http.MethodGet, "/check_session.php", "", ck)
	out := body(t, rec)
	assert.Equal(t, true, out["loggedIn"])
	assert.Equal(t, "Acme Supplies", out["username"])

	rec = serve(t, Logout, http.MethodPost, "/logout.php", "", ck)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, CheckSession, http.MethodGet, "/check_session.php", "", ck)
	assert.Equal(t, false, body(t, rec)["loggedIn"])
}

func TestCheckSessionWithoutCookieIntegration(t *testing.T) {
	rec := serve(t, CheckSession, http.MethodGet, "/check_session.php", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body(t, rec)["loggedIn"])
}

func seedResetCode(t *testing.T, email, code string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = db.Conn.Exec(ctx, `DELETE FROM password_reset_codes WHERE email = $1`, email)
	require.NoError(t, err)
	_, err = db.Conn.Exec(ctx,
		`INSERT INTO password_reset_codes (email, reset_code, expires_at) VALUES ($1, $2, $3)`,
		email, string(hashed), time.Now().Add(10*time.Minute))
	require.NoError(t, err)
}

func TestVerifyResetCodeLocksAfterRepeatedGuesses(t *testing.T) {
	dbtest.Reset(t)
	rec := serve(t, Signup, http.MethodPost, "/signup.php",
		`{"name":"Nadia","email":"nadia@example.com","password":"secret1","userType":"buyer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	seedResetCode(t, "nadia@example.com", "123456")

	for i := 0; i < maxResetAttempts; i++ {
		rec = serve(t, VerifyResetCode, http.MethodPost, "/verify_reset_code.php",
			fmt.Sprintf(`{"email":"nadia@example.com","code":"%06d"}`, 900000+i))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec = serve(t, VerifyResetCode, http.MethodPost, "/verify_reset_code.php",
		`{"email":"nadia@example.com","code":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired reset code", body(t, rec)["message"])
}

func TestResetTokenIsStoredHashedAndSingleUse(t *testing.T) {
	dbtest.Reset(t)
	rec := serve(t, Signup, http.MethodPost, "/signup.php",
		`{"name":"Omar","email":"omar@example.com","password":"secret1","userType":"buyer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	seedResetCode(t, "omar@example.com", "654321")

	rec = serve(t, VerifyResetCode, http.MethodPost, "/verify_reset_code.php",
		`{"email":"omar@example.com","code":"654321"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := body(t, rec)["reset_token"].(string)
	require.NotEmpty(t, token)

	_, nonce, err := parseResetToken(token)
	require.NoError(t, err)
	var stored string
	require.NoError(t, db.Conn.QueryRow(context.Background(),
		`SELECT reset_token FROM password_reset_codes WHERE email = $1`, "omar@example.com").Scan(&stored))
	assert.Equal(t, hashResetNonce(nonce), stored)
	assert.NotContains(t, token, stored)

	payload := `{"reset_token":"` + token + `","new_password":"newpass1"}`
	rec = serve(t, ResetPassword, http.MethodPost, "/reset_password.php", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(t, ResetPassword, http.MethodPost, "/reset_password.php", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, Login, http.MethodPost, "/login.php", `{"email":"omar@example.com","password":"newpass1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
