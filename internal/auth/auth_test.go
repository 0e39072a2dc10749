package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/dutydinar/internal/session"
)

func call(t *testing.T, h echo.HandlerFunc, method, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestSignupValidation(t *testing.T) {
	cases := map[string]struct {
		body    string
		message string
	}{
		"missing email": {
			body:    `{"name":"A","password":"secret1","userType":"buyer"}`,
			message: "email is required",
		},
		"bad email": {
			body:    `{"name":"A","email":"nope","password":"secret1","userType":"buyer"}`,
			message: "email must be a valid email address",
		},
		"short password": {
			body:    `{"name":"A","email":"a@b.co","password":"123","userType":"buyer"}`,
			message: "password must be at least 6 characters",
		},
		"admin signup refused": {
			body:    `{"name":"A","email":"a@b.co","password":"secret1","userType":"admin"}`,
			message: "userType must be one of: buyer, seller",
		},
		"seller without company": {
			body:    `{"name":"A","email":"a@b.co","password":"secret1","userType":"seller"}`,
			message: "companyName is required",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := call(t, Signup, http.MethodPost, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestLoginValidation(t *testing.T) {
	rec, body := call(t, Login, http.MethodPost, `{"email":"a@b.co"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password is required", body["message"])
}

func TestCheckSessionWithoutCookie(t *testing.T) {
	rec, body := call(t, CheckSession, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["loggedIn"])
}

func TestLogoutWithoutCookieClearsCookie(t *testing.T) {
	rec, body := call(t, Logout, http.MethodPost, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestForgotPasswordBadInputIsGeneric(t *testing.T) {
	rec, body := call(t, ForgotPassword, http.MethodPost, `{"email":""}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, forgotMessage, body["message"])
}

func TestVerifyResetCodeValidation(t *testing.T) {
	rec, body := call(t, VerifyResetCode, http.MethodPost, `{"email":"a@b.co","code":"12ab56"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "code is invalid", body["message"])
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	rec, body := call(t, ResetPassword, http.MethodPost, `{"reset_token":"garbage","new_password":"newpass1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired reset token", body["message"])

	wrongPurpose, err := jwt.NewWithClaims(jwt.SigningMethodHS256, resetClaims{
		Purpose: "wallet_pass",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a@b.co",
			ID:        "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(cfg.jwtSecret)
	require.NoError(t, err)

	rec, _ = call(t, ResetPassword, http.MethodPost, `{"reset_token":"`+wrongPurpose+`","new_password":"newpass1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetTokenRoundTrip(t *testing.T) {
	token, err := signResetToken("a@b.co", "nonce-1", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	email, nonce, err := parseResetToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", email)
	assert.Equal(t, "nonce-1", nonce)

	expired, err := signResetToken("a@b.co", "nonce-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, _, err = parseResetToken(expired)
	assert.Error(t, err)

	noID, err := signResetToken("a@b.co", "", time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, _, err = parseResetToken(noID)
	assert.Error(t, err)
}

func TestHashResetNonce(t *testing.T) {
	h := hashResetNonce("nonce-1")
	assert.Len(t, h, 64)
	assert.Equal(t, h, hashResetNonce("nonce-1"))
	assert.NotEqual(t, h, hashResetNonce("nonce-2"))
	assert.NotContains(t, h, "nonce")
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		_, err = strconv.Atoi(code)
		require.NoError(t, err)
	}
}
