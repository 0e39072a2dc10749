package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, h echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", int64(1))
	c.Set("session_id", "s1")
	require.NoError(t, h(c))
	return rec
}

func TestUpdateProfileRejectsBadEmail(t *testing.T) {
	rec := call(t, UpdateProfile, http.MethodPost, "/update_profile.php", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email address")
}

func TestChangePasswordValidation(t *testing.T) {
	rec := call(t, ChangePassword, http.MethodPost, "/change_password.php", `{"current_password":"secret1","new_password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "new_password is invalid")

	rec = call(t, ChangePassword, http.MethodPost, "/change_password.php", `{"current_password":"secret1","new_password":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 6 characters")
}

func TestDeleteAccountNeedsPassword(t *testing.T) {
	rec := call(t, DeleteAccount, http.MethodDelete, "/delete_account.php", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")
}

func TestGetSellerProfileNeedsID(t *testing.T) {
	rec := call(t, GetSellerProfile, http.MethodGet, "/get_seller.php?id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
