// Package apperr defines the error taxonomy shared by every handler and the
// JSON envelope failures are rendered into.
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Code is a stable, machine readable error category.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeAuthRequired      Code = "auth_required"
	CodeForbidden         Code = "forbidden"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeAlreadyBooked     Code = "already_booked"
	CodeInsufficientStock Code = "insufficient_stock"
	CodeBelowMinimumOrder Code = "below_minimum_order"
	CodeSoldOut           Code = "sold_out"
	CodeRateLimited       Code = "rate_limited"
	CodeUnavailable       Code = "unavailable"
	CodeInternal          Code = "internal_error"
)

// Status maps a code to its HTTP status.
func (c Code) Status() int {
	switch c {
	case CodeValidation, CodeBelowMinimumOrder:
		return http.StatusBadRequest
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyBooked, CodeInsufficientStock, CodeSoldOut:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is an application error with a display message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(message string) *Error { return New(CodeValidation, message) }
func NotFound(message string) *Error   { return New(CodeNotFound, message) }
func Forbidden(message string) *Error  { return New(CodeForbidden, message) }
func Conflict(message string) *Error   { return New(CodeConflict, message) }

// Internal marks err as a server fault. message names the failed operation
// for the log; clients only ever see a generic message.
func Internal(message string, err error) *Error {
	return Wrap(CodeInternal, message, err)
}

var (
	ErrAuthRequired = New(CodeAuthRequired, "Authentication required")
	ErrForbidden    = New(CodeForbidden, "Access denied")
)

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Respond writes err as {success:false, message, code}. Internal errors are
// logged with their operation and cause and shown with a generic message.
func Respond(c echo.Context, err error) error {
	var ae *Error
	if !errors.As(err, &ae) {
		ae = Internal("unhandled", err)
	}

	message := ae.Message
	if ae.Code == CodeInternal {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"op", ae.Message,
			"err", err,
		)
		message = genericMessage
	}

	body := echo.Map{
		"success": false,
		"message": message,
		"code":    ae.Code,
	}
	if ae.Code == CodeAuthRequired {
		body["auth_required"] = true
	}
	return c.JSON(ae.Code.Status(), body)
}

const genericMessage = "Something went wrong, please try again"

// HTTPErrorHandler renders router and middleware errors in the same envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		err = New(codeForStatus(he.Code), msg)
	}
	if c.Request().Method == http.MethodHead {
		var ae *Error
		if !errors.As(err, &ae) {
			ae = Internal("", err)
		}
		_ = c.NoContent(ae.Code.Status())
		return
	}
	_ = Respond(c, err)
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeAuthRequired
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
