// Package apperr holds the error kinds shared by every service and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBadCredential     = errors.New("bad credential")
	ErrSamePassword      = errors.New("same password")
	ErrRoleEscalation    = errors.New("role escalation")
	ErrAlreadyInactive   = errors.New("already inactive")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrUnauthorized      = errors.New("unauthorized")
)

const unexpectedMessage = "unexpected error"

type kind struct {
	err    error
	code   string
	status int
}

var kinds = []kind{
	{ErrValidation, "validation", http.StatusBadRequest},
	{ErrInsufficientStock, "insufficient_stock", http.StatusBadRequest},
	{ErrBadCredential, "bad_credential", http.StatusBadRequest},
	{ErrSamePassword, "same_password", http.StatusBadRequest},
	{ErrRoleEscalation, "role_escalation", http.StatusBadRequest},
	{ErrAlreadyInactive, "already_inactive", http.StatusBadRequest},
	{ErrInvalidPrice, "invalid_price", http.StatusBadRequest},
	{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrConflict, "conflict", http.StatusConflict},
}

func lookup(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return kind{}, false
}

// Kind returns a stable code for err; anything outside the taxonomy is "unexpected".
func Kind(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return "unexpected"
}

func Status(err error) int {
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// FromDB turns gorm errors into domain kinds and leaves everything else untouched.
func FromDB(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	default:
		return err
	}
}

// HTTP logs err under event at a level matching its status and converts it for echo.
func HTTP(l *slog.Logger, event string, err error) error {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "error", err)
		return echo.NewHTTPError(status, unexpectedMessage).SetInternal(err)
	}
	l.Warn(event, "status", status, "reason", Kind(err), "error", err)
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

// ErrorHandler renders every failure as {"success":false,"message":...}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := Status(err)
	message := unexpectedMessage
	code := Kind(err)
	var cause error

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprint(he.Message)
		if he.Internal != nil {
			code = Kind(he.Internal)
			cause = he.Internal
		} else {
			code = codeForStatus(status)
		}
	} else if status < http.StatusInternalServerError {
		message = err.Error()
	} else {
		cause = err
	}

	body := echo.Map{
		"success": false,
		"message": message,
		"kind":    code,
	}
	if status >= http.StatusInternalServerError && cause != nil {
		body["error"] = cause.Error()
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func codeForStatus(status int) string {
	for _, k := range kinds {
		if k.status == status {
			return k.code
		}
	}
	if status >= http.StatusInternalServerError {
		return "unexpected"
	}
	return "http_error"
}
