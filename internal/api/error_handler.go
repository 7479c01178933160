package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type errorMapping struct {
	target error
	status int
	msg    string
}

// domainErrors is checked in order with errors.Is; the first match wins.
var domainErrors = []errorMapping{
	{domain.ErrAccountNotFound, http.StatusNotFound, "account not found"},
	{domain.ErrTransactionNotFound, http.StatusNotFound, "transaction not found"},
	{domain.ErrCodeInvalid, http.StatusUnauthorized, "activation code invalid or expired"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "required fields missing or invalid"},
	{domain.ErrInsufficientFunds, http.StatusBadRequest, "insufficient funds"},
	{domain.ErrBelowMinimum, http.StatusBadRequest, "amount below minimum withdrawal"},
	{domain.ErrNotVerified, http.StatusForbidden, "account not verified"},
	{domain.ErrAlreadyVerified, http.StatusConflict, "account already verified"},
	{domain.ErrUsernameTaken, http.StatusConflict, "username already exists"},
	{domain.ErrAccountIDExists, http.StatusConflict, "account id collision, retry"},
	{domain.ErrVersionConflict, http.StatusConflict, "account was modified concurrently, retry"},
	{domain.ErrNotificationFailed, http.StatusInternalServerError, "withdrawal notification failed, nothing was debited"},
}

// NewHTTPErrorHandler renders every error as {"success":false,"error":msg}.
// Domain errors get their mapped status; anything unrecognised is logged in
// full and reported as a bare 500.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolveError(err)
		switch {
		case errors.Is(err, domain.ErrNotificationFailed):
			log.Warn().Err(err).Str("path", c.Path()).Msg("withdrawal rejected: notification failed")
		case status >= http.StatusInternalServerError:
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorResponse{Error: msg})
	}
}

func resolveError(err error) (int, string) {
	// bind failures, router 404/405, middleware rejections
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}

	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, "internal server error"
}
