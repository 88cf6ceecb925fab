package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pepe1603/sgpauth"
)

type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// writeError translates the engine's error taxonomy into stable machine
// codes. Anything outside the taxonomy is an infrastructure failure and
// maps to 503 so callers know a retry may succeed.
func writeError(c echo.Context, err error) error {
	var locked *sgpauth.LockedError
	if errors.As(err, &locked) {
		secs := int(locked.RetryAfter.Seconds())
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return c.JSON(http.StatusTooManyRequests, errorBody{
			Code:              "account_locked",
			Message:           "too many failed attempts, try again later",
			RetryAfterSeconds: secs,
		})
	}

	if sgpauth.IsBusinessError(err) {
		for _, m := range errorMappings {
			if errors.Is(err, m.target) {
				return c.JSON(m.status, errorBody{Code: m.code, Message: m.target.Error()})
			}
		}
	}

	c.Logger().Errorf("auth backend failure: %v", err)
	return c.JSON(http.StatusServiceUnavailable, errorBody{
		Code:    "backend_unavailable",
		Message: "service temporarily unavailable",
	})
}

var errorMappings = []struct {
	target error
	status int
	code   string
}{
	{sgpauth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{sgpauth.ErrAccountNotVerified, http.StatusForbidden, "account_not_verified"},
	{sgpauth.ErrAccountSuspended, http.StatusForbidden, "account_suspended"},
	{sgpauth.ErrAccountLocked, http.StatusTooManyRequests, "account_locked"},
	{sgpauth.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{sgpauth.ErrEmailExists, http.StatusConflict, "email_exists"},
	{sgpauth.ErrVerificationCodeInvalid, http.StatusBadRequest, "code_invalid"},
	{sgpauth.ErrVerificationCodeExpired, http.StatusGone, "code_expired"},
	{sgpauth.ErrResetCodeNotRequested, http.StatusBadRequest, "reset_not_requested"},
	{sgpauth.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{sgpauth.ErrPasswordPolicy, http.StatusBadRequest, "password_policy"},
}
