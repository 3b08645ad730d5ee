package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/media-vault/internal/convert"
	"github.com/and161185/media-vault/internal/errs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// retryAfter is the hint sent with 503 responses, in seconds.
const retryAfter = "5"

var errPanic = errors.New("panic")

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrAuthRequired), errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrWrongPassword),
		errors.Is(err, errs.ErrEmailRestricted),
		errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrInvalidPassphrase),
		errors.Is(err, errs.ErrRevoked),
		errors.Is(err, errs.ErrScopeMismatch):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrExpired), errors.Is(err, errs.ErrExhausted):
		return http.StatusGone
	case errors.Is(err, errs.ErrAlreadyConfigured), errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrInvalidResource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders the error envelope. Internal and storage failures get a
// generic message; their details only go to the log.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusServiceUnavailable:
		log.Warn("storage unavailable", zap.Error(err))
		c.Header("Retry-After", retryAfter)
		msg = errs.ErrUnavailable.Error()
	case http.StatusInternalServerError:
		if !errors.Is(err, errPanic) {
			log.Error("internal error", zap.String("route", c.FullPath()), zap.Error(err))
		}
		msg = "internal error"
	}
	c.JSON(code, convert.ErrorBody{Error: convert.ErrorDTO{Kind: errs.Kind(err), Message: msg}})
}
