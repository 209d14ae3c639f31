package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"secureapi/internal/auth"
	"secureapi/internal/ratelimit"
	"secureapi/internal/service"
)

var errUnauthorized = errors.New("missing bearer token")

type apiError struct {
	status  int
	code    string
	message string
}

func classifyError(err error) apiError {
	switch {
	case errors.Is(err, errUnauthorized):
		return apiError{http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated"}
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"}
	case errors.Is(err, auth.ErrTokenExpired):
		return apiError{http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired"}
	case errors.Is(err, auth.ErrTokenMalformed):
		return apiError{http.StatusUnauthorized, "TOKEN_MALFORMED", "Invalid token"}
	case errors.Is(err, auth.ErrMissingSubject):
		return apiError{http.StatusUnauthorized, "TOKEN_MISSING_SUBJECT", "Invalid token"}
	case errors.Is(err, service.ErrForbidden):
		return apiError{http.StatusForbidden, "FORBIDDEN", "Not authorized"}
	case errors.Is(err, service.ErrUserNotFound):
		return apiError{http.StatusNotFound, "USER_NOT_FOUND", "User not found"}
	case errors.Is(err, service.ErrUserExists):
		return apiError{http.StatusBadRequest, "USER_EXISTS", "User already exists"}
	case errors.Is(err, service.ErrInvalidRole):
		return apiError{http.StatusBadRequest, "INVALID_ROLE", "Invalid role"}
	case errors.Is(err, service.ErrInvalidInput):
		return apiError{http.StatusBadRequest, "INVALID_INPUT", "Invalid request"}
	case errors.Is(err, service.ErrInvalidAmount):
		return apiError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a finite number"}
	case errors.Is(err, ratelimit.ErrTooManyAttempts):
		return apiError{http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many login attempts, try again later"}
	case errors.Is(err, service.ErrStoreUnavailable):
		return apiError{http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Service temporarily unavailable"}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL", "Internal server error"}
	}
}

// respondError is the single place where errors become HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	apiErr := classifyError(err)

	entry := h.log.WithFields(logrus.Fields{
		"status":     apiErr.status,
		"code":       apiErr.code,
		"request_id": c.GetString(requestIDKey),
	})
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != "" {
			entry = entry.WithField("error_code", code)
		}
		for k, v := range oopsErr.Context() {
			entry = entry.WithField(k, v)
		}
	}

	switch {
	case apiErr.status >= http.StatusInternalServerError:
		entry.WithError(err).Error("request failed")
	case apiErr.status == http.StatusUnauthorized:
		entry.WithError(err).Info("authentication rejected")
	case apiErr.status == http.StatusForbidden:
		entry.Info("authorization denied")
	}

	if apiErr.status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(apiErr.status, gin.H{"error": apiErr.message, "code": apiErr.code})
}
