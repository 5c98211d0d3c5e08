package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// UserHeader carries the authenticated caller id set by the gateway.
const UserHeader = "X-User-ID"

func actorID(c *gin.Context) *string {
	if v := strings.TrimSpace(c.GetHeader(UserHeader)); v != "" {
		return &v
	}
	return nil
}

func requireActor(c *gin.Context) (*string, bool) {
	actor := actorID(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
		return nil, false
	}
	return actor, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSeatConflict), errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrReferenceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var conflict *domain.SeatConflictError
	if errors.As(err, &conflict) {
		body["seats"] = conflict.Seats
	}
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) && invalid.Field != "" {
		body["field"] = invalid.Field
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	c.JSON(status, body)
}
