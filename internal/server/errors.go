package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	userdomain "github.com/smallbiznis/entitle/internal/user/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, entitlementdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_event",
			Message: "invalid event data: event id not found",
		}
	case errors.Is(err, entitlementdomain.ErrMissingCustomer):
		return http.StatusBadRequest, errorPayload{
			Type:    "missing_customer",
			Message: "customer id not found in event data",
		}
	case errors.Is(err, entitlementdomain.ErrInvalidPayload),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "user not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "failed to process request",
		}
	}
}

// classifyErrorForLog buckets errors for the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusNotFound:
		return "not_found", payload.Type
	case status >= http.StatusInternalServerError:
		return "internal_error", payload.Type
	default:
		return "validation_error", payload.Type
	}
}
