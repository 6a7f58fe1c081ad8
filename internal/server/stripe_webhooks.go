package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/smallbiznis/entitle/internal/entitlement/stripe"
)

// HandleStripeWebhook ingests one Stripe event and applies it to the
// affected user's entitlement. The success message for a freshly processed
// event embeds the resolved user id: there is no separate create-user
// endpoint, so callers learn the assigned id from this response.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := stripe.Parse(payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.entitlementSvc.ProcessEvent(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": resultMessage(result)})
}

func resultMessage(result entitlementdomain.Result) string {
	switch result.Status {
	case entitlementdomain.ResultAlreadyProcessed:
		return "event already processed"
	case entitlementdomain.ResultIgnored:
		return "event type not relevant, ignoring"
	default:
		return fmt.Sprintf("event processed successfully for user id %d", result.UserID)
	}
}
