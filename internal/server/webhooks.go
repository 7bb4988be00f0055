package server

import (
	"io"
	"net/http"

	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleStripeWebhook acknowledges processed, replayed and ignored events alike.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconciler.HandleWebhook(c.Request.Context(), payload, c.GetHeader(headerStripeSignature))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result != nil {
		c.Set(logger.KeyEventType, result.EventType)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
