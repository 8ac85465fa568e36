package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/logging"
	"github.com/safar/go-storefront/internal/payment"
)

const maxWebhookBody = 1 << 20

// StripeWebhook verifies the provider signature before anything in the
// body is trusted. Bad signatures are rejected without touching order
// state; unknown event types are acknowledged and dropped.
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Unable to read request body")
		return
	}

	event, err := payment.ParseEvent(body, c.GetHeader("Stripe-Signature"), h.webhookSecret, time.Now())
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			logging.FromCtx(c.Request.Context()).Warn("webhook signature verification failed", "remote", c.ClientIP())
		}
		respondError(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.orchestrator.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		logging.FromCtx(c.Request.Context()).Error("webhook processing failed",
			"event_id", event.ID, "type", event.Type, "error", err)
		respondError(c, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
