package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Notes   map[string]string `json:"notes"`
}

// HandlePaymentWebhook settles intents from asynchronous gateway
// deliveries. Replays are safe; completion is idempotent.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider != s.gateway.Name() {
		AbortWithError(c, paymentdomain.ErrProviderNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	signature := strings.TrimSpace(c.GetHeader("X-Razorpay-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(c.GetHeader("X-Webhook-Signature"))
	}
	if verifier, ok := s.gateway.(paymentdomain.WebhookVerifier); ok {
		if !verifier.VerifyWebhookSignature(body, signature) {
			AbortWithError(c, paymentdomain.ErrInvalidSignature)
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	switch strings.TrimSpace(event.Event) {
	case "payment.captured", "order.paid":
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	payment := event.Payload.Payment.Entity
	intentID := strings.TrimSpace(payment.Notes["intent_id"])
	if intentID == "" {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	resp, err := s.billingSvc.CompletePayment(c.Request.Context(), intentID, paymentdomain.Confirmation{
		OrderID:    strings.TrimSpace(payment.OrderID),
		PaymentID:  strings.TrimSpace(payment.ID),
		Signature:  signature,
		RawPayload: body,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
