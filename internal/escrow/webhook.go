package escrow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Eaziking2002/talent-afro-sub001/internal/logging"
)

// Webhook event types sent by the payment gateway.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
)

// WebhookHandler verifies and processes gateway callbacks.
type WebhookHandler struct {
	service *Service
	secret  []byte
}

// NewWebhookHandler creates a webhook handler with the shared signing secret.
func NewWebhookHandler(service *Service, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: []byte(secret)}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/payments/webhook", h.Handle)
}

type webhookPayload struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Handle processes POST /payments/webhook. The body is authenticated with
// an HMAC-SHA256 signature over the raw bytes in X-Webhook-Signature.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "failed to read request body",
		})
		return
	}

	if !h.verify(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_signature",
			"message": "webhook signature verification failed",
		})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "malformed webhook payload",
		})
		return
	}

	ctx := c.Request.Context()
	var tx *Transaction

	switch payload.Type {
	case EventPaymentSucceeded:
		tx, err = h.service.ConfirmEscrow(ctx, payload.Reference, true, "")
	case EventPaymentFailed:
		tx, err = h.service.ConfirmEscrow(ctx, payload.Reference, false, payload.Reason)
	case EventPayoutCompleted:
		tx, err = h.service.CompletePayout(ctx, payload.Reference)
	case EventPayoutFailed:
		tx, err = h.service.FailPayout(ctx, payload.Reference, payload.Reason)
	default:
		// Acknowledge unknown event types so the gateway stops retrying.
		logging.L(ctx).Debug("ignoring unknown webhook event", "type", payload.Type)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "transactionId": tx.ID, "status": tx.Status})
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the hex HMAC-SHA256 signature for a webhook body.
// Exposed for tests and the development gateway.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
