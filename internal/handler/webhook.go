package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// processTimeout bounds the background reconciliation of one delivery.
const processTimeout = 30 * time.Second

// PaymentProcessor reconciles one payment event by identifier;
// webhook.Reconciler is the production implementation.
type PaymentProcessor interface {
	Process(ctx context.Context, paymentID string) error
}

// WebhookHandler receives payment event deliveries from the gateway.
// The contract with the gateway is acknowledge-first: a 200 goes out
// as soon as a payment id is extracted, and reconciliation runs in the
// background.  A delivery the gateway never gets a 200 for is retried
// by the gateway, which the reconciler absorbs idempotently.
type WebhookHandler struct {
	Reconciler PaymentProcessor
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(r PaymentProcessor) *WebhookHandler {
	if r == nil {
		panic("nil reconciler passed to NewWebhookHandler")
	}
	return &WebhookHandler{Reconciler: r}
}

// webhookBody covers the delivery shapes the gateway sends: a nested
// data object for topic notifications and a bare id for legacy ones.
type webhookBody struct {
	ID   json.Number `json:"id"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
	Type string `json:"type"`
}

// Receive handles POST /webhook/mp.
func (h *WebhookHandler) Receive(c echo.Context) error {
	paymentID := h.extractPaymentID(c)
	if paymentID == "" {
		// Malformed deliveries are acknowledged too; a 4xx would only
		// make the gateway resend the same unusable payload.
		log.Printf("webhook: delivery without payment id ignored")
		return c.NoContent(http.StatusOK)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.Reconciler.Process(ctx, paymentID); err != nil {
			log.Printf("webhook: process payment %s: %v", paymentID, err)
		}
	}()

	return c.NoContent(http.StatusOK)
}

// extractPaymentID pulls the payment id from the JSON body, falling
// back to the data.id and id query parameters some notification modes
// use.
func (h *WebhookHandler) extractPaymentID(c echo.Context) string {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err == nil && len(raw) > 0 {
		var body webhookBody
		if json.Unmarshal(raw, &body) == nil {
			if id := body.Data.ID.String(); id != "" && id != "0" {
				return id
			}
			if id := body.ID.String(); id != "" && id != "0" {
				return id
			}
		}
	}
	if id := c.QueryParam("data.id"); id != "" {
		return id
	}
	return c.QueryParam("id")
}
