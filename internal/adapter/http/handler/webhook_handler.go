package handler

import (
	"encoding/json"
	"net/http"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// HeaderPaystackSignature carries the hex HMAC-SHA512 of the raw body.
	HeaderPaystackSignature = "x-paystack-signature"

	providerPaystack = "paystack"

	paystackChargeSuccess   = "charge.success"
	paystackRefundProcessed = "refund.processed"
)

// WebhookHandler receives payment provider notifications.
type WebhookHandler struct {
	gate   ports.EventGate
	sigSvc ports.SignatureService
	secret string
	log    zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler verifying deliveries with secret.
func NewWebhookHandler(gate ports.EventGate, sigSvc ports.SignatureService, secret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{gate: gate, sigSvc: sigSvc, secret: secret, log: log}
}

// Paystack handles POST /api/v1/wallet/paystack/webhook.
// Every verdict the gate reaches is acknowledged with 200 so the provider
// stops redelivering; only infrastructure failures answer 5xx.
func (h *WebhookHandler) Paystack(c *gin.Context) {
	body, err := middleware.ReadBody(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var payload dto.PaystackEvent
	parseErr := json.Unmarshal(body, &payload)

	if !h.sigSvc.Verify(h.secret, body, c.GetHeader(HeaderPaystackSignature)) {
		// Recorded by the gate's log only; nothing reaches storage.
		_, _ = h.gate.Admit(c.Request.Context(), false, ports.PaymentEvent{
			Provider:  providerPaystack,
			EventType: payload.Event,
			Reference: payload.Data.Reference,
		})
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	if parseErr != nil {
		response.Error(c, apperror.Validation("malformed webhook payload"))
		return
	}

	event, ok := toPaymentEvent(&payload, body)
	if !ok {
		h.log.Debug().Str("event", payload.Event).Msg("webhook event ignored")
		c.JSON(http.StatusOK, dto.WebhookAck{Status: true, Message: "event ignored"})
		return
	}

	result, err := h.gate.Admit(c.Request.Context(), true, event)
	if err != nil {
		if apperror.IsRetryable(err) {
			h.log.Error().Err(err).Str("reference", event.Reference).Msg("webhook admission failed")
		}
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, event.Reference)
	c.JSON(http.StatusOK, dto.WebhookAck{
		Status:  true,
		Outcome: string(result.Outcome),
		Message: result.Reason,
	})
}

// toPaymentEvent maps the provider payload onto a gate event. Event types the
// ledger does not act on report false.
func toPaymentEvent(p *dto.PaystackEvent, raw []byte) (ports.PaymentEvent, bool) {
	event := ports.PaymentEvent{
		Provider:     providerPaystack,
		EventType:    p.Event,
		WalletNumber: p.Data.Metadata.WalletNumber,
		Amount:       p.Data.Amount,
		Payload:      raw,
	}

	switch p.Event {
	case paystackChargeSuccess:
		event.Kind = ports.PaymentEventCharge
		event.Reference = p.Data.Reference
	case paystackRefundProcessed:
		event.Kind = ports.PaymentEventRefund
		event.Reference = p.Data.TransactionReference
		if event.Reference == "" {
			event.Reference = p.Data.Reference
		}
	default:
		return ports.PaymentEvent{}, false
	}
	return event, true
}
