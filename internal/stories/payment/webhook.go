package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"engagement-shop/internal/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const webhookProvider = "checkout"

// Gateway event types handled by HandleWebhook.
const (
	EventPaymentApproved = "payment_approved"
	EventPaymentCaptured = "payment_captured"
	EventPaymentDeclined = "payment_declined"
	EventPaymentFailed   = "payment_failed"
	EventPaymentRefunded = "payment_refunded"
)

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	} `json:"data"`
}

func eventStatus(eventType string) (Status, bool) {
	switch eventType {
	case EventPaymentApproved, EventPaymentCaptured:
		return StatusCompleted, true
	case EventPaymentDeclined, EventPaymentFailed:
		return StatusFailed, true
	case EventPaymentRefunded:
		return StatusRefunded, true
	}
	return "", false
}

// SignWebhook returns the hex HMAC-SHA256 of body.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) validSignature(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// HandleWebhook applies a signed gateway event. Each event id is processed at most once.
// The returned error is for logging; the gateway is always answered with 200.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.validSignature(body, signature) {
		s.logger.Warn("Webhook signature is invalid", "signature", signature)
		recordWebhook("unknown", "invalid_signature")
		return apperr.Unauthorized("invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		recordWebhook("unknown", "malformed")
		return apperr.Validation("malformed webhook payload: %s", err)
	}
	if payload.ID == "" || payload.Type == "" {
		recordWebhook("unknown", "malformed")
		return apperr.Validation("webhook event has no id or type")
	}

	ctx, span := tracer.Start(ctx, "payment.HandleWebhook", trace.WithAttributes(
		attribute.String("event_id", payload.ID),
		attribute.String("event_type", payload.Type),
	))
	defer span.End()

	fresh, err := s.storage.SaveWebhookEvent(ctx, WebhookEvent{
		Provider:       webhookProvider,
		EventID:        payload.ID,
		EventType:      payload.Type,
		SignatureValid: true,
		ProcessedAt:    s.now(),
	})
	if err != nil {
		recordWebhook(payload.Type, "error")
		return err
	}
	if !fresh {
		s.logger.Info("Duplicate webhook event skipped", "event_id", payload.ID, "event_type", payload.Type)
		recordWebhook(payload.Type, "duplicate")
		return nil
	}

	status, ok := eventStatus(payload.Type)
	if !ok {
		s.logger.Debug("Unhandled webhook event", "event_id", payload.ID, "event_type", payload.Type)
		recordWebhook(payload.Type, "ignored")
		return nil
	}

	tx, err := s.findByGatewayPayment(ctx, payload.Data.ID, payload.Data.Reference)
	if err != nil {
		s.logger.Error("Webhook transaction lookup failed",
			"error", err,
			"event_id", payload.ID,
			"payment_id", payload.Data.ID,
			"reference", payload.Data.Reference,
		)
		recordWebhook(payload.Type, "error")
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		raw = nil
	}
	data, _ := raw["data"].(map[string]any)

	if _, err := s.applyGatewayStatus(ctx, tx, status, payload.Data.ID, data); err != nil {
		recordWebhook(payload.Type, "error")
		return err
	}

	s.logger.Info("Webhook event processed",
		"event_id", payload.ID,
		"event_type", payload.Type,
		"transaction_id", tx.ID,
	)
	recordWebhook(payload.Type, "ok")
	return nil
}

// findByGatewayPayment looks a transaction up by gateway payment id, then by our reference.
// Hosted sessions store the session id, so the first payment event only matches by reference.
func (s *Service) findByGatewayPayment(ctx context.Context, paymentID, reference string) (*Transaction, error) {
	if paymentID != "" {
		tx, err := s.storage.GetTransaction(ctx, GetCriteria{ExternalReference: &paymentID})
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
	}
	if reference == "" {
		return nil, apperr.NotFound("no transaction for payment %s", paymentID)
	}
	return s.getTransaction(ctx, GetCriteria{Reference: &reference})
}
