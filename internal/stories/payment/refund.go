package payment

import (
	"context"
	"fmt"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/stories/notifications"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RefundOrder refunds the completed payment of an order.
func (s *Service) RefundOrder(ctx context.Context, orderID string) (*RefundOutcome, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.Refundable() {
		return nil, apperr.Conflict("order %s cannot be refunded in status %s", orderID, order.Status)
	}

	tx, err := s.storage.GetTransaction(ctx, GetCriteria{
		OrderID: &orderID,
		Type:    lo.ToPtr(TypeOrderPayment),
		Status:  lo.ToPtr(StatusCompleted),
	})
	if err != nil {
		return nil, fmt.Errorf("get order payment: %w", err)
	}
	if tx == nil {
		return nil, apperr.NotFound("order %s has no completed payment", orderID)
	}
	return s.Refund(ctx, tx.ID)
}

// Refund returns a completed payment to the customer through the gateway.
func (s *Service) Refund(ctx context.Context, transactionID string) (*RefundOutcome, error) {
	ctx, span := tracer.Start(ctx, "payment.Refund", trace.WithAttributes(attribute.String("transaction_id", transactionID)))
	defer span.End()

	tx, err := s.getTransaction(ctx, GetCriteria{ID: &transactionID})
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusCompleted {
		return nil, apperr.Conflict("transaction %s is %s, only completed payments can be refunded", transactionID, tx.Status)
	}
	if tx.ExternalReference == nil {
		return nil, apperr.Validation("transaction %s has no gateway reference", transactionID)
	}

	if tx.OrderID != nil {
		order, err := s.orders.GetOrder(ctx, *tx.OrderID)
		if err != nil {
			return nil, err
		}
		if !order.Status.Refundable() {
			return nil, apperr.Conflict("order %s cannot be refunded in status %s", order.ID, order.Status)
		}
	}

	reference := NewReference(TypeRefund, s.now())
	minor := checkout.MinorUnits(tx.Amount)

	s.logger.Info("Refunding payment",
		"transaction_id", tx.ID,
		"external_reference", *tx.ExternalReference,
		"amount_minor", minor,
	)

	refund, err := s.gateway.Refund(ctx, *tx.ExternalReference, minor, reference)
	if err != nil {
		s.logger.Error("Gateway refund failed", "error", err, "transaction_id", tx.ID)
		return nil, apperr.Upstream(err, "failed to refund payment")
	}

	refundTx := Transaction{
		UserID:               tx.UserID,
		OrderID:              tx.OrderID,
		Type:                 TypeRefund,
		Amount:               tx.Amount.Neg(),
		Currency:             tx.Currency,
		PaymentMethod:        tx.PaymentMethod,
		Status:               StatusCompleted,
		Reference:            reference,
		ExternalReference:    lo.ToPtr(refund.ActionID),
		RelatedTransactionID: lo.ToPtr(tx.ID),
		Description:          "Refund of " + tx.Reference,
		PaymentDetails:       map[string]any{"refund": refund.Raw},
	}
	refundTx.RecomputeNet()

	outcome, err := s.storage.ApplyRefund(ctx, RefundWrite{
		OriginalID:      tx.ID,
		OriginalDetails: withDetail(tx.PaymentDetails, "refund", refund.Raw),
		Refund:          refundTx,
		OrderID:         tx.OrderID,
	})
	if err != nil {
		s.logger.Error("Failed to record refund", "error", err, "transaction_id", tx.ID, "action_id", refund.ActionID)
		return nil, fmt.Errorf("apply refund: %w", err)
	}

	if err := s.users.AddSpent(ctx, tx.UserID, tx.Amount.Neg()); err != nil {
		s.logger.Error("Failed to update total spent", "error", err, "user_id", tx.UserID)
	}
	s.notifyRefund(ctx, outcome.Original)

	s.logger.Info("Payment refunded",
		"transaction_id", tx.ID,
		"refund_transaction_id", outcome.Refund.ID,
		"action_id", refund.ActionID,
	)
	return outcome, nil
}

func (s *Service) notifyRefund(ctx context.Context, tx *Transaction) {
	params := map[string]interface{}{"quantity": "", "service_type": "order"}
	if tx.OrderID != nil {
		if order, err := s.orders.GetOrder(ctx, *tx.OrderID); err == nil {
			params["quantity"] = order.Quantity
			params["service_type"] = order.ServiceType
		}
	}
	params["amount"] = tx.Amount.StringFixed(2)
	params["currency"] = tx.Currency

	msg := s.templates.Message("payment.refunded", params)
	opts := notifications.NotifyOptions{RelatedID: tx.ID, RelatedKind: "transaction"}
	if tx.OrderID != nil {
		opts.Link = "/orders/" + *tx.OrderID
	}
	if _, err := s.notifier.Notify(ctx, tx.UserID, notifications.TypePayment, msg.Title, msg.Body, opts); err != nil {
		s.logger.Warn("Failed to send refund notification", "error", err, "transaction_id", tx.ID)
	}
}
