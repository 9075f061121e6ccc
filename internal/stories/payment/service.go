package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/metrics"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("engagement-shop/payment")

type Config struct {
	Currency      string
	SuccessURL    string
	FailureURL    string
	CancelURL     string
	WebhookSecret string
	// FrontendURL is the base of the PayPal redirect for guest checkout.
	FrontendURL   string
	CryptoWallets map[string]string
	CryptoRates   map[string]decimal.Decimal
}

// Service provides business logic for payment operations
type Service struct {
	storage   Storage
	gateway   Gateway
	orders    OrderService
	users     UserService
	notifier  Notifier
	templates Templates
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(
	storage Storage,
	gateway Gateway,
	orderService OrderService,
	userService UserService,
	notifier Notifier,
	templates Templates,
	cfg Config,
	now func() time.Time,
	logger *slog.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Service{
		storage:   storage,
		gateway:   gateway,
		orders:    orderService,
		users:     userService,
		notifier:  notifier,
		templates: templates,
		cfg:       cfg,
		now:       now,
		logger:    logger,
	}
}

// CreateCheckoutSession opens a hosted payment page for an unpaid order of the user.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, orderID string) (*CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateCheckoutSession", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("order_id", orderID),
	))
	defer span.End()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Forbidden("order %s belongs to another user", orderID)
	}
	if order.PaymentStatus == orders.PaymentCompleted || order.Status != orders.StatusPending {
		return nil, apperr.Conflict("order %s is already paid", orderID)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := s.createPending(ctx, order, MethodCreditCard, map[string]any{"provider": "checkout"})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Opening hosted payment", "transaction_id", tx.ID, "order_id", order.ID, "amount", tx.Amount)

	session, err := s.gateway.CreateHostedSession(ctx, checkout.HostedSessionRequest{
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Reference:   tx.Reference,
		Description: "Order " + order.OrderNumber,
		Customer:    checkout.Customer{Email: user.Email, Name: user.Username},
		SuccessURL:  s.cfg.SuccessURL,
		FailureURL:  s.cfg.FailureURL,
		CancelURL:   s.cfg.CancelURL,
		Metadata: map[string]string{
			"order_id":       order.ID,
			"transaction_id": tx.ID,
			"user_id":        userID,
		},
	})
	if err != nil {
		s.logger.Error("Failed to open hosted payment", "error", err, "transaction_id", tx.ID)
		s.markFailed(ctx, tx.ID)
		return nil, apperr.Upstream(err, "failed to create checkout session")
	}

	details := withDetail(tx.PaymentDetails, "checkoutId", session.ID)
	details["redirectUrl"] = session.RedirectURL
	if _, err := s.update(ctx, tx.ID, UpdateParams{ExternalReference: &session.ID, PaymentDetails: details}); err != nil {
		return nil, err
	}

	s.logger.Info("Hosted payment opened", "transaction_id", tx.ID, "checkout_id", session.ID)
	return &CheckoutSession{
		RedirectURL:   session.RedirectURL,
		TransactionID: tx.ID,
		CheckoutID:    session.ID,
	}, nil
}

// ProcessPayment asks the gateway for the payment state and applies it. Callers other than
// the owner need isAdmin.
func (s *Service) ProcessPayment(ctx context.Context, transactionID, userID string, isAdmin bool) (*ProcessResult, error) {
	tx, err := s.GetTransactionFor(ctx, transactionID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if tx.Status == StatusCompleted {
		return nil, apperr.Conflict("transaction %s is already completed", transactionID)
	}
	return s.Reconcile(ctx, tx)
}

// Reconcile polls the gateway for a transaction with an external reference.
func (s *Service) Reconcile(ctx context.Context, tx *Transaction) (*ProcessResult, error) {
	ctx, span := tracer.Start(ctx, "payment.Reconcile", trace.WithAttributes(attribute.String("transaction_id", tx.ID)))
	defer span.End()

	if tx.ExternalReference == nil {
		return nil, apperr.Validation("transaction %s has no gateway reference", tx.ID)
	}

	details, err := s.gateway.GetPaymentDetails(ctx, *tx.ExternalReference)
	if err != nil {
		s.logger.Error("Failed to get payment details", "error", err, "transaction_id", tx.ID)
		return nil, apperr.Upstream(err, "failed to get payment details")
	}

	s.logger.Info("Payment details received",
		"transaction_id", tx.ID,
		"external_reference", details.ID,
		"gateway_status", details.Status,
	)

	updated, err := s.applyGatewayStatus(ctx, tx, MapGatewayStatus(details.Status), details.ID, details.Raw)
	if err != nil {
		return nil, err
	}
	return s.withOrder(ctx, updated)
}

// GetTransactionFor returns a transaction visible to the caller.
func (s *Service) GetTransactionFor(ctx context.Context, id, userID string, isAdmin bool) (*Transaction, error) {
	tx, err := s.getTransaction(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, err
	}
	if !isAdmin && tx.UserID != userID {
		return nil, apperr.Forbidden("transaction %s belongs to another user", id)
	}
	return tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, criteria ListCriteria) ([]*Transaction, error) {
	if criteria.Limit <= 0 {
		criteria.Limit = 20
	}
	list, err := s.storage.ListTransactions(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return list, nil
}

// PendingForReconcile lists pending gateway transactions created before cutoff.
func (s *Service) PendingForReconcile(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error) {
	return s.ListTransactions(ctx, ListCriteria{
		Statuses:              []Status{StatusPending, StatusProcessing},
		WithExternalReference: true,
		CreatedBefore:         &cutoff,
		Limit:                 limit,
	})
}

func (s *Service) PaymentMethods() []MethodInfo {
	return Methods()
}

// applyGatewayStatus moves tx to status and propagates the change to the order.
// Repeating a status already applied is a no-op, so webhook and poll may race.
func (s *Service) applyGatewayStatus(ctx context.Context, tx *Transaction, status Status, externalID string, raw map[string]any) (*Transaction, error) {
	if !canTransition(tx.Status, status) {
		s.logger.Debug("Ignoring gateway status",
			"transaction_id", tx.ID,
			"current", tx.Status,
			"status", status,
		)
		return tx, nil
	}

	params := UpdateParams{Status: &status}
	if raw != nil {
		params.PaymentDetails = withDetail(tx.PaymentDetails, "gateway", raw)
	}
	if externalID != "" && (tx.ExternalReference == nil || *tx.ExternalReference != externalID) {
		params.ExternalReference = &externalID
	}

	updated, err := s.update(ctx, tx.ID, params)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction status changed",
		"transaction_id", tx.ID,
		"from", tx.Status,
		"status", status,
	)

	switch status {
	case StatusCompleted:
		s.onCompleted(ctx, updated)
	case StatusFailed:
		s.onFailed(ctx, updated)
	case StatusRefunded:
		s.onRefunded(ctx, updated)
	}
	return updated, nil
}

// canTransition guards the immutability of settled transactions.
func canTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending, StatusProcessing:
		return to != StatusPending
	case StatusCompleted:
		return to == StatusRefunded
	default:
		return false
	}
}

func (s *Service) onCompleted(ctx context.Context, tx *Transaction) {
	if err := s.users.AddSpent(ctx, tx.UserID, tx.Amount); err != nil {
		s.logger.Error("Failed to update total spent", "error", err, "user_id", tx.UserID)
	}

	if tx.OrderID == nil {
		s.notifyPayment(ctx, tx, "payment.received", "")
		return
	}

	order, err := s.orders.ConfirmPayment(ctx, *tx.OrderID)
	if err != nil {
		s.logger.Error("Failed to confirm order payment", "error", err, "transaction_id", tx.ID, "order_id", *tx.OrderID)
		return
	}
	s.notifyPayment(ctx, tx, "payment.received", order.OrderNumber)

	if _, err := s.orders.DispatchToSupplier(ctx, order.ID); err != nil {
		s.logger.Error("Failed to dispatch paid order", "error", err, "order_id", order.ID)
	}
}

func (s *Service) onFailed(ctx context.Context, tx *Transaction) {
	if tx.OrderID != nil {
		if _, err := s.orders.MarkPaymentFailed(ctx, *tx.OrderID); err != nil {
			s.logger.Error("Failed to mark order payment failed", "error", err, "order_id", *tx.OrderID)
		}
	}
	s.notifyPayment(ctx, tx, "payment.failed", "")
}

func (s *Service) onRefunded(ctx context.Context, tx *Transaction) {
	if tx.OrderID != nil {
		if _, err := s.orders.MarkRefunded(ctx, *tx.OrderID); err != nil {
			s.logger.Error("Failed to mark order refunded", "error", err, "order_id", *tx.OrderID)
		}
	}
	if err := s.users.AddSpent(ctx, tx.UserID, tx.Amount.Neg()); err != nil {
		s.logger.Error("Failed to update total spent", "error", err, "user_id", tx.UserID)
	}
}

func (s *Service) createPending(ctx context.Context, order *orders.Order, method Method, details map[string]any) (*Transaction, error) {
	tx := Transaction{
		UserID:         order.UserID,
		OrderID:        lo.ToPtr(order.ID),
		Type:           TypeOrderPayment,
		Amount:         order.Price,
		Fee:            CalculateFee(method, order.Price),
		Currency:       s.cfg.Currency,
		PaymentMethod:  method,
		Status:         StatusPending,
		Reference:      NewReference(TypeOrderPayment, s.now()),
		Description:    "Payment for order " + order.OrderNumber,
		PaymentDetails: details,
	}
	tx.RecomputeNet()

	created, err := s.storage.CreateTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("Failed to create transaction", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Info("Transaction created",
		"transaction_id", created.ID,
		"order_id", order.ID,
		"method", method,
		"amount", created.Amount,
		"fee", created.Fee,
	)
	return created, nil
}

func (s *Service) markFailed(ctx context.Context, id string) {
	if _, err := s.update(ctx, id, UpdateParams{Status: lo.ToPtr(StatusFailed)}); err != nil {
		s.logger.Error("Failed to mark transaction failed", "error", err, "transaction_id", id)
	}
}

func (s *Service) getTransaction(ctx context.Context, criteria GetCriteria) (*Transaction, error) {
	tx, err := s.storage.GetTransaction(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil {
		return nil, apperr.NotFound("transaction not found")
	}
	return tx, nil
}

func (s *Service) update(ctx context.Context, id string, params UpdateParams) (*Transaction, error) {
	updated, err := s.storage.UpdateTransaction(ctx, GetCriteria{ID: &id}, params)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("transaction %s not found", id)
	}
	return updated, nil
}

func (s *Service) withOrder(ctx context.Context, tx *Transaction) (*ProcessResult, error) {
	result := &ProcessResult{Transaction: tx}
	if tx.OrderID == nil {
		return result, nil
	}
	order, err := s.orders.GetOrder(ctx, *tx.OrderID)
	if err != nil {
		return nil, err
	}
	result.Order = order
	return result, nil
}

func (s *Service) notifyPayment(ctx context.Context, tx *Transaction, key, orderNumber string) {
	msg := s.templates.Message(key, map[string]interface{}{
		"amount":   tx.Amount.Abs().StringFixed(2),
		"currency": tx.Currency,
		"number":   orderNumber,
	})

	opts := notifications.NotifyOptions{RelatedID: tx.ID, RelatedKind: "transaction"}
	if tx.OrderID != nil {
		opts.Link = "/orders/" + *tx.OrderID
	}
	if _, err := s.notifier.Notify(ctx, tx.UserID, notifications.TypePayment, msg.Title, msg.Body, opts); err != nil {
		s.logger.Warn("Failed to send payment notification", "error", err, "transaction_id", tx.ID, "template", key)
	}
}

// withDetail copies details and sets key.
func withDetail(details map[string]any, key string, value any) map[string]any {
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

func recordWebhook(eventType, result string) {
	metrics.WebhookEvents.WithLabelValues(eventType, result).Inc()
}
