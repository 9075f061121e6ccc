package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/metrics"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/notifications"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("engagement-shop/orders")

// ErrOrderNumberTaken is returned by storage when a concurrent order won the same number.
var ErrOrderNumberTaken = errors.New("order number already taken")

const createAttempts = 3

// Service drives an order from creation through supplier fulfillment
type Service struct {
	storage   Storage
	catalog   Catalog
	supplier  SupplierClient
	notifier  Notifier
	templates Templates
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new order service
func NewService(
	storage Storage,
	catalog Catalog,
	supplierClient SupplierClient,
	notifier Notifier,
	templates Templates,
	now func() time.Time,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage:   storage,
		catalog:   catalog,
		supplier:  supplierClient,
		notifier:  notifier,
		templates: templates,
		logger:    logger,
		now:       now,
	}
}

// CreateOrder validates the target, snapshots the service pricing and stores a pending order.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	username := strings.TrimPrefix(strings.TrimSpace(req.TargetUsername), "@")
	if !ValidUsername(username) {
		return nil, apperr.Validation("invalid instagram username")
	}

	service, err := s.catalog.ResolveService(ctx, req.Service)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = service.Quantity
	}
	if !service.AcceptsQuantity(quantity) {
		return nil, apperr.Validation("quantity must be between %d and %d", service.MinQuantity, service.MaxQuantity)
	}

	order := Order{
		UserID:            req.UserID,
		ServiceID:         service.ID,
		SupplierServiceID: service.SupplierServiceID,
		SocialUsername:    username,
		ServiceType:       service.Type,
		Quality:           service.Quality,
		Quantity:          quantity,
		Price:             service.FinalPrice,
		OriginalPrice:     service.OriginalPrice,
		SupplierPrice:     service.SupplierPrice,
		DeliverySpeed:     lo.Ternary(req.DeliverySpeed == DeliveryFast, DeliveryFast, DeliveryStandard),
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
	}
	if order.OriginalPrice.IsZero() {
		order.OriginalPrice = service.Price
	}

	if service.Type.NeedsPost() {
		postURL := strings.TrimSpace(req.PostURL)
		if postURL == "" {
			return nil, apperr.Validation("post URL is required for %s", service.Type)
		}
		postID, ok := ParsePostURL(postURL)
		if !ok {
			return nil, apperr.Validation("invalid instagram post URL")
		}
		order.PostURL = &postURL
		order.PostID = &postID
	}

	created, err := s.create(ctx, order)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		"order_id", created.ID,
		"order_number", created.OrderNumber,
		"user_id", created.UserID,
		"service_id", created.ServiceID,
		"quantity", created.Quantity,
		"price", created.Price.String(),
	)
	return created, nil
}

func (s *Service) create(ctx context.Context, order Order) (*Order, error) {
	prefix := OrderNumberPrefix(s.now())

	for attempt := 1; ; attempt++ {
		last, err := s.storage.LastOrderNumber(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("last order number: %w", err)
		}
		order.OrderNumber = NextOrderNumber(last, s.now())

		created, err := s.storage.CreateOrder(ctx, order)
		if errors.Is(err, ErrOrderNumberTaken) && attempt < createAttempts {
			s.logger.Warn("Order number collision, retrying", "order_number", order.OrderNumber, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		return created, nil
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	order, err := s.storage.GetOrder(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, apperr.NotFound("order %s not found", id)
	}
	return order, nil
}

// GetOrderFor returns the order if userID owns it or the caller is an admin.
func (s *Service) GetOrderFor(ctx context.Context, id, userID string, isAdmin bool) (*Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, apperr.Forbidden("not authorized to access this order")
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, criteria ListCriteria) ([]*Order, error) {
	list, err := s.storage.ListOrders(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// ConfirmPayment moves a paid order into processing.
func (s *Service) ConfirmPayment(ctx context.Context, id string) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.ConfirmPayment", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusRefunded {
		return nil, apperr.Conflict("order %s is refunded", id)
	}

	now := s.now()
	updated, err := s.update(ctx, id, UpdateParams{
		Status:            lo.ToPtr(StatusProcessing),
		PaymentStatus:     lo.ToPtr(PaymentCompleted),
		DeliveryStartedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order payment confirmed", "order_id", id, "order_number", order.OrderNumber)
	return updated, nil
}

// MarkPaymentFailed records a declined payment. The order status is left as is.
func (s *Service) MarkPaymentFailed(ctx context.Context, id string) (*Order, error) {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, UpdateParams{PaymentStatus: lo.ToPtr(PaymentFailed)})
}

// MarkRefunded records a refund issued outside of the shop, e.g. from the gateway dashboard.
func (s *Service) MarkRefunded(ctx context.Context, id string) (*Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusRefunded {
		return order, nil
	}

	updated, err := s.update(ctx, id, UpdateParams{
		Status:        lo.ToPtr(StatusRefunded),
		PaymentStatus: lo.ToPtr(PaymentRefunded),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order marked refunded", "order_id", id, "order_number", order.OrderNumber)
	return updated, nil
}

// DispatchToSupplier places a paid order at the supplier.
func (s *Service) DispatchToSupplier(ctx context.Context, id string) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.DispatchToSupplier", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != PaymentCompleted {
		return nil, apperr.Conflict("order %s has not been paid", id)
	}
	if order.SupplierOrderID != nil {
		return nil, apperr.Conflict("order %s is already placed with the supplier", id)
	}

	link := order.TargetLink()
	s.logger.Info("Placing order with supplier",
		"order_id", id,
		"supplier_service_id", order.SupplierServiceID,
		"link", link,
		"quantity", order.Quantity,
	)

	supplierOrderID, err := s.supplier.PlaceOrder(ctx, order.SupplierServiceID, link, order.Quantity)
	if err != nil {
		s.logger.Error("Failed to place order with supplier", "error", err, "order_id", id)
		if _, updErr := s.update(ctx, id, UpdateParams{Status: lo.ToPtr(StatusFailed)}); updErr != nil {
			s.logger.Error("Failed to mark order as failed", "error", updErr, "order_id", id)
		}
		return nil, apperr.Upstream(err, "failed to place order with supplier")
	}

	// a retry after a failed dispatch brings the order back into processing
	updated, err := s.update(ctx, id, UpdateParams{
		Status:          lo.ToPtr(StatusProcessing),
		SupplierOrderID: &supplierOrderID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order placed with supplier", "order_id", id, "supplier_order_id", supplierOrderID)
	return updated, nil
}

// PollStatus fetches the supplier status of one order and applies it.
func (s *Service) PollStatus(ctx context.Context, id string) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.PollStatus", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.SupplierOrderID == nil {
		return nil, apperr.Validation("order %s has not been placed with the supplier", id)
	}

	status, err := s.supplier.CheckOrderStatus(ctx, *order.SupplierOrderID)
	if err != nil {
		s.logger.Error("Failed to check supplier status", "error", err, "order_id", id)
		return nil, apperr.Upstream(err, "failed to check order status")
	}

	return s.ApplySupplierStatus(ctx, order, *status)
}

// ApplySupplierStatus stores the mapped status and counters and notifies the
// owner when the status changed. order may be stale: the stored row is re-read
// and a refunded order is never overwritten.
func (s *Service) ApplySupplierStatus(ctx context.Context, order *Order, status supplier.OrderStatus) (*Order, error) {
	current, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusRefunded {
		return current, nil
	}

	newStatus := MapSupplierStatus(status.Status)
	params := UpdateParams{
		Status:     &newStatus,
		StartCount: &status.StartCount,
		Remains:    &status.Remains,
	}
	changed := newStatus != current.Status
	if newStatus == StatusCompleted && current.CompletedAt == nil {
		now := s.now()
		params.CompletedAt = &now
	}

	updated, err := s.storage.UpdateOrder(ctx, GetCriteria{
		ID:              &current.ID,
		ExcludeStatuses: []Status{StatusRefunded},
	}, params)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if updated == nil {
		s.logger.Info("Order refunded meanwhile, supplier status ignored", "order_id", current.ID)
		return s.GetOrder(ctx, current.ID)
	}
	metrics.OrderTransitions.WithLabelValues(string(newStatus)).Inc()

	if changed {
		s.logger.Info("Order status changed",
			"order_id", current.ID,
			"from", current.Status,
			"to", newStatus,
			"supplier_status", status.Status,
		)
		s.notify(ctx, updated, "order."+string(newStatus), map[string]interface{}{
			"remains": updated.Remains,
		})
	}
	return updated, nil
}

// RequestRefill asks the supplier to top up a delivered order. One refill per order.
func (s *Service) RequestRefill(ctx context.Context, id string) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.RequestRefill", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusCompleted && order.Status != StatusPartial {
		return nil, apperr.Conflict("refill is only available for completed or partial orders")
	}
	if order.RefillRequested || order.RefillID != nil {
		return nil, apperr.Conflict("refill has already been requested for this order")
	}
	if order.SupplierOrderID == nil {
		return nil, apperr.Validation("order %s has not been placed with the supplier", id)
	}

	refillID, err := s.supplier.RequestRefill(ctx, *order.SupplierOrderID)
	if err != nil {
		s.logger.Error("Failed to request refill", "error", err, "order_id", id)
		return nil, apperr.Upstream(err, "failed to request refill")
	}

	updated, err := s.update(ctx, id, UpdateParams{
		RefillRequested: lo.ToPtr(true),
		RefillID:        &refillID,
		RefillStatus:    lo.ToPtr(RefillPending),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refill requested", "order_id", id, "refill_id", refillID)
	s.notify(ctx, updated, "order.refill_requested", nil)
	return updated, nil
}

// PollRefillStatus refreshes the refill status from the supplier.
func (s *Service) PollRefillStatus(ctx context.Context, id string) (*Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.RefillID == nil {
		return nil, apperr.Validation("no refill has been requested for order %s", id)
	}

	raw, err := s.supplier.RefillStatus(ctx, *order.RefillID)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to check refill status")
	}

	status := MapRefillStatus(raw)
	if order.RefillStatus != nil && *order.RefillStatus == status {
		return order, nil
	}

	updated, err := s.update(ctx, id, UpdateParams{RefillStatus: &status})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refill status changed", "order_id", id, "refill_status", status)
	switch status {
	case RefillCompleted:
		s.notify(ctx, updated, "order.refill_completed", nil)
	case RefillRejected:
		s.notify(ctx, updated, "order.refill_rejected", nil)
	}
	return updated, nil
}

// CancelAtSupplier cancels a placed order at the supplier.
func (s *Service) CancelAtSupplier(ctx context.Context, id string) (*Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.SupplierOrderID == nil {
		return nil, apperr.Validation("order %s has not been placed with the supplier", id)
	}
	if order.Status != StatusPending && order.Status != StatusProcessing {
		return nil, apperr.Conflict("order %s is %s and cannot be canceled", id, order.Status)
	}

	if err := s.supplier.CancelOrder(ctx, *order.SupplierOrderID); err != nil {
		s.logger.Error("Failed to cancel order at supplier", "error", err, "order_id", id)
		return nil, apperr.Upstream(err, "failed to cancel order")
	}

	updated, err := s.update(ctx, id, UpdateParams{Status: lo.ToPtr(StatusCanceled)})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, "order.canceled", nil)
	return updated, nil
}

// Stats aggregates orders created within period.
func (s *Service) Stats(ctx context.Context, period Period) (*Stats, error) {
	since, ok := period.Since(s.now())
	if !ok {
		return nil, apperr.Validation("invalid period %q", period)
	}
	if period == "" {
		period = PeriodAll
	}

	rows, err := s.storage.OrderStats(ctx, ListCriteria{CreatedFrom: since})
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}

	stats := &Stats{
		Period:        period,
		ByStatus:      make(map[Status]int),
		ByServiceType: make(map[catalog.ServiceType]int),
		Revenue:       decimal.Zero,
	}
	paid := 0
	for _, row := range rows {
		stats.TotalOrders += row.Count
		stats.ByStatus[row.Status] += row.Count
		stats.ByServiceType[row.ServiceType] += row.Count
		if row.Status.Refundable() {
			stats.Revenue = stats.Revenue.Add(row.Revenue)
			paid += row.Count
		}
	}
	if paid > 0 {
		stats.AverageOrderValue = stats.Revenue.Div(decimal.NewFromInt(int64(paid))).Round(2)
	}
	return stats, nil
}

func (s *Service) update(ctx context.Context, id string, params UpdateParams) (*Order, error) {
	updated, err := s.storage.UpdateOrder(ctx, GetCriteria{ID: &id}, params)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if params.Status != nil {
		metrics.OrderTransitions.WithLabelValues(string(*params.Status)).Inc()
	}
	return updated, nil
}

// notify sends an order_update notification rendered from key. Failures are logged.
func (s *Service) notify(ctx context.Context, order *Order, key string, params map[string]interface{}) {
	if params == nil {
		params = make(map[string]interface{})
	}
	params["number"] = order.OrderNumber
	params["quantity"] = order.Quantity
	params["service_type"] = order.ServiceType

	msg := s.templates.Message(key, params)
	_, err := s.notifier.Notify(ctx, order.UserID, notifications.TypeOrderUpdate, msg.Title, msg.Body, notifications.NotifyOptions{
		Link:        "/orders/" + order.ID,
		RelatedID:   order.ID,
		RelatedKind: "order",
	})
	if err != nil {
		s.logger.Warn("Failed to send order notification", "error", err, "order_id", order.ID, "template", key)
	}
}
