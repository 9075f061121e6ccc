package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/localization"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/payment"
	"engagement-shop/internal/stories/users"

	"github.com/shopspring/decimal"
)

const flowWebhookSecret = "whsec_flow"

type flowGateway struct {
	payment.Gateway
	sessions []checkout.HostedSessionRequest
}

func (g *flowGateway) CreateHostedSession(_ context.Context, req checkout.HostedSessionRequest) (*checkout.HostedSession, error) {
	g.sessions = append(g.sessions, req)
	return &checkout.HostedSession{ID: "hps_flow", RedirectURL: "https://pay.example/hps_flow"}, nil
}

type flowSupplier struct {
	orders.SupplierClient
	placed []string
	status supplier.OrderStatus
}

func (f *flowSupplier) PlaceOrder(_ context.Context, serviceID, link string, quantity int) (string, error) {
	f.placed = append(f.placed, fmt.Sprintf("%s %s %d", serviceID, link, quantity))
	return "SUP-123", nil
}

func (f *flowSupplier) CheckOrderStatus(_ context.Context, orderID string) (*supplier.OrderStatus, error) {
	if orderID != "SUP-123" {
		return nil, fmt.Errorf("unknown supplier order %s", orderID)
	}
	status := f.status
	return &status, nil
}

type published struct {
	topic   string
	event   string
	payload any
}

type recordingTransport struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingTransport) Publish(_ context.Context, topic, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{topic: topic, event: event, payload: payload})
	return nil
}

func (r *recordingTransport) orderUpdates(topic string) []*notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*notifications.Notification
	for _, e := range r.events {
		p, ok := e.payload.(notifications.Payload)
		if !ok || e.topic != topic || e.event != notifications.EventNewNotification {
			continue
		}
		if p.Notification != nil && p.Notification.Type == notifications.TypeOrderUpdate {
			list = append(list, p.Notification)
		}
	}
	return list
}

// TestPaidOrderIsDeliveredEndToEnd walks an order from creation through the
// hosted payment, the signed gateway callback, supplier placement and the
// status poll, on real storage.
func TestPaidOrderIsDeliveredEndToEnd(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	templates, err := localization.NewService()
	if err != nil {
		t.Fatalf("localization.NewService: %v", err)
	}

	gateway := &flowGateway{}
	panel := &flowSupplier{}
	transport := &recordingTransport{}

	userService := users.NewService(s, logger)
	notifier := notifications.NewService(s, userService, transport, nil, notifications.Config{
		RateLimit:  50,
		RateWindow: time.Hour,
	}, time.Now, logger)
	orderService := orders.NewService(s, catalog.NewCatalog(s, logger), panel, notifier, templates, time.Now, logger)
	paymentService := payment.NewService(s, gateway, orderService, userService, notifier, templates, payment.Config{
		Currency:      "USD",
		WebhookSecret: flowWebhookSecret,
	}, time.Now, logger)

	order, err := orderService.CreateOrder(ctx, orders.CreateOrderRequest{
		UserID:         sd.user.ID,
		TargetUsername: "ann.smith",
		Service: catalog.Selector{
			Type:     catalog.TypeFollowers,
			Quality:  catalog.QualityGeneral,
			Quantity: 100,
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !order.Price.Equal(decimal.RequireFromString("2.99")) || order.Status != orders.StatusPending {
		t.Fatalf("new order = %s %s, want pending at 2.99", order.Status, order.Price)
	}

	session, err := paymentService.CreateCheckoutSession(ctx, sd.user.ID, order.ID)
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if len(gateway.sessions) != 1 || !gateway.sessions[0].Amount.Equal(order.Price) {
		t.Fatalf("hosted sessions = %+v, want one for %s", gateway.sessions, order.Price)
	}

	tx, err := s.GetTransaction(ctx, payment.GetCriteria{ID: &session.TransactionID})
	if err != nil || tx == nil {
		t.Fatalf("GetTransaction = %v, %v", tx, err)
	}

	body := []byte(fmt.Sprintf(
		`{"id":"evt_flow","type":"payment_captured","data":{"id":"pay_flow","reference":%q,"amount":299}}`,
		tx.Reference,
	))
	if err := paymentService.HandleWebhook(ctx, body, payment.SignWebhook(flowWebhookSecret, body)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	paid, err := orderService.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder after webhook: %v", err)
	}
	if paid.Status != orders.StatusProcessing || paid.PaymentStatus != orders.PaymentCompleted {
		t.Errorf("paid order = %s/%s, want processing/completed", paid.Status, paid.PaymentStatus)
	}
	if paid.DeliveryStartedAt == nil {
		t.Error("deliveryStartedAt was not set")
	}
	if paid.SupplierOrderID == nil || *paid.SupplierOrderID != "SUP-123" {
		t.Errorf("supplierOrderId = %v, want SUP-123", paid.SupplierOrderID)
	}
	if len(panel.placed) != 1 {
		t.Errorf("supplier orders = %v, want exactly one", panel.placed)
	}

	settled, err := s.GetTransaction(ctx, payment.GetCriteria{ID: &tx.ID})
	if err != nil || settled.Status != payment.StatusCompleted {
		t.Errorf("transaction = %v, %v; want completed", settled, err)
	}

	topic := notifications.Topic(sd.user.ID)
	before := len(transport.orderUpdates(topic))

	panel.status = supplier.OrderStatus{Status: "Completed", StartCount: 1200, Remains: 0}
	delivered, err := orderService.PollStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if delivered.Status != orders.StatusCompleted || delivered.Remains != 0 || delivered.CompletedAt == nil {
		t.Errorf("delivered order = %s remains %d completedAt %v, want completed with 0 remaining",
			delivered.Status, delivered.Remains, delivered.CompletedAt)
	}

	updates := transport.orderUpdates(topic)
	if len(updates) != before+1 {
		t.Fatalf("order updates on %s = %d, want %d", topic, len(updates), before+1)
	}
	last := updates[len(updates)-1]
	if last.RelatedID == nil || *last.RelatedID != order.ID {
		t.Errorf("order update relates to %v, want %s", last.RelatedID, order.ID)
	}

	// A repeated callback for the same event changes nothing.
	if err := paymentService.HandleWebhook(ctx, body, payment.SignWebhook(flowWebhookSecret, body)); err != nil {
		t.Fatalf("repeated HandleWebhook: %v", err)
	}
	if len(panel.placed) != 1 {
		t.Errorf("supplier orders after repeated webhook = %v, want one", panel.placed)
	}
}
