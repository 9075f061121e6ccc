package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/localization"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/notifications"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type fakeStorage struct {
	orders  map[string]*Order
	nextID  int
	collide int
}

func newFakeStorage(orders ...*Order) *fakeStorage {
	f := &fakeStorage{orders: make(map[string]*Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeStorage) CreateOrder(_ context.Context, order Order) (*Order, error) {
	if f.collide > 0 {
		f.collide--
		return nil, ErrOrderNumberTaken
	}
	f.nextID++
	order.ID = fmt.Sprintf("o%d", f.nextID)
	f.orders[order.ID] = &order
	return &order, nil
}

func (f *fakeStorage) GetOrder(_ context.Context, criteria GetCriteria) (*Order, error) {
	if criteria.ID == nil {
		return nil, nil
	}
	o, ok := f.orders[*criteria.ID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStorage) UpdateOrder(_ context.Context, criteria GetCriteria, p UpdateParams) (*Order, error) {
	o, ok := f.orders[*criteria.ID]
	if !ok || lo.Contains(criteria.ExcludeStatuses, o.Status) {
		return nil, nil
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.SupplierOrderID != nil {
		o.SupplierOrderID = p.SupplierOrderID
	}
	if p.StartCount != nil {
		o.StartCount = *p.StartCount
	}
	if p.Remains != nil {
		o.Remains = *p.Remains
	}
	if p.RefillRequested != nil {
		o.RefillRequested = *p.RefillRequested
	}
	if p.RefillID != nil {
		o.RefillID = p.RefillID
	}
	if p.RefillStatus != nil {
		o.RefillStatus = p.RefillStatus
	}
	if p.DeliveryStartedAt != nil {
		o.DeliveryStartedAt = p.DeliveryStartedAt
	}
	if p.CompletedAt != nil {
		o.CompletedAt = p.CompletedAt
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStorage) ListOrders(_ context.Context, _ ListCriteria) ([]*Order, error) {
	return lo.Values(f.orders), nil
}

func (f *fakeStorage) LastOrderNumber(_ context.Context, prefix string) (string, error) {
	last := ""
	for _, o := range f.orders {
		if len(o.OrderNumber) >= len(prefix) && o.OrderNumber[:len(prefix)] == prefix && o.OrderNumber > last {
			last = o.OrderNumber
		}
	}
	return last, nil
}

func (f *fakeStorage) OrderStats(_ context.Context, _ ListCriteria) ([]StatsRow, error) {
	var rows []StatsRow
	for _, o := range f.orders {
		rows = append(rows, StatsRow{Status: o.Status, ServiceType: o.ServiceType, Count: 1, Revenue: o.Price})
	}
	return rows, nil
}

type fakeCatalog struct {
	services []*catalog.Service
}

func (f *fakeCatalog) ResolveService(_ context.Context, sel catalog.Selector) (*catalog.Service, error) {
	for _, s := range f.services {
		if sel.ID != nil && s.ID == *sel.ID {
			return s, nil
		}
		if sel.ID == nil && s.Type == sel.Type && s.Quantity == sel.Quantity {
			return s, nil
		}
	}
	return nil, apperr.NotFound("service not found")
}

type fakeSupplier struct {
	placeErr     error
	placed       int
	status       *supplier.OrderStatus
	refillID     string
	refillStatus string
	canceled     []string
}

func (f *fakeSupplier) PlaceOrder(context.Context, string, string, int) (string, error) {
	f.placed++
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return "777", nil
}

func (f *fakeSupplier) CheckOrderStatus(context.Context, string) (*supplier.OrderStatus, error) {
	return f.status, nil
}

func (f *fakeSupplier) RequestRefill(context.Context, string) (string, error) {
	return f.refillID, nil
}

func (f *fakeSupplier) RefillStatus(context.Context, string) (string, error) {
	return f.refillStatus, nil
}

func (f *fakeSupplier) CancelOrder(_ context.Context, id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

type sentNotification struct {
	userID string
	title  string
}

type fakeNotifier struct {
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID string, _ notifications.Type, title, _ string, _ notifications.NotifyOptions) (notifications.Result, error) {
	f.sent = append(f.sent, sentNotification{userID: userID, title: title})
	return notifications.Result{Outcome: notifications.OutcomeSent}, nil
}

type fixture struct {
	svc      *Service
	storage  *fakeStorage
	supplier *fakeSupplier
	notifier *fakeNotifier
}

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, orders ...*Order) fixture {
	t.Helper()
	templates, err := localization.NewService()
	if err != nil {
		t.Fatalf("localization: %v", err)
	}

	followers := &catalog.Service{
		ID: "svc-followers", Type: catalog.TypeFollowers, Quality: catalog.QualityGeneral, SupplierServiceID: "2183",
		Quantity: 100, MinQuantity: 100, MaxQuantity: 100,
		Price: decimal.RequireFromString("2.99"), FinalPrice: decimal.RequireFromString("2.49"), Active: true,
	}
	likes := &catalog.Service{
		ID: "svc-likes", Type: catalog.TypeLikes, Quality: catalog.QualityGeneral, SupplierServiceID: "1782",
		Quantity: 50, MinQuantity: 50, MaxQuantity: 500,
		Price: decimal.RequireFromString("1.50"), FinalPrice: decimal.RequireFromString("1.50"), Active: true,
	}

	f := fixture{
		storage:  newFakeStorage(orders...),
		supplier: &fakeSupplier{refillID: "r1"},
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(
		f.storage,
		&fakeCatalog{services: []*catalog.Service{followers, likes}},
		f.supplier,
		f.notifier,
		templates,
		func() time.Time { return testNow },
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func TestMapSupplierStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{in: "Completed", want: StatusCompleted},
		{in: "Partial", want: StatusPartial},
		{in: "Canceled", want: StatusCanceled},
		{in: "Refunded", want: StatusCanceled},
		{in: "In progress", want: StatusProcessing},
		{in: "Pending", want: StatusProcessing},
		{in: "Exploded", want: StatusFailed},
		{in: "", want: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MapSupplierStatus(tt.in); got != tt.want {
				t.Errorf("MapSupplierStatus(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNextOrderNumber(t *testing.T) {
	tests := []struct {
		name string
		last string
		want string
	}{
		{name: "first of month", last: "", want: "ORD-202403-0001"},
		{name: "increments", last: "ORD-202403-0041", want: "ORD-202403-0042"},
		{name: "previous month restarts", last: "ORD-202402-0900", want: "ORD-202403-0001"},
		{name: "grows past four digits", last: "ORD-202403-9999", want: "ORD-202403-10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextOrderNumber(tt.last, testNow); got != tt.want {
				t.Errorf("NextOrderNumber(%q) = %s, want %s", tt.last, got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	usernames := map[string]bool{
		"john.doe_1":                        true,
		"":                                  false,
		"has space":                         false,
		"way_too_long_username_over_thirty": false,
	}
	for name, want := range usernames {
		if got := ValidUsername(name); got != want {
			t.Errorf("ValidUsername(%q) = %v, want %v", name, got, want)
		}
	}

	posts := []struct {
		url    string
		wantID string
		ok     bool
	}{
		{url: "https://www.instagram.com/p/CxYz_12-a/", wantID: "CxYz_12-a", ok: true},
		{url: "http://instagr.am/p/abc?utm_source=ig", wantID: "abc", ok: true},
		{url: "https://instagram.com/reel/abc/", ok: false},
		{url: "https://example.com/p/abc/", ok: false},
	}
	for _, tt := range posts {
		id, ok := ParsePostURL(tt.url)
		if ok != tt.ok || id != tt.wantID {
			t.Errorf("ParsePostURL(%q) = %q, %v, want %q, %v", tt.url, id, ok, tt.wantID, tt.ok)
		}
	}
}

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateOrderRequest
		wantKind apperr.Kind
	}{
		{
			name: "followers without post",
			req:  CreateOrderRequest{UserID: "u1", TargetUsername: "@someone", Service: catalog.Selector{Type: catalog.TypeFollowers, Quantity: 100}},
		},
		{
			name:     "likes require a post url",
			req:      CreateOrderRequest{UserID: "u1", TargetUsername: "someone", Service: catalog.Selector{Type: catalog.TypeLikes, Quantity: 50}},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "invalid post url",
			req:      CreateOrderRequest{UserID: "u1", TargetUsername: "someone", Service: catalog.Selector{Type: catalog.TypeLikes, Quantity: 50}, PostURL: "https://example.com/p/x"},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "quantity out of bounds",
			req:      CreateOrderRequest{UserID: "u1", TargetUsername: "someone", Service: catalog.Selector{ID: lo.ToPtr("svc-likes")}, Quantity: 10, PostURL: "https://instagram.com/p/abc/"},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "invalid username",
			req:      CreateOrderRequest{UserID: "u1", TargetUsername: "no spaces allowed", Service: catalog.Selector{Type: catalog.TypeFollowers, Quantity: 100}},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "unknown service",
			req:      CreateOrderRequest{UserID: "u1", TargetUsername: "someone", Service: catalog.Selector{Type: catalog.TypeViews, Quantity: 1000}},
			wantKind: apperr.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order, err := f.svc.CreateOrder(context.Background(), tt.req)
			if tt.wantKind != apperr.KindInternal {
				if !apperr.Is(err, tt.wantKind) {
					t.Errorf("CreateOrder error = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateOrder error: %v", err)
			}
			if order.Status != StatusPending || order.PaymentStatus != PaymentPending {
				t.Errorf("order = %s/%s, want pending/pending", order.Status, order.PaymentStatus)
			}
			if order.SocialUsername != "someone" {
				t.Errorf("SocialUsername = %q", order.SocialUsername)
			}
			if order.OrderNumber != "ORD-202403-0001" {
				t.Errorf("OrderNumber = %s", order.OrderNumber)
			}
			if !order.Price.Equal(decimal.RequireFromString("2.49")) || !order.OriginalPrice.Equal(decimal.RequireFromString("2.99")) {
				t.Errorf("price snapshot = %s/%s", order.Price, order.OriginalPrice)
			}
			if order.SupplierServiceID != "2183" {
				t.Errorf("SupplierServiceID = %s", order.SupplierServiceID)
			}
			if len(f.supplier.canceled) != 0 || f.supplier.placed != 0 || len(f.notifier.sent) != 0 {
				t.Error("creating an order must not have side effects")
			}
		})
	}
}

func TestCreateOrderNumberCollision(t *testing.T) {
	f := newFixture(t)
	f.storage.collide = 1

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "u1", TargetUsername: "someone", Service: catalog.Selector{Type: catalog.TypeFollowers, Quantity: 100},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID == "" {
		t.Error("order should be created after a retry")
	}
}

func TestDispatchToSupplier(t *testing.T) {
	paid := func() *Order {
		return &Order{ID: "o1", UserID: "u1", ServiceType: catalog.TypeFollowers, SocialUsername: "someone",
			SupplierServiceID: "2183", Quantity: 100, Status: StatusProcessing, PaymentStatus: PaymentCompleted}
	}

	t.Run("unpaid order is rejected without calling the supplier", func(t *testing.T) {
		o := paid()
		o.PaymentStatus = PaymentPending
		f := newFixture(t, o)

		_, err := f.svc.DispatchToSupplier(context.Background(), "o1")
		if !apperr.Is(err, apperr.KindConflict) {
			t.Errorf("error = %v, want conflict", err)
		}
		if f.supplier.placed != 0 {
			t.Errorf("supplier called %d times", f.supplier.placed)
		}
	})

	t.Run("success stores the supplier id", func(t *testing.T) {
		f := newFixture(t, paid())

		order, err := f.svc.DispatchToSupplier(context.Background(), "o1")
		if err != nil {
			t.Fatalf("DispatchToSupplier error: %v", err)
		}
		if order.SupplierOrderID == nil || *order.SupplierOrderID != "777" {
			t.Errorf("SupplierOrderID = %v", order.SupplierOrderID)
		}
		if order.Status != StatusProcessing {
			t.Errorf("Status = %s, want processing", order.Status)
		}
	})

	t.Run("failed then retried dispatch is processing", func(t *testing.T) {
		f := newFixture(t, paid())
		f.supplier.placeErr = errors.New("boom")
		if _, err := f.svc.DispatchToSupplier(context.Background(), "o1"); err == nil {
			t.Fatal("expected first dispatch to fail")
		}

		f.supplier.placeErr = nil
		order, err := f.svc.DispatchToSupplier(context.Background(), "o1")
		if err != nil {
			t.Fatalf("retry error: %v", err)
		}
		if order.Status != StatusProcessing {
			t.Errorf("Status = %s, want processing", order.Status)
		}
		if order.SupplierOrderID == nil || *order.SupplierOrderID != "777" {
			t.Errorf("SupplierOrderID = %v", order.SupplierOrderID)
		}
	})

	t.Run("supplier failure marks the order failed", func(t *testing.T) {
		f := newFixture(t, paid())
		f.supplier.placeErr = errors.New("boom")

		_, err := f.svc.DispatchToSupplier(context.Background(), "o1")
		if !apperr.Is(err, apperr.KindUpstream) {
			t.Errorf("error = %v, want upstream", err)
		}
		if f.storage.orders["o1"].Status != StatusFailed {
			t.Errorf("Status = %s, want failed", f.storage.orders["o1"].Status)
		}
	})
}

func TestTargetLink(t *testing.T) {
	followers := Order{ServiceType: catalog.TypeFollowers, SocialUsername: "someone"}
	if got := followers.TargetLink(); got != "https://instagram.com/someone" {
		t.Errorf("followers TargetLink = %s", got)
	}
	likes := Order{ServiceType: catalog.TypeLikes, SocialUsername: "someone", PostURL: lo.ToPtr("https://instagram.com/p/abc/")}
	if got := likes.TargetLink(); got != "https://instagram.com/p/abc/" {
		t.Errorf("likes TargetLink = %s", got)
	}
}

func TestPollStatus(t *testing.T) {
	tests := []struct {
		name           string
		stored         Status
		supplierStatus string
		wantStatus     Status
		wantNotified   int
		wantCompleted  bool
	}{
		{name: "completion notifies and stamps", stored: StatusProcessing, supplierStatus: "Completed", wantStatus: StatusCompleted, wantNotified: 1, wantCompleted: true},
		{name: "unchanged status is silent", stored: StatusProcessing, supplierStatus: "In progress", wantStatus: StatusProcessing},
		{name: "partial", stored: StatusProcessing, supplierStatus: "Partial", wantStatus: StatusPartial, wantNotified: 1},
		{name: "refunded order is left alone", stored: StatusRefunded, supplierStatus: "Completed", wantStatus: StatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &Order{ID: "o1", UserID: "u1", OrderNumber: "ORD-202403-0001", Status: tt.stored,
				PaymentStatus: PaymentCompleted, SupplierOrderID: lo.ToPtr("777")})
			f.supplier.status = &supplier.OrderStatus{Status: tt.supplierStatus, StartCount: 10, Remains: 5}

			order, err := f.svc.PollStatus(context.Background(), "o1")
			if err != nil {
				t.Fatalf("PollStatus error: %v", err)
			}
			if order.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", order.Status, tt.wantStatus)
			}
			if len(f.notifier.sent) != tt.wantNotified {
				t.Errorf("notifications = %d, want %d", len(f.notifier.sent), tt.wantNotified)
			}
			if (order.CompletedAt != nil) != tt.wantCompleted {
				t.Errorf("CompletedAt = %v, want set %v", order.CompletedAt, tt.wantCompleted)
			}
		})
	}

	t.Run("requires a supplier order", func(t *testing.T) {
		f := newFixture(t, &Order{ID: "o1", Status: StatusProcessing})
		if _, err := f.svc.PollStatus(context.Background(), "o1"); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})
}

func TestApplySupplierStatusKeepsRefund(t *testing.T) {
	f := newFixture(t, &Order{ID: "o1", UserID: "u1", Status: StatusProcessing,
		PaymentStatus: PaymentCompleted, SupplierOrderID: lo.ToPtr("777")})

	stale, err := f.svc.GetOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	f.storage.orders["o1"].Status = StatusRefunded
	f.storage.orders["o1"].PaymentStatus = PaymentRefunded

	order, err := f.svc.ApplySupplierStatus(context.Background(), stale, supplier.OrderStatus{Status: "Completed"})
	if err != nil {
		t.Fatalf("ApplySupplierStatus error: %v", err)
	}
	if order.Status != StatusRefunded || f.storage.orders["o1"].Status != StatusRefunded {
		t.Errorf("Status = %s (stored %s), want refunded", order.Status, f.storage.orders["o1"].Status)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.notifier.sent))
	}
}

func TestRequestRefill(t *testing.T) {
	tests := []struct {
		name     string
		order    *Order
		wantKind apperr.Kind
	}{
		{name: "completed order", order: &Order{ID: "o1", Status: StatusCompleted, SupplierOrderID: lo.ToPtr("777")}},
		{name: "processing order", order: &Order{ID: "o1", Status: StatusProcessing, SupplierOrderID: lo.ToPtr("777")}, wantKind: apperr.KindConflict},
		{name: "second refill", order: &Order{ID: "o1", Status: StatusPartial, SupplierOrderID: lo.ToPtr("777"), RefillRequested: true, RefillID: lo.ToPtr("r0")}, wantKind: apperr.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.order)
			order, err := f.svc.RequestRefill(context.Background(), "o1")
			if tt.wantKind != apperr.KindInternal {
				if !apperr.Is(err, tt.wantKind) {
					t.Errorf("error = %v, want %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("RequestRefill error: %v", err)
			}
			if !order.RefillRequested || order.RefillID == nil || *order.RefillStatus != RefillPending {
				t.Errorf("order refill fields = %+v", order)
			}
			if len(f.notifier.sent) != 1 || f.notifier.sent[0].title != "Refill Requested" {
				t.Errorf("notifications = %+v", f.notifier.sent)
			}
		})
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t,
		&Order{ID: "a", Status: StatusCompleted, ServiceType: catalog.TypeFollowers, Price: decimal.RequireFromString("10")},
		&Order{ID: "b", Status: StatusProcessing, ServiceType: catalog.TypeLikes, Price: decimal.RequireFromString("5")},
		&Order{ID: "c", Status: StatusPending, ServiceType: catalog.TypeLikes, Price: decimal.RequireFromString("100")},
	)

	stats, err := f.svc.Stats(context.Background(), PeriodMonth)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.TotalOrders != 3 || stats.ByServiceType[catalog.TypeLikes] != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Revenue.Equal(decimal.RequireFromString("15")) || !stats.AverageOrderValue.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("revenue = %s avg = %s", stats.Revenue, stats.AverageOrderValue)
	}

	if _, err := f.svc.Stats(context.Background(), "decade"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("invalid period error = %v", err)
	}
}
