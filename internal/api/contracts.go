package api

import (
	"context"
	"net/http"

	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/coupons"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/payment"
	"engagement-shop/internal/stories/users"

	"github.com/shopspring/decimal"
)

type (
	UserService interface {
		Authenticate(ctx context.Context, id string) (*users.User, error)
		GetUser(ctx context.Context, id string) (*users.User, error)
		CreateUser(ctx context.Context, req users.CreateUserRequest) (*users.User, error)
		SetStatus(ctx context.Context, id string, status users.Status) (*users.User, error)
		ListUsers(ctx context.Context, criteria users.ListCriteria) ([]*users.User, error)
	}

	CatalogService interface {
		CreateService(ctx context.Context, service catalog.Service) (*catalog.Service, error)
		UpdateService(ctx context.Context, id string, params catalog.UpdateParams) (*catalog.Service, error)
		DeactivateService(ctx context.Context, id string) (*catalog.Service, error)
		GetService(ctx context.Context, id string) (*catalog.Service, error)
		ListServices(ctx context.Context, criteria catalog.ListCriteria) ([]*catalog.Service, error)
	}

	OrderService interface {
		CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
		GetOrderFor(ctx context.Context, id, userID string, isAdmin bool) (*orders.Order, error)
		ListOrders(ctx context.Context, criteria orders.ListCriteria) ([]*orders.Order, error)
		DispatchToSupplier(ctx context.Context, id string) (*orders.Order, error)
		PollStatus(ctx context.Context, id string) (*orders.Order, error)
		RequestRefill(ctx context.Context, id string) (*orders.Order, error)
		PollRefillStatus(ctx context.Context, id string) (*orders.Order, error)
		CancelAtSupplier(ctx context.Context, id string) (*orders.Order, error)
		Stats(ctx context.Context, period orders.Period) (*orders.Stats, error)
	}

	PaymentService interface {
		CreateCheckoutSession(ctx context.Context, userID, orderID string) (*payment.CheckoutSession, error)
		ProcessPayment(ctx context.Context, transactionID, userID string, isAdmin bool) (*payment.ProcessResult, error)
		GetTransactionFor(ctx context.Context, id, userID string, isAdmin bool) (*payment.Transaction, error)
		ListTransactions(ctx context.Context, criteria payment.ListCriteria) ([]*payment.Transaction, error)
		PaymentMethods() []payment.MethodInfo
		HandleWebhook(ctx context.Context, body []byte, signature string) error
		Refund(ctx context.Context, transactionID string) (*payment.RefundOutcome, error)
		RefundOrder(ctx context.Context, orderID string) (*payment.RefundOutcome, error)
		GuestCheckout(ctx context.Context, req payment.GuestCheckoutRequest) (*payment.GuestCheckoutResult, error)
		GuestPaymentStatus(ctx context.Context, transactionID string) (*payment.ProcessResult, error)
	}

	NotificationService interface {
		List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*notifications.Notification, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, notificationID string) (*notifications.Notification, error)
		MarkAllRead(ctx context.Context, userID string) (int64, error)
		Delete(ctx context.Context, userID, notificationID string) error
		ClearAll(ctx context.Context, userID string) (int64, error)
		Broadcast(ctx context.Context, typ notifications.Type, title, message string, opts notifications.BroadcastOptions) (notifications.BroadcastResult, error)

		GetPreferences(ctx context.Context, userID string) (*notifications.Preference, error)
		UpdatePreferences(ctx context.Context, userID string, update notifications.PreferenceUpdate) (*notifications.Preference, error)
		ResetPreferences(ctx context.Context, userID string) (*notifications.Preference, error)
	}

	CouponService interface {
		Validate(ctx context.Context, code string, cartValue decimal.Decimal, serviceType string) (*coupons.Validation, error)
		Create(ctx context.Context, coupon coupons.Coupon) (*coupons.Coupon, error)
		Get(ctx context.Context, id string) (*coupons.Coupon, error)
		List(ctx context.Context, criteria coupons.ListCriteria) ([]*coupons.Coupon, error)
		ToggleActive(ctx context.Context, id string) (*coupons.Coupon, error)
	}

	// Realtime upgrades the request and streams the topic until the client leaves.
	Realtime interface {
		Serve(w http.ResponseWriter, r *http.Request, topic string) error
	}
)
