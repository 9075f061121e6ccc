package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"engagement-shop/internal/infra/sqlite3"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/coupons"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/payment"
	"engagement-shop/internal/stories/users"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func newTestStorage(t *testing.T) *storageImpl {
	t.Helper()
	db, err := sqlite3.New(context.Background(), sqlite3.WithMigrations())
	if err != nil {
		t.Fatalf("sqlite3.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db.DB)
}

type seed struct {
	user    *users.User
	service *catalog.Service
}

func seedData(t *testing.T, s *storageImpl) seed {
	t.Helper()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, users.User{Email: "ann@example.com", Username: "ann", Role: users.RoleUser, Status: users.StatusActive})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	service := catalog.Service{
		Name:              "100 followers",
		Type:              catalog.TypeFollowers,
		Category:          catalog.CategoryInstagram,
		Quality:           catalog.QualityGeneral,
		SupplierServiceID: "2183",
		Quantity:          100,
		MinQuantity:       100,
		MaxQuantity:       100,
		Price:             decimal.RequireFromString("2.99"),
		Active:            true,
	}
	service.ApplyPricing()
	created, err := s.CreateService(ctx, service)
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	return seed{user: user, service: created}
}

func newOrder(sd seed, number, price string) orders.Order {
	return orders.Order{
		OrderNumber:       number,
		UserID:            sd.user.ID,
		ServiceID:         sd.service.ID,
		SupplierServiceID: sd.service.SupplierServiceID,
		SocialUsername:    "ann",
		ServiceType:       catalog.TypeFollowers,
		Quality:           catalog.QualityGeneral,
		Quantity:          100,
		Price:             decimal.RequireFromString(price),
		DeliverySpeed:     orders.DeliveryStandard,
		Status:            orders.StatusPending,
		PaymentStatus:     orders.PaymentPending,
	}
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	if len(sd.user.ID) != 24 {
		t.Errorf("id %q is not 24 characters", sd.user.ID)
	}

	spent := decimal.RequireFromString("12.50")
	updated, err := s.UpdateUser(ctx, users.GetCriteria{ID: &sd.user.ID}, users.UpdateParams{
		TotalSpent: &spent,
		Status:     lo.ToPtr(users.StatusBlocked),
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if !updated.TotalSpent.Equal(spent) || updated.Status != users.StatusBlocked {
		t.Errorf("updated = %+v", updated)
	}

	missing, err := s.GetUser(ctx, users.GetCriteria{Email: lo.ToPtr("nobody@example.com")})
	if err != nil || missing != nil {
		t.Errorf("GetUser(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestServiceSelector(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	got, err := s.GetService(ctx, catalog.GetCriteria{
		Type:     lo.ToPtr(catalog.TypeFollowers),
		Quality:  lo.ToPtr(catalog.QualityGeneral),
		Quantity: lo.ToPtr(100),
		Active:   lo.ToPtr(true),
	})
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if got == nil || got.ID != sd.service.ID {
		t.Fatalf("GetService = %+v, want %s", got, sd.service.ID)
	}
	if !got.FinalPrice.Equal(decimal.RequireFromString("2.99")) {
		t.Errorf("FinalPrice = %s, want 2.99", got.FinalPrice)
	}

	if _, err := s.UpdateService(ctx, catalog.GetCriteria{ID: &sd.service.ID}, catalog.UpdateParams{Active: lo.ToPtr(false)}); err != nil {
		t.Fatalf("UpdateService: %v", err)
	}
	inactive, err := s.GetService(ctx, catalog.GetCriteria{ID: &sd.service.ID, Active: lo.ToPtr(true)})
	if err != nil || inactive != nil {
		t.Errorf("GetService(active) = %v, %v; want nil, nil", inactive, err)
	}
}

func TestOrderNumbers(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	for _, number := range []string{"ORD-202403-9999", "ORD-202403-10000", "ORD-202402-0500"} {
		if _, err := s.CreateOrder(ctx, newOrder(sd, number, "2.99")); err != nil {
			t.Fatalf("CreateOrder(%s): %v", number, err)
		}
	}

	last, err := s.LastOrderNumber(ctx, "ORD-202403-")
	if err != nil {
		t.Fatalf("LastOrderNumber: %v", err)
	}
	if last != "ORD-202403-10000" {
		t.Errorf("LastOrderNumber = %s, want ORD-202403-10000", last)
	}

	none, err := s.LastOrderNumber(ctx, "ORD-202404-")
	if err != nil || none != "" {
		t.Errorf("LastOrderNumber(empty month) = %q, %v", none, err)
	}

	_, err = s.CreateOrder(ctx, newOrder(sd, "ORD-202403-9999", "2.99"))
	if !errors.Is(err, orders.ErrOrderNumberTaken) {
		t.Errorf("duplicate CreateOrder error = %v, want ErrOrderNumberTaken", err)
	}
}

func TestOrderUpdateAndStats(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	a, _ := s.CreateOrder(ctx, newOrder(sd, "ORD-202403-0001", "2.99"))
	b, _ := s.CreateOrder(ctx, newOrder(sd, "ORD-202403-0002", "10.01"))
	if _, err := s.CreateOrder(ctx, newOrder(sd, "ORD-202403-0003", "5")); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	started := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{a.ID, b.ID} {
		updated, err := s.UpdateOrder(ctx, orders.GetCriteria{ID: &id}, orders.UpdateParams{
			Status:            lo.ToPtr(orders.StatusProcessing),
			PaymentStatus:     lo.ToPtr(orders.PaymentCompleted),
			SupplierOrderID:   lo.ToPtr("sup-" + id),
			DeliveryStartedAt: &started,
		})
		if err != nil {
			t.Fatalf("UpdateOrder: %v", err)
		}
		if updated.DeliveryStartedAt == nil || !updated.DeliveryStartedAt.Equal(started) {
			t.Errorf("DeliveryStartedAt = %v, want %v", updated.DeliveryStartedAt, started)
		}
	}

	placed, err := s.ListOrders(ctx, orders.ListCriteria{
		Statuses:          []orders.Status{orders.StatusProcessing},
		WithSupplierOrder: true,
	})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(placed) != 2 {
		t.Errorf("ListOrders = %d orders, want 2", len(placed))
	}

	rows, err := s.OrderStats(ctx, orders.ListCriteria{})
	if err != nil {
		t.Fatalf("OrderStats: %v", err)
	}
	byStatus := make(map[orders.Status]orders.StatsRow)
	for _, row := range rows {
		byStatus[row.Status] = row
	}
	if got := byStatus[orders.StatusProcessing]; got.Count != 2 || !got.Revenue.Equal(decimal.RequireFromString("13")) {
		t.Errorf("processing bucket = %+v, want 2 orders and 13 revenue", got)
	}
	if got := byStatus[orders.StatusPending]; got.Count != 1 {
		t.Errorf("pending bucket = %+v, want 1 order", got)
	}
}

func TestUpdateOrderExcludingStatuses(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	order, err := s.CreateOrder(ctx, newOrder(sd, "ORD-202403-0001", "2.99"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	s.UpdateOrder(ctx, orders.GetCriteria{ID: &order.ID}, orders.UpdateParams{Status: lo.ToPtr(orders.StatusRefunded)})

	guarded := orders.GetCriteria{ID: &order.ID, ExcludeStatuses: []orders.Status{orders.StatusRefunded}}
	updated, err := s.UpdateOrder(ctx, guarded, orders.UpdateParams{Status: lo.ToPtr(orders.StatusCompleted)})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if updated != nil {
		t.Errorf("UpdateOrder returned %+v, want nil for an excluded row", updated)
	}

	stored, _ := s.GetOrder(ctx, orders.GetCriteria{ID: &order.ID})
	if stored.Status != orders.StatusRefunded {
		t.Errorf("Status = %s, want refunded", stored.Status)
	}
}

func TestRefundWrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	order, _ := s.CreateOrder(ctx, newOrder(sd, "ORD-202403-0001", "24.99"))
	s.UpdateOrder(ctx, orders.GetCriteria{ID: &order.ID}, orders.UpdateParams{
		Status:        lo.ToPtr(orders.StatusCompleted),
		PaymentStatus: lo.ToPtr(orders.PaymentCompleted),
	})

	original, err := s.CreateTransaction(ctx, payment.Transaction{
		UserID:            sd.user.ID,
		OrderID:           &order.ID,
		Type:              payment.TypeOrderPayment,
		Amount:            decimal.RequireFromString("24.99"),
		Fee:               decimal.RequireFromString("1.02"),
		Currency:          "USD",
		PaymentMethod:     payment.MethodCreditCard,
		Status:            payment.StatusCompleted,
		Reference:         "PAY-1-AAAAAA",
		ExternalReference: lo.ToPtr("pay_1"),
		PaymentDetails:    map[string]any{"provider": "checkout"},
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if !original.NetAmount.Equal(decimal.RequireFromString("23.97")) {
		t.Errorf("NetAmount = %s, want 23.97", original.NetAmount)
	}

	write := payment.RefundWrite{
		OriginalID:      original.ID,
		OriginalDetails: map[string]any{"provider": "checkout", "refund": map[string]any{"action_id": "act_1"}},
		Refund: payment.Transaction{
			UserID:               sd.user.ID,
			OrderID:              &order.ID,
			Type:                 payment.TypeRefund,
			Amount:               decimal.RequireFromString("-24.99"),
			Currency:             "USD",
			PaymentMethod:        payment.MethodCreditCard,
			Status:               payment.StatusCompleted,
			Reference:            "REF-1-BBBBBB",
			ExternalReference:    lo.ToPtr("act_1"),
			RelatedTransactionID: &original.ID,
		},
		OrderID: &order.ID,
	}

	outcome, err := s.ApplyRefund(ctx, write)
	if err != nil {
		t.Fatalf("ApplyRefund: %v", err)
	}
	if outcome.Original.Status != payment.StatusRefunded {
		t.Errorf("original status = %s, want refunded", outcome.Original.Status)
	}
	if _, ok := outcome.Original.PaymentDetails["refund"]; !ok {
		t.Errorf("original details = %v, want refund merged", outcome.Original.PaymentDetails)
	}
	if outcome.Refund.RelatedTransactionID == nil || *outcome.Refund.RelatedTransactionID != original.ID {
		t.Errorf("refund related = %v, want %s", outcome.Refund.RelatedTransactionID, original.ID)
	}

	refunded, _ := s.GetOrder(ctx, orders.GetCriteria{ID: &order.ID})
	if refunded.Status != orders.StatusRefunded || refunded.PaymentStatus != orders.PaymentRefunded {
		t.Errorf("order = %s/%s, want refunded/refunded", refunded.Status, refunded.PaymentStatus)
	}

	// A second write finds the original no longer completed and leaves nothing behind.
	write.Refund.Reference = "REF-2-CCCCCC"
	if _, err := s.ApplyRefund(ctx, write); err == nil {
		t.Fatal("second ApplyRefund succeeded")
	}
	refunds, _ := s.ListTransactions(ctx, payment.ListCriteria{Type: lo.ToPtr(payment.TypeRefund)})
	if len(refunds) != 1 {
		t.Errorf("refund rows = %d, want 1", len(refunds))
	}
}

func TestPendingTransactionsForReconcile(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	base := payment.Transaction{
		UserID:        sd.user.ID,
		Type:          payment.TypeOrderPayment,
		Amount:        decimal.RequireFromString("5"),
		Currency:      "USD",
		PaymentMethod: payment.MethodCreditCard,
		Status:        payment.StatusPending,
	}
	withRef := base
	withRef.Reference = "PAY-1-A"
	withRef.ExternalReference = lo.ToPtr("pay_1")
	withoutRef := base
	withoutRef.Reference = "PAY-2-B"
	for _, tx := range []payment.Transaction{withRef, withoutRef} {
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	cutoff := time.Now().Add(time.Minute)
	list, err := s.ListTransactions(ctx, payment.ListCriteria{
		Statuses:              []payment.Status{payment.StatusPending},
		WithExternalReference: true,
		CreatedBefore:         &cutoff,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(list) != 1 || list[0].Reference != "PAY-1-A" {
		t.Errorf("ListTransactions = %v, want only PAY-1-A", list)
	}

	past := time.Now().Add(-time.Hour)
	list, _ = s.ListTransactions(ctx, payment.ListCriteria{CreatedBefore: &past})
	if len(list) != 0 {
		t.Errorf("ListTransactions(before an hour ago) = %d rows, want 0", len(list))
	}

	got, err := s.GetTransaction(ctx, payment.GetCriteria{ExternalReference: lo.ToPtr("pay_1")})
	if err != nil || got == nil || got.Reference != "PAY-1-A" {
		t.Errorf("GetTransaction(pay_1) = %v, %v", got, err)
	}
}

func TestWebhookEventDedup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	event := payment.WebhookEvent{Provider: "checkout", EventID: "evt_1", EventType: "payment_captured", SignatureValid: true, ProcessedAt: time.Now()}

	fresh, err := s.SaveWebhookEvent(ctx, event)
	if err != nil || !fresh {
		t.Fatalf("first SaveWebhookEvent = %v, %v; want true", fresh, err)
	}
	fresh, err = s.SaveWebhookEvent(ctx, event)
	if err != nil || fresh {
		t.Fatalf("second SaveWebhookEvent = %v, %v; want false", fresh, err)
	}
}

func TestNotificationsStorage(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)
	userID := sd.user.ID

	batch := []notifications.Notification{
		{UserID: userID, Type: notifications.TypePromo, Title: "a", Message: "a"},
		{UserID: userID, Type: notifications.TypePromo, Title: "b", Message: "b"},
	}
	if err := s.CreateNotifications(ctx, batch); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}
	if batch[0].ID == "" || batch[1].CreatedAt.IsZero() {
		t.Errorf("batch was not filled in: %+v", batch)
	}

	single, err := s.CreateNotification(ctx, notifications.Notification{
		UserID:  userID,
		Type:    notifications.TypeOrderUpdate,
		Title:   "c",
		Message: "c",
		Link:    lo.ToPtr("/orders/1"),
	})
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	count, err := s.CountNotificationsSince(ctx, userID, time.Now().Add(-time.Minute))
	if err != nil || count != 3 {
		t.Errorf("CountNotificationsSince = %d, %v; want 3", count, err)
	}

	if n, err := s.MarkNotificationsRead(ctx, notifications.GetCriteria{ID: &single.ID}, time.Now()); err != nil || n != 1 {
		t.Errorf("MarkNotificationsRead(one) = %d, %v; want 1", n, err)
	}
	if n, _ := s.MarkNotificationsRead(ctx, notifications.GetCriteria{ID: &single.ID}, time.Now()); n != 0 {
		t.Errorf("MarkNotificationsRead(again) = %d, want 0", n)
	}
	if unread, _ := s.CountUnread(ctx, userID); unread != 2 {
		t.Errorf("CountUnread = %d, want 2", unread)
	}

	list, err := s.ListNotifications(ctx, notifications.ListCriteria{UserID: &userID, UnreadOnly: true})
	if err != nil || len(list) != 2 {
		t.Errorf("ListNotifications(unread) = %d, %v; want 2", len(list), err)
	}

	if n, err := s.DeleteNotifications(ctx, notifications.DeleteCriteria{UserID: &userID}); err != nil || n != 3 {
		t.Errorf("DeleteNotifications = %d, %v; want 3", n, err)
	}
}

func TestCreateNotificationsLargeBatch(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)
	userID := sd.user.ID

	batch := make([]notifications.Notification, notificationBatchRows*2+3)
	for i := range batch {
		batch[i] = notifications.Notification{
			UserID:  userID,
			Type:    notifications.TypePromo,
			Title:   fmt.Sprintf("promo %d", i),
			Message: "sale",
		}
	}
	if err := s.CreateNotifications(ctx, batch); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}

	count, err := s.CountNotificationsSince(ctx, userID, time.Now().Add(-time.Minute))
	if err != nil || count != len(batch) {
		t.Errorf("CountNotificationsSince = %d, %v; want %d", count, err, len(batch))
	}

	last := batch[len(batch)-1]
	got, err := s.GetNotification(ctx, notifications.GetCriteria{ID: &last.ID})
	if err != nil || got == nil {
		t.Fatalf("GetNotification(last) = %v, %v", got, err)
	}
	if got.Title != last.Title || got.Read {
		t.Errorf("last row = %+v, want title %q unread", got, last.Title)
	}
}

func TestPreferenceUpsert(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	sd := seedData(t, s)

	pref := notifications.DefaultPreference(sd.user.ID)
	if _, err := s.UpsertPreference(ctx, pref); err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}

	pref.Promotions = false
	pref.QuietHours = notifications.QuietHours{Enabled: true, Start: "23:00", End: "07:00", Timezone: "Europe/Berlin"}
	saved, err := s.UpsertPreference(ctx, pref)
	if err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}
	if saved.Promotions || !saved.QuietHours.Enabled || saved.QuietHours.Timezone != "Europe/Berlin" {
		t.Errorf("saved = %+v", saved)
	}

	if err := s.DeletePreference(ctx, sd.user.ID); err != nil {
		t.Fatalf("DeletePreference: %v", err)
	}
	gone, err := s.GetPreference(ctx, sd.user.ID)
	if err != nil || gone != nil {
		t.Errorf("GetPreference after delete = %v, %v", gone, err)
	}
}

func TestCoupons(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	coupon := coupons.Coupon{
		Code:          "SPRING10",
		DiscountType:  coupons.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ValidFrom:     now,
		ValidUntil:    now.AddDate(0, 1, 0),
		Active:        true,
		AppliesTo:     coupons.AppliesToAll,
	}
	if _, err := s.CreateCoupon(ctx, coupon); err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}
	if _, err := s.CreateCoupon(ctx, coupon); !errors.Is(err, coupons.ErrCodeTaken) {
		t.Errorf("duplicate CreateCoupon error = %v, want ErrCodeTaken", err)
	}

	found, err := s.ListCoupons(ctx, coupons.ListCriteria{Search: lo.ToPtr("ring")})
	if err != nil || len(found) != 1 {
		t.Fatalf("ListCoupons(search) = %d, %v; want 1", len(found), err)
	}
	if !found[0].DiscountValue.Equal(decimal.NewFromInt(10)) {
		t.Errorf("DiscountValue = %s, want 10", found[0].DiscountValue)
	}
}
