package coupons

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"engagement-shop/internal/apperr"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeStorage struct {
	coupons []*Coupon
}

func (f *fakeStorage) CreateCoupon(_ context.Context, coupon Coupon) (*Coupon, error) {
	for _, c := range f.coupons {
		if c.Code == coupon.Code {
			return nil, ErrCodeTaken
		}
	}
	coupon.ID = "c-" + coupon.Code
	f.coupons = append(f.coupons, &coupon)
	return &coupon, nil
}

func (f *fakeStorage) GetCoupon(_ context.Context, criteria GetCriteria) (*Coupon, error) {
	for _, c := range f.coupons {
		if criteria.ID != nil && c.ID != *criteria.ID {
			continue
		}
		if criteria.Code != nil && c.Code != *criteria.Code {
			continue
		}
		return c, nil
	}
	return nil, nil
}

func (f *fakeStorage) UpdateCoupon(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Coupon, error) {
	c, _ := f.GetCoupon(ctx, criteria)
	if c != nil && params.Active != nil {
		c.Active = *params.Active
	}
	return c, nil
}

func (f *fakeStorage) ListCoupons(_ context.Context, _ ListCriteria) ([]*Coupon, error) {
	return f.coupons, nil
}

func newTestService(coupons ...*Coupon) *Service {
	return NewService(&fakeStorage{coupons: coupons}, func() time.Time { return testNow }, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIsValid(t *testing.T) {
	base := Coupon{
		Active:       true,
		ValidFrom:    testNow.Add(-time.Hour),
		ValidUntil:   testNow.Add(time.Hour),
		MinCartValue: d("10"),
		AppliesTo:    AppliesToAll,
	}

	tests := []struct {
		name        string
		mutate      func(c *Coupon)
		cart        string
		serviceType string
		want        bool
	}{
		{name: "valid", cart: "10", serviceType: "likes", want: true},
		{name: "inactive", mutate: func(c *Coupon) { c.Active = false }, cart: "20", want: false},
		{name: "not started", mutate: func(c *Coupon) { c.ValidFrom = testNow.Add(time.Minute) }, cart: "20", want: false},
		{name: "expired", mutate: func(c *Coupon) { c.ValidUntil = testNow.Add(-time.Minute) }, cart: "20", want: false},
		{name: "used up", mutate: func(c *Coupon) { c.MaxUses = 5; c.UsedCount = 5 }, cart: "20", want: false},
		{name: "unlimited uses", mutate: func(c *Coupon) { c.UsedCount = 500 }, cart: "20", want: true},
		{name: "below minimum cart", cart: "9.99", want: false},
		{name: "other service type", mutate: func(c *Coupon) { c.AppliesTo = "followers" }, cart: "20", serviceType: "likes", want: false},
		{name: "matching service type", mutate: func(c *Coupon) { c.AppliesTo = "likes" }, cart: "20", serviceType: "likes", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			if got := c.IsValid(testNow, d(tt.cart), tt.serviceType); got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name   string
		typ    DiscountType
		value  string
		amount string
		want   string
	}{
		{name: "percentage", typ: DiscountPercentage, value: "15", amount: "24.99", want: "3.75"},
		{name: "fixed", typ: DiscountFixed, value: "5", amount: "24.99", want: "5"},
		{name: "fixed capped at amount", typ: DiscountFixed, value: "50", amount: "24.99", want: "24.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Coupon{DiscountType: tt.typ, DiscountValue: d(tt.value)}
			if got := c.CalculateDiscount(d(tt.amount)); !got.Equal(d(tt.want)) {
				t.Errorf("CalculateDiscount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := newTestService(&Coupon{
		ID:            "c1",
		Code:          "SPRING10",
		DiscountType:  DiscountPercentage,
		DiscountValue: d("10"),
		Active:        true,
		ValidFrom:     testNow.Add(-time.Hour),
		ValidUntil:    testNow.Add(time.Hour),
		AppliesTo:     AppliesToAll,
	})

	got, err := s.Validate(context.Background(), " spring10 ", d("50"), "likes")
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !got.Discount.Equal(d("5")) || !got.FinalAmount.Equal(d("45")) {
		t.Errorf("Validate = %s / %s, want 5 / 45", got.Discount, got.FinalAmount)
	}

	if _, err := s.Validate(context.Background(), "NOPE", d("50"), "likes"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown code error = %v, want not found", err)
	}
	if _, err := s.Validate(context.Background(), "", d("50"), "likes"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("empty code error = %v, want validation", err)
	}
}

func TestCreate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	tests := []struct {
		name     string
		coupon   Coupon
		wantKind apperr.Kind
	}{
		{name: "bad type", coupon: Coupon{Code: "X", DiscountType: "bogo", DiscountValue: d("1"), ValidUntil: testNow.Add(time.Hour)}, wantKind: apperr.KindValidation},
		{name: "percentage over 100", coupon: Coupon{Code: "X", DiscountType: DiscountPercentage, DiscountValue: d("120"), ValidUntil: testNow.Add(time.Hour)}, wantKind: apperr.KindValidation},
		{name: "window reversed", coupon: Coupon{Code: "X", DiscountType: DiscountFixed, DiscountValue: d("1"), ValidUntil: testNow.Add(-time.Hour)}, wantKind: apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tt.coupon); !apperr.Is(err, tt.wantKind) {
				t.Errorf("Create error = %v, want kind %s", err, tt.wantKind)
			}
		})
	}

	created, err := s.Create(ctx, Coupon{Code: "welcome", DiscountType: DiscountFixed, DiscountValue: d("2"), Active: true, ValidUntil: testNow.AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.Code != "WELCOME" || created.AppliesTo != AppliesToAll || !created.ValidFrom.Equal(testNow) {
		t.Errorf("created = %+v", created)
	}

	if _, err := s.Create(ctx, Coupon{Code: "Welcome", DiscountType: DiscountFixed, DiscountValue: d("2"), ValidUntil: testNow.AddDate(0, 1, 0)}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("duplicate Create error = %v, want conflict", err)
	}

	toggled, err := s.ToggleActive(ctx, created.ID)
	if err != nil {
		t.Fatalf("ToggleActive error: %v", err)
	}
	if toggled.Active {
		t.Error("ToggleActive left the coupon active")
	}
}
