package coupons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-shop/internal/apperr"

	"github.com/shopspring/decimal"
)

// ErrCodeTaken is returned by storage when the coupon code already exists.
var ErrCodeTaken = errors.New("coupon code already exists")

type Service struct {
	storage Storage
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(storage Storage, now func() time.Time, logger *slog.Logger) *Service {
	return &Service{storage: storage, now: now, logger: logger}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks code against a cart and returns the discount it grants.
func (s *Service) Validate(ctx context.Context, code string, cartValue decimal.Decimal, serviceType string) (*Validation, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, apperr.Validation("coupon code is required")
	}

	coupon, err := s.storage.GetCoupon(ctx, GetCriteria{Code: &code})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, apperr.NotFound("invalid coupon code")
	}
	if !coupon.IsValid(s.now(), cartValue, serviceType) {
		return nil, apperr.Validation("coupon is not valid for this order")
	}

	discount := coupon.CalculateDiscount(cartValue)
	return &Validation{
		Coupon:      coupon,
		Discount:    discount,
		FinalAmount: cartValue.Sub(discount),
	}, nil
}

func (s *Service) Create(ctx context.Context, coupon Coupon) (*Coupon, error) {
	coupon.Code = normalizeCode(coupon.Code)
	if coupon.Code == "" {
		return nil, apperr.Validation("coupon code is required")
	}
	if !coupon.DiscountType.Valid() {
		return nil, apperr.Validation("invalid discount type %q", coupon.DiscountType)
	}
	if !coupon.DiscountValue.IsPositive() {
		return nil, apperr.Validation("discount value must be positive")
	}
	if coupon.DiscountType == DiscountPercentage && coupon.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperr.Validation("percentage discount cannot exceed 100")
	}
	if coupon.MinCartValue.IsNegative() || coupon.MaxUses < 0 {
		return nil, apperr.Validation("limits cannot be negative")
	}
	if coupon.ValidFrom.IsZero() {
		coupon.ValidFrom = s.now()
	}
	if !coupon.ValidUntil.After(coupon.ValidFrom) {
		return nil, apperr.Validation("validUntil must be after validFrom")
	}
	if coupon.AppliesTo == "" {
		coupon.AppliesTo = AppliesToAll
	}
	coupon.UsedCount = 0

	created, err := s.storage.CreateCoupon(ctx, coupon)
	if errors.Is(err, ErrCodeTaken) {
		return nil, apperr.Conflict("coupon %s already exists", coupon.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	s.logger.Info("Coupon created", "coupon_id", created.ID, "code", created.Code)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	coupon, err := s.storage.GetCoupon(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, apperr.NotFound("coupon %s not found", id)
	}
	return coupon, nil
}

func (s *Service) List(ctx context.Context, criteria ListCriteria) ([]*Coupon, error) {
	list, err := s.storage.ListCoupons(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return list, nil
}

// ToggleActive flips the active flag.
func (s *Service) ToggleActive(ctx context.Context, id string) (*Coupon, error) {
	coupon, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	active := !coupon.Active
	updated, err := s.storage.UpdateCoupon(ctx, GetCriteria{ID: &id}, UpdateParams{Active: &active})
	if err != nil {
		return nil, fmt.Errorf("update coupon: %w", err)
	}

	s.logger.Info("Coupon toggled", "coupon_id", id, "active", active)
	return updated, nil
}
