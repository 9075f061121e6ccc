package coupons

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// AppliesToAll matches every service type.
const AppliesToAll = "all"

type Coupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	MinCartValue  decimal.Decimal `json:"minCartValue"`
	// MaxUses of 0 means unlimited.
	MaxUses    int       `json:"maxUses"`
	UsedCount  int       `json:"usedCount"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
	Active     bool      `json:"active"`
	AppliesTo  string    `json:"appliesTo"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsValid reports whether the coupon can be used at now for a cart of cartValue.
func (c *Coupon) IsValid(now time.Time, cartValue decimal.Decimal, serviceType string) bool {
	if !c.Active {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return false
	}
	if cartValue.LessThan(c.MinCartValue) {
		return false
	}
	return c.AppliesTo == "" || c.AppliesTo == AppliesToAll || c.AppliesTo == serviceType
}

// CalculateDiscount never exceeds amount.
func (c *Coupon) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	default:
		discount = c.DiscountValue
	}
	return decimal.Min(discount, amount).Round(2)
}

type Validation struct {
	Coupon      *Coupon         `json:"coupon"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
}

type GetCriteria struct {
	ID   *string
	Code *string
}

type ListCriteria struct {
	Active *bool
	// Search matches a code fragment, case-insensitively.
	Search *string
	Limit  int
	Offset int
}

type UpdateParams struct {
	Active *bool
}
