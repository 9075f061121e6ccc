package coupons

import "context"

type Storage interface {
	CreateCoupon(ctx context.Context, coupon Coupon) (*Coupon, error)
	GetCoupon(ctx context.Context, criteria GetCriteria) (*Coupon, error)
	UpdateCoupon(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Coupon, error)
	ListCoupons(ctx context.Context, criteria ListCriteria) ([]*Coupon, error)
}
