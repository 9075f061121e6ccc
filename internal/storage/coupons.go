package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"engagement-shop/internal/stories/coupons"
)

const couponsTable = "coupons"

var couponRowFields = fields(couponRow{})

type couponRow struct {
	ID            string          `db:"id"`
	Code          string          `db:"code"`
	DiscountType  string          `db:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value"`
	MinCartValue  decimal.Decimal `db:"min_cart_value"`
	MaxUses       int             `db:"max_uses"`
	UsedCount     int             `db:"used_count"`
	ValidFrom     time.Time       `db:"valid_from"`
	ValidUntil    time.Time       `db:"valid_until"`
	Active        bool            `db:"active"`
	AppliesTo     string          `db:"applies_to"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r couponRow) ToModel() *coupons.Coupon {
	return &coupons.Coupon{
		ID:            r.ID,
		Code:          r.Code,
		DiscountType:  coupons.DiscountType(r.DiscountType),
		DiscountValue: r.DiscountValue,
		MinCartValue:  r.MinCartValue,
		MaxUses:       r.MaxUses,
		UsedCount:     r.UsedCount,
		ValidFrom:     r.ValidFrom,
		ValidUntil:    r.ValidUntil,
		Active:        r.Active,
		AppliesTo:     r.AppliesTo,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// CreateCoupon returns coupons.ErrCodeTaken on a duplicate code.
func (s *storageImpl) CreateCoupon(ctx context.Context, coupon coupons.Coupon) (*coupons.Coupon, error) {
	id := newID()
	now := s.now()
	params := map[string]interface{}{
		"id":             id,
		"code":           coupon.Code,
		"discount_type":  string(coupon.DiscountType),
		"discount_value": coupon.DiscountValue,
		"min_cart_value": coupon.MinCartValue,
		"max_uses":       coupon.MaxUses,
		"used_count":     coupon.UsedCount,
		"valid_from":     utc(coupon.ValidFrom),
		"valid_until":    utc(coupon.ValidUntil),
		"active":         coupon.Active,
		"applies_to":     coupon.AppliesTo,
		"created_at":     now,
		"updated_at":     now,
	}

	q, args, err := s.stmpBuilder().
		Insert(couponsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, coupons.ErrCodeTaken
		}
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetCoupon(ctx, coupons.GetCriteria{ID: &id})
}

func couponCond(criteria coupons.GetCriteria) sq.Eq {
	cond := sq.Eq{}
	if criteria.ID != nil {
		cond["id"] = *criteria.ID
	}
	if criteria.Code != nil {
		cond["code"] = *criteria.Code
	}
	return cond
}

func (s *storageImpl) GetCoupon(ctx context.Context, criteria coupons.GetCriteria) (*coupons.Coupon, error) {
	q, args, err := s.stmpBuilder().
		Select(couponRowFields).
		From(couponsTable).
		Where(couponCond(criteria)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row couponRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}
	return row.ToModel(), nil
}

func (s *storageImpl) UpdateCoupon(ctx context.Context, criteria coupons.GetCriteria, params coupons.UpdateParams) (*coupons.Coupon, error) {
	query := s.stmpBuilder().
		Update(couponsTable).
		Set("updated_at", s.now()).
		Where(couponCond(criteria))

	if params.Active != nil {
		query = query.Set("active", *params.Active)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}
	return s.GetCoupon(ctx, criteria)
}

func (s *storageImpl) ListCoupons(ctx context.Context, criteria coupons.ListCriteria) ([]*coupons.Coupon, error) {
	query := s.stmpBuilder().
		Select(couponRowFields).
		From(couponsTable).
		OrderBy("created_at DESC")

	if criteria.Active != nil {
		query = query.Where(sq.Eq{"active": *criteria.Active})
	}
	if criteria.Search != nil && *criteria.Search != "" {
		// codes are stored upper-cased
		query = query.Where(sq.Like{"code": "%" + strings.ToUpper(*criteria.Search) + "%"})
	}
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []couponRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*coupons.Coupon, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}
