package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/orders"
)

const ordersTable = "orders"

var orderRowFields = fields(orderRow{})

type orderRow struct {
	ID                string          `db:"id"`
	OrderNumber       string          `db:"order_number"`
	UserID            string          `db:"user_id"`
	ServiceID         string          `db:"service_id"`
	SupplierServiceID string          `db:"supplier_service_id"`
	SocialUsername    string          `db:"social_username"`
	PostURL           *string         `db:"post_url"`
	PostID            *string         `db:"post_id"`
	ServiceType       string          `db:"service_type"`
	Quality           string          `db:"quality"`
	Quantity          int             `db:"quantity"`
	Price             decimal.Decimal `db:"price"`
	OriginalPrice     decimal.Decimal `db:"original_price"`
	SupplierPrice     decimal.Decimal `db:"supplier_price"`
	DeliverySpeed     string          `db:"delivery_speed"`
	Status            string          `db:"status"`
	PaymentStatus     string          `db:"payment_status"`
	SupplierOrderID   *string         `db:"supplier_order_id"`
	StartCount        int             `db:"start_count"`
	Remains           int             `db:"remains"`
	RefillRequested   bool            `db:"refill_requested"`
	RefillID          *string         `db:"refill_id"`
	RefillStatus      *string         `db:"refill_status"`
	DeliveryStartedAt *time.Time      `db:"delivery_started_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r orderRow) ToModel() *orders.Order {
	o := &orders.Order{
		ID:                r.ID,
		OrderNumber:       r.OrderNumber,
		UserID:            r.UserID,
		ServiceID:         r.ServiceID,
		SupplierServiceID: r.SupplierServiceID,
		SocialUsername:    r.SocialUsername,
		PostURL:           r.PostURL,
		PostID:            r.PostID,
		ServiceType:       catalog.ServiceType(r.ServiceType),
		Quality:           catalog.Quality(r.Quality),
		Quantity:          r.Quantity,
		Price:             r.Price,
		OriginalPrice:     r.OriginalPrice,
		SupplierPrice:     r.SupplierPrice,
		DeliverySpeed:     orders.DeliverySpeed(r.DeliverySpeed),
		Status:            orders.Status(r.Status),
		PaymentStatus:     orders.PaymentStatus(r.PaymentStatus),
		SupplierOrderID:   r.SupplierOrderID,
		StartCount:        r.StartCount,
		Remains:           r.Remains,
		RefillRequested:   r.RefillRequested,
		RefillID:          r.RefillID,
		DeliveryStartedAt: r.DeliveryStartedAt,
		CompletedAt:       r.CompletedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.RefillStatus != nil {
		status := orders.RefillStatus(*r.RefillStatus)
		o.RefillStatus = &status
	}
	return o
}

// CreateOrder returns orders.ErrOrderNumberTaken when the order number is already used.
func (s *storageImpl) CreateOrder(ctx context.Context, order orders.Order) (*orders.Order, error) {
	id := newID()
	now := s.now()
	params := map[string]interface{}{
		"id":                  id,
		"order_number":        order.OrderNumber,
		"user_id":             order.UserID,
		"service_id":          order.ServiceID,
		"supplier_service_id": order.SupplierServiceID,
		"social_username":     order.SocialUsername,
		"post_url":            order.PostURL,
		"post_id":             order.PostID,
		"service_type":        string(order.ServiceType),
		"quality":             string(order.Quality),
		"quantity":            order.Quantity,
		"price":               order.Price,
		"original_price":      order.OriginalPrice,
		"supplier_price":      order.SupplierPrice,
		"delivery_speed":      string(order.DeliverySpeed),
		"status":              string(order.Status),
		"payment_status":      string(order.PaymentStatus),
		"created_at":          now,
		"updated_at":          now,
	}

	q, args, err := s.stmpBuilder().
		Insert(ordersTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, orders.ErrOrderNumberTaken
		}
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetOrder(ctx, orders.GetCriteria{ID: &id})
}

func (s *storageImpl) GetOrder(ctx context.Context, criteria orders.GetCriteria) (*orders.Order, error) {
	query := s.stmpBuilder().
		Select(orderRowFields).
		From(ordersTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.OrderNumber != nil {
		query = query.Where(sq.Eq{"order_number": *criteria.OrderNumber})
	}
	if criteria.SupplierOrderID != nil {
		query = query.Where(sq.Eq{"supplier_order_id": *criteria.SupplierOrderID})
	}
	if len(criteria.ExcludeStatuses) > 0 {
		query = query.Where(sq.NotEq{"status": statusStrings(criteria.ExcludeStatuses)})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row orderRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) UpdateOrder(ctx context.Context, criteria orders.GetCriteria, params orders.UpdateParams) (*orders.Order, error) {
	query := s.stmpBuilder().
		Update(ordersTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.OrderNumber != nil {
		query = query.Where(sq.Eq{"order_number": *criteria.OrderNumber})
	}
	if criteria.SupplierOrderID != nil {
		query = query.Where(sq.Eq{"supplier_order_id": *criteria.SupplierOrderID})
	}
	if len(criteria.ExcludeStatuses) > 0 {
		query = query.Where(sq.NotEq{"status": statusStrings(criteria.ExcludeStatuses)})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.PaymentStatus != nil {
		query = query.Set("payment_status", string(*params.PaymentStatus))
	}
	if params.SupplierOrderID != nil {
		query = query.Set("supplier_order_id", *params.SupplierOrderID)
	}
	if params.StartCount != nil {
		query = query.Set("start_count", *params.StartCount)
	}
	if params.Remains != nil {
		query = query.Set("remains", *params.Remains)
	}
	if params.RefillRequested != nil {
		query = query.Set("refill_requested", *params.RefillRequested)
	}
	if params.RefillID != nil {
		query = query.Set("refill_id", *params.RefillID)
	}
	if params.RefillStatus != nil {
		query = query.Set("refill_status", string(*params.RefillStatus))
	}
	if params.DeliveryStartedAt != nil {
		query = query.Set("delivery_started_at", utc(*params.DeliveryStartedAt))
	}
	if params.CompletedAt != nil {
		query = query.Set("completed_at", utc(*params.CompletedAt))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	// the row may now match the exclusion, read it back by key only
	criteria.ExcludeStatuses = nil
	return s.GetOrder(ctx, criteria)
}

func statusStrings(statuses []orders.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}

func orderFilter(query sq.SelectBuilder, criteria orders.ListCriteria) sq.SelectBuilder {
	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if len(criteria.Statuses) > 0 {
		query = query.Where(sq.Eq{"status": statusStrings(criteria.Statuses)})
	}
	if criteria.PaymentStatus != nil {
		query = query.Where(sq.Eq{"payment_status": string(*criteria.PaymentStatus)})
	}
	if criteria.ServiceType != nil {
		query = query.Where(sq.Eq{"service_type": string(*criteria.ServiceType)})
	}
	if len(criteria.RefillStatuses) > 0 {
		statuses := make([]string, 0, len(criteria.RefillStatuses))
		for _, st := range criteria.RefillStatuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"refill_status": statuses})
	}
	if criteria.WithSupplierOrder {
		query = query.Where(sq.NotEq{"supplier_order_id": nil})
	}
	if criteria.CreatedFrom != nil {
		query = query.Where(sq.GtOrEq{"created_at": utc(*criteria.CreatedFrom)})
	}
	if criteria.CreatedTo != nil {
		query = query.Where(sq.Lt{"created_at": utc(*criteria.CreatedTo)})
	}
	return query
}

func (s *storageImpl) ListOrders(ctx context.Context, criteria orders.ListCriteria) ([]*orders.Order, error) {
	query := s.stmpBuilder().
		Select(orderRowFields).
		From(ordersTable).
		OrderBy("created_at DESC")
	query = orderFilter(query, criteria)
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*orders.Order, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}

// LastOrderNumber sorts by length first so ORD-202403-10000 follows ORD-202403-9999.
func (s *storageImpl) LastOrderNumber(ctx context.Context, prefix string) (string, error) {
	q, args, err := s.stmpBuilder().
		Select("order_number").
		From(ordersTable).
		Where(sq.Like{"order_number": prefix + "%"}).
		OrderBy("LENGTH(order_number) DESC", "order_number DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build sql query: %w", err)
	}

	var number string
	if err := s.db.GetContext(ctx, &number, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("db.GetContext: %w", err)
	}
	return number, nil
}

type statsRow struct {
	Status      string  `db:"status"`
	ServiceType string  `db:"service_type"`
	Count       int     `db:"count"`
	Revenue     float64 `db:"revenue"`
}

func (s *storageImpl) OrderStats(ctx context.Context, criteria orders.ListCriteria) ([]orders.StatsRow, error) {
	query := s.stmpBuilder().
		Select("status", "service_type", "COUNT(*) AS count", "COALESCE(SUM(CAST(price AS REAL)), 0) AS revenue").
		From(ordersTable).
		GroupBy("status", "service_type")
	query = orderFilter(query, criteria)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []statsRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]orders.StatsRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, orders.StatsRow{
			Status:      orders.Status(row.Status),
			ServiceType: catalog.ServiceType(row.ServiceType),
			Count:       row.Count,
			Revenue:     decimal.NewFromFloat(row.Revenue).Round(2),
		})
	}
	return result, nil
}
