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
)

const servicesTable = "services"

var serviceRowFields = fields(serviceRow{})

type serviceRow struct {
	ID                string          `db:"id"`
	Name              string          `db:"name"`
	Type              string          `db:"type"`
	Category          string          `db:"category"`
	Quality           string          `db:"quality"`
	SupplierServiceID string          `db:"supplier_service_id"`
	Quantity          int             `db:"quantity"`
	MinQuantity       int             `db:"min_quantity"`
	MaxQuantity       int             `db:"max_quantity"`
	Price             decimal.Decimal `db:"price"`
	OriginalPrice     decimal.Decimal `db:"original_price"`
	SupplierPrice     decimal.Decimal `db:"supplier_price"`
	Discount          decimal.Decimal `db:"discount"`
	FinalPrice        decimal.Decimal `db:"final_price"`
	Savings           decimal.Decimal `db:"savings"`
	Active            bool            `db:"active"`
	Popular           bool            `db:"popular"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r serviceRow) ToModel() *catalog.Service {
	return &catalog.Service{
		ID:                r.ID,
		Name:              r.Name,
		Type:              catalog.ServiceType(r.Type),
		Category:          catalog.Category(r.Category),
		Quality:           catalog.Quality(r.Quality),
		SupplierServiceID: r.SupplierServiceID,
		Quantity:          r.Quantity,
		MinQuantity:       r.MinQuantity,
		MaxQuantity:       r.MaxQuantity,
		Price:             r.Price,
		OriginalPrice:     r.OriginalPrice,
		SupplierPrice:     r.SupplierPrice,
		Discount:          r.Discount,
		FinalPrice:        r.FinalPrice,
		Savings:           r.Savings,
		Active:            r.Active,
		Popular:           r.Popular,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (s *storageImpl) CreateService(ctx context.Context, service catalog.Service) (*catalog.Service, error) {
	id := newID()
	now := s.now()
	params := map[string]interface{}{
		"id":                  id,
		"name":                service.Name,
		"type":                string(service.Type),
		"category":            string(service.Category),
		"quality":             string(service.Quality),
		"supplier_service_id": service.SupplierServiceID,
		"quantity":            service.Quantity,
		"min_quantity":        service.MinQuantity,
		"max_quantity":        service.MaxQuantity,
		"price":               service.Price,
		"original_price":      service.OriginalPrice,
		"supplier_price":      service.SupplierPrice,
		"discount":            service.Discount,
		"final_price":         service.FinalPrice,
		"savings":             service.Savings,
		"active":              service.Active,
		"popular":             service.Popular,
		"created_at":          now,
		"updated_at":          now,
	}

	q, args, err := s.stmpBuilder().
		Insert(servicesTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetService(ctx, catalog.GetCriteria{ID: &id})
}

func serviceFilter(query sq.SelectBuilder, criteria catalog.GetCriteria) sq.SelectBuilder {
	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Type != nil {
		query = query.Where(sq.Eq{"type": string(*criteria.Type)})
	}
	if criteria.Quality != nil {
		query = query.Where(sq.Eq{"quality": string(*criteria.Quality)})
	}
	if criteria.Quantity != nil {
		query = query.Where(sq.Eq{"quantity": *criteria.Quantity})
	}
	if criteria.Active != nil {
		query = query.Where(sq.Eq{"active": *criteria.Active})
	}
	return query
}

func (s *storageImpl) GetService(ctx context.Context, criteria catalog.GetCriteria) (*catalog.Service, error) {
	query := s.stmpBuilder().
		Select(serviceRowFields).
		From(servicesTable).
		OrderBy("created_at").
		Limit(1)
	query = serviceFilter(query, criteria)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row serviceRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) UpdateService(ctx context.Context, criteria catalog.GetCriteria, params catalog.UpdateParams) (*catalog.Service, error) {
	if criteria.ID == nil {
		return nil, fmt.Errorf("update service: id is required")
	}

	query := s.stmpBuilder().
		Update(servicesTable).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": *criteria.ID})

	if params.Name != nil {
		query = query.Set("name", *params.Name)
	}
	if params.Price != nil {
		query = query.Set("price", *params.Price)
	}
	if params.OriginalPrice != nil {
		query = query.Set("original_price", *params.OriginalPrice)
	}
	if params.SupplierPrice != nil {
		query = query.Set("supplier_price", *params.SupplierPrice)
	}
	if params.Discount != nil {
		query = query.Set("discount", *params.Discount)
	}
	if params.FinalPrice != nil {
		query = query.Set("final_price", *params.FinalPrice)
	}
	if params.Savings != nil {
		query = query.Set("savings", *params.Savings)
	}
	if params.MinQuantity != nil {
		query = query.Set("min_quantity", *params.MinQuantity)
	}
	if params.MaxQuantity != nil {
		query = query.Set("max_quantity", *params.MaxQuantity)
	}
	if params.Active != nil {
		query = query.Set("active", *params.Active)
	}
	if params.Popular != nil {
		query = query.Set("popular", *params.Popular)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetService(ctx, catalog.GetCriteria{ID: criteria.ID})
}

func (s *storageImpl) ListServices(ctx context.Context, criteria catalog.ListCriteria) ([]*catalog.Service, error) {
	query := s.stmpBuilder().
		Select(serviceRowFields).
		From(servicesTable).
		OrderBy("category", "type", "quality", "quantity")

	if criteria.Type != nil {
		query = query.Where(sq.Eq{"type": string(*criteria.Type)})
	}
	if criteria.Category != nil {
		query = query.Where(sq.Eq{"category": string(*criteria.Category)})
	}
	if criteria.Quality != nil {
		query = query.Where(sq.Eq{"quality": string(*criteria.Quality)})
	}
	if criteria.Active != nil {
		query = query.Where(sq.Eq{"active": *criteria.Active})
	}
	if criteria.Popular != nil {
		query = query.Where(sq.Eq{"popular": *criteria.Popular})
	}
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []serviceRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*catalog.Service, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}
