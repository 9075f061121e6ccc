package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"engagement-shop/internal/stories/users"
)

const usersTable = "users"

var userRowFields = fields(userRow{})

type userRow struct {
	ID         string          `db:"id"`
	Email      string          `db:"email"`
	Username   string          `db:"username"`
	Role       string          `db:"role"`
	Status     string          `db:"status"`
	IsGuest    bool            `db:"is_guest"`
	Balance    decimal.Decimal `db:"balance"`
	TotalSpent decimal.Decimal `db:"total_spent"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (u userRow) ToModel() *users.User {
	return &users.User{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       users.Role(u.Role),
		Status:     users.Status(u.Status),
		IsGuest:    u.IsGuest,
		Balance:    u.Balance,
		TotalSpent: u.TotalSpent,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (s *storageImpl) CreateUser(ctx context.Context, user users.User) (*users.User, error) {
	id := newID()
	now := s.now()
	params := map[string]interface{}{
		"id":          id,
		"email":       user.Email,
		"username":    user.Username,
		"role":        string(user.Role),
		"status":      string(user.Status),
		"is_guest":    user.IsGuest,
		"balance":     user.Balance,
		"total_spent": user.TotalSpent,
		"created_at":  now,
		"updated_at":  now,
	}

	q, args, err := s.stmpBuilder().
		Insert(usersTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetUser(ctx, users.GetCriteria{ID: &id})
}

func (s *storageImpl) GetUser(ctx context.Context, criteria users.GetCriteria) (*users.User, error) {
	query := s.stmpBuilder().
		Select(userRowFields).
		From(usersTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Email != nil {
		query = query.Where(sq.Eq{"email": *criteria.Email})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var u userRow
	if err := s.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return u.ToModel(), nil
}

func (s *storageImpl) UpdateUser(ctx context.Context, criteria users.GetCriteria, params users.UpdateParams) (*users.User, error) {
	query := s.stmpBuilder().
		Update(usersTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Email != nil {
		query = query.Where(sq.Eq{"email": *criteria.Email})
	}

	if params.Username != nil {
		query = query.Set("username", *params.Username)
	}
	if params.Role != nil {
		query = query.Set("role", string(*params.Role))
	}
	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.IsGuest != nil {
		query = query.Set("is_guest", *params.IsGuest)
	}
	if params.Balance != nil {
		query = query.Set("balance", *params.Balance)
	}
	if params.TotalSpent != nil {
		query = query.Set("total_spent", *params.TotalSpent)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetUser(ctx, criteria)
}

func (s *storageImpl) ListUsers(ctx context.Context, criteria users.ListCriteria) ([]*users.User, error) {
	query := s.stmpBuilder().
		Select(userRowFields).
		From(usersTable).
		OrderBy("created_at DESC")

	if criteria.Role != nil {
		query = query.Where(sq.Eq{"role": string(*criteria.Role)})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	query = pageQuery(query, criteria.Limit, criteria.Offset)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*users.User, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.ToModel())
	}
	return result, nil
}
