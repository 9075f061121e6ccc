package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"engagement-shop/internal/apperr"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Service provides business logic for user operations
type Service struct {
	storage Storage
	logger  *slog.Logger
}

// NewService creates a new user service
func NewService(storage Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.storage.GetUser(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return user, nil
}

// Authenticate resolves the caller identity forwarded by the auth proxy.
func (s *Service) Authenticate(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, apperr.Unauthorized("not authorized to access this route")
	}

	user, err := s.storage.GetUser(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, apperr.Unauthorized("not authorized to access this route")
	}
	if !user.IsActive() {
		s.logger.Warn("Rejected request from inactive user", "user_id", id, "status", user.Status)
		return nil, apperr.Forbidden("account is %s", user.Status)
	}
	return user, nil
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, apperr.Validation("username is required")
	}
	if req.Role == "" {
		req.Role = RoleUser
	}
	if !req.Role.Valid() {
		return nil, apperr.Validation("invalid role %q", req.Role)
	}

	existing, err := s.storage.GetUser(ctx, GetCriteria{Email: &email})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("user with email %s already exists", email)
	}

	created, err := s.storage.CreateUser(ctx, User{
		Email:    email,
		Username: strings.TrimSpace(req.Username),
		Role:     req.Role,
		Status:   StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User created", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// FindOrCreateGuest returns the account registered under email, creating a guest one if needed.
func (s *Service) FindOrCreateGuest(ctx context.Context, email, username string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.storage.GetUser(ctx, GetCriteria{Email: &email})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if existing != nil {
		if !existing.IsActive() {
			return nil, apperr.Forbidden("account is %s", existing.Status)
		}
		return existing, nil
	}

	created, err := s.storage.CreateUser(ctx, User{
		Email:    email,
		Username: username,
		Role:     RoleUser,
		Status:   StatusActive,
		IsGuest:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}

	s.logger.Info("Guest user created", "user_id", created.ID)
	return created, nil
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*User, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status)
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}

	updated, err := s.storage.UpdateUser(ctx, GetCriteria{ID: &id}, UpdateParams{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("update user status: %w", err)
	}

	s.logger.Info("User status changed", "user_id", id, "status", status)
	return updated, nil
}

// AddSpent increases the lifetime spend; negative amounts are used for refunds.
func (s *Service) AddSpent(ctx context.Context, id string, amount decimal.Decimal) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	total := user.TotalSpent.Add(amount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	if _, err := s.storage.UpdateUser(ctx, GetCriteria{ID: &id}, UpdateParams{TotalSpent: &total}); err != nil {
		return fmt.Errorf("update total spent: %w", err)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, criteria ListCriteria) ([]*User, error) {
	list, err := s.storage.ListUsers(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// ListActiveAdmins is used for admin-targeted notifications.
func (s *Service) ListActiveAdmins(ctx context.Context) ([]*User, error) {
	return s.ListUsers(ctx, ListCriteria{Role: lo.ToPtr(RoleAdmin), Status: lo.ToPtr(StatusActive)})
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.Validation("invalid email %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}
