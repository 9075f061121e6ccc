package users

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Status is the single source of truth for account state.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusDeleted Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusDeleted:
		return true
	}
	return false
}

// Blockstate is the numeric account state exposed to API consumers.
func Blockstate(s Status) int {
	switch s {
	case StatusBlocked:
		return 1
	case StatusDeleted:
		return 2
	default:
		return 0
	}
}

func StatusFromBlockstate(code int) (Status, error) {
	switch code {
	case 0:
		return StatusActive, nil
	case 1:
		return StatusBlocked, nil
	case 2:
		return StatusDeleted, nil
	}
	return "", fmt.Errorf("unknown blockstate %d", code)
}

type User struct {
	ID         string
	Email      string
	Username   string
	Role       Role
	Status     Status
	IsGuest    bool
	Balance    decimal.Decimal
	TotalSpent decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

type GetCriteria struct {
	ID    *string
	Email *string
}

type ListCriteria struct {
	Role   *Role
	Status *Status
	Limit  int
	Offset int
}

type UpdateParams struct {
	Username   *string
	Role       *Role
	Status     *Status
	IsGuest    *bool
	Balance    *decimal.Decimal
	TotalSpent *decimal.Decimal
}

type CreateUserRequest struct {
	Email    string
	Username string
	Role     Role
}
