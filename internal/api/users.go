package api

import (
	"net/http"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/stories/users"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// userDTO exposes the account state as the numeric blockstate clients expect.
type userDTO struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	Username   string          `json:"username"`
	Role       users.Role      `json:"role"`
	Blockstate int             `json:"blockstate"`
	IsGuest    bool            `json:"isGuest"`
	Balance    decimal.Decimal `json:"balance"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func toUserDTO(u *users.User) userDTO {
	return userDTO{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.Role,
		Blockstate: users.Blockstate(u.Status),
		IsGuest:    u.IsGuest,
		Balance:    u.Balance,
		TotalSpent: u.TotalSpent,
		CreatedAt:  u.CreatedAt,
	}
}

func (s *Server) profile(c echo.Context) error {
	return respond(c, http.StatusOK, toUserDTO(currentUser(c)))
}

func (s *Server) listUsers(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	criteria := users.ListCriteria{Limit: p.Limit, Offset: p.Offset}
	if v := c.QueryParam("role"); v != "" {
		criteria.Role = lo.ToPtr(users.Role(v))
	}

	if v := c.QueryParam("blockstate"); v != "" {
		var code int
		if err := echo.QueryParamsBinder(c).MustInt("blockstate", &code).BindError(); err != nil {
			return apperr.Validation("invalid blockstate")
		}
		status, err := users.StatusFromBlockstate(code)
		if err != nil {
			return apperr.Validation("%s", err.Error())
		}
		criteria.Status = &status
	}

	list, err := s.Users.ListUsers(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lo.Map(list, func(u *users.User, _ int) userDTO { return toUserDTO(u) }))
}

func (s *Server) getUser(c echo.Context) error {
	user, err := s.Users.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toUserDTO(user))
}

type createUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := s.Users.CreateUser(c.Request().Context(), users.CreateUserRequest{
		Email:    req.Email,
		Username: req.Username,
		Role:     users.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, toUserDTO(user))
}

type statusRequest struct {
	Blockstate *int `json:"blockstate"`
}

func (s *Server) setUserStatus(c echo.Context) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Blockstate == nil {
		return apperr.Validation("blockstate is required")
	}
	status, err := users.StatusFromBlockstate(*req.Blockstate)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}

	user, err := s.Users.SetStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toUserDTO(user))
}
