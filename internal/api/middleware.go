package api

import (
	"engagement-shop/internal/apperr"
	"engagement-shop/internal/stories/users"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	userIDHeader = "X-User-ID"
	userKey      = "user"
)

// identity loads the caller named by the auth proxy and refuses blocked or deleted accounts.
func (s *Server) identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(userIDHeader)
		// browsers cannot set headers on a websocket handshake
		if id == "" && websocket.IsWebSocketUpgrade(c.Request()) {
			id = c.QueryParam("userId")
		}

		user, err := s.Users.Authenticate(c.Request().Context(), id)
		if err != nil {
			return err
		}
		c.Set(userKey, user)
		return next(c)
	}
}

// RequireRoles must run after the identity middleware.
func RequireRoles(roles ...users.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get(userKey).(*users.User)
			if !ok {
				return apperr.Unauthorized("not authorized to access this route")
			}
			if !lo.Contains(roles, user.Role) {
				return apperr.Forbidden("user role %s is not authorized to access this route", user.Role)
			}
			return next(c)
		}
	}
}

func currentUser(c echo.Context) *users.User {
	user, _ := c.Get(userKey).(*users.User)
	return user
}
