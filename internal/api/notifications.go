package api

import (
	"net/http"

	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/users"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

func (s *Server) serveWS(c echo.Context) error {
	topic := notifications.Topic(currentUser(c).ID)
	return s.Realtime.Serve(c.Response(), c.Request(), topic)
}

type notificationList struct {
	Notifications []*notifications.Notification `json:"notifications"`
	UnreadCount   int                           `json:"unreadCount"`
}

func (s *Server) listNotifications(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := currentUser(c).ID

	list, err := s.Notifications.List(ctx, userID, c.QueryParam("unreadOnly") == "true", p.Limit, p.Offset)
	if err != nil {
		return err
	}
	unread, err := s.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, notificationList{Notifications: list, UnreadCount: unread})
}

func (s *Server) unreadCount(c echo.Context) error {
	count, err := s.Notifications.UnreadCount(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, notifications.UnreadPayload{UnreadCount: count})
}

func (s *Server) markRead(c echo.Context) error {
	n, err := s.Notifications.MarkRead(c.Request().Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, n)
}

func (s *Server) markAllRead(c echo.Context) error {
	count, err := s.Notifications.MarkAllRead(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]int64{"updated": count})
}

func (s *Server) deleteNotification(c echo.Context) error {
	if err := s.Notifications.Delete(c.Request().Context(), currentUser(c).ID, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil)
}

func (s *Server) clearNotifications(c echo.Context) error {
	count, err := s.Notifications.ClearAll(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]int64{"deleted": count})
}

type broadcastRequest struct {
	Type              string   `json:"type"`
	Title             string   `json:"title"`
	Message           string   `json:"message"`
	BypassPreferences bool     `json:"bypassPreferences"`
	Roles             []string `json:"roles"`
}

func (s *Server) broadcast(c echo.Context) error {
	var req broadcastRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := s.Notifications.Broadcast(c.Request().Context(), notifications.Type(req.Type), req.Title, req.Message, notifications.BroadcastOptions{
		BypassPreferences: req.BypassPreferences,
		Roles:             lo.Map(req.Roles, func(r string, _ int) users.Role { return users.Role(r) }),
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (s *Server) getPreferences(c echo.Context) error {
	pref, err := s.Notifications.GetPreferences(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pref)
}

type preferencesRequest struct {
	OrderUpdates *bool                     `json:"orderUpdates"`
	Payments     *bool                     `json:"payments"`
	Support      *bool                     `json:"support"`
	Promotions   *bool                     `json:"promotions"`
	System       *bool                     `json:"system"`
	InApp        *bool                     `json:"inApp"`
	Email        *bool                     `json:"email"`
	Push         *bool                     `json:"push"`
	Frequency    *string                   `json:"frequency"`
	QuietHours   *notifications.QuietHours `json:"quietHours"`
}

func (s *Server) updatePreferences(c echo.Context) error {
	var req preferencesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	update := notifications.PreferenceUpdate{
		OrderUpdates: req.OrderUpdates,
		Payments:     req.Payments,
		Support:      req.Support,
		Promotions:   req.Promotions,
		System:       req.System,
		InApp:        req.InApp,
		Email:        req.Email,
		Push:         req.Push,
		QuietHours:   req.QuietHours,
	}
	if req.Frequency != nil {
		update.Frequency = lo.ToPtr(notifications.Frequency(*req.Frequency))
	}

	pref, err := s.Notifications.UpdatePreferences(c.Request().Context(), currentUser(c).ID, update)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pref)
}

func (s *Server) resetPreferences(c echo.Context) error {
	pref, err := s.Notifications.ResetPreferences(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pref)
}
