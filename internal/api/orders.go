package api

import (
	"net/http"

	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/orders"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

type createOrderRequest struct {
	SocialUsername string `json:"socialUsername"`
	ServiceID      string `json:"serviceId"`
	ServiceType    string `json:"serviceType"`
	Quality        string `json:"quality"`
	Quantity       int    `json:"quantity"`
	PostURL        string `json:"postUrl"`
	DeliverySpeed  string `json:"deliverySpeed"`
}

func (s *Server) createOrder(c echo.Context) error {
	var req createOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	selector := catalog.Selector{
		Type:     catalog.ServiceType(req.ServiceType),
		Quality:  catalog.Quality(req.Quality),
		Quantity: req.Quantity,
	}
	if req.ServiceID != "" {
		selector.ID = &req.ServiceID
	}

	order, err := s.Orders.CreateOrder(c.Request().Context(), orders.CreateOrderRequest{
		UserID:         currentUser(c).ID,
		TargetUsername: req.SocialUsername,
		Service:        selector,
		Quantity:       req.Quantity,
		PostURL:        req.PostURL,
		DeliverySpeed:  orders.DeliverySpeed(req.DeliverySpeed),
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, order)
}

func (s *Server) listUserOrders(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	criteria := orders.ListCriteria{
		UserID: &currentUser(c).ID,
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v := c.QueryParam("status"); v != "" {
		criteria.Statuses = []orders.Status{orders.Status(v)}
	}

	list, err := s.Orders.ListOrders(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) listOrders(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	criteria := orders.ListCriteria{Limit: p.Limit, Offset: p.Offset}
	if v := c.QueryParam("status"); v != "" {
		criteria.Statuses = []orders.Status{orders.Status(v)}
	}
	if v := c.QueryParam("paymentStatus"); v != "" {
		criteria.PaymentStatus = lo.ToPtr(orders.PaymentStatus(v))
	}
	if v := c.QueryParam("serviceType"); v != "" {
		criteria.ServiceType = lo.ToPtr(catalog.ServiceType(v))
	}
	if v := c.QueryParam("userId"); v != "" {
		criteria.UserID = &v
	}

	list, err := s.Orders.ListOrders(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

// ownedOrder loads the order named in the path if the caller may see it.
func (s *Server) ownedOrder(c echo.Context) (*orders.Order, error) {
	user := currentUser(c)
	return s.Orders.GetOrderFor(c.Request().Context(), c.Param("id"), user.ID, user.IsAdmin())
}

func (s *Server) getOrder(c echo.Context) error {
	order, err := s.ownedOrder(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) checkOrderStatus(c echo.Context) error {
	order, err := s.ownedOrder(c)
	if err != nil {
		return err
	}
	order, err = s.Orders.PollStatus(c.Request().Context(), order.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) requestRefill(c echo.Context) error {
	order, err := s.ownedOrder(c)
	if err != nil {
		return err
	}
	order, err = s.Orders.RequestRefill(c.Request().Context(), order.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) refillStatus(c echo.Context) error {
	order, err := s.ownedOrder(c)
	if err != nil {
		return err
	}
	order, err = s.Orders.PollRefillStatus(c.Request().Context(), order.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) processOrder(c echo.Context) error {
	order, err := s.Orders.DispatchToSupplier(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) refundOrder(c echo.Context) error {
	outcome, err := s.Payments.RefundOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, outcome)
}

func (s *Server) cancelOrder(c echo.Context) error {
	order, err := s.Orders.CancelAtSupplier(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order)
}

func (s *Server) orderStats(c echo.Context) error {
	stats, err := s.Orders.Stats(c.Request().Context(), orders.Period(c.QueryParam("period")))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, stats)
}
