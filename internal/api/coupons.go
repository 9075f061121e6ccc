package api

import (
	"net/http"

	"engagement-shop/internal/stories/coupons"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type validateCouponRequest struct {
	Code        string          `json:"code"`
	CartValue   decimal.Decimal `json:"cartValue"`
	ServiceType string          `json:"serviceType"`
}

func (s *Server) validateCoupon(c echo.Context) error {
	var req validateCouponRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := s.Coupons.Validate(c.Request().Context(), req.Code, req.CartValue, req.ServiceType)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (s *Server) createCoupon(c echo.Context) error {
	var req coupons.Coupon
	if err := bind(c, &req); err != nil {
		return err
	}
	created, err := s.Coupons.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, created)
}

func (s *Server) listCoupons(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}
	criteria := coupons.ListCriteria{Limit: p.Limit, Offset: p.Offset}
	switch c.QueryParam("active") {
	case "true":
		criteria.Active = lo.ToPtr(true)
	case "false":
		criteria.Active = lo.ToPtr(false)
	}
	if v := c.QueryParam("search"); v != "" {
		criteria.Search = &v
	}

	list, err := s.Coupons.List(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) getCoupon(c echo.Context) error {
	coupon, err := s.Coupons.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, coupon)
}

func (s *Server) toggleCoupon(c echo.Context) error {
	coupon, err := s.Coupons.ToggleActive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, coupon)
}
