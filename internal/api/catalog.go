package api

import (
	"net/http"

	"engagement-shop/internal/stories/catalog"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

func (s *Server) listServices(c echo.Context) error {
	p, err := pageParams(c)
	if err != nil {
		return err
	}

	criteria := catalog.ListCriteria{
		Active: lo.ToPtr(true),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v := c.QueryParam("type"); v != "" {
		criteria.Type = lo.ToPtr(catalog.ServiceType(v))
	}
	if v := c.QueryParam("category"); v != "" {
		criteria.Category = lo.ToPtr(catalog.Category(v))
	}
	if v := c.QueryParam("quality"); v != "" {
		criteria.Quality = lo.ToPtr(catalog.Quality(v))
	}
	if c.QueryParam("popular") == "true" {
		criteria.Popular = lo.ToPtr(true)
	}

	list, err := s.Catalog.ListServices(c.Request().Context(), criteria)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, list)
}

func (s *Server) getService(c echo.Context) error {
	service, err := s.Catalog.GetService(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, service)
}

func (s *Server) createService(c echo.Context) error {
	var req catalog.Service
	if err := bind(c, &req); err != nil {
		return err
	}
	created, err := s.Catalog.CreateService(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, created)
}

type updateServiceRequest struct {
	Name          *string          `json:"name"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	SupplierPrice *decimal.Decimal `json:"supplierPrice"`
	Discount      *decimal.Decimal `json:"discount"`
	MinQuantity   *int             `json:"minQuantity"`
	MaxQuantity   *int             `json:"maxQuantity"`
	Active        *bool            `json:"active"`
	Popular       *bool            `json:"popular"`
}

func (s *Server) updateService(c echo.Context) error {
	var req updateServiceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	updated, err := s.Catalog.UpdateService(c.Request().Context(), c.Param("id"), catalog.UpdateParams{
		Name:          req.Name,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		SupplierPrice: req.SupplierPrice,
		Discount:      req.Discount,
		MinQuantity:   req.MinQuantity,
		MaxQuantity:   req.MaxQuantity,
		Active:        req.Active,
		Popular:       req.Popular,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated)
}

func (s *Server) deactivateService(c echo.Context) error {
	service, err := s.Catalog.DeactivateService(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, service)
}
