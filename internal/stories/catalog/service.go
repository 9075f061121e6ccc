package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"engagement-shop/internal/apperr"

	"github.com/samber/lo"
)

// Catalog provides business logic for the purchasable services list
type Catalog struct {
	storage Storage
	logger  *slog.Logger
}

// NewCatalog creates a new catalog service
func NewCatalog(storage Storage, logger *slog.Logger) *Catalog {
	return &Catalog{
		storage: storage,
		logger:  logger,
	}
}

func (c *Catalog) CreateService(ctx context.Context, service Service) (*Service, error) {
	// fixed-size packages
	if service.MinQuantity == 0 && service.MaxQuantity == 0 {
		service.MinQuantity = service.Quantity
		service.MaxQuantity = service.Quantity
	}
	if err := validateService(service); err != nil {
		return nil, err
	}

	service.ApplyPricing()

	created, err := c.storage.CreateService(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	c.logger.Info("Service created",
		"service_id", created.ID,
		"type", created.Type,
		"quality", created.Quality,
		"quantity", created.Quantity,
		"price", created.Price.String(),
	)
	return created, nil
}

// UpdateService changes price, discount and flags. Pricing is recomputed from the merged values.
func (c *Catalog) UpdateService(ctx context.Context, id string, params UpdateParams) (*Service, error) {
	current, err := c.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := *current
	if params.Price != nil {
		merged.Price = *params.Price
	}
	if params.Discount != nil {
		merged.Discount = *params.Discount
	}
	if params.MinQuantity != nil {
		merged.MinQuantity = *params.MinQuantity
	}
	if params.MaxQuantity != nil {
		merged.MaxQuantity = *params.MaxQuantity
	}
	if params.Name != nil {
		merged.Name = *params.Name
	}
	if err := validateService(merged); err != nil {
		return nil, err
	}

	merged.ApplyPricing()
	params.Discount = &merged.Discount
	params.FinalPrice = &merged.FinalPrice
	params.Savings = &merged.Savings

	updated, err := c.storage.UpdateService(ctx, GetCriteria{ID: &id}, params)
	if err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	c.logger.Info("Service updated", "service_id", id, "final_price", updated.FinalPrice.String())
	return updated, nil
}

func (c *Catalog) DeactivateService(ctx context.Context, id string) (*Service, error) {
	if _, err := c.GetService(ctx, id); err != nil {
		return nil, err
	}

	updated, err := c.storage.UpdateService(ctx, GetCriteria{ID: &id}, UpdateParams{Active: lo.ToPtr(false)})
	if err != nil {
		return nil, fmt.Errorf("deactivate service: %w", err)
	}
	return updated, nil
}

func (c *Catalog) GetService(ctx context.Context, id string) (*Service, error) {
	service, err := c.storage.GetService(ctx, GetCriteria{ID: &id})
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if service == nil {
		return nil, apperr.NotFound("service %s not found", id)
	}
	return service, nil
}

func (c *Catalog) ListServices(ctx context.Context, criteria ListCriteria) ([]*Service, error) {
	list, err := c.storage.ListServices(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return list, nil
}

// ResolveService finds the service an order is placed against.
func (c *Catalog) ResolveService(ctx context.Context, selector Selector) (*Service, error) {
	var criteria GetCriteria
	if selector.ID != nil && *selector.ID != "" {
		criteria.ID = selector.ID
	} else {
		quality := selector.Quality
		if quality == "" {
			quality = QualityGeneral
		}
		criteria = GetCriteria{
			Type:     &selector.Type,
			Quality:  &quality,
			Quantity: &selector.Quantity,
			Active:   lo.ToPtr(true),
		}
	}

	service, err := c.storage.GetService(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("resolve service: %w", err)
	}
	if service == nil {
		return nil, apperr.NotFound("service not found")
	}
	if !service.Active {
		return nil, apperr.NotFound("service %s is not available", service.ID)
	}
	return service, nil
}

func validateService(s Service) error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !s.Type.Valid() {
		problems = append(problems, fmt.Sprintf("invalid type %q", s.Type))
	}
	if !s.Category.Valid() {
		problems = append(problems, fmt.Sprintf("invalid category %q", s.Category))
	}
	if !s.Quality.Valid() {
		problems = append(problems, fmt.Sprintf("invalid quality %q", s.Quality))
	}
	if s.SupplierServiceID == "" {
		problems = append(problems, "supplier service id is required")
	}
	if s.Quantity <= 0 {
		problems = append(problems, "quantity must be positive")
	}
	if s.MinQuantity <= 0 || s.MaxQuantity < s.MinQuantity {
		problems = append(problems, "quantity bounds are invalid")
	}
	if !s.Price.IsPositive() {
		problems = append(problems, "price must be positive")
	}
	if len(problems) > 0 {
		return apperr.Validation("%s", strings.Join(problems, "; "))
	}
	return nil
}
