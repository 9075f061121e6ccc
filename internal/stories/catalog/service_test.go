package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"engagement-shop/internal/apperr"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type fakeStorage struct {
	services []*Service
}

func (f *fakeStorage) CreateService(_ context.Context, service Service) (*Service, error) {
	service.ID = "svc" + service.Name
	f.services = append(f.services, &service)
	return &service, nil
}

func (f *fakeStorage) GetService(_ context.Context, criteria GetCriteria) (*Service, error) {
	for _, s := range f.services {
		if criteria.ID != nil && s.ID != *criteria.ID {
			continue
		}
		if criteria.Type != nil && s.Type != *criteria.Type {
			continue
		}
		if criteria.Quality != nil && s.Quality != *criteria.Quality {
			continue
		}
		if criteria.Quantity != nil && s.Quantity != *criteria.Quantity {
			continue
		}
		if criteria.Active != nil && s.Active != *criteria.Active {
			continue
		}
		return s, nil
	}
	return nil, nil
}

func (f *fakeStorage) UpdateService(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Service, error) {
	s, _ := f.GetService(ctx, criteria)
	if params.Price != nil {
		s.Price = *params.Price
	}
	if params.Discount != nil {
		s.Discount = *params.Discount
	}
	if params.FinalPrice != nil {
		s.FinalPrice = *params.FinalPrice
	}
	if params.Savings != nil {
		s.Savings = *params.Savings
	}
	if params.Active != nil {
		s.Active = *params.Active
	}
	return s, nil
}

func (f *fakeStorage) ListServices(_ context.Context, _ ListCriteria) ([]*Service, error) {
	return f.services, nil
}

func newTestCatalog(services ...*Service) *Catalog {
	return NewCatalog(&fakeStorage{services: services}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplyPricing(t *testing.T) {
	tests := []struct {
		name         string
		price        string
		discount     string
		wantFinal    string
		wantSavings  string
		wantDiscount string
	}{
		{name: "no discount", price: "2.99", discount: "0", wantFinal: "2.99", wantSavings: "0", wantDiscount: "0"},
		{name: "partial discount", price: "10", discount: "2.5", wantFinal: "7.5", wantSavings: "2.5", wantDiscount: "2.5"},
		{name: "discount above price is clamped", price: "5", discount: "8", wantFinal: "0", wantSavings: "5", wantDiscount: "5"},
		{name: "negative discount is ignored", price: "5", discount: "-1", wantFinal: "5", wantSavings: "0", wantDiscount: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Service{Price: decimal.RequireFromString(tt.price), Discount: decimal.RequireFromString(tt.discount)}
			s.ApplyPricing()

			if !s.FinalPrice.Equal(decimal.RequireFromString(tt.wantFinal)) {
				t.Errorf("FinalPrice = %s, want %s", s.FinalPrice, tt.wantFinal)
			}
			if !s.Savings.Equal(decimal.RequireFromString(tt.wantSavings)) {
				t.Errorf("Savings = %s, want %s", s.Savings, tt.wantSavings)
			}
			if !s.Discount.Equal(decimal.RequireFromString(tt.wantDiscount)) {
				t.Errorf("Discount = %s, want %s", s.Discount, tt.wantDiscount)
			}
		})
	}
}

func TestResolveService(t *testing.T) {
	followers := &Service{ID: "f100", Type: TypeFollowers, Quality: QualityGeneral, Quantity: 100, Active: true}
	premium := &Service{ID: "f100p", Type: TypeFollowers, Quality: QualityPremium, Quantity: 100, Active: true}
	retired := &Service{ID: "old", Type: TypeLikes, Quality: QualityGeneral, Quantity: 50, Active: false}
	c := newTestCatalog(followers, premium, retired)

	tests := []struct {
		name     string
		selector Selector
		wantID   string
		wantKind apperr.Kind
	}{
		{name: "by id", selector: Selector{ID: lo.ToPtr("f100p")}, wantID: "f100p"},
		{name: "by triple", selector: Selector{Type: TypeFollowers, Quality: QualityPremium, Quantity: 100}, wantID: "f100p"},
		{name: "quality defaults to general", selector: Selector{Type: TypeFollowers, Quantity: 100}, wantID: "f100"},
		{name: "no match", selector: Selector{Type: TypeViews, Quality: QualityGeneral, Quantity: 1000}, wantKind: apperr.KindNotFound},
		{name: "inactive by id", selector: Selector{ID: lo.ToPtr("old")}, wantKind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolveService(context.Background(), tt.selector)
			if tt.wantID != "" {
				if err != nil {
					t.Fatalf("ResolveService error: %v", err)
				}
				if got.ID != tt.wantID {
					t.Errorf("ResolveService = %s, want %s", got.ID, tt.wantID)
				}
				return
			}
			if !apperr.Is(err, tt.wantKind) {
				t.Errorf("ResolveService error = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestCreateServiceValidation(t *testing.T) {
	c := newTestCatalog()

	_, err := c.CreateService(context.Background(), Service{Name: "bad", Type: "shares"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("CreateService error = %v, want validation", err)
	}

	created, err := c.CreateService(context.Background(), Service{
		Name:              "100 followers",
		Type:              TypeFollowers,
		Category:          CategoryInstagram,
		Quality:           QualityGeneral,
		SupplierServiceID: "2183",
		Quantity:          100,
		Price:             decimal.RequireFromString("2.99"),
		Discount:          decimal.RequireFromString("0.50"),
		Active:            true,
	})
	if err != nil {
		t.Fatalf("CreateService error: %v", err)
	}
	if created.MinQuantity != 100 || created.MaxQuantity != 100 {
		t.Errorf("bounds = [%d, %d], want [100, 100]", created.MinQuantity, created.MaxQuantity)
	}
	if !created.FinalPrice.Equal(decimal.RequireFromString("2.49")) {
		t.Errorf("FinalPrice = %s, want 2.49", created.FinalPrice)
	}
}
