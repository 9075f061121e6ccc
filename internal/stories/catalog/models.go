package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	TypeFollowers ServiceType = "followers"
	TypeLikes     ServiceType = "likes"
	TypeViews     ServiceType = "views"
	TypeComments  ServiceType = "comments"
)

func (t ServiceType) Valid() bool {
	switch t {
	case TypeFollowers, TypeLikes, TypeViews, TypeComments:
		return true
	}
	return false
}

// NeedsPost reports whether orders of this type target a post rather than a profile.
func (t ServiceType) NeedsPost() bool {
	return t != TypeFollowers
}

type Category string

const (
	CategoryInstagram Category = "Instagram"
	CategoryTikTok    Category = "TikTok"
	CategoryYouTube   Category = "YouTube"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryInstagram, CategoryTikTok, CategoryYouTube:
		return true
	}
	return false
}

type Quality string

const (
	QualityGeneral Quality = "general"
	QualityPremium Quality = "premium"
)

func (q Quality) Valid() bool {
	return q == QualityGeneral || q == QualityPremium
}

type Service struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Type              ServiceType     `json:"type"`
	Category          Category        `json:"category"`
	Quality           Quality         `json:"quality"`
	SupplierServiceID string          `json:"supplierServiceId"`
	Quantity          int             `json:"quantity"`
	MinQuantity       int             `json:"minQuantity"`
	MaxQuantity       int             `json:"maxQuantity"`
	Price             decimal.Decimal `json:"price"`
	OriginalPrice     decimal.Decimal `json:"originalPrice"`
	SupplierPrice     decimal.Decimal `json:"supplierPrice"`
	Discount          decimal.Decimal `json:"discount"`
	FinalPrice        decimal.Decimal `json:"finalPrice"`
	Savings           decimal.Decimal `json:"savings"`
	Active            bool            `json:"active"`
	Popular           bool            `json:"popular"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ApplyPricing clamps the discount to [0, price] and derives FinalPrice and Savings.
func (s *Service) ApplyPricing() {
	if s.Discount.IsNegative() {
		s.Discount = decimal.Zero
	}
	if s.Discount.GreaterThan(s.Price) {
		s.Discount = s.Price
	}
	s.FinalPrice = decimal.Max(decimal.Zero, s.Price.Sub(s.Discount))
	s.Savings = s.Price.Sub(s.FinalPrice)
}

// AcceptsQuantity reports whether quantity lies within the service bounds.
func (s *Service) AcceptsQuantity(quantity int) bool {
	return quantity >= s.MinQuantity && quantity <= s.MaxQuantity
}

// Selector picks a service either by id or by its type/quality/quantity triple.
type Selector struct {
	ID       *string
	Type     ServiceType
	Quality  Quality
	Quantity int
}

type GetCriteria struct {
	ID       *string
	Type     *ServiceType
	Quality  *Quality
	Quantity *int
	Active   *bool
}

type ListCriteria struct {
	Type     *ServiceType
	Category *Category
	Quality  *Quality
	Active   *bool
	Popular  *bool
	Limit    int
	Offset   int
}

type UpdateParams struct {
	Name          *string
	Price         *decimal.Decimal
	OriginalPrice *decimal.Decimal
	SupplierPrice *decimal.Decimal
	Discount      *decimal.Decimal
	FinalPrice    *decimal.Decimal
	Savings       *decimal.Decimal
	MinQuantity   *int
	MaxQuantity   *int
	Active        *bool
	Popular       *bool
}
