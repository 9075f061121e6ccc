package main

import (
	"fmt"
	"os"
	"sort"

	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/stories/catalog"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var perThousand = decimal.NewFromInt(1000)

// mapping binds supplier service ids to catalog products.
//
//	markup: "2.5"
//	services:
//	  "1234":
//	    type: followers
//	    quality: general
//	    category: Instagram
//	    packages: [100, 500, 1000]
type mapping struct {
	Markup   string                  `yaml:"markup"`
	Services map[string]mappingEntry `yaml:"services"`
}

type mappingEntry struct {
	Type     catalog.ServiceType `yaml:"type"`
	Quality  catalog.Quality     `yaml:"quality"`
	Category catalog.Category    `yaml:"category"`
	Packages []int               `yaml:"packages"`
	Popular  bool                `yaml:"popular"`
}

func loadMapping(path string) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseMapping(data)
}

func parseMapping(data []byte) (*mapping, error) {
	var m mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if m.Markup == "" {
		m.Markup = "1"
	}
	markup, err := decimal.NewFromString(m.Markup)
	if err != nil || !markup.IsPositive() {
		return nil, fmt.Errorf("invalid markup %q", m.Markup)
	}
	for id, e := range m.Services {
		if !e.Type.Valid() || !e.Quality.Valid() || !e.Category.Valid() {
			return nil, fmt.Errorf("service %s: invalid type, quality or category", id)
		}
		if len(e.Packages) == 0 {
			return nil, fmt.Errorf("service %s: no packages", id)
		}
	}
	return &m, nil
}

type actionKind int

const (
	actionCreate actionKind = iota
	actionUpdate
	actionUnchanged
)

type action struct {
	kind     actionKind
	service  catalog.Service
	previous decimal.Decimal
}

// plan compares the mapping against the supplier offer and the current catalog.
// Supplier rates are per 1000 units.
func plan(m *mapping, offered []supplier.Service, existing []catalog.Service) ([]action, []string) {
	markup, _ := decimal.NewFromString(m.Markup)
	byID := lo.KeyBy(offered, func(s supplier.Service) string { return s.ID })

	type key struct {
		supplierID string
		quantity   int
	}
	current := lo.KeyBy(existing, func(s catalog.Service) key {
		return key{supplierID: s.SupplierServiceID, quantity: s.Quantity}
	})

	ids := lo.Keys(m.Services)
	sort.Strings(ids)

	var (
		actions  []action
		warnings []string
	)
	for _, id := range ids {
		entry := m.Services[id]
		offer, ok := byID[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("supplier service %s not offered, skipping", id))
			continue
		}

		for _, qty := range entry.Packages {
			if qty < offer.Min || (offer.Max > 0 && qty > offer.Max) {
				warnings = append(warnings, fmt.Sprintf("supplier service %s: package %d outside [%d, %d]", id, qty, offer.Min, offer.Max))
				continue
			}

			cost := offer.Rate.Mul(decimal.NewFromInt(int64(qty))).Div(perThousand).Round(4)

			if svc, ok := current[key{supplierID: id, quantity: qty}]; ok {
				if svc.SupplierPrice.Equal(cost) {
					actions = append(actions, action{kind: actionUnchanged, service: svc})
					continue
				}
				previous := svc.SupplierPrice
				svc.SupplierPrice = cost
				actions = append(actions, action{kind: actionUpdate, service: svc, previous: previous})
				continue
			}

			price := cost.Mul(markup).Round(2)
			if !price.IsPositive() {
				price = decimal.RequireFromString("0.01")
			}
			actions = append(actions, action{
				kind: actionCreate,
				service: catalog.Service{
					Name:              fmt.Sprintf("%d %s %s", qty, entry.Category, entry.Type),
					Type:              entry.Type,
					Category:          entry.Category,
					Quality:           entry.Quality,
					SupplierServiceID: id,
					Quantity:          qty,
					Price:             price,
					OriginalPrice:     price,
					SupplierPrice:     cost,
					Active:            true,
					Popular:           entry.Popular,
				},
			})
		}
	}
	return actions, warnings
}
