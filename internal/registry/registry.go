// Package registry holds the fixed, ordered set of tradable products.
//
// Iteration order is the order products were registered in. Everything that
// produces ordered output (the simulated series, snapshot price lists,
// valuation) walks the registry in that order.
package registry

import (
	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/model"
)

// Registry is an immutable ordered product set.
type Registry struct {
	products []model.Product
	index    map[string]int
}

// New validates products and builds a registry in the given order.
func New(products ...model.Product) (*Registry, error) {
	if len(products) == 0 {
		return nil, gameerr.New(gameerr.CodeConfig, "product registry is empty")
	}
	r := &Registry{
		products: make([]model.Product, 0, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, gameerr.New(gameerr.CodeConfig, "product id is required")
		}
		if _, dup := r.index[p.ID]; dup {
			return nil, gameerr.New(gameerr.CodeConfig, "duplicate product %q", p.ID)
		}
		if !p.BasePrice.IsPositive() {
			return nil, gameerr.New(gameerr.CodeConfig, "product %q: base price must be positive", p.ID)
		}
		if p.BaseSalesVolume < 0 {
			return nil, gameerr.New(gameerr.CodeConfig, "product %q: base sales must not be negative", p.ID)
		}
		r.index[p.ID] = len(r.products)
		r.products = append(r.products, p)
	}
	return r, nil
}

// MustNew is New for static product tables.
func MustNew(products ...model.Product) *Registry {
	r, err := New(products...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the tuck-shop lineup the game ships with.
func Default() *Registry {
	return MustNew(
		model.Product{ID: "ion-drink", BasePrice: decimal.NewFromInt(100), BaseSalesVolume: 50},
		model.Product{ID: "cup-rice", BasePrice: decimal.NewFromInt(200), BaseSalesVolume: 30},
		model.Product{ID: "ice-cream", BasePrice: decimal.NewFromInt(150), BaseSalesVolume: 25},
		model.Product{ID: "jelly", BasePrice: decimal.NewFromInt(80), BaseSalesVolume: 40},
		model.Product{ID: "pokemon-bread", BasePrice: decimal.NewFromInt(120), BaseSalesVolume: 35},
	)
}

// Products returns a copy of the products in registry order.
func (r *Registry) Products() []model.Product {
	out := make([]model.Product, len(r.products))
	copy(out, r.products)
	return out
}

// IDs returns product ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.products))
	for i, p := range r.products {
		ids[i] = p.ID
	}
	return ids
}

// Get looks up a product by id.
func (r *Registry) Get(id string) (model.Product, bool) {
	i, ok := r.index[id]
	if !ok {
		return model.Product{}, false
	}
	return r.products[i], true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Len returns the number of products.
func (r *Registry) Len() int { return len(r.products) }

// Position returns the registry order of id, or -1.
func (r *Registry) Position(id string) int {
	i, ok := r.index[id]
	if !ok {
		return -1
	}
	return i
}
