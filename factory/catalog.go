/*
Package factory provides JSON to Go product catalog conversion.

PURPOSE:
  Converts JSON product definitions into commerce.Product values. Used by
  the bulk import endpoint and by the demo scenarios, so a catalog can be
  maintained as a JSON document instead of code.

JSON SCHEMA:
  {
    "products": [
      {
        "id": "headphones-01",
        "name": "Wireless Headphones",
        "description": "Over-ear, noise cancelling",
        "price": "129.90",
        "stock": 25,
        "category": "Electronics"
      }
    ]
  }

  "price" accepts a JSON string or number. "category" is matched
  case-insensitively and defaults to Electronics. A missing "id" gets a
  generated one.

USAGE:
  f := NewCatalogFactory()
  products, err := f.ParseCatalog(jsonString)
  for _, p := range products {
      store.SaveProduct(ctx, p)
  }

SEE ALSO:
  - commerce/types.go: Product and Category
  - api/scenarios.go: demo catalogs
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/commerce"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CatalogJSON struct {
	Products []ProductJSON `json:"products"`
}

type ProductJSON struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	Category    string          `json:"category,omitempty"`
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

type CatalogFactory struct {
	Now   func() time.Time
	NewID func() string
}

func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{Now: time.Now, NewID: commerce.NewID}
}

// ParseCatalog parses a catalog document. Every product is validated and
// all problems are reported together, prefixed with the product's index.
func (f *CatalogFactory) ParseCatalog(jsonStr string) ([]commerce.Product, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, &commerce.ValidationError{Field: "catalog", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if len(cj.Products) == 0 {
		return nil, &commerce.ValidationError{Field: "products", Message: "catalog has no products"}
	}
	return f.FromJSON(cj)
}

func (f *CatalogFactory) FromJSON(cj CatalogJSON) ([]commerce.Product, error) {
	var (
		products = make([]commerce.Product, 0, len(cj.Products))
		seen     = make(map[commerce.ProductID]int, len(cj.Products))
		errs     []error
	)
	for i, pj := range cj.Products {
		p, err := f.Product(pj)
		if err != nil {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, err))
			continue
		}
		if first, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("products[%d]: id %q already used by products[%d]: %w",
				i, p.ID, first, commerce.ErrDuplicateEntity))
			continue
		}
		seen[p.ID] = i
		products = append(products, *p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return products, nil
}

// ParseProduct parses a single product definition.
func (f *CatalogFactory) ParseProduct(jsonStr string) (*commerce.Product, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, &commerce.ValidationError{Field: "product", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return f.Product(pj)
}

// Product converts a single definition, applying defaults.
func (f *CatalogFactory) Product(pj ProductJSON) (*commerce.Product, error) {
	category, err := commerce.ParseCategory(pj.Category)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(pj.ID)
	if id == "" {
		id = f.newID()
	}
	now := f.now()

	p := &commerce.Product{
		ID:          commerce.ProductID(id),
		Name:        strings.TrimSpace(pj.Name),
		Description: strings.TrimSpace(pj.Description),
		Price:       pj.Price,
		Stock:       pj.Stock,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (f *CatalogFactory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *CatalogFactory) newID() string {
	if f.NewID == nil {
		return commerce.NewID()
	}
	return f.NewID()
}
