/*
Package commerce provides the back-office sales engine.

PURPOSE:
  This package holds the domain types and algorithms behind the shop's
  back office: the inventory ledger that guards stock, the invoice book,
  the monthly sales aggregator and the sales history with its yearly
  "latest snapshot per month" reconstruction. Persistence and transport
  live elsewhere; everything here talks to the Store interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: catalog entry with a price and a non-negative stock level
  - Invoice: immutable record of one sale, lines carry the price at sale
  - Snapshot: aggregated sales statistics for one calendar month
  - Type-safe identifiers for products, users, invoices and snapshots

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Immutability: snapshots are never edited; corrections are new versions
  3. Price at sale: invoice lines keep the unit price charged, so later
     catalog price changes do not rewrite history

USAGE:
  inv, err := svc.Checkout.Sell(ctx, "user-1", []commerce.SaleLine{
      {ProductID: "p-1", Quantity: 2},
  })

SEE ALSO:
  - ledger.go: stock adjustments
  - aggregator.go: monthly fold over invoices
  - history.go: snapshot persistence and yearly reconstruction
*/
package commerce

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ProductID  string
	UserID     string
	InvoiceID  string
	SnapshotID string
)

// NewID returns a time-ordered UUID (v7). Snapshot ties on CreatedAt are
// broken by ID, so ordering by ID follows creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// =============================================================================
// CATEGORY
// =============================================================================

type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryHome        Category = "Home"
	CategoryToys        Category = "Toys"
	CategorySports      Category = "Sports"
)

// DefaultCategory is used when a product is created without one.
const DefaultCategory = CategoryElectronics

var categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryHome,
	CategoryToys,
	CategorySports,
}

// Categories lists the known product categories.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory matches s case-insensitively against the known categories.
// An empty string yields DefaultCategory.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory, nil
	}
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", s)}
}

// =============================================================================
// PRODUCT
// =============================================================================

type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	Category    Category
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the catalog invariants: a name, price >= 0 and stock >= 0.
func (p Product) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Message: "product id is required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Message: "product name is required"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "price must not be negative"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "stock must not be negative"}
	}
	return nil
}

// =============================================================================
// INVOICE
// =============================================================================

// LineItem is one product line of an invoice. UnitPrice is the price charged
// at the time of sale.
type LineItem struct {
	ProductID ProductID
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

type Invoice struct {
	ID          InvoiceID
	UserID      UserID
	Lines       []LineItem
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

// InvoiceTotal returns Σ quantity × unit price.
func InvoiceTotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// =============================================================================
// SNAPSHOT - Aggregated statistics for one month
// =============================================================================

type ProductSales struct {
	ProductID      ProductID
	TotalUnitsSold int64
	TotalAmount    decimal.Decimal
}

type CategorySales struct {
	Category       Category
	TotalUnitsSold int64
	TotalAmount    decimal.Decimal
}

// Snapshot is the result of aggregating one month of invoices.
// Several snapshots may exist for the same period; the one with the latest
// CreatedAt is authoritative.
type Snapshot struct {
	ID                SnapshotID
	Period            Period
	TotalSalesAmount  decimal.Decimal
	TotalProductsSold int64
	TotalCategorySold int
	MostSoldProducts  []ProductSales
	SalesByCategory   []CategorySales
	TotalInvoices     int
	CreatedAt         time.Time

	// AmendsID is set when this snapshot was produced by correcting another.
	AmendsID SnapshotID
}
