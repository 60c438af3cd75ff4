/*
aggregator.go - Monthly sales aggregation

PURPOSE:
  Folds every invoice of one calendar month into a Snapshot and appends it
  to the sales history.

FOLD RULES:
  - TotalSalesAmount: sum of invoice totals, each invoice counted once
  - TotalProductsSold: sum of line quantities
  - Per product: units += quantity, amount += quantity × line unit price
  - Per category: keyed by the product's category at aggregation time,
    same units/amount accumulation
  - TotalCategorySold: number of distinct categories touched
  - TotalInvoices: number of invoices folded

  Amounts use the invoice line's unit price, not the catalog's current
  price, so repricing a product never changes past months.

FAILURE MODES:
  - ErrInvalidPeriod: month outside 1..12 or year <= 0
  - ErrNoInvoicesFound: nothing to fold
  - ErrNotFound: an invoiced product no longer resolves to a category

SEE ALSO:
  - history.go: where the snapshot is saved
  - invoice.go: QueryByPeriod
*/
package commerce

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Aggregator struct {
	Invoices *InvoiceBook
	Products ProductStore
	History  *History
	Now      func() time.Time
	NewID    func() string
}

// Aggregate builds, saves and returns the snapshot for p.
func (a *Aggregator) Aggregate(ctx context.Context, p Period) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	invoices, err := a.Invoices.QueryByPeriod(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ErrNoInvoicesFound
	}

	categories, err := a.resolveCategories(ctx, invoices)
	if err != nil {
		return nil, err
	}

	snapshot := Fold(invoices, categories)
	snapshot.ID = SnapshotID(a.newID())
	snapshot.Period = p
	snapshot.CreatedAt = a.now()

	if err := a.History.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// resolveCategories looks every distinct invoiced product up once.
func (a *Aggregator) resolveCategories(ctx context.Context, invoices []Invoice) (map[ProductID]Category, error) {
	categories := make(map[ProductID]Category)
	for _, inv := range invoices {
		for _, line := range inv.Lines {
			if _, seen := categories[line.ProductID]; seen {
				continue
			}
			product, err := a.Products.GetProduct(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			categories[line.ProductID] = product.Category
		}
	}
	return categories, nil
}

// =============================================================================
// FOLD - Pure aggregation over invoices
// =============================================================================

// Fold aggregates invoices into the statistics part of a Snapshot. Every
// product appearing in a line must have an entry in categories.
// Rows are ordered by units sold (descending), then by key.
func Fold(invoices []Invoice, categories map[ProductID]Category) Snapshot {
	var (
		total    = decimal.Zero
		units    int64
		products = make(map[ProductID]*ProductSales)
		byCat    = make(map[Category]*CategorySales)
	)

	for _, inv := range invoices {
		total = total.Add(inv.TotalAmount)

		for _, line := range inv.Lines {
			amount := line.Subtotal()
			units += line.Quantity

			ps, ok := products[line.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: line.ProductID, TotalAmount: decimal.Zero}
				products[line.ProductID] = ps
			}
			ps.TotalUnitsSold += line.Quantity
			ps.TotalAmount = ps.TotalAmount.Add(amount)

			cat := categories[line.ProductID]
			cs, ok := byCat[cat]
			if !ok {
				cs = &CategorySales{Category: cat, TotalAmount: decimal.Zero}
				byCat[cat] = cs
			}
			cs.TotalUnitsSold += line.Quantity
			cs.TotalAmount = cs.TotalAmount.Add(amount)
		}
	}

	productRows := make([]ProductSales, 0, len(products))
	for _, ps := range products {
		productRows = append(productRows, *ps)
	}
	sort.Slice(productRows, func(i, j int) bool {
		if productRows[i].TotalUnitsSold != productRows[j].TotalUnitsSold {
			return productRows[i].TotalUnitsSold > productRows[j].TotalUnitsSold
		}
		return productRows[i].ProductID < productRows[j].ProductID
	})

	categoryRows := make([]CategorySales, 0, len(byCat))
	for _, cs := range byCat {
		categoryRows = append(categoryRows, *cs)
	}
	sort.Slice(categoryRows, func(i, j int) bool {
		if categoryRows[i].TotalUnitsSold != categoryRows[j].TotalUnitsSold {
			return categoryRows[i].TotalUnitsSold > categoryRows[j].TotalUnitsSold
		}
		return categoryRows[i].Category < categoryRows[j].Category
	})

	return Snapshot{
		TotalSalesAmount:  total,
		TotalProductsSold: units,
		TotalCategorySold: len(categoryRows),
		MostSoldProducts:  productRows,
		SalesByCategory:   categoryRows,
		TotalInvoices:     len(invoices),
	}
}

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Aggregator) newID() string {
	if a.NewID == nil {
		return NewID()
	}
	return a.NewID()
}
