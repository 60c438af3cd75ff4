/*
ledger.go - Inventory ledger: the only path that changes stock

PURPOSE:
  Applies signed stock deltas to products. A positive delta is a restock,
  a negative delta a sale debit. The product's stock never goes below zero.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: stock + delta < 0 is refused with ErrInsufficientStock
  2. ALL-OR-NOTHING: a refused adjustment leaves stock untouched
  3. NO LOST UPDATES: two concurrent debits can not both read the same
     stock and both succeed when only one fits

CONCURRENCY:
  Stores implementing AtomicStockStore do the check and the write in one
  statement. For the rest, the ledger reads, computes and writes with
  CompareAndSwapStock, re-reading after a lost race. After MaxRetries lost
  races the caller gets ErrConcurrentModification.

SEE ALSO:
  - store.go: AtomicStockStore and CompareAndSwapStock contracts
  - checkout.go: multi-line debits with compensation
*/
package commerce

import (
	"context"
	"fmt"
)

// DefaultMaxStockRetries bounds the compare-and-swap loop.
const DefaultMaxStockRetries = 8

// =============================================================================
// INVENTORY LEDGER
// =============================================================================

type InventoryLedger struct {
	Products   ProductStore
	MaxRetries int
}

func NewInventoryLedger(products ProductStore) *InventoryLedger {
	return &InventoryLedger{Products: products, MaxRetries: DefaultMaxStockRetries}
}

// AdjustStock applies delta to the product's stock and returns the product
// as stored afterwards.
func (l *InventoryLedger) AdjustStock(ctx context.Context, id ProductID, delta int64) (*Product, error) {
	if id == "" {
		return nil, &ValidationError{Field: "product_id", Message: "product id is required"}
	}

	if atomic, ok := l.Products.(AtomicStockStore); ok {
		return atomic.AddStock(ctx, id, delta)
	}

	retries := l.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxStockRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		product, err := l.Products.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}

		next := product.Stock + delta
		if next < 0 {
			return nil, &InsufficientStockError{ProductID: id, Available: product.Stock, Requested: -delta}
		}

		swapped, err := l.Products.CompareAndSwapStock(ctx, id, product.Stock, next)
		if err != nil {
			return nil, err
		}
		if swapped {
			product.Stock = next
			return product, nil
		}
	}

	return nil, fmt.Errorf("adjust stock of product %s: %w", id, ErrConcurrentModification)
}

// Restock adds qty units. qty must be positive.
func (l *InventoryLedger) Restock(ctx context.Context, id ProductID, qty int64) (*Product, error) {
	if qty <= 0 {
		return nil, &ValidationError{Field: "quantity", Message: "restock quantity must be positive"}
	}
	return l.AdjustStock(ctx, id, qty)
}
