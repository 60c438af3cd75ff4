/*
store.go - Persistence interfaces for products, invoices and snapshots

PURPOSE:
  Defines the interface between the sales engine and the database.
  Implementations exist for memory (tests and dev), SQLite and MongoDB.

KEY INTERFACES:
  ProductStore:         Catalog rows plus a compare-and-swap on stock
  AtomicStockStore:     Optional single-statement conditional stock update
  InvoiceStore:         Invoices with an inclusive CreatedAt range query
  SnapshotStore:        Append-only sales history
  LatestSnapshotFinder: Optional store-side "latest per month" query
  TxStore:              Atomic multi-collection writes

STOCK CONTRACT:
  Stock must never go negative, including under concurrent debits.
  A store either implements AtomicStockStore (the database checks the floor
  in the same statement that applies the delta) or the ledger falls back to
  CompareAndSwapStock, which only writes when the stored value still equals
  the value it read.

SNAPSHOT CONTRACT:
  Snapshots are append-only. Corrections are saved as new snapshots for the
  same period; readers pick the latest by CreatedAt, then ID.

LOOKUPS:
  Single-entity getters return an error wrapping ErrNotFound when the row
  does not exist, never (nil, nil).

IMPLEMENTATIONS:
  - commerce/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite
  - store/mongodb/mongodb.go: MongoDB

SEE ALSO:
  - ledger.go: Uses ProductStore
  - history.go: Uses SnapshotStore
*/
package commerce

import (
	"context"
	"time"
)

// =============================================================================
// PRODUCT STORE
// =============================================================================

type ProductStore interface {
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	// SaveProduct inserts or replaces a product.
	SaveProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id ProductID) error

	// CompareAndSwapStock sets stock to next only if it currently equals
	// expected. Returns false (and no error) when the value had changed.
	CompareAndSwapStock(ctx context.Context, id ProductID, expected, next int64) (bool, error)
}

// AtomicStockStore applies stock + delta in one step, refusing when the
// result would be negative. Returns the updated product.
type AtomicStockStore interface {
	AddStock(ctx context.Context, id ProductID, delta int64) (*Product, error)
}

// =============================================================================
// INVOICE STORE
// =============================================================================

type InvoiceStore interface {
	AppendInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
	ListInvoicesByUser(ctx context.Context, userID UserID) ([]Invoice, error)

	// LoadInvoiceRange returns invoices with CreatedAt in [from, to], ordered by CreatedAt.
	LoadInvoiceRange(ctx context.Context, from, to time.Time) ([]Invoice, error)

	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id InvoiceID) error
}

// =============================================================================
// SNAPSHOT STORE - Append-only sales history
// =============================================================================

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	GetSnapshot(ctx context.Context, id SnapshotID) (*Snapshot, error)
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	ListSnapshotsByYear(ctx context.Context, year int) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, id SnapshotID) error
}

// LatestSnapshotFinder lets a store answer ReconstructYear in one query.
// Results must follow the same rule as LatestPerMonth.
type LatestSnapshotFinder interface {
	LatestSnapshotsPerMonth(ctx context.Context, year int) ([]Snapshot, error)
}

// =============================================================================
// COMBINED + TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	ProductStore
	InvoiceStore
	SnapshotStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
