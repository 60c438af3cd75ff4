/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the back office using SQLite:
  the product catalog, invoices, the sales history and user accounts.

INTERFACES IMPLEMENTED:
  commerce.Store:                Products, invoices, snapshots
  commerce.TxStore:              Atomic sale (stock debits + invoice)
  commerce.AtomicStockStore:     Conditional single-statement stock update
  commerce.LatestSnapshotFinder: Latest snapshot per month via window function
  auth.UserStore:                Accounts, unique email

KEY TABLES:
  products:        Catalog; CHECK (stock >= 0) backs the ledger invariant
  invoices:        Invoice headers
  invoice_lines:   Lines with the unit price charged at sale
  sales_snapshots: Append-only history; rows kept as JSON columns
  users:           Accounts

STOCK UPDATES:
  AddStock is one UPDATE with the floor in its WHERE clause:

    UPDATE products SET stock = stock + ? WHERE id = ? AND stock + ? >= 0

  Zero affected rows means either unknown product or insufficient stock;
  a follow-up read tells which.

TIMESTAMPS:
  Stored as fixed-width UTC text so lexicographic order is time order and
  range predicates can use the created_at indexes.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, which
  also keeps ":memory:" databases shared across calls.

USAGE:
  store, err := sqlite.New("./data/backoffice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := commerce.NewService(store, commerce.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - commerce/store.go: Interface definitions
  - commerce/store/memory.go: In-memory implementation for testing
  - store/mongodb/mongodb.go: MongoDB implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

// timeLayout is fixed width so text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		category TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
	CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices(user_id, created_at);

	CREATE TABLE IF NOT EXISTS invoice_lines (
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		PRIMARY KEY (invoice_id, position)
	);

	-- Append-only: one row per aggregation or amendment.
	CREATE TABLE IF NOT EXISTS sales_snapshots (
		id TEXT PRIMARY KEY,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL CHECK (year > 0),
		total_sales_amount TEXT NOT NULL,
		total_products_sold INTEGER NOT NULL,
		total_category_sold INTEGER NOT NULL,
		total_invoices INTEGER NOT NULL,
		most_sold_json TEXT NOT NULL,
		by_category_json TEXT NOT NULL,
		amends_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_period
		ON sales_snapshots(year, month, created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS (commerce.Store, auth.UserStore)
// =============================================================================

// conn runs directly on the pool. Callers hold s.mu.
func (s *Store) conn() conn {
	return conn{q: s.db}
}

func (s *Store) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListProducts(ctx)
}

func (s *Store) SaveProduct(ctx context.Context, p commerce.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().SaveProduct(ctx, p)
}

func (s *Store) DeleteProduct(ctx context.Context, id commerce.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteProduct(ctx, id)
}

func (s *Store) CompareAndSwapStock(ctx context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CompareAndSwapStock(ctx, id, expected, next)
}

func (s *Store) AddStock(ctx context.Context, id commerce.ProductID, delta int64) (*commerce.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().AddStock(ctx, id, delta)
}

func (s *Store) AppendInvoice(ctx context.Context, inv commerce.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (conn{q: sqlTx}).AppendInvoice(ctx, inv); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetInvoice(ctx context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetInvoice(ctx, id)
}

func (s *Store) ListInvoices(ctx context.Context) ([]commerce.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListInvoices(ctx)
}

func (s *Store) ListInvoicesByUser(ctx context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListInvoicesByUser(ctx, userID)
}

func (s *Store) LoadInvoiceRange(ctx context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().LoadInvoiceRange(ctx, from, to)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv commerce.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (conn{q: sqlTx}).UpdateInvoice(ctx, inv); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) DeleteInvoice(ctx context.Context, id commerce.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteInvoice(ctx, id)
}

func (s *Store) SaveSnapshot(ctx context.Context, snap commerce.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().SaveSnapshot(ctx, snap)
}

func (s *Store) GetSnapshot(ctx context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetSnapshot(ctx, id)
}

func (s *Store) ListSnapshots(ctx context.Context) ([]commerce.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListSnapshots(ctx)
}

func (s *Store) ListSnapshotsByYear(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListSnapshotsByYear(ctx, year)
}

func (s *Store) LatestSnapshotsPerMonth(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().LatestSnapshotsPerMonth(ctx, year)
}

func (s *Store) DeleteSnapshot(ctx context.Context, id commerce.SnapshotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteSnapshot(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id commerce.UserID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetUserByEmail(ctx, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListUsers(ctx)
}

func (s *Store) UpdateUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpdateUser(ctx, u)
}

func (s *Store) DeleteUser(ctx context.Context, id commerce.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteUser(ctx, id)
}

// =============================================================================
// TRANSACTIONAL STORE (commerce.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// The store passed to fn must not be used after fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(store commerce.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"invoice_lines", "invoices", "sales_snapshots", "products", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// =============================================================================
// JSON ROWS - snapshot breakdowns
// =============================================================================

type productSalesRow struct {
	ProductID      string `json:"product_id"`
	TotalUnitsSold int64  `json:"total_units_sold"`
	TotalAmount    string `json:"total_amount"`
}

type categorySalesRow struct {
	Category       string `json:"category"`
	TotalUnitsSold int64  `json:"total_units_sold"`
	TotalAmount    string `json:"total_amount"`
}

func encodeBreakdowns(snap commerce.Snapshot) (string, string, error) {
	products := make([]productSalesRow, len(snap.MostSoldProducts))
	for i, p := range snap.MostSoldProducts {
		products[i] = productSalesRow{ProductID: string(p.ProductID), TotalUnitsSold: p.TotalUnitsSold, TotalAmount: p.TotalAmount.String()}
	}
	categories := make([]categorySalesRow, len(snap.SalesByCategory))
	for i, c := range snap.SalesByCategory {
		categories[i] = categorySalesRow{Category: string(c.Category), TotalUnitsSold: c.TotalUnitsSold, TotalAmount: c.TotalAmount.String()}
	}

	productsJSON, err := json.Marshal(products)
	if err != nil {
		return "", "", err
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return "", "", err
	}
	return string(productsJSON), string(categoriesJSON), nil
}

func decodeBreakdowns(productsJSON, categoriesJSON string, snap *commerce.Snapshot) error {
	var products []productSalesRow
	if err := json.Unmarshal([]byte(productsJSON), &products); err != nil {
		return fmt.Errorf("failed to decode product breakdown: %w", err)
	}
	var categories []categorySalesRow
	if err := json.Unmarshal([]byte(categoriesJSON), &categories); err != nil {
		return fmt.Errorf("failed to decode category breakdown: %w", err)
	}

	snap.MostSoldProducts = make([]commerce.ProductSales, len(products))
	for i, p := range products {
		amount, err := parseDecimal(p.TotalAmount)
		if err != nil {
			return err
		}
		snap.MostSoldProducts[i] = commerce.ProductSales{ProductID: commerce.ProductID(p.ProductID), TotalUnitsSold: p.TotalUnitsSold, TotalAmount: amount}
	}
	snap.SalesByCategory = make([]commerce.CategorySales, len(categories))
	for i, c := range categories {
		amount, err := parseDecimal(c.TotalAmount)
		if err != nil {
			return err
		}
		snap.SalesByCategory[i] = commerce.CategorySales{Category: commerce.Category(c.Category), TotalUnitsSold: c.TotalUnitsSold, TotalAmount: amount}
	}
	return nil
}
