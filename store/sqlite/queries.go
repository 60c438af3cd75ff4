package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements the store interfaces on top of a querier without any
// locking. The pool has a single connection, so every *sql.Rows must be
// closed before the next statement runs.
type conn struct {
	q querier
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, description, price, stock, category, created_at, updated_at`

func (c conn) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.NotFound("product", string(id))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c conn) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []commerce.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (c conn) SaveProduct(ctx context.Context, p commerce.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			stock = excluded.stock,
			category = excluded.category,
			updated_at = excluded.updated_at
	`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock, string(p.Category),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (c conn) DeleteProduct(ctx context.Context, id commerce.ProductID) error {
	return c.deleteByID(ctx, "products", "product", string(id))
}

func (c conn) CompareAndSwapStock(ctx context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE products SET stock = ?, updated_at = ? WHERE id = ? AND stock = ?`,
		next, formatTime(time.Now()), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to swap stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a lost race from a missing product.
	if _, err := c.GetProduct(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (c conn) AddStock(ctx context.Context, id commerce.ProductID, delta int64) (*commerce.Product, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ? AND stock + ? >= 0`,
		delta, formatTime(time.Now()), id, delta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	p, err := c.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &commerce.InsufficientStockError{ProductID: id, Available: p.Stock, Requested: -delta}
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*commerce.Product, error) {
	var (
		p                    commerce.Product
		price, category      string
		createdAt, updatedAt string
		err                  error
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &category, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Category = commerce.Category(category)
	if p.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// INVOICES
// =============================================================================

// AppendInvoice writes header and lines. Callers wrap it in a transaction.
func (c conn) AppendInvoice(ctx context.Context, inv commerce.Invoice) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO invoices (id, user_id, total_amount, created_at) VALUES (?, ?, ?, ?)`,
		inv.ID, inv.UserID, inv.TotalAmount.String(), formatTime(inv.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("invoice %s: %w", inv.ID, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to append invoice: %w", err)
	}
	return c.insertLines(ctx, inv)
}

func (c conn) insertLines(ctx context.Context, inv commerce.Invoice) error {
	for i, l := range inv.Lines {
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO invoice_lines (invoice_id, position, product_id, quantity, unit_price) VALUES (?, ?, ?, ?, ?)`,
			inv.ID, i, l.ProductID, l.Quantity, l.UnitPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to append invoice line: %w", err)
		}
	}
	return nil
}

const invoiceSelect = `
	SELECT i.id, i.user_id, i.total_amount, i.created_at,
	       l.product_id, l.quantity, l.unit_price
	FROM invoices i
	LEFT JOIN invoice_lines l ON l.invoice_id = i.id
`

const invoiceOrder = ` ORDER BY i.created_at ASC, i.id ASC, l.position ASC`

func (c conn) GetInvoice(ctx context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	invoices, err := c.queryInvoices(ctx, invoiceSelect+` WHERE i.id = ?`+invoiceOrder, id)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, commerce.NotFound("invoice", string(id))
	}
	return &invoices[0], nil
}

func (c conn) ListInvoices(ctx context.Context) ([]commerce.Invoice, error) {
	return c.queryInvoices(ctx, invoiceSelect+invoiceOrder)
}

func (c conn) ListInvoicesByUser(ctx context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	return c.queryInvoices(ctx, invoiceSelect+` WHERE i.user_id = ?`+invoiceOrder, userID)
}

func (c conn) LoadInvoiceRange(ctx context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	return c.queryInvoices(ctx, invoiceSelect+` WHERE i.created_at >= ? AND i.created_at <= ?`+invoiceOrder,
		formatTime(from), formatTime(to))
}

func (c conn) UpdateInvoice(ctx context.Context, inv commerce.Invoice) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE invoices SET user_id = ?, total_amount = ? WHERE id = ?`,
		inv.UserID, inv.TotalAmount.String(), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return commerce.NotFound("invoice", string(inv.ID))
	}
	if _, err := c.q.ExecContext(ctx, `DELETE FROM invoice_lines WHERE invoice_id = ?`, inv.ID); err != nil {
		return fmt.Errorf("failed to replace invoice lines: %w", err)
	}
	return c.insertLines(ctx, inv)
}

func (c conn) DeleteInvoice(ctx context.Context, id commerce.InvoiceID) error {
	return c.deleteByID(ctx, "invoices", "invoice", string(id))
}

// queryInvoices folds the header/line join back into invoices, preserving
// the query order.
func (c conn) queryInvoices(ctx context.Context, query string, args ...any) ([]commerce.Invoice, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var (
		invoices []commerce.Invoice
		index    = make(map[commerce.InvoiceID]int)
	)
	for rows.Next() {
		var (
			id, userID, total, createdAt string
			productID, unitPrice         sql.NullString
			quantity                     sql.NullInt64
		)
		if err := rows.Scan(&id, &userID, &total, &createdAt, &productID, &quantity, &unitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}

		pos, seen := index[commerce.InvoiceID(id)]
		if !seen {
			amount, err := parseDecimal(total)
			if err != nil {
				return nil, err
			}
			created, err := parseTime(createdAt)
			if err != nil {
				return nil, err
			}
			invoices = append(invoices, commerce.Invoice{
				ID:          commerce.InvoiceID(id),
				UserID:      commerce.UserID(userID),
				TotalAmount: amount,
				CreatedAt:   created,
			})
			pos = len(invoices) - 1
			index[commerce.InvoiceID(id)] = pos
		}

		if productID.Valid {
			price, err := parseDecimal(unitPrice.String)
			if err != nil {
				return nil, err
			}
			invoices[pos].Lines = append(invoices[pos].Lines, commerce.LineItem{
				ProductID: commerce.ProductID(productID.String),
				Quantity:  quantity.Int64,
				UnitPrice: price,
			})
		}
	}
	return invoices, rows.Err()
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

const snapshotColumns = `id, month, year, total_sales_amount, total_products_sold, total_category_sold,
	total_invoices, most_sold_json, by_category_json, amends_id, created_at`

func (c conn) SaveSnapshot(ctx context.Context, snap commerce.Snapshot) error {
	productsJSON, categoriesJSON, err := encodeBreakdowns(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO sales_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID, int(snap.Period.Month), snap.Period.Year, snap.TotalSalesAmount.String(),
		snap.TotalProductsSold, snap.TotalCategorySold, snap.TotalInvoices,
		productsJSON, categoriesJSON, nullString(string(snap.AmendsID)), formatTime(snap.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("snapshot %s: %w", snap.ID, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (c conn) GetSnapshot(ctx context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	snaps, err := c.querySnapshots(ctx, `SELECT `+snapshotColumns+` FROM sales_snapshots WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, commerce.NotFound("snapshot", string(id))
	}
	return &snaps[0], nil
}

func (c conn) ListSnapshots(ctx context.Context) ([]commerce.Snapshot, error) {
	return c.querySnapshots(ctx, `SELECT `+snapshotColumns+` FROM sales_snapshots
		ORDER BY year ASC, month ASC, created_at DESC, id DESC`)
}

func (c conn) ListSnapshotsByYear(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	return c.querySnapshots(ctx, `SELECT `+snapshotColumns+` FROM sales_snapshots
		WHERE year = ? ORDER BY month ASC, created_at DESC, id DESC`, year)
}

// LatestSnapshotsPerMonth ranks each month's snapshots newest first and
// keeps rank 1.
func (c conn) LatestSnapshotsPerMonth(ctx context.Context, year int) ([]commerce.Snapshot, error) {
	return c.querySnapshots(ctx, `
		SELECT `+snapshotColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY month ORDER BY created_at DESC, id DESC
			) AS rn
			FROM sales_snapshots
			WHERE year = ?
		)
		WHERE rn = 1
		ORDER BY month ASC
	`, year)
}

func (c conn) DeleteSnapshot(ctx context.Context, id commerce.SnapshotID) error {
	return c.deleteByID(ctx, "sales_snapshots", "snapshot", string(id))
}

func (c conn) querySnapshots(ctx context.Context, query string, args ...any) ([]commerce.Snapshot, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []commerce.Snapshot
	for rows.Next() {
		var (
			snap                         commerce.Snapshot
			month                        int
			total, createdAt             string
			productsJSON, categoriesJSON string
			amendsID                     sql.NullString
		)
		err := rows.Scan(&snap.ID, &month, &snap.Period.Year, &total, &snap.TotalProductsSold,
			&snap.TotalCategorySold, &snap.TotalInvoices, &productsJSON, &categoriesJSON, &amendsID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Period.Month = time.Month(month)
		snap.AmendsID = commerce.SnapshotID(amendsID.String)
		if snap.TotalSalesAmount, err = parseDecimal(total); err != nil {
			return nil, err
		}
		if snap.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if err := decodeBreakdowns(productsJSON, categoriesJSON, &snap); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, username, email, role, password_hash, created_at, updated_at`

func (c conn) CreateUser(ctx context.Context, u auth.User) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, string(u.Role), u.PasswordHash, formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("user %s: %w", u.Email, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (c conn) GetUser(ctx context.Context, id commerce.UserID) (*auth.User, error) {
	u, err := scanUser(c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.NotFound("user", string(id))
	}
	return u, err
}

func (c conn) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.NotFound("user", email)
	}
	return u, err
}

func (c conn) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (c conn) UpdateUser(ctx context.Context, u auth.User) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, role = ?, password_hash = ?, updated_at = ? WHERE id = ?`,
		u.Username, u.Email, string(u.Role), u.PasswordHash, formatTime(u.UpdatedAt), u.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("user %s: %w", u.Email, commerce.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return commerce.NotFound("user", string(u.ID))
	}
	return nil
}

func (c conn) DeleteUser(ctx context.Context, id commerce.UserID) error {
	return c.deleteByID(ctx, "users", "user", string(id))
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                    auth.User
		role                 string
		createdAt, updatedAt string
		err                  error
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// SHARED
// =============================================================================

// deleteByID removes one row; table names are constants from this file.
func (c conn) deleteByID(ctx context.Context, table, entity, id string) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return commerce.NotFound(entity, id)
	}
	return nil
}
