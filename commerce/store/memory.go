// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every collection in maps behind one mutex. Stock changes go
// through CompareAndSwapStock only, so the ledger exercises its retry loop.
type Memory struct {
	mu        sync.RWMutex
	products  map[commerce.ProductID]commerce.Product
	invoices  map[commerce.InvoiceID]commerce.Invoice
	snapshots map[commerce.SnapshotID]commerce.Snapshot
	users     map[commerce.UserID]auth.User
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.products = make(map[commerce.ProductID]commerce.Product)
	m.invoices = make(map[commerce.InvoiceID]commerce.Invoice)
	m.snapshots = make(map[commerce.SnapshotID]commerce.Snapshot)
	m.users = make(map[commerce.UserID]auth.User)
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// -----------------------------------------------------------------------------
// Products
// -----------------------------------------------------------------------------

func (m *Memory) GetProduct(_ context.Context, id commerce.ProductID) (*commerce.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id)
}

func (m *Memory) getProductLocked(id commerce.ProductID) (*commerce.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, commerce.NotFound("product", string(id))
	}
	return &p, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]commerce.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProductsLocked(), nil
}

func (m *Memory) listProductsLocked() []commerce.Product {
	result := make([]commerce.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) SaveProduct(_ context.Context, p commerce.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) DeleteProduct(_ context.Context, id commerce.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteProductLocked(id)
}

func (m *Memory) deleteProductLocked(id commerce.ProductID) error {
	if _, ok := m.products[id]; !ok {
		return commerce.NotFound("product", string(id))
	}
	delete(m.products, id)
	return nil
}

func (m *Memory) CompareAndSwapStock(_ context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casLocked(id, expected, next)
}

func (m *Memory) casLocked(id commerce.ProductID, expected, next int64) (bool, error) {
	p, ok := m.products[id]
	if !ok {
		return false, commerce.NotFound("product", string(id))
	}
	if p.Stock != expected {
		return false, nil
	}
	p.Stock = next
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return true, nil
}

// -----------------------------------------------------------------------------
// Invoices
// -----------------------------------------------------------------------------

func (m *Memory) AppendInvoice(_ context.Context, inv commerce.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendInvoiceLocked(inv)
}

func (m *Memory) appendInvoiceLocked(inv commerce.Invoice) error {
	if _, exists := m.invoices[inv.ID]; exists {
		return commerce.ErrDuplicateEntity
	}
	m.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, commerce.NotFound("invoice", string(id))
	}
	inv = copyInvoice(inv)
	return &inv, nil
}

func (m *Memory) ListInvoices(_ context.Context) ([]commerce.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterInvoicesLocked(func(commerce.Invoice) bool { return true }), nil
}

func (m *Memory) ListInvoicesByUser(_ context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterInvoicesLocked(func(inv commerce.Invoice) bool { return inv.UserID == userID }), nil
}

func (m *Memory) LoadInvoiceRange(_ context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterInvoicesLocked(func(inv commerce.Invoice) bool {
		return !inv.CreatedAt.Before(from) && !inv.CreatedAt.After(to)
	}), nil
}

func (m *Memory) filterInvoicesLocked(keep func(commerce.Invoice) bool) []commerce.Invoice {
	var result []commerce.Invoice
	for _, inv := range m.invoices {
		if keep(inv) {
			result = append(result, copyInvoice(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) UpdateInvoice(_ context.Context, inv commerce.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; !ok {
		return commerce.NotFound("invoice", string(inv.ID))
	}
	m.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (m *Memory) DeleteInvoice(_ context.Context, id commerce.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[id]; !ok {
		return commerce.NotFound("invoice", string(id))
	}
	delete(m.invoices, id)
	return nil
}

func copyInvoice(inv commerce.Invoice) commerce.Invoice {
	inv.Lines = append([]commerce.LineItem(nil), inv.Lines...)
	return inv
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

func (m *Memory) SaveSnapshot(_ context.Context, s commerce.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.snapshots[s.ID]; exists {
		return commerce.ErrDuplicateEntity
	}
	m.snapshots[s.ID] = copySnapshot(s)
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[id]
	if !ok {
		return nil, commerce.NotFound("snapshot", string(id))
	}
	s = copySnapshot(s)
	return &s, nil
}

func (m *Memory) ListSnapshots(_ context.Context) ([]commerce.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterSnapshotsLocked(func(commerce.Snapshot) bool { return true }), nil
}

func (m *Memory) ListSnapshotsByYear(_ context.Context, year int) ([]commerce.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterSnapshotsLocked(func(s commerce.Snapshot) bool { return s.Period.Year == year }), nil
}

func (m *Memory) filterSnapshotsLocked(keep func(commerce.Snapshot) bool) []commerce.Snapshot {
	var result []commerce.Snapshot
	for _, s := range m.snapshots {
		if keep(s) {
			result = append(result, copySnapshot(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period.Before(result[j].Period)
		}
		return commerce.Newer(result[i], result[j])
	})
	return result
}

func (m *Memory) DeleteSnapshot(_ context.Context, id commerce.SnapshotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return commerce.NotFound("snapshot", string(id))
	}
	delete(m.snapshots, id)
	return nil
}

func copySnapshot(s commerce.Snapshot) commerce.Snapshot {
	s.MostSoldProducts = append([]commerce.ProductSales(nil), s.MostSoldProducts...)
	s.SalesByCategory = append([]commerce.CategorySales(nil), s.SalesByCategory...)
	return s
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; exists {
		return commerce.ErrDuplicateEntity
	}
	if m.emailTakenLocked(u.Email, u.ID) {
		return commerce.ErrDuplicateEntity
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id commerce.UserID) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, commerce.NotFound("user", string(id))
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, commerce.NotFound("user", email)
}

func (m *Memory) ListUsers(_ context.Context) ([]auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]auth.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (m *Memory) UpdateUser(_ context.Context, u auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return commerce.NotFound("user", string(u.ID))
	}
	if m.emailTakenLocked(u.Email, u.ID) {
		return commerce.ErrDuplicateEntity
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id commerce.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return commerce.NotFound("user", string(id))
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) emailTakenLocked(email string, except commerce.UserID) bool {
	for _, u := range m.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Other callers block until fn returns.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(commerce.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	saved := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(saved)
		return err
	}
	return nil
}

type memorySnapshot struct {
	products  map[commerce.ProductID]commerce.Product
	invoices  map[commerce.InvoiceID]commerce.Invoice
	snapshots map[commerce.SnapshotID]commerce.Snapshot
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		products:  make(map[commerce.ProductID]commerce.Product, len(tm.products)),
		invoices:  make(map[commerce.InvoiceID]commerce.Invoice, len(tm.invoices)),
		snapshots: make(map[commerce.SnapshotID]commerce.Snapshot, len(tm.snapshots)),
	}
	for k, v := range tm.products {
		s.products[k] = v
	}
	for k, v := range tm.invoices {
		s.invoices[k] = v
	}
	for k, v := range tm.snapshots {
		s.snapshots[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.products = s.products
	tm.invoices = s.invoices
	tm.snapshots = s.snapshots
}

// txMemoryView runs against the parent's maps without taking the lock,
// which WithTx already holds.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetProduct(_ context.Context, id commerce.ProductID) (*commerce.Product, error) {
	return tv.parent.getProductLocked(id)
}

func (tv *txMemoryView) ListProducts(_ context.Context) ([]commerce.Product, error) {
	return tv.parent.listProductsLocked(), nil
}

func (tv *txMemoryView) SaveProduct(_ context.Context, p commerce.Product) error {
	tv.parent.products[p.ID] = p
	return nil
}

func (tv *txMemoryView) DeleteProduct(_ context.Context, id commerce.ProductID) error {
	return tv.parent.deleteProductLocked(id)
}

func (tv *txMemoryView) CompareAndSwapStock(_ context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	return tv.parent.casLocked(id, expected, next)
}

func (tv *txMemoryView) AppendInvoice(_ context.Context, inv commerce.Invoice) error {
	return tv.parent.appendInvoiceLocked(inv)
}

func (tv *txMemoryView) GetInvoice(_ context.Context, id commerce.InvoiceID) (*commerce.Invoice, error) {
	inv, ok := tv.parent.invoices[id]
	if !ok {
		return nil, commerce.NotFound("invoice", string(id))
	}
	inv = copyInvoice(inv)
	return &inv, nil
}

func (tv *txMemoryView) ListInvoices(_ context.Context) ([]commerce.Invoice, error) {
	return tv.parent.filterInvoicesLocked(func(commerce.Invoice) bool { return true }), nil
}

func (tv *txMemoryView) ListInvoicesByUser(_ context.Context, userID commerce.UserID) ([]commerce.Invoice, error) {
	return tv.parent.filterInvoicesLocked(func(inv commerce.Invoice) bool { return inv.UserID == userID }), nil
}

func (tv *txMemoryView) LoadInvoiceRange(_ context.Context, from, to time.Time) ([]commerce.Invoice, error) {
	return tv.parent.filterInvoicesLocked(func(inv commerce.Invoice) bool {
		return !inv.CreatedAt.Before(from) && !inv.CreatedAt.After(to)
	}), nil
}

func (tv *txMemoryView) UpdateInvoice(_ context.Context, inv commerce.Invoice) error {
	if _, ok := tv.parent.invoices[inv.ID]; !ok {
		return commerce.NotFound("invoice", string(inv.ID))
	}
	tv.parent.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (tv *txMemoryView) DeleteInvoice(_ context.Context, id commerce.InvoiceID) error {
	if _, ok := tv.parent.invoices[id]; !ok {
		return commerce.NotFound("invoice", string(id))
	}
	delete(tv.parent.invoices, id)
	return nil
}

func (tv *txMemoryView) SaveSnapshot(_ context.Context, s commerce.Snapshot) error {
	if _, exists := tv.parent.snapshots[s.ID]; exists {
		return commerce.ErrDuplicateEntity
	}
	tv.parent.snapshots[s.ID] = copySnapshot(s)
	return nil
}

func (tv *txMemoryView) GetSnapshot(_ context.Context, id commerce.SnapshotID) (*commerce.Snapshot, error) {
	s, ok := tv.parent.snapshots[id]
	if !ok {
		return nil, commerce.NotFound("snapshot", string(id))
	}
	s = copySnapshot(s)
	return &s, nil
}

func (tv *txMemoryView) ListSnapshots(_ context.Context) ([]commerce.Snapshot, error) {
	return tv.parent.filterSnapshotsLocked(func(commerce.Snapshot) bool { return true }), nil
}

func (tv *txMemoryView) ListSnapshotsByYear(_ context.Context, year int) ([]commerce.Snapshot, error) {
	return tv.parent.filterSnapshotsLocked(func(s commerce.Snapshot) bool { return s.Period.Year == year }), nil
}

func (tv *txMemoryView) DeleteSnapshot(_ context.Context, id commerce.SnapshotID) error {
	if _, ok := tv.parent.snapshots[id]; !ok {
		return commerce.NotFound("snapshot", string(id))
	}
	delete(tv.parent.snapshots, id)
	return nil
}
