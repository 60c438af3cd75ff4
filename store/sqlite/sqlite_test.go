package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedProduct(t *testing.T, store *sqlite.Store, id string, price string, stock int64) {
	t.Helper()
	require.NoError(t, store.SaveProduct(context.Background(), commerce.Product{
		ID:       commerce.ProductID(id),
		Name:     "Product " + id,
		Price:    d(price),
		Stock:    stock,
		Category: commerce.CategoryHome,
	}))
}

// =============================================================================
// STOCK
// =============================================================================

func TestAddStock_FloorEnforcedInStatement(t *testing.T) {
	// GIVEN: Stock 3
	// WHEN: AddStock(-5)
	// THEN: InsufficientStockError, stock unchanged

	store := newTestStore(t)
	seedProduct(t, store, "p-1", "10", 3)
	ctx := context.Background()

	_, err := store.AddStock(ctx, "p-1", -5)

	var stockErr *commerce.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(3), stockErr.Available)

	p, err := store.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Stock)
}

func TestAddStock_UnknownProduct(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddStock(context.Background(), "ghost", 1)

	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestLedgerOnSQLite_ConcurrentDebits(t *testing.T) {
	store := newTestStore(t)
	seedProduct(t, store, "p-1", "10", 5)
	ledger := commerce.NewInventoryLedger(store)
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.AdjustStock(ctx, "p-1", -1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	p, err := store.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Stock)
}

func TestCompareAndSwapStock(t *testing.T) {
	store := newTestStore(t)
	seedProduct(t, store, "p-1", "10", 5)
	ctx := context.Background()

	swapped, err := store.CompareAndSwapStock(ctx, "p-1", 4, 1)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = store.CompareAndSwapStock(ctx, "p-1", 5, 1)
	require.NoError(t, err)
	assert.True(t, swapped)

	_, err = store.CompareAndSwapStock(ctx, "ghost", 0, 1)
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestInvoices_RangeIsInclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := func(id string, ts time.Time) commerce.Invoice {
		return commerce.Invoice{
			ID:          commerce.InvoiceID(id),
			UserID:      "u-1",
			Lines:       []commerce.LineItem{{ProductID: "p-1", Quantity: 2, UnitPrice: d("1.50")}},
			TotalAmount: d("3.00"),
			CreatedAt:   ts,
		}
	}
	start, end := commerce.Period{Month: time.March, Year: 2025}.Bounds(time.UTC)

	require.NoError(t, store.AppendInvoice(ctx, at("before", start.Add(-time.Nanosecond))))
	require.NoError(t, store.AppendInvoice(ctx, at("first", start)))
	require.NoError(t, store.AppendInvoice(ctx, at("last", end)))
	require.NoError(t, store.AppendInvoice(ctx, at("after", end.Add(time.Nanosecond))))

	got, err := store.LoadInvoiceRange(ctx, start, end)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, commerce.InvoiceID("first"), got[0].ID)
	assert.Equal(t, commerce.InvoiceID("last"), got[1].ID)
	require.Len(t, got[1].Lines, 1)
	assert.True(t, d("1.5").Equal(got[1].Lines[0].UnitPrice))
	assert.True(t, end.Equal(got[1].CreatedAt))
}

func TestInvoices_UpdateReplacesLines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	inv := commerce.Invoice{
		ID:     "i-1",
		UserID: "u-1",
		Lines: []commerce.LineItem{
			{ProductID: "a", Quantity: 1, UnitPrice: d("1")},
			{ProductID: "b", Quantity: 1, UnitPrice: d("2")},
		},
		TotalAmount: d("3"),
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.AppendInvoice(ctx, inv))

	inv.Lines = []commerce.LineItem{{ProductID: "c", Quantity: 4, UnitPrice: d("1")}}
	inv.TotalAmount = d("4")
	require.NoError(t, store.UpdateInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, commerce.ProductID("c"), got.Lines[0].ProductID)

	require.NoError(t, store.DeleteInvoice(ctx, "i-1"))
	_, err = store.GetInvoice(ctx, "i-1")
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestLatestSnapshotsPerMonth_WindowQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	save := func(id string, month time.Month, year int, created time.Time) {
		require.NoError(t, store.SaveSnapshot(ctx, commerce.Snapshot{
			ID:               commerce.SnapshotID(id),
			Period:           commerce.Period{Month: month, Year: year},
			TotalSalesAmount: d("1"),
			MostSoldProducts: []commerce.ProductSales{{ProductID: "p", TotalUnitsSold: 1, TotalAmount: d("1")}},
			SalesByCategory:  []commerce.CategorySales{{Category: commerce.CategoryHome, TotalUnitsSold: 1, TotalAmount: d("1")}},
			CreatedAt:        created,
		}))
	}
	save("a", time.April, 2025, t1)
	save("b", time.April, 2025, t1.Add(time.Second))
	save("c", time.April, 2025, t1.Add(time.Second)) // tie with b, greater id
	save("d", time.February, 2025, t1)
	save("e", time.April, 2024, t1.Add(time.Hour))

	got, err := store.LatestSnapshotsPerMonth(ctx, 2025)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, commerce.SnapshotID("d"), got[0].ID)
	assert.Equal(t, commerce.SnapshotID("c"), got[1].ID)
	require.Len(t, got[1].MostSoldProducts, 1)
	assert.Equal(t, commerce.CategoryHome, got[1].SalesByCategory[0].Category)

	// Same answer as the pure reduction.
	all, err := store.ListSnapshotsByYear(ctx, 2025)
	require.NoError(t, err)
	pure := commerce.LatestPerMonth(all)
	require.Len(t, pure, 2)
	assert.Equal(t, got[1].ID, pure[1].ID)
}

func TestSaveSnapshot_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := commerce.Snapshot{ID: "s-1", Period: commerce.Period{Month: time.May, Year: 2025}, TotalSalesAmount: d("0"), CreatedAt: time.Now()}

	require.NoError(t, store.SaveSnapshot(ctx, s))
	err := store.SaveSnapshot(ctx, s)

	assert.ErrorIs(t, err, commerce.ErrDuplicateEntity)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	seedProduct(t, store, "p-1", "10", 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s commerce.Store) error {
		if _, err := commerce.NewInventoryLedger(s).AdjustStock(ctx, "p-1", -3); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	p, err := store.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stock)
}

func TestCheckoutOnSQLite(t *testing.T) {
	// GIVEN: A (10, stock 5)
	// WHEN: Selling 3, then 3 again
	// THEN: First sale leaves 2, second is refused without a trace

	store := newTestStore(t)
	seedProduct(t, store, "A", "10", 5)
	svc := commerce.NewService(store, commerce.Options{Location: time.UTC})
	ctx := context.Background()

	inv, err := svc.Checkout.Sell(ctx, "u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 3}})
	require.NoError(t, err)
	assert.True(t, d("30").Equal(inv.TotalAmount))

	_, err = svc.Checkout.Sell(ctx, "u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 3}})
	assert.ErrorIs(t, err, commerce.ErrInsufficientStock)

	p, err := store.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stock)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

// =============================================================================
// USERS
// =============================================================================

func TestUsers_UniqueEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	u := auth.User{ID: "u-1", Username: "ann", Email: "ann@example.com", Role: auth.RoleEmployee, PasswordHash: "x", CreatedAt: now, UpdatedAt: now}

	require.NoError(t, store.CreateUser(ctx, u))

	u.ID = "u-2"
	err := store.CreateUser(ctx, u)
	assert.ErrorIs(t, err, commerce.ErrDuplicateEntity)

	got, err := store.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, commerce.UserID("u-1"), got.ID)
	assert.Equal(t, auth.RoleEmployee, got.Role)

	_, err = store.GetUser(ctx, "u-2")
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}
