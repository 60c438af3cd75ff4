package commerce_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/commerce/store"
)

// storesUnderTest runs each case against the plain store (compensation
// path) and the transactional one (rollback path).
func storesUnderTest() map[string]func() commerce.Store {
	return map[string]func() commerce.Store{
		"memory":    func() commerce.Store { return store.NewMemory() },
		"tx-memory": func() commerce.Store { return store.NewTxMemory() },
	}
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestSell_DebitsStockAndRecordsInvoice(t *testing.T) {
	// GIVEN: Product A priced 10 with stock 5
	// WHEN: Selling 3
	// THEN: Stock 2, invoice total 30 with price-at-sale lines

	for name, newStore := range storesUnderTest() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newStore())
			addProduct(t, f.store, "A", "10", 5, commerce.CategoryElectronics)

			inv, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 3}})
			require.NoError(t, err)

			assert.Equal(t, int64(2), stockOf(t, f.store, "A"))
			assert.True(t, money("30").Equal(inv.TotalAmount))
			require.Len(t, inv.Lines, 1)
			assert.True(t, money("10").Equal(inv.Lines[0].UnitPrice))
			assert.Equal(t, f.clock.Now(), inv.CreatedAt)

			stored, err := f.svc.Invoices.Get(context.Background(), inv.ID)
			require.NoError(t, err)
			assert.Equal(t, commerce.UserID("u-1"), stored.UserID)
		})
	}
}

func TestSell_PriceAtSaleSurvivesRepricing(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	addProduct(t, f.store, "A", "10", 5, commerce.CategoryElectronics)

	inv, err := f.svc.Checkout.Sell(ctx, "u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 1}})
	require.NoError(t, err)

	p, err := f.store.GetProduct(ctx, "A")
	require.NoError(t, err)
	p.Price = money("12.50")
	require.NoError(t, f.store.SaveProduct(ctx, *p))

	stored, err := f.svc.Invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, money("10").Equal(stored.Lines[0].UnitPrice))
	assert.True(t, money("10").Equal(stored.TotalAmount))
}

// =============================================================================
// FAILURES LEAVE NO TRACE
// =============================================================================

func TestSell_InsufficientStock_NoChange(t *testing.T) {
	// GIVEN: Stock 2
	// WHEN: Selling 3
	// THEN: ErrInsufficientStock, stock 2, no invoice

	for name, newStore := range storesUnderTest() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newStore())
			addProduct(t, f.store, "A", "10", 2, commerce.CategoryElectronics)

			_, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 3}})

			assert.ErrorIs(t, err, commerce.ErrInsufficientStock)
			assert.Equal(t, int64(2), stockOf(t, f.store, "A"))
			invoices, err := f.svc.Invoices.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, invoices)
		})
	}
}

func TestSell_DuplicateLinesSummedAgainstStock(t *testing.T) {
	f := newMemoryFixture(t)
	addProduct(t, f.store, "A", "10", 3, commerce.CategoryElectronics)

	_, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{
		{ProductID: "A", Quantity: 2},
		{ProductID: "A", Quantity: 2},
	})

	assert.ErrorIs(t, err, commerce.ErrInsufficientStock)
	assert.Equal(t, int64(3), stockOf(t, f.store, "A"))
}

func TestSell_UnknownProduct_NoChange(t *testing.T) {
	f := newMemoryFixture(t)
	addProduct(t, f.store, "A", "10", 3, commerce.CategoryElectronics)

	_, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{
		{ProductID: "A", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})

	assert.ErrorIs(t, err, commerce.ErrNotFound)
	assert.Equal(t, int64(3), stockOf(t, f.store, "A"))
}

func TestSell_InvalidInput(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		user  commerce.UserID
		lines []commerce.SaleLine
	}{
		"no user":       {"", []commerce.SaleLine{{ProductID: "A", Quantity: 1}}},
		"no lines":      {"u-1", nil},
		"zero quantity": {"u-1", []commerce.SaleLine{{ProductID: "A", Quantity: 0}}},
		"no product":    {"u-1", []commerce.SaleLine{{Quantity: 1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Checkout.Sell(ctx, tc.user, tc.lines)
			assert.ErrorIs(t, err, commerce.ErrInvalidInput)
		})
	}
}

// failingInvoices refuses every invoice append.
type failingInvoices struct {
	*store.Memory
}

var errDiskFull = errors.New("disk full")

func (failingInvoices) AppendInvoice(context.Context, commerce.Invoice) error {
	return errDiskFull
}

func TestSell_InvoiceWriteFails_StockRestored(t *testing.T) {
	// GIVEN: Two products in stock, an invoice store that fails
	// WHEN: Selling both
	// THEN: The error surfaces and both debits are compensated

	mem := store.NewMemory()
	f := newFixture(t, failingInvoices{mem})
	addProduct(t, mem, "A", "10", 5, commerce.CategoryElectronics)
	addProduct(t, mem, "B", "3", 4, commerce.CategoryHome)

	_, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{
		{ProductID: "A", Quantity: 2},
		{ProductID: "B", Quantity: 4},
	})

	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, int64(5), stockOf(t, mem, "A"))
	assert.Equal(t, int64(4), stockOf(t, mem, "B"))
}

// contendedStock loses every stock swap on one product, as if another
// writer always got there first.
type contendedStock struct {
	*store.Memory
	product commerce.ProductID
}

func (c contendedStock) CompareAndSwapStock(ctx context.Context, id commerce.ProductID, expected, next int64) (bool, error) {
	if id == c.product {
		return false, nil
	}
	return c.Memory.CompareAndSwapStock(ctx, id, expected, next)
}

func TestSell_DebitLostToConcurrentWriter_EarlierDebitsRestored(t *testing.T) {
	// GIVEN: Enough stock for both products, but every swap on B loses
	mem := store.NewMemory()
	f := newFixture(t, contendedStock{Memory: mem, product: "B"})
	addProduct(t, mem, "A", "10", 5, commerce.CategoryElectronics)
	addProduct(t, mem, "B", "3", 4, commerce.CategoryHome)

	// WHEN: Selling A then B
	inv, err := f.svc.Checkout.Sell(context.Background(), "u-1", []commerce.SaleLine{
		{ProductID: "A", Quantity: 2},
		{ProductID: "B", Quantity: 1},
	})

	// THEN: The sale fails as a concurrent modification
	assert.Nil(t, inv)
	assert.ErrorIs(t, err, commerce.ErrConcurrentModification)

	// AND: A's debit is credited back and no invoice was written
	assert.Equal(t, int64(5), stockOf(t, mem, "A"))
	assert.Equal(t, int64(4), stockOf(t, mem, "B"))
	invoices, err := mem.ListInvoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
