package commerce_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/commerce/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// seqIDs returns a generator producing prefix-0001, prefix-0002, ...
func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

type fixture struct {
	svc   *commerce.Service
	store commerce.Store
	clock *testClock
}

func newFixture(t *testing.T, st commerce.Store) *fixture {
	t.Helper()
	clock := newClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	svc := commerce.NewService(st, commerce.Options{
		Location: time.UTC,
		Now:      clock.Now,
		NewID:    seqIDs("id"),
	})
	return &fixture{svc: svc, store: st, clock: clock}
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, store.NewMemory())
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addProduct(t *testing.T, st commerce.ProductStore, id, price string, stock int64, cat commerce.Category) {
	t.Helper()
	require.NoError(t, st.SaveProduct(context.Background(), commerce.Product{
		ID:       commerce.ProductID(id),
		Name:     "Product " + id,
		Price:    money(price),
		Stock:    stock,
		Category: cat,
	}))
}

func stockOf(t *testing.T, st commerce.ProductStore, id string) int64 {
	t.Helper()
	p, err := st.GetProduct(context.Background(), commerce.ProductID(id))
	require.NoError(t, err)
	return p.Stock
}

func march2025() commerce.Period {
	return commerce.Period{Month: time.March, Year: 2025}
}
