/*
history.go - Sales history: snapshot persistence and yearly reconstruction

PURPOSE:
  Keeps every snapshot ever produced and answers "what does the year look
  like" by picking, for each month, the most recent snapshot.

LATEST-WINS RULE:
  For a given (month, year) the authoritative snapshot has the greatest
  CreatedAt. Equal CreatedAt values are broken by the greater ID. The rule
  is the same whether the store answers it (LatestSnapshotFinder) or the
  history reduces a plain list (LatestPerMonth).

CORRECTIONS:
  Amend never edits a snapshot. It saves a new one for the same period with
  AmendsID pointing at the source, and the latest-wins rule makes it
  authoritative.

CURRENT MONTH:
  GetOrCreateCurrentMonth returns the latest snapshot of the month that
  contains Now() in Location, aggregating on the spot when none exists.
  Two concurrent callers may both aggregate; both snapshots are saved and
  the later one wins on read.

SEE ALSO:
  - aggregator.go: produces snapshots
  - report/service.go: consumes ReconstructYear
*/
package commerce

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MonthAggregator is what History needs from the Aggregator.
type MonthAggregator interface {
	Aggregate(ctx context.Context, p Period) (*Snapshot, error)
}

type History struct {
	Snapshots  SnapshotStore
	Aggregator MonthAggregator
	Location   *time.Location
	Now        func() time.Time
	NewID      func() string
}

// Save appends a snapshot. It never replaces an existing one.
func (h *History) Save(ctx context.Context, s Snapshot) error {
	if err := s.Period.Validate(); err != nil {
		return err
	}
	return h.Snapshots.SaveSnapshot(ctx, s)
}

func (h *History) Get(ctx context.Context, id SnapshotID) (*Snapshot, error) {
	return h.Snapshots.GetSnapshot(ctx, id)
}

func (h *History) List(ctx context.Context) ([]Snapshot, error) {
	return h.Snapshots.ListSnapshots(ctx)
}

func (h *History) Delete(ctx context.Context, id SnapshotID) error {
	return h.Snapshots.DeleteSnapshot(ctx, id)
}

// ReconstructYear returns at most one snapshot per month of year, the
// latest for each, ordered by month ascending.
func (h *History) ReconstructYear(ctx context.Context, year int) ([]Snapshot, error) {
	if year <= 0 {
		return nil, &PeriodError{Month: 1, Year: year}
	}

	var (
		result []Snapshot
		err    error
	)
	if finder, ok := h.Snapshots.(LatestSnapshotFinder); ok {
		result, err = finder.LatestSnapshotsPerMonth(ctx, year)
	} else {
		var all []Snapshot
		all, err = h.Snapshots.ListSnapshotsByYear(ctx, year)
		result = LatestPerMonth(all)
	}
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, &NotFoundError{Entity: "sales history", ID: strconv.Itoa(year)}
	}
	return result, nil
}

// Latest returns the authoritative snapshot for one period.
func (h *History) Latest(ctx context.Context, p Period) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	all, err := h.Snapshots.ListSnapshotsByYear(ctx, p.Year)
	if err != nil {
		return nil, err
	}

	var latest *Snapshot
	for i := range all {
		if all[i].Period.Month != p.Month {
			continue
		}
		if latest == nil || Newer(all[i], *latest) {
			latest = &all[i]
		}
	}
	if latest == nil {
		return nil, &NotFoundError{Entity: "snapshot", ID: p.String()}
	}
	return latest, nil
}

// GetOrCreateCurrentMonth returns the current month's latest snapshot,
// aggregating synchronously when there is none. Aggregation errors such as
// ErrNoInvoicesFound are returned unchanged.
func (h *History) GetOrCreateCurrentMonth(ctx context.Context) (*Snapshot, error) {
	current := PeriodOf(h.now(), h.Location)

	s, err := h.Latest(ctx, current)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return h.Aggregator.Aggregate(ctx, current)
}

// CurrentPeriod is the month containing Now() in the history's location.
func (h *History) CurrentPeriod() Period {
	return PeriodOf(h.now(), h.Location)
}

// =============================================================================
// AMENDMENTS
// =============================================================================

// Amendment carries the fields an administrator wants to correct.
// Nil fields are copied from the source snapshot.
type Amendment struct {
	TotalSalesAmount  *decimal.Decimal
	TotalProductsSold *int64
	TotalInvoices     *int
	MostSoldProducts  []ProductSales
	SalesByCategory   []CategorySales
}

func (a Amendment) validate() error {
	if a.TotalSalesAmount != nil && a.TotalSalesAmount.IsNegative() {
		return &ValidationError{Field: "total_sales_amount", Message: "must not be negative"}
	}
	if a.TotalProductsSold != nil && *a.TotalProductsSold < 0 {
		return &ValidationError{Field: "total_products_sold", Message: "must not be negative"}
	}
	if a.TotalInvoices != nil && *a.TotalInvoices < 0 {
		return &ValidationError{Field: "total_invoices", Message: "must not be negative"}
	}
	for _, row := range a.MostSoldProducts {
		if row.ProductID == "" || row.TotalUnitsSold < 0 || row.TotalAmount.IsNegative() {
			return &ValidationError{Field: "most_sold_products", Message: "rows need a product id and non-negative totals"}
		}
	}
	for _, row := range a.SalesByCategory {
		if row.Category == "" || row.TotalUnitsSold < 0 || row.TotalAmount.IsNegative() {
			return &ValidationError{Field: "sales_by_category", Message: "rows need a category and non-negative totals"}
		}
	}
	return nil
}

// Amend saves a corrected copy of snapshot id as a new version.
func (h *History) Amend(ctx context.Context, id SnapshotID, a Amendment) (*Snapshot, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	src, err := h.Snapshots.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *src
	next.ID = SnapshotID(h.newID())
	next.CreatedAt = h.now()
	next.AmendsID = src.ID
	next.MostSoldProducts = append([]ProductSales(nil), src.MostSoldProducts...)
	next.SalesByCategory = append([]CategorySales(nil), src.SalesByCategory...)

	if a.TotalSalesAmount != nil {
		next.TotalSalesAmount = *a.TotalSalesAmount
	}
	if a.TotalProductsSold != nil {
		next.TotalProductsSold = *a.TotalProductsSold
	}
	if a.TotalInvoices != nil {
		next.TotalInvoices = *a.TotalInvoices
	}
	if a.MostSoldProducts != nil {
		next.MostSoldProducts = append([]ProductSales(nil), a.MostSoldProducts...)
	}
	if a.SalesByCategory != nil {
		next.SalesByCategory = append([]CategorySales(nil), a.SalesByCategory...)
		next.TotalCategorySold = len(next.SalesByCategory)
	}

	if err := h.Save(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// =============================================================================
// LATEST PER MONTH - Pure reduction
// =============================================================================

// Newer reports whether a supersedes b under the latest-wins rule.
func Newer(a, b Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// LatestPerMonth keeps the newest snapshot of each month and orders the
// result by month ascending. Input may span several years only if the
// caller wants them merged by month; ReconstructYear filters by year first.
func LatestPerMonth(snapshots []Snapshot) []Snapshot {
	latest := make(map[time.Month]Snapshot)
	for _, s := range snapshots {
		cur, ok := latest[s.Period.Month]
		if !ok || Newer(s, cur) {
			latest[s.Period.Month] = s
		}
	}

	result := make([]Snapshot, 0, len(latest))
	for _, s := range latest {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.Month < result[j].Period.Month
	})
	return result
}

func (h *History) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *History) newID() string {
	if h.NewID == nil {
		return NewID()
	}
	return h.NewID()
}
