package commerce

import (
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// SERVICE - Wires the components over one Store
// =============================================================================

// Options configure a Service. Zero values fall back to time.Now, NewID and
// time.Local.
type Options struct {
	Location   *time.Location
	Now        func() time.Time
	NewID      func() string
	MaxRetries int
	Logger     logrus.FieldLogger
}

type Service struct {
	Store      Store
	Ledger     *InventoryLedger
	Invoices   *InvoiceBook
	Aggregator *Aggregator
	History    *History
	Checkout   *Checkout
	Location   *time.Location
}

func NewService(store Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxStockRetries
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	invoices := &InvoiceBook{Invoices: store, Location: opts.Location, Now: opts.Now, NewID: opts.NewID}
	history := &History{Snapshots: store, Location: opts.Location, Now: opts.Now, NewID: opts.NewID}
	aggregator := &Aggregator{Invoices: invoices, Products: store, History: history, Now: opts.Now, NewID: opts.NewID}
	history.Aggregator = aggregator

	return &Service{
		Store:      store,
		Ledger:     &InventoryLedger{Products: store, MaxRetries: opts.MaxRetries},
		Invoices:   invoices,
		Aggregator: aggregator,
		History:    history,
		Checkout: &Checkout{
			Store:      store,
			Invoices:   invoices,
			MaxRetries: opts.MaxRetries,
			Logger:     opts.Logger,
		},
		Location: opts.Location,
	}
}
