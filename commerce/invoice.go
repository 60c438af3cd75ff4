package commerce

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// INVOICE BOOK - Creates invoices and answers period queries
// =============================================================================

// InvoiceBook owns invoice creation. It computes totals and stamps the
// creation time; it does not touch stock (see Checkout for that).
type InvoiceBook struct {
	Invoices InvoiceStore
	Location *time.Location
	Now      func() time.Time
	NewID    func() string
}

func NewInvoiceBook(invoices InvoiceStore, loc *time.Location) *InvoiceBook {
	return &InvoiceBook{Invoices: invoices, Location: loc, Now: time.Now, NewID: NewID}
}

// CreateInvoice validates lines, computes the total and persists a new invoice.
func (b *InvoiceBook) CreateInvoice(ctx context.Context, userID UserID, lines []LineItem) (*Invoice, error) {
	return b.createIn(ctx, b.Invoices, userID, lines)
}

func (b *InvoiceBook) createIn(ctx context.Context, store InvoiceStore, userID UserID, lines []LineItem) (*Invoice, error) {
	inv, err := b.build(userID, lines)
	if err != nil {
		return nil, err
	}
	if err := store.AppendInvoice(ctx, *inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (b *InvoiceBook) build(userID UserID, lines []LineItem) (*Invoice, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}

	copied := append([]LineItem(nil), lines...)
	return &Invoice{
		ID:          InvoiceID(b.newID()),
		UserID:      userID,
		Lines:       copied,
		TotalAmount: InvoiceTotal(copied),
		CreatedAt:   b.now(),
	}, nil
}

// ValidateLines enforces: at least one line, product id set, quantity > 0,
// unit price >= 0.
func ValidateLines(lines []LineItem) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Message: "at least one line is required"}
	}
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.ProductID == "" {
			return &ValidationError{Field: field + ".product_id", Message: "product id is required"}
		}
		if l.Quantity <= 0 {
			return &ValidationError{Field: field + ".quantity", Message: "quantity must be positive"}
		}
		if l.UnitPrice.IsNegative() {
			return &ValidationError{Field: field + ".unit_price", Message: "unit price must not be negative"}
		}
	}
	return nil
}

// QueryByPeriod returns the invoices created inside the period, inclusive at
// both ends, in the book's reference location.
func (b *InvoiceBook) QueryByPeriod(ctx context.Context, p Period) ([]Invoice, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	from, to := p.Bounds(b.Location)
	return b.Invoices.LoadInvoiceRange(ctx, from, to)
}

func (b *InvoiceBook) Get(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return b.Invoices.GetInvoice(ctx, id)
}

func (b *InvoiceBook) List(ctx context.Context) ([]Invoice, error) {
	return b.Invoices.ListInvoices(ctx)
}

func (b *InvoiceBook) ListByUser(ctx context.Context, userID UserID) ([]Invoice, error) {
	return b.Invoices.ListInvoicesByUser(ctx, userID)
}

// Correct replaces an invoice's lines and recomputes its total. It is an
// administrative fix: stock is not re-balanced and CreatedAt is kept, so the
// invoice stays in its original period.
func (b *InvoiceBook) Correct(ctx context.Context, id InvoiceID, lines []LineItem) (*Invoice, error) {
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}
	inv, err := b.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = append([]LineItem(nil), lines...)
	inv.TotalAmount = InvoiceTotal(inv.Lines)
	if err := b.Invoices.UpdateInvoice(ctx, *inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (b *InvoiceBook) Delete(ctx context.Context, id InvoiceID) error {
	return b.Invoices.DeleteInvoice(ctx, id)
}

func (b *InvoiceBook) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func (b *InvoiceBook) newID() string {
	if b.NewID == nil {
		return NewID()
	}
	return b.NewID()
}
