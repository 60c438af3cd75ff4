/*
checkout.go - Sale workflow: debit stock, then write the invoice

PURPOSE:
  Turns a basket of (product, quantity) pairs into one invoice while
  keeping stock consistent. A sale either debits every product and records
  the invoice, or leaves stock exactly as it found it.

STEPS:
  1. Validate the basket (user, at least one line, positive quantities)
  2. Resolve every product and check the summed quantity per product
     against current stock, before touching anything
  3. Price each line at the product's current price
  4. Debit each distinct product through the InventoryLedger
  5. Append the invoice

ATOMICITY:
  On a TxStore, steps 2-5 run inside WithTx and a failure rolls back.
  Otherwise (or additionally) every applied debit is credited back when a
  later step fails. A failed credit is logged; it can not be retried here.

SEE ALSO:
  - ledger.go: single-product adjustments
  - invoice.go: invoice construction
*/
package commerce

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SaleLine is one requested product of a sale.
type SaleLine struct {
	ProductID ProductID
	Quantity  int64
}

type Checkout struct {
	Store      Store
	Invoices   *InvoiceBook
	MaxRetries int
	Logger     logrus.FieldLogger
}

// Sell records a sale for userID. It returns the stored invoice.
func (c *Checkout) Sell(ctx context.Context, userID UserID, lines []SaleLine) (*Invoice, error) {
	if err := validateSale(userID, lines); err != nil {
		return nil, err
	}

	if tx, ok := c.Store.(TxStore); ok {
		var inv *Invoice
		err := tx.WithTx(ctx, func(s Store) error {
			var err error
			inv, err = c.sell(ctx, s, userID, lines)
			return err
		})
		if err != nil {
			return nil, err
		}
		return inv, nil
	}
	return c.sell(ctx, c.Store, userID, lines)
}

func validateSale(userID UserID, lines []SaleLine) error {
	if userID == "" {
		return &ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if len(lines) == 0 {
		return &ValidationError{Field: "products", Message: "at least one product is required"}
	}
	for i, l := range lines {
		if l.ProductID == "" {
			return &ValidationError{Field: fmt.Sprintf("products[%d].product_id", i), Message: "product id is required"}
		}
		if l.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("products[%d].quantity", i), Message: "quantity must be positive"}
		}
	}
	return nil
}

type debit struct {
	productID ProductID
	quantity  int64
}

func (c *Checkout) sell(ctx context.Context, s Store, userID UserID, lines []SaleLine) (*Invoice, error) {
	// Resolve and sum per product, keeping first-seen order.
	products := make(map[ProductID]*Product)
	var debits []debit
	index := make(map[ProductID]int)

	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			p, err := s.GetProduct(ctx, l.ProductID)
			if err != nil {
				return nil, err
			}
			products[l.ProductID] = p
			index[l.ProductID] = len(debits)
			debits = append(debits, debit{productID: l.ProductID})
		}
		debits[index[l.ProductID]].quantity += l.Quantity
	}

	for _, d := range debits {
		if p := products[d.productID]; p.Stock < d.quantity {
			return nil, &InsufficientStockError{ProductID: d.productID, Available: p.Stock, Requested: d.quantity}
		}
	}

	invoiceLines := make([]LineItem, len(lines))
	for i, l := range lines {
		invoiceLines[i] = LineItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: products[l.ProductID].Price,
		}
	}

	ledger := &InventoryLedger{Products: s, MaxRetries: c.MaxRetries}
	var applied []debit
	for _, d := range debits {
		if _, err := ledger.AdjustStock(ctx, d.productID, -d.quantity); err != nil {
			c.compensate(ctx, ledger, applied)
			return nil, err
		}
		applied = append(applied, d)
	}

	inv, err := c.Invoices.createIn(ctx, s, userID, invoiceLines)
	if err != nil {
		c.compensate(ctx, ledger, applied)
		return nil, err
	}
	return inv, nil
}

// compensate credits back debits that were already applied.
func (c *Checkout) compensate(ctx context.Context, ledger *InventoryLedger, applied []debit) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range applied {
		if _, err := ledger.AdjustStock(ctx, d.productID, d.quantity); err != nil && c.Logger != nil {
			c.Logger.WithFields(logrus.Fields{
				"module":     "commerce",
				"function":   "Checkout.compensate",
				"product_id": d.productID,
				"quantity":   d.quantity,
			}).WithError(err).Error("failed to restore stock after aborted sale")
		}
	}
}
