/*
sales.go - Sales, invoices, sales history and the narrative report

ENDPOINTS:
  POST   /api/sales                              Checkout (any user)
  GET    /api/invoices/{id}                      Invoice (owner or employee)
  GET    /api/invoices/user/{userID}             User's invoices (owner or employee)
  GET    /api/invoices                           All invoices (employee)
  GET    /api/invoices/period/{year}/{month}     Invoices of a month (employee)
  PUT    /api/invoices/{id}                      Correct lines (employee)
  DELETE /api/invoices/{id}                      Delete (employee)

  POST   /api/sales/history                      Aggregate a month (employee)
  GET    /api/sales/history                      Every snapshot ever saved
  GET    /api/sales/history/{year}               Latest snapshot per month
  GET    /api/sales/snapshots/{id}               One snapshot
  PATCH  /api/sales/snapshots/{id}               Amend (saves a new version)
  DELETE /api/sales/snapshots/{id}               Delete one version
  POST   /api/sales/report                       AI narrative of the current month

SEE ALSO:
  - commerce/checkout.go, commerce/aggregator.go, commerce/history.go
  - report/report.go
*/
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

// =============================================================================
// SALES
// =============================================================================

// CreateSale sells to the caller. Employees may sell on behalf of another
// user by setting user_id.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	userID := id.UserID
	if req.UserID != "" && req.UserID != string(id.UserID) {
		if !id.IsEmployee() {
			h.writeError(w, r, fmt.Errorf("%w: only employees can sell on behalf of another user", commerce.ErrForbidden))
			return
		}
		userID = commerce.UserID(req.UserID)
		if _, err := h.Auth.Get(r.Context(), userID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	lines := make([]commerce.SaleLine, len(req.Products))
	var units int64
	for i, l := range req.Products {
		lines[i] = commerce.SaleLine{ProductID: commerce.ProductID(l.ProductID), Quantity: l.Quantity}
		units += l.Quantity
	}

	inv, err := h.Commerce.Checkout.Sell(r.Context(), userID, lines)
	if err != nil {
		h.Metrics.RecordSale(outcomeOf(err), 0)
		h.writeError(w, r, err)
		return
	}
	h.Metrics.RecordSale(outcomeOf(nil), units)

	h.logger().WithFields(logrus.Fields{
		"invoice_id": inv.ID,
		"user_id":    inv.UserID,
		"total":      inv.TotalAmount.String(),
		"request_id": requestID(r),
	}).Info("sale recorded")

	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// =============================================================================
// INVOICES
// =============================================================================

// GetInvoice hides other users' invoices behind 404 for customers.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Commerce.Invoices.Get(r.Context(), commerce.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if id, _ := identityFrom(r.Context()); !canSee(id, inv.UserID) {
		h.writeError(w, r, commerce.NotFound("invoice", string(inv.ID)))
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

func (h *Handler) ListInvoicesByUser(w http.ResponseWriter, r *http.Request) {
	userID := commerce.UserID(chi.URLParam(r, "userID"))
	if id, _ := identityFrom(r.Context()); !canSee(id, userID) {
		h.writeError(w, r, fmt.Errorf("%w: invoices of another user", commerce.ErrForbidden))
		return
	}

	invoices, err := h.Commerce.Invoices.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTOs(invoices))
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Commerce.Invoices.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTOs(invoices))
}

func (h *Handler) ListInvoicesByPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := periodParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	invoices, err := h.Commerce.Invoices.QueryByPeriod(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTOs(invoices))
}

// CorrectInvoice replaces the lines of an invoice. Stock is not touched.
func (h *Handler) CorrectInvoice(w http.ResponseWriter, r *http.Request) {
	var req CorrectInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	lines := make([]commerce.LineItem, len(req.Products))
	for i, l := range req.Products {
		lines[i] = commerce.LineItem{
			ProductID: commerce.ProductID(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	inv, err := h.Commerce.Invoices.Correct(r.Context(), commerce.InvoiceID(chi.URLParam(r, "id")), lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Commerce.Invoices.Delete(r.Context(), commerce.InvoiceID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SALES HISTORY
// =============================================================================

// AggregateMonth computes and saves a new snapshot. Aggregating a month
// twice is allowed; the later snapshot wins.
func (h *Handler) AggregateMonth(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := commerce.NewPeriod(req.Month, req.Year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	started := time.Now()
	snap, err := h.Commerce.Aggregator.Aggregate(r.Context(), p)
	h.Metrics.RecordAggregation(outcomeOf(err), time.Since(started))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap))
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Commerce.History.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTOs(snaps))
}

func (h *Handler) ReconstructYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, &commerce.PeriodError{Month: 1, Year: year})
		return
	}

	snaps, err := h.Commerce.History.ReconstructYear(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTOs(snaps))
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Commerce.History.Get(r.Context(), commerce.SnapshotID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// AmendSnapshot saves a corrected copy; the source stays untouched.
func (h *Handler) AmendSnapshot(w http.ResponseWriter, r *http.Request) {
	var req AmendSnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amendment, err := req.toAmendment()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.Commerce.History.Amend(r.Context(), commerce.SnapshotID(chi.URLParam(r, "id")), amendment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap))
}

func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.Commerce.History.Delete(r.Context(), commerce.SnapshotID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// REPORT
// =============================================================================

func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		h.writeError(w, r, fmt.Errorf("%w: no text generator configured", commerce.ErrReportGenerationFailed))
		return
	}

	rep, err := h.Reports.Generate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(*rep))
}

// =============================================================================
// HELPERS
// =============================================================================

func canSee(id auth.Identity, owner commerce.UserID) bool {
	return id.IsEmployee() || id.UserID == owner
}

func periodParam(r *http.Request) (commerce.Period, error) {
	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	month, merr := strconv.Atoi(chi.URLParam(r, "month"))
	if yerr != nil || merr != nil {
		return commerce.Period{}, &commerce.PeriodError{Month: month, Year: year}
	}
	return commerce.NewPeriod(month, year)
}
