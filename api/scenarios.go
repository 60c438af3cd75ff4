/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos: a catalog, a few customers, sales and sales history.

AVAILABLE SCENARIOS:

	starter-catalog:  Catalog and demo accounts, no sales yet
	first-sales:      Catalog plus a handful of sales made today
	sales-year:       Invoices for every month of the current year, earlier
	                  months aggregated, January amended once
	low-stock:        Products at or near zero stock

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Restore the calling employee so their token keeps working
 3. Create demo accounts
 4. Import the catalog via factory
 5. Add sales, invoices and snapshots

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-year"}

DEMO ACCOUNTS:

	alice@example.com / demo1234  (customer)
	bruno@example.com / demo1234  (customer)
	admin@example.com / demo1234  (employee)

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/catalog.go: Catalog JSON definitions
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-catalog",
		Name:        "Starter Catalog",
		Description: "Catalog across all categories and demo accounts, no sales",
	},
	{
		ID:          "first-sales",
		Name:        "First Sales",
		Description: "Catalog plus a few sales made today, stock already debited",
	},
	{
		ID:          "sales-year",
		Name:        "Sales Year",
		Description: "Invoices for every month of the current year with earlier months aggregated and January amended",
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Products at or near zero stock to exercise insufficient stock errors",
	},
}

const demoPassword = "demo1234"

var demoUsers = []auth.RegisterInput{
	{Username: "alice", Email: "alice@example.com", Password: demoPassword, Role: string(auth.RoleCustomer)},
	{Username: "bruno", Email: "bruno@example.com", Password: demoPassword, Role: string(auth.RoleCustomer)},
	{Username: "admin", Email: "admin@example.com", Password: demoPassword, Role: string(auth.RoleEmployee)},
}

const demoCatalogJSON = `{
  "products": [
    {"id": "headphones", "name": "Wireless Headphones", "description": "Over-ear, noise cancelling", "price": "129.90", "stock": 40, "category": "Electronics"},
    {"id": "charger", "name": "USB-C Charger", "description": "65W, two ports", "price": "34.50", "stock": 120, "category": "Electronics"},
    {"id": "rain-jacket", "name": "Rain Jacket", "description": "Packable, unisex", "price": "79.00", "stock": 35, "category": "Clothing"},
    {"id": "wool-socks", "name": "Wool Socks", "description": "Pack of three", "price": "15.00", "stock": 200, "category": "Clothing"},
    {"id": "desk-lamp", "name": "Desk Lamp", "description": "Dimmable LED", "price": "42.00", "stock": 60, "category": "Home"},
    {"id": "puzzle", "name": "1000 Piece Puzzle", "description": "Alpine landscape", "price": "19.99", "stock": 80, "category": "Toys"},
    {"id": "yoga-mat", "name": "Yoga Mat", "description": "6mm, non-slip", "price": "29.00", "stock": 70, "category": "Sports"}
  ]
}`

const lowStockCatalogJSON = `{
  "products": [
    {"id": "last-console", "name": "Retro Console", "description": "Limited edition", "price": "249.00", "stock": 1, "category": "Electronics"},
    {"id": "sold-out-board", "name": "Skateboard", "description": "Maple deck", "price": "89.00", "stock": 0, "category": "Sports"},
    {"id": "few-kites", "name": "Stunt Kite", "description": "Dual line", "price": "39.00", "stock": 2, "category": "Toys"}
  ]
}`

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "starter-catalog":
		loader = h.loadStarterCatalogScenario
	case "first-sales":
		loader = h.loadFirstSalesScenario
	case "sales-year":
		loader = h.loadSalesYearScenario
	case "low-stock":
		loader = h.loadLowStockScenario
	default:
		h.writeError(w, r, &commerce.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", req.ScenarioID)})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.resetKeepingCaller(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.currentScenario = ""

	if err := loader(ctx); err != nil {
		h.writeError(w, r, commerce.Internal("load scenario "+req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	h.logger().WithFields(logrus.Fields{
		"module":     "api",
		"scenario":   req.ScenarioID,
		"request_id": requestID(r),
	}).Info("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data except the calling employee's account.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.resetKeepingCaller(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetKeepingCaller(ctx context.Context) error {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		return commerce.Internal("reset", fmt.Errorf("store does not support reset"))
	}

	var caller *auth.User
	if id, ok := identityFrom(ctx); ok {
		u, err := h.Auth.Users.GetUser(ctx, id.UserID)
		if err != nil {
			return err
		}
		caller = u
	}

	if err := resetter.Reset(ctx); err != nil {
		return commerce.Internal("reset", err)
	}
	if caller != nil {
		if err := h.Auth.Users.CreateUser(ctx, *caller); err != nil {
			return commerce.Internal("restore caller", err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStarterCatalogScenario(ctx context.Context) error {
	if _, err := h.createDemoUsers(ctx); err != nil {
		return err
	}
	return h.importCatalog(ctx, demoCatalogJSON)
}

func (h *Handler) loadFirstSalesScenario(ctx context.Context) error {
	users, err := h.createDemoUsers(ctx)
	if err != nil {
		return err
	}
	if err := h.importCatalog(ctx, demoCatalogJSON); err != nil {
		return err
	}

	sales := []struct {
		email string
		lines []commerce.SaleLine
	}{
		{"alice@example.com", []commerce.SaleLine{{ProductID: "headphones", Quantity: 1}, {ProductID: "charger", Quantity: 2}}},
		{"bruno@example.com", []commerce.SaleLine{{ProductID: "rain-jacket", Quantity: 1}, {ProductID: "wool-socks", Quantity: 3}}},
		{"alice@example.com", []commerce.SaleLine{{ProductID: "yoga-mat", Quantity: 1}}},
	}
	for _, s := range sales {
		u, ok := users[s.email]
		if !ok {
			continue
		}
		if _, err := h.Commerce.Checkout.Sell(ctx, u.ID, s.lines); err != nil {
			return err
		}
	}
	return nil
}

// loadSalesYearScenario backdates invoices into every month of the current
// year up to today. Stock is not debited for backdated invoices.
func (h *Handler) loadSalesYearScenario(ctx context.Context) error {
	users, err := h.createDemoUsers(ctx)
	if err != nil {
		return err
	}
	if err := h.importCatalog(ctx, demoCatalogJSON); err != nil {
		return err
	}

	products, err := h.Commerce.Store.ListProducts(ctx)
	if err != nil {
		return err
	}
	customers := []auth.User{users["alice@example.com"], users["bruno@example.com"]}

	loc := h.Commerce.Location
	current := h.Commerce.History.CurrentPeriod()
	for m := 1; m <= int(current.Month); m++ {
		p, err := commerce.NewPeriod(m, current.Year)
		if err != nil {
			return err
		}
		start, _ := p.Bounds(loc)

		// Busier towards the end of the year so the trend is visible.
		for i := 0; i < 2+m/3; i++ {
			product := products[(m+i)%len(products)]
			qty := int64(1 + (m+i)%3)
			lines := []commerce.LineItem{{ProductID: product.ID, Quantity: qty, UnitPrice: product.Price}}
			inv := commerce.Invoice{
				ID:          commerce.InvoiceID(fmt.Sprintf("inv-%d-%02d-%d", p.Year, m, i)),
				UserID:      customers[i%len(customers)].ID,
				Lines:       lines,
				TotalAmount: commerce.InvoiceTotal(lines),
				CreatedAt:   start.Add(time.Duration(1+i*2) * 24 * time.Hour),
			}
			if m == int(current.Month) {
				inv.CreatedAt = start.Add(time.Duration(i) * time.Hour)
			}
			if err := h.Commerce.Store.AppendInvoice(ctx, inv); err != nil {
				return err
			}
		}

		if m < int(current.Month) {
			if _, err := h.Commerce.Aggregator.Aggregate(ctx, p); err != nil {
				return err
			}
		}
	}

	if current.Month > time.January {
		jan, err := h.Commerce.History.Latest(ctx, commerce.Period{Month: time.January, Year: current.Year})
		if err != nil {
			return err
		}
		invoices := jan.TotalInvoices + 1
		if _, err := h.Commerce.History.Amend(ctx, jan.ID, commerce.Amendment{TotalInvoices: &invoices}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLowStockScenario(ctx context.Context) error {
	if _, err := h.createDemoUsers(ctx); err != nil {
		return err
	}
	return h.importCatalog(ctx, lowStockCatalogJSON)
}

// =============================================================================
// HELPERS
// =============================================================================

// createDemoUsers registers the demo accounts, keyed by email. An account
// whose email is already taken (the restored caller) is looked up instead.
func (h *Handler) createDemoUsers(ctx context.Context) (map[string]auth.User, error) {
	users := make(map[string]auth.User, len(demoUsers))
	for _, in := range demoUsers {
		u, err := h.Auth.Register(ctx, in)
		if err != nil {
			if commerce.KindOf(err) != commerce.KindDuplicateEntity {
				return nil, err
			}
			if u, err = h.Auth.Users.GetUserByEmail(ctx, auth.NormalizeEmail(in.Email)); err != nil {
				return nil, err
			}
		}
		users[in.Email] = *u
	}
	return users, nil
}

func (h *Handler) importCatalog(ctx context.Context, jsonStr string) error {
	products, err := h.Catalog.ParseCatalog(jsonStr)
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := h.Commerce.Store.SaveProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
