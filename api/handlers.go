/*
handlers.go - HTTP API handlers for the back office

PURPOSE:
  Exposes accounts, the product catalog and stock over REST. Handles HTTP
  request/response and JSON serialization, and delegates to the domain
  packages (auth, commerce, factory).

ENDPOINTS:
  Auth:
    POST   /api/auth/register          Create account
    POST   /api/auth/login             Issue bearer token

  Users (employee):
    GET    /api/users                  List users
    GET    /api/users/{id}             Get user
    PATCH  /api/users/{id}             Update username, email, role
    DELETE /api/users/{id}             Delete user

  Products:
    GET    /api/products               List catalog
    GET    /api/products/{id}          Get product
    POST   /api/products               Create product (employee)
    POST   /api/products/import        Bulk import catalog JSON (employee)
    PATCH  /api/products/{id}          Update catalog fields (employee)
    DELETE /api/products/{id}          Delete product (employee)
    POST   /api/products/{id}/stock    Adjust stock by delta (employee)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Commerce: ledger, invoices, aggregator, history, checkout
  - Auth: registration, login, token verification
  - Reports: narrative generator (nil when not configured)
  - Catalog: JSON to Product conversion

ERROR HANDLING:
  Every error goes through writeError, which maps commerce.KindOf to a
  status and a stable code. See errors.go.

SEE ALSO:
  - sales.go: Sales, invoices, history, report
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
	"github.com/warp/backoffice/factory"
	"github.com/warp/backoffice/metrics"
	"github.com/warp/backoffice/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all persisted data. Used by demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Commerce *commerce.Service
	Auth     *auth.Service
	Reports  *report.Service
	Catalog  *factory.CatalogFactory
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger

	// Store is probed for Resetter and Pinger.
	Store any

	CORSOrigins []string

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler. reports may be nil when no generator is configured.
func NewHandler(svc *commerce.Service, authSvc *auth.Service, reports *report.Service, m *metrics.Metrics, logger logrus.FieldLogger) *Handler {
	return &Handler{
		Commerce: svc,
		Auth:     authSvc,
		Reports:  reports,
		Catalog:  factory.NewCatalogFactory(),
		Metrics:  m,
		Logger:   logger,
		Store:    svc.Store,
	}
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

// Health reports liveness and, when supported, storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.Auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      toUserDTO(session.User),
	})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Auth.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Auth.Get(r.Context(), commerce.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.Auth.Update(r.Context(), commerce.UserID(chi.URLParam(r, "id")), auth.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Delete(r.Context(), commerce.UserID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Commerce.Store.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Commerce.Store.GetProduct(r.Context(), commerce.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.Catalog.Product(factory.ProductJSON{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := h.Commerce.Store.GetProduct(ctx, p.ID); err == nil {
		h.writeError(w, r, fmt.Errorf("%w: product %s already exists", commerce.ErrDuplicateEntity, p.ID))
		return
	} else if !commerce.IsNotFound(err) {
		h.writeError(w, r, err)
		return
	}

	if err := h.Commerce.Store.SaveProduct(ctx, *p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*p))
}

// ImportProducts upserts every product of a catalog document. The whole
// document is validated before anything is written.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, &commerce.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	products, err := h.Catalog.ParseCatalog(string(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		if existing, err := h.Commerce.Store.GetProduct(ctx, p.ID); err == nil {
			p.CreatedAt = existing.CreatedAt
		}
		if err := h.Commerce.Store.SaveProduct(ctx, p); err != nil {
			h.writeError(w, r, err)
			return
		}
		dtos = append(dtos, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(dtos), "products": dtos})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	p, err := h.Commerce.Store.GetProduct(ctx, commerce.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Category != nil {
		category, err := commerce.ParseCategory(*req.Category)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		p.Category = category
	}
	if err := p.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	p.UpdatedAt = time.Now()

	// Stock is not part of the update; re-read it so a concurrent sale is
	// not overwritten.
	current, err := h.Commerce.Store.GetProduct(ctx, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p.Stock = current.Stock

	if err := h.Commerce.Store.SaveProduct(ctx, *p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Commerce.Store.DeleteProduct(r.Context(), commerce.ProductID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AdjustStock applies a signed delta through the inventory ledger.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.Commerce.Ledger.AdjustStock(r.Context(), commerce.ProductID(chi.URLParam(r, "id")), req.Delta)
	h.Metrics.RecordStockAdjustment(req.Delta, outcomeOf(err))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func outcomeOf(err error) metrics.Outcome {
	if err == nil {
		return metrics.OutcomeOK
	}
	return metrics.Outcome(commerce.KindOf(err))
}
