/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Structured request log (logrus) + HTTP metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/auth/*            Register, login (public)
  /api/users/*           User administration (employee)
  /api/products/*        Catalog reads (any user), writes and stock (employee)
  /api/sales             Checkout (any user)
  /api/invoices/*        Invoice queries and corrections
  /api/sales/history/*   Monthly aggregation and yearly reconstruction (employee)
  /api/sales/snapshots/* Snapshot read, amend, delete (employee)
  /api/sales/report      Narrative report (employee)
  /api/scenarios/*       Demo data (employee)
  /healthz, /metrics     Operations

AUTHENTICATION:
  Bearer JWT checked by authenticate; requireEmployee guards back office
  routes. The role is read from the stored user, not trusted from the token.

SEE ALSO:
  - handlers.go, sales.go: Handler implementations
  - middleware.go: authenticate, requireEmployee, requestLogger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Post("/sales", h.CreateSale)
			r.Get("/invoices/{id}", h.GetInvoice)
			r.Get("/invoices/user/{userID}", h.ListInvoicesByUser)

			// Back office
			r.Group(func(r chi.Router) {
				r.Use(h.requireEmployee)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.ListUsers)
					r.Get("/{id}", h.GetUser)
					r.Patch("/{id}", h.UpdateUser)
					r.Delete("/{id}", h.DeleteUser)
				})

				r.Post("/products", h.CreateProduct)
				r.Post("/products/import", h.ImportProducts)
				r.Patch("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)
				r.Post("/products/{id}/stock", h.AdjustStock)

				r.Get("/invoices", h.ListInvoices)
				r.Get("/invoices/period/{year}/{month}", h.ListInvoicesByPeriod)
				r.Put("/invoices/{id}", h.CorrectInvoice)
				r.Delete("/invoices/{id}", h.DeleteInvoice)

				r.Route("/sales/history", func(r chi.Router) {
					r.Post("/", h.AggregateMonth)
					r.Get("/", h.ListSnapshots)
					r.Get("/{year}", h.ReconstructYear)
				})
				r.Route("/sales/snapshots", func(r chi.Router) {
					r.Get("/{id}", h.GetSnapshot)
					r.Patch("/{id}", h.AmendSnapshot)
					r.Delete("/{id}", h.DeleteSnapshot)
				})
				r.Post("/sales/report", h.GenerateReport)

				r.Route("/scenarios", func(r chi.Router) {
					r.Get("/", h.ListScenarios)
					r.Get("/current", h.GetCurrentScenario)
					r.Post("/load", h.LoadScenario)
					r.Post("/reset", h.ResetDatabase)
				})
			})
		})
	})

	return r
}
