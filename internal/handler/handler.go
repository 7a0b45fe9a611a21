// Package handler exposes the checkout engine and reports over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/pos-checkout/internal/domain/checkout"
	"github.com/xenking/pos-checkout/internal/domain/report"
)

// Handler serves the /api routes.
type Handler struct {
	engine  *checkout.Engine
	reports *report.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(engine *checkout.Engine, reports *report.Service) *Handler {
	return &Handler{
		engine:  engine,
		reports: reports,
	}
}

// Routes returns the API router. Every route requires a bearer token; reports
// and sales need the admin role.
func (h *Handler) Routes(security *SecurityHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(security.Middleware)

		r.Post("/checkout", h.Checkout)
		r.Get("/stock/{productID}", h.CurrentStock)

		r.Route("/reports", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ReportWindow)
			r.Get("/today", h.ReportToday)
			r.Get("/month", h.ReportMonth)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Route("/{reference}", func(r chi.Router) {
				r.Get("/", h.GetSale)
				r.Delete("/", h.DeleteSale)
			})
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "", errNoRoute)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "", errNoMethod)
	})
	return r
}
