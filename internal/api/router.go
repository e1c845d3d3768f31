package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lmb/settlements/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(auditRepo *repository.AuditRepo, uploadRepo *repository.UploadRepo) http.Handler {
	h := &Handlers{
		auditRepo:  auditRepo,
		uploadRepo: uploadRepo,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Stored audit data.
		r.Get("/invoices", h.ListInvoices)
		r.Get("/invoices/{id}/rows", h.GetInvoiceRows)
		r.Get("/uploads", h.ListUploads)

		// Settlement period linkage.
		r.Get("/settlements/{id}/audit-match", h.MatchSettlementAudit)

		// Reconciliation.
		r.Post("/reconcile/transactions", h.ReconcileTransactions)
	})

	return r
}
