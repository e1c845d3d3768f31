package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lmb/settlements/internal/audit"
	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/period"
	"github.com/lmb/settlements/internal/reconciliation"
	"github.com/lmb/settlements/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	auditRepo  *repository.AuditRepo
	uploadRepo *repository.UploadRepo
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps error taxonomy kinds onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindMalformed:
		status = http.StatusBadRequest
	case domain.KindUnmapped:
		status = http.StatusNotFound
	case domain.KindAmbiguous, domain.KindInconsistent:
		status = http.StatusConflict
	case domain.KindAuthFailed:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

// --- ListInvoices ---

func (h *Handlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	stats, err := h.auditRepo.ListInvoices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoices": stats,
		"total":    len(stats),
	})
}

// --- GetInvoiceRows ---

func (h *Handlers) GetInvoiceRows(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invoice id is required")
		return
	}

	rows, err := h.auditRepo.GetByInvoiceID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no audit rows for invoice "+id)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id": id,
		"rows":       rows,
		"total":      len(rows),
	})
}

// --- ListUploads ---

func (h *Handlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.uploadRepo.List(r.URL.Query().Get("marketplace"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uploads": uploads,
		"total":   len(uploads),
	})
}

// --- MatchSettlementAudit ---

func (h *Handlers) MatchSettlementAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, err := period.ParseRef(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries, err := h.uploadRepo.List(ref.Marketplace)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	match, err := audit.MatchPeriod(ref, summaries)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if match == nil {
		writeError(w, http.StatusNotFound, "no audit batch covers settlement "+id)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// --- ReconcileTransactions ---

// ReconcileTransactions accepts an Amazon transaction export and diffs it
// against the stored audit rows for one marketplace month. The result is
// computed per request and never persisted.
func (h *Handlers) ReconcileTransactions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	marketplace := r.FormValue("marketplace")
	month := r.FormValue("month")
	if marketplace == "" || month == "" {
		writeError(w, http.StatusBadRequest, "marketplace and month are required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	export, err := reconciliation.ParseAmazonExport(data)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	auditRows, err := h.auditRepo.GetByMonth(marketplace, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := reconciliation.ReconcileTransactions(export, auditRows)
	matched, mismatched := 0, 0
	for _, row := range rows {
		if row.Status == reconciliation.TxnMatched {
			matched++
		} else {
			mismatched++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketplace": marketplace,
		"month":       month,
		"rows":        rows,
		"matched":     matched,
		"mismatched":  mismatched,
	})
}
