package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lmb/settlements/internal/audit"
	"github.com/lmb/settlements/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUpload(t *testing.T, db *sql.DB, batchID, marketplace string) {
	t.Helper()
	repo := NewUploadRepo(db)
	err := repo.Insert(audit.InvoiceSummary{
		BatchID:     batchID,
		Marketplace: marketplace,
		MinDate:     "2025-01-02",
		MaxDate:     "2025-01-30",
		RowCount:    2,
		SKUCount:    1,
	}, time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Insert upload: %v", err)
	}
}

func sampleRows(invoiceID string) []domain.AuditRow {
	return []domain.AuditRow{
		{
			InvoiceID:   invoiceID,
			Marketplace: "amazon.com",
			OrderID:     "111-001",
			SKU:         "BX-100",
			Brand:       "BrandX",
			PostedDate:  "2025-01-05",
			EventType:   "shipment",
			Memo:        "Amazon Sales - BrandX",
			Amount:      1500,
		},
		{
			InvoiceID:   invoiceID,
			Marketplace: "amazon.com",
			PostedDate:  "2025-01-20",
			EventType:   "service_fee",
			Memo:        "Amazon Fees - BrandX",
			Amount:      -450,
		},
	}
}

func TestAuditRepoInsertAndGet(t *testing.T) {
	db := testDB(t)
	seedUpload(t, db, "batch-1", "amazon.com")
	repo := NewAuditRepo(db)

	n, err := repo.BulkInsert(sampleRows("LMB-US-AAAA"), "batch-1")
	if err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}

	got, err := repo.GetByInvoiceID("LMB-US-AAAA")
	if err != nil {
		t.Fatalf("GetByInvoiceID: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].OrderID != "111-001" || got[0].Amount != 1500 {
		t.Errorf("row 0 = %+v", got[0])
	}
	// The fee row had no order id; it round-trips as empty.
	if got[1].OrderID != "" || got[1].Amount != -450 {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestAuditRepoDeleteByInvoiceIDs(t *testing.T) {
	db := testDB(t)
	seedUpload(t, db, "batch-1", "amazon.com")
	repo := NewAuditRepo(db)

	if _, err := repo.BulkInsert(sampleRows("LMB-US-AAAA"), "batch-1"); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if _, err := repo.BulkInsert(sampleRows("LMB-US-BBBB"), "batch-1"); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	deleted, err := repo.DeleteByInvoiceIDs([]string{"LMB-US-AAAA", "LMB-US-MISSING"})
	if err != nil {
		t.Fatalf("DeleteByInvoiceIDs: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	remaining, err := repo.GetByInvoiceID("LMB-US-BBBB")
	if err != nil {
		t.Fatalf("GetByInvoiceID: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("other invoice lost rows: %d", len(remaining))
	}
}

func TestAuditRepoGetByMonth(t *testing.T) {
	db := testDB(t)
	seedUpload(t, db, "batch-1", "amazon.com")
	repo := NewAuditRepo(db)

	rows := sampleRows("LMB-US-AAAA")
	rows[1].PostedDate = "2025-02-03" // out of January
	if _, err := repo.BulkInsert(rows, "batch-1"); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	jan, err := repo.GetByMonth("amazon.com", "2025-01")
	if err != nil {
		t.Fatalf("GetByMonth: %v", err)
	}
	if len(jan) != 1 || jan[0].PostedDate != "2025-01-05" {
		t.Fatalf("january rows = %+v", jan)
	}

	other, err := repo.GetByMonth("amazon.co.uk", "2025-01")
	if err != nil {
		t.Fatalf("GetByMonth: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("wrong marketplace returned rows: %+v", other)
	}
}

func TestAuditRepoListInvoices(t *testing.T) {
	db := testDB(t)
	seedUpload(t, db, "batch-1", "amazon.com")
	repo := NewAuditRepo(db)

	if _, err := repo.BulkInsert(sampleRows("LMB-US-AAAA"), "batch-1"); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	stats, err := repo.ListInvoices()
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats = %+v, want 1 invoice", stats)
	}
	s := stats[0]
	if s.InvoiceID != "LMB-US-AAAA" || s.RowCount != 2 || s.TotalCents != 1050 {
		t.Errorf("stat = %+v", s)
	}
	if s.MinDate != "2025-01-05" || s.MaxDate != "2025-01-20" {
		t.Errorf("date range = %s..%s", s.MinDate, s.MaxDate)
	}
}

func TestUploadRepoListAndDelete(t *testing.T) {
	db := testDB(t)
	seedUpload(t, db, "batch-1", "amazon.com")
	seedUpload(t, db, "batch-2", "amazon.co.uk")

	uploads := NewUploadRepo(db)
	auditRepo := NewAuditRepo(db)
	if _, err := auditRepo.BulkInsert(sampleRows("LMB-US-AAAA"), "batch-1"); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	us, err := uploads.List("amazon.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(us) != 1 || us[0].BatchID != "batch-1" {
		t.Fatalf("list = %+v", us)
	}

	all, err := uploads.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %+v", all)
	}

	if err := uploads.Delete("batch-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows, err := auditRepo.GetByInvoiceID("LMB-US-AAAA")
	if err != nil {
		t.Fatalf("GetByInvoiceID: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows survived batch delete: %+v", rows)
	}
}
