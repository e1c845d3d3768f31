package repository

import (
	"database/sql"
	"fmt"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// AuditRepo persists per-order audit rows keyed by the invoice (journal
// document) they were posted under.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// DeleteByInvoiceIDs removes all audit rows belonging to the given invoices.
// Re-running a settlement replaces its rows wholesale instead of appending.
func (r *AuditRepo) DeleteByInvoiceIDs(invoiceIDs []string) (int, error) {
	if len(invoiceIDs) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM audit_rows WHERE invoice_id = ?")
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	deleted := 0
	for _, id := range invoiceIDs {
		res, err := stmt.Exec(id)
		if err != nil {
			return deleted, fmt.Errorf("delete %s: %w", id, err)
		}
		ra, _ := res.RowsAffected()
		deleted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

// BulkInsert writes audit rows in a single transaction and returns the
// number inserted. The batch ID ties rows to the run that produced them.
func (r *AuditRepo) BulkInsert(rows []domain.AuditRow, batchID string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO audit_rows
		(invoice_id, marketplace, order_id, sku, brand, posted_date,
		 event_type, memo, amount_cents, batch_id)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range rows {
		row := &rows[i]
		_, err := stmt.Exec(
			row.InvoiceID, row.Marketplace, nullableString(row.OrderID),
			nullableString(row.SKU), nullableString(row.Brand), row.PostedDate,
			row.EventType, row.Memo, int64(row.Amount), batchID,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetByInvoiceID returns all audit rows for one invoice, ordered by posted
// date then order id.
func (r *AuditRepo) GetByInvoiceID(invoiceID string) ([]domain.AuditRow, error) {
	rows, err := r.db.Query(
		`SELECT invoice_id, marketplace, order_id, sku, brand, posted_date,
		        event_type, memo, amount_cents
		 FROM audit_rows WHERE invoice_id = ?
		 ORDER BY posted_date, order_id, id`, invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// GetByMonth returns all audit rows for a marketplace whose posted date falls
// in the given month ("2006-01").
func (r *AuditRepo) GetByMonth(marketplace, month string) ([]domain.AuditRow, error) {
	rows, err := r.db.Query(
		`SELECT invoice_id, marketplace, order_id, sku, brand, posted_date,
		        event_type, memo, amount_cents
		 FROM audit_rows
		 WHERE marketplace = ? AND posted_date >= ? AND posted_date <= ?
		 ORDER BY posted_date, order_id, id`,
		marketplace, month+"-01", month+"-31",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// InvoiceStat summarizes the stored rows of one invoice.
type InvoiceStat struct {
	InvoiceID   string `json:"invoice_id"`
	Marketplace string `json:"marketplace"`
	RowCount    int    `json:"row_count"`
	TotalCents  int64  `json:"total_cents"`
	MinDate     string `json:"min_date"`
	MaxDate     string `json:"max_date"`
}

// ListInvoices returns one summary per stored invoice, newest first.
func (r *AuditRepo) ListInvoices() ([]InvoiceStat, error) {
	rows, err := r.db.Query(`
		SELECT invoice_id, marketplace, COUNT(*),
		       COALESCE(SUM(amount_cents), 0), MIN(posted_date), MAX(posted_date)
		FROM audit_rows
		GROUP BY invoice_id, marketplace
		ORDER BY MAX(posted_date) DESC, invoice_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []InvoiceStat
	for rows.Next() {
		var s InvoiceStat
		if err := rows.Scan(&s.InvoiceID, &s.Marketplace, &s.RowCount,
			&s.TotalCents, &s.MinDate, &s.MaxDate); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// --- helpers ---

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanAuditRows(rows *sql.Rows) ([]domain.AuditRow, error) {
	var result []domain.AuditRow
	for rows.Next() {
		var row domain.AuditRow
		var orderID, sku, brand sql.NullString
		var cents int64

		err := rows.Scan(
			&row.InvoiceID, &row.Marketplace, &orderID, &sku, &brand,
			&row.PostedDate, &row.EventType, &row.Memo, &cents,
		)
		if err != nil {
			return nil, err
		}

		row.OrderID = orderID.String
		row.SKU = sku.String
		row.Brand = brand.String
		row.Amount = money.Cents(cents)

		result = append(result, row)
	}
	return result, rows.Err()
}
