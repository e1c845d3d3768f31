package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lmb/settlements/internal/audit"
)

// UploadRepo tracks one summary row per audit batch so settlement periods
// can be matched against previously stored data.
type UploadRepo struct {
	db *sql.DB
}

func NewUploadRepo(db *sql.DB) *UploadRepo {
	return &UploadRepo{db: db}
}

func (r *UploadRepo) Insert(s audit.InvoiceSummary, uploadedAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO audit_uploads
		(batch_id, marketplace, min_date, max_date, row_count, sku_count, uploaded_at)
		VALUES (?,?,?,?,?,?,?)`,
		s.BatchID, s.Marketplace, s.MinDate, s.MaxDate,
		s.RowCount, s.SKUCount, uploadedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert upload %s: %w", s.BatchID, err)
	}
	return nil
}

// List returns all upload summaries for a marketplace, newest first. An
// empty marketplace returns everything.
func (r *UploadRepo) List(marketplace string) ([]audit.InvoiceSummary, error) {
	q := `SELECT batch_id, marketplace, min_date, max_date, row_count, sku_count
	      FROM audit_uploads`
	var args []any
	if marketplace != "" {
		q += " WHERE marketplace = ?"
		args = append(args, marketplace)
	}
	q += " ORDER BY uploaded_at DESC, batch_id"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []audit.InvoiceSummary
	for rows.Next() {
		var s audit.InvoiceSummary
		if err := rows.Scan(&s.BatchID, &s.Marketplace, &s.MinDate,
			&s.MaxDate, &s.RowCount, &s.SKUCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes a batch summary and all audit rows stored under it.
func (r *UploadRepo) Delete(batchID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM audit_rows WHERE batch_id = ?", batchID); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM audit_uploads WHERE batch_id = ?", batchID); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}

	return tx.Commit()
}
