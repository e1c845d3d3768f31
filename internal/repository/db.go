package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_uploads (
			batch_id TEXT PRIMARY KEY,
			marketplace TEXT NOT NULL,
			min_date TEXT NOT NULL,
			max_date TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			sku_count INTEGER NOT NULL,
			uploaded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_uploads_marketplace ON audit_uploads(marketplace)`,

		`CREATE TABLE IF NOT EXISTS audit_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			invoice_id TEXT NOT NULL,
			marketplace TEXT NOT NULL,
			order_id TEXT,
			sku TEXT,
			brand TEXT,
			posted_date TEXT NOT NULL,
			event_type TEXT NOT NULL,
			memo TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			batch_id TEXT NOT NULL,
			FOREIGN KEY (batch_id) REFERENCES audit_uploads(batch_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_rows_invoice ON audit_rows(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_rows_order ON audit_rows(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_rows_market_date ON audit_rows(marketplace, posted_date)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
