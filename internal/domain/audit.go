package domain

import "github.com/lmb/settlements/internal/money"

// AuditRow is one flat transaction-level row preserved from a settlement for
// audit storage. Amounts keep the marketplace's own sign convention (charges
// negative), so summing a row set by order id reproduces the payout
// contribution reported in an Amazon transaction export.
type AuditRow struct {
	InvoiceID   string      `json:"invoice_id"` // segment document number
	Marketplace string      `json:"marketplace"`
	OrderID     string      `json:"order_id"`
	SKU         string      `json:"sku,omitempty"`
	Brand       string      `json:"brand,omitempty"`
	PostedDate  string      `json:"posted_date"` // ISO day
	EventType   string      `json:"event_type"`
	Memo        string      `json:"memo"`
	Amount      money.Cents `json:"amount_cents"`
}
