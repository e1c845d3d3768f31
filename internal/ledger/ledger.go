// Package ledger is the client for the external accounting system. Every
// call may return a refreshed access token which the client persists on its
// session before the next call, so one client instance must never be shared
// across concurrently processed settlements.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/money"
)

// Session carries the mutable auth state threaded through every call.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Account is one chart-of-accounts entry.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// EntryLine is one journal line as the ledger represents it. Amounts are
// major-unit decimals on the wire.
type EntryLine struct {
	AccountID   string          `json:"account_id"`
	PostingType string          `json:"posting_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Entry is a posted (or to-be-posted) journal entry.
type Entry struct {
	ID        string      `json:"id,omitempty"`
	DocNumber string      `json:"doc_number"`
	TxnDate   string      `json:"txn_date"`
	Note      string      `json:"note,omitempty"`
	Lines     []EntryLine `json:"lines"`
}

// FromJournal converts a compiled entry to the wire representation,
// switching from integer cents to decimal at the boundary.
func FromJournal(e journal.Entry) *Entry {
	out := &Entry{
		DocNumber: e.DocNumber,
		TxnDate:   e.TxnDate,
		Note:      e.Note,
		Lines:     make([]EntryLine, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, EntryLine{
			AccountID:   l.AccountID,
			PostingType: string(l.Type),
			Amount:      l.Amount.Decimal(),
			Description: l.Description,
		})
	}
	return out
}

// LineCents converts a wire line amount back to integer cents, rejecting
// sub-cent precision.
func LineCents(l EntryLine) (money.Cents, error) {
	return money.FromDecimal(l.Amount)
}
