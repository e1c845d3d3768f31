// Package posting writes compiled journal entries to the external ledger
// idempotently: an entry whose deterministic document number already exists
// is never posted again.
package posting

import (
	"context"
	"fmt"
	"log"

	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
)

// Status is the per-segment posting outcome.
type Status string

const (
	StatusPosted   Status = "posted"
	StatusExisting Status = "existing"
	StatusSkipped  Status = "skipped"
)

// Outcome records what happened to one segment's journal entry.
type Outcome struct {
	DocNumber string `json:"doc_number"`
	TxnDate   string `json:"txn_date"`
	Status    Status `json:"status"`
	EntryID   string `json:"entry_id,omitempty"`
}

// Ledger is the slice of the ledger client the poster needs.
type Ledger interface {
	FindEntriesByDocNumber(ctx context.Context, substr string) ([]ledger.Entry, error)
	CreateEntry(ctx context.Context, e *ledger.Entry) (*ledger.Entry, error)
}

// Poster posts entries. With DryRun set nothing is created and every
// not-yet-posted segment reports skipped.
type Poster struct {
	Ledger Ledger
	DryRun bool
}

// PostEntries processes the compiled entries in order. Because document
// numbers are a pure function of settlement identity, re-running after a
// partial failure converges: already-posted segments come back as existing
// and the run resumes from the first unposted one.
func (p *Poster) PostEntries(ctx context.Context, entries []journal.Entry) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(entries))

	for _, e := range entries {
		// Re-assert the balance invariant at the last gate before money
		// leaves the engine.
		if err := e.Balanced(); err != nil {
			return outcomes, err
		}

		existing, err := p.findExact(ctx, e.DocNumber)
		if err != nil {
			return outcomes, fmt.Errorf("lookup %s: %w", e.DocNumber, err)
		}
		if existing != nil {
			log.Printf("[poster] %s already posted as entry %s", e.DocNumber, existing.ID)
			outcomes = append(outcomes, Outcome{
				DocNumber: e.DocNumber, TxnDate: e.TxnDate,
				Status: StatusExisting, EntryID: existing.ID,
			})
			continue
		}

		if p.DryRun {
			outcomes = append(outcomes, Outcome{
				DocNumber: e.DocNumber, TxnDate: e.TxnDate, Status: StatusSkipped,
			})
			continue
		}

		created, err := p.Ledger.CreateEntry(ctx, ledger.FromJournal(e))
		if err != nil {
			return outcomes, fmt.Errorf("post %s: %w", e.DocNumber, err)
		}
		log.Printf("[poster] Posted %s as entry %s (%d lines)", e.DocNumber, created.ID, len(e.Lines))
		outcomes = append(outcomes, Outcome{
			DocNumber: e.DocNumber, TxnDate: e.TxnDate,
			Status: StatusPosted, EntryID: created.ID,
		})
	}

	return outcomes, nil
}

// findExact narrows the ledger's substring search to an exact document
// number match.
func (p *Poster) findExact(ctx context.Context, docNumber string) (*ledger.Entry, error) {
	matches, err := p.Ledger.FindEntriesByDocNumber(ctx, docNumber)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if matches[i].DocNumber == docNumber {
			return &matches[i], nil
		}
	}
	return nil, nil
}
