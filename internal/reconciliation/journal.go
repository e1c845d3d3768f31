// Package reconciliation re-derives expected values from the same draft and
// allocation logic used for posting and diffs them against what was actually
// posted or persisted, surfacing discrepancies.
package reconciliation

import (
	"fmt"
	"log"
	"sort"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
	"github.com/lmb/settlements/internal/money"
)

// JournalStatus is the per-segment verdict.
type JournalStatus string

const (
	JournalOK       JournalStatus = "ok"
	JournalMismatch JournalStatus = "mismatch"
)

// lineKey groups journal lines for comparison.
type lineKey struct {
	AccountID   string
	Type        journal.PostingType
	Description string
}

// KeyDelta is one grouping key whose expected and actual totals diverge by
// more than a cent.
type KeyDelta struct {
	AccountID   string              `json:"account_id"`
	Type        journal.PostingType `json:"posting_type"`
	Description string              `json:"description"`
	Expected    money.Cents         `json:"expected_cents"`
	Actual      money.Cents         `json:"actual_cents"`
}

// JournalResult is the verdict for one segment.
type JournalResult struct {
	DocNumber string        `json:"doc_number"`
	Status    JournalStatus `json:"status"`
	Deltas    []KeyDelta    `json:"deltas,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ReconcileJournal recompiles the draft's expected journal lines using an
// account mapping extracted from the posted entries themselves, so the
// comparison isolates amount and line discrepancies from account-mapping
// discrepancies. posted is keyed by document number; maxDeltas caps the
// reported keys per segment.
func ReconcileJournal(d *draft.Draft, cats journal.CategoryTable, posted map[string]*ledger.Entry, maxDeltas int) ([]JournalResult, error) {
	if maxDeltas <= 0 {
		maxDeltas = 20
	}

	mapping, err := mappingFromPosted(posted)
	if err != nil {
		return nil, err
	}

	expected, err := journal.Compile(d, mapping, cats, "")
	if err != nil {
		return nil, fmt.Errorf("recompile draft %s: %w", d.SettlementID, err)
	}

	results := make([]JournalResult, 0, len(expected))
	for _, exp := range expected {
		res := JournalResult{DocNumber: exp.DocNumber, Status: JournalOK}

		expSums := map[lineKey]money.Cents{}
		for _, l := range exp.Lines {
			expSums[lineKey{l.AccountID, l.Type, l.Description}] += l.Amount
		}

		actSums := map[lineKey]money.Cents{}
		if act, ok := posted[exp.DocNumber]; ok {
			for _, l := range act.Lines {
				cents, err := ledger.LineCents(l)
				if err != nil {
					return nil, domain.Wrap(domain.KindMalformed, err,
						"posted entry %s line %q", exp.DocNumber, l.Description)
				}
				actSums[lineKey{l.AccountID, journal.PostingType(l.PostingType), l.Description}] += cents
			}
		}

		keys := map[lineKey]bool{}
		for k := range expSums {
			keys[k] = true
		}
		for k := range actSums {
			keys[k] = true
		}

		var deltas []KeyDelta
		for k := range keys {
			e, a := expSums[k], actSums[k]
			if diff := e - a; diff > 1 || diff < -1 {
				deltas = append(deltas, KeyDelta{
					AccountID: k.AccountID, Type: k.Type, Description: k.Description,
					Expected: e, Actual: a,
				})
			}
		}
		sort.Slice(deltas, func(i, j int) bool {
			if deltas[i].Description != deltas[j].Description {
				return deltas[i].Description < deltas[j].Description
			}
			if deltas[i].AccountID != deltas[j].AccountID {
				return deltas[i].AccountID < deltas[j].AccountID
			}
			return deltas[i].Type < deltas[j].Type
		})

		if len(deltas) > 0 {
			res.Status = JournalMismatch
			if len(deltas) > maxDeltas {
				deltas = deltas[:maxDeltas]
				res.Truncated = true
			}
			res.Deltas = deltas
			log.Printf("[recon] %s: %d mismatched line groups", exp.DocNumber, len(deltas))
		}
		results = append(results, res)
	}

	return results, nil
}

// mappingFromPosted rebuilds the memo→account mapping from the lines of the
// posted entries. Conflicting ids for one description are surfaced, not
// silently picked.
func mappingFromPosted(posted map[string]*ledger.Entry) (journal.Mapping, error) {
	byMemo := map[string]string{}
	m := journal.Mapping{AccountByMemo: byMemo}

	for doc, e := range posted {
		if e == nil {
			continue
		}
		for _, l := range e.Lines {
			label, id := l.Description, l.AccountID
			switch label {
			case draft.MemoTransferToBank:
				if m.BankAccountID != "" && m.BankAccountID != id {
					return m, conflict(doc, label, m.BankAccountID, id)
				}
				m.BankAccountID = id
			case draft.MemoPaymentToAmazon:
				if m.PaymentAccountID != "" && m.PaymentAccountID != id {
					return m, conflict(doc, label, m.PaymentAccountID, id)
				}
				m.PaymentAccountID = id
			default:
				if prev, ok := byMemo[label]; ok && prev != id {
					return m, conflict(doc, label, prev, id)
				}
				byMemo[label] = id
			}
		}
	}
	return m, nil
}

func conflict(doc, label, a, b string) error {
	return domain.E(domain.KindAmbiguous,
		"posted entry %s maps %q to both %s and %s", doc, label, a, b)
}
