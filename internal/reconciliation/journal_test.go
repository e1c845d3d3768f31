package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
	"github.com/lmb/settlements/internal/money"
)

func testDraft() *draft.Draft {
	return &draft.Draft{
		SettlementID:  "LMB-US-01JAN-31JAN-25",
		Region:        "US",
		OriginalTotal: 1550,
		Segments: []draft.Segment{{
			Ordinal:   0,
			Month:     "2025-01",
			DocNumber: "LMB-US-AAAA",
			TxnDate:   "2025-01-31",
			MemoTotals: map[string]money.Cents{
				"Amazon Sales - Principal - BrandX": 2000,
				"Amazon Fees - BrandX":              450,
				draft.MemoTransferToBank:            1550,
			},
		}},
	}
}

func testMapping() journal.Mapping {
	return journal.Mapping{
		AccountByMemo: map[string]string{
			"Amazon Sales - Principal - BrandX": "acc-sales",
			"Amazon Fees - BrandX":              "acc-fees",
		},
		BankAccountID: "acc-bank",
	}
}

// postedFromCompiled converts freshly compiled entries into the ledger's
// representation, as if they had been posted untouched.
func postedFromCompiled(t *testing.T, d *draft.Draft) map[string]*ledger.Entry {
	t.Helper()
	entries, err := journal.Compile(d, testMapping(), journal.DefaultCategories(), "")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	posted := map[string]*ledger.Entry{}
	for i := range entries {
		e := ledger.FromJournal(entries[i])
		e.ID = "entry-" + e.DocNumber
		posted[e.DocNumber] = e
	}
	return posted
}

func TestReconcileJournalSelfConsistency(t *testing.T) {
	d := testDraft()
	posted := postedFromCompiled(t, d)

	results, err := ReconcileJournal(d, journal.DefaultCategories(), posted, 10)
	if err != nil {
		t.Fatalf("ReconcileJournal: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != JournalOK {
		t.Fatalf("status = %s with deltas %+v, want ok", results[0].Status, results[0].Deltas)
	}
	if len(results[0].Deltas) != 0 {
		t.Fatalf("expected zero deltas, got %d", len(results[0].Deltas))
	}
}

func TestReconcileJournalDetectsAmountDrift(t *testing.T) {
	d := testDraft()
	posted := postedFromCompiled(t, d)

	// Tamper with the posted fees line: 4.50 -> 9.50.
	for _, e := range posted {
		for i := range e.Lines {
			if e.Lines[i].Description == "Amazon Fees - BrandX" {
				e.Lines[i].Amount = decimal.New(950, -2)
			}
		}
	}

	results, err := ReconcileJournal(d, journal.DefaultCategories(), posted, 10)
	if err != nil {
		t.Fatalf("ReconcileJournal: %v", err)
	}
	if results[0].Status != JournalMismatch {
		t.Fatal("expected mismatch")
	}
	found := false
	for _, delta := range results[0].Deltas {
		if delta.Description == "Amazon Fees - BrandX" {
			found = true
			if delta.Expected != 450 || delta.Actual != 950 {
				t.Errorf("delta = %+v, want expected 450 actual 950", delta)
			}
		}
	}
	if !found {
		t.Errorf("fees delta not reported: %+v", results[0].Deltas)
	}
}

func TestReconcileJournalIgnoresSubCentDrift(t *testing.T) {
	d := testDraft()
	posted := postedFromCompiled(t, d)

	// One cent off stays within tolerance on the tampered key, but the
	// entry no longer balances against the control line, which shows up as
	// its own delta only if it exceeds a cent. It does not here.
	for _, e := range posted {
		for i := range e.Lines {
			if e.Lines[i].Description == "Amazon Fees - BrandX" {
				e.Lines[i].Amount = decimal.New(451, -2)
			}
		}
	}

	results, err := ReconcileJournal(d, journal.DefaultCategories(), posted, 10)
	if err != nil {
		t.Fatalf("ReconcileJournal: %v", err)
	}
	if results[0].Status != JournalOK {
		t.Fatalf("status = %s, want ok within one-cent tolerance", results[0].Status)
	}
}

func TestReconcileJournalTruncatesDeltas(t *testing.T) {
	d := testDraft()
	posted := map[string]*ledger.Entry{
		"LMB-US-AAAA": {
			ID:        "entry-1",
			DocNumber: "LMB-US-AAAA",
			Lines: []ledger.EntryLine{
				{AccountID: "acc-sales", PostingType: "Credit", Amount: decimal.New(2000, -2), Description: "Amazon Sales - Principal - BrandX"},
				{AccountID: "acc-fees", PostingType: "Debit", Amount: decimal.New(450, -2), Description: "Amazon Fees - BrandX"},
				{AccountID: "acc-bank", PostingType: "Debit", Amount: decimal.New(1550, -2), Description: draft.MemoTransferToBank},
			},
		},
	}

	// Shift every posted amount far out of tolerance.
	for _, e := range posted {
		for i := range e.Lines {
			e.Lines[i].Amount = e.Lines[i].Amount.Add(decimal.New(500, -2))
		}
	}

	results, err := ReconcileJournal(d, journal.DefaultCategories(), posted, 2)
	if err != nil {
		t.Fatalf("ReconcileJournal: %v", err)
	}
	if results[0].Status != JournalMismatch {
		t.Fatal("expected mismatch")
	}
	if len(results[0].Deltas) != 2 || !results[0].Truncated {
		t.Fatalf("deltas = %d truncated = %v, want 2/true", len(results[0].Deltas), results[0].Truncated)
	}
}

func TestReconcileJournalAmbiguousPostedMapping(t *testing.T) {
	posted := map[string]*ledger.Entry{
		"LMB-US-AAAA": {
			DocNumber: "LMB-US-AAAA",
			Lines: []ledger.EntryLine{
				{AccountID: "acc-1", PostingType: "Debit", Amount: decimal.New(100, -2), Description: "Amazon Fees - BrandX"},
				{AccountID: "acc-2", PostingType: "Debit", Amount: decimal.New(100, -2), Description: "Amazon Fees - BrandX"},
			},
		},
	}

	_, err := ReconcileJournal(testDraft(), journal.DefaultCategories(), posted, 10)
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	if !domain.IsKind(err, domain.KindAmbiguous) {
		t.Fatalf("kind = %q, want ambiguous", domain.KindOf(err))
	}
}
