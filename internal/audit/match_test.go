package audit

import (
	"testing"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/period"
)

func refFor(t *testing.T, s string) period.Ref {
	t.Helper()
	ref, err := period.ParseRef(s)
	if err != nil {
		t.Fatalf("ParseRef(%q): %v", s, err)
	}
	return ref
}

func TestMatchPeriodSingleCandidate(t *testing.T) {
	summaries := []InvoiceSummary{
		{BatchID: "b1", Marketplace: "amazon.com", MinDate: "2025-01-02", MaxDate: "2025-01-30", RowCount: 10, SKUCount: 3},
		{BatchID: "b2", Marketplace: "amazon.co.uk", MinDate: "2025-01-02", MaxDate: "2025-01-30"},
		{BatchID: "b3", Marketplace: "amazon.com", MinDate: "2025-02-01", MaxDate: "2025-02-27"},
	}

	got, err := MatchPeriod(refFor(t, "LMB-US-01JAN-31JAN-25"), summaries)
	if err != nil {
		t.Fatalf("MatchPeriod: %v", err)
	}
	if got == nil || got.BatchID != "b1" {
		t.Fatalf("got %+v, want b1", got)
	}
}

func TestMatchPeriodNoPeriodDegrades(t *testing.T) {
	got, err := MatchPeriod(refFor(t, "LMB-US"), []InvoiceSummary{
		{BatchID: "b1", Marketplace: "amazon.com", MinDate: "2025-01-01", MaxDate: "2025-01-31"},
	})
	if err != nil {
		t.Fatalf("MatchPeriod: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match for period-less reference, got %+v", got)
	}
}

func TestMatchPeriodNoCandidates(t *testing.T) {
	got, err := MatchPeriod(refFor(t, "LMB-US-01JAN-31JAN-25"), nil)
	if err != nil {
		t.Fatalf("MatchPeriod: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestMatchPeriodAmbiguous(t *testing.T) {
	summaries := []InvoiceSummary{
		{BatchID: "b1", Marketplace: "amazon.com", MinDate: "2025-01-01", MaxDate: "2025-01-15"},
		{BatchID: "b2", Marketplace: "amazon.com", MinDate: "2025-01-16", MaxDate: "2025-01-31"},
	}

	_, err := MatchPeriod(refFor(t, "LMB-US-01JAN-31JAN-25"), summaries)
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	if !domain.IsKind(err, domain.KindAmbiguous) {
		t.Fatalf("kind = %q, want ambiguous", domain.KindOf(err))
	}
}
