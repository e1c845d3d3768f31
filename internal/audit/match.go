// Package audit matches settlement periods against previously uploaded
// audit files. Matching is a pure function of two date ranges; nothing here
// persists state.
package audit

import (
	"fmt"
	"strings"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/period"
)

// InvoiceSummary describes one uploaded audit file: its marketplace, the
// date range its rows span, and row/SKU counts for human review.
type InvoiceSummary struct {
	BatchID     string `json:"batch_id"`
	Marketplace string `json:"marketplace"`
	MinDate     string `json:"min_date"` // ISO day
	MaxDate     string `json:"max_date"`
	RowCount    int    `json:"row_count"`
	SKUCount    int    `json:"sku_count"`
}

func (s InvoiceSummary) String() string {
	return fmt.Sprintf("%s %s %s..%s (%d rows, %d SKUs)",
		s.BatchID, s.Marketplace, s.MinDate, s.MaxDate, s.RowCount, s.SKUCount)
}

// overlaps reports whether the summary's date range intersects [start, end].
// ISO day strings compare correctly as bytes.
func (s InvoiceSummary) overlaps(start, end string) bool {
	return s.MinDate <= end && s.MaxDate >= start
}

// MatchPeriod finds the single uploaded audit file covering the settlement
// period. A reference without a period matches nothing (the caller degrades
// to "missing period"); more than one candidate is an ambiguity surfaced
// with the full candidate set so a human can disambiguate.
func MatchPeriod(ref period.Ref, summaries []InvoiceSummary) (*InvoiceSummary, error) {
	if !ref.HasPeriod() {
		return nil, nil
	}

	var candidates []InvoiceSummary
	for _, s := range summaries {
		if s.Marketplace == ref.Marketplace && s.overlaps(ref.Start, ref.End) {
			candidates = append(candidates, s)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	default:
		descs := make([]string, len(candidates))
		for i, c := range candidates {
			descs[i] = c.String()
		}
		return nil, domain.E(domain.KindAmbiguous,
			"settlement period %s..%s on %s matches %d audit files: %s",
			ref.Start, ref.End, ref.Marketplace, len(candidates), strings.Join(descs, "; "))
	}
}
