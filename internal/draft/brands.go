package draft

import (
	"sort"
	"strings"

	"github.com/lmb/settlements/internal/domain"
)

// BrandResolver maps a SKU to the brand label used to qualify memo lines.
// A SKU it cannot resolve must come back as an unmapped-reference error;
// the engine never posts under a guessed brand.
type BrandResolver interface {
	Brand(sku string) (string, error)
}

// TableResolver resolves brands from an exact-SKU table plus optional
// prefix rules (keys ending in "*"). Longest prefix wins.
type TableResolver map[string]string

func (t TableResolver) Brand(sku string) (string, error) {
	if brand, ok := t[sku]; ok {
		return brand, nil
	}
	best, brand := -1, ""
	for pattern, b := range t {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(sku, prefix) && len(prefix) > best {
			best, brand = len(prefix), b
		}
	}
	if best < 0 {
		return "", domain.E(domain.KindUnmapped, "no brand mapping for SKU %q", sku)
	}
	return brand, nil
}

// checkBrandCorrespondence verifies that the brands resolved from the event
// set line up one-to-one with the brand set the marketplace reports. A size
// mismatch means the resolver table is stale or ambiguous, and posting under
// it would misattribute revenue.
func checkBrandCorrespondence(resolved map[string]bool, known []string) error {
	if len(known) == 0 {
		return nil
	}
	got := make([]string, 0, len(resolved))
	for b := range resolved {
		got = append(got, b)
	}
	sort.Strings(got)

	want := append([]string(nil), known...)
	sort.Strings(want)

	if len(got) != len(want) {
		return domain.E(domain.KindAmbiguous,
			"brand sets do not correspond: resolved %v, marketplace reports %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return domain.E(domain.KindAmbiguous,
				"brand sets do not correspond: resolved %v, marketplace reports %v", got, want)
		}
	}
	return nil
}
