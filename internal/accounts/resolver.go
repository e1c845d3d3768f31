// Package accounts discovers the memo-label→account mapping by scanning
// previously posted settlement entries in the external ledger.
package accounts

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
)

// History is the slice of the ledger client the resolver needs.
type History interface {
	ListRecentEntries(ctx context.Context, page int) ([]ledger.Entry, error)
}

// Resolver builds an account mapping from posting history. The result is
// cached by the caller for one pipeline invocation at most: account ids can
// legitimately change between runs.
type Resolver struct {
	History  History
	MaxPages int
}

// Resolve scans newest-first pages of posted entries, extracting
// (description, account id) pairs, until every required label and every
// required control account is mapped or history is exhausted. Control
// labels in required are recognized and fill the dedicated mapping fields.
// Two distinct account ids for the same label is an ambiguity the engine
// refuses to resolve on its own; labels still missing after the scan are a
// hard error naming them.
func (r *Resolver) Resolve(ctx context.Context, required []string) (*journal.Mapping, error) {
	maxPages := r.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	needed := map[string]bool{}
	needBank, needPayment := false, false
	for _, label := range required {
		switch label {
		case draft.MemoTransferToBank:
			needBank = true
		case draft.MemoPaymentToAmazon:
			needPayment = true
		default:
			needed[label] = true
		}
	}

	// Candidate account ids per label; more than one is fatal.
	found := map[string]map[string]bool{}
	record := func(label, accountID string) {
		if accountID == "" {
			return
		}
		if found[label] == nil {
			found[label] = map[string]bool{}
		}
		found[label][accountID] = true
	}

	scanned := 0
	for page := 1; page <= maxPages; page++ {
		entries, err := r.History.ListRecentEntries(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		scanned += len(entries)

		for _, e := range entries {
			for _, l := range e.Lines {
				label := l.Description
				if draft.IsControlMemo(label) || needed[label] {
					record(label, l.AccountID)
				}
			}
		}

		if r.satisfied(needed, found, needBank, needPayment) {
			break
		}
	}

	for label, ids := range found {
		if len(ids) > 1 {
			return nil, domain.E(domain.KindAmbiguous,
				"ambiguous account mapping for %q: candidates %s", label, joinIDs(ids))
		}
	}

	m := &journal.Mapping{AccountByMemo: map[string]string{}}
	var missing []string
	for label := range needed {
		if ids, ok := found[label]; ok {
			m.AccountByMemo[label] = oneID(ids)
		} else {
			missing = append(missing, label)
		}
	}
	if ids, ok := found[draft.MemoTransferToBank]; ok {
		m.BankAccountID = oneID(ids)
	} else if needBank {
		missing = append(missing, draft.MemoTransferToBank)
	}
	if ids, ok := found[draft.MemoPaymentToAmazon]; ok {
		m.PaymentAccountID = oneID(ids)
	} else if needPayment {
		missing = append(missing, draft.MemoPaymentToAmazon)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, domain.E(domain.KindUnmapped,
			"no account mapping found in %d scanned entries for: %s", scanned, strings.Join(missing, ", "))
	}

	log.Printf("[accounts] Resolved %d memo accounts from %d posted entries", len(m.AccountByMemo), scanned)
	return m, nil
}

func (r *Resolver) satisfied(needed map[string]bool, found map[string]map[string]bool, needBank, needPayment bool) bool {
	for label := range needed {
		if len(found[label]) == 0 {
			return false
		}
	}
	if needBank && len(found[draft.MemoTransferToBank]) == 0 {
		return false
	}
	if needPayment && len(found[draft.MemoPaymentToAmazon]) == 0 {
		return false
	}
	return true
}

func oneID(ids map[string]bool) string {
	for id := range ids {
		return id
	}
	return ""
}

func joinIDs(ids map[string]bool) string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
