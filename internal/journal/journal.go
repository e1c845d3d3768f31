// Package journal compiles settlement drafts into balanced double-entry
// journal line sets.
package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// PostingType is the side of a journal line.
type PostingType string

const (
	Debit  PostingType = "Debit"
	Credit PostingType = "Credit"
)

// Line is one journal line. Amount is a positive magnitude; the side is
// carried by Type. Description is the memo label, used both for human review
// and as the reconciliation join key.
type Line struct {
	AccountID   string      `json:"account_id"`
	Type        PostingType `json:"posting_type"`
	Amount      money.Cents `json:"amount_cents"`
	Description string      `json:"description"`
}

// Entry is one compiled journal entry, posted as a unit.
type Entry struct {
	DocNumber string `json:"doc_number"`
	TxnDate   string `json:"txn_date"`
	Note      string `json:"note,omitempty"`
	Lines     []Line `json:"lines"`
}

// Balanced verifies the balanced-ledger invariant. A violation is a
// construction bug, never a business condition.
func (e *Entry) Balanced() error {
	var debit, credit money.Cents
	for _, l := range e.Lines {
		switch l.Type {
		case Debit:
			debit += l.Amount
		case Credit:
			credit += l.Amount
		default:
			return domain.E(domain.KindInconsistent, "entry %s: line %q has posting type %q", e.DocNumber, l.Description, l.Type)
		}
		if l.Amount < 0 {
			return domain.E(domain.KindInconsistent, "entry %s: line %q has negative amount %d", e.DocNumber, l.Description, l.Amount)
		}
	}
	if debit != credit {
		return domain.E(domain.KindInconsistent, "entry %s unbalanced: debit %s != credit %s", e.DocNumber, debit, credit)
	}
	return nil
}

// Mapping resolves memo labels to external account ids, plus the two
// control accounts. Built once per run and treated as immutable.
type Mapping struct {
	AccountByMemo    map[string]string
	BankAccountID    string
	PaymentAccountID string
}

// Category classifies a memo label for debit/credit assignment. Positive
// income posts as a credit, positive cost as a debit; negative values are
// reversals and flip sides. Sign alone is not enough, cost reversals are
// common.
type Category int

const (
	Income Category = iota
	Cost
)

// CategoryTable classifies memo labels by longest matching prefix. The
// table is configuration derived from chart-of-accounts conventions, not
// hard-coded business logic.
type CategoryTable struct {
	prefixes map[string]Category
}

// NewCategoryTable builds a table from prefix→category rules.
func NewCategoryTable(rules map[string]Category) CategoryTable {
	p := make(map[string]Category, len(rules))
	for k, v := range rules {
		p[k] = v
	}
	return CategoryTable{prefixes: p}
}

// DefaultCategories reflects the standard Amazon settlement chart of
// accounts: sales lines are income, everything else a selling cost.
func DefaultCategories() CategoryTable {
	return NewCategoryTable(map[string]Category{
		"Amazon Sales":             Income,
		"Amazon Promotions":        Cost,
		"Amazon Refunds":           Cost,
		"Amazon Fees":              Cost,
		"Amazon Adjustments":       Cost,
		"Amazon Advertising Costs": Cost,
		"Amazon Storage Fees":      Cost,
		"Amazon Subscription Fees": Cost,
	})
}

// Classify returns the category for a memo label.
func (t CategoryTable) Classify(label string) (Category, bool) {
	best := -1
	var cat Category
	for prefix, c := range t.prefixes {
		if strings.HasPrefix(label, prefix) && len(prefix) > best {
			best, cat = len(prefix), c
		}
	}
	return cat, best >= 0
}

// sortedMemos returns map keys in stable order so compiled entries are
// deterministic.
func sortedMemos(m map[string]money.Cents) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describeCents(c money.Cents) string {
	return fmt.Sprintf("%s (%d cents)", c, int64(c))
}
