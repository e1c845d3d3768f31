// Package draft builds per-settlement posting drafts from marketplace
// financial events: calendar-month segments with memo totals, deterministic
// document numbers, and flat audit rows.
package draft

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// Memo labels are the human-readable journal line descriptions. They double
// as the account-mapping and reconciliation join keys, so they must stay
// byte-stable across runs.
const (
	MemoTransferToBank  = "Transfer to Bank"
	MemoPaymentToAmazon = "Payment to Amazon"

	memoSalesPrincipal = "Amazon Sales - Principal"
	memoSalesShipping  = "Amazon Sales - Shipping"
	memoPromotions     = "Amazon Promotions"
	memoRefunds        = "Amazon Refunds"
	memoFees           = "Amazon Fees"
	memoAdjustments    = "Amazon Adjustments"
)

// IsControlMemo reports whether label is a settlement control line.
func IsControlMemo(label string) bool {
	return label == MemoTransferToBank || label == MemoPaymentToAmazon
}

// ControlMemoFor returns the control memo label implied by the sign of the
// settlement total: money received is a bank transfer, money owed is a
// payment to the marketplace.
func ControlMemoFor(total money.Cents) string {
	if total < 0 {
		return MemoPaymentToAmazon
	}
	return MemoTransferToBank
}

// Segment is one calendar-month slice of a settlement, posted as one
// journal entry.
type Segment struct {
	Ordinal    int                    `json:"ordinal"`
	Month      string                 `json:"month"` // "2025-01"
	DocNumber  string                 `json:"doc_number"`
	TxnDate    string                 `json:"txn_date"` // ISO day, end of month
	MemoTotals map[string]money.Cents `json:"memo_totals"`
	AuditRows  []domain.AuditRow      `json:"-"`
}

// Draft is a complete settlement posting draft. It is a value object:
// constructed once per run and never mutated afterwards.
type Draft struct {
	SettlementID  string      `json:"settlement_id"`
	EventGroupID  string      `json:"event_group_id"`
	Region        string      `json:"region"`
	Marketplace   string      `json:"marketplace"`
	OriginalTotal money.Cents `json:"original_total_cents"`
	Segments      []Segment   `json:"segments"`
}

// MemoLabels returns every memo label the draft will actually post, sorted,
// including the control memo on the terminal segment. Zero-valued memos are
// excluded: the compiler emits no line for them, so requiring an account
// mapping for one would reject a postable settlement.
func (d *Draft) MemoLabels() []string {
	set := map[string]bool{}
	for _, seg := range d.Segments {
		for label, amount := range seg.MemoTotals {
			if amount != 0 {
				set[label] = true
			}
		}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// DocNumbers returns the segment document numbers in order.
func (d *Draft) DocNumbers() []string {
	out := make([]string, len(d.Segments))
	for i, seg := range d.Segments {
		out[i] = seg.DocNumber
	}
	return out
}

// DocNumber derives the deterministic document number for one segment. It is
// a pure function of settlement identity, never of wall-clock time or call
// order, because it is the entire idempotency mechanism for posting.
func DocNumber(settlementID, region string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", settlementID, region, ordinal)))
	return fmt.Sprintf("LMB-%s-%s", region, strings.ToUpper(fmt.Sprintf("%x", sum[:5])))
}
