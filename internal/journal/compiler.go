package journal

import (
	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/money"
)

// Compile turns a settlement draft into one balanced journal entry per
// segment. Every segment balances through its own bank/payment control
// line; the signed control amounts across all segments must net to the
// settlement's reported total, otherwise the events do not explain the
// payout and nothing may be posted.
func Compile(d *draft.Draft, m Mapping, cats CategoryTable, note string) ([]Entry, error) {
	entries := make([]Entry, 0, len(d.Segments))
	var controlSum money.Cents

	for _, seg := range d.Segments {
		entry := Entry{
			DocNumber: seg.DocNumber,
			TxnDate:   seg.TxnDate,
			Note:      note,
		}

		var debit, credit money.Cents
		for _, memo := range sortedMemos(seg.MemoTotals) {
			if draft.IsControlMemo(memo) {
				continue
			}
			amount := seg.MemoTotals[memo]
			if amount == 0 {
				continue
			}

			accountID, ok := m.AccountByMemo[memo]
			if !ok {
				return nil, domain.E(domain.KindUnmapped, "no account mapping for memo %q", memo)
			}
			cat, ok := cats.Classify(memo)
			if !ok {
				return nil, domain.E(domain.KindUnmapped, "no debit/credit category for memo %q", memo)
			}

			line := Line{AccountID: accountID, Description: memo}
			positive := amount > 0
			if !positive {
				amount = -amount
			}
			line.Amount = amount

			// Positive income credits, positive cost debits; negatives are
			// reversals and flip sides.
			switch {
			case cat == Income && positive, cat == Cost && !positive:
				line.Type = Credit
				credit += amount
			default:
				line.Type = Debit
				debit += amount
			}
			entry.Lines = append(entry.Lines, line)
		}

		// The control line is sized to force balance.
		if net := credit - debit; net != 0 {
			var control Line
			if net > 0 {
				if m.BankAccountID == "" {
					return nil, domain.E(domain.KindUnmapped, "no account mapping for control line %q", draft.MemoTransferToBank)
				}
				control = Line{
					AccountID:   m.BankAccountID,
					Type:        Debit,
					Amount:      net,
					Description: draft.MemoTransferToBank,
				}
			} else {
				if m.PaymentAccountID == "" {
					return nil, domain.E(domain.KindUnmapped, "no account mapping for control line %q", draft.MemoPaymentToAmazon)
				}
				control = Line{
					AccountID:   m.PaymentAccountID,
					Type:        Credit,
					Amount:      -net,
					Description: draft.MemoPaymentToAmazon,
				}
			}
			entry.Lines = append(entry.Lines, control)
			controlSum += net
		}

		// A segment whose memos all net to zero has nothing to post; an
		// empty entry must never reach the ledger.
		if len(entry.Lines) == 0 {
			continue
		}

		if err := entry.Balanced(); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if controlSum != d.OriginalTotal {
		return nil, domain.E(domain.KindInconsistent,
			"settlement %s: events net to %s but marketplace reported %s",
			d.SettlementID, describeCents(controlSum), describeCents(d.OriginalTotal))
	}

	return entries, nil
}
