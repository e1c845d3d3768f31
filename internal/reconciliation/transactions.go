package reconciliation

import (
	"sort"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// TxnStatus classifies one order id in the transaction reconciliation.
type TxnStatus string

const (
	TxnMatched     TxnStatus = "matched"
	TxnDiscrepancy TxnStatus = "discrepancy"
	TxnAmazonOnly  TxnStatus = "amazon-only"
	TxnAuditOnly   TxnStatus = "lmb-only"
)

// ExportRow is one row of an Amazon transaction export, reduced to what the
// reconciler aggregates.
type ExportRow struct {
	OrderID string
	Total   money.Cents
}

// TxnRow is the per-order verdict. Difference is Amazon minus audit.
type TxnRow struct {
	OrderID     string      `json:"order_id"`
	AmazonTotal money.Cents `json:"amazon_total_cents"`
	AuditTotal  money.Cents `json:"audit_total_cents"`
	Difference  money.Cents `json:"difference_cents"`
	Status      TxnStatus   `json:"status"`
}

// statusRank orders the report for triage: amount discrepancies need action
// first, one-sided rows next (often timing, sometimes a missed posting),
// clean matches last.
var statusRank = map[TxnStatus]int{
	TxnDiscrepancy: 0,
	TxnAmazonOnly:  1,
	TxnAuditOnly:   2,
	TxnMatched:     3,
}

// ReconcileTransactions aggregates both sides by order id and classifies
// every order id present in either. Totals within one cent of each other
// are a match. The result is ephemeral: computed per request, never
// persisted.
func ReconcileTransactions(export []ExportRow, audit []domain.AuditRow) []TxnRow {
	amazonByOrder := map[string]money.Cents{}
	for _, r := range export {
		amazonByOrder[r.OrderID] += r.Total
	}

	auditByOrder := map[string]money.Cents{}
	for _, r := range audit {
		if r.OrderID == "" {
			continue // settlement-level fees have no order
		}
		auditByOrder[r.OrderID] += r.Amount
	}

	orders := map[string]bool{}
	for id := range amazonByOrder {
		orders[id] = true
	}
	for id := range auditByOrder {
		orders[id] = true
	}

	rows := make([]TxnRow, 0, len(orders))
	for id := range orders {
		amazonTotal, inAmazon := amazonByOrder[id]
		auditTotal, inAudit := auditByOrder[id]

		row := TxnRow{
			OrderID:     id,
			AmazonTotal: amazonTotal,
			AuditTotal:  auditTotal,
			Difference:  amazonTotal - auditTotal,
		}
		switch {
		case inAmazon && !inAudit:
			row.Status = TxnAmazonOnly
		case !inAmazon && inAudit:
			row.Status = TxnAuditOnly
		case row.Difference.Abs() <= 1:
			row.Status = TxnMatched
		default:
			row.Status = TxnDiscrepancy
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		ri, rj := statusRank[rows[i].Status], statusRank[rows[j].Status]
		if ri != rj {
			return ri < rj
		}
		return rows[i].OrderID < rows[j].OrderID
	})
	return rows
}
