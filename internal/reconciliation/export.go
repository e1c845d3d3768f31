package reconciliation

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// ParseAmazonExport parses an Amazon transaction export CSV into rows the
// transaction reconciler can aggregate.
//
// Expected header (further columns ignored):
//
//	date,order id,type,sku,quantity,total
func ParseAmazonExport(data []byte) ([]ExportRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, domain.Wrap(domain.KindMalformed, err, "read export header")
	}

	orderCol, totalCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "order id", "order_id":
			orderCol = i
		case "total":
			totalCol = i
		}
	}
	if orderCol < 0 || totalCol < 0 {
		return nil, domain.E(domain.KindMalformed, "export missing 'order id' or 'total' column")
	}

	var rows []ExportRow
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.Wrap(domain.KindMalformed, err, "export line %d", lineNum)
		}
		if len(row) <= orderCol || len(row) <= totalCol {
			continue
		}

		orderID := strings.TrimSpace(row[orderCol])
		if orderID == "" {
			continue
		}
		total, err := money.ParseAmount(cleanAmount(row[totalCol]))
		if err != nil {
			return nil, domain.Wrap(domain.KindMalformed, err, "export line %d total", lineNum)
		}
		rows = append(rows, ExportRow{OrderID: orderID, Total: total})
	}

	if len(rows) == 0 {
		return nil, domain.E(domain.KindMalformed, "export has no data rows")
	}
	return rows, nil
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	if strings.HasPrefix(s, "-$") {
		s = "-" + strings.TrimPrefix(s, "-$")
	}
	return s
}
