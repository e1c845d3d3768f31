package draft

import (
	"fmt"
	"sort"
	"time"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/events"
	"github.com/lmb/settlements/internal/money"
)

// Builder turns the raw financial events of one settlement group into a
// Draft. The builder itself is stateless across settlements; all per-run
// state lives in Build's locals.
type Builder struct {
	Resolver BrandResolver
	// KnownBrands, when set, is the brand set the marketplace reports for
	// the seller. Build fails if the brands resolved from the events do not
	// correspond one-to-one.
	KnownBrands []string
}

// segAccum collects one calendar month of a settlement while events stream
// through.
type segAccum struct {
	month        string
	memo         map[string]money.Cents
	rows         []domain.AuditRow
	unitsByBrand map[string]int64
	fees         []events.Event
}

// Build produces the settlement draft. Memo totals use the ledger-natural
// sign convention (income positive when earned, costs positive when
// incurred) while audit rows keep the marketplace's raw signs. Any SKU
// without a brand mapping, any event with a missing or invalid posted date,
// and any brand-set mismatch rejects the whole settlement.
func (b *Builder) Build(settlementID, region, marketplace, eventGroupID string, originalTotal money.Cents, evs []events.Event) (*Draft, error) {
	if len(evs) == 0 {
		return nil, domain.E(domain.KindMalformed, "settlement %s: event group %s has no events", settlementID, eventGroupID)
	}

	months := map[string]*segAccum{}
	resolvedBrands := map[string]bool{}

	accumFor := func(postedDate string) *segAccum {
		m := postedDate[:7]
		acc, ok := months[m]
		if !ok {
			acc = &segAccum{
				month:        m,
				memo:         map[string]money.Cents{},
				unitsByBrand: map[string]int64{},
			}
			months[m] = acc
		}
		return acc
	}

	for _, ev := range evs {
		// Posted dates were validated at decode; re-check here because a
		// partially dated settlement must never be segmented.
		if err := ev.Validate(); err != nil {
			return nil, domain.Wrap(domain.KindOf(err), err, "settlement %s rejected", settlementID)
		}
		acc := accumFor(ev.PostedDate)

		switch ev.Kind {
		case events.KindShipment:
			for _, it := range ev.Items {
				brand, err := b.Resolver.Brand(it.SKU)
				if err != nil {
					return nil, fmt.Errorf("settlement %s: %w", settlementID, err)
				}
				resolvedBrands[brand] = true
				acc.unitsByBrand[brand] += it.Quantity

				acc.memo[brandLabel(memoSalesPrincipal, brand)] += it.Principal
				acc.memo[brandLabel(memoSalesShipping, brand)] += it.Shipping
				acc.memo[brandLabel(memoPromotions, brand)] += -it.Promotion
				acc.memo[brandLabel(memoFees, brand)] += -it.Fees

				acc.rows = append(acc.rows, domain.AuditRow{
					Marketplace: marketplace,
					OrderID:     ev.OrderID,
					SKU:         it.SKU,
					Brand:       brand,
					PostedDate:  ev.PostedDate,
					EventType:   string(ev.Kind),
					Memo:        brandLabel("Amazon Sales", brand),
					Amount:      it.Total(),
				})
			}

		case events.KindRefund:
			for _, it := range ev.Items {
				brand, err := b.Resolver.Brand(it.SKU)
				if err != nil {
					return nil, fmt.Errorf("settlement %s: %w", settlementID, err)
				}
				resolvedBrands[brand] = true

				acc.memo[brandLabel(memoRefunds, brand)] += -(it.Principal + it.Shipping + it.Promotion)
				acc.memo[brandLabel(memoFees, brand)] += -it.Fees

				acc.rows = append(acc.rows, domain.AuditRow{
					Marketplace: marketplace,
					OrderID:     ev.OrderID,
					SKU:         it.SKU,
					Brand:       brand,
					PostedDate:  ev.PostedDate,
					EventType:   string(ev.Kind),
					Memo:        brandLabel(memoRefunds, brand),
					Amount:      it.Total(),
				})
			}

		case events.KindAdjustment:
			acc.memo[memoAdjustments] += -ev.Amount
			acc.rows = append(acc.rows, domain.AuditRow{
				Marketplace: marketplace,
				OrderID:     ev.OrderID,
				PostedDate:  ev.PostedDate,
				EventType:   string(ev.Kind),
				Memo:        ev.Description,
				Amount:      ev.Amount,
			})

		case events.KindServiceFee:
			// Aggregate costs are spread across brands once the month's
			// unit counts are complete.
			acc.fees = append(acc.fees, ev)
			acc.rows = append(acc.rows, domain.AuditRow{
				Marketplace: marketplace,
				PostedDate:  ev.PostedDate,
				EventType:   string(ev.Kind),
				Memo:        ev.Description,
				Amount:      ev.Amount,
			})
		}
	}

	if err := checkBrandCorrespondence(resolvedBrands, b.KnownBrands); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", settlementID, err)
	}

	for _, acc := range months {
		if err := acc.spreadFees(); err != nil {
			return nil, fmt.Errorf("settlement %s month %s: %w", settlementID, acc.month, err)
		}
	}

	keys := make([]string, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Strings(keys)

	d := &Draft{
		SettlementID:  settlementID,
		EventGroupID:  eventGroupID,
		Region:        region,
		Marketplace:   marketplace,
		OriginalTotal: originalTotal,
		Segments:      make([]Segment, 0, len(keys)),
	}
	for i, m := range keys {
		acc := months[m]
		docNumber := DocNumber(settlementID, region, i)
		for r := range acc.rows {
			acc.rows[r].InvoiceID = docNumber
		}
		d.Segments = append(d.Segments, Segment{
			Ordinal:    i,
			Month:      m,
			DocNumber:  docNumber,
			TxnDate:    endOfMonth(m),
			MemoTotals: acc.memo,
			AuditRows:  acc.rows,
		})
	}

	// The settlement-level control line rides on the terminal segment only.
	last := &d.Segments[len(d.Segments)-1]
	last.MemoTotals[ControlMemoFor(originalTotal)] = originalTotal

	return d, nil
}

// spreadFees allocates each SKU-less aggregate cost across the month's
// brands in proportion to units sold, cent-exact. A month with no unit
// weights keeps the cost unbranded.
func (a *segAccum) spreadFees() error {
	var weights []money.Weight
	brands := make([]string, 0, len(a.unitsByBrand))
	for b := range a.unitsByBrand {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	var totalUnits int64
	for _, b := range brands {
		weights = append(weights, money.Weight{Key: b, Weight: a.unitsByBrand[b]})
		totalUnits += a.unitsByBrand[b]
	}

	for _, fee := range a.fees {
		cost := -fee.Amount // charge is negative on the wire
		if totalUnits == 0 {
			a.memo[fee.Description] += cost
			continue
		}
		shares, err := money.AllocateByWeight(cost, weights)
		if err != nil {
			return domain.Wrap(domain.KindInconsistent, err, "spread %q", fee.Description)
		}
		for _, b := range brands {
			if shares[b] != 0 {
				a.memo[brandLabel(fee.Description, b)] += shares[b]
			}
		}
	}
	return nil
}

func brandLabel(base, brand string) string {
	return base + " - " + brand
}

func endOfMonth(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month + "-01"
	}
	return t.AddDate(0, 1, -1).Format("2006-01-02")
}
