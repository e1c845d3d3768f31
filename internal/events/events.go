// Package events defines the typed marketplace financial events the engine
// consumes, and the source interface they arrive through. Event payloads are
// validated at the decode boundary; unrecognized shapes are rejected instead
// of being read as zero values.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/money"
)

// Kind discriminates event variants.
type Kind string

const (
	KindShipment   Kind = "shipment"
	KindRefund     Kind = "refund"
	KindAdjustment Kind = "adjustment"
	KindServiceFee Kind = "service_fee"
)

// Item is one SKU-level money breakdown inside a shipment or refund event.
// Amounts carry the marketplace sign convention: earnings positive, charges
// (fees, promotions given) negative.
type Item struct {
	SKU       string      `json:"sku"`
	Quantity  int64       `json:"quantity"`
	Principal money.Cents `json:"principal_cents"`
	Shipping  money.Cents `json:"shipping_cents"`
	Promotion money.Cents `json:"promotion_cents"`
	Fees      money.Cents `json:"fees_cents"`
}

// Total is the item's net contribution to the payout.
func (i Item) Total() money.Cents {
	return i.Principal + i.Shipping + i.Promotion + i.Fees
}

// Event is one marketplace financial event. Which fields are meaningful
// depends on Kind: shipments and refunds carry Items, adjustments and
// service fees carry Description and Amount.
type Event struct {
	Kind        Kind        `json:"kind"`
	PostedDate  string      `json:"posted_date"` // ISO day
	OrderID     string      `json:"order_id,omitempty"`
	Items       []Item      `json:"items,omitempty"`
	Description string      `json:"description,omitempty"`
	Amount      money.Cents `json:"amount_cents,omitempty"`
}

// Total is the event's net contribution to the payout.
func (e Event) Total() money.Cents {
	switch e.Kind {
	case KindShipment, KindRefund:
		var sum money.Cents
		for _, it := range e.Items {
			sum += it.Total()
		}
		return sum
	default:
		return e.Amount
	}
}

// Validate enforces the per-kind shape rules.
func (e Event) Validate() error {
	if e.PostedDate == "" {
		return domain.E(domain.KindMalformed, "%s event missing posted date", e.Kind)
	}
	if _, err := time.Parse("2006-01-02", e.PostedDate); err != nil {
		return domain.Wrap(domain.KindMalformed, err, "%s event has invalid posted date %q", e.Kind, e.PostedDate)
	}
	switch e.Kind {
	case KindShipment, KindRefund:
		if e.OrderID == "" {
			return domain.E(domain.KindMalformed, "%s event missing order id", e.Kind)
		}
		if len(e.Items) == 0 {
			return domain.E(domain.KindMalformed, "%s event for order %s has no items", e.Kind, e.OrderID)
		}
		for _, it := range e.Items {
			if it.SKU == "" {
				return domain.E(domain.KindMalformed, "%s event for order %s has item without SKU", e.Kind, e.OrderID)
			}
			if it.Quantity < 0 {
				return domain.E(domain.KindMalformed, "%s event for order %s: negative quantity on SKU %s", e.Kind, e.OrderID, it.SKU)
			}
		}
	case KindAdjustment, KindServiceFee:
		if e.Description == "" {
			return domain.E(domain.KindMalformed, "%s event missing description", e.Kind)
		}
	default:
		return domain.E(domain.KindMalformed, "unrecognized event kind %q", e.Kind)
	}
	return nil
}

// DecodeList decodes and validates a JSON array of events. Unknown fields
// and unknown kinds are errors.
func DecodeList(data []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.Wrap(domain.KindMalformed, err, "decode event list")
	}

	out := make([]Event, 0, len(raw))
	for i, msg := range raw {
		var ev Event
		if err := strictUnmarshal(msg, &ev); err != nil {
			return nil, domain.Wrap(domain.KindMalformed, err, "decode event %d", i)
		}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Group is a settlement event group as reported by the marketplace.
type Group struct {
	ID           string      `json:"id"`
	SettlementID string      `json:"settlement_id"`
	Total        money.Cents `json:"total_cents"`
	Start        string      `json:"start"`
	End          string      `json:"end"`
}

// Page is one page of events with an opaque continuation token.
type Page struct {
	Events    []Event
	NextToken string
}

// Source lists marketplace financial events. Pagination tokens are opaque
// and passed back verbatim.
type Source interface {
	// EventGroupForSettlement resolves the event group for a settlement id.
	EventGroupForSettlement(ctx context.Context, settlementID string) (Group, error)
	// ListEventGroups lists groups whose period overlaps [start, end].
	ListEventGroups(ctx context.Context, start, end time.Time) ([]Group, error)
	// ListEvents returns one page of events for a group. An empty token
	// requests the first page; an empty NextToken ends the scan.
	ListEvents(ctx context.Context, groupID, token string) (Page, error)
}
