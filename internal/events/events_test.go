package events

import (
	"testing"

	"github.com/lmb/settlements/internal/domain"
)

func TestDecodeListShipment(t *testing.T) {
	data := []byte(`[
		{"kind":"shipment","posted_date":"2025-01-05","order_id":"111-001",
		 "items":[{"sku":"SKU-A","quantity":2,"principal_cents":2000,"shipping_cents":300,"promotion_cents":-100,"fees_cents":-450}]},
		{"kind":"service_fee","posted_date":"2025-01-31","description":"Amazon Advertising Costs","amount_cents":-1500}
	]`)
	evs, err := DecodeList(data)
	if err != nil {
		t.Fatalf("DecodeList: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if got := evs[0].Total(); got != 1750 {
		t.Errorf("shipment total = %d, want 1750", got)
	}
	if got := evs[1].Total(); got != -1500 {
		t.Errorf("fee total = %d, want -1500", got)
	}
}

func TestDecodeListRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"unknown kind", `[{"kind":"mystery","posted_date":"2025-01-05"}]`},
		{"unknown field", `[{"kind":"shipment","posted_date":"2025-01-05","order_id":"x","items":[{"sku":"A","quantity":1}],"surprise":true}]`},
		{"missing posted date", `[{"kind":"refund","order_id":"x","items":[{"sku":"A","quantity":1}]}]`},
		{"bad posted date", `[{"kind":"adjustment","posted_date":"Jan 5","description":"d"}]`},
		{"shipment without items", `[{"kind":"shipment","posted_date":"2025-01-05","order_id":"x"}]`},
		{"item without sku", `[{"kind":"shipment","posted_date":"2025-01-05","order_id":"x","items":[{"quantity":1}]}]`},
		{"fee without description", `[{"kind":"service_fee","posted_date":"2025-01-05","amount_cents":-5}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeList([]byte(tc.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !domain.IsKind(err, domain.KindMalformed) {
				t.Fatalf("kind = %q, want malformed_input", domain.KindOf(err))
			}
		})
	}
}
