package domain

import (
	"encoding/json"
	"testing"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var payload struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 42, "b": " 7 ", "c": null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A != "42" || payload.B != "7" || payload.C != "" {
		t.Fatalf("unexpected ids %+v", payload)
	}
}

func TestIDMarshalsNumericIDsAsNumbers(t *testing.T) {
	out, err := json.Marshal(map[string]ID{"numeric": "15", "slug": "lot-a"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"numeric":15,"slug":"lot-a"}` {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestIDKeepsZeroPaddedDigitsQuoted(t *testing.T) {
	var in struct {
		A ID `json:"a"`
	}
	if err := json.Unmarshal([]byte(`{"a": "007"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(InvoiceLinePayload{Product: in.A, BatchLot: "0012", QtyBase: 1})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("payload is not valid json: %v (%s)", err, out)
	}
	if decoded["product"] != "007" || decoded["batch_lot"] != "0012" {
		t.Fatalf("expected zero-padded ids as strings, got %s", out)
	}

	out, err = json.Marshal(map[string]ID{"zero": "0"})
	if err != nil || string(out) != `{"zero":0}` {
		t.Fatalf("expected bare zero, got %s (%v)", out, err)
	}
}

func TestInvoiceCustomerAcceptsObjectOrID(t *testing.T) {
	var inv Invoice
	if err := json.Unmarshal([]byte(`{"id": 3, "customer": {"id": 9, "name": "Asha", "phone": "9876543210"}}`), &inv); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if inv.Customer.ID != "9" || inv.Customer.Name != "Asha" {
		t.Fatalf("unexpected customer %+v", inv.Customer)
	}

	if err := json.Unmarshal([]byte(`{"id": 3, "customer": 12}`), &inv); err != nil {
		t.Fatalf("unmarshal id: %v", err)
	}
	if inv.Customer.ID != "12" || inv.Customer.Name != "" {
		t.Fatalf("unexpected customer %+v", inv.Customer)
	}
}
