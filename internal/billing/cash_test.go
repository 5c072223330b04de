package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCashChange(t *testing.T) {
	cases := []struct {
		tendered string
		total    int64
		want     string
	}{
		{tendered: "200", total: 112, want: "88"},
		{tendered: "112", total: 112, want: "0"},
		{tendered: "100", total: 112, want: "0"},
		{tendered: "150.50", total: 112, want: "38.5"},
	}
	for _, tc := range cases {
		c := newCashPayment(decimal.NewFromInt(tc.total))
		c.SetTendered(tc.tendered)
		if got := c.Change(); !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("tendered %s total %d: expected change %s, got %s", tc.tendered, tc.total, tc.want, got)
		}
	}
}

func TestCashTenderRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "  ", "abc", "0", "-5", "12..5"} {
		c := newCashPayment(decimal.NewFromInt(112))
		c.SetTendered(raw)
		if _, err := c.Tendered(); !errors.Is(err, ErrInvalidTender) {
			t.Fatalf("tender %q: expected ErrInvalidTender, got %v", raw, err)
		}
		if !c.Change().IsZero() {
			t.Fatalf("tender %q: expected zero change", raw)
		}
	}
}

func TestCashTenderAcceptsPositiveAmount(t *testing.T) {
	c := newCashPayment(decimal.NewFromInt(112))
	c.SetTendered(" 500 ")
	got, err := c.Tendered()
	if err != nil {
		t.Fatalf("tendered: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected 500, got %s", got)
	}
}
