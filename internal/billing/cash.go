package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// CashPayment is the transient state of the cash sub-flow.
type CashPayment struct {
	total    decimal.Decimal
	raw      string
	tendered decimal.Decimal
	valid    bool
}

func newCashPayment(total decimal.Decimal) *CashPayment {
	return &CashPayment{total: total}
}

// SetTendered records the latest input and recomputes change.
func (c *CashPayment) SetTendered(raw string) {
	c.raw = raw
	c.tendered, c.valid = ParseTendered(raw)
}

// Change is max(0, tendered - total); invalid input yields zero.
func (c *CashPayment) Change() decimal.Decimal {
	if !c.valid {
		return decimal.Zero
	}
	return ChangeDue(c.tendered, c.total)
}

// Tendered returns the accepted amount or ErrInvalidTender.
func (c *CashPayment) Tendered() (decimal.Decimal, error) {
	if !c.valid || !c.tendered.IsPositive() {
		return decimal.Zero, ErrInvalidTender
	}
	return c.tendered, nil
}

func (c *CashPayment) view() *domain.CashPaymentView {
	return &domain.CashPaymentView{Tendered: c.raw, Change: c.Change()}
}

// ParseTendered parses a keyed-in amount. Only finite decimals are accepted.
func ParseTendered(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func ChangeDue(tendered decimal.Decimal, total decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}
