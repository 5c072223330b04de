// Package cart holds the in-progress line items of one billing session.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

var ErrLineNotFound = errors.New("cart line not found")

var hundred = decimal.NewFromInt(100)

// Cart is not safe for concurrent use; the owning session serializes access.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

// FromLines rebuilds a cart, e.g. when a held cart is resumed.
func FromLines(lines []domain.CartLine) *Cart {
	c := &Cart{}
	for _, line := range lines {
		if line.ProductID.IsZero() {
			continue
		}
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		c.lines = append(c.lines, cloneLine(line))
	}
	return c
}

// Add increments an existing line or appends a new one with quantity 1.
// It reports whether a line was inserted, in which case the batch lot is
// still unresolved.
func (c *Cart) Add(product domain.Product) bool {
	if idx := c.index(product.ID); idx >= 0 {
		c.lines[idx].Quantity++
		return false
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:  product.ID,
		Name:       product.Name,
		UnitPrice:  product.MRP,
		Quantity:   1,
		GSTPercent: product.GSTPercent,
	})
	return true
}

func (c *Cart) SetBatchLot(productID domain.ID, lotID domain.ID) error {
	idx := c.index(productID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if lotID.IsZero() {
		c.lines[idx].BatchLotID = nil
		return nil
	}
	lot := lotID
	c.lines[idx].BatchLotID = &lot
	return nil
}

// UpdateQty applies delta and clamps the result to a minimum of 1.
func (c *Cart) UpdateQty(productID domain.ID, delta int) error {
	idx := c.index(productID)
	if idx < 0 {
		return ErrLineNotFound
	}
	qty := c.lines[idx].Quantity + delta
	if qty < 1 {
		qty = 1
	}
	c.lines[idx].Quantity = qty
	return nil
}

func (c *Cart) Remove(productID domain.ID) error {
	idx := c.index(productID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, cloneLine(line))
	}
	return out
}

// MissingBatchLots lists products whose batch lot is unresolved.
func (c *Cart) MissingBatchLots() []domain.ID {
	var missing []domain.ID
	for _, line := range c.lines {
		if line.BatchLotID == nil || line.BatchLotID.IsZero() {
			missing = append(missing, line.ProductID)
		}
	}
	return missing
}

func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range c.lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal
}

func (c *Cart) TaxAmount(gstRate decimal.Decimal) decimal.Decimal {
	return c.Subtotal().Mul(gstRate).Div(hundred)
}

func (c *Cart) Total(gstRate decimal.Decimal) decimal.Decimal {
	return c.Totals(gstRate).Total
}

func (c *Cart) Totals(gstRate decimal.Decimal) domain.CartTotals {
	subtotal := c.Subtotal()
	tax := c.TaxAmount(gstRate)
	return domain.CartTotals{
		Subtotal:   subtotal,
		GSTPercent: gstRate,
		TaxAmount:  tax,
		Total:      subtotal.Add(tax),
	}
}

func (c *Cart) index(productID domain.ID) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneLine(line domain.CartLine) domain.CartLine {
	if line.BatchLotID != nil {
		lot := *line.BatchLotID
		line.BatchLotID = &lot
	}
	return line
}
