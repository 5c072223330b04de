// Package invoice derives payment status for persisted invoices and renders
// them for print and export.
package invoice

import (
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// LegacyPaymentMode labels the synthetic payment built from a bare paid_amount.
const LegacyPaymentMode = "CASH"

// Summarize computes paid, balance and status. The server net total is
// trusted as sent.
func Summarize(inv domain.Invoice) domain.InvoiceSummary {
	payments := append([]domain.InvoicePayment(nil), inv.Payments...)
	if len(payments) == 0 && inv.PaidAmount.Valid && inv.PaidAmount.Decimal.IsPositive() {
		payments = []domain.InvoicePayment{{Mode: LegacyPaymentMode, Amount: inv.PaidAmount.Decimal}}
	}

	paid := decimal.Zero
	for _, payment := range payments {
		paid = paid.Add(payment.Amount)
	}

	net := inv.NetTotal
	balance := net.Sub(paid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	status := domain.PaymentStatusUnpaid
	switch {
	case net.IsPositive() && paid.GreaterThanOrEqual(net):
		status = domain.PaymentStatusPaid
	case paid.IsPositive() && paid.LessThan(net):
		status = domain.PaymentStatusCredit
	}

	if payments == nil {
		payments = []domain.InvoicePayment{}
	}
	return domain.InvoiceSummary{
		Payments:      payments,
		PaidAmount:    paid,
		BalanceAmount: balance,
		PaymentStatus: status,
	}
}

// LineAmount is the server line total, or qty x rate when the backend
// omitted it.
func LineAmount(line domain.InvoiceLine) decimal.Decimal {
	if !line.LineTotal.IsZero() {
		return line.LineTotal
	}
	return line.QtyBase.Mul(line.RatePerBase)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
