package invoice

import (
	"strings"

	"pharmapos/backend/internal/domain"
)

// Document is the display form shared by every renderer. Money values are
// already formatted to 2 decimals.
type Document struct {
	ShopName      string
	InvoiceID     string
	InvoiceNo     string
	InvoiceDate   string
	CustomerName  string
	CustomerPhone string
	CustomerCity  string
	Lines         []DocumentLine
	GrossTotal    string
	TaxTotal      string
	NetTotal      string
	PaidAmount    string
	BalanceAmount string
	PaymentStatus string
	Payments      []DocumentPayment
}

type DocumentLine struct {
	Name       string
	BatchNo    string
	Qty        string
	Rate       string
	TaxPercent string
	Amount     string
}

type DocumentPayment struct {
	Mode   string
	Amount string
}

func NewDocument(shopName string, inv domain.Invoice, summary domain.InvoiceSummary) Document {
	doc := Document{
		ShopName:      shopName,
		InvoiceID:     inv.ID.String(),
		InvoiceNo:     inv.InvoiceNo,
		InvoiceDate:   displayDate(inv.InvoiceDate),
		CustomerName:  inv.Customer.Name,
		CustomerPhone: inv.Customer.Phone,
		CustomerCity:  inv.Customer.City,
		GrossTotal:    money(inv.GrossTotal),
		TaxTotal:      money(inv.TaxTotal),
		NetTotal:      money(inv.NetTotal),
		PaidAmount:    money(summary.PaidAmount),
		BalanceAmount: money(summary.BalanceAmount),
		PaymentStatus: string(summary.PaymentStatus),
	}
	if doc.InvoiceNo == "" {
		doc.InvoiceNo = doc.InvoiceID
	}
	for _, line := range inv.Lines {
		name := line.ProductName
		if name == "" {
			name = "Product " + line.Product.String()
		}
		doc.Lines = append(doc.Lines, DocumentLine{
			Name:       name,
			BatchNo:    line.BatchNo,
			Qty:        line.QtyBase.String(),
			Rate:       money(line.RatePerBase),
			TaxPercent: line.TaxPercent.String(),
			Amount:     money(LineAmount(line)),
		})
	}
	for _, payment := range summary.Payments {
		doc.Payments = append(doc.Payments, DocumentPayment{Mode: payment.Mode, Amount: money(payment.Amount)})
	}
	return doc
}

// FileStem is a filesystem-safe base name for downloads.
func (d Document) FileStem() string {
	name := d.InvoiceNo
	if name == "" {
		name = d.InvoiceID
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return "invoice-" + name
}

// displayDate keeps the date part of an RFC3339 timestamp.
func displayDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 10 && raw[4] == '-' && raw[7] == '-' {
		if len(raw) >= 16 && raw[10] == 'T' {
			return raw[:10] + " " + raw[11:16]
		}
		return raw[:10]
	}
	return raw
}
