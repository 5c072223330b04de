package invoice

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	escByte = 0x1B
	gsByte  = 0x1D
	lfByte  = 0x0A

	// ReceiptWidth58mm and ReceiptWidth80mm are characters per line.
	ReceiptWidth58mm = 32
	ReceiptWidth80mm = 48
)

// receipt accumulates an ESC/POS byte stream alongside a plain-text preview.
type receipt struct {
	buf     bytes.Buffer
	preview []string
	width   int
}

func newReceipt(width int) *receipt {
	if width <= 0 {
		width = ReceiptWidth58mm
	}
	r := &receipt{width: width}
	r.buf.Write([]byte{escByte, '@'})
	return r
}

func (r *receipt) align(center bool) {
	mode := byte(0)
	if center {
		mode = 1
	}
	r.buf.Write([]byte{escByte, 'a', mode})
}

func (r *receipt) bold(on bool) {
	mode := byte(0)
	if on {
		mode = 1
	}
	r.buf.Write([]byte{escByte, 'E', mode})
}

func (r *receipt) text(s string) {
	s = asciiOnly(s)
	if len(s) > r.width {
		s = s[:r.width]
	}
	r.buf.WriteString(s)
	r.buf.WriteByte(lfByte)
	r.preview = append(r.preview, s)
}

func (r *receipt) separator() {
	r.text(strings.Repeat("-", r.width))
}

func (r *receipt) keyValue(key string, value string) {
	key, value = asciiOnly(key), asciiOnly(value)
	spaces := r.width - len(key) - len(value)
	if spaces < 1 {
		spaces = 1
	}
	r.text(key + strings.Repeat(" ", spaces) + value)
}

func (r *receipt) cut() {
	r.buf.Write([]byte{lfByte, lfByte, lfByte})
	r.buf.Write([]byte{gsByte, 'V', 0x41, 0x10})
}

// Receipt is a thermal-printer rendition of an invoice.
type Receipt struct {
	Escpos      []byte
	PreviewText string
}

func RenderReceipt(doc Document, width int) Receipt {
	r := newReceipt(width)

	r.align(true)
	r.bold(true)
	r.text(doc.ShopName)
	r.bold(false)
	r.text("Invoice " + doc.InvoiceNo)
	r.text(doc.InvoiceDate)
	r.align(false)
	r.separator()
	if doc.CustomerName != "" {
		r.text("Customer: " + doc.CustomerName)
	}
	if doc.CustomerPhone != "" {
		r.text("Phone: " + doc.CustomerPhone)
	}
	r.separator()
	for _, line := range doc.Lines {
		r.text(line.Name)
		r.keyValue(fmt.Sprintf("  %s x %s", line.Qty, line.Rate), line.Amount)
	}
	r.separator()
	r.keyValue("Gross", doc.GrossTotal)
	r.keyValue("Tax", doc.TaxTotal)
	r.bold(true)
	r.keyValue("Net", doc.NetTotal)
	r.bold(false)
	for _, payment := range doc.Payments {
		r.keyValue("Paid "+payment.Mode, payment.Amount)
	}
	r.keyValue("Balance", doc.BalanceAmount)
	r.keyValue("Status", doc.PaymentStatus)
	r.separator()
	r.align(true)
	r.text("Thank you, get well soon")
	r.cut()

	return Receipt{Escpos: r.buf.Bytes(), PreviewText: strings.Join(r.preview, "\n")}
}

// asciiOnly replaces bytes thermal printers cannot print in their default code page.
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}
