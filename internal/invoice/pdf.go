package invoice

import (
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pdfPageWidth  = 210.0
	pdfMargin     = 10.0
	pdfRowHeight  = 7.0
	pdfHeaderSize = 48.0
	pdfFooterSize = 44.0
)

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"Item", 70, "L"},
	{"Batch", 30, "L"},
	{"Qty", 18, "R"},
	{"Rate", 22, "R"},
	{"GST %", 18, "R"},
	{"Amount", 32, "R"},
}

// PDFHeight is the page height needed to hold the whole invoice on one page.
func PDFHeight(doc Document) float64 {
	rows := len(doc.Lines) + 1 + len(doc.Payments)
	return pdfHeaderSize + float64(rows)*pdfRowHeight + pdfFooterSize
}

// RenderPDF writes a single-page PDF the width of an A4 page whose height
// grows with the number of lines.
func RenderPDF(w io.Writer, doc Document) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pdfPageWidth, Ht: PDFHeight(doc)},
	})
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Invoice "+doc.InvoiceNo, true)
	pdf.AddPage()

	contentWidth := pdfPageWidth - 2*pdfMargin
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentWidth, 8, tr(doc.ShopName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentWidth, 6, "Invoice: "+doc.InvoiceNo+"    Date: "+doc.InvoiceDate, "", 1, "L", false, 0, "")
	customer := "Customer: " + doc.CustomerName
	if doc.CustomerPhone != "" {
		customer += " (" + doc.CustomerPhone + ")"
	}
	if doc.CustomerCity != "" {
		customer += ", " + doc.CustomerCity
	}
	pdf.CellFormat(contentWidth, 6, tr(customer), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, pdfRowHeight, col.title, "1", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range doc.Lines {
		values := []string{tr(line.Name), tr(line.BatchNo), line.Qty, line.Rate, line.TaxPercent, line.Amount}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, pdfRowHeight, fitText(pdf, values[i], col.width-2), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	labelWidth := contentWidth - 40
	totals := [][2]string{
		{"Gross", doc.GrossTotal},
		{"Tax", doc.TaxTotal},
		{"Net", doc.NetTotal},
		{"Paid", doc.PaidAmount},
		{"Balance", doc.BalanceAmount},
	}
	for _, row := range totals {
		pdf.CellFormat(labelWidth, 6, row[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, row[1], "", 1, "R", false, 0, "")
	}
	for _, payment := range doc.Payments {
		pdf.CellFormat(labelWidth, pdfRowHeight, payment.Mode, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, pdfRowHeight, payment.Amount, "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentWidth, 8, "Status: "+doc.PaymentStatus, "", 1, "R", false, 0, "")

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func fitText(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
