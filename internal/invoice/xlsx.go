package invoice

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Invoice"

// RenderXLSX writes the invoice lines and totals as a single-sheet workbook.
func RenderXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}

	cells := map[string]any{
		"A1": "Invoice",
		"B1": doc.InvoiceNo,
		"A2": "Date",
		"B2": doc.InvoiceDate,
		"A3": "Customer",
		"B3": doc.CustomerName,
		"A4": "Phone",
		"B4": doc.CustomerPhone,
	}
	headers := []string{"Item", "Batch", "Qty", "Rate", "GST %", "Amount"}
	for i, h := range headers {
		cells[fmt.Sprintf("%c6", 'A'+i)] = h
	}

	row := 7
	for _, line := range doc.Lines {
		values := []string{line.Name, line.BatchNo, line.Qty, line.Rate, line.TaxPercent, line.Amount}
		for i, v := range values {
			cells[fmt.Sprintf("%c%d", 'A'+i, row)] = v
		}
		row++
	}

	row++
	totals := [][2]string{
		{"Gross", doc.GrossTotal},
		{"Tax", doc.TaxTotal},
		{"Net", doc.NetTotal},
		{"Paid", doc.PaidAmount},
		{"Balance", doc.BalanceAmount},
		{"Status", doc.PaymentStatus},
	}
	for _, t := range totals {
		cells[fmt.Sprintf("E%d", row)] = t[0]
		cells[fmt.Sprintf("F%d", row)] = t[1]
		row++
	}

	for cell, value := range cells {
		if err := f.SetCellValue(xlsxSheet, cell, value); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(xlsxSheet, "A", "A", 36); err != nil {
		return err
	}
	return f.Write(w)
}
