package invoice

import (
	"html/template"
	"io"
)

type printPage struct {
	Document
	AutoPrint bool
}

// printTmpl is auto-escaped; the autoprint script is static and fires once
// per page load.
var printTmpl = template.Must(template.New("invoice-print").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.InvoiceNo}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; color: #111; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    .status { font-weight: bold; }
    @media print { .no-print { display: none; } }
  </style>
</head>
<body>
  <div id="invoice">
    <h2>{{.ShopName}}</h2>
    <p>Invoice: {{.InvoiceNo}} | Date: {{.InvoiceDate}}</p>
    <p>Customer: {{.CustomerName}}{{if .CustomerPhone}} ({{.CustomerPhone}}){{end}}{{if .CustomerCity}}, {{.CustomerCity}}{{end}}</p>
    <table>
      <thead><tr><th>Item</th><th>Batch</th><th>Qty</th><th>Rate</th><th>GST %</th><th>Amount</th></tr></thead>
      <tbody>{{range .Lines}}<tr><td>{{.Name}}</td><td>{{.BatchNo}}</td><td class="num">{{.Qty}}</td><td class="num">{{.Rate}}</td><td class="num">{{.TaxPercent}}</td><td class="num">{{.Amount}}</td></tr>{{end}}</tbody>
    </table>
    <p>Gross: {{.GrossTotal}} | Tax: {{.TaxTotal}} | Net: {{.NetTotal}}</p>
    <p>Paid: {{.PaidAmount}} | Balance: {{.BalanceAmount}} | <span class="status">{{.PaymentStatus}}</span></p>
    {{if .Payments}}<p>Payments:{{range .Payments}} {{.Mode}} {{.Amount}};{{end}}</p>{{end}}
  </div>
  <button class="no-print" onclick="window.print()">Print</button>
{{if .AutoPrint}}  <script>
    (function () {
      if (window.__invoiceAutoPrinted) { return; }
      window.__invoiceAutoPrinted = true;
      window.addEventListener("load", function () { window.print(); }, { once: true });
    })();
  </script>
{{end}}</body>
</html>
`))

func RenderPrintHTML(w io.Writer, doc Document, autoPrint bool) error {
	return printTmpl.Execute(w, printPage{Document: doc, AutoPrint: autoPrint})
}
