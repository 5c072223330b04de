package httpapi

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmapos/backend/internal/invoice"
)

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInvoicePrint serves the printable page. ?autoprint=1 opens the print
// dialog once after load.
func (a *API) handleInvoicePrint(w http.ResponseWriter, r *http.Request) {
	doc, ok := a.invoiceDocument(w, r)
	if !ok {
		return
	}
	autoPrint := r.URL.Query().Get("autoprint") == "1"

	var buf bytes.Buffer
	if err := invoice.RenderPrintHTML(&buf, doc, autoPrint); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	doc, ok := a.invoiceDocument(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := invoice.RenderPDF(&buf, doc); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeAttachment(w, "application/pdf", doc.FileStem()+".pdf", buf.Bytes())
}

func (a *API) handleInvoiceXLSX(w http.ResponseWriter, r *http.Request) {
	doc, ok := a.invoiceDocument(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := invoice.RenderXLSX(&buf, doc); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", doc.FileStem()+".xlsx", buf.Bytes())
}

// handleInvoiceEscpos returns thermal printer bytes for ?width=58 (default)
// or ?width=80 paper.
func (a *API) handleInvoiceEscpos(w http.ResponseWriter, r *http.Request) {
	doc, ok := a.invoiceDocument(w, r)
	if !ok {
		return
	}
	width := invoice.ReceiptWidth58mm
	if r.URL.Query().Get("width") == "80" {
		width = invoice.ReceiptWidth80mm
	}

	receipt := invoice.RenderReceipt(doc, width)
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id":    doc.InvoiceID,
		"escpos_base64": base64.StdEncoding.EncodeToString(receipt.Escpos),
		"preview_text":  receipt.PreviewText,
	})
}

func (a *API) invoiceDocument(w http.ResponseWriter, r *http.Request) (invoice.Document, bool) {
	doc, err := a.service.InvoiceDocument(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		a.writeServiceError(w, err)
		return invoice.Document{}, false
	}
	return doc, true
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
