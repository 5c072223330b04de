package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), TokenPair{Access: "good", Refresh: "r1"})
	return New(Config{BaseURL: srv.URL + "/api", Tokens: tokens})
}

func TestListPaymentMethodsAcceptsBothShapes(t *testing.T) {
	for _, body := range []string{
		`[{"id":1,"name":"Cash"},{"id":2,"name":"UPI"}]`,
		`{"count":2,"results":[{"id":1,"name":"Cash"},{"id":2,"name":"UPI"}]}`,
	} {
		payload := body
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/payment-methods/" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(payload))
		}))

		methods, err := client.ListPaymentMethods(context.Background())
		if err != nil {
			t.Fatalf("list payment methods: %v", err)
		}
		if len(methods) != 2 || methods[1].Name != "UPI" || methods[0].ID != "1" {
			t.Fatalf("unexpected methods for %s: %+v", payload, methods)
		}
	}
}

func TestFirstBatchLot(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("product") {
		case "7":
			_, _ = w.Write([]byte(`[{"id":41,"batch_no":"B1","quantity":"10"},{"id":42,"batch_no":"B2","quantity":"3"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))

	lot, err := client.FirstBatchLot(context.Background(), "7")
	if err != nil {
		t.Fatalf("first batch lot: %v", err)
	}
	if lot != "41" {
		t.Fatalf("expected first lot 41, got %s", lot)
	}
	if _, err := client.FirstBatchLot(context.Background(), "8"); !errors.Is(err, ErrNoBatchLot) {
		t.Fatalf("expected ErrNoBatchLot, got %v", err)
	}
}

func TestSearchMedicinesMapsRows(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "para" || r.URL.Query().Get("location") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"product_id":5,"name":"Paracetamol 500","mrp":"25.50","gst_percent":"12","stock":"40"}]`))
	}))

	products, err := client.SearchMedicines(context.Background(), " para ", "3")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 || products[0].ID != "5" || !products[0].MRP.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestCreateInvoiceSurfacesResponseBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload domain.InvoiceCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.CustomerName == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"lines":["Insufficient stock"]}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":77,"invoice_no":"INV-77"}`))
	}))

	created, err := client.CreateInvoice(context.Background(), domain.InvoiceCreateRequest{CustomerName: "Asha"})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if created.ID != "77" {
		t.Fatalf("expected id 77, got %s", created.ID)
	}

	_, err = client.CreateInvoice(context.Background(), domain.InvoiceCreateRequest{CustomerName: "bad"})
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if respErr.Status != http.StatusBadRequest || respErr.Error() != `{"lines":["Insufficient stock"]}` {
		t.Fatalf("unexpected response error: %+v", respErr)
	}
}

func TestCreateInvoiceUnreadableSuccessReply(t *testing.T) {
	for _, body := range []string{`{"invoice_no":"INV-78"}`, `<html>created</html>`} {
		reply := body
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(reply))
		}))

		_, err := client.CreateInvoice(context.Background(), domain.InvoiceCreateRequest{CustomerName: "Asha"})
		if !errors.Is(err, ErrUnreadableReply) {
			t.Fatalf("reply %q: expected ErrUnreadableReply, got %v", reply, err)
		}
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			t.Fatalf("reply %q: a 2xx reply must not be a ResponseError", reply)
		}
	}
}

func TestGetInvoice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sales/invoices/12/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":12,"invoice_no":"INV-12","customer":3,"net_total":"112.00","payments":[],"paid_amount":"112.00"}`))
	}))

	inv, err := client.GetInvoice(context.Background(), "12")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if inv.InvoiceNo != "INV-12" || inv.Customer.ID != "3" || !inv.PaidAmount.Valid {
		t.Fatalf("unexpected invoice: %+v", inv)
	}
}

func TestClientWithoutBaseURL(t *testing.T) {
	client := New(Config{})
	if _, err := client.ListPaymentMethods(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
