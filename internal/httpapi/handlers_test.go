package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store/memory"
	"pharmapos/backend/internal/upstream"
)

const testInvoiceJSON = `{
  "id": 501,
  "invoice_no": "INV-501",
  "invoice_date": "2026-10-19T10:00:00Z",
  "customer": {"name": "Asha", "phone": "9876543210"},
  "lines": [{"product": 7, "product_name": "Paracetamol", "batch_lot": 41, "qty_base": "2", "rate_per_base": "50", "tax_percent": "12", "line_total": "112"}],
  "gross_total": "100",
  "tax_total": "12",
  "net_total": "112",
  "payments": [{"mode": "CASH", "amount": "112"}]
}`

// fakePharmacy serves the pharmacy backend endpoints the billing flow calls.
type fakePharmacy struct {
	mu           sync.Mutex
	rejectBody   string
	invoiceBody  []byte
	invoiceCalls int
}

func (f *fakePharmacy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/payment-methods/":
		_, _ = w.Write([]byte(`{"results":[{"id":1,"name":"Cash"},{"id":2,"name":"UPI"},{"id":3,"name":"Card"}]}`))
	case r.URL.Path == "/api/inventory/batches/":
		_, _ = w.Write([]byte(`[{"id":41,"batch_no":"B1","quantity":"10"}]`))
	case r.URL.Path == "/api/inventory/medicines/search/":
		_, _ = w.Write([]byte(`[{"product_id":7,"name":"Paracetamol","mrp":"50","gst_percent":"12","stock":"10"}]`))
	case r.URL.Path == "/api/sales/invoices/" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.invoiceCalls++
		f.invoiceBody = body
		reject := f.rejectBody
		f.mu.Unlock()
		if reject != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(reject))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":501,"invoice_no":"INV-501"}`))
	case r.URL.Path == "/api/sales/invoices/501/":
		_, _ = w.Write([]byte(testInvoiceJSON))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
	}
}

// newTestAPI builds the full request path: router, real AuthManager, real
// Service and an upstream client talking to a fake pharmacy backend.
func newTestAPI(t *testing.T) *API {
	api, _ := newTestAPIWithPharmacy(t)
	return api
}

func newTestAPIWithPharmacy(t *testing.T) (*API, *fakePharmacy) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	pharmacy := &fakePharmacy{}
	srv := httptest.NewServer(pharmacy)
	t.Cleanup(srv.Close)

	tokens := upstream.NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), upstream.TokenPair{Access: "a1", Refresh: "r1"})
	client := upstream.New(upstream.Config{BaseURL: srv.URL + "/api", Tokens: tokens, Logger: logger})

	repo := memory.New()
	for _, u := range []struct{ name, role string }{{"admin", domain.RoleAdmin}, {"cashier", domain.RoleCashier}} {
		if err := repo.CreateUser(context.Background(), domain.UserAccount{
			Username:  u.name,
			Password:  mustHashPassword(t, u.name+"-pass"),
			Role:      u.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	svc := service.New(repo, client, nil, nil, service.Options{
		GSTRate: decimal.NewFromInt(12),
		UPI: billing.UPIConfig{
			PayeeVPA:     "shop@upi",
			TickInterval: time.Hour,
			PollInterval: time.Hour,
		},
	}, logger)
	t.Cleanup(svc.Close)

	auth := NewAuthManager(context.Background(), "test-secret-key-test-secret-key!", time.Hour, repo)
	return New(svc, auth, Options{AllowedOrigin: "*", Logger: logger}), pharmacy
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	res := doRequest(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: username + "-pass"})
	if res.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, res.Code, res.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func doRequest(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

type sessionEnvelope struct {
	Error   string             `json:"error"`
	Session domain.SessionView `json:"session"`
}

func decodeSession(t *testing.T, res *httptest.ResponseRecorder) sessionEnvelope {
	t.Helper()
	var env sessionEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return env
}

// readySession drives a new session to METHOD_SELECTION with 2 x Paracetamol.
func readySession(t *testing.T, handler http.Handler, token string) string {
	t.Helper()
	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions", token, nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d", res.Code)
	}
	id := decodeSession(t, res).Session.ID
	base := "/api/v1/billing/sessions/" + id

	if res := doRequest(t, handler, http.MethodPut, base+"/customer", token, domain.Customer{Name: "Asha", Phone: "9876543210"}); res.Code != http.StatusOK {
		t.Fatalf("set customer: expected 200, got %d: %s", res.Code, res.Body.String())
	}
	item := map[string]any{"product_id": 7, "name": "Paracetamol", "mrp": "50", "gst_percent": "12"}
	for i := 0; i < 2; i++ {
		if res := doRequest(t, handler, http.MethodPost, base+"/items", token, item); res.Code != http.StatusOK {
			t.Fatalf("add item: expected 200, got %d: %s", res.Code, res.Body.String())
		}
	}
	if res := doRequest(t, handler, http.MethodPost, base+"/payment/start", token, nil); res.Code != http.StatusOK {
		t.Fatalf("start payment: expected 200, got %d: %s", res.Code, res.Body.String())
	}
	return id
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := doRequest(t, handler, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestBillingRequiresBearerToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	res = doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions", "not-a-jwt", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.Code)
	}
}

func TestCashCheckoutOverHTTP(t *testing.T) {
	api, pharmacy := newTestAPIWithPharmacy(t)
	handler := api.Handler()
	token := login(t, handler, "cashier")
	id := readySession(t, handler, token)
	base := "/api/v1/billing/sessions/" + id

	res := doRequest(t, handler, http.MethodPost, base+"/payment/method", token, map[string]any{"payment_method_id": 1})
	if env := decodeSession(t, res); res.Code != http.StatusOK || env.Session.State != "CASH_FLOW" {
		t.Fatalf("select cash: got %d %+v", res.Code, env)
	}

	res = doRequest(t, handler, http.MethodPut, base+"/payment/cash", token, domain.CashTenderRequest{Tendered: "200"})
	env := decodeSession(t, res)
	if env.Session.Cash == nil || !env.Session.Cash.Change.Equal(decimal.NewFromInt(88)) {
		t.Fatalf("expected change 88, got %+v", env.Session.Cash)
	}

	res = doRequest(t, handler, http.MethodPost, base+"/payment/confirm", token, nil)
	env = decodeSession(t, res)
	if res.Code != http.StatusOK || env.Session.State != "DONE" || env.Session.InvoiceID != "501" {
		t.Fatalf("confirm: got %d %+v", res.Code, env)
	}

	var posted map[string]any
	if err := json.Unmarshal(pharmacy.invoiceBody, &posted); err != nil {
		t.Fatalf("decode posted invoice: %v", err)
	}
	if posted["amount_paid"] != "200" || posted["payment_method"] != float64(1) {
		t.Fatalf("unexpected invoice payload: %s", pharmacy.invoiceBody)
	}

	res = doRequest(t, handler, http.MethodGet, "/api/v1/invoices/501", token, nil)
	var inv domain.InvoiceResponse
	if err := json.NewDecoder(res.Body).Decode(&inv); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if inv.Summary.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected PAID, got %s", inv.Summary.PaymentStatus)
	}

	res = doRequest(t, handler, http.MethodGet, "/api/v1/invoices/501/print?autoprint=1", token, nil)
	if !strings.Contains(res.Body.String(), "INV-501") || !strings.Contains(res.Body.String(), "__invoiceAutoPrinted") {
		t.Fatalf("expected printable invoice with autoprint guard")
	}

	res = doRequest(t, handler, http.MethodGet, "/api/v1/invoices/501/pdf", token, nil)
	if res.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(res.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected a PDF, got %q", res.Header().Get("Content-Type"))
	}
}

func TestStartPaymentWithoutCustomerReturns422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")

	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions", token, nil)
	id := decodeSession(t, res).Session.ID

	res = doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions/"+id+"/payment/start", token, nil)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	if env := decodeSession(t, res); env.Session.State != "" {
		t.Fatalf("expected no session body on precondition failure, got %+v", env.Session)
	}
}

func TestRejectedInvoiceSurfacesBackendBody(t *testing.T) {
	api, pharmacy := newTestAPIWithPharmacy(t)
	pharmacy.rejectBody = `{"lines":["Insufficient stock in batch B1"]}`
	handler := api.Handler()
	token := login(t, handler, "cashier")
	id := readySession(t, handler, token)

	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions/"+id+"/payment/method", token, map[string]any{"payment_method_id": 3})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	env := decodeSession(t, res)
	if env.Error != pharmacy.rejectBody {
		t.Fatalf("expected backend body verbatim, got %q", env.Error)
	}
	if env.Session.State != "FAILED" || len(env.Session.Lines) != 1 {
		t.Fatalf("expected FAILED with cart kept, got %+v", env.Session)
	}
}

func TestUPIFlowExposesQRCode(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")
	id := readySession(t, handler, token)
	base := "/api/v1/billing/sessions/" + id

	res := doRequest(t, handler, http.MethodPost, base+"/payment/method", token, map[string]any{"payment_method_id": 2})
	env := decodeSession(t, res)
	if env.Session.UPI == nil || env.Session.UPI.Status != "pending" || env.Session.UPI.SecondsRemaining != 180 {
		t.Fatalf("expected pending UPI with 180s, got %+v", env.Session.UPI)
	}
	if env.Session.UPI.QRCodePath != base+"/payment/qr.png" {
		t.Fatalf("unexpected qr path %q", env.Session.UPI.QRCodePath)
	}

	res = doRequest(t, handler, http.MethodGet, env.Session.UPI.QRCodePath, token, nil)
	if res.Code != http.StatusOK || res.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %q", res.Code, res.Header().Get("Content-Type"))
	}

	res = doRequest(t, handler, http.MethodPost, base+"/payment/confirm", token, nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 while payment pending, got %d", res.Code)
	}

	res = doRequest(t, handler, http.MethodPost, base+"/payment/cancel", token, nil)
	if env := decodeSession(t, res); env.Session.State != "IDLE" || len(env.Session.Lines) != 1 {
		t.Fatalf("expected IDLE with cart kept after cancel, got %+v", env.Session)
	}
}

func TestAddItemValidationReportsFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")
	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions", token, nil)
	id := decodeSession(t, res).Session.ID

	res = doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions/"+id+"/items", token, map[string]any{"product_id": 7})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["name"] != "required" {
		t.Fatalf("expected name required, got %+v", body.Fields)
	}
}

func TestHoldAndResumeOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")
	id := readySession(t, handler, token)

	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions/"+id+"/hold", token, domain.HoldSessionRequest{Note: "back in 5"})
	if res.Code != http.StatusCreated {
		t.Fatalf("hold: expected 201, got %d: %s", res.Code, res.Body.String())
	}

	res = doRequest(t, handler, http.MethodGet, "/api/v1/billing/held", token, nil)
	var list domain.HeldCartListResponse
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil || len(list.Items) != 1 {
		t.Fatalf("expected one held cart, got %+v (%v)", list, err)
	}

	res = doRequest(t, handler, http.MethodPost, "/api/v1/billing/held/"+list.Items[0].ID+"/resume", token, nil)
	env := decodeSession(t, res)
	if res.Code != http.StatusCreated || len(env.Session.Lines) != 1 || env.Session.Customer.Name != "Asha" {
		t.Fatalf("resume: got %d %+v", res.Code, env)
	}
}

func TestDiscardHeldCartOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")
	id := readySession(t, handler, token)

	res := doRequest(t, handler, http.MethodPost, "/api/v1/billing/sessions/"+id+"/hold", token, domain.HoldSessionRequest{})
	var held struct {
		HeldCart domain.HeldCart `json:"held_cart"`
	}
	if err := json.NewDecoder(res.Body).Decode(&held); err != nil || held.HeldCart.ID == "" {
		t.Fatalf("hold: %d (%v)", res.Code, err)
	}

	res = doRequest(t, handler, http.MethodDelete, "/api/v1/billing/held/"+held.HeldCart.ID, token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("discard: expected 204, got %d: %s", res.Code, res.Body.String())
	}
	res = doRequest(t, handler, http.MethodDelete, "/api/v1/billing/held/"+held.HeldCart.ID, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("second discard: expected 404, got %d", res.Code)
	}
}

func TestAuditLogsAreAdminOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	cashier := login(t, handler, "cashier")
	admin := login(t, handler, "admin")
	readySession(t, handler, cashier)

	if res := doRequest(t, handler, http.MethodGet, "/api/v1/audit-logs", cashier, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", res.Code)
	}

	res := doRequest(t, handler, http.MethodGet, "/api/v1/audit-logs?limit=10", admin, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", res.Code)
	}
	var body struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Logs) == 0 {
		t.Fatalf("expected audit entries from the billing session")
	}
}

func TestUnknownInvoiceReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier")

	if res := doRequest(t, handler, http.MethodGet, "/api/v1/invoices/999", token, nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
