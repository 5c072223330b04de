// Package upstream talks to the pharmacy REST backend.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/domain"
)

const (
	pathToken          = "/token/"
	pathTokenRefresh   = "/token/refresh/"
	pathPaymentMethods = "/payment-methods/"
	pathBatches        = "/inventory/batches/"
	pathMedicineSearch = "/inventory/medicines/search/"
	pathInvoices       = "/sales/invoices/"

	maxErrorBodyBytes = 64 << 10
)

var (
	ErrNoBatchLot    = errors.New("no batch lot available for product")
	ErrNotConfigured = errors.New("backend base url is not configured")
	ErrNoCredentials = errors.New("backend service account is not configured")

	// ErrUnreadableReply means the backend answered 2xx but the body could
	// not be used. The request may have taken effect.
	ErrUnreadableReply = errors.New("backend reply could not be read")
)

// ResponseError carries a non-2xx backend response. Body is kept verbatim so
// validation messages can be shown to the operator.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return body
}

type Config struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	Tokens    TokenStore
	Transport http.RoundTripper
	Logger    logrus.FieldLogger
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	raw      *http.Client
	logger   logrus.FieldLogger
}

// New builds a client whose requests go through AuthTransport. Token
// endpoints bypass it.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		raw:      &http.Client{Timeout: timeout, Transport: base},
		logger:   logger,
	}
	auth := &AuthTransport{
		Base:      base,
		Tokens:    tokens,
		Refresher: c,
		Logger:    logger,
	}
	if c.username != "" {
		auth.Login = c.Login
	}
	c.http = &http.Client{Timeout: timeout, Transport: auth}
	return c
}

// Login obtains a token pair for the service account.
func (c *Client) Login(ctx context.Context) (TokenPair, error) {
	if c.username == "" {
		return TokenPair{}, ErrNoCredentials
	}
	body := map[string]string{"username": c.username, "password": c.password}
	var pair TokenPair
	if err := c.doJSON(ctx, c.raw, http.MethodPost, pathToken, nil, body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	body := map[string]string{"refresh": refreshToken}
	if err := c.doJSON(ctx, c.raw, http.MethodPost, pathTokenRefresh, nil, body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// ListPaymentMethods accepts either a bare array or a {"results": [...]} page.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, c.http, http.MethodGet, pathPaymentMethods, nil, nil, &raw); err != nil {
		return nil, err
	}
	var methods []domain.PaymentMethod
	if err := decodeList(raw, &methods); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}
	return methods, nil
}

func (c *Client) ListBatches(ctx context.Context, productID domain.ID) ([]domain.BatchLot, error) {
	params := url.Values{}
	params.Set("product", productID.String())
	var raw json.RawMessage
	if err := c.doJSON(ctx, c.http, http.MethodGet, pathBatches, params, nil, &raw); err != nil {
		return nil, err
	}
	var lots []domain.BatchLot
	if err := decodeList(raw, &lots); err != nil {
		return nil, fmt.Errorf("decode batches: %w", err)
	}
	return lots, nil
}

// FirstBatchLot returns the id of the first batch the backend lists.
func (c *Client) FirstBatchLot(ctx context.Context, productID domain.ID) (domain.ID, error) {
	lots, err := c.ListBatches(ctx, productID)
	if err != nil {
		return "", err
	}
	if len(lots) == 0 || lots[0].ID.IsZero() {
		return "", ErrNoBatchLot
	}
	return lots[0].ID, nil
}

func (c *Client) SearchMedicines(ctx context.Context, query string, locationID string) ([]domain.Product, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(query))
	if locationID != "" {
		params.Set("location", locationID)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, c.http, http.MethodGet, pathMedicineSearch, params, nil, &raw); err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := decodeList(raw, &products); err != nil {
		return nil, fmt.Errorf("decode medicines: %w", err)
	}
	return products, nil
}

// CreateInvoice posts the invoice. A non-2xx reply is a *ResponseError.
func (c *Client) CreateInvoice(ctx context.Context, payload domain.InvoiceCreateRequest) (domain.InvoiceCreated, error) {
	var created domain.InvoiceCreated
	if err := c.doJSON(ctx, c.http, http.MethodPost, pathInvoices, nil, payload, &created); err != nil {
		return domain.InvoiceCreated{}, err
	}
	if created.ID.IsZero() {
		return domain.InvoiceCreated{}, fmt.Errorf("%w: no invoice id", ErrUnreadableReply)
	}
	return created, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	var inv domain.Invoice
	path := pathInvoices + url.PathEscape(id) + "/"
	if err := c.doJSON(ctx, c.http, http.MethodGet, path, nil, nil, &inv); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

func (c *Client) doJSON(ctx context.Context, client *http.Client, method string, path string, params url.Values, body any, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("backend request failed")
		return &ResponseError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableReply, err)
	}
	return nil
}

// decodeList unmarshals a bare JSON array or the "results" array of a page.
func decodeList(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var page struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return err
	}
	if len(page.Results) == 0 || string(page.Results) == "null" {
		return json.Unmarshal([]byte("[]"), out)
	}
	return json.Unmarshal(page.Results, out)
}
