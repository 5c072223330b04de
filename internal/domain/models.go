package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a cart-addable medicine row returned by the backend search.
type Product struct {
	ID         ID              `json:"product_id"`
	Name       string          `json:"name"`
	MRP        decimal.Decimal `json:"mrp"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	Stock      decimal.Decimal `json:"stock"`
}

type ProductSearchResponse struct {
	Products []Product `json:"products"`
	Message  string    `json:"message,omitempty"`
}

type CartLine struct {
	ProductID  ID              `json:"product_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	BatchLotID *ID             `json:"batch_lot_id,omitempty"`
}

type Customer struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	City  string `json:"city,omitempty"`
}

type PaymentMethod struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type PaymentMethodListResponse struct {
	PaymentMethods []PaymentMethod `json:"payment_methods"`
	Message        string          `json:"message,omitempty"`
}

type BatchLot struct {
	ID         ID              `json:"id"`
	BatchNo    string          `json:"batch_no,omitempty"`
	ExpiryDate string          `json:"expiry_date,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type InvoiceLinePayload struct {
	Product     ID              `json:"product"`
	BatchLot    ID              `json:"batch_lot"`
	QtyBase     int             `json:"qty_base"`
	RatePerBase decimal.Decimal `json:"rate_per_base"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
}

// InvoiceCreateRequest is the body posted to the backend invoice endpoint.
type InvoiceCreateRequest struct {
	CustomerName  string               `json:"customer_name"`
	CustomerPhone string               `json:"customer_phone"`
	CustomerEmail string               `json:"customer_email,omitempty"`
	CustomerCity  string               `json:"customer_city,omitempty"`
	InvoiceDate   string               `json:"invoice_date"`
	Location      string               `json:"location,omitempty"`
	Lines         []InvoiceLinePayload `json:"lines"`
	PaymentMethod ID                   `json:"payment_method"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
}

type InvoiceCreated struct {
	ID        ID     `json:"id"`
	InvoiceNo string `json:"invoice_no,omitempty"`
}

type InvoiceLine struct {
	Product     ID              `json:"product"`
	ProductName string          `json:"product_name,omitempty"`
	BatchLot    ID              `json:"batch_lot,omitempty"`
	BatchNo     string          `json:"batch_no,omitempty"`
	QtyBase     decimal.Decimal `json:"qty_base"`
	RatePerBase decimal.Decimal `json:"rate_per_base"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type InvoicePayment struct {
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

// Invoice is the server-authoritative invoice. NetTotal is trusted as sent.
type Invoice struct {
	ID          ID                  `json:"id"`
	InvoiceNo   string              `json:"invoice_no"`
	InvoiceDate string              `json:"invoice_date"`
	Customer    InvoiceCustomer     `json:"customer"`
	Lines       []InvoiceLine       `json:"lines"`
	GrossTotal  decimal.Decimal     `json:"gross_total"`
	TaxTotal    decimal.Decimal     `json:"tax_total"`
	NetTotal    decimal.Decimal     `json:"net_total"`
	Payments    []InvoicePayment    `json:"payments"`
	PaidAmount  decimal.NullDecimal `json:"paid_amount"`
}

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusCredit PaymentStatus = "CREDIT"
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
)

type InvoiceSummary struct {
	Payments      []InvoicePayment `json:"payments"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
	BalanceAmount decimal.Decimal  `json:"balance_amount"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
}

type InvoiceResponse struct {
	Invoice Invoice        `json:"invoice"`
	Summary InvoiceSummary `json:"summary"`
}

// Billing API requests.

type SessionCreateRequest struct {
	LocationID string `json:"location_id,omitempty"`
}

type AddItemRequest struct {
	ProductID  ID              `json:"product_id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	MRP        decimal.Decimal `json:"mrp"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
}

type UpdateQtyRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

type SelectMethodRequest struct {
	PaymentMethodID ID `json:"payment_method_id" validate:"required"`
}

type CashTenderRequest struct {
	Tendered string `json:"tendered"`
}

type HoldSessionRequest struct {
	Note string `json:"note" validate:"max=200"`
}

type CartTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
}

type CashPaymentView struct {
	Tendered string          `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
}

type UPIPaymentView struct {
	Status           string `json:"status"`
	SecondsRemaining int    `json:"seconds_remaining"`
	RequestURI       string `json:"request_uri"`
	QRCodePath       string `json:"qr_code_path,omitempty"`
}

type SessionView struct {
	ID            string           `json:"id"`
	State         string           `json:"state"`
	Customer      Customer         `json:"customer"`
	Lines         []CartLine       `json:"lines"`
	Totals        CartTotals       `json:"totals"`
	PaymentMethod *PaymentMethod   `json:"payment_method,omitempty"`
	Cash          *CashPaymentView `json:"cash,omitempty"`
	UPI           *UPIPaymentView  `json:"upi,omitempty"`
	InvoiceID     string           `json:"invoice_id,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
}

type HeldCart struct {
	ID         string     `json:"id"`
	LocationID string     `json:"location_id,omitempty"`
	HeldBy     string     `json:"held_by"`
	Note       string     `json:"note"`
	Customer   Customer   `json:"customer"`
	Lines      []CartLine `json:"lines"`
	HeldAt     time.Time  `json:"held_at"`
}

type HeldCartListResponse struct {
	Items []HeldCart `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for operator credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
