package billing

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"pharmapos/backend/internal/domain"
)

type UPIStatus string

const (
	UPIPending UPIStatus = "pending"
	UPIPaid    UPIStatus = "paid"
	UPIExpired UPIStatus = "expired"
)

const (
	DefaultUPICountdownSeconds = 180
	DefaultUPITickInterval     = time.Second
	DefaultUPIPollInterval     = 3 * time.Second
	DefaultUPIConfirmAfter     = 15 * time.Second
)

// PaymentRequest describes an outstanding UPI collect request.
type PaymentRequest struct {
	SessionID string
	URI       string
	Amount    decimal.Decimal
	StartedAt time.Time
	Now       time.Time
}

// Confirmer reports whether an outstanding UPI request has been paid.
type Confirmer interface {
	Confirm(ctx context.Context, req PaymentRequest) (bool, error)
}

// ElapsedConfirmer treats a request as paid once more than After has passed
// since it was issued. It stands in for a gateway callback.
type ElapsedConfirmer struct {
	After time.Duration
}

func (c ElapsedConfirmer) Confirm(_ context.Context, req PaymentRequest) (bool, error) {
	after := c.After
	if after <= 0 {
		after = DefaultUPIConfirmAfter
	}
	return req.Now.Sub(req.StartedAt) > after, nil
}

type UPIConfig struct {
	PayeeVPA         string
	PayeeName        string
	CountdownSeconds int
	TickInterval     time.Duration
	PollInterval     time.Duration
	Confirmer        Confirmer
	Now              func() time.Time
}

func (c UPIConfig) withDefaults() UPIConfig {
	if c.CountdownSeconds < 1 {
		c.CountdownSeconds = DefaultUPICountdownSeconds
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultUPITickInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultUPIPollInterval
	}
	if c.Confirmer == nil {
		c.Confirmer = ElapsedConfirmer{After: DefaultUPIConfirmAfter}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// UPIPayment is the transient state of the UPI/QR sub-flow. Status only
// moves forward: pending -> paid or pending -> expired.
type UPIPayment struct {
	mu               sync.Mutex
	status           UPIStatus
	secondsRemaining int
	request          PaymentRequest
	cfg              UPIConfig
}

func newUPIPayment(cfg UPIConfig, sessionID string, amount decimal.Decimal, note string) *UPIPayment {
	cfg = cfg.withDefaults()
	return &UPIPayment{
		status:           UPIPending,
		secondsRemaining: cfg.CountdownSeconds,
		cfg:              cfg,
		request: PaymentRequest{
			SessionID: sessionID,
			URI:       BuildRequestURI(cfg.PayeeVPA, cfg.PayeeName, amount, note),
			Amount:    amount,
			StartedAt: cfg.Now(),
		},
	}
}

// Tick advances the countdown by one second while pending.
func (p *UPIPayment) Tick() UPIStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != UPIPending {
		return p.status
	}
	if p.secondsRemaining > 0 {
		p.secondsRemaining--
	}
	if p.secondsRemaining == 0 {
		p.status = UPIExpired
	}
	return p.status
}

// Poll asks the confirmer once. It is a no-op after paid or expired.
func (p *UPIPayment) Poll(ctx context.Context, now time.Time) (UPIStatus, error) {
	p.mu.Lock()
	if p.status != UPIPending {
		status := p.status
		p.mu.Unlock()
		return status, nil
	}
	req := p.request
	req.Now = now
	confirmer := p.cfg.Confirmer
	p.mu.Unlock()

	paid, err := confirmer.Confirm(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		return p.status, err
	}
	if paid && p.status == UPIPending {
		p.status = UPIPaid
	}
	return p.status, nil
}

// Watch drives the countdown and the confirmation poll until ctx is done or
// the request leaves pending. Both tickers are stopped on return.
func (p *UPIPayment) Watch(ctx context.Context, logger logrus.FieldLogger) {
	countdown := time.NewTicker(p.cfg.TickInterval)
	defer countdown.Stop()
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-countdown.C:
			if status := p.Tick(); status != UPIPending {
				return
			}
		case <-poll.C:
			status, err := p.Poll(ctx, p.cfg.Now())
			if err != nil && logger != nil {
				logger.WithError(err).WithField("session_id", p.request.SessionID).Warn("upi confirmation poll failed")
			}
			if status != UPIPending {
				return
			}
		}
	}
}

func (p *UPIPayment) Status() UPIStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *UPIPayment) SecondsRemaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.secondsRemaining
}

func (p *UPIPayment) RequestURI() string {
	return p.request.URI
}

func (p *UPIPayment) view() *domain.UPIPaymentView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.UPIPaymentView{
		Status:           string(p.status),
		SecondsRemaining: p.secondsRemaining,
		RequestURI:       p.request.URI,
	}
}

// BuildRequestURI renders a UPI deep link with the amount fixed to 2 decimals.
func BuildRequestURI(payeeVPA string, payeeName string, amount decimal.Decimal, note string) string {
	q := url.Values{}
	q.Set("pa", payeeVPA)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", amount.StringFixed(2))
	q.Set("cu", "INR")
	if note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode()
}

// QRCodePNG encodes a payment request URI as a PNG image.
func QRCodePNG(uri string, size int) ([]byte, error) {
	if size < 64 {
		size = 256
	}
	return qrcode.Encode(uri, qrcode.Medium, size)
}
