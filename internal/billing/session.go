package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/cart"
	"pharmapos/backend/internal/domain"
)

type SessionConfig struct {
	ID         string
	LocationID string
	Operator   string
	GSTRate    decimal.Decimal
	UPI        UPIConfig
	Logger     logrus.FieldLogger
}

// Session is one billing session. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id         string
	locationID string
	operator   string
	gstRate    decimal.Decimal
	upiCfg     UPIConfig
	logger     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	cart     *cart.Cart
	customer domain.Customer

	state     State
	method    *domain.PaymentMethod
	cash      *CashPayment
	upi       *UPIPayment
	stopUPI   context.CancelFunc
	resumeTo  State
	invoiceID string
	lastError string
	warnings  []string
	updatedAt time.Time
	sealed    bool
}

func NewSession(cfg SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		id:         cfg.ID,
		locationID: cfg.LocationID,
		operator:   cfg.Operator,
		gstRate:    cfg.GSTRate,
		upiCfg:     cfg.UPI.withDefaults(),
		logger:     logger.WithField("session_id", cfg.ID),
		ctx:        ctx,
		cancel:     cancel,
		cart:       cart.New(),
		state:      StateIdle,
		updatedAt:  time.Now().UTC(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) LocationID() string {
	return s.locationID
}

func (s *Session) Operator() string {
	return s.operator
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) Customer() domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer
}

func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Lines()
}

// Close stops any running timers and refuses further changes.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// CloseUnlessSubmitting closes the session unless a submission is in
// flight. The state check and the close happen under one lock.
func (s *Session) CloseUnlessSubmitting() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return s.state, fmt.Errorf("%w: submission in progress", ErrSessionLocked)
	}
	s.closeLocked()
	return s.state, nil
}

// Hold seals an editable session with a non-empty cart and returns its
// customer and lines. Unseal reverts it when the hold could not be stored.
func (s *Session) Hold() (domain.Customer, []domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return domain.Customer{}, nil, err
	}
	if !s.state.CanEditCart() {
		return domain.Customer{}, nil, fmt.Errorf("%w: cannot hold a cart in state %s, cancel payment first", ErrInvalidTransition, s.state)
	}
	if s.cart.IsEmpty() {
		return domain.Customer{}, nil, fmt.Errorf("%w: cart is empty", ErrPrecondition)
	}
	s.sealed = true
	return s.customer, s.cart.Lines(), nil
}

func (s *Session) Unseal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() == nil {
		s.sealed = false
	}
}

func (s *Session) closeLocked() {
	s.sealed = true
	s.stopUPILocked()
	s.cancel()
}

func (s *Session) openLocked() error {
	if s.sealed {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Session) SetCustomer(customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	if !s.state.CanEditCart() {
		return fmt.Errorf("%w: customer cannot change in state %s", ErrInvalidTransition, s.state)
	}
	s.customer = domain.Customer{
		Name:  strings.TrimSpace(customer.Name),
		Phone: strings.TrimSpace(customer.Phone),
		Email: strings.TrimSpace(customer.Email),
		City:  strings.TrimSpace(customer.City),
	}
	s.touch()
	return nil
}

// AddProduct reports whether a new line was inserted; the caller then
// resolves its batch lot.
func (s *Session) AddProduct(product domain.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return false, err
	}
	if !s.state.CanEditCart() {
		return false, fmt.Errorf("%w: cart cannot change in state %s", ErrInvalidTransition, s.state)
	}
	inserted := s.cart.Add(product)
	s.touch()
	return inserted, nil
}

// SetBatchLot records a resolved batch lot. A line removed meanwhile is ignored.
func (s *Session) SetBatchLot(productID domain.ID, lotID domain.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.SetBatchLot(productID, lotID); err == nil {
		s.touch()
	}
}

func (s *Session) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
	if len(s.warnings) > 10 {
		s.warnings = s.warnings[len(s.warnings)-10:]
	}
}

func (s *Session) UpdateQty(productID domain.ID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	if !s.state.CanEditCart() {
		return fmt.Errorf("%w: cart cannot change in state %s", ErrInvalidTransition, s.state)
	}
	if err := s.cart.UpdateQty(productID, delta); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) RemoveItem(productID domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	if !s.state.CanEditCart() {
		return fmt.Errorf("%w: cart cannot change in state %s", ErrInvalidTransition, s.state)
	}
	if err := s.cart.Remove(productID); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Restore loads a held cart into an idle, empty session.
func (s *Session) Restore(customer domain.Customer, lines []domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	if s.state != StateIdle || !s.cart.IsEmpty() {
		return fmt.Errorf("%w: session already in use", ErrInvalidTransition)
	}
	s.customer = customer
	s.cart = cart.FromLines(lines)
	s.touch()
	return nil
}

// StartPayment moves IDLE to METHOD_SELECTION once customer name, phone and
// at least one cart line are present.
func (s *Session) StartPayment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}

	switch s.state {
	case StateMethodSelection:
		return nil
	case StateIdle:
	default:
		return fmt.Errorf("%w: cannot start payment in state %s", ErrInvalidTransition, s.state)
	}

	if s.customer.Name == "" || s.customer.Phone == "" {
		return fmt.Errorf("%w: customer name and phone are required", ErrPrecondition)
	}
	if s.cart.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", ErrPrecondition)
	}

	s.state = StateMethodSelection
	s.lastError = ""
	s.touch()
	return nil
}

// SelectMethod dispatches to the cash or UPI sub-flow, or for any other
// method returns a Submission straight away with the total as amount paid.
func (s *Session) SelectMethod(method domain.PaymentMethod) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return nil, err
	}

	if !s.state.canSelectMethod() {
		return nil, fmt.Errorf("%w: cannot select a payment method in state %s", ErrInvalidTransition, s.state)
	}
	kind := ClassifyMethod(method.Name)
	if kind == MethodOther {
		if err := s.checkSubmittableLocked(); err != nil {
			return nil, err
		}
	}
	selected := method
	s.method = &selected
	s.cash = nil
	s.stopUPILocked()
	s.lastError = ""
	total := s.cart.Total(s.gstRate)

	switch kind {
	case MethodCash:
		s.state = StateCashFlow
		s.cash = newCashPayment(total)
		s.touch()
		return nil, nil
	case MethodUPI:
		s.state = StateUPIFlow
		s.upi = newUPIPayment(s.upiCfg, s.id, total, "Bill "+s.id)
		watchCtx, stop := context.WithCancel(s.ctx)
		s.stopUPI = stop
		go s.upi.Watch(watchCtx, s.logger)
		s.touch()
		return nil, nil
	default:
		s.state = StateDirectSubmit
		return s.beginSubmitLocked(total, StateMethodSelection), nil
	}
}

// SetTendered records the cash amount typed so far and returns the change.
func (s *Session) SetTendered(raw string) (domain.CashPaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return domain.CashPaymentView{}, err
	}
	if s.state != StateCashFlow || s.cash == nil {
		return domain.CashPaymentView{}, fmt.Errorf("%w: not collecting cash", ErrInvalidTransition)
	}
	s.cash.SetTendered(raw)
	s.touch()
	return *s.cash.view(), nil
}

// ConfirmPayment completes the active sub-flow and returns the Submission.
func (s *Session) ConfirmPayment() (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return nil, err
	}

	switch s.state {
	case StateCashFlow:
		tendered, err := s.cash.Tendered()
		if err != nil {
			return nil, err
		}
		if err := s.checkSubmittableLocked(); err != nil {
			return nil, err
		}
		return s.beginSubmitLocked(tendered, StateCashFlow), nil
	case StateUPIFlow:
		switch s.upi.Status() {
		case UPIPaid:
			if err := s.checkSubmittableLocked(); err != nil {
				return nil, err
			}
			s.stopUPILocked()
			return s.beginSubmitLocked(s.cart.Total(s.gstRate), StateUPIFlow), nil
		case UPIExpired:
			return nil, ErrPaymentExpired
		default:
			return nil, ErrPaymentPending
		}
	default:
		return nil, fmt.Errorf("%w: nothing to confirm in state %s", ErrInvalidTransition, s.state)
	}
}

// Cancel abandons payment and returns to IDLE. Cart and customer are kept.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}

	if s.state == StateIdle {
		return nil
	}
	if !s.state.canCancel() {
		return fmt.Errorf("%w: cannot cancel in state %s", ErrInvalidTransition, s.state)
	}
	s.stopUPILocked()
	s.upi = nil
	s.cash = nil
	s.method = nil
	s.lastError = ""
	s.state = StateIdle
	s.touch()
	return nil
}

// CompleteSubmission records the created invoice and finishes the session.
func (s *Session) CompleteSubmission(invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitting {
		return fmt.Errorf("%w: not submitting", ErrInvalidTransition)
	}
	s.invoiceID = invoiceID
	s.lastError = ""
	s.state = StateDone
	s.touch()
	return nil
}

// RejectSubmission handles a backend validation failure: the method
// selector is offered again and cart and customer are kept.
func (s *Session) RejectSubmission(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitting {
		return fmt.Errorf("%w: not submitting", ErrInvalidTransition)
	}
	s.stopUPILocked()
	s.upi = nil
	s.cash = nil
	s.lastError = message
	s.state = StateFailed
	s.touch()
	return nil
}

// AbortSubmission handles a transport failure: the flow returns to the
// state it submitted from so the operator can retry.
func (s *Session) AbortSubmission(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitting {
		return fmt.Errorf("%w: not submitting", ErrInvalidTransition)
	}
	s.lastError = message
	s.state = s.resumeTo
	if s.state == "" {
		s.state = StateMethodSelection
	}
	s.touch()
	return nil
}

// UPIPayment exposes the active UPI sub-flow, or nil.
func (s *Session) UPIPayment() *UPIPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUPIFlow {
		return nil
	}
	return s.upi
}

func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := domain.SessionView{
		ID:        s.id,
		State:     string(s.state),
		Customer:  s.customer,
		Lines:     s.cart.Lines(),
		Totals:    s.cart.Totals(s.gstRate),
		InvoiceID: s.invoiceID,
		LastError: s.lastError,
	}
	if len(s.warnings) > 0 {
		view.Warnings = append([]string(nil), s.warnings...)
	}
	if s.method != nil {
		method := *s.method
		view.PaymentMethod = &method
	}
	if s.state == StateCashFlow && s.cash != nil {
		view.Cash = s.cash.view()
	}
	if s.state == StateUPIFlow && s.upi != nil {
		view.UPI = s.upi.view()
	}
	return view
}

// checkSubmittableLocked refuses submission while any line lacks a batch lot.
func (s *Session) checkSubmittableLocked() error {
	if s.cart.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", ErrPrecondition)
	}
	if len(s.cart.MissingBatchLots()) > 0 {
		return ErrMissingBatchLot
	}
	return nil
}

func (s *Session) beginSubmitLocked(amountPaid decimal.Decimal, resumeTo State) *Submission {
	s.resumeTo = resumeTo
	s.state = StateSubmitting
	s.touch()
	return &Submission{
		SessionID:  s.id,
		LocationID: s.locationID,
		Customer:   s.customer,
		Lines:      s.cart.Lines(),
		GSTRate:    s.gstRate,
		Total:      s.cart.Total(s.gstRate),
		Method:     *s.method,
		AmountPaid: amountPaid,
	}
}

func (s *Session) stopUPILocked() {
	if s.stopUPI != nil {
		s.stopUPI()
		s.stopUPI = nil
	}
}

func (s *Session) touch() {
	s.updatedAt = time.Now().UTC()
}
