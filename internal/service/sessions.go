package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/cart"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

func (s *Service) CreateSession(ctx context.Context, req domain.SessionCreateRequest) domain.SessionView {
	session := s.newSession(ctx, req.LocationID)
	s.logAudit(ctx, session.LocationID(), "billing_session_create", "billing_session", session.ID(), "")
	return session.View()
}

func (s *Service) newSession(ctx context.Context, locationID string) *billing.Session {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		locationID = s.opts.DefaultLocationID
	}
	operator := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		operator = actor.Username
	}
	return s.sessions.Create(billing.SessionConfig{
		ID:         xid.New("bill"),
		LocationID: locationID,
		Operator:   operator,
		GSTRate:    s.opts.GSTRate,
		UPI:        s.opts.UPI,
		Logger:     s.logger,
	})
}

func (s *Service) session(id string) (*billing.Session, error) {
	return s.sessions.Get(strings.TrimSpace(id))
}

func (s *Service) GetSession(_ context.Context, id string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// DiscardSession drops a session that is not mid-submission.
func (s *Service) DiscardSession(ctx context.Context, id string) error {
	session, err := s.session(id)
	if err != nil {
		return err
	}
	state, err := session.CloseUnlessSubmitting()
	if err != nil {
		return err
	}
	if err := s.sessions.Discard(session.ID()); err != nil {
		return err
	}
	s.logAudit(ctx, session.LocationID(), "billing_session_discard", "billing_session", session.ID(), string(state))
	return nil
}

// SetCustomer stores the customer as typed. A non-empty phone must be a
// valid number for the configured region.
func (s *Service) SetCustomer(_ context.Context, id string, customer domain.Customer) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if phone := strings.TrimSpace(customer.Phone); phone != "" {
		if _, err := billing.NormalizePhone(phone, s.opts.PhoneRegion); err != nil {
			return domain.SessionView{}, err
		}
	}
	if err := session.SetCustomer(customer); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// AddItem adds one unit of a product. A newly inserted line gets the first
// batch lot the backend lists for the product; when none can be resolved the
// line stays unresolved and submission is blocked until it is removed.
func (s *Service) AddItem(ctx context.Context, id string, req domain.AddItemRequest) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if req.ProductID.IsZero() || strings.TrimSpace(req.Name) == "" || req.MRP.IsNegative() {
		return domain.SessionView{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:         req.ProductID,
		Name:       strings.TrimSpace(req.Name),
		MRP:        req.MRP,
		GSTPercent: req.GSTPercent,
	}
	inserted, err := session.AddProduct(product)
	if err != nil {
		return domain.SessionView{}, err
	}
	if inserted {
		s.resolveBatchLot(ctx, session, product)
	}
	return session.View(), nil
}

func (s *Service) resolveBatchLot(ctx context.Context, session *billing.Session, product domain.Product) {
	lotID, err := s.backend.FirstBatchLot(ctx, product.ID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": session.ID(),
			"product_id": product.ID.String(),
		}).Warn("batch lot lookup failed")
		session.AddWarning(fmt.Sprintf("%s: %s", product.Name, billing.MissingStockMessage))
		return
	}
	session.SetBatchLot(product.ID, lotID)
}

func (s *Service) UpdateQty(_ context.Context, id string, productID domain.ID, delta int) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if delta == 0 {
		return domain.SessionView{}, store.ErrInvalidInput
	}
	if err := session.UpdateQty(productID, delta); err != nil {
		return domain.SessionView{}, mapCartError(err)
	}
	return session.View(), nil
}

func (s *Service) RemoveItem(_ context.Context, id string, productID domain.ID) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.RemoveItem(productID); err != nil {
		return domain.SessionView{}, mapCartError(err)
	}
	return session.View(), nil
}

func (s *Service) StartPayment(ctx context.Context, id string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.StartPayment(); err != nil {
		return domain.SessionView{}, err
	}
	view := session.View()
	s.logAudit(ctx, session.LocationID(), "billing_payment_start", "billing_session", session.ID(), "total="+view.Totals.Total.StringFixed(2))
	return view, nil
}

// SelectPaymentMethod enters the cash or UPI sub-flow, or submits the invoice
// right away for any other method.
func (s *Service) SelectPaymentMethod(ctx context.Context, id string, methodID domain.ID) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	method, err := s.findPaymentMethod(ctx, methodID)
	if err != nil {
		return domain.SessionView{}, err
	}

	submission, err := session.SelectMethod(method)
	if err != nil {
		return domain.SessionView{}, err
	}
	s.logAudit(ctx, session.LocationID(), "billing_payment_method", "billing_session", session.ID(), fmt.Sprintf("method=%s,kind=%s", method.Name, billing.ClassifyMethod(method.Name)))

	if submission != nil {
		return s.submit(ctx, session, submission)
	}
	return session.View(), nil
}

func (s *Service) SetCashTendered(_ context.Context, id string, raw string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	if _, err := session.SetTendered(raw); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) ConfirmPayment(ctx context.Context, id string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	submission, err := session.ConfirmPayment()
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.submit(ctx, session, submission)
}

func (s *Service) CancelPayment(ctx context.Context, id string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	previous := session.State()
	if err := session.Cancel(); err != nil {
		return domain.SessionView{}, err
	}
	if previous != billing.StateIdle {
		s.logAudit(ctx, session.LocationID(), "billing_payment_cancel", "billing_session", session.ID(), "from="+string(previous))
	}
	return session.View(), nil
}

// PaymentQRCode renders the active UPI request as a PNG.
func (s *Service) PaymentQRCode(_ context.Context, id string, size int) ([]byte, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	upi := session.UPIPayment()
	if upi == nil {
		return nil, fmt.Errorf("%w: no UPI payment in progress", billing.ErrInvalidTransition)
	}
	return billing.QRCodePNG(upi.RequestURI(), size)
}

func mapCartError(err error) error {
	if errors.Is(err, cart.ErrLineNotFound) {
		return fmt.Errorf("%w: cart line", store.ErrNotFound)
	}
	return err
}
