package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/upstream"
)

// RejectedError carries the backend's validation message for a refused invoice.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return e.Body
}

func (e *RejectedError) Unwrap() error {
	return ErrInvoiceRejected
}

// BuildInvoicePayload maps a submission onto the backend invoice body. Each
// line carries its own GST percent, falling back to the submission rate.
func BuildInvoicePayload(sub billing.Submission, now time.Time) (domain.InvoiceCreateRequest, error) {
	if len(sub.Lines) == 0 {
		return domain.InvoiceCreateRequest{}, fmt.Errorf("%w: cart is empty", billing.ErrPrecondition)
	}

	lines := make([]domain.InvoiceLinePayload, 0, len(sub.Lines))
	for _, line := range sub.Lines {
		if line.BatchLotID == nil || line.BatchLotID.IsZero() {
			return domain.InvoiceCreateRequest{}, billing.ErrMissingBatchLot
		}
		taxPercent := line.GSTPercent
		if taxPercent.IsZero() {
			taxPercent = sub.GSTRate
		}
		lines = append(lines, domain.InvoiceLinePayload{
			Product:     line.ProductID,
			BatchLot:    *line.BatchLotID,
			QtyBase:     line.Quantity,
			RatePerBase: line.UnitPrice,
			TaxPercent:  taxPercent,
		})
	}

	return domain.InvoiceCreateRequest{
		CustomerName:  sub.Customer.Name,
		CustomerPhone: sub.Customer.Phone,
		CustomerEmail: sub.Customer.Email,
		CustomerCity:  sub.Customer.City,
		InvoiceDate:   now.UTC().Format(time.RFC3339),
		Location:      sub.LocationID,
		Lines:         lines,
		PaymentMethod: sub.Method.ID,
		AmountPaid:    sub.AmountPaid.Round(2),
	}, nil
}

// submit posts the invoice for a session in SUBMITTING and settles the
// session from the outcome. The backend call is detached from the caller's
// cancellation so a dropped terminal connection cannot abandon a half-created
// invoice.
func (s *Service) submit(ctx context.Context, session *billing.Session, sub *billing.Submission) (domain.SessionView, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"session_id": sub.SessionID,
		"method":     sub.Method.Name,
	})

	payload, err := BuildInvoicePayload(*sub, s.now())
	if err != nil {
		_ = session.AbortSubmission(err.Error())
		return domain.SessionView{}, err
	}

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SubmitTimeout)
	defer cancel()

	release, err := s.locker.Acquire(submitCtx, sub.SessionID, s.opts.SubmitTimeout)
	if err != nil {
		_ = session.AbortSubmission("another submission is in progress")
		if errors.Is(err, cache.ErrLockNotObtained) {
			return domain.SessionView{}, billing.ErrSessionLocked
		}
		logger.WithError(err).Error("submission lock unavailable")
		return domain.SessionView{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("failed to release submission lock")
		}
	}()

	created, err := s.backend.CreateInvoice(submitCtx, payload)
	if err != nil {
		var respErr *upstream.ResponseError
		if errors.As(err, &respErr) {
			_ = session.RejectSubmission(respErr.Error())
			s.logAudit(ctx, sub.LocationID, "billing_invoice_reject", "billing_session", sub.SessionID, fmt.Sprintf("status=%d", respErr.Status))
			return session.View(), &RejectedError{Status: respErr.Status, Body: respErr.Error()}
		}

		if errors.Is(err, upstream.ErrUnreadableReply) {
			logging.LogError(logger, "service", "submit", "read invoice reply", nil, err)
			_ = session.RejectSubmission(ErrInvoiceUnconfirmed.Error())
			s.logAudit(ctx, sub.LocationID, "billing_invoice_unconfirmed", "billing_session", sub.SessionID, err.Error())
			return session.View(), ErrInvoiceUnconfirmed
		}

		logging.LogError(logger, "service", "submit", "create invoice", map[string]any{
			"lines":       len(payload.Lines),
			"amount_paid": payload.AmountPaid.StringFixed(2),
		}, err)
		_ = session.AbortSubmission(ErrPaymentFailed.Error())
		s.logAudit(ctx, sub.LocationID, "billing_invoice_error", "billing_session", sub.SessionID, err.Error())
		return session.View(), ErrPaymentFailed
	}

	invoiceID := created.ID.String()
	if err := session.CompleteSubmission(invoiceID); err != nil {
		return domain.SessionView{}, err
	}
	s.logAudit(ctx, sub.LocationID, "billing_invoice_create", "invoice", invoiceID, fmt.Sprintf("method=%s,total=%s,paid=%s,change=%s", sub.Method.Name, sub.Total.StringFixed(2), sub.AmountPaid.StringFixed(2), changeFor(*sub).StringFixed(2)))
	logger.WithField("invoice_id", invoiceID).Info("invoice created")
	return session.View(), nil
}

func changeFor(sub billing.Submission) decimal.Decimal {
	return billing.ChangeDue(sub.AmountPaid, sub.Total)
}
