package service

import (
	"context"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/invoice"
	"pharmapos/backend/internal/store"
)

// GetInvoice fetches the persisted invoice and derives its payment summary.
func (s *Service) GetInvoice(ctx context.Context, id string) (domain.InvoiceResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InvoiceResponse{}, store.ErrInvalidInput
	}
	inv, err := s.backend.GetInvoice(ctx, id)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}
	return domain.InvoiceResponse{Invoice: inv, Summary: invoice.Summarize(inv)}, nil
}

// InvoiceDocument returns the printable form used by every export format.
func (s *Service) InvoiceDocument(ctx context.Context, id string) (invoice.Document, error) {
	resp, err := s.GetInvoice(ctx, id)
	if err != nil {
		return invoice.Document{}, err
	}
	return invoice.NewDocument(s.opts.ShopName, resp.Invoice, resp.Summary), nil
}
