package service

import (
	"context"
	"fmt"
	"strings"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

// HoldSession parks the cart and customer of an editable session and
// discards the session.
func (s *Service) HoldSession(ctx context.Context, id string, note string) (domain.HeldCart, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.HeldCart{}, err
	}
	customer, lines, err := session.Hold()
	if err != nil {
		return domain.HeldCart{}, err
	}

	heldBy := session.Operator()
	if actor, ok := ActorFromContext(ctx); ok {
		heldBy = actor.Username
	}

	held, err := s.repo.CreateHeldCart(ctx, domain.HeldCart{
		ID:         xid.New("hold"),
		LocationID: session.LocationID(),
		HeldBy:     heldBy,
		Note:       strings.TrimSpace(note),
		Customer:   customer,
		Lines:      lines,
		HeldAt:     s.now().UTC(),
	})
	if err != nil {
		session.Unseal()
		return domain.HeldCart{}, err
	}
	if err := s.sessions.Discard(session.ID()); err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID()).Warn("failed to discard held session")
	}

	s.logAudit(ctx, held.LocationID, "billing_cart_hold", "held_cart", held.ID, fmt.Sprintf("session=%s,lines=%d", session.ID(), len(held.Lines)))
	return *held, nil
}

func (s *Service) ListHeldCarts(ctx context.Context, locationID string, limit int) ([]domain.HeldCart, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListHeldCarts(ctx, strings.TrimSpace(locationID), limit)
}

// DiscardHeldCart deletes a held cart without resuming it.
func (s *Service) DiscardHeldCart(ctx context.Context, holdID string) error {
	holdID = strings.TrimSpace(holdID)
	if err := s.repo.DeleteHeldCart(ctx, holdID); err != nil {
		return err
	}
	s.logAudit(ctx, "", "billing_cart_discard", "held_cart", holdID, "")
	return nil
}

// ResumeHeldCart removes a held cart and loads it into a new session.
func (s *Service) ResumeHeldCart(ctx context.Context, holdID string) (domain.SessionView, error) {
	held, err := s.repo.PopHeldCart(ctx, strings.TrimSpace(holdID))
	if err != nil {
		return domain.SessionView{}, err
	}

	session := s.newSession(ctx, held.LocationID)
	if err := session.Restore(held.Customer, held.Lines); err != nil {
		_ = s.sessions.Discard(session.ID())
		return domain.SessionView{}, err
	}

	s.logAudit(ctx, session.LocationID(), "billing_cart_resume", "held_cart", held.ID, "session="+session.ID())
	return session.View(), nil
}
