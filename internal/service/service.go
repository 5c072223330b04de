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
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var (
	ErrAdminRequired        = errors.New("admin role required")
	ErrUnknownPaymentMethod = errors.New("payment method not found")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrInvoiceRejected      = errors.New("invoice rejected by backend")
	ErrInvoiceUnconfirmed   = errors.New("invoice may have been created, check the invoice list before retrying")
)

const (
	paymentMethodsUnavailable = "payment methods are unavailable, try again shortly"
	medicinesUnavailable      = "medicine search is unavailable, try again shortly"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Backend is the subset of the pharmacy REST backend the billing flow uses.
type Backend interface {
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	FirstBatchLot(ctx context.Context, productID domain.ID) (domain.ID, error)
	SearchMedicines(ctx context.Context, query string, locationID string) ([]domain.Product, error)
	CreateInvoice(ctx context.Context, payload domain.InvoiceCreateRequest) (domain.InvoiceCreated, error)
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
}

type Options struct {
	DefaultLocationID  string
	GSTRate            decimal.Decimal
	UPI                billing.UPIConfig
	PhoneRegion        string
	ShopName           string
	PaymentMethodsTTL  time.Duration
	SubmitTimeout      time.Duration
	SessionIdleTimeout time.Duration
}

type Service struct {
	repo     store.Repository
	backend  Backend
	sessions *billing.Registry
	methods  cache.PaymentMethodCache
	locker   cache.SubmitLocker
	opts     Options
	logger   logrus.FieldLogger
	now      func() time.Time
}

func New(repo store.Repository, backend Backend, methods cache.PaymentMethodCache, locker cache.SubmitLocker, opts Options, logger logrus.FieldLogger) *Service {
	if methods == nil {
		methods = cache.NoopPaymentMethodCache{}
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.DefaultLocationID == "" {
		opts.DefaultLocationID = "1"
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = "IN"
	}
	if opts.ShopName == "" {
		opts.ShopName = "Pharmacy"
	}
	if opts.PaymentMethodsTTL <= 0 {
		opts.PaymentMethodsTTL = 5 * time.Minute
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	if opts.SessionIdleTimeout <= 0 {
		opts.SessionIdleTimeout = 2 * time.Hour
	}

	return &Service{
		repo:     repo,
		backend:  backend,
		sessions: billing.NewRegistry(),
		methods:  methods,
		locker:   locker,
		opts:     opts,
		logger:   logger.WithField("module", "service"),
		now:      time.Now,
	}
}

// ListPaymentMethods serves the cached list when present. A backend failure
// yields an empty list and a message instead of an error.
func (s *Service) ListPaymentMethods(ctx context.Context) domain.PaymentMethodListResponse {
	methods, err := s.paymentMethods(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to load payment methods")
		return domain.PaymentMethodListResponse{PaymentMethods: []domain.PaymentMethod{}, Message: paymentMethodsUnavailable}
	}
	return domain.PaymentMethodListResponse{PaymentMethods: methods}
}

// RefreshPaymentMethods drops the cached list and reloads it from the backend.
func (s *Service) RefreshPaymentMethods(ctx context.Context) domain.PaymentMethodListResponse {
	if err := s.methods.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("payment method cache invalidate failed")
	}
	return s.ListPaymentMethods(ctx)
}

func (s *Service) paymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	cached, ok, err := s.methods.Get(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("payment method cache read failed")
	}
	if ok {
		return cached, nil
	}

	methods, err := s.backend.ListPaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	if err := s.methods.Set(ctx, methods, s.opts.PaymentMethodsTTL); err != nil {
		s.logger.WithError(err).Warn("payment method cache write failed")
	}
	return methods, nil
}

func (s *Service) findPaymentMethod(ctx context.Context, id domain.ID) (domain.PaymentMethod, error) {
	methods, err := s.paymentMethods(ctx)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	for _, method := range methods {
		if method.ID == id {
			return method, nil
		}
	}
	return domain.PaymentMethod{}, ErrUnknownPaymentMethod
}

func (s *Service) SearchMedicines(ctx context.Context, query string, locationID string) domain.ProductSearchResponse {
	if locationID == "" {
		locationID = s.opts.DefaultLocationID
	}
	products, err := s.backend.SearchMedicines(ctx, query, locationID)
	if err != nil {
		s.logger.WithError(err).WithField("query", query).Warn("medicine search failed")
		return domain.ProductSearchResponse{Products: []domain.Product{}, Message: medicinesUnavailable}
	}
	if products == nil {
		products = []domain.Product{}
	}
	return domain.ProductSearchResponse{Products: products}
}

func (s *Service) ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrAdminRequired
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	if to.IsZero() {
		to = s.now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}
	if to.Before(from) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListAuditLogs(ctx, locationID, from, to, limit)
}

// RunJanitor prunes finished and idle sessions until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := s.PruneSessions(); pruned > 0 {
				s.logger.WithField("pruned", pruned).Debug("pruned billing sessions")
			}
		}
	}
}

func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}

func (s *Service) PruneSessions() int {
	return s.sessions.Prune(s.now(), s.opts.SessionIdleTimeout)
}

// Close stops every session timer.
func (s *Service) Close() {
	s.sessions.CloseAll()
}

func (s *Service) logAudit(ctx context.Context, locationID string, action string, entityType string, entityID string, detail string) {
	if locationID == "" {
		locationID = s.opts.DefaultLocationID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		LocationID:    locationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}
