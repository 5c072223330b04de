package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"pharmapos/backend/internal/domain"
)

var ErrLockNotObtained = errors.New("lock is held by another request")

type PaymentMethodCache interface {
	Get(ctx context.Context) ([]domain.PaymentMethod, bool, error)
	Set(ctx context.Context, methods []domain.PaymentMethod, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopPaymentMethodCache struct{}

func (NoopPaymentMethodCache) Get(_ context.Context) ([]domain.PaymentMethod, bool, error) {
	return nil, false, nil
}

func (NoopPaymentMethodCache) Set(_ context.Context, _ []domain.PaymentMethod, _ time.Duration) error {
	return nil
}

func (NoopPaymentMethodCache) Invalidate(_ context.Context) error {
	return nil
}

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// SubmitLocker serializes invoice submission per billing session.
type SubmitLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// LocalLocker is an in-process SubmitLocker for single-replica deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, ErrLockNotObtained
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
