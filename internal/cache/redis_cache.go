package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"pharmapos/backend/internal/domain"
)

const paymentMethodsKey = "pharmapos:payment-methods"

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisPaymentMethodCache struct {
	client *redis.Client
}

func NewRedisPaymentMethodCache(client *redis.Client) *RedisPaymentMethodCache {
	return &RedisPaymentMethodCache{client: client}
}

func (c *RedisPaymentMethodCache) Get(ctx context.Context) ([]domain.PaymentMethod, bool, error) {
	val, err := c.client.Get(ctx, paymentMethodsKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var methods []domain.PaymentMethod
	if err := json.Unmarshal([]byte(val), &methods); err != nil {
		return nil, false, err
	}
	return methods, true, nil
}

func (c *RedisPaymentMethodCache) Set(ctx context.Context, methods []domain.PaymentMethod, ttl time.Duration) error {
	if len(methods) == 0 {
		return nil
	}
	payload, err := json.Marshal(methods)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, paymentMethodsKey, payload, ttl).Err()
}

func (c *RedisPaymentMethodCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, paymentMethodsKey).Err()
}

// RedisSubmitLocker holds submission locks in redis so replicas agree.
type RedisSubmitLocker struct {
	locker *redislock.Client
}

func NewRedisSubmitLocker(client *redis.Client) *RedisSubmitLocker {
	return &RedisSubmitLocker{locker: redislock.New(client)}
}

func (l *RedisSubmitLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	lock, err := l.locker.Obtain(ctx, "lock:submit:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
