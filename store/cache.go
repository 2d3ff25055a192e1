package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/models"
)

// RedisConfig configures the status cache connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a go-redis client for cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// CachedStore fronts a Store with a Redis cache of paid payers.
//
// Only paid=true is cached. The flag never reverts, so a cached true cannot go
// stale, while an unpaid payer always reads through to the wrapped store. Redis
// failures are logged and bypassed.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore wraps next. A non-positive ttl caches without expiry.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl < 0 {
		ttl = 0
	}
	return &CachedStore{Store: next, client: client, ttl: ttl}
}

func paidKey(slug string) string {
	return "pix:paid:" + slug
}

func (s *CachedStore) GetPaymentStatus(ctx context.Context, slug string) (bool, error) {
	_, err := s.client.Get(ctx, paidKey(slug)).Result()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
	default:
		logging.Warn("status cache read failed", zap.String("slug", slug), zap.Error(err))
	}

	paid, err := s.Store.GetPaymentStatus(ctx, slug)
	if err != nil {
		return false, err
	}
	if paid {
		s.remember(ctx, slug)
	}
	return paid, nil
}

func (s *CachedStore) GetUser(ctx context.Context, slug string) (*models.User, error) {
	u, err := s.Store.GetUser(ctx, slug)
	if err != nil {
		return nil, err
	}
	if u.Paid {
		s.remember(ctx, slug)
	}
	return u, nil
}

func (s *CachedStore) MarkPaid(ctx context.Context, slug string) error {
	if err := s.Store.MarkPaid(ctx, slug); err != nil {
		return err
	}
	s.remember(ctx, slug)
	return nil
}

func (s *CachedStore) Close() error {
	cerr := s.client.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return cerr
}

func (s *CachedStore) remember(ctx context.Context, slug string) {
	if err := s.client.Set(ctx, paidKey(slug), "1", s.ttl).Err(); err != nil {
		logging.Warn("status cache write failed", zap.String("slug", slug), zap.Error(err))
	}
}
