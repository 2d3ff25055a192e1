// Package store persists payer records and their payment flag.
//
// The paid flag only ever moves from false to true, so every implementation treats
// MarkPaid as an unconditional, idempotent write: marking an already-paid payer is
// a successful no-op.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/otaviobastosmatriz/rh2026/config"
	"github.com/otaviobastosmatriz/rh2026/models"
)

// ErrNotFound is returned when no payer exists for a slug.
var ErrNotFound = errors.New("payer not found")

// Store is the charge record store.
type Store interface {
	GetUser(ctx context.Context, slug string) (*models.User, error)
	GetPaymentStatus(ctx context.Context, slug string) (bool, error)
	MarkPaid(ctx context.Context, slug string) error
	// SaveUser creates or updates name and email for u.Slug. It never changes Paid.
	SaveUser(ctx context.Context, u *models.User) error
	Close() error
}

// Open builds the store selected by cfg.Driver, wrapped with the Redis status
// cache when cfg.RedisAddr is set.
func Open(cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres", "":
		s, err = NewPostgresStore(cfg.DatabaseURL)
	case "bolt":
		s, err = NewBoltStore(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return s, nil
	}
	client := NewRedisClient(RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewCachedStore(s, client, cfg.CacheTTL), nil
}
