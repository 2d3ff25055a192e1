package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/otaviobastosmatriz/rh2026/models"
)

const usersBucket = "users"

// BoltStore keeps payers in an embedded BoltDB file, one JSON value per slug.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path and ensures the users bucket.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(usersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetUser(_ context.Context, slug string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(usersBucket)).Get([]byte(slug))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *BoltStore) GetPaymentStatus(ctx context.Context, slug string) (bool, error) {
	u, err := s.GetUser(ctx, slug)
	if err != nil {
		return false, err
	}
	return u.Paid, nil
}

// MarkPaid skips the write when the payer is already paid.
func (s *BoltStore) MarkPaid(_ context.Context, slug string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(usersBucket))
		v := b.Get([]byte(slug))
		if v == nil {
			return ErrNotFound
		}

		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		if u.Paid {
			return nil
		}

		now := time.Now().UTC()
		u.Paid = true
		u.PaidAt = &now
		u.UpdatedAt = now

		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put([]byte(slug), data)
	})
}

func (s *BoltStore) SaveUser(_ context.Context, in *models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(usersBucket))
		now := time.Now().UTC()

		u := models.User{Slug: in.Slug, CreatedAt: now}
		if v := b.Get([]byte(in.Slug)); v != nil {
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
		}
		u.Name = in.Name
		u.Email = in.Email
		u.UpdatedAt = now

		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put([]byte(in.Slug), data)
	})
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
