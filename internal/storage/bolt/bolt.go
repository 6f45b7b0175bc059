package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/accesstime/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketSettings  = "settings"
	bucketPackages  = "packages"
	bucketSessions  = "sessions"
	bucketSequences = "sequences"
	bucketOrders    = "orders"

	settingsKey = "settings"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db *bbolt.DB
}

// Exclusive reports true: bbolt takes an exclusive file lock, so no other
// process can write the database while this store is open.
func (s *Store) Exclusive() bool {
	return true
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketSettings),
			[]byte(bucketPackages),
			[]byte(bucketSessions),
			[]byte(bucketSequences),
			[]byte(bucketOrders),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a read-write bolt transaction. bbolt allows a single
// writer at a time, so operations are serialized.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn inside a read-only bolt transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fn(&boltTx{tx: tx})
	})
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

func getBucketValue[T any](tx *bbolt.Tx, bucket string, key string) (*T, error) {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return nil, storage.ErrNotFound
	}
	value := b.Get([]byte(key))
	if value == nil {
		return nil, storage.ErrNotFound
	}
	var result T
	if err := unmarshal(value, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func putBucketValue(tx *bbolt.Tx, bucket string, key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("bucket missing: %s", bucket)
	}
	return b.Put([]byte(key), data)
}
