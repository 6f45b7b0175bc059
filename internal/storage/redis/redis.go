package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/accesstime/internal/config"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "accesstime"
	defaultLockTTL   = 10 * time.Second
	lockRetryDelay   = 5 * time.Millisecond
)

// ErrLockLost is returned when a transaction outlives its lock lease and
// another writer may have taken over. Nothing is committed in that case.
var ErrLockLost = errors.New("redis: transaction lock lost")

// Store implements the storage.Store interface using Redis.
//
// Transactions are serialized by a lease lock. Reads inside a transaction go
// straight to Redis (falling back on the transaction's own pending writes);
// writes are buffered and applied by a single Lua script that first checks
// the lock is still held, so a commit is all-or-nothing.
type Store struct {
	client  *redis.Client
	keys    keyspace
	lockTTL time.Duration
	owned   bool
}

// Connect creates a Redis client from configuration and verifies it.
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Open creates a new Redis-backed storage instance with its own client.
func Open(cfg config.RedisConfig) (*Store, error) {
	client, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	lockTTL := defaultLockTTL
	if cfg.LockTTL != "" {
		lockTTL, err = time.ParseDuration(cfg.LockTTL)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("invalid lock_ttl: %w", err)
		}
	}

	store := New(client, cfg.KeyPrefix, lockTTL)
	store.owned = true
	return store, nil
}

// New wraps an existing client. The caller keeps ownership of the client.
func New(client *redis.Client, prefix string, lockTTL time.Duration) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Store{
		client:  client,
		keys:    keyspace{prefix: prefix},
		lockTTL: lockTTL,
	}
}

// Close closes the Redis connection if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Update runs fn under the store lock and commits its writes atomically.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn under the store lock; writes are rejected.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx storage.Tx) error) error {
	token, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(token)

	tx := newRedisTx(ctx, s.client, s.keys, readOnly)
	if err := fn(tx); err != nil {
		return err
	}
	if readOnly || len(tx.ops) == 0 {
		return nil
	}
	return s.commit(ctx, token, tx.ops)
}

// acquire takes the store lock, waiting until it is free or ctx is done.
func (s *Store) acquire(ctx context.Context) (string, error) {
	token, err := lockToken()
	if err != nil {
		return "", err
	}

	for {
		ok, err := s.client.SetNX(ctx, s.keys.lock(), token, s.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// release drops the lock if this transaction still holds it. It uses a fresh
// context so that a cancelled caller does not leave the lock behind.
func (s *Store) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = redis.NewScript(releaseLockScript).Run(ctx, s.client, []string{s.keys.lock()}, token).Err()
}

func (s *Store) commit(ctx context.Context, token string, ops []writeOp) error {
	keys := make([]string, 0, len(ops)+1)
	args := make([]interface{}, 0, len(ops)*3+1)

	keys = append(keys, s.keys.lock())
	args = append(args, token)
	for _, op := range ops {
		keys = append(keys, op.key)
		args = append(args, op.kind, op.value, op.score)
	}

	err := redis.NewScript(commitScript).Run(ctx, s.client, keys, args...).Err()
	if err != nil {
		if isLockLost(err) {
			return ErrLockLost
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func lockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
