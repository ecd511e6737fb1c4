package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix prefixes every snapshot key.
const KeyPrefix = "lagfit:snapshot:"

// DefaultRedisTTL is used when RedisConfig.TTL is zero.
const DefaultRedisTTL = 30 * time.Minute

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore stores snapshots as JSON strings with a TTL, so several
// forecaster instances can share them.
type RedisStore struct {
	mu     sync.RWMutex
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if cfg.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func snapshotKey(series string) string {
	return KeyPrefix + series
}

// Put stores snapshot under lagfit:snapshot:<series>.
func (r *RedisStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateSeries(snapshot.Series); err != nil {
		return err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	client, err := r.conn()
	if err != nil {
		return err
	}
	if err := client.Set(ctx, snapshotKey(snapshot.Series), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest returns the snapshot for series. A missing key is not an error.
func (r *RedisStore) GetLatest(ctx context.Context, series string) (Snapshot, bool, error) {
	if err := ValidateSeries(series); err != nil {
		return Snapshot{}, false, err
	}

	client, err := r.conn()
	if err != nil {
		return Snapshot{}, false, err
	}

	data, err := client.Get(ctx, snapshotKey(series)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// Close closes the client. Safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, redis.ErrClosed
	}
	return r.client, nil
}
