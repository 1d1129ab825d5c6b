package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/steam-achievements/internal/config"
)

// Store is a Redis-backed read-through cache for raw upstream payloads.
//
// The connection is established lazily on first use; concurrent callers share
// the same client and at most one establishment attempt is ever in flight.
// Every failure degrades to a miss: the cache is a performance optimization,
// never a correctness dependency, so callers see no cache errors at all.
type Store struct {
	cfg    *config.RedisConfig
	logger *slog.Logger

	once   sync.Once
	client *redis.Client
}

// NewStore creates a cache store. No connection is opened here.
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) *Store {
	return &Store{
		cfg:    cfg,
		logger: logger,
	}
}

// conn returns the shared client, creating it on first use. sync.Once blocks
// concurrent first callers behind a single initialization.
func (s *Store) conn() *redis.Client {
	s.once.Do(func() {
		s.client = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Addr,
			Password:     s.cfg.Password,
			DB:           s.cfg.DB,
			PoolSize:     s.cfg.PoolSize,
			MinIdleConns: s.cfg.MinIdleConns,
			DialTimeout:  s.cfg.DialTimeout,
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
		})
	})
	return s.client
}

// PlayerAchievementsKey returns the cache key for a player's unlock state
func PlayerAchievementsKey(steamID string, appID uint32) string {
	return fmt.Sprintf("playerAch:%s:%d", steamID, appID)
}

// SchemaKey returns the cache key for a game's achievement schema
func SchemaKey(appID uint32) string {
	return fmt.Sprintf("schema:%d", appID)
}

// GlobalPercentagesKey returns the cache key for a game's global rarity data
func GlobalPercentagesKey(appID uint32) string {
	return fmt.Sprintf("globalAch:%d", appID)
}

// Get returns the cached payload for key. Any store failure is reported as a
// miss; the caller cannot distinguish an unreachable store from absence.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.conn().Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.logger.Warn("cache get degraded to miss", "key", key, "error", err)
		return "", false
	}
	return val, true
}

// Set stores a payload under key with the given TTL. Failures are logged and
// swallowed; the next Get simply misses and the caller fetches through.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.conn().Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("cache set dropped", "key", key, "error", err)
	}
}

// Close closes the Redis connection if one was ever established
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
