package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/infrastructure/redis"
	"github.com/yourorg/credvault/internal/observability/metrics"
	"github.com/yourorg/credvault/internal/reliability/circuitbreaker"
	"github.com/yourorg/credvault/pkg/cache"
)

// scopeTTL is short on purpose: the cache only ever serves the division
// listing, and a membership revocation must become visible quickly even if
// an invalidation is missed.
const scopeTTL = 30 * time.Second

// ScopeCache caches the resolved visible-division list per user. Membership
// mutations invalidate the affected user; division creation invalidates
// everyone.
type ScopeCache interface {
	Get(ctx context.Context, userID string) ([]*domain.Division, bool)
	Set(ctx context.Context, userID string, divisions []*domain.Division)
	Invalidate(ctx context.Context, userID string)
	InvalidateAll(ctx context.Context)
}

// MemoryScopeCache backs ScopeCache with the in-process TTL cache.
type MemoryScopeCache struct {
	c *cache.Cache
}

// NewMemoryScopeCache creates an in-process scope cache
func NewMemoryScopeCache() *MemoryScopeCache {
	return &MemoryScopeCache{c: cache.New()}
}

func (m *MemoryScopeCache) Get(ctx context.Context, userID string) ([]*domain.Division, bool) {
	v, ok := m.c.Get("scope:" + userID)
	if !ok {
		metrics.ObserveScopeCache("miss")
		return nil, false
	}
	divisions, ok := v.([]*domain.Division)
	if !ok {
		metrics.ObserveScopeCache("error")
		return nil, false
	}
	metrics.ObserveScopeCache("hit")
	return divisions, true
}

func (m *MemoryScopeCache) Set(ctx context.Context, userID string, divisions []*domain.Division) {
	m.c.Set("scope:"+userID, divisions, scopeTTL)
}

func (m *MemoryScopeCache) Invalidate(ctx context.Context, userID string) {
	m.c.Delete("scope:" + userID)
}

func (m *MemoryScopeCache) InvalidateAll(ctx context.Context) {
	m.c.Clear()
}

// PurgeExpired drops expired entries; used by the background janitor.
func (m *MemoryScopeCache) PurgeExpired() int {
	return m.c.PurgeExpired()
}

// RedisScopeCache backs ScopeCache with Redis so scope entries are shared
// across replicas. A circuit breaker turns the cache into a pass-through
// when Redis misbehaves; authorization correctness never depends on it.
type RedisScopeCache struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRedisScopeCache creates a Redis-backed scope cache
func NewRedisScopeCache(client *redis.Client, logger *slog.Logger) *RedisScopeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisScopeCache{
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		logger:  logger,
	}
}

func (r *RedisScopeCache) Get(ctx context.Context, userID string) ([]*domain.Division, bool) {
	if !r.breaker.AllowRequest() {
		metrics.ObserveScopeCache("skipped")
		return nil, false
	}
	raw, err := r.client.Get(ctx, "scope:"+userID)
	if err != nil {
		if !redis.IsNil(err) {
			r.breaker.RecordFailure()
			metrics.ObserveScopeCache("error")
			return nil, false
		}
		r.breaker.RecordSuccess()
		metrics.ObserveScopeCache("miss")
		return nil, false
	}
	r.breaker.RecordSuccess()

	var divisions []*domain.Division
	if err := json.Unmarshal([]byte(raw), &divisions); err != nil {
		r.logger.Warn("corrupt scope cache entry",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		metrics.ObserveScopeCache("error")
		return nil, false
	}
	metrics.ObserveScopeCache("hit")
	return divisions, true
}

func (r *RedisScopeCache) Set(ctx context.Context, userID string, divisions []*domain.Division) {
	if !r.breaker.AllowRequest() {
		return
	}
	raw, err := json.Marshal(divisions)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, "scope:"+userID, string(raw), scopeTTL); err != nil {
		r.breaker.RecordFailure()
		return
	}
	r.breaker.RecordSuccess()
}

func (r *RedisScopeCache) Invalidate(ctx context.Context, userID string) {
	if err := r.client.Delete(ctx, "scope:"+userID); err != nil {
		r.logger.Warn("scope cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *RedisScopeCache) InvalidateAll(ctx context.Context) {
	keys, err := r.client.Keys(ctx, "scope:*")
	if err != nil {
		r.logger.Warn("scope cache flush failed", slog.String("error", err.Error()))
		return
	}
	for _, key := range keys {
		if err := r.client.Delete(ctx, key); err != nil {
			r.logger.Warn("scope cache flush failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
