package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/cache"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/redis"
)

// SessionCache is a read-through copy of recently used sessions.
type SessionCache interface {
	Get(ctx context.Context, id string) (*models.Session, bool)
	Set(ctx context.Context, s *models.Session)
	Delete(ctx context.Context, id string)
}

// CachedSessionRepository serves reads from a cache and writes through to
// the backing repository. The backing repository stays authoritative: a
// failed write never reaches the cache.
type CachedSessionRepository struct {
	next  SessionRepository
	cache SessionCache
	log   *logger.Logger
}

func NewCachedSessionRepository(next SessionRepository, c SessionCache, log *logger.Logger) *CachedSessionRepository {
	return &CachedSessionRepository{next: next, cache: c, log: log}
}

func (r *CachedSessionRepository) Create(ctx context.Context, s *models.Session) error {
	if err := r.next.Create(ctx, s); err != nil {
		return err
	}
	r.cache.Set(ctx, s)
	return nil
}

func (r *CachedSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := r.cache.Get(ctx, id); ok {
		return s, nil
	}
	s, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, s)
	return s, nil
}

func (r *CachedSessionRepository) Save(ctx context.Context, s *models.Session, expected int64) error {
	if err := r.next.Save(ctx, s, expected); err != nil {
		// A conflict means the cached copy is behind the store.
		if errors.Is(err, ErrRevisionConflict) {
			r.cache.Delete(ctx, s.SessionID)
		}
		return err
	}
	r.cache.Set(ctx, s)
	return nil
}

// MemorySessionCache keeps sessions in process memory.
type MemorySessionCache struct {
	c *cache.Cache[*models.Session]
}

func NewMemorySessionCache(opts cache.Options) *MemorySessionCache {
	return &MemorySessionCache{c: cache.New[*models.Session](opts)}
}

func (m *MemorySessionCache) Get(_ context.Context, id string) (*models.Session, bool) {
	s, ok := m.c.Get(id)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (m *MemorySessionCache) Set(_ context.Context, s *models.Session) {
	m.c.Set(s.SessionID, s.Clone())
}

func (m *MemorySessionCache) Delete(_ context.Context, id string) {
	m.c.Delete(id)
}

func (m *MemorySessionCache) Close() {
	m.c.Close()
}

// RedisSessionCache keeps JSON-encoded sessions in Redis. Redis errors are
// logged and treated as misses.
type RedisSessionCache struct {
	client *redis.RedisClient
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisSessionCache(client *redis.RedisClient, ttl time.Duration, log *logger.Logger) *RedisSessionCache {
	return &RedisSessionCache{client: client, ttl: ttl, log: log}
}

func redisKey(id string) string {
	return "storygen:session:" + id
}

func (r *RedisSessionCache) Get(ctx context.Context, id string) (*models.Session, bool) {
	raw, err := r.client.Get(ctx, redisKey(id))
	if err != nil {
		if !errors.Is(err, redis.ErrMiss) {
			r.log.LogError(err, "Session cache read failed", "session_id", id)
		}
		return nil, false
	}
	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		r.log.LogError(err, "Session cache entry is corrupt", "session_id", id)
		return nil, false
	}
	return &s, true
}

func (r *RedisSessionCache) Set(ctx context.Context, s *models.Session) {
	data, err := json.Marshal(s)
	if err != nil {
		r.log.LogError(err, "Failed to encode session for cache", "session_id", s.SessionID)
		return
	}
	if err := r.client.Set(ctx, redisKey(s.SessionID), data, r.ttl); err != nil {
		r.log.LogError(err, "Session cache write failed", "session_id", s.SessionID)
	}
}

func (r *RedisSessionCache) Delete(ctx context.Context, id string) {
	if err := r.client.Del(ctx, redisKey(id)); err != nil {
		r.log.LogError(err, "Session cache delete failed", "session_id", id)
	}
}
