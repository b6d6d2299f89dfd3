package security

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	blockKeyPrefix     = "ratelimit:block:"
)

// Limiter is a fixed-window rate limiter with temporary-block support.
// A block behaves like a window whose counter is already exhausted and
// self-clears when its expiry passes.
type Limiter interface {
	// Allow records one hit against the key's current window and
	// reports whether the hit is within the limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Block(ctx context.Context, key, reason string, d time.Duration) error
	IsBlocked(ctx context.Context, key string) (bool, string, error)
}

// --- Redis implementation ---

type redisLimiter struct {
	client redis.UniversalClient
}

// NewRedisLimiter creates a Redis-backed limiter. State is shared
// across instances, so windows hold under horizontal scaling.
func NewRedisLimiter(client redis.UniversalClient) Limiter {
	return &redisLimiter{client: client}
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := rateLimitKeyPrefix + key

	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First hit opens the window.
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

func (r *redisLimiter) Block(ctx context.Context, key, reason string, d time.Duration) error {
	return r.client.Set(ctx, blockKeyPrefix+key, reason, d).Err()
}

func (r *redisLimiter) IsBlocked(ctx context.Context, key string) (bool, string, error) {
	reason, err := r.client.Get(ctx, blockKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, reason, nil
}

// --- In-memory implementation ---

type windowCounter struct {
	count     int
	expiresAt time.Time
}

type blockEntry struct {
	reason    string
	expiresAt time.Time
}

// memoryLimiter is a process-local fallback used when Redis is not
// configured. Windows are per instance; the ledger never depends on
// this cache's consistency.
type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowCounter
	blocks  map[string]*blockEntry
	now     func() time.Time

	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryLimiter creates an in-memory limiter with a background
// reaper for expired windows.
func NewMemoryLimiter() Limiter {
	l := &memoryLimiter{
		windows: make(map[string]*windowCounter),
		blocks:  make(map[string]*blockEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.reap(time.Minute)
	return l
}

func (l *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		// Expired windows reset transparently on next access.
		l.windows[key] = &windowCounter{count: 1, expiresAt: now.Add(window)}
		return limit >= 1, nil
	}
	w.count++
	return w.count <= limit, nil
}

func (l *memoryLimiter) Block(_ context.Context, key, reason string, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks[key] = &blockEntry{reason: reason, expiresAt: l.now().Add(d)}
	return nil
}

func (l *memoryLimiter) IsBlocked(_ context.Context, key string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.blocks[key]
	if !ok {
		return false, "", nil
	}
	if l.now().After(b.expiresAt) {
		delete(l.blocks, key)
		return false, "", nil
	}
	return true, b.reason, nil
}

func (l *memoryLimiter) reap(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for k, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, k)
				}
			}
			for k, b := range l.blocks {
				if now.After(b.expiresAt) {
					delete(l.blocks, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop stops the background reaper.
func (l *memoryLimiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}
