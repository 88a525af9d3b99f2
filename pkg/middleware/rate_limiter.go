package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"storygen/backend/pkg/errors"
	"storygen/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit is the refill rate in tokens per second
	Limit rate.Limit
	// Burst is the bucket size
	Burst int
	// ExpiryDuration is how long an idle client bucket is kept
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
	// CostFunc prices a request in tokens. Costs above Burst are capped.
	CostFunc func(*gin.Context) int
	// SweepInterval is how often idle buckets are dropped
	SweepInterval time.Duration
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		SweepInterval:  time.Minute,
		KeyFunc:        func(c *gin.Context) string { return c.ClientIP() },
		CostFunc:       func(*gin.Context) int { return 1 },
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket. Requests that call out to
// model backends can be priced higher than plain reads through CostFunc.
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	buckets map[string]*bucket
	logger  *logger.Logger
	sweep   sync.Once
	stop    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

// NewRateLimiter creates a new rate limiter. Zero fields of options keep
// their defaults.
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	for _, o := range options {
		if o.Limit > 0 {
			opts.Limit = o.Limit
		}
		if o.Burst > 0 {
			opts.Burst = o.Burst
		}
		if o.ExpiryDuration > 0 {
			opts.ExpiryDuration = o.ExpiryDuration
		}
		if o.KeyFunc != nil {
			opts.KeyFunc = o.KeyFunc
		}
		if o.CostFunc != nil {
			opts.CostFunc = o.CostFunc
		}
		if o.SweepInterval > 0 {
			opts.SweepInterval = o.SweepInterval
		}
	}

	return &RateLimiter{
		options: opts,
		buckets: make(map[string]*bucket),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Close stops the idle bucket sweep and waits for it to exit. Safe to call
// more than once, and before Middleware.
func (r *RateLimiter) Close() error {
	r.stop.Do(func() { close(r.done) })
	r.sweep.Do(func() { close(r.stopped) })
	<-r.stopped
	return nil
}

// Middleware rejects requests with 429 once the client's bucket cannot
// cover the request cost.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	r.sweep.Do(func() { go r.cleanup() })

	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		cost := r.cost(c)
		limiter := r.limiterFor(key)

		now := time.Now()
		if !limiter.AllowN(now, cost) {
			retry := retryAfter(limiter, cost, now)
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"cost", cost,
				"retry_after_sec", retry,
			)

			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) cost(c *gin.Context) int {
	n := r.options.CostFunc(c)
	if n < 1 {
		return 1
	}
	if n > r.options.Burst {
		return r.options.Burst
	}
	return n
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// retryAfter is the whole number of seconds until cost tokens are back,
// never less than one.
func retryAfter(l *rate.Limiter, cost int, now time.Time) int {
	missing := float64(cost) - l.TokensAt(now)
	if missing <= 0 || l.Limit() <= 0 {
		return 1
	}
	sec := int(math.Ceil(missing / float64(l.Limit())))
	if sec < 1 {
		return 1
	}
	return sec
}

func (r *RateLimiter) cleanup() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.options.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *RateLimiter) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.options.ExpiryDuration {
			delete(r.buckets, k)
		}
	}
}
