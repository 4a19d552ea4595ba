package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the rate limiting defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucketIdleEviction is how long a client key can sit unused before its
// bucket is dropped. Keeps the key space bounded under IP churn.
const bucketIdleEviction = 10 * time.Minute

// bucket is one client's token bucket. All fields are guarded by the
// owning store's mutex.
type bucket struct {
	tokens float64
	last   time.Time
}

// limiterStore holds every client bucket behind a single mutex and
// lazily evicts idle ones.
type limiterStore struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	buckets   map[string]*bucket
	lastSweep time.Time

	now func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// take refills the key's bucket for elapsed time, then tries to consume
// one token. On denial it reports the whole seconds until a token is due.
func (s *limiterStore) take(key string) (allowed bool, retryAfter int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > bucketIdleEviction {
		for k, b := range s.buckets {
			if now.Sub(b.last) > bucketIdleEviction {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(s.cfg.BurstSize), last: now}
		s.buckets[key] = b
	} else {
		b.tokens = math.Min(
			b.tokens+now.Sub(b.last).Seconds()*s.cfg.RequestsPerSecond,
			float64(s.cfg.BurstSize),
		)
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if s.cfg.RequestsPerSecond <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/s.cfg.RequestsPerSecond) + 1
}

// clientKey scopes the limit per client IP, and additionally per practice
// when the JWT carried one, so tenants cannot starve each other from
// behind a shared proxy.
func clientKey(c echo.Context) string {
	key := c.RealIP()
	if practiceID, ok := c.Get("jwt_practice_id").(string); ok && practiceID != "" {
		key = practiceID + ":" + key
	}
	return key
}

// RateLimit returns a token bucket rate limiting middleware.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			allowed, retryAfter := store.take(clientKey(c))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
