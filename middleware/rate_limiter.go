// middleware/rate_limiter.go
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/HSouheill/barrim_notifier/models"
)

// Limit is a token bucket setting
type Limit struct {
	Every time.Duration
	Burst int
}

// RateLimiterConfig configures a RateLimiter. Zero values take the defaults below.
type RateLimiterConfig struct {
	// Default applies to every route without an entry in Routes (10/s, burst 20)
	Default Limit
	// Routes maps an Echo route path to its own limit
	Routes map[string]Limit
	// BlockDuration is how long a caller stays blocked after exceeding a limit (5m)
	BlockDuration time.Duration
}

// DefaultRateLimiterConfig limits the /api surface. A full unread index sweep touches
// every user, so it gets one request every 30 seconds.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Default:       Limit{Every: 100 * time.Millisecond, Burst: 20},
		Routes:        map[string]Limit{"/api/maintenance/unread-index/repair": {Every: 30 * time.Second, Burst: 1}},
		BlockDuration: 5 * time.Minute,
	}
}

type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	blocked  map[string]time.Time
	cfg      RateLimiterConfig
	now      func() time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Default.Every <= 0 {
		cfg.Default.Every = 100 * time.Millisecond
	}
	if cfg.Default.Burst <= 0 {
		cfg.Default.Burst = 20
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 5 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		blocked:  make(map[string]time.Time),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Cleanup drops expired blocks and their limiters every interval until ctx is done
func (r *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *RateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for key, until := range r.blocked {
		if now.After(until) {
			delete(r.blocked, key)
			delete(r.limiters, key)
		}
	}
}

// callerKey identifies the caller: the authenticated user when there is one, else the IP
func callerKey(c echo.Context) string {
	if userID := GetUserIDFromToken(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.RealIP()
}

func (r *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			limit, ok := r.cfg.Routes[path]
			if !ok {
				limit = r.cfg.Default
			}
			// each route override gets its own bucket
			key := callerKey(c)
			if ok {
				key += "|" + path
			}

			if until, blocked := r.allow(key, limit); blocked {
				return c.JSON(http.StatusTooManyRequests, models.Response{
					Status:  http.StatusTooManyRequests,
					Message: "Too many requests",
					Data:    map[string]string{"retryAfter": until.Format(time.RFC3339)},
				})
			}
			return next(c)
		}
	}
}

// allow consumes a token for key. When none is left the key is blocked and the
// block expiry is returned.
func (r *RateLimiter) allow(key string, limit Limit) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if until, ok := r.blocked[key]; ok {
		if now.Before(until) {
			return until, true
		}
		// Block has expired - reset the limiter state
		delete(r.blocked, key)
		delete(r.limiters, key)
	}

	limiter, exists := r.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(limit.Every), limit.Burst)
		r.limiters[key] = limiter
	}
	if limiter.AllowN(now, 1) {
		return time.Time{}, false
	}
	until := now.Add(r.cfg.BlockDuration)
	r.blocked[key] = until
	return until, true
}
