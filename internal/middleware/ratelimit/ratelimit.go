// Package ratelimit throttles expensive endpoints per caller. Every answered
// question fans out into several LLM calls, so the query routes get a much
// tighter budget than uploads or reads.
package ratelimit

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

type window struct {
	mu       sync.Mutex
	count    int
	resetsAt time.Time
}

// Limiter counts requests per caller over a fixed window. Callers are
// identified by the X-User-ID header when present, by IP otherwise.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	stop    chan struct{}
}

func New(limit int, period time.Duration) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if period <= 0 {
		period = time.Minute
	}

	l := &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		stop:    make(chan struct{}),
	}

	go l.sweep()

	return l
}

func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		allowed, retryAfter := l.take(key)
		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("caller", key),
				zap.String("path", c.Path()),
			)
			c.Set("Retry-After", retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		}

		return c.Next()
	}
}

func (l *Limiter) take(key string) (bool, string) {
	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok {
		w = &window{resetsAt: time.Now().Add(l.period)}
		l.windows[key] = w
	}
	l.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.After(w.resetsAt) {
		w.count = 0
		w.resetsAt = now.Add(l.period)
	}

	if w.count >= l.limit {
		// Retry-After carries delta-seconds, rounded up so a retry at the
		// stated time is never early.
		secs := int(math.Ceil(time.Until(w.resetsAt).Seconds()))
		if secs < 1 {
			secs = 1
		}
		return false, strconv.Itoa(secs)
	}

	w.count++
	return true, ""
}

// sweep drops windows that have been idle for several periods so the map
// does not grow with one entry per caller ever seen.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * l.period)
			l.mu.Lock()
			for key, w := range l.windows {
				w.mu.Lock()
				stale := w.resetsAt.Before(cutoff)
				w.mu.Unlock()
				if stale {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	close(l.stop)
}
