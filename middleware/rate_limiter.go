package middleware

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter throttles each user with its own token bucket.
type UserRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

// NewUserRateLimiter allows perMinute requests per user with the given burst.
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Handler keys the bucket on the gateway user, falling back to the client IP.
func (l *UserRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = c.IP()
		}
		if !l.get(key).Allow() {
			log.Printf("🚫 [RATE_LIMIT] %s throttled on %s", key, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many submissions, slow down",
			})
		}
		return c.Next()
	}
}

func (l *UserRateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops buckets idle for longer than idle. Runs until stop closes.
func (l *UserRateLimiter) Cleanup(stop <-chan struct{}, idle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.evict(idle)
		}
	}
}

func (l *UserRateLimiter) evict(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}
