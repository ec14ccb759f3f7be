package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cxr-assist-server/internal/domain"
)

// ClientLimiter hands out a token bucket per client key.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows rps requests per second per client with the given burst.
// Buckets unused for idle are dropped.
func NewClientLimiter(rps float64, burst int, idle time.Duration) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops idle buckets and returns how many remain.
func (l *ClientLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	for key, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
	return len(l.clients)
}

// RateLimit rejects requests beyond the client's budget with 429. Clients are
// keyed by clinician id when present, otherwise by IP.
func RateLimit(l *ClientLimiter) gin.HandlerFunc {
	var requests int
	var mu sync.Mutex

	return func(c *gin.Context) {
		key := c.GetHeader(ClinicianIDHeader)
		if key == "" {
			key = c.ClientIP()
		}

		if !l.Allow(key) {
			apiErr := domain.NewAPIError(domain.ErrCodeRateLimit, "Too many requests", "", c.GetString(CorrelationIDKey))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr)
			return
		}

		mu.Lock()
		requests++
		sweep := requests%1000 == 0
		mu.Unlock()
		if sweep {
			l.Sweep()
		}

		c.Next()
	}
}
