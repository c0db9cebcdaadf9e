package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Evict per-client buckets once the map grows past this many entries.
	maxTrackedClients = 4096
	clientIdleTimeout = 10 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter tracks one token bucket per authenticated user, falling
// back to the remote IP for anonymous traffic. Paths registered as exempt
// bypass limiting entirely; the provider webhook uses this because a 429
// on a callback retry would delay crediting money the buyer already paid.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	b       int
	exempt  map[string]struct{}
}

func NewClientLimiter(r rate.Limit, b int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*client),
		r:       r,
		b:       b,
		exempt:  make(map[string]struct{}),
	}
}

// Exempt excludes a path from rate limiting. Call before the router starts
// serving; the map is read without a lock afterwards.
func (l *ClientLimiter) Exempt(paths ...string) *ClientLimiter {
	for _, p := range paths {
		l.exempt[p] = struct{}{}
	}
	return l
}

func (l *ClientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.evictIdleLocked()
		}
		c = &client{limiter: rate.NewLimiter(l.r, l.b)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

func (l *ClientLimiter) evictIdleLocked() {
	cutoff := time.Now().Add(-clientIdleTimeout)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func RateLimitMiddleware(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := limiter.exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var key string
			if userID, ok := GetUserID(r.Context()); ok {
				key = "user:" + fmt.Sprint(userID)
			} else {
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				key = "ip:" + ip
			}
			if !limiter.allow(key) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
