package server

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/livetemplate/storefront/internal/cache"
)

const (
	// clientIdle is how long an unused client bucket is kept.
	clientIdle = 10 * time.Minute

	evictionLogInterval = 30 * time.Second
)

// clientLimits hands out one token bucket per client IP.
type clientLimits struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets *cache.MemoryCache[*rate.Limiter]

	mu      sync.Mutex
	evicted int
	lastLog time.Time
}

func newClientLimits(rps float64, burst, maxClients int) *clientLimits {
	l := &clientLimits{limit: rate.Limit(rps), burst: burst, idle: clientIdle}
	l.buckets = cache.New[*rate.Limiter](cache.Options{
		MaxEntries: maxClients,
		Sweep:      5 * time.Minute,
		OnEvict:    l.noteEviction,
	})
	return l
}

func (l *clientLimits) allow(ip string) bool {
	return l.buckets.Touch(ip, l.idle, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	}).Allow()
}

func (l *clientLimits) noteEviction(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evicted++
	if now := time.Now(); now.Sub(l.lastLog) >= evictionLogInterval {
		log.Printf("[RateLimit] Client table full, dropped %d least recent client(s)", l.evicted)
		l.lastLog = now
		l.evicted = 0
	}
}

// RateLimitMiddleware limits admin API requests per client IP. At most
// maxClients buckets are tracked. Call stop on shutdown.
func RateLimitMiddleware(rps float64, burst, maxClients int) (mw func(http.Handler) http.Handler, stop func()) {
	if maxClients <= 0 {
		maxClients = 10000
	}
	limits := newClientLimits(rps, burst, maxClients)

	mw = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limits.allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return mw, limits.buckets.Stop
}

// clientIP is the peer address, or the first forwarded address when the
// peer is a loopback or private proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return host
	}
	if peer.IsLoopback() || peer.IsPrivate() {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	return peer.String()
}
