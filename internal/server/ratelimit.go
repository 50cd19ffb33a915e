package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an untouched per-IP limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter throttles login and registration attempts per client IP.
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	limit     rate.Limit
	burst     int
	lastPrune time.Time
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether ip may make another attempt now.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > idleLimiterTTL {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > idleLimiterTTL {
				delete(l.limiters, key)
			}
		}
		l.lastPrune = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientIP returns the peer address. Forwarding headers are ignored since
// they are client-controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// allowAttempt writes 429 and returns false when the caller is over its
// login budget.
func (s *Server) allowAttempt(w http.ResponseWriter, r *http.Request) bool {
	return s.allowRequest(w, r, s.limiter, "Too many attempts, try again shortly")
}

// allowChat applies the per-IP budget for the anonymous chat route.
func (s *Server) allowChat(w http.ResponseWriter, r *http.Request) bool {
	return s.allowRequest(w, r, s.chatLimiter, "Too many messages, try again shortly")
}

func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request, l *ipRateLimiter, message string) bool {
	if l == nil || l.Allow(clientIP(r)) {
		return true
	}
	s.logger.Info().Str("ip", clientIP(r)).Str("path", r.URL.Path).Msg("Requests throttled")
	w.Header().Set("Retry-After", "1")
	WriteError(w, http.StatusTooManyRequests, message)
	return false
}
