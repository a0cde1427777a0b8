package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// PrincipalRateLimiter keeps one token bucket per caller.
type PrincipalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewPrincipalRateLimiter allows rps requests per second with the given
// burst. A non-positive rps disables limiting.
func NewPrincipalRateLimiter(rps float64, burst int) *PrincipalRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &PrincipalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        limit,
		b:        burst,
	}
}

func (l *PrincipalRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim
}

// Middleware keys on the authenticated employee, falling back to the client IP.
func (l *PrincipalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if emp, ok := PrincipalFrom(r.Context()); ok {
			key = "employee:" + string(emp.ID)
		}
		if !l.limiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
