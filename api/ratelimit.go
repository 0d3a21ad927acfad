package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultRateLimit = 120
	DefaultBurstSize = 20
	// LimiterTTL is how long an idle client keeps its limiter.
	LimiterTTL = 10 * time.Minute
)

// RateLimiter hands out one token bucket per (client, action). Clients are
// identified by the X-User-ID header, or the remote address when absent.
// Stale buckets are dropped by Cleanup, which the maintenance scheduler runs.
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	perMinute int
	rateLimit float64 // tokens per second
	burstSize int
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute with the given
// burst. A non-positive requestsPerMinute disables limiting.
func NewRateLimiter(requestsPerMinute, burstSize int) *RateLimiter {
	if burstSize <= 0 {
		burstSize = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		perMinute: requestsPerMinute,
		rateLimit: float64(requestsPerMinute) / 60.0,
		burstSize: burstSize,
		now:       time.Now,
	}
}

func (rl *RateLimiter) enabled() bool {
	return rl != nil && rl.perMinute > 0
}

func (rl *RateLimiter) entry(key string) *limiterEntry {
	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rateLimit), rl.burstSize)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled() {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.entry(key).limiter.AllowN(rl.now(), 1)
}

// State returns the remaining tokens for key and when the bucket is full again.
func (rl *RateLimiter) State(key string) (remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		return rl.burstSize, now
	}
	tokens := int(e.limiter.TokensAt(now))
	if tokens < 0 {
		tokens = 0
	}
	refill := time.Duration(float64(rl.burstSize-tokens) / rl.rateLimit * float64(time.Second))
	return tokens, now.Add(refill)
}

// Cleanup removes limiters idle for longer than ttl and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(ttl time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-ttl)
	removed := 0
	for key, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Len is the number of live limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Limit returns middleware that rate limits one action. Each action has its
// own bucket per client, so heavy previews do not starve commits.
func (rl *RateLimiter) Limit(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !rl.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r) + "|" + action
			allowed := rl.Allow(key)
			remaining, reset := rl.State(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retryAfter := int(reset.Sub(rl.now()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				zerolog.Ctx(r.Context()).Warn().
					Str("client", clientKey(r)).
					Str("action", action).
					Int("retry_after", retryAfter).
					Msg("rate limit exceeded")

				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error: fmt.Sprintf("too many %s requests, retry after %d seconds", action, retryAfter),
					Code:  "rate_limited",
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller. RealIP runs earlier in the chain, so
// RemoteAddr already reflects X-Forwarded-For.
func clientKey(r *http.Request) string {
	if user := r.Header.Get(HeaderUserID); user != "" {
		return "user:" + user
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}
