package httpadapter

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type rejectHook func(reason string)

func (h rejectHook) fire(reason string) {
	if h != nil {
		h(reason)
	}
}

// rateLimitMiddleware is the process-wide token bucket. rps <= 0 disables it.
func rateLimitMiddleware(next http.Handler, rps float64, burst int, onReject rejectHook) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/rps))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			onReject.fire("global_rate_limit")
			w.Header().Set("Retry-After", retryAfter)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:     "rate limit exceeded",
				RequestID: requestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware bounds in-flight requests. A request waits up to wait
// for a slot and is answered 503 otherwise.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration) http.Handler {
	return backpressureWithHook(next, maxInFlight, wait, nil)
}

func backpressureWithHook(next http.Handler, maxInFlight int, wait time.Duration, onReject rejectHook) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case slots <- struct{}{}:
		default:
			timer := time.NewTimer(wait)
			select {
			case slots <- struct{}{}:
				timer.Stop()
			case <-timer.C:
				onReject.fire("backpressure")
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{
					Error:     "server is overloaded, retry later",
					RequestID: requestIDFromContext(r.Context()),
				})
				return
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

// SlidingWindowLimiter allows at most limit requests per key within window.
// Windows are kept in a bounded LRU so idle keys are eventually forgotten.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows *lru.Cache[string, []time.Time]
}

const maxTrackedKeys = 10_000

func NewSlidingWindowLimiter(limit int, window time.Duration, now func() time.Time) (*SlidingWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("sliding window limit and window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	cache, err := lru.New[string, []time.Time](maxTrackedKeys)
	if err != nil {
		return nil, err
	}
	return &SlidingWindowLimiter{limit: limit, window: window, now: now, windows: cache}, nil
}

// Allow records a hit for key. When the window is full it reports how long
// until the oldest hit expires.
func (l *SlidingWindowLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	hits, _ := l.windows.Get(key)

	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.windows.Add(key, kept)
		return false, kept[0].Add(l.window).Sub(now)
	}
	l.windows.Add(key, append(kept, now))
	return true, 0
}

func (l *SlidingWindowLimiter) Middleware(onReject rejectHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, wait := l.Allow(rateLimitKey(r))
			if !allowed {
				onReject.fire("actor_rate_limit")
				seconds := int(math.Ceil(wait.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error:     "rate limit exceeded",
					RequestID: requestIDFromContext(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey is the authenticated actor, else the client address.
func rateLimitKey(r *http.Request) string {
	if actor, ok := actorFromContext(r.Context()); ok && actor.ID != "" {
		return "actor:" + actor.ID
	}
	return "ip:" + clientHost(r.RemoteAddr)
}
