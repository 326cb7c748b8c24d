package nethttp

import (
	"net/http"
	"strconv"
	"time"

	choked "github.com/choked/choked-go"
)

// Middleware creates a new middleware handler for the standard `net/http`
// library.
//
// It wraps an existing `http.Handler` and checks incoming requests against
// the provided Limiter, keyed per client via the configured KeyFunc. On every
// request it adds the standard `X-RateLimit-*` headers to the response. The
// check is non-blocking: a denied request is answered immediately through the
// ErrorHandler instead of waiting for refill.
//
// Example:
//
//	tb, _ := choked.NewTokenBucket(st, "100/s", "")
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//
//	rateLimitMiddleware := nethttp.Middleware(tb)
//	http.ListenAndServe(":8080", rateLimitMiddleware(mux))
func Middleware(limiter choked.Limiter, options ...choked.Option) func(http.Handler) http.Handler {
	cfg := choked.NewConfig(options...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := cfg.KeyFunc(r)
			if err != nil {
				cfg.Logger.Errorf("Failed to extract key: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				cfg.Logger.Errorf("Limiter failed for key '%s': %v", key, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.RequestLimit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.RemainingRequests, 10))
			resetTimestamp := time.Now().Add(result.RetryAfter).Unix()
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTimestamp, 10))

			if !result.Allowed {
				cfg.Logger.Debugf(
					"Request denied for key '%s'. Remaining: %d, Limit: %d",
					key, result.RemainingRequests, result.RequestLimit,
				)
				cfg.ErrorHandler(w, r, choked.ErrLimitExceeded, result)
				return
			}

			cfg.Logger.Debugf(
				"Request allowed for key '%s'. Remaining: %d, Limit: %d",
				key, result.RemainingRequests, result.RequestLimit,
			)
			next.ServeHTTP(w, r)
		})
	}
}
