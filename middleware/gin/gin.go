package gin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	choked "github.com/choked/choked-go"
)

// RateLimiter creates a new Gin middleware handler.
//
// It uses the provided Limiter (the core admission logic) to check whether a
// request should be allowed or denied. The behavior can be customized with
// functional options, such as changing how a client is identified
// (WithKeyFunc) or how rate limit errors are handled (WithErrorHandler).
//
// Example:
//
//	tb, _ := choked.NewTokenBucket(st, "100/s", "")
//	router := gin.Default()
//	router.Use(ginmiddleware.RateLimiter(tb))
func RateLimiter(limiter choked.Limiter, options ...choked.Option) gin.HandlerFunc {
	cfg := choked.NewConfig(options...)

	return func(c *gin.Context) {
		key, err := cfg.KeyFunc(c.Request)
		if err != nil {
			cfg.Logger.Errorf("Failed to extract key: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		result, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			cfg.Logger.Errorf("Limiter failed for key '%s': %v", key, err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.RequestLimit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.RemainingRequests, 10))

		resetTimestamp := time.Now().Add(result.RetryAfter).Unix()
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTimestamp, 10))

		if !result.Allowed {
			cfg.Logger.Debugf(
				"Request denied for key '%s'. Remaining: %d, Limit: %d",
				key, result.RemainingRequests, result.RequestLimit,
			)
			cfg.ErrorHandler(c.Writer, c.Request, choked.ErrLimitExceeded, result)
			c.Abort()
			return
		}

		cfg.Logger.Debugf(
			"Request allowed for key '%s'. Remaining: %d, Limit: %d",
			key, result.RemainingRequests, result.RequestLimit,
		)

		c.Next()
	}
}
