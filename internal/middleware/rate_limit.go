package middleware

import (
	"github.com/gin-gonic/gin"

	"peermarket/pkg/limiter"
	"peermarket/pkg/log"
	"peermarket/pkg/utils"
)

// RateLimit per-client rate limiting middleware
func RateLimit(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			// A broken limiter backend must not take the API down
			log.WithError(err).Warn("Rate limiter check failed")
			c.Next()
			return
		}
		if !allowed {
			utils.Error(c, utils.CodeRateLimit, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
