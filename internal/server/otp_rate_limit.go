package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/membership/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/membership/internal/observability/metrics"
	"github.com/smallbiznis/membership/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonOTPBucket = "otp-bucket"

// OTPRateLimit spends one token from the caller's bucket before any route
// that can send or check a code. It is a no-op without redis.
func (s *Server) OTPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		var userKey string
		if userID, err := currentUserID(c); err == nil {
			userKey = userID.String()
		}

		result, err := s.limiter.AllowOTP(ctx, userKey, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("otp rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		writeRateLimitHeaders(c, result)
		if !result.Allowed {
			denyOTPRateLimit(c, endpoint, result, s.obsMetrics)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func denyOTPRateLimit(c *gin.Context, endpoint string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("otp rate limit exceeded",
		zap.String("reason", rateLimitReasonOTPBucket),
		zap.String("endpoint", endpoint),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonOTPBucket)

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonOTPBucket)
	AbortWithError(c, ErrRateLimited)
}

func writeRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetTime.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
