package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateLimitReasonDomainRate = "domain-rate"

type consumptionRateLimitKey struct {
	Domain string `json:"domain"`
}

// ConsumptionRateLimit applies the per-domain token bucket to usage ingestion.
func (s *Server) ConsumptionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		domain, err := readConsumptionDomain(c)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if domain == "" {
			// Let binding report the missing field.
			c.Next()
			return
		}
		c.Set(logger.KeyTunnelDomain, domain)

		res, err := s.limiter.AllowDomain(ctx, domain)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("consumption rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			logger.WithContext(ctx, s.log).Warn("consumption rate limit exceeded",
				zap.String("reason", rateLimitReasonDomainRate),
				zap.String("tunnel_domain", domain),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonDomainRate)

			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonDomainRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func readConsumptionDomain(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload consumptionRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(payload.Domain)), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
