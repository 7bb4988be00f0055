package logger

import (
	"net/http"
	"strings"
	"time"

	obscontext "github.com/OnnaSoft/real-sync/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	HeaderRequestID = "X-Request-Id"

	// Context keys handlers may set for the access log.
	KeyTunnelDomain = "tunnel_domain"
	KeyEventType    = "billing_event_type"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// Routes that are polled or retried often enough to log at debug.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinMiddleware writes one access log line per request, carrying the
// request id and whatever tunnel or billing identifiers the handler recorded.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		for _, key := range []string{KeyTunnelDomain, KeyEventType} {
			if v := c.GetString(key); v != "" {
				fields = append(fields, zap.String(key, v))
			}
		}

		errType := ""
		if last := c.Errors.Last(); last != nil {
			var code string
			if cfg.ErrorClassifier != nil {
				errType, code = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", code))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(accessLevel(route, c.Writer.Status(), errType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(HeaderRequestID, id)
	return id
}

// accessLevel keeps client validation noise out of info logs; usage reporters
// retry rejected observations aggressively.
func accessLevel(route string, status int, errType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case quietRoutes[route]:
		return zapcore.DebugLevel
	case status >= http.StatusBadRequest && errType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
