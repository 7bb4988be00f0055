package tracing

import (
	"net/http"

	obscontext "github.com/OnnaSoft/real-sync/internal/observability/context"
	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "realsync/http"

// GinMiddleware opens a server span per request and names it after the
// matched route once the handler has run.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if id := obscontext.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName(c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		if userID := obscontext.UserIDFromContext(c.Request.Context()); userID != "" {
			attrs = append(attrs, attribute.String("enduser.id", userID))
		}
		if domain := c.GetString(logger.KeyTunnelDomain); domain != "" {
			attrs = append(attrs, attribute.String("realsync.tunnel_domain", domain))
		}
		if eventType := c.GetString(logger.KeyEventType); eventType != "" {
			attrs = append(attrs, attribute.String("realsync.billing_event_type", eventType))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			span.RecordError(SafeError(last.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
