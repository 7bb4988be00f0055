package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	obscontext "github.com/OnnaSoft/real-sync/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithUserID(ctx, "42")

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["user_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, accessLevel("/webhook", http.StatusInternalServerError, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/consumption/update-consumption", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, accessLevel("/users/login", http.StatusUnauthorized, "unauthorized"))
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/consumption/update-consumption", func(c *gin.Context) {
		c.Set(KeyTunnelDomain, "app.example.com")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/consumption/update-consumption", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "abc", fields["request_id"])
	assert.Equal(t, "app.example.com", fields[KeyTunnelDomain])
}
