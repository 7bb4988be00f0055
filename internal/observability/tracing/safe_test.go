package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/users/login"),
		attribute.String("user.password", "hunter2"),
		attribute.String("stripe.signature", "t=1,v1=abc"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsSecrets(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("invalid token for user")), "redacted error")
	assert.EqualError(t, SafeError(errors.New("connection refused")), "connection refused")
}
