package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeFragments = []string{"password", "token", "secret", "email", "signature"}

// ExtractContext pulls upstream trace context from carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes whose keys look sensitive.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isBlockedKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError strips the message of errors that may carry request payloads.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range blockedAttributeFragments {
		if strings.Contains(msg, fragment) {
			return errors.New("redacted error")
		}
	}
	return err
}

func isBlockedKey(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range blockedAttributeFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
