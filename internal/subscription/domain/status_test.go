package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	tests := map[string]Status{
		"active":             StatusActive,
		"trialing":           StatusActive,
		"canceled":           StatusCancelled,
		"incomplete_expired": StatusInactive,
		"past_due":           StatusInactive,
		"unpaid":             StatusInactive,
		"paused":             StatusInactive,
		"incomplete":         StatusPendingCancellation,
	}
	for external, want := range tests {
		got, ok := MapProviderStatus(external)
		assert.True(t, ok, external)
		assert.Equal(t, want, got, external)
	}
}

func TestMapProviderStatusUnknown(t *testing.T) {
	for _, external := range []string{"", "cancelled", "ended", "something_new"} {
		got, ok := MapProviderStatus(external)
		assert.False(t, ok, external)
		assert.Empty(t, got)
	}
}
