package domain

import "strings"

var providerStatuses = map[string]Status{
	"active":             StatusActive,
	"trialing":           StatusActive,
	"canceled":           StatusCancelled,
	"incomplete_expired": StatusInactive,
	"past_due":           StatusInactive,
	"unpaid":             StatusInactive,
	"paused":             StatusInactive,
	"incomplete":         StatusPendingCancellation,
}

// MapProviderStatus translates a Stripe subscription status. Unknown statuses
// report false and must not change the record.
func MapProviderStatus(providerStatus string) (Status, bool) {
	status, ok := providerStatuses[strings.ToLower(strings.TrimSpace(providerStatus))]
	return status, ok
}
