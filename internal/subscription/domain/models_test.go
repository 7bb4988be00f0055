package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCancellationTransitions(t *testing.T) {
	activated := date(2024, time.January, 15)
	sub := &Subscription{Status: StatusActive, ActivatedAt: activated}

	requested := date(2024, time.January, 20)
	require.NoError(t, sub.RequestCancellation(requested))
	assert.Equal(t, StatusPendingCancellation, sub.Status)
	require.NotNil(t, sub.CancelRequestedAt)
	require.NotNil(t, sub.EffectiveCancelDate)
	assert.Equal(t, requested, *sub.CancelRequestedAt)
	assert.Equal(t, date(2024, time.February, 29), *sub.EffectiveCancelDate)

	assert.ErrorIs(t, sub.RequestCancellation(requested.AddDate(0, 0, 1)), ErrCancellationPending)
}

func TestRequestCancellationRequiresActive(t *testing.T) {
	sub := &Subscription{Status: StatusInactive, ActivatedAt: date(2024, time.January, 1)}
	assert.ErrorIs(t, sub.RequestCancellation(date(2024, time.February, 1)), ErrInvalidStatus)
	assert.Nil(t, sub.CancelRequestedAt)

	sub.Status = StatusActive
	assert.ErrorIs(t, sub.RequestCancellation(date(2023, time.December, 1)), ErrInvalidCancelRequest)
	assert.Equal(t, StatusActive, sub.Status)
}

func TestActivateAndDeactivateClearCancellation(t *testing.T) {
	sub := &Subscription{Status: StatusActive, ActivatedAt: date(2024, time.January, 1)}
	require.NoError(t, sub.RequestCancellation(date(2024, time.January, 10)))

	now := date(2024, time.March, 1)
	sub.Activate(now)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, now, sub.ActivatedAt)
	assert.Nil(t, sub.CancelRequestedAt)
	assert.Nil(t, sub.EffectiveCancelDate)

	require.NoError(t, sub.RequestCancellation(date(2024, time.March, 5)))
	sub.Deactivate(date(2024, time.March, 6))
	assert.Equal(t, StatusInactive, sub.Status)
	assert.Nil(t, sub.CancelRequestedAt)
	assert.Nil(t, sub.EffectiveCancelDate)
}

func TestCancelSetsEffectiveDate(t *testing.T) {
	sub := &Subscription{Status: StatusActive, ActivatedAt: date(2024, time.January, 1)}
	now := time.Date(2024, time.May, 2, 8, 30, 0, 0, time.UTC)
	sub.Cancel(now, now)
	assert.Equal(t, StatusCancelled, sub.Status)
	require.NotNil(t, sub.EffectiveCancelDate)
	assert.Equal(t, now, *sub.EffectiveCancelDate)
}

func TestToViewFormatsEffectiveDate(t *testing.T) {
	sub := &Subscription{ID: 42, PlanID: 2, Status: StatusActive, ActivatedAt: date(2024, time.January, 15)}
	require.NoError(t, sub.RequestCancellation(date(2024, time.January, 20)))

	view := ToView(sub)
	assert.Equal(t, "42", view.ID)
	assert.Equal(t, "2024-02-29", view.EffectiveCancelDate)
	assert.Equal(t, StatusPendingCancellation, view.Status)
}
