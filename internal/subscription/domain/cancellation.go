package domain

import "time"

// ScheduleCancellation returns the date a cancellation requested at
// cancelRequestedAt takes effect: the last day of the month after the request
// month, and never before one full month after activatedAt.
// Dates are compared in UTC at day granularity.
func ScheduleCancellation(activatedAt, cancelRequestedAt time.Time) (time.Time, error) {
	if !cancelRequestedAt.After(activatedAt) {
		return time.Time{}, ErrInvalidCancelRequest
	}

	requested := cancelRequestedAt.UTC()
	candidate := lastDayOfMonth(requested.Year(), requested.Month()+1)

	minEffective := addMonthsClamped(truncateDay(activatedAt.UTC()), 1)
	if candidate.Before(minEffective) {
		candidate = lastDayOfMonth(minEffective.Year(), minEffective.Month())
	}
	return candidate, nil
}

// CancellationInstant is the provider cancel_at for an effective date: the
// last second of that day.
func CancellationInstant(effective time.Time) time.Time {
	return truncateDay(effective.UTC()).Add(24*time.Hour - time.Second)
}

// EffectiveDateOf maps a provider cancellation timestamp to its calendar date.
func EffectiveDateOf(at time.Time) time.Time {
	return truncateDay(at.UTC())
}

func lastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// addMonthsClamped keeps the day of month, clamped to the target month's length.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := lastDayOfMonth(first.Year(), first.Month())
	day := t.Day()
	if day > last.Day() {
		day = last.Day()
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
