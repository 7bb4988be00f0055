package domain

import "context"

type Service interface {
	// Record stores a cumulative observation and reports the newly billed units.
	Record(ctx context.Context, obs Observation) (*Result, error)
}
