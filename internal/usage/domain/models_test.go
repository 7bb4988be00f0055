package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBilledUnits(t *testing.T) {
	assert.Equal(t, int64(0), BilledUnits(0))
	assert.Equal(t, int64(0), BilledUnits(-5))
	assert.Equal(t, int64(1), BilledUnits(1))
	assert.Equal(t, int64(1), BilledUnits(BytesPerUnit))
	assert.Equal(t, int64(2), BilledUnits(BytesPerUnit+1))
	assert.Equal(t, int64(2), BilledUnits(1_500_000_000))
	assert.Equal(t, int64(8589934592), BilledUnits(math.MaxInt64))
}

func TestDecideFirstObservation(t *testing.T) {
	d := Decide(nil, 1_500_000_000)
	assert.Equal(t, Decision{Units: 2, TotalUnits: 2, Persist: true}, d)

	d = Decide(nil, 0)
	assert.Equal(t, Decision{Persist: true}, d)
}

func TestDecideGrowth(t *testing.T) {
	prev := &Consumption{DataUsage: 1_500_000_000, ReportedUnits: 2}

	d := Decide(prev, 2_000_000_000)
	assert.Equal(t, int64(0), d.Units)
	assert.True(t, d.Persist)
	assert.False(t, d.NonPositive)

	d = Decide(prev, 3*BytesPerUnit+1)
	assert.Equal(t, int64(2), d.Units)
	assert.Equal(t, int64(4), d.TotalUnits)
}

func TestDecideNonPositive(t *testing.T) {
	prev := &Consumption{DataUsage: 5 * BytesPerUnit, ReportedUnits: 5}

	d := Decide(prev, 5*BytesPerUnit)
	assert.Equal(t, Decision{TotalUnits: 5, NonPositive: true}, d)

	d = Decide(prev, BytesPerUnit)
	assert.Equal(t, Decision{TotalUnits: 5, Persist: true, NonPositive: true}, d)
}

func TestIncrementsSumToFinalUnits(t *testing.T) {
	samples := []int64{100, BytesPerUnit - 1, BytesPerUnit, BytesPerUnit + 7, 10 * BytesPerUnit, 10*BytesPerUnit + 3}
	var prev *Consumption
	var reported int64
	for _, sample := range samples {
		d := Decide(prev, sample)
		reported += d.Units
		prev = &Consumption{DataUsage: sample, ReportedUnits: d.TotalUnits}
	}
	assert.Equal(t, BilledUnits(samples[len(samples)-1]), reported)
}
