// Package domain contains the per-tunnel monthly consumption model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BytesPerUnit is the billing unit, one GiB.
const BytesPerUnit int64 = 1 << 30

// Consumption is the cumulative byte usage of one tunnel in one calendar month.
// ReportedUnits is how many units were already sent to the billing provider.
type Consumption struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	TunnelID      snowflake.ID `gorm:"not null;uniqueIndex:ux_tunnel_consumption_period,priority:1"`
	Year          int          `gorm:"not null;uniqueIndex:ux_tunnel_consumption_period,priority:2"`
	Month         int          `gorm:"not null;uniqueIndex:ux_tunnel_consumption_period,priority:3"`
	DataUsage     int64        `gorm:"not null"`
	ReportedUnits int64        `gorm:"not null;default:0"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Consumption) TableName() string { return "tunnel_consumptions" }

// BilledUnits converts bytes to whole billing units, rounding up.
func BilledUnits(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	units := bytes / BytesPerUnit
	if bytes%BytesPerUnit != 0 {
		units++
	}
	return units
}

// Decision is what to do with a new cumulative observation.
type Decision struct {
	// Units is the increment to report; zero means no report.
	Units int64
	// TotalUnits is the reported total after a successful report.
	TotalUnits int64
	// Persist is false when the stored row already holds the value.
	Persist bool
	// NonPositive marks an observation that did not grow the usage.
	NonPositive bool
}

// Decide compares an observation with the stored row, which may be nil.
func Decide(previous *Consumption, cumulative int64) Decision {
	total := BilledUnits(cumulative)
	if previous == nil {
		return Decision{Units: total, TotalUnits: total, Persist: true}
	}

	delta := cumulative - previous.DataUsage
	if delta <= 0 {
		return Decision{
			TotalUnits:  previous.ReportedUnits,
			Persist:     delta != 0,
			NonPositive: true,
		}
	}

	d := Decision{TotalUnits: previous.ReportedUnits, Persist: true}
	if total > previous.ReportedUnits {
		d.Units = total - previous.ReportedUnits
		d.TotalUnits = total
	}
	return d
}

// Observation is one cumulative usage sample for a tunnel domain.
type Observation struct {
	Domain    string
	DataUsage int64
	Year      int
	Month     int
}

// Result summarizes a recorded observation.
type Result struct {
	TunnelID      snowflake.ID
	Year          int
	Month         int
	DataUsage     int64
	ReportedUnits int64
	UnitsReported int64
}
