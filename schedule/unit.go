/*
unit.go - Schedule units and date advancement

PURPOSE:
  Defines the closed set of schedule units a timeline can run on and the
  pure date arithmetic for each. "Advance period 3 of a monthly timeline"
  is a single function call here, not ad hoc branches scattered across
  the ledger.

KEY CONCEPTS:
  - ScheduleUnit: closed tagged union (yearly..minute)
  - Advance: start instant + n units, calendar-aware
  - MaxDuration: per-unit bound on how many periods a timeline may define

CALENDAR ROLLOVER:
  Advancing by months or years uses native calendar arithmetic
  (time.AddDate). Advancing Jan 31 by one month lands on Mar 2/3. This
  shift is accepted, not corrected.

SEE ALSO:
  - timeline.go: Uses Advance to compute per-period due instants
*/
package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// SCHEDULE UNIT - Closed set of timeline granularities
// =============================================================================

type ScheduleUnit string

const (
	UnitYearly  ScheduleUnit = "yearly"
	UnitMonthly ScheduleUnit = "monthly"
	UnitWeekly  ScheduleUnit = "weekly"
	UnitDaily   ScheduleUnit = "daily"
	UnitHourly  ScheduleUnit = "hourly"
	UnitMinute  ScheduleUnit = "minute"
)

// Units lists every valid schedule unit.
func Units() []ScheduleUnit {
	return []ScheduleUnit{UnitYearly, UnitMonthly, UnitWeekly, UnitDaily, UnitHourly, UnitMinute}
}

// Valid reports whether u is one of the known units.
func (u ScheduleUnit) Valid() bool {
	switch u {
	case UnitYearly, UnitMonthly, UnitWeekly, UnitDaily, UnitHourly, UnitMinute:
		return true
	}
	return false
}

// MaxDuration returns the upper bound on period count for this unit:
// 50 for yearly timelines, 365 for everything else.
func (u ScheduleUnit) MaxDuration() int {
	if u == UnitYearly {
		return 50
	}
	return 365
}

// Advance returns start moved forward by n units. Pure; n may be zero.
// Month/year advancement rolls over via the calendar and may shift the
// day-of-month.
func (u ScheduleUnit) Advance(start time.Time, n int) time.Time {
	switch u {
	case UnitYearly:
		return start.AddDate(n, 0, 0)
	case UnitMonthly:
		return start.AddDate(0, n, 0)
	case UnitWeekly:
		return start.AddDate(0, 0, 7*n)
	case UnitDaily:
		return start.AddDate(0, 0, n)
	case UnitHourly:
		return start.Add(time.Duration(n) * time.Hour)
	case UnitMinute:
		return start.Add(time.Duration(n) * time.Minute)
	default:
		return start
	}
}

// Label returns the human label for period n, e.g. "Month 3".
func (u ScheduleUnit) Label(n int) string {
	var noun string
	switch u {
	case UnitYearly:
		noun = "Year"
	case UnitMonthly:
		noun = "Month"
	case UnitWeekly:
		noun = "Week"
	case UnitDaily:
		noun = "Day"
	case UnitHourly:
		noun = "Hour"
	case UnitMinute:
		noun = "Minute"
	default:
		noun = "Period"
	}
	return fmt.Sprintf("%s %d", noun, n)
}
