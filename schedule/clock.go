/*
clock.go - Resolving "now" for a timeline

PURPOSE:
  Late-status logic needs a current instant, but operators testing a
  timeline want to move that instant by hand. The clock resolver returns
  either wall-clock time or the timeline's stored simulated instant.

MANUAL MODE:
  The simulated instant is returned verbatim. It is validated to lie
  within [start, end] when written (SetSimulationDate), never at read
  time. A manual timeline with no stored instant falls back to the wall
  clock.

SEE ALSO:
  - timeline.go: Timeline.Mode and SimulationDate storage
*/
package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// CLOCK - Injectable source of "now"
// =============================================================================

// Clock resolves the current instant for a timeline. The zero value uses
// the wall clock; tests inject a fixed Now.
type Clock struct {
	Now func() time.Time
}

func (c Clock) wallClock() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Resolve returns the instant to treat as "now" for status derivation.
func (c Clock) Resolve(t Timeline) time.Time {
	if t.Mode == ModeManual && t.SimulationDate != nil {
		return *t.SimulationDate
	}
	return c.wallClock()
}

// =============================================================================
// SIMULATION DATE WRITES
// =============================================================================

// SetSimulationDate switches the timeline to manual mode at the given
// instant. The instant must lie within the timeline's date range; this is
// the write-time bound the read path relies on.
func (t *Timeline) SetSimulationDate(at time.Time) error {
	if !t.ContainsInstant(at) {
		return fmt.Errorf("simulation date %s outside timeline range [%s, %s]",
			at.Format(time.RFC3339), t.StartDate.Format(time.RFC3339), t.EndDate().Format(time.RFC3339))
	}
	t.Mode = ModeManual
	t.SimulationDate = &at
	return nil
}

// ClearSimulationDate returns the timeline to the wall clock.
func (t *Timeline) ClearSimulationDate() {
	t.Mode = ModeRealtime
	t.SimulationDate = nil
}
