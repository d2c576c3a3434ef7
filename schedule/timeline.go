/*
Package schedule builds and interrogates payment timelines.

PURPOSE:
  A timeline divides one collection cycle into ordered periods, each with
  a due instant and an amount. This package owns the expansion from a
  timeline definition (unit, duration, start, total amount, holidays) to
  the full period map, plus the clock resolution used to decide whether a
  period is overdue.

KEY CONCEPTS IN THIS FILE (timeline.go):
  - Timeline: the active collection cycle definition
  - Period: one billable interval with ordinal, label, due instant, amount
  - BuildPeriods: pure expansion of a definition into period_1..period_n

AMOUNT SPLITTING:
  Per-period amount = ceil(totalAmount / activePeriodCount), computed with
  decimal arithmetic. Rounding up means the sum collected over all active
  periods may exceed the total; the excess is accepted, not redistributed.

HOLIDAYS:
  Holiday period numbers are inactive and zero-amount, and are excluded
  from the active count used for the split. Holiday indices are only
  meaningful for a given (unit, duration) pair; callers changing either
  must clear the holiday set.

SEE ALSO:
  - unit.go: Date advancement per schedule unit
  - clock.go: Resolving "now" for a timeline
*/
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLOCK MODE
// =============================================================================

type ClockMode string

const (
	ModeRealtime ClockMode = "realtime"
	ModeManual   ClockMode = "manual"
)

// =============================================================================
// PERIOD - One billable interval within a timeline
// =============================================================================

type Period struct {
	Number  int             `json:"number"`
	Label   string          `json:"label"`
	DueDate time.Time       `json:"dueDate"`
	Active  bool            `json:"active"`
	Amount  decimal.Decimal `json:"amount"`
}

// PeriodKey returns the map key for period n ("period_<n>").
func PeriodKey(n int) string {
	return fmt.Sprintf("period_%d", n)
}

// ParsePeriodKey extracts the ordinal from a period key.
// Returns 0 and false for anything that is not "period_<n>" with n >= 1.
func ParsePeriodKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "period_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// =============================================================================
// TIMELINE - The full schedule definition for one collection cycle
// =============================================================================

type Timeline struct {
	ID              string            `json:"id"`
	Unit            ScheduleUnit      `json:"type"`
	Duration        int               `json:"duration"`
	StartDate       time.Time         `json:"startDate"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	AmountPerPeriod decimal.Decimal   `json:"amountPerPeriod"`
	Mode            ClockMode         `json:"mode"`
	SimulationDate  *time.Time        `json:"simulationDate,omitempty"`
	Holidays        []int             `json:"holidays"`
	Periods         map[string]Period `json:"periods"`
}

// Definition is the input to timeline construction.
type Definition struct {
	Unit        ScheduleUnit
	Duration    int
	StartDate   time.Time
	TotalAmount decimal.Decimal
	Holidays    []int
}

// Validate checks the definition bounds without building anything.
func (d Definition) Validate() error {
	if !d.Unit.Valid() {
		return fmt.Errorf("unknown schedule unit %q", d.Unit)
	}
	if d.Duration < 1 || d.Duration > d.Unit.MaxDuration() {
		return fmt.Errorf("duration %d out of range [1, %d] for %s timelines",
			d.Duration, d.Unit.MaxDuration(), d.Unit)
	}
	if d.TotalAmount.IsNegative() {
		return fmt.Errorf("total amount must not be negative")
	}
	if len(d.distinctHolidays()) >= d.Duration {
		return fmt.Errorf("holidays cover all %d periods; at least one period must be active", d.Duration)
	}
	for _, h := range d.Holidays {
		if h < 1 || h > d.Duration {
			return fmt.Errorf("holiday period %d out of range [1, %d]", h, d.Duration)
		}
	}
	return nil
}

// distinctHolidays returns the holiday ordinals deduplicated and sorted.
// Repeating an ordinal in the input still marks a single period.
func (d Definition) distinctHolidays() []int {
	seen := make(map[int]bool, len(d.Holidays))
	out := make([]int, 0, len(d.Holidays))
	for _, h := range d.Holidays {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

// BuildPeriods expands a definition into the ordered period map.
// Every period has a unique ordinal; holiday periods are inactive with a
// zero amount. Returns the map and the per-period amount for active periods.
func BuildPeriods(d Definition) (map[string]Period, decimal.Decimal, error) {
	if err := d.Validate(); err != nil {
		return nil, decimal.Zero, err
	}

	holidays := make(map[int]bool, len(d.Holidays))
	for _, h := range d.Holidays {
		holidays[h] = true
	}

	activeCount := d.Duration - len(holidays)
	perPeriod := d.TotalAmount.Div(decimal.NewFromInt(int64(activeCount))).Ceil()

	periods := make(map[string]Period, d.Duration)
	for n := 1; n <= d.Duration; n++ {
		p := Period{
			Number:  n,
			Label:   d.Unit.Label(n),
			DueDate: d.Unit.Advance(d.StartDate, n),
			Active:  !holidays[n],
			Amount:  decimal.Zero,
		}
		if p.Active {
			p.Amount = perPeriod
		}
		periods[PeriodKey(n)] = p
	}
	return periods, perPeriod, nil
}

// NewTimeline builds a complete timeline document from a definition.
// The clock starts in realtime mode.
func NewTimeline(id string, d Definition) (Timeline, error) {
	periods, perPeriod, err := BuildPeriods(d)
	if err != nil {
		return Timeline{}, err
	}
	holidays := d.distinctHolidays()
	return Timeline{
		ID:              id,
		Unit:            d.Unit,
		Duration:        d.Duration,
		StartDate:       d.StartDate,
		TotalAmount:     d.TotalAmount,
		AmountPerPeriod: perPeriod,
		Mode:            ModeRealtime,
		Holidays:        holidays,
		Periods:         periods,
	}, nil
}

// Period returns the period stored under key, if any.
func (t Timeline) Period(key string) (Period, bool) {
	p, ok := t.Periods[key]
	return p, ok
}

// PeriodsInOrder returns all periods sorted by ascending ordinal.
func (t Timeline) PeriodsInOrder() []Period {
	out := make([]Period, 0, len(t.Periods))
	for _, p := range t.Periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// EndDate is the due instant of the final period.
func (t Timeline) EndDate() time.Time {
	return t.Unit.Advance(t.StartDate, t.Duration)
}

// ActivePeriodCount returns how many periods carry a non-zero amount.
func (t Timeline) ActivePeriodCount() int {
	return t.Duration - len(t.Holidays)
}

// ContainsInstant reports whether at falls within [start, end].
func (t Timeline) ContainsInstant(at time.Time) bool {
	return !at.Before(t.StartDate) && !at.After(t.EndDate())
}
