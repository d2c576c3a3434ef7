/*
timeline.go - Timeline administration

PURPOSE:
  Creating, replacing, and tuning the active timeline. Replacing the
  active timeline is destructive to the previous cycle's payment records
  unless the caller asks to preserve them; the replacement and the purge
  land in one atomic batch.

HOLIDAY SAFETY:
  Holiday indices are only meaningful for a given (unit, duration) pair.
  UpdateTimeline clears the holiday set whenever either changes, so stale
  indices cannot silently misalign onto the wrong periods.

SEE ALSO:
  - schedule: period expansion and simulation clock bounds
*/
package dues

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rukun/jimpitan-engine/docstore"
	"github.com/rukun/jimpitan-engine/schedule"
)

// =============================================================================
// CREATE / REPLACE
// =============================================================================

// CreateTimeline builds a new timeline from the definition and makes it
// the active one. Payment records of the previously active timeline are
// deleted in the same atomic batch unless preservePayments is set.
func (s *Service) CreateTimeline(ctx context.Context, d schedule.Definition, preservePayments bool) (schedule.Timeline, error) {
	if s.store == nil {
		return schedule.Timeline{}, docstore.ErrStoreUnavailable
	}

	t, err := schedule.NewTimeline(uuid.NewString(), d)
	if err != nil {
		return schedule.Timeline{}, errors.Join(ErrInvalidParameter, err)
	}

	ops := []docstore.Op{
		docstore.SetOp(timelinePath(t.ID), t),
		docstore.SetOp(activePointerPath, activePointer{TimelineID: t.ID}),
	}

	if !preservePayments {
		prev, err := s.ActiveTimeline(ctx)
		if err == nil && prev.ID != t.ID {
			purge, err := s.paymentDeleteOps(ctx, prev.ID)
			if err != nil {
				return schedule.Timeline{}, err
			}
			ops = append(ops, purge...)
		} else if err != nil && !errors.Is(err, ErrNoActiveTimeline) {
			return schedule.Timeline{}, err
		}
	}

	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return schedule.Timeline{}, err
	}
	s.coord.InvalidateAll()
	return t, nil
}

// UpdateTimeline rebuilds a timeline in place from a new definition.
// Changing the unit or the duration clears the holiday set.
func (s *Service) UpdateTimeline(ctx context.Context, timelineID string, d schedule.Definition) (schedule.Timeline, error) {
	current, err := s.Timeline(ctx, timelineID)
	if err != nil {
		return schedule.Timeline{}, err
	}

	if d.Unit != current.Unit || d.Duration != current.Duration {
		d.Holidays = nil
	}

	updated, err := schedule.NewTimeline(timelineID, d)
	if err != nil {
		return schedule.Timeline{}, errors.Join(ErrInvalidParameter, err)
	}
	// Keep the simulated clock if it still falls inside the new range.
	if current.Mode == schedule.ModeManual && current.SimulationDate != nil &&
		updated.ContainsInstant(*current.SimulationDate) {
		updated.Mode = schedule.ModeManual
		updated.SimulationDate = current.SimulationDate
	}

	if err := s.store.Set(ctx, timelinePath(timelineID), updated); err != nil {
		return schedule.Timeline{}, err
	}
	s.coord.InvalidateAll()
	return updated, nil
}

// SetHolidays rebuilds a timeline's periods with a new holiday set. The
// per-period amount is re-split over the remaining active periods;
// already-recorded payments are left untouched.
func (s *Service) SetHolidays(ctx context.Context, timelineID string, holidays []int) (schedule.Timeline, error) {
	current, err := s.Timeline(ctx, timelineID)
	if err != nil {
		return schedule.Timeline{}, err
	}

	updated, err := schedule.NewTimeline(timelineID, schedule.Definition{
		Unit:        current.Unit,
		Duration:    current.Duration,
		StartDate:   current.StartDate,
		TotalAmount: current.TotalAmount,
		Holidays:    holidays,
	})
	if err != nil {
		return schedule.Timeline{}, errors.Join(ErrInvalidParameter, err)
	}
	updated.Mode = current.Mode
	updated.SimulationDate = current.SimulationDate

	if err := s.store.Set(ctx, timelinePath(timelineID), updated); err != nil {
		return schedule.Timeline{}, err
	}
	s.coord.InvalidateAll()
	return updated, nil
}

// =============================================================================
// SIMULATED CLOCK
// =============================================================================

// SetSimulationDate switches a timeline's clock to manual mode at the
// given instant. Bounds are enforced here, at write time.
func (s *Service) SetSimulationDate(ctx context.Context, timelineID string, at time.Time) error {
	t, err := s.Timeline(ctx, timelineID)
	if err != nil {
		return err
	}
	if err := t.SetSimulationDate(at); err != nil {
		return errors.Join(ErrInvalidParameter, err)
	}
	if err := s.store.Set(ctx, timelinePath(timelineID), t); err != nil {
		return err
	}
	s.coord.InvalidateAll()
	return nil
}

// ClearSimulationDate returns a timeline to the wall clock.
func (s *Service) ClearSimulationDate(ctx context.Context, timelineID string) error {
	t, err := s.Timeline(ctx, timelineID)
	if err != nil {
		return err
	}
	t.ClearSimulationDate()
	if err := s.store.Set(ctx, timelinePath(timelineID), t); err != nil {
		return err
	}
	s.coord.InvalidateAll()
	return nil
}

// =============================================================================
// BULK RESET
// =============================================================================

// ResetPayments deletes every payment record of a timeline in one atomic
// batch. This is the only path that deletes payment documents.
func (s *Service) ResetPayments(ctx context.Context, timelineID string) (int, error) {
	if timelineID == "" {
		return 0, ErrInvalidParameter
	}
	if s.store == nil {
		return 0, docstore.ErrStoreUnavailable
	}

	ops, err := s.paymentDeleteOps(ctx, timelineID)
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return 0, err
	}
	s.coord.InvalidateAll()
	return len(ops), nil
}

func (s *Service) paymentDeleteOps(ctx context.Context, timelineID string) ([]docstore.Op, error) {
	raws, err := s.store.List(ctx, paymentCollection(timelineID))
	if err != nil {
		return nil, err
	}

	type pathDoc struct {
		ResidentID string `json:"residentId"`
		PeriodKey  string `json:"period"`
	}
	var ops []docstore.Op
	for _, raw := range raws {
		var d pathDoc
		if err := docstore.Decode(raw, &d); err != nil {
			return nil, err
		}
		ops = append(ops, docstore.DeleteOp(paymentPath(timelineID, d.ResidentID, d.PeriodKey)))
	}
	return ops, nil
}
