/*
Package dues orchestrates the payment ledger: it binds the schedule
builder, status resolver, allocator, document store, and status-cache
coordinator into the operation surface the UI consumes.

PURPOSE:
  Everything a view calls lives here: ledger reads (per resident and
  aggregate), settlement writes, timeline administration, and the
  cache-gated refresh entry points.

DEGRADED READS:
  A service constructed without a store serves empty-but-successful
  results on every read path so screens can render an empty state.
  Write paths fail with ErrStoreUnavailable instead.

WRITE ORDERING:
  Within one allocation call, periods are settled strictly in ascending
  period-number order and each period's payment write and credit write
  land before the next period is attempted. There is no cross-call lock:
  racing allocations for the same resident are last-writer-wins on the
  credit balance, reconciled by the bulk status recompute.

SEE ALSO:
  - settlement.go: SettlePeriod and AutoAllocate
  - timeline.go: Timeline administration
  - resident.go: Resident registry and credit overrides
*/
package dues

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rukun/jimpitan-engine/docstore"
	"github.com/rukun/jimpitan-engine/ledger"
	"github.com/rukun/jimpitan-engine/schedule"
	"github.com/rukun/jimpitan-engine/statuscache"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store docstore.Store
	coord *statuscache.Coordinator
	clock schedule.Clock
}

// New wires the service. store may be nil for a degraded read-only shell;
// coord must not be nil.
func New(store docstore.Store, coord *statuscache.Coordinator, clock schedule.Clock) *Service {
	return &Service{store: store, coord: coord, clock: clock}
}

// Coordinator exposes the cache coordinator for subscription management.
func (s *Service) Coordinator() *statuscache.Coordinator { return s.coord }

func ledgerKeyFor(residentID string) string { return statuscache.LedgerKey(residentID) }

// =============================================================================
// VIEWS
// =============================================================================

// LedgerView is one resident's resolved ledger.
type LedgerView struct {
	Resident Resident          `json:"resident"`
	Timeline schedule.Timeline `json:"timeline"`
	Payments []ledger.Payment  `json:"payments"`
	Summary  ledger.Summary    `json:"summary"`
}

// ResidentLedger is one row of the aggregate view.
type ResidentLedger struct {
	Resident Resident         `json:"resident"`
	Payments []ledger.Payment `json:"payments"`
	Summary  ledger.Summary   `json:"summary"`
}

// AggregateView is the all-residents dashboard.
type AggregateView struct {
	Timeline  schedule.Timeline `json:"timeline"`
	Residents []ResidentLedger  `json:"residents"`
	Summary   ledger.Summary    `json:"summary"`
}

// =============================================================================
// TIMELINE LOOKUP
// =============================================================================

type activePointer struct {
	TimelineID string `json:"timelineId"`
}

// ActiveTimeline loads the currently active timeline.
func (s *Service) ActiveTimeline(ctx context.Context) (schedule.Timeline, error) {
	if s.store == nil {
		return schedule.Timeline{}, docstore.ErrStoreUnavailable
	}
	var ptr activePointer
	if err := s.store.Get(ctx, activePointerPath, &ptr); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return schedule.Timeline{}, ErrNoActiveTimeline
		}
		return schedule.Timeline{}, err
	}
	return s.Timeline(ctx, ptr.TimelineID)
}

// Timeline loads a timeline by id.
func (s *Service) Timeline(ctx context.Context, timelineID string) (schedule.Timeline, error) {
	if timelineID == "" {
		return schedule.Timeline{}, ErrInvalidParameter
	}
	if s.store == nil {
		return schedule.Timeline{}, docstore.ErrStoreUnavailable
	}
	var t schedule.Timeline
	if err := s.store.Get(ctx, timelinePath(timelineID), &t); err != nil {
		return schedule.Timeline{}, err
	}
	return t, nil
}

// =============================================================================
// LEDGER READS
// =============================================================================

// GetLedger assembles a resident's resolved ledger against the active
// timeline. Missing payment documents are the implicit unpaid default.
// With no store or no active timeline it returns an empty view so the UI
// can render an empty state.
func (s *Service) GetLedger(ctx context.Context, residentID string) (LedgerView, error) {
	rl, err := s.ledgerWithStored(ctx, residentID)
	return rl.view, err
}

// refreshedLedger is the cache payload for a resident refresh. It keeps
// the pre-resolution records alongside the view so newly-late detection
// can compare against what the store actually held.
type refreshedLedger struct {
	view   LedgerView
	stored []ledger.Payment
}

func (s *Service) ledgerWithStored(ctx context.Context, residentID string) (refreshedLedger, error) {
	if residentID == "" {
		return refreshedLedger{}, ErrInvalidParameter
	}
	if s.store == nil {
		return refreshedLedger{}, nil
	}

	t, err := s.ActiveTimeline(ctx)
	if errors.Is(err, ErrNoActiveTimeline) {
		return refreshedLedger{}, nil
	}
	if err != nil {
		return refreshedLedger{}, err
	}

	r, err := s.GetResident(ctx, residentID)
	if err != nil {
		return refreshedLedger{}, err
	}

	payments, stored, err := s.residentPayments(ctx, t, residentID)
	if err != nil {
		return refreshedLedger{}, err
	}

	return refreshedLedger{
		view: LedgerView{
			Resident: r,
			Timeline: t,
			Payments: payments,
			Summary:  ledger.Summarize(payments),
		},
		stored: stored,
	}, nil
}

// GetAggregateLedger assembles every resident's ledger for the admin
// dashboard, plus a whole-community summary fold.
func (s *Service) GetAggregateLedger(ctx context.Context) (AggregateView, error) {
	if s.store == nil {
		return AggregateView{}, nil
	}

	t, err := s.ActiveTimeline(ctx)
	if errors.Is(err, ErrNoActiveTimeline) {
		return AggregateView{}, nil
	}
	if err != nil {
		return AggregateView{}, err
	}

	residents, err := s.ListResidents(ctx)
	if err != nil {
		return AggregateView{}, err
	}

	view := AggregateView{Timeline: t}
	var all []ledger.Payment
	for _, r := range residents {
		payments, _, err := s.residentPayments(ctx, t, r.ID)
		if err != nil {
			return AggregateView{}, err
		}
		all = append(all, payments...)
		view.Residents = append(view.Residents, ResidentLedger{
			Resident: r,
			Payments: payments,
			Summary:  ledger.Summarize(payments),
		})
	}
	view.Summary = ledger.Summarize(all)
	return view, nil
}

// residentPayments resolves one resident's payment per active period.
// Stored documents are fetched with one equality query; active periods
// with no document get the canonical unpaid default. The second slice
// carries the same records with their persisted (unresolved) statuses,
// in the same order, for newly-late detection.
func (s *Service) residentPayments(ctx context.Context, t schedule.Timeline, residentID string) ([]ledger.Payment, []ledger.Payment, error) {
	now := s.clock.Resolve(t)

	raws, err := s.store.QueryEq(ctx, paymentCollection(t.ID), "residentId", residentID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := docstore.DecodeAll[ledger.Payment](raws)
	if err != nil {
		return nil, nil, err
	}
	byKey := make(map[string]ledger.Payment, len(docs))
	for _, p := range docs {
		byKey[p.PeriodKey] = p
	}

	var payments, stored []ledger.Payment
	for _, period := range t.PeriodsInOrder() {
		if !period.Active {
			continue
		}
		p, ok := byKey[schedule.PeriodKey(period.Number)]
		if !ok {
			p = ledger.NewUnpaidPayment(residentID, t.ID, period)
		}
		stored = append(stored, p)
		payments = append(payments, ledger.Resolve(p, now))
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PeriodNumber < payments[j].PeriodNumber })
	sort.Slice(stored, func(i, j int) bool { return stored[i].PeriodNumber < stored[j].PeriodNumber })
	return payments, stored, nil
}

// =============================================================================
// CACHE-GATED REFRESH
// =============================================================================

// RefreshLedger runs a resident ledger read through the cache coordinator.
// On an actual store read the fresh payments are inspected for newly-late
// and due-soon periods.
func (s *Service) RefreshLedger(ctx context.Context, residentID string, force bool) (LedgerView, statuscache.Outcome, error) {
	if residentID == "" {
		return LedgerView{}, 0, ErrInvalidParameter
	}

	res, err := s.coord.Refresh(ctx, ledgerKeyFor(residentID), force, statuscache.EventLedgerUpdated,
		func(ctx context.Context) (any, error) {
			return s.ledgerWithStored(ctx, residentID)
		})
	if err != nil {
		return LedgerView{}, 0, err
	}

	rl, _ := res.Payload.(refreshedLedger)
	if res.Outcome == statuscache.OutcomeRefreshed {
		s.coord.InspectPayments(residentID, rl.stored, s.clock.Resolve(rl.view.Timeline))
	}
	return rl.view, res.Outcome, nil
}

// RefreshAggregate runs the aggregate read through the cache coordinator.
func (s *Service) RefreshAggregate(ctx context.Context, force bool) (AggregateView, statuscache.Outcome, error) {
	res, err := s.coord.Refresh(ctx, statuscache.AggregateKey, force, statuscache.EventAggregateUpdated,
		func(ctx context.Context) (any, error) {
			return s.GetAggregateLedger(ctx)
		})
	if err != nil {
		return AggregateView{}, 0, err
	}
	view, _ := res.Payload.(AggregateView)
	return view, res.Outcome, nil
}

// =============================================================================
// BULK STATUS RECOMPUTE
// =============================================================================

// RecomputeStatuses re-derives the stored status of every payment document
// on the active timeline against the resolved clock and persists the ones
// that changed in a single atomic batch. This is the reconciliation pass
// for statuses that drifted (e.g. unpaid records that went late, or an
// interrupted allocation).
func (s *Service) RecomputeStatuses(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, docstore.ErrStoreUnavailable
	}
	t, err := s.ActiveTimeline(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Resolve(t)

	raws, err := s.store.List(ctx, paymentCollection(t.ID))
	if err != nil {
		return 0, err
	}
	payments, err := docstore.DecodeAll[ledger.Payment](raws)
	if err != nil {
		return 0, err
	}

	var ops []docstore.Op
	for _, p := range payments {
		resolved := ledger.ResolveStatus(p, now)
		if resolved == p.Status {
			continue
		}
		ops = append(ops, docstore.UpdateOp(
			paymentPath(t.ID, p.ResidentID, p.PeriodKey),
			map[string]any{"status": resolved},
		))
	}
	if len(ops) == 0 {
		return 0, nil
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("bulk status recompute: %w", err)
	}
	s.coord.InvalidateAll()
	return len(ops), nil
}
