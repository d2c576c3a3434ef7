/*
settlement.go - Settlement write paths

PURPOSE:
  The only two mutation paths for payment records: settling one explicit
  period, and auto-allocating a tendered amount across a resident's
  outstanding periods.

FAILURE MODEL:
  Payment write then credit write, per period. If the credit write fails
  after the payment write landed, the resulting state is an accepted
  inconsistency; RecomputeStatuses reconciles on the next pass. Nothing
  is rolled back.

SEE ALSO:
  - ledger/allocator.go: The pure allocation math
  - service.go: Write ordering guarantees
*/
package dues

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rukun/jimpitan-engine/docstore"
	"github.com/rukun/jimpitan-engine/ledger"
	"github.com/rukun/jimpitan-engine/schedule"
	"github.com/rukun/jimpitan-engine/statuscache"
)

// =============================================================================
// SINGLE-PERIOD SETTLEMENT
// =============================================================================

// SettlePeriod applies the resident's credit and a tendered amount to one
// period of the given timeline. Fails with a not-found error when the
// timeline or period cannot be resolved, and with ErrInactivePeriod for
// holiday periods.
func (s *Service) SettlePeriod(ctx context.Context, timelineID, periodKey, residentID string, tendered decimal.Decimal, method ledger.Method) (ledger.SettleResult, error) {
	if timelineID == "" || periodKey == "" || residentID == "" || tendered.IsNegative() {
		return ledger.SettleResult{}, ErrInvalidParameter
	}
	if s.store == nil {
		return ledger.SettleResult{}, docstore.ErrStoreUnavailable
	}

	t, err := s.Timeline(ctx, timelineID)
	if err != nil {
		return ledger.SettleResult{}, err
	}
	period, ok := t.Period(periodKey)
	if !ok {
		return ledger.SettleResult{}, &PeriodNotFoundError{TimelineID: timelineID, PeriodKey: periodKey}
	}
	if !period.Active {
		return ledger.SettleResult{}, ErrInactivePeriod
	}

	r, err := s.GetResident(ctx, residentID)
	if err != nil {
		return ledger.SettleResult{}, err
	}

	payment, err := s.loadOrDefaultPayment(ctx, t, period, residentID)
	if err != nil {
		return ledger.SettleResult{}, err
	}
	if payment.Status == ledger.StatusPaid {
		return ledger.SettleResult{}, fmt.Errorf("%w: period %s already paid", ErrInvalidParameter, periodKey)
	}

	now := s.clock.Resolve(t)
	result := ledger.Settle(payment, r.CreditBalance, tendered, method, now)

	// Payment write first, credit write second. A credit failure here is
	// an accepted inconsistency reconciled by the next bulk recompute.
	if err := s.store.Set(ctx, paymentPath(t.ID, residentID, periodKey), result.Payment); err != nil {
		return ledger.SettleResult{}, err
	}
	if err := s.writeCredit(ctx, residentID, result.NewCredit); err != nil {
		return result, fmt.Errorf("payment recorded but credit update failed: %w", err)
	}

	s.invalidateAfterWrite(residentID)
	return result, nil
}

// =============================================================================
// MULTI-PERIOD AUTO-ALLOCATION
// =============================================================================

// AutoAllocate distributes a tendered amount across the resident's
// outstanding periods on the active timeline, oldest first. Each period's
// payment and credit writes land before the next period is attempted.
func (s *Service) AutoAllocate(ctx context.Context, residentID string, tendered decimal.Decimal, method ledger.Method) (ledger.AutoAllocateResult, error) {
	if residentID == "" || tendered.IsNegative() {
		return ledger.AutoAllocateResult{}, ErrInvalidParameter
	}
	if s.store == nil {
		return ledger.AutoAllocateResult{}, docstore.ErrStoreUnavailable
	}

	t, err := s.ActiveTimeline(ctx)
	if err != nil {
		return ledger.AutoAllocateResult{}, err
	}
	r, err := s.GetResident(ctx, residentID)
	if err != nil {
		return ledger.AutoAllocateResult{}, err
	}

	now := s.clock.Resolve(t)

	var outstanding []ledger.Payment
	for _, period := range t.PeriodsInOrder() {
		if !period.Active {
			continue
		}
		p, err := s.loadOrDefaultPayment(ctx, t, period, residentID)
		if err != nil {
			return ledger.AutoAllocateResult{}, err
		}
		p = ledger.Resolve(p, now)
		if p.Status.Outstanding() && p.RemainingAmount.IsPositive() {
			outstanding = append(outstanding, p)
		}
	}

	result := ledger.AutoAllocate(outstanding, r.CreditBalance, tendered, method, now)

	// Apply sequentially: payment write then credit write per period.
	runningCredit := r.CreditBalance
	for _, alloc := range result.Allocations {
		if err := s.store.Set(ctx, paymentPath(t.ID, residentID, alloc.PeriodKey), alloc.Payment); err != nil {
			return result, fmt.Errorf("allocation stopped at %s: %w", alloc.PeriodKey, err)
		}
		runningCredit = runningCredit.Sub(alloc.CreditApplied)
		if err := s.writeCredit(ctx, residentID, runningCredit); err != nil {
			return result, fmt.Errorf("payment for %s recorded but credit update failed: %w", alloc.PeriodKey, err)
		}
	}
	// Trailing credit conversion (overpayment past the last period).
	if !runningCredit.Equal(result.NewCredit) {
		if err := s.writeCredit(ctx, residentID, result.NewCredit); err != nil {
			return result, fmt.Errorf("allocations recorded but final credit update failed: %w", err)
		}
	}

	s.invalidateAfterWrite(residentID)
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) loadOrDefaultPayment(ctx context.Context, t schedule.Timeline, period schedule.Period, residentID string) (ledger.Payment, error) {
	var p ledger.Payment
	err := s.store.Get(ctx, paymentPath(t.ID, residentID, schedule.PeriodKey(period.Number)), &p)
	if errors.Is(err, docstore.ErrNotFound) {
		return ledger.NewUnpaidPayment(residentID, t.ID, period), nil
	}
	if err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

// writeCredit persists the credit balance, creating the profile field via
// update. Update-on-missing falls back to nothing: a missing resident was
// caught earlier in the call.
func (s *Service) writeCredit(ctx context.Context, residentID string, balance decimal.Decimal) error {
	return s.store.Update(ctx, residentPath(residentID), map[string]any{
		"creditBalance": balance,
	})
}

func (s *Service) invalidateAfterWrite(residentID string) {
	s.coord.Invalidate(ledgerKeyFor(residentID))
	s.coord.Invalidate(statuscache.AggregateKey)
}
