/*
allocator.go - Applying credit and tendered cash to periods

PURPOSE:
  Settlement is the only mutation path for payment records. Two shapes:

  Settle:       one period, explicit target. Credit first, then cash.
  AutoAllocate: a tendered amount with no target period. Walks the
                resident's outstanding periods oldest-first.

CREDIT CAP:
  Overpayment converts to credit, but the resulting credit balance is
  capped at three times the triggering period's amount, evaluated at the
  moment of that allocation. Excess beyond the cap is discarded: not
  refunded, not tracked. When no period is involved (nothing outstanding)
  the cap is evaluated against the tendered amount itself.

ORDERING:
  AutoAllocate settles strictly ascending by period number. Each period is
  fully resolved before the next is attempted. A period that receives a
  strictly partial amount is marked unpaid-partial and does not block
  later periods while cash remains.

CONSERVATION:
  tendered == sum(cashApplied) + creditCreated + discarded
  newCredit == startingCredit - sum(creditApplied) + creditCreated

SEE ALSO:
  - types.go: Payment record and money invariant
  - status.go: Status derivation for non-paid outcomes
*/
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CreditCapFactor bounds the credit balance created by an overpayment:
// resulting credit never exceeds CreditCapFactor times the triggering
// amount at the moment of that allocation.
var CreditCapFactor = decimal.NewFromInt(3)

// =============================================================================
// SINGLE-PERIOD SETTLEMENT
// =============================================================================

// SettleResult reports the outcome of settling one period.
type SettleResult struct {
	Payment       Payment
	CreditApplied decimal.Decimal
	CashApplied   decimal.Decimal
	NewCredit     decimal.Decimal
	CreditCreated decimal.Decimal
	Discarded     decimal.Decimal
}

// Covered reports whether the period was fully paid by this settlement.
func (r SettleResult) Covered() bool {
	return r.Payment.Status == StatusPaid
}

// Settle applies the resident's credit balance and a tendered amount
// against a single period. Credit is drawn first, then cash. If
// credit + tendered fall short of the outstanding amount the record is
// held: fields accumulate, the status stays unpaid or late, and the
// period is NOT marked paid.
//
// Pure: operates on copies, performs no I/O.
func Settle(p Payment, credit, tendered decimal.Decimal, method Method, now time.Time) SettleResult {
	outstanding := p.RemainingAmount

	creditApplied := decimal.Min(credit, outstanding)
	afterCredit := outstanding.Sub(creditApplied)
	cashApplied := decimal.Min(tendered, afterCredit)
	excess := tendered.Sub(cashApplied)

	remainingCredit := credit.Sub(creditApplied)
	created, discarded := convertToCredit(excess, p.Amount, remainingCredit)
	newCredit := remainingCredit.Add(created)

	p.CreditApplied = p.CreditApplied.Add(creditApplied)
	p.PaidAmount = p.PaidAmount.Add(cashApplied)
	p.RemainingAmount = outstanding.Sub(creditApplied).Sub(cashApplied)
	p.TotalPaid = p.TotalPaid.Add(tendered)

	applied := creditApplied.Add(cashApplied)
	switch {
	case p.RemainingAmount.IsZero():
		p.Status = StatusPaid
		p.PaymentDate = &now
		p.Method = method
		p.PartialPayment = false
	case applied.IsPositive():
		p.PartialPayment = true
		p.Method = method
		p.Notes = partialNote(applied, p.Amount, p.RemainingAmount)
		p.Status = ResolveStatus(p, now)
	default:
		p.Status = ResolveStatus(p, now)
	}

	return SettleResult{
		Payment:       p,
		CreditApplied: creditApplied,
		CashApplied:   cashApplied,
		NewCredit:     newCredit,
		CreditCreated: created,
		Discarded:     discarded,
	}
}

// convertToCredit grows the credit balance by an overpayment, capped so the
// resulting balance never exceeds CreditCapFactor times capBase. Returns
// the amount converted and the amount discarded.
func convertToCredit(excess, capBase, currentCredit decimal.Decimal) (created, discarded decimal.Decimal) {
	if !excess.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	headroom := CreditCapFactor.Mul(capBase).Sub(currentCredit)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	created = decimal.Min(excess, headroom)
	return created, excess.Sub(created)
}

func partialNote(applied, amount, remaining decimal.Decimal) string {
	return fmt.Sprintf("Partial payment: %s of %s applied, %s remaining",
		applied.String(), amount.String(), remaining.String())
}

// =============================================================================
// MULTI-PERIOD AUTO-ALLOCATION
// =============================================================================

// Allocation is one period's share of an auto-allocation.
type Allocation struct {
	PeriodKey     string
	PeriodNumber  int
	CreditApplied decimal.Decimal
	CashApplied   decimal.Decimal
	Payment       Payment
}

// AutoAllocateResult reports the outcome of distributing a tendered amount
// across a resident's outstanding periods.
type AutoAllocateResult struct {
	TotalApplied  decimal.Decimal // credit + cash applied across all periods
	Leftover      decimal.Decimal // rejected by the credit cap, discarded
	NewCredit     decimal.Decimal
	CreditCreated decimal.Decimal
	Allocations   []Allocation
}

// AutoAllocate distributes a tendered amount across the outstanding
// periods, oldest obligation first. For each period credit is drawn before
// cash, exactly as in Settle. A strictly partial period is marked
// unpaid-partial and does not stop the walk while cash remains. Cash left
// after every outstanding period is covered converts to credit, capped
// against the last settled period's amount; with nothing outstanding the
// cap is evaluated against the tendered amount itself.
//
// The outstanding slice is not mutated; periods are processed in ascending
// period-number order regardless of input order.
func AutoAllocate(outstanding []Payment, credit, tendered decimal.Decimal, method Method, now time.Time) AutoAllocateResult {
	sorted := make([]Payment, len(outstanding))
	copy(sorted, outstanding)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeriodNumber < sorted[j].PeriodNumber })

	res := AutoAllocateResult{
		TotalApplied:  decimal.Zero,
		Leftover:      decimal.Zero,
		CreditCreated: decimal.Zero,
	}

	cash := tendered
	runningCredit := credit
	var lastAmount decimal.Decimal
	settledAny := false
	allCovered := true

	for _, p := range sorted {
		if !p.Status.Outstanding() || !p.RemainingAmount.IsPositive() {
			continue
		}
		if cash.IsZero() && runningCredit.LessThan(p.RemainingAmount) {
			// Cash exhausted and credit cannot fully cover the next period.
			// Leftover credit is kept for later rather than smeared into a
			// credit-only partial.
			allCovered = false
			break
		}

		creditApplied := decimal.Min(runningCredit, p.RemainingAmount)
		afterCredit := p.RemainingAmount.Sub(creditApplied)
		cashApplied := decimal.Min(cash, afterCredit)

		p.CreditApplied = p.CreditApplied.Add(creditApplied)
		p.PaidAmount = p.PaidAmount.Add(cashApplied)
		p.RemainingAmount = afterCredit.Sub(cashApplied)
		p.TotalPaid = p.TotalPaid.Add(cashApplied)

		if p.RemainingAmount.IsZero() {
			p.Status = StatusPaid
			p.PaymentDate = &now
			p.Method = method
			p.PartialPayment = false
		} else {
			p.Status = StatusPartial
			p.PartialPayment = true
			p.Method = method
			p.Notes = partialNote(creditApplied.Add(cashApplied), p.Amount, p.RemainingAmount)
			allCovered = false
		}

		runningCredit = runningCredit.Sub(creditApplied)
		cash = cash.Sub(cashApplied)
		res.TotalApplied = res.TotalApplied.Add(creditApplied).Add(cashApplied)
		res.Allocations = append(res.Allocations, Allocation{
			PeriodKey:     p.PeriodKey,
			PeriodNumber:  p.PeriodNumber,
			CreditApplied: creditApplied,
			CashApplied:   cashApplied,
			Payment:       p,
		})
		lastAmount = p.Amount
		settledAny = true
	}

	if cash.IsPositive() && allCovered {
		capBase := lastAmount
		if !settledAny {
			// Nothing outstanding at all: the whole tender converts to
			// credit, capped against the tendered amount itself.
			capBase = tendered
		}
		created, discarded := convertToCredit(cash, capBase, runningCredit)
		runningCredit = runningCredit.Add(created)
		res.CreditCreated = created
		res.Leftover = discarded
	}

	res.NewCredit = runningCredit
	return res
}
