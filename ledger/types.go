/*
Package ledger is the payment ledger core: payment records, status
derivation, credit allocation, and summary folds.

PURPOSE:
  One Payment exists per (resident, period) pair. Records are created
  lazily: the absence of a stored record is an implicit unpaid record,
  produced uniformly by NewUnpaidPayment so every reader sees the same
  default shape.

KEY CONCEPTS IN THIS FILE (types.go):
  - Payment: the per-period payment record
  - Status: unpaid / unpaid-partial / late / paid
  - NewUnpaidPayment: canonical default for a missing record

MONEY INVARIANT:
  For every payment, Amount = CreditApplied + PaidAmount + RemainingAmount,
  and RemainingAmount is zero exactly when the status is paid. The
  allocator maintains this; CheckBalance verifies it.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, no floats in money paths
  2. Purity: everything in this package is a total function, no I/O
  3. Monotonic completion: a paid record never reverts automatically

SEE ALSO:
  - status.go: Status derivation against a resolved clock
  - allocator.go: Applying credit and tendered cash to periods
  - summary.go: Folding a resident's payments into totals
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rukun/jimpitan-engine/schedule"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "unpaid-partial"
	StatusLate    Status = "late"
	StatusPaid    Status = "paid"
)

// Outstanding reports whether the period still owes money.
func (s Status) Outstanding() bool {
	return s != StatusPaid
}

// =============================================================================
// PAYMENT METHODS
// =============================================================================

type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
	MethodCredit   Method = "credit"
)

// =============================================================================
// PAYMENT - One record per (resident, period)
// =============================================================================

type Payment struct {
	ResidentID      string          `json:"residentId"`
	TimelineID      string          `json:"timelineId"`
	PeriodKey       string          `json:"period"`
	PeriodNumber    int             `json:"periodNumber"`
	Amount          decimal.Decimal `json:"amount"`
	DueDate         time.Time       `json:"dueDate"`
	Status          Status          `json:"status"`
	PaymentDate     *time.Time      `json:"paymentDate,omitempty"`
	Method          Method          `json:"paymentMethod,omitempty"`
	CreditApplied   decimal.Decimal `json:"creditApplied"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	TotalPaid       decimal.Decimal `json:"totalPaid"`
	PartialPayment  bool            `json:"partialPayment,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// NewUnpaidPayment is the canonical default for a (resident, period) pair
// with no stored record. Every reader treats a missing document as exactly
// this value.
func NewUnpaidPayment(residentID, timelineID string, p schedule.Period) Payment {
	return Payment{
		ResidentID:      residentID,
		TimelineID:      timelineID,
		PeriodKey:       schedule.PeriodKey(p.Number),
		PeriodNumber:    p.Number,
		Amount:          p.Amount,
		DueDate:         p.DueDate,
		Status:          StatusUnpaid,
		CreditApplied:   decimal.Zero,
		PaidAmount:      decimal.Zero,
		RemainingAmount: p.Amount,
		TotalPaid:       decimal.Zero,
	}
}

// CheckBalance verifies the money invariant for this record.
func (p Payment) CheckBalance() bool {
	if !p.Amount.Equal(p.CreditApplied.Add(p.PaidAmount).Add(p.RemainingAmount)) {
		return false
	}
	return p.RemainingAmount.IsZero() == (p.Status == StatusPaid)
}
