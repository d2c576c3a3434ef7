package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER SUMMARY - Pure fold over a resident's resolved payments
// =============================================================================

// Summary is the aggregate every list and detail view renders.
type Summary struct {
	TotalPeriods int `json:"totalPeriods"`
	PaidCount    int `json:"paidCount"`
	UnpaidCount  int `json:"unpaidCount"`
	PartialCount int `json:"partialCount"`
	LateCount    int `json:"lateCount"`

	TotalAmount  decimal.Decimal `json:"totalAmount"`
	PaidAmount   decimal.Decimal `json:"paidAmount"`
	UnpaidAmount decimal.Decimal `json:"unpaidAmount"`

	ProgressPercentage int `json:"progressPercentage"`
}

// Summarize folds resolved payments into totals. Paid amount counts both
// cash and applied credit; unpaid is total minus paid minus in-flight
// partial amounts. No I/O, no error cases.
func Summarize(payments []Payment) Summary {
	s := Summary{
		TotalAmount:  decimal.Zero,
		PaidAmount:   decimal.Zero,
		UnpaidAmount: decimal.Zero,
	}

	for _, p := range payments {
		s.TotalPeriods++
		s.TotalAmount = s.TotalAmount.Add(p.Amount)
		s.PaidAmount = s.PaidAmount.Add(p.CreditApplied).Add(p.PaidAmount)

		switch p.Status {
		case StatusPaid:
			s.PaidCount++
		case StatusPartial:
			s.PartialCount++
		case StatusLate:
			s.LateCount++
		default:
			s.UnpaidCount++
		}
	}

	s.UnpaidAmount = s.TotalAmount.Sub(s.PaidAmount)
	if s.UnpaidAmount.IsNegative() {
		s.UnpaidAmount = decimal.Zero
	}

	if s.TotalPeriods > 0 {
		s.ProgressPercentage = int(math.Round(100 * float64(s.PaidCount) / float64(s.TotalPeriods)))
	}
	return s
}
