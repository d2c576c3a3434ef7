package ledger

import "time"

// =============================================================================
// STATUS RESOLVER - Pure, deterministic, idempotent
// =============================================================================

// ResolveStatus derives a period's status from the stored record and the
// resolved clock.
//
// Rules:
//   - paid stays paid unconditionally; completion is monotonic
//   - anything else is late once the clock passes the due instant
//   - a partial record keeps its partial marking until it goes late
//     (the PartialPayment flag survives either way)
//
// Safe to call repeatedly; it is the basis for both on-demand status
// checks and periodic bulk recomputation.
func ResolveStatus(p Payment, now time.Time) Status {
	if p.Status == StatusPaid {
		return StatusPaid
	}
	if now.After(p.DueDate) {
		return StatusLate
	}
	if p.Status == StatusPartial {
		return StatusPartial
	}
	return StatusUnpaid
}

// Resolve returns a copy of the payment with Status recomputed against now.
func Resolve(p Payment, now time.Time) Payment {
	p.Status = ResolveStatus(p, now)
	return p
}

// DueWithin reports whether an outstanding payment comes due in the window
// (now, now+window]. Paid and already-late records are never "due soon".
func DueWithin(p Payment, now time.Time, window time.Duration) bool {
	if p.Status == StatusPaid || now.After(p.DueDate) {
		return false
	}
	return !p.DueDate.After(now.Add(window))
}
