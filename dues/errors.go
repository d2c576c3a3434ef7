/*
errors.go - Error taxonomy for the dues service

PURPOSE:
  Maps the operation surface onto a small set of sentinels so callers
  (and the HTTP layer) branch on kind, not message text.

CATEGORIES:
  1. Not found    - timeline/period/resident/payment document missing
  2. Invalid      - missing ids, negative amounts, bad period keys
  3. Unavailable  - store not initialized (reads degrade instead)

SEE ALSO:
  - docstore: ErrNotFound, ErrStoreUnavailable originate there
  - statuscache: in-progress refreshes surface as an Outcome, not an error
*/
package dues

import (
	"errors"
	"fmt"

	"github.com/rukun/jimpitan-engine/docstore"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidParameter is returned for missing ids or malformed amounts.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoActiveTimeline is returned by write paths when no timeline is
	// configured. Read paths degrade to an empty view instead.
	ErrNoActiveTimeline = errors.New("no active timeline")

	// ErrInactivePeriod is returned when settling against a holiday period.
	ErrInactivePeriod = errors.New("period is inactive")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// PeriodNotFoundError identifies a period key missing from a timeline.
type PeriodNotFoundError struct {
	TimelineID string
	PeriodKey  string
}

func (e *PeriodNotFoundError) Error() string {
	return fmt.Sprintf("period %q not found in timeline %s", e.PeriodKey, e.TimelineID)
}

func (e *PeriodNotFoundError) Unwrap() error { return docstore.ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing document or period.
func IsNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound) || errors.Is(err, ErrNoActiveTimeline)
}

// IsClientError reports whether err is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrInactivePeriod)
}

// IsUnavailable reports whether err indicates the store is not initialized.
func IsUnavailable(err error) bool {
	return errors.Is(err, docstore.ErrStoreUnavailable)
}
