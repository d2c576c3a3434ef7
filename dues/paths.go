package dues

import "fmt"

// =============================================================================
// DOCUMENT PATHS
// =============================================================================

// Store layout:
//
//   meta/active                                   -> {timelineId}
//   timelines/<tid>                               -> schedule.Timeline
//   timelines/<tid>/payments/<rid>_<periodKey>    -> ledger.Payment
//   residents/<rid>                               -> Resident

const (
	activePointerPath   = "meta/active"
	timelineCollection  = "timelines"
	residentCollection  = "residents"
)

func timelinePath(timelineID string) string {
	return fmt.Sprintf("%s/%s", timelineCollection, timelineID)
}

func residentPath(residentID string) string {
	return fmt.Sprintf("%s/%s", residentCollection, residentID)
}

func paymentCollection(timelineID string) string {
	return fmt.Sprintf("%s/%s/payments", timelineCollection, timelineID)
}

func paymentPath(timelineID, residentID, periodKey string) string {
	return fmt.Sprintf("%s/%s_%s", paymentCollection(timelineID), residentID, periodKey)
}
