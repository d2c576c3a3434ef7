package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rukun/jimpitan-engine/docstore"
	"github.com/rukun/jimpitan-engine/dues"
	"github.com/rukun/jimpitan-engine/ledger"
	"github.com/rukun/jimpitan-engine/schedule"
	"github.com/rukun/jimpitan-engine/statuscache"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow sits inside the first period of the three-month test timeline,
// before its Feb 1 due instant.
var testNow = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*dues.Service, *docstore.Memory) {
	store := docstore.NewMemory()
	coord := statuscache.New(statuscache.Config{Freshness: time.Minute, Throttle: time.Minute})
	t.Cleanup(coord.Close)

	clock := schedule.Clock{Now: func() time.Time { return testNow }}
	return dues.New(store, coord, clock), store
}

// threeMonthDef is a monthly timeline: 3 periods from 2025-01-01, 300 in
// total, so 100 per active period without holidays.
func threeMonthDef(holidays ...int) schedule.Definition {
	return schedule.Definition{
		Unit:        schedule.UnitMonthly,
		Duration:    3,
		StartDate:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount: decimal.NewFromInt(300),
		Holidays:    holidays,
	}
}

func mustSetup(t *testing.T, svc *dues.Service, holidays ...int) (schedule.Timeline, dues.Resident) {
	t.Helper()
	ctx := context.Background()

	tl, err := svc.CreateTimeline(ctx, threeMonthDef(holidays...), false)
	require.NoError(t, err)

	r, err := svc.CreateResident(ctx, "Budi", "RT-02/07")
	require.NoError(t, err)
	return tl, r
}

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// =============================================================================
// LEDGER READ TESTS
// =============================================================================

func TestGetLedger_MissingDocumentsAreImplicitUnpaid(t *testing.T) {
	// GIVEN: An active timeline and a resident with no payment documents
	// WHEN: The ledger is read
	// THEN: Every active period shows the canonical unpaid default

	svc, store := newTestService(t)
	_, r := mustSetup(t, svc)

	view, err := svc.GetLedger(context.Background(), r.ID)
	require.NoError(t, err)

	require.Len(t, view.Payments, 3)
	for i, p := range view.Payments {
		assert.Equal(t, i+1, p.PeriodNumber)
		assert.Equal(t, ledger.StatusUnpaid, p.Status)
		assert.Equal(t, "100", p.Amount.String())
		assert.True(t, p.CheckBalance())
	}
	assert.Equal(t, "300", view.Summary.TotalAmount.String())
	assert.Equal(t, 0, view.Summary.ProgressPercentage)

	// No writes happened: only the timeline, pointer, and resident exist.
	assert.Equal(t, 3, store.Len())
}

func TestGetLedger_NoActiveTimeline_EmptyView(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateResident(ctx, "Budi", "")
	require.NoError(t, err)

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err, "read paths degrade instead of failing")
	assert.Empty(t, view.Payments)
}

func TestGetLedger_UnknownResident_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	mustSetup(t, svc)

	_, err := svc.GetLedger(context.Background(), "nope")
	assert.True(t, dues.IsNotFound(err))
}

func TestGetLedger_HolidayPeriodsExcluded(t *testing.T) {
	// GIVEN: A timeline whose second period is a holiday
	// WHEN: The ledger is read
	// THEN: Only the two active periods appear, carrying the larger split

	svc, _ := newTestService(t)
	_, r := mustSetup(t, svc, 2)

	view, err := svc.GetLedger(context.Background(), r.ID)
	require.NoError(t, err)

	require.Len(t, view.Payments, 2)
	assert.Equal(t, 1, view.Payments[0].PeriodNumber)
	assert.Equal(t, 3, view.Payments[1].PeriodNumber)
	assert.Equal(t, "150", view.Payments[0].Amount.String())
}

func TestGetAggregateLedger_FoldsAcrossResidents(t *testing.T) {
	svc, _ := newTestService(t)
	_, first := mustSetup(t, svc)
	ctx := context.Background()

	second, err := svc.CreateResident(ctx, "Ani", "RT-02/08")
	require.NoError(t, err)

	_, err = svc.SettlePeriod(ctx, mustActiveID(t, svc), "period_1", first.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	view, err := svc.GetAggregateLedger(ctx)
	require.NoError(t, err)

	require.Len(t, view.Residents, 2)
	assert.Equal(t, "Ani", view.Residents[0].Resident.Name, "rows sorted by name")
	assert.Equal(t, second.ID, view.Residents[0].Resident.ID)

	assert.Equal(t, 6, view.Summary.TotalPeriods)
	assert.Equal(t, 1, view.Summary.PaidCount)
	assert.Equal(t, "600", view.Summary.TotalAmount.String())
	assert.Equal(t, "100", view.Summary.PaidAmount.String())
}

func mustActiveID(t *testing.T, svc *dues.Service) string {
	t.Helper()
	tl, err := svc.ActiveTimeline(context.Background())
	require.NoError(t, err)
	return tl.ID
}

// =============================================================================
// DEGRADED MODE TESTS
// =============================================================================

func TestDegradedService_ReadsEmpty_WritesFail(t *testing.T) {
	// GIVEN: A service constructed without a store
	// WHEN: Reads and writes are attempted
	// THEN: Reads come back empty and successful; writes fail loudly

	coord := statuscache.New(statuscache.Config{})
	t.Cleanup(coord.Close)
	svc := dues.New(nil, coord, schedule.Clock{})
	ctx := context.Background()

	view, err := svc.GetLedger(ctx, "res-1")
	assert.NoError(t, err)
	assert.Empty(t, view.Payments)

	residents, err := svc.ListResidents(ctx)
	assert.NoError(t, err)
	assert.Empty(t, residents)

	_, err = svc.SettlePeriod(ctx, "tl", "period_1", "res-1", amt(100), ledger.MethodCash)
	assert.True(t, dues.IsUnavailable(err))

	_, err = svc.CreateResident(ctx, "Budi", "")
	assert.True(t, dues.IsUnavailable(err))
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestSettlePeriod_ExactCash(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	res, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)
	assert.True(t, res.Covered())

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, view.Payments[0].Status)
	assert.Equal(t, 1, view.Summary.PaidCount)
	assert.Equal(t, 33, view.Summary.ProgressPercentage)
}

func TestSettlePeriod_Overpay_PersistsCappedCredit(t *testing.T) {
	// GIVEN: A 100 period
	// WHEN: 500 is tendered against it
	// THEN: The stored credit balance lands on the 3x cap

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	res, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(500), ledger.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, "300", res.NewCredit.String())
	assert.Equal(t, "100", res.Discarded.String())

	stored, err := svc.GetResident(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "300", stored.CreditBalance.String())
}

func TestSettlePeriod_PartialHeld_ThenCompleted(t *testing.T) {
	// GIVEN: A 40 partial held against a 100 period
	// WHEN: The remaining 60 is tendered later
	// THEN: The period completes and the record accumulates both tenders

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	res, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(40), ledger.MethodCash)
	require.NoError(t, err)
	assert.False(t, res.Covered())
	assert.Equal(t, "60", res.Payment.RemainingAmount.String())

	res, err = svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(60), ledger.MethodCash)
	require.NoError(t, err)
	assert.True(t, res.Covered())
	assert.Equal(t, "100", res.Payment.TotalPaid.String())
	assert.True(t, res.Payment.CheckBalance())
}

func TestSettlePeriod_HolidayPeriod_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc, 2)

	_, err := svc.SettlePeriod(context.Background(), tl.ID, "period_2", r.ID, amt(100), ledger.MethodCash)
	assert.ErrorIs(t, err, dues.ErrInactivePeriod)
	assert.True(t, dues.IsClientError(err))
}

func TestSettlePeriod_UnknownPeriod_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)

	_, err := svc.SettlePeriod(context.Background(), tl.ID, "period_9", r.ID, amt(100), ledger.MethodCash)
	assert.True(t, dues.IsNotFound(err))

	var notFound *dues.PeriodNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "period_9", notFound.PeriodKey)
}

func TestSettlePeriod_AlreadyPaid_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	_, err = svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	assert.ErrorIs(t, err, dues.ErrInvalidParameter)
}

func TestSettlePeriod_NegativeTender_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)

	_, err := svc.SettlePeriod(context.Background(), tl.ID, "period_1", r.ID, amt(-5), ledger.MethodCash)
	assert.ErrorIs(t, err, dues.ErrInvalidParameter)
}

// =============================================================================
// AUTO-ALLOCATION TESTS
// =============================================================================

func TestAutoAllocate_EndToEnd(t *testing.T) {
	// GIVEN: Three unpaid 100 periods
	// WHEN: 150 is allocated, then another 250
	// THEN: The first call pays period 1 and holds a partial on period 2;
	//       the second finishes the timeline exactly

	svc, _ := newTestService(t)
	_, r := mustSetup(t, svc)
	ctx := context.Background()

	res, err := svc.AutoAllocate(ctx, r.ID, amt(150), ledger.MethodCash)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, view.Payments[0].Status)
	assert.Equal(t, ledger.StatusPartial, view.Payments[1].Status)
	assert.Equal(t, ledger.StatusUnpaid, view.Payments[2].Status)

	res, err = svc.AutoAllocate(ctx, r.ID, amt(150), ledger.MethodCash)
	require.NoError(t, err)
	assert.True(t, res.Leftover.IsZero())

	view, err = svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Summary.PaidCount)
	assert.Equal(t, 100, view.Summary.ProgressPercentage)
}

func TestAutoAllocate_CreditSpentAcrossCalls(t *testing.T) {
	// GIVEN: A credit balance built by one overpayment
	// WHEN: A later allocation runs with no cash
	// THEN: The stored credit settles whole periods and shrinks

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(400), ledger.MethodCash)
	require.NoError(t, err)

	stored, err := svc.GetResident(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "300", stored.CreditBalance.String())

	res, err := svc.AutoAllocate(ctx, r.ID, decimal.Zero, ledger.MethodCredit)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2, "credit covers periods 2 and 3 in full")

	stored, err = svc.GetResident(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored.CreditBalance.String())

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Summary.PaidCount)
}

// =============================================================================
// BULK STATUS RECOMPUTE TESTS
// =============================================================================

func TestRecomputeStatuses_MarksStoredRecordsLate(t *testing.T) {
	// GIVEN: A stored partial on period 1 and a simulated clock past its due
	// WHEN: Statuses are recomputed
	// THEN: Exactly that record flips to late; a second pass changes nothing

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(40), ledger.MethodCash)
	require.NoError(t, err)

	// Move the timeline's clock past period 1's Feb 1 due instant.
	require.NoError(t, svc.SetSimulationDate(ctx, tl.ID, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)))

	changed, err := svc.RecomputeStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLate, view.Payments[0].Status)
	assert.True(t, view.Payments[0].PartialPayment, "partial marking survives going late")

	changed, err = svc.RecomputeStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed, "recompute is idempotent")
}

// =============================================================================
// CACHE-GATED REFRESH TESTS
// =============================================================================

func TestRefreshLedger_CacheThenInvalidationAfterWrite(t *testing.T) {
	// GIVEN: A refreshed, cached ledger view
	// WHEN: A settlement lands for that resident
	// THEN: The next refresh reads the store again

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, outcome, err := svc.RefreshLedger(ctx, r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, statuscache.OutcomeRefreshed, outcome)

	_, outcome, err = svc.RefreshLedger(ctx, r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, statuscache.OutcomeFresh, outcome)

	_, err = svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	view, outcome, err := svc.RefreshLedger(ctx, r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, statuscache.OutcomeRefreshed, outcome, "writes invalidate the cached view")
	assert.Equal(t, 1, view.Summary.PaidCount)
}

func TestRefreshLedger_PublishesLateEventForOverduePeriod(t *testing.T) {
	// GIVEN: A stored partial on period 1 and a simulated clock past its due
	// WHEN: A refresh actually reads the store
	// THEN: A payment_late event for that period fans out to subscribers

	store := docstore.NewMemory()
	coord := statuscache.New(statuscache.Config{Freshness: time.Minute, Throttle: time.Minute})
	t.Cleanup(coord.Close)
	svc := dues.New(store, coord, schedule.Clock{Now: func() time.Time { return testNow }})

	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(40), ledger.MethodCash)
	require.NoError(t, err)
	require.NoError(t, svc.SetSimulationDate(ctx, tl.ID, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)))

	events, cancel := coord.Subscribe(8)
	defer cancel()

	view, outcome, err := svc.RefreshLedger(ctx, r.ID, true)
	require.NoError(t, err)
	require.Equal(t, statuscache.OutcomeRefreshed, outcome)
	assert.Equal(t, ledger.StatusLate, view.Payments[0].Status)

	// Publishing happens before RefreshLedger returns, so the buffered
	// channel can be drained without waiting.
	var late []statuscache.Event
drain:
	for {
		select {
		case ev := <-events:
			if ev.Type == statuscache.EventPaymentLate {
				late = append(late, ev)
			}
		default:
			break drain
		}
	}

	require.Len(t, late, 1, "the overdue stored partial fans out exactly once")
	assert.Equal(t, r.ID, late[0].ResidentID)
	overdue, ok := late[0].Payload.(ledger.Payment)
	require.True(t, ok)
	assert.Equal(t, "period_1", overdue.PeriodKey)
	assert.Equal(t, ledger.StatusPartial, overdue.Status, "event carries the stored status, not the resolved one")
}

// =============================================================================
// RESIDENT REGISTRY TESTS
// =============================================================================

func TestAdjustCredit_Override(t *testing.T) {
	svc, _ := newTestService(t)
	_, r := mustSetup(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.AdjustCredit(ctx, r.ID, amt(50)))

	stored, err := svc.GetResident(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", stored.CreditBalance.String())

	assert.ErrorIs(t, svc.AdjustCredit(ctx, r.ID, amt(-1)), dues.ErrInvalidParameter)
}

func TestCreateResident_BlankName_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateResident(context.Background(), "   ", "")
	assert.ErrorIs(t, err, dues.ErrInvalidParameter)
}

// =============================================================================
// TIMELINE ADMINISTRATION TESTS
// =============================================================================

func TestCreateTimeline_ReplacePurgesOldPayments(t *testing.T) {
	// GIVEN: Payment records on the active timeline
	// WHEN: It is replaced without preservePayments
	// THEN: The old cycle's payment documents are gone

	svc, store := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	_, err = svc.CreateTimeline(ctx, threeMonthDef(), false)
	require.NoError(t, err)

	raws, err := store.List(ctx, "timelines/"+tl.ID+"/payments")
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestCreateTimeline_PreserveKeepsOldPayments(t *testing.T) {
	svc, store := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	_, err = svc.CreateTimeline(ctx, threeMonthDef(), true)
	require.NoError(t, err)

	raws, err := store.List(ctx, "timelines/"+tl.ID+"/payments")
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestUpdateTimeline_DurationChangeClearsHolidays(t *testing.T) {
	// GIVEN: A timeline with a holiday on period 2
	// WHEN: It is rebuilt with a different duration
	// THEN: The stale holiday set is discarded

	svc, _ := newTestService(t)
	tl, _ := mustSetup(t, svc, 2)
	ctx := context.Background()

	d := threeMonthDef(2)
	d.Duration = 4

	updated, err := svc.UpdateTimeline(ctx, tl.ID, d)
	require.NoError(t, err)
	assert.Empty(t, updated.Holidays)
	assert.Equal(t, 4, updated.Duration)
}

func TestUpdateTimeline_SameShapeKeepsHolidays(t *testing.T) {
	svc, _ := newTestService(t)
	tl, _ := mustSetup(t, svc, 2)

	updated, err := svc.UpdateTimeline(context.Background(), tl.ID, threeMonthDef(2))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, updated.Holidays)
}

func TestSetHolidays_ResplitsAmounts(t *testing.T) {
	// GIVEN: A three-period timeline with no holidays
	// WHEN: Period 2 is marked a holiday
	// THEN: The 300 total re-splits over the two active periods

	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	updated, err := svc.SetHolidays(ctx, tl.ID, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, updated.Holidays)
	assert.Equal(t, "150", updated.AmountPerPeriod.String())

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, view.Payments, 2)

	_, err = svc.SetHolidays(ctx, tl.ID, []int{1, 2, 3})
	assert.ErrorIs(t, err, dues.ErrInvalidParameter, "holidays must leave an active period")
}

func TestSetSimulationDate_OutOfRange_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	tl, _ := mustSetup(t, svc)

	err := svc.SetSimulationDate(context.Background(), tl.ID, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, dues.ErrInvalidParameter)
}

func TestResetPayments_DeletesAllRecords(t *testing.T) {
	svc, _ := newTestService(t)
	tl, r := mustSetup(t, svc)
	ctx := context.Background()

	_, err := svc.SettlePeriod(ctx, tl.ID, "period_1", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)
	_, err = svc.SettlePeriod(ctx, tl.ID, "period_2", r.ID, amt(100), ledger.MethodCash)
	require.NoError(t, err)

	deleted, err := svc.ResetPayments(ctx, tl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	view, err := svc.GetLedger(ctx, r.ID)
	require.NoError(t, err)
	for _, p := range view.Payments {
		assert.Equal(t, ledger.StatusUnpaid, p.Status)
	}
}
