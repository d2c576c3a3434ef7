/*
Package statuscache throttles ledger refreshes and fans out change
notifications.

PURPOSE:
  Multiple views mount and unmount against the same remote data. Without
  a gate every mount re-reads the store. The coordinator serves a recent
  payload from cache, skips refreshes attempted too soon after the last
  one, deduplicates concurrent fetches per key, and notifies subscribers
  when fresh data lands.

STATE MACHINE (per key):
  Fresh -> Stale -> Refreshing -> Fresh

  - Fresh:      payload younger than the freshness window; served as-is
  - Stale:      payload expired; a refresh may run, unless the throttle
                window since the last attempt has not elapsed
  - Refreshing: a fetch is outstanding; concurrent callers get an
                explicit in-progress outcome, never a second fetch

TIMESTAMPS:
  The cached payload's fetch instant is distinct from the last-attempt
  timestamp used for throttling. The attempt stamp is written when a
  fetch launches and survives failures, so failed or skipped refreshes
  do not retrigger immediately.

LIFECYCLE:
  New -> use -> Close. Instances are independent; tests construct their
  own instead of sharing process globals.

SEE ALSO:
  - events.go: Subscriber fan-out
  - dues: wires fetchers for ledger and aggregate views
*/
package statuscache

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rukun/jimpitan-engine/ledger"
)

// =============================================================================
// CONFIG
// =============================================================================

type Config struct {
	Freshness      time.Duration // serve from cache within this window
	Throttle       time.Duration // min interval between refresh attempts per key
	BackgroundGate time.Duration // forced refresh after this long in background
	Now            func() time.Time
}

// DefaultConfig matches the page-level windows the UI surfaces expect.
func DefaultConfig() Config {
	return Config{
		Freshness:      2 * time.Minute,
		Throttle:       5 * time.Minute,
		BackgroundGate: 30 * time.Minute,
	}
}

// DueSoonWindow is how far ahead the fan-out looks for upcoming dues.
const DueSoonWindow = 3 * 24 * time.Hour

// ErrClosed is returned for calls after Close.
var ErrClosed = errors.New("status cache coordinator closed")

// =============================================================================
// REFRESH OUTCOMES - closed enum, callers must branch
// =============================================================================

type Outcome int

const (
	// OutcomeFresh: served from cache, no store read.
	OutcomeFresh Outcome = iota
	// OutcomeRefreshed: fetched from the store, cache and listeners updated.
	OutcomeRefreshed
	// OutcomeThrottled: skipped entirely; neither cache nor store touched.
	OutcomeThrottled
	// OutcomeInProgress: another refresh for this key is outstanding.
	OutcomeInProgress
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Result is the outcome of a refresh request.
type Result struct {
	Outcome   Outcome
	Payload   any
	FetchedAt time.Time
}

// FetchFunc loads a payload from the remote store.
type FetchFunc func(ctx context.Context) (any, error)

// =============================================================================
// KEYS
// =============================================================================

// LedgerKey is the cache key for one resident's ledger view.
func LedgerKey(residentID string) string { return "ledger:" + residentID }

// AggregateKey is the cache key for the all-residents view.
const AggregateKey = "aggregate"

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	cfg      Config
	payloads *gocache.Cache

	mu          sync.Mutex
	lastAttempt map[string]time.Time
	fetchedAt   map[string]time.Time
	inflight    map[string]bool
	lastActive  time.Time
	closed      bool

	bus *bus
}

// New creates an independent coordinator instance.
func New(cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = def.Throttle
	}
	if cfg.BackgroundGate <= 0 {
		cfg.BackgroundGate = def.BackgroundGate
	}
	c := &Coordinator{
		cfg:         cfg,
		payloads:    gocache.New(cfg.Freshness, 2*cfg.Freshness),
		lastAttempt: make(map[string]time.Time),
		fetchedAt:   make(map[string]time.Time),
		inflight:    make(map[string]bool),
		bus:         newBus(),
	}
	c.lastActive = c.now()
	return c
}

func (c *Coordinator) now() time.Time {
	if c.cfg.Now != nil {
		return c.cfg.Now()
	}
	return time.Now()
}

// Close tears the coordinator down and closes every subscriber channel.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.bus.close()
	c.payloads.Flush()
}

// Subscribe registers a listener for coordinator events. The returned
// cancel func ends the subscription; after cancel the channel is closed
// and no further events arrive.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	return c.bus.subscribe(buffer)
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh is the single entry point for cache-gated reads. The fetch runs
// at most once per key at a time; the eventType is published on success.
func (c *Coordinator) Refresh(ctx context.Context, key string, force bool, eventType EventType, fetch FetchFunc) (Result, error) {
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	if c.inflight[key] {
		c.mu.Unlock()
		return Result{Outcome: OutcomeInProgress}, nil
	}
	if !force {
		if payload, ok := c.payloads.Get(key); ok {
			r := Result{Outcome: OutcomeFresh, Payload: payload, FetchedAt: c.fetchedAt[key]}
			c.mu.Unlock()
			return r, nil
		}
		if at, ok := c.lastAttempt[key]; ok && now.Sub(at) < c.cfg.Throttle {
			c.mu.Unlock()
			return Result{Outcome: OutcomeThrottled}, nil
		}
	}
	c.inflight[key] = true
	c.lastAttempt[key] = now
	c.mu.Unlock()

	payload, err := fetch(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	fetched := c.now()
	c.payloads.Set(key, payload, c.cfg.Freshness)
	c.fetchedAt[key] = fetched
	c.mu.Unlock()

	c.bus.publish(Event{Type: eventType, Key: key, Payload: payload, At: fetched})
	return Result{Outcome: OutcomeRefreshed, Payload: payload, FetchedAt: fetched}, nil
}

// Invalidate drops the cached payload for a key so the next refresh hits
// the store. Used after writes. The throttle stamp is cleared too: a
// caller that just wrote wants to read its write.
func (c *Coordinator) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads.Delete(key)
	delete(c.lastAttempt, key)
	delete(c.fetchedAt, key)
}

// InvalidateAll drops every cached payload and throttle stamp. Used when
// the active timeline is replaced and every view is stale at once.
func (c *Coordinator) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads.Flush()
	c.lastAttempt = make(map[string]time.Time)
	c.fetchedAt = make(map[string]time.Time)
}

// =============================================================================
// BACKGROUND / RESUME GATE
// =============================================================================

// NoteActive records a foreground heartbeat.
func (c *Coordinator) NoteActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = c.now()
}

// ResumeForcesRefresh reports whether the app has been in the background
// long enough that the next refresh should be forced, and records the
// resume as activity.
func (c *Coordinator) ResumeForcesRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	gap := now.Sub(c.lastActive)
	c.lastActive = now
	return gap >= c.cfg.BackgroundGate
}

// =============================================================================
// NOTIFICATION FAN-OUT
// =============================================================================

// InspectPayments examines freshly fetched payments and publishes an
// event per period that is newly late (stored as outstanding but past
// due) or due within DueSoonWindow.
func (c *Coordinator) InspectPayments(residentID string, payments []ledger.Payment, now time.Time) {
	for _, p := range payments {
		if p.Status.Outstanding() && p.Status != ledger.StatusLate && now.After(p.DueDate) {
			c.bus.publish(Event{
				Type:       EventPaymentLate,
				Key:        LedgerKey(residentID),
				ResidentID: residentID,
				Payload:    p,
				At:         now,
			})
		}
		if ledger.DueWithin(p, now, DueSoonWindow) {
			c.bus.publish(Event{
				Type:       EventPaymentDueSoon,
				Key:        LedgerKey(residentID),
				ResidentID: residentID,
				Payload:    p,
				At:         now,
			})
		}
	}
}
