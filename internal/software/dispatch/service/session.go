package service

import (
	"context"
	"sync"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/observability"

	"github.com/google/uuid"
)

// Session statuses.
const (
	SessionSearching   = "searching"
	SessionDriverFound = "driver_found"
	SessionNoDrivers   = "no_drivers"
	SessionCancelled   = "cancelled"
)

// Session is one client-visible search attempt for a trip.
type Session struct {
	ID        string
	TripID    string
	Kind      trip.Kind
	Status    string
	WorkerID  *string
	StartedAt time.Time
	UpdatedAt time.Time
}

// SessionPolicy carries the timeout and retention knobs the tracker applies.
type SessionPolicy struct {
	RideSearchTimeout     time.Duration
	DeliverySearchTimeout time.Duration
	Retention             time.Duration
	SweepInterval         time.Duration
}

// SessionTracker keeps search sessions in memory. Timeouts are lazy: nothing
// fires when the clock passes the deadline; the transition to no_drivers is
// applied when the session is next read. driver_found is sticky and never
// times out.
type SessionTracker struct {
	logger    *logger.Logger
	policy    SessionPolicy
	now       func() time.Time
	onTimeout func(tripID string) // optional; set once at wiring time

	mu     sync.Mutex
	byID   map[string]*Session
	byTrip map[string]string // trip id -> session id
}

// NewSessionTracker constructs a tracker with the given policy.
func NewSessionTracker(logger *logger.Logger, policy SessionPolicy) *SessionTracker {
	return &SessionTracker{
		logger: logger,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		byID:   make(map[string]*Session),
		byTrip: make(map[string]string),
	}
}

// OnTimeout registers a hook invoked after a search settles to no_drivers, so
// per-trip bookkeeping tied to the search can be released. Must be set before
// the tracker is shared across goroutines.
func (t *SessionTracker) OnTimeout(fn func(tripID string)) {
	t.onTimeout = fn
}

// Start opens a new searching session for the trip and returns its id.
func (t *SessionTracker) Start(tripID string, kind trip.Kind) string {
	now := t.now()
	s := &Session{
		ID:        uuid.NewString(),
		TripID:    tripID,
		Kind:      kind,
		Status:    SessionSearching,
		StartedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.byID[s.ID] = s
	t.byTrip[tripID] = s.ID
	t.mu.Unlock()

	return s.ID
}

// Get returns a snapshot of the session, applying the lazy timeout first.
// The second return is false when the session is unknown (never existed or
// already swept).
func (t *SessionTracker) Get(sessionID string) (Session, bool) {
	t.mu.Lock()
	s, ok := t.byID[sessionID]
	if !ok {
		t.mu.Unlock()
		return Session{}, false
	}
	timedOut := t.applyTimeoutLocked(s)
	snap := *s
	t.mu.Unlock()

	if timedOut && t.onTimeout != nil {
		t.onTimeout(snap.TripID)
	}
	return snap, true
}

// TripFor returns the trip backing the session without touching its state.
func (t *SessionTracker) TripFor(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[sessionID]
	if !ok {
		return "", false
	}
	return s.TripID, true
}

// MarkFound flips the trip's session to driver_found. Once found, the status
// sticks even if the poll arrives long after the search deadline.
func (t *SessionTracker) MarkFound(tripID, workerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.byTripLocked(tripID)
	if s == nil {
		return
	}
	s.Status = SessionDriverFound
	s.WorkerID = &workerID
	s.UpdatedAt = t.now()
}

// Resume puts the trip's session back into searching after a worker
// cancellation, restarting the timeout clock.
func (t *SessionTracker) Resume(tripID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.byTripLocked(tripID)
	if s == nil {
		return
	}
	now := t.now()
	s.Status = SessionSearching
	s.WorkerID = nil
	s.StartedAt = now
	s.UpdatedAt = now
}

// Cancel removes the session and returns its trip id. A cancelled session is
// gone: subsequent polls read as not-found.
func (t *SessionTracker) Cancel(sessionID string) (tripID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, found := t.byID[sessionID]
	if !found {
		return "", false
	}
	delete(t.byID, sessionID)
	if t.byTrip[s.TripID] == sessionID {
		delete(t.byTrip, s.TripID)
	}
	return s.TripID, true
}

// Sweep drops sessions whose last update is older than the retention window
// and returns how many were removed. Polling a swept session reads as
// not-found, which clients treat as expired.
func (t *SessionTracker) Sweep() int {
	cutoff := t.now().Add(-t.policy.Retention)

	t.mu.Lock()
	removed := 0
	var expired []string
	for id, s := range t.byID {
		// settle pending timeouts before judging staleness
		if t.applyTimeoutLocked(s) {
			expired = append(expired, s.TripID)
		}
		if s.UpdatedAt.Before(cutoff) {
			delete(t.byID, id)
			if t.byTrip[s.TripID] == id {
				delete(t.byTrip, s.TripID)
			}
			removed++
		}
	}
	t.mu.Unlock()

	if t.onTimeout != nil {
		for _, tripID := range expired {
			t.onTimeout(tripID)
		}
	}
	return removed
}

// RunSweeper periodically sweeps until ctx is done.
func (t *SessionTracker) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(t.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Info(ctx, "sessions_swept", "Expired search sessions removed", map[string]any{
					"removed": n,
				})
			}
		}
	}
}

// ---- internal helpers (caller holds t.mu) ----

func (t *SessionTracker) byTripLocked(tripID string) *Session {
	id, ok := t.byTrip[tripID]
	if !ok {
		return nil
	}
	return t.byID[id]
}

// applyTimeoutLocked moves an overdue searching session to no_drivers and
// reports whether the transition happened on this call.
func (t *SessionTracker) applyTimeoutLocked(s *Session) bool {
	if s.Status != SessionSearching {
		return false
	}

	timeout := t.policy.RideSearchTimeout
	if s.Kind == trip.KindDelivery {
		timeout = t.policy.DeliverySearchTimeout
	}

	if t.now().Sub(s.StartedAt) >= timeout {
		s.Status = SessionNoDrivers
		s.UpdatedAt = t.now()
		observability.SearchTimeouts.Inc()
		return true
	}
	return false
}
