package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/general/config"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/general/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory fakes for the service ports. The trip fake reproduces the
// conditional-update semantics of the SQL layer under a mutex so accept races
// behave the same way they do against Postgres.

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ----- trips -----

type memTripRepo struct {
	mu   sync.Mutex
	rows map[string]*trip.Trip
}

func newMemTripRepo() *memTripRepo {
	return &memTripRepo{rows: make(map[string]*trip.Trip)}
}

func cloneTrip(t *trip.Trip) *trip.Trip {
	c := *t
	if t.WorkerID != nil {
		w := *t.WorkerID
		c.WorkerID = &w
	}
	if t.Fare != nil {
		f := *t.Fare
		c.Fare = &f
	}
	return &c
}

func (r *memTripRepo) Create(ctx context.Context, t *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	r.rows[t.ID] = cloneTrip(t)
	return nil
}

func (r *memTripRepo) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTrip(t), nil
}

func (r *memTripRepo) AcceptIfPending(ctx context.Context, tripID, workerID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tripID]
	if !ok {
		return false, nil
	}
	if t.State != trip.StatePending || t.WorkerID != nil {
		return false, nil
	}
	w := workerID
	t.WorkerID = &w
	t.State = trip.StateAccepted
	t.AcceptedAt = &at
	return true, nil
}

func (r *memTripRepo) Advance(ctx context.Context, tripID string, from, to trip.State, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tripID]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.State == to {
		return nil
	}
	if t.State != from {
		return fmt.Errorf("trip is %s, expected %s: %w", t.State, from, trip.ErrInvalidTransition)
	}
	t.State = to
	return nil
}

func (r *memTripRepo) Reopen(ctx context.Context, tripID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tripID]
	if !ok {
		return pgx.ErrNoRows
	}
	switch t.State {
	case trip.StateAccepted, trip.StateEnRoutePickup, trip.StateArrivedPickup:
	default:
		return fmt.Errorf("cannot reopen trip in state %s: %w", t.State, trip.ErrInvalidTransition)
	}
	t.WorkerID = nil
	t.AcceptedAt = nil
	t.ArrivedPickupAt = nil
	t.State = trip.StatePending
	return nil
}

func (r *memTripRepo) Complete(ctx context.Context, tripID string, finalFare float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tripID]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.State == trip.StateCompleted {
		return nil
	}
	if t.State != trip.StateInProgress {
		return fmt.Errorf("complete is only allowed from in_progress, got %s", t.State)
	}
	t.State = trip.StateCompleted
	t.Fare = &finalFare
	t.CompletedAt = &at
	return nil
}

func (r *memTripRepo) Cancel(ctx context.Context, tripID, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[tripID]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.State == trip.StateCancelled {
		return nil
	}
	if t.State == trip.StateCompleted || t.State == trip.StateInProgress {
		return fmt.Errorf("cannot cancel from %s", t.State)
	}
	t.State = trip.StateCancelled
	t.CancelledAt = &at
	t.CancellationReason = &reason
	return nil
}

// ----- stops -----

type memStopRepo struct {
	mu   sync.Mutex
	rows map[string][]trip.Stop
}

func newMemStopRepo() *memStopRepo {
	return &memStopRepo{rows: make(map[string][]trip.Stop)}
}

func (r *memStopRepo) Insert(ctx context.Context, tripID string, stops []trip.Stop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[tripID] = append([]trip.Stop(nil), stops...)
	return nil
}

func (r *memStopRepo) ListByTrip(ctx context.Context, tripID string) ([]trip.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trip.Stop(nil), r.rows[tripID]...), nil
}

// ----- blacklist -----

type memBlacklistRepo struct {
	mu      sync.Mutex
	entries map[string]worker.BlacklistEntry // worker_id|trip_id
}

func newMemBlacklistRepo() *memBlacklistRepo {
	return &memBlacklistRepo{entries: make(map[string]worker.BlacklistEntry)}
}

func (r *memBlacklistRepo) Upsert(ctx context.Context, e worker.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.WorkerID+"|"+e.TripID] = e
	return nil
}

func (r *memBlacklistRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, e := range r.entries {
		if e.ExpiresAt.Before(before) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

// excludes mirrors the eligibility subquery: same client and literal route,
// entry still in force.
func (r *memBlacklistRepo) excludes(workerID string, t *trip.Trip, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if !strings.HasPrefix(k, workerID+"|") {
			continue
		}
		if e.ClientID == t.ClientID &&
			e.OriginAddress == t.PickupAddress &&
			e.DestAddress == t.DropoffAddress &&
			e.Active(now) {
			return true
		}
	}
	return false
}

// ----- workers -----

type memWorkerRepo struct {
	mu        sync.Mutex
	rows      map[string]*worker.Worker
	blacklist *memBlacklistRepo
}

func newMemWorkerRepo(blacklist *memBlacklistRepo) *memWorkerRepo {
	return &memWorkerRepo{rows: make(map[string]*worker.Worker), blacklist: blacklist}
}

func (r *memWorkerRepo) GetByID(ctx context.Context, id string) (*worker.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *w
	return &c, nil
}

func (r *memWorkerRepo) SetAvailability(ctx context.Context, id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("worker %s not found", id)
	}
	w.Available = available
	return nil
}

func (r *memWorkerRepo) ListEligible(ctx context.Context, t *trip.Trip) ([]string, error) {
	r.mu.Lock()
	workers := make([]*worker.Worker, 0, len(r.rows))
	for _, w := range r.rows {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	want := worker.KindDriver
	if t.Kind == trip.KindDelivery {
		want = worker.KindDelivery
	}

	now := time.Now().UTC()
	var ids []string
	for _, w := range workers {
		if !w.Available || !w.Approved || w.Kind != want {
			continue
		}
		if r.blacklist != nil && r.blacklist.excludes(w.ID, t, now) {
			continue
		}
		ids = append(ids, w.ID)
	}
	return ids, nil
}

func (r *memWorkerRepo) IncrementOnComplete(ctx context.Context, id string, earnings float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("worker %s not found", id)
	}
	w.TotalTrips++
	w.TotalEarnings += earnings
	return nil
}

// ----- notifier -----

type sentFrame struct {
	Kind  contracts.ActorKind
	Actor string
	Frame contracts.OutFrame
}

type fakeNotifier struct {
	mu           sync.Mutex
	disconnected map[string]bool
	sent         []sentFrame
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{disconnected: make(map[string]bool)}
}

func (n *fakeNotifier) Send(kind contracts.ActorKind, actorID string, frame contracts.OutFrame) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disconnected[actorID] {
		return false
	}
	n.sent = append(n.sent, sentFrame{Kind: kind, Actor: actorID, Frame: frame})
	return true
}

func (n *fakeNotifier) IsConnected(kind contracts.ActorKind, actorID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.disconnected[actorID]
}

func (n *fakeNotifier) disconnect(actorID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[actorID] = true
}

func (n *fakeNotifier) framesTo(actorID string) []contracts.OutFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []contracts.OutFrame
	for _, s := range n.sent {
		if s.Actor == actorID {
			out = append(out, s.Frame)
		}
	}
	return out
}

// ----- publisher -----

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *fakePublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// ----- env -----

type testEnv struct {
	svc       *Service
	trips     *memTripRepo
	stops     *memStopRepo
	workers   *memWorkerRepo
	blacklist *memBlacklistRepo
	notifier  *fakeNotifier
	publisher *fakePublisher
	sessions  *SessionTracker
}

func testPolicy() SessionPolicy {
	return SessionPolicy{
		RideSearchTimeout:     2 * time.Minute,
		DeliverySearchTimeout: 3 * time.Minute,
		Retention:             10 * time.Minute,
		SweepInterval:         5 * time.Minute,
	}
}

func newTestEnv() *testEnv {
	lg := logger.New("dispatch-test")

	cfg := &config.Config{}
	cfg.Dispatch.RideSearchTimeout = config.Duration(2 * time.Minute)
	cfg.Dispatch.DeliverySearchTimeout = config.Duration(3 * time.Minute)
	cfg.Dispatch.SessionRetention = config.Duration(10 * time.Minute)
	cfg.Dispatch.SessionSweepInterval = config.Duration(5 * time.Minute)
	cfg.Dispatch.BlacklistTTL = config.Duration(10 * time.Minute)

	blacklist := newMemBlacklistRepo()
	env := &testEnv{
		trips:     newMemTripRepo(),
		stops:     newMemStopRepo(),
		workers:   newMemWorkerRepo(blacklist),
		blacklist: blacklist,
		notifier:  newFakeNotifier(),
		publisher: &fakePublisher{},
		sessions:  NewSessionTracker(lg, testPolicy()),
	}
	env.svc = New(lg, cfg, passthroughUoW{}, env.trips, env.stops, env.workers,
		env.blacklist, env.notifier, env.publisher, env.sessions, nil, nil)
	return env
}

func (env *testEnv) seedWorker(id string, kind worker.Kind, available, approved bool) {
	env.workers.mu.Lock()
	defer env.workers.mu.Unlock()
	env.workers.rows[id] = &worker.Worker{
		ID:        id,
		Name:      "Worker " + id,
		Phone:     "+221700000000",
		Kind:      kind,
		Rating:    4.8,
		Available: available,
		Approved:  approved,
	}
}

func (env *testEnv) seedTrip(clientID string, kind trip.Kind) *trip.Trip {
	t, err := trip.NewTrip("TRIP_20260831_"+uuid.NewString()[:8], clientID, kind,
		trip.PaymentCash, "Plateau, Dakar", 14.6671, -17.4331, "Almadies, Dakar", 14.7447, -17.5097)
	if err != nil {
		panic(err)
	}
	if err := env.trips.Create(context.Background(), t); err != nil {
		panic(err)
	}
	return t
}

// seedAcceptedTrip seeds a trip already claimed by workerID.
func (env *testEnv) seedAcceptedTrip(clientID, workerID string, kind trip.Kind) *trip.Trip {
	t := env.seedTrip(clientID, kind)
	won, err := env.trips.AcceptIfPending(context.Background(), t.ID, workerID, time.Now().UTC())
	if err != nil || !won {
		panic("seed accept failed")
	}
	t.State = trip.StateAccepted
	w := workerID
	t.WorkerID = &w
	return t
}
