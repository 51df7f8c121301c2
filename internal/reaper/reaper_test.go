package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	trips map[uuid.UUID]*trips.Trip

	// afterList runs between the stale listing and the conditional expire,
	// simulating work that lands in that window.
	afterList func()
}

func newFakeStore(ts ...*trips.Trip) *fakeStore {
	s := &fakeStore{trips: make(map[uuid.UUID]*trips.Trip)}
	for _, t := range ts {
		s.trips[t.ID] = t
	}
	return s
}

func (s *fakeStore) ListStaleRequested(_ context.Context, olderThan time.Time) ([]*trips.Trip, error) {
	s.mu.Lock()
	var stale []*trips.Trip
	for _, t := range s.trips {
		if t.Status == trips.StatusRequested && t.RequestedAt.Before(olderThan) {
			cp := *t
			stale = append(stale, &cp)
		}
	}
	s.mu.Unlock()

	if s.afterList != nil {
		s.afterList()
	}
	return stale, nil
}

func (s *fakeStore) ExpireTrip(_ context.Context, tripID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok || t.Status != trips.StatusRequested || t.DriverID != nil {
		return false, nil
	}
	t.Status = trips.StatusExpired
	return true, nil
}

// accept simulates a driver winning the race between list and expire.
func (s *fakeStore) accept(tripID, driverID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trips[tripID]
	t.Status = trips.StatusAccepted
	t.DriverID = &driverID
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []uuid.UUID
}

func (f *fakeReleaser) ReleaseHold(_ context.Context, st payments.State) payments.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, st.TripID)
	return payments.Result{Status: payments.StatusReleased, GatewayRef: st.GatewayRef}
}

func staleTrip(age time.Duration, flow payments.Flow, status payments.Status) *trips.Trip {
	return &trips.Trip{
		ID:            uuid.New(),
		RiderID:       uuid.New(),
		Status:        trips.StatusRequested,
		PaymentFlow:   flow,
		PaymentStatus: status,
		RequestedAt:   time.Now().Add(-age),
	}
}

func newTestReaper(store *fakeStore, releaser *fakeReleaser) *Reaper {
	return New(store, releaser, nil, nil, config.ReaperConfig{
		Interval: time.Minute,
		MaxAge:   30 * time.Minute,
	})
}

func TestSweep_ExpiresOnlyOldRequests(t *testing.T) {
	old := staleTrip(31*time.Minute, payments.FlowNone, payments.StatusPending)
	fresh := staleTrip(5*time.Minute, payments.FlowNone, payments.StatusPending)

	store := newFakeStore(old, fresh)
	r := newTestReaper(store, &fakeReleaser{})

	expired, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	assert.Equal(t, trips.StatusExpired, store.trips[old.ID].Status)
	assert.Equal(t, trips.StatusRequested, store.trips[fresh.ID].Status)
}

func TestSweep_ReleasesHoldOnlyForAuthorizedHoldFlow(t *testing.T) {
	held := staleTrip(40*time.Minute, payments.FlowAuthorizationHold, payments.StatusAuthorized)
	verified := staleTrip(40*time.Minute, payments.FlowVerification, payments.StatusVerified)
	neverHeld := staleTrip(40*time.Minute, payments.FlowAuthorizationHold, payments.StatusAuthorizationFailed)

	store := newFakeStore(held, verified, neverHeld)
	releaser := &fakeReleaser{}
	r := newTestReaper(store, releaser)

	expired, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, expired)

	require.Len(t, releaser.released, 1)
	assert.Equal(t, held.ID, releaser.released[0])
}

func TestSweep_ConcurrentAcceptKeepsTripAndHold(t *testing.T) {
	trip := staleTrip(31*time.Minute, payments.FlowAuthorizationHold, payments.StatusAuthorized)

	store := newFakeStore(trip)
	releaser := &fakeReleaser{}
	r := newTestReaper(store, releaser)

	// The driver accepts after the reaper listed the trip but before the
	// conditional expire runs
	store.afterList = func() {
		store.accept(trip.ID, uuid.New())
	}

	expired, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	assert.Equal(t, trips.StatusAccepted, store.trips[trip.ID].Status)
	assert.Empty(t, releaser.released)
}

func TestSweep_SecondSweepIsNoOp(t *testing.T) {
	trip := staleTrip(31*time.Minute, payments.FlowAuthorizationHold, payments.StatusAuthorized)

	store := newFakeStore(trip)
	releaser := &fakeReleaser{}
	r := newTestReaper(store, releaser)

	first, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	// The hold is released exactly once
	assert.Len(t, releaser.released, 1)
}
