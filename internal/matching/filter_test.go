package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBlocks struct {
	blocked map[uuid.UUID]struct{}
}

func (s *stubBlocks) BlockedSet(_ context.Context, _ uuid.UUID) map[uuid.UUID]struct{} {
	if s.blocked == nil {
		return map[uuid.UUID]struct{}{}
	}
	return s.blocked
}

func testFilter(blocks BlockLister) *Filter {
	return NewFilter(blocks, config.MatchingConfig{
		DefaultSearchRadiusKm: 10,
		StalenessWindow:       5 * time.Minute,
		AverageSpeedKmh:       30,
	})
}

func openTrip(lat, lng float64) *trips.Trip {
	return &trips.Trip{
		ID:              uuid.New(),
		RiderID:         uuid.New(),
		Status:          trips.StatusRequested,
		PickupLatitude:  lat,
		PickupLongitude: lng,
		PaymentStatus:   payments.StatusPending,
		SearchRadiusKm:  10,
		RequestedAt:     time.Now(),
	}
}

func TestCandidatesFor_RejectionRules(t *testing.T) {
	driverID := uuid.New()
	blockedRider := uuid.New()
	assigned := uuid.New()

	declined := openTrip(0.01, 0.01)
	declined.DeclinedBy = []uuid.UUID{driverID}

	blocked := openTrip(0.01, 0.01)
	blocked.RiderID = blockedRider

	taken := openTrip(0.01, 0.01)
	taken.Status = trips.StatusAccepted
	taken.DriverID = &assigned

	assignedOnly := openTrip(0.01, 0.01)
	assignedOnly.DriverID = &assigned

	failedPayment := openTrip(0.01, 0.01)
	failedPayment.PaymentStatus = payments.StatusChargeFailed

	stale := openTrip(0.01, 0.01)
	stale.RequestedAt = time.Now().Add(-6 * time.Minute)

	missingClock := openTrip(0.01, 0.01)
	missingClock.RequestedAt = time.Time{}

	visible := openTrip(0.01, 0.01)

	f := testFilter(&stubBlocks{blocked: map[uuid.UUID]struct{}{blockedRider: {}}})
	candidates := f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{
		declined, blocked, taken, assignedOnly, failedPayment, stale, missingClock, visible,
	})

	require.Len(t, candidates, 1)
	assert.Equal(t, visible.ID, candidates[0].Trip.ID)
}

func TestCandidatesFor_StalenessBoundary(t *testing.T) {
	driverID := uuid.New()
	f := testFilter(&stubBlocks{})

	now := time.Now()
	f.now = func() time.Time { return now }

	fresh := openTrip(0.01, 0.01)
	fresh.RequestedAt = now.Add(-4 * time.Minute)

	expiredFromView := openTrip(0.01, 0.01)
	expiredFromView.RequestedAt = now.Add(-5*time.Minute - time.Second)

	candidates := f.CandidatesFor(context.Background(), driverID, 0, 0,
		[]*trips.Trip{fresh, expiredFromView})

	require.Len(t, candidates, 1)
	assert.Equal(t, fresh.ID, candidates[0].Trip.ID)
}

func TestCandidatesFor_ResendRestartsVisibility(t *testing.T) {
	driverID := uuid.New()
	f := testFilter(&stubBlocks{})

	trip := openTrip(0.01, 0.01)
	trip.RequestedAt = time.Now().Add(-10 * time.Minute)

	require.Empty(t, f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{trip}))

	// A resend resets requestedAt and the trip reappears
	trip.RequestedAt = time.Now()
	trip.ResendCount = 1

	assert.Len(t, f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{trip}), 1)
}

func TestCandidatesFor_EffectiveRadius(t *testing.T) {
	driverID := uuid.New()
	f := testFilter(&stubBlocks{})

	// ~13.3 km north of the driver, beyond the 10 km default
	far := openTrip(0.12, 0)

	require.Empty(t, f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{far}))

	// The trip's own widened radius wins over the default
	far.SearchRadiusKm = 20
	candidates := f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{far})

	require.Len(t, candidates, 1)
	assert.InDelta(t, 13.34, candidates[0].DistanceFromDriverKm, 0.1)
}

func TestCandidatesFor_SortedByDistanceWithETA(t *testing.T) {
	driverID := uuid.New()
	f := testFilter(&stubBlocks{})

	near := openTrip(0.01, 0)    // ~1.1 km
	mid := openTrip(0.04, 0)     // ~4.4 km
	farther := openTrip(0.08, 0) // ~8.9 km

	candidates := f.CandidatesFor(context.Background(), driverID, 0, 0,
		[]*trips.Trip{farther, near, mid})

	require.Len(t, candidates, 3)
	assert.Equal(t, near.ID, candidates[0].Trip.ID)
	assert.Equal(t, mid.ID, candidates[1].Trip.ID)
	assert.Equal(t, farther.ID, candidates[2].Trip.ID)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t,
			candidates[i].DistanceFromDriverKm, candidates[i-1].DistanceFromDriverKm)
	}

	// 4.45 km at 30 km/h is about 9 minutes to pickup
	assert.Equal(t, 9, candidates[1].EstimatedPickupMinutes)
}

func TestCandidatesFor_DisplayablePaymentStatuses(t *testing.T) {
	driverID := uuid.New()
	f := testFilter(&stubBlocks{})

	tests := []struct {
		status  payments.Status
		visible bool
	}{
		{payments.StatusPending, true},
		{payments.StatusVerified, true},
		{payments.StatusAuthorized, true},
		{payments.StatusAuthorizationFailed, false},
		{payments.StatusChargeFailed, false},
		{payments.StatusCaptureFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			trip := openTrip(0.01, 0.01)
			trip.PaymentStatus = tt.status
			got := f.CandidatesFor(context.Background(), driverID, 0, 0, []*trips.Trip{trip})
			assert.Equal(t, tt.visible, len(got) == 1)
		})
	}
}
