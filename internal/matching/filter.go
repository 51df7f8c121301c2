package matching

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/geo"
)

// BlockLister is the slice of the block-list cache the filter depends on. The
// returned set is mutual: it holds users who blocked the subject as well as
// users the subject blocked.
type BlockLister interface {
	BlockedSet(ctx context.Context, userID uuid.UUID) map[uuid.UUID]struct{}
}

// Candidate is one open trip as presented to a specific driver, annotated
// with that driver's distance to the pickup.
type Candidate struct {
	Trip                   *trips.Trip `json:"trip"`
	DistanceFromDriverKm   float64     `json:"distance_from_driver_km"`
	EstimatedPickupMinutes int         `json:"estimated_pickup_minutes"`
}

// Filter decides which open trips each driver may see. Every rejection is a
// hard rule; the result is sorted nearest pickup first.
type Filter struct {
	blocks BlockLister
	cfg    config.MatchingConfig
	now    func() time.Time
}

// NewFilter creates a broadcast filter.
func NewFilter(blocks BlockLister, cfg config.MatchingConfig) *Filter {
	if cfg.DefaultSearchRadiusKm <= 0 {
		cfg.DefaultSearchRadiusKm = 10
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 5 * time.Minute
	}
	if cfg.AverageSpeedKmh <= 0 {
		cfg.AverageSpeedKmh = 30
	}
	return &Filter{blocks: blocks, cfg: cfg, now: time.Now}
}

// CandidatesFor returns the trips the driver at (lat, lng) is allowed to see,
// nearest pickup first.
func (f *Filter) CandidatesFor(ctx context.Context, driverID uuid.UUID, lat, lng float64, open []*trips.Trip) []Candidate {
	blocked := f.blocks.BlockedSet(ctx, driverID)
	now := f.now()

	// Cell-ring membership short-circuits the radius check for nearby
	// pickups whose rounded haversine would land right on the edge.
	ring := make(map[string]struct{})
	for _, cell := range geo.GetKRingCellStrings(lat, lng, geo.H3ResolutionMatching, geo.H3KRingMatching) {
		ring[cell] = struct{}{}
	}

	candidates := make([]Candidate, 0, len(open))
	for _, trip := range open {
		if !f.visible(trip, driverID, blocked, now) {
			continue
		}

		distance := geo.Haversine(lat, lng, trip.PickupLatitude, trip.PickupLongitude)
		_, near := ring[geo.GetMatchingCell(trip.PickupLatitude, trip.PickupLongitude)]
		if !near && distance > f.effectiveRadius(trip) {
			continue
		}

		candidates = append(candidates, Candidate{
			Trip:                   trip,
			DistanceFromDriverKm:   distance,
			EstimatedPickupMinutes: geo.EstimateDuration(distance, f.cfg.AverageSpeedKmh),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceFromDriverKm < candidates[j].DistanceFromDriverKm
	})
	return candidates
}

// visible applies every location-independent rejection rule.
func (f *Filter) visible(trip *trips.Trip, driverID uuid.UUID, blocked map[uuid.UUID]struct{}, now time.Time) bool {
	if trip.Status != trips.StatusRequested {
		return false
	}
	if trip.DriverID != nil {
		return false
	}
	if trip.DeclinedByDriver(driverID) {
		return false
	}
	if _, b := blocked[trip.RiderID]; b {
		return false
	}
	if !payments.Displayable(trip.PaymentStatus) {
		return false
	}
	// A missing requestedAt can never age out, so it is never shown.
	if trip.RequestedAt.IsZero() {
		return false
	}
	if now.Sub(trip.RequestedAt) > f.cfg.StalenessWindow {
		return false
	}
	return true
}

// effectiveRadius is the wider of the platform default and the radius the
// rider's resends have grown the trip to.
func (f *Filter) effectiveRadius(trip *trips.Trip) float64 {
	if trip.SearchRadiusKm > f.cfg.DefaultSearchRadiusKm {
		return trip.SearchRadiusKm
	}
	return f.cfg.DefaultSearchRadiusKm
}
