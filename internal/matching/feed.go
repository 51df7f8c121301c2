package matching

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/eventbus"
	"github.com/poolup/carpool/pkg/logger"
	"github.com/poolup/carpool/pkg/websocket"
	"go.uber.org/zap"
)

// feedConsumerName is the durable JetStream consumer for the driver feed.
const feedConsumerName = "matching-feed"

// OpenTripsLister supplies the current set of broadcastable trips.
type OpenTripsLister interface {
	ListOpenTrips(ctx context.Context) ([]*trips.Trip, error)
}

type driverLocation struct {
	Latitude  float64
	Longitude float64
	UpdatedAt time.Time
}

// Feed keeps every connected driver's candidate list current. It recomputes
// on two triggers: the driver moves, or any trip changes state on the bus.
type Feed struct {
	lister OpenTripsLister
	filter *Filter
	hub    *websocket.Hub

	mu        sync.RWMutex
	locations map[uuid.UUID]driverLocation
}

// NewFeed creates a driver feed.
func NewFeed(lister OpenTripsLister, filter *Filter, hub *websocket.Hub) *Feed {
	return &Feed{
		lister:    lister,
		filter:    filter,
		hub:       hub,
		locations: make(map[uuid.UUID]driverLocation),
	}
}

// RegisterHandlers wires the feed into the websocket hub. Drivers report
// their position with location_update messages; each report refreshes that
// driver's candidate list. A disconnect drops the driver's tracked location
// so refreshes stop computing candidates for them.
func (f *Feed) RegisterHandlers() {
	f.hub.OnDisconnect(func(clientID, role string) {
		if role != "driver" {
			return
		}
		if driverID, err := uuid.Parse(clientID); err == nil {
			f.Forget(driverID)
		}
	})

	f.hub.RegisterHandler("location_update", func(client *websocket.Client, msg *websocket.Message) {
		if client.Role != "driver" {
			return
		}
		driverID, err := uuid.Parse(client.ID)
		if err != nil {
			return
		}

		lat, latOK := msg.Data["latitude"].(float64)
		lng, lngOK := msg.Data["longitude"].(float64)
		if !latOK || !lngOK {
			return
		}

		f.mu.Lock()
		f.locations[driverID] = driverLocation{Latitude: lat, Longitude: lng, UpdatedAt: time.Now()}
		f.mu.Unlock()

		f.pushCandidates(context.Background(), driverID, lat, lng)
	})
}

// Start subscribes the feed to trip state transitions. Every trips.* event
// triggers a recompute for all drivers with a known location: a new request
// appears in nearby feeds, an accept or expiry disappears from them.
func (f *Feed) Start(ctx context.Context, bus *eventbus.Bus) error {
	return bus.Subscribe(ctx, "trips.>", feedConsumerName, func(ctx context.Context, event *eventbus.Event) error {
		f.refreshAll(ctx)
		return nil
	})
}

// Forget drops a driver's tracked location when they disconnect.
func (f *Feed) Forget(driverID uuid.UUID) {
	f.mu.Lock()
	delete(f.locations, driverID)
	f.mu.Unlock()
}

func (f *Feed) refreshAll(ctx context.Context) {
	f.mu.RLock()
	snapshot := make(map[uuid.UUID]driverLocation, len(f.locations))
	for id, loc := range f.locations {
		snapshot[id] = loc
	}
	f.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	open, err := f.lister.ListOpenTrips(ctx)
	if err != nil {
		logger.Get().Error("failed to list open trips for feed", zap.Error(err))
		return
	}

	for driverID, loc := range snapshot {
		f.send(ctx, driverID, loc.Latitude, loc.Longitude, open)
	}
}

func (f *Feed) pushCandidates(ctx context.Context, driverID uuid.UUID, lat, lng float64) {
	open, err := f.lister.ListOpenTrips(ctx)
	if err != nil {
		logger.Get().Error("failed to list open trips for feed",
			zap.String("driver_id", driverID.String()), zap.Error(err))
		return
	}
	f.send(ctx, driverID, lat, lng, open)
}

func (f *Feed) send(ctx context.Context, driverID uuid.UUID, lat, lng float64, open []*trips.Trip) {
	candidates := f.filter.CandidatesFor(ctx, driverID, lat, lng, open)

	f.hub.SendToUser(driverID.String(), &websocket.Message{
		Type:      "trip_candidates",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"candidates": candidates,
			"count":      len(candidates),
		},
	})
}
