package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/websocket"
	"github.com/stretchr/testify/assert"
)

type stubLister struct{}

func (stubLister) ListOpenTrips(_ context.Context) ([]*trips.Trip, error) { return nil, nil }

func TestFeed_DisconnectForgetsDriverLocation(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	feed := NewFeed(stubLister{}, testFilter(&stubBlocks{}), hub)
	feed.RegisterHandlers()

	driverID := uuid.New()
	feed.mu.Lock()
	feed.locations[driverID] = driverLocation{Latitude: 40.0, Longitude: -74.0, UpdatedAt: time.Now()}
	feed.mu.Unlock()

	client := websocket.NewClient(driverID.String(), nil, hub, "driver")
	hub.Register <- client
	hub.Unregister <- client

	assert.Eventually(t, func() bool {
		feed.mu.RLock()
		defer feed.mu.RUnlock()
		_, tracked := feed.locations[driverID]
		return !tracked
	}, time.Second, 10*time.Millisecond)
}

func TestFeed_RiderDisconnectLeavesLocations(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	feed := NewFeed(stubLister{}, testFilter(&stubBlocks{}), hub)
	feed.RegisterHandlers()

	driverID := uuid.New()
	feed.mu.Lock()
	feed.locations[driverID] = driverLocation{Latitude: 40.0, Longitude: -74.0, UpdatedAt: time.Now()}
	feed.mu.Unlock()

	// A rider sharing the same ID string must not evict the driver entry
	client := websocket.NewClient(driverID.String(), nil, hub, "rider")
	hub.Register <- client
	hub.Unregister <- client

	time.Sleep(50 * time.Millisecond)
	feed.mu.RLock()
	_, tracked := feed.locations[driverID]
	feed.mu.RUnlock()
	assert.True(t, tracked)
}
