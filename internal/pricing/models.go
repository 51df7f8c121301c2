package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/pkg/geo"
)

// Zone is a priced service-area polygon. A point belongs to at most one zone;
// overlaps resolve by ascending priority.
type Zone struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	DisplayName string      `json:"display_name" db:"display_name"`
	IsAirport   bool        `json:"is_airport" db:"is_airport"`
	Priority    int         `json:"priority" db:"priority"`
	Polygon     []geo.Point `json:"polygon" db:"polygon"`
}

// QuoteInput contains everything a quote depends on. RequestTime selects the
// time-of-day band so the same input always produces the same quote.
type QuoteInput struct {
	PickupLatitude       float64
	PickupLongitude      float64
	DestinationLatitude  float64
	DestinationLongitude float64
	DistanceMiles        float64
	DurationMinutes      int
	RequestTime          time.Time
}

// Result is the full cost breakdown attached to a trip at request time.
type Result struct {
	PickupZoneID        uuid.UUID `json:"pickup_zone_id"`
	PickupZoneName      string    `json:"pickup_zone_name"`
	DestinationZoneID   uuid.UUID `json:"destination_zone_id"`
	DestinationZoneName string    `json:"destination_zone_name"`

	IsWithinZone  bool `json:"is_within_zone"`
	IsAirportTrip bool `json:"is_airport_trip"`

	FlatRate      float64 `json:"flat_rate,omitempty"`
	ZoneExitFee   float64 `json:"zone_exit_fee,omitempty"`
	DistanceCost  float64 `json:"distance_cost,omitempty"`
	TimeCost      float64 `json:"time_cost,omitempty"`
	TimeOfDayBand string  `json:"time_of_day_band"`
	Multiplier    float64 `json:"multiplier"`

	SuggestedContribution float64 `json:"suggested_contribution"`
	MinContribution       float64 `json:"min_contribution"`
	MaxContribution       float64 `json:"max_contribution"`

	Description string `json:"description"`
}

// QuoteRequest is the HTTP request body for a standalone quote.
type QuoteRequest struct {
	PickupLatitude       float64 `json:"pickup_latitude" binding:"required"`
	PickupLongitude      float64 `json:"pickup_longitude" binding:"required"`
	DestinationLatitude  float64 `json:"destination_latitude" binding:"required"`
	DestinationLongitude float64 `json:"destination_longitude" binding:"required"`
	DistanceMiles        float64 `json:"distance_miles" binding:"required,gt=0"`
	DurationMinutes      int     `json:"duration_minutes" binding:"required,gt=0"`
}
