package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// TripRequestedData is emitted when a rider posts a trip request. It carries
// everything the matching feed needs to render a driver-facing card.
type TripRequestedData struct {
	TripID                uuid.UUID `json:"trip_id"`
	RiderID               uuid.UUID `json:"rider_id"`
	PickupLatitude        float64   `json:"pickup_latitude"`
	PickupLongitude       float64   `json:"pickup_longitude"`
	PickupAddress         string    `json:"pickup_address"`
	DropoffLatitude       float64   `json:"dropoff_latitude"`
	DropoffLongitude      float64   `json:"dropoff_longitude"`
	DropoffAddress        string    `json:"dropoff_address"`
	SuggestedContribution float64   `json:"suggested_contribution"`
	OfferedContribution   float64   `json:"offered_contribution"`
	SeatsRequested        int       `json:"seats_requested"`
	RequestedAt           time.Time `json:"requested_at"`
}

// TripAcceptedData is emitted when a driver wins a trip.
type TripAcceptedData struct {
	TripID             uuid.UUID `json:"trip_id"`
	RiderID            uuid.UUID `json:"rider_id"`
	DriverID           uuid.UUID `json:"driver_id"`
	LockedContribution float64   `json:"locked_contribution"`
	AcceptedAt         time.Time `json:"accepted_at"`
}

// TripDriverArrivingData is emitted when payment is squared away and the
// driver is released to head for pickup.
type TripDriverArrivingData struct {
	TripID     uuid.UUID `json:"trip_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	ArrivingAt time.Time `json:"arriving_at"`
}

// TripDriverArrivedData is emitted when the driver reaches the pickup point.
type TripDriverArrivedData struct {
	TripID    uuid.UUID `json:"trip_id"`
	RiderID   uuid.UUID `json:"rider_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// TripDeclinedData is emitted when a driver dismisses a trip from their feed.
type TripDeclinedData struct {
	TripID     uuid.UUID `json:"trip_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	DeclinedAt time.Time `json:"declined_at"`
}

// TripStartedData is emitted when a trip transitions to in progress.
type TripStartedData struct {
	TripID    uuid.UUID `json:"trip_id"`
	RiderID   uuid.UUID `json:"rider_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	StartedAt time.Time `json:"started_at"`
}

// TripCompletedData is emitted when a trip finishes.
type TripCompletedData struct {
	TripID      uuid.UUID `json:"trip_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	FinalCost   float64   `json:"final_cost"`
	DistanceKm  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	CompletedAt time.Time `json:"completed_at"`
}

// TripCancelledData is emitted when a trip is cancelled by either party.
type TripCancelledData struct {
	TripID      uuid.UUID `json:"trip_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	DriverID    uuid.UUID `json:"driver_id"` // zero if not yet assigned
	CancelledBy string    `json:"cancelled_by"` // "rider" or "driver"
	Reason      string    `json:"reason"`
	FeeCharged  float64   `json:"fee_charged"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// TripExpiredData is emitted when the reaper expires a stale request.
type TripExpiredData struct {
	TripID      uuid.UUID `json:"trip_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// PaymentAuthorizedData is emitted when a pre-trip hold is placed.
type PaymentAuthorizedData struct {
	TripID       uuid.UUID `json:"trip_id"`
	RiderID      uuid.UUID `json:"rider_id"`
	Amount       float64   `json:"amount"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

// PaymentCapturedData is emitted after a successful capture.
type PaymentCapturedData struct {
	TripID     uuid.UUID `json:"trip_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Attempts   int       `json:"attempts"`
	CapturedAt time.Time `json:"captured_at"`
}

// PaymentCaptureFailedData is emitted when capture retries are exhausted.
// The trip still completes; the balance is flagged for offline settlement.
type PaymentCaptureFailedData struct {
	TripID   uuid.UUID `json:"trip_id"`
	RiderID  uuid.UUID `json:"rider_id"`
	Amount   float64   `json:"amount"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// TipAppliedData is emitted when a rider adds a tip inside the tip window.
type TipAppliedData struct {
	TripID    uuid.UUID `json:"trip_id"`
	RiderID   uuid.UUID `json:"rider_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	TipAmount float64   `json:"tip_amount"`
	AppliedAt time.Time `json:"applied_at"`
}
