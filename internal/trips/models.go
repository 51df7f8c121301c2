package trips

import (
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/pricing"
	"github.com/poolup/carpool/pkg/geo"
)

// Status is the trip lifecycle status. Transitions are monotonic; the
// terminal set is {COMPLETED, CANCELLED, EXPIRED}.
type Status string

const (
	StatusRequested       Status = "REQUESTED"
	StatusAccepted        Status = "ACCEPTED"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusDriverArriving  Status = "DRIVER_ARRIVING"
	StatusDriverArrived   Status = "DRIVER_ARRIVED"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusAwaitingTip     Status = "AWAITING_TIP"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// MaxRoutePoints caps the persisted route; longer traces are downsampled.
const MaxRoutePoints = 500

// MaxStops caps the ordered stop list on a trip.
const MaxStops = 2

// RatingWindow is how long after completion the rider can tip and rate.
const RatingWindow = 72 * time.Hour

// DriverInfo is the immutable driver snapshot captured at acceptance. It is
// embedded in the trip, never re-joined against the live driver record.
type DriverInfo struct {
	DriverID     uuid.UUID `json:"driver_id"`
	Name         string    `json:"name"`
	VehicleMake  string    `json:"vehicle_make"`
	VehicleModel string    `json:"vehicle_model"`
	VehicleColor string    `json:"vehicle_color"`
	LicensePlate string    `json:"license_plate"`
	Rating       float64   `json:"rating"`
}

// Stop is an intermediate waypoint between pickup and destination.
type Stop struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Trip is the central aggregate: one rider-to-destination carpool instance.
type Trip struct {
	ID         uuid.UUID   `json:"id"`
	RiderID    uuid.UUID   `json:"rider_id"`
	DriverID   *uuid.UUID  `json:"driver_id,omitempty"`
	DriverInfo *DriverInfo `json:"driver_info,omitempty"`
	Status     Status      `json:"status"`

	PickupLatitude       float64 `json:"pickup_latitude"`
	PickupLongitude      float64 `json:"pickup_longitude"`
	PickupAddress        string  `json:"pickup_address"`
	DestinationLatitude  float64 `json:"destination_latitude"`
	DestinationLongitude float64 `json:"destination_longitude"`
	DestinationAddress   string  `json:"destination_address"`
	Stops                []Stop  `json:"stops,omitempty"`

	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes int     `json:"duration_minutes"`

	Pricing            *pricing.Result `json:"pricing,omitempty"`
	LockedContribution *float64        `json:"locked_contribution,omitempty"`
	VehicleType        string          `json:"vehicle_type"`
	FinalCost          *float64        `json:"final_cost,omitempty"`
	Tip                *float64        `json:"tip,omitempty"`
	TotalWithTip       *float64        `json:"total_with_tip,omitempty"`

	PaymentFlow      payments.Flow   `json:"payment_flow"`
	PaymentStatus    payments.Status `json:"payment_status"`
	PaymentRef       *string         `json:"payment_ref,omitempty"`
	CustomerRef      *string         `json:"-"`
	EarningsCredited bool            `json:"earnings_credited"`

	DeclinedBy     []uuid.UUID `json:"declined_by,omitempty"`
	SearchRadiusKm float64     `json:"search_radius_km"`
	ResendCount    int         `json:"resend_count"`

	ActualDistanceMiles   *float64    `json:"actual_distance_miles,omitempty"`
	ActualDurationMinutes *int        `json:"actual_duration_minutes,omitempty"`
	Route                 []geo.Point `json:"route,omitempty"`
	DriverFinalLatitude   *float64    `json:"driver_final_latitude,omitempty"`
	DriverFinalLongitude  *float64    `json:"driver_final_longitude,omitempty"`

	RequestedAt    time.Time  `json:"requested_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt      *time.Time `json:"arrived_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	RatingDeadline *time.Time `json:"rating_deadline,omitempty"`

	CancelledBy        *string  `json:"cancelled_by,omitempty"`
	CancellationReason *string  `json:"cancellation_reason,omitempty"`
	ReasonType         *string  `json:"reason_type,omitempty"`
	CancellationFee    *float64 `json:"cancellation_fee,omitempty"`
	RefundAmount       *float64 `json:"refund_amount,omitempty"`
	DriverCompensation *float64 `json:"driver_compensation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeclinedByDriver reports whether the driver has permanently passed on this
// trip.
func (t *Trip) DeclinedByDriver(driverID uuid.UUID) bool {
	for _, id := range t.DeclinedBy {
		if id == driverID {
			return true
		}
	}
	return false
}

// PaymentState projects the trip's payment fields into the orchestrator's
// working state.
func (t *Trip) PaymentState() payments.State {
	st := payments.State{
		TripID: t.ID,
		Flow:   t.PaymentFlow,
		Status: t.PaymentStatus,
	}
	if t.PaymentRef != nil {
		st.GatewayRef = *t.PaymentRef
	}
	if t.CustomerRef != nil {
		st.CustomerRef = *t.CustomerRef
	}
	if t.LockedContribution != nil {
		st.AmountCents = payments.ToCents(*t.LockedContribution)
	}
	return st
}

// CreateTripRequest is the request body for requesting a trip.
type CreateTripRequest struct {
	PickupLatitude       float64 `json:"pickup_latitude" binding:"required"`
	PickupLongitude      float64 `json:"pickup_longitude" binding:"required"`
	PickupAddress        string  `json:"pickup_address" binding:"required"`
	DestinationLatitude  float64 `json:"destination_latitude" binding:"required"`
	DestinationLongitude float64 `json:"destination_longitude" binding:"required"`
	DestinationAddress   string  `json:"destination_address" binding:"required"`
	Stops                []Stop  `json:"stops,omitempty" binding:"omitempty,max=2"`

	DistanceMiles   float64 `json:"distance_miles" binding:"required,gt=0"`
	DurationMinutes int     `json:"duration_minutes" binding:"required,gt=0"`

	// OfferedContribution, when set, must fall inside the quoted band.
	OfferedContribution *float64 `json:"offered_contribution,omitempty" binding:"omitempty,gt=0"`
	VehicleType         string   `json:"vehicle_type" binding:"required,vehicletype"`

	PaymentFlow payments.Flow `json:"payment_flow,omitempty"`
	CustomerRef string        `json:"customer_ref,omitempty"`
}

// CancelTripRequest is the request body for cancelling a trip.
type CancelTripRequest struct {
	Reason     string `json:"reason" binding:"required"`
	ReasonType string `json:"reason_type" binding:"required"`
}

// CompleteTripRequest is the driver's completion payload.
type CompleteTripRequest struct {
	ActualDistanceMiles   float64     `json:"actual_distance_miles" binding:"required,gt=0"`
	ActualDurationMinutes int         `json:"actual_duration_minutes" binding:"required,gt=0"`
	FinalLatitude         float64     `json:"final_latitude" binding:"required"`
	FinalLongitude        float64     `json:"final_longitude" binding:"required"`
	Route                 []geo.Point `json:"route,omitempty"`
}

// TipRequest is the rider's tip payload.
type TipRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// ResendTripRequest optionally widens the search radius on a resend.
type ResendTripRequest struct {
	SearchRadiusKm *float64 `json:"search_radius_km,omitempty" binding:"omitempty,gt=0"`
}
