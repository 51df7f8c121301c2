package cancellation

// Actor represents who cancelled the trip
type Actor string

const (
	ActorRider  Actor = "rider"
	ActorDriver Actor = "driver"
	ActorSystem Actor = "system"
)

// ReasonType classifies the cancellation for fault adjudication
type ReasonType string

// Rider-selected reasons
const (
	ReasonRiderChangedMind ReasonType = "changed_mind"
	ReasonRiderWaitTooLong ReasonType = "wait_too_long"
	ReasonRiderFoundOther  ReasonType = "found_other_ride"
	ReasonRiderEmergency   ReasonType = "rider_emergency"
	ReasonRiderAfterCommit ReasonType = "rider_requested_after_commit"
	ReasonRiderOther       ReasonType = "rider_other"
)

// Driver-selected reasons
const (
	ReasonRiderNoShow       ReasonType = "rider_no_show"
	ReasonRiderUnresponsive ReasonType = "rider_unresponsive"
	ReasonDriverVehicle     ReasonType = "vehicle_issue"
	ReasonDriverEmergency   ReasonType = "driver_emergency"
	ReasonDriverOther       ReasonType = "driver_other"
)

// System reasons
const (
	ReasonNoDriverFound  ReasonType = "no_driver_found"
	ReasonRequestTimeout ReasonType = "request_timeout"
)

// riderFaultReasons charge the rider-side 50% fee regardless of trip status.
var riderFaultReasons = map[ReasonType]struct{}{
	ReasonRiderNoShow:       {},
	ReasonRiderUnresponsive: {},
	ReasonRiderAfterCommit:  {},
}

// driverFaultReasons always refund the rider in full.
var driverFaultReasons = map[ReasonType]struct{}{
	ReasonDriverVehicle:   {},
	ReasonDriverEmergency: {},
	ReasonDriverOther:     {},
}

// Outcome is the adjudicated money split for a cancellation. The invariant
// Refund + Fee == locked amount holds for every outcome, and Compensation is
// either zero or exactly the fee.
type Outcome struct {
	Fee          float64 `json:"cancellation_fee"`
	Refund       float64 `json:"refund_amount"`
	Compensation float64 `json:"driver_compensation"`
	Explanation  string  `json:"explanation"`
}

// ReasonOption is a selectable cancellation reason for one role.
type ReasonOption struct {
	Code  ReasonType `json:"code"`
	Label string     `json:"label"`
}

// RiderReasons lists reasons a rider may select.
func RiderReasons() []ReasonOption {
	return []ReasonOption{
		{ReasonRiderChangedMind, "Changed my mind"},
		{ReasonRiderWaitTooLong, "Waited too long"},
		{ReasonRiderFoundOther, "Found another ride"},
		{ReasonRiderEmergency, "Emergency"},
		{ReasonRiderOther, "Other"},
	}
}

// DriverReasons lists reasons a driver may select.
func DriverReasons() []ReasonOption {
	return []ReasonOption{
		{ReasonRiderNoShow, "Rider did not show up"},
		{ReasonRiderUnresponsive, "Rider unresponsive"},
		{ReasonDriverVehicle, "Vehicle issue"},
		{ReasonDriverEmergency, "Emergency"},
		{ReasonDriverOther, "Other"},
	}
}
