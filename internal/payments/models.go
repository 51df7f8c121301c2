package payments

import "github.com/google/uuid"

// Flow tags which settlement path a trip uses. Verification is the canonical
// flow (card validated up front, charged at accept); authorization-hold is
// kept as the compatibility path for clients that still hold funds at
// request time.
type Flow string

const (
	FlowNone              Flow = "none"
	FlowVerification      Flow = "verification"
	FlowAuthorizationHold Flow = "authorization_hold"
)

// Status is the trip-level payment state.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusVerified            Status = "VERIFIED"
	StatusAuthorized          Status = "AUTHORIZED"
	StatusAuthorizationFailed Status = "AUTHORIZATION_FAILED"
	StatusCaptured            Status = "CAPTURED"
	StatusCaptureFailed       Status = "CAPTURE_FAILED"
	StatusChargeFailed        Status = "CHARGE_FAILED"
	StatusRefunded            Status = "REFUNDED"
	StatusRefundFailed        Status = "REFUND_FAILED"
	StatusReleased            Status = "RELEASED"
	StatusReleaseFailed       Status = "RELEASE_FAILED"
	StatusCancelled           Status = "CANCELLED"
)

// DisplayableStatuses are payment states under which a REQUESTED trip may be
// shown to drivers. Unpaid-and-abandoned states are excluded.
var DisplayableStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusVerified:   {},
	StatusAuthorized: {},
}

// Displayable reports whether a trip in this payment state belongs in the
// driver feed.
func Displayable(s Status) bool {
	_, ok := DisplayableStatuses[s]
	return ok
}

// Settled reports whether funds have been collected.
func Settled(s Status) bool {
	return s == StatusCaptured
}

// State is the payment snapshot the orchestrator acts on. It is read from the
// trip record immediately before each operation so decisions stay idempotent.
type State struct {
	TripID      uuid.UUID
	Flow        Flow
	Status      Status
	GatewayRef  string
	CustomerRef string
	AmountCents int64
}

// Result is the typed outcome of an orchestrated operation. Exhausted retries
// surface as a *_FAILED status, never as a lifecycle-blocking error.
type Result struct {
	Status     Status
	GatewayRef string
	Attempts   int
	Exhausted  bool
}

// Changed reports whether the operation moved the payment state.
func (r Result) Changed(prev Status) bool {
	return r.Status != prev
}
