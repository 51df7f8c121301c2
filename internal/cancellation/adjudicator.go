package cancellation

import "math"

// Statuses where the driver is already en route to the pickup. A rider
// cancelling here owes the late-cancellation fee even without a fault reason.
var enRouteStatuses = map[string]struct{}{
	"DRIVER_ARRIVING": {},
	"DRIVER_ARRIVED":  {},
}

// Adjudicator computes the fee/refund/compensation split for a cancellation.
// Pure and deterministic: no I/O, no clock.
type Adjudicator struct {
	feeRate float64
}

// NewAdjudicator creates an adjudicator with the standard 50% late fee.
func NewAdjudicator() *Adjudicator {
	return &Adjudicator{feeRate: 0.5}
}

// Adjudicate decides the split for a cancellation of a trip whose contribution
// is locked at lockedAmount.
//
// Fee cases (fee goes to the driver):
//   - rider cancels while the driver is en route
//   - any rider-fault reason (no-show, unresponsive, rider-requested-after-commit)
//   - driver cancels citing rider fault
//
// Everything else, including driver-fault reasons and cancellation before any
// driver commitment, refunds in full.
func (a *Adjudicator) Adjudicate(cancelledBy Actor, currentStatus string, reason ReasonType, lockedAmount float64) Outcome {
	if lockedAmount < 0 {
		lockedAmount = 0
	}

	if a.chargesFee(cancelledBy, currentStatus, reason) {
		fee := round2(lockedAmount * a.feeRate)
		if fee > lockedAmount {
			fee = lockedAmount
		}
		refund := round2(lockedAmount - fee)
		if refund < 0 {
			refund = 0
		}
		return Outcome{
			Fee:          fee,
			Refund:       refund,
			Compensation: fee,
			Explanation:  a.explain(cancelledBy, reason),
		}
	}

	return Outcome{
		Fee:          0,
		Refund:       round2(lockedAmount),
		Compensation: 0,
		Explanation:  "full refund, no cancellation fee",
	}
}

func (a *Adjudicator) chargesFee(cancelledBy Actor, currentStatus string, reason ReasonType) bool {
	if _, riderFault := riderFaultReasons[reason]; riderFault {
		return true
	}

	if cancelledBy == ActorRider {
		_, enRoute := enRouteStatuses[currentStatus]
		return enRoute
	}

	// Driver cancellations only charge when the cited reason is rider fault,
	// which the riderFaultReasons check above already covered. Driver-fault
	// and system cancellations refund in full.
	if _, driverFault := driverFaultReasons[reason]; driverFault {
		return false
	}
	return false
}

func (a *Adjudicator) explain(cancelledBy Actor, reason ReasonType) string {
	if _, riderFault := riderFaultReasons[reason]; riderFault {
		return "late cancellation fee charged: rider fault (" + string(reason) + ")"
	}
	if cancelledBy == ActorRider {
		return "late cancellation fee charged: driver already en route"
	}
	return "late cancellation fee charged"
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
