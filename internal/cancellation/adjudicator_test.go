package cancellation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjudicate_RiderCancelEnRoute(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorRider, "DRIVER_ARRIVING", ReasonRiderChangedMind, 20.00)

	assert.Equal(t, 10.00, out.Fee)
	assert.Equal(t, 10.00, out.Refund)
	assert.Equal(t, 10.00, out.Compensation)
}

func TestAdjudicate_RiderCancelBeforeAccept(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorRider, "ACCEPTED", ReasonRiderChangedMind, 20.00)

	assert.Equal(t, 0.00, out.Fee)
	assert.Equal(t, 20.00, out.Refund)
	assert.Equal(t, 0.00, out.Compensation)
}

func TestAdjudicate_DriverCitesRiderFault(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorDriver, "DRIVER_ARRIVED", ReasonRiderNoShow, 15.50)

	assert.Equal(t, 7.75, out.Fee)
	assert.Equal(t, 7.75, out.Refund)
	assert.Equal(t, 7.75, out.Compensation)
}

func TestAdjudicate_DriverFaultFullRefund(t *testing.T) {
	adj := NewAdjudicator()

	// ─── Driver-fault reasons refund in full at every status ───
	for _, status := range []string{"ACCEPTED", "DRIVER_ARRIVING", "DRIVER_ARRIVED"} {
		out := adj.Adjudicate(ActorDriver, status, ReasonDriverVehicle, 20.00)

		assert.Equal(t, 0.00, out.Fee, "status %s", status)
		assert.Equal(t, 20.00, out.Refund, "status %s", status)
		assert.Equal(t, 0.00, out.Compensation, "status %s", status)
	}
}

func TestAdjudicate_SystemCancelFullRefund(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorSystem, "REQUESTED", ReasonRequestTimeout, 12.34)

	assert.Equal(t, 0.00, out.Fee)
	assert.Equal(t, 12.34, out.Refund)
	assert.Equal(t, 0.00, out.Compensation)
}

func TestAdjudicate_RiderFaultReasonOverridesStatus(t *testing.T) {
	adj := NewAdjudicator()

	// Rider-fault reason charges the fee even when the status alone wouldn't
	out := adj.Adjudicate(ActorRider, "ACCEPTED", ReasonRiderAfterCommit, 20.00)

	assert.Equal(t, 10.00, out.Fee)
	assert.Equal(t, 10.00, out.Refund)
	assert.Equal(t, 10.00, out.Compensation)
}

func TestAdjudicate_ZeroLockedAmount(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorRider, "DRIVER_ARRIVING", ReasonRiderChangedMind, 0)

	assert.Equal(t, 0.00, out.Fee)
	assert.Equal(t, 0.00, out.Refund)
	assert.Equal(t, 0.00, out.Compensation)
}

func TestAdjudicate_NegativeLockedAmountClamped(t *testing.T) {
	adj := NewAdjudicator()

	out := adj.Adjudicate(ActorRider, "DRIVER_ARRIVED", ReasonRiderChangedMind, -5)

	assert.GreaterOrEqual(t, out.Refund, 0.00)
	assert.GreaterOrEqual(t, out.Fee, 0.00)
}

func TestAdjudicate_MoneyConservation(t *testing.T) {
	adj := NewAdjudicator()

	cases := []struct {
		actor  Actor
		status string
		reason ReasonType
		locked float64
	}{
		{ActorRider, "DRIVER_ARRIVING", ReasonRiderChangedMind, 20.00},
		{ActorRider, "DRIVER_ARRIVED", ReasonRiderWaitTooLong, 7.33},
		{ActorRider, "ACCEPTED", ReasonRiderFoundOther, 19.99},
		{ActorDriver, "DRIVER_ARRIVED", ReasonRiderNoShow, 13.01},
		{ActorDriver, "ACCEPTED", ReasonDriverEmergency, 42.00},
		{ActorSystem, "REQUESTED", ReasonNoDriverFound, 8.88},
		{ActorRider, "DRIVER_ARRIVING", ReasonRiderChangedMind, 0.01},
	}

	for _, tc := range cases {
		out := adj.Adjudicate(tc.actor, tc.status, tc.reason, tc.locked)

		// Fee and refund always reconstruct the locked amount
		assert.InDelta(t, tc.locked, out.Fee+out.Refund, 0.001,
			"%s/%s/%s locked=%v", tc.actor, tc.status, tc.reason, tc.locked)
		assert.LessOrEqual(t, out.Fee, tc.locked)
		assert.GreaterOrEqual(t, out.Refund, 0.00)

		// Compensation is either nothing or the whole fee
		if out.Compensation != 0 {
			assert.Equal(t, out.Fee, out.Compensation)
		}
	}
}
