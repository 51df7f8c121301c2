package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errGatewayDown = errors.New("gateway timeout")

// fakeGateway scripts failures per operation: failures[n] errors are returned
// before the operation starts succeeding.
type fakeGateway struct {
	failures map[string]int
	calls    map[string]int

	refundedCents *int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (g *fakeGateway) step(op string) error {
	g.calls[op]++
	if g.failures[op] > 0 {
		g.failures[op]--
		return errGatewayDown
	}
	return nil
}

func (g *fakeGateway) Verify(_ context.Context, _ string) (string, error) {
	if err := g.step("verify"); err != nil {
		return "", err
	}
	return "si_ok", nil
}

func (g *fakeGateway) Authorize(_ context.Context, _ string, _ int64) (string, error) {
	if err := g.step("authorize"); err != nil {
		return "", err
	}
	return "pi_hold", nil
}

func (g *fakeGateway) Charge(_ context.Context, _ string, _ int64) (string, error) {
	if err := g.step("charge"); err != nil {
		return "", err
	}
	return "pi_charge", nil
}

func (g *fakeGateway) Capture(_ context.Context, _ string) error {
	return g.step("capture")
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountCents *int64) error {
	if err := g.step("refund"); err != nil {
		return err
	}
	g.refundedCents = amountCents
	return nil
}

func (g *fakeGateway) Release(_ context.Context, _ string) error {
	return g.step("release")
}

// newTestOrchestrator shrinks the backoff schedule so exhaustion tests run in
// milliseconds. The 3-attempt bound is unchanged.
func newTestOrchestrator(gw Gateway) *Orchestrator {
	o := NewOrchestrator(gw, nil)
	o.retry.InitialBackoff = time.Millisecond
	o.retry.MaxBackoff = 4 * time.Millisecond
	o.retry.RetryableChecker = nil
	return o
}

func verificationState(status Status) State {
	return State{
		TripID:      uuid.New(),
		Flow:        FlowVerification,
		Status:      status,
		CustomerRef: "cus_test",
		AmountCents: 1500,
	}
}

func holdState(status Status, ref string) State {
	return State{
		TripID:      uuid.New(),
		Flow:        FlowAuthorizationHold,
		Status:      status,
		GatewayRef:  ref,
		CustomerRef: "cus_test",
		AmountCents: 1500,
	}
}

func TestVerifyCard(t *testing.T) {
	t.Run("pending card is verified", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.VerifyCard(context.Background(), verificationState(StatusPending))

		assert.Equal(t, StatusVerified, res.Status)
		assert.Equal(t, "si_ok", res.GatewayRef)
		assert.Equal(t, 1, gw.calls["verify"])
	})

	t.Run("already verified is a no-op", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.VerifyCard(context.Background(), verificationState(StatusVerified))

		assert.Equal(t, StatusVerified, res.Status)
		assert.Zero(t, gw.calls["verify"])
	})

	t.Run("other flows pass through", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.VerifyCard(context.Background(), holdState(StatusPending, ""))

		assert.Equal(t, StatusPending, res.Status)
		assert.Zero(t, gw.calls["verify"])
	})
}

func TestAuthorizeHold(t *testing.T) {
	t.Run("places the hold", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.AuthorizeHold(context.Background(), holdState(StatusPending, ""))

		assert.Equal(t, StatusAuthorized, res.Status)
		assert.Equal(t, "pi_hold", res.GatewayRef)
	})

	t.Run("never double-authorizes", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.AuthorizeHold(context.Background(), holdState(StatusAuthorized, "pi_existing"))

		assert.Equal(t, StatusAuthorized, res.Status)
		assert.Equal(t, "pi_existing", res.GatewayRef)
		assert.Zero(t, gw.calls["authorize"])
	})

	t.Run("exhaustion flags AUTHORIZATION_FAILED", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failures["authorize"] = 10
		o := newTestOrchestrator(gw)

		res := o.AuthorizeHold(context.Background(), holdState(StatusPending, ""))

		assert.Equal(t, StatusAuthorizationFailed, res.Status)
		assert.True(t, res.Exhausted)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 3, gw.calls["authorize"])
	})
}

func TestSettleOnAccept(t *testing.T) {
	t.Run("verification flow charges the card", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), verificationState(StatusVerified))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Equal(t, "pi_charge", res.GatewayRef)
		assert.Equal(t, 1, gw.calls["charge"])
	})

	t.Run("hold flow captures the hold", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), holdState(StatusAuthorized, "pi_hold"))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Equal(t, "pi_hold", res.GatewayRef)
		assert.Equal(t, 1, gw.calls["capture"])
	})

	t.Run("already captured is never re-charged", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), verificationState(StatusCaptured))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Zero(t, gw.calls["charge"])
		assert.Zero(t, gw.calls["capture"])
	})

	t.Run("hold flow without a hold does nothing", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), holdState(StatusAuthorizationFailed, ""))

		assert.Equal(t, StatusAuthorizationFailed, res.Status)
		assert.Zero(t, gw.calls["capture"])
	})

	t.Run("transient failure recovers within the retry budget", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failures["charge"] = 2
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), verificationState(StatusVerified))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("exhaustion flags CHARGE_FAILED without an error", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failures["charge"] = 10
		o := newTestOrchestrator(gw)

		res := o.SettleOnAccept(context.Background(), verificationState(StatusVerified))

		assert.Equal(t, StatusChargeFailed, res.Status)
		assert.True(t, res.Exhausted)
		assert.Equal(t, 3, gw.calls["charge"])
	})
}

func TestCaptureOnComplete(t *testing.T) {
	t.Run("captures an unsettled hold", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.CaptureOnComplete(context.Background(), holdState(StatusAuthorized, "pi_hold"))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Equal(t, 1, gw.calls["capture"])
	})

	t.Run("idempotent on a settled payment", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.CaptureOnComplete(context.Background(), holdState(StatusCaptured, "pi_hold"))

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Zero(t, gw.calls["capture"])
	})

	t.Run("exhaustion flags CAPTURE_FAILED", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failures["capture"] = 10
		o := newTestOrchestrator(gw)

		res := o.CaptureOnComplete(context.Background(), holdState(StatusAuthorized, "pi_hold"))

		assert.Equal(t, StatusCaptureFailed, res.Status)
		assert.True(t, res.Exhausted)
	})
}

func TestRefundOnCancel(t *testing.T) {
	t.Run("partial refund of captured funds", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.RefundOnCancel(context.Background(), verificationState(StatusCaptured), 750)

		assert.Equal(t, StatusRefunded, res.Status)
		require.NotNil(t, gw.refundedCents)
		assert.Equal(t, int64(750), *gw.refundedCents)
	})

	t.Run("zero refund skips the gateway", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.RefundOnCancel(context.Background(), verificationState(StatusCaptured), 0)

		assert.Equal(t, StatusCaptured, res.Status)
		assert.Zero(t, gw.calls["refund"])
	})

	t.Run("uncaptured hold is released", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.RefundOnCancel(context.Background(), holdState(StatusAuthorized, "pi_hold"), 750)

		assert.Equal(t, StatusReleased, res.Status)
		assert.Equal(t, 1, gw.calls["release"])
		assert.Zero(t, gw.calls["refund"])
	})

	t.Run("already unwound is a no-op", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.RefundOnCancel(context.Background(), verificationState(StatusRefunded), 750)

		assert.Equal(t, StatusRefunded, res.Status)
		assert.Zero(t, gw.calls["refund"])
	})

	t.Run("nothing collected cancels cleanly", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.RefundOnCancel(context.Background(), verificationState(StatusVerified), 750)

		assert.Equal(t, StatusCancelled, res.Status)
		assert.Zero(t, gw.calls["refund"])
		assert.Zero(t, gw.calls["release"])
	})
}

func TestReleaseHold(t *testing.T) {
	t.Run("verification flow has nothing to release", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.ReleaseHold(context.Background(), verificationState(StatusVerified))

		assert.Equal(t, StatusVerified, res.Status)
		assert.Zero(t, gw.calls["release"])
	})

	t.Run("released hold is not re-released", func(t *testing.T) {
		gw := newFakeGateway()
		o := newTestOrchestrator(gw)

		res := o.ReleaseHold(context.Background(), holdState(StatusReleased, "pi_hold"))

		assert.Equal(t, StatusReleased, res.Status)
		assert.Zero(t, gw.calls["release"])
	})

	t.Run("exhaustion flags RELEASE_FAILED", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failures["release"] = 10
		o := newTestOrchestrator(gw)

		res := o.ReleaseHold(context.Background(), holdState(StatusAuthorized, "pi_hold"))

		assert.Equal(t, StatusReleaseFailed, res.Status)
		assert.True(t, res.Exhausted)
	})
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(1500), ToCents(15.00))
	assert.Equal(t, int64(1050), ToCents(10.499999999))
	assert.Equal(t, int64(0), ToCents(0))
}
