package payments

import (
	"context"
	"math"
	"time"

	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/logger"
	"github.com/poolup/carpool/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_operations_total",
	Help: "Payment gateway operations by kind and outcome",
}, []string{"operation", "outcome"})

// Orchestrator drives gateway operations with bounded retry and reconciles
// outcomes into payment state. It never blocks a trip lifecycle operation:
// retry exhaustion degrades to a *_FAILED status for out-of-band settlement.
type Orchestrator struct {
	gateway Gateway
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewOrchestrator creates an orchestrator around the given gateway.
func NewOrchestrator(gateway Gateway, breaker *resilience.CircuitBreaker) *Orchestrator {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "payment-gateway",
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
		}, func(ctx context.Context, err error) (interface{}, error) {
			logger.Get().Error("payment gateway breaker open", zap.Error(err))
			return nil, common.NewServiceUnavailableError("payments are temporarily unavailable, please try again")
		})
	}

	retryCfg := resilience.GatewayRetryConfig()
	retryCfg.RetryableChecker = isStripeRetryable

	return &Orchestrator{gateway: gateway, breaker: breaker, retry: retryCfg}
}

// VerifyCard validates the rider's payment method at request time
// (verification flow). Nothing is held or charged.
func (o *Orchestrator) VerifyCard(ctx context.Context, st State) Result {
	if st.Flow != FlowVerification {
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}
	if st.Status != StatusPending {
		// Already verified (or beyond); nothing to do
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}

	outcome := o.attempt(ctx, "payment_verify", func(ctx context.Context) (interface{}, error) {
		return o.gateway.Verify(ctx, st.CustomerRef)
	})
	if !outcome.OK() {
		return o.failed(st, outcome, StatusPending, "verify")
	}

	operationsTotal.WithLabelValues("verify", "success").Inc()
	return Result{Status: StatusVerified, GatewayRef: outcome.Value.(string), Attempts: outcome.Attempts}
}

// AuthorizeHold places the hold at request time (authorization-hold flow).
func (o *Orchestrator) AuthorizeHold(ctx context.Context, st State) Result {
	if st.Flow != FlowAuthorizationHold {
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}
	if st.Status == StatusAuthorized || st.Status == StatusCaptured {
		// Hold already placed; never double-authorize
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}

	outcome := o.attempt(ctx, "payment_authorize", func(ctx context.Context) (interface{}, error) {
		return o.gateway.Authorize(ctx, st.CustomerRef, st.AmountCents)
	})
	if !outcome.OK() {
		return o.failed(st, outcome, StatusAuthorizationFailed, "authorize")
	}

	operationsTotal.WithLabelValues("authorize", "success").Inc()
	return Result{Status: StatusAuthorized, GatewayRef: outcome.Value.(string), Attempts: outcome.Attempts}
}

// SettleOnAccept finalizes payment when a driver wins the trip: charge for the
// verification flow, capture the existing hold for the authorization-hold
// flow. Idempotent: an already CAPTURED payment is left untouched.
func (o *Orchestrator) SettleOnAccept(ctx context.Context, st State) Result {
	if st.Status == StatusCaptured {
		return Result{Status: StatusCaptured, GatewayRef: st.GatewayRef}
	}

	switch st.Flow {
	case FlowVerification:
		outcome := o.attempt(ctx, "payment_charge", func(ctx context.Context) (interface{}, error) {
			return o.gateway.Charge(ctx, st.CustomerRef, st.AmountCents)
		})
		if !outcome.OK() {
			return o.failed(st, outcome, StatusChargeFailed, "charge")
		}
		operationsTotal.WithLabelValues("charge", "success").Inc()
		return Result{Status: StatusCaptured, GatewayRef: outcome.Value.(string), Attempts: outcome.Attempts}

	case FlowAuthorizationHold:
		if st.Status != StatusAuthorized {
			// No hold to capture yet; the accept path parks the trip in
			// AWAITING_PAYMENT until one exists
			return Result{Status: st.Status, GatewayRef: st.GatewayRef}
		}
		outcome := o.attempt(ctx, "payment_capture", func(ctx context.Context) (interface{}, error) {
			return nil, o.gateway.Capture(ctx, st.GatewayRef)
		})
		if !outcome.OK() {
			return o.failed(st, outcome, StatusCaptureFailed, "capture")
		}
		operationsTotal.WithLabelValues("capture", "success").Inc()
		return Result{Status: StatusCaptured, GatewayRef: st.GatewayRef, Attempts: outcome.Attempts}
	}

	return Result{Status: st.Status, GatewayRef: st.GatewayRef}
}

// CaptureOnComplete collects the fare at trip completion when it was not
// settled earlier. Never re-captures.
func (o *Orchestrator) CaptureOnComplete(ctx context.Context, st State) Result {
	if st.Status == StatusCaptured {
		return Result{Status: StatusCaptured, GatewayRef: st.GatewayRef}
	}
	return o.SettleOnAccept(ctx, st)
}

// RefundOnCancel unwinds whatever was collected or held. Captured funds are
// refunded up to refundCents; an uncaptured hold is released in full
// (adjudicated fees on the hold path are charged out-of-band).
func (o *Orchestrator) RefundOnCancel(ctx context.Context, st State, refundCents int64) Result {
	switch st.Status {
	case StatusCaptured:
		if refundCents <= 0 {
			// Fee consumed the full amount; nothing to return
			return Result{Status: StatusCaptured, GatewayRef: st.GatewayRef}
		}
		amount := refundCents
		outcome := o.attempt(ctx, "payment_refund", func(ctx context.Context) (interface{}, error) {
			return nil, o.gateway.Refund(ctx, st.GatewayRef, &amount)
		})
		if !outcome.OK() {
			return o.failed(st, outcome, StatusRefundFailed, "refund")
		}
		operationsTotal.WithLabelValues("refund", "success").Inc()
		return Result{Status: StatusRefunded, GatewayRef: st.GatewayRef, Attempts: outcome.Attempts}

	case StatusAuthorized:
		return o.ReleaseHold(ctx, st)

	case StatusRefunded, StatusReleased:
		// Already unwound
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}

	// Nothing was collected (verification flow before accept, or no payment)
	return Result{Status: StatusCancelled, GatewayRef: st.GatewayRef}
}

// ReleaseHold cancels an uncaptured hold. Safe to call on trips without one:
// verification-flow trips and already-released holds no-op.
func (o *Orchestrator) ReleaseHold(ctx context.Context, st State) Result {
	if st.Flow != FlowAuthorizationHold || st.Status != StatusAuthorized {
		return Result{Status: st.Status, GatewayRef: st.GatewayRef}
	}

	outcome := o.attempt(ctx, "payment_release", func(ctx context.Context) (interface{}, error) {
		return nil, o.gateway.Release(ctx, st.GatewayRef)
	})
	if !outcome.OK() {
		return o.failed(st, outcome, StatusReleaseFailed, "release")
	}
	operationsTotal.WithLabelValues("release", "success").Inc()
	return Result{Status: StatusReleased, GatewayRef: st.GatewayRef, Attempts: outcome.Attempts}
}

func (o *Orchestrator) attempt(ctx context.Context, name string, op resilience.Operation) resilience.Outcome {
	return resilience.Try(ctx, o.retry, func(ctx context.Context) (interface{}, error) {
		return o.breaker.Execute(ctx, op)
	}, name)
}

// failed maps a retry failure onto payment state. Exhaustion degrades to the
// flagged status; a non-retryable rejection keeps the prior status so the
// caller can surface it.
func (o *Orchestrator) failed(st State, outcome resilience.Outcome, flagged Status, op string) Result {
	operationsTotal.WithLabelValues(op, "failure").Inc()
	logger.Get().Warn("payment operation failed",
		zap.String("operation", op),
		zap.String("trip_id", st.TripID.String()),
		zap.Int("attempts", outcome.Attempts),
		zap.Bool("exhausted", outcome.Exhausted),
		zap.Error(outcome.Err),
	)

	status := flagged
	if !outcome.Exhausted && flagged == StatusPending {
		status = st.Status
	}
	return Result{Status: status, GatewayRef: st.GatewayRef, Attempts: outcome.Attempts, Exhausted: outcome.Exhausted}
}

// ToCents converts a 2dp currency amount to integer cents.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
