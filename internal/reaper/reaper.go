package reaper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/eventbus"
	"github.com/poolup/carpool/pkg/logger"
	"go.uber.org/zap"
)

// TripStore is the slice of trip persistence the reaper needs.
type TripStore interface {
	ListStaleRequested(ctx context.Context, olderThan time.Time) ([]*trips.Trip, error)
	ExpireTrip(ctx context.Context, tripID uuid.UUID) (bool, error)
}

// HoldReleaser releases an authorization hold after its trip expires.
type HoldReleaser interface {
	ReleaseHold(ctx context.Context, st payments.State) payments.Result
}

// TipFinalizer closes out lapsed tip windows during the same sweep.
type TipFinalizer interface {
	FinalizeLapsedTipWindows(ctx context.Context) (int, error)
}

// Reaper sweeps REQUESTED trips that nobody accepted. The expiry write is
// conditional on the trip still being unassigned, so a concurrent accept that
// wins the race keeps both the trip and its hold.
type Reaper struct {
	store     TripStore
	releaser  HoldReleaser
	finalizer TipFinalizer
	bus       trips.EventPublisher
	cfg       config.ReaperConfig
}

// New creates a reaper.
func New(store TripStore, releaser HoldReleaser, finalizer TipFinalizer, bus trips.EventPublisher, cfg config.ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	return &Reaper{store: store, releaser: releaser, finalizer: finalizer, bus: bus, cfg: cfg}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	logger.Get().Info("stale trip reaper started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("max_age", r.cfg.MaxAge),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Get().Info("stale trip reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				logger.Get().Error("reaper sweep failed", zap.Error(err))
			}
			if r.finalizer != nil {
				if n, err := r.finalizer.FinalizeLapsedTipWindows(ctx); err != nil {
					logger.Get().Error("lapsed tip finalization failed", zap.Error(err))
				} else if n > 0 {
					logger.Get().Info("lapsed tip windows finalized", zap.Int("count", n))
				}
			}
		}
	}
}

// Sweep expires every REQUESTED trip older than MaxAge and returns the count
// actually expired. Expiry happens before hold release: if the conditional
// write loses to a concurrent accept, the hold stays with the accepted trip.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.cfg.MaxAge)
	stale, err := r.store.ListStaleRequested(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, trip := range stale {
		ok, err := r.store.ExpireTrip(ctx, trip.ID)
		if err != nil {
			logger.Get().Error("failed to expire trip",
				zap.String("trip_id", trip.ID.String()), zap.Error(err))
			continue
		}
		if !ok {
			// Lost the race to an accept between list and write
			continue
		}
		expired++

		r.releaseHold(ctx, trip)

		r.publishExpired(ctx, trip)
	}

	if expired > 0 {
		logger.Get().Info("stale trips expired", zap.Int("count", expired))
	}
	return expired, nil
}

// releaseHold gives back the rider's authorization hold. Verification-flow
// trips have no hold to release; a flagged release failure is logged and left
// for the gateway's own expiry.
func (r *Reaper) releaseHold(ctx context.Context, trip *trips.Trip) {
	if trip.PaymentFlow != payments.FlowAuthorizationHold {
		return
	}
	if trip.PaymentStatus != payments.StatusAuthorized {
		return
	}

	res := r.releaser.ReleaseHold(ctx, trip.PaymentState())
	if res.Status == payments.StatusReleaseFailed {
		logger.Get().Warn("failed to release hold for expired trip",
			zap.String("trip_id", trip.ID.String()),
			zap.Int("attempts", res.Attempts),
		)
	}
}

func (r *Reaper) publishExpired(ctx context.Context, trip *trips.Trip) {
	if r.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(eventbus.SubjectTripExpired, "reaper", eventbus.TripExpiredData{
		TripID:      trip.ID,
		RiderID:     trip.RiderID,
		RequestedAt: trip.RequestedAt,
		ExpiredAt:   time.Now(),
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, eventbus.SubjectTripExpired, event); err != nil {
		logger.Get().Warn("failed to publish trip expiry",
			zap.String("trip_id", trip.ID.String()), zap.Error(err))
	}
}
