package trips

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/cancellation"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/pricing"
	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/eventbus"
	"github.com/poolup/carpool/pkg/geo"
	"github.com/poolup/carpool/pkg/logger"
	"github.com/poolup/carpool/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxTipMultiple caps the tip at 200% of the final cost.
const maxTipMultiple = 2.0

// ZoneSource serves the zone snapshot quotes are computed against.
type ZoneSource interface {
	Zones() []pricing.Zone
}

// Service owns the trip lifecycle: every status transition, the pricing
// lock, and the payment reconciliation around accept, complete, and cancel.
type Service struct {
	repo        RepositoryInterface
	engine      *pricing.Engine
	zones       ZoneSource
	orchestrator PaymentOrchestrator
	adjudicator *cancellation.Adjudicator
	drivers     DriverDirectory
	bus         EventPublisher

	defaultSearchRadiusKm float64
}

// NewService creates a new trips service.
func NewService(
	repo RepositoryInterface,
	engine *pricing.Engine,
	zones ZoneSource,
	orchestrator PaymentOrchestrator,
	adjudicator *cancellation.Adjudicator,
	drivers DriverDirectory,
	bus EventPublisher,
	defaultSearchRadiusKm float64,
) *Service {
	return &Service{
		repo:                  repo,
		engine:                engine,
		zones:                 zones,
		orchestrator:          orchestrator,
		adjudicator:           adjudicator,
		drivers:               drivers,
		bus:                   bus,
		defaultSearchRadiusKm: defaultSearchRadiusKm,
	}
}

// Quote computes a standalone contribution quote without creating a trip.
func (s *Service) Quote(ctx context.Context, input pricing.QuoteInput) (*pricing.Result, error) {
	return s.engine.Quote(s.zones.Zones(), input)
}

// RequestTrip prices and creates a new REQUESTED trip. The contribution is
// locked at creation: later pricing recomputation never changes it.
func (s *Service) RequestTrip(ctx context.Context, riderID uuid.UUID, req *CreateTripRequest) (*Trip, error) {
	ctx, span := tracing.StartSpan(ctx, "trips-service", "RequestTrip")
	defer span.End()

	tracing.AddSpanAttributes(ctx,
		attribute.String("rider_id", riderID.String()),
		attribute.Float64("distance_miles", req.DistanceMiles),
	)

	if len(req.Stops) > MaxStops {
		return nil, common.NewValidationError(fmt.Sprintf("at most %d stops are allowed", MaxStops))
	}

	now := time.Now()
	quote, err := s.engine.Quote(s.zones.Zones(), pricing.QuoteInput{
		PickupLatitude:       req.PickupLatitude,
		PickupLongitude:      req.PickupLongitude,
		DestinationLatitude:  req.DestinationLatitude,
		DestinationLongitude: req.DestinationLongitude,
		DistanceMiles:        req.DistanceMiles,
		DurationMinutes:      req.DurationMinutes,
		RequestTime:          now,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	contribution := quote.SuggestedContribution
	if req.OfferedContribution != nil {
		if !s.engine.WithinBand(quote, *req.OfferedContribution) {
			return nil, common.NewValidationError(fmt.Sprintf(
				"offered contribution must be between %.2f and %.2f",
				quote.MinContribution, quote.MaxContribution,
			))
		}
		contribution = *req.OfferedContribution
	}

	flow := req.PaymentFlow
	if flow == "" {
		flow = payments.FlowNone
	}

	trip := &Trip{
		ID:                   uuid.New(),
		RiderID:              riderID,
		Status:               StatusRequested,
		PickupLatitude:       req.PickupLatitude,
		PickupLongitude:      req.PickupLongitude,
		PickupAddress:        req.PickupAddress,
		DestinationLatitude:  req.DestinationLatitude,
		DestinationLongitude: req.DestinationLongitude,
		DestinationAddress:   req.DestinationAddress,
		Stops:                req.Stops,
		DistanceMiles:        req.DistanceMiles,
		DurationMinutes:      req.DurationMinutes,
		Pricing:              quote,
		LockedContribution:   &contribution,
		VehicleType:          req.VehicleType,
		PaymentFlow:          flow,
		PaymentStatus:        payments.StatusPending,
		SearchRadiusKm:       s.defaultSearchRadiusKm,
		RequestedAt:          now,
	}
	if req.CustomerRef != "" {
		trip.CustomerRef = &req.CustomerRef
	}

	// Up-front payment step per flow. A flagged failure never blocks the
	// request; the trip just isn't displayable until payment recovers.
	switch flow {
	case payments.FlowVerification:
		res := s.orchestrator.VerifyCard(ctx, trip.PaymentState())
		s.applyPaymentResult(trip, res)
	case payments.FlowAuthorizationHold:
		res := s.orchestrator.AuthorizeHold(ctx, trip.PaymentState())
		s.applyPaymentResult(trip, res)
	}

	if err := s.repo.CreateTrip(ctx, trip); err != nil {
		tracing.RecordError(ctx, err)
		return nil, common.NewInternalServerError("failed to create trip request")
	}

	if trip.PaymentStatus == payments.StatusAuthorized {
		s.publish(ctx, eventbus.SubjectPaymentAuthorized, eventbus.PaymentAuthorizedData{
			TripID:       trip.ID,
			RiderID:      riderID,
			Amount:       derefAmount(trip.LockedContribution),
			AuthorizedAt: time.Now(),
		})
	}

	s.publish(ctx, eventbus.SubjectTripRequested, eventbus.TripRequestedData{
		TripID:                trip.ID,
		RiderID:               riderID,
		PickupLatitude:        trip.PickupLatitude,
		PickupLongitude:       trip.PickupLongitude,
		PickupAddress:         trip.PickupAddress,
		DropoffLatitude:       trip.DestinationLatitude,
		DropoffLongitude:      trip.DestinationLongitude,
		DropoffAddress:        trip.DestinationAddress,
		SuggestedContribution: quote.SuggestedContribution,
		OfferedContribution:   contribution,
		RequestedAt:           trip.RequestedAt,
	})

	return trip, nil
}

// GetTrip retrieves a trip by ID.
func (s *Service) GetTrip(ctx context.Context, tripID uuid.UUID) (*Trip, error) {
	return s.repo.GetTripByID(ctx, tripID)
}

// AcceptTrip arbitrates a driver's accept. The conditional write decides the
// winner; every loser gets AlreadyAccepted. On success the driver snapshot is
// captured and payment is settled or parked per flow.
func (s *Service) AcceptTrip(ctx context.Context, tripID, driverID uuid.UUID) (*Trip, error) {
	ctx, span := tracing.StartSpan(ctx, "trips-service", "AcceptTrip")
	defer span.End()

	tracing.AddSpanAttributes(ctx,
		attribute.String("trip_id", tripID.String()),
		attribute.String("driver_id", driverID.String()),
	)

	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if trip.DeclinedByDriver(driverID) {
		return nil, common.NewForbiddenError("you have declined this trip")
	}

	info, err := s.drivers.GetDriverInfo(ctx, driverID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, common.NewInternalServerError("failed to load driver profile")
	}

	ok, err := s.repo.AtomicAcceptTrip(ctx, tripID, driverID, info, StatusAccepted)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, common.NewInternalServerError("failed to accept trip")
	}
	if !ok {
		return nil, common.NewAlreadyAcceptedError()
	}

	trip.Status = StatusAccepted
	trip.DriverID = &driverID
	trip.DriverInfo = info
	now := time.Now()
	trip.AcceptedAt = &now

	next := s.settleAfterAccept(ctx, trip)
	if err := s.repo.UpdateStatus(ctx, tripID, next); err != nil {
		tracing.RecordError(ctx, err)
		return nil, common.NewInternalServerError("failed to advance trip")
	}
	trip.Status = next

	s.publish(ctx, eventbus.SubjectTripAccepted, eventbus.TripAcceptedData{
		TripID:             trip.ID,
		RiderID:            trip.RiderID,
		DriverID:           driverID,
		LockedContribution: derefAmount(trip.LockedContribution),
		AcceptedAt:         now,
	})
	if next == StatusDriverArriving {
		s.publish(ctx, eventbus.SubjectTripDriverArriving, eventbus.TripDriverArrivingData{
			TripID:     trip.ID,
			RiderID:    trip.RiderID,
			DriverID:   driverID,
			ArrivingAt: time.Now(),
		})
	}

	return trip, nil
}

// settleAfterAccept runs the flow-specific settlement and picks the next
// status: DRIVER_ARRIVING when payment is settled (or flagged failed, which
// never blocks), AWAITING_PAYMENT when no payment exists to settle yet.
func (s *Service) settleAfterAccept(ctx context.Context, trip *Trip) Status {
	// No payment taken yet: the driver waits until the rider confirms.
	if trip.PaymentFlow == payments.FlowNone {
		return StatusAwaitingPayment
	}

	// Verification flow with an unverified card, or a hold flow whose hold
	// was never placed: the rider has to finish payment before pickup.
	st := trip.PaymentState()
	if (trip.PaymentFlow == payments.FlowVerification && st.Status == payments.StatusPending) ||
		(trip.PaymentFlow == payments.FlowAuthorizationHold && st.Status != payments.StatusAuthorized && st.Status != payments.StatusCaptured) {
		return StatusAwaitingPayment
	}

	res := s.orchestrator.SettleOnAccept(ctx, st)
	s.recordPaymentResult(ctx, trip, res)
	return StatusDriverArriving
}

// ConfirmPayment completes the deferred payment for a trip parked in
// AWAITING_PAYMENT and releases the driver to head for pickup.
func (s *Service) ConfirmPayment(ctx context.Context, tripID, riderID uuid.UUID) (*Trip, error) {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.RiderID != riderID {
		return nil, common.NewForbiddenError("only the rider can confirm payment")
	}
	if trip.Status != StatusAwaitingPayment {
		return nil, common.NewBadRequestError("trip is not awaiting payment", common.ErrInvalidTransition)
	}

	// FlowNone trips have nothing to run through the gateway: confirmation
	// itself is the payment arrangement, and the driver is released.
	if trip.PaymentFlow != payments.FlowNone {
		st := trip.PaymentState()
		if trip.PaymentFlow == payments.FlowAuthorizationHold && st.Status != payments.StatusAuthorized {
			res := s.orchestrator.AuthorizeHold(ctx, st)
			s.recordPaymentResult(ctx, trip, res)
			st = trip.PaymentState()
		}

		res := s.orchestrator.SettleOnAccept(ctx, st)
		s.recordPaymentResult(ctx, trip, res)

		if res.Status != payments.StatusCaptured {
			return nil, common.NewBadRequestError("payment could not be completed", common.ErrPaymentRetryExhausted)
		}
	}

	if err := s.repo.UpdateStatus(ctx, tripID, StatusDriverArriving); err != nil {
		return nil, common.NewInternalServerError("failed to advance trip")
	}
	trip.Status = StatusDriverArriving

	s.publish(ctx, eventbus.SubjectTripDriverArriving, eventbus.TripDriverArrivingData{
		TripID:     tripID,
		RiderID:    trip.RiderID,
		DriverID:   derefUUID(trip.DriverID),
		ArrivingAt: time.Now(),
	})
	return trip, nil
}

// DeclineTrip records a driver's explicit pass. Permanent for this trip; a
// resend never clears it.
func (s *Service) DeclineTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Status != StatusRequested {
		return common.NewBadRequestError("trip is no longer open", common.ErrInvalidTransition)
	}

	if err := s.repo.AppendDecline(ctx, tripID, driverID); err != nil {
		return common.NewInternalServerError("failed to decline trip")
	}

	s.publish(ctx, eventbus.SubjectTripDeclined, eventbus.TripDeclinedData{
		TripID:     tripID,
		DriverID:   driverID,
		DeclinedAt: time.Now(),
	})
	return nil
}

// MarkArrived records the driver's arrival at the pickup point.
func (s *Service) MarkArrived(ctx context.Context, tripID, driverID uuid.UUID) (*Trip, error) {
	trip, err := s.driverStatusPush(ctx, tripID, driverID, StatusDriverArriving, StatusDriverArrived)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectTripDriverArrived, eventbus.TripDriverArrivedData{
		TripID:    tripID,
		RiderID:   trip.RiderID,
		DriverID:  driverID,
		ArrivedAt: time.Now(),
	})
	return trip, nil
}

// StartTrip transitions the trip to IN_PROGRESS when the rider is aboard.
func (s *Service) StartTrip(ctx context.Context, tripID, driverID uuid.UUID) (*Trip, error) {
	trip, err := s.driverStatusPush(ctx, tripID, driverID, StatusDriverArrived, StatusInProgress)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventbus.SubjectTripStarted, eventbus.TripStartedData{
		TripID:    tripID,
		RiderID:   trip.RiderID,
		DriverID:  driverID,
		StartedAt: time.Now(),
	})
	return trip, nil
}

func (s *Service) driverStatusPush(ctx context.Context, tripID, driverID uuid.UUID, from, to Status) (*Trip, error) {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID == nil || *trip.DriverID != driverID {
		return nil, common.NewForbiddenError("not the assigned driver")
	}
	if trip.Status != from {
		return nil, common.NewBadRequestError(
			fmt.Sprintf("trip is %s, expected %s", trip.Status, from), common.ErrInvalidTransition)
	}

	if err := s.repo.UpdateStatus(ctx, tripID, to); err != nil {
		return nil, common.NewInternalServerError("failed to update trip status")
	}
	trip.Status = to
	now := time.Now()
	switch to {
	case StatusDriverArrived:
		trip.ArrivedAt = &now
	case StatusInProgress:
		trip.StartedAt = &now
	}
	return trip, nil
}

// CompleteTrip records the ride's actuals and opens the tip window. The
// traveled route is downsampled before persisting; payment capture is
// attempted but a flagged failure never holds the trip back.
func (s *Service) CompleteTrip(ctx context.Context, tripID, driverID uuid.UUID, req *CompleteTripRequest) (*Trip, error) {
	ctx, span := tracing.StartSpan(ctx, "trips-service", "CompleteTrip")
	defer span.End()

	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID == nil || *trip.DriverID != driverID {
		return nil, common.NewForbiddenError("not the assigned driver")
	}
	if trip.Status != StatusInProgress {
		return nil, common.NewBadRequestError("trip is not in progress", common.ErrInvalidTransition)
	}

	now := time.Now()
	finalCost := derefAmount(trip.LockedContribution)
	deadline := now.Add(RatingWindow)

	trip.Status = StatusAwaitingTip
	trip.FinalCost = &finalCost
	trip.ActualDistanceMiles = &req.ActualDistanceMiles
	trip.ActualDurationMinutes = &req.ActualDurationMinutes
	trip.DriverFinalLatitude = &req.FinalLatitude
	trip.DriverFinalLongitude = &req.FinalLongitude
	trip.Route = geo.Downsample(req.Route, MaxRoutePoints)
	trip.CompletedAt = &now
	trip.RatingDeadline = &deadline

	if err := s.repo.CompleteTrip(ctx, trip); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	res := s.orchestrator.CaptureOnComplete(ctx, trip.PaymentState())
	s.recordPaymentResult(ctx, trip, res)

	s.publish(ctx, eventbus.SubjectTripCompleted, eventbus.TripCompletedData{
		TripID:      tripID,
		RiderID:     trip.RiderID,
		DriverID:    driverID,
		FinalCost:   finalCost,
		DistanceKm:  req.ActualDistanceMiles * 1.609344,
		DurationMin: float64(req.ActualDurationMinutes),
		CompletedAt: now,
	})

	return trip, nil
}

// AddTip records the rider's tip and finalizes the trip. The tip is capped at
// 200% of the final cost.
func (s *Service) AddTip(ctx context.Context, tripID, riderID uuid.UUID, amount float64) (*Trip, error) {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.RiderID != riderID {
		return nil, common.NewForbiddenError("only the rider can tip")
	}
	if trip.Status != StatusAwaitingTip {
		return nil, common.NewBadRequestError("trip is not awaiting a tip", common.ErrInvalidTransition)
	}

	finalCost := derefAmount(trip.FinalCost)
	if finalCost > 0 && amount > finalCost*maxTipMultiple {
		return nil, common.NewValidationError(fmt.Sprintf(
			"tip cannot exceed %.2f", round2(finalCost*maxTipMultiple)))
	}

	tip := round2(amount)
	total := round2(finalCost + tip)
	if err := s.repo.SetTip(ctx, tripID, tip, total); err != nil {
		return nil, err
	}
	trip.Tip = &tip
	trip.TotalWithTip = &total

	s.publish(ctx, eventbus.SubjectTipApplied, eventbus.TipAppliedData{
		TripID:    tripID,
		RiderID:   riderID,
		DriverID:  derefUUID(trip.DriverID),
		TipAmount: tip,
		AppliedAt: time.Now(),
	})

	return s.finalize(ctx, trip)
}

// SkipTip finalizes the trip without a tip.
func (s *Service) SkipTip(ctx context.Context, tripID, riderID uuid.UUID) (*Trip, error) {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.RiderID != riderID {
		return nil, common.NewForbiddenError("only the rider can skip the tip")
	}
	if trip.Status != StatusAwaitingTip {
		return nil, common.NewBadRequestError("trip is not awaiting a tip", common.ErrInvalidTransition)
	}
	return s.finalize(ctx, trip)
}

// FinalizeLapsedTipWindows closes out trips whose 72-hour tip window has
// passed without a rider decision.
func (s *Service) FinalizeLapsedTipWindows(ctx context.Context) (int, error) {
	lapsed, err := s.repo.ListTipWindowLapsed(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, trip := range lapsed {
		if _, err := s.finalize(ctx, trip); err != nil {
			logger.Get().Warn("failed to finalize lapsed tip window",
				zap.String("trip_id", trip.ID.String()), zap.Error(err))
			continue
		}
		finalized++
	}
	return finalized, nil
}

// finalize credits driver earnings exactly once. The repository's guarded
// write is the idempotency point: a second call observes zero rows and skips
// the credit.
func (s *Service) finalize(ctx context.Context, trip *Trip) (*Trip, error) {
	credited, err := s.repo.FinalizeTrip(ctx, trip.ID)
	if err != nil {
		return nil, common.NewInternalServerError("failed to finalize trip")
	}
	trip.Status = StatusCompleted

	if !credited {
		// Already finalized by a concurrent caller; nothing more to do
		return trip, nil
	}
	trip.EarningsCredited = true

	earnings := derefAmount(trip.FinalCost) + derefAmount(trip.Tip)
	logger.Get().Info("driver earnings credited",
		zap.String("trip_id", trip.ID.String()),
		zap.Float64("earnings", earnings),
	)

	return trip, nil
}

// CancelTrip adjudicates and applies a cancellation. The split depends on the
// status at write time, so the conditional write is guarded on the exact
// status that was adjudicated: a miss means the trip moved under us (an
// accept landing mid-cancel changes the fee rule) and the adjudication is
// redone against the fresh read. Terminal states still win outright.
func (s *Service) CancelTrip(ctx context.Context, tripID, userID uuid.UUID, req *CancelTripRequest) (*Trip, error) {
	ctx, span := tracing.StartSpan(ctx, "trips-service", "CancelTrip")
	defer span.End()

	for attempt := 0; attempt < 3; attempt++ {
		trip, err := s.repo.GetTripByID(ctx, tripID)
		if err != nil {
			return nil, err
		}

		var actor cancellation.Actor
		switch {
		case trip.RiderID == userID:
			actor = cancellation.ActorRider
		case trip.DriverID != nil && *trip.DriverID == userID:
			actor = cancellation.ActorDriver
		default:
			return nil, common.NewForbiddenError("not a party to this trip")
		}

		if trip.Status.Terminal() {
			return nil, common.NewBadRequestError("trip is already finished", common.ErrInvalidTransition)
		}

		observed := trip.Status
		outcome := s.adjudicator.Adjudicate(actor, string(observed),
			cancellation.ReasonType(req.ReasonType), derefAmount(trip.LockedContribution))

		now := time.Now()
		actorStr := string(actor)
		trip.Status = StatusCancelled
		trip.CancelledBy = &actorStr
		trip.CancellationReason = &req.Reason
		trip.ReasonType = &req.ReasonType
		trip.CancellationFee = &outcome.Fee
		trip.RefundAmount = &outcome.Refund
		trip.DriverCompensation = &outcome.Compensation
		trip.CancelledAt = &now

		ok, err := s.repo.CancelTrip(ctx, trip, observed)
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, common.NewInternalServerError("failed to cancel trip")
		}
		if !ok {
			continue
		}

		res := s.orchestrator.RefundOnCancel(ctx, trip.PaymentState(), payments.ToCents(outcome.Refund))
		s.recordPaymentResult(ctx, trip, res)

		s.publish(ctx, eventbus.SubjectTripCancelled, eventbus.TripCancelledData{
			TripID:      tripID,
			RiderID:     trip.RiderID,
			DriverID:    derefUUID(trip.DriverID),
			CancelledBy: actorStr,
			Reason:      req.Reason,
			FeeCharged:  outcome.Fee,
			CancelledAt: now,
		})

		return trip, nil
	}

	return nil, common.NewBadRequestError("trip status changed, cancellation not applied", common.ErrInvalidTransition)
}

// ResendTrip re-broadcasts a still-open request: the staleness clock restarts
// and the radius may widen. Prior declines stay in force.
func (s *Service) ResendTrip(ctx context.Context, tripID, riderID uuid.UUID, req *ResendTripRequest) (*Trip, error) {
	trip, err := s.repo.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.RiderID != riderID {
		return nil, common.NewForbiddenError("only the rider can resend")
	}
	if trip.Status != StatusRequested {
		return nil, common.NewBadRequestError("only open requests can be resent", common.ErrInvalidTransition)
	}

	ok, err := s.repo.ResendTrip(ctx, tripID, req.SearchRadiusKm)
	if err != nil {
		return nil, common.NewInternalServerError("failed to resend trip")
	}
	if !ok {
		return nil, common.NewBadRequestError("trip is no longer open", common.ErrInvalidTransition)
	}

	return s.repo.GetTripByID(ctx, tripID)
}

// ListRiderTrips returns a page of the rider's trip history.
func (s *Service) ListRiderTrips(ctx context.Context, riderID uuid.UUID, page, perPage int) ([]*Trip, int64, error) {
	limit, offset := pageBounds(page, perPage)
	trips, total, err := s.repo.ListRiderTrips(ctx, riderID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list trips")
	}
	return trips, total, nil
}

// ListDriverTrips returns a page of the driver's trip history.
func (s *Service) ListDriverTrips(ctx context.Context, driverID uuid.UUID, page, perPage int) ([]*Trip, int64, error) {
	limit, offset := pageBounds(page, perPage)
	trips, total, err := s.repo.ListDriverTrips(ctx, driverID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalServerError("failed to list trips")
	}
	return trips, total, nil
}

// recordPaymentResult persists a changed gateway outcome and publishes the
// matching payment event.
func (s *Service) recordPaymentResult(ctx context.Context, trip *Trip, res payments.Result) {
	if !res.Changed(trip.PaymentStatus) && res.GatewayRef == derefString(trip.PaymentRef) {
		return
	}
	s.applyPaymentResult(trip, res)

	if err := s.repo.UpdatePaymentState(ctx, trip.ID, res.Status, res.GatewayRef); err != nil {
		logger.Get().Error("failed to persist payment state",
			zap.String("trip_id", trip.ID.String()),
			zap.String("status", string(res.Status)),
			zap.Error(err),
		)
	}

	switch res.Status {
	case payments.StatusAuthorized:
		s.publish(ctx, eventbus.SubjectPaymentAuthorized, eventbus.PaymentAuthorizedData{
			TripID:       trip.ID,
			RiderID:      trip.RiderID,
			Amount:       derefAmount(trip.LockedContribution),
			AuthorizedAt: time.Now(),
		})
	case payments.StatusCaptured:
		s.publish(ctx, eventbus.SubjectPaymentCaptured, eventbus.PaymentCapturedData{
			TripID:     trip.ID,
			RiderID:    trip.RiderID,
			DriverID:   derefUUID(trip.DriverID),
			Amount:     derefAmount(trip.LockedContribution),
			Currency:   "usd",
			Attempts:   res.Attempts,
			CapturedAt: time.Now(),
		})
	case payments.StatusCaptureFailed, payments.StatusChargeFailed:
		s.publish(ctx, eventbus.SubjectPaymentCaptureFailed, eventbus.PaymentCaptureFailedData{
			TripID:   trip.ID,
			RiderID:  trip.RiderID,
			Amount:   derefAmount(trip.LockedContribution),
			Attempts: res.Attempts,
			FailedAt: time.Now(),
		})
	}
}

func (s *Service) applyPaymentResult(trip *Trip, res payments.Result) {
	trip.PaymentStatus = res.Status
	if res.GatewayRef != "" {
		ref := res.GatewayRef
		trip.PaymentRef = &ref
	}
}

func (s *Service) publish(ctx context.Context, subject string, data interface{}) {
	if s.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(subject, "trips-service", data)
	if err != nil {
		logger.Get().Warn("failed to build event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.Get().Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func pageBounds(page, perPage int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return perPage, (page - 1) * perPage
}

func derefAmount(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefUUID(v *uuid.UUID) uuid.UUID {
	if v == nil {
		return uuid.Nil
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
