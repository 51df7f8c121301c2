package trips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/pricing"
	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/geo"
)

// Repository handles database operations for trips. Every lifecycle write
// that can race carries its own WHERE guard, so concurrent writers resolve
// at the database without locks.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new trips repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const tripColumns = `
	id, rider_id, driver_id, driver_info, status,
	pickup_latitude, pickup_longitude, pickup_address,
	dropoff_latitude, dropoff_longitude, dropoff_address, stops,
	distance_miles, duration_minutes,
	pricing, locked_contribution, vehicle_type, final_cost, tip, total_with_tip,
	payment_flow, payment_status, payment_ref, customer_ref, earnings_credited,
	declined_by, search_radius_km, resend_count,
	actual_distance_miles, actual_duration_minutes,
	final_driver_latitude, final_driver_longitude, route,
	cancelled_by, cancellation_reason, cancellation_reason_type,
	cancellation_fee, refund_amount, driver_compensation,
	requested_at, accepted_at, arrived_at, started_at, completed_at,
	cancelled_at, rating_deadline, created_at, updated_at`

// CreateTrip inserts a new REQUESTED trip with its pricing snapshot and
// locked contribution.
func (r *Repository) CreateTrip(ctx context.Context, trip *Trip) error {
	driverInfo, err := marshalNullable(trip.DriverInfo)
	if err != nil {
		return fmt.Errorf("failed to encode driver info: %w", err)
	}
	stops, err := marshalNullable(trip.Stops)
	if err != nil {
		return fmt.Errorf("failed to encode stops: %w", err)
	}
	pricingJSON, err := marshalNullable(trip.Pricing)
	if err != nil {
		return fmt.Errorf("failed to encode pricing: %w", err)
	}

	query := `
		INSERT INTO trips (
			id, rider_id, driver_info, status,
			pickup_latitude, pickup_longitude, pickup_address,
			dropoff_latitude, dropoff_longitude, dropoff_address, stops,
			distance_miles, duration_minutes,
			pricing, locked_contribution, vehicle_type,
			payment_flow, payment_status, payment_ref, customer_ref,
			search_radius_km, requested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		trip.ID,
		trip.RiderID,
		driverInfo,
		trip.Status,
		trip.PickupLatitude,
		trip.PickupLongitude,
		trip.PickupAddress,
		trip.DestinationLatitude,
		trip.DestinationLongitude,
		trip.DestinationAddress,
		stops,
		trip.DistanceMiles,
		trip.DurationMinutes,
		pricingJSON,
		trip.LockedContribution,
		trip.VehicleType,
		trip.PaymentFlow,
		trip.PaymentStatus,
		trip.PaymentRef,
		trip.CustomerRef,
		trip.SearchRadiusKm,
		trip.RequestedAt,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// GetTripByID retrieves a trip by ID.
func (r *Repository) GetTripByID(ctx context.Context, id uuid.UUID) (*Trip, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	trip, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("trip not found", nil)
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// AtomicAcceptTrip assigns the driver in a single conditional UPDATE. The
// WHERE clause is the arbiter: if another driver's accept (or the reaper's
// expiry) landed first, zero rows match and the caller sees false.
func (r *Repository) AtomicAcceptTrip(ctx context.Context, tripID, driverID uuid.UUID, info *DriverInfo, status Status) (bool, error) {
	driverInfo, err := marshalNullable(info)
	if err != nil {
		return false, fmt.Errorf("failed to encode driver info: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE trips
		SET status = $1, driver_id = $2, driver_info = $3, accepted_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6 AND driver_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, status, driverID, driverInfo, now, tripID, StatusRequested)
	if err != nil {
		return false, fmt.Errorf("failed to accept trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus performs a plain status push with the matching timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	now := time.Now()
	var query string
	var args []interface{}

	switch status {
	case StatusDriverArrived:
		query = `UPDATE trips SET status = $1, arrived_at = $2, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	case StatusInProgress:
		query = `UPDATE trips SET status = $1, started_at = $2, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	default:
		query = `UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update trip status: %w", err)
	}
	return nil
}

// AppendDecline adds the driver to declined_by. The set only grows; a
// duplicate decline is a no-op.
func (r *Repository) AppendDecline(ctx context.Context, tripID, driverID uuid.UUID) error {
	query := `
		UPDATE trips
		SET declined_by = array_append(declined_by, $1), updated_at = NOW()
		WHERE id = $2 AND NOT ($1 = ANY(declined_by))
	`
	if _, err := r.db.Exec(ctx, query, driverID, tripID); err != nil {
		return fmt.Errorf("failed to record decline: %w", err)
	}
	return nil
}

// ResendTrip resets requestedAt so the staleness window restarts, bumps
// resend_count, and optionally widens the search radius. Guarded on
// REQUESTED; declined_by is deliberately untouched.
func (r *Repository) ResendTrip(ctx context.Context, tripID uuid.UUID, searchRadiusKm *float64) (bool, error) {
	query := `
		UPDATE trips
		SET requested_at = NOW(),
		    resend_count = resend_count + 1,
		    search_radius_km = GREATEST(search_radius_km, COALESCE($1, search_radius_km)),
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, searchRadiusKm, tripID, StatusRequested)
	if err != nil {
		return false, fmt.Errorf("failed to resend trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTrip records completion data and moves the trip to AWAITING_TIP.
func (r *Repository) CompleteTrip(ctx context.Context, trip *Trip) error {
	route, err := marshalNullable(trip.Route)
	if err != nil {
		return fmt.Errorf("failed to encode route: %w", err)
	}

	query := `
		UPDATE trips
		SET status = $1, final_cost = $2,
		    actual_distance_miles = $3, actual_duration_minutes = $4,
		    final_driver_latitude = $5, final_driver_longitude = $6, route = $7,
		    completed_at = $8, rating_deadline = $9, updated_at = $8
		WHERE id = $10 AND status = $11
	`
	tag, err := r.db.Exec(ctx, query,
		StatusAwaitingTip,
		trip.FinalCost,
		trip.ActualDistanceMiles,
		trip.ActualDurationMinutes,
		trip.DriverFinalLatitude,
		trip.DriverFinalLongitude,
		route,
		trip.CompletedAt,
		trip.RatingDeadline,
		trip.ID,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to complete trip: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return common.NewBadRequestError("trip is not in progress", common.ErrInvalidTransition)
	}
	return nil
}

// SetTip records the rider's tip while the trip awaits finalization.
func (r *Repository) SetTip(ctx context.Context, tripID uuid.UUID, tip, totalWithTip float64) error {
	query := `
		UPDATE trips
		SET tip = $1, total_with_tip = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, tip, totalWithTip, tripID, StatusAwaitingTip)
	if err != nil {
		return fmt.Errorf("failed to set tip: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return common.NewBadRequestError("trip is not awaiting a tip", common.ErrInvalidTransition)
	}
	return nil
}

// FinalizeTrip moves AWAITING_TIP to COMPLETED and marks earnings credited.
// The earnings_credited guard makes a repeated finalize a visible no-op, so
// the caller credits the driver at most once.
func (r *Repository) FinalizeTrip(ctx context.Context, tripID uuid.UUID) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, earnings_credited = TRUE, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND earnings_credited = FALSE
	`
	tag, err := r.db.Exec(ctx, query, StatusCompleted, tripID, StatusAwaitingTip)
	if err != nil {
		return false, fmt.Errorf("failed to finalize trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelTrip records the adjudicated cancellation. The write is guarded on
// the status the caller adjudicated against, so it loses cleanly to any
// concurrent transition and the caller re-adjudicates with the fresh status.
func (r *Repository) CancelTrip(ctx context.Context, trip *Trip, observed Status) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, cancelled_by = $2, cancellation_reason = $3,
		    cancellation_reason_type = $4, cancellation_fee = $5,
		    refund_amount = $6, driver_compensation = $7,
		    cancelled_at = $8, updated_at = $8
		WHERE id = $9 AND status = $10
	`
	tag, err := r.db.Exec(ctx, query,
		StatusCancelled,
		trip.CancelledBy,
		trip.CancellationReason,
		trip.ReasonType,
		trip.CancellationFee,
		trip.RefundAmount,
		trip.DriverCompensation,
		trip.CancelledAt,
		trip.ID,
		observed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireTrip marks a stale REQUESTED trip EXPIRED. If a concurrent accept
// landed first the guard fails and the sweep moves on.
func (r *Repository) ExpireTrip(ctx context.Context, tripID uuid.UUID) (bool, error) {
	query := `
		UPDATE trips
		SET status = $1, expired_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3 AND driver_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, StatusExpired, tripID, StatusRequested)
	if err != nil {
		return false, fmt.Errorf("failed to expire trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePaymentState records a gateway outcome on the trip.
func (r *Repository) UpdatePaymentState(ctx context.Context, tripID uuid.UUID, status payments.Status, gatewayRef string) error {
	query := `
		UPDATE trips
		SET payment_status = $1,
		    payment_ref = COALESCE(NULLIF($2, ''), payment_ref),
		    payment_attempts = payment_attempts + 1,
		    updated_at = NOW()
		WHERE id = $3
	`
	if _, err := r.db.Exec(ctx, query, status, gatewayRef, tripID); err != nil {
		return fmt.Errorf("failed to update payment state: %w", err)
	}
	return nil
}

// ListOpenTrips returns REQUESTED trips inside the matching staleness window,
// newest first. The filter applies per-driver eligibility on top.
func (r *Repository) ListOpenTrips(ctx context.Context) ([]*Trip, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status = $1 AND driver_id IS NULL
		ORDER BY requested_at DESC
	`, StatusRequested)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trips: %w", err)
	}
	defer rows.Close()
	return scanTrips(rows)
}

// ListStaleRequested returns REQUESTED trips older than the cutoff, for the
// reaper.
func (r *Repository) ListStaleRequested(ctx context.Context, olderThan time.Time) ([]*Trip, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status = $1 AND requested_at < $2
		ORDER BY requested_at ASC
	`, StatusRequested, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale trips: %w", err)
	}
	defer rows.Close()
	return scanTrips(rows)
}

// ListTipWindowLapsed returns AWAITING_TIP trips whose rating deadline has
// passed, for deadline finalization.
func (r *Repository) ListTipWindowLapsed(ctx context.Context, before time.Time) ([]*Trip, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status = $1 AND rating_deadline IS NOT NULL AND rating_deadline < $2
		ORDER BY rating_deadline ASC
	`, StatusAwaitingTip, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed tip windows: %w", err)
	}
	defer rows.Close()
	return scanTrips(rows)
}

// ListRiderTrips returns a page of the rider's trips with the total count.
func (r *Repository) ListRiderTrips(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]*Trip, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM trips WHERE rider_id = $1`, riderID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rider trips: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE rider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, riderID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rider trips: %w", err)
	}
	defer rows.Close()

	trips, err := scanTrips(rows)
	return trips, total, err
}

// ListDriverTrips returns a page of the driver's trips with the total count.
func (r *Repository) ListDriverTrips(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*Trip, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM trips WHERE driver_id = $1`, driverID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count driver trips: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, driverID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list driver trips: %w", err)
	}
	defer rows.Close()

	trips, err := scanTrips(rows)
	return trips, total, err
}

func scanTrips(rows pgx.Rows) ([]*Trip, error) {
	var trips []*Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

func scanTrip(row pgx.Row) (*Trip, error) {
	trip := &Trip{}
	var driverInfo, stops, pricingJSON, route []byte

	err := row.Scan(
		&trip.ID,
		&trip.RiderID,
		&trip.DriverID,
		&driverInfo,
		&trip.Status,
		&trip.PickupLatitude,
		&trip.PickupLongitude,
		&trip.PickupAddress,
		&trip.DestinationLatitude,
		&trip.DestinationLongitude,
		&trip.DestinationAddress,
		&stops,
		&trip.DistanceMiles,
		&trip.DurationMinutes,
		&pricingJSON,
		&trip.LockedContribution,
		&trip.VehicleType,
		&trip.FinalCost,
		&trip.Tip,
		&trip.TotalWithTip,
		&trip.PaymentFlow,
		&trip.PaymentStatus,
		&trip.PaymentRef,
		&trip.CustomerRef,
		&trip.EarningsCredited,
		&trip.DeclinedBy,
		&trip.SearchRadiusKm,
		&trip.ResendCount,
		&trip.ActualDistanceMiles,
		&trip.ActualDurationMinutes,
		&trip.DriverFinalLatitude,
		&trip.DriverFinalLongitude,
		&route,
		&trip.CancelledBy,
		&trip.CancellationReason,
		&trip.ReasonType,
		&trip.CancellationFee,
		&trip.RefundAmount,
		&trip.DriverCompensation,
		&trip.RequestedAt,
		&trip.AcceptedAt,
		&trip.ArrivedAt,
		&trip.StartedAt,
		&trip.CompletedAt,
		&trip.CancelledAt,
		&trip.RatingDeadline,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalNullable(driverInfo, &trip.DriverInfo); err != nil {
		return nil, fmt.Errorf("failed to decode driver info: %w", err)
	}
	if err := unmarshalNullable(stops, &trip.Stops); err != nil {
		return nil, fmt.Errorf("failed to decode stops: %w", err)
	}
	if trip.Pricing == nil && len(pricingJSON) > 0 {
		trip.Pricing = &pricing.Result{}
		if err := json.Unmarshal(pricingJSON, trip.Pricing); err != nil {
			return nil, fmt.Errorf("failed to decode pricing: %w", err)
		}
	}
	if err := unmarshalNullable(route, &trip.Route); err != nil {
		return nil, fmt.Errorf("failed to decode route: %w", err)
	}

	return trip, nil
}

func marshalNullable(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case *DriverInfo:
		if val == nil {
			return nil, nil
		}
	case *pricing.Result:
		if val == nil {
			return nil, nil
		}
	case []Stop:
		if len(val) == 0 {
			return nil, nil
		}
	case []geo.Point:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
