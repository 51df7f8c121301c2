package trips

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/pkg/eventbus"
)

// RepositoryInterface abstracts trip persistence so the service can be tested
// against an in-memory conditional-write store.
type RepositoryInterface interface {
	CreateTrip(ctx context.Context, trip *Trip) error
	GetTripByID(ctx context.Context, id uuid.UUID) (*Trip, error)

	// AtomicAcceptTrip is the single-winner conditional write: it succeeds
	// only if the trip is still REQUESTED with no assigned driver.
	AtomicAcceptTrip(ctx context.Context, tripID, driverID uuid.UUID, info *DriverInfo, status Status) (bool, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	AppendDecline(ctx context.Context, tripID, driverID uuid.UUID) error
	ResendTrip(ctx context.Context, tripID uuid.UUID, searchRadiusKm *float64) (bool, error)
	CompleteTrip(ctx context.Context, trip *Trip) error
	SetTip(ctx context.Context, tripID uuid.UUID, tip, totalWithTip float64) error

	// FinalizeTrip moves AWAITING_TIP to COMPLETED and marks earnings
	// credited, guarded so a second call no-ops.
	FinalizeTrip(ctx context.Context, tripID uuid.UUID) (bool, error)

	// CancelTrip applies the adjudicated cancellation only if the trip is
	// still in the status the split was computed against.
	CancelTrip(ctx context.Context, trip *Trip, observed Status) (bool, error)
	ExpireTrip(ctx context.Context, tripID uuid.UUID) (bool, error)

	UpdatePaymentState(ctx context.Context, tripID uuid.UUID, status payments.Status, gatewayRef string) error

	ListOpenTrips(ctx context.Context) ([]*Trip, error)
	ListStaleRequested(ctx context.Context, olderThan time.Time) ([]*Trip, error)
	ListRiderTrips(ctx context.Context, riderID uuid.UUID, limit, offset int) ([]*Trip, int64, error)
	ListDriverTrips(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*Trip, int64, error)
	ListTipWindowLapsed(ctx context.Context, before time.Time) ([]*Trip, error)
}

// PaymentOrchestrator is the slice of the payments orchestrator the lifecycle
// depends on.
type PaymentOrchestrator interface {
	VerifyCard(ctx context.Context, st payments.State) payments.Result
	AuthorizeHold(ctx context.Context, st payments.State) payments.Result
	SettleOnAccept(ctx context.Context, st payments.State) payments.Result
	CaptureOnComplete(ctx context.Context, st payments.State) payments.Result
	RefundOnCancel(ctx context.Context, st payments.State, refundCents int64) payments.Result
	ReleaseHold(ctx context.Context, st payments.State) payments.Result
}

// EventPublisher publishes trip lifecycle events. Nil-safe wrappers in the
// service make publishing best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// DriverDirectory resolves the driver snapshot captured at acceptance.
type DriverDirectory interface {
	GetDriverInfo(ctx context.Context, driverID uuid.UUID) (*DriverInfo, error)
}
