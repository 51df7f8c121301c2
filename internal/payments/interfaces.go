package payments

import "context"

// Gateway abstracts the external payment provider. Every call is
// network-fallible; retry belongs to the orchestrator, not the gateway.
type Gateway interface {
	// Verify validates a customer's payment method without moving funds.
	Verify(ctx context.Context, customerRef string) (ref string, err error)

	// Authorize places a hold on the customer's funds and returns the
	// gateway reference for later capture or release.
	Authorize(ctx context.Context, customerRef string, amountCents int64) (ref string, err error)

	// Charge collects funds immediately (verification flow at accept time).
	Charge(ctx context.Context, customerRef string, amountCents int64) (ref string, err error)

	// Capture settles a previously authorized hold.
	Capture(ctx context.Context, ref string) error

	// Refund returns captured funds. A nil amount refunds in full.
	Refund(ctx context.Context, ref string, amountCents *int64) error

	// Release cancels an uncaptured hold.
	Release(ctx context.Context, ref string) error
}
