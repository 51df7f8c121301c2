package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/setupintent"
)

// StripeGateway implements Gateway on Stripe manual-capture PaymentIntents.
type StripeGateway struct {
	apiKey   string
	currency string
}

// NewStripeGateway creates a new Stripe-backed gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{apiKey: apiKey, currency: "usd"}
}

// Verify validates the customer's default payment method via a SetupIntent.
// No funds move.
func (s *StripeGateway) Verify(ctx context.Context, customerRef string) (string, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerRef),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	si, err := setupintent.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to verify payment method: %w", err)
	}
	return si.ID, nil
}

// Authorize places a manual-capture hold.
func (s *StripeGateway) Authorize(ctx context.Context, customerRef string, amountCents int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(s.currency),
		Customer:      stripe.String(customerRef),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to authorize hold: %w", err)
	}
	return pi.ID, nil
}

// Charge collects funds immediately.
func (s *StripeGateway) Charge(ctx context.Context, customerRef string, amountCents int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(s.currency),
		Customer: stripe.String(customerRef),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to charge: %w", err)
	}
	return pi.ID, nil
}

// Capture settles an uncaptured hold.
func (s *StripeGateway) Capture(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	if _, err := paymentintent.Capture(ref, params); err != nil {
		return fmt.Errorf("failed to capture payment intent: %w", err)
	}
	return nil
}

// Refund returns captured funds; nil amount means a full refund.
func (s *StripeGateway) Refund(ctx context.Context, ref string, amountCents *int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
	}
	if amountCents != nil {
		params.Amount = stripe.Int64(*amountCents)
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// Release cancels an uncaptured hold.
func (s *StripeGateway) Release(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(ref, params); err != nil {
		return fmt.Errorf("failed to cancel payment intent: %w", err)
	}
	return nil
}

// isStripeRetryable determines if a Stripe error should be retried.
func isStripeRetryable(err error) bool {
	if err == nil {
		return false
	}

	if stripeErr, ok := err.(*stripe.Error); ok {
		if stripeErr.Type == stripe.ErrorTypeAPI {
			return true
		}

		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode < 600 {
			return true
		}

		// Rate limits and timeouts are worth another attempt
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode == 408 {
			return true
		}

		// Card errors and invalid requests won't succeed on retry
		if stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return false
		}

		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return false
		}
	}

	// Non-Stripe errors are assumed transient (network issues)
	return true
}
