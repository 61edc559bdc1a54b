package billing

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
)

// StripeAPI is the slice of the Stripe surface the orchestration layer uses.
// The production implementation lives in internal/stripeclient; tests
// substitute a fake. All time-based transitions are delegated to subscription
// schedules on the remote side, so there is no local timer behind any of
// these calls.
type StripeAPI interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)

	GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

	CreateSchedule(ctx context.Context, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error)
	UpdateSchedule(ctx context.Context, id string, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error)
	// ReleaseSchedule detaches the schedule and returns the subscription to
	// normal, unscheduled operation.
	ReleaseSchedule(ctx context.Context, id string) (*stripe.SubscriptionSchedule, error)

	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}
