package stripeclient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/subscriptionschedule"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

// Client wraps the Stripe SDK. Reads are retried on transient failures;
// mutations are never retried here (a blindly retried add could double-charge)
// and instead carry idempotency keys so the caller's single attempt is safe
// against connection-level duplication.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

func readBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
}

// retryable marks transient failures (5xx, rate limits, network errors) for
// the backoff layer; everything else fails immediately.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			return retry.RetryableError(err)
		}
		return err
	}
	return retry.RetryableError(err)
}

func (c *Client) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return customer.New(params)
}

func (c *Client) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params == nil {
		params = &stripe.SubscriptionParams{}
	}
	params.Context = ctx

	var sub *stripe.Subscription
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		var err error
		sub, err = subscription.Get(id, params)
		return retryable(err)
	})
	return sub, err
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return subscription.Update(id, params)
}

func (c *Client) CreateSchedule(ctx context.Context, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error) {
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return subscriptionschedule.New(params)
}

func (c *Client) UpdateSchedule(ctx context.Context, id string, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error) {
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return subscriptionschedule.Update(id, params)
}

func (c *Client) ReleaseSchedule(ctx context.Context, id string) (*stripe.SubscriptionSchedule, error) {
	params := &stripe.SubscriptionScheduleReleaseParams{}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return subscriptionschedule.Release(id, params)
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	return checkoutsession.New(params)
}

func (c *Client) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	return portalsession.New(params)
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
