package billing

import (
	"context"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/rowanhall/tutorbill/internal/store"
)

type checkoutBuilder struct {
	api       StripeAPI
	plans     *PlanCache
	ledger    *store.FamilyBillingStore
	customers *customerManager
	cfg       Config
	logger    *slog.Logger
}

// start creates a hosted checkout session for a new subscription covering the
// given children and returns the redirect URL.
//
// A family holds at most one subscription, so an existing reference is
// inspected first. An unretrievable or fully-canceled remote subscription is
// proof of a stale local pointer: the reference is cleared and checkout
// proceeds, so the user can simply buy again instead of being stuck.
func (b *checkoutBuilder) start(ctx context.Context, parentID string, childIDs []string) (string, error) {
	ids := dedupIDs(childIDs)
	if len(ids) == 0 {
		return "", ErrNoChildrenSelected
	}

	cfg, err := b.plans.Config()
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", ErrNoPlanConfigured
	}

	row, err := b.ledger.GetByParentID(parentID)
	if err != nil {
		return "", err
	}
	if row != nil && row.SubscriptionID != nil {
		sub, err := b.api.GetSubscription(ctx, *row.SubscriptionID, nil)
		switch {
		case err != nil:
			b.logger.Warn("clearing unretrievable subscription reference",
				"parent_id", parentID, "subscription_id", *row.SubscriptionID, "error", err)
			if err := b.ledger.SetSubscription(parentID, nil); err != nil {
				return "", err
			}
		case sub.Status == stripe.SubscriptionStatusCanceled:
			if err := b.ledger.SetSubscription(parentID, nil); err != nil {
				return "", err
			}
		case sub.CancelAtPeriodEnd:
			// Caller must resume, not re-checkout.
			return "", ErrSubscriptionCanceledPending
		default:
			return "", ErrExistingSubscription
		}
	}

	customerID, err := b.customers.getOrCreate(ctx, parentID)
	if err != nil {
		return "", err
	}

	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			Price:    stripe.String(cfg.FirstChildPriceID),
			Quantity: stripe.Int64(1),
		},
	}
	if len(ids) > 1 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(cfg.AdditionalChildPriceID),
			Quantity: stripe.Int64(int64(len(ids) - 1)),
		})
	}

	meta := encodeSubscriptionMeta(parentID, ids)
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(b.cfg.SuccessURL),
		CancelURL:  stripe.String(b.cfg.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	// Mirrored on the session itself so the completion webhook can read it
	// without a second API call.
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := b.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// portalURL creates a self-service billing portal session and returns the
// redirect URL.
func (b *checkoutBuilder) portalURL(ctx context.Context, parentID string) (string, error) {
	row, err := b.ledger.GetByParentID(parentID)
	if err != nil {
		return "", err
	}
	if row == nil || row.CustomerID == "" {
		return "", ErrNoCustomer
	}

	sess, err := b.api.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(row.CustomerID),
		ReturnURL: stripe.String(b.cfg.PortalReturnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}
