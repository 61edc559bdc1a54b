package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/rowanhall/tutorbill/internal/store"
)

// Config carries the redirect URLs for the hosted checkout and portal flows.
type Config struct {
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Service is the single public entry point for billing orchestration. Every
// operation delegates to a private single-responsibility collaborator; the
// collaborators share the injected plan cache, ledger and Stripe client.
type Service struct {
	customers *customerManager
	checkout  *checkoutBuilder
	members   *membershipManager
	lifecycle *lifecycleManager
	status    *statusReader
}

func NewService(api StripeAPI, plans *PlanCache, ledger *store.FamilyBillingStore, users *store.UserStore, cfg Config, logger *slog.Logger) *Service {
	customers := &customerManager{api: api, ledger: ledger, users: users, logger: logger}
	return &Service{
		customers: customers,
		checkout: &checkoutBuilder{
			api: api, plans: plans, ledger: ledger, customers: customers, cfg: cfg, logger: logger,
		},
		members: &membershipManager{
			api: api, plans: plans, ledger: ledger, logger: logger,
		},
		lifecycle: &lifecycleManager{
			api: api, plans: plans, ledger: ledger, users: users, logger: logger,
		},
		status: &statusReader{
			api: api, plans: plans, ledger: ledger, logger: logger, now: time.Now,
		},
	}
}

// GetOrCreateCustomer maps the parent to a remote billing customer, creating
// one lazily.
func (s *Service) GetOrCreateCustomer(ctx context.Context, parentID string) (string, error) {
	return s.customers.getOrCreate(ctx, parentID)
}

// StartCheckout begins a hosted subscription purchase for the given children
// and returns the redirect URL.
func (s *Service) StartCheckout(ctx context.Context, parentID string, childIDs []string) (string, error) {
	return s.checkout.start(ctx, parentID, childIDs)
}

// PortalURL returns a redirect URL for the hosted self-service billing portal.
func (s *Service) PortalURL(ctx context.Context, parentID string) (string, error) {
	return s.checkout.portalURL(ctx, parentID)
}

// AddChildren enrolls more children on the existing subscription with an
// immediate prorated charge.
func (s *Service) AddChildren(ctx context.Context, parentID string, childIDs []string) (*AddChildrenResult, error) {
	return s.members.addChildren(ctx, parentID, childIDs)
}

// RemoveChildren schedules children for non-refundable removal at period end.
func (s *Service) RemoveChildren(ctx context.Context, parentID string, childIDs []string) (*RemoveChildrenResult, error) {
	return s.members.removeChildren(ctx, parentID, childIDs)
}

// CancelSubscription cancels the family's subscription at period end.
func (s *Service) CancelSubscription(ctx context.Context, parentID string) (*CancelResult, error) {
	return s.lifecycle.cancel(ctx, parentID)
}

// CancelPendingRemoval undoes a scheduled removal, either entirely (empty
// childID) or for a single child.
func (s *Service) CancelPendingRemoval(ctx context.Context, parentID, childID string) (*ReactivationResult, error) {
	return s.lifecycle.cancelPendingRemoval(ctx, parentID, childID)
}

// ResumeSubscription reactivates a pending-cancel subscription and restores
// premium entitlement for its children.
func (s *Service) ResumeSubscription(ctx context.Context, parentID string) (*ResumeResult, error) {
	return s.lifecycle.resume(ctx, parentID)
}

// GetSubscriptionStatus returns the always-fresh merged billing view.
func (s *Service) GetSubscriptionStatus(ctx context.Context, parentID string) (*SubscriptionStatus, error) {
	return s.status.get(ctx, parentID)
}

// CalculateAddChildrenProrata prices the immediate charge for adding the
// given number of children mid-period.
func (s *Service) CalculateAddChildrenProrata(ctx context.Context, parentID string, numToAdd int) (int64, error) {
	return s.status.prorataAddChildren(ctx, parentID, numToAdd)
}
