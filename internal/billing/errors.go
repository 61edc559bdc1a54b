package billing

import "errors"

// One sentinel per business-rule violation. These propagate to the route
// layer unchanged and are never retried internally.
var (
	ErrNoPlanConfigured            = errors.New("billing: no plan configured")
	ErrNoSubscription              = errors.New("billing: no subscription")
	ErrExistingSubscription        = errors.New("billing: subscription already exists")
	ErrSubscriptionCanceledPending = errors.New("billing: subscription canceled pending period end")
	ErrParentNotFound              = errors.New("billing: parent not found")
	ErrNoCustomer                  = errors.New("billing: no billing customer")
	ErrNoPendingChanges            = errors.New("billing: no pending changes")
	ErrSubscriptionFullyCanceled   = errors.New("billing: subscription fully canceled")
	ErrNoChildrenSelected          = errors.New("billing: no children selected")
)
