package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/multierr"

	"github.com/rowanhall/tutorbill/internal/model"
	"github.com/rowanhall/tutorbill/internal/store"
)

type lifecycleManager struct {
	api    StripeAPI
	plans  *PlanCache
	ledger *store.FamilyBillingStore
	users  *store.UserStore
	logger *slog.Logger
}

type CancelResult struct {
	CancelsAtPeriodEnd bool       `json:"cancels_at_period_end"`
	EffectiveAt        *time.Time `json:"effective_at,omitempty"`
	AlreadyCanceled    bool       `json:"already_canceled,omitempty"`
}

type ReactivationResult struct {
	ReinstatedChildIDs     []string `json:"reinstated_children_ids"`
	PendingRemovedChildIDs []string `json:"pending_removed_children_ids"`
	ScheduleReleased       bool     `json:"schedule_released"`
	ChildrenCount          int      `json:"children_count"`
}

type ResumeResult struct {
	ChildrenCount      int      `json:"children_count"`
	MonthlyAmountCents int64    `json:"monthly_amount_cents"`
	RestoredChildIDs   []string `json:"restored_children_ids"`
}

// cancel cancels the family's subscription at period end. If a schedule is
// already standing it is escalated to end_behavior=cancel rather than
// stacking a second cancellation mechanism on the same subscription.
func (m *lifecycleManager) cancel(ctx context.Context, parentID string) (*CancelResult, error) {
	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	cfg, err := m.plans.Config()
	if err != nil {
		return nil, err
	}

	st, err := fetchRemote(ctx, m.api, cfg, *row.SubscriptionID, m.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		if err := m.ledger.Reset(parentID); err != nil {
			return nil, err
		}
		return &CancelResult{AlreadyCanceled: true}, nil
	}

	if st.schedule != nil {
		params := &stripe.SubscriptionScheduleParams{
			EndBehavior: stripe.String("cancel"),
		}
		for k, v := range encodeScheduleMeta(parentID, PendingCancelAll, st.schedMeta.RemovedChildIDs) {
			params.AddMetadata(k, v)
		}
		if _, err := m.api.UpdateSchedule(ctx, st.schedule.ID, params); err != nil {
			return nil, fmt.Errorf("escalate schedule %s to cancel: %w", st.schedule.ID, err)
		}
	} else {
		if _, err := m.api.UpdateSubscription(ctx, st.sub.ID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}); err != nil {
			return nil, fmt.Errorf("set cancel at period end: %w", err)
		}
	}

	if err := m.ledger.SetStatus(parentID, model.BillingStatusCanceled); err != nil {
		return nil, err
	}

	result := &CancelResult{CancelsAtPeriodEnd: true}
	if st.periodEnd > 0 {
		t := time.Unix(st.periodEnd, 0).UTC()
		result.EffectiveAt = &t
	}
	m.logger.Info("subscription cancellation scheduled", "parent_id", parentID, "escalated_schedule", st.schedule != nil)
	return result, nil
}

// cancelPendingRemoval undoes a scheduled removal. With no childID, or when
// only one removal is pending, the schedule is released entirely (full
// reactivation). Otherwise only childID is reinstated and the schedule's
// future phase is recomputed for the larger remaining set; a cancel-all
// schedule that ends up with children again flips back to release.
func (m *lifecycleManager) cancelPendingRemoval(ctx context.Context, parentID, childID string) (*ReactivationResult, error) {
	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	cfg, err := m.plans.Config()
	if err != nil {
		return nil, err
	}

	st, err := fetchRemote(ctx, m.api, cfg, *row.SubscriptionID, m.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		if err := m.ledger.Reset(parentID); err != nil {
			return nil, err
		}
		return nil, ErrSubscriptionFullyCanceled
	}
	if st.schedule == nil {
		return nil, ErrNoPendingChanges
	}

	removed := st.schedMeta.RemovedChildIDs
	if childID != "" && !containsID(removed, childID) {
		return nil, ErrNoPendingChanges
	}

	fullRelease := childID == "" || (len(removed) == 1 && removed[0] == childID)
	if fullRelease {
		if _, err := m.api.ReleaseSchedule(ctx, st.schedule.ID); err != nil {
			return nil, fmt.Errorf("release schedule %s: %w", st.schedule.ID, err)
		}
		if row.BillingStatus == model.BillingStatusCanceled {
			if err := m.ledger.SetStatus(parentID, model.BillingStatusActive); err != nil {
				return nil, err
			}
		}
		m.logger.Info("pending removal canceled, schedule released", "parent_id", parentID)
		return &ReactivationResult{
			ReinstatedChildIDs: removed,
			ScheduleReleased:   true,
			ChildrenCount:      st.childCount(),
		}, nil
	}

	if cfg == nil {
		return nil, ErrNoPlanConfigured
	}

	newRemoved := subtractIDs(removed, []string{childID})
	remaining := subtractIDs(st.meta.ChildIDs, newRemoved)
	if _, err := writeDeferredSchedule(ctx, m.api, cfg, parentID, st.sub, st.schedule.ID, remaining, newRemoved); err != nil {
		return nil, err
	}
	if len(remaining) > 0 && row.BillingStatus == model.BillingStatusCanceled {
		if err := m.ledger.SetStatus(parentID, model.BillingStatusActive); err != nil {
			return nil, err
		}
	}

	m.logger.Info("pending removal partially canceled", "parent_id", parentID,
		"reinstated_child", childID, "still_pending", len(newRemoved))
	return &ReactivationResult{
		ReinstatedChildIDs:     []string{childID},
		PendingRemovedChildIDs: newRemoved,
		ChildrenCount:          st.childCount(),
	}, nil
}

// resume reactivates a subscription that is pending cancellation: any
// schedule is released, the cancellation flag is cleared, and every child in
// the subscription's metadata gets its premium entitlement back. A remotely
// terminated subscription cannot be resumed; the ledger is reset and the
// caller must re-checkout.
func (m *lifecycleManager) resume(ctx context.Context, parentID string) (*ResumeResult, error) {
	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	cfg, err := m.plans.Config()
	if err != nil {
		return nil, err
	}

	st, err := fetchRemote(ctx, m.api, cfg, *row.SubscriptionID, m.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		if err := m.ledger.Reset(parentID); err != nil {
			return nil, err
		}
		return nil, ErrSubscriptionFullyCanceled
	}

	if st.schedule != nil {
		if _, err := m.api.ReleaseSchedule(ctx, st.schedule.ID); err != nil {
			return nil, fmt.Errorf("release schedule %s: %w", st.schedule.ID, err)
		}
	}
	if st.sub.CancelAtPeriodEnd {
		if _, err := m.api.UpdateSubscription(ctx, st.sub.ID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(false),
		}); err != nil {
			return nil, fmt.Errorf("clear cancel at period end: %w", err)
		}
	}

	if err := m.ledger.SetStatus(parentID, model.BillingStatusActive); err != nil {
		return nil, err
	}
	count := st.childCount()
	result := &ResumeResult{ChildrenCount: count}
	if cfg != nil {
		result.MonthlyAmountCents = cfg.MonthlyAmountCents(count)
		if err := m.ledger.UpdateCharge(parentID, count, result.MonthlyAmountCents); err != nil {
			return nil, err
		}
	}

	var restoreErr error
	for _, childID := range st.meta.ChildIDs {
		if err := m.users.SetChildPremium(childID, true); err != nil {
			restoreErr = multierr.Append(restoreErr, fmt.Errorf("restore entitlement for child %s: %w", childID, err))
			continue
		}
		result.RestoredChildIDs = append(result.RestoredChildIDs, childID)
	}
	if restoreErr != nil {
		m.logger.Error("entitlement restore incomplete", "parent_id", parentID, "error", restoreErr)
		return result, restoreErr
	}

	m.logger.Info("subscription resumed", "parent_id", parentID, "children_count", count)
	return result, nil
}
