package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/rowanhall/tutorbill/internal/model"
	"github.com/rowanhall/tutorbill/internal/store"
)

type membershipManager struct {
	api    StripeAPI
	plans  *PlanCache
	ledger *store.FamilyBillingStore
	logger *slog.Logger
}

// AddChildrenResult reports the composition after an addition. The Scheduled
// fields are set only when the addition happened against a pending-cancel
// subscription and a deferred-removal schedule was created for the displaced
// children.
type AddChildrenResult struct {
	ChildrenCount      int   `json:"children_count"`
	MonthlyAmountCents int64 `json:"monthly_amount_cents"`

	PaidThroughPeriodEnd        []string `json:"paid_through_period_end,omitempty"`
	ScheduledChildrenCount      int      `json:"scheduled_children_count,omitempty"`
	ScheduledMonthlyAmountCents int64    `json:"scheduled_monthly_amount_cents,omitempty"`
}

// RemoveChildrenResult reports the deferred composition change. The current
// charge is untouched: removals are non-refundable and only take effect at
// the period boundary.
type RemoveChildrenResult struct {
	PendingRemovedChildIDs      []string   `json:"pending_removed_children_ids"`
	ScheduledChildrenCount      int        `json:"scheduled_children_count"`
	ScheduledMonthlyAmountCents int64      `json:"scheduled_monthly_amount_cents"`
	CancelsAtPeriodEnd          bool       `json:"cancels_at_period_end"`
	EffectiveAt                 *time.Time `json:"effective_at,omitempty"`
}

// addChildren enrolls more children on the existing subscription with an
// immediate prorated charge.
//
// If the subscription is pending cancellation this is reinterpreted as a swap:
// the cancellation is cleared, the previously-enrolled children stay only
// through the already-paid period (a deferred-removal schedule), and the new
// children become the permanent composition. No double-charge for the paid
// remainder.
func (m *membershipManager) addChildren(ctx context.Context, parentID string, childIDs []string) (*AddChildrenResult, error) {
	ids := dedupIDs(childIDs)
	if len(ids) == 0 {
		return nil, ErrNoChildrenSelected
	}

	cfg, err := m.plans.Config()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoPlanConfigured
	}

	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	st, err := fetchRemote(ctx, m.api, cfg, *row.SubscriptionID, m.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		return nil, ErrSubscriptionFullyCanceled
	}

	wasPendingCancel := st.sub.CancelAtPeriodEnd
	var displaced []string
	if wasPendingCancel {
		// Children implicitly slated for removal by the pending cancel,
		// minus any the caller is re-adding.
		displaced = subtractIDs(st.meta.ChildIDs, ids)
	}

	// Additions always run against a plain subscription, never mid-schedule.
	if st.schedule != nil {
		if _, err := m.api.ReleaseSchedule(ctx, st.schedule.ID); err != nil {
			return nil, fmt.Errorf("release schedule %s: %w", st.schedule.ID, err)
		}
	}

	union := unionIDs(st.meta.ChildIDs, ids)

	var items []*stripe.SubscriptionItemsParams
	if st.firstItem == nil {
		items = append(items, &stripe.SubscriptionItemsParams{
			Price:    stripe.String(cfg.FirstChildPriceID),
			Quantity: stripe.Int64(1),
		})
	}
	if len(union) > 1 {
		addl := &stripe.SubscriptionItemsParams{
			Quantity: stripe.Int64(int64(len(union) - 1)),
		}
		if st.addlItem != nil {
			addl.ID = stripe.String(st.addlItem.ID)
		} else {
			addl.Price = stripe.String(cfg.AdditionalChildPriceID)
		}
		items = append(items, addl)
	}

	params := &stripe.SubscriptionParams{
		Items:             items,
		ProrationBehavior: stripe.String("always_invoice"),
	}
	if wasPendingCancel {
		params.CancelAtPeriodEnd = stripe.Bool(false)
	}
	for k, v := range encodeSubscriptionMeta(parentID, union) {
		params.AddMetadata(k, v)
	}

	updated, err := m.api.UpdateSubscription(ctx, *row.SubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription items: %w", err)
	}

	result := &AddChildrenResult{
		ChildrenCount:      len(union),
		MonthlyAmountCents: cfg.MonthlyAmountCents(len(union)),
	}

	if wasPendingCancel && len(displaced) > 0 {
		remaining := subtractIDs(union, displaced)
		if _, err := writeDeferredSchedule(ctx, m.api, cfg, parentID, updated, "", remaining, displaced); err != nil {
			return nil, err
		}
		result.PaidThroughPeriodEnd = displaced
		result.ScheduledChildrenCount = len(remaining)
		result.ScheduledMonthlyAmountCents = cfg.MonthlyAmountCents(len(remaining))
	}

	if err := m.ledger.UpdateCharge(parentID, len(union), cfg.MonthlyAmountCents(len(union))); err != nil {
		return nil, err
	}
	if err := m.ledger.SetStatus(parentID, model.BillingStatusActive); err != nil {
		return nil, err
	}

	m.logger.Info("children added", "parent_id", parentID, "children_count", len(union),
		"resumed_pending_cancel", wasPendingCancel)
	return result, nil
}

// removeChildren schedules children for removal at the period boundary. There
// is no immediate remote mutation and no refund; removals accumulate with any
// already pending ones. Draining the family to zero degenerates into a full
// cancellation at period end.
func (m *membershipManager) removeChildren(ctx context.Context, parentID string, childIDs []string) (*RemoveChildrenResult, error) {
	ids := dedupIDs(childIDs)
	if len(ids) == 0 {
		return nil, ErrNoChildrenSelected
	}

	cfg, err := m.plans.Config()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoPlanConfigured
	}

	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	st, err := fetchRemote(ctx, m.api, cfg, *row.SubscriptionID, m.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		return nil, ErrSubscriptionFullyCanceled
	}

	enrolled := st.meta.ChildIDs
	requested := intersectIDs(ids, enrolled)
	if len(requested) == 0 {
		return nil, ErrNoPendingChanges
	}

	pendingRemoved := st.schedMeta.RemovedChildIDs
	if st.sub.CancelAtPeriodEnd {
		// A pending cancel already slates every enrolled child for removal.
		// Convert it into a deferred-removal schedule so the flag does not
		// fight the schedule at the boundary.
		pendingRemoved = unionIDs(pendingRemoved, enrolled)
		if _, err := m.api.UpdateSubscription(ctx, st.sub.ID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(false),
		}); err != nil {
			return nil, fmt.Errorf("clear cancel at period end: %w", err)
		}
		st.sub.CancelAtPeriodEnd = false
	}

	removed := unionIDs(pendingRemoved, requested)
	remaining := subtractIDs(enrolled, removed)

	scheduleID := ""
	if st.schedule != nil {
		scheduleID = st.schedule.ID
	}
	if _, err := writeDeferredSchedule(ctx, m.api, cfg, parentID, st.sub, scheduleID, remaining, removed); err != nil {
		return nil, err
	}

	if len(remaining) == 0 {
		if err := m.ledger.SetStatus(parentID, model.BillingStatusCanceled); err != nil {
			return nil, err
		}
	}

	result := &RemoveChildrenResult{
		PendingRemovedChildIDs:      removed,
		ScheduledChildrenCount:      len(remaining),
		ScheduledMonthlyAmountCents: cfg.MonthlyAmountCents(len(remaining)),
		CancelsAtPeriodEnd:          len(remaining) == 0,
	}
	if st.periodEnd > 0 {
		t := time.Unix(st.periodEnd, 0).UTC()
		result.EffectiveAt = &t
	}

	m.logger.Info("children removal scheduled", "parent_id", parentID,
		"pending_removed", len(removed), "remaining", len(remaining))
	return result, nil
}

// writeDeferredSchedule creates or rewrites the family's two-phase schedule.
// Phase 0 mirrors the subscription's current items through the period
// boundary; phase 1 carries the reduced composition with no proration. When
// no children remain there is no meaningful phase 1 (the remote platform
// rejects a zero-item phase), so the schedule keeps a single phase and ends
// with end_behavior=cancel instead.
func writeDeferredSchedule(ctx context.Context, api StripeAPI, cfg *PlanConfig, parentID string, sub *stripe.Subscription, scheduleID string, remaining, removed []string) (*stripe.SubscriptionSchedule, error) {
	if scheduleID == "" {
		created, err := api.CreateSchedule(ctx, &stripe.SubscriptionScheduleParams{
			FromSubscription: stripe.String(sub.ID),
		})
		if err != nil {
			return nil, fmt.Errorf("create schedule from subscription %s: %w", sub.ID, err)
		}
		scheduleID = created.ID
	}

	var periodStart, periodEnd int64
	var phase0Items []*stripe.SubscriptionSchedulePhaseItemParams
	if sub.Items != nil {
		for _, it := range sub.Items.Data {
			if it.Price == nil {
				continue
			}
			phase0Items = append(phase0Items, &stripe.SubscriptionSchedulePhaseItemParams{
				Price:    stripe.String(it.Price.ID),
				Quantity: stripe.Int64(it.Quantity),
			})
			if it.CurrentPeriodEnd > periodEnd {
				periodStart = it.CurrentPeriodStart
				periodEnd = it.CurrentPeriodEnd
			}
		}
	}

	phase0 := &stripe.SubscriptionSchedulePhaseParams{
		Items:             phase0Items,
		StartDate:         stripe.Int64(periodStart),
		EndDate:           stripe.Int64(periodEnd),
		ProrationBehavior: stripe.String("none"),
	}

	action := PendingRemoveChildren
	params := &stripe.SubscriptionScheduleParams{}
	if len(remaining) == 0 {
		action = PendingCancelAll
		params.EndBehavior = stripe.String("cancel")
		params.Phases = []*stripe.SubscriptionSchedulePhaseParams{phase0}
	} else {
		params.EndBehavior = stripe.String("release")
		params.Phases = []*stripe.SubscriptionSchedulePhaseParams{
			phase0,
			{
				Items:             phaseItemsForCount(cfg, len(remaining)),
				StartDate:         stripe.Int64(periodEnd),
				ProrationBehavior: stripe.String("none"),
				Metadata:          encodePhaseMeta(parentID, len(remaining), removed, action),
			},
		}
	}
	for k, v := range encodeScheduleMeta(parentID, action, removed) {
		params.AddMetadata(k, v)
	}

	sched, err := api.UpdateSchedule(ctx, scheduleID, params)
	if err != nil {
		return nil, fmt.Errorf("update schedule %s: %w", scheduleID, err)
	}
	return sched, nil
}

// phaseItemsForCount builds the item set for a family of n children: one unit
// of the first-child price plus n-1 units of the additional-child price.
func phaseItemsForCount(cfg *PlanConfig, n int) []*stripe.SubscriptionSchedulePhaseItemParams {
	items := []*stripe.SubscriptionSchedulePhaseItemParams{
		{
			Price:    stripe.String(cfg.FirstChildPriceID),
			Quantity: stripe.Int64(1),
		},
	}
	if n > 1 {
		items = append(items, &stripe.SubscriptionSchedulePhaseItemParams{
			Price:    stripe.String(cfg.AdditionalChildPriceID),
			Quantity: stripe.Int64(int64(n - 1)),
		})
	}
	return items
}
