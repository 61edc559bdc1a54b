package billing

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/rowanhall/tutorbill/internal/model"
	"github.com/rowanhall/tutorbill/internal/store"
)

type statusReader struct {
	api    StripeAPI
	plans  *PlanCache
	ledger *store.FamilyBillingStore
	logger *slog.Logger

	// injectable clock for proration tests
	now func() time.Time
}

// SubscriptionStatus merges the ledger's persisted current-period values with
// a live read of the remote subscription and its schedule. The Future and
// Pending fields are derived on demand and never persisted, so they cannot go
// stale between webhook deliveries.
type SubscriptionStatus struct {
	BillingStatus      string     `json:"billing_status"`
	SubscriptionID     string     `json:"subscription_id,omitempty"`
	ChildrenCount      int        `json:"children_count"`
	MonthlyAmountCents int64      `json:"monthly_amount_cents"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`

	HasScheduledChanges      bool          `json:"has_scheduled_changes"`
	PendingAction            PendingAction `json:"pending_action,omitempty"`
	PendingRemovedChildIDs   []string      `json:"pending_removed_children_ids,omitempty"`
	FutureChildrenCount      int           `json:"future_children_count"`
	FutureMonthlyAmountCents int64         `json:"future_monthly_amount_cents"`
}

func (r *statusReader) get(ctx context.Context, parentID string) (*SubscriptionStatus, error) {
	row, err := r.ledger.GetByParentID(parentID)
	if err != nil {
		return nil, err
	}
	out := &SubscriptionStatus{BillingStatus: model.BillingStatusExpired}
	if row == nil {
		return out, nil
	}
	out.BillingStatus = row.BillingStatus
	out.ChildrenCount = row.PremiumChildrenCount
	out.MonthlyAmountCents = row.MonthlyAmountCents
	if row.SubscriptionID == nil {
		return out, nil
	}

	cfg, err := r.plans.Config()
	if err != nil {
		return nil, err
	}

	st, err := fetchRemote(ctx, r.api, cfg, *row.SubscriptionID, r.logger)
	if err != nil {
		return nil, err
	}
	if st.fullyCanceled() {
		if err := r.ledger.Reset(parentID); err != nil {
			return nil, err
		}
		return &SubscriptionStatus{BillingStatus: model.BillingStatusExpired}, nil
	}

	out.SubscriptionID = st.sub.ID
	out.CancelAtPeriodEnd = st.sub.CancelAtPeriodEnd
	if st.periodEnd > 0 {
		t := time.Unix(st.periodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	if n := st.childCount(); n > 0 {
		out.ChildrenCount = n
	}
	out.FutureChildrenCount = out.ChildrenCount
	if cfg != nil {
		out.FutureMonthlyAmountCents = cfg.MonthlyAmountCents(out.FutureChildrenCount)
	}

	if st.sub.CancelAtPeriodEnd {
		out.HasScheduledChanges = true
		out.PendingAction = PendingCancelAll
		out.FutureChildrenCount = 0
		out.FutureMonthlyAmountCents = 0
	}
	if st.schedule != nil {
		out.HasScheduledChanges = true
		out.PendingAction = st.schedMeta.Action
		if out.PendingAction == PendingNone {
			out.PendingAction = PendingRemoveChildren
		}
		out.PendingRemovedChildIDs = st.schedMeta.RemovedChildIDs
		out.FutureChildrenCount = st.futureChildCount()
		out.FutureMonthlyAmountCents = 0
		if cfg != nil {
			out.FutureMonthlyAmountCents = cfg.MonthlyAmountCents(out.FutureChildrenCount)
		}
	}

	return out, nil
}

// prorataAddChildren computes the immediate partial-period charge for adding
// the given number of children: remaining-days over total-days in the period,
// times the monthly delta, rounded to the nearest cent.
//
// The baseline count for the new total comes from a pending schedule's future
// phase when one exists, not the stale current count, so an addition priced
// while a removal or cancellation is already scheduled is not overstated.
func (r *statusReader) prorataAddChildren(ctx context.Context, parentID string, numToAdd int) (int64, error) {
	if numToAdd <= 0 {
		return 0, nil
	}

	cfg, err := r.plans.Config()
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, ErrNoPlanConfigured
	}

	row, err := r.ledger.GetByParentID(parentID)
	if err != nil {
		return 0, err
	}
	if row == nil || row.SubscriptionID == nil {
		return 0, ErrNoSubscription
	}

	st, err := fetchRemote(ctx, r.api, cfg, *row.SubscriptionID, r.logger)
	if err != nil {
		return 0, err
	}
	if st.fullyCanceled() {
		return 0, ErrSubscriptionFullyCanceled
	}

	baseline := st.childCount()
	if st.schedule != nil || st.sub.CancelAtPeriodEnd {
		baseline = st.futureChildCount()
		if st.sub.CancelAtPeriodEnd && st.schedule == nil {
			baseline = 0
		}
	}

	if st.periodEnd <= st.periodStart {
		return 0, nil
	}
	total := st.periodEnd - st.periodStart
	remaining := st.periodEnd - r.now().Unix()
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}

	monthlyDelta := cfg.MonthlyAmountCents(baseline+numToAdd) - cfg.MonthlyAmountCents(baseline)
	ratio := float64(remaining) / float64(total)
	return int64(math.Round(ratio * float64(monthlyDelta))), nil
}
