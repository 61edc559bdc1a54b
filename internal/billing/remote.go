package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
)

// remoteState is one consistent read of the family's remote billing state:
// the subscription, its schedule if any, decoded metadata, and the line items
// matched against the plan's two prices.
type remoteState struct {
	sub       *stripe.Subscription
	schedule  *stripe.SubscriptionSchedule
	meta      subscriptionMeta
	schedMeta scheduleMeta

	firstItem *stripe.SubscriptionItem
	addlItem  *stripe.SubscriptionItem

	periodStart int64
	periodEnd   int64
}

// fetchRemote retrieves the live subscription with its schedule expanded.
// Malformed metadata is logged at Error and degraded to an empty value; the
// remote objects themselves stay authoritative. cfg may be nil when item
// matching is not needed.
func fetchRemote(ctx context.Context, api StripeAPI, cfg *PlanConfig, subscriptionID string, logger *slog.Logger) (*remoteState, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("schedule")
	sub, err := api.GetSubscription(ctx, subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}

	st := &remoteState{sub: sub, schedule: sub.Schedule}

	meta, err := decodeSubscriptionMeta(sub.Metadata)
	if err != nil {
		logger.Error("malformed subscription metadata", "subscription_id", subscriptionID, "error", err)
	}
	st.meta = meta

	if sub.Items != nil {
		for _, it := range sub.Items.Data {
			if it.Price == nil {
				continue
			}
			if cfg != nil {
				switch it.Price.ID {
				case cfg.FirstChildPriceID:
					st.firstItem = it
				case cfg.AdditionalChildPriceID:
					st.addlItem = it
				}
			}
			if it.CurrentPeriodEnd > st.periodEnd {
				st.periodStart = it.CurrentPeriodStart
				st.periodEnd = it.CurrentPeriodEnd
			}
		}
	}

	if st.schedule != nil {
		sm, err := decodeScheduleMeta(st.schedule.Metadata)
		if err != nil {
			// Fail open: treated as no pending state, but loudly.
			logger.Error("malformed schedule metadata", "schedule_id", st.schedule.ID, "error", err)
		}
		st.schedMeta = sm
	}

	return st, nil
}

func (st *remoteState) fullyCanceled() bool {
	return st.sub.Status == stripe.SubscriptionStatusCanceled
}

// childCount prefers the childrenIds metadata and falls back to summing item
// quantities, which the childrenCount invariant keeps equal.
func (st *remoteState) childCount() int {
	if n := len(st.meta.ChildIDs); n > 0 {
		return n
	}
	var n int64
	if st.sub.Items != nil {
		for _, it := range st.sub.Items.Data {
			n += it.Quantity
		}
	}
	return int(n)
}

// futurePhase returns the schedule phase that starts after the current period,
// or nil when the schedule ends with the current phase.
func (st *remoteState) futurePhase() *stripe.SubscriptionSchedulePhase {
	if st.schedule == nil || len(st.schedule.Phases) < 2 {
		return nil
	}
	return st.schedule.Phases[len(st.schedule.Phases)-1]
}

// futureChildCount derives the next-period composition: the future phase's
// childrenCount metadata, falling back to its item quantities; zero when the
// schedule cancels at the boundary.
func (st *remoteState) futureChildCount() int {
	if st.schedule != nil && st.schedule.EndBehavior == stripe.SubscriptionScheduleEndBehaviorCancel && st.futurePhase() == nil {
		return 0
	}
	phase := st.futurePhase()
	if phase == nil {
		return st.childCount()
	}
	if raw, ok := phase.Metadata[metaKeyChildCount]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	var n int64
	for _, it := range phase.Items {
		n += it.Quantity
	}
	return int(n)
}
