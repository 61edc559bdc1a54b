package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/rowanhall/tutorbill/internal/model"
	"github.com/rowanhall/tutorbill/internal/store"
)

// WebhookIngestor reconciles the local ledger from remote lifecycle events.
// It is the only asynchronous path into the ledger and the authority when
// local and remote state disagree. Every handler writes absolute state keyed
// by the remote subscription id, so redelivered events are harmless.
type WebhookIngestor struct {
	plans  *PlanCache
	ledger *store.FamilyBillingStore
	users  *store.UserStore
	logger *slog.Logger
}

func NewWebhookIngestor(plans *PlanCache, ledger *store.FamilyBillingStore, users *store.UserStore, logger *slog.Logger) *WebhookIngestor {
	return &WebhookIngestor{plans: plans, ledger: ledger, users: users, logger: logger}
}

// HandleEvent absorbs one verified event. Unrecognized event types are
// ignored.
func (i *WebhookIngestor) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return i.checkoutCompleted(event)
	case "customer.subscription.updated":
		return i.subscriptionUpdated(event)
	case "customer.subscription.deleted":
		return i.subscriptionDeleted(event)
	case "invoice.payment_failed":
		return i.invoicePaymentFailed(event)
	}
	return nil
}

func (i *WebhookIngestor) checkoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	meta, err := decodeSubscriptionMeta(sess.Metadata)
	if err != nil {
		i.logger.Error("malformed checkout session metadata", "session_id", sess.ID, "error", err)
	}
	if meta.ParentID == "" {
		i.logger.Warn("checkout session missing parent id", "session_id", sess.ID)
		return nil
	}

	if sess.Customer != nil {
		if _, err := i.ledger.Upsert(meta.ParentID, sess.Customer.ID); err != nil {
			return err
		}
	}
	if sess.Subscription != nil {
		if err := i.ledger.SetSubscription(meta.ParentID, &sess.Subscription.ID); err != nil {
			return err
		}
	}

	count := len(meta.ChildIDs)
	cfg, err := i.plans.Config()
	if err != nil {
		return err
	}
	if cfg != nil {
		if err := i.ledger.UpdateCharge(meta.ParentID, count, cfg.MonthlyAmountCents(count)); err != nil {
			return err
		}
	}
	if err := i.ledger.SetStatus(meta.ParentID, model.BillingStatusActive); err != nil {
		return err
	}

	for _, childID := range meta.ChildIDs {
		if err := i.users.SetChildPremium(childID, true); err != nil {
			i.logger.Error("grant entitlement", "child_id", childID, "error", err)
		}
	}

	i.logger.Info("checkout completed", "parent_id", meta.ParentID, "children_count", count)
	return nil
}

func (i *WebhookIngestor) subscriptionUpdated(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	parentID, err := i.resolveParent(sub.ID, sub.Metadata)
	if err != nil || parentID == "" {
		return err
	}

	if sub.Status == stripe.SubscriptionStatusCanceled {
		return i.ledger.Reset(parentID)
	}

	meta, err := decodeSubscriptionMeta(sub.Metadata)
	if err != nil {
		i.logger.Error("malformed subscription metadata", "subscription_id", sub.ID, "error", err)
	}
	count := len(meta.ChildIDs)
	if count == 0 && sub.Items != nil {
		var n int64
		for _, it := range sub.Items.Data {
			n += it.Quantity
		}
		count = int(n)
	}

	cfg, err := i.plans.Config()
	if err != nil {
		return err
	}
	if cfg != nil {
		if err := i.ledger.UpdateCharge(parentID, count, cfg.MonthlyAmountCents(count)); err != nil {
			return err
		}
	}

	i.syncEntitlements(sub.ID, sub.Metadata, meta)

	status := model.BillingStatusActive
	if sub.CancelAtPeriodEnd {
		status = model.BillingStatusCanceled
	}
	return i.ledger.SetStatus(parentID, status)
}

// syncEntitlements reconciles per-child premium flags from a subscription
// event's metadata. When a deferred-removal phase applies, the phase metadata
// overrides the subscription's and carries removedChildrenIds instead of
// childrenIds, so revocation happens here rather than waiting for a terminal
// delete event. Revocations run last so a child in both sets loses the flag.
func (i *WebhookIngestor) syncEntitlements(subscriptionID string, md map[string]string, meta subscriptionMeta) {
	for _, childID := range meta.ChildIDs {
		if err := i.users.SetChildPremium(childID, true); err != nil {
			i.logger.Error("grant entitlement", "child_id", childID, "error", err)
		}
	}

	phaseMeta, err := decodeScheduleMeta(md)
	if err != nil {
		i.logger.Error("malformed removal metadata", "subscription_id", subscriptionID, "error", err)
		return
	}
	for _, childID := range phaseMeta.RemovedChildIDs {
		if err := i.users.SetChildPremium(childID, false); err != nil {
			i.logger.Error("revoke entitlement", "child_id", childID, "error", err)
		}
	}
}

func (i *WebhookIngestor) subscriptionDeleted(event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	parentID, err := i.resolveParent(sub.ID, sub.Metadata)
	if err != nil || parentID == "" {
		return err
	}

	meta, err := decodeSubscriptionMeta(sub.Metadata)
	if err != nil {
		i.logger.Error("malformed subscription metadata", "subscription_id", sub.ID, "error", err)
	}
	for _, childID := range meta.ChildIDs {
		if err := i.users.SetChildPremium(childID, false); err != nil {
			i.logger.Error("revoke entitlement", "child_id", childID, "error", err)
		}
	}

	i.logger.Info("subscription terminated", "parent_id", parentID, "subscription_id", sub.ID)
	return i.ledger.Reset(parentID)
}

func (i *WebhookIngestor) invoicePaymentFailed(event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}

	subID := subscriptionIDFromInvoice(invoice)
	if subID == "" {
		return nil
	}
	row, err := i.ledger.GetBySubscriptionID(subID)
	if err != nil || row == nil {
		return err
	}

	i.logger.Warn("invoice payment failed", "parent_id", row.ParentID, "subscription_id", subID)
	return i.ledger.SetStatus(row.ParentID, model.BillingStatusExpired)
}

// resolveParent finds the ledger row owner for a subscription event, by
// subscription id first and by the parentId metadata as a fallback. Events
// for unknown subscriptions are dropped with a warning; the ledger row is
// created by checkout, never by a bare lifecycle event.
func (i *WebhookIngestor) resolveParent(subscriptionID string, md map[string]string) (string, error) {
	row, err := i.ledger.GetBySubscriptionID(subscriptionID)
	if err != nil {
		return "", err
	}
	if row != nil {
		return row.ParentID, nil
	}
	if parentID := md[metaKeyParentID]; parentID != "" {
		row, err := i.ledger.GetByParentID(parentID)
		if err != nil {
			return "", err
		}
		if row != nil {
			return parentID, nil
		}
	}
	i.logger.Warn("event for unknown subscription", "subscription_id", subscriptionID)
	return "", nil
}

// subscriptionIDFromInvoice extracts the subscription id from an invoice's
// parent.
func subscriptionIDFromInvoice(invoice stripe.Invoice) string {
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}
