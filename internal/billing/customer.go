package billing

import (
	"context"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/rowanhall/tutorbill/internal/store"
)

type customerManager struct {
	api    StripeAPI
	ledger *store.FamilyBillingStore
	users  *store.UserStore
	logger *slog.Logger
}

// getOrCreate returns the family's remote customer id, creating the customer
// and the ledger row lazily on first use. Idempotent per parent: once the
// ledger holds a customer id it is always reused.
func (m *customerManager) getOrCreate(ctx context.Context, parentID string) (string, error) {
	row, err := m.ledger.GetByParentID(parentID)
	if err != nil {
		return "", err
	}
	if row != nil && row.CustomerID != "" {
		return row.CustomerID, nil
	}

	parent, err := m.users.GetParent(parentID)
	if err != nil {
		return "", err
	}
	if parent == nil {
		return "", ErrParentNotFound
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(parent.Email),
		Name:  stripe.String(parent.FullName),
	}
	params.AddMetadata(metaKeyParentID, parentID)
	params.AddMetadata("type", "parent")

	cust, err := m.api.CreateCustomer(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	if _, err := m.ledger.Upsert(parentID, cust.ID); err != nil {
		return "", err
	}

	m.logger.Info("created billing customer", "parent_id", parentID, "customer_id", cust.ID)
	return cust.ID, nil
}
