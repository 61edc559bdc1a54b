package store

import (
	"database/sql"
	"fmt"

	"github.com/rowanhall/tutorbill/internal/model"
)

type FamilyBillingStore struct {
	db *sql.DB
}

func NewFamilyBillingStore(db *sql.DB) *FamilyBillingStore {
	return &FamilyBillingStore{db: db}
}

const familyBillingCols = `parent_id, customer_id, subscription_id, billing_status, premium_children_count, monthly_amount_cents, created_at, updated_at`

func scanFamilyBilling(scanner interface{ Scan(...any) error }) (*model.FamilyBilling, error) {
	var fb model.FamilyBilling
	var subID sql.NullString
	err := scanner.Scan(
		&fb.ParentID, &fb.CustomerID, &subID, &fb.BillingStatus,
		&fb.PremiumChildrenCount, &fb.MonthlyAmountCents, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if subID.Valid {
		fb.SubscriptionID = &subID.String
	}
	return &fb, nil
}

// GetByParentID returns the family's ledger row, or nil if none exists.
func (s *FamilyBillingStore) GetByParentID(parentID string) (*model.FamilyBilling, error) {
	row := s.db.QueryRow(`SELECT `+familyBillingCols+` FROM family_billing WHERE parent_id = ?`, parentID)
	fb, err := scanFamilyBilling(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family billing: %w", err)
	}
	return fb, nil
}

func (s *FamilyBillingStore) GetBySubscriptionID(subscriptionID string) (*model.FamilyBilling, error) {
	row := s.db.QueryRow(`SELECT `+familyBillingCols+` FROM family_billing WHERE subscription_id = ?`, subscriptionID)
	fb, err := scanFamilyBilling(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family billing by subscription: %w", err)
	}
	return fb, nil
}

// Upsert creates the ledger row if missing and records the remote customer id.
func (s *FamilyBillingStore) Upsert(parentID, customerID string) (*model.FamilyBilling, error) {
	_, err := s.db.Exec(
		`INSERT INTO family_billing (parent_id, customer_id) VALUES (?, ?)
		 ON CONFLICT(parent_id) DO UPDATE SET customer_id = excluded.customer_id, updated_at = CURRENT_TIMESTAMP`,
		parentID, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert family billing: %w", err)
	}
	return s.GetByParentID(parentID)
}

// SetSubscription points the ledger at a remote subscription; pass nil to
// clear a stale reference.
func (s *FamilyBillingStore) SetSubscription(parentID string, subscriptionID *string) error {
	var v sql.NullString
	if subscriptionID != nil {
		v = sql.NullString{String: *subscriptionID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE family_billing SET subscription_id = ?, updated_at = CURRENT_TIMESTAMP WHERE parent_id = ?`,
		v, parentID,
	)
	if err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return nil
}

func (s *FamilyBillingStore) SetStatus(parentID, status string) error {
	_, err := s.db.Exec(
		`UPDATE family_billing SET billing_status = ?, updated_at = CURRENT_TIMESTAMP WHERE parent_id = ?`,
		status, parentID,
	)
	if err != nil {
		return fmt.Errorf("set billing status: %w", err)
	}
	return nil
}

// UpdateCharge records the currently-billed composition. Scheduled future
// values are never written here; they are derived live from the remote side.
func (s *FamilyBillingStore) UpdateCharge(parentID string, childrenCount int, amountCents int64) error {
	_, err := s.db.Exec(
		`UPDATE family_billing SET premium_children_count = ?, monthly_amount_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE parent_id = ?`,
		childrenCount, amountCents, parentID,
	)
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}
	return nil
}

// Reset returns the row to a zeroed, subscription-less state. Used when the
// remote subscription turns out to be fully terminated. The customer id is
// kept so a later checkout reuses the same remote customer.
func (s *FamilyBillingStore) Reset(parentID string) error {
	_, err := s.db.Exec(
		`UPDATE family_billing SET subscription_id = NULL, billing_status = ?, premium_children_count = 0, monthly_amount_cents = 0, updated_at = CURRENT_TIMESTAMP WHERE parent_id = ?`,
		model.BillingStatusExpired, parentID,
	)
	if err != nil {
		return fmt.Errorf("reset family billing: %w", err)
	}
	return nil
}
