package model

import "time"

// Billing statuses tracked on the local ledger. The ledger only describes the
// current contractual period; scheduled future state lives on the remote side.
const (
	BillingStatusActive   = "active"
	BillingStatusCanceled = "canceled"
	BillingStatusExpired  = "expired"
)

// Plan is a pricing row for a subscription plan. Loaded once at startup and
// treated as immutable at runtime.
type Plan struct {
	ID                        int64     `json:"id"`
	Name                      string    `json:"name"`
	IsActive                  bool      `json:"is_active"`
	ProductID                 string    `json:"product_id"`
	PriceIDFirstChild         string    `json:"price_id_first_child"`
	PriceIDAdditionalChild    string    `json:"price_id_additional_child"`
	PriceFirstChildCents      int64     `json:"price_first_child_cents"`
	PriceAdditionalChildCents int64     `json:"price_additional_child_cents"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// FamilyBilling is the per-family ledger row: what the family is currently
// being charged. One row per parent.
type FamilyBilling struct {
	ParentID             string    `json:"parent_id"`
	CustomerID           string    `json:"customer_id"`
	SubscriptionID       *string   `json:"subscription_id"`
	BillingStatus        string    `json:"billing_status"`
	PremiumChildrenCount int       `json:"premium_children_count"`
	MonthlyAmountCents   int64     `json:"monthly_amount_cents"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type Parent struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type Child struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	FullName  string    `json:"full_name"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}
