package store

import (
	"testing"

	"github.com/rowanhall/tutorbill/internal/model"
)

func TestFamilyBillingUpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	ledger := NewFamilyBillingStore(db)
	seedParent(t, users, "parent-1")

	got, err := ledger.GetByParentID("parent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row, got %+v", got)
	}

	fb, err := ledger.Upsert("parent-1", "cus_123")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if fb.CustomerID != "cus_123" {
		t.Errorf("customer id = %s, want cus_123", fb.CustomerID)
	}
	if fb.SubscriptionID != nil {
		t.Errorf("expected nil subscription id, got %v", *fb.SubscriptionID)
	}
	if fb.BillingStatus != model.BillingStatusExpired {
		t.Errorf("status = %s, want default expired", fb.BillingStatus)
	}

	// Upserting again with a new customer id replaces it without duplicating.
	fb, err = ledger.Upsert("parent-1", "cus_456")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if fb.CustomerID != "cus_456" {
		t.Errorf("customer id = %s, want cus_456", fb.CustomerID)
	}
}

func TestFamilyBillingSubscriptionLifecycle(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	ledger := NewFamilyBillingStore(db)
	seedParent(t, users, "parent-1")

	if _, err := ledger.Upsert("parent-1", "cus_123"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	subID := "sub_abc"
	if err := ledger.SetSubscription("parent-1", &subID); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if err := ledger.SetStatus("parent-1", model.BillingStatusActive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := ledger.UpdateCharge("parent-1", 2, 2000); err != nil {
		t.Fatalf("update charge: %v", err)
	}

	fb, err := ledger.GetBySubscriptionID("sub_abc")
	if err != nil {
		t.Fatalf("get by subscription: %v", err)
	}
	if fb == nil || fb.ParentID != "parent-1" {
		t.Fatalf("lookup by subscription id failed: %+v", fb)
	}
	if fb.PremiumChildrenCount != 2 || fb.MonthlyAmountCents != 2000 {
		t.Errorf("charge = %d children / %d cents, want 2 / 2000", fb.PremiumChildrenCount, fb.MonthlyAmountCents)
	}
	if fb.BillingStatus != model.BillingStatusActive {
		t.Errorf("status = %s, want active", fb.BillingStatus)
	}
}

func TestFamilyBillingReset(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	ledger := NewFamilyBillingStore(db)
	seedParent(t, users, "parent-1")

	if _, err := ledger.Upsert("parent-1", "cus_123"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	subID := "sub_abc"
	if err := ledger.SetSubscription("parent-1", &subID); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if err := ledger.UpdateCharge("parent-1", 3, 2500); err != nil {
		t.Fatalf("update charge: %v", err)
	}

	if err := ledger.Reset("parent-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	fb, err := ledger.GetByParentID("parent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fb.SubscriptionID != nil {
		t.Errorf("expected cleared subscription id, got %v", *fb.SubscriptionID)
	}
	if fb.BillingStatus != model.BillingStatusExpired {
		t.Errorf("status = %s, want expired", fb.BillingStatus)
	}
	if fb.PremiumChildrenCount != 0 || fb.MonthlyAmountCents != 0 {
		t.Errorf("expected zeroed charge, got %d / %d", fb.PremiumChildrenCount, fb.MonthlyAmountCents)
	}
	// Customer id survives a reset so a later checkout reuses it.
	if fb.CustomerID != "cus_123" {
		t.Errorf("customer id = %s, want cus_123", fb.CustomerID)
	}
}

func TestFamilyBillingClearSubscription(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	ledger := NewFamilyBillingStore(db)
	seedParent(t, users, "parent-1")

	if _, err := ledger.Upsert("parent-1", "cus_123"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	subID := "sub_abc"
	if err := ledger.SetSubscription("parent-1", &subID); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	if err := ledger.SetSubscription("parent-1", nil); err != nil {
		t.Fatalf("clear subscription: %v", err)
	}

	fb, err := ledger.GetByParentID("parent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fb.SubscriptionID != nil {
		t.Errorf("expected nil subscription id after clear, got %v", *fb.SubscriptionID)
	}
}
