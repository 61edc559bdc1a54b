package store

import (
	"testing"

	"github.com/rowanhall/tutorbill/internal/model"
)

func TestUserStoreParents(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)

	got, err := users.GetParent("missing")
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing parent, got %+v", got)
	}

	seedParent(t, users, "parent-1")
	got, err = users.GetParent("parent-1")
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if got == nil || got.Email != "parent-1@example.com" {
		t.Fatalf("unexpected parent: %+v", got)
	}
}

func TestUserStoreChildren(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	seedParent(t, users, "parent-1")

	for _, id := range []string{"child-1", "child-2"} {
		err := users.CreateChild(&model.Child{ID: id, ParentID: "parent-1", FullName: "Child " + id})
		if err != nil {
			t.Fatalf("create child: %v", err)
		}
	}

	children, err := users.GetChildrenByParent("parent-1")
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	for _, c := range children {
		if c.IsPremium {
			t.Errorf("child %s unexpectedly premium", c.ID)
		}
	}
}

func TestUserStoreSetChildPremium(t *testing.T) {
	db := openTestDB(t)
	users := NewUserStore(db)
	seedParent(t, users, "parent-1")

	err := users.CreateChild(&model.Child{ID: "child-1", ParentID: "parent-1"})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if err := users.SetChildPremium("child-1", true); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	c, err := users.GetChild("child-1")
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if !c.IsPremium {
		t.Error("expected child to be premium")
	}

	if err := users.SetChildPremium("child-1", false); err != nil {
		t.Fatalf("unset premium: %v", err)
	}
	c, err = users.GetChild("child-1")
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if c.IsPremium {
		t.Error("expected premium flag cleared")
	}

	if err := users.SetChildPremium("missing", true); err == nil {
		t.Error("expected error for unknown child")
	}
}
