package store

import (
	"database/sql"
	"testing"

	"github.com/rowanhall/tutorbill/internal/database"
	"github.com/rowanhall/tutorbill/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedParent(t *testing.T, users *UserStore, id string) {
	t.Helper()
	err := users.CreateParent(&model.Parent{ID: id, Email: id + "@example.com", FullName: "Parent " + id})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
}
