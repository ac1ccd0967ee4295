package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/coolive/internal/database"
	"github.com/dukerupert/coolive/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, email, name string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, "hash", name, "")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func createGroup(t *testing.T, db *sql.DB, name string, creator int64) *model.Group {
	t.Helper()
	g, err := NewGroupStore(db).Create(context.Background(), name, creator)
	if err != nil {
		t.Fatalf("create group %s: %v", name, err)
	}
	return g
}

func balanceOf(t *testing.T, db *sql.DB, userID int64) int {
	t.Helper()
	p, err := NewUserStore(db).GetProfile(context.Background(), userID)
	if err != nil || p == nil {
		t.Fatalf("get profile %d: %v", userID, err)
	}
	return p.Points
}
