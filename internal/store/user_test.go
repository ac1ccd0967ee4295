package store

import (
	"context"
	"errors"
	"testing"
)

func TestUserCreate(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()

	u, err := us.Create(ctx, "alice@example.com", "hash", "Alice", "https://img/alice.png")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}

	p, err := us.GetProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.FullName != "Alice" {
		t.Errorf("full_name = %q, want %q", p.FullName, "Alice")
	}
	if p.Points != 0 {
		t.Errorf("points = %d, want 0", p.Points)
	}
	if p.AvatarURL != "https://img/alice.png" {
		t.Errorf("avatar_url = %q", p.AvatarURL)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()

	if _, err := us.Create(ctx, "alice@example.com", "hash", "Alice", ""); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := us.Create(ctx, "ALICE@example.com", "hash", "Alice2", "")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestUserGetByEmailCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	created := createUser(t, db, "alice@example.com", "Alice")

	u, err := NewUserStore(db).GetByEmail(context.Background(), " Alice@Example.com ")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("got %v, want user %d", u, created.ID)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q, want %q", u.PasswordHash, "hash")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	u, err := us.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
	p, err := us.GetProfile(context.Background(), 999)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p != nil {
		t.Error("expected nil for nonexistent profile")
	}
}

func TestUpdateProfileKeepsPoints(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com", "Alice")

	if _, err := us.AdjustPoints(ctx, u.ID, 15); err != nil {
		t.Fatalf("adjust points: %v", err)
	}
	p, err := us.UpdateProfile(ctx, u.ID, "Alícia", "M'agrada cuinar")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if p.FullName != "Alícia" || p.Bio != "M'agrada cuinar" {
		t.Errorf("profile = %+v", p)
	}
	if p.Points != 15 {
		t.Errorf("points = %d, want 15", p.Points)
	}
}

func TestSetAvatarURL(t *testing.T) {
	db := setupTestDB(t)
	u := createUser(t, db, "alice@example.com", "Alice")

	p, err := NewUserStore(db).SetAvatarURL(context.Background(), u.ID, "https://cdn/1.png")
	if err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	if p.AvatarURL != "https://cdn/1.png" {
		t.Errorf("avatar_url = %q", p.AvatarURL)
	}
}

func TestAdjustPointsFloorsAtZero(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com", "Alice")

	got, err := us.AdjustPoints(ctx, u.ID, 5)
	if err != nil {
		t.Fatalf("adjust +5: %v", err)
	}
	if got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}

	got, err = us.AdjustPoints(ctx, u.ID, -10)
	if err != nil {
		t.Fatalf("adjust -10: %v", err)
	}
	if got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestAdjustPointsUnknownProfile(t *testing.T) {
	db := setupTestDB(t)
	if _, err := NewUserStore(db).AdjustPoints(context.Background(), 42, 1); err == nil {
		t.Error("expected error for unknown profile")
	}
}
