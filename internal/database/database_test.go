package database

import (
	"path/filepath"
	"testing"
)

func TestOpenMigratesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coolive.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	v, err := Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	db.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestProfileUpdatedAtTrigger(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO users (id, email, password_hash) VALUES (1, 'a@example.com', 'x')`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO profiles (id, full_name, updated_at) VALUES (1, 'Alice', '2000-01-01 00:00:00')`); err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	if _, err := db.Exec(`UPDATE profiles SET bio = 'hola' WHERE id = 1`); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	var stale bool
	if err := db.QueryRow(`SELECT updated_at = '2000-01-01 00:00:00' FROM profiles WHERE id = 1`).Scan(&stale); err != nil {
		t.Fatalf("read updated_at: %v", err)
	}
	if stale {
		t.Error("updated_at was not bumped by the trigger")
	}
}

func TestCompletionsRecordPoints(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('completions') WHERE name = 'points'`).Scan(&n); err != nil {
		t.Fatalf("table info: %v", err)
	}
	if n != 1 {
		t.Error("completions.points column missing")
	}
}
