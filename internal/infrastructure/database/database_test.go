package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conduit.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path = %q, want %q", db.Path(), path)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOpen_WithoutWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.db")

	db, err := Open(Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("querying journal mode: %v", err)
	}
	if mode == "wal" {
		t.Errorf("journal mode = %q, WAL should be off", mode)
	}
}

func TestClose_Idempotent(t *testing.T) {
	db := &DB{}
	if err := db.Close(); err != nil {
		t.Errorf("closing zero DB: %v", err)
	}
}
