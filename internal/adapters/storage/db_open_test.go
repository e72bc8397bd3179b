package storage_test

import (
	"path/filepath"
	"testing"

	"civicreport/internal/adapters/storage"
)

// TestOpen_RegistersDriver opens a file database without importing a driver here.
func TestOpen_RegistersDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civic.db")

	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("MigrateDB error = %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	db.Close()

	reopened, err := storage.Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	var version int
	if err := reopened.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("schema_version: %v", err)
	}
	if version != storage.LatestSchemaVersion() {
		t.Errorf("schema version = %d, want %d", version, storage.LatestSchemaVersion())
	}
}
