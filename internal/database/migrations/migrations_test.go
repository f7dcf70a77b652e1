package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// A single connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"collection_info", "records", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}

	var index string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='records_by_partition'").Scan(&index)
	if err != nil {
		t.Errorf("partition index was not created: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp() failed: %v", err)
	}
}

func TestMigrateUp_TablesAlreadyPresent(t *testing.T) {
	db := openTestDB(t)

	// A concurrent opener may have created the tables before this one
	// recorded a version.
	if _, err := db.Exec("CREATE TABLE records (id TEXT PRIMARY KEY, partition_0 TEXT NOT NULL, partition_1 TEXT NOT NULL DEFAULT '', name TEXT NOT NULL, mime_type TEXT NOT NULL, size_bytes INTEGER NOT NULL, source_modified_at INTEGER NOT NULL, created_at TEXT NOT NULL, checksum TEXT NOT NULL)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() = %v, want nil", err)
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestReadStatus(t *testing.T) {
	db := openTestDB(t)

	st, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Version != 0 || st.Current() {
		t.Errorf("fresh status = %+v, want version 0 and not current", st)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	st, err = ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if !st.Current() {
		t.Errorf("status after migration = %+v, want current", st)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("LatestVersion() = %d, want 1", v)
	}
}

func TestSchema(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	got, err := Schema(db)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if strings.Contains(got, "schema_migrations") {
		t.Errorf("schema includes migration bookkeeping:\n%s", got)
	}
	tables := strings.Index(got, "CREATE TABLE records")
	index := strings.Index(got, "CREATE INDEX records_by_partition")
	if tables < 0 || index < 0 || index < tables {
		t.Errorf("schema missing statements or out of order:\n%s", got)
	}
}
