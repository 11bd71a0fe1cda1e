package migrate

import (
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := NewRunner(db).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return db
}

func TestRun_StatusBeforeAndAfter(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()
	r := NewRunner(db)

	steps := []struct {
		name        string
		run         bool
		wantVersion int
		wantPending int
	}{
		{"fresh database", false, 0, 1},
		{"after first run", true, 1, 0},
		{"after second run", true, 1, 0},
	}
	for _, step := range steps {
		if step.run {
			if err := r.Run(); err != nil {
				t.Fatalf("%s: Run: %v", step.name, err)
			}
		}
		cur, pending, err := r.Status()
		if err != nil {
			t.Fatalf("%s: Status: %v", step.name, err)
		}
		if cur != step.wantVersion || pending != step.wantPending {
			t.Errorf("%s: version=%d pending=%d, want %d/%d", step.name, cur, pending, step.wantVersion, step.wantPending)
		}
	}

	var rows int
	var name string
	if err := db.QueryRow("SELECT COUNT(*), MAX(name) FROM schema_migrations").Scan(&rows, &name); err != nil {
		t.Fatalf("read schema_migrations: %v", err)
	}
	if rows != 1 || name != "001_kv.sql" {
		t.Errorf("schema_migrations = %d rows, last %q; want one row for 001_kv.sql", rows, name)
	}
}

func TestKVTable_UpsertReplacesValue(t *testing.T) {
	db := migratedDB(t)

	for _, value := range []string{`[]`, `[{"timestamp":"2024-01-10 09:00:00"}]`} {
		if _, err := db.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", "logData", value); err != nil {
			t.Fatalf("upsert %s: %v", value, err)
		}
	}

	var count int
	var value string
	var stamped bool
	err := db.QueryRow("SELECT COUNT(*), MAX(value), bool_and(updated_at IS NOT NULL) FROM kv WHERE key = 'logData'").
		Scan(&count, &value, &stamped)
	if err != nil {
		t.Fatalf("query kv: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows for logData = %d, want 1", count)
	}
	if value != `[{"timestamp":"2024-01-10 09:00:00"}]` {
		t.Errorf("value = %q, want the second write", value)
	}
	if !stamped {
		t.Error("updated_at should default to the insert time")
	}
}

func TestKVTable_Constraints(t *testing.T) {
	db := migratedDB(t)

	if _, err := db.Exec("INSERT INTO kv (key, value) VALUES ('logData', NULL)"); err == nil {
		t.Error("NULL value should be rejected")
	}

	if _, err := db.Exec("INSERT INTO kv (key, value) VALUES ('logData', '[]')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec("INSERT INTO kv (key, value) VALUES ('logData', '[]')"); err == nil {
		t.Error("plain insert of an existing key should violate the primary key")
	}
}
