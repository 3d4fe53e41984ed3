package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}
	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 10_000 {
		t.Errorf("busy_timeout: got %d, want 10000", busy)
	}
}

func TestOpen_FileWithSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "j.db")
	db, err := Open(path, WithMkdirAll(), WithSchema(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want wal", mode)
	}
	if _, err := db.Exec(`INSERT INTO t (v) VALUES ('x')`); err != nil {
		t.Errorf("schema not applied: %v", err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := Open(":memory:", WithSchema("NOT SQL")); err == nil {
		t.Error("want error for invalid schema")
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (v TEXT)`))
	ctx := context.Background()

	if err := RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO t VALUES ('kept')`)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t VALUES ('dropped')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n)
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}
}

func TestRunTx_GivesUpWhenBusy(t *testing.T) {
	db := OpenMemory(t)
	calls := 0
	err := RunTx(context.Background(), db, func(*sql.Tx) error {
		calls++
		return errors.New("database is locked (5) (SQLITE_BUSY)")
	})
	if calls != Attempts {
		t.Errorf("calls: got %d, want %d", calls, Attempts)
	}
	if !IsBusy(err) {
		t.Errorf("got %v, want busy error", err)
	}
}

func TestIsBusy(t *testing.T) {
	for msg, want := range map[string]bool{
		"SQLITE_BUSY":              true,
		"database is locked":       true,
		"database table is locked": true,
		"no such table: x":         false,
	} {
		if got := IsBusy(errors.New(msg)); got != want {
			t.Errorf("IsBusy(%q): got %v, want %v", msg, got, want)
		}
	}
	if IsBusy(nil) {
		t.Error("IsBusy(nil) should be false")
	}
}
