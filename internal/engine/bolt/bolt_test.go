package bolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"bigdict/internal/engine"
)

func tempEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(filepath.Join(dir, "0"), false, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func mustBegin(t *testing.T, e *Env, writable bool) engine.Txn {
	t.Helper()
	tx, err := e.Begin(writable)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db", "0")
	e, err := Open(path, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}
}

func TestReadOnlyOpenMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing"), true, 0)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutGetDelete(t *testing.T) {
	e := tempEnv(t)
	tx := mustBegin(t, e, true)
	defer tx.Rollback()

	if err := tx.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	// Read-your-writes within the same transaction.
	v, err := tx.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v" {
		t.Fatalf("expected v, got %q", v)
	}

	existed, err := tx.Delete([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Fatal("delete should report the key existed")
	}
	existed, err = tx.Delete([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatal("second delete should report absent")
	}
}

func TestCommitVisibility(t *testing.T) {
	e := tempEnv(t)

	tx := mustBegin(t, e, true)
	if err := tx.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	rt := mustBegin(t, e, false)
	defer rt.Rollback()
	v, err := rt.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v" {
		t.Fatalf("committed value not visible, got %q", v)
	}
}

func TestRollbackDiscards(t *testing.T) {
	e := tempEnv(t)

	tx := mustBegin(t, e, true)
	if err := tx.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	rt := mustBegin(t, e, false)
	defer rt.Rollback()
	v, err := rt.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("rolled back write should be invisible, got %q", v)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	e := tempEnv(t)

	snap := mustBegin(t, e, false)
	defer snap.Rollback()

	tx := mustBegin(t, e, true)
	if err := tx.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// The old snapshot must not observe the commit.
	v, err := snap.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("snapshot observed a later commit: %q", v)
	}
}

func TestScanOrderAndCount(t *testing.T) {
	e := tempEnv(t)
	tx := mustBegin(t, e, true)
	for _, k := range []string{"c", "a", "b"} {
		if err := tx.Put([]byte(k), []byte("v-"+k)); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	err := tx.ForEach(func(k, v []byte) error {
		keys = append(keys, string(k))
		if string(v) != "v-"+string(k) {
			return fmt.Errorf("value mismatch for %q: %q", k, v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("scan not in key order: %v", keys)
	}

	n, err := tx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestScanEarlyStop(t *testing.T) {
	e := tempEnv(t)
	tx := mustBegin(t, e, true)
	defer tx.Rollback()
	for _, k := range []string{"a", "b", "c"} {
		if err := tx.Put([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	stop := errors.New("stop")
	n := 0
	err := tx.ForEach(func(_, _ []byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("fn error should be returned unchanged, got %v", err)
	}
	if n != 1 {
		t.Fatalf("scan should have stopped after 1 entry, saw %d", n)
	}
}

func TestWriteInReadOnlyTxn(t *testing.T) {
	e := tempEnv(t)
	rt := mustBegin(t, e, false)
	defer rt.Rollback()
	if err := rt.Put([]byte("k"), []byte("v")); !errors.Is(err, engine.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := rt.Delete([]byte("k")); !errors.Is(err, engine.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestWritableBeginOnReadOnlyEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0")
	e, err := Open(path, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	e.Close()

	ro, err := Open(path, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()
	if _, err := ro.Begin(true); !errors.Is(err, engine.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestMaxSizeEnforced(t *testing.T) {
	dir := t.TempDir()
	// Small enough that a handful of 4 KiB values exceed it, large enough
	// for bbolt's initial pages.
	e, err := Open(filepath.Join(dir, "0"), false, 64*1024)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	tx := mustBegin(t, e, true)
	defer tx.Rollback()
	val := make([]byte, 4096)
	var full bool
	for i := 0; i < 64; i++ {
		err := tx.Put([]byte(fmt.Sprintf("key-%02d", i)), val)
		if err != nil {
			if !errors.Is(err, engine.ErrFull) {
				t.Fatalf("expected ErrFull, got %v", err)
			}
			full = true
			break
		}
	}
	if !full {
		t.Fatal("writes past max size should fail with ErrFull")
	}
}

func TestCrossProcessLockConflict(t *testing.T) {
	// Two writable opens of the same file in one process contend on the
	// file lock exactly like two processes would.
	dir := t.TempDir()
	path := filepath.Join(dir, "0")
	e1, err := Open(path, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer e1.Close()

	_, err = Open(path, false, 0)
	if !errors.Is(err, engine.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestFinishedTxnRejected(t *testing.T) {
	e := tempEnv(t)
	tx := mustBegin(t, e, true)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Get([]byte("k")); !errors.Is(err, engine.ErrTxnDone) {
		t.Fatalf("expected ErrTxnDone, got %v", err)
	}
	if err := tx.Put([]byte("k"), nil); !errors.Is(err, engine.ErrTxnDone) {
		t.Fatalf("expected ErrTxnDone, got %v", err)
	}
	// Rollback after commit is a no-op.
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
}
