package meta

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	want := Meta{FormatVersion: 1, ShardCount: 4, Serializer: "go-json"}
	if err := Write(dir, want); err != nil {
		t.Fatal(err)
	}
	got, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v != %+v", got, want)
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	m := Meta{FormatVersion: 1, ShardCount: 1}
	if err := Write(dir, m); err != nil {
		t.Fatal(err)
	}
	if err := Write(dir, m); err == nil {
		t.Fatal("second write should fail: metadata is write-once")
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestReadGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("not = [valid"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(dir); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestReadOutOfRange(t *testing.T) {
	cases := []string{
		"format_version = 0\nshard_count = 4\n",
		"format_version = 1\nshard_count = 0\n",
		"format_version = 1\nshard_count = 512\n",
	}
	for _, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(dir); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("body %q: expected ErrCorrupt, got %v", body, err)
		}
	}
}
