package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExistsAndNonEmpty(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	os.WriteFile(empty, nil, 0o644)
	os.WriteFile(full, []byte("x"), 0o644)

	if Exists(missing) || IsNonEmpty(missing) {
		t.Error("missing file reported present")
	}
	if !Exists(empty) || IsNonEmpty(empty) {
		t.Error("empty file misreported")
	}
	if !Exists(full) || !IsNonEmpty(full) {
		t.Error("non-empty file misreported")
	}
}

func TestWriteTmpThenMove(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sub", "artifact.csv")
	err := WriteTmpThenMove(out, func(tmp string) error {
		return os.WriteFile(tmp, []byte("data\n"), 0o644)
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != "data\n" {
		t.Fatalf("artifact = %q, %v", b, err)
	}
	if Exists(out + ".tmp") {
		t.Error("temp file left behind")
	}
}

func TestWriteTmpThenMoveFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "artifact.csv")
	boom := errors.New("boom")
	err := WriteTmpThenMove(out, func(tmp string) error {
		os.WriteFile(tmp, []byte("partial"), 0o644)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if Exists(out) {
		t.Error("failed write published an artifact")
	}
	if Exists(out + ".tmp") {
		t.Error("failed write left its temp file")
	}
}

func TestCleanupTmpFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.MkdirAll(sub, 0o755)
	stale := filepath.Join(dir, "shard_host_1_0.tmp")
	keepOther := filepath.Join(dir, "keep.tmp")
	keepForeign := filepath.Join(dir, "shard_host_2_0.tmp")
	keepNested := filepath.Join(sub, "shard_host_1_1.tmp")
	for _, p := range []string{stale, keepOther, keepForeign, keepNested} {
		os.WriteFile(p, []byte("x"), 0o644)
	}

	if err := CleanupTmpFiles(dir, "shard_host_1_*.tmp"); err != nil {
		t.Fatal(err)
	}
	if Exists(stale) {
		t.Error("stale shard survived")
	}
	if !Exists(keepOther) {
		t.Error("non-matching tmp file removed")
	}
	if !Exists(keepForeign) {
		t.Error("another process's shard removed")
	}
	if !Exists(keepNested) {
		t.Error("nested file removed")
	}
}
