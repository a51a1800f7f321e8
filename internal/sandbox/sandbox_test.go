package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestCreate_MakesDirectory(t *testing.T) {
	sb := New("test-exec-1", zap.NewNop())

	path, err := sb.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sb.Cleanup()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("sandbox dir does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("sandbox path is not a directory")
	}
	if !strings.Contains(filepath.Base(path), "test-exec-1") {
		t.Errorf("expected execution id in dir name, got %q", path)
	}
}

func TestCreate_Idempotent(t *testing.T) {
	sb := New("test-exec-2", zap.NewNop())

	first, err := sb.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sb.Cleanup()

	second, err := sb.Create()
	if err != nil {
		t.Fatalf("unexpected error on second create: %v", err)
	}
	if first != second {
		t.Errorf("expected same path on repeated create, got %q then %q", first, second)
	}
}

func TestCreate_UniquePerSandbox(t *testing.T) {
	a := New("same-id", zap.NewNop())
	b := New("same-id", zap.NewNop())

	pathA, err := a.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Cleanup()

	pathB, err := b.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Cleanup()

	if pathA == pathB {
		t.Errorf("two sandboxes share the same directory: %q", pathA)
	}
}

func TestCreate_FailsWhenTempRootMissing(t *testing.T) {
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "does-not-exist"))

	sb := New("test-exec-3", zap.NewNop())
	if _, err := sb.Create(); err == nil {
		sb.Cleanup()
		t.Fatal("expected create to fail with missing temp root")
	}
}

func TestCleanup_RemovesContents(t *testing.T) {
	sb := New("test-exec-4", zap.NewNop())

	path, err := sb.Create()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(path, "test.txt"), []byte("data"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sb.Cleanup()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected sandbox dir removed, stat err = %v", err)
	}
	if sb.Path() != "" {
		t.Errorf("expected empty path after cleanup, got %q", sb.Path())
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	sb := New("test-exec-5", zap.NewNop())

	// Cleanup before create is a no-op.
	sb.Cleanup()

	if _, err := sb.Create(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sb.Cleanup()
	sb.Cleanup() // second call must be a silent no-op
}
