package rootfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTransitionMissingRoot(t *testing.T) {
	err := Transition(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("expected error for missing rootfs")
	}
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StepError", err)
	}
	if se.Step != StepResolve {
		t.Errorf("failed step = %q, want %q", se.Step, StepResolve)
	}
}

func TestTransitionRootfsIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "rootfs")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	err := Transition(f)
	var se *StepError
	if !errors.As(err, &se) || se.Step != StepResolve {
		t.Fatalf("expected resolve failure for non-directory rootfs, got %v", err)
	}
}

func TestCanonicalize(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	got, err := canonicalize(link)
	if err != nil {
		t.Fatal(err)
	}
	// EvalSymlinks may also resolve symlinks in the tempdir prefix
	want, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("canonicalize(%q) = %q, want %q", link, got, want)
	}
}

func TestStepErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := fail(StepPivot, inner)
	if !errors.Is(err, inner) {
		t.Error("StepError must unwrap to the underlying error")
	}
	if got := err.Error(); got != "rootfs: pivot_root: boom" {
		t.Errorf("Error() = %q", got)
	}
}
