// Package rootfs switches the calling process onto a new root file system
// with pivot_root. It must run inside a fresh mount namespace, after the
// parent has released the process; every step is fatal and the caller must
// not exec on a half-transitioned root.
package rootfs

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/OmarBouchoucha0/docker-clone/pkg/mount"
)

// OldRootName is the staging directory for the previous root, created inside
// the new root and removed once the old root is unmounted.
const OldRootName = ".old_root"

// Step names a stage of the root transition.
type Step string

const (
	StepResolve      Step = "resolve rootfs"
	StepPrivatize    Step = "privatize mount tree"
	StepBindSelf     Step = "bind rootfs onto itself"
	StepStageOldRoot Step = "stage old root"
	StepPivot        Step = "pivot_root"
	StepChdirRoot    Step = "chdir to new root"
	StepUnmountOld   Step = "unmount old root"
	StepRemoveOld    Step = "remove old root"
	StepMountProc    Step = "mount proc"
)

// StepError reports which stage of the transition failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("rootfs: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func fail(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// Transition makes newRoot the process root and mounts a fresh /proc inside
// it. The sequence is one-way: each step runs only after the previous one
// succeeded, and the old root is deleted only after the pivot and unmount
// are confirmed, so a failed attempt leaves the staging directory retryable.
func Transition(newRoot string) error {
	root, err := canonicalize(newRoot)
	if err != nil {
		return fail(StepResolve, err)
	}

	// no mount below this process escapes to the host from here on
	if err := mount.Private("/").Mount(); err != nil {
		return fail(StepPrivatize, err)
	}
	// pivot_root requires the new root to be a mount point
	if err := mount.Bind(root, root).Mount(); err != nil {
		return fail(StepBindSelf, err)
	}
	if err := os.MkdirAll(filepath.Join(root, OldRootName), 0700); err != nil {
		return fail(StepStageOldRoot, err)
	}
	// pivot with relative paths so the new root never needs to be
	// re-resolved after the switch
	if err := unix.Chdir(root); err != nil {
		return fail(StepPivot, err)
	}
	if err := unix.PivotRoot(".", OldRootName); err != nil {
		return fail(StepPivot, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fail(StepChdirRoot, err)
	}
	// lazy detach: in-use references to the old root must not block the
	// teardown
	if err := unix.Unmount("/"+OldRootName, unix.MNT_DETACH); err != nil {
		return fail(StepUnmountOld, err)
	}
	if err := os.RemoveAll("/" + OldRootName); err != nil {
		return fail(StepRemoveOld, err)
	}
	if err := mount.Proc("/proc").Mount(); err != nil {
		return fail(StepMountProc, err)
	}
	return nil
}

// canonicalize resolves the rootfs to an absolute, symlink-free directory
// path before any mount references it.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%s is not a directory", resolved)
	}
	return resolved, nil
}
