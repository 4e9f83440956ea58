package container

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/OmarBouchoucha0/docker-clone/pkg/policy"
	"github.com/OmarBouchoucha0/docker-clone/pkg/unixsocket"
)

// TestMain re-enters Init for the children spawned by the launch tests.
func TestMain(m *testing.M) {
	Init()
	os.Exit(m.Run())
}

func TestLaunchRootfsMissing(t *testing.T) {
	l := &Launcher{
		Rootfs:  filepath.Join(t.TempDir(), "does-not-exist"),
		Command: "/bin/true",
	}
	_, err := l.Launch()
	if !errors.Is(err, ErrRootfsNotDir) {
		t.Fatalf("expected ErrRootfsNotDir, got %v", err)
	}
}

func TestLaunchNoCommand(t *testing.T) {
	l := &Launcher{Rootfs: t.TempDir()}
	if _, err := l.Launch(); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLaunchInvalidPolicy(t *testing.T) {
	l := &Launcher{
		Rootfs:  t.TempDir(),
		Command: "/bin/true",
		Policy:  policy.Policy{MemoryBytes: 4096, CPUQuota: 3000, CPUPeriod: 2000},
	}
	if _, err := l.Launch(); err == nil {
		t.Fatal("expected error for quota beyond period")
	}
}

func TestWaitRelease(t *testing.T) {
	parent, child, err := unixsocket.NewSocketPair()
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()
	defer child.Close()

	go parent.SendMsg([]byte{releaseByte}, nil)
	if err := waitRelease(child); err != nil {
		t.Errorf("waitRelease: %v", err)
	}
}

func TestWaitReleaseWrongByte(t *testing.T) {
	parent, child, err := unixsocket.NewSocketPair()
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()
	defer child.Close()

	go parent.SendMsg([]byte{0x42}, nil)
	if err := waitRelease(child); err == nil {
		t.Error("expected error for unexpected message")
	}
}

func TestWaitReleaseParentGone(t *testing.T) {
	parent, child, err := unixsocket.NewSocketPair()
	if err != nil {
		t.Fatal(err)
	}
	defer child.Close()

	// parent aborts without sending: the child side must treat this as
	// setup failure, not proceed
	parent.Close()
	if err := waitRelease(child); err == nil {
		t.Error("expected error after parent closed without release")
	}
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "tool")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	if p, err := lookPath(bin); err != nil || p != bin {
		t.Errorf("lookPath(%q) = %q, %v", bin, p, err)
	}
	if _, err := lookPath(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing absolute path")
	}
	if _, err := lookPath(dir); err == nil {
		t.Error("expected error for directory")
	}
	if _, err := lookPath("definitely-not-a-real-command-zzz"); err == nil {
		t.Error("expected error for command absent from the fixed PATH")
	}
}

// testRootfs builds a minimal root file system around a static busybox.
func testRootfs(t *testing.T) string {
	t.Helper()
	busybox, err := exec.LookPath("busybox")
	if err != nil {
		t.Skip("busybox not available")
	}
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	src, err := os.Open(busybox)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	for _, name := range []string{"echo", "sh", "true", "hostname"} {
		dst, err := os.OpenFile(filepath.Join(root, "bin", name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			t.Fatal(err)
		}
		dst.Close()
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestLaunchEcho(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	root := testRootfs(t)

	l := &Launcher{
		Rootfs:  root,
		Command: "/bin/echo",
		Args:    []string{"hello"},
	}
	res, err := l.Launch()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Cgroup.Destroy() })

	if res.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", res.ExitStatus)
	}
	// the transition must leave no staging directory behind
	if _, err := os.Stat(filepath.Join(root, ".old_root")); !os.IsNotExist(err) {
		t.Errorf("old root staging directory left in rootfs: %v", err)
	}
}

func TestLaunchMissingCommand(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	root := testRootfs(t)

	l := &Launcher{
		Rootfs:  root,
		Command: "/bin/does-not-exist",
	}
	res, err := l.Launch()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Cgroup.Destroy() })

	if res.ExitStatus != 1 {
		t.Errorf("exit status = %d, want 1", res.ExitStatus)
	}
}

func TestLaunchConcurrentCgroups(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	root := testRootfs(t)

	launch := func() *Result {
		l := &Launcher{Rootfs: root, Command: "/bin/true"}
		res, err := l.Launch()
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a := launch()
	b := launch()
	t.Cleanup(func() {
		a.Cgroup.Destroy()
		b.Cgroup.Destroy()
	})
	if a.Cgroup.Path() == b.Cgroup.Path() {
		t.Errorf("launches share the cgroup path %q", a.Cgroup.Path())
	}
}
