package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/OmarBouchoucha0/docker-clone/pkg/cgroup"
	"github.com/OmarBouchoucha0/docker-clone/pkg/idmap"
	"github.com/OmarBouchoucha0/docker-clone/pkg/policy"
	"github.com/OmarBouchoucha0/docker-clone/pkg/unixsocket"
)

// cloneFlags are the namespaces every launch gets. Partial isolation is not
// a supported configuration: the ordering guarantees below assume all four.
const cloneFlags = unix.CLONE_NEWPID | unix.CLONE_NEWNS | unix.CLONE_NEWUTS | unix.CLONE_NEWUSER

// ErrRootfsNotDir is returned before any process or kernel state is created
// when the rootfs precondition fails.
var ErrRootfsNotDir = errors.New("rootfs is not an existing directory")

// Launcher describes a single container launch.
type Launcher struct {
	// Rootfs is the unpacked root file system directory.
	Rootfs string

	// Command and Args are the program executed inside the container.
	// Command is resolved against the fixed container PATH.
	Command string
	Args    []string

	// Hostname inside the uts namespace (default: docker-clone).
	Hostname string

	// Policy bounds the container's resources; the zero value means the
	// fixed default policy (100 MiB, 50% of one core).
	Policy policy.Policy

	// Seccomp loads the syscall deny filter just before exec.
	Seccomp bool

	// Log receives parent-side progress; nil means no logging.
	Log *zap.Logger
}

// Result reports the outcome of a finished container.
type Result struct {
	// ExitStatus is the contained command's exit status; 128+signal if it
	// was killed by a signal.
	ExitStatus int

	// OOMKilled is set when the kernel oom killer fired inside the
	// container's cgroup.
	OOMKilled bool

	// Cgroup is the container's control group, left in place for
	// inspection. The caller removes it with Destroy.
	Cgroup *cgroup.Handle
}

// Launch runs the container and blocks until the contained command
// terminates. A non-zero exit status of the command is reported through
// Result, not as an error.
func (l *Launcher) Launch() (*Result, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}

	// preconditions, before any process or kernel side effect
	st, err := os.Stat(l.Rootfs)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("container: %q: %w", l.Rootfs, ErrRootfsNotDir)
	}
	if l.Command == "" {
		return nil, errors.New("container: no command given")
	}
	pol := l.Policy
	if pol == (policy.Policy{}) {
		pol = policy.Default()
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	if err := cgroup.Check(); err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	hostname := l.Hostname
	if hostname == "" {
		hostname = defaultHostname
	}

	payload, err := json.Marshal(initSpec{
		Rootfs:   l.Rootfs,
		Hostname: hostname,
		Command:  l.Command,
		Args:     l.Args,
		Seccomp:  l.Seccomp,
	})
	if err != nil {
		return nil, fmt.Errorf("container: encode init spec: %w", err)
	}

	parent, child, err := unixsocket.NewSocketPair()
	if err != nil {
		return nil, fmt.Errorf("container: create sync channel: %w", err)
	}
	defer parent.Close()

	childFile, err := child.File()
	child.Close()
	if err != nil {
		return nil, fmt.Errorf("container: dup child socket: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		childFile.Close()
		return nil, fmt.Errorf("container: resolve own executable: %w", err)
	}

	cmd := exec.Cmd{
		Path:       exe,
		Args:       []string{os.Args[0], initArg, string(payload)},
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		ExtraFiles: []*os.File{childFile},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: cloneFlags,
		},
	}
	if err := cmd.Start(); err != nil {
		childFile.Close()
		return nil, fmt.Errorf("container: spawn: %w", err)
	}
	childFile.Close()
	pid := cmd.Process.Pid
	log.Info("container started", zap.Int("pid", pid))

	// abort closes the parent's socket end without sending the release
	// byte; the blocked child observes EOF, exits with status 1 and is
	// reaped here before the error is surfaced.
	abort := func(err error) (*Result, error) {
		parent.Close()
		_ = cmd.Wait()
		return nil, err
	}

	// pid-dependent setup: both must complete before the child is released
	cg, err := cgroup.Apply(pid, cgroup.Limits{
		MemoryBytes: pol.MemoryBytes,
		CPUQuota:    pol.CPUQuota,
		CPUPeriod:   pol.CPUPeriod,
		Pids:        pol.Pids,
	})
	if err != nil {
		return abort(err)
	}
	log.Info("cgroup configured", zap.String("path", cg.Path()))

	if err := idmap.Map(pid, os.Geteuid(), os.Getegid()); err != nil {
		return abort(err)
	}

	if err := parent.SendMsg([]byte{releaseByte}, nil); err != nil {
		return abort(fmt.Errorf("container: release child: %w", err))
	}

	werr := cmd.Wait()
	var exitErr *exec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		return nil, fmt.Errorf("container: wait: %w", werr)
	}

	res := &Result{
		ExitStatus: cmd.ProcessState.ExitCode(),
		Cgroup:     cg,
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		res.ExitStatus = 128 + int(ws.Signal())
	}
	if oom, err := cg.OOMKilled(); err == nil {
		res.OOMKilled = oom
	}
	log.Info("container exited", zap.Int("pid", pid), zap.Int("status", res.ExitStatus))
	return res, nil
}
