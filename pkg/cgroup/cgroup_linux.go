package cgroup

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

const (
	basePath       = "/sys/fs/cgroup"
	procSelfCgroup = "/proc/self/cgroup"

	cgroupProcs          = "cgroup.procs"
	cgroupControllers    = "cgroup.controllers"
	cgroupSubtreeControl = "cgroup.subtree_control"

	memoryMax    = "memory.max"
	memoryEvents = "memory.events"
	cpuMax       = "cpu.max"
	pidsMax      = "pids.max"

	filePerm = 0644
	dirPerm  = 0755
)

// groupPrefix names created container groups; the confined pid is appended
// so overlapping launches get distinct groups.
const groupPrefix = "docker-clone-"

// Limits are the absolute resource ceilings applied to a container group.
// CPUQuota / CPUPeriod are in microseconds: the group may run CPUQuota usec
// out of every CPUPeriod usec.
type Limits struct {
	MemoryBytes uint64
	CPUQuota    uint64
	CPUPeriod   uint64
	Pids        uint64 // 0 leaves pids.max untouched
}

// Handle refers to a created container cgroup directory.
type Handle struct {
	path string
}

// Check verifies the unified hierarchy is mounted and the caller's
// membership record is readable. Launchers call it before spawning anything
// so a broken hierarchy fails fast, leaving no child process or kernel state
// behind.
func Check() error {
	if !Mounted() {
		return fmt.Errorf("cgroup: %s is not a cgroup v2 mount", basePath)
	}
	_, err := selfUnifiedPath()
	return err
}

// Apply creates a cgroup for pid under the caller's own group, writes the
// limits and attaches pid to it. The group is left in place when the process
// exits; callers remove it with Destroy.
func Apply(pid int, l Limits) (*Handle, error) {
	self, err := selfUnifiedPath()
	if err != nil {
		return nil, err
	}
	return applyUnder(path.Join(basePath, self), pid, l)
}

// applyUnder runs the create/limit/attach sequence beneath parent. Split out
// from Apply so the filesystem surface can be exercised against a plain
// directory tree.
func applyUnder(parent string, pid int, l Limits) (*Handle, error) {
	// delegation is best effort: a group without cgroup.controllers cannot
	// delegate, and the kernel refuses subtree_control writes while the
	// parent still has member processes
	enableControllers(parent)

	h := &Handle{path: path.Join(parent, groupPrefix+strconv.Itoa(pid))}
	if err := os.MkdirAll(h.path, dirPerm); err != nil {
		return nil, fmt.Errorf("cgroup: create %s: %w", h.path, err)
	}
	if err := h.writeUint(memoryMax, l.MemoryBytes); err != nil {
		return nil, fmt.Errorf("cgroup: set memory limit: %w", err)
	}
	cpu := strconv.FormatUint(l.CPUQuota, 10) + " " + strconv.FormatUint(l.CPUPeriod, 10)
	if err := h.writeFile(cpuMax, []byte(cpu)); err != nil {
		return nil, fmt.Errorf("cgroup: set cpu bandwidth: %w", err)
	}
	if l.Pids > 0 {
		if err := h.writeUint(pidsMax, l.Pids); err != nil {
			return nil, fmt.Errorf("cgroup: set pids limit: %w", err)
		}
	}
	if err := h.AddProc(pid); err != nil {
		return nil, fmt.Errorf("cgroup: attach pid %d: %w", pid, err)
	}
	return h, nil
}

// selfUnifiedPath reads the caller's cgroup membership and extracts the
// unified hierarchy entry, relative to the cgroup mount root.
func selfUnifiedPath() (string, error) {
	b, err := readFile(procSelfCgroup)
	if err != nil {
		return "", fmt.Errorf("cgroup: read %s: %w", procSelfCgroup, err)
	}
	return parseUnifiedPath(b)
}

func parseUnifiedPath(b []byte) (string, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		if p, ok := strings.CutPrefix(s.Text(), "0::"); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("cgroup: no unified hierarchy entry (cgroup v2 required)")
}

// enableControllers delegates every controller listed in parent's
// cgroup.controllers to its children. Writing a controller that is already
// enabled is a no-op to the kernel, so repeated calls are idempotent.
func enableControllers(parent string) error {
	b, err := readFile(path.Join(parent, cgroupControllers))
	if err != nil {
		return err
	}
	controllers := strings.Fields(string(b))
	if len(controllers) == 0 {
		return nil
	}
	control := []byte("+" + strings.Join(controllers, " +"))
	return writeFile(path.Join(parent, cgroupSubtreeControl), control, filePerm)
}

// Path returns the group directory on the host.
func (h *Handle) Path() string {
	return h.path
}

// AddProc attaches a process to the group.
func (h *Handle) AddProc(pid int) error {
	return h.writeUint(cgroupProcs, uint64(pid))
}

// Destroy removes the group directory. It fails while processes remain
// attached.
func (h *Handle) Destroy() error {
	return os.Remove(h.path)
}

// Processes lists the pids currently attached to the group.
func (h *Handle) Processes() ([]int, error) {
	b, err := h.readFile(cgroupProcs)
	if err != nil {
		return nil, err
	}
	var pids []int
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		if s.Text() == "" {
			continue
		}
		pid, err := strconv.Atoi(s.Text())
		if err != nil {
			return nil, fmt.Errorf("cgroup: parse %s: %w", cgroupProcs, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// MemoryUsage reads memory.current.
func (h *Handle) MemoryUsage() (uint64, error) {
	return h.readUint("memory.current")
}

// MemoryPeak reads memory.peak. Not present on kernels before 5.19.
func (h *Handle) MemoryPeak() (uint64, error) {
	return h.readUint("memory.peak")
}

// CPUUsage reads cpu.stat usage_usec and reports it in nanoseconds.
func (h *Handle) CPUUsage() (uint64, error) {
	b, err := h.readFile("cpu.stat")
	if err != nil {
		return 0, err
	}
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) == 2 && parts[0] == "usage_usec" {
			v, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				return 0, err
			}
			return v * 1000, nil
		}
	}
	return 0, os.ErrNotExist
}

// OOMKilled reports whether the kernel oom killer fired inside the group,
// from the oom_kill counter in memory.events.
func (h *Handle) OOMKilled() (bool, error) {
	b, err := h.readFile(memoryEvents)
	if err != nil {
		return false, err
	}
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) == 2 && parts[0] == "oom_kill" {
			v, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				return false, err
			}
			return v > 0, nil
		}
	}
	return false, nil
}

func (h *Handle) readFile(name string) ([]byte, error) {
	return readFile(path.Join(h.path, name))
}

func (h *Handle) writeFile(name string, content []byte) error {
	return writeFile(path.Join(h.path, name), content, filePerm)
}

func (h *Handle) readUint(name string) (uint64, error) {
	b, err := h.readFile(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

func (h *Handle) writeUint(name string, v uint64) error {
	return h.writeFile(name, []byte(strconv.FormatUint(v, 10)))
}
