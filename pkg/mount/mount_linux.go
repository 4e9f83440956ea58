// Package mount describes the mount operations the root transition performs.
package mount

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mount defines a single mount syscall.
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
}

// Private marks the mount tree at target private and recursive, so mounts
// performed below it never propagate to the host and vice versa.
func Private(target string) Mount {
	return Mount{Target: target, Flags: unix.MS_REC | unix.MS_PRIVATE}
}

// Bind recursively bind-mounts source onto target. Binding a directory onto
// itself guarantees it is a mount point.
func Bind(source, target string) Mount {
	return Mount{Source: source, Target: target, Flags: unix.MS_BIND | unix.MS_REC}
}

// Proc mounts a fresh proc file system at target, scoped to the calling
// process's pid namespace.
func Proc(target string) Mount {
	return Mount{Source: "proc", Target: target, FsType: "proc", Flags: unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC}
}

// Mount performs the syscall, creating the target directory if needed.
func (m Mount) Mount() error {
	if err := os.MkdirAll(m.Target, 0755); err != nil {
		return err
	}
	return unix.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data)
}

// IsBindMount reports whether the mount is a bind mount.
func (m Mount) IsBindMount() bool {
	return m.Flags&unix.MS_BIND == unix.MS_BIND
}

func (m Mount) String() string {
	switch {
	case m.IsBindMount():
		return fmt.Sprintf("bind[%s:%s]", m.Source, m.Target)
	case m.FsType == "proc":
		return fmt.Sprintf("proc[%s]", m.Target)
	case m.Flags&unix.MS_PRIVATE == unix.MS_PRIVATE:
		return fmt.Sprintf("private[%s]", m.Target)
	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
