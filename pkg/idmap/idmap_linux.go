// Package idmap writes user namespace identity mappings for a child process
// from the parent side. The parent must finish these writes before the child
// performs any privileged operation, since they decide what uid 0 inside the
// namespace means.
package idmap

import (
	"fmt"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// Map binds uid 0 and gid 0 inside pid's user namespace to hostUID and
// hostGID across a single-ID range. setgroups is denied first: the kernel
// rejects gid mappings written by an unprivileged parent while setgroups is
// still allowed.
func Map(pid, hostUID, hostGID int) error {
	return mapIdentity("/proc", pid, hostUID, hostGID)
}

func mapIdentity(procRoot string, pid, hostUID, hostGID int) error {
	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	if err := writeFile(filepath.Join(dir, "setgroups"), []byte("deny")); err != nil {
		return fmt.Errorf("idmap: deny setgroups for pid %d: %w", pid, err)
	}
	uidMap := []byte("0 " + strconv.Itoa(hostUID) + " 1")
	if err := writeFile(filepath.Join(dir, "uid_map"), uidMap); err != nil {
		return fmt.Errorf("idmap: write uid_map for pid %d: %w", pid, err)
	}
	gidMap := []byte("0 " + strconv.Itoa(hostGID) + " 1")
	if err := writeFile(filepath.Join(dir, "gid_map"), gidMap); err != nil {
		return fmt.Errorf("idmap: write gid_map for pid %d: %w", pid, err)
	}
	return nil
}

// writeFile opens without O_CREAT: the mapping files already exist under
// /proc and each is written exactly once, fully or not at all.
func writeFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := unix.Write(fd, content); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}
