package container

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// execCommand resolves command against the fixed container PATH and replaces
// the process image with it. On success it does not return. The environment
// is built explicitly and handed to the exec syscall; ambient process state
// is never mutated.
func execCommand(command string, args []string) error {
	pathname, err := lookPath(command)
	if err != nil {
		return err
	}
	argv := append([]string{command}, args...)
	env := []string{PathEnv}
	// reports encoding errors (a NUL byte in an argument) as EINVAL before
	// the syscall is made
	if err := unix.Exec(pathname, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", pathname, err)
	}
	return nil
}

// lookPath resolves name against the fixed PATH without consulting or
// mutating the process environment.
func lookPath(name string) (string, error) {
	if strings.Contains(name, "/") {
		if err := findExecutable(name); err != nil {
			return "", fmt.Errorf("exec %s: %w", name, err)
		}
		return name, nil
	}
	for _, dir := range filepath.SplitList(strings.TrimPrefix(PathEnv, "PATH=")) {
		p := filepath.Join(dir, name)
		if err := findExecutable(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("exec %s: not found in %s", name, PathEnv)
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}
