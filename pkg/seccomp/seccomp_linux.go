// Package seccomp installs the optional pre-exec syscall filter that keeps a
// contained command from re-entering the namespace and mount machinery the
// launcher just finished setting up.
package seccomp

import (
	"errors"
	"fmt"

	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// deniedSyscalls is the escape-prone family: mount and root manipulation,
// namespace re-entry, module loading and host power control. Everything else
// stays allowed; this is hardening, not a judge-style allowlist.
var deniedSyscalls = []string{
	"mount", "umount2", "pivot_root", "chroot",
	"mount_setattr", "move_mount", "open_tree", "fsopen", "fsconfig", "fsmount", "fspick",
	"setns", "unshare",
	"init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"reboot", "swapon", "swapoff",
}

// Install loads a filter denying the escape-prone syscalls with EPERM. The
// filter sets no_new_privs, so it survives the execve into the target
// command and applies to everything it spawns.
func Install() error {
	if !libseccomp.Supported() {
		return errors.New("seccomp: not supported by this kernel")
	}
	filter := libseccomp.Filter{
		NoNewPrivs: true,
		Flag:       libseccomp.FilterFlagTSync,
		Policy: libseccomp.Policy{
			DefaultAction: libseccomp.ActionAllow,
			Syscalls: []libseccomp.SyscallGroup{
				{
					Action: libseccomp.ActionErrno,
					Names:  deniedSyscalls,
				},
			},
		},
	}
	if err := libseccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("seccomp: load filter: %w", err)
	}
	return nil
}
