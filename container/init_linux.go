package container

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/OmarBouchoucha0/docker-clone/pkg/rootfs"
	"github.com/OmarBouchoucha0/docker-clone/pkg/seccomp"
	"github.com/OmarBouchoucha0/docker-clone/pkg/unixsocket"
)

// initSpec is the launch configuration handed to the re-exec'd child through
// its argument vector. The sync channel itself carries nothing but the
// release byte.
type initSpec struct {
	Rootfs   string   `json:"rootfs"`
	Hostname string   `json:"hostname"`
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	Seccomp  bool     `json:"seccomp,omitempty"`
}

// Init is the body of the child process. Call it before any CLI handling;
// it is a no-op unless the process was re-exec'd by Launch. On success it
// never returns: the process image is replaced by the target command. Every
// failure exits with status 1.
func Init() {
	if len(os.Args) != 3 || os.Args[1] != initArg {
		return
	}
	// spawned with CLONE_NEWPID, so the child must be pid 1 of its
	// namespace; anything else means the init argument leaked
	if os.Getpid() != 1 {
		fatalf("not pid 1 in a new pid namespace")
	}

	var spec initSpec
	if err := json.Unmarshal([]byte(os.Args[2]), &spec); err != nil {
		fatalf("decode init spec: %v", err)
	}

	// block until the parent finished cgroup attachment and identity
	// mapping; no mount, pivot or exec may happen before that
	s, err := unixsocket.NewSocket(initFd)
	if err != nil {
		fatalf("open sync channel: %v", err)
	}
	if err := waitRelease(s); err != nil {
		fatalf("%v", err)
	}
	s.Close()

	if err := unix.Sethostname([]byte(spec.Hostname)); err != nil {
		fatalf("sethostname: %v", err)
	}
	if err := rootfs.Transition(spec.Rootfs); err != nil {
		fatalf("%v", err)
	}
	if spec.Seccomp {
		if err := seccomp.Install(); err != nil {
			fatalf("%v", err)
		}
	}

	// replaces the process image; returns only on failure
	err = execCommand(spec.Command, spec.Args)
	fatalf("%v", err)
}

func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "container_init: "+format+"\n", v...)
	os.Exit(1)
}
