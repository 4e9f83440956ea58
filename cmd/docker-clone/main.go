// Command docker-clone runs a single command inside an isolated,
// resource-bounded container built from an unpacked root file system.
//
// Usage:
//
//	docker-clone run [flags] ROOTFS COMMAND [ARGS...]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/OmarBouchoucha0/docker-clone/container"
	"github.com/OmarBouchoucha0/docker-clone/pkg/policy"
)

// re-entry point for the child process spawned by Launch
func init() {
	container.Init()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 || args[0] != "run" {
		usage()
		return 2
	}

	flags := pflag.NewFlagSet("run", pflag.ExitOnError)
	flags.Usage = usage
	flags.SetInterspersed(false)
	memoryMB := flags.Uint64("memory-mb", 100, "memory ceiling in MiB")
	cpuPercent := flags.Uint64("cpu-percent", 50, "cpu share as a percentage of one core")
	pids := flags.Uint64("pids", 0, "max process count (0 = unlimited)")
	hostname := flags.String("hostname", "docker-clone", "container hostname")
	seccomp := flags.Bool("seccomp", false, "deny mount and namespace syscalls after setup")
	configPath := flags.String("config", "", "YAML resource policy file")
	keepCgroup := flags.Bool("keep-cgroup", false, "leave the cgroup in place after exit")
	verbose := flags.BoolP("verbose", "v", false, "log launch progress")
	flags.Parse(args[1:])

	rest := flags.Args()
	if len(rest) < 2 {
		usage()
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "docker-clone: %v\n", err)
			return 1
		}
		defer logger.Sync()
	}

	pol := policy.Default()
	if *configPath != "" {
		var err error
		if pol, err = policy.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "docker-clone: %v\n", err)
			return 1
		}
	}
	if flags.Changed("memory-mb") {
		pol.SetMemoryMB(*memoryMB)
	}
	if flags.Changed("cpu-percent") {
		pol.SetCPUPercent(*cpuPercent)
	}
	if flags.Changed("pids") {
		pol.Pids = *pids
	}

	l := &container.Launcher{
		Rootfs:   rest[0],
		Command:  rest[1],
		Args:     rest[2:],
		Hostname: *hostname,
		Policy:   pol,
		Seccomp:  *seccomp,
		Log:      logger,
	}
	res, err := l.Launch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docker-clone: %v\n", err)
		return 1
	}
	if res.OOMKilled {
		fmt.Fprintln(os.Stderr, "docker-clone: container was killed by the oom killer")
	}
	if *keepCgroup {
		logger.Info("cgroup kept", zap.String("path", res.Cgroup.Path()))
	} else if err := res.Cgroup.Destroy(); err != nil {
		logger.Warn("cgroup removal failed", zap.Error(err))
	}
	return res.ExitStatus
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: docker-clone run [flags] ROOTFS COMMAND [ARGS...]

Run COMMAND inside ROOTFS in fresh pid, mount, uts and user namespaces,
confined by a cgroup.

Flags:
      --memory-mb uint     memory ceiling in MiB (default 100)
      --cpu-percent uint   cpu share as a percentage of one core (default 50)
      --pids uint          max process count (0 = unlimited)
      --hostname string    container hostname (default "docker-clone")
      --seccomp            deny mount and namespace syscalls after setup
      --config string      YAML resource policy file
      --keep-cgroup        leave the cgroup in place after exit
  -v, --verbose            log launch progress`)
}
