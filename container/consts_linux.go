package container

// PathEnv is the fixed minimal PATH the contained command is resolved
// against and started with.
const PathEnv = "PATH=/bin:/sbin:/usr/bin:/usr/sbin"

const (
	// initArg marks the re-exec'd child process
	initArg = "container_init"

	// defaultHostname is set inside the uts namespace unless overridden
	defaultHostname = "docker-clone"

	// initFd is where the child's socketpair end is inherited
	// (stdin/stdout/stderr occupy 0-2)
	initFd = 3

	// releaseByte is the single handshake message
	releaseByte byte = 1
)
