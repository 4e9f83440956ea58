// Package container launches a single command inside an isolated,
// resource-bounded process built from an unpacked root file system.
//
// # Launch sequence
//
// Launch re-executes /proc/self/exe with an init argument in fresh pid,
// mount, uts and user namespaces, sharing one end of a SOCK_SEQPACKET
// socketpair with the child at fd 3. The child blocks on that socket before
// any namespace-visible side effect. The parent, now knowing the child's
// pid, creates and populates its cgroup and writes its user namespace
// identity mapping, then releases the child with a single byte. The released
// child sets its hostname, pivots onto the new root, mounts /proc and
// replaces itself with the target command. The parent blocks until the child
// terminates and reports its exit status.
//
// # Handshake
//
// Exactly one message, one byte, is ever sent over the socketpair, by the
// parent, after the pid-dependent setup succeeded. On any parent-side
// failure the parent closes its end instead; the child treats a read error,
// EOF or a malformed message as "setup failed" and exits with status 1
// rather than continuing into mount or exec operations.
//
// # Errors
//
// Parent-side failures surface as wrapped errors from Launch. Child-side
// failures happen in a different process and cannot travel back through a
// return value: they become stderr diagnostics and exit status 1, observed
// by the parent only as that status.
package container
