// Package cgroup confines a container process on the cgroup v2 unified
// hierarchy under the systemd defined mount path (/sys/fs/cgroup).
//
// A container group is created beneath the caller's own cgroup, discovered
// from /proc/self/cgroup, and named after the confined pid so concurrent
// launches never collide. Available limits: memory.max, cpu.max and pids.max.
package cgroup
