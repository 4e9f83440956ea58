// Package policy holds the resource confinement policy applied to a launch.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults: 100 MiB of memory and 50% of one core.
const (
	DefaultMemoryBytes uint64 = 100 << 20
	DefaultCPUQuota    uint64 = 50000
	DefaultCPUPeriod   uint64 = 100000
)

// Policy bounds the container's memory, CPU and process count. CPUQuota and
// CPUPeriod are in microseconds: the container may run CPUQuota usec out of
// every CPUPeriod usec.
type Policy struct {
	MemoryBytes uint64 `yaml:"memory_bytes"`
	CPUQuota    uint64 `yaml:"cpu_quota"`
	CPUPeriod   uint64 `yaml:"cpu_period"`
	Pids        uint64 `yaml:"pids"`
}

// Default returns the fixed policy the launcher applies when the caller
// provides none.
func Default() Policy {
	return Policy{
		MemoryBytes: DefaultMemoryBytes,
		CPUQuota:    DefaultCPUQuota,
		CPUPeriod:   DefaultCPUPeriod,
	}
}

// Load reads a YAML policy file over the defaults, so a file may override
// only some fields.
func Load(path string) (Policy, error) {
	p := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("policy: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("policy: %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the policy invariants: a positive memory ceiling and a cpu
// quota within its period.
func (p Policy) Validate() error {
	if p.MemoryBytes == 0 {
		return fmt.Errorf("memory limit must be positive")
	}
	if p.CPUQuota == 0 || p.CPUPeriod == 0 {
		return fmt.Errorf("cpu quota and period must be positive")
	}
	if p.CPUQuota > p.CPUPeriod {
		return fmt.Errorf("cpu quota %d exceeds period %d", p.CPUQuota, p.CPUPeriod)
	}
	return nil
}

// SetMemoryMB sets the memory ceiling from a MiB count.
func (p *Policy) SetMemoryMB(mb uint64) {
	p.MemoryBytes = mb << 20
}

// SetCPUPercent sets the quota as a share of one core over the current
// period.
func (p *Policy) SetCPUPercent(pct uint64) {
	p.CPUQuota = p.CPUPeriod * pct / 100
}
