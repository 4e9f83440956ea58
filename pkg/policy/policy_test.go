package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	// 100 MiB, 50% of one core
	assert.Equal(t, uint64(104857600), p.MemoryBytes)
	assert.Equal(t, p.CPUPeriod*50, p.CPUQuota*100)
}

func TestSetMemoryMB(t *testing.T) {
	p := Default()
	for _, mb := range []uint64{1, 100, 4096} {
		p.SetMemoryMB(mb)
		assert.Equal(t, mb*1024*1024, p.MemoryBytes)
	}
}

func TestSetCPUPercent(t *testing.T) {
	p := Default()
	p.SetCPUPercent(25)
	assert.Equal(t, uint64(25000), p.CPUQuota)
	require.NoError(t, p.Validate())

	p.SetCPUPercent(100)
	assert.Equal(t, p.CPUPeriod, p.CPUQuota)
	require.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	for name, p := range map[string]Policy{
		"zero memory":          {CPUQuota: 1000, CPUPeriod: 2000},
		"zero quota":           {MemoryBytes: 4096, CPUPeriod: 2000},
		"zero period":          {MemoryBytes: 4096, CPUQuota: 1000},
		"quota exceeds period": {MemoryBytes: 4096, CPUQuota: 3000, CPUPeriod: 2000},
	} {
		assert.Error(t, p.Validate(), name)
	}
}

func TestLoad(t *testing.T) {
	f := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(f, []byte("memory_bytes: 52428800\npids: 32\n"), 0644))

	p, err := Load(f)
	require.NoError(t, err)

	// overridden fields take, the rest keep their defaults
	assert.Equal(t, uint64(52428800), p.MemoryBytes)
	assert.Equal(t, uint64(32), p.Pids)
	assert.Equal(t, DefaultCPUQuota, p.CPUQuota)
	assert.Equal(t, DefaultCPUPeriod, p.CPUPeriod)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cpu_quota: 999999\n"), 0644))
	_, err = Load(bad)
	assert.Error(t, err, "quota beyond period must fail validation")

	junk := filepath.Join(dir, "junk.yaml")
	require.NoError(t, os.WriteFile(junk, []byte("{not yaml"), 0644))
	_, err = Load(junk)
	assert.Error(t, err)
}
