package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileOverrides_NoFileConfigured(t *testing.T) {
	t.Setenv("AGENTD_CONFIG_FILE", "")
	cfg := &Config{HTTPAddr: ":8090", MaxConcurrentExecutions: 8}
	require.NoError(t, loadFileOverrides(cfg))
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.MaxConcurrentExecutions)
}

func TestLoadFileOverrides_OverridesNonZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
max_concurrent_executions: 16
admin_group_by_plan_id: false
`), 0o644))
	t.Setenv("AGENTD_CONFIG_FILE", path)

	cfg := &Config{
		HTTPAddr:                  ":8090",
		MaxConcurrentExecutions:   8,
		AdminGroupActionsByPlanID: true,
		PersistenceCallTimeout:    30 * time.Second,
	}
	require.NoError(t, loadFileOverrides(cfg))

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 16, cfg.MaxConcurrentExecutions)
	assert.False(t, cfg.AdminGroupActionsByPlanID)
	// Fields absent from the file are left untouched.
	assert.Equal(t, 30*time.Second, cfg.PersistenceCallTimeout)
}

func TestLoadFileOverrides_UnreadableFileErrors(t *testing.T) {
	t.Setenv("AGENTD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg := &Config{}
	assert.Error(t, loadFileOverrides(cfg))
}
