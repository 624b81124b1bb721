package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadSettings_Defaults(t *testing.T) {
	cfg, err := LoadSettings(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ".assetflow", cfg.Home())
	assert.Equal(t, filepath.Join(".assetflow", "assetflow.db"), cfg.DBPath())
	assert.Equal(t, "claude-cli", cfg.AgentType())
	assert.Equal(t, 600, cfg.AgentTimeoutSec())
	assert.Equal(t, "local", cfg.StorageType())
	assert.Equal(t, 30, cfg.RetentionDays())
	assert.False(t, cfg.AutoApproveMappings())
	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Empty(t, cfg.SettingPath())
}

func TestLoadSettings_FromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	settingPath := filepath.Join(tmpDir, "setting.yaml")
	require.NoError(t, os.WriteFile(settingPath, []byte(`
home: /var/lib/assetflow
agent: rules
agent_timeout_sec: 120
storage: s3
s3_bucket: inventory-artifacts
s3_region: ap-northeast-1
auto_approve_mappings: true
retention_days: 7
`), 0644))

	cfg, err := LoadSettings(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/assetflow", cfg.Home())
	assert.Equal(t, "rules", cfg.AgentType())
	assert.Equal(t, 120, cfg.AgentTimeoutSec())
	assert.Equal(t, "s3", cfg.StorageType())
	assert.Equal(t, "inventory-artifacts", cfg.S3Bucket())
	assert.Equal(t, "ap-northeast-1", cfg.S3Region())
	assert.True(t, cfg.AutoApproveMappings())
	assert.Equal(t, 7, cfg.RetentionDays())
	assert.Equal(t, "yaml", cfg.ConfigSource())
	assert.Equal(t, settingPath, cfg.SettingPath())

	// Unset fields still get defaults
	assert.Equal(t, filepath.Join("/var/lib/assetflow", "assetflow.db"), cfg.DBPath())
}

func TestLoadSettings_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "setting.yaml"), []byte(`
agent: rules
retention_days: 7
`), 0644))

	t.Setenv("ASSETFLOW_AGENT", "mock")
	t.Setenv("ASSETFLOW_RETENTION_DAYS", "90")
	t.Setenv("ASSETFLOW_AUTO_APPROVE", "yes")

	cfg, err := LoadSettings(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.AgentType())
	assert.Equal(t, 90, cfg.RetentionDays())
	assert.True(t, cfg.AutoApproveMappings())
	assert.Equal(t, "env", cfg.ConfigSource())
}

func TestLoadSettings_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "setting.yaml"),
		[]byte("home: [unterminated"), 0644))

	_, err := LoadSettings(tmpDir)
	require.Error(t, err)
}

func TestCreateDefaultSettings(t *testing.T) {
	data := CreateDefaultSettings()

	var settings RawSettings
	require.NoError(t, yaml.Unmarshal(data, &settings))
	require.NotNil(t, settings.Home)
	assert.Equal(t, ".assetflow", *settings.Home)
	require.NotNil(t, settings.AgentType)
	assert.Equal(t, "claude-cli", *settings.AgentType)
}

func TestAgentTimeoutDuration(t *testing.T) {
	t.Setenv("ASSETFLOW_AGENT_TIMEOUT_SEC", "45")

	cfg, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "45s", cfg.AgentTimeout().String())
}
