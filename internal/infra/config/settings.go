package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/assetflow/internal/app/config"
)

// RawSettings represents the structure of setting.yaml.
// Pointer fields distinguish "absent" from zero values so env overrides
// and defaults layer correctly.
type RawSettings struct {
	// Core settings
	Home            *string `yaml:"home"`
	DBPath          *string `yaml:"db_path"`
	AgentType       *string `yaml:"agent"`
	AgentTimeoutSec *int    `yaml:"agent_timeout_sec"`

	// Storage settings
	StorageType    *string `yaml:"storage"`
	StorageBaseDir *string `yaml:"storage_base_dir"`
	S3Bucket       *string `yaml:"s3_bucket"`
	S3Prefix       *string `yaml:"s3_prefix"`
	S3Region       *string `yaml:"s3_region"`

	// Pipeline behavior
	AutoApproveMappings *bool `yaml:"auto_approve_mappings"`
	RetentionDays       *int  `yaml:"retention_days"`
	InsightBufferSize   *int  `yaml:"insight_buffer_size"`
}

// LoadSettings loads configuration for the given base directory.
// Priority: environment variables > setting.yaml > defaults
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	yamlPath := filepath.Join(baseDir, "setting.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
		}
		configSource = "yaml"
		settingPath = yamlPath
	}

	if applyEnvOverrides(settings) {
		configSource = "env"
	}

	applyDefaults(settings)

	return buildAppConfig(settings, configSource, settingPath), nil
}

// applyEnvOverrides layers ASSETFLOW_* environment variables over the
// file settings; reports whether any variable was set
func applyEnvOverrides(settings *RawSettings) bool {
	overridden := false

	setString := func(key string, target **string) {
		if v := os.Getenv(key); v != "" {
			*target = &v
			overridden = true
		}
	}
	setInt := func(key string, target **int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = &n
				overridden = true
			}
		}
	}
	setBool := func(key string, target **bool) {
		if v := os.Getenv(key); v != "" {
			b := toBool(v)
			*target = &b
			overridden = true
		}
	}

	setString("ASSETFLOW_HOME", &settings.Home)
	setString("ASSETFLOW_DB_PATH", &settings.DBPath)
	setString("ASSETFLOW_AGENT", &settings.AgentType)
	setInt("ASSETFLOW_AGENT_TIMEOUT_SEC", &settings.AgentTimeoutSec)
	setString("ASSETFLOW_STORAGE", &settings.StorageType)
	setString("ASSETFLOW_STORAGE_BASE_DIR", &settings.StorageBaseDir)
	setString("ASSETFLOW_S3_BUCKET", &settings.S3Bucket)
	setString("ASSETFLOW_S3_PREFIX", &settings.S3Prefix)
	setString("ASSETFLOW_S3_REGION", &settings.S3Region)
	setBool("ASSETFLOW_AUTO_APPROVE", &settings.AutoApproveMappings)
	setInt("ASSETFLOW_RETENTION_DAYS", &settings.RetentionDays)
	setInt("ASSETFLOW_INSIGHT_BUFFER", &settings.InsightBufferSize)

	return overridden
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings) {
	if settings.Home == nil {
		v := ".assetflow"
		settings.Home = &v
	}
	if settings.DBPath == nil {
		v := filepath.Join(*settings.Home, "assetflow.db")
		settings.DBPath = &v
	}
	if settings.AgentType == nil {
		v := "claude-cli"
		settings.AgentType = &v
	}
	if settings.AgentTimeoutSec == nil {
		v := 600 // 10 minutes for large imports
		settings.AgentTimeoutSec = &v
	}

	if settings.StorageType == nil {
		v := "local"
		settings.StorageType = &v
	}
	if settings.StorageBaseDir == nil {
		v := *settings.Home
		settings.StorageBaseDir = &v
	}
	if settings.S3Bucket == nil {
		v := ""
		settings.S3Bucket = &v
	}
	if settings.S3Prefix == nil {
		v := ""
		settings.S3Prefix = &v
	}
	if settings.S3Region == nil {
		v := ""
		settings.S3Region = &v
	}

	if settings.AutoApproveMappings == nil {
		v := false
		settings.AutoApproveMappings = &v
	}
	if settings.RetentionDays == nil {
		v := 30
		settings.RetentionDays = &v
	}
	if settings.InsightBufferSize == nil {
		v := 64
		settings.InsightBufferSize = &v
	}
}

// buildAppConfig converts RawSettings to AppConfig
func buildAppConfig(settings *RawSettings, configSource, settingPath string) *config.AppConfig {
	return config.NewAppConfig(
		*settings.Home,
		*settings.DBPath,
		*settings.AgentType,
		*settings.AgentTimeoutSec,
		*settings.StorageType,
		*settings.StorageBaseDir,
		*settings.S3Bucket,
		*settings.S3Prefix,
		*settings.S3Region,
		*settings.AutoApproveMappings,
		*settings.RetentionDays,
		*settings.InsightBufferSize,
		configSource,
		settingPath,
	)
}

// toBool converts various string representations to boolean
func toBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// CreateDefaultSettings renders a default setting.yaml
func CreateDefaultSettings() []byte {
	settings := &RawSettings{}
	applyDefaults(settings)

	data, _ := yaml.Marshal(settings)
	return data
}
