package config

import "time"

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (YAML, ENV, defaults)
// and ensures the app layer doesn't depend on infrastructure details.
type Config interface {
	// Core settings
	Home() string                // Base directory for AssetFlow state (ASSETFLOW_HOME)
	DBPath() string              // SQLite database path (ASSETFLOW_DB_PATH)
	AgentType() string           // Phase agent gateway: claude-cli, rules, mock (ASSETFLOW_AGENT)
	AgentTimeoutSec() int        // Agent invocation timeout in seconds (ASSETFLOW_AGENT_TIMEOUT_SEC)
	AgentTimeout() time.Duration // Agent invocation timeout as Duration

	// Storage settings
	StorageType() string    // Artifact storage backend: local, s3, mock (ASSETFLOW_STORAGE)
	StorageBaseDir() string // Base directory for local artifact storage
	S3Bucket() string       // S3 bucket for artifacts (ASSETFLOW_S3_BUCKET)
	S3Prefix() string       // Optional S3 key prefix (ASSETFLOW_S3_PREFIX)
	S3Region() string       // AWS region (ASSETFLOW_S3_REGION)

	// Pipeline behavior
	AutoApproveMappings() bool // Skip the human field-mapping gate (ASSETFLOW_AUTO_APPROVE)
	RetentionDays() int        // Days before stale flows are expired (ASSETFLOW_RETENTION_DAYS)
	InsightBufferSize() int    // Event buffer size for the insight broadcaster

	// Metadata
	ConfigSource() string // Source of configuration: "yaml", "env", or "default"
	SettingPath() string  // Path to setting.yaml if loaded from file
}

// AppConfig is the concrete implementation of Config interface.
// It holds all configuration values loaded from various sources.
type AppConfig struct {
	home            string
	dbPath          string
	agentType       string
	agentTimeoutSec int

	storageType    string
	storageBaseDir string
	s3Bucket       string
	s3Prefix       string
	s3Region       string

	autoApproveMappings bool
	retentionDays       int
	insightBufferSize   int

	configSource string
	settingPath  string
}

// NewAppConfig creates an AppConfig with the given values
func NewAppConfig(
	home, dbPath, agentType string,
	agentTimeoutSec int,
	storageType, storageBaseDir, s3Bucket, s3Prefix, s3Region string,
	autoApproveMappings bool,
	retentionDays, insightBufferSize int,
	configSource, settingPath string,
) *AppConfig {
	return &AppConfig{
		home:                home,
		dbPath:              dbPath,
		agentType:           agentType,
		agentTimeoutSec:     agentTimeoutSec,
		storageType:         storageType,
		storageBaseDir:      storageBaseDir,
		s3Bucket:            s3Bucket,
		s3Prefix:            s3Prefix,
		s3Region:            s3Region,
		autoApproveMappings: autoApproveMappings,
		retentionDays:       retentionDays,
		insightBufferSize:   insightBufferSize,
		configSource:        configSource,
		settingPath:         settingPath,
	}
}

func (c *AppConfig) Home() string         { return c.home }
func (c *AppConfig) DBPath() string       { return c.dbPath }
func (c *AppConfig) AgentType() string    { return c.agentType }
func (c *AppConfig) AgentTimeoutSec() int { return c.agentTimeoutSec }

func (c *AppConfig) AgentTimeout() time.Duration {
	return time.Duration(c.agentTimeoutSec) * time.Second
}

func (c *AppConfig) StorageType() string    { return c.storageType }
func (c *AppConfig) StorageBaseDir() string { return c.storageBaseDir }
func (c *AppConfig) S3Bucket() string       { return c.s3Bucket }
func (c *AppConfig) S3Prefix() string       { return c.s3Prefix }
func (c *AppConfig) S3Region() string       { return c.s3Region }

func (c *AppConfig) AutoApproveMappings() bool { return c.autoApproveMappings }
func (c *AppConfig) RetentionDays() int        { return c.retentionDays }
func (c *AppConfig) InsightBufferSize() int    { return c.insightBufferSize }

func (c *AppConfig) ConfigSource() string { return c.configSource }
func (c *AppConfig) SettingPath() string  { return c.settingPath }
