package di

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/assetflow/internal/adapter/controller/cli"
	agentgateway "github.com/YoshitsuguKoike/assetflow/internal/adapter/gateway/agent"
	"github.com/YoshitsuguKoike/assetflow/internal/adapter/gateway/notify"
	storagegateway "github.com/YoshitsuguKoike/assetflow/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/assetflow/internal/adapter/presenter"
	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/application/service"
	"github.com/YoshitsuguKoike/assetflow/internal/application/usecase/flowrun"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/parser"
	sqliterepo "github.com/YoshitsuguKoike/assetflow/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

// Container is the DI container that holds all dependencies
// This implements manual dependency injection for Clean Architecture
type Container struct {
	// Infrastructure Layer - Database
	db *sql.DB

	// Infrastructure Layer - Repositories (SQLite implementations)
	flowRepo     repository.FlowRepository
	assetRepo    repository.AssetRepository
	conflictRepo repository.ConflictRepository
	previewRepo  repository.PreviewRepository

	// Infrastructure Layer - Gateways
	agentGateway   output.AgentGateway
	fallbackAgent  output.AgentGateway
	storageGateway output.StorageGateway
	importReader   output.ImportSourceReader

	// Infrastructure Layer - Transaction Manager
	txManager output.TransactionManager

	// Application Layer - Services
	agentPools  *service.TenantPools
	broadcaster *service.InsightBroadcaster

	// Application Layer - Use Cases
	flowUseCase input.FlowUseCase

	// Adapter Layer - Presenters
	presenter output.FlowPresenter

	// Adapter Layer - Controllers
	rootCmd *cobra.Command

	// Configuration
	config Config
}

// Config holds configuration for the container
type Config struct {
	AgentType    string // Agent type (claude-cli, rules, mock)
	AgentTimeout time.Duration
	OutputFormat string // Output format (cli, json)
	OutputWriter io.Writer
	Version      string
	BuildInfo    string
	DBPath       string // Path to SQLite database file

	// Storage Gateway configuration
	StorageType    string // Storage type: "local", "s3", "mock" (default: "local")
	StorageBaseDir string // Base directory for local storage (default: DB directory)
	S3Bucket       string // S3 bucket name (for S3 storage)
	S3Prefix       string // S3 key prefix (optional)
	S3Region       string // AWS region (optional, uses default if empty)

	// Pipeline behavior
	AutoApproveMappings bool
	RetentionDays       int
	InsightBufferSize   int
}

// NewContainer creates and initializes the DI container
func NewContainer(config Config) (*Container, error) {
	c := &Container{
		config: config,
	}

	if c.config.OutputWriter == nil {
		c.config.OutputWriter = os.Stdout
	}

	// Initialize dependencies in dependency order
	if err := c.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	if err := c.initializeApplication(); err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := c.initializeAdapters(); err != nil {
		return nil, fmt.Errorf("failed to initialize adapters: %w", err)
	}

	return c, nil
}

// initializeInfrastructure initializes infrastructure layer components
func (c *Container) initializeInfrastructure() error {
	// 1. Set default database path if not provided
	dbPath := c.config.DBPath
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dbDir := filepath.Join(homeDir, ".assetflow")
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "assetflow.db")
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// 2. Open SQLite database connection
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c.db = db

	// 3. Run database migrations
	migrator := sqliterepo.NewMigrator(db)
	if err := migrator.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// 4. Initialize SQLite Repositories
	c.flowRepo = sqliterepo.NewFlowRepository(db)
	c.assetRepo = sqliterepo.NewAssetRepository(db)
	c.conflictRepo = sqliterepo.NewConflictRepository(db)
	c.previewRepo = sqliterepo.NewPreviewRepository(db)

	// 5. Initialize SQLite Transaction Manager
	c.txManager = transaction.NewSQLiteTransactionManager(db)

	// 6. Initialize Agent Gateways. The primary agent draws on a
	// tenant-scoped concurrency pool; the deterministic fallback needs none.
	agentType := c.config.AgentType
	if agentType == "" {
		agentType = "claude-cli"
	}

	gateway, err := agentgateway.NewAgentGateway(agentType, c.config.AgentTimeout)
	if err != nil {
		return fmt.Errorf("failed to create agent gateway: %w", err)
	}
	c.agentPools = service.NewTenantPools(service.AgentPoolConfig{}, 0)
	c.agentGateway = agentgateway.NewThrottledGateway(gateway, c.agentPools)
	c.fallbackAgent = agentgateway.NewRuleBasedGateway()

	// 7. Initialize Import Reader
	c.importReader = parser.NewImportReader(afero.NewOsFs())

	// 8. Initialize Storage Gateway based on configuration
	storageType := c.config.StorageType
	if storageType == "" {
		storageType = "local"
	}

	switch storageType {
	case "local":
		baseDir := c.config.StorageBaseDir
		if baseDir == "" {
			// Default to same directory as database
			baseDir = filepath.Dir(dbPath)
		}
		localGateway, err := storagegateway.NewLocalStorageGateway(baseDir)
		if err != nil {
			return fmt.Errorf("failed to create local storage gateway: %w", err)
		}
		c.storageGateway = localGateway

	case "s3":
		if c.config.S3Bucket == "" {
			return fmt.Errorf("S3 bucket name is required for S3 storage")
		}
		s3Gateway, err := storagegateway.NewS3StorageGateway(storagegateway.S3Config{
			BucketName: c.config.S3Bucket,
			Prefix:     c.config.S3Prefix,
			Region:     c.config.S3Region,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 storage gateway: %w", err)
		}
		c.storageGateway = s3Gateway

	case "mock":
		c.storageGateway = storagegateway.NewMockStorageGateway()

	default:
		return fmt.Errorf("unknown storage type: %s", storageType)
	}

	return nil
}

// initializeApplication initializes application layer components
func (c *Container) initializeApplication() error {
	logger := app.GetLogger()

	// Observability events flow through a buffered broadcaster so phase
	// checkpoints never wait on the sink
	c.broadcaster = service.NewInsightBroadcaster(
		notify.NewLogNotifier(logger),
		c.config.InsightBufferSize,
		logger,
	)

	c.flowUseCase = flowrun.NewFlowRunUseCase(flowrun.Config{
		Flows:     c.flowRepo,
		Assets:    c.assetRepo,
		Conflicts: c.conflictRepo,
		Previews:  c.previewRepo,

		Agent:     c.agentGateway,
		Fallback:  c.fallbackAgent,
		Reader:    c.importReader,
		Storage:   c.storageGateway,
		TxManager: c.txManager,
		Notifier:  c.broadcaster,
		Logger:    logger,

		AutoApproveMappings: c.config.AutoApproveMappings,
		ImportTimeout:       c.config.AgentTimeout,
		RetentionDays:       c.config.RetentionDays,
	})

	return nil
}

// initializeAdapters initializes adapter layer components
func (c *Container) initializeAdapters() error {
	// 1. Initialize Presenter based on output format
	switch c.config.OutputFormat {
	case "json":
		c.presenter = presenter.NewJSONPresenter(c.config.OutputWriter)
	default: // "cli"
		c.presenter = presenter.NewCLIFlowPresenter(c.config.OutputWriter)
	}

	// 2. Build root command with all subcommands
	rootBuilder := cli.NewRootBuilder(
		c.flowUseCase,
		c.presenter,
		c.config.Version,
		c.config.BuildInfo,
	)
	c.rootCmd = rootBuilder.Build()

	return nil
}

// GetRootCommand returns the root Cobra command
func (c *Container) GetRootCommand() *cobra.Command {
	return c.rootCmd
}

// GetFlowUseCase returns the flow use case
func (c *Container) GetFlowUseCase() input.FlowUseCase {
	return c.flowUseCase
}

// GetPresenter returns the presenter
func (c *Container) GetPresenter() output.FlowPresenter {
	return c.presenter
}

// GetAgentGateway returns the agent gateway
func (c *Container) GetAgentGateway() output.AgentGateway {
	return c.agentGateway
}

// GetStorageGateway returns the storage gateway
func (c *Container) GetStorageGateway() output.StorageGateway {
	return c.storageGateway
}

// GetAgentPools returns the tenant-scoped agent concurrency pools
func (c *Container) GetAgentPools() *service.TenantPools {
	return c.agentPools
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	// Drain pending observability events first
	if c.broadcaster != nil {
		c.broadcaster.Close()
	}

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
