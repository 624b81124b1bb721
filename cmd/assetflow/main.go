package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/YoshitsuguKoike/assetflow/internal/buildinfo"
	"github.com/YoshitsuguKoike/assetflow/internal/infra/config"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/di"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "assetflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// The output format flag must be known before cobra parses anything,
	// because the presenter is wired into every command
	outputFormat := "cli"
	for i, arg := range os.Args {
		switch {
		case arg == "--output" || arg == "-o":
			if i+1 < len(os.Args) {
				outputFormat = os.Args[i+1]
			}
		case strings.HasPrefix(arg, "--output="):
			outputFormat = strings.TrimPrefix(arg, "--output=")
		}
	}

	cfg, err := config.LoadSettings(".")
	if err != nil {
		return err
	}

	container, err := di.NewContainer(di.Config{
		AgentType:           cfg.AgentType(),
		AgentTimeout:        cfg.AgentTimeout(),
		OutputFormat:        outputFormat,
		Version:             buildinfo.GetVersion(),
		BuildInfo:           buildinfo.GetBuildInfo(),
		DBPath:              cfg.DBPath(),
		StorageType:         cfg.StorageType(),
		StorageBaseDir:      cfg.StorageBaseDir(),
		S3Bucket:            cfg.S3Bucket(),
		S3Prefix:            cfg.S3Prefix(),
		S3Region:            cfg.S3Region(),
		AutoApproveMappings: cfg.AutoApproveMappings(),
		RetentionDays:       cfg.RetentionDays(),
		InsightBufferSize:   cfg.InsightBufferSize(),
	})
	if err != nil {
		return err
	}
	defer container.Close()

	rootCmd := container.GetRootCommand()
	rootCmd.PersistentFlags().StringP("output", "o", "cli", "Output format (cli, json)")

	return rootCmd.Execute()
}
