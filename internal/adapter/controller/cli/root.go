package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// RootBuilder builds the root CLI command with all subcommands
type RootBuilder struct {
	flowUseCase input.FlowUseCase
	presenter   output.FlowPresenter

	version   string
	buildInfo string
}

// NewRootBuilder creates a new root command builder
func NewRootBuilder(
	flowUC input.FlowUseCase,
	presenter output.FlowPresenter,
	version string,
	buildInfo string,
) *RootBuilder {
	return &RootBuilder{
		flowUseCase: flowUC,
		presenter:   presenter,
		version:     version,
		buildInfo:   buildInfo,
	}
}

// Build creates the root command with all subcommands
func (b *RootBuilder) Build() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assetflow",
		Short: "AssetFlow - durable asset inventory ingestion pipeline",
		Long: `AssetFlow drives tabular asset imports through a resumable multi-phase
pipeline: validation, field mapping, human approval, cleansing, conflict-aware
inventory materialization, and parallel dependency and debt analysis.`,
		Version:       b.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flowController := NewFlowController(b.flowUseCase, b.presenter)

	rootCmd.AddCommand(
		flowController.RunCommand(),
		flowController.ResumeCommand(),
		flowController.PauseCommand(),
		flowController.ApproveCommand(),
		flowController.ResolveConflictsCommand(),
		flowController.StatusCommand(),
		flowController.ExpireCommand(),
		b.versionCommand(),
	)

	return rootCmd
}

func (b *RootBuilder) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assetflow %s", b.version)
			if b.buildInfo != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", b.buildInfo)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
