package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/assetflow/internal/application/dto"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// FlowController handles pipeline CLI commands
type FlowController struct {
	flowUseCase input.FlowUseCase
	presenter   output.FlowPresenter
}

// NewFlowController creates a new flow controller
func NewFlowController(flowUC input.FlowUseCase, presenter output.FlowPresenter) *FlowController {
	return &FlowController{
		flowUseCase: flowUC,
		presenter:   presenter,
	}
}

// tenantFlags adds the tenant scoping flags every command requires
func tenantFlags(cmd *cobra.Command, accountID, engagementID *string) {
	cmd.Flags().StringVar(accountID, "account", "", "Account ID (required)")
	cmd.Flags().StringVar(engagementID, "engagement", "", "Engagement ID (required)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("engagement")
}

// RunCommand creates the 'run' command
func (c *FlowController) RunCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
		userID       string
	)

	cmd := &cobra.Command{
		Use:   "run [import-file]",
		Short: "Start a pipeline run over a CSV or JSON import file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.flowUseCase.Start(cmd.Context(), dto.StartFlowRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				UserID:       userID,
				SourcePath:   args[0],
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("flow "+resp.Status, resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	cmd.Flags().StringVar(&userID, "user", "", "User starting the run")
	return cmd
}

// ResumeCommand creates the 'resume' command
func (c *FlowController) ResumeCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
	)

	cmd := &cobra.Command{
		Use:   "resume [flow-id]",
		Short: "Validate and continue a paused flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.flowUseCase.Resume(cmd.Context(), dto.ResumeFlowRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				FlowID:       args[0],
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("flow "+resp.Status, resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	return cmd
}

// PauseCommand creates the 'pause' command
func (c *FlowController) PauseCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
		reason       string
	)

	cmd := &cobra.Command{
		Use:   "pause [flow-id]",
		Short: "Pause a running flow at its current phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.flowUseCase.Pause(cmd.Context(), dto.PauseFlowRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				FlowID:       args[0],
				Reason:       reason,
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("flow paused", resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	cmd.Flags().StringVar(&reason, "reason", "", "Why the flow is being paused")
	return cmd
}

// ApproveCommand creates the 'approve' command
func (c *FlowController) ApproveCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
		approvedIDs  []string
		editsJSON    string
	)

	cmd := &cobra.Command{
		Use:   "approve [flow-id]",
		Short: "Approve proposed field mappings and resume the flow",
		Long: `Approve delivers the field-mapping decision the flow is waiting on.
Without --ids every proposed mapping is approved. Edits are given as JSON:
  --edits '{"preview-3": {"target_field": "serial_number"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edits map[string]map[string]string
			if editsJSON != "" {
				if err := json.Unmarshal([]byte(editsJSON), &edits); err != nil {
					return c.presenter.PresentError(fmt.Errorf("parse --edits: %w", err))
				}
			}

			resp, err := c.flowUseCase.SubmitApproval(cmd.Context(), dto.ApprovalRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				FlowID:       args[0],
				ApprovedIDs:  approvedIDs,
				Edits:        edits,
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("approval applied; flow "+resp.Status, resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	cmd.Flags().StringSliceVar(&approvedIDs, "ids", nil, "Preview record IDs to approve (default: all)")
	cmd.Flags().StringVar(&editsJSON, "edits", "", "Per-record field edits as JSON")
	return cmd
}

// ResolveConflictsCommand creates the 'resolve-conflicts' command
func (c *FlowController) ResolveConflictsCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
		keepIDs      []string
		createIDs    []string
		mergeIDs     []string
		fromFile     string
	)

	cmd := &cobra.Command{
		Use:   "resolve-conflicts [flow-id]",
		Short: "Resolve pending materialization conflicts and resume the flow",
		Long: `Resolve-conflicts delivers decisions for the conflicts the materializer
paused on. Decisions come from flags or a JSON file:
  --keep c1 --create c2
  --file decisions.json   (array of {"conflict_id", "resolution", "edits"})`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := collectResolutions(keepIDs, createIDs, mergeIDs, fromFile)
			if err != nil {
				return c.presenter.PresentError(err)
			}
			if len(resolutions) == 0 {
				return c.presenter.PresentError(fmt.Errorf("no resolutions given; use --keep, --create, --merge or --file"))
			}

			resp, err := c.flowUseCase.SubmitConflictResolutions(cmd.Context(), dto.ConflictResolutionsRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				FlowID:       args[0],
				Resolutions:  resolutions,
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("resolutions applied; flow "+resp.Status, resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	cmd.Flags().StringSliceVar(&keepIDs, "keep", nil, "Conflict IDs resolved as keep_existing")
	cmd.Flags().StringSliceVar(&createIDs, "create", nil, "Conflict IDs resolved as create_anyway")
	cmd.Flags().StringSliceVar(&mergeIDs, "merge", nil, "Conflict IDs resolved as merge_candidate")
	cmd.Flags().StringVar(&fromFile, "file", "", "JSON file with resolution decisions")
	return cmd
}

// collectResolutions merges flag-based and file-based decisions
func collectResolutions(keepIDs, createIDs, mergeIDs []string, fromFile string) ([]dto.ConflictResolutionDTO, error) {
	var resolutions []dto.ConflictResolutionDTO

	if fromFile != "" {
		data, err := os.ReadFile(fromFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fromFile, err)
		}
		if err := json.Unmarshal(data, &resolutions); err != nil {
			return nil, fmt.Errorf("parse %s: %w", fromFile, err)
		}
	}

	appendIDs := func(ids []string, resolution string) {
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				resolutions = append(resolutions, dto.ConflictResolutionDTO{
					ConflictID: id,
					Resolution: resolution,
				})
			}
		}
	}
	appendIDs(keepIDs, "keep_existing")
	appendIDs(createIDs, "create_anyway")
	appendIDs(mergeIDs, "merge_candidate")

	return resolutions, nil
}

// StatusCommand creates the 'status' command
func (c *FlowController) StatusCommand() *cobra.Command {
	var (
		accountID    string
		engagementID string
		verify       bool
	)

	cmd := &cobra.Command{
		Use:   "status [flow-id]",
		Short: "Show the state of one pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.flowUseCase.Status(cmd.Context(), dto.FlowStatusRequest{
				AccountID:    accountID,
				EngagementID: engagementID,
				FlowID:       args[0],
				Verify:       verify,
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess("status", resp)
		},
	}

	tenantFlags(cmd, &accountID, &engagementID)
	cmd.Flags().BoolVar(&verify, "verify", false, "Also run a persisted-state integrity check")
	return cmd
}

// ExpireCommand creates the 'expire' command
func (c *FlowController) ExpireCommand() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Remove stale flows past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.flowUseCase.Expire(cmd.Context(), dto.ExpireRequest{
				RetentionDays: retentionDays,
			})
			if err != nil {
				return c.presenter.PresentError(err)
			}
			return c.presenter.PresentSuccess(fmt.Sprintf("expired %d stale flows", removed), nil)
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override the configured retention window")
	return cmd
}
