package input

import (
	"context"

	"github.com/YoshitsuguKoike/assetflow/internal/application/dto"
)

// FlowUseCase defines the operations a surrounding service or CLI drives
// the workflow engine through
type FlowUseCase interface {
	// Start creates a flow for an import source and drives it until it
	// completes, fails, or pauses for approval
	Start(ctx context.Context, req dto.StartFlowRequest) (*dto.FlowRunResponse, error)

	// Resume validates and continues a paused flow
	Resume(ctx context.Context, req dto.ResumeFlowRequest) (*dto.FlowRunResponse, error)

	// Pause stops a running flow at its current phase
	Pause(ctx context.Context, req dto.PauseFlowRequest) (*dto.FlowRunResponse, error)

	// SubmitApproval delivers a field-mapping approval decision and
	// resumes the flow with the approved set as the phase input
	SubmitApproval(ctx context.Context, req dto.ApprovalRequest) (*dto.FlowRunResponse, error)

	// SubmitConflictResolutions delivers decisions for the pending
	// conflict set and resumes the flow when none remain
	SubmitConflictResolutions(ctx context.Context, req dto.ConflictResolutionsRequest) (*dto.FlowRunResponse, error)

	// Status reports the state of one run
	Status(ctx context.Context, req dto.FlowStatusRequest) (*dto.FlowStatusResponse, error)

	// Expire removes terminal or abandoned flows past the retention window
	Expire(ctx context.Context, req dto.ExpireRequest) (int, error)
}
