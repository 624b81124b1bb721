package conflict

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
)

// ResolutionStatus represents the lifecycle of a conflict record
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionResolved ResolutionStatus = "resolved"
)

// IsValid validates the resolution status
func (s ResolutionStatus) IsValid() bool {
	return s == ResolutionPending || s == ResolutionResolved
}

// String returns the string representation
func (s ResolutionStatus) String() string {
	return string(s)
}

// Resolution is a human decision about one conflict
type Resolution string

const (
	ResolutionKeepExisting   Resolution = "keep_existing"
	ResolutionCreateAnyway   Resolution = "create_anyway"
	ResolutionMergeCandidate Resolution = "merge_candidate"
)

// Record captures one natural-key collision between a candidate and an
// existing asset, with full snapshots of both sides for human inspection
type Record struct {
	id         string
	tenant     model.Tenant
	flowID     model.FlowID
	dimension  asset.NaturalKeyDimension
	candidate  asset.Candidate
	existing   asset.Candidate
	status     ResolutionStatus
	decision   Resolution
	createdAt  model.Timestamp
	resolvedAt *model.Timestamp
}

// NewRecord creates a pending conflict record
func NewRecord(
	tenant model.Tenant,
	flowID model.FlowID,
	dimension asset.NaturalKeyDimension,
	candidate asset.Candidate,
	existing asset.Candidate,
) (*Record, error) {
	if candidate.TempID == "" {
		return nil, errors.New("candidate temp ID cannot be empty")
	}
	return &Record{
		id:        uuid.New().String(),
		tenant:    tenant,
		flowID:    flowID,
		dimension: dimension,
		candidate: candidate,
		existing:  existing,
		status:    ResolutionPending,
		createdAt: model.NewTimestamp(),
	}, nil
}

// ReconstructRecord rebuilds a conflict record from stored data
func ReconstructRecord(
	id string,
	tenant model.Tenant,
	flowID model.FlowID,
	dimension asset.NaturalKeyDimension,
	candidate asset.Candidate,
	existing asset.Candidate,
	status ResolutionStatus,
	decision Resolution,
	createdAt time.Time,
	resolvedAt *time.Time,
) *Record {
	var resolved *model.Timestamp
	if resolvedAt != nil {
		ts := model.NewTimestampFromTime(*resolvedAt)
		resolved = &ts
	}
	return &Record{
		id:         id,
		tenant:     tenant,
		flowID:     flowID,
		dimension:  dimension,
		candidate:  candidate,
		existing:   existing,
		status:     status,
		decision:   decision,
		createdAt:  model.NewTimestampFromTime(createdAt),
		resolvedAt: resolved,
	}
}

// ID returns the conflict record ID
func (r *Record) ID() string {
	return r.id
}

// Tenant returns the tenant scope
func (r *Record) Tenant() model.Tenant {
	return r.tenant
}

// FlowID returns the flow that detected the collision
func (r *Record) FlowID() model.FlowID {
	return r.flowID
}

// Dimension returns the natural-key dimension that collided
func (r *Record) Dimension() asset.NaturalKeyDimension {
	return r.dimension
}

// Candidate returns the colliding candidate snapshot
func (r *Record) Candidate() asset.Candidate {
	return r.candidate
}

// Existing returns the snapshot of the asset it collided with
func (r *Record) Existing() asset.Candidate {
	return r.existing
}

// Status returns the resolution status
func (r *Record) Status() ResolutionStatus {
	return r.status
}

// Decision returns the recorded human decision (empty while pending)
func (r *Record) Decision() Resolution {
	return r.decision
}

// CreatedAt returns the detection timestamp
func (r *Record) CreatedAt() model.Timestamp {
	return r.createdAt
}

// ResolvedAt returns the resolution timestamp (nil while pending)
func (r *Record) ResolvedAt() *model.Timestamp {
	return r.resolvedAt
}

// Resolve marks the record resolved with a human decision
func (r *Record) Resolve(decision Resolution) error {
	if r.status == ResolutionResolved {
		return errors.New("conflict is already resolved")
	}
	switch decision {
	case ResolutionKeepExisting, ResolutionCreateAnyway, ResolutionMergeCandidate:
	default:
		return errors.New("unknown conflict resolution: " + string(decision))
	}
	r.status = ResolutionResolved
	r.decision = decision
	ts := model.NewTimestamp()
	r.resolvedAt = &ts
	return nil
}
