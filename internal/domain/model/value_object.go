package model

import (
	"errors"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// FlowID represents a unique identifier for a pipeline run
type FlowID struct {
	value string
}

// NewFlowID creates a new lexicographically sortable FlowID
func NewFlowID() FlowID {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return FlowID{value: ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()}
}

// NewFlowIDFromString creates a FlowID from an existing string
func NewFlowIDFromString(id string) (FlowID, error) {
	if id == "" {
		return FlowID{}, errors.New("flow ID cannot be empty")
	}
	return FlowID{value: id}, nil
}

// String returns the string representation
func (f FlowID) String() string {
	return f.value
}

// Equals checks if two FlowIDs are equal
func (f FlowID) Equals(other FlowID) bool {
	return f.value == other.value
}

// Tenant scopes every persisted record to one account and engagement
type Tenant struct {
	accountID    string
	engagementID string
}

// NewTenant creates a Tenant scope
func NewTenant(accountID, engagementID string) (Tenant, error) {
	if accountID == "" {
		return Tenant{}, errors.New("account ID cannot be empty")
	}
	if engagementID == "" {
		return Tenant{}, errors.New("engagement ID cannot be empty")
	}
	return Tenant{accountID: accountID, engagementID: engagementID}, nil
}

// AccountID returns the account identifier
func (t Tenant) AccountID() string {
	return t.accountID
}

// EngagementID returns the engagement identifier
func (t Tenant) EngagementID() string {
	return t.engagementID
}

// Equals checks if two Tenants are equal
func (t Tenant) Equals(other Tenant) bool {
	return t.accountID == other.accountID && t.engagementID == other.engagementID
}

// Phase represents one named stage of the fixed analysis pipeline
type Phase string

const (
	PhaseImportValidation    Phase = "import_validation"
	PhaseFieldMapping        Phase = "field_mapping"
	PhaseApproveFieldMapping Phase = "approve_field_mapping"
	PhaseDataCleansing       Phase = "data_cleansing"
	PhaseInventory           Phase = "inventory_materialization"
	PhaseDependencyAnalysis  Phase = "dependency_analysis"
	PhaseDebtAnalysis        Phase = "debt_analysis"
)

// String returns the string representation
func (p Phase) String() string {
	return string(p)
}

// IsValid validates the phase name
func (p Phase) IsValid() bool {
	switch p {
	case PhaseImportValidation, PhaseFieldMapping, PhaseApproveFieldMapping,
		PhaseDataCleansing, PhaseInventory, PhaseDependencyAnalysis, PhaseDebtAnalysis:
		return true
	default:
		return false
	}
}

// AllPhases returns every phase in pipeline order.
// The two analysis phases at the tail form a parallel group.
func AllPhases() []Phase {
	return []Phase{
		PhaseImportValidation,
		PhaseFieldMapping,
		PhaseApproveFieldMapping,
		PhaseDataCleansing,
		PhaseInventory,
		PhaseDependencyAnalysis,
		PhaseDebtAnalysis,
	}
}

// FlowStatus represents the lifecycle status of a pipeline run
type FlowStatus string

const (
	StatusInitializing     FlowStatus = "initializing"
	StatusRunning          FlowStatus = "running"
	StatusAwaitingApproval FlowStatus = "awaiting_approval"
	StatusPaused           FlowStatus = "paused"
	StatusCompleted        FlowStatus = "completed"
	StatusFailed           FlowStatus = "failed"
)

// String returns the string representation
func (s FlowStatus) String() string {
	return string(s)
}

// IsValid validates the status
func (s FlowStatus) IsValid() bool {
	switch s {
	case StatusInitializing, StatusRunning, StatusAwaitingApproval,
		StatusPaused, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further transition
func (s FlowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo checks if a status transition is valid.
// Transitions are strictly forward except awaiting_approval -> running
// (on approval) and paused -> running (on resume).
func (s FlowStatus) CanTransitionTo(next FlowStatus) bool {
	validTransitions := map[FlowStatus][]FlowStatus{
		StatusInitializing:     {StatusRunning, StatusFailed},
		StatusRunning:          {StatusAwaitingApproval, StatusPaused, StatusCompleted, StatusFailed},
		StatusAwaitingApproval: {StatusRunning, StatusPaused, StatusFailed},
		StatusPaused:           {StatusRunning, StatusFailed},
		StatusCompleted:        {},
		StatusFailed:           {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, allowedStatus := range allowed {
		if allowedStatus == next {
			return true
		}
	}
	return false
}

// Timestamp represents a point in time
type Timestamp struct {
	value time.Time
}

// NewTimestamp creates a new Timestamp with current time
func NewTimestamp() Timestamp {
	return Timestamp{value: time.Now()}
}

// NewTimestampFromTime creates a Timestamp from a time.Time value
func NewTimestampFromTime(t time.Time) Timestamp {
	return Timestamp{value: t}
}

// Value returns the time.Time value
func (t Timestamp) Value() time.Time {
	return t.value
}

// Before checks if this timestamp is before another
func (t Timestamp) Before(other Timestamp) bool {
	return t.value.Before(other.value)
}

// After checks if this timestamp is after another
func (t Timestamp) After(other Timestamp) bool {
	return t.value.After(other.value)
}

// IsZero reports whether the timestamp is unset
func (t Timestamp) IsZero() bool {
	return t.value.IsZero()
}

// String returns the string representation
func (t Timestamp) String() string {
	return t.value.Format(time.RFC3339)
}
