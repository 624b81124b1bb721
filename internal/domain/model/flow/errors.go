package flow

import (
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
)

// ValidationFailure indicates input that did not meet structural or content
// requirements. The flow does not advance but remains resumable after
// correction.
type ValidationFailure struct {
	Phase  model.Phase
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed in %s: %s", e.Phase, e.Reason)
}

// CriticalPhaseFailure indicates a fallback-ineligible phase could not
// produce a valid result. Terminal for the run.
type CriticalPhaseFailure struct {
	Phase  model.Phase
	Reason string
	Err    error
}

func (e *CriticalPhaseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("critical failure in %s: %s: %v", e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("critical failure in %s: %s", e.Phase, e.Reason)
}

func (e *CriticalPhaseFailure) Unwrap() error {
	return e.Err
}

// AdvisoryDegradation records that a fallback-eligible phase used a
// deterministic substitute. The flow continues; the result carries a
// lower-confidence marker.
type AdvisoryDegradation struct {
	Phase  model.Phase
	Reason string
}

func (e *AdvisoryDegradation) Error() string {
	return fmt.Sprintf("phase %s degraded to fallback: %s", e.Phase, e.Reason)
}

// TransientStoreError indicates a persistence checkpoint failed after a
// successful in-memory phase result. Retried at the checkpoint layer; never
// conflated with phase failure.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}
