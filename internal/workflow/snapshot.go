package workflow

import "veritas/internal/types"

// Snapshot is an immutable copy of the workflow for renderers.
type Snapshot struct {
	State      State
	Generation uint64
	Submission types.ScanSubmission

	Triage         *types.TriageResult
	Adjudication   *types.AdjudicationResult
	Reconstruction *types.ReconstructionResult

	ReconstructionInFlight bool
	DeepDive               DeepDiveView

	failures map[types.Stage]types.Failure
}

// ScanID returns the identifier assigned by triage, or "".
func (s Snapshot) ScanID() string {
	if s.Triage == nil {
		return ""
	}
	return s.Triage.ID
}

// Failure returns the recorded failure for stage, if any. Deep-dive failures live
// on DeepDive.
func (s Snapshot) Failure(stage types.Stage) *types.Failure {
	if stage == types.StageDeepDive {
		return s.DeepDive.Failure
	}
	f, ok := s.failures[stage]
	if !ok {
		return nil
	}
	return &f
}

// Loading reports whether a request for stage is in flight.
func (s Snapshot) Loading(stage types.Stage) bool {
	switch stage {
	case types.StageTriage:
		return s.State == StateSubmitting
	case types.StageDeepDive:
		return s.DeepDive.Loading
	case types.StageAdjudication:
		return s.State == StateAdjudicationPending
	case types.StageReconstruction:
		return s.ReconstructionInFlight
	}
	return false
}

// CanSubmit reports whether sub may be submitted now: it carries text or an
// attachment and no triage is in flight.
func (s Snapshot) CanSubmit(sub types.ScanSubmission) bool {
	return sub.Ready() && s.State != StateSubmitting
}

// CanEscalate reports whether the escalate affordance is offered.
func (s Snapshot) CanEscalate() bool {
	return s.State == StateTriaged && s.Triage != nil && s.Triage.Escalatable()
}

// AdjudicationMounted reports whether the adjudication panel is shown: from the
// moment the scan is escalatable until the workflow restarts.
func (s Snapshot) AdjudicationMounted() bool {
	return s.Triage != nil && s.Triage.Escalatable() && s.State >= StateTriaged
}

// ReconstructionMounted reports whether the reconstruction panel is shown.
func (s Snapshot) ReconstructionMounted() bool {
	return s.State == StateReconstructionPending || s.State == StateReconstructed
}

// CanReconstruct reports whether the reconstruction trigger is offered.
func (s Snapshot) CanReconstruct() bool {
	return s.State == StateReconstructionPending && !s.ReconstructionInFlight
}

// Terminal reports whether no further stage can be started for this scan.
func (s Snapshot) Terminal() bool {
	switch s.State {
	case StateTriaged:
		return s.Triage != nil && !s.Triage.Escalatable()
	case StateAdjudicated, StateReconstructed:
		return true
	}
	return false
}
