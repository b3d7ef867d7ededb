// Package types provides the view models shared by the backend client, the workflow
// state machine, and the console panels.
// Every value here is transient: it is built from a remote response, held for the
// lifetime of one scan, and replaced wholesale by the next response for its stage.
package types

import "strings"

// =============================================================================
// STAGES
// =============================================================================

// Stage identifies one step of the four-stage analysis pipeline.
type Stage string

const (
	StageTriage         Stage = "triage"
	StageDeepDive       Stage = "deep_dive"
	StageAdjudication   Stage = "adjudication"
	StageReconstruction Stage = "reconstruction"
)

// Stages lists the pipeline stages in workflow order.
var Stages = []Stage{StageTriage, StageDeepDive, StageAdjudication, StageReconstruction}

// Title returns the label used in panel headers.
func (s Stage) Title() string {
	switch s {
	case StageTriage:
		return "Phase 1: Semantic Triage"
	case StageDeepDive:
		return "Phase 2: Deep Forensic Room"
	case StageAdjudication:
		return "Phase 3: Supreme Court"
	case StageReconstruction:
		return "Phase 4: The Firewall"
	default:
		return string(s)
	}
}

// =============================================================================
// RISK CATEGORY
// =============================================================================

// RiskCategory is the triage classification of a scan.
// Unknown wire values are preserved verbatim; use Known to test membership.
type RiskCategory string

const (
	CategoryContextual RiskCategory = "Contextual"
	CategorySynthetic  RiskCategory = "Synthetic"
	CategoryNarrative  RiskCategory = "Narrative"
	CategoryBenign     RiskCategory = "Benign"
)

// Known reports whether c is one of the four defined categories.
func (c RiskCategory) Known() bool {
	switch c {
	case CategoryContextual, CategorySynthetic, CategoryNarrative, CategoryBenign:
		return true
	}
	return false
}

// =============================================================================
// VERDICT
// =============================================================================

// Verdict is the adjudication outcome.
// The label set is open on the wire: anything other than the three known values
// is kept as-is and treated as not manipulated.
type Verdict string

const (
	VerdictManipulated Verdict = "manipulated"
	VerdictAuthentic   Verdict = "authentic"
	VerdictUncertain   Verdict = "uncertain"
)

// Known reports whether v is one of the three defined verdicts.
func (v Verdict) Known() bool {
	switch v {
	case VerdictManipulated, VerdictAuthentic, VerdictUncertain:
		return true
	}
	return false
}

// Label returns the upper-cased badge text, or UNKNOWN for an empty verdict.
func (v Verdict) Label() string {
	if strings.TrimSpace(string(v)) == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(v))
}
