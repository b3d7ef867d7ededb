package types

import (
	"fmt"
	"strings"
)

// AdjudicationResult is the Stage 3 response of POST /scan/{id}/supreme_court.
// ScanID is filled in by the client; the service does not echo it.
type AdjudicationResult struct {
	ScanID                string  `json:"scan_id,omitempty"`
	Verdict               Verdict `json:"verdict"`
	ReasoningLog          string  `json:"reasoning_log"`
	AuditTrail            string  `json:"audit_trail"`
	ConfidenceCalibration float64 `json:"confidence_calibration"`
	EvidenceHeatmap       string  `json:"evidence_heatmap"`
}

// UnlocksReconstruction reports whether the verdict opens Stage 4.
// Only an exact "manipulated" does; unknown labels never do.
func (r AdjudicationResult) UnlocksReconstruction() bool {
	return r.Verdict == VerdictManipulated
}

// Validate checks the decoded payload.
func (r AdjudicationResult) Validate() ([]string, error) {
	if strings.TrimSpace(string(r.Verdict)) == "" {
		return nil, fmt.Errorf("adjudication result has no verdict")
	}
	var warnings []string
	if !r.Verdict.Known() {
		warnings = append(warnings, fmt.Sprintf("unknown verdict %q", r.Verdict))
	}
	if !inUnitRange(r.ConfidenceCalibration) {
		warnings = append(warnings, fmt.Sprintf("confidence_calibration %.3f outside 0..1", r.ConfidenceCalibration))
	}
	return warnings, nil
}

// ReconstructionResult is the Stage 4 response of
// POST /scan/{id}/firewall_reconstruction.
type ReconstructionResult struct {
	ScanID                   string  `json:"scan_id,omitempty"`
	InverseDiffusionModel    string  `json:"inverse_diffusion_model"`
	LatencyMS                int64   `json:"latency_ms"`
	ReconstructionConfidence float64 `json:"reconstruction_confidence"`
	StatusMessage            string  `json:"status_message"`
	RevertAction             string  `json:"revert_action"`
}

// Validate checks the decoded payload.
func (r ReconstructionResult) Validate() ([]string, error) {
	if r.LatencyMS < 0 {
		return nil, fmt.Errorf("latency_ms %d is negative", r.LatencyMS)
	}
	var warnings []string
	if !inUnitRange(r.ReconstructionConfidence) {
		warnings = append(warnings, fmt.Sprintf("reconstruction_confidence %.3f outside 0..1", r.ReconstructionConfidence))
	}
	return warnings, nil
}

// Validate checks the decoded payload.
func (d DeepDiveResult) Validate() ([]string, error) {
	var warnings []string
	if strings.TrimSpace(d.Feature) == "" {
		warnings = append(warnings, "deep dive result has no feature name")
	}
	if len(d.Findings) == 0 {
		warnings = append(warnings, "deep dive result has no findings")
	}
	return warnings, nil
}
