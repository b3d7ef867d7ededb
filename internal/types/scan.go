package types

import (
	"fmt"
	"strings"
)

// Attachment is the optional binary payload of a submission.
type Attachment struct {
	Name string
	Data []byte
}

// ScanSubmission is the user input for Stage 1.
type ScanSubmission struct {
	Text       string
	Attachment *Attachment
}

// HasText reports whether the submission carries non-blank text.
func (s ScanSubmission) HasText() bool {
	return strings.TrimSpace(s.Text) != ""
}

// HasAttachment reports whether a named attachment is present.
func (s ScanSubmission) HasAttachment() bool {
	return s.Attachment != nil && s.Attachment.Name != ""
}

// Ready reports whether the submission may be sent: at least one of text or
// attachment must be present.
func (s ScanSubmission) Ready() bool {
	return s.HasText() || s.HasAttachment()
}

// TriageResult is the Stage 1 response of POST /scan.
type TriageResult struct {
	ID                 string       `json:"id"`
	DeceptionScore     int          `json:"deception_score"`
	Category           RiskCategory `json:"category"`
	Confidence         float64      `json:"confidence"`
	ExplanationSummary string       `json:"explanation_summary"`
	RoutingDecision    []string     `json:"routing_decision"`
	Status             string       `json:"status"`
}

// Escalatable reports whether the result enables escalation to adjudication.
// An empty routing list is a terminal benign-like classification.
func (r TriageResult) Escalatable() bool {
	return len(r.RoutingDecision) > 0
}

// Validate checks the decoded payload. A missing id rejects the payload since no
// later stage can be addressed without it; out-of-range metrics only warn.
func (r TriageResult) Validate() ([]string, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, fmt.Errorf("triage result has no scan id")
	}
	var warnings []string
	if r.DeceptionScore < 0 || r.DeceptionScore > 100 {
		warnings = append(warnings, fmt.Sprintf("deception_score %d outside 0..100", r.DeceptionScore))
	}
	if !inUnitRange(r.Confidence) {
		warnings = append(warnings, fmt.Sprintf("confidence %.3f outside 0..1", r.Confidence))
	}
	if !r.Category.Known() {
		warnings = append(warnings, fmt.Sprintf("unknown category %q", r.Category))
	}
	return warnings, nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}
