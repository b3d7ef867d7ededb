package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSubmissionReady(t *testing.T) {
	tests := []struct {
		name string
		sub  ScanSubmission
		want bool
	}{
		{"empty", ScanSubmission{}, false},
		{"whitespace only", ScanSubmission{Text: "  \n\t"}, false},
		{"text", ScanSubmission{Text: "breaking news: miracle cure"}, true},
		{"attachment", ScanSubmission{Attachment: &Attachment{Name: "clip.mp4", Data: []byte{1}}}, true},
		{"unnamed attachment", ScanSubmission{Attachment: &Attachment{Data: []byte{1}}}, false},
		{"both", ScanSubmission{Text: "x", Attachment: &Attachment{Name: "a.png"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Ready())
		})
	}
}

func TestTriageResultDecodeAndEscalation(t *testing.T) {
	payload := `{
		"id": "scan_1234",
		"deception_score": 82,
		"category": "Synthetic",
		"confidence": 0.94,
		"explanation_summary": "Generator artifacts in frame 12.",
		"routing_decision": ["Diffusion Artifact Lab"],
		"status": "escalated"
	}`
	var r TriageResult
	require.NoError(t, json.Unmarshal([]byte(payload), &r))

	assert.Equal(t, "scan_1234", r.ID)
	assert.Equal(t, 82, r.DeceptionScore)
	assert.Equal(t, CategorySynthetic, r.Category)
	assert.True(t, r.Escalatable())

	warnings, err := r.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	r.RoutingDecision = []string{}
	assert.False(t, r.Escalatable())
}

func TestTriageResultValidate(t *testing.T) {
	_, err := TriageResult{DeceptionScore: 50}.Validate()
	assert.Error(t, err, "missing id must be rejected")

	warnings, err := TriageResult{ID: "scan_1", DeceptionScore: 140, Confidence: 1.5, Category: "Weird"}.Validate()
	require.NoError(t, err)
	assert.Len(t, warnings, 3)
}

func TestVerdictUnlocksReconstruction(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    bool
	}{
		{VerdictManipulated, true},
		{VerdictAuthentic, false},
		{VerdictUncertain, false},
		{"MANIPULATED", false},
		{"tampered", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			r := AdjudicationResult{Verdict: tt.verdict}
			assert.Equal(t, tt.want, r.UnlocksReconstruction())
		})
	}
}

func TestAdjudicationResultValidate(t *testing.T) {
	_, err := AdjudicationResult{}.Validate()
	assert.Error(t, err)

	warnings, err := AdjudicationResult{Verdict: "tampered", ConfidenceCalibration: 0.5}.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{`unknown verdict "tampered"`}, warnings)
}

func TestReconstructionResultValidate(t *testing.T) {
	_, err := ReconstructionResult{LatencyMS: -1}.Validate()
	assert.Error(t, err)

	warnings, err := ReconstructionResult{LatencyMS: 0, ReconstructionConfidence: 0.9}.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestVerdictLabel(t *testing.T) {
	assert.Equal(t, "MANIPULATED", VerdictManipulated.Label())
	assert.Equal(t, "UNKNOWN", Verdict(" ").Label())
}

func TestOutcome(t *testing.T) {
	ok := Succeeded(TriageResult{ID: "scan_1"})
	assert.True(t, ok.OK())

	failed := Failed[TriageResult](Failure{Stage: StageTriage, Kind: FailureStatus, StatusCode: 502, Reason: "bad gateway"})
	assert.False(t, failed.OK())
	assert.Equal(t, "triage failed (status 502): bad gateway", failed.Failure.Error())
}
