package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"veritas/internal/backend"
	"veritas/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend answers each stage from a function; nil functions fail the call.
type fakeBackend struct {
	triage      func(ctx context.Context, sub types.ScanSubmission) (types.TriageResult, error)
	deepDive    func(ctx context.Context, id string) (types.DeepDiveResult, error)
	adjudicate  func(ctx context.Context, id string) (types.AdjudicationResult, error)
	reconstruct func(ctx context.Context, id string) (types.ReconstructionResult, error)

	mu    sync.Mutex
	calls []types.Stage
}

var errUnexpected = errors.New("unexpected call")

func (f *fakeBackend) record(s types.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeBackend) called(s types.Stage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == s {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Triage(ctx context.Context, sub types.ScanSubmission) (types.TriageResult, error) {
	f.record(types.StageTriage)
	if f.triage == nil {
		return types.TriageResult{}, errUnexpected
	}
	return f.triage(ctx, sub)
}

func (f *fakeBackend) DeepDive(ctx context.Context, id string) (types.DeepDiveResult, error) {
	f.record(types.StageDeepDive)
	if f.deepDive == nil {
		return types.DeepDiveResult{}, errUnexpected
	}
	return f.deepDive(ctx, id)
}

func (f *fakeBackend) Adjudicate(ctx context.Context, id string) (types.AdjudicationResult, error) {
	f.record(types.StageAdjudication)
	if f.adjudicate == nil {
		return types.AdjudicationResult{}, errUnexpected
	}
	return f.adjudicate(ctx, id)
}

func (f *fakeBackend) Reconstruct(ctx context.Context, id string) (types.ReconstructionResult, error) {
	f.record(types.StageReconstruction)
	if f.reconstruct == nil {
		return types.ReconstructionResult{}, errUnexpected
	}
	return f.reconstruct(ctx, id)
}

func fullBackend(verdict types.Verdict) *fakeBackend {
	return &fakeBackend{
		triage: func(context.Context, types.ScanSubmission) (types.TriageResult, error) {
			return escalatedTriage("scan-1"), nil
		},
		deepDive: func(_ context.Context, id string) (types.DeepDiveResult, error) {
			return types.DeepDiveResult{
				ScanID:  id,
				Feature: "Deep Forensic Room",
				Findings: []types.Finding{
					{Key: "gan_fingerprint_detected", Value: types.BoolValue(true)},
					{Key: "noise_variance", Value: types.NumberValue(0.42)},
				},
			}, nil
		},
		adjudicate: func(_ context.Context, id string) (types.AdjudicationResult, error) {
			return types.AdjudicationResult{ScanID: id, Verdict: verdict, ConfidenceCalibration: 0.9}, nil
		},
		reconstruct: func(_ context.Context, id string) (types.ReconstructionResult, error) {
			return types.ReconstructionResult{ScanID: id, LatencyMS: 140, ReconstructionConfidence: 0.97, RevertAction: "restore"}, nil
		},
	}
}

func TestRunFullPipeline(t *testing.T) {
	fb := fullBackend(types.VerdictManipulated)
	r := NewRunner(fb)

	report, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{DeepDive: true, Escalate: true, Reconstruct: true})
	require.NoError(t, err)

	assert.Equal(t, "Reconstructed", report.State)
	assert.Equal(t, "scan-1", report.ScanID)
	require.NotNil(t, report.DeepDive)
	assert.Len(t, report.DeepDive.Findings, 2)
	require.NotNil(t, report.Adjudication)
	require.NotNil(t, report.Reconstruction)
	assert.EqualValues(t, 140, report.Reconstruction.LatencyMS)
	assert.Empty(t, report.Failures)
	assert.False(t, report.Stale)
	assert.Equal(t, 1, fb.called(types.StageReconstruction))
}

func TestRunAuthenticStopsBeforeReconstruction(t *testing.T) {
	fb := fullBackend(types.VerdictAuthentic)
	r := NewRunner(fb)

	report, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{Escalate: true, Reconstruct: true})
	require.NoError(t, err)

	assert.Equal(t, "Adjudicated", report.State)
	assert.Nil(t, report.Reconstruction)
	assert.Equal(t, 0, fb.called(types.StageReconstruction))
	assert.Equal(t, 0, fb.called(types.StageDeepDive))
}

func TestRunBenignNeverAdjudicates(t *testing.T) {
	fb := fullBackend(types.VerdictManipulated)
	fb.triage = func(context.Context, types.ScanSubmission) (types.TriageResult, error) {
		return benignTriage("scan-b"), nil
	}
	r := NewRunner(fb)

	report, err := r.Run(context.Background(), textSubmission("hello"), RunOptions{Escalate: true, Reconstruct: true})
	require.NoError(t, err)

	assert.Equal(t, "Triaged", report.State)
	assert.Equal(t, 0, fb.called(types.StageAdjudication))
	assert.Equal(t, 0, fb.called(types.StageReconstruction))
}

func TestRunRefusesEmptySubmission(t *testing.T) {
	fb := fullBackend(types.VerdictManipulated)
	r := NewRunner(fb)

	_, err := r.Run(context.Background(), types.ScanSubmission{Text: "  "}, RunOptions{})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, fb.called(types.StageTriage))
}

func TestRunReportsStageFailures(t *testing.T) {
	fb := fullBackend(types.VerdictManipulated)
	fb.deepDive = func(context.Context, string) (types.DeepDiveResult, error) {
		return types.DeepDiveResult{}, &backend.Error{Stage: types.StageDeepDive, Kind: types.FailureStatus, StatusCode: 404, Body: `{"detail":"Scan not found"}`}
	}
	fb.reconstruct = func(context.Context, string) (types.ReconstructionResult, error) {
		return types.ReconstructionResult{}, context.DeadlineExceeded
	}
	r := NewRunner(fb)

	report, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{DeepDive: true, Escalate: true, Reconstruct: true})
	require.NoError(t, err)

	assert.Equal(t, "ReconstructionPending", report.State)
	assert.NotNil(t, report.Adjudication, "a deep-dive failure must not cancel adjudication")
	require.Len(t, report.Failures, 2)
	assert.Equal(t, types.StageDeepDive, report.Failures[0].Stage)
	assert.Equal(t, 404, report.Failures[0].StatusCode)
	assert.Equal(t, types.StageReconstruction, report.Failures[1].Stage)
	assert.Equal(t, types.FailureTimeout, report.Failures[1].Kind)
}

func TestRunTriageFailure(t *testing.T) {
	fb := &fakeBackend{}
	r := NewRunner(fb)

	report, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{Escalate: true})
	require.NoError(t, err)

	assert.Equal(t, "Idle", report.State)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, types.StageTriage, report.Failures[0].Stage)
	assert.Equal(t, types.FailureTransport, report.Failures[0].Kind)
}

func TestDeepDiveAndAdjudicationOverlap(t *testing.T) {
	fb := fullBackend(types.VerdictAuthentic)
	var inFlight, peak atomic.Int32
	track := func() func() {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return func() { inFlight.Add(-1) }
	}
	barrier := make(chan struct{})
	var once sync.Once
	wait := func(ctx context.Context) {
		if inFlight.Load() == 2 {
			once.Do(func() { close(barrier) })
		}
		select {
		case <-barrier:
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
	deep, adj := fb.deepDive, fb.adjudicate
	fb.deepDive = func(ctx context.Context, id string) (types.DeepDiveResult, error) {
		defer track()()
		wait(ctx)
		return deep(ctx, id)
	}
	fb.adjudicate = func(ctx context.Context, id string) (types.AdjudicationResult, error) {
		defer track()()
		wait(ctx)
		return adj(ctx, id)
	}

	r := NewRunner(fb)
	_, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{DeepDive: true, Escalate: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), peak.Load())
}

func TestNewRunSupersedesOld(t *testing.T) {
	inTriage := make(chan struct{})
	fb := fullBackend(types.VerdictManipulated)
	fb.triage = func(ctx context.Context, sub types.ScanSubmission) (types.TriageResult, error) {
		if sub.Text == "old" {
			close(inTriage)
			<-ctx.Done()
			return types.TriageResult{}, ctx.Err()
		}
		return benignTriage("scan-new"), nil
	}

	r := NewRunner(fb)
	done := make(chan Report, 1)
	go func() {
		rep, _ := r.Run(context.Background(), textSubmission("old"), RunOptions{Escalate: true})
		done <- rep
	}()
	<-inTriage

	// The second run cancels the first and waits for its triage to settle.
	rep, err := r.Run(context.Background(), textSubmission("new"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "scan-new", rep.ScanID)
	assert.Empty(t, rep.Failures)
	assert.False(t, rep.Stale)

	old := <-done
	assert.Equal(t, "Idle", old.State)
	assert.Empty(t, old.ScanID)
	require.Len(t, old.Failures, 1)
	assert.Equal(t, types.FailureCanceled, old.Failures[0].Kind)
}

func TestCancelAbortsRun(t *testing.T) {
	inTriage := make(chan struct{})
	fb := fullBackend(types.VerdictManipulated)
	fb.triage = func(ctx context.Context, _ types.ScanSubmission) (types.TriageResult, error) {
		close(inTriage)
		<-ctx.Done()
		return types.TriageResult{}, ctx.Err()
	}

	r := NewRunner(fb)
	done := make(chan Report, 1)
	go func() {
		rep, _ := r.Run(context.Background(), textSubmission("claim"), RunOptions{})
		done <- rep
	}()
	<-inTriage
	r.Cancel()

	rep := <-done
	assert.Equal(t, "Idle", rep.State)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, types.FailureCanceled, rep.Failures[0].Kind)
}

func TestSupersededRunKeepsItsOwnScan(t *testing.T) {
	inAdjudication := make(chan struct{})
	proceed := make(chan struct{})
	fb := fullBackend(types.VerdictManipulated)
	fb.triage = func(_ context.Context, sub types.ScanSubmission) (types.TriageResult, error) {
		if sub.Text == "old" {
			return escalatedTriage("scan-old"), nil
		}
		return escalatedTriage("scan-new"), nil
	}
	fb.adjudicate = func(_ context.Context, id string) (types.AdjudicationResult, error) {
		if id == "scan-old" {
			close(inAdjudication)
			<-proceed
		}
		return types.AdjudicationResult{ScanID: id, Verdict: types.VerdictAuthentic, ConfidenceCalibration: 0.8}, nil
	}

	r := NewRunner(fb)
	done := make(chan Report, 1)
	go func() {
		rep, _ := r.Run(context.Background(), textSubmission("old"), RunOptions{Escalate: true})
		done <- rep
	}()
	<-inAdjudication

	rep, err := r.Run(context.Background(), textSubmission("new"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "scan-new", rep.ScanID)
	close(proceed)

	old := <-done
	assert.True(t, old.Stale)
	assert.Equal(t, "scan-old", old.ScanID)
	require.NotNil(t, old.Triage)
	assert.Equal(t, "scan-old", old.Triage.ID)
	require.NotNil(t, old.Adjudication)
	assert.Equal(t, "scan-old", old.Adjudication.ScanID)
	assert.Empty(t, old.State)

	snap := r.Machine().Snapshot()
	assert.Equal(t, "scan-new", snap.ScanID())
	assert.Equal(t, StateTriaged, snap.State)
	assert.Nil(t, snap.Adjudication)
}

func TestReportJSON(t *testing.T) {
	fb := fullBackend(types.VerdictManipulated)
	r := NewRunner(fb)
	report, err := r.Run(context.Background(), textSubmission("claim"), RunOptions{DeepDive: true})
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Triaged", decoded["state"])
	assert.Contains(t, decoded, "deep_dive")
	assert.NotContains(t, decoded, "adjudication")
	assert.NotContains(t, decoded, "failures")
}
