package workflow

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"veritas/internal/backend"
	"veritas/internal/logging"
	"veritas/internal/types"
)

// Backend is the subset of backend.Client the workflow drives.
type Backend interface {
	Triage(ctx context.Context, sub types.ScanSubmission) (types.TriageResult, error)
	DeepDive(ctx context.Context, scanID string) (types.DeepDiveResult, error)
	Adjudicate(ctx context.Context, scanID string) (types.AdjudicationResult, error)
	Reconstruct(ctx context.Context, scanID string) (types.ReconstructionResult, error)
}

var _ Backend = (*backend.Client)(nil)

// RunOptions selects which optional stages a headless run drives.
type RunOptions struct {
	DeepDive    bool
	Escalate    bool
	Reconstruct bool
}

// Report is the result of one headless run.
type Report struct {
	State          string                      `json:"state"`
	ScanID         string                      `json:"scan_id,omitempty"`
	Triage         *types.TriageResult         `json:"triage,omitempty"`
	DeepDive       *types.DeepDiveResult       `json:"deep_dive,omitempty"`
	Adjudication   *types.AdjudicationResult   `json:"adjudication,omitempty"`
	Reconstruction *types.ReconstructionResult `json:"reconstruction,omitempty"`
	Failures       []types.Failure             `json:"failures,omitempty"`
	// Stale is set when a newer run superseded this one.
	Stale bool `json:"stale,omitempty"`
}

// Runner drives a Machine against a Backend. Starting a run cancels the previous one.
type Runner struct {
	backend Backend
	machine *Machine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner returns a runner with a fresh Machine.
func NewRunner(b Backend) *Runner {
	return &Runner{backend: b, machine: NewMachine()}
}

// Machine exposes the underlying state machine.
func (r *Runner) Machine() *Machine {
	return r.machine
}

// Cancel aborts the in-flight run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// begin cancels the previous run and registers a new one. It returns the run's
// context, a release func to call when the run returns, and the previous run's
// done channel (nil if there was none).
func (r *Runner) begin(parent context.Context) (context.Context, func(), <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	prev := r.done
	r.cancel, r.done = cancel, done
	r.mu.Unlock()
	return ctx, func() {
		cancel()
		close(done)
	}, prev
}

// Run submits sub and drives the requested stages to completion. Triage runs
// first; deep-dive and adjudication then run concurrently; reconstruction runs
// only when adjudication returns a manipulated verdict.
//
// A new Run cancels the previous one. A previous run still in triage is waited
// for, since the machine refuses a second submission until triage settles.
// A superseded run reports Stale with only what it observed itself.
//
// The returned error covers only refused submissions. Stage failures are
// reported in Report.Failures.
func (r *Runner) Run(ctx context.Context, sub types.ScanSubmission, opts RunOptions) (Report, error) {
	ctx, release, prev := r.begin(ctx)
	defer release()

	ticket, err := r.machine.Submit(sub)
	if errors.Is(err, ErrBusy) && prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
		ticket, err = r.machine.Submit(sub)
	}
	if err != nil {
		return Report{}, err
	}

	var own observed
	tri, err := r.backend.Triage(ctx, sub)
	triOut := backend.ToOutcome(types.StageTriage, tri, err)
	own.triage = &triOut
	if !r.machine.ApplyTriage(ticket, triOut) {
		return own.stale(), nil
	}

	snap := r.machine.Snapshot()
	if snap.State != StateTriaged {
		return r.finish(ticket, own), nil
	}
	scanID := snap.ScanID()

	// Stage failures are recorded in the machine, not returned: deep-dive and
	// adjudication are independent, so one failing must not cancel the other.
	var g errgroup.Group
	if opts.DeepDive {
		dt, err := r.machine.OpenDeepDive(scanID)
		if err == nil {
			g.Go(func() error {
				res, err := r.backend.DeepDive(ctx, scanID)
				out := backend.ToOutcome(types.StageDeepDive, res, err)
				own.deepDive = &out
				r.machine.ApplyDeepDive(dt, out)
				return nil
			})
		}
	}
	if opts.Escalate && snap.CanEscalate() {
		at, err := r.machine.Escalate()
		if err == nil {
			g.Go(func() error {
				res, err := r.backend.Adjudicate(ctx, scanID)
				out := backend.ToOutcome(types.StageAdjudication, res, err)
				own.adjudication = &out
				r.machine.ApplyAdjudication(at, out)
				return nil
			})
		}
	} else if opts.Escalate {
		logging.Workflow("scan %s has no routing decision, skipping adjudication", scanID)
	}
	_ = g.Wait()

	if opts.Reconstruct && r.machine.Snapshot().CanReconstruct() {
		rt, err := r.machine.TriggerReconstruction()
		if err == nil {
			res, err := r.backend.Reconstruct(ctx, scanID)
			out := backend.ToOutcome(types.StageReconstruction, res, err)
			own.reconstruction = &out
			r.machine.ApplyReconstruction(rt, out)
		}
	}

	return r.finish(ticket, own), nil
}

// finish builds the report from the machine while ticket's generation is
// current, and from the run's own outcomes otherwise.
func (r *Runner) finish(ticket Ticket, own observed) Report {
	snap := r.machine.Snapshot()
	if snap.Generation != ticket.Generation {
		return own.stale()
	}
	report := Report{
		State:          snap.State.String(),
		ScanID:         snap.ScanID(),
		Triage:         snap.Triage,
		DeepDive:       snap.DeepDive.Result,
		Adjudication:   snap.Adjudication,
		Reconstruction: snap.Reconstruction,
	}
	for _, stage := range types.Stages {
		if f := snap.Failure(stage); f != nil {
			report.Failures = append(report.Failures, *f)
		}
	}
	return report
}

// observed holds the outcomes one run received from the backend. A nil field
// means the stage was not called.
type observed struct {
	triage         *types.Outcome[types.TriageResult]
	deepDive       *types.Outcome[types.DeepDiveResult]
	adjudication   *types.Outcome[types.AdjudicationResult]
	reconstruction *types.Outcome[types.ReconstructionResult]
}

func (o observed) stale() Report {
	report := Report{Stale: true}
	report.Triage = keep(o.triage, &report.Failures)
	if report.Triage != nil {
		report.ScanID = report.Triage.ID
	}
	report.DeepDive = keep(o.deepDive, &report.Failures)
	report.Adjudication = keep(o.adjudication, &report.Failures)
	report.Reconstruction = keep(o.reconstruction, &report.Failures)
	return report
}

// keep returns the received value, or nil after recording the failure.
func keep[T any](o *types.Outcome[T], failures *[]types.Failure) *T {
	switch {
	case o == nil:
		return nil
	case o.Failure != nil:
		*failures = append(*failures, *o.Failure)
		return nil
	}
	v := o.Value
	return &v
}
