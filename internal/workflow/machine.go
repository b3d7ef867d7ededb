// Package workflow owns the four-stage scan workflow as one finite-state machine.
//
// Panels never infer progress from the presence of data. They ask the Machine for a
// Snapshot, request a Ticket before starting a stage call, and hand the outcome back
// with that Ticket. Every Submit starts a new generation; outcomes carrying an older
// generation are dropped, so a slow response can never render under a newer scan.
package workflow

import (
	"errors"
	"fmt"
	"sync"

	"veritas/internal/logging"
	"veritas/internal/types"
)

// State is the workflow position of the current scan.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateTriaged
	StateAdjudicationPending
	StateAdjudicated
	StateReconstructionPending
	StateReconstructed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSubmitting:
		return "Submitting"
	case StateTriaged:
		return "Triaged"
	case StateAdjudicationPending:
		return "AdjudicationPending"
	case StateAdjudicated:
		return "Adjudicated"
	case StateReconstructionPending:
		return "ReconstructionPending"
	case StateReconstructed:
		return "Reconstructed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrNotReady             = errors.New("submission needs text or an attachment")
	ErrBusy                 = errors.New("a request for this stage is already in flight")
	ErrNotEscalatable       = errors.New("scan cannot be escalated")
	ErrAlreadyAdjudicated   = errors.New("scan has already been adjudicated")
	ErrReconstructionLocked = errors.New("reconstruction requires a manipulated verdict")
	ErrAlreadyReconstructed = errors.New("scan has already been reconstructed")
	ErrNoScanID             = errors.New("scan id is empty")
)

// Ticket authorizes applying one stage outcome. It is only honored while its
// generation is current.
type Ticket struct {
	Generation uint64
	Stage      types.Stage
	ScanID     string
}

// DeepDiveView is the state of the independent deep-dive track.
type DeepDiveView struct {
	ScanID  string
	Loading bool
	Result  *types.DeepDiveResult
	Failure *types.Failure
}

// Open reports whether a deep-dive panel is mounted.
func (d DeepDiveView) Open() bool {
	return d.ScanID != ""
}

// scan is everything that belongs to one submission. Submit replaces it whole.
type scan struct {
	state                  State
	submission             types.ScanSubmission
	triage                 *types.TriageResult
	adjudication           *types.AdjudicationResult
	reconstruction         *types.ReconstructionResult
	reconstructionInFlight bool
	failures               map[types.Stage]types.Failure
}

type transition struct {
	from, to State
}

// Machine is the workflow coordinator. Safe for concurrent use.
type Machine struct {
	mu         sync.Mutex
	generation uint64
	current    scan

	deepDiveGen uint64
	deepDive    DeepDiveView

	observers []func(from, to State)
}

// NewMachine returns a machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{current: scan{state: StateIdle, failures: map[types.Stage]types.Failure{}}}
}

// OnTransition registers fn to run after every state change.
// Observers run outside the machine lock and may call back into the machine.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Machine) notify(ts []transition) {
	if len(ts) == 0 {
		return
	}
	m.mu.Lock()
	observers := append([]func(from, to State){}, m.observers...)
	m.mu.Unlock()

	for _, t := range ts {
		logging.WorkflowDebug("%s -> %s", t.from, t.to)
		logging.Audit(logging.AuditEvent{
			Type:    logging.AuditTransition,
			Success: true,
			Fields:  map[string]interface{}{"from": t.from.String(), "to": t.to.String()},
		})
		for _, fn := range observers {
			fn(t.from, t.to)
		}
	}
}

// setState records a transition; caller holds the lock.
func (m *Machine) setState(to State, ts []transition) []transition {
	from := m.current.state
	if from == to {
		return ts
	}
	m.current.state = to
	return append(ts, transition{from: from, to: to})
}

func (m *Machine) scanID() string {
	if m.current.triage == nil {
		return ""
	}
	return m.current.triage.ID
}

// =============================================================================
// STAGE 1: SUBMISSION
// =============================================================================

// Submit starts a new scan. All state of the previous scan (triage, deep-dive,
// adjudication, reconstruction, failures) is discarded in the same step that
// enters StateSubmitting.
func (m *Machine) Submit(sub types.ScanSubmission) (Ticket, error) {
	if !sub.Ready() {
		return Ticket{}, ErrNotReady
	}

	m.mu.Lock()
	if m.current.state == StateSubmitting {
		m.mu.Unlock()
		return Ticket{}, ErrBusy
	}

	previous := m.scanID()
	from := m.current.state
	m.generation++
	m.current = scan{
		state:      StateSubmitting,
		submission: sub,
		failures:   map[types.Stage]types.Failure{},
	}
	m.deepDiveGen++
	m.deepDive = DeepDiveView{}
	ticket := Ticket{Generation: m.generation, Stage: types.StageTriage}
	m.mu.Unlock()

	if previous != "" {
		logging.Audit(logging.AuditEvent{Type: logging.AuditReset, ScanID: previous, Success: true})
	}
	m.notify([]transition{{from: from, to: StateSubmitting}})
	return ticket, nil
}

// ApplyTriage stores a triage outcome. It returns false when the ticket is stale.
func (m *Machine) ApplyTriage(t Ticket, out types.Outcome[types.TriageResult]) bool {
	m.mu.Lock()
	if !m.currentTicket(t, types.StageTriage) || m.current.state != StateSubmitting {
		m.mu.Unlock()
		m.dropStale(t)
		return false
	}

	var ts []transition
	if out.OK() {
		result := out.Value
		m.current.triage = &result
		ts = m.setState(StateTriaged, ts)
	} else {
		m.current.failures[types.StageTriage] = *out.Failure
		ts = m.setState(StateIdle, ts)
	}
	m.mu.Unlock()

	m.notify(ts)
	return true
}

// =============================================================================
// STAGE 3: ADJUDICATION
// =============================================================================

// Escalate starts adjudication of the triaged scan. Only a triage result with a
// non-empty routing list can be escalated.
func (m *Machine) Escalate() (Ticket, error) {
	m.mu.Lock()
	switch m.current.state {
	case StateTriaged:
	case StateAdjudicationPending:
		m.mu.Unlock()
		return Ticket{}, ErrBusy
	case StateAdjudicated, StateReconstructionPending, StateReconstructed:
		m.mu.Unlock()
		return Ticket{}, ErrAlreadyAdjudicated
	default:
		m.mu.Unlock()
		return Ticket{}, ErrNotEscalatable
	}
	if !m.current.triage.Escalatable() {
		m.mu.Unlock()
		return Ticket{}, ErrNotEscalatable
	}

	delete(m.current.failures, types.StageAdjudication)
	ts := m.setState(StateAdjudicationPending, nil)
	ticket := Ticket{Generation: m.generation, Stage: types.StageAdjudication, ScanID: m.scanID()}
	m.mu.Unlock()

	m.notify(ts)
	return ticket, nil
}

// ApplyAdjudication stores an adjudication outcome. A manipulated verdict mounts
// the reconstruction stage immediately; a failure returns to StateTriaged so the
// escalation can be retried.
func (m *Machine) ApplyAdjudication(t Ticket, out types.Outcome[types.AdjudicationResult]) bool {
	m.mu.Lock()
	if !m.currentTicket(t, types.StageAdjudication) || m.current.state != StateAdjudicationPending {
		m.mu.Unlock()
		m.dropStale(t)
		return false
	}

	var ts []transition
	if out.OK() {
		result := out.Value
		m.current.adjudication = &result
		ts = m.setState(StateAdjudicated, ts)
		if result.UnlocksReconstruction() {
			ts = m.setState(StateReconstructionPending, ts)
		}
	} else {
		m.current.failures[types.StageAdjudication] = *out.Failure
		ts = m.setState(StateTriaged, ts)
	}
	m.mu.Unlock()

	m.notify(ts)
	return true
}

// =============================================================================
// STAGE 4: RECONSTRUCTION
// =============================================================================

// TriggerReconstruction starts the single reconstruction call of a manipulated scan.
func (m *Machine) TriggerReconstruction() (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.current.state {
	case StateReconstructionPending:
	case StateReconstructed:
		return Ticket{}, ErrAlreadyReconstructed
	default:
		return Ticket{}, ErrReconstructionLocked
	}
	if m.current.reconstructionInFlight {
		return Ticket{}, ErrBusy
	}

	m.current.reconstructionInFlight = true
	delete(m.current.failures, types.StageReconstruction)
	return Ticket{Generation: m.generation, Stage: types.StageReconstruction, ScanID: m.scanID()}, nil
}

// ApplyReconstruction stores a reconstruction outcome. On failure the trigger is
// re-enabled and the failure is kept for display.
func (m *Machine) ApplyReconstruction(t Ticket, out types.Outcome[types.ReconstructionResult]) bool {
	m.mu.Lock()
	if !m.currentTicket(t, types.StageReconstruction) ||
		m.current.state != StateReconstructionPending ||
		!m.current.reconstructionInFlight {
		m.mu.Unlock()
		m.dropStale(t)
		return false
	}

	m.current.reconstructionInFlight = false
	var ts []transition
	if out.OK() {
		result := out.Value
		m.current.reconstruction = &result
		ts = m.setState(StateReconstructed, ts)
	} else {
		m.current.failures[types.StageReconstruction] = *out.Failure
	}
	m.mu.Unlock()

	m.notify(ts)
	return true
}

// =============================================================================
// STAGE 2: DEEP-DIVE (independent track)
// =============================================================================

// OpenDeepDive mounts the deep-dive panel for scanID and marks it loading.
// Opening another scan id replaces the previous panel.
func (m *Machine) OpenDeepDive(scanID string) (Ticket, error) {
	if scanID == "" {
		return Ticket{}, ErrNoScanID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deepDive.ScanID == scanID && m.deepDive.Loading {
		return Ticket{}, ErrBusy
	}
	m.deepDiveGen++
	m.deepDive = DeepDiveView{ScanID: scanID, Loading: true}
	return Ticket{Generation: m.deepDiveGen, Stage: types.StageDeepDive, ScanID: scanID}, nil
}

// ApplyDeepDive stores a deep-dive outcome. It returns false when the ticket is stale.
func (m *Machine) ApplyDeepDive(t Ticket, out types.Outcome[types.DeepDiveResult]) bool {
	m.mu.Lock()
	if t.Stage != types.StageDeepDive || t.Generation != m.deepDiveGen || t.ScanID != m.deepDive.ScanID {
		m.mu.Unlock()
		m.dropStale(t)
		return false
	}
	m.deepDive.Loading = false
	if out.OK() {
		result := out.Value
		m.deepDive.Result = &result
		m.deepDive.Failure = nil
	} else {
		f := *out.Failure
		m.deepDive.Failure = &f
		m.deepDive.Result = nil
	}
	m.mu.Unlock()
	return true
}

// CloseDeepDive unmounts the deep-dive panel. A late response is dropped.
func (m *Machine) CloseDeepDive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deepDiveGen++
	m.deepDive = DeepDiveView{}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot returns a copy of the machine state for rendering.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[types.Stage]types.Failure, len(m.current.failures))
	for k, v := range m.current.failures {
		failures[k] = v
	}
	snap := Snapshot{
		State:                  m.current.state,
		Generation:             m.generation,
		Submission:             m.current.submission,
		ReconstructionInFlight: m.current.reconstructionInFlight,
		DeepDive:               m.deepDive,
		failures:               failures,
	}
	if m.current.triage != nil {
		t := *m.current.triage
		t.RoutingDecision = append([]string(nil), t.RoutingDecision...)
		snap.Triage = &t
	}
	if m.current.adjudication != nil {
		a := *m.current.adjudication
		snap.Adjudication = &a
	}
	if m.current.reconstruction != nil {
		r := *m.current.reconstruction
		snap.Reconstruction = &r
	}
	return snap
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.state
}

// currentTicket reports whether t belongs to the live scan; caller holds the lock.
func (m *Machine) currentTicket(t Ticket, stage types.Stage) bool {
	return t.Stage == stage && t.Generation == m.generation
}

func (m *Machine) dropStale(t Ticket) {
	logging.WorkflowDebug("dropping stale %s outcome (generation %d, scan %q)", t.Stage, t.Generation, t.ScanID)
	logging.Audit(logging.AuditEvent{
		Type:   logging.AuditStaleDrop,
		ScanID: t.ScanID,
		Stage:  string(t.Stage),
		Fields: map[string]interface{}{"generation": t.Generation},
	})
}
