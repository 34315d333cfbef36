// Package rollout implements the canary rollout orchestrator: the phase
// state machine over one durable record per rollout, phase health
// evaluation with automatic abort/rollback, live-signal blending and
// the audit surfaces that make a promotion decision reviewable.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/domain/blend"
	"github.com/stratops/stratroll/internal/domain/compare"
	"github.com/stratops/stratroll/internal/domain/gates"
	"github.com/stratops/stratroll/internal/report"
	"github.com/stratops/stratroll/internal/telemetry"
)

// Store persists rollout records. Save must honor compare-and-swap on
// Record.Revision: a zero revision inserts, a stale revision returns
// ErrRevisionConflict and persists nothing, and a successful save
// writes the new revision back onto rec.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, rolloutID string) (*Record, error)
	// Active returns the single non-terminal record, or
	// ErrRecordNotFound when every rollout has finished.
	Active(ctx context.Context) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
}

// ArtifactStore persists the baseline/candidate evidence reports into a
// rollout-scoped directory at start. Paths come back for embedding in
// the record.
type ArtifactStore interface {
	SaveReports(ctx context.Context, rolloutID string, baseline, candidate *report.PerformanceReport) (ArtifactRefs, error)
}

// ArtifactRefs are the persisted evidence locations.
type ArtifactRefs struct {
	Dir           string `json:"dir"`
	BaselinePath  string `json:"baseline_path"`
	CandidatePath string `json:"candidate_path"`
}

// StatusMirror publishes a compact status snapshot after every
// successful mutation. Implementations must be best-effort; the manager
// logs and proceeds when publishing fails.
type StatusMirror interface {
	PublishStatus(ctx context.Context, rec *Record) error
}

// TransitionNotifier emits one event per applied state transition.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, rec *Record, entry HistoryEntry) error
}

// SignalSink receives every routed live signal after it has been
// persisted. Used to fan events out to websocket subscribers.
type SignalSink interface {
	PublishSignal(ctx context.Context, ev LiveSignalEvent)
}

// Deps wires the manager's collaborators. Store and Artifacts are
// required; everything else has a working default or is optional.
type Deps struct {
	Store     Store
	Artifacts ArtifactStore
	Policy    *config.Policy
	Gates     *gates.Evaluator
	Compare   *compare.Engine
	Metrics   *telemetry.Metrics
	Mirror    StatusMirror
	Notifier  TransitionNotifier
	Signals   SignalSink

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Manager orchestrates rollouts. Every public operation is one
// serialized read-modify-persist cycle: the mutex orders operations
// within the process and the store's revision CAS protects against
// concurrent writers elsewhere. No operation leaves a partially applied
// transition behind.
type Manager struct {
	mu sync.Mutex

	store     Store
	artifacts ArtifactStore
	policy    *config.Policy
	gates     *gates.Evaluator
	compare   *compare.Engine
	evaluator phaseEvaluator
	metrics   *telemetry.Metrics
	mirror    StatusMirror
	notifier  TransitionNotifier
	signals   SignalSink

	now   func() time.Time
	newID func() string
}

// NewManager validates deps and builds a manager.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("rollout manager requires a store")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("rollout manager requires an artifact store")
	}
	policy := deps.Policy
	if policy == nil {
		policy = config.DefaultPolicy()
	}
	gateEval := deps.Gates
	if gateEval == nil {
		gateEval = gates.NewEvaluator(policy.Gates)
	}
	compareEngine := deps.Compare
	if compareEngine == nil {
		compareEngine = compare.NewEngine(policy.Compare)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Manager{
		store:     deps.Store,
		artifacts: deps.Artifacts,
		policy:    policy,
		gates:     gateEval,
		compare:   compareEngine,
		evaluator: phaseEvaluator{policy: policy},
		metrics:   metrics,
		mirror:    deps.Mirror,
		notifier:  deps.Notifier,
		signals:   deps.Signals,
		now:       now,
		newID:     newID,
	}, nil
}

// Strategies optionally overrides the display names recorded on the
// version snapshots.
type Strategies struct {
	Baseline  string `json:"baseline,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// StartInput carries everything StartOffline needs. Verdicts may be
// pre-computed by the caller; nil verdicts are computed here from the
// reports and the optional per-call threshold overrides.
type StartInput struct {
	Baseline   *report.PerformanceReport
	Candidate  *report.PerformanceReport
	Strategies Strategies

	GatesResult   *gates.Result
	CompareResult *compare.Result

	GateOverrides    map[string]any
	CompareOverrides map[string]any

	Actor string
}

// StartOffline registers a candidate against a baseline, runs the
// offline gates and the baseline comparison, persists both evidence
// reports, and leaves the new rollout in OFFLINE_GATES_PASSED or
// ABORTED depending on the verdicts. Refused while another rollout is
// still active.
func (m *Manager) StartOffline(ctx context.Context, in StartInput) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("start_offline")

	if in.Baseline == nil || in.Candidate == nil {
		timer.Stop("error")
		return nil, errors.New("start_offline requires both baseline and candidate reports")
	}

	if active, err := m.store.Active(ctx); err == nil && active != nil {
		timer.Stop("rejected")
		return nil, fmt.Errorf("%w: rollout %s in state %s", ErrRolloutActive, active.RolloutID, active.State)
	} else if err != nil && !errors.Is(err, ErrRecordNotFound) {
		timer.Stop("error")
		return nil, fmt.Errorf("check active rollout: %w", err)
	}

	now := m.now()
	rec := NewRecord(m.newID(), now)
	rec.BaselineVersion = SnapshotFromReport(in.Baseline)
	rec.CandidateVersion = SnapshotFromReport(in.Candidate)
	if in.Strategies.Baseline != "" {
		rec.BaselineVersion.StrategyName = in.Strategies.Baseline
	}
	if in.Strategies.Candidate != "" {
		rec.CandidateVersion.StrategyName = in.Strategies.Candidate
	}
	rec.Blending = BlendingState{
		Enabled:  m.policy.Blending.Enabled,
		Mode:     m.policy.Blending.Mode,
		Alpha:    m.policy.Blending.Alpha,
		DeadBand: m.policy.Blending.DeadBand,
	}

	if err := m.applyTransition(rec, StateCandidateReady, HistoryEntry{
		Event: "candidate_registered", Actor: in.Actor,
		Details: map[string]any{
			"candidate": rec.CandidateVersion.StrategyID,
			"baseline":  rec.BaselineVersion.StrategyID,
		},
	}, now); err != nil {
		timer.Stop("error")
		return nil, err
	}

	gatesResult := in.GatesResult
	if gatesResult == nil {
		r := m.gates.Evaluate(in.Candidate, in.GateOverrides)
		gatesResult = &r
	}
	compareResult := in.CompareResult
	if compareResult == nil {
		r := m.compare.Compare(in.Candidate, in.Baseline, in.CompareOverrides)
		compareResult = &r
	}
	rec.OfflineGates = gatesResult
	rec.CompareVsBaseline = compareResult
	for _, id := range gatesResult.FailedIDs {
		m.metrics.GateFailures.WithLabelValues(id).Inc()
	}
	for _, id := range compareResult.FailedIDs {
		m.metrics.GateFailures.WithLabelValues(id).Inc()
	}

	refs, err := m.artifacts.SaveReports(ctx, rec.RolloutID, in.Baseline, in.Candidate)
	if err != nil {
		timer.Stop("error")
		return nil, fmt.Errorf("persist report artifacts: %w", err)
	}
	rec.ArtifactsDir = refs.Dir
	rec.Artifacts["baseline_report"] = refs.BaselinePath
	rec.Artifacts["candidate_report"] = refs.CandidatePath
	rec.BaselineVersion.ReportRef = ReportRef{Metrics: refs.BaselinePath, CostsBreakdown: refs.BaselinePath}
	rec.CandidateVersion.ReportRef = ReportRef{Metrics: refs.CandidatePath, CostsBreakdown: refs.CandidatePath}

	if gatesResult.Passed && compareResult.Passed {
		if err := m.applyTransition(rec, StateOfflineGatesPassed, HistoryEntry{
			Event: "offline_gates_passed", Actor: in.Actor,
			Details: map[string]any{"gates": gatesResult.Summary, "compare": compareResult.Summary},
		}, now); err != nil {
			timer.Stop("error")
			return nil, err
		}
	} else {
		failed := append(append([]string{}, gatesResult.FailedIDs...), compareResult.FailedIDs...)
		rec.AbortReason = "offline verdict failed: " + strings.Join(failed, ", ")
		if err := m.applyTransition(rec, StateAborted, HistoryEntry{
			Event: "offline_gates_failed", Actor: in.Actor, Reason: rec.AbortReason,
			Details: map[string]any{"failed_ids": failed},
		}, now); err != nil {
			timer.Stop("error")
			return nil, err
		}
		m.metrics.Rollbacks.WithLabelValues("abort", "true").Inc()
	}

	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	m.notifyTransition(ctx, rec)
	log.Info().
		Str("rollout_id", rec.RolloutID).
		Str("state", rec.State.String()).
		Bool("gates_passed", gatesResult.Passed).
		Bool("compare_passed", compareResult.Passed).
		Msg("rollout started offline")
	timer.Stop("ok")
	return rec, nil
}

// Advance moves the rollout to its deterministic next state. Phase
// states additionally require the latest evaluation for the current
// phase to have passed.
func (m *Manager) Advance(ctx context.Context, rolloutID, actor, note string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("advance")

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	next, ok := advanceTargets[rec.State]
	if !ok {
		timer.Stop("rejected")
		if rec.State == StatePendingApproval {
			return nil, fmt.Errorf("%w: use approve to leave %s", ErrApprovalRequired, rec.State)
		}
		return nil, &WrongStateError{Op: "advance", State: rec.State}
	}
	if phase := rec.State.Phase(); phase != "" {
		ev := rec.PhaseEvaluations[phase]
		if ev == nil {
			timer.Stop("rejected")
			return nil, fmt.Errorf("%w: phase %s has not been evaluated", ErrEvaluationNotPassed, phase)
		}
		if !ev.Passed {
			timer.Stop("rejected")
			return nil, fmt.Errorf("%w: phase %s status %s", ErrEvaluationNotPassed, phase, ev.Status)
		}
	}

	now := m.now()
	if next == StatePendingApproval {
		rec.ApprovalTarget = approvalTargets[rec.State]
	}
	if err := m.applyTransition(rec, next, HistoryEntry{Event: "advance", Actor: actor, Reason: note}, now); err != nil {
		timer.Stop("error")
		return nil, err
	}
	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	m.notifyTransition(ctx, rec)
	timer.Stop("ok")
	return rec, nil
}

// Approve releases a PENDING_LIVE_APPROVAL hold into its stored target:
// LIVE_SHADOW after testnet, LIVE_STABLE_100 after the last canary.
func (m *Manager) Approve(ctx context.Context, rolloutID, actor string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("approve")

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	if rec.State != StatePendingApproval {
		timer.Stop("rejected")
		return nil, &WrongStateError{Op: "approve", State: rec.State, Expected: []State{StatePendingApproval}}
	}
	target := rec.ApprovalTarget
	if target == "" {
		timer.Stop("error")
		return nil, fmt.Errorf("rollout %s holds without an approval target", rec.RolloutID)
	}

	now := m.now()
	rec.ApprovedBy = actor
	rec.ApprovalTarget = ""
	if err := m.applyTransition(rec, target, HistoryEntry{Event: "approve", Actor: actor}, now); err != nil {
		timer.Stop("error")
		return nil, err
	}
	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	m.notifyTransition(ctx, rec)
	log.Info().
		Str("rollout_id", rec.RolloutID).
		Str("state", rec.State.String()).
		Str("actor", actor).
		Msg("live approval granted")
	timer.Stop("ok")
	return rec, nil
}

// Reject force-aborts the rollout from any eligible state.
func (m *Manager) Reject(ctx context.Context, rolloutID, actor, reason string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("reject")

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	if reason == "" {
		reason = "rejected by operator"
	}
	now := m.now()
	rec.AbortReason = reason
	if err := m.applyTransition(rec, StateAborted, HistoryEntry{Event: "reject", Actor: actor, Reason: reason}, now); err != nil {
		timer.Stop("rejected")
		return nil, err
	}
	m.metrics.Rollbacks.WithLabelValues("abort", "false").Inc()
	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	m.notifyTransition(ctx, rec)
	timer.Stop("ok")
	return rec, nil
}

// Rollback force-transitions to ROLLED_BACK, resets routing to
// baseline-only and records a postmortem snapshot.
func (m *Manager) Rollback(ctx context.Context, rolloutID, actor, reason string, auto bool) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("rollback")

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	now := m.now()
	if err := m.rollbackLocked(rec, actor, reason, auto, nil, now); err != nil {
		timer.Stop("rejected")
		return nil, err
	}
	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	m.notifyTransition(ctx, rec)
	timer.Stop("ok")
	return rec, nil
}

// rollbackLocked mutates rec into ROLLED_BACK. Callers hold the mutex
// and persist afterwards.
func (m *Manager) rollbackLocked(rec *Record, actor, reason string, auto bool, hardFails []string, now time.Time) error {
	if reason == "" {
		reason = "rollback requested"
	}
	snapshot := &RollbackSnapshot{
		TS:         now,
		PriorState: rec.State,
		Phase:      rec.CurrentPhase,
		Reason:     reason,
		Actor:      actor,
		Auto:       auto,
		HardFails:  hardFails,
	}
	if rec.CurrentPhase != "" {
		if kpis := rec.PhaseKPIs[rec.CurrentPhase]; kpis != nil {
			snapshot.KPIs = kpis
		}
	}
	if err := m.applyTransition(rec, StateRolledBack, HistoryEntry{
		Event: "rollback", Actor: actor, Reason: reason,
		Details: map[string]any{"auto": auto, "prior_state": snapshot.PriorState},
	}, now); err != nil {
		return err
	}
	rec.RollbackSnapshot = snapshot
	m.metrics.Rollbacks.WithLabelValues("rollback", fmt.Sprintf("%t", auto)).Inc()
	log.Warn().
		Str("rollout_id", rec.RolloutID).
		Str("prior_state", snapshot.PriorState.String()).
		Str("reason", reason).
		Bool("auto", auto).
		Msg("rollout rolled back to baseline")
	return nil
}

// EvaluationOutcome is the per-call result of a phase evaluation,
// including any automatic enforcement applied in the same operation.
type EvaluationOutcome struct {
	Evaluation *PhaseEvaluation `json:"evaluation"`
	State      State            `json:"state"`
	AutoAction string           `json:"auto_action,omitempty"`
	Record     *Record          `json:"-"`
}

// EvaluatePaperSoak evaluates the paper soak phase.
func (m *Manager) EvaluatePaperSoak(ctx context.Context, rolloutID string, in TelemetryInput) (*EvaluationOutcome, error) {
	return m.evaluatePhase(ctx, "evaluate_paper_soak", rolloutID, in, StatePaperSoak)
}

// EvaluateTestnetSoak evaluates the testnet soak phase.
func (m *Manager) EvaluateTestnetSoak(ctx context.Context, rolloutID string, in TelemetryInput) (*EvaluationOutcome, error) {
	return m.evaluatePhase(ctx, "evaluate_testnet_soak", rolloutID, in, StateTestnetSoak)
}

// EvaluateLivePhase evaluates whichever live phase is active.
func (m *Manager) EvaluateLivePhase(ctx context.Context, rolloutID string, in TelemetryInput) (*EvaluationOutcome, error) {
	return m.evaluatePhase(ctx, "evaluate_live_phase", rolloutID, in,
		StateLiveShadow, StateLiveCanary05, StateLiveCanary15, StateLiveCanary35, StateLiveCanary60, StateLiveStable)
}

func (m *Manager) evaluatePhase(ctx context.Context, op, rolloutID string, in TelemetryInput, allowed ...State) (*EvaluationOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp(op)

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	if !stateIn(rec.State, allowed) {
		timer.Stop("rejected")
		return nil, &WrongStateError{Op: op, State: rec.State, Expected: allowed}
	}

	now := m.now()
	phase := rec.State.Phase()
	runtime := rec.PhaseRuntime[phase]
	if runtime == nil {
		runtime = &PhaseRuntime{StartedAt: now}
		rec.PhaseRuntime[phase] = runtime
	}
	runtime.LastSeenAt = now

	ev := m.evaluator.evaluate(phase, runtime.Elapsed(now), in, now)
	rec.PhaseEvaluations[phase] = ev
	rec.PhaseKPIs[phase] = ev.KPIs
	rec.UpdatedAt = now
	rec.appendHistory(HistoryEntry{
		TS: now, Event: "phase_evaluated", Reason: string(ev.Status),
		Details: map[string]any{"phase": phase, "failed_ids": ev.FailedIDs, "hard_fail_ids": ev.HardFailIDs},
	})
	m.metrics.PhaseEvaluations.WithLabelValues(phase, string(ev.Status)).Inc()

	outcome := &EvaluationOutcome{Evaluation: ev, Record: rec}

	// Hard fails are enforced inside the same operation so the caller
	// never observes a breached rollout still routing capital.
	if len(ev.HardFailIDs) > 0 {
		reason := "hard-fail checks: " + strings.Join(ev.HardFailIDs, ", ")
		switch {
		case ev.PhaseType == PhaseTypeLive && m.policy.AutoRollback:
			if err := m.rollbackLocked(rec, "auto", reason, true, ev.HardFailIDs, now); err != nil {
				timer.Stop("error")
				return nil, err
			}
			outcome.AutoAction = "rollback"
		case ev.PhaseType != PhaseTypeLive && m.policy.AutoAbort:
			rec.AbortReason = reason
			if err := m.applyTransition(rec, StateAborted, HistoryEntry{
				Event: "auto_abort", Actor: "auto", Reason: reason,
				Details: map[string]any{"phase": phase, "hard_fail_ids": ev.HardFailIDs},
			}, now); err != nil {
				timer.Stop("error")
				return nil, err
			}
			m.metrics.Rollbacks.WithLabelValues("abort", "true").Inc()
			outcome.AutoAction = "abort"
		}
	}

	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	if outcome.AutoAction != "" {
		m.notifyTransition(ctx, rec)
	}
	outcome.State = rec.State
	timer.Stop("ok")
	return outcome, nil
}

// SignalInput is one pair of independently generated directional
// decisions to arbitrate.
type SignalInput struct {
	Baseline  blend.Signal `json:"baseline"`
	Candidate blend.Signal `json:"candidate"`
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
}

// SignalOutcome is the per-call result of RouteLiveSignal.
type SignalOutcome struct {
	Event     LiveSignalEvent `json:"event"`
	State     State           `json:"state"`
	Telemetry *LiveTelemetry  `json:"telemetry"`
}

// RouteLiveSignal arbitrates one baseline/candidate signal pair during
// shadow or canary. The executed decision is the baseline verbatim in
// shadow (or while blending is disabled); otherwise it is the blended
// decision. Every call appends to the bounded telemetry ring.
func (m *Manager) RouteLiveSignal(ctx context.Context, rolloutID string, in SignalInput) (*SignalOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := m.metrics.StartOp("route_live_signal")

	rec, err := m.load(ctx, rolloutID)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	routable := []State{StateLiveShadow, StateLiveCanary05, StateLiveCanary15, StateLiveCanary35, StateLiveCanary60}
	if !stateIn(rec.State, routable) {
		timer.Stop("rejected")
		return nil, &WrongStateError{Op: "route_live_signal", State: rec.State, Expected: routable}
	}

	now := m.now()
	blended := blend.Combine(in.Baseline, in.Candidate, rec.Blending.Settings())
	executed := blended.Blended
	if rec.Routing.ShadowOnly || !rec.Blending.Enabled {
		executed = blended.Baseline
	}

	event := LiveSignalEvent{
		ID:            m.newID(),
		TS:            now,
		Phase:         rec.CurrentPhase,
		State:         rec.State,
		Symbol:        in.Symbol,
		Timeframe:     in.Timeframe,
		ExecutionMode: rec.Routing.Mode,
		Agreement:     blended.Agreement,
		Decisions: EventDecisions{
			Baseline:  blended.Baseline,
			Candidate: blended.Candidate,
			Blended:   blended.Blended,
			Executed:  executed,
		},
		Routing:  rec.Routing,
		Blending: rec.Blending,
	}
	rec.LiveSignals.observe(event)
	if runtime := rec.PhaseRuntime[rec.CurrentPhase]; runtime != nil {
		runtime.LastSeenAt = now
	}
	rec.UpdatedAt = now
	m.metrics.RecordBlend(rec.Blending.Mode, blended.Agreement)

	if err := m.persist(ctx, rec); err != nil {
		timer.Stop("error")
		return nil, err
	}
	if m.signals != nil {
		m.signals.PublishSignal(ctx, event)
	}
	timer.Stop("ok")
	return &SignalOutcome{Event: event, State: rec.State, Telemetry: rec.LiveSignals}, nil
}

// Status returns the full record for a rollout id, or the active
// rollout when the id is empty.
func (m *Manager) Status(ctx context.Context, rolloutID string) (*Record, error) {
	return m.load(ctx, rolloutID)
}

// History lists recent rollouts, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]*Record, error) {
	return m.store.List(ctx, limit)
}

func (m *Manager) load(ctx context.Context, rolloutID string) (*Record, error) {
	var rec *Record
	var err error
	if rolloutID == "" {
		rec, err = m.store.Active(ctx)
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNoActiveRollout
		}
	} else {
		rec, err = m.store.Get(ctx, rolloutID)
	}
	if err != nil {
		return nil, err
	}
	rec.Normalize()
	return rec, nil
}

// applyTransition runs the table-checked transition and appends the
// caller's history entry stamped with from/to.
func (m *Manager) applyTransition(rec *Record, to State, entry HistoryEntry, now time.Time) error {
	from := rec.State
	if err := rec.transition(to, now); err != nil {
		return err
	}
	entry.TS = now
	entry.From = from
	entry.To = to
	rec.appendHistory(entry)
	m.metrics.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.metrics.CandidateWeight.Set(float64(rec.Weights.CandidatePct))
	log.Info().
		Str("rollout_id", rec.RolloutID).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("event", entry.Event).
		Msg("rollout transition applied")
	return nil
}

// persist saves the record and mirrors the fresh status. Mirror
// failures are logged, never surfaced: the store is the source of
// truth and the mirror is a cache.
func (m *Manager) persist(ctx context.Context, rec *Record) error {
	if err := m.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist rollout %s: %w", rec.RolloutID, err)
	}
	if m.mirror != nil {
		if err := m.mirror.PublishStatus(ctx, rec); err != nil {
			log.Warn().Err(err).Str("rollout_id", rec.RolloutID).Msg("status mirror publish failed")
		}
	}
	return nil
}

func (m *Manager) notifyTransition(ctx context.Context, rec *Record) {
	if m.notifier == nil {
		return
	}
	entries := rec.History.Items()
	if len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	if err := m.notifier.NotifyTransition(ctx, rec, last); err != nil {
		log.Warn().Err(err).Str("rollout_id", rec.RolloutID).Msg("transition notify failed")
	}
}

func stateIn(s State, set []State) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
