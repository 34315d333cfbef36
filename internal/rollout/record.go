package rollout

import (
	"time"

	"github.com/stratops/stratroll/internal/domain/blend"
	"github.com/stratops/stratroll/internal/domain/compare"
	"github.com/stratops/stratroll/internal/domain/gates"
	"github.com/stratops/stratroll/internal/report"
	"github.com/stratops/stratroll/internal/telemetry"
)

const (
	historyCapacity    = 200
	liveEventsCapacity = 100
)

// ReportRef points at the persisted evidence backing a version snapshot.
// Paths are relative to the artifacts root so records stay portable.
type ReportRef struct {
	Metrics        string `json:"metrics"`
	CostsBreakdown string `json:"costs_breakdown"`
}

// VersionSnapshot pins the exact identity of one side of the rollout.
// It is captured once at StartOffline and never mutated afterwards, so
// later audits see the same candidate the gates saw.
type VersionSnapshot struct {
	StrategyID      string        `json:"strategy_id"`
	RunID           string        `json:"run_id"`
	StrategyName    string        `json:"strategy_name"`
	StrategyVersion string        `json:"strategy_version"`
	DatasetHash     string        `json:"dataset_hash"`
	Period          report.Period `json:"period"`
	Timeframe       string        `json:"timeframe"`
	Market          string        `json:"market,omitempty"`
	Symbol          string        `json:"symbol,omitempty"`
	ReportRef       ReportRef     `json:"report_ref"`
}

// SnapshotFromReport lifts the identity fields out of a performance
// report.
func SnapshotFromReport(rep *report.PerformanceReport) VersionSnapshot {
	return VersionSnapshot{
		StrategyID:      rep.StrategyID,
		RunID:           rep.RunID,
		StrategyName:    rep.StrategyName,
		StrategyVersion: rep.StrategyVersion,
		DatasetHash:     rep.DatasetHash,
		Period:          rep.Period,
		Timeframe:       rep.Timeframe,
		Market:          rep.Market,
		Symbol:          rep.Symbol,
	}
}

// BlendingState is the blending configuration frozen into the record at
// start so mid-flight policy edits cannot change live arbitration.
type BlendingState struct {
	Enabled  bool    `json:"enabled"`
	Mode     string  `json:"mode"`
	Alpha    float64 `json:"alpha"`
	DeadBand float64 `json:"dead_band"`
}

// Settings converts the frozen state into blend engine settings.
func (b BlendingState) Settings() blend.Settings {
	return blend.Settings{Mode: b.Mode, Alpha: b.Alpha, DeadBand: b.DeadBand}
}

// PhaseRuntime tracks wall-clock boundaries for one phase.
type PhaseRuntime struct {
	StartedAt  time.Time  `json:"started_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Elapsed returns how long the phase has been running as of now. Ended
// phases measure to their end time.
func (p *PhaseRuntime) Elapsed(now time.Time) time.Duration {
	if p == nil || p.StartedAt.IsZero() {
		return 0
	}
	end := now
	if p.EndedAt != nil {
		end = *p.EndedAt
	}
	if end.Before(p.StartedAt) {
		return 0
	}
	return end.Sub(p.StartedAt)
}

// HistoryEntry is one line of the append-only audit trail.
type HistoryEntry struct {
	TS      time.Time      `json:"ts"`
	Event   string         `json:"event"`
	From    State          `json:"from,omitempty"`
	To      State          `json:"to,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// EventDecisions captures every decision involved in routing one
// signal: both raw inputs, the arbitrated output and what actually went
// to execution.
type EventDecisions struct {
	Baseline  blend.Decision `json:"baseline"`
	Candidate blend.Decision `json:"candidate"`
	Blended   blend.Decision `json:"blended"`
	Executed  blend.Decision `json:"executed"`
}

// LiveSignalEvent is the per-signal record appended to the live
// telemetry ring and broadcast to websocket subscribers.
type LiveSignalEvent struct {
	ID            string         `json:"id"`
	TS            time.Time      `json:"ts"`
	Phase         string         `json:"phase"`
	State         State          `json:"state"`
	Symbol        string         `json:"symbol,omitempty"`
	Timeframe     string         `json:"timeframe,omitempty"`
	ExecutionMode string         `json:"execution_mode"`
	Agreement     bool           `json:"agreement"`
	Decisions     EventDecisions `json:"decisions"`
	Routing       Routing        `json:"routing"`
	Blending      BlendingState  `json:"blending"`
}

// PhaseSignalStats aggregates routed signals per phase.
type PhaseSignalStats struct {
	Events        int64   `json:"events"`
	Agreements    int64   `json:"agreements"`
	AgreementRate float64 `json:"agreement_rate"`

	// Actions counts executed actions keyed by source ("baseline",
	// "candidate", "executed") then action name.
	Actions map[string]map[string]int64 `json:"actions,omitempty"`
}

func (s *PhaseSignalStats) observe(ev LiveSignalEvent) {
	s.Events++
	if ev.Agreement {
		s.Agreements++
	}
	if s.Events > 0 {
		s.AgreementRate = float64(s.Agreements) / float64(s.Events)
	}
	if s.Actions == nil {
		s.Actions = make(map[string]map[string]int64)
	}
	bump := func(source string, action blend.Action) {
		m := s.Actions[source]
		if m == nil {
			m = make(map[string]int64)
			s.Actions[source] = m
		}
		m[string(action)]++
	}
	bump("baseline", ev.Decisions.Baseline.Action)
	bump("candidate", ev.Decisions.Candidate.Action)
	bump("executed", ev.Decisions.Executed.Action)
}

// LiveTelemetry is the bounded in-record view of recent routing
// activity. The ring keeps the newest events; per-phase aggregates keep
// running totals so old evictions lose no counts.
type LiveTelemetry struct {
	Recent       *telemetry.Ring[LiveSignalEvent] `json:"recent"`
	Phases       map[string]*PhaseSignalStats     `json:"phases,omitempty"`
	LastDecision *LiveSignalEvent                 `json:"last_decision,omitempty"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

func newLiveTelemetry() *LiveTelemetry {
	return &LiveTelemetry{
		Recent: telemetry.NewRing[LiveSignalEvent](liveEventsCapacity),
		Phases: make(map[string]*PhaseSignalStats),
	}
}

func (lt *LiveTelemetry) observe(ev LiveSignalEvent) {
	if lt.Recent == nil {
		lt.Recent = telemetry.NewRing[LiveSignalEvent](liveEventsCapacity)
	}
	lt.Recent.Push(ev)
	if lt.Phases == nil {
		lt.Phases = make(map[string]*PhaseSignalStats)
	}
	st := lt.Phases[ev.Phase]
	if st == nil {
		st = &PhaseSignalStats{}
		lt.Phases[ev.Phase] = st
	}
	st.observe(ev)
	cp := ev
	lt.LastDecision = &cp
	lt.UpdatedAt = ev.TS
}

// RollbackSnapshot preserves the context of a rollback or abort for the
// post-mortem.
type RollbackSnapshot struct {
	TS         time.Time          `json:"ts"`
	PriorState State              `json:"prior_state"`
	Phase      string             `json:"phase,omitempty"`
	Reason     string             `json:"reason"`
	Actor      string             `json:"actor,omitempty"`
	Auto       bool               `json:"auto"`
	HardFails  []string           `json:"hard_fails,omitempty"`
	KPIs       map[string]float64 `json:"kpis,omitempty"`
}

// Record is the single persisted aggregate for one rollout. Every
// operation loads it, validates the transition, mutates and stores it
// back under compare-and-swap on Revision.
type Record struct {
	RolloutID string `json:"rollout_id"`
	State     State  `json:"state"`

	BaselineVersion  VersionSnapshot `json:"baseline_version"`
	CandidateVersion VersionSnapshot `json:"candidate_version"`

	Weights  Weights       `json:"weights"`
	Routing  Routing       `json:"routing"`
	Blending BlendingState `json:"blending"`

	OfflineGates      *gates.Result   `json:"offline_gates,omitempty"`
	CompareVsBaseline *compare.Result `json:"compare_vs_baseline,omitempty"`

	CurrentPhase     string                        `json:"current_phase,omitempty"`
	PhaseRuntime     map[string]*PhaseRuntime      `json:"phase_runtime,omitempty"`
	PhaseEvaluations map[string]*PhaseEvaluation   `json:"phase_evaluations,omitempty"`
	PhaseKPIs        map[string]map[string]float64 `json:"phase_kpis,omitempty"`

	LiveSignals *LiveTelemetry `json:"live_signal_telemetry,omitempty"`

	// ApprovalTarget records which live state Approve releases into
	// while the rollout holds in PENDING_LIVE_APPROVAL.
	ApprovalTarget State  `json:"approval_target,omitempty"`
	ApprovedBy     string `json:"approved_by,omitempty"`

	ArtifactsDir string            `json:"artifacts_dir,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`

	AbortReason      string                        `json:"abort_reason,omitempty"`
	RollbackSnapshot *RollbackSnapshot             `json:"rollback_snapshot,omitempty"`
	History          *telemetry.Ring[HistoryEntry] `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revision is the optimistic-concurrency token managed by the
	// store. Saves with a stale revision fail instead of clobbering.
	Revision int64 `json:"revision"`
}

// NewRecord builds a fresh record in IDLE with bounded buffers wired.
func NewRecord(id string, now time.Time) *Record {
	return &Record{
		RolloutID:        id,
		State:            StateIdle,
		Weights:          Weights{BaselinePct: 100},
		Routing:          RoutingFor(StateIdle),
		PhaseRuntime:     make(map[string]*PhaseRuntime),
		PhaseEvaluations: make(map[string]*PhaseEvaluation),
		PhaseKPIs:        make(map[string]map[string]float64),
		LiveSignals:      newLiveTelemetry(),
		Artifacts:        make(map[string]string),
		History:          telemetry.NewRing[HistoryEntry](historyCapacity),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Normalize re-imposes invariants on a record loaded from storage:
// bounded ring capacities (JSON round-trips adopt the array length) and
// non-nil maps.
func (r *Record) Normalize() {
	if r.History == nil {
		r.History = telemetry.NewRing[HistoryEntry](historyCapacity)
	}
	r.History.SetCapacity(historyCapacity)
	if r.LiveSignals == nil {
		r.LiveSignals = newLiveTelemetry()
	}
	if r.LiveSignals.Recent == nil {
		r.LiveSignals.Recent = telemetry.NewRing[LiveSignalEvent](liveEventsCapacity)
	}
	r.LiveSignals.Recent.SetCapacity(liveEventsCapacity)
	if r.LiveSignals.Phases == nil {
		r.LiveSignals.Phases = make(map[string]*PhaseSignalStats)
	}
	if r.PhaseRuntime == nil {
		r.PhaseRuntime = make(map[string]*PhaseRuntime)
	}
	if r.PhaseEvaluations == nil {
		r.PhaseEvaluations = make(map[string]*PhaseEvaluation)
	}
	if r.PhaseKPIs == nil {
		r.PhaseKPIs = make(map[string]map[string]float64)
	}
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]string)
	}
}

func (r *Record) appendHistory(e HistoryEntry) {
	if r.History == nil {
		r.History = telemetry.NewRing[HistoryEntry](historyCapacity)
	}
	r.History.Push(e)
}

// transition applies from -> to after checking the table, stamps
// routing and weights for the new state and opens/closes phase
// runtimes. Callers append their own history entry with context.
func (r *Record) transition(to State, now time.Time) error {
	from := r.State
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	if prev := from.Phase(); prev != "" {
		if rt := r.PhaseRuntime[prev]; rt != nil && rt.EndedAt == nil {
			end := now
			rt.EndedAt = &end
		}
	}
	r.State = to
	r.Routing = RoutingFor(to)
	r.Weights = Weights{BaselinePct: r.Routing.BaselinePct, CandidatePct: r.Routing.CandidatePct}
	r.CurrentPhase = to.Phase()
	if r.CurrentPhase != "" {
		if r.PhaseRuntime == nil {
			r.PhaseRuntime = make(map[string]*PhaseRuntime)
		}
		if r.PhaseRuntime[r.CurrentPhase] == nil {
			r.PhaseRuntime[r.CurrentPhase] = &PhaseRuntime{StartedAt: now, LastSeenAt: now}
		}
	}
	r.UpdatedAt = now
	return nil
}

// LatestEvaluation returns the newest evaluation for the current phase,
// or nil when the phase has never been evaluated.
func (r *Record) LatestEvaluation() *PhaseEvaluation {
	if r.CurrentPhase == "" {
		return nil
	}
	return r.PhaseEvaluations[r.CurrentPhase]
}
