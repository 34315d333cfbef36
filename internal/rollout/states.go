package rollout

// State identifies a node in the rollout lifecycle. Transitions between
// states are restricted to the allowedTransitions table; everything else
// is rejected before any mutation happens.
type State string

const (
	StateIdle               State = "IDLE"
	StateCandidateReady     State = "CANDIDATE_READY"
	StateOfflineGatesPassed State = "OFFLINE_GATES_PASSED"
	StatePaperSoak          State = "PAPER_SOAK"
	StateTestnetSoak        State = "TESTNET_SOAK"
	StatePendingApproval    State = "PENDING_LIVE_APPROVAL"
	StateLiveShadow         State = "LIVE_SHADOW"
	StateLiveCanary05       State = "LIVE_CANARY_05"
	StateLiveCanary15       State = "LIVE_CANARY_15"
	StateLiveCanary35       State = "LIVE_CANARY_35"
	StateLiveCanary60       State = "LIVE_CANARY_60"
	StateLiveStable         State = "LIVE_STABLE_100"
	StateCompleted          State = "COMPLETED"
	StateAborted            State = "ABORTED"
	StateRolledBack         State = "ROLLED_BACK"
)

// Phase names used as keys in phase_runtime, phase_evaluations and
// phase_kpis. They are stable identifiers and also appear in artifacts
// and metric labels.
const (
	PhasePaperSoak   = "paper_soak"
	PhaseTestnetSoak = "testnet_soak"
	PhaseShadow      = "shadow"
	PhaseCanary05    = "canary05"
	PhaseCanary15    = "canary15"
	PhaseCanary35    = "canary35"
	PhaseCanary60    = "canary60"
	PhaseStable      = "stable"
)

// Phase type groups phases that share an evaluation profile.
const (
	PhaseTypeOffline = "offline"
	PhaseTypePaper   = "paper"
	PhaseTypeTestnet = "testnet"
	PhaseTypeLive    = "live"
)

var allowedTransitions = map[State][]State{
	StateIdle:               {StateCandidateReady},
	StateCandidateReady:     {StateOfflineGatesPassed, StateAborted, StateRolledBack},
	StateOfflineGatesPassed: {StatePaperSoak, StateAborted, StateRolledBack},
	StatePaperSoak:          {StateTestnetSoak, StateAborted, StateRolledBack},
	StateTestnetSoak:        {StatePendingApproval, StateAborted, StateRolledBack},
	StatePendingApproval:    {StateLiveShadow, StateLiveStable, StateAborted, StateRolledBack},
	StateLiveShadow:         {StateLiveCanary05, StateAborted, StateRolledBack},
	StateLiveCanary05:       {StateLiveCanary15, StateAborted, StateRolledBack},
	StateLiveCanary15:       {StateLiveCanary35, StateAborted, StateRolledBack},
	StateLiveCanary35:       {StateLiveCanary60, StateAborted, StateRolledBack},
	StateLiveCanary60:       {StatePendingApproval, StateAborted, StateRolledBack},
	StateLiveStable:         {StateCompleted, StateAborted, StateRolledBack},
	StateCompleted:          {},
	StateAborted:            {},
	StateRolledBack:         {},
}

// advanceTargets maps each state to the single state Advance moves to.
// States absent from the map cannot be advanced mechanically: the two
// approval holds leave via Approve, terminal states leave via nothing.
var advanceTargets = map[State]State{
	StateOfflineGatesPassed: StatePaperSoak,
	StatePaperSoak:          StateTestnetSoak,
	StateTestnetSoak:        StatePendingApproval,
	StateLiveShadow:         StateLiveCanary05,
	StateLiveCanary05:       StateLiveCanary15,
	StateLiveCanary15:       StateLiveCanary35,
	StateLiveCanary35:       StateLiveCanary60,
	StateLiveCanary60:       StatePendingApproval,
	StateLiveStable:         StateCompleted,
}

// approvalTargets maps the state a rollout was in when it entered
// PENDING_LIVE_APPROVAL to the state Approve releases it into.
var approvalTargets = map[State]State{
	StateTestnetSoak:  StateLiveShadow,
	StateLiveCanary60: StateLiveStable,
}

var statePhases = map[State]string{
	StatePaperSoak:    PhasePaperSoak,
	StateTestnetSoak:  PhaseTestnetSoak,
	StateLiveShadow:   PhaseShadow,
	StateLiveCanary05: PhaseCanary05,
	StateLiveCanary15: PhaseCanary15,
	StateLiveCanary35: PhaseCanary35,
	StateLiveCanary60: PhaseCanary60,
	StateLiveStable:   PhaseStable,
}

var phaseTypes = map[string]string{
	PhasePaperSoak:   PhaseTypePaper,
	PhaseTestnetSoak: PhaseTypeTestnet,
	PhaseShadow:      PhaseTypeLive,
	PhaseCanary05:    PhaseTypeLive,
	PhaseCanary15:    PhaseTypeLive,
	PhaseCanary35:    PhaseTypeLive,
	PhaseCanary60:    PhaseTypeLive,
	PhaseStable:      PhaseTypeLive,
}

// CanTransition reports whether from -> to appears in the transition
// table.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Active reports whether s belongs to an in-flight rollout: anything
// that is neither IDLE nor terminal.
func (s State) Active() bool {
	return s != StateIdle && !s.Terminal()
}

// Live reports whether s routes candidate decisions against live
// execution (shadow included; it observes live flow without capital).
func (s State) Live() bool {
	switch s {
	case StateLiveShadow, StateLiveCanary05, StateLiveCanary15, StateLiveCanary35, StateLiveCanary60, StateLiveStable:
		return true
	}
	return false
}

// Phase returns the soak/live phase name for s, or "" when s carries no
// phase (offline states, approval holds, terminals).
func (s State) Phase() string {
	return statePhases[s]
}

// PhaseType returns the evaluation profile for a phase name.
func PhaseType(phase string) string {
	if t, ok := phaseTypes[phase]; ok {
		return t
	}
	return PhaseTypeOffline
}

// KnownPhases lists every phase in pipeline order.
func KnownPhases() []string {
	return []string{
		PhasePaperSoak,
		PhaseTestnetSoak,
		PhaseShadow,
		PhaseCanary05,
		PhaseCanary15,
		PhaseCanary35,
		PhaseCanary60,
		PhaseStable,
	}
}

func (s State) String() string { return string(s) }

// Valid reports whether s is one of the declared lifecycle states.
func (s State) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}
