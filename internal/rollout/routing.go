package rollout

// Execution modes surfaced on Routing and on every live signal event.
const (
	ModeBaselineOnly  = "baseline_only"
	ModeShadow        = "shadow"
	ModeBlended       = "blended"
	ModeCandidateOnly = "candidate_only"
)

// Weights is the capital split between the incumbent baseline and the
// candidate. The two percentages always sum to 100.
type Weights struct {
	BaselinePct  int `json:"baseline_pct"`
	CandidatePct int `json:"candidate_pct"`
}

// Valid reports whether the split covers exactly the whole book.
func (w Weights) Valid() bool {
	return w.BaselinePct >= 0 && w.CandidatePct >= 0 && w.BaselinePct+w.CandidatePct == 100
}

// Routing is the effective signal-routing directive derived from the
// current state. Consumers read it instead of re-deriving weights from
// the state name.
type Routing struct {
	Phase        string `json:"phase,omitempty"`
	PhaseType    string `json:"phase_type"`
	Mode         string `json:"mode"`
	ShadowOnly   bool   `json:"shadow_only"`
	BaselinePct  int    `json:"baseline_pct"`
	CandidatePct int    `json:"candidate_pct"`

	// RealExecutionCandidatePct is the share of candidate decisions that
	// reach real order placement. Zero during shadow even though the
	// candidate produces a full decision stream.
	RealExecutionCandidatePct int `json:"real_execution_candidate_pct"`
}

var stateWeights = map[State]Weights{
	StateLiveShadow:   {BaselinePct: 100, CandidatePct: 0},
	StateLiveCanary05: {BaselinePct: 95, CandidatePct: 5},
	StateLiveCanary15: {BaselinePct: 85, CandidatePct: 15},
	StateLiveCanary35: {BaselinePct: 65, CandidatePct: 35},
	StateLiveCanary60: {BaselinePct: 40, CandidatePct: 60},
	StateLiveStable:   {BaselinePct: 0, CandidatePct: 100},
}

// WeightsFor returns the capital split mandated by a state. States
// without live capital exposure keep the baseline at 100.
func WeightsFor(s State) Weights {
	if w, ok := stateWeights[s]; ok {
		return w
	}
	return Weights{BaselinePct: 100, CandidatePct: 0}
}

// RoutingFor derives the full routing directive for a state.
func RoutingFor(s State) Routing {
	w := WeightsFor(s)
	phase := s.Phase()
	r := Routing{
		Phase:        phase,
		PhaseType:    PhaseType(phase),
		ShadowOnly:   s == StateLiveShadow,
		BaselinePct:  w.BaselinePct,
		CandidatePct: w.CandidatePct,
	}
	if !r.ShadowOnly {
		r.RealExecutionCandidatePct = w.CandidatePct
	}
	r.Mode = deriveMode(r)
	return r
}

func deriveMode(r Routing) string {
	switch {
	case r.ShadowOnly:
		return ModeShadow
	case r.CandidatePct >= 100:
		return ModeCandidateOnly
	case r.CandidatePct <= 0:
		return ModeBaselineOnly
	default:
		return ModeBlended
	}
}
