// Package blend combines two independently generated directional trading
// decisions, the live baseline's and the rollout candidate's, into one
// executable decision during shadow and canary phases.
package blend

import "strings"

// Action is a normalized trade direction.
type Action string

const (
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionFlat  Action = "flat"
)

// Blending modes. The names are the policy engine's canonical labels.
const (
	ModeConsensus = "consenso"
	ModeWeighted  = "ponderado"
)

// Signal is a raw strategy decision as delivered by a signal engine.
// Engines differ in which score field they populate; normalization walks
// a fallback chain over them.
type Signal struct {
	Action     string   `json:"action"`
	Score      *float64 `json:"score,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Decision is a normalized {action, score} pair.
type Decision struct {
	Action Action  `json:"action"`
	Score  float64 `json:"score"`
}

// Settings selects the blending behavior. Alpha weights the candidate in
// weighted mode; DeadBand is the zero-centered band inside which a blended
// score reads as flat.
type Settings struct {
	Mode     string  `json:"mode"`
	Alpha    float64 `json:"alpha"`
	DeadBand float64 `json:"dead_band"`
}

// Outcome carries the normalized inputs and the blended result of one call.
type Outcome struct {
	Baseline  Decision `json:"baseline"`
	Candidate Decision `json:"candidate"`
	Blended   Decision `json:"blended"`
	Agreement bool     `json:"agreement"`
}

// scoreExtractors is the normalization fallback chain: explicit numeric
// score first, then the action+confidence sign convention. First hit wins.
var scoreExtractors = []func(Signal, Action) (float64, bool){
	func(s Signal, _ Action) (float64, bool) {
		if s.Score == nil {
			return 0, false
		}
		return *s.Score, true
	},
	func(s Signal, action Action) (float64, bool) {
		if s.Confidence == nil {
			return 0, false
		}
		switch action {
		case ActionLong:
			return *s.Confidence, true
		case ActionShort:
			return -*s.Confidence, true
		default:
			return 0, true
		}
	},
}

// Normalize resolves a raw signal to a {action, score} decision.
func Normalize(sig Signal) Decision {
	action := normalizeAction(sig.Action)
	for _, extract := range scoreExtractors {
		if score, found := extract(sig, action); found {
			return Decision{Action: action, Score: score}
		}
	}
	return Decision{Action: action, Score: 0}
}

func normalizeAction(raw string) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return ActionLong
	case "short", "sell":
		return ActionShort
	default:
		return ActionFlat
	}
}

// Combine normalizes both signals and blends them per the settings.
//
// Consensus mode refuses to act on conflicting signals: agreement keeps
// the shared action with the average score, disagreement forces flat.
// Weighted mode mixes scores by alpha and rereads the direction from the
// blended score through the dead band.
func Combine(baseline, candidate Signal, cfg Settings) Outcome {
	b := Normalize(baseline)
	c := Normalize(candidate)

	out := Outcome{
		Baseline:  b,
		Candidate: c,
		Agreement: b.Action == c.Action,
	}

	switch cfg.Mode {
	case ModeWeighted:
		score := cfg.Alpha*c.Score + (1-cfg.Alpha)*b.Score
		out.Blended = Decision{Action: actionFromScore(score, cfg.DeadBand), Score: score}
	default: // consensus is the safe fallback for unknown modes
		if out.Agreement {
			out.Blended = Decision{Action: b.Action, Score: (b.Score + c.Score) / 2}
		} else {
			out.Blended = Decision{Action: ActionFlat, Score: 0}
		}
	}
	return out
}

func actionFromScore(score, deadBand float64) Action {
	switch {
	case score > deadBand:
		return ActionLong
	case score < -deadBand:
		return ActionShort
	default:
		return ActionFlat
	}
}
