package blend

import (
	"math"
	"testing"
)

func score(v float64) *float64 { return &v }

func TestNormalize_ActionWords(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
	}{
		{"long", ActionLong},
		{"buy", ActionLong},
		{"  BUY ", ActionLong},
		{"short", ActionShort},
		{"Sell", ActionShort},
		{"flat", ActionFlat},
		{"hold", ActionFlat},
		{"", ActionFlat},
	}
	for _, tc := range cases {
		if got := Normalize(Signal{Action: tc.raw}).Action; got != tc.want {
			t.Errorf("Normalize(%q).Action = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestNormalize_ScoreFallbackChain(t *testing.T) {
	// Explicit score wins even when confidence is also present.
	d := Normalize(Signal{Action: "long", Score: score(0.3), Confidence: score(0.9)})
	if d.Score != 0.3 {
		t.Errorf("score field should win: got %v", d.Score)
	}

	// Confidence is unsigned; the action supplies the sign.
	d = Normalize(Signal{Action: "short", Confidence: score(0.8)})
	if d.Score != -0.8 {
		t.Errorf("short confidence = %v, want -0.8", d.Score)
	}
	d = Normalize(Signal{Action: "long", Confidence: score(0.8)})
	if d.Score != 0.8 {
		t.Errorf("long confidence = %v, want 0.8", d.Score)
	}
	d = Normalize(Signal{Action: "flat", Confidence: score(0.8)})
	if d.Score != 0 {
		t.Errorf("flat confidence = %v, want 0", d.Score)
	}

	// Neither field set: action only, score zero.
	d = Normalize(Signal{Action: "long"})
	if d.Action != ActionLong || d.Score != 0 {
		t.Errorf("bare signal = %+v", d)
	}
}

func TestCombine_ConsensusAgreement(t *testing.T) {
	out := Combine(
		Signal{Action: "long", Score: score(0.5)},
		Signal{Action: "buy", Score: score(0.9)},
		Settings{Mode: ModeConsensus},
	)

	if !out.Agreement {
		t.Fatal("long and buy normalize to the same action")
	}
	if out.Blended.Action != ActionLong {
		t.Errorf("blended action = %s, want long", out.Blended.Action)
	}
	if math.Abs(out.Blended.Score-0.7) > 1e-9 {
		t.Errorf("blended score = %v, want mean 0.7", out.Blended.Score)
	}
}

func TestCombine_ConsensusDisagreementGoesFlat(t *testing.T) {
	out := Combine(
		Signal{Action: "long", Score: score(0.9)},
		Signal{Action: "short", Score: score(-0.9)},
		Settings{Mode: ModeConsensus},
	)

	if out.Agreement {
		t.Fatal("long vs short is a disagreement")
	}
	if out.Blended.Action != ActionFlat || out.Blended.Score != 0 {
		t.Errorf("disagreement must not trade: got %+v", out.Blended)
	}
}

func TestCombine_UnknownModeFallsBackToConsensus(t *testing.T) {
	out := Combine(
		Signal{Action: "long", Score: score(0.9)},
		Signal{Action: "short", Score: score(-0.2)},
		Settings{Mode: "majority"},
	)
	if out.Blended.Action != ActionFlat {
		t.Errorf("unknown mode should behave like consensus, got %+v", out.Blended)
	}
}

func TestCombine_WeightedMixesByAlpha(t *testing.T) {
	// 0.3 * 0.8 + 0.7 * -0.5 = -0.11, past the -0.10 dead band: short.
	out := Combine(
		Signal{Action: "short", Score: score(-0.5)},
		Signal{Action: "long", Score: score(0.8)},
		Settings{Mode: ModeWeighted, Alpha: 0.3, DeadBand: 0.10},
	)

	if math.Abs(out.Blended.Score-(-0.11)) > 1e-9 {
		t.Errorf("blended score = %v, want -0.11", out.Blended.Score)
	}
	if out.Blended.Action != ActionShort {
		t.Errorf("blended action = %s, want short", out.Blended.Action)
	}
	if out.Agreement {
		t.Error("inputs disagree")
	}
}

func TestCombine_WeightedDeadBandReadsFlat(t *testing.T) {
	// 0.5 * 0.15 + 0.5 * -0.05 = 0.05, inside the band.
	out := Combine(
		Signal{Action: "short", Score: score(-0.05)},
		Signal{Action: "long", Score: score(0.15)},
		Settings{Mode: ModeWeighted, Alpha: 0.5, DeadBand: 0.10},
	)

	if out.Blended.Action != ActionFlat {
		t.Errorf("score %v inside dead band should read flat, got %s", out.Blended.Score, out.Blended.Action)
	}
}

func TestCombine_WeightedDirectionOverridesInputActions(t *testing.T) {
	// Both labels say long but both scores are negative. Weighted mode
	// trusts the blended score, not the labels.
	out := Combine(
		Signal{Action: "long", Score: score(-0.6)},
		Signal{Action: "long", Score: score(-0.4)},
		Settings{Mode: ModeWeighted, Alpha: 0.5, DeadBand: 0.10},
	)

	if !out.Agreement {
		t.Error("action labels agree")
	}
	if out.Blended.Action != ActionShort {
		t.Errorf("weighted mode rereads direction from score: got %s", out.Blended.Action)
	}
}

func TestActionFromScore_Boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Action
	}{
		{0.11, ActionLong},
		{0.10, ActionFlat}, // boundary is inclusive on the flat side
		{0.0, ActionFlat},
		{-0.10, ActionFlat},
		{-0.11, ActionShort},
	}
	for _, tc := range cases {
		if got := actionFromScore(tc.score, 0.10); got != tc.want {
			t.Errorf("actionFromScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
