// Package compare decides whether a candidate is a genuine, comparable
// improvement over a specific baseline. A candidate can clear every
// absolute offline gate and still be a regression against what is already
// live; these checks are all relative.
package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/report"
)

// Check IDs, in evaluation order.
const (
	CheckSameFeatureSet    = "same_feature_set"
	CheckSameDatasetHash   = "same_dataset_hash"
	CheckSameOOSPeriod     = "same_oos_period"
	CheckImprovement       = "improve_expectancy_or_net_pnl"
	CheckDrawdownNotWorse  = "drawdown_not_worse"
	CheckCostIncreaseLimit = "cost_increase_limit"
)

// costWaiverNetPnLPct: a cost increase beyond the configured bound is
// tolerated when it bought a net PnL improvement of at least this much.
const costWaiverNetPnLPct = 8.0

// Check is the outcome of one comparison rule. Same shape as a gate check.
type Check struct {
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Skipped bool           `json:"skipped,omitempty"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the full comparison verdict.
type Result struct {
	Passed     bool               `json:"passed"`
	FailedIDs  []string           `json:"failed_ids"`
	Checks     []Check            `json:"checks"`
	Thresholds map[string]float64 `json:"thresholds"`
	Summary    string             `json:"summary"`
}

// Engine runs the baseline-comparison policy.
type Engine struct {
	defaults map[string]float64
}

// NewEngine creates a comparison engine over the given default thresholds.
// A nil map selects the embedded policy defaults.
func NewEngine(defaults map[string]float64) *Engine {
	if defaults == nil {
		defaults = config.DefaultCompareThresholds()
	}
	return &Engine{defaults: defaults}
}

// Compare evaluates the candidate report against the baseline report.
// Caller overrides merge per-key onto the engine defaults; unknown keys are
// coerced to float64, 0.0 on parse failure.
func (e *Engine) Compare(candidate, baseline *report.PerformanceReport, overrides map[string]any) Result {
	th := config.MergeThresholds(e.defaults, overrides)

	checks := []Check{
		checkFeatureSet(candidate, baseline),
		checkDatasetHash(candidate, baseline),
		checkOOSPeriod(candidate, baseline),
		checkImprovement(candidate, baseline, th),
		checkDrawdown(candidate, baseline, th[config.CompareMaxDrawdownWorseningPp]),
		checkCostIncrease(candidate, baseline, th[config.CompareMaxCostIncreasePct]),
	}

	result := Result{
		Passed:     true,
		Checks:     checks,
		Thresholds: th,
		FailedIDs:  []string{},
	}
	for _, c := range checks {
		if !c.OK {
			result.Passed = false
			result.FailedIDs = append(result.FailedIDs, c.ID)
		}
	}
	if result.Passed {
		result.Summary = "PASS"
	} else {
		result.Summary = fmt.Sprintf("FAIL (%s)", strings.Join(result.FailedIDs, ", "))
	}
	return result
}

func checkFeatureSet(candidate, baseline *report.PerformanceReport) Check {
	candEnabled, candSource := OrderFlowFeatureSet(candidate)
	baseEnabled, baseSource := OrderFlowFeatureSet(baseline)
	c := Check{
		ID: CheckSameFeatureSet,
		OK: candEnabled == baseEnabled,
		Details: map[string]any{
			"candidate": map[string]any{"enabled": candEnabled, "source": candSource},
			"baseline":  map[string]any{"enabled": baseEnabled, "source": baseSource},
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("both declare order-flow features %s", onOff(candEnabled))
	} else {
		c.Reason = fmt.Sprintf("feature sets differ: candidate %s (%s), baseline %s (%s); comparison invalid",
			onOff(candEnabled), candSource, onOff(baseEnabled), baseSource)
	}
	return c
}

func checkDatasetHash(candidate, baseline *report.PerformanceReport) Check {
	c := Check{
		ID: CheckSameDatasetHash,
		OK: candidate.DatasetHash != "" && candidate.DatasetHash == baseline.DatasetHash,
		Details: map[string]any{
			"candidate": candidate.DatasetHash,
			"baseline":  baseline.DatasetHash,
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("identical dataset %s", candidate.DatasetHash)
	} else {
		c.Reason = fmt.Sprintf("dataset hashes differ (candidate %q, baseline %q); not evaluated on identical data",
			candidate.DatasetHash, baseline.DatasetHash)
	}
	return c
}

func checkOOSPeriod(candidate, baseline *report.PerformanceReport) Check {
	c := Check{
		ID: CheckSameOOSPeriod,
		OK: candidate.Period.Equal(baseline.Period),
		Details: map[string]any{
			"candidate": candidate.Period.String(),
			"baseline":  baseline.Period.String(),
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("identical OOS period %s", candidate.Period)
	} else {
		c.Reason = fmt.Sprintf("OOS periods differ (candidate %s, baseline %s)", candidate.Period, baseline.Period)
	}
	return c
}

// checkImprovement requires the candidate to beat the baseline on either
// expectancy-per-trade or net PnL by the configured margin. An OR: either
// axis of outperformance qualifies.
func checkImprovement(candidate, baseline *report.PerformanceReport, th map[string]float64) Check {
	expImprovement := relativeImprovementPct(baseline.ExpectancyPerTrade(), candidate.ExpectancyPerTrade())
	pnlImprovement := relativeImprovementPct(baseline.CostsBreakdown.NetPnL(), candidate.CostsBreakdown.NetPnL())
	expMargin := th[config.CompareMinExpectancyImprovementPct]
	pnlMargin := th[config.CompareMinNetPnLImprovementPct]

	expOK := expImprovement >= expMargin
	pnlOK := pnlImprovement >= pnlMargin

	c := Check{
		ID: CheckImprovement,
		OK: expOK || pnlOK,
		Details: map[string]any{
			"expectancy_improvement_pct": expImprovement,
			"net_pnl_improvement_pct":    pnlImprovement,
			"expectancy_margin_pct":      expMargin,
			"net_pnl_margin_pct":         pnlMargin,
		},
	}
	switch {
	case expOK && pnlOK:
		c.Reason = fmt.Sprintf("expectancy %+.2f%% and net PnL %+.2f%% both beat margins", expImprovement, pnlImprovement)
	case expOK:
		c.Reason = fmt.Sprintf("expectancy improved %+.2f%% (margin %.2f%%)", expImprovement, expMargin)
	case pnlOK:
		c.Reason = fmt.Sprintf("net PnL improved %+.2f%% (margin %.2f%%)", pnlImprovement, pnlMargin)
	default:
		c.Reason = fmt.Sprintf("no qualifying improvement: expectancy %+.2f%% < %.2f%% and net PnL %+.2f%% < %.2f%%",
			expImprovement, expMargin, pnlImprovement, pnlMargin)
	}
	return c
}

func checkDrawdown(candidate, baseline *report.PerformanceReport, marginPp float64) Check {
	candDD := candidate.Metrics.MaxDrawdownPct
	baseDD := baseline.Metrics.MaxDrawdownPct
	worsening := candDD - baseDD
	c := Check{
		ID: CheckDrawdownNotWorse,
		OK: worsening <= marginPp,
		Details: map[string]any{
			"candidate_max_dd_pct": candDD,
			"baseline_max_dd_pct":  baseDD,
			"worsening_pp":         worsening,
			"margin_pp":            marginPp,
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("max drawdown %.2f%% vs baseline %.2f%% within +%.2fpp bound", candDD, baseDD, marginPp)
	} else {
		c.Reason = fmt.Sprintf("max drawdown worsened %.2fpp (%.2f%% vs %.2f%%), bound +%.2fpp",
			worsening, candDD, baseDD, marginPp)
	}
	return c
}

// checkCostIncrease bounds the candidate's total cost growth, waived when
// net PnL improved enough to pay for it.
func checkCostIncrease(candidate, baseline *report.PerformanceReport, maxIncreasePct float64) Check {
	candCost := candidate.CostsBreakdown.TotalCost
	baseCost := baseline.CostsBreakdown.TotalCost
	increasePct := relativeIncreasePct(baseCost, candCost)
	pnlImprovement := relativeImprovementPct(baseline.CostsBreakdown.NetPnL(), candidate.CostsBreakdown.NetPnL())
	waived := pnlImprovement >= costWaiverNetPnLPct

	c := Check{
		ID: CheckCostIncreaseLimit,
		OK: increasePct <= maxIncreasePct || waived,
		Details: map[string]any{
			"candidate_total_cost":    candCost,
			"baseline_total_cost":     baseCost,
			"increase_pct":            increasePct,
			"max_increase_pct":        maxIncreasePct,
			"net_pnl_improvement_pct": pnlImprovement,
			"waived":                  waived,
		},
	}
	switch {
	case increasePct <= maxIncreasePct:
		c.Reason = fmt.Sprintf("total cost %+.2f%% within +%.2f%% bound", increasePct, maxIncreasePct)
	case waived:
		c.Reason = fmt.Sprintf("total cost %+.2f%% exceeds bound but net PnL improved %+.2f%% (>= %.0f%%); increase tolerated",
			increasePct, pnlImprovement, costWaiverNetPnLPct)
	default:
		c.Reason = fmt.Sprintf("total cost %+.2f%% exceeds +%.2f%% bound and net PnL improvement %+.2f%% below %.0f%% waiver",
			increasePct, maxIncreasePct, pnlImprovement, costWaiverNetPnLPct)
	}
	return c
}

// relativeImprovementPct measures how much better cand is than base, in
// percent of |base|. A zero base makes any positive cand an unbounded
// improvement and any negative cand an unbounded regression.
func relativeImprovementPct(base, cand float64) float64 {
	if base == 0 {
		switch {
		case cand > 0:
			return math.Inf(1)
		case cand < 0:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return (cand - base) / math.Abs(base) * 100
}

// relativeIncreasePct measures cost growth in percent of base. A zero base
// makes any positive cand an unbounded increase.
func relativeIncreasePct(base, cand float64) float64 {
	if base == 0 {
		if cand > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return (cand - base) / math.Abs(base) * 100
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
