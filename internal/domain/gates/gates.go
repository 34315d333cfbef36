// Package gates decides whether a candidate's offline performance evidence
// is strong enough to begin a rollout at all. Every rule is evaluated
// independently against an absolute threshold (no baseline is consulted
// here) and the verdict is the AND of all checks.
package gates

import (
	"fmt"
	"strings"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/report"
)

// Check IDs, in evaluation order. The order is part of the contract:
// FailedIDs is deterministic for identical inputs.
const (
	CheckRealDataSource    = "real_data_source"
	CheckDatasetIdentity   = "dataset_identity"
	CheckCostsComplete     = "costs_complete"
	CheckWalkForwardOOS    = "walkforward_oos"
	CheckMinTrades         = "min_trades"
	CheckMinWinrate        = "min_winrate"
	CheckMinProfitFactor   = "min_profit_factor"
	CheckMinSharpe         = "min_sharpe"
	CheckMinSortino        = "min_sortino"
	CheckMinCalmar         = "min_calmar"
	CheckMaxDrawdown       = "max_drawdown"
	CheckMaxDDDurationDays = "max_dd_duration_days"
	CheckMaxCostRatio      = "max_cost_ratio"
	CheckMaxPBO            = "max_pbo"
	CheckMinDSR            = "min_dsr"
)

// Check is the outcome of one gate rule.
type Check struct {
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Skipped bool           `json:"skipped,omitempty"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the full gate verdict. Passed is the AND of all checks;
// skipped checks count as passing but stay visible so operators can see
// reduced confidence.
type Result struct {
	Passed     bool               `json:"passed"`
	FailedIDs  []string           `json:"failed_ids"`
	Checks     []Check            `json:"checks"`
	Thresholds map[string]float64 `json:"thresholds"`
	Summary    string             `json:"summary"`
}

// Evaluator runs the offline gate policy. It carries only thresholds and
// is safe for concurrent use.
type Evaluator struct {
	defaults map[string]float64
}

// NewEvaluator creates a gate evaluator over the given default thresholds.
// A nil map selects the embedded policy defaults.
func NewEvaluator(defaults map[string]float64) *Evaluator {
	if defaults == nil {
		defaults = config.DefaultGateThresholds()
	}
	return &Evaluator{defaults: defaults}
}

// Evaluate applies every gate rule to the report. Caller-supplied overrides
// merge per-key onto the evaluator's defaults. Pure: identical input and
// thresholds produce an identical Result, including FailedIDs order.
func (e *Evaluator) Evaluate(rep *report.PerformanceReport, overrides map[string]any) Result {
	th := config.MergeThresholds(e.defaults, overrides)
	m := rep.Metrics

	checks := []Check{
		checkRealDataSource(rep),
		checkDatasetIdentity(rep),
		checkCostsComplete(rep),
		checkWalkForwardOOS(rep),
		checkMin(CheckMinTrades, "trade count", float64(m.TradeCount), th[config.GateMinTrades]),
		checkMin(CheckMinWinrate, "winrate", m.Winrate, th[config.GateMinWinrate]),
		checkMin(CheckMinProfitFactor, "profit factor", m.ProfitFactor, th[config.GateMinProfitFactor]),
		checkMin(CheckMinSharpe, "sharpe", m.Sharpe, th[config.GateMinSharpe]),
		checkMin(CheckMinSortino, "sortino", m.Sortino, th[config.GateMinSortino]),
		checkMin(CheckMinCalmar, "calmar", m.Calmar, th[config.GateMinCalmar]),
		checkMax(CheckMaxDrawdown, "max drawdown pct", m.MaxDrawdownPct, th[config.GateMaxDrawdownPct]),
		checkDDDuration(rep, th[config.GateMaxDDDurationDays]),
		checkCostRatio(rep, th[config.GateMaxCostRatio]),
		checkOptionalMax(CheckMaxPBO, "pbo", m.PBO, th[config.GateMaxPBO]),
		checkOptionalMin(CheckMinDSR, "dsr", m.DSR, th[config.GateMinDSR]),
	}

	return buildResult(checks, th)
}

func buildResult(checks []Check, thresholds map[string]float64) Result {
	result := Result{
		Passed:     true,
		Checks:     checks,
		Thresholds: thresholds,
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

func checkRealDataSource(rep *report.PerformanceReport) Check {
	c := Check{
		ID:      CheckRealDataSource,
		OK:      rep.IsRealDataSource(),
		Details: map[string]any{"data_source": rep.DataSource},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("data source %q is a real market feed", rep.DataSource)
	} else {
		c.Reason = fmt.Sprintf("data source %q is synthetic or missing", rep.DataSource)
	}
	return c
}

func checkDatasetIdentity(rep *report.PerformanceReport) Check {
	hash := strings.TrimSpace(rep.DatasetHash)
	c := Check{
		ID:      CheckDatasetIdentity,
		OK:      hash != "",
		Details: map[string]any{"dataset_hash": rep.DatasetHash},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("dataset identity %s present", hash)
	} else {
		c.Reason = "dataset hash is empty; evidence is not tied to identifiable data"
	}
	return c
}

func checkCostsComplete(rep *report.PerformanceReport) Check {
	complete, missing := rep.CostsBreakdown.Complete()
	c := Check{
		ID: CheckCostsComplete,
		OK: complete,
	}
	if complete {
		c.Reason = "all five cost components present"
	} else {
		c.Reason = fmt.Sprintf("cost breakdown incomplete, missing: %s", strings.Join(missing, ", "))
		c.Details = map[string]any{"missing": missing}
	}
	return c
}

func checkWalkForwardOOS(rep *report.PerformanceReport) Check {
	vs := rep.ValidationSummary
	c := Check{
		ID: CheckWalkForwardOOS,
		OK: vs.IsWalkForwardOOS(),
		Details: map[string]any{
			"method":        vs.Method,
			"out_of_sample": vs.OutOfSample,
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("walk-forward out-of-sample validation (%d folds)", vs.Folds)
	} else {
		c.Reason = fmt.Sprintf("validation %q is not walk-forward out-of-sample", vs.Method)
	}
	return c
}

func checkDDDuration(rep *report.PerformanceReport, maxDays float64) Check {
	days, err := rep.DrawdownDurationDays()
	if err != nil {
		return Check{
			ID:      CheckMaxDDDurationDays,
			OK:      false,
			Reason:  fmt.Sprintf("cannot convert drawdown duration: %v", err),
			Details: map[string]any{"timeframe": rep.Timeframe},
		}
	}
	return checkMax(CheckMaxDDDurationDays, "drawdown duration days", days, maxDays)
}

func checkCostRatio(rep *report.PerformanceReport, maxRatio float64) Check {
	ratio, ok := rep.CostRatio()
	if !ok {
		return Check{
			ID:      CheckMaxCostRatio,
			OK:      false,
			Reason:  "gross PnL is zero; cost ratio undefined",
			Details: map[string]any{"total_cost": rep.CostsBreakdown.TotalCost},
		}
	}
	return checkMax(CheckMaxCostRatio, "cost ratio", ratio, maxRatio)
}

func checkMin(id, label string, value, min float64) Check {
	c := Check{
		ID:      id,
		OK:      value >= min,
		Details: map[string]any{"value": value, "threshold": min},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s %.4g >= %.4g", label, value, min)
	} else {
		c.Reason = fmt.Sprintf("%s %.4g below minimum %.4g", label, value, min)
	}
	return c
}

func checkMax(id, label string, value, max float64) Check {
	c := Check{
		ID:      id,
		OK:      value <= max,
		Details: map[string]any{"value": value, "threshold": max},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s %.4g <= %.4g", label, value, max)
	} else {
		c.Reason = fmt.Sprintf("%s %.4g above maximum %.4g", label, value, max)
	}
	return c
}

// checkOptionalMax passes with skipped=true when the metric is absent.
// Overfitting statistics are not produced by older research runs.
func checkOptionalMax(id, label string, value *float64, max float64) Check {
	if value == nil {
		return skippedCheck(id, label)
	}
	return checkMax(id, label, *value, max)
}

func checkOptionalMin(id, label string, value *float64, min float64) Check {
	if value == nil {
		return skippedCheck(id, label)
	}
	return checkMin(id, label, *value, min)
}

func skippedCheck(id, label string) Check {
	return Check{
		ID:      id,
		OK:      true,
		Skipped: true,
		Reason:  fmt.Sprintf("%s not reported; check skipped", label),
	}
}
