package rollout

import (
	"fmt"
	"math"
	"time"

	"github.com/stratops/stratroll/internal/config"
)

// EvalStatus is the derived outcome of one phase evaluation.
type EvalStatus string

const (
	// EvalPass means every check passed; the phase may be advanced.
	EvalPass EvalStatus = "PASS"
	// EvalFail means at least one non-duration check failed.
	EvalFail EvalStatus = "FAIL"
	// EvalPendingMinDuration means the only unmet check is minimum bake
	// time. Not a failure; the caller re-evaluates later.
	EvalPendingMinDuration EvalStatus = "PENDING_MIN_DURATION"
	// EvalNotReadyCompare means baseline live KPIs were unavailable so
	// the non-degradation checks could not run. Blocks advance without
	// failing the phase.
	EvalNotReadyCompare EvalStatus = "NOT_READY_COMPARE"
)

// Phase evaluation check ids. Hard checks trigger automatic
// abort/rollback on failure; the rest only block promotion.
const (
	EvalCheckMinDuration    = "min_duration"
	EvalCheckDailyLoss      = "daily_loss_within_limit"
	EvalCheckDrawdown       = "drawdown_within_limit"
	EvalCheckPhaseDDIncr    = "phase_dd_increment_within_limit"
	EvalCheckExpectancy     = "expectancy_not_negative"
	EvalCheckAPIErrors      = "api_errors_within_limit"
	EvalCheckSlippage       = "slippage_p95_within_limit"
	EvalCheckSpread         = "spread_p95_within_limit"
	EvalCheckLatency        = "latency_p95_within_limit"
	EvalCheckFillRatio      = "fill_ratio_above_min"
	EvalCheckCriticalErrors = "no_critical_errors"
	EvalCheckDataGaps       = "data_gaps_within_limit"
	EvalCheckBreakers       = "no_breaker_triggers"
	EvalCheckExpectancyVsBL = "expectancy_vs_baseline"
	EvalCheckDDIncrVsBL     = "dd_increment_vs_baseline"
	EvalCheckSlippageVsBL   = "slippage_vs_baseline"
)

// PhaseCheck is one evaluated rule. Hard marks the checks whose failure
// warrants automatic abort/rollback regardless of elapsed time.
type PhaseCheck struct {
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Hard    bool           `json:"hard"`
	Skipped bool           `json:"skipped,omitempty"`
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details,omitempty"`
}

// PhaseEvaluation is the full result of one evaluation call. It is
// stored on the record under phase_evaluations[phase] and returned to
// the caller.
type PhaseEvaluation struct {
	Phase       string             `json:"phase"`
	PhaseType   string             `json:"phase_type"`
	Status      EvalStatus         `json:"status"`
	Passed      bool               `json:"passed"`
	Checks      []PhaseCheck       `json:"checks"`
	FailedIDs   []string           `json:"failed_ids"`
	HardFailIDs []string           `json:"hard_fail_ids"`
	KPIs        map[string]float64 `json:"kpis"`
	ElapsedHrs  float64            `json:"elapsed_hours"`
	MinHrs      float64            `json:"min_hours"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

// phaseEvaluator applies the live policy to one phase's telemetry. It
// is pure over (phase, elapsed, input); the manager owns persistence
// and enforcement.
type phaseEvaluator struct {
	policy *config.Policy
}

func (pe phaseEvaluator) evaluate(phase string, elapsed time.Duration, in TelemetryInput, now time.Time) *PhaseEvaluation {
	phaseType := PhaseType(phase)
	minDur := pe.policy.Soak.MinDurationFor(phase)

	checks := []PhaseCheck{pe.checkMinDuration(phase, elapsed, minDur)}
	checks = append(checks, pe.riskChecks(in.Status, phaseType)...)

	logs := CountLogRows(in.Logs)
	switch phaseType {
	case PhaseTypePaper:
		checks = append(checks, pe.checkExpectancy(in.Status))
		checks = append(checks, pe.logChecks(logs)...)
	case PhaseTypeTestnet:
		checks = append(checks, pe.execChecks(in.Exec)...)
		checks = append(checks, pe.logChecks(logs)...)
	case PhaseTypeLive:
		checks = append(checks, pe.execChecks(in.Exec)...)
		checks = append(checks, pe.logChecks(logs)...)
		checks = append(checks, pe.degradationChecks(in.Status, in.Exec, in.Baseline)...)
	}

	ev := &PhaseEvaluation{
		Phase:       phase,
		PhaseType:   phaseType,
		Checks:      checks,
		FailedIDs:   []string{},
		HardFailIDs: []string{},
		KPIs:        buildKPIs(phaseType, elapsed, minDur, in, logs),
		ElapsedHrs:  elapsed.Hours(),
		MinHrs:      minDur.Hours(),
		EvaluatedAt: now,
	}

	durationUnmet := false
	for _, c := range checks {
		if c.OK {
			continue
		}
		ev.FailedIDs = append(ev.FailedIDs, c.ID)
		if c.Hard {
			ev.HardFailIDs = append(ev.HardFailIDs, c.ID)
		}
		if c.ID == EvalCheckMinDuration {
			durationUnmet = true
		}
	}

	otherFails := len(ev.FailedIDs)
	if durationUnmet {
		otherFails--
	}
	compareDeferred := phaseType == PhaseTypeLive && in.Baseline == nil

	switch {
	case len(ev.HardFailIDs) > 0 || otherFails > 0:
		ev.Status = EvalFail
	case compareDeferred:
		ev.Status = EvalNotReadyCompare
	case durationUnmet:
		ev.Status = EvalPendingMinDuration
	default:
		ev.Status = EvalPass
	}
	ev.Passed = ev.Status == EvalPass
	return ev
}

func (pe phaseEvaluator) checkMinDuration(phase string, elapsed, min time.Duration) PhaseCheck {
	c := PhaseCheck{
		ID: EvalCheckMinDuration,
		OK: elapsed >= min,
		Details: map[string]any{
			"elapsed_hours": elapsed.Hours(),
			"min_hours":     min.Hours(),
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s soaked %.1fh of required %.1fh", phase, elapsed.Hours(), min.Hours())
	} else {
		c.Reason = fmt.Sprintf("%s soaked %.1fh of required %.1fh; bake time not met", phase, elapsed.Hours(), min.Hours())
	}
	return c
}

// riskChecks bound utilization of the risk engine's own limits. A zero
// limit means the engine reported no bound; the check is skipped rather
// than divided by zero.
func (pe phaseEvaluator) riskChecks(status StatusSnapshot, phaseType string) []PhaseCheck {
	risk := pe.policy.Risk
	checks := []PhaseCheck{
		utilizationCheck(EvalCheckDailyLoss, "daily loss", status.DailyLossValue, status.DailyLossLimit, risk.MaxDailyLossUtilization),
		utilizationCheck(EvalCheckDrawdown, "drawdown", status.DrawdownValue, status.DrawdownLimit, risk.MaxDrawdownUtilization),
	}
	if phaseType == PhaseTypeLive {
		checks = append(checks, hardMaxCheck(EvalCheckPhaseDDIncr, "phase drawdown increment pct", status.PhaseDDIncrementPct, risk.MaxPhaseDDIncrementPct))
	}
	return checks
}

func (pe phaseEvaluator) checkExpectancy(status StatusSnapshot) PhaseCheck {
	c := PhaseCheck{
		ID:      EvalCheckExpectancy,
		OK:      status.Expectancy >= 0,
		Details: map[string]any{"expectancy": status.Expectancy},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("expectancy %.4g is not negative", status.Expectancy)
	} else {
		c.Reason = fmt.Sprintf("expectancy %.4g is negative over the soak window", status.Expectancy)
	}
	return c
}

func (pe phaseEvaluator) execChecks(exec ExecMetrics) []PhaseCheck {
	abort := pe.policy.Abort
	return []PhaseCheck{
		hardMaxCheck(EvalCheckAPIErrors, "api errors", float64(exec.APIErrors), float64(abort.MaxAPIErrors)),
		hardMaxCheck(EvalCheckSlippage, "slippage p95 bps", exec.SlippageP95Bps, abort.MaxSlippageP95Bps),
		hardMaxCheck(EvalCheckSpread, "spread p95 bps", exec.SpreadP95Bps, abort.MaxSpreadP95Bps),
		hardMaxCheck(EvalCheckLatency, "latency p95 ms", exec.LatencyP95Ms, abort.MaxLatencyP95Ms),
		hardMinCheck(EvalCheckFillRatio, "fill ratio", exec.FillRatio, abort.MinFillRatio),
	}
}

func (pe phaseEvaluator) logChecks(logs LogCounts) []PhaseCheck {
	abort := pe.policy.Abort
	return []PhaseCheck{
		hardMaxCheck(EvalCheckCriticalErrors, "critical errors", float64(logs.CriticalErrors), float64(abort.MaxCriticalErrors)),
		hardMaxCheck(EvalCheckDataGaps, "data gaps", float64(logs.DataGaps), float64(abort.MaxDataGaps)),
		hardMaxCheck(EvalCheckBreakers, "breaker triggers", float64(logs.BreakerTriggers), float64(abort.MaxBreakerTriggers)),
	}
}

// degradationChecks compare the candidate against the baseline's own
// concurrent KPIs. They never hard-fail: a degraded candidate is held
// back, not yanked, as long as absolute bounds hold. With no baseline
// KPIs the checks are skipped and the evaluation reports
// NOT_READY_COMPARE.
func (pe phaseEvaluator) degradationChecks(status StatusSnapshot, exec ExecMetrics, baseline *BaselineLiveKPIs) []PhaseCheck {
	if baseline == nil {
		return []PhaseCheck{
			skippedPhaseCheck(EvalCheckExpectancyVsBL, "baseline live expectancy"),
			skippedPhaseCheck(EvalCheckDDIncrVsBL, "baseline live drawdown increment"),
			skippedPhaseCheck(EvalCheckSlippageVsBL, "baseline live slippage"),
		}
	}
	deg := pe.policy.Degradation
	return []PhaseCheck{
		expectancyVsBaseline(status.Expectancy, baseline.Expectancy, deg.MaxExpectancyShortfallPct),
		excessCheck(EvalCheckDDIncrVsBL, "drawdown increment pp", status.PhaseDDIncrementPct, baseline.PhaseDDIncrementPct, deg.MaxDDIncrementExcessPp),
		excessCheck(EvalCheckSlippageVsBL, "slippage p95 bps", exec.SlippageP95Bps, baseline.SlippageP95Bps, deg.MaxSlippageExcessBps),
	}
}

func expectancyVsBaseline(candidate, baseline, maxShortfallPct float64) PhaseCheck {
	c := PhaseCheck{
		ID: EvalCheckExpectancyVsBL,
		Details: map[string]any{
			"candidate": candidate,
			"baseline":  baseline,
			"threshold": maxShortfallPct,
		},
	}
	if baseline == 0 {
		c.OK = candidate >= 0
		if c.OK {
			c.Reason = fmt.Sprintf("baseline expectancy is zero; candidate %.4g is not negative", candidate)
		} else {
			c.Reason = fmt.Sprintf("baseline expectancy is zero and candidate %.4g is negative", candidate)
		}
		return c
	}
	shortfallPct := (baseline - candidate) / math.Abs(baseline) * 100
	c.Details["shortfall_pct"] = shortfallPct
	c.OK = shortfallPct <= maxShortfallPct
	if c.OK {
		c.Reason = fmt.Sprintf("expectancy shortfall %.2f%% within %.2f%% of baseline", shortfallPct, maxShortfallPct)
	} else {
		c.Reason = fmt.Sprintf("expectancy %.4g trails baseline %.4g by %.2f%%, beyond %.2f%%", candidate, baseline, shortfallPct, maxShortfallPct)
	}
	return c
}

func excessCheck(id, label string, candidate, baseline, maxExcess float64) PhaseCheck {
	excess := candidate - baseline
	c := PhaseCheck{
		ID: id,
		OK: excess <= maxExcess,
		Details: map[string]any{
			"candidate": candidate,
			"baseline":  baseline,
			"excess":    excess,
			"threshold": maxExcess,
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s %.4g within %.4g of baseline %.4g", label, candidate, maxExcess, baseline)
	} else {
		c.Reason = fmt.Sprintf("%s %.4g exceeds baseline %.4g by %.4g, beyond %.4g", label, candidate, baseline, excess, maxExcess)
	}
	return c
}

func utilizationCheck(id, label string, value, limit, maxUtilization float64) PhaseCheck {
	if limit <= 0 {
		return PhaseCheck{
			ID:      id,
			OK:      true,
			Hard:    true,
			Skipped: true,
			Reason:  fmt.Sprintf("%s limit not reported; check skipped", label),
			Details: map[string]any{"value": value},
		}
	}
	utilization := value / limit
	c := PhaseCheck{
		ID:   id,
		OK:   utilization <= maxUtilization,
		Hard: true,
		Details: map[string]any{
			"value":       value,
			"limit":       limit,
			"utilization": utilization,
			"threshold":   maxUtilization,
		},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s at %.0f%% of limit, within %.0f%%", label, utilization*100, maxUtilization*100)
	} else {
		c.Reason = fmt.Sprintf("%s at %.0f%% of limit, above %.0f%%", label, utilization*100, maxUtilization*100)
	}
	return c
}

func hardMaxCheck(id, label string, value, max float64) PhaseCheck {
	c := PhaseCheck{
		ID:      id,
		OK:      value <= max,
		Hard:    true,
		Details: map[string]any{"value": value, "threshold": max},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s %.4g <= %.4g", label, value, max)
	} else {
		c.Reason = fmt.Sprintf("%s %.4g above maximum %.4g", label, value, max)
	}
	return c
}

func hardMinCheck(id, label string, value, min float64) PhaseCheck {
	c := PhaseCheck{
		ID:      id,
		OK:      value >= min,
		Hard:    true,
		Details: map[string]any{"value": value, "threshold": min},
	}
	if c.OK {
		c.Reason = fmt.Sprintf("%s %.4g >= %.4g", label, value, min)
	} else {
		c.Reason = fmt.Sprintf("%s %.4g below minimum %.4g", label, value, min)
	}
	return c
}

func skippedPhaseCheck(id, label string) PhaseCheck {
	return PhaseCheck{
		ID:      id,
		OK:      true,
		Skipped: true,
		Reason:  fmt.Sprintf("%s unavailable; comparison deferred", label),
	}
}

func buildKPIs(phaseType string, elapsed, minDur time.Duration, in TelemetryInput, logs LogCounts) map[string]float64 {
	kpis := map[string]float64{
		"elapsed_hours":          elapsed.Hours(),
		"min_hours":              minDur.Hours(),
		"daily_pnl":              in.Status.DailyPnL,
		"daily_loss_value":       in.Status.DailyLossValue,
		"daily_loss_limit":       in.Status.DailyLossLimit,
		"drawdown_value":         in.Status.DrawdownValue,
		"drawdown_limit":         in.Status.DrawdownLimit,
		"phase_dd_increment_pct": in.Status.PhaseDDIncrementPct,
		"expectancy":             in.Status.Expectancy,
		"critical_errors":        float64(logs.CriticalErrors),
		"data_gaps":              float64(logs.DataGaps),
		"breaker_triggers":       float64(logs.BreakerTriggers),
	}
	if in.Status.DailyLossLimit > 0 {
		kpis["daily_loss_utilization"] = in.Status.DailyLossValue / in.Status.DailyLossLimit
	}
	if in.Status.DrawdownLimit > 0 {
		kpis["drawdown_utilization"] = in.Status.DrawdownValue / in.Status.DrawdownLimit
	}
	if phaseType == PhaseTypeTestnet || phaseType == PhaseTypeLive {
		kpis["slippage_p95_bps"] = in.Exec.SlippageP95Bps
		kpis["spread_p95_bps"] = in.Exec.SpreadP95Bps
		kpis["latency_p95_ms"] = in.Exec.LatencyP95Ms
		kpis["api_errors"] = float64(in.Exec.APIErrors)
		kpis["fill_ratio"] = in.Exec.FillRatio
	}
	if phaseType == PhaseTypeLive && in.Baseline != nil {
		kpis["baseline_expectancy"] = in.Baseline.Expectancy
		kpis["baseline_phase_dd_increment_pct"] = in.Baseline.PhaseDDIncrementPct
		kpis["baseline_slippage_p95_bps"] = in.Baseline.SlippageP95Bps
	}
	return kpis
}
