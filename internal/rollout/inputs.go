package rollout

import "strings"

// Telemetry inputs are supplied by the caller on every evaluation; the
// orchestrator owns no collectors of its own. Shapes mirror what the
// trading engine's status endpoint, execution layer and log pipeline
// already export.

// StatusSnapshot is the risk engine's view of the candidate at the
// moment of evaluation. Loss and drawdown carry both the measured value
// and the engine's own configured limit so the evaluation can reason in
// utilization terms.
type StatusSnapshot struct {
	DailyPnL       float64 `json:"daily_pnl"`
	DailyLossValue float64 `json:"daily_loss_value"`
	DailyLossLimit float64 `json:"daily_loss_limit"`
	DrawdownValue  float64 `json:"drawdown_value"`
	DrawdownLimit  float64 `json:"drawdown_limit"`

	// PhaseDDIncrementPct is how many percentage points of drawdown
	// accumulated since the current phase started.
	PhaseDDIncrementPct float64 `json:"phase_dd_increment_pct"`

	// Expectancy is realized per-trade expectancy over the phase window.
	Expectancy float64 `json:"expectancy"`
}

// ExecMetrics summarizes execution quality over the evaluation window.
type ExecMetrics struct {
	SlippageP95Bps float64 `json:"slippage_p95_bps"`
	SpreadP95Bps   float64 `json:"spread_p95_bps"`
	LatencyP95Ms   float64 `json:"latency_p95_ms"`
	APIErrors      int     `json:"api_errors"`
	FillRatio      float64 `json:"fill_ratio"`
	OrdersPlaced   int     `json:"orders_placed"`
	OrdersFilled   int     `json:"orders_filled"`
}

// LogRow is one pre-aggregated log line from the engine's recent
// window. Only severity and type are interpreted here.
type LogRow struct {
	Severity string `json:"severity"`
	Module   string `json:"module,omitempty"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Log row types the evaluator recognizes.
const (
	LogTypeCriticalError  = "critical_error"
	LogTypeDataGap        = "data_gap"
	LogTypeBreakerTrigger = "breaker_trigger"
)

// LogCounts is the reduction of a log window to the three counters the
// abort policy bounds.
type LogCounts struct {
	CriticalErrors  int `json:"critical_errors"`
	DataGaps        int `json:"data_gaps"`
	BreakerTriggers int `json:"breaker_triggers"`
}

// CountLogRows reduces raw rows to policy counters. A row counts as
// critical on either its severity or its type so both logging
// conventions are honored.
func CountLogRows(rows []LogRow) LogCounts {
	var counts LogCounts
	for _, row := range rows {
		rowType := strings.ToLower(strings.TrimSpace(row.Type))
		if rowType == LogTypeCriticalError || strings.EqualFold(strings.TrimSpace(row.Severity), "critical") {
			counts.CriticalErrors++
		}
		switch rowType {
		case LogTypeDataGap:
			counts.DataGaps++
		case LogTypeBreakerTrigger:
			counts.BreakerTriggers++
		}
	}
	return counts
}

// BaselineLiveKPIs are the incumbent's own concurrent numbers for the
// same phase window. Live evaluation compares the candidate against
// these; when absent the comparison is deferred, not failed.
type BaselineLiveKPIs struct {
	Expectancy          float64 `json:"expectancy"`
	PhaseDDIncrementPct float64 `json:"phase_dd_increment_pct"`
	SlippageP95Bps      float64 `json:"slippage_p95_bps"`
}

// TelemetryInput bundles one evaluation call's worth of telemetry.
// Exec is ignored for paper soak. Baseline applies to live phases only.
type TelemetryInput struct {
	Status   StatusSnapshot    `json:"status"`
	Exec     ExecMetrics       `json:"exec"`
	Logs     []LogRow          `json:"logs,omitempty"`
	Baseline *BaselineLiveKPIs `json:"baseline,omitempty"`
}
