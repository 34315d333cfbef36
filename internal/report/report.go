// Package report defines the performance-evidence shapes consumed from the
// backtest/execution simulator. The rollout core never produces these; it
// only reads them, so every field mirrors the collaborator's JSON contract.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period is the out-of-sample evaluation window of a report.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Equal reports whether two periods cover exactly the same window.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// Metrics holds the headline performance numbers of a single report.
// PBO and DSR come from the research engine and are optional: older runs
// predate the overfitting statistics.
type Metrics struct {
	TradeCount        int      `json:"trade_count"`
	Winrate           float64  `json:"winrate"`
	ProfitFactor      float64  `json:"profit_factor"`
	Sharpe            float64  `json:"sharpe"`
	Sortino           float64  `json:"sortino"`
	Calmar            float64  `json:"calmar"`
	MaxDrawdownPct    float64  `json:"max_dd"`
	MaxDDDurationBars int      `json:"max_dd_duration_bars"`
	PBO               *float64 `json:"pbo,omitempty"`
	DSR               *float64 `json:"dsr,omitempty"`
}

// CostsBreakdown itemizes execution costs. The five component fields are
// pointers so a missing component is distinguishable from a zero cost.
type CostsBreakdown struct {
	GrossPnLTotal float64  `json:"gross_pnl_total"`
	TotalCost     float64  `json:"total_cost"`
	Commission    *float64 `json:"commission"`
	SpreadCost    *float64 `json:"spread_cost"`
	SlippageCost  *float64 `json:"slippage_cost"`
	FundingCost   *float64 `json:"funding_cost"`
	BorrowCost    *float64 `json:"borrow_cost"`
}

// Complete reports whether all five cost components were supplied, and the
// names of the missing ones otherwise.
func (c CostsBreakdown) Complete() (bool, []string) {
	var missing []string
	for name, v := range map[string]*float64{
		"commission":    c.Commission,
		"spread_cost":   c.SpreadCost,
		"slippage_cost": c.SlippageCost,
		"funding_cost":  c.FundingCost,
		"borrow_cost":   c.BorrowCost,
	} {
		if v == nil {
			missing = append(missing, name)
		}
	}
	// Map iteration order is random; callers display these.
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// NetPnL is gross PnL minus total execution cost.
func (c CostsBreakdown) NetPnL() float64 {
	return c.GrossPnLTotal - c.TotalCost
}

// ValidationSummary describes how the report's numbers were validated.
type ValidationSummary struct {
	Method      string  `json:"method"`
	OutOfSample bool    `json:"out_of_sample"`
	Folds       int     `json:"folds,omitempty"`
	EmbargoPct  float64 `json:"embargo_pct,omitempty"`
}

// IsWalkForwardOOS reports whether the summary declares walk-forward
// out-of-sample validation, the only method the offline gates accept.
func (v ValidationSummary) IsWalkForwardOOS() bool {
	method := strings.ToLower(strings.TrimSpace(v.Method))
	method = strings.NewReplacer("-", "_", " ", "_").Replace(method)
	switch method {
	case "walk_forward", "walkforward", "wfo", "walk_forward_oos":
		return v.OutOfSample
	}
	return false
}

// PerformanceReport is the full performance-evidence payload for one
// strategy version on one dataset.
type PerformanceReport struct {
	StrategyID      string `json:"strategy_id"`
	StrategyName    string `json:"strategy_name"`
	StrategyVersion string `json:"strategy_version"`
	RunID           string `json:"run_id"`

	DataSource  string `json:"data_source"`
	DatasetHash string `json:"dataset_hash"`
	Timeframe   string `json:"timeframe"`
	Market      string `json:"market"`
	Symbol      string `json:"symbol"`
	Period      Period `json:"period"`

	ValidationSummary ValidationSummary `json:"validation_summary"`
	Metrics           Metrics           `json:"metrics"`
	CostsBreakdown    CostsBreakdown    `json:"costs_breakdown"`

	// Feature-set declaration sites, in extractor priority order. Older
	// reports populate progressively less of these; see FeatureSet.
	OrderFlowFeatures *string        `json:"order_flow_features,omitempty"`
	UseOrderFlow      *bool          `json:"use_order_flow,omitempty"`
	Params            map[string]any `json:"params,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
}

// ExpectancyPerTrade is the average net PnL per executed trade. Zero when
// the report has no trades.
func (r *PerformanceReport) ExpectancyPerTrade() float64 {
	if r.Metrics.TradeCount <= 0 {
		return 0
	}
	return r.CostsBreakdown.NetPnL() / float64(r.Metrics.TradeCount)
}

// syntheticSources are data_source values that disqualify a report from
// gating: evidence must come from real market data.
var syntheticSources = map[string]bool{
	"synthetic": true,
	"mock":      true,
	"fake":      true,
	"sim":       true,
	"simulated": true,
	"generated": true,
	"random":    true,
}

// IsRealDataSource reports whether the declared data source is a real
// (non-synthetic) market feed.
func (r *PerformanceReport) IsRealDataSource() bool {
	src := strings.ToLower(strings.TrimSpace(r.DataSource))
	return src != "" && !syntheticSources[src]
}

// BarDuration converts the report's timeframe label into a bar width.
// Supported labels match the simulator's emitter: 1m 5m 15m 30m 1h 4h 12h 1d.
func (r *PerformanceReport) BarDuration() (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(r.Timeframe)) {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d", "d1", "daily":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", r.Timeframe)
}

// DrawdownDurationDays converts the max-drawdown duration from bars to
// calendar days using the report's timeframe.
func (r *PerformanceReport) DrawdownDurationDays() (float64, error) {
	bar, err := r.BarDuration()
	if err != nil {
		return 0, err
	}
	return float64(r.Metrics.MaxDDDurationBars) * bar.Hours() / 24.0, nil
}

// CostRatio is total cost over absolute gross PnL. Reports with zero gross
// PnL get +Inf-like treatment via ok=false so the gate can fail explicitly.
func (r *PerformanceReport) CostRatio() (float64, bool) {
	gross := r.CostsBreakdown.GrossPnLTotal
	if gross == 0 {
		return 0, false
	}
	return r.CostsBreakdown.TotalCost / abs(gross), true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
