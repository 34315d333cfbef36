// Package config loads StratRoll's policy and runtime configuration.
// Policy carries every decision threshold the rollout core consults; the
// defaults below are the embedded production policy and a YAML file can
// override any subset of them. Overrides merge field-by-field onto the
// defaults, so an incomplete file never drops an unspecified default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Gate threshold keys. Values bound the candidate's offline evidence.
const (
	GateMinTrades         = "min_trades"
	GateMinWinrate        = "min_winrate"
	GateMinProfitFactor   = "min_profit_factor"
	GateMinSharpe         = "min_sharpe"
	GateMinSortino        = "min_sortino"
	GateMinCalmar         = "min_calmar"
	GateMaxDrawdownPct    = "max_dd_pct"
	GateMaxDDDurationDays = "max_dd_duration_days"
	GateMaxCostRatio      = "max_cost_ratio"
	GateMaxPBO            = "max_pbo"
	GateMinDSR            = "min_dsr"
)

// Compare threshold keys. Values bound the candidate relative to a baseline.
const (
	CompareMinExpectancyImprovementPct = "min_expectancy_improvement_pct"
	CompareMinNetPnLImprovementPct     = "min_net_pnl_improvement_pct"
	CompareMaxDrawdownWorseningPp      = "max_dd_worsening_pp"
	CompareMaxCostIncreasePct          = "max_cost_increase_pct"
)

// DefaultGateThresholds returns the embedded offline gate policy.
func DefaultGateThresholds() map[string]float64 {
	return map[string]float64{
		GateMinTrades:         30,
		GateMinWinrate:        0.45,
		GateMinProfitFactor:   1.15,
		GateMinSharpe:         1.00,
		GateMinSortino:        1.20,
		GateMinCalmar:         0.70,
		GateMaxDrawdownPct:    20.0,
		GateMaxDDDurationDays: 45,
		GateMaxCostRatio:      0.35,
		GateMaxPBO:            0.20,
		GateMinDSR:            0.95,
	}
}

// DefaultCompareThresholds returns the embedded baseline-comparison policy.
func DefaultCompareThresholds() map[string]float64 {
	return map[string]float64{
		CompareMinExpectancyImprovementPct: 5.0,
		CompareMinNetPnLImprovementPct:     5.0,
		CompareMaxDrawdownWorseningPp:      2.0,
		CompareMaxCostIncreasePct:          15.0,
	}
}

// SoakConfig sets the minimum bake duration per phase. Durations are soft
// requirements: missing only the duration check holds the phase at
// PENDING_MIN_DURATION instead of failing it.
type SoakConfig struct {
	PaperMinHours   float64 `yaml:"paper_min_hours" validate:"gte=0"`
	TestnetMinHours float64 `yaml:"testnet_min_hours" validate:"gte=0"`
	ShadowMinHours  float64 `yaml:"shadow_min_hours" validate:"gte=0"`
	CanaryMinHours  float64 `yaml:"canary_min_hours" validate:"gte=0"`
	StableMinHours  float64 `yaml:"stable_min_hours" validate:"gte=0"`
}

// AbortThresholds are the absolute health bounds whose breach hard-fails a
// phase evaluation.
type AbortThresholds struct {
	MaxAPIErrors       int     `yaml:"max_api_errors" validate:"gte=0"`
	MaxSlippageP95Bps  float64 `yaml:"max_slippage_p95_bps" validate:"gte=0"`
	MaxSpreadP95Bps    float64 `yaml:"max_spread_p95_bps" validate:"gte=0"`
	MaxLatencyP95Ms    float64 `yaml:"max_latency_p95_ms" validate:"gte=0"`
	MinFillRatio       float64 `yaml:"min_fill_ratio" validate:"gte=0,lte=1"`
	MaxCriticalErrors  int     `yaml:"max_critical_errors" validate:"gte=0"`
	MaxDataGaps        int     `yaml:"max_data_gaps" validate:"gte=0"`
	MaxBreakerTriggers int     `yaml:"max_breaker_triggers" validate:"gte=0"`
}

// RiskLimits bound how much of the risk engine's own limits a phase may
// consume before the evaluation fails.
type RiskLimits struct {
	MaxDrawdownUtilization  float64 `yaml:"max_drawdown_utilization" validate:"gt=0,lte=1"`
	MaxDailyLossUtilization float64 `yaml:"max_daily_loss_utilization" validate:"gt=0,lte=1"`
	MaxPhaseDDIncrementPct  float64 `yaml:"max_phase_dd_increment_pct" validate:"gte=0"`
}

// DegradationLimits bound the candidate against the baseline's concurrent
// live KPIs. A candidate inside every absolute limit still fails promotion
// when it is quantifiably worse than what the baseline is doing right now.
type DegradationLimits struct {
	MaxExpectancyShortfallPct float64 `yaml:"max_expectancy_shortfall_pct" validate:"gte=0"`
	MaxDDIncrementExcessPp    float64 `yaml:"max_dd_increment_excess_pp" validate:"gte=0"`
	MaxSlippageExcessBps      float64 `yaml:"max_slippage_excess_bps" validate:"gte=0"`
}

// BlendingConfig is the live-signal combination policy.
type BlendingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Mode     string  `yaml:"mode" validate:"oneof=consenso ponderado"`
	Alpha    float64 `yaml:"alpha" validate:"gte=0,lte=1"`
	DeadBand float64 `yaml:"dead_band" validate:"gte=0,lte=0.5"`
}

// Policy aggregates every decision threshold of the rollout pipeline.
type Policy struct {
	Gates        map[string]float64 `yaml:"gates"`
	Compare      map[string]float64 `yaml:"compare"`
	Soak         SoakConfig         `yaml:"soak"`
	Abort        AbortThresholds    `yaml:"abort"`
	Risk         RiskLimits         `yaml:"risk"`
	Degradation  DegradationLimits  `yaml:"degradation"`
	Blending     BlendingConfig     `yaml:"blending"`
	AutoAbort    bool               `yaml:"auto_abort"`
	AutoRollback bool               `yaml:"auto_rollback"`
}

// DefaultPolicy returns the embedded production policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Gates:   DefaultGateThresholds(),
		Compare: DefaultCompareThresholds(),
		Soak: SoakConfig{
			PaperMinHours:   72,
			TestnetMinHours: 72,
			ShadowMinHours:  48,
			CanaryMinHours:  24,
			StableMinHours:  72,
		},
		Abort: AbortThresholds{
			MaxAPIErrors:       25,
			MaxSlippageP95Bps:  35,
			MaxSpreadP95Bps:    25,
			MaxLatencyP95Ms:    800,
			MinFillRatio:       0.85,
			MaxCriticalErrors:  0,
			MaxDataGaps:        2,
			MaxBreakerTriggers: 0,
		},
		Risk: RiskLimits{
			MaxDrawdownUtilization:  0.80,
			MaxDailyLossUtilization: 0.90,
			MaxPhaseDDIncrementPct:  4.0,
		},
		Degradation: DegradationLimits{
			MaxExpectancyShortfallPct: 10.0,
			MaxDDIncrementExcessPp:    1.5,
			MaxSlippageExcessBps:      10.0,
		},
		Blending: BlendingConfig{
			Enabled:  true,
			Mode:     "consenso",
			Alpha:    0.5,
			DeadBand: 0.10,
		},
		AutoAbort:    true,
		AutoRollback: true,
	}
}

// MinDurationFor maps a phase name to its configured minimum bake time.
// Unknown phases require no minimum.
func (s SoakConfig) MinDurationFor(phase string) time.Duration {
	hours := 0.0
	switch phase {
	case "paper_soak":
		hours = s.PaperMinHours
	case "testnet_soak":
		hours = s.TestnetMinHours
	case "shadow":
		hours = s.ShadowMinHours
	case "canary05", "canary15", "canary35", "canary60":
		hours = s.CanaryMinHours
	case "stable":
		hours = s.StableMinHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// LoadPolicy reads a YAML policy file and merges it onto the embedded
// defaults. An empty path returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	// Scalar/struct fields merge in place: keys absent from the file keep
	// their default value. The threshold maps are replaced wholesale by
	// yaml, so they are re-merged onto the defaults afterwards.
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	policy.Gates = mergeFloatMap(DefaultGateThresholds(), policy.Gates)
	policy.Compare = mergeFloatMap(DefaultCompareThresholds(), policy.Compare)

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

// Validate checks the policy's structural invariants.
func (p *Policy) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

func mergeFloatMap(defaults, overrides map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// MergeThresholds overlays caller-supplied overrides onto a defaults map.
// Override values of any scalar type are coerced to float64; values that
// cannot be parsed coerce to 0.0 rather than erroring, matching the policy
// engine's lenient contract for unknown keys.
func MergeThresholds(defaults map[string]float64, overrides map[string]any) map[string]float64 {
	merged := make(map[string]float64, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = CoerceFloat(v)
	}
	return merged
}

// CoerceFloat converts loosely typed threshold values to float64,
// defaulting to 0.0 when the value has no numeric reading.
func CoerceFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		if t {
			return 1.0
		}
		return 0.0
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
		return 0.0
	case nil:
		return 0.0
	default:
		return 0.0
	}
}
