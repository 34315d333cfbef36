package compare

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratops/stratroll/internal/config"
	"github.com/stratops/stratroll/internal/report"
)

// The fixture pair shares dataset, period and feature set; only the
// performance differs. Baseline: 200 trades, net 5100, expectancy 25.50,
// max DD 12%. Candidate: 210 trades, net 6250 (+22.5%), expectancy 29.76
// (+16.7%), max DD 11%, costs +5.6%.

func fixtureReport(runID string) *report.PerformanceReport {
	commission := 400.0
	spread := 180.0
	slippage := 220.0
	funding := 80.0
	borrow := 20.0
	return &report.PerformanceReport{
		StrategyID:      "momo-v3",
		StrategyName:    "Momentum Breakout",
		StrategyVersion: "3.4.0",
		RunID:           runID,
		DataSource:      "kraken",
		DatasetHash:     "sha256:8c1f2a",
		Timeframe:       "1h",
		Market:          "spot",
		Symbol:          "BTC-USD",
		Period: report.Period{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		ValidationSummary: report.ValidationSummary{Method: "walk_forward", OutOfSample: true, Folds: 6},
		Metrics: report.Metrics{
			TradeCount:        200,
			Winrate:           0.52,
			ProfitFactor:      1.5,
			Sharpe:            1.6,
			Sortino:           1.9,
			Calmar:            1.1,
			MaxDrawdownPct:    12.0,
			MaxDDDurationBars: 120,
		},
		CostsBreakdown: report.CostsBreakdown{
			GrossPnLTotal: 6000,
			TotalCost:     900,
			Commission:    &commission,
			SpreadCost:    &spread,
			SlippageCost:  &slippage,
			FundingCost:   &funding,
			BorrowCost:    &borrow,
		},
	}
}

func baselineFixture() *report.PerformanceReport {
	return fixtureReport("run-2025-06-30-baseline")
}

func candidateFixture() *report.PerformanceReport {
	r := fixtureReport("run-2025-06-30-candidate")
	r.StrategyID = "momo-v4"
	r.StrategyVersion = "4.0.0-rc1"
	r.Metrics.TradeCount = 210
	r.Metrics.Winrate = 0.55
	r.Metrics.MaxDrawdownPct = 11.0
	r.CostsBreakdown.GrossPnLTotal = 7200
	r.CostsBreakdown.TotalCost = 950
	return r
}

func checkByID(t *testing.T, res Result, id string) Check {
	t.Helper()
	for _, c := range res.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %s not present", id)
	return Check{}
}

func boolPtr(v bool) *bool { return &v }

func TestCompare_GenuineImprovementPasses(t *testing.T) {
	res := NewEngine(nil).Compare(candidateFixture(), baselineFixture(), nil)

	require.True(t, res.Passed, "improvement should pass: %v", res.FailedIDs)
	assert.Equal(t, "PASS", res.Summary)
	assert.Len(t, res.Checks, 6, "one check per comparison rule")
	assert.Empty(t, res.FailedIDs)
}

func TestCompare_IdenticalCandidateFailsOnlyImprovement(t *testing.T) {
	// Same dataset, same period, same numbers. Every identity check
	// passes; the only complaint is that nothing got better.
	res := NewEngine(nil).Compare(baselineFixture(), baselineFixture(), nil)

	require.False(t, res.Passed)
	assert.Equal(t, []string{CheckImprovement}, res.FailedIDs)

	c := checkByID(t, res, CheckImprovement)
	assert.Contains(t, c.Reason, "no qualifying improvement")
}

func TestCompare_DatasetHashMismatchInvalidatesComparison(t *testing.T) {
	cand := candidateFixture()
	cand.DatasetHash = "sha256:ffffff"
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckSameDatasetHash)

	c := checkByID(t, res, CheckSameDatasetHash)
	assert.Equal(t, "sha256:ffffff", c.Details["candidate"])
	assert.Equal(t, "sha256:8c1f2a", c.Details["baseline"])
}

func TestCompare_EmptyHashesNeverMatch(t *testing.T) {
	// Two reports that both omit the hash are not "the same dataset";
	// they are unidentifiable.
	cand, base := candidateFixture(), baselineFixture()
	cand.DatasetHash = ""
	base.DatasetHash = ""
	res := NewEngine(nil).Compare(cand, base, nil)

	assert.Contains(t, res.FailedIDs, CheckSameDatasetHash)
}

func TestCompare_OOSPeriodMismatch(t *testing.T) {
	cand := candidateFixture()
	cand.Period.End = cand.Period.End.AddDate(0, 0, 1)
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckSameOOSPeriod)
}

func TestCompare_FeatureSetMismatch(t *testing.T) {
	// Baseline declares nothing and resolves to enabled-by-default; a
	// candidate trained without order flow is not comparable to it.
	cand := candidateFixture()
	cand.UseOrderFlow = boolPtr(false)
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckSameFeatureSet)

	c := checkByID(t, res, CheckSameFeatureSet)
	assert.Contains(t, c.Reason, "comparison invalid")
}

func TestCompare_ImprovementOnEitherAxisSuffices(t *testing.T) {
	t.Run("expectancy only", func(t *testing.T) {
		// Net PnL identical to baseline, but 180 trades instead of 200
		// push expectancy to 28.33, +11.1%.
		cand := candidateFixture()
		cand.Metrics.TradeCount = 180
		cand.CostsBreakdown.GrossPnLTotal = 6000
		cand.CostsBreakdown.TotalCost = 900
		res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

		c := checkByID(t, res, CheckImprovement)
		require.True(t, c.OK, "expectancy axis should qualify: %s", c.Reason)
		assert.Contains(t, c.Reason, "expectancy improved")
	})

	t.Run("net pnl only", func(t *testing.T) {
		// Net 6000 (+17.6%) spread over 250 trades drops expectancy to
		// 24.00, a regression, but the PnL axis carries it.
		cand := candidateFixture()
		cand.Metrics.TradeCount = 250
		cand.CostsBreakdown.GrossPnLTotal = 6900
		cand.CostsBreakdown.TotalCost = 900
		res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

		c := checkByID(t, res, CheckImprovement)
		require.True(t, c.OK, "net PnL axis should qualify: %s", c.Reason)
		assert.Contains(t, c.Reason, "net PnL improved")
	})
}

func TestCompare_DrawdownWorseningBound(t *testing.T) {
	cand := candidateFixture()
	cand.Metrics.MaxDrawdownPct = 13.9 // +1.9pp, inside the +2pp bound
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)
	assert.True(t, checkByID(t, res, CheckDrawdownNotWorse).OK)

	cand.Metrics.MaxDrawdownPct = 14.5 // +2.5pp
	res = NewEngine(nil).Compare(cand, baselineFixture(), nil)
	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckDrawdownNotWorse)
}

func TestCompare_CostIncreaseWaivedByNetPnL(t *testing.T) {
	// Costs grew 22.2%, over the 15% bound, but net PnL improved 19.6%
	// which clears the 8% waiver.
	cand := candidateFixture()
	cand.CostsBreakdown.TotalCost = 1100
	cand.CostsBreakdown.GrossPnLTotal = 7200
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

	c := checkByID(t, res, CheckCostIncreaseLimit)
	require.True(t, c.OK, "waiver should apply: %s", c.Reason)
	assert.Contains(t, c.Reason, "increase tolerated")
	assert.Equal(t, true, c.Details["waived"])
}

func TestCompare_CostIncreaseWithoutWaiverFails(t *testing.T) {
	// Same 22.2% cost growth but net PnL flat, so no waiver.
	cand := candidateFixture()
	cand.CostsBreakdown.TotalCost = 1100
	cand.CostsBreakdown.GrossPnLTotal = 6200
	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)

	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckCostIncreaseLimit)

	c := checkByID(t, res, CheckCostIncreaseLimit)
	assert.Equal(t, false, c.Details["waived"])
}

func TestCompare_OverridesMerge(t *testing.T) {
	cand := candidateFixture()
	cand.Metrics.MaxDrawdownPct = 12.8 // +0.8pp over baseline

	res := NewEngine(nil).Compare(cand, baselineFixture(), nil)
	assert.True(t, res.Passed, "default +2pp bound tolerates +0.8pp")

	res = NewEngine(nil).Compare(cand, baselineFixture(), map[string]any{
		config.CompareMaxDrawdownWorseningPp: 0.5,
	})
	require.False(t, res.Passed)
	assert.Contains(t, res.FailedIDs, CheckDrawdownNotWorse)
	assert.Equal(t, 0.5, res.Thresholds[config.CompareMaxDrawdownWorseningPp])
}

func TestRelativeImprovementPct(t *testing.T) {
	assert.InDelta(t, 20.0, relativeImprovementPct(100, 120), 1e-9)
	assert.InDelta(t, -20.0, relativeImprovementPct(100, 80), 1e-9)

	// Negative base normalizes by magnitude: -10 to -5 is a +50% move.
	assert.InDelta(t, 50.0, relativeImprovementPct(-10, -5), 1e-9)

	assert.True(t, math.IsInf(relativeImprovementPct(0, 1), 1))
	assert.True(t, math.IsInf(relativeImprovementPct(0, -1), -1))
	assert.Zero(t, relativeImprovementPct(0, 0))
}

func TestOrderFlowFeatureSet_ExtractorChain(t *testing.T) {
	disabled := "disabled"
	garbage := "maybe"

	cases := []struct {
		name    string
		mutate  func(*report.PerformanceReport)
		enabled bool
		source  string
	}{
		{"explicit field wins", func(r *report.PerformanceReport) {
			r.OrderFlowFeatures = &disabled
			r.UseOrderFlow = boolPtr(true)
		}, false, "explicit_field"},
		{"unparseable explicit falls through", func(r *report.PerformanceReport) {
			r.OrderFlowFeatures = &garbage
			r.UseOrderFlow = boolPtr(false)
		}, false, "boolean_flag"},
		{"boolean flag", func(r *report.PerformanceReport) {
			r.UseOrderFlow = boolPtr(true)
		}, true, "boolean_flag"},
		{"params word", func(r *report.PerformanceReport) {
			r.Params = map[string]any{"order_flow": "off"}
		}, false, "params"},
		{"metadata numeric", func(r *report.PerformanceReport) {
			r.Metadata = map[string]any{"use_order_flow": 1.0}
		}, true, "metadata"},
		{"tag", func(r *report.PerformanceReport) {
			r.Tags = []string{"swing", "no-order-flow"}
		}, false, "tags"},
		{"undeclared defaults on", func(r *report.PerformanceReport) {}, true, "default"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := baselineFixture()
			tc.mutate(rep)
			enabled, source := OrderFlowFeatureSet(rep)
			assert.Equal(t, tc.enabled, enabled)
			assert.Equal(t, tc.source, source)
		})
	}
}
