package report

import (
	"strings"
	"testing"
	"time"
)

const validPayload = `{
  "strategy_id": "momo-v4",
  "strategy_version": "4.0.0-rc1",
  "run_id": "run-2025-06-30",
  "data_source": "kraken",
  "dataset_hash": "sha256:8c1f2a",
  "timeframe": "1h",
  "market": "spot",
  "symbol": "BTC-USD",
  "period": {"start": "2025-01-01T00:00:00Z", "end": "2025-06-30T00:00:00Z"},
  "validation_summary": {"method": "walk_forward", "out_of_sample": true, "folds": 6},
  "metrics": {
    "trade_count": 210, "winrate": 0.55, "profit_factor": 1.7,
    "sharpe": 1.8, "sortino": 2.1, "calmar": 1.3,
    "max_dd": 11.0, "max_dd_duration_bars": 96
  },
  "costs_breakdown": {
    "gross_pnl_total": 7200, "total_cost": 950,
    "commission": 420, "spread_cost": 190, "slippage_cost": 230,
    "funding_cost": 85, "borrow_cost": 25
  },
  "tags": ["momentum", "order_flow"]
}`

func TestParse_ValidPayload(t *testing.T) {
	rep, err := Parse([]byte(validPayload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if rep.StrategyID != "momo-v4" || rep.RunID != "run-2025-06-30" {
		t.Errorf("identity fields wrong: %q %q", rep.StrategyID, rep.RunID)
	}
	if rep.Metrics.TradeCount != 210 {
		t.Errorf("trade_count = %d", rep.Metrics.TradeCount)
	}
	if rep.CostsBreakdown.Commission == nil || *rep.CostsBreakdown.Commission != 420 {
		t.Error("commission not decoded")
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rep.Period.Start.Equal(want) {
		t.Errorf("period start = %v", rep.Period.Start)
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := []struct {
		name    string
		mangle  func(string) string
		wantErr string
	}{
		{"not json", func(s string) string { return s[:40] }, "not valid JSON"},
		{"missing run_id", func(s string) string {
			return strings.Replace(s, `"run_id": "run-2025-06-30",`, "", 1)
		}, "schema violation"},
		{"empty strategy_id", func(s string) string {
			return strings.Replace(s, `"momo-v4"`, `""`, 1)
		}, "schema violation"},
		{"winrate above one", func(s string) string {
			return strings.Replace(s, `"winrate": 0.55`, `"winrate": 1.55`, 1)
		}, "schema violation"},
		{"negative total cost", func(s string) string {
			return strings.Replace(s, `"total_cost": 950`, `"total_cost": -950`, 1)
		}, "schema violation"},
		{"string trade count", func(s string) string {
			return strings.Replace(s, `"trade_count": 210`, `"trade_count": "210"`, 1)
		}, "schema violation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.mangle(validPayload)))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want %s", err, tc.wantErr)
			}
		})
	}
}

func TestParse_NullCostComponentsStayNil(t *testing.T) {
	payload := strings.Replace(validPayload, `"commission": 420`, `"commission": null`, 1)
	rep, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rep.CostsBreakdown.Commission != nil {
		t.Error("null commission should decode to nil, not zero")
	}

	complete, missing := rep.CostsBreakdown.Complete()
	if complete || len(missing) != 1 || missing[0] != "commission" {
		t.Errorf("Complete() = %v %v", complete, missing)
	}
}

func TestCostsBreakdown_CompleteSortsMissing(t *testing.T) {
	var c CostsBreakdown
	complete, missing := c.Complete()
	if complete {
		t.Fatal("empty breakdown reported complete")
	}
	want := []string{"borrow_cost", "commission", "funding_cost", "slippage_cost", "spread_cost"}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v", missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("missing = %v, want sorted %v", missing, want)
		}
	}
}

func TestExpectancyPerTrade(t *testing.T) {
	rep, err := Parse([]byte(validPayload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// (7200 - 950) / 210
	if got := rep.ExpectancyPerTrade(); got < 29.76 || got > 29.77 {
		t.Errorf("expectancy = %v", got)
	}

	rep.Metrics.TradeCount = 0
	if got := rep.ExpectancyPerTrade(); got != 0 {
		t.Errorf("zero trades expectancy = %v, want 0", got)
	}
}

func TestBarDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":    time.Minute,
		"15m":   15 * time.Minute,
		"1h":    time.Hour,
		" 4H ":  4 * time.Hour,
		"1d":    24 * time.Hour,
		"daily": 24 * time.Hour,
	}
	for tf, want := range cases {
		r := PerformanceReport{Timeframe: tf}
		got, err := r.BarDuration()
		if err != nil {
			t.Errorf("BarDuration(%q): %v", tf, err)
			continue
		}
		if got != want {
			t.Errorf("BarDuration(%q) = %v, want %v", tf, got, want)
		}
	}

	r := PerformanceReport{Timeframe: "3w"}
	if _, err := r.BarDuration(); err == nil {
		t.Error("unknown timeframe should error")
	}
}

func TestDrawdownDurationDays(t *testing.T) {
	r := PerformanceReport{Timeframe: "4h", Metrics: Metrics{MaxDDDurationBars: 18}}
	days, err := r.DrawdownDurationDays()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if days != 3.0 {
		t.Errorf("18 four-hour bars = %v days, want 3", days)
	}
}

func TestCostRatio(t *testing.T) {
	r := PerformanceReport{CostsBreakdown: CostsBreakdown{GrossPnLTotal: 6000, TotalCost: 900}}
	ratio, ok := r.CostRatio()
	if !ok || ratio != 0.15 {
		t.Errorf("CostRatio = %v/%v", ratio, ok)
	}

	// Losing runs normalize by magnitude.
	r.CostsBreakdown.GrossPnLTotal = -6000
	ratio, ok = r.CostRatio()
	if !ok || ratio != 0.15 {
		t.Errorf("negative gross ratio = %v/%v", ratio, ok)
	}

	r.CostsBreakdown.GrossPnLTotal = 0
	if _, ok := r.CostRatio(); ok {
		t.Error("zero gross PnL must report ok=false")
	}
}

func TestIsRealDataSource(t *testing.T) {
	cases := map[string]bool{
		"kraken":    true,
		"Binance":   true,
		"synthetic": false,
		"MOCK":      false,
		"sim":       false,
		"":          false,
		"  ":        false,
	}
	for src, want := range cases {
		r := PerformanceReport{DataSource: src}
		if got := r.IsRealDataSource(); got != want {
			t.Errorf("IsRealDataSource(%q) = %v, want %v", src, got, want)
		}
	}
}

func TestPeriodEqualAndString(t *testing.T) {
	a := Period{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	b := a
	if !a.Equal(b) {
		t.Error("identical periods not equal")
	}
	b.End = b.End.Add(time.Hour)
	if a.Equal(b) {
		t.Error("shifted period reported equal")
	}
	if s := a.String(); !strings.Contains(s, "2025-01-01") || !strings.Contains(s, "2025-06-30") {
		t.Errorf("String() = %q", s)
	}
}
