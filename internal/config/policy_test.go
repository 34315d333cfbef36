package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestDefaultPolicy_Validates(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestLoadPolicy_EmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)

	assert.Equal(t, 72.0, p.Soak.PaperMinHours)
	assert.Equal(t, 0.90, p.Risk.MaxDailyLossUtilization)
	assert.True(t, p.AutoRollback)
	assert.Equal(t, "consenso", p.Blending.Mode)
}

func TestLoadPolicy_PartialFileKeepsDefaults(t *testing.T) {
	path := writePolicy(t, `
soak:
  canary_min_hours: 12
auto_rollback: false
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 12.0, p.Soak.CanaryMinHours, "overridden")
	assert.Equal(t, 72.0, p.Soak.PaperMinHours, "untouched sibling keeps default")
	assert.False(t, p.AutoRollback)
	assert.True(t, p.AutoAbort, "absent key keeps default")
	assert.Equal(t, 35.0, p.Abort.MaxSlippageP95Bps, "absent section keeps defaults")
}

func TestLoadPolicy_ThresholdMapsRemerge(t *testing.T) {
	// yaml replaces map fields wholesale; the loader re-merges them onto
	// the embedded defaults so a one-key override does not erase the rest
	// of the gate policy.
	path := writePolicy(t, `
gates:
  min_sharpe: 1.4
compare:
  max_cost_increase_pct: 10
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 1.4, p.Gates[GateMinSharpe])
	assert.Equal(t, 30.0, p.Gates[GateMinTrades], "unlisted gate keys survive")
	assert.Equal(t, 10.0, p.Compare[CompareMaxCostIncreasePct])
	assert.Equal(t, 5.0, p.Compare[CompareMinNetPnLImprovementPct])
}

func TestLoadPolicy_InvalidValuesRejected(t *testing.T) {
	cases := map[string]string{
		"utilization over 1": `
risk:
  max_drawdown_utilization: 1.5
`,
		"unknown blend mode": `
blending:
  mode: media
`,
		"fill ratio over 1": `
abort:
  min_fill_ratio: 1.2
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid policy")
		})
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy file")
}

func TestLoadPolicy_MalformedYAML(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "soak: [not, a, struct"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse policy file")
}

func TestSoakConfig_MinDurationFor(t *testing.T) {
	soak := DefaultPolicy().Soak

	cases := map[string]time.Duration{
		"paper_soak":   72 * time.Hour,
		"testnet_soak": 72 * time.Hour,
		"shadow":       48 * time.Hour,
		"canary05":     24 * time.Hour,
		"canary15":     24 * time.Hour,
		"canary35":     24 * time.Hour,
		"canary60":     24 * time.Hour,
		"stable":       72 * time.Hour,
		"offline":      0,
		"":             0,
	}
	for phase, want := range cases {
		assert.Equal(t, want, soak.MinDurationFor(phase), "phase %s", phase)
	}
}

func TestMergeThresholds(t *testing.T) {
	defaults := map[string]float64{"a": 1, "b": 2}
	merged := MergeThresholds(defaults, map[string]any{
		"b": "2.5",
		"c": 3,
		"d": true,
		"e": "not-a-number",
	})

	assert.Equal(t, 1.0, merged["a"])
	assert.Equal(t, 2.5, merged["b"], "string overrides coerce")
	assert.Equal(t, 3.0, merged["c"])
	assert.Equal(t, 1.0, merged["d"])
	assert.Equal(t, 0.0, merged["e"], "unparseable coerces to zero")

	assert.Equal(t, 2.0, defaults["b"], "input map is not mutated")
}

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{3.5, 3.5},
		{float32(2), 2.0},
		{7, 7.0},
		{int64(-4), -4.0},
		{uint(9), 9.0},
		{true, 1.0},
		{false, 0.0},
		{"1.25", 1.25},
		{"abc", 0.0},
		{nil, 0.0},
		{struct{}{}, 0.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CoerceFloat(tc.in), "CoerceFloat(%v)", tc.in)
	}
}
