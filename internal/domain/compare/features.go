package compare

import "github.com/stratops/stratroll/internal/report"

// Reports declare their order-flow/microstructure feature configuration in
// different places depending on the simulator generation that produced
// them. Resolution walks a prioritized extractor chain and stops at the
// first site that yields an answer; reports predating any declaration are
// assumed to have the features enabled.

type featureExtractor struct {
	source  string
	extract func(*report.PerformanceReport) (enabled, found bool)
}

var featureChain = []featureExtractor{
	{"explicit_field", fromExplicitField},
	{"boolean_flag", fromBooleanFlag},
	{"params", fromKeyedMap(func(r *report.PerformanceReport) map[string]any { return r.Params })},
	{"metadata", fromKeyedMap(func(r *report.PerformanceReport) map[string]any { return r.Metadata })},
	{"tags", fromTags},
}

// OrderFlowFeatureSet resolves whether a report was produced with
// order-flow features, and which declaration site answered.
func OrderFlowFeatureSet(r *report.PerformanceReport) (enabled bool, source string) {
	for _, ex := range featureChain {
		if v, found := ex.extract(r); found {
			return v, ex.source
		}
	}
	// Historical compatibility: old reports never declared the feature
	// set and were all produced with order flow on.
	return true, "default"
}

func fromExplicitField(r *report.PerformanceReport) (bool, bool) {
	if r.OrderFlowFeatures == nil {
		return false, false
	}
	return parseFeatureWord(*r.OrderFlowFeatures)
}

func fromBooleanFlag(r *report.PerformanceReport) (bool, bool) {
	if r.UseOrderFlow == nil {
		return false, false
	}
	return *r.UseOrderFlow, true
}

// featureKeys are the map keys checked inside params and metadata, in order.
var featureKeys = []string{"order_flow_features", "order_flow", "use_order_flow", "microstructure_features"}

func fromKeyedMap(get func(*report.PerformanceReport) map[string]any) func(*report.PerformanceReport) (bool, bool) {
	return func(r *report.PerformanceReport) (bool, bool) {
		m := get(r)
		if m == nil {
			return false, false
		}
		for _, key := range featureKeys {
			v, ok := m[key]
			if !ok {
				continue
			}
			switch t := v.(type) {
			case bool:
				return t, true
			case string:
				if enabled, found := parseFeatureWord(t); found {
					return enabled, true
				}
			case float64:
				return t != 0, true
			case int:
				return t != 0, true
			}
		}
		return false, false
	}
}

func fromTags(r *report.PerformanceReport) (bool, bool) {
	for _, tag := range r.Tags {
		switch tag {
		case "order_flow", "order-flow", "microstructure":
			return true, true
		case "no_order_flow", "no-order-flow", "no_microstructure":
			return false, true
		}
	}
	return false, false
}

func parseFeatureWord(s string) (enabled, found bool) {
	switch s {
	case "enabled", "on", "true", "yes", "full":
		return true, true
	case "disabled", "off", "false", "no", "none":
		return false, true
	}
	return false, false
}
