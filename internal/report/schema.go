package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// performanceReportSchema is the wire contract for simulator payloads. It
// guards the fields the gates read; everything else passes through untouched.
const performanceReportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "stratroll://schemas/performance_report.json",
  "type": "object",
  "required": ["strategy_id", "run_id", "data_source", "dataset_hash",
               "timeframe", "period", "validation_summary", "metrics",
               "costs_breakdown"],
  "properties": {
    "strategy_id":      {"type": "string", "minLength": 1},
    "strategy_name":    {"type": "string"},
    "strategy_version": {"type": "string"},
    "run_id":           {"type": "string", "minLength": 1},
    "data_source":      {"type": "string"},
    "dataset_hash":     {"type": "string"},
    "timeframe":        {"type": "string", "minLength": 1},
    "market":           {"type": "string"},
    "symbol":           {"type": "string"},
    "period": {
      "type": "object",
      "required": ["start", "end"],
      "properties": {
        "start": {"type": "string", "format": "date-time"},
        "end":   {"type": "string", "format": "date-time"}
      }
    },
    "validation_summary": {
      "type": "object",
      "required": ["method", "out_of_sample"],
      "properties": {
        "method":        {"type": "string"},
        "out_of_sample": {"type": "boolean"},
        "folds":         {"type": "integer", "minimum": 0},
        "embargo_pct":   {"type": "number", "minimum": 0}
      }
    },
    "metrics": {
      "type": "object",
      "required": ["trade_count", "winrate", "profit_factor", "sharpe",
                   "sortino", "calmar", "max_dd", "max_dd_duration_bars"],
      "properties": {
        "trade_count":          {"type": "integer", "minimum": 0},
        "winrate":              {"type": "number", "minimum": 0, "maximum": 1},
        "profit_factor":        {"type": "number", "minimum": 0},
        "sharpe":               {"type": "number"},
        "sortino":              {"type": "number"},
        "calmar":               {"type": "number"},
        "max_dd":               {"type": "number", "minimum": 0},
        "max_dd_duration_bars": {"type": "integer", "minimum": 0},
        "pbo":                  {"type": "number", "minimum": 0, "maximum": 1},
        "dsr":                  {"type": "number"}
      }
    },
    "costs_breakdown": {
      "type": "object",
      "required": ["gross_pnl_total", "total_cost"],
      "properties": {
        "gross_pnl_total": {"type": "number"},
        "total_cost":      {"type": "number", "minimum": 0},
        "commission":      {"type": ["number", "null"]},
        "spread_cost":     {"type": ["number", "null"]},
        "slippage_cost":   {"type": ["number", "null"]},
        "funding_cost":    {"type": ["number", "null"]},
        "borrow_cost":     {"type": ["number", "null"]}
      }
    },
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	const url = "stratroll://schemas/performance_report.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(performanceReportSchema)); err != nil {
		panic(fmt.Sprintf("report: add schema resource: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("report: compile schema: %v", err))
	}
	return schema
}

// ValidateJSON checks a raw simulator payload against the report schema.
// The returned error carries the validator's itemized violation detail.
func ValidateJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("report is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("report schema violation: %w", err)
	}
	return nil
}

// Parse validates and decodes a raw simulator payload.
func Parse(raw []byte) (*PerformanceReport, error) {
	if err := ValidateJSON(raw); err != nil {
		return nil, err
	}
	var r PerformanceReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
