package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "stratroll"
	version = "v1.4.0"
)

func main() {
	// Local overrides first so STRATROLL_* vars from .env are visible to
	// the config loader.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Graduated canary rollouts for trading strategy versions",
		Version: version,
		Long: `stratroll promotes a candidate strategy version through a reversible
canary pipeline: offline gates, paper soak, testnet soak, then live
shadow and stepped capital allocation (5% -> 15% -> 35% -> 60% -> 100%),
with automatic rollback to the baseline on hard KPI violations.

One rollout is active at a time. Lifecycle commands act on it; read
commands accept an explicit rollout id for finished runs.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to runtime config YAML (default: built-in local config)")
	rootCmd.PersistentFlags().String("actor", defaultActor(), "Operator identity recorded in the audit history")
	rootCmd.PersistentFlags().Var(&logLevel, "log-level", "Override the configured log level (trace, debug, info, warn, error)")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Register a candidate and run the offline gates",
		Long: `Reads the baseline and candidate performance reports, runs the offline
gate checks and the baseline comparison, and archives both reports. The
rollout lands in OFFLINE_GATES_PASSED when every check passes, ABORTED
otherwise. Refused while another rollout is active.`,
		RunE: runStart,
	}

	startCmd.Flags().String("baseline", "", "Path to the baseline performance report JSON (required)")
	startCmd.Flags().String("candidate", "", "Path to the candidate performance report JSON (required)")
	startCmd.Flags().String("baseline-name", "", "Display name override for the baseline version")
	startCmd.Flags().String("candidate-name", "", "Display name override for the candidate version")
	_ = startCmd.MarkFlagRequired("baseline")
	_ = startCmd.MarkFlagRequired("candidate")

	advanceCmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance the active rollout to its next stage",
		Long: `Moves the active rollout one step forward. Soak and canary stages
require a passing phase evaluation first; stages behind an approval gate
require 'approve' instead.`,
		RunE: runAdvance,
	}

	advanceCmd.Flags().String("note", "", "Optional note recorded on the transition")

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending live promotion",
		Long: `Confirms the promotion the active rollout is waiting on: first live
exposure after the testnet soak, or full allocation after the last
canary stage.`,
		RunE: runApprove,
	}

	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a pending live promotion and abort the rollout",
		RunE:  runReject,
	}

	rejectCmd.Flags().String("reason", "", "Reason recorded on the abort")

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll the active rollout back to 100% baseline",
		Long: `Immediately returns all routing to the baseline version and freezes
the rollout in ROLLED_BACK with a snapshot of the state at the moment
of the decision.`,
		RunE: runRollback,
	}

	rollbackCmd.Flags().String("reason", "", "Reason recorded on the rollback (required)")
	_ = rollbackCmd.MarkFlagRequired("reason")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate [paper|testnet|live]",
		Short: "Evaluate the current phase against the promotion policy",
		Long: `Feeds a telemetry snapshot into the phase evaluator and records the
verdict. Hard violations trigger the configured automatic abort (paper,
testnet) or rollback (live phases).

The telemetry file carries risk status, execution quality, log counts
and, for live phases, the baseline's own KPIs:

  {
    "status":   {"daily_pnl": -120.5, "daily_loss_value": 120.5, ...},
    "exec":     {"slippage_p95_bps": 12.0, "fill_ratio": 0.97, ...},
    "logs":     [{"severity": "error", "type": "critical_error", ...}],
    "baseline": {"expectancy": 1.9, "phase_dd_increment_pct": 0.4, ...}
  }`,
		Args: cobra.ExactArgs(1),
		RunE: runEvaluate,
	}

	evaluateCmd.Flags().String("telemetry", "", "Path to the telemetry snapshot JSON (required)")
	_ = evaluateCmd.MarkFlagRequired("telemetry")

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Arbitrate one baseline/candidate signal pair",
		Long: `Applies the active phase's routing to a single signal pair and prints
the executed decision. Valid during live shadow and canary stages only.

The payload file carries both raw signals:

  {
    "baseline":  {"action": "long",  "confidence": 0.8},
    "candidate": {"action": "short", "confidence": 0.7},
    "symbol": "BTC-USD",
    "timeframe": "4h"
  }`,
		RunE: runRoute,
	}

	routeCmd.Flags().String("payload", "", "Path to the signal pair JSON (required)")
	_ = routeCmd.MarkFlagRequired("payload")

	statusCmd := &cobra.Command{
		Use:   "status [rollout-id]",
		Short: "Show a rollout's state, weights, and evaluation verdicts",
		Long:  "Shows the active rollout by default; pass a rollout id for a finished one.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	statusCmd.Flags().Bool("json", false, "Print the raw record as JSON")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent rollouts, newest first",
		RunE:  runList,
	}

	listCmd.Flags().Int("limit", 20, "Maximum number of rollouts to list")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only ops server",
		Long: `Starts the HTTP ops server: rollout status and history endpoints,
Prometheus metrics, and a websocket stream of routed live signals.
Lifecycle mutations stay on the CLI.`,
		RunE: runServe,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the stratroll version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func defaultActor() string {
	if u := os.Getenv("STRATROLL_ACTOR"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}

// levelFlag restricts --log-level to zerolog's level names at parse time.
type levelFlag string

var _ pflag.Value = (*levelFlag)(nil)

var logLevel levelFlag

func (f *levelFlag) String() string { return string(*f) }

func (f *levelFlag) Set(v string) error {
	if _, err := zerolog.ParseLevel(v); err != nil {
		return fmt.Errorf("unknown log level %q", v)
	}
	*f = levelFlag(v)
	return nil
}

func (f *levelFlag) Type() string { return "level" }
