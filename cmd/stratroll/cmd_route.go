package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/rollout"
)

func runRoute(cmd *cobra.Command, args []string) error {
	payloadPath, _ := cmd.Flags().GetString("payload")
	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("read payload file: %w", err)
	}
	var input rollout.SignalInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse payload file: %w", err)
	}

	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	outcome, err := rt.manager.RouteLiveSignal(ctx, "", input)
	if err != nil {
		return err
	}

	ev := outcome.Event
	agreement := "disagree"
	if ev.Agreement {
		agreement = "agree"
	}
	fmt.Printf("Signal %s (%s %s, phase %s, %s)\n",
		ev.ID, ev.Symbol, ev.Timeframe, ev.Phase, agreement)
	fmt.Printf("  baseline:  %-6s score %+.3f\n", ev.Decisions.Baseline.Action, ev.Decisions.Baseline.Score)
	fmt.Printf("  candidate: %-6s score %+.3f\n", ev.Decisions.Candidate.Action, ev.Decisions.Candidate.Score)
	fmt.Printf("  blended:   %-6s score %+.3f\n", ev.Decisions.Blended.Action, ev.Decisions.Blended.Score)
	fmt.Printf("  executed:  %-6s score %+.3f (%s)\n",
		ev.Decisions.Executed.Action, ev.Decisions.Executed.Score, ev.ExecutionMode)

	if stats, ok := outcome.Telemetry.Phases[ev.Phase]; ok {
		fmt.Printf("\nPhase %s so far: %d signals, %.1f%% agreement\n",
			ev.Phase, stats.Events, stats.AgreementRate*100)
	}
	return nil
}
