package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/rollout"
)

func runEvaluate(cmd *cobra.Command, args []string) error {
	telemetryPath, _ := cmd.Flags().GetString("telemetry")
	raw, err := os.ReadFile(telemetryPath)
	if err != nil {
		return fmt.Errorf("read telemetry file: %w", err)
	}
	var input rollout.TelemetryInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse telemetry file: %w", err)
	}

	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	var outcome *rollout.EvaluationOutcome
	switch args[0] {
	case "paper":
		outcome, err = rt.manager.EvaluatePaperSoak(ctx, "", input)
	case "testnet":
		outcome, err = rt.manager.EvaluateTestnetSoak(ctx, "", input)
	case "live":
		outcome, err = rt.manager.EvaluateLivePhase(ctx, "", input)
	default:
		return fmt.Errorf("unknown phase kind %q (want paper, testnet, or live)", args[0])
	}
	if err != nil {
		return err
	}

	ev := outcome.Evaluation
	fmt.Printf("Phase %s: %s (%.1fh of %.0fh minimum)\n\n",
		ev.Phase, colorEvalStatus(ev.Status), ev.ElapsedHrs, ev.MinHrs)

	for _, check := range ev.Checks {
		marker := okMarker(check.OK)
		if check.Skipped {
			marker = skipMarker
		}
		hard := ""
		if check.Hard && !check.OK {
			hard = " [hard]"
		}
		fmt.Printf("  %s %-28s %s%s\n", marker, check.ID, check.Reason, hard)
	}

	if outcome.AutoAction != "" {
		fmt.Printf("\nAutomatic action: %s -> %s\n", outcome.AutoAction, colorState(outcome.State))
		return nil
	}
	if ev.Passed {
		fmt.Printf("\nPhase passed. Next: stratroll advance\n")
	}
	return nil
}
