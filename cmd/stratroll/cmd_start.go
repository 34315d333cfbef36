package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/report"
	"github.com/stratops/stratroll/internal/rollout"
)

func runStart(cmd *cobra.Command, args []string) error {
	baselinePath, _ := cmd.Flags().GetString("baseline")
	candidatePath, _ := cmd.Flags().GetString("candidate")
	baselineName, _ := cmd.Flags().GetString("baseline-name")
	candidateName, _ := cmd.Flags().GetString("candidate-name")

	baseline, err := loadReport(baselinePath)
	if err != nil {
		return fmt.Errorf("baseline report: %w", err)
	}
	candidate, err := loadReport(candidatePath)
	if err != nil {
		return fmt.Errorf("candidate report: %w", err)
	}

	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	log.Info().
		Str("baseline", baseline.StrategyID).
		Str("candidate", candidate.StrategyID).
		Msg("starting rollout")

	rec, err := rt.manager.StartOffline(ctx, rollout.StartInput{
		Baseline:  baseline,
		Candidate: candidate,
		Strategies: rollout.Strategies{
			Baseline:  baselineName,
			Candidate: candidateName,
		},
		Actor: actorFrom(cmd),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Rollout %s: %s\n\n", rec.RolloutID, colorState(rec.State))
	printVerdict("Offline gates", rec.OfflineGates.Passed, rec.OfflineGates.FailedIDs)
	printVerdict("Baseline comparison", rec.CompareVsBaseline.Passed, rec.CompareVsBaseline.FailedIDs)
	if rec.ArtifactsDir != "" {
		fmt.Printf("\nEvidence archived under %s\n", rec.ArtifactsDir)
	}
	if rec.State == rollout.StateAborted {
		fmt.Printf("\nAborted: %s\n", rec.AbortReason)
		return nil
	}
	fmt.Printf("\nNext: stratroll advance (enter paper soak)\n")
	return nil
}

func loadReport(path string) (*report.PerformanceReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return report.Parse(raw)
}
