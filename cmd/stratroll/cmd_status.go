package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/rollout"
)

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	rolloutID := ""
	if len(args) == 1 {
		rolloutID = args[0]
	}
	rec, err := rt.manager.Status(ctx, rolloutID)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	renderRecord(rec)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := rt.manager.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No rollouts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLLOUT\tSTATE\tPHASE\tCANDIDATE\tWEIGHT\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			rec.RolloutID,
			rec.State,
			orDash(rec.CurrentPhase),
			rec.CandidateVersion.StrategyID,
			rec.Weights.CandidatePct,
			rec.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func renderRecord(rec *rollout.Record) {
	fmt.Printf("📦 Rollout %s\n", rec.RolloutID)
	fmt.Printf("═══════════════════════════════════════════\n\n")

	fmt.Printf("State: %s\n", colorState(rec.State))
	fmt.Printf("Baseline:  %s (%s)\n", rec.BaselineVersion.StrategyID, orDash(rec.BaselineVersion.StrategyName))
	fmt.Printf("Candidate: %s (%s)\n", rec.CandidateVersion.StrategyID, orDash(rec.CandidateVersion.StrategyName))
	fmt.Printf("Created: %s   Updated: %s\n\n",
		rec.CreatedAt.Format("2006-01-02 15:04:05 UTC"),
		rec.UpdatedAt.Format("2006-01-02 15:04:05 UTC"))

	fmt.Printf("🚦 Routing\n")
	fmt.Printf("──────────\n")
	fmt.Printf("Mode: %s   Baseline %d%% / Candidate %d%%",
		rec.Routing.Mode, rec.Weights.BaselinePct, rec.Weights.CandidatePct)
	if rec.Routing.ShadowOnly {
		fmt.Printf("   (shadow only, real execution 0%%)")
	}
	fmt.Printf("\n")
	if rec.Blending.Enabled {
		fmt.Printf("Blending: %s (alpha %.2f, dead band %.2f)\n",
			rec.Blending.Mode, rec.Blending.Alpha, rec.Blending.DeadBand)
	}
	fmt.Printf("\n")

	if rec.OfflineGates != nil || rec.CompareVsBaseline != nil {
		fmt.Printf("🔬 Offline evidence\n")
		fmt.Printf("───────────────────\n")
		if rec.OfflineGates != nil {
			printVerdict("Gates", rec.OfflineGates.Passed, rec.OfflineGates.FailedIDs)
		}
		if rec.CompareVsBaseline != nil {
			printVerdict("vs baseline", rec.CompareVsBaseline.Passed, rec.CompareVsBaseline.FailedIDs)
		}
		fmt.Printf("\n")
	}

	if len(rec.PhaseEvaluations) > 0 {
		fmt.Printf("📈 Phase verdicts\n")
		fmt.Printf("─────────────────\n")
		phases := make([]string, 0, len(rec.PhaseEvaluations))
		for phase := range rec.PhaseEvaluations {
			phases = append(phases, phase)
		}
		sort.Strings(phases)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, phase := range phases {
			ev := rec.PhaseEvaluations[phase]
			verdict := colorEvalStatus(ev.Status)
			detail := fmt.Sprintf("%.1fh/%.0fh", ev.ElapsedHrs, ev.MinHrs)
			if len(ev.FailedIDs) > 0 {
				detail += "  failed: " + strings.Join(ev.FailedIDs, ", ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", phase, verdict, detail)
		}
		w.Flush()
		fmt.Printf("\n")
	}

	if rec.State == rollout.StatePendingApproval {
		fmt.Printf("⏸  Awaiting approval into %s\n\n", rec.ApprovalTarget)
	}
	if rec.AbortReason != "" {
		fmt.Printf("🛑 Abort reason: %s\n\n", rec.AbortReason)
	}
	if snap := rec.RollbackSnapshot; snap != nil {
		fmt.Printf("↩️  Rolled back from %s at %s\n", snap.PriorState, snap.TS.Format("2006-01-02 15:04:05 UTC"))
		fmt.Printf("   Reason: %s\n", snap.Reason)
		if len(snap.HardFails) > 0 {
			fmt.Printf("   Hard fails: %s\n", strings.Join(snap.HardFails, ", "))
		}
		fmt.Printf("\n")
	}

	if entries := rec.History.Items(); len(entries) > 0 {
		fmt.Printf("🗒  Recent history\n")
		fmt.Printf("─────────────────\n")
		start := 0
		if len(entries) > 8 {
			start = len(entries) - 8
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, e := range entries[start:] {
			change := "-"
			if e.From != "" || e.To != "" {
				change = fmt.Sprintf("%s -> %s", e.From, e.To)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.TS.Format("01-02 15:04:05"), e.Event, change, orDash(e.Reason))
		}
		w.Flush()
	}
}

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiCyan   = "\033[36m"

	skipMarker = "○"
)

func okMarker(ok bool) string {
	if ok {
		return ansiGreen + "✓" + ansiReset
	}
	return ansiRed + "✗" + ansiReset
}

func colorState(s rollout.State) string {
	switch s {
	case rollout.StateCompleted, rollout.StateLiveStable:
		return ansiGreen + string(s) + ansiReset
	case rollout.StateAborted, rollout.StateRolledBack:
		return ansiRed + string(s) + ansiReset
	case rollout.StatePendingApproval:
		return ansiYellow + string(s) + ansiReset
	default:
		return ansiCyan + string(s) + ansiReset
	}
}

func colorEvalStatus(s rollout.EvalStatus) string {
	switch s {
	case rollout.EvalPass:
		return ansiGreen + string(s) + ansiReset
	case rollout.EvalFail:
		return ansiRed + string(s) + ansiReset
	default:
		return ansiYellow + string(s) + ansiReset
	}
}

func printVerdict(label string, passed bool, failedIDs []string) {
	if passed {
		fmt.Printf("%s %s: PASS\n", okMarker(true), label)
		return
	}
	fmt.Printf("%s %s: FAIL (%s)\n", okMarker(false), label, strings.Join(failedIDs, ", "))
}

func printRoutingLine(rec *rollout.Record) {
	fmt.Printf("Routing: %s, baseline %d%% / candidate %d%%\n",
		rec.Routing.Mode, rec.Weights.BaselinePct, rec.Weights.CandidatePct)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
