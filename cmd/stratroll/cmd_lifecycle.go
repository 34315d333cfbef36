package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratops/stratroll/internal/rollout"
)

func runAdvance(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	note, _ := cmd.Flags().GetString("note")
	rec, err := rt.manager.Advance(ctx, "", actorFrom(cmd), note)
	if err != nil {
		if errors.Is(err, rollout.ErrApprovalRequired) {
			return fmt.Errorf("%w: run 'stratroll approve' to release the promotion", err)
		}
		if errors.Is(err, rollout.ErrEvaluationNotPassed) {
			return fmt.Errorf("%w: run 'stratroll evaluate' with fresh telemetry first", err)
		}
		return err
	}

	fmt.Printf("Rollout %s: %s\n", rec.RolloutID, colorState(rec.State))
	printRoutingLine(rec)
	if rec.State == rollout.StatePendingApproval {
		fmt.Printf("Holding for approval into %s. Next: stratroll approve\n", rec.ApprovalTarget)
	}
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	rec, err := rt.manager.Approve(ctx, "", actorFrom(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("Approved by %s\n", rec.ApprovedBy)
	fmt.Printf("Rollout %s: %s\n", rec.RolloutID, colorState(rec.State))
	printRoutingLine(rec)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	reason, _ := cmd.Flags().GetString("reason")
	rec, err := rt.manager.Reject(ctx, "", actorFrom(cmd), reason)
	if err != nil {
		return err
	}

	fmt.Printf("Rollout %s: %s\n", rec.RolloutID, colorState(rec.State))
	fmt.Printf("Reason: %s\n", rec.AbortReason)
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := commandContext()
	defer cancel()

	reason, _ := cmd.Flags().GetString("reason")
	rec, err := rt.manager.Rollback(ctx, "", actorFrom(cmd), reason, false)
	if err != nil {
		return err
	}

	fmt.Printf("Rollout %s: %s\n", rec.RolloutID, colorState(rec.State))
	printRoutingLine(rec)
	if snap := rec.RollbackSnapshot; snap != nil {
		fmt.Printf("Rolled back from %s (%s)\n", snap.PriorState, snap.Reason)
	}
	return nil
}
