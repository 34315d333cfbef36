package rollout

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveRollout is returned by operations that need an existing
	// rollout record when none has been started.
	ErrNoActiveRollout = errors.New("no active rollout")

	// ErrRolloutActive is returned by StartOffline while a prior rollout
	// is still in a non-terminal state. The operator must reject or roll
	// back the active rollout before starting a new one.
	ErrRolloutActive = errors.New("a rollout is already active")

	// ErrEvaluationNotPassed is returned by Advance when the current
	// phase's latest evaluation did not record a pass.
	ErrEvaluationNotPassed = errors.New("latest phase evaluation has not passed")

	// ErrApprovalRequired is returned by Advance from
	// PENDING_LIVE_APPROVAL; only Approve may leave that state.
	ErrApprovalRequired = errors.New("state requires explicit operator approval")

	// ErrRecordNotFound is returned by stores when no record matches.
	ErrRecordNotFound = errors.New("rollout record not found")

	// ErrRevisionConflict is returned by stores when a save loses the
	// compare-and-swap race on the record's revision.
	ErrRevisionConflict = errors.New("rollout record revision conflict")
)

// InvalidTransitionError reports a state change not present in the
// allowed-transition table. The record is never mutated when one is
// returned.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// WrongStateError reports an operation invoked from a state it does not
// support (for example Approve outside PENDING_LIVE_APPROVAL).
type WrongStateError struct {
	Op       string
	State    State
	Expected []State
}

func (e *WrongStateError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("operation %s not allowed in state %s", e.Op, e.State)
	}
	return fmt.Sprintf("operation %s not allowed in state %s (requires %v)", e.Op, e.State, e.Expected)
}
