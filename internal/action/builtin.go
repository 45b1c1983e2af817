package action

// Builtin utility actions. These are the engine's own step types;
// integration-specific actions register through the same catalog mechanism
// from their host packages.

import (
	"context"
	"fmt"
	"time"
)

// Notify posts a user-facing notice into run history.
type Notify struct{}

// ExecuteStep implements Executor.
func (Notify) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	message, _ := sc.Inputs["message"].(string)
	if message == "" {
		return Failed("notify requires a message"), nil
	}
	return &StepResult{
		Outcome: OutcomeSucceeded,
		Notices: []string{message},
	}, nil
}

// SetOutputs copies its inputs into the run's template context, so later
// steps can reference computed values under stable names.
type SetOutputs struct{}

// ExecuteStep implements Executor.
func (SetOutputs) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	outputs := make(map[string]any, len(sc.Inputs))
	for k, v := range sc.Inputs {
		outputs[k] = v
	}
	return Succeeded(outputs), nil
}

// Branch succeeds and redirects execution to the sequence bound to the
// configured branch name.
type Branch struct{}

// ExecuteStep implements Executor.
func (Branch) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	name, _ := sc.Inputs["branch"].(string)
	if name == "" {
		return Failed("branch requires a branch name"), nil
	}
	target, ok := sc.Step.Branches[name]
	if !ok {
		return Failed(fmt.Sprintf("step %q declares no branch %q", sc.Step.ID, name)), nil
	}
	return &StepResult{
		Outcome:    OutcomeSucceeded,
		CallBranch: &BranchCall{Branch: name, Sequence: target},
	}, nil
}

// Complete ends the whole run successfully, regardless of remaining steps.
type Complete struct{}

// ExecuteStep implements Executor.
func (Complete) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	return &StepResult{Outcome: OutcomeCompletePlaybook}, nil
}

// Wait suspends the run for a configured number of seconds. On resume it
// succeeds, recording when the wait started. It exercises the full
// suspend/resume contract including disposal.
type Wait struct{}

// ExecuteStep implements Executor.
func (Wait) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	if sc.SuspendState != nil {
		return Succeeded(map[string]any{
			"waited_from": sc.SuspendState["suspended_at"],
		}), nil
	}

	seconds, ok := toSeconds(sc.Inputs["seconds"])
	if !ok || seconds <= 0 {
		return Failed("wait requires a positive seconds input"), nil
	}
	now := time.Now().UTC()
	until := now.Add(time.Duration(seconds) * time.Second)
	return &StepResult{
		Outcome:          OutcomeSuspended,
		SuspendUntil:     &until,
		SuspendPresenter: "wait",
		SuspendState: map[string]any{
			"suspended_at": now.Format(time.RFC3339),
		},
	}, nil
}

// DisposeSuspendedStep implements SuspendDisposer. Wait holds no external
// resources, so cancellation only logs.
func (Wait) DisposeSuspendedStep(ctx context.Context, sc *StepContext) error {
	if sc.Logger != nil {
		sc.Logger.Debug("discarding pending wait", "step_id", sc.Step.ID)
	}
	return nil
}

func toSeconds(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
