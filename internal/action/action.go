// Package action defines the step execution contract: the result an
// executor produces, the executor interface itself, and the dispatcher that
// resolves a step's declared type to a fresh executor instance.
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
)

// Outcome is the terminal status of one step execution.
type Outcome string

const (
	// OutcomeSucceeded indicates the step completed and execution continues.
	OutcomeSucceeded Outcome = "Succeeded"
	// OutcomeFailed indicates the step failed; Problem is required.
	OutcomeFailed Outcome = "Failed"
	// OutcomeSuspended indicates the run pauses awaiting external input.
	OutcomeSuspended Outcome = "Suspended"
	// OutcomeCompletePlaybook ends the whole run successfully.
	OutcomeCompletePlaybook Outcome = "CompletePlaybook"
	// OutcomeCancelled ends the whole run as cancelled.
	OutcomeCancelled Outcome = "Cancelled"
)

// BranchCall names a branch chosen by a step's result together with the
// sequence the branch resolves to. Only honored when the outcome is
// Succeeded.
type BranchCall struct {
	Branch   string `json:"branch"`
	Sequence string `json:"sequence"`
}

// StepResult is what an executor returns from one invocation.
type StepResult struct {
	Outcome Outcome `json:"outcome"`

	// Problem describes the failure. Required when Outcome is Failed.
	Problem string `json:"problem,omitempty"`

	// Notices are user-facing messages surfaced in run history.
	Notices []string `json:"notices,omitempty"`

	// CallBranch redirects execution to another sequence.
	CallBranch *BranchCall `json:"callBranch,omitempty"`

	// SuspendUntil and SuspendPresenter describe a suspended step: when it
	// should be resumed and which presenter renders the waiting state.
	SuspendUntil     *time.Time `json:"suspendUntil,omitempty"`
	SuspendPresenter string     `json:"suspendPresenter,omitempty"`

	// SuspendState is the executor's opaque resume bag. Persisted only
	// when Outcome is Suspended, discarded otherwise.
	SuspendState map[string]any `json:"suspendState,omitempty"`

	// Outputs are merged into the run's template context for later steps.
	Outputs map[string]any `json:"outputs,omitempty"`
}

// Succeeded returns a success result with the given outputs.
func Succeeded(outputs map[string]any) *StepResult {
	return &StepResult{Outcome: OutcomeSucceeded, Outputs: outputs}
}

// Failed returns a failure result with the given problem description.
func Failed(problem string) *StepResult {
	return &StepResult{Outcome: OutcomeFailed, Problem: problem}
}

// StepContext carries everything one executor invocation needs.
type StepContext struct {
	// Step is the action being executed, with inputs already resolved and
	// coerced to their declared property kinds.
	Step *playbook.ActionStep

	// Inputs are the resolved input values.
	Inputs map[string]any

	// RunID identifies the owning run.
	RunID string

	// OrganizationID identifies the tenant.
	OrganizationID string

	// SuspendState is the bag persisted by a previous Suspended result,
	// nil on first execution.
	SuspendState map[string]any

	// Logger is scoped to the run and step.
	Logger *slog.Logger
}

// Executor runs one action step. A fresh instance is constructed per
// invocation; implementations must not assume reuse.
type Executor interface {
	ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error)
}

// SuspendDisposer is an optional executor capability: cleanup invoked when
// a suspended step's run is cancelled or abandoned.
type SuspendDisposer interface {
	DisposeSuspendedStep(ctx context.Context, sc *StepContext) error
}

// TypeResolver maps an action type name to an executor factory. The type
// catalog implements this.
type TypeResolver interface {
	// TryGetActionType returns the factory for the named action type and
	// whether the type is known.
	TryGetActionType(name string) (func() Executor, bool)
}

// Dispatcher resolves a step's type to an executor and invokes it.
type Dispatcher struct {
	types  TypeResolver
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by the given type resolver.
func NewDispatcher(types TypeResolver, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{types: types, logger: log.WithComponent(logger, "action")}
}

// ExecuteStep resolves the executor for the step's declared type and runs
// it. An unknown type is unrecoverable: it means the definition was
// validated against a different catalog than the one executing it.
func (d *Dispatcher) ExecuteStep(ctx context.Context, sc *StepContext) (*StepResult, error) {
	factory, ok := d.types.TryGetActionType(sc.Step.Type)
	if !ok {
		return nil, &errors.UnknownTypeError{Kind: "action", Name: sc.Step.Type}
	}
	// A new executor per invocation keeps executor state scoped to one
	// step and one run.
	return factory().ExecuteStep(ctx, sc)
}

// DisposeSuspendedStep runs best-effort cleanup for a suspended step whose
// run is being cancelled. An unknown type is a silent no-op here: the type
// may legitimately have been removed since the step suspended. Executors
// without the SuspendDisposer capability also no-op.
func (d *Dispatcher) DisposeSuspendedStep(ctx context.Context, sc *StepContext) error {
	factory, ok := d.types.TryGetActionType(sc.Step.Type)
	if !ok {
		d.logger.Debug("suspended step type no longer registered, skipping disposal",
			log.StepIDKey, sc.Step.ID,
			"step_type", sc.Step.Type)
		return nil
	}
	disposer, ok := factory().(SuspendDisposer)
	if !ok {
		return nil
	}
	return disposer.DisposeSuspendedStep(ctx, sc)
}
