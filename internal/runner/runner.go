// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner drives step-by-step execution of dispatched runs.
//
// The runner consumes execute and cancel messages from the bus. For each
// step it rebuilds the template context from the run's persisted results,
// resolves the step's inputs, executes it through the action dispatcher,
// and applies the result: advance, branch, suspend, or finish. State is
// persisted after every step, so a run can resume from storage alone.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/internal/bus"
	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/internal/template"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
)

// Runner executes dispatched runs.
type Runner struct {
	runs     store.RunStore
	catalog  *catalog.Catalog
	actions  *action.Dispatcher
	consumer bus.Consumer
	logger   *slog.Logger
}

// New creates a Runner.
func New(runs store.RunStore, cat *catalog.Catalog, consumer bus.Consumer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		runs:     runs,
		catalog:  cat,
		actions:  action.NewDispatcher(cat, logger),
		consumer: consumer,
		logger:   log.WithComponent(logger, "runner"),
	}
}

// Run consumes bus messages until the context is cancelled or the bus
// closes. Message handling errors are logged; the loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	for {
		msg, err := r.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch {
		case msg.Execute != nil:
			if err := r.ExecuteRun(ctx, msg.Execute.RunID); err != nil {
				r.logger.Error("run execution failed",
					log.RunIDKey, msg.Execute.RunID,
					log.Error(err))
			}
		case msg.Cancel != nil:
			if err := r.CancelRun(ctx, msg.Cancel.RunID); err != nil {
				r.logger.Error("run cancellation failed",
					log.RunIDKey, msg.Cancel.RunID,
					log.Error(err))
			}
		}
	}
}

// ExecuteRun starts or resumes one run, executing steps until the run
// suspends, finishes, or fails.
func (r *Runner) ExecuteRun(ctx context.Context, runID string) error {
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	logger := log.WithRunContext(r.logger, run.ID, run.PlaybookID)

	switch run.State {
	case store.RunStateCompleted, store.RunStateFailed, store.RunStateCancelled:
		logger.Info("ignoring execute message for finished run", "state", run.State)
		return nil
	}

	def, err := playbook.Deserialize(run.Definition)
	if err != nil || def == nil {
		return fmt.Errorf("run %s carries an unreadable definition: %w", run.ID, err)
	}

	// Position at the next action: the persisted cursor, or the first
	// action of the start sequence on a fresh run.
	ref := run.Properties.CurrentAction
	if ref == nil {
		start := def.Sequences[def.StartSequence]
		if start == nil || len(start.Actions) == 0 {
			return r.finish(ctx, run, store.RunStateCompleted)
		}
		first := start.Actions[0]
		ref = &playbook.ActionReference{
			SequenceID: def.StartSequence,
			ActionID:   first.ID,
		}
	}

	run.State = store.RunStateRunning
	for {
		step := def.FindAction(*ref)
		if step == nil {
			// The cursor points past the definition; treat as done.
			return r.finish(ctx, run, store.RunStateCompleted)
		}

		result, err := r.executeStep(ctx, logger, run, step)
		if err != nil {
			// Unknown action type or an executor fault. Record it on
			// the step and fail the run; this is not recoverable by
			// retrying the same frozen definition.
			run.Properties.StepResults[step.ID] = action.Failed(err.Error())
			appendOrder(run, step.ID)
			logger.Error("step execution failed", log.StepIDKey, step.ID, log.Error(err))
			return r.finish(ctx, run, store.RunStateFailed)
		}

		next, done, err := r.applyResult(ctx, logger, run, def, ref, step, result)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		ref = next

		run.Properties.CurrentAction = ref
		if err := r.runs.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to persist run progress: %w", err)
		}
	}
}

// executeStep resolves inputs and invokes the executor for one step.
func (r *Runner) executeStep(ctx context.Context, logger *slog.Logger, run *store.Run, step *playbook.ActionStep) (*action.StepResult, error) {
	st := r.catalog.TryGetType(step.Type)
	if st == nil {
		return nil, &errors.UnknownTypeError{Kind: "action", Name: step.Type}
	}

	tctx := r.buildContext(run)
	inputs, err := template.ResolveInputs(st, step.Inputs, tctx)
	if err != nil {
		return nil, err
	}

	var suspendState map[string]any
	if run.Properties.SuspendedStepID == step.ID {
		suspendState = run.Properties.SuspendState
	}

	return r.actions.ExecuteStep(ctx, &action.StepContext{
		Step:           step,
		Inputs:         inputs,
		RunID:          run.ID,
		OrganizationID: run.OrganizationID,
		SuspendState:   suspendState,
		Logger:         logger.With(log.StepIDKey, step.ID),
	})
}

// applyResult records a step result and computes the next cursor. done is
// true when the run reached a terminal or suspended state.
func (r *Runner) applyResult(ctx context.Context, logger *slog.Logger, run *store.Run, def *playbook.Definition, ref *playbook.ActionReference, step *playbook.ActionStep, result *action.StepResult) (*playbook.ActionReference, bool, error) {
	// The suspend bag only survives a Suspended outcome.
	recorded := *result
	if result.Outcome != action.OutcomeSuspended {
		recorded.SuspendState = nil
	}
	run.Properties.StepResults[step.ID] = &recorded
	if result.Outcome != action.OutcomeSuspended {
		appendOrder(run, step.ID)
		r.clearSuspension(run)
	}

	switch result.Outcome {
	case action.OutcomeSuspended:
		now := time.Now().UTC()
		run.Properties.SuspendedStepID = step.ID
		run.Properties.SuspendedAt = &now
		run.Properties.SuspendState = result.SuspendState
		run.Properties.CurrentAction = ref
		run.State = store.RunStateSuspended
		if err := r.runs.UpdateRun(ctx, run); err != nil {
			return nil, true, fmt.Errorf("failed to persist suspension: %w", err)
		}
		logger.Info("run suspended", log.StepIDKey, step.ID)
		return nil, true, nil

	case action.OutcomeFailed:
		logger.Info("run failed", log.StepIDKey, step.ID, "problem", result.Problem)
		return nil, true, r.finish(ctx, run, store.RunStateFailed)

	case action.OutcomeCancelled:
		return nil, true, r.finish(ctx, run, store.RunStateCancelled)

	case action.OutcomeCompletePlaybook:
		return nil, true, r.finish(ctx, run, store.RunStateCompleted)

	case action.OutcomeSucceeded:
		// Branch redirects are honored on success only.
		if result.CallBranch != nil {
			target := def.Sequences[result.CallBranch.Sequence]
			if target == nil || len(target.Actions) == 0 {
				return nil, true, r.finish(ctx, run, store.RunStateCompleted)
			}
			return &playbook.ActionReference{
				SequenceID: result.CallBranch.Sequence,
				ActionID:   target.Actions[0].ID,
			}, false, nil
		}

		seq := def.Sequences[ref.SequenceID]
		next := indexOf(seq, step.ID) + 1
		if next >= len(seq.Actions) {
			return nil, true, r.finish(ctx, run, store.RunStateCompleted)
		}
		return &playbook.ActionReference{
			SequenceID:  ref.SequenceID,
			ActionID:    seq.Actions[next].ID,
			ActionIndex: next,
		}, false, nil

	default:
		return nil, true, &errors.UnreachableError{What: "step outcome", Value: result.Outcome}
	}
}

// CancelRun cancels a run, disposing its suspended step best-effort.
func (r *Runner) CancelRun(ctx context.Context, runID string) error {
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	logger := log.WithRunContext(r.logger, run.ID, run.PlaybookID)

	switch run.State {
	case store.RunStateCompleted, store.RunStateFailed, store.RunStateCancelled:
		logger.Info("ignoring cancel for finished run", "state", run.State)
		return nil
	}

	if run.State == store.RunStateSuspended && run.Properties.SuspendedStepID != "" {
		def, err := playbook.Deserialize(run.Definition)
		if err == nil && def != nil {
			if ref, ok := def.ReferenceTo(run.Properties.SuspendedStepID); ok {
				step := def.FindAction(ref)
				if step != nil {
					err := r.actions.DisposeSuspendedStep(ctx, &action.StepContext{
						Step:           step,
						RunID:          run.ID,
						OrganizationID: run.OrganizationID,
						SuspendState:   run.Properties.SuspendState,
						Logger:         logger,
					})
					if err != nil {
						logger.Warn("suspended step cleanup failed", log.Error(err))
					}
				}
			}
		}
	}

	logger.Info("run cancelled")
	return r.finish(ctx, run, store.RunStateCancelled)
}

func (r *Runner) finish(ctx context.Context, run *store.Run, state string) error {
	now := time.Now().UTC()
	run.State = state
	run.CompletedAt = &now
	r.clearSuspension(run)
	return r.runs.UpdateRun(ctx, run)
}

func (r *Runner) clearSuspension(run *store.Run) {
	run.Properties.SuspendedStepID = ""
	run.Properties.SuspendedAt = nil
	run.Properties.SuspendState = nil
}

// buildContext folds the run's persisted step results into a template
// context, in recorded execution order.
func (r *Runner) buildContext(run *store.Run) *template.Context {
	records := make([]template.StepRecord, 0, len(run.Properties.StepOrder))
	for _, id := range run.Properties.StepOrder {
		result, ok := run.Properties.StepResults[id]
		if !ok {
			continue
		}
		records = append(records, template.StepRecord{
			ID:      id,
			Outcome: string(result.Outcome),
			Outputs: result.Outputs,
		})
	}
	return template.Build(records)
}

func appendOrder(run *store.Run, stepID string) {
	for _, id := range run.Properties.StepOrder {
		if id == stepID {
			return
		}
	}
	run.Properties.StepOrder = append(run.Properties.StepOrder, stepID)
}

func indexOf(seq *playbook.ActionSequence, actionID string) int {
	if seq == nil {
		return -1
	}
	for i, a := range seq.Actions {
		if a != nil && a.ID == actionID {
			return i
		}
	}
	return -1
}
