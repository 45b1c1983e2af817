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

// Package trigger implements trigger evaluation: deciding whether a
// specific trigger instance should fire for a given event.
package trigger

import (
	"fmt"

	"github.com/tombee/playbook/internal/expression"
	"github.com/tombee/playbook/pkg/playbook"
)

// Builtin trigger type names.
const (
	// TypeSignal fires when a named signal is raised in the organization.
	TypeSignal = "signal"
	// TypeSchedule fires on cron ticks installed at publish time.
	TypeSchedule = "schedule"
	// TypeConversationStarted fires when a customer conversation opens.
	TypeConversationStarted = "conversation-started"
)

// ReservedSignalPrefix marks system signals, which are never routed to
// playbooks.
const ReservedSignalPrefix = "system:"

// ConditionInput is the optional input key holding a boolean condition
// expression, honored on every trigger type.
const ConditionInput = "condition"

// Decision is the outcome of evaluating one trigger instance. Reason is
// always populated; it feeds debugging tooling, not end users.
type Decision struct {
	Fire   bool
	Reason string
}

// Fire returns a firing decision with the given reason.
func Fire(reason string) Decision { return Decision{Fire: true, Reason: reason} }

// Skip returns a non-firing decision with the given reason.
func Skip(reason string) Decision { return Decision{Fire: false, Reason: reason} }

// Type is the behavior of one trigger type. Implementations decide, given
// the trigger step's configured inputs and the event's outputs, whether
// this trigger instance fires. A fresh instance is constructed per
// evaluation.
type Type interface {
	Name() string
	ShouldTrigger(step *playbook.TriggerStep, outputs map[string]any) Decision
}

// Evaluate runs the trigger type's own predicate, then the step's optional
// condition expression. Both must pass for the trigger to fire. Expression
// errors are non-firing decisions, not faults: a broken condition should
// not take down dispatch for sibling playbooks.
func Evaluate(t Type, eval *expression.Evaluator, step *playbook.TriggerStep, outputs map[string]any) Decision {
	decision := t.ShouldTrigger(step, outputs)
	if !decision.Fire {
		return decision
	}

	raw, ok := step.Inputs[ConditionInput]
	if !ok {
		return decision
	}
	condition, ok := raw.(string)
	if !ok || condition == "" {
		return decision
	}

	pass, err := eval.Evaluate(condition, outputs)
	if err != nil {
		return Skip(fmt.Sprintf("condition error: %v", err))
	}
	if !pass {
		return Skip(fmt.Sprintf("condition %q evaluated to false", condition))
	}
	return Fire(decision.Reason + "; condition passed")
}
