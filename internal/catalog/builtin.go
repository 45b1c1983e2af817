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

package catalog

import (
	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/trigger"
)

// Builtins returns the engine's built-in trigger and action registrations.
func Builtins() []Registration {
	return []Registration{
		{
			Type: &StepType{
				Name: trigger.TypeSignal,
				Kind: KindTrigger,
				Inputs: []StepProperty{
					{Name: "signal", Kind: PropertyString, Required: true},
					{Name: "condition", Kind: PropertyString},
				},
				Outputs: []StepProperty{
					{Name: "signal", Kind: PropertyString},
				},
			},
			NewTrigger: func() trigger.Type { return trigger.Signal{} },
		},
		{
			Type: &StepType{
				Name: trigger.TypeSchedule,
				Kind: KindTrigger,
				Inputs: []StepProperty{
					{Name: "schedule", Kind: PropertyString, Required: true},
					{Name: "timezone", Kind: PropertyString, Aliases: []string{"tz"}},
					{Name: "condition", Kind: PropertyString},
				},
			},
			NewTrigger: func() trigger.Type { return trigger.Schedule{} },
		},
		{
			Type: &StepType{
				Name: trigger.TypeConversationStarted,
				Kind: KindTrigger,
				Inputs: []StepProperty{
					{Name: "segments", Kind: PropertyString},
					{Name: "channel", Kind: PropertyString},
					{Name: "condition", Kind: PropertyString},
				},
				Outputs: []StepProperty{
					{Name: "customer", Kind: PropertyString},
					{Name: "channel", Kind: PropertyString},
				},
				RequiredIntegrations: []string{ChatIntegration},
			},
			NewTrigger: func() trigger.Type { return trigger.ConversationStarted{} },
		},
		{
			Type: &StepType{
				Name: "utility:notify",
				Kind: KindAction,
				Inputs: []StepProperty{
					{Name: "message", Kind: PropertyString, Required: true, Aliases: []string{"text"}},
				},
			},
			NewExecutor: func() action.Executor { return action.Notify{} },
		},
		{
			Type: &StepType{
				Name: "utility:set-outputs",
				Kind: KindAction,
			},
			NewExecutor: func() action.Executor { return action.SetOutputs{} },
		},
		{
			Type: &StepType{
				Name: "utility:branch",
				Kind: KindAction,
				Inputs: []StepProperty{
					{Name: "branch", Kind: PropertyString, Required: true},
				},
			},
			NewExecutor: func() action.Executor { return action.Branch{} },
		},
		{
			Type: &StepType{
				Name: "utility:complete-playbook",
				Kind: KindAction,
			},
			NewExecutor: func() action.Executor { return action.Complete{} },
		},
		{
			Type: &StepType{
				Name: "utility:wait",
				Kind: KindAction,
				Inputs: []StepProperty{
					{Name: "seconds", Kind: PropertyNumber, Required: true},
				},
				Outputs: []StepProperty{
					{Name: "waited_from", Kind: PropertyString},
				},
			},
			NewExecutor: func() action.Executor { return action.Wait{} },
		},
	}
}

// NewBuiltin builds a catalog with every built-in registration.
func NewBuiltin(flags featureflags.Checker) (*Catalog, error) {
	return New(flags, Builtins()...)
}
