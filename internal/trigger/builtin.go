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

package trigger

import (
	"fmt"
	"strings"

	"github.com/tombee/playbook/pkg/playbook"
)

// Signal fires when a raised signal's name equals the trigger's configured
// signal name. System signals (the reserved "system:" prefix) are excluded
// before trigger evaluation and additionally refused here.
type Signal struct{}

// Name implements Type.
func (Signal) Name() string { return TypeSignal }

// ShouldTrigger implements Type.
func (Signal) ShouldTrigger(step *playbook.TriggerStep, outputs map[string]any) Decision {
	if name, ok := outputs["signal"].(string); ok && strings.HasPrefix(name, ReservedSignalPrefix) {
		return Skip(fmt.Sprintf("signal %q is reserved", name))
	}
	return MatchExact(step.Inputs, outputs, "signal", false)
}

// Schedule fires on cron ticks. Tick routing already identified the exact
// trigger step, so the predicate itself has no conditions; the step's
// schedule and timezone inputs are consumed at publish time.
type Schedule struct{}

// Name implements Type.
func (Schedule) Name() string { return TypeSchedule }

// ShouldTrigger implements Type.
func (Schedule) ShouldTrigger(step *playbook.TriggerStep, outputs map[string]any) Decision {
	return Fire("scheduled tick")
}

// ConversationStarted fires when a customer conversation opens. An optional
// "segments" input narrows it to customers in any of the named segments
// (matched against the event's customer object, ignoring case), and an
// optional "channel" input pins it to one conversation channel.
type ConversationStarted struct{}

// Name implements Type.
func (ConversationStarted) Name() string { return TypeConversationStarted }

// ShouldTrigger implements Type.
func (ConversationStarted) ShouldTrigger(step *playbook.TriggerStep, outputs map[string]any) Decision {
	if _, ok := step.Inputs["channel"]; ok {
		if decision := MatchExact(step.Inputs, outputs, "channel", true); !decision.Fire {
			return decision
		}
	}
	return MatchMember(step.Inputs, outputs, "segments", "customer", true)
}
