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
	"testing"

	"github.com/tombee/playbook/internal/expression"
	"github.com/tombee/playbook/pkg/playbook"
)

func TestMatchExact(t *testing.T) {
	tests := []struct {
		name       string
		inputs     map[string]any
		outputs    map[string]any
		ignoreCase bool
		wantFire   bool
	}{
		{
			name:     "exact match",
			inputs:   map[string]any{"signal": "ticket-created"},
			outputs:  map[string]any{"signal": "ticket-created"},
			wantFire: true,
		},
		{
			name:     "different value",
			inputs:   map[string]any{"signal": "ticket-created"},
			outputs:  map[string]any{"signal": "ticket-closed"},
			wantFire: false,
		},
		{
			name:     "case differs, case sensitive",
			inputs:   map[string]any{"signal": "Ticket"},
			outputs:  map[string]any{"signal": "ticket"},
			wantFire: false,
		},
		{
			name:       "case differs, case insensitive",
			inputs:     map[string]any{"signal": "Ticket"},
			outputs:    map[string]any{"signal": "ticket"},
			ignoreCase: true,
			wantFire:   true,
		},
		{
			name:     "input not configured",
			inputs:   map[string]any{},
			outputs:  map[string]any{"signal": "ticket-created"},
			wantFire: false,
		},
		{
			name:     "input not a string",
			inputs:   map[string]any{"signal": 42},
			outputs:  map[string]any{"signal": "42"},
			wantFire: false,
		},
		{
			name:     "output missing",
			inputs:   map[string]any{"signal": "ticket-created"},
			outputs:  map[string]any{},
			wantFire: false,
		},
		{
			name:     "output not a string",
			inputs:   map[string]any{"signal": "42"},
			outputs:  map[string]any{"signal": 42},
			wantFire: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := MatchExact(tt.inputs, tt.outputs, "signal", tt.ignoreCase)
			if decision.Fire != tt.wantFire {
				t.Errorf("Fire = %v, want %v (reason: %s)", decision.Fire, tt.wantFire, decision.Reason)
			}
			if decision.Reason == "" {
				t.Error("Reason should always be populated")
			}
		})
	}
}

func TestMatchMember(t *testing.T) {
	tests := []struct {
		name     string
		inputs   map[string]any
		outputs  map[string]any
		optional bool
		wantFire bool
	}{
		{
			name:     "single string input matches string output",
			inputs:   map[string]any{"segments": "enterprise"},
			outputs:  map[string]any{"customer": "enterprise"},
			wantFire: true,
		},
		{
			name:     "list input overlaps object segments",
			inputs:   map[string]any{"segments": []any{"smb", "enterprise"}},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"Enterprise"}}},
			wantFire: true,
		},
		{
			name:     "no overlap",
			inputs:   map[string]any{"segments": "smb"},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"enterprise"}}},
			wantFire: false,
		},
		{
			name:     "empty input optional matches all",
			inputs:   map[string]any{},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"enterprise"}}},
			optional: true,
			wantFire: true,
		},
		{
			name:     "empty input required does not match",
			inputs:   map[string]any{},
			outputs:  map[string]any{"customer": "enterprise"},
			wantFire: false,
		},
		{
			name:     "output missing",
			inputs:   map[string]any{"segments": "enterprise"},
			outputs:  map[string]any{},
			wantFire: false,
		},
		{
			name:     "output carries no candidates",
			inputs:   map[string]any{"segments": "enterprise"},
			outputs:  map[string]any{"customer": 7},
			wantFire: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := MatchMember(tt.inputs, tt.outputs, "segments", "customer", tt.optional)
			if decision.Fire != tt.wantFire {
				t.Errorf("Fire = %v, want %v (reason: %s)", decision.Fire, tt.wantFire, decision.Reason)
			}
		})
	}
}

func TestSignalShouldTrigger(t *testing.T) {
	step := &playbook.TriggerStep{
		ID:     "on-signal",
		Type:   TypeSignal,
		Inputs: map[string]any{"signal": "escalation"},
	}

	if d := (Signal{}).ShouldTrigger(step, map[string]any{"signal": "escalation"}); !d.Fire {
		t.Errorf("matching signal should fire, got: %s", d.Reason)
	}
	if d := (Signal{}).ShouldTrigger(step, map[string]any{"signal": "other"}); d.Fire {
		t.Error("non-matching signal should not fire")
	}
}

func TestSignalReservedPrefix(t *testing.T) {
	// Even a trigger configured for a reserved name never fires.
	step := &playbook.TriggerStep{
		ID:     "on-system",
		Type:   TypeSignal,
		Inputs: map[string]any{"signal": "system:maintenance"},
	}
	d := (Signal{}).ShouldTrigger(step, map[string]any{"signal": "system:maintenance"})
	if d.Fire {
		t.Error("reserved signal should never fire a trigger")
	}
}

func TestScheduleShouldTrigger(t *testing.T) {
	step := &playbook.TriggerStep{ID: "nightly", Type: TypeSchedule}
	if d := (Schedule{}).ShouldTrigger(step, nil); !d.Fire {
		t.Errorf("schedule trigger should always fire on its tick, got: %s", d.Reason)
	}
}

func TestConversationStartedShouldTrigger(t *testing.T) {
	tests := []struct {
		name     string
		inputs   map[string]any
		outputs  map[string]any
		wantFire bool
	}{
		{
			name:     "no filters fires for everyone",
			inputs:   map[string]any{},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"smb"}}},
			wantFire: true,
		},
		{
			name:     "segment filter matches",
			inputs:   map[string]any{"segments": "enterprise"},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"Enterprise", "eu"}}},
			wantFire: true,
		},
		{
			name:     "segment filter does not match",
			inputs:   map[string]any{"segments": "enterprise"},
			outputs:  map[string]any{"customer": map[string]any{"segments": []any{"smb"}}},
			wantFire: false,
		},
		{
			name:     "channel filter matches ignoring case",
			inputs:   map[string]any{"channel": "Email"},
			outputs:  map[string]any{"channel": "email", "customer": map[string]any{}},
			wantFire: true,
		},
		{
			name:     "channel filter rejects other channel",
			inputs:   map[string]any{"channel": "email"},
			outputs:  map[string]any{"channel": "chat", "customer": map[string]any{}},
			wantFire: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &playbook.TriggerStep{ID: "t", Type: TypeConversationStarted, Inputs: tt.inputs}
			d := (ConversationStarted{}).ShouldTrigger(step, tt.outputs)
			if d.Fire != tt.wantFire {
				t.Errorf("Fire = %v, want %v (reason: %s)", d.Fire, tt.wantFire, d.Reason)
			}
		})
	}
}

func TestEvaluateCondition(t *testing.T) {
	eval := expression.New()

	tests := []struct {
		name      string
		condition any
		outputs   map[string]any
		wantFire  bool
	}{
		{
			name:      "no condition fires",
			condition: nil,
			outputs:   map[string]any{"signal": "go"},
			wantFire:  true,
		},
		{
			name:      "passing condition fires",
			condition: `outputs.priority == "high"`,
			outputs:   map[string]any{"signal": "go", "priority": "high"},
			wantFire:  true,
		},
		{
			name:      "failing condition skips",
			condition: `outputs.priority == "high"`,
			outputs:   map[string]any{"signal": "go", "priority": "low"},
			wantFire:  false,
		},
		{
			name:      "broken condition skips instead of faulting",
			condition: `outputs.priority ==`,
			outputs:   map[string]any{"signal": "go"},
			wantFire:  false,
		},
		{
			name:      "non-string condition is ignored",
			condition: true,
			outputs:   map[string]any{"signal": "go"},
			wantFire:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := map[string]any{"signal": "go"}
			if tt.condition != nil {
				inputs[ConditionInput] = tt.condition
			}
			step := &playbook.TriggerStep{ID: "t", Type: TypeSignal, Inputs: inputs}
			d := Evaluate(Signal{}, eval, step, tt.outputs)
			if d.Fire != tt.wantFire {
				t.Errorf("Fire = %v, want %v (reason: %s)", d.Fire, tt.wantFire, d.Reason)
			}
		})
	}
}

func TestEvaluateConditionOnlyAfterPredicate(t *testing.T) {
	eval := expression.New()
	// Predicate fails; the (broken) condition must not be consulted.
	step := &playbook.TriggerStep{
		ID:   "t",
		Type: TypeSignal,
		Inputs: map[string]any{
			"signal":       "expected",
			ConditionInput: "outputs.broken ==",
		},
	}
	d := Evaluate(Signal{}, eval, step, map[string]any{"signal": "other"})
	if d.Fire {
		t.Error("predicate mismatch should skip")
	}
}
