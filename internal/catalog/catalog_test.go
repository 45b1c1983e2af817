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
	"context"
	"testing"

	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/trigger"
)

func TestValidateStepType(t *testing.T) {
	tests := []struct {
		name    string
		st      *StepType
		wantErr bool
	}{
		{
			name: "valid action",
			st: &StepType{
				Name:   "utility:notify",
				Kind:   KindAction,
				Inputs: []StepProperty{{Name: "message", Kind: PropertyString}},
			},
		},
		{
			name:    "nil type",
			st:      nil,
			wantErr: true,
		},
		{
			name:    "invalid type name",
			st:      &StepType{Name: "Not A Name", Kind: KindAction},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			st:      &StepType{Name: "x", Kind: "Widget"},
			wantErr: true,
		},
		{
			name: "invalid property name",
			st: &StepType{
				Name:   "x",
				Kind:   KindAction,
				Inputs: []StepProperty{{Name: "bad name"}},
			},
			wantErr: true,
		},
		{
			name: "invalid alias",
			st: &StepType{
				Name:   "x",
				Kind:   KindAction,
				Inputs: []StepProperty{{Name: "ok", Aliases: []string{"bad alias"}}},
			},
			wantErr: true,
		},
		{
			name: "invalid branch name",
			st: &StepType{
				Name:     "x",
				Kind:     KindAction,
				Branches: []string{"bad branch"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepType(tt.st)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStepType() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	reg := Registration{
		Type:        &StepType{Name: "x", Kind: KindAction},
		NewExecutor: func() action.Executor { return action.SetOutputs{} },
	}
	_, err := New(featureflags.NewStaticChecker(), reg, reg)
	if err == nil {
		t.Error("duplicate registration should fail construction")
	}
}

func TestNewRequiresFactories(t *testing.T) {
	_, err := New(featureflags.NewStaticChecker(), Registration{
		Type: &StepType{Name: "x", Kind: KindTrigger},
	})
	if err == nil {
		t.Error("trigger registration without factory should fail")
	}

	_, err = New(featureflags.NewStaticChecker(), Registration{
		Type: &StepType{Name: "x", Kind: KindAction},
	})
	if err == nil {
		t.Error("action registration without factory should fail")
	}
}

func TestTryGetTriggerTypeReturnsFreshInstances(t *testing.T) {
	cat, err := NewBuiltin(featureflags.NewStaticChecker())
	if err != nil {
		t.Fatalf("NewBuiltin() error = %v", err)
	}

	a, ok := cat.TryGetTriggerType(trigger.TypeSignal)
	if !ok {
		t.Fatal("signal trigger should be registered")
	}
	b, _ := cat.TryGetTriggerType(trigger.TypeSignal)
	if a == nil || b == nil {
		t.Fatal("factories should produce instances")
	}

	if _, ok := cat.TryGetTriggerType("utility:notify"); ok {
		t.Error("action types must not resolve as triggers")
	}
	if _, ok := cat.TryGetActionType(trigger.TypeSignal); ok {
		t.Error("trigger types must not resolve as actions")
	}
}

func TestInputResolvesAliases(t *testing.T) {
	cat, err := NewBuiltin(featureflags.NewStaticChecker())
	if err != nil {
		t.Fatalf("NewBuiltin() error = %v", err)
	}

	notify := cat.TryGetType("utility:notify")
	if notify == nil {
		t.Fatal("utility:notify should be registered")
	}
	prop, ok := notify.Input("text")
	if !ok || prop.Name != "message" {
		t.Errorf("alias lookup = (%v, %v), want canonical message property", prop, ok)
	}
}

func TestAllTypesStaffFiltering(t *testing.T) {
	staffOnly := Registration{
		Type:        &StepType{Name: "staff:debug", Kind: KindAction, StaffOnly: true},
		NewExecutor: func() action.Executor { return action.SetOutputs{} },
	}
	regs := append(Builtins(), staffOnly)
	cat, err := New(featureflags.NewStaticChecker(), regs...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	org := OrganizationInfo{ID: "org-1", BotInstalled: true}
	ctx := context.Background()

	visible := cat.AllTypes(ctx, org, featureflags.Actor{Staff: false})
	for _, st := range visible.Types {
		if st.Name == "staff:debug" {
			t.Error("staff-only type should be hidden from non-staff actors")
		}
	}

	staff := cat.AllTypes(ctx, org, featureflags.Actor{Staff: true})
	found := false
	for _, st := range staff.Types {
		if st.Name == "staff:debug" {
			found = true
		}
	}
	if !found {
		t.Error("staff actor should see staff-only types")
	}
}

func TestAllTypesChatIntegration(t *testing.T) {
	cat, err := NewBuiltin(featureflags.NewStaticChecker())
	if err != nil {
		t.Fatalf("NewBuiltin() error = %v", err)
	}
	ctx := context.Background()

	withBot := cat.AllTypes(ctx, OrganizationInfo{ID: "o", BotInstalled: true}, featureflags.Actor{})
	if !contains(withBot.EnabledIntegrations, ChatIntegration) {
		t.Error("bot installation should enable the chat integration")
	}

	withoutBot := cat.AllTypes(ctx, OrganizationInfo{ID: "o"}, featureflags.Actor{})
	if contains(withoutBot.EnabledIntegrations, ChatIntegration) {
		t.Error("chat integration should be absent without the bot")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
