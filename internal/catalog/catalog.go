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

// Package catalog maintains the step-type registry: metadata describing
// every known trigger and action type, plus the factories producing their
// behavior. The catalog is immutable after construction and safe to share
// across concurrent requests.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/trigger"
	"github.com/tombee/playbook/pkg/playbook"
)

// Kind distinguishes trigger types from action types.
type Kind string

const (
	KindTrigger Kind = "Trigger"
	KindAction  Kind = "Action"
)

// PropertyKind is the declared value type of a step property.
type PropertyKind string

const (
	PropertyString  PropertyKind = "string"
	PropertyNumber  PropertyKind = "number"
	PropertyBoolean PropertyKind = "boolean"
)

// ChatIntegration is the platform chat integration, implicitly enabled for
// any organization with the bot installed.
const ChatIntegration = "chat"

// StepProperty describes one declared input or output of a step type.
type StepProperty struct {
	Name     string       `json:"name"`
	Kind     PropertyKind `json:"kind"`
	Required bool         `json:"required,omitempty"`

	// Aliases are old property names accepted for stored definitions
	// written before a rename.
	Aliases []string `json:"aliases,omitempty"`
}

// StepType is the registry metadata for one step type. It is not part of
// the serializable definition; definitions reference types by name only.
type StepType struct {
	Name     string         `json:"name"`
	Kind     Kind           `json:"kind"`
	Inputs   []StepProperty `json:"inputs,omitempty"`
	Outputs  []StepProperty `json:"outputs,omitempty"`
	Branches []string       `json:"branches,omitempty"`

	// Visibility gates.
	StaffOnly            bool     `json:"staffOnly,omitempty"`
	RequiredFlags        []string `json:"requiredFlags,omitempty"`
	RequiredIntegrations []string `json:"requiredIntegrations,omitempty"`

	Deprecated bool `json:"deprecated,omitempty"`
}

// Input returns the declared input with the given name, resolving aliases,
// and whether it exists.
func (t *StepType) Input(name string) (StepProperty, bool) {
	for _, p := range t.Inputs {
		if p.Name == name {
			return p, true
		}
		for _, alias := range p.Aliases {
			if alias == name {
				return p, true
			}
		}
	}
	return StepProperty{}, false
}

// ValidateStepType checks a registry-side step type declaration. This runs
// once at catalog construction and a failure is fatal: it indicates a
// programming error in a built-in type, not user data.
func ValidateStepType(t *StepType) error {
	if t == nil {
		return fmt.Errorf("step type is nil")
	}
	if !playbook.IsValidStepTypeName(t.Name) {
		return fmt.Errorf("step type name %q is invalid", t.Name)
	}
	if t.Kind != KindTrigger && t.Kind != KindAction {
		return fmt.Errorf("step type %q has unknown kind %q", t.Name, t.Kind)
	}
	for _, p := range append(append([]StepProperty{}, t.Inputs...), t.Outputs...) {
		if !playbook.IsValidIdentifier(p.Name) {
			return fmt.Errorf("step type %q declares invalid property name %q", t.Name, p.Name)
		}
		for _, alias := range p.Aliases {
			if !playbook.IsValidIdentifier(alias) {
				return fmt.Errorf("step type %q declares invalid alias %q for property %q", t.Name, alias, p.Name)
			}
		}
	}
	for _, b := range t.Branches {
		if !playbook.IsValidIdentifier(b) {
			return fmt.Errorf("step type %q declares invalid branch name %q", t.Name, b)
		}
	}
	return nil
}

// Registration binds a step type's metadata to its behavior factory.
// Trigger registrations set NewTrigger, action registrations NewExecutor.
type Registration struct {
	Type        *StepType
	NewTrigger  func() trigger.Type
	NewExecutor func() action.Executor
}

// Catalog is the immutable name-to-type index.
type Catalog struct {
	types     map[string]*StepType
	triggers  map[string]func() trigger.Type
	executors map[string]func() action.Executor
	ordered   []*StepType
	flags     featureflags.Checker
}

// New builds a catalog from the given registrations, validating every step
// type. Any invalid registration fails construction.
func New(flags featureflags.Checker, regs ...Registration) (*Catalog, error) {
	c := &Catalog{
		types:     make(map[string]*StepType, len(regs)),
		triggers:  make(map[string]func() trigger.Type),
		executors: make(map[string]func() action.Executor),
		flags:     flags,
	}
	for _, reg := range regs {
		if err := ValidateStepType(reg.Type); err != nil {
			return nil, err
		}
		name := reg.Type.Name
		if _, exists := c.types[name]; exists {
			return nil, fmt.Errorf("step type %q registered twice", name)
		}
		switch reg.Type.Kind {
		case KindTrigger:
			if reg.NewTrigger == nil {
				return nil, fmt.Errorf("trigger type %q has no behavior factory", name)
			}
			c.triggers[name] = reg.NewTrigger
		case KindAction:
			if reg.NewExecutor == nil {
				return nil, fmt.Errorf("action type %q has no executor factory", name)
			}
			c.executors[name] = reg.NewExecutor
		}
		c.types[name] = reg.Type
		c.ordered = append(c.ordered, reg.Type)
	}
	return c, nil
}

// TryGetType returns the metadata for a type name, or nil when unknown.
func (c *Catalog) TryGetType(name string) *StepType {
	return c.types[name]
}

// TryGetTriggerType returns a fresh trigger behavior for the named type and
// whether the type is a known trigger.
func (c *Catalog) TryGetTriggerType(name string) (trigger.Type, bool) {
	factory, ok := c.triggers[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// TryGetActionType implements action.TypeResolver.
func (c *Catalog) TryGetActionType(name string) (func() action.Executor, bool) {
	factory, ok := c.executors[name]
	return factory, ok
}

// OrganizationInfo is the projection input describing the organization a
// type listing is computed for.
type OrganizationInfo struct {
	ID           string
	BotInstalled bool
	Integrations []string
}

// Projection is the result of AllTypes: the visible types plus the flag
// and integration state they were filtered against.
type Projection struct {
	Types []*StepType

	// ActiveFlags are the required feature flags, across all types, that
	// are enabled for the requesting actor.
	ActiveFlags []string

	// EnabledIntegrations are the organization's integrations, including
	// the chat integration when the bot is installed.
	EnabledIntegrations []string
}

// AllTypes returns the type list visible to the given actor, in
// registration order, together with the active flags and enabled
// integrations. Staff-only types are hidden from non-staff actors. The
// projection is read-only; it never mutates the catalog.
func (c *Catalog) AllTypes(ctx context.Context, org OrganizationInfo, actor featureflags.Actor) Projection {
	integrations := append([]string{}, org.Integrations...)
	if org.BotInstalled && !containsFold(integrations, ChatIntegration) {
		integrations = append(integrations, ChatIntegration)
	}

	activeSet := make(map[string]bool)
	var types []*StepType
	for _, t := range c.ordered {
		if t.StaffOnly && !actor.Staff {
			continue
		}
		for _, flag := range t.RequiredFlags {
			if !activeSet[flag] && c.flags.IsEnabled(ctx, flag, actor) {
				activeSet[flag] = true
			}
		}
		types = append(types, t)
	}

	var active []string
	for _, t := range c.ordered {
		for _, flag := range t.RequiredFlags {
			if activeSet[flag] {
				active = append(active, flag)
				activeSet[flag] = false
			}
		}
	}

	return Projection{
		Types:               types,
		ActiveFlags:         active,
		EnabledIntegrations: integrations,
	}
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}
