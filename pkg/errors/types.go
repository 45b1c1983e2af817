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

package errors

import (
	"fmt"
	"strings"
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "playbook", "version", "run")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidDefinitionError is raised when a playbook definition fails
// structural validation at dispatch or publish time. At authoring entry
// points it propagates to the caller as a user-facing validation failure;
// at dispatch entry points it is caught and logged at the batch boundary.
type InvalidDefinitionError struct {
	// PlaybookID identifies the offending playbook, when known
	PlaybookID string

	// Diagnostics are the validation messages, in validator order
	Diagnostics []string
}

// Error implements the error interface.
func (e *InvalidDefinitionError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "playbook definition is invalid"
	}
	if e.PlaybookID != "" {
		return fmt.Sprintf("playbook %s definition is invalid: %s", e.PlaybookID, strings.Join(e.Diagnostics, "; "))
	}
	return fmt.Sprintf("playbook definition is invalid: %s", strings.Join(e.Diagnostics, "; "))
}

// UnknownTypeError signals that a step references a type the catalog does
// not know. This indicates the definition was validated against a stale
// catalog and is unrecoverable for the affected step.
type UnknownTypeError struct {
	// Kind is "trigger" or "action"
	Kind string

	// Name is the unresolved type name
	Name string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type: %s", e.Kind, e.Name)
}

// UnreachableError is raised by defensive switch branches when a closed
// enum carries a value no code path should produce. It indicates code or
// schema drift, not a runtime data problem.
type UnreachableError struct {
	// What describes the enum or state that drifted
	What string

	// Value is the unexpected value encountered
	Value any
}

// Error implements the error interface.
func (e *UnreachableError) Error() string {
	return fmt.Sprintf("unreachable state: %s has unexpected value %v", e.What, e.Value)
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
