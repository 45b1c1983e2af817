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

// Package featureflags provides the capability query the engine consults for
// gated behavior. Flag state is an external input: the engine never caches
// it, it asks per call.
package featureflags

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Known flag names.
const (
	// FlagMultiDispatch gates ByCustomer fan-out. When disabled for an
	// organization, dispatch is forced to a single run regardless of the
	// definition's dispatch settings. This is a rollout kill-switch.
	FlagMultiDispatch = "playbook-multi-dispatch"

	// FlagStaffTools gates staff-only step types in catalog projections.
	FlagStaffTools = "playbook-staff-tools"
)

// Actor identifies who a flag check is evaluated for.
type Actor struct {
	// MemberID is the acting member, empty for the system actor.
	MemberID string

	// OrganizationID scopes organization-level flags.
	OrganizationID string

	// Staff marks platform staff members.
	Staff bool
}

// Checker answers feature flag queries. Implementations must be safe for
// concurrent use.
type Checker interface {
	IsEnabled(ctx context.Context, flag string, actor Actor) bool
}

// StaticChecker is a fixed flag table, suitable for tests and single-tenant
// deployments.
type StaticChecker struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewStaticChecker creates a checker with the given enabled flags.
func NewStaticChecker(enabled ...string) *StaticChecker {
	flags := make(map[string]bool, len(enabled))
	for _, f := range enabled {
		flags[f] = true
	}
	return &StaticChecker{flags: flags}
}

// IsEnabled implements Checker.
func (c *StaticChecker) IsEnabled(_ context.Context, flag string, _ Actor) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags[flag]
}

// Set enables or disables a flag (for testing).
func (c *StaticChecker) Set(flag string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[flag] = enabled
}

// EnvChecker reads flag state from environment variables, overriding a set
// of defaults. A flag named "playbook-multi-dispatch" maps to the variable
// PLAYBOOK_FLAG_MULTI_DISPATCH.
type EnvChecker struct {
	mu       sync.RWMutex
	defaults map[string]bool
}

// NewEnvChecker creates an environment-backed checker with the given
// defaults.
func NewEnvChecker(defaults map[string]bool) *EnvChecker {
	if defaults == nil {
		defaults = make(map[string]bool)
	}
	return &EnvChecker{defaults: defaults}
}

// IsEnabled implements Checker. Environment variables override defaults.
func (c *EnvChecker) IsEnabled(_ context.Context, flag string, _ Actor) bool {
	if val := os.Getenv(envName(flag)); val != "" {
		return parseBool(val)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults[flag]
}

// envName converts a flag name to its environment variable name.
func envName(flag string) string {
	name := strings.TrimPrefix(flag, "playbook-")
	name = strings.ReplaceAll(name, "-", "_")
	return "PLAYBOOK_FLAG_" + strings.ToUpper(name)
}

// parseBool converts a string to a boolean value.
// Accepts: "1", "t", "T", "true", "TRUE", "True"
func parseBool(val string) bool {
	val = strings.TrimSpace(val)
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return false
}
