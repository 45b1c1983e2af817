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

package scheduler

import (
	"context"
	"fmt"
)

// jobIDPrefix starts every recurring job id installed by the publisher.
const jobIDPrefix = "Playbook_"

// RecurringJob is one cron registration with the scheduler.
type RecurringJob struct {
	// ID is deterministic: Playbook_{playbookId}_{version}_{triggerId}.
	// Registering the same id twice replaces the earlier registration.
	// The id is only the registration key: playbook and trigger ids may
	// both contain underscores, so coordinates are never recovered from
	// it.
	ID string

	// PlaybookID, Version and TriggerID are the coordinates each tick
	// dispatches against.
	PlaybookID string
	Version    int
	TriggerID  string

	// Cron is a 5-field cron expression.
	Cron string

	// Timezone is an IANA timezone name, UTC when empty.
	Timezone string
}

// RecurringJobs is the external scheduler the publisher installs schedule
// triggers with.
type RecurringJobs interface {
	Register(ctx context.Context, job RecurringJob) error
	Unregister(ctx context.Context, jobID string) error
}

// BuildJobID builds the deterministic job id for one schedule trigger of
// one playbook version.
func BuildJobID(playbookID string, version int, triggerID string) string {
	return fmt.Sprintf("%s%s_%d_%s", jobIDPrefix, playbookID, version, triggerID)
}
