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

// Package store defines the persistence entities and interfaces of the
// dispatch engine.
//
// # Interface Hierarchy
//
// Interfaces are segregated so components can accept the minimum they need:
//
//   - PlaybookStore: playbooks, versions, dispatch candidate queries
//   - RunStore: run groups and runs
//   - CustomerSource: customer fan-out queries
//   - OrgSource: organizations and members
//
// The Store interface composes all of these plus io.Closer for full-featured
// backends. Runs and run groups are append-only once created; the only
// mutable run fields are State, Properties, and completion timestamps.
package store

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/pkg/playbook"
)

// Run states. These are storage labels, not a closed enum; unknown values
// must round-trip unchanged.
const (
	RunStateInitial   = "Initial"
	RunStateRunning   = "Running"
	RunStateSuspended = "Suspended"
	RunStateCompleted = "Completed"
	RunStateFailed    = "Failed"
	RunStateCancelled = "Cancelled"
)

// Organization is a tenant. Its Enabled flag gates all dispatch.
type Organization struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled"`
	BotInstalled   bool      `json:"bot_installed"`
	Integrations   []string  `json:"integrations,omitempty"`
	SystemMemberID string    `json:"system_member_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Member is an acting user or the organization's system/bot member.
type Member struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Staff          bool   `json:"staff"`
	System         bool   `json:"system"`
}

// Customer is a fan-out target for ByCustomer dispatch.
type Customer struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Name           string   `json:"name"`
	Segments       []string `json:"segments,omitempty"`
	RoomCount      int      `json:"room_count"`
}

// Playbook is the versioned workflow container.
type Playbook struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PlaybookVersion is one snapshot of a playbook's serialized definition.
// It is mutable while PublishedAt is nil and immutable afterwards.
type PlaybookVersion struct {
	PlaybookID     string     `json:"playbook_id"`
	OrganizationID string     `json:"organization_id"`
	Version        int        `json:"version"`
	Definition     string     `json:"definition"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Published reports whether this version has been published.
func (v *PlaybookVersion) Published() bool { return v.PublishedAt != nil }

// RunGroup records one trigger firing and groups the runs it produced.
type RunGroup struct {
	ID             string                    `json:"id"`
	OrganizationID string                    `json:"organization_id"`
	PlaybookID     string                    `json:"playbook_id"`
	Version        int                       `json:"version"`
	DispatchType   playbook.DispatchType     `json:"dispatch_type"`
	Settings       playbook.DispatchSettings `json:"settings"`
	TriggerID      string                    `json:"trigger_id"`
	TriggerType    string                    `json:"trigger_type"`

	// TotalDispatchCount is nil while fan-out is still in progress and is
	// set to the number of successful dispatches once the loop completes.
	TotalDispatchCount *int `json:"total_dispatch_count,omitempty"`

	CreatedByMemberID string    `json:"created_by_member_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// RunProperties is the mutable progress bag of a run.
type RunProperties struct {
	// EntityID and EntityName identify the dispatch target, e.g. which
	// customer this run was fanned out to. Empty for Once dispatch.
	EntityID   string `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`

	TriggerID      string         `json:"trigger_id"`
	InitialOutputs map[string]any `json:"initial_outputs,omitempty"`

	// SignalPayload carries the HTTP-trigger or signal request body when
	// the run was started by one.
	SignalPayload map[string]any `json:"signal_payload,omitempty"`

	// RelatedEntities carries the caller's dispatch-context entities,
	// separate from the request payload.
	RelatedEntities map[string]any `json:"related_entities,omitempty"`

	// StepResults maps step id to its recorded result. Seeded at dispatch
	// time with the trigger step's result.
	StepResults map[string]*action.StepResult `json:"step_results,omitempty"`

	// StepOrder lists step ids in execution order, the trigger first. The
	// template context is rebuilt from this ordering on every step.
	StepOrder []string `json:"step_order,omitempty"`

	// CurrentAction points at the next action to execute.
	CurrentAction *playbook.ActionReference `json:"current_action,omitempty"`

	SuspendedStepID string         `json:"suspended_step_id,omitempty"`
	SuspendedAt     *time.Time     `json:"suspended_at,omitempty"`
	SuspendState    map[string]any `json:"suspend_state,omitempty"`

	RootAuditEventID string `json:"root_audit_event_id,omitempty"`
}

// Run is one end-to-end execution of a playbook definition.
type Run struct {
	ID             string `json:"id"`
	GroupID        string `json:"group_id"`
	OrganizationID string `json:"organization_id"`
	PlaybookID     string `json:"playbook_id"`
	Version        int    `json:"version"`

	// Definition is the serialized definition frozen at dispatch time.
	// Later edits to the playbook never affect an in-flight run.
	Definition string `json:"definition"`

	State       string        `json:"state"`
	Properties  RunProperties `json:"properties"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// RunFilter contains filtering options for listing runs.
type RunFilter struct {
	OrganizationID string
	PlaybookID     string
	GroupID        string
	State          string
	Limit          int
	Offset         int
}

// PlaybookStore provides playbook and version persistence.
type PlaybookStore interface {
	CreatePlaybook(ctx context.Context, p *Playbook) error
	GetPlaybook(ctx context.Context, id string) (*Playbook, error)
	UpdatePlaybook(ctx context.Context, p *Playbook) error

	CreateVersion(ctx context.Context, v *PlaybookVersion) error
	GetVersion(ctx context.Context, playbookID string, version int) (*PlaybookVersion, error)
	UpdateVersion(ctx context.Context, v *PlaybookVersion) error

	// LatestVersion returns the highest-numbered version of the playbook,
	// published or not.
	LatestVersion(ctx context.Context, playbookID string) (*PlaybookVersion, error)

	// PublishedVersion returns the playbook's currently published version,
	// or a NotFoundError when none is published.
	PublishedVersion(ctx context.Context, playbookID string) (*PlaybookVersion, error)

	// ListDispatchCandidates returns published versions of enabled
	// playbooks in the organization whose serialized definition mentions
	// the trigger type. The query is a pre-filter; callers must re-parse
	// each definition to confirm trigger membership.
	ListDispatchCandidates(ctx context.Context, orgID, triggerType string) ([]*PlaybookVersion, error)
}

// RunStore provides run group and run persistence.
type RunStore interface {
	CreateRunGroup(ctx context.Context, g *RunGroup) error
	GetRunGroup(ctx context.Context, id string) (*RunGroup, error)
	UpdateRunGroup(ctx context.Context, g *RunGroup) error

	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// CustomerSource answers fan-out queries.
type CustomerSource interface {
	// ListCustomers returns the organization's customers with at least one
	// associated room, name ascending. A non-empty segments filter keeps
	// only customers belonging to any of the named segments; segment name
	// comparison ignores case.
	ListCustomers(ctx context.Context, orgID string, segments []string) ([]*Customer, error)
}

// OrgSource provides organization and member lookups.
type OrgSource interface {
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetMember(ctx context.Context, id string) (*Member, error)

	// SystemMember returns the organization's system/bot member, used as
	// the acting member when dispatch has no explicit actor.
	SystemMember(ctx context.Context, orgID string) (*Member, error)
}

// Store composes all persistence capabilities.
type Store interface {
	PlaybookStore
	RunStore
	CustomerSource
	OrgSource
	io.Closer
}

// MatchesSegments reports whether the customer belongs to any of the named
// segments. An empty filter matches every customer.
func (c *Customer) MatchesSegments(segments []string) bool {
	if len(segments) == 0 {
		return true
	}
	for _, want := range segments {
		for _, have := range c.Segments {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}
