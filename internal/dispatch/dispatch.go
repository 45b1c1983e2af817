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

// Package dispatch turns fired triggers into persisted runs.
//
// Three entry points converge on one per-version pipeline: event-driven
// dispatch for a trigger type, signal dispatch for named signals, and
// scheduled dispatch invoked by cron ticks. The pipeline re-reads and
// re-validates everything from storage on every call; nothing mutable is
// cached between firings.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/playbook/internal/action"
	"github.com/tombee/playbook/internal/bus"
	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/expression"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/internal/metrics"
	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/internal/trigger"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
)

// Request carries the optional parts of a dispatch call.
type Request struct {
	// ActorID is the explicit acting member. Empty means the
	// organization's system member acts.
	ActorID string

	// Payload is the HTTP-trigger or signal request body, recorded on
	// every created run.
	Payload map[string]any

	// Related carries caller-supplied related entities. It is cloned per
	// run so concurrent runs never share a mutable copy.
	Related map[string]any
}

// Dispatcher is the orchestration core.
type Dispatcher struct {
	playbooks store.PlaybookStore
	runs      store.RunStore
	customers store.CustomerSource
	orgs      store.OrgSource
	catalog   *catalog.Catalog
	flags     featureflags.Checker
	publisher bus.Publisher
	expr      *expression.Evaluator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Config wires a Dispatcher.
type Config struct {
	Playbooks store.PlaybookStore
	Runs      store.RunStore
	Customers store.CustomerSource
	Orgs      store.OrgSource
	Catalog   *catalog.Catalog
	Flags     featureflags.Checker
	Publisher bus.Publisher
	Logger    *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		playbooks: cfg.Playbooks,
		runs:      cfg.Runs,
		customers: cfg.Customers,
		orgs:      cfg.Orgs,
		catalog:   cfg.Catalog,
		flags:     cfg.Flags,
		publisher: cfg.Publisher,
		expr:      expression.New(),
		logger:    log.WithComponent(logger, "dispatch"),
		tracer:    otel.Tracer("playbook/dispatch"),
	}
}

// Dispatch is the event-driven entry point: it fans a fired trigger type
// out to every published, enabled playbook version in the organization
// whose definition carries a matching trigger. A failure in one version
// never blocks the others.
func (d *Dispatcher) Dispatch(ctx context.Context, orgID, triggerType string, outputs map[string]any, req Request) {
	ctx, span := d.tracer.Start(ctx, "dispatch.batch",
		trace.WithAttributes(
			attribute.String("organization.id", orgID),
			attribute.String("trigger.type", triggerType),
		))
	defer span.End()

	logger := log.WithDispatchContext(d.logger, orgID, triggerType)

	org, err := d.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		logger.Warn("dispatch skipped, organization not found", log.Error(err))
		return
	}
	if !org.Enabled {
		logger.Info("dispatch skipped, organization disabled")
		return
	}

	candidates, err := d.playbooks.ListDispatchCandidates(ctx, orgID, triggerType)
	if err != nil {
		logger.Error("failed to query dispatch candidates", log.Error(err))
		return
	}

	for _, version := range candidates {
		if _, err := d.dispatchVersion(ctx, org, version, triggerType, outputs, req); err != nil {
			// One bad playbook must not block its siblings.
			logger.Error("dispatch failed for playbook version",
				log.PlaybookKey, version.PlaybookID,
				log.VersionKey, version.Version,
				log.Error(err))
		}
	}
}

// DispatchSignal routes a named signal to playbooks with a matching signal
// trigger. System signals are never routed.
func (d *Dispatcher) DispatchSignal(ctx context.Context, orgID, signal string, outputs map[string]any, req Request) {
	if strings.HasPrefix(signal, trigger.ReservedSignalPrefix) {
		d.logger.Debug("ignoring reserved system signal",
			log.OrgKey, orgID, "signal", signal)
		return
	}

	merged := make(map[string]any, len(outputs)+1)
	maps.Copy(merged, outputs)
	merged["signal"] = signal

	d.Dispatch(ctx, orgID, trigger.TypeSignal, merged, req)
}

// DispatchScheduledRun is invoked by the scheduler on a cron tick. Every
// piece of state the tick was registered against is re-validated; a tick
// for since-changed state is an expected no-op, logged and counted but
// never an error.
func (d *Dispatcher) DispatchScheduledRun(ctx context.Context, playbookID string, version int, triggerID, actorID string) {
	ctx, span := d.tracer.Start(ctx, "dispatch.scheduled",
		trace.WithAttributes(
			attribute.String("playbook.id", playbookID),
			attribute.Int("playbook.version", version),
			attribute.String("trigger.id", triggerID),
		))
	defer span.End()

	logger := d.logger.With(
		log.PlaybookKey, playbookID,
		log.VersionKey, version,
		log.TriggerKey, triggerID)

	p, err := d.playbooks.GetPlaybook(ctx, playbookID)
	if err != nil {
		logger.Info("scheduled tick skipped, playbook no longer exists")
		metrics.RecordScheduledSkip("playbook_missing")
		return
	}

	published, err := d.playbooks.PublishedVersion(ctx, playbookID)
	if err != nil {
		logger.Info("scheduled tick skipped, no published version")
		metrics.RecordScheduledSkip("unpublished")
		return
	}
	if published.Version != version {
		// The schedule fired for a superseded version. Republishing
		// reinstalls the current version's jobs, so nothing to do here.
		logger.Info("scheduled tick skipped, version superseded",
			"published_version", published.Version)
		metrics.RecordScheduledSkip("superseded")
		return
	}

	org, err := d.orgs.GetOrganization(ctx, p.OrganizationID)
	if err != nil || !org.Enabled {
		logger.Info("scheduled tick skipped, organization disabled or gone")
		metrics.RecordScheduledSkip("organization_disabled")
		return
	}
	if !p.Enabled {
		logger.Info("scheduled tick skipped, playbook disabled")
		metrics.RecordScheduledSkip("playbook_disabled")
		return
	}

	def, err := playbook.Deserialize(published.Definition)
	if err != nil || def == nil {
		logger.Info("scheduled tick skipped, stored definition unreadable")
		metrics.RecordScheduledSkip("trigger_missing")
		return
	}
	step := def.FindTrigger(triggerID)
	if step == nil || step.Type != trigger.TypeSchedule {
		logger.Info("scheduled tick skipped, trigger no longer in definition")
		metrics.RecordScheduledSkip("trigger_missing")
		return
	}

	outputs := map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}

	// The tick names its trigger. Sibling schedule triggers each carry
	// their own registration, so only this one is evaluated.
	trigType, ok := d.catalog.TryGetTriggerType(step.Type)
	if !ok {
		logger.Warn("scheduled tick skipped, trigger type not registered")
		metrics.RecordScheduledSkip("trigger_missing")
		return
	}
	decision := trigger.Evaluate(trigType, d.expr, step, outputs)
	if !decision.Fire {
		logger.Info("scheduled tick skipped, trigger condition not satisfied",
			"reason", decision.Reason)
		return
	}

	if diags := playbook.Validate(def); len(diags) > 0 {
		logger.Error("scheduled dispatch failed", log.Error(&errors.InvalidDefinitionError{
			PlaybookID:  playbookID,
			Diagnostics: playbook.Messages(diags),
		}))
		return
	}
	if _, err := d.fanOut(ctx, org, published, def, step, outputs, Request{ActorID: actorID}); err != nil {
		logger.Error("scheduled dispatch failed", log.Error(err))
	}
}

// dispatchVersion is the shared per-version pipeline.
func (d *Dispatcher) dispatchVersion(ctx context.Context, org *store.Organization, version *store.PlaybookVersion, triggerType string, outputs map[string]any, req Request) (*store.RunGroup, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.version",
		trace.WithAttributes(
			attribute.String("playbook.id", version.PlaybookID),
			attribute.Int("playbook.version", version.Version),
		))
	defer span.End()

	logger := d.logger.With(
		log.OrgKey, org.ID,
		log.PlaybookKey, version.PlaybookID,
		log.VersionKey, version.Version,
		log.TriggerTypeKey, triggerType)

	// Defensive re-checks; the candidate query already filtered on these.
	if !org.Enabled {
		logger.Info("skipping dispatch, organization disabled")
		return nil, nil
	}
	if !version.Published() {
		logger.Info("skipping dispatch, version not published")
		return nil, nil
	}

	// The definition is re-parsed rather than cached: different call
	// sites land here from different trigger contexts.
	def, err := playbook.Deserialize(version.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored definition: %w", err)
	}
	if def == nil {
		logger.Warn("skipping dispatch, stored definition is empty")
		return nil, nil
	}

	matching := def.TriggersOfType(triggerType)
	if len(matching) == 0 {
		// The definition was edited after the event was enqueued.
		logger.Info("skipping dispatch, no triggers of type remain")
		return nil, nil
	}

	// First trigger whose predicate passes wins, in definition order.
	trigType, ok := d.catalog.TryGetTriggerType(triggerType)
	if !ok {
		logger.Warn("skipping dispatch, trigger type not registered")
		return nil, nil
	}
	var fired *playbook.TriggerStep
	for _, step := range matching {
		decision := trigger.Evaluate(trigType, d.expr, step, outputs)
		logger.Debug("trigger evaluated",
			log.TriggerKey, step.ID,
			"fire", decision.Fire,
			"reason", decision.Reason)
		if decision.Fire {
			fired = step
			break
		}
	}
	if fired == nil {
		logger.Info("skipping dispatch, no trigger conditions satisfied")
		return nil, nil
	}

	// Running an invalid playbook is an invariant violation, fatal for
	// this dispatch attempt and caught at the batch boundary.
	if diags := playbook.Validate(def); len(diags) > 0 {
		return nil, &errors.InvalidDefinitionError{
			PlaybookID:  version.PlaybookID,
			Diagnostics: playbook.Messages(diags),
		}
	}

	return d.fanOut(ctx, org, version, def, fired, outputs, req)
}

// fanOut creates the run group and its runs.
func (d *Dispatcher) fanOut(ctx context.Context, org *store.Organization, version *store.PlaybookVersion, def *playbook.Definition, fired *playbook.TriggerStep, outputs map[string]any, req Request) (*store.RunGroup, error) {
	actor, err := d.resolveActor(ctx, org, req.ActorID)
	if err != nil {
		return nil, err
	}

	// The definition's dispatch settings only apply when multi-dispatch
	// is rolled out to this organization; otherwise force a single run.
	settings := playbook.DispatchSettings{Type: playbook.DispatchOnce}
	flagActor := featureflags.Actor{MemberID: actor.ID, OrganizationID: org.ID, Staff: actor.Staff}
	if d.flags.IsEnabled(ctx, featureflags.FlagMultiDispatch, flagActor) {
		settings = def.Dispatch
	}
	dispatchType := settings.EffectiveType()

	group := &store.RunGroup{
		ID:                uuid.NewString(),
		OrganizationID:    org.ID,
		PlaybookID:        version.PlaybookID,
		Version:           version.Version,
		DispatchType:      dispatchType,
		Settings:          settings,
		TriggerID:         fired.ID,
		TriggerType:       fired.Type,
		CreatedByMemberID: actor.ID,
	}
	if err := d.runs.CreateRunGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create run group: %w", err)
	}
	metrics.RecordRunGroup(string(dispatchType))

	logger := d.logger.With(
		log.GroupIDKey, group.ID,
		log.PlaybookKey, version.PlaybookID,
		log.VersionKey, version.Version,
		log.TriggerKey, fired.ID)

	switch dispatchType {
	case playbook.DispatchOnce:
		count := 0
		if d.dispatchSingleRun(ctx, logger, group, version, fired, outputs, "", "", req) {
			count = 1
		}
		group.TotalDispatchCount = &count

	case playbook.DispatchByCustomer:
		customers, err := d.customers.ListCustomers(ctx, org.ID, settings.CustomerSegments)
		if err != nil {
			return nil, fmt.Errorf("failed to list customers: %w", err)
		}
		count := 0
		for _, customer := range customers {
			perRun := make(map[string]any, len(outputs)+1)
			maps.Copy(perRun, outputs)
			perRun["customer"] = map[string]any{
				"id":       customer.ID,
				"name":     customer.Name,
				"segments": toAnySlice(customer.Segments),
			}
			// One customer's failure never aborts the rest.
			if d.dispatchSingleRun(ctx, logger, group, version, fired, perRun, customer.ID, customer.Name, req) {
				count++
			}
		}
		group.TotalDispatchCount = &count

	default:
		return nil, &errors.UnreachableError{What: "dispatch type", Value: dispatchType}
	}

	// The count is persisted only after all attempts, so a group without
	// one reads as "fan-out in progress".
	if err := d.runs.UpdateRunGroup(ctx, group); err != nil {
		logger.Error("failed to persist dispatch count", log.Error(err))
	}
	return group, nil
}

// dispatchSingleRun creates one run and hands it to the runner. Failures
// are logged and counted, never propagated; the caller isolates per-run
// failures at the fan-out level.
func (d *Dispatcher) dispatchSingleRun(ctx context.Context, logger *slog.Logger, group *store.RunGroup, version *store.PlaybookVersion, fired *playbook.TriggerStep, outputs map[string]any, entityID, entityName string, req Request) bool {
	// The catalog and the stored definition can disagree after a deploy;
	// re-verify before creating state.
	if _, ok := d.catalog.TryGetTriggerType(fired.Type); !ok {
		logger.Warn("trigger type vanished from catalog, skipping run",
			log.TriggerTypeKey, fired.Type)
		metrics.RecordDispatch(string(group.DispatchType), "failure")
		return false
	}

	// Payload and related entities are cloned into each run's own
	// property bag so concurrent runs never share a mutable copy.
	properties := store.RunProperties{
		EntityID:        entityID,
		EntityName:      entityName,
		TriggerID:       fired.ID,
		InitialOutputs:  outputs,
		SignalPayload:   maps.Clone(req.Payload),
		RelatedEntities: maps.Clone(req.Related),
		StepResults: map[string]*action.StepResult{
			fired.ID: {Outcome: action.OutcomeSucceeded, Outputs: outputs},
		},
		StepOrder: []string{fired.ID},
	}

	run := &store.Run{
		ID:             uuid.NewString(),
		GroupID:        group.ID,
		OrganizationID: group.OrganizationID,
		PlaybookID:     group.PlaybookID,
		Version:        group.Version,
		Definition:     version.Definition,
		State:          store.RunStateInitial,
		Properties:     properties,
	}
	if err := d.runs.CreateRun(ctx, run); err != nil {
		logger.Error("failed to create run",
			log.TriggerTypeKey, fired.Type,
			"entity_id", entityID,
			log.Error(err))
		metrics.RecordDispatch(string(group.DispatchType), "failure")
		return false
	}

	err := d.publisher.PublishExecute(ctx, &bus.ExecutePlaybook{
		RunID:          run.ID,
		TriggerStepID:  fired.ID,
		PlaybookID:     group.PlaybookID,
		Version:        group.Version,
		OrganizationID: group.OrganizationID,
	})
	if err != nil {
		logger.Error("failed to publish execute message",
			log.RunIDKey, run.ID,
			"entity_id", entityID,
			log.Error(err))
		metrics.RecordDispatch(string(group.DispatchType), "failure")
		return false
	}

	logger.Info("run dispatched",
		log.RunIDKey, run.ID,
		"entity_id", entityID)
	metrics.RecordDispatch(string(group.DispatchType), "success")
	return true
}

func (d *Dispatcher) resolveActor(ctx context.Context, org *store.Organization, actorID string) (*store.Member, error) {
	if actorID != "" {
		return d.orgs.GetMember(ctx, actorID)
	}
	return d.orgs.SystemMember(ctx, org.ID)
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
