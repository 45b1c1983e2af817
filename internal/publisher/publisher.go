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

// Package publisher manages the playbook publishing lifecycle: validating
// drafts, stamping the published version, and keeping the recurring-job
// scheduler in sync with the published version's schedule triggers.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/internal/scheduler"
	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/internal/trigger"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
)

// Publisher publishes and unpublishes playbook versions.
type Publisher struct {
	playbooks store.PlaybookStore
	catalog   *catalog.Catalog
	jobs      scheduler.RecurringJobs
	logger    *slog.Logger
}

// New creates a Publisher.
func New(playbooks store.PlaybookStore, cat *catalog.Catalog, jobs scheduler.RecurringJobs, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		playbooks: playbooks,
		catalog:   cat,
		jobs:      jobs,
		logger:    log.WithComponent(logger, "publisher"),
	}
}

// Publish validates the playbook's latest draft version and makes it the
// published version. Schedule jobs belonging to the previously published
// version are removed before the new version's are installed, so at most
// one version of a playbook is ever scheduled.
//
// Validation failures surface as an InvalidDefinitionError carrying every
// diagnostic, so authors see the full list in one round trip.
func (p *Publisher) Publish(ctx context.Context, playbookID, actorID string) (*store.PlaybookVersion, error) {
	pb, err := p.playbooks.GetPlaybook(ctx, playbookID)
	if err != nil {
		return nil, err
	}

	latest, err := p.playbooks.LatestVersion(ctx, playbookID)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(
		log.PlaybookKey, playbookID,
		log.VersionKey, latest.Version,
		"actor_id", actorID)

	if latest.Published() {
		logger.Info("latest version is already published")
		return latest, nil
	}

	def, diags := p.validate(latest)
	if len(diags) > 0 {
		return nil, &errors.InvalidDefinitionError{PlaybookID: playbookID, Diagnostics: diags}
	}

	previous, err := p.playbooks.PublishedVersion(ctx, playbookID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	latest.PublishedAt = &now
	if err := p.playbooks.UpdateVersion(ctx, latest); err != nil {
		return nil, fmt.Errorf("failed to publish version: %w", err)
	}

	if previous != nil {
		p.uninstallJobs(ctx, logger, previous)
	}
	if pb.Enabled {
		if err := p.installJobs(ctx, latest, def); err != nil {
			return nil, err
		}
	}

	logger.Info("published playbook version")
	return latest, nil
}

// Unpublish clears the playbook's published version and removes its
// schedule jobs. Unpublishing a playbook with no published version is a
// no-op.
func (p *Publisher) Unpublish(ctx context.Context, playbookID, actorID string) error {
	published, err := p.playbooks.PublishedVersion(ctx, playbookID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	logger := p.logger.With(
		log.PlaybookKey, playbookID,
		log.VersionKey, published.Version,
		"actor_id", actorID)

	p.uninstallJobs(ctx, logger, published)

	published.PublishedAt = nil
	if err := p.playbooks.UpdateVersion(ctx, published); err != nil {
		return fmt.Errorf("failed to unpublish version: %w", err)
	}
	logger.Info("unpublished playbook version")
	return nil
}

// SetEnabled flips the playbook's enabled bit. Schedule jobs track the bit
// independently of publishing: disabling removes the published version's
// jobs, re-enabling reinstalls them.
func (p *Publisher) SetEnabled(ctx context.Context, playbookID string, enabled bool) error {
	pb, err := p.playbooks.GetPlaybook(ctx, playbookID)
	if err != nil {
		return err
	}
	if pb.Enabled == enabled {
		return nil
	}
	pb.Enabled = enabled
	if err := p.playbooks.UpdatePlaybook(ctx, pb); err != nil {
		return err
	}

	published, err := p.playbooks.PublishedVersion(ctx, playbookID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	logger := p.logger.With(log.PlaybookKey, playbookID, log.VersionKey, published.Version)

	if !enabled {
		p.uninstallJobs(ctx, logger, published)
		logger.Info("disabled playbook, schedule jobs removed")
		return nil
	}

	def, err := playbook.Deserialize(published.Definition)
	if err != nil || def == nil {
		return fmt.Errorf("published version of %s carries an unreadable definition: %w", playbookID, err)
	}
	if err := p.installJobs(ctx, published, def); err != nil {
		return err
	}
	logger.Info("enabled playbook, schedule jobs installed")
	return nil
}

// validate runs structural validation plus the publish-time checks that
// need the catalog: every step type must exist, and every schedule trigger
// must carry a parseable schedule and timezone.
func (p *Publisher) validate(v *store.PlaybookVersion) (*playbook.Definition, []string) {
	def, err := playbook.Deserialize(v.Definition)
	if err != nil || def == nil {
		return nil, []string{"the playbook is invalid"}
	}

	diags := playbook.Messages(playbook.Validate(def))

	for _, step := range def.AllSteps() {
		if p.catalog.TryGetType(step.TypeName()) == nil {
			diags = append(diags, fmt.Sprintf("step %q uses unknown type %q", step.StepID(), step.TypeName()))
		}
	}

	for _, t := range def.TriggersOfType(trigger.TypeSchedule) {
		if _, err := scheduleFor(t); err != nil {
			diags = append(diags, fmt.Sprintf("trigger %q: %v", t.ID, err))
		}
	}
	return def, diags
}

// installJobs registers one recurring job per schedule trigger of v.
func (p *Publisher) installJobs(ctx context.Context, v *store.PlaybookVersion, def *playbook.Definition) error {
	for _, t := range def.TriggersOfType(trigger.TypeSchedule) {
		job, err := scheduleFor(t)
		if err != nil {
			return &errors.InvalidDefinitionError{
				PlaybookID:  v.PlaybookID,
				Diagnostics: []string{fmt.Sprintf("trigger %q: %v", t.ID, err)},
			}
		}
		job.ID = scheduler.BuildJobID(v.PlaybookID, v.Version, t.ID)
		job.PlaybookID = v.PlaybookID
		job.Version = v.Version
		job.TriggerID = t.ID
		if err := p.jobs.Register(ctx, *job); err != nil {
			return fmt.Errorf("failed to register schedule job %s: %w", job.ID, err)
		}
	}
	return nil
}

// uninstallJobs removes v's schedule jobs best-effort. A failed removal is
// logged and skipped: a stale job fires through the scheduled-dispatch
// staleness guards, which drop it.
func (p *Publisher) uninstallJobs(ctx context.Context, logger *slog.Logger, v *store.PlaybookVersion) {
	def, err := playbook.Deserialize(v.Definition)
	if err != nil || def == nil {
		logger.Warn("cannot read definition to remove schedule jobs", log.Error(err))
		return
	}
	for _, t := range def.TriggersOfType(trigger.TypeSchedule) {
		id := scheduler.BuildJobID(v.PlaybookID, v.Version, t.ID)
		if err := p.jobs.Unregister(ctx, id); err != nil {
			logger.Warn("failed to remove schedule job", "job_id", id, log.Error(err))
		}
	}
}

// scheduleFor converts a schedule trigger's inputs into a recurring job
// with the id left blank. The schedule travels as a JSON document in the
// "schedule" input; the timezone defaults to UTC.
func scheduleFor(t *playbook.TriggerStep) (*scheduler.RecurringJob, error) {
	raw, ok := t.Inputs["schedule"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("missing required input %q", "schedule")
	}
	sched, err := playbook.ParseSchedule(raw)
	if err != nil {
		return nil, err
	}
	cron, err := sched.ToCronString()
	if err != nil {
		return nil, err
	}

	tz, _ := t.Inputs["timezone"].(string)
	if tz == "" {
		tz, _ = t.Inputs["tz"].(string)
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("unknown timezone %q", tz)
		}
	}
	return &scheduler.RecurringJob{Cron: cron, Timezone: tz}, nil
}
