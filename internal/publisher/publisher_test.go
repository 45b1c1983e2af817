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

package publisher

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/scheduler"
	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/internal/store/memory"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
)

// fakeJobs records registrations so tests can observe scheduler sync.
type fakeJobs struct {
	registered   map[string]scheduler.RecurringJob
	unregistered []string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{registered: make(map[string]scheduler.RecurringJob)}
}

func (f *fakeJobs) Register(_ context.Context, job scheduler.RecurringJob) error {
	f.registered[job.ID] = job
	return nil
}

func (f *fakeJobs) Unregister(_ context.Context, jobID string) error {
	delete(f.registered, jobID)
	f.unregistered = append(f.unregistered, jobID)
	return nil
}

func newTestPublisher(t *testing.T) (*Publisher, *memory.Store, *fakeJobs) {
	t.Helper()

	st := memory.New()
	cat, err := catalog.NewBuiltin(featureflags.NewStaticChecker())
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	jobs := newFakeJobs()
	return New(st, cat, jobs, nil), st, jobs
}

func signalDefinition(t *testing.T) string {
	t.Helper()
	return serialize(t, []*playbook.TriggerStep{
		{ID: "t1", Type: "signal", Inputs: map[string]any{"signal": "go"}},
	})
}

func scheduleDefinition(t *testing.T, schedule string, inputs map[string]any) string {
	t.Helper()
	merged := map[string]any{"schedule": schedule}
	for k, v := range inputs {
		merged[k] = v
	}
	return serialize(t, []*playbook.TriggerStep{
		{ID: "t1", Type: "schedule", Inputs: merged},
	})
}

func serialize(t *testing.T, triggers []*playbook.TriggerStep) string {
	t.Helper()
	def := playbook.NewDefinition()
	def.Triggers = triggers
	def.StartSequence = "main"
	def.Sequences = map[string]*playbook.ActionSequence{
		"main": {Actions: []*playbook.ActionStep{{ID: "a1", Type: "utility:complete-playbook"}}},
	}
	serialized, err := playbook.Serialize(def)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return serialized
}

func seedDraft(t *testing.T, st *memory.Store, playbookID string, version int, definition string, enabled bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.GetPlaybook(ctx, playbookID); errors.IsNotFound(err) {
		if err := st.CreatePlaybook(ctx, &store.Playbook{ID: playbookID, OrganizationID: "org-1", Name: playbookID, Enabled: enabled}); err != nil {
			t.Fatalf("CreatePlaybook() error = %v", err)
		}
	}
	v := &store.PlaybookVersion{PlaybookID: playbookID, OrganizationID: "org-1", Version: version, Definition: definition}
	if err := st.CreateVersion(ctx, v); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
}

func TestPublish(t *testing.T) {
	p, st, _ := newTestPublisher(t)
	ctx := context.Background()

	seedDraft(t, st, "pb-1", 1, signalDefinition(t), true)

	published, err := p.Publish(ctx, "pb-1", "m1")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !published.Published() {
		t.Error("returned version should carry a publish timestamp")
	}

	stored, err := st.PublishedVersion(ctx, "pb-1")
	if err != nil || stored.Version != 1 {
		t.Fatalf("PublishedVersion() = %+v, %v", stored, err)
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	seedDraft(t, st, "pb-1", 1, scheduleDefinition(t, `{"type":"daily","hour":9,"minute":30}`, nil), true)

	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	again, err := p.Publish(ctx, "pb-1", "m1")
	if err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	if again.Version != 1 || !again.Published() {
		t.Errorf("second publish = %+v", again)
	}
	if len(jobs.registered) != 1 {
		t.Errorf("republishing should not duplicate jobs, got %d", len(jobs.registered))
	}
}

func TestPublishRejectsInvalidDefinition(t *testing.T) {
	tests := []struct {
		name       string
		definition string
	}{
		{
			name:       "unparseable document",
			definition: "{not json",
		},
		{
			name: "unknown step type",
			definition: func() string {
				def := playbook.NewDefinition()
				def.Triggers = []*playbook.TriggerStep{{ID: "t1", Type: "signal", Inputs: map[string]any{"signal": "go"}}}
				def.StartSequence = "main"
				def.Sequences = map[string]*playbook.ActionSequence{
					"main": {Actions: []*playbook.ActionStep{{ID: "a1", Type: "utility:does-not-exist"}}},
				}
				s, _ := playbook.Serialize(def)
				return s
			}(),
		},
		{
			name:       "schedule missing required field",
			definition: `{"formatVersion":1,"triggers":[{"id":"t1","type":"schedule","inputs":{"schedule":"{\"type\":\"daily\",\"hour\":9}"}}],"startSequence":"main","sequences":{"main":{"actions":[{"id":"a1","type":"utility:complete-playbook"}]}}}`,
		},
		{
			name:       "unknown timezone",
			definition: `{"formatVersion":1,"triggers":[{"id":"t1","type":"schedule","inputs":{"schedule":"{\"type\":\"hourly\",\"minute\":0}","timezone":"Mars/Olympus"}}],"startSequence":"main","sequences":{"main":{"actions":[{"id":"a1","type":"utility:complete-playbook"}]}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, st, jobs := newTestPublisher(t)
			ctx := context.Background()
			seedDraft(t, st, "pb-1", 1, tt.definition, true)

			_, err := p.Publish(ctx, "pb-1", "m1")
			var invalid *errors.InvalidDefinitionError
			if !stderrors.As(err, &invalid) {
				t.Fatalf("Publish() error = %v, want InvalidDefinitionError", err)
			}
			if len(invalid.Diagnostics) == 0 {
				t.Error("diagnostics should not be empty")
			}
			if _, err := st.PublishedVersion(ctx, "pb-1"); !errors.IsNotFound(err) {
				t.Errorf("invalid draft must stay unpublished, got %v", err)
			}
			if len(jobs.registered) != 0 {
				t.Errorf("invalid draft must not install jobs, got %v", jobs.registered)
			}
		})
	}
}

func TestPublishInstallsScheduleJobs(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	definition := scheduleDefinition(t, `{"type":"daily","hour":9,"minute":30}`, map[string]any{"timezone": "Europe/London"})
	seedDraft(t, st, "pb-1", 1, definition, true)

	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	id := scheduler.BuildJobID("pb-1", 1, "t1")
	job, ok := jobs.registered[id]
	if !ok {
		t.Fatalf("job %s not registered, have %v", id, jobs.registered)
	}
	if job.Cron != "30 9 * * *" {
		t.Errorf("Cron = %q", job.Cron)
	}
	if job.Timezone != "Europe/London" {
		t.Errorf("Timezone = %q", job.Timezone)
	}
	if job.PlaybookID != "pb-1" || job.Version != 1 || job.TriggerID != "t1" {
		t.Errorf("job coordinates = (%q, %d, %q), want (pb-1, 1, t1)",
			job.PlaybookID, job.Version, job.TriggerID)
	}
}

func TestPublishSupersessionReplacesJobs(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	definition := scheduleDefinition(t, `{"type":"hourly","minute":15}`, nil)
	seedDraft(t, st, "pb-1", 1, definition, true)
	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish(v1) error = %v", err)
	}

	seedDraft(t, st, "pb-1", 2, definition, true)
	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish(v2) error = %v", err)
	}

	oldID := scheduler.BuildJobID("pb-1", 1, "t1")
	newID := scheduler.BuildJobID("pb-1", 2, "t1")
	if _, ok := jobs.registered[oldID]; ok {
		t.Errorf("superseded version's job %s should be removed", oldID)
	}
	if _, ok := jobs.registered[newID]; !ok {
		t.Errorf("new version's job %s should be registered, have %v", newID, jobs.registered)
	}

	published, err := st.PublishedVersion(ctx, "pb-1")
	if err != nil || published.Version != 2 {
		t.Fatalf("PublishedVersion() = %+v, %v", published, err)
	}
}

func TestPublishDisabledPlaybookSkipsJobs(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	seedDraft(t, st, "pb-1", 1, scheduleDefinition(t, `{"type":"hourly","minute":0}`, nil), false)

	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(jobs.registered) != 0 {
		t.Errorf("disabled playbook must not install jobs, got %v", jobs.registered)
	}
}

func TestUnpublish(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	seedDraft(t, st, "pb-1", 1, scheduleDefinition(t, `{"type":"hourly","minute":0}`, nil), true)
	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if err := p.Unpublish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Unpublish() error = %v", err)
	}
	if _, err := st.PublishedVersion(ctx, "pb-1"); !errors.IsNotFound(err) {
		t.Errorf("PublishedVersion() after unpublish = %v, want not found", err)
	}
	if len(jobs.registered) != 0 {
		t.Errorf("unpublish should remove jobs, got %v", jobs.registered)
	}

	// Unpublishing again is a no-op.
	if err := p.Unpublish(ctx, "pb-1", "m1"); err != nil {
		t.Errorf("second Unpublish() error = %v", err)
	}
}

func TestSetEnabled(t *testing.T) {
	p, st, jobs := newTestPublisher(t)
	ctx := context.Background()

	seedDraft(t, st, "pb-1", 1, scheduleDefinition(t, `{"type":"hourly","minute":0}`, nil), true)
	if _, err := p.Publish(ctx, "pb-1", "m1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	id := scheduler.BuildJobID("pb-1", 1, "t1")

	if err := p.SetEnabled(ctx, "pb-1", false); err != nil {
		t.Fatalf("SetEnabled(false) error = %v", err)
	}
	if _, ok := jobs.registered[id]; ok {
		t.Error("disabling should remove the published version's jobs")
	}
	pb, _ := st.GetPlaybook(ctx, "pb-1")
	if pb.Enabled {
		t.Error("playbook should be disabled")
	}

	if err := p.SetEnabled(ctx, "pb-1", true); err != nil {
		t.Fatalf("SetEnabled(true) error = %v", err)
	}
	if _, ok := jobs.registered[id]; !ok {
		t.Error("re-enabling should reinstall the published version's jobs")
	}

	// Setting the current value changes nothing.
	unregistered := len(jobs.unregistered)
	if err := p.SetEnabled(ctx, "pb-1", true); err != nil {
		t.Fatalf("SetEnabled(noop) error = %v", err)
	}
	if len(jobs.unregistered) != unregistered {
		t.Error("no-op enable should not touch jobs")
	}
}
