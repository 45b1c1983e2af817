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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/pkg/errors"
)

const signalDefinition = `{"formatVersion":1,"triggers":[{"id":"t1","type":"signal","inputs":{"signal":"go"}}],"startSequence":"main","sequences":{"main":{"actions":[{"id":"a1","type":"utility:complete-playbook"}]}}}`

func publishedAt(t time.Time) *time.Time { return &t }

func TestPlaybookVersionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	pb := &store.Playbook{ID: "pb-1", OrganizationID: "org-1", Name: "onboarding", Enabled: true}
	if err := s.CreatePlaybook(ctx, pb); err != nil {
		t.Fatalf("CreatePlaybook() error = %v", err)
	}
	if err := s.CreatePlaybook(ctx, pb); err == nil {
		t.Error("duplicate playbook should fail")
	}

	v1 := &store.PlaybookVersion{PlaybookID: "pb-1", OrganizationID: "org-1", Version: 1, Definition: signalDefinition}
	v2 := &store.PlaybookVersion{PlaybookID: "pb-1", OrganizationID: "org-1", Version: 2, Definition: signalDefinition}
	if err := s.CreateVersion(ctx, v1); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if err := s.CreateVersion(ctx, v2); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	latest, err := s.LatestVersion(ctx, "pb-1")
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("LatestVersion() = v%d, want v2", latest.Version)
	}

	if _, err := s.PublishedVersion(ctx, "pb-1"); !errors.IsNotFound(err) {
		t.Errorf("PublishedVersion() before publish = %v, want not found", err)
	}

	v1.PublishedAt = publishedAt(time.Now().UTC())
	if err := s.UpdateVersion(ctx, v1); err != nil {
		t.Fatalf("UpdateVersion() error = %v", err)
	}
	published, err := s.PublishedVersion(ctx, "pb-1")
	if err != nil {
		t.Fatalf("PublishedVersion() error = %v", err)
	}
	if published.Version != 1 {
		t.Errorf("PublishedVersion() = v%d, want v1", published.Version)
	}

	// Publishing v2 supersedes v1.
	v2.PublishedAt = publishedAt(time.Now().UTC())
	if err := s.UpdateVersion(ctx, v2); err != nil {
		t.Fatalf("UpdateVersion() error = %v", err)
	}
	published, err = s.PublishedVersion(ctx, "pb-1")
	if err != nil {
		t.Fatalf("PublishedVersion() error = %v", err)
	}
	if published.Version != 2 {
		t.Errorf("PublishedVersion() = v%d, want v2", published.Version)
	}
}

func TestListDispatchCandidates(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	seed := func(id string, enabled bool, published bool) {
		t.Helper()
		if err := s.CreatePlaybook(ctx, &store.Playbook{ID: id, OrganizationID: "org-1", Name: id, Enabled: enabled}); err != nil {
			t.Fatalf("CreatePlaybook() error = %v", err)
		}
		v := &store.PlaybookVersion{PlaybookID: id, OrganizationID: "org-1", Version: 1, Definition: signalDefinition}
		if published {
			v.PublishedAt = publishedAt(now)
		}
		if err := s.CreateVersion(ctx, v); err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
	}

	seed("pb-enabled", true, true)
	seed("pb-disabled", false, true)
	seed("pb-draft", true, false)

	// A superseded published version must not be a candidate.
	old := &store.PlaybookVersion{PlaybookID: "pb-enabled", OrganizationID: "org-1", Version: 0, Definition: signalDefinition, PublishedAt: publishedAt(now.Add(-time.Hour))}
	if err := s.CreateVersion(ctx, old); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	candidates, err := s.ListDispatchCandidates(ctx, "org-1", "signal")
	if err != nil {
		t.Fatalf("ListDispatchCandidates() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].PlaybookID != "pb-enabled" || candidates[0].Version != 1 {
		t.Errorf("candidate = %s v%d", candidates[0].PlaybookID, candidates[0].Version)
	}

	// Other trigger types do not match.
	candidates, err = s.ListDispatchCandidates(ctx, "org-1", "conversation-started")
	if err != nil {
		t.Fatalf("ListDispatchCandidates() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates for absent trigger type = %d, want 0", len(candidates))
	}
}

func TestListCustomers(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.AddCustomer(&store.Customer{ID: "c1", OrganizationID: "org-1", Name: "Zeta", Segments: []string{"Enterprise"}, RoomCount: 2})
	s.AddCustomer(&store.Customer{ID: "c2", OrganizationID: "org-1", Name: "Acme", Segments: []string{"smb"}, RoomCount: 1})
	s.AddCustomer(&store.Customer{ID: "c3", OrganizationID: "org-1", Name: "NoRooms", Segments: []string{"enterprise"}, RoomCount: 0})
	s.AddCustomer(&store.Customer{ID: "c4", OrganizationID: "org-2", Name: "OtherOrg", RoomCount: 3})

	all, err := s.ListCustomers(ctx, "org-1", nil)
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("customers = %d, want 2 (no rooms and other orgs excluded)", len(all))
	}
	if all[0].Name != "Acme" || all[1].Name != "Zeta" {
		t.Errorf("customers should sort by name, got %s, %s", all[0].Name, all[1].Name)
	}

	// Segment filter ignores case.
	enterprise, err := s.ListCustomers(ctx, "org-1", []string{"enterprise"})
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if len(enterprise) != 1 || enterprise[0].ID != "c1" {
		t.Errorf("enterprise customers = %v", enterprise)
	}
}

func TestOrgSource(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.AddOrganization(&store.Organization{ID: "org-1", Name: "Acme", Enabled: true})
	s.AddMember(&store.Member{ID: "m1", OrganizationID: "org-1", Name: "Ada"})
	s.AddMember(&store.Member{ID: "m2", OrganizationID: "org-1", Name: "Playbook Bot", System: true})

	org, err := s.GetOrganization(ctx, "org-1")
	if err != nil || org.Name != "Acme" {
		t.Fatalf("GetOrganization() = %v, %v", org, err)
	}
	if _, err := s.GetOrganization(ctx, "nope"); !errors.IsNotFound(err) {
		t.Errorf("missing org error = %v, want not found", err)
	}

	system, err := s.SystemMember(ctx, "org-1")
	if err != nil || system.ID != "m2" {
		t.Fatalf("SystemMember() = %v, %v", system, err)
	}
	if _, err := s.SystemMember(ctx, "org-2"); !errors.IsNotFound(err) {
		t.Errorf("missing system member error = %v, want not found", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	group := &store.RunGroup{ID: "g1", OrganizationID: "org-1", PlaybookID: "pb-1", Version: 1}
	if err := s.CreateRunGroup(ctx, group); err != nil {
		t.Fatalf("CreateRunGroup() error = %v", err)
	}

	run := &store.Run{ID: "r1", GroupID: "g1", OrganizationID: "org-1", PlaybookID: "pb-1", Version: 1}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.State != store.RunStateInitial {
		t.Errorf("new run state = %q, want initial", run.State)
	}

	run.State = store.RunStateCompleted
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}
	got, err := s.GetRun(ctx, "r1")
	if err != nil || got.State != store.RunStateCompleted {
		t.Fatalf("GetRun() = %v, %v", got, err)
	}

	// TotalDispatchCount stays nil until fan-out completes.
	if group.TotalDispatchCount != nil {
		t.Error("TotalDispatchCount should start nil")
	}
	count := 1
	group.TotalDispatchCount = &count
	if err := s.UpdateRunGroup(ctx, group); err != nil {
		t.Fatalf("UpdateRunGroup() error = %v", err)
	}
	gotGroup, err := s.GetRunGroup(ctx, "g1")
	if err != nil || gotGroup.TotalDispatchCount == nil || *gotGroup.TotalDispatchCount != 1 {
		t.Fatalf("GetRunGroup() = %+v, %v", gotGroup, err)
	}
}

func TestListRunsFilterAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, r := range []*store.Run{
		{ID: "r1", GroupID: "g1", OrganizationID: "org-1", PlaybookID: "pb-1", State: store.RunStateCompleted},
		{ID: "r2", GroupID: "g1", OrganizationID: "org-1", PlaybookID: "pb-1", State: store.RunStateRunning},
		{ID: "r3", GroupID: "g2", OrganizationID: "org-2", PlaybookID: "pb-2", State: store.RunStateRunning},
	} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, store.RunFilter{OrganizationID: "org-1"})
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns(org-1) = %d runs, %v", len(runs), err)
	}

	runs, err = s.ListRuns(ctx, store.RunFilter{State: store.RunStateRunning})
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns(running) = %d runs, %v", len(runs), err)
	}

	runs, err = s.ListRuns(ctx, store.RunFilter{Limit: 1})
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns(limit 1) = %d runs, %v", len(runs), err)
	}

	runs, err = s.ListRuns(ctx, store.RunFilter{Offset: 5})
	if err != nil || len(runs) != 0 {
		t.Fatalf("ListRuns(offset past end) = %d runs, %v", len(runs), err)
	}
}
