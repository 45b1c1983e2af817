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

// Package memory provides an in-memory store implementation, used in tests
// and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ store.PlaybookStore  = (*Store)(nil)
	_ store.RunStore       = (*Store)(nil)
	_ store.CustomerSource = (*Store)(nil)
	_ store.OrgSource      = (*Store)(nil)
	_ store.Store          = (*Store)(nil)
)

type versionKey struct {
	playbookID string
	version    int
}

// Store is an in-memory store.
type Store struct {
	mu        sync.RWMutex
	orgs      map[string]*store.Organization
	members   map[string]*store.Member
	customers map[string]*store.Customer
	playbooks map[string]*store.Playbook
	versions  map[versionKey]*store.PlaybookVersion
	groups    map[string]*store.RunGroup
	runs      map[string]*store.Run
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		orgs:      make(map[string]*store.Organization),
		members:   make(map[string]*store.Member),
		customers: make(map[string]*store.Customer),
		playbooks: make(map[string]*store.Playbook),
		versions:  make(map[versionKey]*store.PlaybookVersion),
		groups:    make(map[string]*store.RunGroup),
		runs:      make(map[string]*store.Run),
	}
}

// AddOrganization seeds an organization.
func (s *Store) AddOrganization(org *store.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
}

// AddMember seeds a member.
func (s *Store) AddMember(m *store.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// AddCustomer seeds a customer.
func (s *Store) AddCustomer(c *store.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// GetOrganization implements store.OrgSource.
func (s *Store) GetOrganization(ctx context.Context, id string) (*store.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "organization", ID: id}
	}
	return org, nil
}

// GetMember implements store.OrgSource.
func (s *Store) GetMember(ctx context.Context, id string) (*store.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "member", ID: id}
	}
	return m, nil
}

// SystemMember implements store.OrgSource.
func (s *Store) SystemMember(ctx context.Context, orgID string) (*store.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.OrganizationID == orgID && m.System {
			return m, nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "system member", ID: orgID}
}

// ListCustomers implements store.CustomerSource.
func (s *Store) ListCustomers(ctx context.Context, orgID string, segments []string) ([]*store.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*store.Customer
	for _, c := range s.customers {
		if c.OrganizationID != orgID || c.RoomCount == 0 {
			continue
		}
		if !c.MatchesSegments(segments) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched, nil
}

// CreatePlaybook implements store.PlaybookStore.
func (s *Store) CreatePlaybook(ctx context.Context, p *store.Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.playbooks[p.ID]; exists {
		return fmt.Errorf("playbook already exists: %s", p.ID)
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.playbooks[p.ID] = p
	return nil
}

// GetPlaybook implements store.PlaybookStore.
func (s *Store) GetPlaybook(ctx context.Context, id string) (*store.Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playbooks[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "playbook", ID: id}
	}
	return p, nil
}

// UpdatePlaybook implements store.PlaybookStore.
func (s *Store) UpdatePlaybook(ctx context.Context, p *store.Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.playbooks[p.ID]; !exists {
		return &errors.NotFoundError{Resource: "playbook", ID: p.ID}
	}
	p.UpdatedAt = time.Now().UTC()
	s.playbooks[p.ID] = p
	return nil
}

// CreateVersion implements store.PlaybookStore.
func (s *Store) CreateVersion(ctx context.Context, v *store.PlaybookVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey{v.PlaybookID, v.Version}
	if _, exists := s.versions[key]; exists {
		return fmt.Errorf("version already exists: %s v%d", v.PlaybookID, v.Version)
	}
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	s.versions[key] = v
	return nil
}

// GetVersion implements store.PlaybookStore.
func (s *Store) GetVersion(ctx context.Context, playbookID string, version int) (*store.PlaybookVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionKey{playbookID, version}]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "playbook version", ID: fmt.Sprintf("%s v%d", playbookID, version)}
	}
	return v, nil
}

// UpdateVersion implements store.PlaybookStore.
func (s *Store) UpdateVersion(ctx context.Context, v *store.PlaybookVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey{v.PlaybookID, v.Version}
	if _, exists := s.versions[key]; !exists {
		return &errors.NotFoundError{Resource: "playbook version", ID: fmt.Sprintf("%s v%d", v.PlaybookID, v.Version)}
	}
	v.UpdatedAt = time.Now().UTC()
	s.versions[key] = v
	return nil
}

// LatestVersion implements store.PlaybookStore.
func (s *Store) LatestVersion(ctx context.Context, playbookID string) (*store.PlaybookVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *store.PlaybookVersion
	for key, v := range s.versions {
		if key.playbookID != playbookID {
			continue
		}
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	if latest == nil {
		return nil, &errors.NotFoundError{Resource: "playbook version", ID: playbookID}
	}
	return latest, nil
}

// PublishedVersion implements store.PlaybookStore. The highest published
// version number wins.
func (s *Store) PublishedVersion(ctx context.Context, playbookID string) (*store.PlaybookVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var published *store.PlaybookVersion
	for key, v := range s.versions {
		if key.playbookID != playbookID || !v.Published() {
			continue
		}
		if published == nil || v.Version > published.Version {
			published = v
		}
	}
	if published == nil {
		return nil, &errors.NotFoundError{Resource: "published version", ID: playbookID}
	}
	return published, nil
}

// ListDispatchCandidates implements store.PlaybookStore. The trigger type
// check is a substring pre-filter over the serialized definition; callers
// re-parse to confirm membership.
func (s *Store) ListDispatchCandidates(ctx context.Context, orgID, triggerType string) ([]*store.PlaybookVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*store.PlaybookVersion
	for _, v := range s.versions {
		if v.OrganizationID != orgID || !v.Published() {
			continue
		}
		p, ok := s.playbooks[v.PlaybookID]
		if !ok || !p.Enabled {
			continue
		}
		if !strings.Contains(v.Definition, triggerType) {
			continue
		}
		// Only the currently published version of each playbook is a
		// candidate.
		if current := s.publishedLocked(v.PlaybookID); current == nil || current.Version != v.Version {
			continue
		}
		candidates = append(candidates, v)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PlaybookID != candidates[j].PlaybookID {
			return candidates[i].PlaybookID < candidates[j].PlaybookID
		}
		return candidates[i].Version < candidates[j].Version
	})
	return candidates, nil
}

func (s *Store) publishedLocked(playbookID string) *store.PlaybookVersion {
	var published *store.PlaybookVersion
	for key, v := range s.versions {
		if key.playbookID != playbookID || !v.Published() {
			continue
		}
		if published == nil || v.Version > published.Version {
			published = v
		}
	}
	return published
}

// CreateRunGroup implements store.RunStore.
func (s *Store) CreateRunGroup(ctx context.Context, g *store.RunGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; exists {
		return fmt.Errorf("run group already exists: %s", g.ID)
	}
	g.CreatedAt = time.Now().UTC()
	s.groups[g.ID] = g
	return nil
}

// GetRunGroup implements store.RunStore.
func (s *Store) GetRunGroup(ctx context.Context, id string) (*store.RunGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run group", ID: id}
	}
	return g, nil
}

// UpdateRunGroup implements store.RunStore.
func (s *Store) UpdateRunGroup(ctx context.Context, g *store.RunGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; !exists {
		return &errors.NotFoundError{Resource: "run group", ID: g.ID}
	}
	s.groups[g.ID] = g
	return nil
}

// CreateRun implements store.RunStore.
func (s *Store) CreateRun(ctx context.Context, r *store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return fmt.Errorf("run already exists: %s", r.ID)
	}
	if r.State == "" {
		r.State = store.RunStateInitial
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	s.runs[r.ID] = r
	return nil
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return r, nil
}

// UpdateRun implements store.RunStore.
func (s *Store) UpdateRun(ctx context.Context, r *store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; !exists {
		return &errors.NotFoundError{Resource: "run", ID: r.ID}
	}
	r.UpdatedAt = time.Now().UTC()
	s.runs[r.ID] = r
	return nil
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*store.Run
	for _, r := range s.runs {
		if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.PlaybookID != "" && r.PlaybookID != filter.PlaybookID {
			continue
		}
		if filter.GroupID != "" && r.GroupID != filter.GroupID {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Close implements io.Closer.
func (s *Store) Close() error { return nil }
