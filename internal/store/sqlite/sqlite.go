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

// Package sqlite provides a SQLite store implementation for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/pkg/errors"
	"github.com/tombee/playbook/pkg/playbook"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ store.PlaybookStore  = (*Store)(nil)
	_ store.RunStore       = (*Store)(nil)
	_ store.CustomerSource = (*Store)(nil)
	_ store.OrgSource      = (*Store)(nil)
	_ store.Store          = (*Store)(nil)
)

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens the database, configures pragmas, and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so keep a single connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			enabled INTEGER DEFAULT 1,
			bot_installed INTEGER DEFAULT 0,
			integrations TEXT,
			system_member_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			staff INTEGER DEFAULT 0,
			system INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_org ON members(organization_id)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			segments TEXT,
			room_count INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_org ON customers(organization_id)`,
		`CREATE TABLE IF NOT EXISTS playbooks (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			enabled INTEGER DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playbooks_org ON playbooks(organization_id)`,
		`CREATE TABLE IF NOT EXISTS playbook_versions (
			playbook_id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			definition TEXT NOT NULL,
			published_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (playbook_id, version),
			FOREIGN KEY (playbook_id) REFERENCES playbooks(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_org ON playbook_versions(organization_id)`,
		`CREATE TABLE IF NOT EXISTS run_groups (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			playbook_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			dispatch_type TEXT NOT NULL,
			settings TEXT,
			trigger_id TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			total_dispatch_count INTEGER,
			created_by_member_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_groups_playbook ON run_groups(playbook_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			playbook_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			definition TEXT NOT NULL,
			state TEXT NOT NULL,
			properties TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT,
			FOREIGN KEY (group_id) REFERENCES run_groups(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_group ON runs(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_playbook ON runs(playbook_id)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// AddOrganization seeds an organization.
func (s *Store) AddOrganization(ctx context.Context, org *store.Organization) error {
	integrations, err := json.Marshal(org.Integrations)
	if err != nil {
		return err
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, enabled, bot_installed, integrations, system_member_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, boolInt(org.Enabled), boolInt(org.BotInstalled),
		string(integrations), org.SystemMemberID, formatTime(org.CreatedAt))
	return err
}

// AddMember seeds a member.
func (s *Store) AddMember(ctx context.Context, m *store.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, organization_id, name, staff, system) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.OrganizationID, m.Name, boolInt(m.Staff), boolInt(m.System))
	return err
}

// AddCustomer seeds a customer.
func (s *Store) AddCustomer(ctx context.Context, c *store.Customer) error {
	segments, err := json.Marshal(c.Segments)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO customers (id, organization_id, name, segments, room_count) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Name, string(segments), c.RoomCount)
	return err
}

// GetOrganization implements store.OrgSource.
func (s *Store) GetOrganization(ctx context.Context, id string) (*store.Organization, error) {
	var org store.Organization
	var enabled, botInstalled int
	var integrations, createdAt sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, enabled, bot_installed, integrations, system_member_id, created_at
		 FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &enabled, &botInstalled, &integrations, &org.SystemMemberID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "organization", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	org.Enabled = enabled != 0
	org.BotInstalled = botInstalled != 0
	if integrations.Valid && integrations.String != "" {
		if err := json.Unmarshal([]byte(integrations.String), &org.Integrations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal integrations: %w", err)
		}
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

// GetMember implements store.OrgSource.
func (s *Store) GetMember(ctx context.Context, id string) (*store.Member, error) {
	var m store.Member
	var staff, system int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, staff, system FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.OrganizationID, &m.Name, &staff, &system)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "member", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	m.Staff = staff != 0
	m.System = system != 0
	return &m, nil
}

// SystemMember implements store.OrgSource.
func (s *Store) SystemMember(ctx context.Context, orgID string) (*store.Member, error) {
	var m store.Member
	var staff, system int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, staff, system FROM members
		 WHERE organization_id = ? AND system = 1 LIMIT 1`, orgID).
		Scan(&m.ID, &m.OrganizationID, &m.Name, &staff, &system)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "system member", ID: orgID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system member: %w", err)
	}
	m.Staff = staff != 0
	m.System = system != 0
	return &m, nil
}

// ListCustomers implements store.CustomerSource. Segment filtering happens
// in Go after the room-count filter; segments are stored as JSON and the
// comparison ignores case.
func (s *Store) ListCustomers(ctx context.Context, orgID string, segments []string) ([]*store.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, segments, room_count FROM customers
		 WHERE organization_id = ? AND room_count > 0 ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*store.Customer
	for rows.Next() {
		var c store.Customer
		var segmentsJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &segmentsJSON, &c.RoomCount); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		if segmentsJSON.Valid && segmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(segmentsJSON.String), &c.Segments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
			}
		}
		if c.MatchesSegments(segments) {
			customers = append(customers, &c)
		}
	}
	return customers, rows.Err()
}

// CreatePlaybook implements store.PlaybookStore.
func (s *Store) CreatePlaybook(ctx context.Context, p *store.Playbook) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playbooks (id, organization_id, name, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrganizationID, p.Name, boolInt(p.Enabled), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create playbook: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPlaybook implements store.PlaybookStore.
func (s *Store) GetPlaybook(ctx context.Context, id string) (*store.Playbook, error) {
	var p store.Playbook
	var enabled int
	var createdAt, updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, enabled, created_at, updated_at FROM playbooks WHERE id = ?`, id).
		Scan(&p.ID, &p.OrganizationID, &p.Name, &enabled, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "playbook", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playbook: %w", err)
	}
	p.Enabled = enabled != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpdatePlaybook implements store.PlaybookStore.
func (s *Store) UpdatePlaybook(ctx context.Context, p *store.Playbook) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE playbooks SET name = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		p.Name, boolInt(p.Enabled), formatTime(now), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update playbook: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &errors.NotFoundError{Resource: "playbook", ID: p.ID}
	}
	p.UpdatedAt = now
	return nil
}

// CreateVersion implements store.PlaybookStore.
func (s *Store) CreateVersion(ctx context.Context, v *store.PlaybookVersion) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playbook_versions (playbook_id, organization_id, version, definition, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.PlaybookID, v.OrganizationID, v.Version, v.Definition,
		formatTimePtr(v.PublishedAt), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetVersion implements store.PlaybookStore.
func (s *Store) GetVersion(ctx context.Context, playbookID string, version int) (*store.PlaybookVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT playbook_id, organization_id, version, definition, published_at, created_at, updated_at
		 FROM playbook_versions WHERE playbook_id = ? AND version = ?`, playbookID, version)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "playbook version", ID: fmt.Sprintf("%s v%d", playbookID, version)}
	}
	return v, err
}

// UpdateVersion implements store.PlaybookStore.
func (s *Store) UpdateVersion(ctx context.Context, v *store.PlaybookVersion) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE playbook_versions SET definition = ?, published_at = ?, updated_at = ?
		 WHERE playbook_id = ? AND version = ?`,
		v.Definition, formatTimePtr(v.PublishedAt), formatTime(now), v.PlaybookID, v.Version)
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &errors.NotFoundError{Resource: "playbook version", ID: fmt.Sprintf("%s v%d", v.PlaybookID, v.Version)}
	}
	v.UpdatedAt = now
	return nil
}

// LatestVersion implements store.PlaybookStore.
func (s *Store) LatestVersion(ctx context.Context, playbookID string) (*store.PlaybookVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT playbook_id, organization_id, version, definition, published_at, created_at, updated_at
		 FROM playbook_versions
		 WHERE playbook_id = ?
		 ORDER BY version DESC LIMIT 1`, playbookID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "playbook version", ID: playbookID}
	}
	return v, err
}

// PublishedVersion implements store.PlaybookStore.
func (s *Store) PublishedVersion(ctx context.Context, playbookID string) (*store.PlaybookVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT playbook_id, organization_id, version, definition, published_at, created_at, updated_at
		 FROM playbook_versions
		 WHERE playbook_id = ? AND published_at IS NOT NULL
		 ORDER BY version DESC LIMIT 1`, playbookID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "published version", ID: playbookID}
	}
	return v, err
}

// ListDispatchCandidates implements store.PlaybookStore. The LIKE clause is
// a cheap pre-filter over the serialized definition; callers re-parse each
// candidate to confirm real trigger membership.
func (s *Store) ListDispatchCandidates(ctx context.Context, orgID, triggerType string) ([]*store.PlaybookVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.playbook_id, v.organization_id, v.version, v.definition, v.published_at, v.created_at, v.updated_at
		 FROM playbook_versions v
		 JOIN playbooks p ON p.id = v.playbook_id
		 WHERE v.organization_id = ?
		   AND p.enabled = 1
		   AND v.published_at IS NOT NULL
		   AND v.definition LIKE '%' || ? || '%'
		   AND v.version = (
			SELECT MAX(pv.version) FROM playbook_versions pv
			WHERE pv.playbook_id = v.playbook_id AND pv.published_at IS NOT NULL
		   )
		 ORDER BY v.playbook_id ASC`, orgID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*store.PlaybookVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, v)
	}
	return candidates, rows.Err()
}

// CreateRunGroup implements store.RunStore.
func (s *Store) CreateRunGroup(ctx context.Context, g *store.RunGroup) error {
	settings, err := json.Marshal(g.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_groups (id, organization_id, playbook_id, version, dispatch_type, settings,
			trigger_id, trigger_type, total_dispatch_count, created_by_member_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OrganizationID, g.PlaybookID, g.Version, string(g.DispatchType), string(settings),
		g.TriggerID, g.TriggerType, nullIntPtr(g.TotalDispatchCount), g.CreatedByMemberID, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create run group: %w", err)
	}
	g.CreatedAt = now
	return nil
}

// GetRunGroup implements store.RunStore.
func (s *Store) GetRunGroup(ctx context.Context, id string) (*store.RunGroup, error) {
	var g store.RunGroup
	var dispatchType string
	var settings, createdAt sql.NullString
	var count sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, playbook_id, version, dispatch_type, settings,
			trigger_id, trigger_type, total_dispatch_count, created_by_member_id, created_at
		 FROM run_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.OrganizationID, &g.PlaybookID, &g.Version, &dispatchType, &settings,
			&g.TriggerID, &g.TriggerType, &count, &g.CreatedByMemberID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run group", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run group: %w", err)
	}

	g.DispatchType = playbook.DispatchType(dispatchType)
	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &g.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	if count.Valid {
		n := int(count.Int64)
		g.TotalDispatchCount = &n
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

// UpdateRunGroup implements store.RunStore.
func (s *Store) UpdateRunGroup(ctx context.Context, g *store.RunGroup) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_groups SET total_dispatch_count = ? WHERE id = ?`,
		nullIntPtr(g.TotalDispatchCount), g.ID)
	if err != nil {
		return fmt.Errorf("failed to update run group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &errors.NotFoundError{Resource: "run group", ID: g.ID}
	}
	return nil
}

// CreateRun implements store.RunStore.
func (s *Store) CreateRun(ctx context.Context, r *store.Run) error {
	properties, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	if r.State == "" {
		r.State = store.RunStateInitial
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, group_id, organization_id, playbook_id, version, definition, state,
			properties, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GroupID, r.OrganizationID, r.PlaybookID, r.Version, r.Definition, r.State,
		string(properties), formatTime(now), formatTime(now), formatTimePtr(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, organization_id, playbook_id, version, definition, state,
			properties, created_at, updated_at, completed_at
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return r, err
}

// UpdateRun implements store.RunStore. Only the mutable fields change;
// the frozen definition and dispatch coordinates never do.
func (s *Store) UpdateRun(ctx context.Context, r *store.Run) error {
	properties, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, properties = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		r.State, string(properties), formatTime(now), formatTimePtr(r.CompletedAt), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &errors.NotFoundError{Resource: "run", ID: r.ID}
	}
	r.UpdatedAt = now
	return nil
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	query := `SELECT id, group_id, organization_id, playbook_id, version, definition, state,
		properties, created_at, updated_at, completed_at FROM runs WHERE 1=1`
	var args []any
	if filter.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	if filter.PlaybookID != "" {
		query += " AND playbook_id = ?"
		args = append(args, filter.PlaybookID)
	}
	if filter.GroupID != "" {
		query += " AND group_id = ?"
		args = append(args, filter.GroupID)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*store.PlaybookVersion, error) {
	var v store.PlaybookVersion
	var publishedAt, createdAt, updatedAt sql.NullString
	err := row.Scan(&v.PlaybookID, &v.OrganizationID, &v.Version, &v.Definition,
		&publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.PublishedAt = parseTimePtr(publishedAt)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func scanRun(row rowScanner) (*store.Run, error) {
	var r store.Run
	var properties, createdAt, updatedAt, completedAt sql.NullString
	err := row.Scan(&r.ID, &r.GroupID, &r.OrganizationID, &r.PlaybookID, &r.Version,
		&r.Definition, &r.State, &properties, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if properties.Valid && properties.String != "" {
		if err := json.Unmarshal([]byte(properties.String), &r.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.CompletedAt = parseTimePtr(completedAt)
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s.String)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullIntPtr(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
