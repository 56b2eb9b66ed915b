// Package postgres provides a PostgreSQL implementation of the composite
// store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of the composite store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("custodian/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custodian/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) PutPermission(ctx context.Context, p *permission.Permission) error {
	now := time.Now().UTC()
	if p.ID.IsNil() {
		p.ID = id.NewPermissionID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m := permissionToModel(p)
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(name) DO UPDATE SET description = EXCLUDED.description, roles = EXCLUDED.roles, is_system = EXCLUDED.is_system, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: put permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, name string) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.pgdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/postgres: get permission: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) DeletePermission(ctx context.Context, name string) error {
	res, err := s.pgdb.NewDelete((*permissionModel)(nil)).
		Where("name = ?", name).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: delete permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("custodian/postgres: delete permission rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.pgdb.NewSelect(&models).OrderExpr("name ASC")
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("roles @> ?::jsonb", jsonArray(filter.Role))
		}
		if filter.Prefix != "" {
			q = q.Where("name LIKE ?", filter.Prefix+"%")
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("name ILIKE ?", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/postgres: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*permissionModel)(nil))
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("roles @> ?::jsonb", jsonArray(filter.Role))
		}
		if filter.Prefix != "" {
			q = q.Where("name LIKE ?", filter.Prefix+"%")
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("name ILIKE ?", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/postgres: count permissions: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Role hierarchy operations
// ──────────────────────────────────────────────────

func (s *Store) PutInheritance(ctx context.Context, h *role.Inheritance) error {
	now := time.Now().UTC()
	if h.ID.IsNil() {
		h.ID = id.NewHierarchyID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	m := inheritanceToModel(h)
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(role) DO UPDATE SET inherits = EXCLUDED.inherits, is_system = EXCLUDED.is_system, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: put hierarchy: %w", err)
	}
	return nil
}

func (s *Store) GetInheritance(ctx context.Context, roleName string) (*role.Inheritance, error) {
	m := new(inheritanceModel)
	err := s.pgdb.NewSelect(m).Where("role = ?", roleName).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/postgres: get hierarchy: %w", err)
	}
	return inheritanceFromModel(m), nil
}

func (s *Store) DeleteInheritance(ctx context.Context, roleName string) error {
	res, err := s.pgdb.NewDelete((*inheritanceModel)(nil)).
		Where("role = ?", roleName).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: delete hierarchy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("custodian/postgres: delete hierarchy rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListInheritances(ctx context.Context, filter *role.ListFilter) ([]*role.Inheritance, error) {
	var models []inheritanceModel
	q := s.pgdb.NewSelect(&models).OrderExpr("role ASC")
	if filter != nil {
		if filter.Inherits != "" {
			q = q.Where("inherits @> ?::jsonb", jsonArray(filter.Inherits))
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/postgres: list hierarchy: %w", err)
	}
	result := make([]*role.Inheritance, len(models))
	for i := range models {
		result[i] = inheritanceFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Check log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCheckLog(ctx context.Context, e *checklog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m := checkLogToModel(e)
	_, err := s.pgdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	m := new(checkLogModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check log %s: %w", logID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/postgres: get check log: %w", err)
	}
	return checkLogFromModel(m), nil
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC")
	if filter != nil {
		for _, c := range checkLogClauses(filter) {
			q = q.Where(c.expr, c.arg)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/postgres: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, len(models))
	for i := range models {
		result[i] = checkLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*checkLogModel)(nil))
	if filter != nil {
		for _, c := range checkLogClauses(filter) {
			q = q.Where(c.expr, c.arg)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/postgres: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*checkLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/postgres: purge check logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("custodian/postgres: purge check logs rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteCheckLogsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*checkLogModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/postgres: delete check logs by tenant: %w", err)
	}
	return nil
}

// clause is a single WHERE expression with its argument.
type clause struct {
	expr string
	arg  any
}

func checkLogClauses(filter *checklog.QueryFilter) []clause {
	var cs []clause
	if filter.TenantID != "" {
		cs = append(cs, clause{"tenant_id = ?", filter.TenantID})
	}
	if filter.SubjectID != "" {
		cs = append(cs, clause{"subject_id = ?", filter.SubjectID})
	}
	if filter.SubjectRole != "" {
		cs = append(cs, clause{"subject_role = ?", filter.SubjectRole})
	}
	if filter.Path != "" {
		cs = append(cs, clause{"path = ?", filter.Path})
	}
	if filter.Decision != "" {
		cs = append(cs, clause{"decision = ?", filter.Decision})
	}
	if filter.Granted != nil {
		cs = append(cs, clause{"granted = ?", *filter.Granted})
	}
	if filter.After != nil {
		cs = append(cs, clause{"created_at >= ?", *filter.After})
	}
	if filter.Before != nil {
		cs = append(cs, clause{"created_at <= ?", *filter.Before})
	}
	return cs
}

// jsonArray encodes a single-element JSON array for jsonb containment.
func jsonArray(v string) string {
	b, _ := json.Marshal([]string{v}) //nolint:errcheck // marshaling a string slice cannot fail
	return string(b)
}
