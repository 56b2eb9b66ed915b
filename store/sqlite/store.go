// Package sqlite provides a SQLite implementation of the composite store
// using grove ORM. List-valued columns are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custodian/sqlite: migration failed: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// jsonContains matches rows whose JSON array column holds the argument.
func jsonContains(column string) string {
	return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.value = ?)"
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
	m, err := permissionToModel(p)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: put permission: %w", err)
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(name) DO UPDATE SET description = excluded.description, roles = excluded.roles, is_system = excluded.is_system, updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: put permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, name string) (*permission.Permission, error) {
	m := new(permissionModel)
	if err := s.sdb.NewSelect(m).Where("name = ?", name).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/sqlite: get permission: %w", err)
	}
	return permissionFromModel(m)
}

func (s *Store) DeletePermission(ctx context.Context, name string) error {
	res, err := s.sdb.NewDelete((*permissionModel)(nil)).
		Where("name = ?", name).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: delete permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("custodian/sqlite: delete permission rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.sdb.NewSelect(&models).OrderExpr("name ASC")
	if filter != nil {
		if filter.Role != "" {
			q = q.Where(jsonContains("roles"), filter.Role)
		}
		if filter.Prefix != "" {
			q = q.Where("name LIKE ?", filter.Prefix+"%")
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/sqlite: list permissions: %w", err)
	}
	result := make([]*permission.Permission, 0, len(models))
	for i := range models {
		p, err := permissionFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("custodian/sqlite: list permissions: %w", err)
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*permissionModel)(nil))
	if filter != nil {
		if filter.Role != "" {
			q = q.Where(jsonContains("roles"), filter.Role)
		}
		if filter.Prefix != "" {
			q = q.Where("name LIKE ?", filter.Prefix+"%")
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/sqlite: count permissions: %w", err)
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
	m, err := inheritanceToModel(h)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: put hierarchy: %w", err)
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(role) DO UPDATE SET inherits = excluded.inherits, is_system = excluded.is_system, updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: put hierarchy: %w", err)
	}
	return nil
}

func (s *Store) GetInheritance(ctx context.Context, roleName string) (*role.Inheritance, error) {
	m := new(inheritanceModel)
	if err := s.sdb.NewSelect(m).Where("role = ?", roleName).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/sqlite: get hierarchy: %w", err)
	}
	return inheritanceFromModel(m)
}

func (s *Store) DeleteInheritance(ctx context.Context, roleName string) error {
	res, err := s.sdb.NewDelete((*inheritanceModel)(nil)).
		Where("role = ?", roleName).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: delete hierarchy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("custodian/sqlite: delete hierarchy rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListInheritances(ctx context.Context, filter *role.ListFilter) ([]*role.Inheritance, error) {
	var models []inheritanceModel
	q := s.sdb.NewSelect(&models).OrderExpr("role ASC")
	if filter != nil {
		if filter.Inherits != "" {
			q = q.Where(jsonContains("inherits"), filter.Inherits)
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
		return nil, fmt.Errorf("custodian/sqlite: list hierarchy: %w", err)
	}
	result := make([]*role.Inheritance, 0, len(models))
	for i := range models {
		h, err := inheritanceFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("custodian/sqlite: list hierarchy: %w", err)
		}
		result = append(result, h)
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
	m, err := checkLogToModel(e)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: create check log: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custodian/sqlite: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	m := new(checkLogModel)
	if err := s.sdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("check log %s: %w", logID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/sqlite: get check log: %w", err)
	}
	return checkLogFromModel(m)
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")
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
		return nil, fmt.Errorf("custodian/sqlite: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, 0, len(models))
	for i := range models {
		e, err := checkLogFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("custodian/sqlite: list check logs: %w", err)
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*checkLogModel)(nil))
	if filter != nil {
		for _, c := range checkLogClauses(filter) {
			q = q.Where(c.expr, c.arg)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/sqlite: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*checkLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/sqlite: purge check logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("custodian/sqlite: purge check logs rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteCheckLogsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.sdb.NewDelete((*checkLogModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/sqlite: delete check logs by tenant: %w", err)
	}
	return nil
}

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
