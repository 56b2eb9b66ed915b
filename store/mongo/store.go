// Package mongo provides a MongoDB implementation of the composite store
// using grove ORM. Migrate creates the collection indexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// Collection name constants.
const (
	colPermissions = "custodian_permissions"
	colHierarchy   = "custodian_role_hierarchy"
	colCheckLogs   = "custodian_check_logs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("custodian/mongo: migrate %s indexes: %w", col, err)
		}
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

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colPermissions: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "roles", Value: 1}}},
		},
		colHierarchy: {
			{
				Keys:    bson.D{{Key: "role", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "inherits", Value: 1}}},
		},
		colCheckLogs: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "granted", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

// PutPermission updates the document matching p.Name in place, keeping its
// _id and created_at, or inserts a new one.
func (s *Store) PutPermission(ctx context.Context, p *permission.Permission) error {
	t := now()
	existing, err := s.GetPermission(ctx, p.Name)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		if p.ID.IsNil() {
			p.ID = id.NewPermissionID()
		}
		p.CreatedAt = t
	default:
		return fmt.Errorf("custodian/mongo: put permission: %w", err)
	}
	p.UpdatedAt = t
	m := permissionToModel(p)

	if existing == nil {
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("custodian/mongo: put permission: %w", err)
		}
		return nil
	}
	if _, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
		return fmt.Errorf("custodian/mongo: put permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, name string) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/mongo: get permission: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) DeletePermission(ctx context.Context, name string) error {
	res, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"name": name}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/mongo: delete permission: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).
		Filter(permissionFilter(filter)).
		Sort(bson.D{{Key: "name", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/mongo: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*permissionModel)(nil)).
		Filter(permissionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/mongo: count permissions: %w", err)
	}
	return count, nil
}

func permissionFilter(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Role != "" {
		// Equality against an array field matches any element.
		f["roles"] = filter.Role
	}
	if filter.Prefix != "" {
		f["name"] = bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Prefix)}
	}
	if filter.Search != "" {
		f["name"] = bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	return f
}

// ──────────────────────────────────────────────────
// Role hierarchy operations
// ──────────────────────────────────────────────────

func (s *Store) PutInheritance(ctx context.Context, h *role.Inheritance) error {
	t := now()
	existing, err := s.GetInheritance(ctx, h.Role)
	switch {
	case err == nil:
		h.ID = existing.ID
		h.CreatedAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		if h.ID.IsNil() {
			h.ID = id.NewHierarchyID()
		}
		h.CreatedAt = t
	default:
		return fmt.Errorf("custodian/mongo: put hierarchy: %w", err)
	}
	h.UpdatedAt = t
	m := inheritanceToModel(h)

	if existing == nil {
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("custodian/mongo: put hierarchy: %w", err)
		}
		return nil
	}
	if _, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
		return fmt.Errorf("custodian/mongo: put hierarchy: %w", err)
	}
	return nil
}

func (s *Store) GetInheritance(ctx context.Context, roleName string) (*role.Inheritance, error) {
	var m inheritanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"role": roleName}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/mongo: get hierarchy: %w", err)
	}
	return inheritanceFromModel(&m), nil
}

func (s *Store) DeleteInheritance(ctx context.Context, roleName string) error {
	res, err := s.mdb.NewDelete((*inheritanceModel)(nil)).
		Filter(bson.M{"role": roleName}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/mongo: delete hierarchy: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListInheritances(ctx context.Context, filter *role.ListFilter) ([]*role.Inheritance, error) {
	var models []inheritanceModel
	f := bson.M{}
	if filter != nil {
		if filter.Inherits != "" {
			f["inherits"] = filter.Inherits
		}
		if filter.IsSystem != nil {
			f["is_system"] = *filter.IsSystem
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "role", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/mongo: list hierarchy: %w", err)
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
		e.CreatedAt = now()
	}
	m := checkLogToModel(e)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custodian/mongo: create check log: %w", err)
	}
	return nil
}

func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	var m checkLogModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": logID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("check log %s: %w", logID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("custodian/mongo: get check log: %w", err)
	}
	return checkLogFromModel(&m), nil
}

func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	var models []checkLogModel
	q := s.mdb.NewFind(&models).
		Filter(checkLogFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custodian/mongo: list check logs: %w", err)
	}
	result := make([]*checklog.Entry, len(models))
	for i := range models {
		result[i] = checkLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*checkLogModel)(nil)).
		Filter(checkLogFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/mongo: count check logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*checkLogModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custodian/mongo: purge check logs: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DeleteCheckLogsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*checkLogModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custodian/mongo: delete check logs by tenant: %w", err)
	}
	return nil
}

func checkLogFilter(filter *checklog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.SubjectID != "" {
		f["subject_id"] = filter.SubjectID
	}
	if filter.SubjectRole != "" {
		f["subject_role"] = filter.SubjectRole
	}
	if filter.Path != "" {
		f["path"] = filter.Path
	}
	if filter.Decision != "" {
		f["decision"] = filter.Decision
	}
	if filter.Granted != nil {
		f["granted"] = *filter.Granted
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gte"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lte"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}
