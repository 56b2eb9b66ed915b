package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
)

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:custodian_permissions"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull,unique"`
	Description     string    `grove:"description"`
	Roles           string    `grove:"roles,notnull"` // JSON array
	IsSystem        bool      `grove:"is_system,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) (*permissionModel, error) {
	roles, err := marshalStrings(p.Roles)
	if err != nil {
		return nil, fmt.Errorf("marshal permission roles: %w", err)
	}
	return &permissionModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Roles:       roles,
		IsSystem:    p.IsSystem,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func permissionFromModel(m *permissionModel) (*permission.Permission, error) {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	roles, err := unmarshalStrings(m.Roles)
	if err != nil {
		return nil, fmt.Errorf("unmarshal permission roles: %w", err)
	}
	return &permission.Permission{
		ID:          pid,
		Name:        m.Name,
		Description: m.Description,
		Roles:       roles,
		IsSystem:    m.IsSystem,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Hierarchy model
// ──────────────────────────────────────────────────

type inheritanceModel struct {
	grove.BaseModel `grove:"table:custodian_role_hierarchy"`
	ID              string    `grove:"id,pk"`
	Role            string    `grove:"role,notnull,unique"`
	Inherits        string    `grove:"inherits,notnull"` // JSON array
	IsSystem        bool      `grove:"is_system,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func inheritanceToModel(h *role.Inheritance) (*inheritanceModel, error) {
	inherits, err := marshalStrings(h.Inherits)
	if err != nil {
		return nil, fmt.Errorf("marshal inherited roles: %w", err)
	}
	return &inheritanceModel{
		ID:        h.ID.String(),
		Role:      h.Role,
		Inherits:  inherits,
		IsSystem:  h.IsSystem,
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}, nil
}

func inheritanceFromModel(m *inheritanceModel) (*role.Inheritance, error) {
	hid, _ := id.ParseHierarchyID(m.ID) //nolint:errcheck // stored IDs are always valid
	inherits, err := unmarshalStrings(m.Inherits)
	if err != nil {
		return nil, fmt.Errorf("unmarshal inherited roles: %w", err)
	}
	return &role.Inheritance{
		ID:        hid,
		Role:      m.Role,
		Inherits:  inherits,
		IsSystem:  m.IsSystem,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:custodian_check_logs"`
	ID              string    `grove:"id,pk"`
	TenantID        string    `grove:"tenant_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	SubjectID       string    `grove:"subject_id,notnull"`
	SubjectRole     string    `grove:"subject_role,notnull"`
	Permissions     string    `grove:"permissions,notnull"` // JSON array
	Path            string    `grove:"path,notnull"`
	ResourceType    string    `grove:"resource_type"`
	ResourceID      string    `grove:"resource_id"`
	Granted         bool      `grove:"granted,notnull"`
	Decision        string    `grove:"decision,notnull"`
	Reason          string    `grove:"reason"`
	EvalTimeNs      int64     `grove:"eval_time_ns,notnull"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func checkLogToModel(e *checklog.Entry) (*checkLogModel, error) {
	perms, err := marshalStrings(e.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal check log permissions: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal check log metadata: %w", err)
	}
	return &checkLogModel{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		AppID:        e.AppID,
		SubjectID:    e.SubjectID,
		SubjectRole:  e.SubjectRole,
		Permissions:  perms,
		Path:         e.Path,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Granted:      e.Granted,
		Decision:     e.Decision,
		Reason:       e.Reason,
		EvalTimeNs:   e.EvalTimeNs,
		Metadata:     string(metadata),
		CreatedAt:    e.CreatedAt,
	}, nil
}

func checkLogFromModel(m *checkLogModel) (*checklog.Entry, error) {
	clid, _ := id.ParseCheckLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	perms, err := unmarshalStrings(m.Permissions)
	if err != nil {
		return nil, fmt.Errorf("unmarshal check log permissions: %w", err)
	}
	var metadata map[string]any
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal check log metadata: %w", err)
		}
	}
	return &checklog.Entry{
		ID:           clid,
		TenantID:     m.TenantID,
		AppID:        m.AppID,
		SubjectID:    m.SubjectID,
		SubjectRole:  m.SubjectRole,
		Permissions:  perms,
		Path:         m.Path,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Granted:      m.Granted,
		Decision:     m.Decision,
		Reason:       m.Reason,
		EvalTimeNs:   m.EvalTimeNs,
		Metadata:     metadata,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
