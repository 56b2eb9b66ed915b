package postgres

import (
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
	Roles           []string  `grove:"roles,type:jsonb"`
	IsSystem        bool      `grove:"is_system,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return &permissionModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Roles:       roles,
		IsSystem:    p.IsSystem,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:          pid,
		Name:        m.Name,
		Description: m.Description,
		Roles:       m.Roles,
		IsSystem:    m.IsSystem,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Hierarchy model
// ──────────────────────────────────────────────────

type inheritanceModel struct {
	grove.BaseModel `grove:"table:custodian_role_hierarchy"`
	ID              string    `grove:"id,pk"`
	Role            string    `grove:"role,notnull,unique"`
	Inherits        []string  `grove:"inherits,type:jsonb"`
	IsSystem        bool      `grove:"is_system,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func inheritanceToModel(h *role.Inheritance) *inheritanceModel {
	inherits := h.Inherits
	if inherits == nil {
		inherits = []string{}
	}
	return &inheritanceModel{
		ID:        h.ID.String(),
		Role:      h.Role,
		Inherits:  inherits,
		IsSystem:  h.IsSystem,
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

func inheritanceFromModel(m *inheritanceModel) *role.Inheritance {
	hid, _ := id.ParseHierarchyID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &role.Inheritance{
		ID:        hid,
		Role:      m.Role,
		Inherits:  m.Inherits,
		IsSystem:  m.IsSystem,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Check log model
// ──────────────────────────────────────────────────

type checkLogModel struct {
	grove.BaseModel `grove:"table:custodian_check_logs"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	SubjectID       string         `grove:"subject_id,notnull"`
	SubjectRole     string         `grove:"subject_role,notnull"`
	Permissions     []string       `grove:"permissions,type:jsonb"`
	Path            string         `grove:"path,notnull"`
	ResourceType    string         `grove:"resource_type"`
	ResourceID      string         `grove:"resource_id"`
	Granted         bool           `grove:"granted,notnull"`
	Decision        string         `grove:"decision,notnull"`
	Reason          string         `grove:"reason"`
	EvalTimeNs      int64          `grove:"eval_time_ns,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func checkLogToModel(e *checklog.Entry) *checkLogModel {
	return &checkLogModel{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		AppID:        e.AppID,
		SubjectID:    e.SubjectID,
		SubjectRole:  e.SubjectRole,
		Permissions:  e.Permissions,
		Path:         e.Path,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Granted:      e.Granted,
		Decision:     e.Decision,
		Reason:       e.Reason,
		EvalTimeNs:   e.EvalTimeNs,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

func checkLogFromModel(m *checkLogModel) *checklog.Entry {
	clid, _ := id.ParseCheckLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &checklog.Entry{
		ID:           clid,
		TenantID:     m.TenantID,
		AppID:        m.AppID,
		SubjectID:    m.SubjectID,
		SubjectRole:  m.SubjectRole,
		Permissions:  m.Permissions,
		Path:         m.Path,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Granted:      m.Granted,
		Decision:     m.Decision,
		Reason:       m.Reason,
		EvalTimeNs:   m.EvalTimeNs,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
	}
}
