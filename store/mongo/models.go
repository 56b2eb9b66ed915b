package mongo

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
	ID              string    `grove:"id,pk"        bson:"_id"`
	Name            string    `grove:"name"         bson:"name"`
	Description     string    `grove:"description"  bson:"description"`
	Roles           []string  `grove:"roles"        bson:"roles"`
	IsSystem        bool      `grove:"is_system"    bson:"is_system"`
	CreatedAt       time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"   bson:"updated_at"`
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
	ID              string    `grove:"id,pk"       bson:"_id"`
	Role            string    `grove:"role"        bson:"role"`
	Inherits        []string  `grove:"inherits"    bson:"inherits"`
	IsSystem        bool      `grove:"is_system"   bson:"is_system"`
	CreatedAt       time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"  bson:"updated_at"`
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
	ID              string         `grove:"id,pk"           bson:"_id"`
	TenantID        string         `grove:"tenant_id"       bson:"tenant_id"`
	AppID           string         `grove:"app_id"          bson:"app_id"`
	SubjectID       string         `grove:"subject_id"      bson:"subject_id"`
	SubjectRole     string         `grove:"subject_role"    bson:"subject_role"`
	Permissions     []string       `grove:"permissions"     bson:"permissions"`
	Path            string         `grove:"path"            bson:"path"`
	ResourceType    string         `grove:"resource_type"   bson:"resource_type"`
	ResourceID      string         `grove:"resource_id"     bson:"resource_id"`
	Granted         bool           `grove:"granted"         bson:"granted"`
	Decision        string         `grove:"decision"        bson:"decision"`
	Reason          string         `grove:"reason"          bson:"reason"`
	EvalTimeNs      int64          `grove:"eval_time_ns"    bson:"eval_time_ns"`
	Metadata        map[string]any `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"      bson:"created_at"`
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
