// Package checklog defines the access decision audit Entry and its store
// interface.
package checklog

import (
	"time"

	"github.com/xraph/custodian/id"
)

// Entry is one audited access attempt made through a gate.
type Entry struct {
	ID           id.CheckLogID  `json:"id" db:"id"`
	TenantID     string         `json:"tenant_id" db:"tenant_id"`
	AppID        string         `json:"app_id" db:"app_id"`
	SubjectID    string         `json:"subject_id" db:"subject_id"`
	SubjectRole  string         `json:"subject_role" db:"subject_role"`
	Permissions  []string       `json:"permissions" db:"permissions"`
	Path         string         `json:"path" db:"path"`
	ResourceType string         `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty" db:"resource_id"`
	Granted      bool           `json:"granted" db:"granted"`
	Decision     string         `json:"decision" db:"decision"`
	Reason       string         `json:"reason,omitempty" db:"reason"`
	EvalTimeNs   int64          `json:"eval_time_ns" db:"eval_time_ns"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying check logs.
type QueryFilter struct {
	TenantID    string     `json:"tenant_id,omitempty"`
	SubjectID   string     `json:"subject_id,omitempty"`
	SubjectRole string     `json:"subject_role,omitempty"`
	Path        string     `json:"path,omitempty"`
	Decision    string     `json:"decision,omitempty"`
	Granted     *bool      `json:"granted,omitempty"`
	After       *time.Time `json:"after,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
