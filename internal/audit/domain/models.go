// Package domain contains the append-only audit trail of admin actions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one administrative action (grant, set-exact, cap change).
// Rows are never updated or deleted.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       *snowflake.ID     `gorm:"index" json:"org_id"`
	ActorUserID *snowflake.ID     `gorm:"index" json:"actor_user_id"`
	Action      string            `gorm:"type:text;not null;index" json:"action"`
	TargetType  string            `gorm:"type:text;not null" json:"target_type"`
	TargetID    *string           `gorm:"type:text" json:"target_id"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
