// Package domain contains the reporting-only usage event model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageEvent records one completed paid operation. It is written once per
// successful charge and read only for dashboards; balances and authorization
// never consult it.
type UsageEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID      `gorm:"not null;index:ix_usage_events_user,priority:1" json:"user_id"`
	OrgID       *snowflake.ID     `gorm:"index:ix_usage_events_org,priority:1" json:"org_id"`
	Description string            `gorm:"type:text;not null" json:"description"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt   time.Time         `gorm:"not null;index:ix_usage_events_user,priority:2;index:ix_usage_events_org,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
