// Package domain contains persistence models for organizations and members.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a tenant with a shared credit pool.
type Organization struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"type:text;not null" json:"name"`
	Slug      string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// User is a recruiter account. OrgID is nil for standalone users, who
// charge against a personal balance instead of an org pool.
type User struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email       string        `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	DisplayName string        `gorm:"type:text" json:"display_name"`
	OrgID       *snowflake.ID `gorm:"index" json:"org_id"`
	IsAdmin     bool          `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Membership is the resolved org attachment of a user.
type Membership struct {
	UserID snowflake.ID
	OrgID  *snowflake.ID
}
