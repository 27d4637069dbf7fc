package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service writes and reads the admin audit trail. AuditLog joins the caller's
// transaction when tx is non-nil so an adjustment and its audit row commit or
// roll back as one unit.
type Service interface {
	AuditLog(ctx context.Context, tx *gorm.DB, orgID *snowflake.ID, actorUserID *snowflake.ID, action, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, action string, limit int) ([]AuditLog, error)
}
