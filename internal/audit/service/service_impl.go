package service

import (
	"context"

	auditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

func (s *Service) AuditLog(ctx context.Context, tx *gorm.DB, orgID *snowflake.ID, actorUserID *snowflake.ID, action, targetType string, targetID *string, metadata map[string]any) error {
	conn := tx
	if conn == nil {
		conn = s.db
	}
	row := auditdomain.AuditLog{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    datatypes.JSONMap(metadata),
	}
	if err := conn.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, action string, limit int) ([]auditdomain.AuditLog, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if action != "" {
		query = query.Where("action = ?", action)
	}
	var logs []auditdomain.AuditLog
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
