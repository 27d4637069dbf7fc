package repository

import (
	"context"
	"fmt"
	"time"

	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const cursorTimeLayout = "2006-01-02T15:04:05.999999Z07:00"

type recorder struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) usagedomain.Recorder {
	return &recorder{db: db, genID: genID}
}

func (r *recorder) RecordTx(ctx context.Context, tx *gorm.DB, event usagedomain.UsageEvent) error {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	if event.ID == 0 {
		event.ID = r.genID.Generate()
	}
	return conn.WithContext(ctx).Create(&event).Error
}

func (r *recorder) List(ctx context.Context, req usagedomain.ListRequest) (usagedomain.ListResponse, error) {
	size := req.PageSize
	if size <= 0 || size > 250 {
		size = 25
	}

	query := r.db.WithContext(ctx).Model(&usagedomain.UsageEvent{})
	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.OrgID != 0 {
		query = query.Where("org_id = ?", req.OrgID)
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return usagedomain.ListResponse{}, fmt.Errorf("%w: %v", usagedomain.ErrInvalidPageToken, err)
		}
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return usagedomain.ListResponse{}, fmt.Errorf("%w: %v", usagedomain.ErrInvalidPageToken, err)
		}
		lastCreated, err := time.Parse(cursorTimeLayout, cursor.CreatedAt)
		if err != nil {
			return usagedomain.ListResponse{}, fmt.Errorf("%w: %v", usagedomain.ErrInvalidPageToken, err)
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			lastCreated, lastCreated, lastID)
	}

	var events []usagedomain.UsageEvent
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(size + 1).
		Find(&events).Error; err != nil {
		return usagedomain.ListResponse{}, err
	}

	resp := usagedomain.ListResponse{}
	if len(events) > size {
		events = events[:size]
		last := events[len(events)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(cursorTimeLayout),
		})
		if err != nil {
			return usagedomain.ListResponse{}, err
		}
		resp.HasMore = true
		resp.NextPageToken = token
	}
	resp.UsageEvents = events
	return resp, nil
}
