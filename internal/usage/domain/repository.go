package domain

import (
	"context"
	"errors"

	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ErrInvalidPageToken marks an unparseable list cursor, a caller input
// problem rather than a store failure.
var ErrInvalidPageToken = errors.New("invalid_page_token")

type ListRequest struct {
	pagination.Pagination
	UserID snowflake.ID
	OrgID  snowflake.ID
}

type ListResponse struct {
	pagination.PageInfo
	UsageEvents []UsageEvent `json:"usage_events"`
}

// Recorder persists usage events. RecordTx joins the caller's transaction so
// the event commits atomically with its charge.
type Recorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, event UsageEvent) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
