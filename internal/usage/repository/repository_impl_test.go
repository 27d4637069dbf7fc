package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRecorder(t *testing.T) (usagedomain.Recorder, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.UsageEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(db, node), node
}

func TestListPagination(t *testing.T) {
	rec, node := newRecorder(t)
	ctx := context.Background()

	userID := node.Generate()
	otherID := node.Generate()
	base := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, rec.RecordTx(ctx, nil, usagedomain.UsageEvent{
			UserID:      userID,
			Description: fmt.Sprintf("polish %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, rec.RecordTx(ctx, nil, usagedomain.UsageEvent{
		UserID:      otherID,
		Description: "someone else",
		CreatedAt:   base,
	}))

	page1, err := rec.List(ctx, usagedomain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 3},
		UserID:     userID,
	})
	require.NoError(t, err)
	require.Len(t, page1.UsageEvents, 3)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextPageToken)
	// newest first
	assert.Equal(t, "polish 4", page1.UsageEvents[0].Description)
	assert.Equal(t, "polish 2", page1.UsageEvents[2].Description)

	page2, err := rec.List(ctx, usagedomain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: page1.NextPageToken},
		UserID:     userID,
	})
	require.NoError(t, err)
	require.Len(t, page2.UsageEvents, 2)
	assert.False(t, page2.HasMore)
	assert.Empty(t, page2.NextPageToken)
	assert.Equal(t, "polish 1", page2.UsageEvents[0].Description)
	assert.Equal(t, "polish 0", page2.UsageEvents[1].Description)
}

func TestListBadToken(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()

	_, err := rec.List(ctx, usagedomain.ListRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPageToken)

	// valid base64 but not a cursor payload
	_, err = rec.List(ctx, usagedomain.ListRequest{
		Pagination: pagination.Pagination{PageToken: "eyJpZCI6ImFiYyJ9"},
	})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidPageToken)
}

func TestRecordGeneratesID(t *testing.T) {
	rec, node := newRecorder(t)
	ctx := context.Background()

	userID := node.Generate()
	require.NoError(t, rec.RecordTx(ctx, nil, usagedomain.UsageEvent{
		UserID:      userID,
		Description: "polish",
	}))

	resp, err := rec.List(ctx, usagedomain.ListRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, resp.UsageEvents, 1)
	assert.NotZero(t, resp.UsageEvents[0].ID)
}
