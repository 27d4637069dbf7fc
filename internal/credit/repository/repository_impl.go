package repository

import (
	"context"
	"time"

	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	pkgdb "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) creditdomain.Repository {
	return &repo{db: db, genID: genID}
}

func (r *repo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// LockScope takes a row lock on the scope owner, serializing concurrent
// check-and-append sequences for the same scope. Different scopes never
// block each other.
func (r *repo) LockScope(ctx context.Context, tx *gorm.DB, scope creditdomain.Scope) error {
	var table string
	switch scope.Type {
	case creditdomain.ScopeTypeOrg:
		table = "organizations"
	case creditdomain.ScopeTypeUser:
		table = "users"
	default:
		return creditdomain.ErrUnknownScope
	}

	var id snowflake.ID
	err := r.conn(tx).WithContext(ctx).Raw(
		`SELECT id FROM `+table+` WHERE id = ?`+pkgdb.LockingClause(r.db),
		scope.ID,
	).Scan(&id).Error
	if err != nil {
		return err
	}
	if id == 0 {
		return creditdomain.ErrUnknownScope
	}
	return nil
}

func (r *repo) AppendEntry(ctx context.Context, tx *gorm.DB, draft creditdomain.LedgerEntryDraft) (*creditdomain.LedgerEntry, error) {
	entry := creditdomain.LedgerEntry{
		ID:          r.genID.Generate(),
		ScopeType:   draft.ScopeType,
		ScopeID:     draft.ScopeID,
		Delta:       draft.Delta,
		Reason:      draft.Reason,
		ActorUserID: draft.ActorUserID,
		CreatedAt:   draft.CreatedAt.UTC(),
	}
	if err := r.conn(tx).WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) SumBalance(ctx context.Context, tx *gorm.DB, scope creditdomain.Scope) (int64, error) {
	var balance int64
	err := r.conn(tx).WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0)
		 FROM credit_ledger_entries
		 WHERE scope_type = ? AND scope_id = ?`,
		scope.Type,
		scope.ID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) SpentInWindow(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID, start, end time.Time) (int64, error) {
	var spent int64
	err := r.conn(tx).WithContext(ctx).Raw(
		`SELECT COALESCE(-SUM(delta), 0)
		 FROM credit_ledger_entries
		 WHERE scope_type = ?
		   AND scope_id = ?
		   AND actor_user_id = ?
		   AND delta < 0
		   AND created_at >= ?
		   AND created_at < ?`,
		creditdomain.ScopeTypeOrg,
		orgID,
		userID,
		start.UTC(),
		end.UTC(),
	).Scan(&spent).Error
	if err != nil {
		return 0, err
	}
	return spent, nil
}

func (r *repo) ActiveCap(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID) (*creditdomain.MonthlyCap, error) {
	var caps []creditdomain.MonthlyCap
	err := r.conn(tx).WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND active = ?", orgID, userID, true).
		Limit(1).
		Find(&caps).Error
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, nil
	}
	return &caps[0], nil
}

func (r *repo) UpsertCap(ctx context.Context, tx *gorm.DB, cap creditdomain.MonthlyCap) (*creditdomain.MonthlyCap, error) {
	if cap.ID == 0 {
		cap.ID = r.genID.Generate()
	}
	err := r.conn(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cap", "active", "updated_at"}),
	}).Create(&cap).Error
	if err != nil {
		return nil, err
	}

	var stored creditdomain.MonthlyCap
	if err := r.conn(tx).WithContext(ctx).
		Where("org_id = ? AND user_id = ?", cap.OrgID, cap.UserID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repo) ListEntries(ctx context.Context, scope creditdomain.Scope, limit int) ([]creditdomain.LedgerEntry, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var entries []creditdomain.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) CountEntries(ctx context.Context, scope creditdomain.Scope) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&creditdomain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
