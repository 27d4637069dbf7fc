package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the append-only ledger store plus the cap-policy table.
// Methods taking a tx participate in the caller's transaction so a charge's
// check and append commit or roll back as one unit.
type Repository interface {
	// LockScope serializes writers for one scope by locking the owning
	// organization or user row. It also validates the scope exists,
	// returning ErrUnknownScope otherwise.
	LockScope(ctx context.Context, tx *gorm.DB, scope Scope) error

	AppendEntry(ctx context.Context, tx *gorm.DB, draft LedgerEntryDraft) (*LedgerEntry, error)
	SumBalance(ctx context.Context, tx *gorm.DB, scope Scope) (int64, error)

	// SpentInWindow sums the debits one member drew from the org pool in
	// [start, end).
	SpentInWindow(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID, start, end time.Time) (int64, error)

	ActiveCap(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID) (*MonthlyCap, error)
	UpsertCap(ctx context.Context, tx *gorm.DB, cap MonthlyCap) (*MonthlyCap, error)

	ListEntries(ctx context.Context, scope Scope, limit int) ([]LedgerEntry, error)
	CountEntries(ctx context.Context, scope Scope) (int64, error)
}
