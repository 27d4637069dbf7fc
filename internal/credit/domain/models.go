// Package domain contains persistence models for the credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ScopeType identifies which kind of balance a ledger entry applies to.
type ScopeType string

const (
	ScopeTypeOrg  ScopeType = "org"
	ScopeTypeUser ScopeType = "user"
)

// Scope is the billing unit a charge or adjustment applies to: an
// organization's shared pool or an individual user's personal balance.
type Scope struct {
	Type ScopeType    `json:"type"`
	ID   snowflake.ID `json:"id"`
}

// LockKey returns the advisory-lock key serializing writers on this scope.
func (s Scope) LockKey() string {
	return string(s.Type) + ":" + s.ID.String()
}

// LedgerEntry is an immutable signed credit delta. The balance of a scope is
// always derived as the sum of its entries; there is no stored balance column.
type LedgerEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	ScopeType   ScopeType     `gorm:"type:text;not null;index:ix_credit_ledger_scope,priority:1" json:"scope_type"`
	ScopeID     snowflake.ID  `gorm:"not null;index:ix_credit_ledger_scope,priority:2;index:ix_credit_ledger_actor,priority:1" json:"scope_id"`
	Delta       int64         `gorm:"not null" json:"delta"`
	Reason      string        `gorm:"type:text;not null" json:"reason"`
	ActorUserID *snowflake.ID `gorm:"index:ix_credit_ledger_actor,priority:2" json:"actor_user_id"`
	CreatedAt   time.Time     `gorm:"not null;index:ix_credit_ledger_scope,priority:3;index:ix_credit_ledger_actor,priority:3" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger_entries" }

// LedgerEntryDraft is the input for a single append. CreatedAt is stamped by
// the caller so monthly windows follow the injected clock.
type LedgerEntryDraft struct {
	ScopeType   ScopeType
	ScopeID     snowflake.ID
	Delta       int64
	Reason      string
	ActorUserID *snowflake.ID
	CreatedAt   time.Time
}

// MonthlyCap bounds how much of an org pool one member may consume per
// calendar month. A nil Cap or no active row means unlimited. This is current
// policy, not history, so rows are updated in place.
type MonthlyCap struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;uniqueIndex:ux_monthly_caps_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_monthly_caps_org_user,priority:2" json:"user_id"`
	Cap       *int64       `json:"cap"`
	Active    bool         `gorm:"not null" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MonthlyCap) TableName() string { return "monthly_caps" }

// MonthWindow returns [start, end) of the calendar month containing now, UTC.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
