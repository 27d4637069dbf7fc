package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// RejectReason distinguishes why a charge was refused so the host can direct
// the user (top up the pool vs. wait for the monthly window).
type RejectReason string

const (
	RejectInsufficientOrgCredits  RejectReason = "insufficient_org_credits"
	RejectInsufficientUserCredits RejectReason = "insufficient_user_credits"
	RejectUserMonthlyCapReached   RejectReason = "user_monthly_cap_reached"
)

type ChargeRequest struct {
	UserID snowflake.ID
	Cost   int64
	Reason string
	// AdminBypass skips all checks and writes nothing; admin operations are
	// free and untracked.
	AdminBypass bool
}

// ChargeResult is the outcome of a charge attempt. Rejections are expected
// outcomes, not errors: Authorized=false with a Reason means the gated
// operation must not proceed.
type ChargeResult struct {
	Authorized       bool         `json:"authorized"`
	Bypassed         bool         `json:"bypassed,omitempty"`
	Reason           RejectReason `json:"reason,omitempty"`
	Scope            Scope        `json:"scope"`
	RemainingBalance int64        `json:"remaining_balance"`
}

// CapStatus reports a member's monthly consumption against their cap.
// Cap and Remaining are nil when the member is unlimited.
type CapStatus struct {
	Cap            *int64 `json:"cap"`
	SpentThisMonth int64  `json:"spent_this_month"`
	Remaining      *int64 `json:"remaining"`
}

type UpsertCapRequest struct {
	OrgID       snowflake.ID
	UserID      snowflake.ID
	Cap         *int64
	Active      bool
	ActorUserID snowflake.ID
}

type Service interface {
	// ResolveScope decides which balance governs a user: the org pool when
	// the user belongs to an org, their personal balance otherwise.
	ResolveScope(ctx context.Context, userID snowflake.ID) (Scope, error)

	// Charge atomically checks balance (and, for org members, the monthly
	// cap) and appends the debit plus a usage event, or rejects.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)

	// Grant appends one adjustment entry (delta != 0) and returns the
	// post-write balance.
	Grant(ctx context.Context, scope Scope, delta int64, reason string, actorUserID snowflake.ID) (int64, error)

	// SetExactBalance appends the single compensating entry needed to reach
	// target, or writes nothing when the balance already matches.
	SetExactBalance(ctx context.Context, scope Scope, target int64, reason string, actorUserID snowflake.ID) (int64, error)

	Balance(ctx context.Context, scope Scope) (int64, error)
	CapStatus(ctx context.Context, orgID, userID snowflake.ID) (CapStatus, error)
	UpsertMonthlyCap(ctx context.Context, req UpsertCapRequest) (*MonthlyCap, error)
	// ListLedger returns the newest entries for a scope plus the total
	// entry count.
	ListLedger(ctx context.Context, scope Scope, limit int) ([]LedgerEntry, int64, error)
}

var (
	ErrInvalidCost       = errors.New("invalid_cost")
	ErrInvalidReason     = errors.New("invalid_reason")
	ErrInvalidAdjustment = errors.New("invalid_adjustment")
	ErrUnknownScope      = errors.New("unknown_scope")
	ErrScopeLockBusy     = errors.New("scope_lock_busy")
)
