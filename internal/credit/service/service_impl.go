package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/clock"
	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	obsmetrics "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/observability/metrics"
	orgdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/ratelimit"
	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	scopeLockPrefix = "credit:scope:"
	scopeLockTTL    = 5 * time.Second
	scopeLockWait   = 2 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       creditdomain.Repository
	OrgRepo    orgdomain.Repository
	UsageRec   usagedomain.Recorder
	AuditSvc   auditdomain.Service `optional:"true"`
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       creditdomain.Repository
	orgRepo    orgdomain.Repository
	usageRec   usagedomain.Recorder
	auditSvc   auditdomain.Service
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		usageRec:   p.UsageRec,
		auditSvc:   p.AuditSvc,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

// ResolveScope maps a user to the balance that governs them. Org members
// always charge the org pool, even when vestigial personal entries exist.
func (s *Service) ResolveScope(ctx context.Context, userID snowflake.ID) (creditdomain.Scope, error) {
	membership, err := s.orgRepo.Membership(ctx, userID)
	if err != nil {
		return creditdomain.Scope{}, err
	}
	if membership.OrgID != nil {
		return creditdomain.Scope{Type: creditdomain.ScopeTypeOrg, ID: *membership.OrgID}, nil
	}
	return creditdomain.Scope{Type: creditdomain.ScopeTypeUser, ID: userID}, nil
}

// Charge runs the check-then-debit sequence as one atomic unit per scope.
// The scope owner row is locked for the duration of the transaction, so two
// concurrent charges against one remaining credit can never both succeed.
func (s *Service) Charge(ctx context.Context, req creditdomain.ChargeRequest) (creditdomain.ChargeResult, error) {
	if req.Cost <= 0 {
		return creditdomain.ChargeResult{}, creditdomain.ErrInvalidCost
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return creditdomain.ChargeResult{}, creditdomain.ErrInvalidReason
	}

	scope, err := s.ResolveScope(ctx, req.UserID)
	if err != nil {
		return creditdomain.ChargeResult{}, err
	}

	if req.AdminBypass {
		s.obsMetrics.IncChargeBypassed()
		return creditdomain.ChargeResult{Authorized: true, Bypassed: true, Scope: scope}, nil
	}

	release, err := s.acquireScopeLock(ctx, scope)
	if err != nil {
		return creditdomain.ChargeResult{}, err
	}
	defer release()

	var result creditdomain.ChargeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockScope(ctx, tx, scope); err != nil {
			return err
		}

		balance, err := s.repo.SumBalance(ctx, tx, scope)
		if err != nil {
			return err
		}

		if scope.Type == creditdomain.ScopeTypeOrg {
			if balance < req.Cost {
				result = rejected(scope, creditdomain.RejectInsufficientOrgCredits)
				return nil
			}
			remaining, err := s.remainingCapTx(ctx, tx, scope.ID, req.UserID)
			if err != nil {
				return err
			}
			if remaining != nil && *remaining < req.Cost {
				result = rejected(scope, creditdomain.RejectUserMonthlyCapReached)
				return nil
			}
		} else {
			if balance < req.Cost {
				result = rejected(scope, creditdomain.RejectInsufficientUserCredits)
				return nil
			}
		}

		now := s.clock.Now()
		actor := req.UserID
		if _, err := s.repo.AppendEntry(ctx, tx, creditdomain.LedgerEntryDraft{
			ScopeType:   scope.Type,
			ScopeID:     scope.ID,
			Delta:       -req.Cost,
			Reason:      reason,
			ActorUserID: &actor,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		event := usagedomain.UsageEvent{
			UserID:      req.UserID,
			Description: reason,
			CreatedAt:   now,
		}
		if scope.Type == creditdomain.ScopeTypeOrg {
			orgID := scope.ID
			event.OrgID = &orgID
		}
		if err := s.usageRec.RecordTx(ctx, tx, event); err != nil {
			return err
		}

		result = creditdomain.ChargeResult{
			Authorized:       true,
			Scope:            scope,
			RemainingBalance: balance - req.Cost,
		}
		return nil
	})
	if err != nil {
		return creditdomain.ChargeResult{}, err
	}

	if result.Authorized {
		s.obsMetrics.IncChargeAuthorized()
	} else {
		s.obsMetrics.IncChargeRejected(string(result.Reason))
		s.log.Info("charge rejected",
			zap.String("user_id", req.UserID.String()),
			zap.String("scope", scope.LockKey()),
			zap.String("reason", string(result.Reason)),
		)
	}
	return result, nil
}

// Grant appends one adjustment entry and returns the post-write balance.
func (s *Service) Grant(ctx context.Context, scope creditdomain.Scope, delta int64, reason string, actorUserID snowflake.ID) (int64, error) {
	if delta == 0 {
		return 0, creditdomain.ErrInvalidAdjustment
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, creditdomain.ErrInvalidReason
	}

	release, err := s.acquireScopeLock(ctx, scope)
	if err != nil {
		return 0, err
	}
	defer release()

	var newBalance int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockScope(ctx, tx, scope); err != nil {
			return err
		}
		balance, err := s.repo.SumBalance(ctx, tx, scope)
		if err != nil {
			return err
		}
		actor := actorUserID
		entry, err := s.repo.AppendEntry(ctx, tx, creditdomain.LedgerEntryDraft{
			ScopeType:   scope.Type,
			ScopeID:     scope.ID,
			Delta:       delta,
			Reason:      reason,
			ActorUserID: &actor,
			CreatedAt:   s.clock.Now(),
		})
		if err != nil {
			return err
		}
		newBalance = balance + delta
		return s.auditAdjustment(ctx, tx, scope, actorUserID, "credit.grant", entry.ID, map[string]any{
			"delta":       delta,
			"reason":      reason,
			"new_balance": newBalance,
		})
	})
	if err != nil {
		return 0, err
	}

	s.obsMetrics.IncAdjustment("grant")
	return newBalance, nil
}

// SetExactBalance reaches target via a single compensating entry, never by
// editing history. Writes nothing when the balance already matches.
func (s *Service) SetExactBalance(ctx context.Context, scope creditdomain.Scope, target int64, reason string, actorUserID snowflake.ID) (int64, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, creditdomain.ErrInvalidReason
	}

	release, err := s.acquireScopeLock(ctx, scope)
	if err != nil {
		return 0, err
	}
	defer release()

	var newBalance int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockScope(ctx, tx, scope); err != nil {
			return err
		}
		balance, err := s.repo.SumBalance(ctx, tx, scope)
		if err != nil {
			return err
		}
		diff := target - balance
		if diff == 0 {
			newBalance = balance
			return nil
		}
		actor := actorUserID
		entry, err := s.repo.AppendEntry(ctx, tx, creditdomain.LedgerEntryDraft{
			ScopeType:   scope.Type,
			ScopeID:     scope.ID,
			Delta:       diff,
			Reason:      reason,
			ActorUserID: &actor,
			CreatedAt:   s.clock.Now(),
		})
		if err != nil {
			return err
		}
		newBalance = target
		return s.auditAdjustment(ctx, tx, scope, actorUserID, "credit.set_exact", entry.ID, map[string]any{
			"target": target,
			"delta":  diff,
			"reason": reason,
		})
	})
	if err != nil {
		return 0, err
	}

	s.obsMetrics.IncAdjustment("set_exact")
	return newBalance, nil
}

func (s *Service) Balance(ctx context.Context, scope creditdomain.Scope) (int64, error) {
	return s.repo.SumBalance(ctx, nil, scope)
}

func (s *Service) CapStatus(ctx context.Context, orgID, userID snowflake.ID) (creditdomain.CapStatus, error) {
	start, end := creditdomain.MonthWindow(s.clock.Now())
	spent, err := s.repo.SpentInWindow(ctx, nil, orgID, userID, start, end)
	if err != nil {
		return creditdomain.CapStatus{}, err
	}

	status := creditdomain.CapStatus{SpentThisMonth: spent}
	capRow, err := s.repo.ActiveCap(ctx, nil, orgID, userID)
	if err != nil {
		return creditdomain.CapStatus{}, err
	}
	if capRow == nil || capRow.Cap == nil {
		return status, nil
	}

	remaining := *capRow.Cap - spent
	if remaining < 0 {
		remaining = 0
	}
	status.Cap = capRow.Cap
	status.Remaining = &remaining
	return status, nil
}

func (s *Service) UpsertMonthlyCap(ctx context.Context, req creditdomain.UpsertCapRequest) (*creditdomain.MonthlyCap, error) {
	if req.Cap != nil && *req.Cap < 0 {
		return nil, creditdomain.ErrInvalidAdjustment
	}
	orgExists, err := s.orgRepo.OrganizationExists(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	userExists, err := s.orgRepo.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !orgExists || !userExists {
		return nil, creditdomain.ErrUnknownScope
	}

	stored, err := s.repo.UpsertCap(ctx, nil, creditdomain.MonthlyCap{
		OrgID:  req.OrgID,
		UserID: req.UserID,
		Cap:    req.Cap,
		Active: req.Active,
	})
	if err != nil {
		return nil, err
	}

	orgID := req.OrgID
	scope := creditdomain.Scope{Type: creditdomain.ScopeTypeOrg, ID: orgID}
	if err := s.auditAdjustment(ctx, nil, scope, req.ActorUserID, "credit.cap_upsert", stored.ID, map[string]any{
		"user_id": req.UserID.String(),
		"cap":     req.Cap,
		"active":  req.Active,
	}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Service) ListLedger(ctx context.Context, scope creditdomain.Scope, limit int) ([]creditdomain.LedgerEntry, int64, error) {
	entries, err := s.repo.ListEntries(ctx, scope, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountEntries(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func rejected(scope creditdomain.Scope, reason creditdomain.RejectReason) creditdomain.ChargeResult {
	return creditdomain.ChargeResult{Scope: scope, Reason: reason}
}

// remainingCapTx returns nil for unlimited members, else the spendable
// remainder of the monthly cap. The cap limits one member's draw on the
// shared pool independent of how much pool balance remains.
func (s *Service) remainingCapTx(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID) (*int64, error) {
	capRow, err := s.repo.ActiveCap(ctx, tx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if capRow == nil || capRow.Cap == nil {
		return nil, nil
	}

	start, end := creditdomain.MonthWindow(s.clock.Now())
	spent, err := s.repo.SpentInWindow(ctx, tx, orgID, userID, start, end)
	if err != nil {
		return nil, err
	}

	remaining := *capRow.Cap - spent
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

func (s *Service) acquireScopeLock(ctx context.Context, scope creditdomain.Scope) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := scopeLockPrefix + scope.LockKey()
	token, ok, err := s.locker.Acquire(ctx, key, scopeLockTTL, scopeLockWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, creditdomain.ErrScopeLockBusy
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release scope lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// auditAdjustment writes the audit row through the caller's transaction so
// the adjustment and its trail commit or roll back together.
func (s *Service) auditAdjustment(ctx context.Context, tx *gorm.DB, scope creditdomain.Scope, actorUserID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	var orgID *snowflake.ID
	if scope.Type == creditdomain.ScopeTypeOrg {
		id := scope.ID
		orgID = &id
	}
	actor := actorUserID
	target := targetID.String()
	metadata["scope"] = scope.LockKey()
	if err := s.auditSvc.AuditLog(ctx, tx, orgID, &actor, action, "credit_ledger_entry", &target, metadata); err != nil {
		s.log.Warn("failed to write adjustment audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}
