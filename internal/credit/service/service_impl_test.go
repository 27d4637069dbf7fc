package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	auditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/domain"
	auditservice "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/audit/service"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/clock"
	creditdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/domain"
	creditrepository "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/credit/repository"
	orgdomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/domain"
	orgrepository "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/organization/repository"
	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	usagerepository "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	genID *snowflake.Node
	clk   *clock.FakeClock
	svc   creditdomain.Service

	orgRepo orgdomain.Repository

	orgID      snowflake.ID
	memberID   snowflake.ID
	soloUserID snowflake.ID
	adminID    snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite writers must not interleave across pooled connections.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.User{},
		&creditdomain.LedgerEntry{},
		&creditdomain.MonthlyCap{},
		&usagedomain.UsageEvent{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))

	orgRepo := orgrepository.New(db)

	f := &fixture{
		db:      db,
		genID:   node,
		clk:     clk,
		orgRepo: orgRepo,
		orgID:   node.Generate(),
	}

	ctx := context.Background()
	require.NoError(t, orgRepo.CreateOrganization(ctx, orgdomain.Organization{
		ID:   f.orgID,
		Name: "Acme Recruiting",
		Slug: "acme-recruiting",
	}))

	f.memberID = f.createUser(t, "member@acme.test", &f.orgID, false)
	f.soloUserID = f.createUser(t, "solo@polisher.test", nil, false)
	f.adminID = f.createUser(t, "admin@polisher.test", nil, true)

	f.svc = NewService(Params{
		DB:       db,
		Log:      log,
		Clock:    clk,
		Repo:     creditrepository.New(db, node),
		OrgRepo:  orgRepo,
		UsageRec: usagerepository.New(db, node),
		AuditSvc: auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node}),
	})
	return f
}

func (f *fixture) createUser(t *testing.T, email string, orgID *snowflake.ID, isAdmin bool) snowflake.ID {
	t.Helper()
	id := f.genID.Generate()
	require.NoError(t, f.orgRepo.CreateUser(context.Background(), orgdomain.User{
		ID:      id,
		Email:   email,
		OrgID:   orgID,
		IsAdmin: isAdmin,
	}))
	return id
}

func (f *fixture) orgScope() creditdomain.Scope {
	return creditdomain.Scope{Type: creditdomain.ScopeTypeOrg, ID: f.orgID}
}

func (f *fixture) userScope(id snowflake.ID) creditdomain.Scope {
	return creditdomain.Scope{Type: creditdomain.ScopeTypeUser, ID: id}
}

func (f *fixture) ledgerCount(t *testing.T, scope creditdomain.Scope) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&creditdomain.LedgerEntry{}).
		Where("scope_type = ? AND scope_id = ?", scope.Type, scope.ID).
		Count(&count).Error)
	return count
}

func (f *fixture) usageEventCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&usagedomain.UsageEvent{}).Count(&count).Error)
	return count
}

func (f *fixture) charge(t *testing.T, userID snowflake.ID, cost int64) creditdomain.ChargeResult {
	t.Helper()
	result, err := f.svc.Charge(context.Background(), creditdomain.ChargeRequest{
		UserID: userID,
		Cost:   cost,
		Reason: "cv_polish",
	})
	require.NoError(t, err)
	return result
}

func TestResolveScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scope, err := f.svc.ResolveScope(ctx, f.memberID)
	require.NoError(t, err)
	assert.Equal(t, f.orgScope(), scope)

	scope, err = f.svc.ResolveScope(ctx, f.soloUserID)
	require.NoError(t, err)
	assert.Equal(t, f.userScope(f.soloUserID), scope)

	_, err = f.svc.ResolveScope(ctx, f.genID.Generate())
	assert.ErrorIs(t, err, orgdomain.ErrUnknownUser)
}

// An org member never charges a personal balance, even when vestigial
// personal ledger rows exist for them.
func TestResolveScope_IgnoresVestigialPersonalBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.userScope(f.memberID), 50, "legacy_migration", f.adminID)
	require.NoError(t, err)
	_, err = f.svc.Grant(ctx, f.orgScope(), 1, "topup", f.adminID)
	require.NoError(t, err)

	result := f.charge(t, f.memberID, 1)
	require.True(t, result.Authorized)
	assert.Equal(t, f.orgScope(), result.Scope)
	assert.Equal(t, int64(0), result.RemainingBalance)

	// personal balance untouched
	balance, err := f.svc.Balance(ctx, f.userScope(f.memberID))
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestCharge_OrgPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 10, "initial_topup", f.adminID)
	require.NoError(t, err)

	result := f.charge(t, f.memberID, 1)
	require.True(t, result.Authorized)
	assert.Equal(t, int64(9), result.RemainingBalance)

	balance, err := f.svc.Balance(ctx, f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, int64(9), balance)

	entries, total, err := f.svc.ListLedger(ctx, f.orgScope(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(-1), entries[0].Delta)
	require.NotNil(t, entries[0].ActorUserID)
	assert.Equal(t, f.memberID, *entries[0].ActorUserID)

	assert.Equal(t, int64(1), f.usageEventCount(t))
}

func TestCharge_InsufficientOrgCredits(t *testing.T) {
	f := newFixture(t)

	result := f.charge(t, f.memberID, 1)
	assert.False(t, result.Authorized)
	assert.Equal(t, creditdomain.RejectInsufficientOrgCredits, result.Reason)

	balance, err := f.svc.Balance(context.Background(), f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCharge_PersonalBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.charge(t, f.soloUserID, 1)
	assert.False(t, result.Authorized)
	assert.Equal(t, creditdomain.RejectInsufficientUserCredits, result.Reason)

	_, err := f.svc.Grant(ctx, f.userScope(f.soloUserID), 3, "trial_credits", f.adminID)
	require.NoError(t, err)

	result = f.charge(t, f.soloUserID, 1)
	require.True(t, result.Authorized)
	assert.Equal(t, f.userScope(f.soloUserID), result.Scope)
	assert.Equal(t, int64(2), result.RemainingBalance)
}

func TestCharge_RejectionWritesNothing(t *testing.T) {
	f := newFixture(t)

	before := f.ledgerCount(t, f.orgScope())
	result := f.charge(t, f.memberID, 1)
	require.False(t, result.Authorized)

	assert.Equal(t, before, f.ledgerCount(t, f.orgScope()))
	assert.Equal(t, int64(0), f.usageEventCount(t))
}

func TestCharge_AdminBypassWritesNothing(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Charge(context.Background(), creditdomain.ChargeRequest{
		UserID:      f.adminID,
		Cost:        1,
		Reason:      "cv_polish",
		AdminBypass: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Authorized)
	assert.True(t, result.Bypassed)

	assert.Equal(t, int64(0), f.ledgerCount(t, f.userScope(f.adminID)))
	assert.Equal(t, int64(0), f.usageEventCount(t))
}

func TestCharge_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Charge(ctx, creditdomain.ChargeRequest{UserID: f.memberID, Cost: 0, Reason: "x"})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidCost)

	_, err = f.svc.Charge(ctx, creditdomain.ChargeRequest{UserID: f.memberID, Cost: 1, Reason: "  "})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidReason)
}

// The cap limits one member's draw on the shared pool independent of how
// much balance the pool still holds.
func TestCharge_MonthlyCapIndependentOfPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 100, "topup", f.adminID)
	require.NoError(t, err)

	capValue := int64(5)
	_, err = f.svc.UpsertMonthlyCap(ctx, creditdomain.UpsertCapRequest{
		OrgID:       f.orgID,
		UserID:      f.memberID,
		Cap:         &capValue,
		Active:      true,
		ActorUserID: f.adminID,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		result := f.charge(t, f.memberID, 1)
		require.True(t, result.Authorized, "charge %d within cap", i+1)
	}

	result := f.charge(t, f.memberID, 1)
	assert.False(t, result.Authorized)
	assert.Equal(t, creditdomain.RejectUserMonthlyCapReached, result.Reason)

	status, err := f.svc.CapStatus(ctx, f.orgID, f.memberID)
	require.NoError(t, err)
	require.NotNil(t, status.Cap)
	assert.Equal(t, int64(5), *status.Cap)
	assert.Equal(t, int64(5), status.SpentThisMonth)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, int64(0), *status.Remaining)

	// pool balance is far from empty
	balance, err := f.svc.Balance(ctx, f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)
}

func TestCharge_CapDoesNotApplyToOtherMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherMember := f.createUser(t, "member2@acme.test", &f.orgID, false)

	_, err := f.svc.Grant(ctx, f.orgScope(), 10, "topup", f.adminID)
	require.NoError(t, err)

	capValue := int64(1)
	_, err = f.svc.UpsertMonthlyCap(ctx, creditdomain.UpsertCapRequest{
		OrgID:       f.orgID,
		UserID:      f.memberID,
		Cap:         &capValue,
		Active:      true,
		ActorUserID: f.adminID,
	})
	require.NoError(t, err)

	require.True(t, f.charge(t, f.memberID, 1).Authorized)
	assert.False(t, f.charge(t, f.memberID, 1).Authorized)

	// the other member is not capped
	require.True(t, f.charge(t, otherMember, 1).Authorized)
}

func TestCharge_MonthRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 100, "topup", f.adminID)
	require.NoError(t, err)

	capValue := int64(2)
	_, err = f.svc.UpsertMonthlyCap(ctx, creditdomain.UpsertCapRequest{
		OrgID:       f.orgID,
		UserID:      f.memberID,
		Cap:         &capValue,
		Active:      true,
		ActorUserID: f.adminID,
	})
	require.NoError(t, err)

	require.True(t, f.charge(t, f.memberID, 2).Authorized)
	assert.Equal(t, creditdomain.RejectUserMonthlyCapReached, f.charge(t, f.memberID, 1).Reason)

	// crossing into April resets the window with no admin action
	f.clk.Set(time.Date(2026, time.April, 1, 0, 0, 1, 0, time.UTC))

	status, err := f.svc.CapStatus(ctx, f.orgID, f.memberID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.SpentThisMonth)

	assert.True(t, f.charge(t, f.memberID, 1).Authorized)
}

func TestCharge_InactiveCapIsUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 10, "topup", f.adminID)
	require.NoError(t, err)

	capValue := int64(1)
	_, err = f.svc.UpsertMonthlyCap(ctx, creditdomain.UpsertCapRequest{
		OrgID:       f.orgID,
		UserID:      f.memberID,
		Cap:         &capValue,
		Active:      false,
		ActorUserID: f.adminID,
	})
	require.NoError(t, err)

	require.True(t, f.charge(t, f.memberID, 1).Authorized)
	require.True(t, f.charge(t, f.memberID, 1).Authorized)

	status, err := f.svc.CapStatus(ctx, f.orgID, f.memberID)
	require.NoError(t, err)
	assert.Nil(t, status.Cap)
	assert.Nil(t, status.Remaining)
	assert.Equal(t, int64(2), status.SpentThisMonth)
}

// Two concurrent charges against a single remaining credit must yield exactly
// one authorization.
func TestCharge_ConcurrentSingleCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 1, "topup", f.adminID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]creditdomain.ChargeResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Charge(ctx, creditdomain.ChargeRequest{
				UserID: f.memberID,
				Cost:   1,
				Reason: "cv_polish",
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	authorized := 0
	for _, r := range results {
		if r.Authorized {
			authorized++
		} else {
			assert.Equal(t, creditdomain.RejectInsufficientOrgCredits, r.Reason)
		}
	}
	assert.Equal(t, 1, authorized)

	balance, err := f.svc.Balance(ctx, f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	newBalance, err := f.svc.Grant(ctx, f.orgScope(), 10, "initial_topup", f.adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), newBalance)

	newBalance, err = f.svc.Grant(ctx, f.orgScope(), 50, "topup", f.adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), newBalance)
	assert.Equal(t, int64(2), f.ledgerCount(t, f.orgScope()))

	// negative grants are valid corrections
	newBalance, err = f.svc.Grant(ctx, f.orgScope(), -20, "correction", f.adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), newBalance)
}

func TestGrant_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 0, "noop", f.adminID)
	assert.ErrorIs(t, err, creditdomain.ErrInvalidAdjustment)

	unknown := creditdomain.Scope{Type: creditdomain.ScopeTypeOrg, ID: f.genID.Generate()}
	_, err = f.svc.Grant(ctx, unknown, 10, "topup", f.adminID)
	assert.ErrorIs(t, err, creditdomain.ErrUnknownScope)

	assert.Equal(t, int64(0), f.ledgerCount(t, f.orgScope()))
}

func TestSetExactBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 35, "topup", f.adminID)
	require.NoError(t, err)

	newBalance, err := f.svc.SetExactBalance(ctx, f.orgScope(), 20, "reset", f.adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), newBalance)
	assert.Equal(t, int64(2), f.ledgerCount(t, f.orgScope()))

	entries, _, err := f.svc.ListLedger(ctx, f.orgScope(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), entries[0].Delta)

	balance, err := f.svc.Balance(ctx, f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestSetExactBalance_NoOpWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 20, "topup", f.adminID)
	require.NoError(t, err)

	newBalance, err := f.svc.SetExactBalance(ctx, f.orgScope(), 20, "reset", f.adminID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), newBalance)
	assert.Equal(t, int64(1), f.ledgerCount(t, f.orgScope()))
}

// History only grows: every operation leaves prior rows untouched.
func TestLedger_AppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 5, "topup", f.adminID)
	require.NoError(t, err)

	before, _, err := f.svc.ListLedger(ctx, f.orgScope(), 100)
	require.NoError(t, err)

	require.True(t, f.charge(t, f.memberID, 1).Authorized)
	_, err = f.svc.SetExactBalance(ctx, f.orgScope(), 2, "reset", f.adminID)
	require.NoError(t, err)

	after, _, err := f.svc.ListLedger(ctx, f.orgScope(), 100)
	require.NoError(t, err)
	require.Equal(t, len(before)+2, len(after))

	byID := make(map[snowflake.ID]creditdomain.LedgerEntry, len(after))
	for _, entry := range after {
		byID[entry.ID] = entry
	}
	for _, entry := range before {
		stored, ok := byID[entry.ID]
		require.True(t, ok, "entry %s disappeared", entry.ID)
		assert.Equal(t, entry.Delta, stored.Delta)
		assert.Equal(t, entry.Reason, stored.Reason)
	}

	// balance is always the derived sum
	var sum int64
	for _, entry := range after {
		sum += entry.Delta
	}
	balance, err := f.svc.Balance(ctx, f.orgScope())
	require.NoError(t, err)
	assert.Equal(t, sum, balance)
	assert.Equal(t, int64(2), balance)
}

func TestUpsertMonthlyCap_UnknownScope(t *testing.T) {
	f := newFixture(t)

	capValue := int64(5)
	_, err := f.svc.UpsertMonthlyCap(context.Background(), creditdomain.UpsertCapRequest{
		OrgID:       f.genID.Generate(),
		UserID:      f.memberID,
		Cap:         &capValue,
		Active:      true,
		ActorUserID: f.adminID,
	})
	assert.True(t, errors.Is(err, creditdomain.ErrUnknownScope))
}

// The audit row is written through the adjustment's own transaction. The
// fixture pool is pinned to one connection, so this test also proves the
// audit write cannot require a second connection while the adjustment
// transaction holds the only one.
func TestAdjustments_WriteAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, f.orgScope(), 10, "topup", f.adminID)
	require.NoError(t, err)
	_, err = f.svc.SetExactBalance(ctx, f.orgScope(), 4, "reset", f.adminID)
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Order("created_at ASC, id ASC").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, "credit.grant", logs[0].Action)
	assert.Equal(t, "credit.set_exact", logs[1].Action)
	require.NotNil(t, logs[0].ActorUserID)
	assert.Equal(t, f.adminID, *logs[0].ActorUserID)
}
