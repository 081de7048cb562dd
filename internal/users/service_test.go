package users

import (
	"context"
	"testing"

	"github.com/angelmondragon/grocerybid-backend/internal/ledger"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func newUsersFixture(t *testing.T) (Service, *gorm.DB, *stubOutbox) {
	t.Helper()
	conn := setupUsersTestDB(t)
	walletSvc, err := wallet.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	events := &stubOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Tx:          db.NewFromConn(conn),
		Wallet:      walletSvc,
		Outbox:      events,
		Password:    testPasswordConfig,
		Marketplace: config.DefaultMarketplace(),
	})
	require.NoError(t, err)
	return svc, conn, events
}

func TestRegisterWithoutReferral(t *testing.T) {
	svc, conn, events := newUsersFixture(t)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "  Ana@Example.com ",
		Password: "correct horse",
		Name:     "Ana",
		Role:     enums.UserRoleVendor,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, enums.UserRoleVendor, user.Role)
	assert.Len(t, user.ReferralCode, referralCodeLength)
	assert.Nil(t, user.ReferredBy)
	assert.True(t, user.ReferralRewards.IsZero())
	assert.Empty(t, events.events)

	ok, err := security.VerifyPassword("correct horse", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRegisterWithReferralGrantsBothSides(t *testing.T) {
	svc, conn, events := newUsersFixture(t)
	ctx := context.Background()

	referrer, err := svc.Register(ctx, RegisterInput{Email: "ref@example.com", Password: "password1", Name: "Ref", Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	code := " " + referrer.ReferralCode + " "
	user, err := svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "password1", Name: "New", Role: enums.UserRoleBuyer, ReferralCode: &code})
	require.NoError(t, err)
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, referrer.ID, *user.ReferredBy)
	assert.True(t, user.ReferralRewards.Equal(decimal.NewFromInt(50)))

	var stored models.User
	require.NoError(t, conn.Where("id = ?", referrer.ID).First(&stored).Error)
	assert.True(t, stored.ReferralRewards.Equal(decimal.NewFromInt(100)))
	assert.True(t, stored.WalletBalance.IsZero(), "bonuses are points, not wallet money")

	var audit []models.Transaction
	require.NoError(t, conn.Find(&audit).Error)
	require.Len(t, audit, 2)
	byUser := map[uuid.UUID]models.Transaction{}
	for _, row := range audit {
		byUser[row.UserID] = row
	}
	assert.Equal(t, enums.TransactionReferralCommission, byUser[referrer.ID].Type)
	assert.True(t, byUser[referrer.ID].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, enums.TransactionDeposit, byUser[user.ID].Type)
	assert.True(t, byUser[user.ID].Amount.Equal(decimal.NewFromInt(50)))

	require.Len(t, events.events, 1)
	data, ok := events.events[0].Data.(payloads.ReferralRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, referrer.ID, data.ReferrerID)

	summary, err := svc.Referrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.ReferredCount)
	assert.Equal(t, "100.00", summary.Rewards.Decimal().StringFixed(2))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newUsersFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1", Name: "A", Role: enums.UserRoleAdmin})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	unknown := "ZZZZZZZZ"
	_, err = svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1", Name: "A", Role: enums.UserRoleBuyer, ReferralCode: &unknown})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1", Name: "A", Role: enums.UserRoleBuyer})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Email: "A@example.com", Password: "password1", Name: "A", Role: enums.UserRoleBuyer})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestConvertRewards(t *testing.T) {
	svc, conn, _ := newUsersFixture(t)
	ctx := context.Background()

	referrer, err := svc.Register(ctx, RegisterInput{Email: "ref@example.com", Password: "password1", Name: "Ref", Role: enums.UserRoleBuyer})
	require.NoError(t, err)

	_, err = svc.ConvertRewards(ctx, referrer.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "no rewards available")

	code := referrer.ReferralCode
	_, err = svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "password1", Name: "New", Role: enums.UserRoleBuyer, ReferralCode: &code})
	require.NoError(t, err)

	result, err := svc.ConvertRewards(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", result.Converted.Decimal().StringFixed(2))
	assert.Equal(t, "100.00", result.Balance.Decimal().StringFixed(2))

	var stored models.User
	require.NoError(t, conn.Where("id = ?", referrer.ID).First(&stored).Error)
	assert.True(t, stored.ReferralRewards.IsZero())
	assert.True(t, stored.WalletBalance.Equal(decimal.NewFromInt(100)))

	me, err := svc.Me(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", me.WalletBalance.Decimal().StringFixed(2))

	_, err = svc.Me(ctx, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
