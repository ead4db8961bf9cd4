package service

import (
	"context"
	"testing"

	"referralpay/internal/model"
	"referralpay/internal/repository"
	"referralpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signupChain A(1) <- B(2) <- C(3) <- D(4)，每个用户用上一个用户的推荐码注册
func signupChain(t *testing.T, env *testEnv) map[int64]*model.User {
	t.Helper()
	ctx := context.Background()
	users := make(map[int64]*model.User)

	resp, err := env.referral.HandleUserSignedUp(ctx, &SignupRequest{UserID: 1})
	require.NoError(t, err)
	users[1] = resp.User

	for id := int64(2); id <= 4; id++ {
		resp, err := env.referral.HandleUserSignedUp(ctx, &SignupRequest{UserID: id, ReferralCode: users[id-1].ReferralCode})
		require.NoError(t, err)
		users[id] = resp.User
	}
	return users
}

func TestSignup_ChainCreditsThreeLevels(t *testing.T) {
	env := newTestEnv(t)
	users := signupChain(t, env)

	assert.Nil(t, users[1].ReferredBy)
	require.NotNil(t, users[4].ReferredBy)
	assert.Equal(t, int64(3), *users[4].ReferredBy)
	assert.Equal(t, 3, users[4].ReferralLevel)

	// A: B 注册 50 + C 注册 25 + D 注册 25
	assert.Equal(t, int64(100), testutil.Balance(t, env.db, 1))
	// B: C 注册 50 + D 注册 25
	assert.Equal(t, int64(75), testutil.Balance(t, env.db, 2))
	// C: D 注册 50
	assert.Equal(t, int64(50), testutil.Balance(t, env.db, 3))
	assert.Equal(t, int64(0), testutil.Balance(t, env.db, 4))

	for id := int64(1); id <= 4; id++ {
		assert.Equal(t, testutil.Balance(t, env.db, id), testutil.LedgerSum(t, env.db, id))
	}

	// 根用户注册也会保存一个空事件
	var events int64
	require.NoError(t, env.db.Model(&model.CommissionEvent{}).Count(&events).Error)
	assert.Equal(t, int64(4), events)
}

func TestSignup_MaintainsReferralCounters(t *testing.T) {
	env := newTestEnv(t)
	signupChain(t, env)
	ctx := context.Background()

	stats, err := env.referral.GetReferralStats(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Level1Count)
	assert.Equal(t, int64(1), stats.Level2Count)
	assert.Equal(t, int64(1), stats.Level3Count)
	assert.Equal(t, int64(100), stats.TotalEarnings)
	require.Len(t, stats.Referrals, 1)
	assert.Equal(t, int64(2), stats.Referrals[0].ReferredUserID)
	assert.Equal(t, model.ReferralStatusCredited, stats.Referrals[0].Status)
	assert.Equal(t, int64(50), stats.Referrals[0].CommissionAmount)

	stats, err = env.referral.GetReferralStats(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Level1Count)
	assert.Equal(t, int64(0), stats.Level2Count)
}

func TestSignup_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	users := signupChain(t, env)
	ctx := context.Background()

	resp, err := env.referral.HandleUserSignedUp(ctx, &SignupRequest{UserID: 4, ReferralCode: users[3].ReferralCode})
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
	assert.Equal(t, users[4].ReferralCode, resp.User.ReferralCode)

	assert.Equal(t, int64(50), testutil.Balance(t, env.db, 3))
	stats, err := env.referral.GetReferralStats(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Level1Count)
}

func TestSignup_UnknownReferralCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.referral.HandleUserSignedUp(context.Background(), &SignupRequest{UserID: 7, ReferralCode: "NOPE"})
	assert.ErrorIs(t, err, ErrReferralCodeNotFound)

	var n int64
	require.NoError(t, env.db.Model(&model.User{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestOrderCompleted_FirstOrderOnly(t *testing.T) {
	env := newTestEnv(t)
	signupChain(t, env)
	ctx := context.Background()
	before := map[int64]int64{}
	for id := int64(1); id <= 3; id++ {
		before[id] = testutil.Balance(t, env.db, id)
	}

	resp, err := env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "ORD-1", BuyerUserID: 4, Amount: 1000, IsFirstOrder: true})
	require.NoError(t, err)
	assert.True(t, resp.Eligible)
	require.NotNil(t, resp.Commission)
	assert.Equal(t, int64(200), resp.Commission.Total)

	assert.Equal(t, before[3]+100, testutil.Balance(t, env.db, 3))
	assert.Equal(t, before[2]+50, testutil.Balance(t, env.db, 2))
	assert.Equal(t, before[1]+50, testutil.Balance(t, env.db, 1))

	// 同一订单重试
	resp, err = env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "ORD-1", BuyerUserID: 4, Amount: 1000, IsFirstOrder: true})
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)

	// 另一个也声称是首单的订单
	resp, err = env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "ORD-2", BuyerUserID: 4, Amount: 1000, IsFirstOrder: true})
	require.NoError(t, err)
	assert.False(t, resp.Eligible)

	// 非首单
	resp, err = env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "ORD-3", BuyerUserID: 4, Amount: 1000})
	require.NoError(t, err)
	assert.False(t, resp.Eligible)

	assert.Equal(t, before[3]+100, testutil.Balance(t, env.db, 3))

	var buyer model.User
	require.NoError(t, env.db.First(&buyer, 4).Error)
	assert.True(t, buyer.FirstOrderCompleted)
}

func TestOrderCompleted_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{BuyerUserID: 1, Amount: 10, IsFirstOrder: true})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "O", BuyerUserID: 1, Amount: 0, IsFirstOrder: true})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.referral.HandleOrderCompleted(ctx, &OrderCompletedRequest{OrderID: "O", BuyerUserID: 404, Amount: 10, IsFirstOrder: true})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSignup_CycleBeyondCounterDepthDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	// 10 -> 11 -> 12 -> 10，环在推荐人的第三级
	testutil.SeedUser(t, env.db, 10, 11)
	testutil.SeedUser(t, env.db, 11, 12)
	testutil.SeedUser(t, env.db, 12, 10)

	resp, err := env.referral.HandleUserSignedUp(context.Background(), &SignupRequest{UserID: 50, ReferralCode: "CODE10"})
	require.NoError(t, err)
	require.NotNil(t, resp.Commission)

	assert.Equal(t, int64(50), testutil.Balance(t, env.db, 10))
	assert.Equal(t, int64(25), testutil.Balance(t, env.db, 11))
	assert.Equal(t, int64(25), testutil.Balance(t, env.db, 12))

	stats, err := env.referral.GetReferralStats(context.Background(), 12, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Level3Count)
}

func TestSignup_CycleNearReferrerSurfacesFromDistribution(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, 10, 11)
	testutil.SeedUser(t, env.db, 11, 10)

	resp, err := env.referral.HandleUserSignedUp(context.Background(), &SignupRequest{UserID: 50, ReferralCode: "CODE10"})
	assert.ErrorIs(t, err, ErrCycleDetected)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Commission)

	// 用户和直接推荐关系照常写入，上级计数不更新
	user, err := repository.NewUserRepository(env.db).GetByID(context.Background(), nil, 50)
	require.NoError(t, err)
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, int64(10), *user.ReferredBy)

	stats, err := env.referral.GetReferralStats(context.Background(), 11, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Level2Count)
	assert.Equal(t, int64(0), countRows(t, env, &model.CommissionEvent{}))
	assert.Equal(t, int64(0), countRows(t, env, &model.WalletLedgerEntry{}))
}
