package service

import (
	"testing"

	"referralpay/internal/config"
	"referralpay/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	cfg        *config.Config
	wallet     *WalletService
	commission *CommissionService
	withdrawal *WithdrawalService
	referral   *ReferralService
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	rdb, mr := testutil.NewRedis(t)
	cfg := testutil.NewConfig(t)
	for _, m := range mutate {
		m(cfg)
	}

	wallet := NewWalletService(db, rdb, cfg)
	commission, err := NewCommissionService(db, rdb, cfg, wallet)
	require.NoError(t, err)

	return &testEnv{
		db:         db,
		mr:         mr,
		cfg:        cfg,
		wallet:     wallet,
		commission: commission,
		withdrawal: NewWithdrawalService(db, cfg, wallet),
		referral:   NewReferralService(db, rdb, cfg, commission),
	}
}

// seedChain 构造 root(1) <- 2 <- 3 <- 4 <- 5 的推荐链
func (e *testEnv) seedChain(t *testing.T) {
	t.Helper()
	testutil.SeedUser(t, e.db, 1, 0)
	for id := int64(2); id <= 5; id++ {
		testutil.SeedUser(t, e.db, id, id-1)
	}
}
