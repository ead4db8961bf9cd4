package testutil

import (
	"context"
	"strconv"
	"testing"

	"referralpay/internal/config"
	"referralpay/internal/infrastructure/database"
	"referralpay/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 内存 sqlite，单连接保证同一测试内共享同一个库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// NewRedis 基于 miniredis 的 Redis 客户端
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// NewConfig 默认配置，锁重试间隔缩短以加快测试
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Business.LockRetryIntervalMs = 5
	cfg.Business.LockMaxRetries = 2000
	return cfg
}

// SeedUser 直接写入用户，referredBy 为 0 表示根用户
func SeedUser(t *testing.T, db *gorm.DB, id, referredBy int64) *model.User {
	t.Helper()

	user := &model.User{
		ID:           id,
		ReferralCode: "CODE" + strconv.FormatInt(id, 10),
	}
	if referredBy != 0 {
		parent := referredBy
		user.ReferredBy = &parent
	}
	require.NoError(t, db.WithContext(context.Background()).Create(user).Error)
	return user
}

// Balance 读取缓存余额
func Balance(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()

	var user model.User
	require.NoError(t, db.Where("id = ?", userID).First(&user).Error)
	return user.WalletBalance
}

// LedgerSum 按流水汇总余额
func LedgerSum(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()

	var sum int64
	require.NoError(t, db.Model(&model.WalletLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error)
	return sum
}

// LedgerCount 某个用户的流水条数
func LedgerCount(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&model.WalletLedgerEntry{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}
