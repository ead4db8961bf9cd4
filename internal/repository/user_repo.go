package repository

import (
	"context"
	"errors"

	"referralpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound   = errors.New("用户不存在")
	ErrOptimisticLock = errors.New("乐观锁冲突，请重试")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(user).Error
}

// GetByID 查询用户，tx 为空时使用默认连接
func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, tx *gorm.DB, code string) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ApplyBalance 更新缓存余额，必须和流水写入在同一事务中调用
// earningsDelta 只在佣金入账时为正，累计收益只增不减
func (r *UserRepository) ApplyBalance(ctx context.Context, tx *gorm.DB, userID int64, delta, earningsDelta int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND version = ? AND wallet_balance + ? >= 0", userID, version, delta).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance + ?", delta),
			"total_earnings": gorm.Expr("total_earnings + ?", earningsDelta),
			"version":        gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// IncrementReferralCount 下线计数在建立推荐关系时增量维护，不做实时递归统计
func (r *UserRepository) IncrementReferralCount(ctx context.Context, tx *gorm.DB, userID int64, level int) error {
	column, ok := model.CountColumn(level)
	if !ok {
		return model.ErrInvalidLevel
	}
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// MarkFirstOrderCompleted 返回 false 表示之前已经标记过
func (r *UserRepository) MarkFirstOrderCompleted(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND first_order_completed = ?", userID, false).
		Update("first_order_completed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepository) SetLedgerFrozen(ctx context.Context, tx *gorm.DB, userID int64, frozen bool) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("ledger_frozen", frozen).Error
}

// ListIDsAfter 按主键游标分批扫描用户
func (r *UserRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
