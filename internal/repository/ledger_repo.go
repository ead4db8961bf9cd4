package repository

import (
	"context"
	"errors"

	"referralpay/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create 追加流水，流水表只允许插入
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.WalletLedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// GetByIdempotencyKey 不存在返回 nil
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.WalletLedgerEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entry model.WalletLedgerEntry
	err := tx.WithContext(ctx).Where("idempotency_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// SumByUser 按流水汇总余额，用于对账
func (r *LedgerRepository) SumByUser(ctx context.Context, tx *gorm.DB, userID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var sum int64
	err := tx.WithContext(ctx).
		Model(&model.WalletLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// ListByRelatedID 某个用户关联同一业务单号的全部流水
func (r *LedgerRepository) ListByRelatedID(ctx context.Context, tx *gorm.DB, userID int64, relatedID string) ([]*model.WalletLedgerEntry, error) {
	if tx == nil {
		tx = r.db
	}
	var entries []*model.WalletLedgerEntry
	err := tx.WithContext(ctx).
		Where("user_id = ? AND related_id = ?", userID, relatedID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletLedgerEntry, int64, error) {
	var entries []*model.WalletLedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletLedgerEntry{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
