package repository

import (
	"context"
	"errors"

	"referralpay/internal/model"

	"gorm.io/gorm"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) Create(ctx context.Context, tx *gorm.DB, edge *model.ReferralEdge) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(edge).Error
}

// GetByReferredUser 查询某个用户的直接推荐关系，不存在返回 nil
func (r *ReferralRepository) GetByReferredUser(ctx context.Context, tx *gorm.DB, referredUserID int64) (*model.ReferralEdge, error) {
	if tx == nil {
		tx = r.db
	}
	var edge model.ReferralEdge
	err := tx.WithContext(ctx).Where("referred_user_id = ?", referredUserID).First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// MarkCompleted pending -> completed，已经是后续状态时忽略
func (r *ReferralRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, referredUserID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.ReferralEdge{}).
		Where("referred_user_id = ? AND status = ?", referredUserID, model.ReferralStatusPending).
		Update("status", model.ReferralStatusCompleted).Error
}

// AddCommission 一级佣金入账后累加到推荐关系上，并置为 credited
func (r *ReferralRepository) AddCommission(ctx context.Context, tx *gorm.DB, referrerID, referredUserID, amount int64) error {
	return tx.WithContext(ctx).
		Model(&model.ReferralEdge{}).
		Where("referrer_id = ? AND referred_user_id = ?", referrerID, referredUserID).
		Updates(map[string]interface{}{
			"status":            model.ReferralStatusCredited,
			"commission_amount": gorm.Expr("commission_amount + ?", amount),
		}).Error
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.ReferralEdge, int64, error) {
	var edges []*model.ReferralEdge
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ReferralEdge{}).Where("referrer_id = ?", referrerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&edges).Error

	return edges, total, err
}
