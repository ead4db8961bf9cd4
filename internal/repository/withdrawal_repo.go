package repository

import (
	"context"
	"errors"

	"referralpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWithdrawalNotFound      = errors.New("提现申请不存在")
	ErrWithdrawalStatusInvalid = errors.New("提现状态不合法")
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, req *model.WithdrawalRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (r *WithdrawalRepository) GetByRequestNo(ctx context.Context, tx *gorm.DB, requestNo string) (*model.WithdrawalRequest, error) {
	if tx == nil {
		tx = r.db
	}
	var req model.WithdrawalRequest
	err := tx.WithContext(ctx).Where("request_no = ?", requestNo).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *WithdrawalRepository) GetByRequestNoForUpdate(ctx context.Context, tx *gorm.DB, requestNo string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_no = ?", requestNo).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &req, nil
}

// GetByRequestID 按用户和幂等ID查询，不存在返回 nil
func (r *WithdrawalRepository) GetByRequestID(ctx context.Context, tx *gorm.DB, userID int64, requestID string) (*model.WithdrawalRequest, error) {
	if tx == nil {
		tx = r.db
	}
	var req model.WithdrawalRequest
	err := tx.WithContext(ctx).Where("user_id = ? AND request_id = ?", userID, requestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// UpdateStatus 带原状态条件的更新，防止并发下重复流转
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, requestNo string, fromStatus, toStatus string, updates map[string]interface{}) error {
	if !model.CanWithdrawalTransitionTo(fromStatus, toStatus) {
		return ErrWithdrawalStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	values := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range updates {
		values[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Where("request_no = ? AND status = ?", requestNo, fromStatus).
		Updates(values)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWithdrawalStatusInvalid
	}

	return nil
}

func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	var requests []*model.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}
