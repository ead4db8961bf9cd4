package repository

import (
	"context"
	"errors"
	"time"

	"referralpay/internal/model"

	"gorm.io/gorm"
)

var ErrCommissionEventNotFound = errors.New("佣金事件不存在")

type CommissionRepository struct {
	db *gorm.DB
}

func NewCommissionRepository(db *gorm.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Create 事件和接收人一起写入
func (r *CommissionRepository) Create(ctx context.Context, tx *gorm.DB, event *model.CommissionEvent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(event).Error
}

// GetByIdempotencyKey 不存在返回 nil
func (r *CommissionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.CommissionEvent, error) {
	var event model.CommissionEvent
	err := r.db.WithContext(ctx).
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("level ASC") }).
		Where("idempotency_key = ?", key).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *CommissionRepository) GetByID(ctx context.Context, id int64) (*model.CommissionEvent, error) {
	var event model.CommissionEvent
	err := r.db.WithContext(ctx).
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("level ASC") }).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommissionEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// MarkRecipientCredited pending -> credited，返回 false 表示已经入账过
func (r *CommissionRepository) MarkRecipientCredited(ctx context.Context, tx *gorm.DB, recipientID int64, creditedAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&model.CommissionRecipient{}).
		Where("id = ? AND status = ?", recipientID, model.RecipientStatusPending).
		Updates(map[string]interface{}{
			"status":      model.RecipientStatusCredited,
			"credited_at": creditedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListEventIDsWithPendingRecipients 查询创建时间早于 before 且仍有未入账接收人的事件
func (r *CommissionRepository) ListEventIDsWithPendingRecipients(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.CommissionRecipient{}).
		Where("status = ? AND created_at < ?", model.RecipientStatusPending, before).
		Distinct("event_id").
		Order("event_id ASC").
		Limit(limit).
		Pluck("event_id", &ids).Error
	return ids, err
}

// RecipientRecord 接收人记录及其所属事件信息
type RecipientRecord struct {
	model.CommissionRecipient
	EventNo      string `json:"event_no"`
	SourceUserID int64  `json:"source_user_id"`
	TriggerType  string `json:"trigger_type"`
	OrderID      string `json:"order_id,omitempty"`
	BaseAmount   int64  `json:"base_amount"`
}

func (r *CommissionRepository) ListRecipientsByUser(ctx context.Context, userID int64) ([]*RecipientRecord, error) {
	var records []*RecipientRecord
	err := r.db.WithContext(ctx).
		Table("commission_recipient AS r").
		Select("r.*, e.event_no, e.source_user_id, e.trigger_type, e.order_id, e.base_amount").
		Joins("JOIN commission_event AS e ON e.id = r.event_id").
		Where("r.user_id = ?", userID).
		Order("r.id DESC").
		Scan(&records).Error
	return records, err
}
