package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	TriggerSignupBonus        = "signup-bonus"
	TriggerPurchaseCommission = "purchase-commission"
)

const (
	RecipientStatusPending  = "pending"
	RecipientStatusCredited = "credited"
)

// ErrInvalidLevel 佣金层级只能是 1-3
var ErrInvalidLevel = errors.New("invalid commission level")

// ValidTriggerType 校验触发类型
func ValidTriggerType(triggerType string) bool {
	return triggerType == TriggerSignupBonus || triggerType == TriggerPurchaseCommission
}

// CommissionEvent 佣金事件表
// 每个触发动作（注册、首单）只生成一条，idempotency_key 全局唯一
//
// Level1/Level2/Level3/Total 是实际分配给推荐人的金额，
// 链路不足三级时缺失层级为0，对应金额记入 UnallocatedAmount 留在平台，不向其他层级再分配
type CommissionEvent struct {
	ID                int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	EventNo           string                 `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_no"`
	IdempotencyKey    string                 `gorm:"type:varchar(128);uniqueIndex;not null" json:"idempotency_key"`
	SourceUserID      int64                  `gorm:"index;not null" json:"source_user_id"`
	TriggerType       string                 `gorm:"type:varchar(32);not null" json:"trigger_type"`
	OrderID           string                 `gorm:"type:varchar(64)" json:"order_id,omitempty"`
	BaseAmount        int64                  `gorm:"not null" json:"base_amount"`
	Level1            int64                  `gorm:"column:level1;not null" json:"level1"`
	Level2            int64                  `gorm:"column:level2;not null" json:"level2"`
	Level3            int64                  `gorm:"column:level3;not null" json:"level3"`
	AdminCommission   int64                  `gorm:"not null" json:"admin_commission"`
	Total             int64                  `gorm:"not null" json:"total"`
	UnallocatedAmount int64                  `gorm:"not null;default:0" json:"unallocated_amount"`
	Recipients        []*CommissionRecipient `gorm:"foreignKey:EventID" json:"recipients"`
	CreatedAt         time.Time              `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CommissionEvent) TableName() string {
	return "commission_event"
}

// CommissionRecipient 佣金接收人
type CommissionRecipient struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID        int64      `gorm:"uniqueIndex:uk_event_level;not null" json:"event_id"`
	Level          int        `gorm:"uniqueIndex:uk_event_level;not null" json:"level"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	CommissionType string     `gorm:"type:varchar(32);not null" json:"commission_type"`
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`
	CreditedAt     *time.Time `json:"credited_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (CommissionRecipient) TableName() string {
	return "commission_recipient"
}

// NewRecipient 构造待入账的接收人记录
func NewRecipient(userID int64, level int, amount int64, commissionType string) (*CommissionRecipient, error) {
	if level < 1 || level > MaxReferralDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return &CommissionRecipient{
		UserID:         userID,
		Level:          level,
		Amount:         amount,
		CommissionType: commissionType,
		Status:         RecipientStatusPending,
	}, nil
}

// RecipientTotal 接收人金额合计
func RecipientTotal(recipients []*CommissionRecipient) int64 {
	var total int64
	for _, r := range recipients {
		total += r.Amount
	}
	return total
}

// AmountByLevel 按层级汇总金额，下标 0 不使用
func AmountByLevel(recipients []*CommissionRecipient) [MaxReferralDepth + 1]int64 {
	var byLevel [MaxReferralDepth + 1]int64
	for _, r := range recipients {
		if r.Level >= 1 && r.Level <= MaxReferralDepth {
			byLevel[r.Level] += r.Amount
		}
	}
	return byLevel
}

// CreditedTotal 已入账金额合计
func CreditedTotal(recipients []*CommissionRecipient) int64 {
	var total int64
	for _, r := range recipients {
		if r.Status == RecipientStatusCredited {
			total += r.Amount
		}
	}
	return total
}

// SetLevelAmount 写入某一层级的分配金额，层级不合法时忽略
func (e *CommissionEvent) SetLevelAmount(level int, amount int64) {
	switch level {
	case 1:
		e.Level1 = amount
	case 2:
		e.Level2 = amount
	case 3:
		e.Level3 = amount
	}
}

// PendingRecipients 返回尚未入账的接收人
func (e *CommissionEvent) PendingRecipients() []*CommissionRecipient {
	var pending []*CommissionRecipient
	for _, r := range e.Recipients {
		if r.Status != RecipientStatusCredited {
			pending = append(pending, r)
		}
	}
	return pending
}

// Completed 所有接收人都已入账
func (e *CommissionEvent) Completed() bool {
	return len(e.PendingRecipients()) == 0
}
