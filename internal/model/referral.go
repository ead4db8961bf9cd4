package model

import (
	"time"
)

const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
	ReferralStatusCredited  = "credited"
)

// ReferralEdge 推荐关系 referrer -> referred
// 只保存直接推荐关系（level=1），更高层级在计算佣金时沿 referred_by 向上解析
type ReferralEdge struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferrerID       int64     `gorm:"index;not null" json:"referrer_id"`
	ReferredUserID   int64     `gorm:"uniqueIndex;not null" json:"referred_user_id"`
	Level            int       `gorm:"not null;default:1" json:"level"`
	ReferralCode     string    `gorm:"type:varchar(32);not null" json:"referral_code"`
	Status           string    `gorm:"type:varchar(20);not null" json:"status"`
	CommissionAmount int64     `gorm:"not null;default:0" json:"commission_amount"` // 该关系累计产生的一级佣金
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReferralEdge) TableName() string {
	return "referral_edge"
}
