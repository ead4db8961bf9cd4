package model

import (
	"time"
)

// MaxReferralDepth 佣金最多向上分配三级
const MaxReferralDepth = 3

// User 用户表
// 推荐关系字段（ReferredBy、ReferralLevel）在注册时写入，之后不再修改
// WalletBalance 是流水表的物化值，只能和流水在同一事务内一起更新
type User struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`                     // 用户ID，由认证系统传入
	ReferralCode        string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_code"`   // 自己的推荐码
	ReferredBy          *int64    `gorm:"index" json:"referred_by"`                                     // 直接推荐人
	ReferralLevel       int       `gorm:"not null;default:0" json:"referral_level"`                     // 根用户为0
	WalletBalance       int64     `gorm:"not null;default:0" json:"wallet_balance"`                     // 钱包余额（缓存）
	TotalEarnings       int64     `gorm:"not null;default:0" json:"total_earnings"`                     // 累计佣金，只增不减
	FirstOrderCompleted bool      `gorm:"not null;default:false" json:"first_order_completed"`          // 首单是否已完成
	LedgerFrozen        bool      `gorm:"not null;default:false" json:"ledger_frozen"`                  // 对账不一致，暂停扣款
	Level1Count         int64     `gorm:"column:level1_count;not null;default:0" json:"level1_count"`  // 一级下线数量
	Level2Count         int64     `gorm:"column:level2_count;not null;default:0" json:"level2_count"`  // 二级下线数量
	Level3Count         int64     `gorm:"column:level3_count;not null;default:0" json:"level3_count"`  // 三级下线数量
	Version             int       `gorm:"not null;default:0" json:"version"`                            // 乐观锁版本号
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// CountColumn 返回某一级下线计数对应的列名
func CountColumn(level int) (string, bool) {
	switch level {
	case 1:
		return "level1_count", true
	case 2:
		return "level2_count", true
	case 3:
		return "level3_count", true
	}
	return "", false
}
