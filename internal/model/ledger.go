package model

import (
	"fmt"
	"time"
)

// ============================================================================
// 流水原因常量
// ============================================================================

const (
	LedgerReasonCommissionCredit = "commission-credit" // 佣金入账
	LedgerReasonWithdrawalDebit  = "withdrawal-debit"  // 提现扣款
	LedgerReasonWithdrawalRefund = "withdrawal-refund" // 提现驳回退款
)

// ============================================================================
// 钱包流水实体
// ============================================================================

// WalletLedgerEntry 钱包流水表
// 用户余额 = 该用户所有流水金额之和
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 每笔流水关联佣金事件号或提现单号
// 3. idempotency_key = 原因 + 关联单号 + 用户，同一笔业务只能入账一次
type WalletLedgerEntry struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	IdempotencyKey string    `gorm:"type:varchar(160);uniqueIndex;not null" json:"idempotency_key"`
	UserID         int64     `gorm:"index;not null" json:"user_id"`
	Amount         int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	Reason         string    `gorm:"type:varchar(32);not null" json:"reason"`
	RelatedID      string    `gorm:"type:varchar(64);index;not null" json:"related_id"`
	BalanceBefore  int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	Remark         string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletLedgerEntry) TableName() string {
	return "wallet_ledger_entry"
}

// LedgerKey 生成流水幂等键
func LedgerKey(reason, relatedID string, userID int64) string {
	return fmt.Sprintf("%s:%s:%d", reason, relatedID, userID)
}
