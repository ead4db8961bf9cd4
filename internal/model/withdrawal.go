package model

import (
	"time"
)

const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
	WithdrawalStatusPaid     = "paid"
)

// ValidWithdrawalTransitions 提现状态流转表，rejected 和 paid 为终态
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusPending:  {WithdrawalStatusApproved, WithdrawalStatusPaid, WithdrawalStatusRejected},
	WithdrawalStatusApproved: {WithdrawalStatusPaid},
}

func CanWithdrawalTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidWithdrawalTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsWithdrawalTerminal(status string) bool {
	return status == WithdrawalStatusRejected || status == WithdrawalStatusPaid
}

// BankSnapshot 创建申请时的银行卡信息快照，之后不随用户资料变化
type BankSnapshot struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BranchCode    string `json:"branch_code,omitempty"`
}

func (b BankSnapshot) Valid() bool {
	return b.BankName != "" && b.AccountName != "" && b.AccountNumber != ""
}

type WithdrawalRequest struct {
	ID           int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo    string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	RequestID    string       `gorm:"type:varchar(64);uniqueIndex:uk_user_request,priority:2;not null" json:"request_id"` // 幂等ID，客户端生成，同一用户内唯一
	UserID       int64        `gorm:"uniqueIndex:uk_user_request,priority:1;not null" json:"user_id"`
	Amount       int64        `gorm:"not null" json:"amount"`
	Status       string       `gorm:"type:varchar(20);index;not null" json:"status"`
	BankSnapshot BankSnapshot `gorm:"type:text;serializer:json;not null" json:"bank_snapshot"`
	ReferenceID  string       `gorm:"type:varchar(64)" json:"reference_id,omitempty"`
	RejectReason string       `gorm:"type:varchar(256)" json:"reject_reason,omitempty"`
	CreatedAt    time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessedAt  *time.Time   `json:"processed_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_request"
}
