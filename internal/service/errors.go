package service

import (
	"errors"

	"referralpay/internal/model"
	"referralpay/internal/repository"
)

var (
	ErrInvalidLevel       = model.ErrInvalidLevel
	ErrUserNotFound       = repository.ErrUserNotFound
	ErrWithdrawalNotFound = repository.ErrWithdrawalNotFound

	ErrCycleDetected = errors.New("推荐链存在环")

	// ErrDuplicateCommissionEvent 不作为失败返回，只用于日志中区分幂等重放和新分配
	ErrDuplicateCommissionEvent = errors.New("佣金事件已存在")

	ErrInsufficientWalletBalance = errors.New("钱包余额不足")
	ErrInvalidStateTransition    = errors.New("提现状态流转不合法")

	// ErrReconciliationMismatch 缓存余额和流水汇总不一致，该用户暂停扣款，等待人工核查
	ErrReconciliationMismatch = errors.New("钱包对账不一致")

	ErrInvalidAmount        = errors.New("金额不合法")
	ErrInvalidTriggerType   = errors.New("佣金触发类型不合法")
	ErrInvalidLedgerReason  = errors.New("流水类型不合法")
	ErrReferralCodeNotFound = errors.New("推荐码不存在")
	ErrInvalidBankSnapshot  = errors.New("银行卡信息不完整")
	ErrRejectReasonRequired = errors.New("驳回原因不能为空")
	ErrInvalidOrder         = errors.New("订单号不能为空")
	ErrInvalidRequestID     = errors.New("request_id 不能为空")

	// ErrWithdrawalRequestConflict request_id 已被内容不同的申请使用
	ErrWithdrawalRequestConflict = errors.New("request_id 与已有提现申请不一致")
	ErrSystemBusy           = errors.New("系统繁忙，请稍后重试")

	// ErrPartialDistribution 部分接收人入账失败，事件已落库，重试会跳过已入账的接收人
	ErrPartialDistribution = errors.New("佣金部分入账失败")
)
