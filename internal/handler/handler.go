package handler

import (
	"errors"
	"strconv"

	"referralpay/internal/logging"
	"referralpay/internal/service"
	"referralpay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	walletService     *service.WalletService
	commissionService *service.CommissionService
	withdrawalService *service.WithdrawalService
	referralService   *service.ReferralService
}

func NewHandler(
	walletService *service.WalletService,
	commissionService *service.CommissionService,
	withdrawalService *service.WithdrawalService,
	referralService *service.ReferralService,
) *Handler {
	return &Handler{
		walletService:     walletService,
		commissionService: commissionService,
		withdrawalService: withdrawalService,
		referralService:   referralService,
	}
}

// errorCodes 业务错误到响应码的映射，按顺序匹配
var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrPartialDistribution, response.CodePartialDistribution},
	{service.ErrCycleDetected, response.CodeCycleDetected},
	{service.ErrReconciliationMismatch, response.CodeReconciliationMismatch},
	{service.ErrInsufficientWalletBalance, response.CodeBalanceNotEnough},
	{service.ErrInvalidStateTransition, response.CodeInvalidStateTransition},
	{service.ErrReferralCodeNotFound, response.CodeReferralCodeNotFound},
	{service.ErrUserNotFound, response.CodeUserNotFound},
	{service.ErrWithdrawalNotFound, response.CodeWithdrawalNotFound},
	{service.ErrInvalidAmount, response.CodeInvalidAmount},
	{service.ErrSystemBusy, response.CodeSystemBusy},
	{service.ErrWithdrawalRequestConflict, response.CodeWithdrawalConflict},
	{service.ErrInvalidTriggerType, response.CodeParamError},
	{service.ErrInvalidBankSnapshot, response.CodeParamError},
	{service.ErrRejectReasonRequired, response.CodeParamError},
	{service.ErrInvalidOrder, response.CodeParamError},
	{service.ErrInvalidRequestID, response.CodeParamError},
}

// writeError 业务错误返回对应的 code，其余按系统错误处理
// data 不为空时一并返回，例如部分入账的佣金事件
func writeError(c *gin.Context, err error, data interface{}) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.BusinessErrorWithData(c, e.code, err.Error(), data)
			return
		}
	}
	logging.Logger.Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	response.ServerError(c, err.Error())
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// ============================================================
// 外部事件
// ============================================================

// UserSignedUp 注册事件
// POST /api/v1/events/user-signed-up
func (h *Handler) UserSignedUp(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.referralService.HandleUserSignedUp(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, result)
		return
	}

	response.Success(c, result)
}

// OrderCompleted 订单完成事件
// POST /api/v1/events/order-completed
func (h *Handler) OrderCompleted(c *gin.Context) {
	var req service.OrderCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.referralService.HandleOrderCompleted(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, result)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 钱包
// ============================================================

// GetWalletBalance 查询钱包余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetWalletBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListLedgerEntries 钱包流水
// GET /api/v1/wallet/ledger?user_id=xxx&page=1&page_size=10
func (h *Handler) ListLedgerEntries(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	entries, total, err := h.walletService.ListEntries(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type walletUserRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// ReconcileWallet 对账
// POST /api/v1/wallet/reconcile
func (h *Handler) ReconcileWallet(c *gin.Context) {
	var req walletUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	report, err := h.walletService.Reconcile(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err, report)
		return
	}

	response.Success(c, report)
}

// ReleaseWalletFreeze 人工修复后解除冻结
// POST /api/v1/wallet/release-freeze
func (h *Handler) ReleaseWalletFreeze(c *gin.Context) {
	var req walletUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	report, err := h.walletService.ReleaseFreeze(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err, report)
		return
	}

	response.Success(c, report)
}

// ============================================================
// 佣金与推荐
// ============================================================

// GetCommissionBreakdown 佣金明细
// GET /api/v1/commission/breakdown?user_id=xxx
func (h *Handler) GetCommissionBreakdown(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	report, err := h.commissionService.GetCommissionBreakdown(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, report)
}

// GetReferralStats 推荐统计
// GET /api/v1/referral/stats?user_id=xxx&page=1&page_size=10
func (h *Handler) GetReferralStats(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	stats, err := h.referralService.GetReferralStats(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, stats)
}

// ============================================================
// 提现
// ============================================================

// CreateWithdrawal 创建提现申请
// POST /api/v1/withdrawal/create
//
// 【关键点】
// 1. 幂等性：相同的 request_id 只会创建一次
// 2. 并发安全：余额校验和扣款持有用户钱包锁
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.withdrawalService.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, result)
}

// UpdateWithdrawalStatus 管理员审核提现
// POST /api/v1/withdrawal/update-status
func (h *Handler) UpdateWithdrawalStatus(c *gin.Context) {
	var req service.UpdateWithdrawalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.withdrawalService.UpdateStatus(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, result)
}

// GetWithdrawal 提现详情
// GET /api/v1/withdrawal/detail?request_no=xxx
func (h *Handler) GetWithdrawal(c *gin.Context) {
	requestNo := c.Query("request_no")
	if requestNo == "" {
		response.ParamError(c, "request_no 参数不能为空")
		return
	}

	withdrawal, err := h.withdrawalService.Get(c.Request.Context(), requestNo)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, withdrawal)
}

// ListWithdrawals 用户提现列表
// GET /api/v1/withdrawal/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListWithdrawals(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	list, total, err := h.withdrawalService.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
