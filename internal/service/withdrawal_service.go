package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/logging"
	"referralpay/internal/metrics"
	"referralpay/internal/model"
	"referralpay/internal/repository"
	"referralpay/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WithdrawalService struct {
	db             *gorm.DB
	cfg            *config.Config
	wallet         *WalletService
	withdrawalRepo *repository.WithdrawalRepository
	ledgerRepo     *repository.LedgerRepository
	userRepo       *repository.UserRepository
	outboxRepo     *repository.OutboxRepository
}

func NewWithdrawalService(db *gorm.DB, cfg *config.Config, wallet *WalletService) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		cfg:            cfg,
		wallet:         wallet,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		ledgerRepo:     repository.NewLedgerRepository(db),
		userRepo:       repository.NewUserRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

type CreateWithdrawalRequest struct {
	RequestID string             `json:"request_id" binding:"required"`
	UserID    int64              `json:"user_id" binding:"required"`
	Amount    int64              `json:"amount" binding:"required"`
	Bank      model.BankSnapshot `json:"bank" binding:"required"`
}

type UpdateWithdrawalStatusRequest struct {
	RequestNo    string `json:"request_no" binding:"required"`
	Status       string `json:"status" binding:"required"`
	ReferenceID  string `json:"reference_id"`
	RejectReason string `json:"reject_reason"`
}

type WithdrawalResponse struct {
	*model.WithdrawalRequest
	Balance int64  `json:"balance"`
	Message string `json:"message,omitempty"`
}

// Create 创建提现申请
//
// 【关键点】
// 1. request_id 幂等，重复提交返回已有申请
// 2. 校验余额和创建申请在同一把用户锁内，并发申请不会超额
// 3. debit_on_create 打开时扣款和申请在同一事务内写入
func (s *WithdrawalService) Create(ctx context.Context, req *CreateWithdrawalRequest) (*WithdrawalResponse, error) {
	if req.Amount <= 0 || req.Amount < s.cfg.Withdrawal.MinAmount {
		return nil, fmt.Errorf("%w: 提现金额 %d，最低 %d", ErrInvalidAmount, req.Amount, s.cfg.Withdrawal.MinAmount)
	}
	if !req.Bank.Valid() {
		return nil, ErrInvalidBankSnapshot
	}
	if req.RequestID == "" {
		return nil, ErrInvalidRequestID
	}

	existing, err := s.withdrawalRepo.GetByRequestID(ctx, nil, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询提现申请失败: %w", err)
	}
	if existing != nil {
		return s.duplicate(ctx, req, existing)
	}

	var (
		withdrawal *model.WithdrawalRequest
		entry      *model.WalletLedgerEntry
		dup        *model.WithdrawalRequest
	)

	err = s.wallet.WithUserLock(ctx, req.UserID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			// 获取锁后再次检查幂等
			found, err := s.withdrawalRepo.GetByRequestID(ctx, tx, req.UserID, req.RequestID)
			if err != nil {
				return fmt.Errorf("查询提现申请失败: %w", err)
			}
			if found != nil {
				dup = found
				return nil
			}

			user, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			if user.LedgerFrozen {
				return fmt.Errorf("%w: user_id=%d 已暂停扣款", ErrReconciliationMismatch, req.UserID)
			}
			if user.WalletBalance < req.Amount {
				return fmt.Errorf("%w: 余额 %d，申请 %d", ErrInsufficientWalletBalance, user.WalletBalance, req.Amount)
			}

			withdrawal = &model.WithdrawalRequest{
				RequestNo:    idgen.GenerateWithdrawalNo(),
				RequestID:    req.RequestID,
				UserID:       req.UserID,
				Amount:       req.Amount,
				Status:       model.WithdrawalStatusPending,
				BankSnapshot: req.Bank,
			}
			if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
				return fmt.Errorf("创建提现申请失败: %w", err)
			}

			if s.cfg.Withdrawal.DebitOnCreate {
				entry, _, err = s.wallet.ApplyInTx(ctx, tx, &LedgerInput{
					UserID:    req.UserID,
					Amount:    -req.Amount,
					Reason:    model.LedgerReasonWithdrawalDebit,
					RelatedID: withdrawal.RequestNo,
					Remark:    "提现申请扣款",
				})
				if err != nil {
					return err
				}
			}

			return s.writeStatusMessage(ctx, tx, withdrawal)
		})
	})
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return s.duplicate(ctx, req, dup)
	}

	if entry != nil {
		recordEntry(entry)
	}
	metrics.WithdrawalTransitionsTotal.WithLabelValues(model.WithdrawalStatusPending).Inc()
	logging.Logger.Info("提现申请已创建",
		zap.String("request_no", withdrawal.RequestNo),
		zap.Int64("user_id", withdrawal.UserID),
		zap.Int64("amount", withdrawal.Amount),
		zap.Bool("debited", entry != nil))

	balance, err := s.wallet.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &WithdrawalResponse{WithdrawalRequest: withdrawal, Balance: balance, Message: "提现申请已提交"}, nil
}

// duplicate 同一 request_id 的重复提交必须和已有申请内容一致
func (s *WithdrawalService) duplicate(ctx context.Context, req *CreateWithdrawalRequest, withdrawal *model.WithdrawalRequest) (*WithdrawalResponse, error) {
	if withdrawal.UserID != req.UserID || withdrawal.Amount != req.Amount || withdrawal.BankSnapshot != req.Bank {
		return nil, fmt.Errorf("%w: request_id=%s", ErrWithdrawalRequestConflict, req.RequestID)
	}
	balance, err := s.wallet.GetBalance(ctx, withdrawal.UserID)
	if err != nil {
		return nil, err
	}
	return &WithdrawalResponse{WithdrawalRequest: withdrawal, Balance: balance, Message: "提现申请已存在，请勿重复提交"}, nil
}

// UpdateStatus 管理员审核提现
//
//	pending  -> approved  审核通过
//	pending  -> paid      直接打款
//	approved -> paid      打款
//	pending  -> rejected  驳回，已扣款时退回
//
// paid 再次标记 paid、rejected 再次驳回视为重复操作，不报错也不产生流水。
func (s *WithdrawalService) UpdateStatus(ctx context.Context, req *UpdateWithdrawalStatusRequest) (*WithdrawalResponse, error) {
	switch req.Status {
	case model.WithdrawalStatusApproved, model.WithdrawalStatusPaid, model.WithdrawalStatusRejected:
	default:
		return nil, fmt.Errorf("%w: 目标状态 %q", ErrInvalidStateTransition, req.Status)
	}
	if req.Status == model.WithdrawalStatusRejected && req.RejectReason == "" {
		return nil, ErrRejectReasonRequired
	}

	current, err := s.withdrawalRepo.GetByRequestNo(ctx, nil, req.RequestNo)
	if err != nil {
		return nil, err
	}

	var (
		withdrawal *model.WithdrawalRequest
		entry      *model.WalletLedgerEntry
		noop       bool
		from       string
	)

	err = s.wallet.WithUserLock(ctx, current.UserID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			withdrawal, err = s.withdrawalRepo.GetByRequestNoForUpdate(ctx, tx, req.RequestNo)
			if err != nil {
				return err
			}
			from = withdrawal.Status

			if from == req.Status && model.IsWithdrawalTerminal(from) {
				noop = true
				return nil
			}
			if !model.CanWithdrawalTransitionTo(from, req.Status) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, req.Status)
			}

			entry, err = s.settle(ctx, tx, withdrawal, req.Status)
			if err != nil {
				return err
			}

			updates := map[string]interface{}{}
			now := time.Now()
			// 审核时填写的 reference_id 在打款未传时保留
			if req.ReferenceID != "" && req.Status != model.WithdrawalStatusRejected {
				updates["reference_id"] = req.ReferenceID
				withdrawal.ReferenceID = req.ReferenceID
			}
			switch req.Status {
			case model.WithdrawalStatusPaid:
				updates["processed_at"] = now
				withdrawal.ProcessedAt = &now
			case model.WithdrawalStatusRejected:
				updates["reject_reason"] = req.RejectReason
				updates["processed_at"] = now
				withdrawal.RejectReason = req.RejectReason
				withdrawal.ProcessedAt = &now
			}

			if err := s.withdrawalRepo.UpdateStatus(ctx, tx, req.RequestNo, from, req.Status, updates); err != nil {
				if errors.Is(err, repository.ErrWithdrawalStatusInvalid) {
					return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, req.Status)
				}
				return fmt.Errorf("更新提现状态失败: %w", err)
			}
			withdrawal.Status = req.Status

			return s.writeStatusMessage(ctx, tx, withdrawal)
		})
	})
	if err != nil {
		return nil, err
	}

	balance, err := s.wallet.GetBalance(ctx, withdrawal.UserID)
	if err != nil {
		return nil, err
	}
	if noop {
		return &WithdrawalResponse{WithdrawalRequest: withdrawal, Balance: balance, Message: "状态未变化"}, nil
	}

	if entry != nil {
		recordEntry(entry)
	}
	metrics.WithdrawalTransitionsTotal.WithLabelValues(req.Status).Inc()
	logging.Logger.Info("提现状态已更新",
		zap.String("request_no", withdrawal.RequestNo),
		zap.Int64("user_id", withdrawal.UserID),
		zap.String("from", from),
		zap.String("to", req.Status),
		zap.Int64("amount", withdrawal.Amount))

	return &WithdrawalResponse{WithdrawalRequest: withdrawal, Balance: balance, Message: "提现状态已更新"}, nil
}

// settle 按流转写入资金流水
// 打款时没有扣款流水才扣款，驳回时有扣款流水才退款，和 debit_on_create 的取值无关
func (s *WithdrawalService) settle(ctx context.Context, tx *gorm.DB, withdrawal *model.WithdrawalRequest, to string) (*model.WalletLedgerEntry, error) {
	entries, err := s.ledgerRepo.ListByRelatedID(ctx, tx, withdrawal.UserID, withdrawal.RequestNo)
	if err != nil {
		return nil, fmt.Errorf("查询提现流水失败: %w", err)
	}
	var debited *model.WalletLedgerEntry
	for _, e := range entries {
		if e.Reason == model.LedgerReasonWithdrawalDebit {
			debited = e
			break
		}
	}

	switch to {
	case model.WithdrawalStatusPaid:
		if debited != nil {
			return nil, nil
		}
		entry, _, err := s.wallet.ApplyInTx(ctx, tx, &LedgerInput{
			UserID:    withdrawal.UserID,
			Amount:    -withdrawal.Amount,
			Reason:    model.LedgerReasonWithdrawalDebit,
			RelatedID: withdrawal.RequestNo,
			Remark:    "提现打款扣款",
		})
		return entry, err
	case model.WithdrawalStatusRejected:
		if debited == nil {
			return nil, nil
		}
		entry, _, err := s.wallet.ApplyInTx(ctx, tx, &LedgerInput{
			UserID:    withdrawal.UserID,
			Amount:    withdrawal.Amount,
			Reason:    model.LedgerReasonWithdrawalRefund,
			RelatedID: withdrawal.RequestNo,
			Remark:    "提现驳回退款",
		})
		return entry, err
	}
	return nil, nil
}

func (s *WithdrawalService) writeStatusMessage(ctx context.Context, tx *gorm.DB, withdrawal *model.WithdrawalRequest) error {
	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.WithdrawalStatus, withdrawal.RequestNo, map[string]interface{}{
		"request_no":   withdrawal.RequestNo,
		"user_id":      withdrawal.UserID,
		"amount":       withdrawal.Amount,
		"status":       withdrawal.Status,
		"reference_id": withdrawal.ReferenceID,
		"updated_at":   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

func (s *WithdrawalService) Get(ctx context.Context, requestNo string) (*model.WithdrawalRequest, error) {
	return s.withdrawalRepo.GetByRequestNo(ctx, nil, requestNo)
}

func (s *WithdrawalService) List(ctx context.Context, userID int64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.ListByUserID(ctx, userID, page, pageSize)
}
