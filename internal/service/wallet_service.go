package service

import (
	"context"
	"fmt"

	"referralpay/internal/config"
	"referralpay/internal/infrastructure/lock"
	"referralpay/internal/logging"
	"referralpay/internal/metrics"
	"referralpay/internal/model"
	"referralpay/internal/repository"
	"referralpay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WalletService 钱包流水，余额唯一的变更入口
//
// 【关键点】同一用户的"读余额 -> 校验 -> 写流水 -> 更新缓存余额"必须串行：
// 1. Redis 用户锁保证跨实例互斥
// 2. 事务内 SELECT ... FOR UPDATE 锁住用户行
// 3. 更新余额带 version 条件，兜底检测并发修改
type WalletService struct {
	db         *gorm.DB
	rdb        *redis.Client
	cfg        *config.Config
	userRepo   *repository.UserRepository
	ledgerRepo *repository.LedgerRepository
}

func NewWalletService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *WalletService {
	return &WalletService{
		db:         db,
		rdb:        rdb,
		cfg:        cfg,
		userRepo:   repository.NewUserRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// LedgerInput 一笔余额变动，Amount 正数入账、负数出账
type LedgerInput struct {
	UserID    int64
	Amount    int64
	Reason    string
	RelatedID string
	Remark    string
}

func (in *LedgerInput) validate() error {
	if in.RelatedID == "" {
		return fmt.Errorf("%w: related_id 不能为空", ErrInvalidLedgerReason)
	}
	switch in.Reason {
	case model.LedgerReasonCommissionCredit, model.LedgerReasonWithdrawalRefund:
		if in.Amount <= 0 {
			return fmt.Errorf("%w: %s 金额必须为正数: %d", ErrInvalidAmount, in.Reason, in.Amount)
		}
	case model.LedgerReasonWithdrawalDebit:
		if in.Amount >= 0 {
			return fmt.Errorf("%w: %s 金额必须为负数: %d", ErrInvalidAmount, in.Reason, in.Amount)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLedgerReason, in.Reason)
	}
	return nil
}

// WithUserLock 持有用户钱包锁执行 fn
func (s *WalletService) WithUserLock(ctx context.Context, userID int64, fn func() error) error {
	return withLock(ctx, lock.NewWalletLock(s.rdb, userID), s.cfg, fn)
}

// ApplyInTx 在调用方事务内追加一条流水并同步缓存余额
// 调用方必须已经持有该用户的钱包锁。
// 同一 (reason, related_id, user) 已经入账时不重复写入，返回已有流水和 applied=false。
func (s *WalletService) ApplyInTx(ctx context.Context, tx *gorm.DB, in *LedgerInput) (*model.WalletLedgerEntry, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, in.UserID)
	if err != nil {
		return nil, false, err
	}

	key := model.LedgerKey(in.Reason, in.RelatedID, in.UserID)
	existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, tx, key)
	if err != nil {
		return nil, false, fmt.Errorf("查询流水失败: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if in.Amount < 0 {
		if user.LedgerFrozen {
			return nil, false, fmt.Errorf("%w: user_id=%d 已暂停扣款", ErrReconciliationMismatch, in.UserID)
		}
		if user.WalletBalance+in.Amount < 0 {
			return nil, false, fmt.Errorf("%w: 余额 %d，需要 %d", ErrInsufficientWalletBalance, user.WalletBalance, -in.Amount)
		}
	}

	entry := &model.WalletLedgerEntry{
		EntryNo:        idgen.GenerateEntryNo(),
		IdempotencyKey: key,
		UserID:         in.UserID,
		Amount:         in.Amount,
		Reason:         in.Reason,
		RelatedID:      in.RelatedID,
		BalanceBefore:  user.WalletBalance,
		BalanceAfter:   user.WalletBalance + in.Amount,
		Remark:         in.Remark,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, false, fmt.Errorf("记录流水失败: %w", err)
	}

	var earnings int64
	if in.Reason == model.LedgerReasonCommissionCredit {
		earnings = in.Amount
	}
	if err := s.userRepo.ApplyBalance(ctx, tx, in.UserID, in.Amount, earnings, user.Version); err != nil {
		return nil, false, fmt.Errorf("更新余额失败: %w", err)
	}

	return entry, true, nil
}

// Credit 入账，返回入账后的余额
func (s *WalletService) Credit(ctx context.Context, userID, amount int64, reason, relatedID string) (int64, error) {
	return s.apply(ctx, &LedgerInput{UserID: userID, Amount: amount, Reason: reason, RelatedID: relatedID})
}

// Debit 扣款，amount 为正数，余额不足返回 ErrInsufficientWalletBalance
func (s *WalletService) Debit(ctx context.Context, userID, amount int64, reason, relatedID string) (int64, error) {
	return s.apply(ctx, &LedgerInput{UserID: userID, Amount: -amount, Reason: reason, RelatedID: relatedID})
}

func (s *WalletService) apply(ctx context.Context, in *LedgerInput) (int64, error) {
	var (
		entry   *model.WalletLedgerEntry
		applied bool
	)
	err := s.WithUserLock(ctx, in.UserID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			entry, applied, err = s.ApplyInTx(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return 0, err
	}

	if !applied {
		return s.GetBalance(ctx, in.UserID)
	}
	recordEntry(entry)
	return entry.BalanceAfter, nil
}

// GetBalance 读取缓存余额，缓存余额和流水在同一事务维护，对账保证两者一致
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	return user.WalletBalance, nil
}

func (s *WalletService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletLedgerEntry, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ReconcileReport 对账结果
type ReconcileReport struct {
	UserID        int64 `json:"user_id"`
	CachedBalance int64 `json:"cached_balance"`
	LedgerSum     int64 `json:"ledger_sum"`
	Consistent    bool  `json:"consistent"`
	Frozen        bool  `json:"frozen"`
}

// Reconcile 比较缓存余额和流水汇总
// 不一致时冻结该用户的扣款并返回 ErrReconciliationMismatch，不自动修正
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileReport, error) {
	return s.reconcile(ctx, userID, false)
}

// ReleaseFreeze 人工修复数据后解除冻结，仍不一致时保持冻结
func (s *WalletService) ReleaseFreeze(ctx context.Context, userID int64) (*ReconcileReport, error) {
	return s.reconcile(ctx, userID, true)
}

func (s *WalletService) reconcile(ctx context.Context, userID int64, release bool) (*ReconcileReport, error) {
	report := &ReconcileReport{UserID: userID}
	released := false

	err := s.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			sum, err := s.ledgerRepo.SumByUser(ctx, tx, userID)
			if err != nil {
				return fmt.Errorf("汇总流水失败: %w", err)
			}

			report.CachedBalance = user.WalletBalance
			report.LedgerSum = sum
			report.Consistent = sum == user.WalletBalance && sum >= 0
			report.Frozen = user.LedgerFrozen

			switch {
			case !report.Consistent && !user.LedgerFrozen:
				report.Frozen = true
				return s.userRepo.SetLedgerFrozen(ctx, tx, userID, true)
			case report.Consistent && user.LedgerFrozen && release:
				report.Frozen = false
				released = true
				return s.userRepo.SetLedgerFrozen(ctx, tx, userID, false)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent {
		metrics.ReconciliationMismatchTotal.Inc()
		logging.Logger.Error("钱包对账不一致，已暂停扣款",
			zap.Int64("user_id", userID),
			zap.Int64("cached_balance", report.CachedBalance),
			zap.Int64("ledger_sum", report.LedgerSum))
		return report, fmt.Errorf("%w: user_id=%d cached=%d ledger=%d",
			ErrReconciliationMismatch, userID, report.CachedBalance, report.LedgerSum)
	}

	if released {
		logging.Logger.Info("钱包冻结已解除", zap.Int64("user_id", userID))
	}
	return report, nil
}

func recordEntry(entry *model.WalletLedgerEntry) {
	metrics.LedgerEntriesTotal.WithLabelValues(entry.Reason).Inc()
	logging.Logger.Info("钱包流水入账",
		zap.String("entry_no", entry.EntryNo),
		zap.Int64("user_id", entry.UserID),
		zap.Int64("amount", entry.Amount),
		zap.String("reason", entry.Reason),
		zap.String("related_id", entry.RelatedID),
		zap.Int64("balance_after", entry.BalanceAfter))
}
