package job

import (
	"context"
	"errors"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/logging"
	"referralpay/internal/repository"
	"referralpay/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileJob 定期核对所有用户的缓存余额和流水汇总
// 不一致的用户由 WalletService 冻结扣款，这里只负责扫描和汇总
type ReconcileJob struct {
	wallet    *service.WalletService
	userRepo  *repository.UserRepository
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewReconcileJob(db *gorm.DB, wallet *service.WalletService, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		wallet:    wallet,
		userRepo:  repository.NewUserRepository(db),
		stopCh:    make(chan struct{}),
		interval:  time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second,
		batchSize: 200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	logging.Logger.Info("[ReconcileJob] 对账任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logging.Logger.Info("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcileAll(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// reconcileAll 返回扫描的用户数和不一致的用户数
func (j *ReconcileJob) reconcileAll(ctx context.Context) (checked, mismatched int) {
	var afterID int64
	for {
		ids, err := j.userRepo.ListIDsAfter(ctx, afterID, j.batchSize)
		if err != nil {
			logging.Logger.Error("[ReconcileJob] 查询用户失败", zap.Int64("after_id", afterID), zap.Error(err))
			return checked, mismatched
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return checked, mismatched
			}
			checked++
			if _, err := j.wallet.Reconcile(ctx, id); err != nil {
				if errors.Is(err, service.ErrReconciliationMismatch) {
					mismatched++
					continue
				}
				logging.Logger.Warn("[ReconcileJob] 对账失败", zap.Int64("user_id", id), zap.Error(err))
			}
		}
		afterID = ids[len(ids)-1]
	}

	if mismatched > 0 {
		logging.Logger.Error("[ReconcileJob] 发现余额不一致的用户",
			zap.Int("checked", checked),
			zap.Int("mismatched", mismatched))
	} else {
		logging.Logger.Info("[ReconcileJob] 对账完成", zap.Int("checked", checked))
	}
	return checked, mismatched
}
