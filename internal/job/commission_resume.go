package job

import (
	"context"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/logging"
	"referralpay/internal/service"

	"go.uber.org/zap"
)

// CommissionResumeJob 补偿任务：补发超过宽限期仍有 pending 接收人的佣金事件
// 宽限期内的事件可能还在被请求处理，不去抢锁
type CommissionResumeJob struct {
	commission *service.CommissionService
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewCommissionResumeJob(commission *service.CommissionService, cfg *config.Config) *CommissionResumeJob {
	return &CommissionResumeJob{
		commission: commission,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Duration(cfg.Business.ResumeIntervalSeconds) * time.Second,
		batchSize:  50,
	}
}

func (j *CommissionResumeJob) Start(ctx context.Context) {
	logging.Logger.Info("[CommissionResumeJob] 补偿任务启动", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("[CommissionResumeJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logging.Logger.Info("[CommissionResumeJob] 任务停止")
			return
		case <-ticker.C:
			j.resumePendingEvents(ctx)
		}
	}
}

func (j *CommissionResumeJob) Stop() {
	close(j.stopCh)
}

func (j *CommissionResumeJob) resumePendingEvents(ctx context.Context) int {
	before := time.Now().Add(-time.Duration(j.cfg.Business.ResumeGraceMinutes) * time.Minute)
	resumed, err := j.commission.ResumePending(ctx, before, j.batchSize)
	if err != nil {
		logging.Logger.Error("[CommissionResumeJob] 补发佣金失败", zap.Error(err))
		return 0
	}
	if resumed > 0 {
		logging.Logger.Info("[CommissionResumeJob] 本次补发完成", zap.Int("events", resumed))
	}
	return resumed
}
