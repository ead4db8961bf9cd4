package job

import (
	"context"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/infrastructure/mq"
	"referralpay/internal/logging"
	"referralpay/internal/model"
	"referralpay/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 把本地消息表中待发送的消息投递到 Kafka
// 投递至少一次，消费方按 message_key 去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logging.Logger.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logging.Logger.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		logging.Logger.Error("[OutboxSender] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logging.Logger.Error("[OutboxSender] 更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return false
		}
		logging.Logger.Debug("[OutboxSender] 消息发送成功",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey))
		return true
	}

	exhausted := msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount
	logging.Logger.Warn("[OutboxSender] 消息发送失败",
		zap.Int64("id", msg.ID),
		zap.Int("retry_count", msg.RetryCount+1),
		zap.Bool("exhausted", exhausted),
		zap.Error(err))

	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, exhausted); err != nil {
		logging.Logger.Error("[OutboxSender] 记录发送失败出错", zap.Int64("id", msg.ID), zap.Error(err))
	}
	return false
}
