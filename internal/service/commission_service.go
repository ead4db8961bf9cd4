package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

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

// SignupMarker 注册奖励幂等键的引用部分
const SignupMarker = "signup"

// CommissionIdempotencyKey 幂等键 = 来源用户 + 触发类型 + 订单号（注册时为 signup）
func CommissionIdempotencyKey(sourceUserID int64, triggerType, ref string) string {
	return fmt.Sprintf("%d:%s:%s", sourceUserID, triggerType, ref)
}

type CommissionService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	calculator     *Calculator
	graph          *ReferralGraph
	wallet         *WalletService
	commissionRepo *repository.CommissionRepository
	referralRepo   *repository.ReferralRepository
	userRepo       *repository.UserRepository
	outboxRepo     *repository.OutboxRepository
}

func NewCommissionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, wallet *WalletService) (*CommissionService, error) {
	calculator, err := NewCalculator(cfg.Commission)
	if err != nil {
		return nil, fmt.Errorf("佣金配置错误: %w", err)
	}
	return &CommissionService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		calculator:     calculator,
		graph:          NewReferralGraph(db),
		wallet:         wallet,
		commissionRepo: repository.NewCommissionRepository(db),
		referralRepo:   repository.NewReferralRepository(db),
		userRepo:       repository.NewUserRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}, nil
}

type DistributeRequest struct {
	SourceUserID   int64
	TriggerType    string
	BaseAmount     int64
	OrderID        string
	IdempotencyKey string // 为空时按来源用户、触发类型和订单号生成
}

type DistributeResult struct {
	Event     *model.CommissionEvent `json:"event"`
	Duplicate bool                   `json:"duplicate"`
}

// Distribute 计算并发放一次触发的佣金
//
// 【关键点】
// 1. 幂等：相同 idempotency_key 只生成一个事件，重放不会产生新流水
// 2. 推荐链成环时整体放弃，不落库、不入账
// 3. 每个接收人单独一个事务入账，失败的接收人保持 pending，重试时只补发 pending 的部分
//
// 部分接收人失败时返回事件和 ErrPartialDistribution。
func (s *CommissionService) Distribute(ctx context.Context, req *DistributeRequest) (*DistributeResult, error) {
	if !model.ValidTriggerType(req.TriggerType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTriggerType, req.TriggerType)
	}
	if req.BaseAmount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.BaseAmount)
	}
	if req.IdempotencyKey == "" {
		ref := req.OrderID
		if req.TriggerType == model.TriggerSignupBonus {
			ref = SignupMarker
		}
		req.IdempotencyKey = CommissionIdempotencyKey(req.SourceUserID, req.TriggerType, ref)
	}

	// 已完成的事件直接返回，不需要加锁
	existing, err := s.commissionRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("查询佣金事件失败: %w", err)
	}
	if existing != nil && existing.Completed() {
		s.logDuplicate(existing)
		return &DistributeResult{Event: existing, Duplicate: true}, nil
	}

	var result *DistributeResult
	err = withLock(ctx, lock.NewCommissionLock(s.redisClient, req.IdempotencyKey), s.cfg, func() error {
		// 获取锁后再次检查幂等
		existing, err := s.commissionRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("查询佣金事件失败: %w", err)
		}
		if existing != nil {
			s.logDuplicate(existing)
			result = &DistributeResult{Event: existing, Duplicate: true}
			return s.creditPending(ctx, existing)
		}

		event, err := s.createEvent(ctx, req)
		if err != nil {
			return err
		}
		result = &DistributeResult{Event: event}
		return s.creditPending(ctx, event)
	})
	if err != nil && result == nil {
		return nil, err
	}
	return result, err
}

// Resume 补发某个事件中仍为 pending 的接收人
func (s *CommissionService) Resume(ctx context.Context, eventID int64) (*model.CommissionEvent, error) {
	event, err := s.commissionRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Completed() {
		return event, nil
	}

	err = withLock(ctx, lock.NewCommissionLock(s.redisClient, event.IdempotencyKey), s.cfg, func() error {
		event, err = s.commissionRepo.GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		return s.creditPending(ctx, event)
	})
	return event, err
}

// ResumePending 补发创建时间早于 before 的未完成事件，返回补发成功的事件数
func (s *CommissionService) ResumePending(ctx context.Context, before time.Time, limit int) (int, error) {
	ids, err := s.commissionRepo.ListEventIDsWithPendingRecipients(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("查询未完成佣金事件失败: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		if _, err := s.Resume(ctx, id); err != nil {
			logging.Logger.Warn("补发佣金失败", zap.Int64("event_id", id), zap.Error(err))
			continue
		}
		resumed++
	}
	return resumed, nil
}

// FindEvent 按幂等键查询事件，不存在返回 nil
func (s *CommissionService) FindEvent(ctx context.Context, idempotencyKey string) (*model.CommissionEvent, error) {
	return s.commissionRepo.GetByIdempotencyKey(ctx, idempotencyKey)
}

func (s *CommissionService) createEvent(ctx context.Context, req *DistributeRequest) (*model.CommissionEvent, error) {
	chain, err := s.graph.ResolveChain(ctx, req.SourceUserID)
	if err != nil {
		return nil, fmt.Errorf("解析推荐链失败: %w", err)
	}

	breakdown, err := s.calculator.Calculate(req.BaseAmount, req.TriggerType)
	if err != nil {
		return nil, err
	}

	event, err := buildEvent(req, chain, breakdown)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.commissionRepo.Create(ctx, tx, event); err != nil {
			return fmt.Errorf("创建佣金事件失败: %w", err)
		}
		if req.TriggerType == model.TriggerSignupBonus {
			if err := s.referralRepo.MarkCompleted(ctx, tx, req.SourceUserID); err != nil {
				return fmt.Errorf("更新推荐关系失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CommissionEventsTotal.WithLabelValues(event.TriggerType, "created").Inc()
	logging.Logger.Info("佣金事件已创建",
		zap.String("event_no", event.EventNo),
		zap.String("idempotency_key", event.IdempotencyKey),
		zap.Int64("source_user_id", event.SourceUserID),
		zap.String("trigger_type", event.TriggerType),
		zap.Int64("total", event.Total),
		zap.Int64("unallocated", event.UnallocatedAmount),
		zap.Int("recipients", len(event.Recipients)))
	return event, nil
}

// buildEvent 每个存在的祖先生成一个接收人，缺失层级的金额不再分配
func buildEvent(req *DistributeRequest, chain []Ancestor, breakdown Breakdown) (*model.CommissionEvent, error) {
	event := &model.CommissionEvent{
		EventNo:         idgen.GenerateEventNo(),
		IdempotencyKey:  req.IdempotencyKey,
		SourceUserID:    req.SourceUserID,
		TriggerType:     req.TriggerType,
		OrderID:         req.OrderID,
		BaseAmount:      req.BaseAmount,
		AdminCommission: breakdown.AdminCommission,
	}

	for _, ancestor := range chain {
		amount, err := breakdown.Level(ancestor.Level)
		if err != nil {
			return nil, err
		}
		recipient, err := model.NewRecipient(ancestor.UserID, ancestor.Level, amount, req.TriggerType)
		if err != nil {
			return nil, err
		}
		event.Recipients = append(event.Recipients, recipient)
		event.SetLevelAmount(ancestor.Level, amount)
	}

	event.Total = model.RecipientTotal(event.Recipients)
	event.UnallocatedAmount = breakdown.Total - event.Total
	return event, nil
}

func (s *CommissionService) creditPending(ctx context.Context, event *model.CommissionEvent) error {
	var errs []error
	for _, recipient := range event.PendingRecipients() {
		if err := s.creditRecipient(ctx, event, recipient); err != nil {
			logging.Logger.Error("佣金入账失败",
				zap.String("event_no", event.EventNo),
				zap.Int64("user_id", recipient.UserID),
				zap.Int("level", recipient.Level),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("user_id=%d level=%d: %w", recipient.UserID, recipient.Level, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrPartialDistribution, event.EventNo, errors.Join(errs...))
	}
	return nil
}

// creditRecipient 标记接收人已入账和写流水在同一事务内，保证接收人级别的幂等
func (s *CommissionService) creditRecipient(ctx context.Context, event *model.CommissionEvent, recipient *model.CommissionRecipient) error {
	now := time.Now()
	var (
		entry  *model.WalletLedgerEntry
		marked bool
	)

	err := s.wallet.WithUserLock(ctx, recipient.UserID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			marked, err = s.commissionRepo.MarkRecipientCredited(ctx, tx, recipient.ID, now)
			if err != nil {
				return fmt.Errorf("更新接收人状态失败: %w", err)
			}
			if !marked {
				return nil
			}

			// 比例佣金向下取整后可能为0，只更新状态不写流水
			if recipient.Amount > 0 {
				entry, _, err = s.wallet.ApplyInTx(ctx, tx, &LedgerInput{
					UserID:    recipient.UserID,
					Amount:    recipient.Amount,
					Reason:    model.LedgerReasonCommissionCredit,
					RelatedID: event.EventNo,
					Remark:    fmt.Sprintf("%s-L%d-来源用户%d", event.TriggerType, recipient.Level, event.SourceUserID),
				})
				if err != nil {
					return err
				}
			}

			if recipient.Level == 1 {
				if err := s.referralRepo.AddCommission(ctx, tx, recipient.UserID, event.SourceUserID, recipient.Amount); err != nil {
					return fmt.Errorf("更新推荐关系失败: %w", err)
				}
			}

			msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.CommissionCredited, event.EventNo, map[string]interface{}{
				"event_no":       event.EventNo,
				"trigger_type":   event.TriggerType,
				"source_user_id": event.SourceUserID,
				"user_id":        recipient.UserID,
				"level":          recipient.Level,
				"amount":         recipient.Amount,
				"credited_at":    now.Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
				return fmt.Errorf("写入消息失败: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	recipient.Status = model.RecipientStatusCredited
	if marked {
		recipient.CreditedAt = &now
		metrics.CommissionCreditedAmount.WithLabelValues(strconv.Itoa(recipient.Level)).Add(float64(recipient.Amount))
	}
	if entry != nil {
		recordEntry(entry)
	}
	return nil
}

func (s *CommissionService) logDuplicate(event *model.CommissionEvent) {
	metrics.CommissionEventsTotal.WithLabelValues(event.TriggerType, "duplicate").Inc()
	logging.Logger.Info("佣金事件幂等重放",
		zap.String("event_no", event.EventNo),
		zap.String("idempotency_key", event.IdempotencyKey),
		zap.String("result", ErrDuplicateCommissionEvent.Error()),
		zap.Bool("completed", event.Completed()))
}

// ============================================================
// 查询
// ============================================================

// CommissionBreakdownReport 某个用户作为接收人的佣金记录，汇总值按需从记录计算
type CommissionBreakdownReport struct {
	UserID        int64                         `json:"user_id"`
	Records       []*repository.RecipientRecord `json:"records"`
	ByLevel       map[string]int64              `json:"by_level"`
	TotalCredited int64                         `json:"total_credited"`
	TotalPending  int64                         `json:"total_pending"`
}

func (s *CommissionService) GetCommissionBreakdown(ctx context.Context, userID int64) (*CommissionBreakdownReport, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, err
	}

	records, err := s.commissionRepo.ListRecipientsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询佣金记录失败: %w", err)
	}

	recipients := make([]*model.CommissionRecipient, 0, len(records))
	for _, r := range records {
		recipients = append(recipients, &r.CommissionRecipient)
	}

	byLevel := model.AmountByLevel(recipients)
	credited := model.CreditedTotal(recipients)

	return &CommissionBreakdownReport{
		UserID:  userID,
		Records: records,
		ByLevel: map[string]int64{
			"level1": byLevel[1],
			"level2": byLevel[2],
			"level3": byLevel[3],
		},
		TotalCredited: credited,
		TotalPending:  model.RecipientTotal(recipients) - credited,
	}, nil
}
