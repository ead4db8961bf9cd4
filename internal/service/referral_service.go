package service

import (
	"context"
	"errors"
	"fmt"

	"referralpay/internal/config"
	"referralpay/internal/infrastructure/lock"
	"referralpay/internal/logging"
	"referralpay/internal/model"
	"referralpay/internal/repository"
	"referralpay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferralService 处理外部系统推送的注册和订单完成事件
type ReferralService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	graph        *ReferralGraph
	commission   *CommissionService
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
}

func NewReferralService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, commission *CommissionService) *ReferralService {
	return &ReferralService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		graph:        NewReferralGraph(db),
		commission:   commission,
		userRepo:     repository.NewUserRepository(db),
		referralRepo: repository.NewReferralRepository(db),
	}
}

type SignupRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	ReferralCode string `json:"referral_code"`
}

type SignupResponse struct {
	User       *model.User            `json:"user"`
	Commission *model.CommissionEvent `json:"commission,omitempty"`
	Duplicate  bool                   `json:"duplicate"`
}

// HandleUserSignedUp 新用户注册
//
// 用户、直接推荐关系和祖先的下线计数在一个事务内写入，之后发放注册奖励。
// 同一用户重复推送时不会重复建档，只会补发未完成的奖励。
func (s *ReferralService) HandleUserSignedUp(ctx context.Context, req *SignupRequest) (*SignupResponse, error) {
	user, created, err := s.registerUser(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.commission.Distribute(ctx, &DistributeRequest{
		SourceUserID: user.ID,
		TriggerType:  model.TriggerSignupBonus,
	})
	resp := &SignupResponse{User: user, Duplicate: !created}
	if result != nil {
		resp.Commission = result.Event
	}
	if err != nil {
		return resp, err
	}
	return resp, nil
}

func (s *ReferralService) registerUser(ctx context.Context, req *SignupRequest) (*model.User, bool, error) {
	existing, err := s.userRepo.GetByID(ctx, nil, req.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, fmt.Errorf("查询用户失败: %w", err)
	}

	var (
		referrer  *model.User
		ancestors []Ancestor
	)
	if req.ReferralCode != "" {
		referrer, err = s.userRepo.GetByReferralCode(ctx, nil, req.ReferralCode)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, false, fmt.Errorf("%w: %s", ErrReferralCodeNotFound, req.ReferralCode)
			}
			return nil, false, fmt.Errorf("查询推荐码失败: %w", err)
		}
		// 推荐人的前两级祖先成为新用户的二级、三级推荐人
		// 链上成环时照常注册、不更新上级计数，由佣金分配返回 ErrCycleDetected
		ancestors, err = s.graph.ResolveAncestors(ctx, referrer.ID, model.MaxReferralDepth-1)
		if err != nil {
			if !errors.Is(err, ErrCycleDetected) {
				return nil, false, fmt.Errorf("解析推荐链失败: %w", err)
			}
			logging.Logger.Warn("推荐人的推荐链成环，跳过上级计数",
				zap.Int64("user_id", req.UserID),
				zap.Int64("referrer_id", referrer.ID),
				zap.Error(err))
			ancestors = nil
		}
	}

	user := &model.User{
		ID:           req.UserID,
		ReferralCode: idgen.GenerateReferralCode(),
	}
	if referrer != nil {
		user.ReferredBy = &referrer.ID
		user.ReferralLevel = referrer.ReferralLevel + 1
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return fmt.Errorf("创建用户失败: %w", err)
		}
		if referrer == nil {
			return nil
		}

		edge := &model.ReferralEdge{
			ReferrerID:     referrer.ID,
			ReferredUserID: user.ID,
			Level:          1,
			ReferralCode:   req.ReferralCode,
			Status:         model.ReferralStatusPending,
		}
		if err := s.referralRepo.Create(ctx, tx, edge); err != nil {
			return fmt.Errorf("创建推荐关系失败: %w", err)
		}

		if err := s.userRepo.IncrementReferralCount(ctx, tx, referrer.ID, 1); err != nil {
			return fmt.Errorf("更新下线计数失败: %w", err)
		}
		for _, a := range ancestors {
			if err := s.userRepo.IncrementReferralCount(ctx, tx, a.UserID, a.Level+1); err != nil {
				return fmt.Errorf("更新下线计数失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// 并发推送同一用户时，另一方已经建档
		if again, getErr := s.userRepo.GetByID(ctx, nil, req.UserID); getErr == nil {
			return again, false, nil
		}
		return nil, false, err
	}

	logging.Logger.Info("用户注册完成",
		zap.Int64("user_id", user.ID),
		zap.String("referral_code", user.ReferralCode),
		zap.Int("referral_level", user.ReferralLevel),
		zap.Bool("referred", referrer != nil))
	return user, true, nil
}

type OrderCompletedRequest struct {
	OrderID      string `json:"order_id" binding:"required"`
	BuyerUserID  int64  `json:"buyer_user_id" binding:"required"`
	Amount       int64  `json:"amount" binding:"required"`
	IsFirstOrder bool   `json:"is_first_order"`
}

type OrderCompletedResponse struct {
	Eligible   bool                   `json:"eligible"`
	Commission *model.CommissionEvent `json:"commission,omitempty"`
	Duplicate  bool                   `json:"duplicate"`
	Message    string                 `json:"message,omitempty"`
}

// HandleOrderCompleted 订单完成
//
// 只有买家的首单发放购买佣金。同一买家的订单事件串行处理：
// 已经为该订单生成过事件的重试会补发未完成部分；首单已经被其他订单占用时不再发放。
func (s *ReferralService) HandleOrderCompleted(ctx context.Context, req *OrderCompletedRequest) (*OrderCompletedResponse, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrder
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: 订单金额 %d", ErrInvalidAmount, req.Amount)
	}

	key := CommissionIdempotencyKey(req.BuyerUserID, model.TriggerPurchaseCommission, req.OrderID)
	var resp *OrderCompletedResponse

	err := withLock(ctx, lock.NewFirstOrderLock(s.redisClient, req.BuyerUserID), s.cfg, func() error {
		buyer, err := s.userRepo.GetByID(ctx, nil, req.BuyerUserID)
		if err != nil {
			return err
		}

		existing, err := s.commission.FindEvent(ctx, key)
		if err != nil {
			return fmt.Errorf("查询佣金事件失败: %w", err)
		}
		if existing == nil {
			if !req.IsFirstOrder {
				resp = &OrderCompletedResponse{Message: "非首单，不发放佣金"}
				return nil
			}
			if buyer.FirstOrderCompleted {
				resp = &OrderCompletedResponse{Message: "首单佣金已发放"}
				return nil
			}
		}

		result, distErr := s.commission.Distribute(ctx, &DistributeRequest{
			SourceUserID:   buyer.ID,
			TriggerType:    model.TriggerPurchaseCommission,
			BaseAmount:     req.Amount,
			OrderID:        req.OrderID,
			IdempotencyKey: key,
		})
		if result == nil {
			return distErr
		}
		resp = &OrderCompletedResponse{Eligible: true, Commission: result.Event, Duplicate: result.Duplicate}

		// 事件已落库即占用首单，部分接收人失败由补偿任务重试
		if _, err := s.userRepo.MarkFirstOrderCompleted(ctx, nil, buyer.ID); err != nil {
			return errors.Join(distErr, fmt.Errorf("更新首单状态失败: %w", err))
		}
		return distErr
	})
	if err != nil {
		return resp, err
	}

	logging.Logger.Info("订单完成事件已处理",
		zap.String("order_id", req.OrderID),
		zap.Int64("buyer_user_id", req.BuyerUserID),
		zap.Bool("eligible", resp.Eligible),
		zap.Bool("duplicate", resp.Duplicate))
	return resp, nil
}

// ReferralStats 某个用户的推荐统计，计数由注册时增量维护
type ReferralStats struct {
	UserID        int64                 `json:"user_id"`
	ReferralCode  string                `json:"referral_code"`
	ReferralLevel int                   `json:"referral_level"`
	Level1Count   int64                 `json:"level1_count"`
	Level2Count   int64                 `json:"level2_count"`
	Level3Count   int64                 `json:"level3_count"`
	TotalEarnings int64                 `json:"total_earnings"`
	Referrals     []*model.ReferralEdge `json:"referrals"`
	Total         int64                 `json:"total"`
}

func (s *ReferralService) GetReferralStats(ctx context.Context, userID int64, page, pageSize int) (*ReferralStats, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	edges, total, err := s.referralRepo.ListByReferrer(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询推荐关系失败: %w", err)
	}

	return &ReferralStats{
		UserID:        user.ID,
		ReferralCode:  user.ReferralCode,
		ReferralLevel: user.ReferralLevel,
		Level1Count:   user.Level1Count,
		Level2Count:   user.Level2Count,
		Level3Count:   user.Level3Count,
		TotalEarnings: user.TotalEarnings,
		Referrals:     edges,
		Total:         total,
	}, nil
}
