package service

import (
	"context"
	"errors"
	"fmt"

	"referralpay/internal/logging"
	"referralpay/internal/model"
	"referralpay/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ancestor 推荐链上的一个祖先，Level=1 为直接推荐人
type Ancestor struct {
	UserID int64 `json:"user_id"`
	Level  int   `json:"level"`
}

// ReferralGraph 沿 referred_by 指针向上解析推荐链
type ReferralGraph struct {
	userRepo *repository.UserRepository
}

func NewReferralGraph(db *gorm.DB) *ReferralGraph {
	return &ReferralGraph{userRepo: repository.NewUserRepository(db)}
}

// ResolveChain 最多向上走 MaxReferralDepth 步
//
// referred_by 在注册后不可修改，理论上无环；但脏数据可能成环，
// 所以用 visited 集合检测，遇到重复节点直接返回 ErrCycleDetected。
// 靠近根节点时返回少于三个祖先是正常情况。
func (g *ReferralGraph) ResolveChain(ctx context.Context, userID int64) ([]Ancestor, error) {
	return g.ResolveAncestors(ctx, userID, model.MaxReferralDepth)
}

// ResolveAncestors 最多向上走 depth 步，只检测这几步内的环
func (g *ReferralGraph) ResolveAncestors(ctx context.Context, userID int64, depth int) ([]Ancestor, error) {
	user, err := g.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	visited := map[int64]struct{}{user.ID: {}}
	chain := make([]Ancestor, 0, depth)
	next := user.ReferredBy

	for level := 1; level <= depth && next != nil; level++ {
		ancestorID := *next
		if _, seen := visited[ancestorID]; seen {
			return nil, fmt.Errorf("%w: user_id=%d ancestor_id=%d level=%d", ErrCycleDetected, userID, ancestorID, level)
		}

		ancestor, err := g.userRepo.GetByID(ctx, nil, ancestorID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				logging.Logger.Warn("推荐链上的祖先不存在，提前结束",
					zap.Int64("user_id", userID),
					zap.Int64("ancestor_id", ancestorID),
					zap.Int("level", level))
				break
			}
			return nil, err
		}

		visited[ancestorID] = struct{}{}
		chain = append(chain, Ancestor{UserID: ancestorID, Level: level})
		next = ancestor.ReferredBy
	}

	return chain, nil
}
