package service

import (
	"fmt"

	"referralpay/internal/config"
	"referralpay/internal/model"

	"github.com/shopspring/decimal"
)

// Breakdown 按层级的佣金金额，Total 只包含三级推荐人，不包含平台抽成
type Breakdown struct {
	Level1          int64 `json:"level1"`
	Level2          int64 `json:"level2"`
	Level3          int64 `json:"level3"`
	AdminCommission int64 `json:"admin_commission"`
	Total           int64 `json:"total"`
}

// Level 返回某一级的金额
func (b Breakdown) Level(level int) (int64, error) {
	switch level {
	case 1:
		return b.Level1, nil
	case 2:
		return b.Level2, nil
	case 3:
		return b.Level3, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
}

// Calculator 佣金计算器，纯函数，无副作用
type Calculator struct {
	signup     config.SignupBonusConfig
	levelRates [model.MaxReferralDepth]decimal.Decimal
	adminRate  decimal.Decimal
}

func NewCalculator(cfg config.CommissionConfig) (*Calculator, error) {
	signup := cfg.SignupBonus
	if signup.Level1 < 0 || signup.Level2 < 0 || signup.Level3 < 0 || signup.Admin < 0 {
		return nil, fmt.Errorf("注册奖励不能为负数: %+v", signup)
	}

	c := &Calculator{signup: signup}

	rates := []string{cfg.Purchase.Level1Rate, cfg.Purchase.Level2Rate, cfg.Purchase.Level3Rate}
	for i, raw := range rates {
		rate, err := parseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("level%d_rate: %w", i+1, err)
		}
		c.levelRates[i] = rate
	}

	adminRate, err := parseRate(cfg.Purchase.AdminRate)
	if err != nil {
		return nil, fmt.Errorf("admin_rate: %w", err)
	}
	c.adminRate = adminRate

	return c, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("比例必须在 0-1 之间: %s", raw)
	}
	return rate, nil
}

// Calculate 计算一次触发的佣金分配
//
// signup-bonus 为固定金额，与 baseAmount 无关；
// purchase-commission 按比例计算并向下取整到最小货币单位
func (c *Calculator) Calculate(baseAmount int64, triggerType string) (Breakdown, error) {
	if baseAmount < 0 {
		return Breakdown{}, fmt.Errorf("%w: %d", ErrInvalidAmount, baseAmount)
	}

	var b Breakdown
	switch triggerType {
	case model.TriggerSignupBonus:
		b = Breakdown{
			Level1:          c.signup.Level1,
			Level2:          c.signup.Level2,
			Level3:          c.signup.Level3,
			AdminCommission: c.signup.Admin,
		}
	case model.TriggerPurchaseCommission:
		base := decimal.NewFromInt(baseAmount)
		b = Breakdown{
			Level1:          share(base, c.levelRates[0]),
			Level2:          share(base, c.levelRates[1]),
			Level3:          share(base, c.levelRates[2]),
			AdminCommission: share(base, c.adminRate),
		}
	default:
		return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidTriggerType, triggerType)
	}

	b.Total = b.Level1 + b.Level2 + b.Level3
	return b, nil
}

func share(base, rate decimal.Decimal) int64 {
	return base.Mul(rate).Floor().IntPart()
}
