package service

import (
	"testing"

	"referralpay/internal/config"
	"referralpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCommissionConfig() config.CommissionConfig {
	return config.CommissionConfig{
		SignupBonus: config.SignupBonusConfig{Level1: 50, Level2: 25, Level3: 25},
		Purchase: config.PurchaseConfig{
			Level1Rate: "0.10",
			Level2Rate: "0.05",
			Level3Rate: "0.05",
			AdminRate:  "0.05",
		},
	}
}

func TestCalculate_SignupBonusIsFixed(t *testing.T) {
	calc, err := NewCalculator(defaultCommissionConfig())
	require.NoError(t, err)

	for _, base := range []int64{0, 1, 100000} {
		b, err := calc.Calculate(base, model.TriggerSignupBonus)
		require.NoError(t, err)
		assert.Equal(t, Breakdown{Level1: 50, Level2: 25, Level3: 25, Total: 100}, b)
	}
}

func TestCalculate_PurchaseCommission(t *testing.T) {
	calc, err := NewCalculator(defaultCommissionConfig())
	require.NoError(t, err)

	b, err := calc.Calculate(1000, model.TriggerPurchaseCommission)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{Level1: 100, Level2: 50, Level3: 50, AdminCommission: 50, Total: 200}, b)
}

func TestCalculate_PurchaseCommissionFloors(t *testing.T) {
	calc, err := NewCalculator(defaultCommissionConfig())
	require.NoError(t, err)

	b, err := calc.Calculate(999, model.TriggerPurchaseCommission)
	require.NoError(t, err)
	assert.Equal(t, int64(99), b.Level1)
	assert.Equal(t, int64(49), b.Level2)
	assert.Equal(t, int64(49), b.Level3)
	assert.Equal(t, int64(49), b.AdminCommission)
	assert.Equal(t, b.Level1+b.Level2+b.Level3, b.Total)

	// 金额过小时各级都取整为 0
	b, err = calc.Calculate(9, model.TriggerPurchaseCommission)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{}, b)
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	calc, err := NewCalculator(defaultCommissionConfig())
	require.NoError(t, err)

	_, err = calc.Calculate(-1, model.TriggerPurchaseCommission)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = calc.Calculate(100, "cashback")
	assert.ErrorIs(t, err, ErrInvalidTriggerType)
}

func TestNewCalculator_ValidatesRates(t *testing.T) {
	cfg := defaultCommissionConfig()
	cfg.Purchase.Level2Rate = "abc"
	_, err := NewCalculator(cfg)
	assert.Error(t, err)

	cfg = defaultCommissionConfig()
	cfg.Purchase.AdminRate = "1.5"
	_, err = NewCalculator(cfg)
	assert.Error(t, err)

	cfg = defaultCommissionConfig()
	cfg.SignupBonus.Level3 = -1
	_, err = NewCalculator(cfg)
	assert.Error(t, err)
}

func TestBreakdownLevel(t *testing.T) {
	b := Breakdown{Level1: 1, Level2: 2, Level3: 3}
	for level, want := range map[int]int64{1: 1, 2: 2, 3: 3} {
		got, err := b.Level(level)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := b.Level(4)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
