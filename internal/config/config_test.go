package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(50), cfg.Commission.SignupBonus.Level1)
	assert.Equal(t, int64(25), cfg.Commission.SignupBonus.Level2)
	assert.Equal(t, int64(25), cfg.Commission.SignupBonus.Level3)
	assert.Equal(t, "0.10", cfg.Commission.Purchase.Level1Rate)
	assert.True(t, cfg.Withdrawal.DebitOnCreate)
	assert.Equal(t, "commission_credited", cfg.Kafka.Topic.CommissionCredited)
	assert.Equal(t, 5, cfg.Business.MaxRetryCount)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9090
commission:
  purchase:
    level1_rate: "0.2"
withdrawal:
  debit_on_create: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.2", cfg.Commission.Purchase.Level1Rate)
	assert.Equal(t, "0.05", cfg.Commission.Purchase.Level2Rate)
	assert.False(t, cfg.Withdrawal.DebitOnCreate)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REFERRAL_MYSQL_HOST", "db.internal")
	t.Setenv("REFERRAL_COMMISSION_SIGNUP_BONUS_LEVEL1", "80")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, int64(80), cfg.Commission.SignupBonus.Level1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
