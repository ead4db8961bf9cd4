package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Commission CommissionConfig `mapstructure:"commission"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Business   BusinessConfig   `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"`
}

type LogConfig struct {
	Production bool `mapstructure:"production"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CommissionCredited string `mapstructure:"commission_credited"`
	WithdrawalStatus   string `mapstructure:"withdrawal_status"`
}

// CommissionConfig 佣金策略
// 注册奖励为固定金额，购买佣金为订单金额的比例（字符串形式，避免浮点误差）
type CommissionConfig struct {
	SignupBonus SignupBonusConfig `mapstructure:"signup_bonus"`
	Purchase    PurchaseConfig    `mapstructure:"purchase"`
}

type SignupBonusConfig struct {
	Level1 int64 `mapstructure:"level1"`
	Level2 int64 `mapstructure:"level2"`
	Level3 int64 `mapstructure:"level3"`
	Admin  int64 `mapstructure:"admin"`
}

type PurchaseConfig struct {
	Level1Rate string `mapstructure:"level1_rate"`
	Level2Rate string `mapstructure:"level2_rate"`
	Level3Rate string `mapstructure:"level3_rate"`
	AdminRate  string `mapstructure:"admin_rate"`
}

// WithdrawalConfig 提现配置
// DebitOnCreate 为 true 时在创建申请时扣款、驳回时退款；为 false 时在打款时扣款
type WithdrawalConfig struct {
	DebitOnCreate bool  `mapstructure:"debit_on_create"`
	MinAmount     int64 `mapstructure:"min_amount"`
}

type BusinessConfig struct {
	MaxRetryCount            int `mapstructure:"max_retry_count"`
	LockRetryIntervalMs      int `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries           int `mapstructure:"lock_max_retries"`
	ResumeGraceMinutes       int `mapstructure:"resume_grace_minutes"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
	ResumeIntervalSeconds    int `mapstructure:"resume_interval_seconds"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("log.production", false)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "referral")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.commission_credited", "commission_credited")
	v.SetDefault("kafka.topic.withdrawal_status", "withdrawal_status")

	v.SetDefault("commission.signup_bonus.level1", 50)
	v.SetDefault("commission.signup_bonus.level2", 25)
	v.SetDefault("commission.signup_bonus.level3", 25)
	v.SetDefault("commission.signup_bonus.admin", 0)
	v.SetDefault("commission.purchase.level1_rate", "0.10")
	v.SetDefault("commission.purchase.level2_rate", "0.05")
	v.SetDefault("commission.purchase.level3_rate", "0.05")
	v.SetDefault("commission.purchase.admin_rate", "0.05")

	v.SetDefault("withdrawal.debit_on_create", true)
	v.SetDefault("withdrawal.min_amount", 1)

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.resume_grace_minutes", 5)
	v.SetDefault("business.reconcile_interval_seconds", 600)
	v.SetDefault("business.resume_interval_seconds", 30)
}

// Load 加载配置，configPath 为空时只使用默认值和环境变量
// 环境变量以 REFERRAL_ 为前缀，例如 REFERRAL_MYSQL_HOST
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REFERRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	config, err := Load(configPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
