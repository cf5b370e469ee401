package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewards-ledger/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Issuer    IssuerConfig    `mapstructure:"issuer"`
	Custodian CustodianConfig `mapstructure:"custodian"`
	Promotion PromotionConfig `mapstructure:"promotion"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Platform string `mapstructure:"platform"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     string `mapstructure:"port"`
	Mode                     string `mapstructure:"mode"` // debug / release
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `mapstructure:"shutdown_timeout_seconds"`
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ReadHeaderTimeout 请求头读取超时
func (c ServerConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout 优雅退出超时
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
	// ExpirySpec 过期活动巡检的 cron 表达式
	ExpirySpec string `mapstructure:"expiry_spec"`
}

// IssuerConfig 发行服务配置
type IssuerConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Timeout 请求超时
func (c IssuerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CustodianConfig 托管钱包服务配置
type CustodianConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 请求超时
func (c CustodianConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PromotionConfig 活动刷新与重试配置
type PromotionConfig struct {
	FetchThresholdSeconds  int    `mapstructure:"fetch_threshold_seconds"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"`
	RetryDelaySeconds      int    `mapstructure:"retry_delay_seconds"`
	ErrorJitterSeconds     int    `mapstructure:"error_jitter_seconds"`
	TokenValue             string `mapstructure:"token_value"`
	CacheTTLSeconds        int    `mapstructure:"cache_ttl_seconds"`
	LockTTLSeconds         int    `mapstructure:"lock_ttl_seconds"`
	Testing                bool   `mapstructure:"testing"`
}

// FetchThreshold 缓存结果有效窗口
func (c PromotionConfig) FetchThreshold() time.Duration {
	return time.Duration(c.FetchThresholdSeconds) * time.Second
}

// RefreshInterval 刷新间隔
func (c PromotionConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// RetryDelay 签名结果未就绪时的重试间隔
func (c PromotionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// ErrorJitter 拉取失败后的随机退避上限
func (c PromotionConfig) ErrorJitter() time.Duration {
	return time.Duration(c.ErrorJitterSeconds) * time.Second
}

// CacheTTL 活动列表缓存时长
func (c PromotionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LockTTL 凭证批次锁时长
func (c PromotionConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// WalletConfig 钱包配置
type WalletConfig struct {
	PaymentID     string `mapstructure:"payment_id"`
	RecoverySeed  string `mapstructure:"recovery_seed"`
	Type          string `mapstructure:"type"`
	Address       string `mapstructure:"address"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

// APIConfig 接口鉴权配置
type APIConfig struct {
	JWTSecret      string          `mapstructure:"jwt_secret"`
	TokenTTLHours  int             `mapstructure:"token_ttl_hours"`
	ClaimRateLimit RateLimitConfig `mapstructure:"claim_rate_limit"`
}

// TokenTTL 访问令牌有效期
func (c APIConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Issuer.BaseURL) == "" {
		return fmt.Errorf("issuer.base_url is required")
	}
	if c.Promotion.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("promotion.refresh_interval_seconds must be positive")
	}
	if c.Promotion.RetryDelaySeconds <= 0 {
		return fmt.Errorf("promotion.retry_delay_seconds must be positive")
	}
	if strings.TrimSpace(c.API.JWTSecret) == "" {
		return fmt.Errorf("api.jwt_secret is required")
	}
	return nil
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults(viper.GetViper())

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

// Defaults 仅含默认值的配置，测试使用
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rewards-ledger")
	v.SetDefault("app.platform", "desktop")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "ledger.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/ledger.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "rl")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("queue.expiry_spec", "@every 1m")
	v.SetDefault("issuer.base_url", "http://127.0.0.1:8090")
	v.SetDefault("issuer.timeout_seconds", 15)
	v.SetDefault("issuer.requests_per_second", 10)
	v.SetDefault("issuer.burst", 5)
	v.SetDefault("custodian.base_url", "")
	v.SetDefault("custodian.timeout_seconds", 15)
	v.SetDefault("promotion.fetch_threshold_seconds", 600)
	v.SetDefault("promotion.refresh_interval_seconds", 86400)
	v.SetDefault("promotion.retry_delay_seconds", 5)
	v.SetDefault("promotion.error_jitter_seconds", 300)
	v.SetDefault("promotion.token_value", "0.25")
	v.SetDefault("promotion.cache_ttl_seconds", 600)
	v.SetDefault("promotion.lock_ttl_seconds", 30)
	v.SetDefault("promotion.testing", false)
	v.SetDefault("wallet.payment_id", "")
	v.SetDefault("wallet.recovery_seed", "")
	v.SetDefault("wallet.type", "anonymous")
	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.encryption_key", "")
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.token_ttl_hours", 720)
	v.SetDefault("api.claim_rate_limit.window_seconds", 60)
	v.SetDefault("api.claim_rate_limit.max_requests", 10)
}
