package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration. It is loaded once at startup and passed
// explicitly to every component that needs it.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Midtrans MidtransConfig `mapstructure:"midtrans"`
	Tripay   TripayConfig   `mapstructure:"tripay"`
	Business BusinessConfig `mapstructure:"business"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
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
	DonationStatus string `mapstructure:"donation_status"`
}

// GatewayConfig selects the provider used to open new payments. Callbacks
// from every provider with a configured secret are accepted regardless.
type GatewayConfig struct {
	Provider    string `mapstructure:"provider"`
	CallbackURL string `mapstructure:"callback_url"`
	FinishURL   string `mapstructure:"finish_url"`
}

type MidtransConfig struct {
	ServerKey      string `mapstructure:"server_key"`
	ClientKey      string `mapstructure:"client_key"`
	IsProduction   bool   `mapstructure:"is_production"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTries       uint   `mapstructure:"max_tries"`
}

// TripayConfig belongs to the older integration. It stays selectable while
// existing merchant accounts are migrated to Midtrans.
type TripayConfig struct {
	APIKey         string `mapstructure:"api_key"`
	PrivateKey     string `mapstructure:"private_key"`
	MerchantCode   string `mapstructure:"merchant_code"`
	Method         string `mapstructure:"method"`
	IsProduction   bool   `mapstructure:"is_production"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTries       uint   `mapstructure:"max_tries"`
}

type BusinessConfig struct {
	DonationExpiryMinutes    int   `mapstructure:"donation_expiry_minutes"`
	MinDonationAmount        int64 `mapstructure:"min_donation_amount"`
	MaxRetryCount            int   `mapstructure:"max_retry_count"`
	LockTTLSeconds           int   `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMs      int   `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries           int   `mapstructure:"lock_max_retries"`
	ExpiryJobIntervalSeconds int   `mapstructure:"expiry_job_interval_seconds"`
	AuditJobIntervalSeconds  int   `mapstructure:"audit_job_interval_seconds"`
	OutboxIntervalMs         int   `mapstructure:"outbox_interval_ms"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("kafka.topic.donation_status", "donation-status")
	v.SetDefault("gateway.provider", "midtrans")
	v.SetDefault("midtrans.timeout_seconds", 15)
	v.SetDefault("midtrans.max_tries", 3)
	v.SetDefault("tripay.method", "BNIVA")
	v.SetDefault("tripay.timeout_seconds", 15)
	v.SetDefault("tripay.max_tries", 3)
	v.SetDefault("business.donation_expiry_minutes", 24*60)
	v.SetDefault("business.min_donation_amount", 1000)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 50)
	v.SetDefault("business.expiry_job_interval_seconds", 60)
	v.SetDefault("business.audit_job_interval_seconds", 600)
	v.SetDefault("business.outbox_interval_ms", 200)
}

// LoadConfig reads the yaml file at configPath. Every key can be overridden
// from the environment, e.g. DONATIONPAY_MIDTRANS_SERVER_KEY.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DONATIONPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with only the defaults applied. It is what
// tests start from.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case "midtrans", "tripay":
	default:
		return fmt.Errorf("gateway.provider must be midtrans or tripay, got %q", c.Gateway.Provider)
	}
	if c.Business.MinDonationAmount <= 0 {
		return fmt.Errorf("business.min_donation_amount must be positive")
	}
	if c.Business.LockMaxRetries <= 0 || c.Business.LockRetryIntervalMs <= 0 {
		return fmt.Errorf("business lock wait must be bounded and positive")
	}
	return nil
}
