package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	ReadOnly    bool     `mapstructure:"read_only"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	AdminKey            string `mapstructure:"admin_key"`
	MaxClockSkewSeconds int    `mapstructure:"max_clock_skew_seconds"`
}

type ChainConfig struct {
	RPCURL                string `mapstructure:"rpc_url"`
	ChainID               int64  `mapstructure:"chain_id"`
	VerifyingContract     string `mapstructure:"verifying_contract"`
	DomainName            string `mapstructure:"domain_name"`
	DomainVersion         string `mapstructure:"domain_version"`
	PayoutMode            string `mapstructure:"payout_mode"` // journal | onchain
	PayoutPrivateKey      string `mapstructure:"payout_private_key"`
	ReceiptTimeoutSeconds int    `mapstructure:"receipt_timeout_seconds"`
}

type SettlementConfig struct {
	Owner            string `mapstructure:"owner"`
	Treasury         string `mapstructure:"treasury"`
	SplitNumerator   int64  `mapstructure:"split_numerator"`
	SplitDenominator int64  `mapstructure:"split_denominator"`
	HookTimeoutMs    int    `mapstructure:"hook_timeout_ms"`
	AmountDecimals   int32  `mapstructure:"amount_decimals"` // e.g. 18 for wei
}

type PolicyConfig struct {
	Type                 string   `mapstructure:"type"` // none | risk | contract
	ContractAddress      string   `mapstructure:"contract_address"`
	ContractCacheSeconds int      `mapstructure:"contract_cache_seconds"`
	ContractTimeoutMs    int      `mapstructure:"contract_timeout_ms"`
	ContractRetries      int      `mapstructure:"contract_retries"`
	MaxClaim             string   `mapstructure:"max_claim"`        // display units, e.g. "2.5"
	MaxDailyVolume       string   `mapstructure:"max_daily_volume"` // display units
	MaxDailyOrders       int      `mapstructure:"max_daily_orders"`
	BlockedCommitments   []string `mapstructure:"blocked_commitments"`
	AllowedSigners       []string `mapstructure:"allowed_signers"`
	UsageStore           string   `mapstructure:"usage_store"` // memory | redis | postgres
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // memory | pebble | postgres
	PebblePath string `mapstructure:"pebble_path"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	MaxOpenConns              int    `mapstructure:"max_open_conns"`
	MaxIdleConns              int    `mapstructure:"max_idle_conns"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	AuditRetentionDays        int    `mapstructure:"audit_retention_days"`
	UsageRetentionDays        int    `mapstructure:"usage_retention_days"`
	CleanupIntervalMinutes    int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	AuditListKey          string `mapstructure:"audit_list_key"`
	AuditListMax          int    `mapstructure:"audit_list_max"`
	EventStream           string `mapstructure:"event_stream"`
	EventStreamMaxLen     int64  `mapstructure:"event_stream_max_len"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("auth.max_clock_skew_seconds", 60)
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.domain_name", "SolverGate Settlement")
	v.SetDefault("chain.domain_version", "1")
	v.SetDefault("chain.payout_mode", "journal")
	v.SetDefault("chain.receipt_timeout_seconds", 120)
	v.SetDefault("settlement.split_numerator", 9000)
	v.SetDefault("settlement.split_denominator", 10000)
	v.SetDefault("settlement.hook_timeout_ms", 2000)
	v.SetDefault("settlement.amount_decimals", 18)
	v.SetDefault("policy.type", "none")
	v.SetDefault("policy.contract_cache_seconds", 60)
	v.SetDefault("policy.contract_timeout_ms", 1500)
	v.SetDefault("policy.contract_retries", 1)
	v.SetDefault("policy.usage_store", "memory")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.pebble_path", "./data/solvergate")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.idempotency_retention_hours", 168)
	v.SetDefault("database.audit_retention_days", 30)
	v.SetDefault("database.usage_retention_days", 30)
	v.SetDefault("database.cleanup_interval_minutes", 60)
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("redis.audit_list_key", "solvergate:audit_logs")
	v.SetDefault("redis.audit_list_max", 10000)
	v.SetDefault("redis.event_stream", "solvergate:events")
	v.SetDefault("redis.event_stream_max_len", 100000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
}

// Load reads .env, then config.yaml from . or ./configs, then SOLVERGATE_* env vars.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	return load(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// e.g. SOLVERGATE_SETTLEMENT_OWNER
	v.SetEnvPrefix("solvergate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the engine cannot start without.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Settlement.Owner) {
		return fmt.Errorf("settlement.owner must be a hex address")
	}
	if !common.IsHexAddress(c.Settlement.Treasury) {
		return fmt.Errorf("settlement.treasury must be a hex address")
	}
	if c.Settlement.SplitDenominator <= 0 || c.Settlement.SplitNumerator < 0 ||
		c.Settlement.SplitNumerator > c.Settlement.SplitDenominator {
		return fmt.Errorf("settlement split %d/%d is invalid", c.Settlement.SplitNumerator, c.Settlement.SplitDenominator)
	}
	if c.Settlement.AmountDecimals < 0 || c.Settlement.AmountDecimals > 36 {
		return fmt.Errorf("settlement.amount_decimals must be within [0, 36]")
	}
	if c.Chain.VerifyingContract != "" && !common.IsHexAddress(c.Chain.VerifyingContract) {
		return fmt.Errorf("chain.verifying_contract must be a hex address")
	}
	switch c.Storage.Driver {
	case "memory":
	case "pebble":
		if c.Storage.PebblePath == "" {
			return fmt.Errorf("storage.pebble_path is required for the pebble driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Chain.PayoutMode {
	case "journal":
	case "onchain":
		if c.Chain.RPCURL == "" || c.Chain.PayoutPrivateKey == "" {
			return fmt.Errorf("chain.rpc_url and chain.payout_private_key are required for onchain payouts")
		}
	default:
		return fmt.Errorf("unknown chain.payout_mode %q", c.Chain.PayoutMode)
	}
	switch c.Policy.Type {
	case "", "none", "risk":
	case "contract":
		if !common.IsHexAddress(c.Policy.ContractAddress) {
			return fmt.Errorf("policy.contract_address must be a hex address")
		}
	default:
		return fmt.Errorf("unknown policy.type %q", c.Policy.Type)
	}
	return nil
}
