package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	QuickBase QuickBaseConfig `yaml:"quickbase" mapstructure:"quickbase"`
	Enerflo   EnerfloConfig   `yaml:"enerflo" mapstructure:"enerflo"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	DLQ       DLQConfig       `yaml:"dlq" mapstructure:"dlq"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// QuickBaseConfig holds QuickBase REST API credentials and table ids.
type QuickBaseConfig struct {
	Realm           string  `yaml:"realm" mapstructure:"realm"`
	TableID         string  `yaml:"table_id" mapstructure:"table_id"`
	UserToken       string  `yaml:"user_token" mapstructure:"user_token"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	DealIDFieldID   int     `yaml:"deal_id_field_id" mapstructure:"deal_id_field_id"`
	RecordIDFieldID int     `yaml:"record_id_field_id" mapstructure:"record_id_field_id"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Configured reports whether the credentials needed to reach QuickBase are
// all set. It does not perform a live check.
func (c QuickBaseConfig) Configured() bool {
	return c.Realm != "" && c.TableID != "" && c.UserToken != ""
}

// EnerfloConfig holds Enerflo API credentials and endpoints.
type EnerfloConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	OrgID       string  `yaml:"org_id" mapstructure:"org_id"`
	V1BaseURL   string  `yaml:"v1_base_url" mapstructure:"v1_base_url"`
	V2BaseURL   string  `yaml:"v2_base_url" mapstructure:"v2_base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Configured reports whether the Enerflo API key is set.
func (c EnerfloConfig) Configured() bool {
	return c.APIKey != ""
}

// CatalogConfig points at the destination field catalog export.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DLQConfig configures the dead letter store for failed deliveries.
type DLQConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RetryConfig configures retry behavior for outbound API calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port            int `yaml:"port" mapstructure:"port"`
	MaxBodyMB       int `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	EnrichTimeoutSs int `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
	ShutdownSecs    int `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_mb", 10)
	v.SetDefault("server.enrich_timeout_secs", 60)
	v.SetDefault("server.shutdown_secs", 10)
	// Credential keys need defaults registered for AutomaticEnv to
	// surface them through Unmarshal.
	v.SetDefault("quickbase.realm", "")
	v.SetDefault("quickbase.table_id", "")
	v.SetDefault("quickbase.user_token", "")
	v.SetDefault("enerflo.api_key", "")
	v.SetDefault("quickbase.base_url", "https://api.quickbase.com/v1")
	v.SetDefault("quickbase.deal_id_field_id", 6)
	v.SetDefault("quickbase.record_id_field_id", 3)
	v.SetDefault("quickbase.timeout_secs", 15)
	v.SetDefault("quickbase.rate_limit", 10)
	v.SetDefault("enerflo.org_id", "kinhome")
	v.SetDefault("enerflo.v1_base_url", "https://api.enerflo.io/v1")
	v.SetDefault("enerflo.v2_base_url", "https://api.enerflo.io/v2/graphql")
	v.SetDefault("enerflo.timeout_secs", 15)
	v.SetDefault("enerflo.rate_limit", 5)
	v.SetDefault("catalog.path", "quickbase-fields.csv")
	v.SetDefault("dlq.path", "dealsync-dlq.db")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
