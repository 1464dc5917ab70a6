package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"risk-sentinel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	API        APIConfig        `mapstructure:"api"`
	Disclosure DisclosureConfig `mapstructure:"disclosure"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity for
// alert persistence. The agent runs fully in-memory without a DSN.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// AlertRetention prunes alerts older than this on agent startup.
	// Zero keeps everything.
	AlertRetention time.Duration `mapstructure:"alert_retention"`
}

// AgentConfig governs the observe-decide-act cycle.
type AgentConfig struct {
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	BlocksPerCycle  int           `mapstructure:"blocks_per_cycle"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	ScoreFanout     int           `mapstructure:"score_fanout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// EthereumConfig covers chain data access.
type EthereumConfig struct {
	RPCURL           string        `mapstructure:"rpc_url"`
	WSURL            string        `mapstructure:"ws_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	LargeTransferETH float64       `mapstructure:"large_transfer_eth"`
	ExplorerBaseURL  string        `mapstructure:"explorer_base_url"`
}

// RegistryConfig points at the on-chain risk report registry.
type RegistryConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	PrivateKey      string `mapstructure:"private_key"`
}

// ScoringConfig captures the external risk scoring backend.
type ScoringConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	SubmissionThreshold int           `mapstructure:"submission_threshold"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	UserAgent           string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the optional Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// APIConfig sets the alert query surface.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// DisclosureConfig locates the append-only disclosure log.
type DisclosureConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RISKSENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "risksentinel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("agent.cycle_interval", "2m")
	v.SetDefault("agent.blocks_per_cycle", 40)
	v.SetDefault("agent.startup_delay", "0s")
	v.SetDefault("agent.score_fanout", 4)
	v.SetDefault("agent.advisory_lock_key", int64(0x52534E54))

	v.SetDefault("ethereum.request_timeout", "10s")
	v.SetDefault("ethereum.poll_interval", "3s")
	v.SetDefault("ethereum.large_transfer_eth", 100.0)
	v.SetDefault("ethereum.explorer_base_url", "https://testnet.bscscan.com")

	v.SetDefault("scoring.request_timeout", "60s")
	v.SetDefault("scoring.submission_threshold", 0)
	v.SetDefault("scoring.cooldown", "5m")
	v.SetDefault("scoring.user_agent", "risksentinel/1.0")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", ":3002")

	v.SetDefault("disclosure.path", "logs/disclosure.jsonl")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.alert_retention", "0s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Agent.CycleInterval <= 0 {
		return fmt.Errorf("agent.cycle_interval must be greater than zero")
	}
	if c.Agent.BlocksPerCycle <= 0 {
		return fmt.Errorf("agent.blocks_per_cycle must be greater than zero")
	}
	if c.Scoring.SubmissionThreshold < 0 || c.Scoring.SubmissionThreshold > 100 {
		return fmt.Errorf("scoring.submission_threshold must be within [0,100]")
	}
	if c.Scoring.Cooldown < 0 {
		return fmt.Errorf("scoring.cooldown cannot be negative")
	}
	if c.Ethereum.LargeTransferETH < 0 {
		return fmt.Errorf("ethereum.large_transfer_eth cannot be negative")
	}
	if c.Database.AlertRetention < 0 {
		return fmt.Errorf("database.alert_retention cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
