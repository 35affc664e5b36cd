package api

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/rs/zerolog"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/viper"

	"github.com/openalpha/sharepool/api/middleware"
	"github.com/openalpha/sharepool/x/pool/types"
)

// EnvPrefix prefixes every environment override, e.g. SHAREPOOL_SERVER_LISTEN
const EnvPrefix = "SHAREPOOL"

// Config contains the standalone service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type LedgerConfig struct {
	Denom string `mapstructure:"denom"`
	// DataDir holds the goleveldb state; empty keeps state in memory
	DataDir       string `mapstructure:"data_dir"`
	FaucetEnabled bool   `mapstructure:"faucet_enabled"`
	FaucetMax     string `mapstructure:"faucet_max"`
}

type RateLimitConfig struct {
	Disabled                 bool          `mapstructure:"disabled"`
	IPRequestsPerSecond      int           `mapstructure:"ip_rps"`
	IPBurst                  int           `mapstructure:"ip_burst"`
	AccountRequestsPerSecond int           `mapstructure:"account_rps"`
	AccountBurst             int           `mapstructure:"account_burst"`
	MutationsPerSecond       int           `mapstructure:"mutation_rps"`
	MutationBurst            int           `mapstructure:"mutation_burst"`
	MutationsPerDay          int           `mapstructure:"mutations_per_day"`
	BlockDuration            time.Duration `mapstructure:"block_duration"`
}

type WebSocketConfig struct {
	MaxClientsPerIP  int `mapstructure:"max_clients_per_ip"`
	MaxSubscriptions int `mapstructure:"max_subscriptions"`
	MessageRateLimit int `mapstructure:"message_rate_limit"`
}

// NATSConfig enables event publishing when URL is set. Publishing needs a
// persistent ledger.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "plain" or "json"
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	rl := middleware.DefaultRateLimitConfig()
	return &Config{
		Server: ServerConfig{
			Listen:          "0.0.0.0:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Denom:     types.DefaultSettlementDenom,
			FaucetMax: "1000000000",
		},
		RateLimit: RateLimitConfig{
			IPRequestsPerSecond:      rl.IPRequestsPerSecond,
			IPBurst:                  rl.IPBurst,
			AccountRequestsPerSecond: rl.AccountRequestsPerSecond,
			AccountBurst:             rl.AccountBurst,
			MutationsPerSecond:       rl.MutationsPerSecond,
			MutationBurst:            rl.MutationBurst,
			MutationsPerDay:          rl.MutationsPerDay,
			BlockDuration:            rl.BlockDuration,
		},
		WebSocket: WebSocketConfig{
			MaxClientsPerIP:  10,
			MaxSubscriptions: 50,
			MessageRateLimit: 20,
		},
		NATS: NATSConfig{
			SubjectPrefix: "sharepool.events",
		},
		Metrics: MetricsConfig{Enabled: true},
		Log:     LogConfig{Level: "info", Format: "plain"},
	}
}

// SetDefaults registers DefaultConfig on v so env vars and files override it
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("ledger.denom", d.Ledger.Denom)
	v.SetDefault("ledger.data_dir", d.Ledger.DataDir)
	v.SetDefault("ledger.faucet_enabled", d.Ledger.FaucetEnabled)
	v.SetDefault("ledger.faucet_max", d.Ledger.FaucetMax)
	v.SetDefault("rate_limit.disabled", d.RateLimit.Disabled)
	v.SetDefault("rate_limit.ip_rps", d.RateLimit.IPRequestsPerSecond)
	v.SetDefault("rate_limit.ip_burst", d.RateLimit.IPBurst)
	v.SetDefault("rate_limit.account_rps", d.RateLimit.AccountRequestsPerSecond)
	v.SetDefault("rate_limit.account_burst", d.RateLimit.AccountBurst)
	v.SetDefault("rate_limit.mutation_rps", d.RateLimit.MutationsPerSecond)
	v.SetDefault("rate_limit.mutation_burst", d.RateLimit.MutationBurst)
	v.SetDefault("rate_limit.mutations_per_day", d.RateLimit.MutationsPerDay)
	v.SetDefault("rate_limit.block_duration", d.RateLimit.BlockDuration)
	v.SetDefault("websocket.max_clients_per_ip", d.WebSocket.MaxClientsPerIP)
	v.SetDefault("websocket.max_subscriptions", d.WebSocket.MaxSubscriptions)
	v.SetDefault("websocket.message_rate_limit", d.WebSocket.MessageRateLimit)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadConfig reads configuration from defaults, an optional file and
// SHAREPOOL_* environment variables.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	if err := validateDenom(c.Ledger.Denom); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Ledger.FaucetEnabled {
		if _, err := c.FaucetMaxAmount(); err != nil {
			return err
		}
	}
	// An in-memory ledger restarts its event sequence at 1, which a durable
	// subscriber's cursor would drop as already seen.
	if c.NATS.URL != "" && c.Ledger.DataDir == "" {
		return errors.New("nats.url requires ledger.data_dir so event sequences survive restarts")
	}
	return nil
}

// FaucetMaxAmount parses the per-request faucet cap
func (c *Config) FaucetMaxAmount() (math.Int, error) {
	amt, ok := math.NewIntFromString(c.Ledger.FaucetMax)
	if !ok || !amt.IsPositive() {
		return math.Int{}, fmt.Errorf("ledger.faucet_max must be a positive integer, got %q", c.Ledger.FaucetMax)
	}
	return amt, nil
}

// RateLimiterConfig converts to the middleware configuration
func (c *Config) RateLimiterConfig() *middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	rl.IPRequestsPerSecond = c.RateLimit.IPRequestsPerSecond
	rl.IPBurst = c.RateLimit.IPBurst
	rl.AccountRequestsPerSecond = c.RateLimit.AccountRequestsPerSecond
	rl.AccountBurst = c.RateLimit.AccountBurst
	rl.MutationsPerSecond = c.RateLimit.MutationsPerSecond
	rl.MutationBurst = c.RateLimit.MutationBurst
	rl.MutationsPerDay = c.RateLimit.MutationsPerDay
	rl.BlockDuration = c.RateLimit.BlockDuration
	return rl
}

func validateDenom(denom string) error {
	if err := sdk.ValidateDenom(denom); err != nil {
		return fmt.Errorf("ledger.denom: %w", err)
	}
	return nil
}

// Validate checks the level name and output format
func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Format != "plain" && c.Format != "json" {
		return fmt.Errorf("log.format must be plain or json, got %q", c.Format)
	}
	return nil
}

// NewLogger builds the process logger
func (c LogConfig) NewLogger(w io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := []log.Option{log.LevelOption(level)}
	if c.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(w, opts...), nil
}
