package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openalpha/sharepool/api"
	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/pkg/eventbus"
)

const envPrefix = "SHAREPOOL_INDEXER"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	NATS     BusConfig      `mapstructure:"nats"`
	// BackfillURL is the ledger API base URL replayed before subscribing
	BackfillURL   string        `mapstructure:"backfill_url"`
	MetricsListen string        `mapstructure:"metrics_listen"`
	Log           api.LogConfig `mapstructure:"log"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogSQL          bool          `mapstructure:"log_sql"`
}

type BusConfig struct {
	URL            string        `mapstructure:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	QueueGroup     string        `mapstructure:"queue_group"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// ConnectRetry bounds how long startup keeps retrying the first dial
	ConnectRetry time.Duration `mapstructure:"connect_retry"`
}

func setDefaults(v *viper.Viper) {
	bus := eventbus.DefaultConfig()
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_sql", false)
	v.SetDefault("nats.url", bus.URL)
	v.SetDefault("nats.subject_prefix", eventbus.DefaultSubjectPrefix)
	v.SetDefault("nats.queue_group", eventbus.DefaultQueueGroup)
	v.SetDefault("nats.connect_timeout", bus.ConnectTimeout)
	v.SetDefault("nats.connect_retry", 2*time.Minute)
	v.SetDefault("backfill_url", "")
	v.SetDefault("metrics_listen", "0.0.0.0:9101")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "plain")
}

func loadConfig(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
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

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.NATS.ConnectRetry < 0 {
		return errors.New("nats.connect_retry must not be negative")
	}
	if c.BackfillURL != "" && !strings.HasPrefix(c.BackfillURL, "http://") && !strings.HasPrefix(c.BackfillURL, "https://") {
		return fmt.Errorf("backfill_url %q must be an http(s) URL", c.BackfillURL)
	}
	return c.Log.Validate()
}

func (c *Config) gorm() indexer.GormConfig {
	return indexer.GormConfig{
		DSN:             c.Database.DSN,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogSQL:          c.Database.LogSQL,
	}
}

func (c *Config) bus() eventbus.Config {
	cfg := eventbus.DefaultConfig()
	cfg.URL = c.NATS.URL
	cfg.Name = "sharepool-indexer"
	cfg.SubjectPrefix = c.NATS.SubjectPrefix
	if c.NATS.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.NATS.ConnectTimeout
	}
	return cfg
}
