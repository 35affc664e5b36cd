package api

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Listen)
	require.Equal(t, "uusdc", cfg.Ledger.Denom)
	require.Empty(t, cfg.Ledger.DataDir)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 5, cfg.RateLimit.MutationsPerSecond)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sharepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: 127.0.0.1:9000
  read_timeout: 5s
ledger:
  denom: ucredit
  faucet_enabled: true
  faucet_max: "500"
rate_limit:
  mutation_burst: 3
`), 0o600))

	t.Setenv("SHAREPOOL_NATS_URL", "nats://bus:4222")
	t.Setenv("SHAREPOOL_LEDGER_DATA_DIR", dir)

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	require.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "ucredit", cfg.Ledger.Denom)
	require.Equal(t, 3, cfg.RateLimiterConfig().MutationBurst)
	require.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	require.Equal(t, dir, cfg.Ledger.DataDir)

	max, err := cfg.FaucetMaxAmount()
	require.NoError(t, err)
	require.Equal(t, int64(500), max.Int64())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Ledger.Denom = "!!"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ledger.FaucetEnabled = true
	cfg.Ledger.FaucetMax = "0"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Listen = ""
	require.Error(t, cfg.Validate())
}

func TestNATSRequiresPersistentLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.URL = "nats://bus:4222"
	require.ErrorContains(t, cfg.Validate(), "ledger.data_dir")

	cfg.Ledger.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())

	t.Setenv("SHAREPOOL_NATS_URL", "nats://bus:4222")
	_, err := LoadConfig(viper.New(), "")
	require.ErrorContains(t, err, "ledger.data_dir")
}

func TestLogConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "verbose"
	require.ErrorContains(t, cfg.Validate(), "log.level")

	cfg = DefaultConfig()
	cfg.Log.Format = "xml"
	require.ErrorContains(t, cfg.Validate(), "log.format")

	var buf bytes.Buffer
	logger, err := LogConfig{Level: "info", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("ready", "pools", 3)
	logger.Debug("hidden")
	require.Contains(t, buf.String(), `"pools":3`)
	require.NotContains(t, buf.String(), "hidden")
}
