package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, "noice", cfg.Strategy)
	assert.Equal(t, 10000.0, cfg.InitialCapital)
	assert.Equal(t, 0.02, cfg.MaxRiskPerTrade)
	assert.Equal(t, 5, cfg.MaxPositions)
	assert.False(t, cfg.TradingEnabled)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"-symbol", "ETHUSDT",
		"-strategy", "momentum",
		"-initial-capital", "5000",
		"-trading-enabled",
		"-enable-shorts",
	})
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "momentum", cfg.Strategy)
	assert.Equal(t, 5000.0, cfg.InitialCapital)
	assert.True(t, cfg.TradingEnabled)
	assert.True(t, cfg.EnableShorts)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbol: "SOLUSDT"
strategy: "momentum"
initial_capital: 2500
max_risk_per_trade: 0.01
trading_enabled: true
db_conn_str: "postgres://localhost/test"
`), 0o644))

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", cfg.Symbol)
	assert.Equal(t, 2500.0, cfg.InitialCapital)
	assert.Equal(t, 0.01, cfg.MaxRiskPerTrade)
	assert.True(t, cfg.TradingEnabled)
	assert.Equal(t, "postgres://localhost/test", cfg.DBConnStr)
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv("DB_CONN_STR", "postgres://env/db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "chat")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.DBConnStr)
	assert.Equal(t, "tok", cfg.TelegramToken)
	assert.Equal(t, "chat", cfg.TelegramChatID)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero capital", []string{"-initial-capital", "0"}},
		{"risk above one", []string{"-max-risk-per-trade", "1.5"}},
		{"zero positions", []string{"-max-positions", "0"}},
		{"confidence above one", []string{"-min-confidence", "2"}},
		{"zero window", []string{"-window-size", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	rc := cfg.RiskConfig()
	assert.Equal(t, cfg.InitialCapital, rc.InitialCapital)
	assert.Equal(t, cfg.MaxPositions, rc.MaxPositions)

	sp := cfg.StrategyParams()
	assert.Equal(t, cfg.MinConfidence, sp.MinConfidence)
	assert.Equal(t, cfg.MaxSignalsPerHour, sp.MaxSignalsPerHour)
}
