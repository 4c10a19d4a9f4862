// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amirphl/noice-trader/internal/risk"
	"github.com/amirphl/noice-trader/internal/strategy"
)

/*
YAML config example:
symbol: "BTCUSDT"
strategy: "noice"
initial_capital: 10000
max_risk_per_trade: 0.02
max_portfolio_risk: 0.10
max_drawdown: 0.15
max_positions: 5
min_risk_reward: 1.5
window_size: 500
min_confidence: 0.75
max_signals_per_hour: 5
enable_shorts: false
risk_reward: 2.0
trading_enabled: false
db_conn_str: "postgres://..."
telegram_token: "..."
telegram_chat_id: "..."
*/

type Config struct {
	Symbol   string `yaml:"symbol"`
	Strategy string `yaml:"strategy"`

	InitialCapital   float64 `yaml:"initial_capital"`
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"`
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk"`
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	MaxPositions     int     `yaml:"max_positions"`
	MinRiskReward    float64 `yaml:"min_risk_reward"`

	WindowSize        int     `yaml:"window_size"`
	MinConfidence     float64 `yaml:"min_confidence"`
	MaxSignalsPerHour int     `yaml:"max_signals_per_hour"`
	EnableShorts      bool    `yaml:"enable_shorts"`
	RiskReward        float64 `yaml:"risk_reward"`

	TradingEnabled bool `yaml:"trading_enabled"`

	DBConnStr      string `yaml:"db_conn_str"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// Load parses flags, optionally replaces them with a YAML file, and fills
// secrets from the environment. args excludes the program name.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("noice-trader", flag.ContinueOnError)

	symbol := fs.String("symbol", "BTCUSDT", "Trading symbol")
	strategyName := fs.String("strategy", "noice", "Strategy: noice or momentum")
	initialCapital := fs.Float64("initial-capital", 10000, "Starting capital")
	maxRiskPerTrade := fs.Float64("max-risk-per-trade", 0.02, "Fraction of capital risked per trade")
	maxPortfolioRisk := fs.Float64("max-portfolio-risk", 0.10, "Portfolio risk ceiling")
	maxDrawdown := fs.Float64("max-drawdown", 0.15, "Drawdown ceiling")
	maxPositions := fs.Int("max-positions", 5, "Max concurrent positions")
	minRiskReward := fs.Float64("min-risk-reward", 1.5, "Minimum risk-reward for admission")
	windowSize := fs.Int("window-size", 500, "Rolling candle window size")
	minConfidence := fs.Float64("min-confidence", 0.75, "Minimum signal confidence")
	maxSignalsPerHour := fs.Int("max-signals-per-hour", 5, "Per-strategy signal budget")
	enableShorts := fs.Bool("enable-shorts", false, "Allow short entries")
	riskReward := fs.Float64("risk-reward", 2.0, "Take-profit multiple of stop distance")
	tradingEnabled := fs.Bool("trading-enabled", false, "Route signals to the risk manager")
	configFile := fs.String("config", "", "Path to YAML config file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Symbol:            *symbol,
		Strategy:          *strategyName,
		InitialCapital:    *initialCapital,
		MaxRiskPerTrade:   *maxRiskPerTrade,
		MaxPortfolioRisk:  *maxPortfolioRisk,
		MaxDrawdown:       *maxDrawdown,
		MaxPositions:      *maxPositions,
		MinRiskReward:     *minRiskReward,
		WindowSize:        *windowSize,
		MinConfidence:     *minConfidence,
		MaxSignalsPerHour: *maxSignalsPerHour,
		EnableShorts:      *enableShorts,
		RiskReward:        *riskReward,
		TradingEnabled:    *tradingEnabled,
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Secrets come from the environment unless the file already set them.
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = os.Getenv("DB_CONN_STR")
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.TelegramChatID == "" {
		cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}

	// Feed clients and the risk ledger key on the uppercase symbol.
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("max risk per trade must be in (0,1), got %v", c.MaxRiskPerTrade)
	}
	if c.MaxPortfolioRisk <= 0 || c.MaxPortfolioRisk >= 1 {
		return fmt.Errorf("max portfolio risk must be in (0,1), got %v", c.MaxPortfolioRisk)
	}
	if c.MaxDrawdown <= 0 || c.MaxDrawdown >= 1 {
		return fmt.Errorf("max drawdown must be in (0,1), got %v", c.MaxDrawdown)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("max positions must be at least 1, got %d", c.MaxPositions)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", c.WindowSize)
	}
	return nil
}

// RiskConfig converts to the risk manager's configuration.
func (c Config) RiskConfig() risk.Config {
	return risk.Config{
		InitialCapital:   c.InitialCapital,
		MaxRiskPerTrade:  c.MaxRiskPerTrade,
		MaxPortfolioRisk: c.MaxPortfolioRisk,
		MaxDrawdown:      c.MaxDrawdown,
		MaxPositions:     c.MaxPositions,
		MinRiskReward:    c.MinRiskReward,
	}
}

// StrategyParams converts to the strategy parameter set.
func (c Config) StrategyParams() strategy.Params {
	return strategy.Params{
		MinConfidence:     c.MinConfidence,
		MaxSignalsPerHour: c.MaxSignalsPerHour,
		EnableShorts:      c.EnableShorts,
		RiskReward:        c.RiskReward,
	}
}
