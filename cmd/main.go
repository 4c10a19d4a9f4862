package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/amirphl/noice-trader/internal/config"
	"github.com/amirphl/noice-trader/internal/engine"
	"github.com/amirphl/noice-trader/internal/feed"
	"github.com/amirphl/noice-trader/internal/journal"
	"github.com/amirphl/noice-trader/internal/notifier"
	"github.com/amirphl/noice-trader/internal/risk"
	"github.com/amirphl/noice-trader/internal/strategy"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Main | No .env file found, relying on environment")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Main | Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := feed.NewHandler(cfg.Symbol, cfg.WindowSize)
	strat := strategy.New(cfg.Strategy, cfg.Symbol, cfg.StrategyParams())
	riskMgr := risk.NewManager(cfg.RiskConfig())
	eng := engine.New(handler, strat, riskMgr, cfg.TradingEnabled)

	if cfg.DBConnStr != "" {
		db, err := sql.Open("postgres", cfg.DBConnStr)
		if err != nil {
			log.Fatalf("Main | Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Main | Failed to reach database: %v", err)
		}
		store, err := journal.NewPostgres(ctx, db)
		if err != nil {
			log.Fatalf("Main | Failed to initialize journal: %v", err)
		}
		eng.RegisterCallback(journal.Callback(ctx, store))
		log.Println("Main | Journaling trade events to Postgres")
	} else {
		eng.RegisterCallback(journal.Callback(ctx, journal.NewMemory()))
		log.Println("Main | DB_CONN_STR not set, journaling in memory only")
	}

	var alerts notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		alerts = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		log.Println("Main | Telegram alerts enabled")
	}
	eng.RegisterCallback(notifier.Callback(alerts))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Main | Received %v, shutting down", sig)
		eng.Stop()
		cancel()
	}()

	log.Printf("Main | Trading %s with strategy %s, trading_enabled=%v",
		cfg.Symbol, cfg.Strategy, cfg.TradingEnabled)
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Main | Engine exited with error: %v", err)
	}
	log.Println("Main | Shutdown complete")
}
