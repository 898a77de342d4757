// Kali Snipes - Automated new-pool sniper for Raydium
//
// Lifecycle:
// 1. Watch Raydium pool initializations over a Helius WebSocket
// 2. Vet each candidate token against the security and market gates
// 3. Size an entry against pool liquidity and buy via Jupiter
// 4. Manage the position every cycle: tiered profit exits, stop-loss
// 5. Persist positions so a restart resumes management mid-trade
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AryanViralProjects/kali-snipes/bot"
	"github.com/AryanViralProjects/kali-snipes/core"
	"github.com/AryanViralProjects/kali-snipes/exec"
	"github.com/AryanViralProjects/kali-snipes/feeds"
	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/risk"
	"github.com/AryanViralProjects/kali-snipes/storage"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Bool("dry_run", cfg.DryRun).
		Bool("sequential", cfg.SequentialMode).
		Int("sell_tiers", len(cfg.SellTiers)).
		Msg("🎯 Kali Snipes starting...")

	// ====== PERSISTENCE ======

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open position store")
	}

	blacklist, err := risk.OpenBlacklist(cfg.BlacklistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load deployer blacklist")
	}

	// ====== CORE COMPONENTS ======

	// 1. Birdeye - token security profiles, market overviews, spot prices
	birdeye := feeds.NewBirdeyeClient(cfg.BirdeyeAPIURL, cfg.BirdeyeAPIKey)

	// 2. Raydium listener - new pool detection over Helius WebSocket
	listener := feeds.NewRaydiumListener(cfg.HeliusWSURL)

	// 3. Execution client - Jupiter quotes, signing relay, wallet balances
	executor, err := exec.NewClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create execution client")
	}

	// 4. Risk gate and sizing
	rejections := risk.NewRejectionLog(cfg.RejectionLogPath)
	gate := risk.NewGate(cfg, birdeye, blacklist, rejections)
	sizer := risk.NewSizer(cfg)
	planner := risk.NewExitPlanner(cfg)

	// 5. Engine - the position lifecycle
	engine := core.NewEngine(cfg, store, gate, sizer, planner, blacklist, listener, birdeye, executor)

	// 6. Telegram bot (optional)
	var tg *bot.TelegramBot
	if cfg.TelegramToken != "" {
		tg, err = bot.NewTelegramBot(cfg, engine)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram bot unavailable, continuing without it")
		} else {
			tg.SetControlCallbacks(engine.Pause, engine.Resume)
			engine.SetTradeNotifier(tg)
			tg.Start()
		}
	}

	// ====== START ======

	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("Engine refused to start")
	}

	if tg != nil {
		open, _ := engine.OpenPositions()
		gas, _ := engine.GasBalance()
		tg.NotifyStartup(len(open), gas)
	}

	log.Info().Msg("✅ All systems running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")

	engine.Stop()
	if tg != nil {
		tg.Stop()
	}

	log.Info().Msg("👋 Goodbye")
}
