package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Trading notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🎯 Snipe alerts (new position opened)
//   💰 Tier exit / stop-loss notifications
//   🎛️ Bot control commands (/status, /positions, /pause, /resume)
//
// ═══════════════════════════════════════════════════════════════════════════════

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	dryRun  bool
	running bool
	stopCh  chan struct{}

	statusProvider StatusProvider

	// Control callbacks
	onPause  func()
	onResume func()
}

// StatusProvider answers the bot's status queries.
type StatusProvider interface {
	OpenPositions() ([]*types.Position, error)
	GasBalance() (decimal.Decimal, error)
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(cfg *config.Config, statusProvider StatusProvider) (*TelegramBot, error) {
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:            api,
		chatID:         cfg.TelegramChatID,
		dryRun:         cfg.DryRun,
		stopCh:         make(chan struct{}),
		statusProvider: statusProvider,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// SetControlCallbacks sets pause/resume handlers
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(openPositions int, gasBalance decimal.Decimal) {
	msg := fmt.Sprintf(`🚀 *SNIPER STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
💼 Recovered positions: *%d*
⛽ Gas: *%s SOL*

Use /help for commands`,
		b.mode(), openPositions, gasBalance.StringFixed(4))

	b.sendMarkdown(msg)
}

// NotifySnipe sends a new-position alert
func (b *TelegramBot) NotifySnipe(tokenID string, size, liquidity decimal.Decimal, signature string) {
	msg := fmt.Sprintf(`✅ *SNIPED*

🪙 `+"`%s`"+`
💵 Size: *$%s*
🌊 Pool LP: *$%s*
🧾 `+"`%s`",
		tokenID,
		size.StringFixed(2),
		liquidity.StringFixed(0),
		signature,
	)

	b.sendMarkdown(msg)
}

// NotifyTierExit sends a profit-tier execution alert
func (b *TelegramBot) NotifyTierExit(tokenID, tierName string, portion, realized decimal.Decimal) {
	msg := fmt.Sprintf(`💰 *%s*

🪙 `+"`%s`"+`
📤 Sold: *%s%%* of balance
💵 Realized: *$%s*`,
		strings.ToUpper(tierName),
		tokenID,
		portion.Mul(decimal.NewFromInt(100)).StringFixed(0),
		realized.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// NotifyStopLoss sends a stop-loss exit alert
func (b *TelegramBot) NotifyStopLoss(tokenID string, value, invested decimal.Decimal) {
	msg := fmt.Sprintf(`🛑 *STOP LOSS*

🪙 `+"`%s`"+`
💵 Invested: *$%s*
📉 Exited at: *$%s*`,
		tokenID,
		invested.StringFixed(2),
		value.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// NotifyClose sends a full-exit alert
func (b *TelegramBot) NotifyClose(tokenID string, realized, invested decimal.Decimal) {
	pnl := realized.Sub(invested)
	emoji := "📈"
	sign := "+"
	if pnl.IsNegative() {
		emoji = "📉"
		sign = ""
	}

	msg := fmt.Sprintf(`%s *POSITION CLOSED*

🪙 `+"`%s`"+`
💵 Invested: *$%s*
💰 Realized: *$%s*
📊 P&L: *%s$%s*`,
		emoji,
		tokenID,
		invested.StringFixed(2),
		realized.StringFixed(2),
		sign, pnl.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// NotifyLowGas sends a gas balance warning
func (b *TelegramBot) NotifyLowGas(balance decimal.Decimal, critical bool) {
	emoji := "⚠️"
	label := "LOW GAS"
	if critical {
		emoji = "🚨"
		label = "CRITICAL GAS"
	}

	msg := fmt.Sprintf("%s *%s*\n\n⛽ Wallet holds *%s SOL*. Top up to keep exits executable.",
		emoji, label, balance.StringFixed(4))

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	msg := fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error())
	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *SNIPER COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status & gas
💼 /positions — Open positions
⏸️ /pause — Pause new entries
▶️ /resume — Resume new entries
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	gasStr := "N/A"
	openStr := "N/A"
	if b.statusProvider != nil {
		if gas, err := b.statusProvider.GasBalance(); err == nil {
			gasStr = gas.StringFixed(4) + " SOL"
		}
		if positions, err := b.statusProvider.OpenPositions(); err == nil {
			openStr = fmt.Sprintf("%d", len(positions))
		}
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

🟢 RUNNING
📊 Mode: *%s*
💼 Open positions: *%s*
⛽ Gas: *%s*`, b.mode(), openStr, gasStr)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	if b.statusProvider == nil {
		b.send("❌ Positions not available")
		return
	}

	positions, err := b.statusProvider.OpenPositions()
	if err != nil {
		b.send("❌ Failed to fetch positions")
		return
	}

	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for i, pos := range positions {
		duration := time.Since(pos.EntryTime).Round(time.Second)

		msg += fmt.Sprintf("🪙 `%s`\n💵 In: $%s | Out: $%s\n🎯 Tiers fired: %d\n⏱️ Held: %v\n\n",
			pos.TokenID,
			pos.EntryInvestment.StringFixed(2),
			pos.TotalRealized.StringFixed(2),
			len(pos.TiersExecuted),
			duration,
		)

		if i >= 9 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-10)
			break
		}
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPause() {
	b.mu.RLock()
	cb := b.onPause
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("⏸️ New entries paused")
	log.Info().Msg("Entries paused via Telegram")
}

func (b *TelegramBot) cmdResume() {
	b.mu.RLock()
	cb := b.onResume
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("▶️ New entries resumed")
	log.Info().Msg("Entries resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) mode() string {
	if b.dryRun {
		return "DRY RUN"
	}
	return "LIVE"
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
