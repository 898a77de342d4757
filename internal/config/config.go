package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/AryanViralProjects/kali-snipes/types"
)

// Config holds all configuration for the sniper
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Endpoints
	BirdeyeAPIURL string
	BirdeyeAPIKey string
	HeliusWSURL   string
	SolanaRPCURL  string
	JupiterAPIURL string
	SwapRelayURL  string

	// Wallet
	WalletAddress string

	// Security filter thresholds (risk gate)
	RejectFakeTokens         bool
	RejectNonRenouncedOwner  bool
	RejectHoneypots          bool
	RejectFreezableTokens    bool
	RejectToken2022          bool
	RejectMintableTokens     bool
	RejectMutableMetadata    bool
	RejectTransferFees       bool
	AllowMutableInfo         bool
	MaxBuyTax                decimal.Decimal // e.g. 0.05 = 5%
	MaxSellTax               decimal.Decimal
	MaxOwnerPercent          decimal.Decimal // e.g. 0.30 = 30%
	MaxUpdateAuthorityPct    decimal.Decimal
	MaxTop10HolderPercent    decimal.Decimal
	MinLiquidity             decimal.Decimal // USD floor
	MaxMarketCap             decimal.Decimal // USD ceiling
	MaxTokenAge              time.Duration
	EnableDeployerBlacklist  bool
	AutoBlacklistOnStopLoss  bool

	// Position sizing
	DynamicSizing  bool
	FixedBuySize   decimal.Decimal // USDC when dynamic sizing is off
	TargetLPShare  decimal.Decimal // e.g. 0.005 = buy 0.5% of pool liquidity
	MinBuySize     decimal.Decimal
	MaxBuySize     decimal.Decimal

	// Exit strategy
	StopLossFraction decimal.Decimal // negative, e.g. -0.25
	SellTiers        []types.SellTier

	// Lifecycle
	SequentialMode        bool
	ReconcileInterval     time.Duration
	BalanceCheckInterval  time.Duration
	MinGasBalance         decimal.Decimal // SOL warning floor
	CriticalGasBalance    decimal.Decimal // SOL refuse-to-trade floor
	DoNotTrade            []string        // mints never traded (USDC, wSOL, ...)

	// Persistence
	DatabasePath      string
	BlacklistPath     string
	RejectionLogPath  string
	SkippedLogPath    string
	SnipeLogPath      string
}

// USDC and wrapped SOL mints are never tradable candidates.
const (
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	WSOLMint = "So11111111111111111111111111111111111111112"
)

// DefaultSellTiers is the 2x/5x/11x ladder. Each tier sells a portion of the
// REMAINING balance, not of the original position.
func DefaultSellTiers() []types.SellTier {
	return []types.SellTier{
		{ProfitMultiple: decimal.NewFromFloat(2.0), SellPortion: decimal.NewFromFloat(0.5), Name: "First Major Profit"},
		{ProfitMultiple: decimal.NewFromFloat(5.0), SellPortion: decimal.NewFromFloat(0.5), Name: "Moon Shot"},
		{ProfitMultiple: decimal.NewFromFloat(11.0), SellPortion: decimal.NewFromFloat(0.75), Name: "Generational Wealth"},
	}
}

// Load loads configuration from environment variables, with the sell-tier
// ladder optionally overridden from a YAML file (SELL_TIERS_FILE).
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		BirdeyeAPIURL: getEnv("BIRDEYE_API_URL", "https://public-api.birdeye.so"),
		BirdeyeAPIKey: os.Getenv("BIRDEYE_API_KEY"),
		HeliusWSURL:   os.Getenv("HELIUS_WS_URL"),
		SolanaRPCURL:  getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		JupiterAPIURL: getEnv("JUPITER_API_URL", "https://quote-api.jup.ag/v6"),
		SwapRelayURL:  os.Getenv("SWAP_RELAY_URL"),

		WalletAddress: os.Getenv("WALLET_ADDRESS"),

		RejectFakeTokens:        getEnvBool("REJECT_FAKE_TOKENS", true),
		RejectNonRenouncedOwner: getEnvBool("REJECT_NON_RENOUNCED_OWNERSHIP", false),
		RejectHoneypots:         getEnvBool("REJECT_HONEYPOTS", true),
		RejectFreezableTokens:   getEnvBool("REJECT_FREEZABLE_TOKENS", true),
		RejectToken2022:         getEnvBool("REJECT_TOKEN_2022", true),
		RejectMintableTokens:    getEnvBool("REJECT_MINTABLE_TOKENS", true),
		RejectMutableMetadata:   getEnvBool("REJECT_MUTABLE_METADATA", false),
		RejectTransferFees:      getEnvBool("REJECT_TRANSFER_FEES", true),
		AllowMutableInfo:        getEnvBool("ALLOW_MUTABLE_INFO", true),
		MaxBuyTax:               getEnvDecimal("MAX_BUY_TAX", decimal.NewFromFloat(0.05)),
		MaxSellTax:              getEnvDecimal("MAX_SELL_TAX", decimal.NewFromFloat(0.05)),
		MaxOwnerPercent:         getEnvDecimal("MAX_OWNER_PERCENTAGE", decimal.NewFromFloat(0.30)),
		MaxUpdateAuthorityPct:   getEnvDecimal("MAX_UPDATE_AUTHORITY_PERCENTAGE", decimal.NewFromFloat(0.30)),
		MaxTop10HolderPercent:   getEnvDecimal("MAX_TOP10_HOLDER_PERCENT", decimal.NewFromFloat(0.70)),
		MinLiquidity:            getEnvDecimal("MIN_LIQUIDITY", decimal.NewFromInt(400)),
		MaxMarketCap:            getEnvDecimal("MAX_MARKET_CAP", decimal.NewFromInt(30000)),
		MaxTokenAge:             getEnvDuration("MAX_TOKEN_AGE", time.Hour),
		EnableDeployerBlacklist: getEnvBool("ENABLE_DEPLOYER_BLACKLIST", true),
		AutoBlacklistOnStopLoss: getEnvBool("AUTO_BLACKLIST_BAD_PERFORMERS", true),

		DynamicSizing: getEnvBool("ENABLE_DYNAMIC_SIZING", true),
		FixedBuySize:  getEnvDecimal("USDC_SIZE", decimal.NewFromInt(5)),
		TargetLPShare: getEnvDecimal("USDC_BUY_TARGET_PERCENT_OF_LP", decimal.NewFromFloat(0.005)),
		MinBuySize:    getEnvDecimal("USDC_MIN_BUY_SIZE", decimal.NewFromInt(4)),
		MaxBuySize:    getEnvDecimal("USDC_MAX_BUY_SIZE", decimal.NewFromInt(10)),

		StopLossFraction: getEnvDecimal("STOP_LOSS_PERCENTAGE", decimal.NewFromFloat(-0.25)),
		SellTiers:        DefaultSellTiers(),

		SequentialMode:       getEnvBool("ENABLE_SEQUENTIAL_MODE", true),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		BalanceCheckInterval: getEnvDuration("BALANCE_CHECK_INTERVAL", 5*time.Minute),
		MinGasBalance:        getEnvDecimal("MIN_GAS_BALANCE", decimal.NewFromFloat(0.01)),
		CriticalGasBalance:   getEnvDecimal("CRITICAL_GAS_BALANCE", decimal.NewFromFloat(0.005)),
		DoNotTrade:           []string{USDCMint, WSOLMint},

		DatabasePath:     getEnv("DATABASE_PATH", "data/kali.db"),
		BlacklistPath:    getEnv("BLACKLIST_PATH", "data/deployer_blacklist.txt"),
		RejectionLogPath: getEnv("REJECTION_LOG_PATH", "data/intelligence_rejections.txt"),
		SkippedLogPath:   getEnv("SKIPPED_LOG_PATH", "data/sequential_skipped.txt"),
		SnipeLogPath:     getEnv("SNIPE_LOG_PATH", "data/successful_snipes.txt"),
	}

	if extra := os.Getenv("DO_NOT_TRADE_LIST"); extra != "" {
		for _, mint := range strings.Split(extra, ",") {
			if mint = strings.TrimSpace(mint); mint != "" {
				cfg.DoNotTrade = append(cfg.DoNotTrade, mint)
			}
		}
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if tiersFile := os.Getenv("SELL_TIERS_FILE"); tiersFile != "" {
		tiers, err := LoadSellTiers(tiersFile)
		if err != nil {
			return nil, fmt.Errorf("loading sell tiers: %w", err)
		}
		cfg.SellTiers = tiers
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WalletAddress == "" {
		return fmt.Errorf("WALLET_ADDRESS is required")
	}
	if c.StopLossFraction.GreaterThanOrEqual(decimal.Zero) {
		return fmt.Errorf("STOP_LOSS_PERCENTAGE must be negative, got %s", c.StopLossFraction)
	}
	if c.MinBuySize.LessThanOrEqual(decimal.Zero) || c.MaxBuySize.LessThan(c.MinBuySize) {
		return fmt.Errorf("buy size bounds invalid: min=%s max=%s", c.MinBuySize, c.MaxBuySize)
	}
	if len(c.SellTiers) == 0 {
		return fmt.Errorf("at least one sell tier is required")
	}
	prev := decimal.Zero
	for i, tier := range c.SellTiers {
		if tier.ProfitMultiple.LessThanOrEqual(prev) {
			return fmt.Errorf("sell tier %d: profit multiples must be strictly ascending", i)
		}
		if tier.SellPortion.LessThanOrEqual(decimal.Zero) || tier.SellPortion.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("sell tier %d: sell portion must be in (0,1]", i)
		}
		prev = tier.ProfitMultiple
	}
	return nil
}

// Tradable reports whether a mint is allowed as a candidate at all.
func (c *Config) Tradable(mint string) bool {
	for _, excluded := range c.DoNotTrade {
		if mint == excluded {
			return false
		}
	}
	return true
}

// LoadSellTiers reads a tier ladder from a YAML file.
func LoadSellTiers(path string) ([]types.SellTier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tiers []types.SellTier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Tiers) == 0 {
		return nil, fmt.Errorf("%s: no tiers defined", path)
	}
	return doc.Tiers, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
