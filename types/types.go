package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Position represents one open trade, keyed by token mint.
type Position struct {
	TokenID         string
	EntryInvestment decimal.Decimal // USDC committed at entry, immutable
	EntryLiquidity  decimal.Decimal // pool liquidity snapshot at entry
	EntryTime       time.Time
	TiersExecuted   []int           // ascending tier indices already fired
	TotalRealized   decimal.Decimal // cumulative USDC received from exits
	StrategyType    string
	Deployer        string // token deployer wallet, captured at vetting time
}

// TierFired reports whether a profit tier has already been executed.
func (p *Position) TierFired(index int) bool {
	for _, t := range p.TiersExecuted {
		if t == index {
			return true
		}
	}
	return false
}

// Clone returns an independent copy so callers can't mutate store state.
func (p *Position) Clone() *Position {
	c := *p
	c.TiersExecuted = append([]int(nil), p.TiersExecuted...)
	return &c
}

// SellTier is one rung of the tiered profit-taking ladder.
type SellTier struct {
	ProfitMultiple decimal.Decimal `yaml:"profit_multiple"`
	SellPortion    decimal.Decimal `yaml:"sell_portion"` // fraction of CURRENT balance
	Name           string          `yaml:"name"`
}

// RiskProfile is a snapshot of token security attributes fetched at vetting time.
type RiskProfile struct {
	TokenID            string
	FakeToken          bool
	OwnershipRenounced bool
	Honeypot           bool
	Freezable          bool
	FreezeAuthority    bool
	Token2022          bool
	Mintable           bool
	MutableMetadata    bool
	TransferFee        bool
	MutableInfo        bool
	BuyTax             decimal.Decimal
	SellTax            decimal.Decimal
	OwnerPercent       decimal.Decimal
	UpdateAuthorityPct decimal.Decimal
	Top10HolderPercent decimal.Decimal
	Deployer           string
}

// TokenOverview is the market snapshot for a token.
type TokenOverview struct {
	TokenID   string
	Liquidity decimal.Decimal
	MarketCap decimal.Decimal
	Price     decimal.Decimal
	CreatedAt time.Time // zero when the data source has no age yet
}

// HasAge reports whether the data source knew the token's creation time.
func (o *TokenOverview) HasAge() bool {
	return !o.CreatedAt.IsZero()
}

// PoolEvent is a new-pool notification from the chain listener.
// Delivery is at-least-once; consumers dedupe by TxSignature.
type PoolEvent struct {
	TokenID     string
	TxSignature string
	DetectedAt  time.Time
}

// TxResult is the outcome of a swap submission.
type TxResult struct {
	Success   bool
	Signature string
	Reason    string // classified failure reason when !Success
}
