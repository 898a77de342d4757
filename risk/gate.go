package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/internal/retry"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GATE - Pre-trade token vetting
// ═══════════════════════════════════════════════════════════════════════════════
//
// Listener asks → Gate approves/rejects → Engine executes
//
// Checks run in a fixed order and short-circuit on the first failure. The gate
// is fail-closed: if the data source cannot be reached within the retry
// budget, the token is rejected rather than traded on unknown data.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Rejection reason tags, shared with the deployer blacklist.
const (
	ReasonFakeToken             = "fake_token"
	ReasonOwnershipNotRenounced = "ownership_not_renounced"
	ReasonHoneypot              = "honeypot"
	ReasonFreezable             = "freezable"
	ReasonToken2022             = "token_2022_program"
	ReasonMintable              = "mintable"
	ReasonMutableMetadata       = "mutable_metadata"
	ReasonTransferFee           = "transfer_fee"
	ReasonBuyTax                = "buy_tax"
	ReasonSellTax               = "sell_tax"
	ReasonOwnerPercent          = "owner_percent"
	ReasonUpdateAuthorityPct    = "update_authority_percent"
	ReasonTopHolderPercent      = "top_holder_percent"
	ReasonMutableInfo           = "mutable_info"
	ReasonMinLiquidity          = "min_liquidity"
	ReasonMaxMarketCap          = "max_market_cap"
	ReasonTokenAge              = "token_age"
	ReasonDeployerBlacklisted   = "deployer_blacklisted"
	ReasonSecurityCheck         = "security_check"
)

// SecurityOracle supplies token security and market data for vetting.
type SecurityOracle interface {
	SecurityProfile(ctx context.Context, tokenID string) (*types.RiskProfile, error)
	Overview(ctx context.Context, tokenID string) (*types.TokenOverview, error)
}

// Verdict is the outcome of vetting one candidate. On acceptance it carries
// the fetched profile and overview so sizing can reuse the liquidity snapshot
// without another fetch.
type Verdict struct {
	Accepted bool
	Reason   string
	Profile  *types.RiskProfile
	Overview *types.TokenOverview
}

// Gate vets candidate tokens before any capital is committed.
type Gate struct {
	cfg        *config.Config
	oracle     SecurityOracle
	blacklist  *Blacklist
	rejections *RejectionLog
	policy     retry.Policy
}

// NewGate creates the vetting gate. rejections may be nil to disable the
// audit trail.
func NewGate(cfg *config.Config, oracle SecurityOracle, blacklist *Blacklist, rejections *RejectionLog) *Gate {
	return &Gate{
		cfg:        cfg,
		oracle:     oracle,
		blacklist:  blacklist,
		rejections: rejections,
		policy:     retry.DataSource(),
	}
}

// Tokens with no age data but over this much liquidity or market cap are
// assumed stale rather than freshly launched.
var staleWithoutAgeThreshold = decimal.NewFromInt(1_000_000)

// Vet runs the full check pipeline for one candidate token.
func (g *Gate) Vet(ctx context.Context, tokenID, txSig string) Verdict {
	log.Info().Str("token", shortMint(tokenID)).Msg("🔬 Vetting token")

	reject := func(reason string) Verdict {
		log.Warn().
			Str("token", shortMint(tokenID)).
			Str("reason", reason).
			Msg("🚫 Vetting failed")
		if g.rejections != nil {
			g.rejections.Record(tokenID, txSig, reason)
		}
		return Verdict{Accepted: false, Reason: reason}
	}

	profile, err := g.fetchProfile(ctx, tokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", shortMint(tokenID)).Msg("🚫 Security data unavailable, failing closed")
		return reject(ReasonSecurityCheck)
	}

	if reason, ok := g.checkSecurity(profile); !ok {
		return reject(reason)
	}

	overview, err := g.fetchOverview(ctx, tokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", shortMint(tokenID)).Msg("🚫 Overview data unavailable, failing closed")
		return reject(ReasonSecurityCheck)
	}

	if reason, ok := g.checkMarket(overview); !ok {
		return reject(reason)
	}

	// Deployer history, checked last so a blacklisted deployer never even
	// reaches the sizing stage.
	if g.cfg.EnableDeployerBlacklist && g.blacklist != nil && profile.Deployer != "" {
		if entry, hit := g.blacklist.Lookup(profile.Deployer); hit {
			log.Warn().
				Str("token", shortMint(tokenID)).
				Str("deployer", shortMint(profile.Deployer)).
				Str("listed_for", entry.Reason).
				Msg("🚨 Deployer is blacklisted")
			return reject(ReasonDeployerBlacklisted)
		}
	}

	log.Info().
		Str("token", shortMint(tokenID)).
		Str("liquidity", overview.Liquidity.StringFixed(0)).
		Str("market_cap", overview.MarketCap.StringFixed(0)).
		Msg("🎯 Vetting passed, token approved")

	return Verdict{Accepted: true, Profile: profile, Overview: overview}
}

// checkSecurity runs the ordered security filter pipeline.
func (g *Gate) checkSecurity(p *types.RiskProfile) (string, bool) {
	cfg := g.cfg

	// Critical severity
	if cfg.RejectFakeTokens && p.FakeToken {
		return ReasonFakeToken, false
	}
	if cfg.RejectNonRenouncedOwner && !p.OwnershipRenounced {
		return ReasonOwnershipNotRenounced, false
	}
	if !p.OwnershipRenounced {
		log.Debug().Str("token", shortMint(p.TokenID)).Msg("⚠️ Ownership not renounced (risk accepted)")
	}
	if cfg.RejectHoneypots && p.Honeypot {
		return ReasonHoneypot, false
	}
	if cfg.RejectFreezableTokens && (p.Freezable || p.FreezeAuthority) {
		return ReasonFreezable, false
	}
	if cfg.RejectToken2022 && p.Token2022 {
		return ReasonToken2022, false
	}

	// High risk
	if cfg.RejectMintableTokens && p.Mintable {
		return ReasonMintable, false
	}
	if cfg.RejectMutableMetadata && p.MutableMetadata {
		return ReasonMutableMetadata, false
	}
	if cfg.RejectTransferFees && p.TransferFee {
		return ReasonTransferFee, false
	}
	if p.BuyTax.GreaterThan(cfg.MaxBuyTax) {
		return ReasonBuyTax, false
	}
	if p.SellTax.GreaterThan(cfg.MaxSellTax) {
		return ReasonSellTax, false
	}
	if p.OwnerPercent.GreaterThan(cfg.MaxOwnerPercent) {
		return ReasonOwnerPercent, false
	}
	if p.UpdateAuthorityPct.GreaterThan(cfg.MaxUpdateAuthorityPct) {
		return ReasonUpdateAuthorityPct, false
	}
	if p.Top10HolderPercent.GreaterThan(cfg.MaxTop10HolderPercent) {
		return ReasonTopHolderPercent, false
	}

	// Medium risk
	if !cfg.AllowMutableInfo && p.MutableInfo {
		return ReasonMutableInfo, false
	}

	return "", true
}

// checkMarket runs the liquidity, market-cap and age filters.
func (g *Gate) checkMarket(o *types.TokenOverview) (string, bool) {
	if o.Liquidity.LessThan(g.cfg.MinLiquidity) {
		return ReasonMinLiquidity, false
	}
	if o.MarketCap.GreaterThan(g.cfg.MaxMarketCap) {
		return ReasonMaxMarketCap, false
	}

	if o.HasAge() {
		if age := time.Since(o.CreatedAt); age > g.cfg.MaxTokenAge {
			return ReasonTokenAge, false
		}
		return "", true
	}

	// No age data: only treat as fresh when liquidity and market cap are
	// both small. Large numbers without age data mean an old token the
	// source simply hasn't profiled.
	if o.Liquidity.GreaterThan(staleWithoutAgeThreshold) || o.MarketCap.GreaterThan(staleWithoutAgeThreshold) {
		return ReasonTokenAge, false
	}
	log.Debug().Str("token", shortMint(o.TokenID)).Msg("No age data but low liquidity/MC, treating as fresh")
	return "", true
}

func (g *Gate) fetchProfile(ctx context.Context, tokenID string) (*types.RiskProfile, error) {
	var profile *types.RiskProfile
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		var err error
		profile, err = g.oracle.SecurityProfile(ctx, tokenID)
		return err
	})
	return profile, err
}

func (g *Gate) fetchOverview(ctx context.Context, tokenID string) (*types.TokenOverview, error) {
	var overview *types.TokenOverview
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		var err error
		overview, err = g.oracle.Overview(ctx, tokenID)
		return err
	})
	return overview, err
}
