package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Liquidity-proportional buy sizing
// ═══════════════════════════════════════════════════════════════════════════════
//
// Formula: target = liquidity * targetShare, clamped to [min, max]
//
// Buying a fixed fraction of the pool keeps price impact roughly constant
// across pools of different depth. Zero or unknown liquidity falls back to
// the minimum size. Output is always within [min, max].
//
// ═══════════════════════════════════════════════════════════════════════════════

type Sizer struct {
	dynamic     bool
	fixedSize   decimal.Decimal
	targetShare decimal.Decimal
	minSize     decimal.Decimal
	maxSize     decimal.Decimal
}

// NewSizer creates a position sizer from configuration.
func NewSizer(cfg *config.Config) *Sizer {
	return &Sizer{
		dynamic:     cfg.DynamicSizing,
		fixedSize:   cfg.FixedBuySize,
		targetShare: cfg.TargetLPShare,
		minSize:     cfg.MinBuySize,
		maxSize:     cfg.MaxBuySize,
	}
}

// Size computes the USDC amount to commit for a pool with the given
// liquidity.
func (s *Sizer) Size(liquidity decimal.Decimal) decimal.Decimal {
	if !s.dynamic {
		return s.clamp(s.fixedSize)
	}

	if liquidity.LessThanOrEqual(decimal.Zero) {
		log.Debug().Msg("📏 Liquidity unknown, using minimum size")
		return s.minSize
	}

	target := liquidity.Mul(s.targetShare)
	size := s.clamp(target)

	log.Debug().
		Str("liquidity", liquidity.StringFixed(0)).
		Str("target", target.StringFixed(2)).
		Str("size", size.StringFixed(2)).
		Msg("📏 Dynamic sizing")
	return size
}

func (s *Sizer) clamp(size decimal.Decimal) decimal.Decimal {
	if size.LessThan(s.minSize) {
		return s.minSize
	}
	if size.GreaterThan(s.maxSize) {
		return s.maxSize
	}
	return size
}
