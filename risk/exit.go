package risk

import (
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXIT PLANNER - Tiered profit-taking with stop-loss priority
// ═══════════════════════════════════════════════════════════════════════════════
//
// Per position:  Open → PartiallyExited(k) → Closed
//
// Evaluated every reconciliation cycle, in priority order:
//   1. Exhausted ladder: every tier already fired but the wallet still holds
//      a balance, meaning a final liquidation failed after the tier was
//      recorded → finalize (sell everything, close). Checked before the
//      stop-loss so a winning close-out never gets classified as a loss.
//   2. Stop-loss: value < investment * (1 + stopLossFraction) → full exit.
//      Overrides any tier hit in the same cycle.
//   3. First unfired tier (ascending by profit multiple) whose threshold the
//      current value clears → sell that tier's portion of the CURRENT
//      balance. One tier per cycle: a swap is a side effect against a moving
//      price, so the next tier waits for fresh state next cycle.
//   4. Otherwise hold.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ActionType classifies the planner's decision for one cycle.
type ActionType string

const (
	ActionHold     ActionType = "HOLD"
	ActionStopLoss ActionType = "STOP_LOSS"
	ActionTierExit ActionType = "TIER_EXIT"
	ActionFinalize ActionType = "FINALIZE"
)

// Action is the decision for one position for one cycle.
type Action struct {
	Type        ActionType
	TierIndex   int
	TierName    string
	SellPortion decimal.Decimal // fraction of current balance to sell
	CloseAfter  bool            // final tier: liquidate the remainder too
}

// ExitPlanner decides exits from a position's current market value. It holds
// no per-position state; everything it needs is in the Position snapshot.
type ExitPlanner struct {
	stopLossFraction decimal.Decimal // negative
	tiers            []types.SellTier
}

// NewExitPlanner creates the planner from configuration.
func NewExitPlanner(cfg *config.Config) *ExitPlanner {
	return &ExitPlanner{
		stopLossFraction: cfg.StopLossFraction,
		tiers:            cfg.SellTiers,
	}
}

// Tiers exposes the configured ladder (for bounds checks and display).
func (e *ExitPlanner) Tiers() []types.SellTier {
	return e.tiers
}

// Evaluate returns the action for one position given its current USD value.
func (e *ExitPlanner) Evaluate(pos *types.Position, currentValue decimal.Decimal) Action {
	one := decimal.NewFromInt(1)

	if e.ladderExhausted(pos) {
		return Action{Type: ActionFinalize}
	}

	stopLossValue := pos.EntryInvestment.Mul(one.Add(e.stopLossFraction))
	if currentValue.LessThan(stopLossValue) {
		return Action{Type: ActionStopLoss}
	}

	for i, tier := range e.tiers {
		if pos.TierFired(i) {
			continue
		}
		threshold := pos.EntryInvestment.Mul(tier.ProfitMultiple)
		if currentValue.GreaterThanOrEqual(threshold) {
			return Action{
				Type:        ActionTierExit,
				TierIndex:   i,
				TierName:    tier.Name,
				SellPortion: tier.SellPortion,
				CloseAfter:  i == len(e.tiers)-1,
			}
		}
		// Tiers are ascending; if this one didn't trigger, none above will.
		break
	}

	return Action{Type: ActionHold}
}

// ladderExhausted reports whether every configured tier has already fired.
func (e *ExitPlanner) ladderExhausted(pos *types.Position) bool {
	if len(e.tiers) == 0 {
		return false
	}
	for i := range e.tiers {
		if !pos.TierFired(i) {
			return false
		}
	}
	return true
}
