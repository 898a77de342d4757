package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/internal/retry"
	"github.com/AryanViralProjects/kali-snipes/risk"
	"github.com/AryanViralProjects/kali-snipes/storage"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNIPER ENGINE - Position lifecycle from pool detection to full exit
// ═══════════════════════════════════════════════════════════════════════════════
//
// Entry path:   pool event → dedupe → vet → size → buy → persist → notify
// Exit path:    reconciliation cycle → balance + price → exit plan →
//               stop-loss (sell all), tier exit (sell portion), finalize
//               (sell leftover after the last tier) or hold
//
// The store is the source of truth. The engine never keeps position state in
// memory between cycles, so a restart resumes management from the database.
//
// ═══════════════════════════════════════════════════════════════════════════════

// EventSource feeds new-pool events to the engine.
type EventSource interface {
	Events() <-chan types.PoolEvent
	Start()
	Stop()
}

// PriceSource answers spot price queries during reconciliation.
type PriceSource interface {
	Price(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

// SwapExecutor executes swaps and answers wallet balance queries.
type SwapExecutor interface {
	Buy(ctx context.Context, tokenID string, usdcAmount decimal.Decimal) types.TxResult
	Sell(ctx context.Context, tokenID string, tokenAmount decimal.Decimal) types.TxResult
	TokenBalance(ctx context.Context, tokenID string) (decimal.Decimal, error)
	GasBalance(ctx context.Context) (decimal.Decimal, error)
}

// Gatekeeper vets candidates before capital is committed.
type Gatekeeper interface {
	Vet(ctx context.Context, tokenID, txSig string) risk.Verdict
}

// TradeNotifier pushes trade alerts (Telegram). Optional.
type TradeNotifier interface {
	NotifySnipe(tokenID string, size, liquidity decimal.Decimal, signature string)
	NotifyTierExit(tokenID, tierName string, portion, realized decimal.Decimal)
	NotifyStopLoss(tokenID string, value, invested decimal.Decimal)
	NotifyClose(tokenID string, realized, invested decimal.Decimal)
	NotifyLowGas(balance decimal.Decimal, critical bool)
}

// Engine drives the full position lifecycle.
type Engine struct {
	cfg       *config.Config
	store     *storage.PositionStore
	gate      Gatekeeper
	sizer     *risk.Sizer
	planner   *risk.ExitPlanner
	blacklist *risk.Blacklist
	source    EventSource
	prices    PriceSource
	executor  SwapExecutor
	skipped   *risk.RejectionLog
	snipes    *risk.RejectionLog

	mu        sync.Mutex
	notifier  TradeNotifier
	seen      map[string]struct{} // tx signatures already dispatched
	seenOrder []string            // insertion order, for aging out old signatures
	paused    bool
	running   bool

	// entryMu serializes the slot-check/buy/persist section in sequential
	// mode, so two candidates vetted at once cannot both take the slot.
	entryMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// seenLimit caps the dedupe set. Beyond it the oldest signatures age out;
// reconnect replays only cover recent logs, so old entries are dead weight.
const seenLimit = 4096

// reconcilePolicy bounds the per-cycle balance and price lookups. Cycles are
// frequent, so failures defer to the next cycle quickly.
var reconcilePolicy = retry.Policy{
	MaxAttempts:  3,
	InitialDelay: 2 * time.Second,
	Multiplier:   2,
	MaxDelay:     10 * time.Second,
}

// NewEngine wires the engine's collaborators.
func NewEngine(
	cfg *config.Config,
	store *storage.PositionStore,
	gate Gatekeeper,
	sizer *risk.Sizer,
	planner *risk.ExitPlanner,
	blacklist *risk.Blacklist,
	source EventSource,
	prices PriceSource,
	executor SwapExecutor,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		store:     store,
		gate:      gate,
		sizer:     sizer,
		planner:   planner,
		blacklist: blacklist,
		source:    source,
		prices:    prices,
		executor:  executor,
		skipped:   risk.NewRejectionLog(cfg.SkippedLogPath),
		snipes:    risk.NewRejectionLog(cfg.SnipeLogPath),
		seen:      make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetTradeNotifier attaches the optional notifier.
func (e *Engine) SetTradeNotifier(n TradeNotifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Start verifies the wallet is reachable, recovers persisted positions and
// launches the event, reconciliation and gas monitor loops. It refuses to
// start when the wallet balance cannot be determined: without it, neither
// entries nor exits are safe to attempt.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	ctx, cancelHealth := context.WithTimeout(e.ctx, 15*time.Second)
	gas, err := e.executor.GasBalance(ctx)
	cancelHealth()
	if err != nil {
		return fmt.Errorf("wallet balance unavailable, refusing to start: %w", err)
	}
	e.warnLowGas(gas)

	recovered, err := e.store.Count()
	if err != nil {
		return fmt.Errorf("loading persisted positions: %w", err)
	}

	log.Info().
		Int("open_positions", recovered).
		Str("gas_sol", gas.StringFixed(4)).
		Bool("sequential", e.cfg.SequentialMode).
		Msg("🎯 Sniper engine starting")

	e.source.Start()

	e.wg.Add(3)
	go e.eventLoop()
	go e.reconcileLoop()
	go e.gasMonitorLoop()

	return nil
}

// Stop shuts the engine down and waits for in-flight work.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.source.Stop()
	e.cancel()
	e.wg.Wait()
	log.Info().Msg("Sniper engine stopped")
}

// Pause stops dispatching new entries. Open positions are still managed.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	log.Info().Msg("⏸️ New entries paused")
}

// Resume re-enables new entries.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	log.Info().Msg("▶️ New entries resumed")
}

// OpenPositions returns snapshots of all tracked positions.
func (e *Engine) OpenPositions() ([]*types.Position, error) {
	return e.store.Snapshot()
}

// GasBalance returns the wallet's current SOL balance.
func (e *Engine) GasBalance() (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	return e.executor.GasBalance(ctx)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY PATH
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Engine) eventLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.source.Events():
			if !ok {
				return
			}
			e.dispatch(ev)
		}
	}
}

// dispatch applies the cheap pre-vetting filters and hands surviving
// candidates to their own goroutine so a slow vet never blocks detection.
func (e *Engine) dispatch(ev types.PoolEvent) {
	e.mu.Lock()
	if _, dup := e.seen[ev.TxSignature]; dup {
		e.mu.Unlock()
		return
	}
	e.seen[ev.TxSignature] = struct{}{}
	e.seenOrder = append(e.seenOrder, ev.TxSignature)
	if len(e.seenOrder) > seenLimit {
		delete(e.seen, e.seenOrder[0])
		e.seenOrder = e.seenOrder[1:]
	}
	paused := e.paused
	e.mu.Unlock()

	if paused {
		return
	}

	if !e.cfg.Tradable(ev.TokenID) {
		log.Debug().Str("token", ev.TokenID).Msg("Token on do-not-trade list, skipping")
		return
	}

	if e.cfg.SequentialMode {
		count, err := e.store.Count()
		if err != nil {
			log.Error().Err(err).Msg("Cannot check open positions, skipping candidate")
			return
		}
		if count > 0 {
			log.Info().
				Str("token", ev.TokenID).
				Int("open", count).
				Msg("⏭️ Sequential mode: position active, skipping candidate")
			e.skipped.Record(ev.TokenID, ev.TxSignature, "SKIPPED_ACTIVE_POSITION")
			return
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processCandidate(ev)
	}()
}

func (e *Engine) processCandidate(ev types.PoolEvent) {
	ctx, cancel := context.WithTimeout(e.ctx, 2*time.Minute)
	defer cancel()

	verdict := e.gate.Vet(ctx, ev.TokenID, ev.TxSignature)
	if !verdict.Accepted {
		return
	}

	// Vetting takes time; in sequential mode another candidate may have
	// filled the slot meanwhile. The entry mutex holds from here through the
	// buy and the store write, so only one candidate can claim the slot.
	if e.cfg.SequentialMode {
		e.entryMu.Lock()
		defer e.entryMu.Unlock()
		if count, err := e.store.Count(); err != nil || count > 0 {
			log.Info().Str("token", ev.TokenID).Msg("⏭️ Slot filled during vetting, skipping")
			e.skipped.Record(ev.TokenID, ev.TxSignature, "SKIPPED_ACTIVE_POSITION")
			return
		}
	}

	liquidity := verdict.Overview.Liquidity
	size := e.sizer.Size(liquidity)

	log.Info().
		Str("token", ev.TokenID).
		Str("size", size.StringFixed(2)).
		Str("liquidity", liquidity.StringFixed(0)).
		Msg("🎯 Candidate accepted, entering position")

	var result types.TxResult
	err := retry.Do(ctx, retry.Execution(), func(ctx context.Context) error {
		result = e.executor.Buy(ctx, ev.TokenID, size)
		if !result.Success {
			return fmt.Errorf("buy failed: %s", result.Reason)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("token", ev.TokenID).Msg("❌ Entry abandoned, no position opened")
		return
	}

	deployer := ""
	if verdict.Profile != nil {
		deployer = verdict.Profile.Deployer
	}
	if err := e.store.Create(ev.TokenID, size, liquidity, deployer); err != nil {
		// ErrPositionExists means a concurrent entry won the race; the
		// position is tracked either way.
		log.Warn().Err(err).Str("token", ev.TokenID).Msg("Position not recorded")
		return
	}

	log.Info().
		Str("token", ev.TokenID).
		Str("size", size.StringFixed(2)).
		Str("signature", result.Signature).
		Msg("✅ SNIPED")
	e.snipes.Record(ev.TokenID, result.Signature, "SNIPED,$"+size.StringFixed(2))

	if n := e.tradeNotifier(); n != nil {
		n.NotifySnipe(ev.TokenID, size, liquidity, result.Signature)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXIT PATH - Reconciliation
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Engine) reconcileLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.reconcile()
		}
	}
}

// reconcile runs one management cycle over every tracked position. A failure
// on one position never blocks the others.
func (e *Engine) reconcile() {
	positions, err := e.store.Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation skipped, cannot load positions")
		return
	}

	for _, pos := range positions {
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		e.reconcilePosition(pos)
	}
}

func (e *Engine) reconcilePosition(pos *types.Position) {
	ctx, cancel := context.WithTimeout(e.ctx, 90*time.Second)
	defer cancel()

	token := pos.TokenID

	var balance decimal.Decimal
	err := retry.Do(ctx, reconcilePolicy, func(ctx context.Context) error {
		var err error
		balance, err = e.executor.TokenBalance(ctx, token)
		return err
	})
	if err != nil {
		// Unknown balance means unknown state. Hold and try next cycle.
		log.Warn().Err(err).Str("token", token).Msg("Balance check failed, holding")
		return
	}

	if balance.LessThanOrEqual(decimal.Zero) {
		log.Info().Str("token", token).Msg("💸 Wallet no longer holds token, closing position")
		if err := e.store.Remove(token); err != nil {
			log.Error().Err(err).Str("token", token).Msg("Failed to remove position")
			return
		}
		if n := e.tradeNotifier(); n != nil {
			n.NotifyClose(token, pos.TotalRealized, pos.EntryInvestment)
		}
		return
	}

	var price decimal.Decimal
	err = retry.Do(ctx, reconcilePolicy, func(ctx context.Context) error {
		var err error
		price, err = e.prices.Price(ctx, token)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("Price lookup failed, holding")
		return
	}

	value := balance.Mul(price)
	action := e.planner.Evaluate(pos, value)

	switch action.Type {
	case risk.ActionStopLoss:
		e.executeStopLoss(ctx, pos, balance, value)
	case risk.ActionTierExit:
		e.executeTierExit(ctx, pos, action, balance, price)
	case risk.ActionFinalize:
		e.executeFinalize(ctx, pos, balance, price)
	default:
		log.Debug().
			Str("token", token).
			Str("value", value.StringFixed(2)).
			Str("invested", pos.EntryInvestment.StringFixed(2)).
			Msg("Holding")
	}
}

// executeStopLoss liquidates the full balance. The sell is retried on an
// aggressive schedule: a falling token must be exited, not reconsidered.
func (e *Engine) executeStopLoss(ctx context.Context, pos *types.Position, balance, value decimal.Decimal) {
	token := pos.TokenID

	log.Warn().
		Str("token", token).
		Str("value", value.StringFixed(2)).
		Str("invested", pos.EntryInvestment.StringFixed(2)).
		Msg("🛑 Stop loss triggered, liquidating")

	err := retry.Do(ctx, retry.StopLoss(), func(ctx context.Context) error {
		result := e.executor.Sell(ctx, token, balance)
		if !result.Success {
			return fmt.Errorf("stop-loss sell failed: %s", result.Reason)
		}
		return nil
	})
	if err != nil {
		// Position stays tracked; the next cycle re-evaluates and retries.
		log.Error().Err(err).Str("token", token).Msg("🚨 Stop loss could not execute")
		return
	}

	if err := e.store.Remove(token); err != nil {
		log.Error().Err(err).Str("token", token).Msg("Failed to remove stopped position")
	}

	if e.cfg.AutoBlacklistOnStopLoss && pos.Deployer != "" {
		if err := e.blacklist.Add(pos.Deployer, "stop_loss_exit"); err != nil {
			log.Warn().Err(err).Str("deployer", pos.Deployer).Msg("Could not blacklist deployer")
		}
	}

	if n := e.tradeNotifier(); n != nil {
		n.NotifyStopLoss(token, value, pos.EntryInvestment)
	}
}

// executeTierExit sells the tier's portion of the current balance and, on the
// final tier, liquidates the remainder and closes the position.
func (e *Engine) executeTierExit(ctx context.Context, pos *types.Position, action risk.Action, balance, price decimal.Decimal) {
	token := pos.TokenID
	sellAmount := balance.Mul(action.SellPortion)

	log.Info().
		Str("token", token).
		Str("tier", action.TierName).
		Str("portion", action.SellPortion.String()).
		Msg("💰 Profit tier triggered")

	err := retry.Do(ctx, retry.Execution(), func(ctx context.Context) error {
		result := e.executor.Sell(ctx, token, sellAmount)
		if !result.Success {
			return fmt.Errorf("tier sell failed: %s", result.Reason)
		}
		return nil
	})
	if err != nil {
		// Nothing recorded; the tier fires again next cycle if still met.
		log.Warn().Err(err).Str("token", token).Str("tier", action.TierName).Msg("Tier exit deferred")
		return
	}

	realized := sellAmount.Mul(price)
	if err := e.store.RecordTierExit(token, action.TierIndex, realized); err != nil {
		log.Error().Err(err).Str("token", token).Int("tier", action.TierIndex).Msg("Failed to record tier exit")
	}

	if n := e.tradeNotifier(); n != nil {
		n.NotifyTierExit(token, action.TierName, action.SellPortion, realized)
	}

	if !action.CloseAfter {
		return
	}

	remainder := balance.Sub(sellAmount)
	if remainder.GreaterThan(decimal.Zero) {
		err := retry.Do(ctx, retry.Execution(), func(ctx context.Context) error {
			result := e.executor.Sell(ctx, token, remainder)
			if !result.Success {
				return fmt.Errorf("final liquidation failed: %s", result.Reason)
			}
			return nil
		})
		if err != nil {
			// The tier is recorded, so the next cycle sees an exhausted
			// ladder and re-attempts the liquidation as a finalize action.
			log.Warn().Err(err).Str("token", token).Msg("Final liquidation deferred")
			return
		}
	}

	total := pos.TotalRealized.Add(realized).Add(remainder.Mul(price))
	if err := e.store.Remove(token); err != nil {
		log.Error().Err(err).Str("token", token).Msg("Failed to remove closed position")
		return
	}

	log.Info().
		Str("token", token).
		Str("realized", total.StringFixed(2)).
		Str("invested", pos.EntryInvestment.StringFixed(2)).
		Msg("🏁 Final tier hit, position closed")

	if n := e.tradeNotifier(); n != nil {
		n.NotifyClose(token, total, pos.EntryInvestment)
	}
}

// executeFinalize liquidates the remaining balance of a position whose tier
// ladder is fully executed. This is the retry path for a final-tier remainder
// sale that failed after the tier was recorded: the position keeps coming back
// here every cycle until the wallet is empty and the record can be removed.
func (e *Engine) executeFinalize(ctx context.Context, pos *types.Position, balance, price decimal.Decimal) {
	token := pos.TokenID

	log.Info().
		Str("token", token).
		Str("balance", balance.String()).
		Msg("🏁 Tier ladder exhausted, liquidating remainder")

	err := retry.Do(ctx, retry.Execution(), func(ctx context.Context) error {
		result := e.executor.Sell(ctx, token, balance)
		if !result.Success {
			return fmt.Errorf("remainder liquidation failed: %s", result.Reason)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("Remainder liquidation deferred")
		return
	}

	total := pos.TotalRealized.Add(balance.Mul(price))
	if err := e.store.Remove(token); err != nil {
		log.Error().Err(err).Str("token", token).Msg("Failed to remove closed position")
		return
	}

	log.Info().
		Str("token", token).
		Str("realized", total.StringFixed(2)).
		Str("invested", pos.EntryInvestment.StringFixed(2)).
		Msg("🏁 Remainder sold, position closed")

	if n := e.tradeNotifier(); n != nil {
		n.NotifyClose(token, total, pos.EntryInvestment)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// GAS MONITOR
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Engine) gasMonitorLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.BalanceCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(e.ctx, 15*time.Second)
			gas, err := e.executor.GasBalance(ctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Gas balance check failed")
				continue
			}
			e.warnLowGas(gas)
		}
	}
}

func (e *Engine) warnLowGas(gas decimal.Decimal) {
	switch {
	case gas.LessThan(e.cfg.CriticalGasBalance):
		log.Error().Str("sol", gas.StringFixed(4)).Msg("🚨 CRITICAL gas balance, exits may fail")
		if n := e.tradeNotifier(); n != nil {
			n.NotifyLowGas(gas, true)
		}
	case gas.LessThan(e.cfg.MinGasBalance):
		log.Warn().Str("sol", gas.StringFixed(4)).Msg("⚠️ Low gas balance")
		if n := e.tradeNotifier(); n != nil {
			n.NotifyLowGas(gas, false)
		}
	}
}

func (e *Engine) tradeNotifier() TradeNotifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notifier
}
