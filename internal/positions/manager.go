// Package positions sweeps the open paper book against live pairs and
// closes trades when an exit rule fires. Rules are checked in a fixed
// order and the first match wins.
package positions

import (
	"context"
	"fmt"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/storage"
)

// Exit reasons written to the closed trade
const (
	ExitTrailingStop      = "trailing stop"
	ExitTimeMax           = "time max"
	ExitMomentumExhausted = "momentum exhausted"
	ExitLiquidityTooLow   = "liquidity too low"
	ExitTakeProfit        = "take profit"
)

const highestPriceKey = "highest_price"

// PairFetcher resolves a token to its best live pair
type PairFetcher interface {
	BestPair(ctx context.Context, network, tokenAddress string) (*marketdata.Pair, error)
}

// SweepResult summarizes one pass over a user's open book
type SweepResult struct {
	Checked int
	Closed  []*storage.Trade
	Errors  []error
}

// Manager owns the position lifecycle after the broker fills
type Manager struct {
	store storage.Store
	pairs PairFetcher
	cfg   config.PositionConfig
	now   func() time.Time
	log   *logging.Logger
}

// NewManager creates a position manager. now is injectable for tests.
func NewManager(store storage.Store, pairs PairFetcher, cfg config.PositionConfig, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store: store,
		pairs: pairs,
		cfg:   cfg,
		now:   now,
		log:   logging.WithComponent("positions"),
	}
}

// Sweep reviews every open trade of the user once. A quote failure skips
// that position and is reported in the result, never aborts the sweep.
func (m *Manager) Sweep(ctx context.Context, userID string) (*SweepResult, error) {
	trades, err := m.store.OpenTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load open trades: %w", err)
	}

	result := &SweepResult{}
	for _, trade := range trades {
		result.Checked++
		closed, err := m.review(ctx, trade)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if closed != nil {
			result.Closed = append(result.Closed, closed)
		}
	}
	return result, nil
}

// review checks one open trade against the exit rules. Returns the closed
// trade when a rule fired, nil when the position stays open.
func (m *Manager) review(ctx context.Context, trade *storage.Trade) (*storage.Trade, error) {
	pair, err := m.pairs.BestPair(ctx, trade.Network, trade.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: quote: %w", trade.Symbol, err)
	}
	if pair == nil || pair.PriceUSD <= 0 {
		m.log.Warn("unpriceable open position, keeping it",
			"trade_id", trade.ID, "symbol", trade.Symbol)
		return nil, nil
	}

	current := pair.PriceUSD
	highest := metadataFloat(trade.Metadata, highestPriceKey)
	if current > highest {
		highest = current
		if trade.Metadata == nil {
			trade.Metadata = map[string]interface{}{}
		}
		trade.Metadata[highestPriceKey] = highest
		if err := m.store.UpdateTrade(ctx, trade); err != nil {
			m.log.Warn("highest price ratchet not persisted", "trade_id", trade.ID, "error", err)
		}
	}

	pnlPct := (current - trade.EntryPrice) / trade.EntryPrice * 100

	reason := m.exitReason(trade, pair, current, highest, pnlPct)
	if reason == "" {
		return nil, nil
	}
	return m.close(ctx, trade, current, pnlPct, reason)
}

// exitReason applies the rules in order; empty string means hold
func (m *Manager) exitReason(trade *storage.Trade, pair *marketdata.Pair, current, highest, pnlPct float64) string {
	trail := m.cfg.CoreTrailingStopPct
	maxHold := time.Duration(m.cfg.CoreMaxHoldHours * float64(time.Hour))
	takeProfitPct := m.cfg.CoreTakeProfitPct * 100
	if trade.Layer == storage.LayerSatellite {
		trail = m.cfg.SatelliteTrailingStopPct
		maxHold = time.Duration(m.cfg.SatelliteMaxHoldHours * float64(time.Hour))
		takeProfitPct = m.cfg.SatelliteTakeProfitPct * 100
	}

	// The trailing stop only cuts losers; a pullback that is still in
	// profit is left to the take-profit and fade rules.
	if highest > 0 && current <= highest*(1-trail) && pnlPct < 0 {
		return ExitTrailingStop
	}
	if m.now().Sub(trade.EnteredAt) >= maxHold {
		return ExitTimeMax
	}
	if entryVolume := metadataFloat(trade.Metadata, "entry_volume_24h"); entryVolume > 0 {
		if pair.Volume24hUSD/entryVolume < m.cfg.VolumeFadeRatio && pnlPct > 0 {
			return ExitMomentumExhausted
		}
	}
	if pair.LiquidityUSD < m.cfg.LiquidityFloorUSD {
		return ExitLiquidityTooLow
	}
	if pnlPct >= takeProfitPct {
		return ExitTakeProfit
	}
	return ""
}

func (m *Manager) close(ctx context.Context, trade *storage.Trade, exitPrice, pnlPct float64, reason string) (*storage.Trade, error) {
	pnlAbs := (exitPrice - trade.EntryPrice) * trade.Quantity
	isWin := pnlAbs > 0
	closedAt := m.now().UTC()

	trade.Status = storage.StatusClosed
	trade.ExitPrice = &exitPrice
	trade.PnLAbs = &pnlAbs
	trade.PnLPct = &pnlPct
	trade.IsWin = &isWin
	trade.ExitReason = &reason
	trade.ClosedAt = &closedAt

	if err := m.store.CloseTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("%s: close: %w", trade.Symbol, err)
	}

	m.log.Info("position closed",
		"trade_id", trade.ID, "symbol", trade.Symbol, "layer", trade.Layer,
		"reason", reason, "pnl_abs", pnlAbs, "pnl_pct", pnlPct)
	return trade, nil
}

func metadataFloat(meta map[string]interface{}, key string) float64 {
	if meta == nil {
		return 0
	}
	if v, ok := meta[key].(float64); ok {
		return v
	}
	return 0
}
