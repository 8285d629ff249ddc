// Package risk gates every order before the broker sees it. The baseline
// rules are hard limits (kill-switches, daily caps, cooldowns); on top of
// them an adaptive layer scales position size from rolling performance.
package risk

import (
	"fmt"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/storage"
)

// Kill-switch reasons. Kept verbatim from the upstream strategy notes;
// downstream consumers match on these prefixes.
const (
	ReasonDailyLoss  = "Pérdida diaria máxima alcanzada"
	ReasonWeeklyLoss = "Pérdida semanal máxima alcanzada"
)

// satelliteCooldownReason marks a pause that only blocks the satellite book
const satelliteCooldownReason = "satellite cooldown after consecutive losses"

// Adaptive layer tuning
const (
	adaptiveMinTrades = 10
	adaptiveDenyDD    = 0.10 // fraction of capital
	adaptiveScaleDD   = 0.03
	lowProfitFactor   = 0.8
	highProfitFactor  = 1.5
	lowPFMultiplier   = 0.5
	highPFMultiplier  = 1.25
	minDDMultiplier   = 0.3
)

// Decision is the gate's verdict on one prospective order
type Decision struct {
	Allowed        bool
	Reason         string
	MaxPositionUSD float64
	Multiplier     float64 // adaptive sizing multiplier actually applied
}

// RollingSnapshot is the slice of rolling performance the adaptive layer
// consumes. The orchestrator fills it from the 30d metrics each cycle.
type RollingSnapshot struct {
	Trades                int
	CurrentDrawdownPct    float64 // percent of capital, peak-based
	CoreProfitFactor      float64
	SatelliteProfitFactor float64
	CoreKelly             float64 // half-Kelly, already capped
	SatelliteKelly        float64
}

// Gate applies the baseline and adaptive rules to per-user risk state
type Gate struct {
	cfg     config.RiskConfig
	rolling *RollingSnapshot
	now     func() time.Time
	log     *logging.Logger
}

// NewGate creates a gate with the given limits
func NewGate(cfg config.RiskConfig, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		cfg: cfg,
		now: now,
		log: logging.WithComponent("risk"),
	}
}

// SetRollingMetrics hands the gate this cycle's 30d rolling snapshot. A nil
// snapshot (or fewer than 10 trades) disables the adaptive layer.
func (g *Gate) SetRollingMetrics(snap *RollingSnapshot) {
	g.rolling = snap
}

// Refresh applies pending daily and weekly resets to the state: counters
// and day pnl at UTC midnight, week pnl and the satellite loss streak on
// Monday UTC. Expired pauses are lifted.
func (g *Gate) Refresh(state *storage.RiskState) {
	now := g.now().UTC()

	day := startOfDay(now)
	if state.LastDailyReset.Before(day) {
		state.TradesTodayCore = 0
		state.TradesTodaySatellite = 0
		state.PnLToday = 0
		state.LastDailyReset = day
	}

	week := startOfWeek(now)
	if state.LastWeeklyReset.Before(week) {
		state.PnLThisWeek = 0
		state.ConsecutiveLossesSatellite = 0
		state.LastWeeklyReset = week
	}

	if state.PauseUntil != nil && !now.Before(*state.PauseUntil) {
		state.IsPaused = false
		state.PauseReason = ""
		state.PauseUntil = nil
	}
	state.UpdatedAt = now
}

// Evaluate decides whether an order on the given layer may proceed and how
// large it may be. It never mutates trade counters; kill-switch hits set
// the pause fields so later cycles skip the user.
func (g *Gate) Evaluate(state *storage.RiskState, layer string) Decision {
	now := g.now().UTC()

	if state.IsPaused && state.PauseUntil != nil && now.Before(*state.PauseUntil) {
		return deny("paused: " + state.PauseReason)
	}

	if state.CapitalUSD <= 0 {
		return deny("no capital")
	}

	dailyLossPct := lossPct(state.PnLToday, state.CapitalUSD)
	if dailyLossPct >= g.cfg.MaxDailyLossPct {
		g.pauseUntilTomorrow(state, fmt.Sprintf("%s: -%.2f%% (límite %.0f%%)",
			ReasonDailyLoss, dailyLossPct, g.cfg.MaxDailyLossPct))
		return deny(state.PauseReason)
	}
	weeklyLossPct := lossPct(state.PnLThisWeek, state.CapitalUSD)
	if weeklyLossPct >= g.cfg.MaxWeeklyLossPct {
		g.pauseUntilTomorrow(state, fmt.Sprintf("%s: -%.2f%% (límite %.0f%%)",
			ReasonWeeklyLoss, weeklyLossPct, g.cfg.MaxWeeklyLossPct))
		return deny(state.PauseReason)
	}

	switch layer {
	case storage.LayerCore:
		if state.TradesTodayCore >= g.cfg.CoreMaxTradesPerDay {
			return deny(fmt.Sprintf("core daily trade cap reached (%d)", g.cfg.CoreMaxTradesPerDay))
		}
	case storage.LayerSatellite:
		if state.TradesTodaySatellite >= g.cfg.SatelliteMaxTradesPerDay {
			return deny(fmt.Sprintf("satellite daily trade cap reached (%d)", g.cfg.SatelliteMaxTradesPerDay))
		}
		if state.ConsecutiveLossesSatellite >= g.cfg.SatelliteConsecLossLimit &&
			state.PauseUntil != nil && now.Before(*state.PauseUntil) &&
			state.PauseReason == satelliteCooldownReason {
			return deny(satelliteCooldownReason)
		}
	default:
		return deny("unknown layer " + layer)
	}

	base := state.CapitalUSD * g.riskPct(layer) / 100
	return g.applyAdaptive(state, layer, base)
}

// applyAdaptive scales the base position by rolling performance. Inactive
// until the 30d window holds at least 10 trades.
func (g *Gate) applyAdaptive(state *storage.RiskState, layer string, base float64) Decision {
	if g.rolling == nil || g.rolling.Trades < adaptiveMinTrades {
		return Decision{Allowed: true, MaxPositionUSD: base, Multiplier: 1}
	}

	dd := g.rolling.CurrentDrawdownPct / 100
	if dd > adaptiveDenyDD {
		g.pauseUntilTomorrow(state, fmt.Sprintf("adaptive pause: drawdown %.1f%% above %.0f%%",
			g.rolling.CurrentDrawdownPct, adaptiveDenyDD*100))
		return deny(state.PauseReason)
	}

	mult := 1.0
	pf := g.rolling.CoreProfitFactor
	kelly := g.rolling.CoreKelly
	if layer == storage.LayerSatellite {
		pf = g.rolling.SatelliteProfitFactor
		kelly = g.rolling.SatelliteKelly
	}
	if pf > 0 && pf < lowProfitFactor {
		mult *= lowPFMultiplier
	} else if pf > highProfitFactor {
		mult *= highPFMultiplier
	}
	if dd > adaptiveScaleDD {
		scale := 1 - dd*5
		if scale < minDDMultiplier {
			scale = minDDMultiplier
		}
		mult *= scale
	}

	maxPos := base * mult
	if kelly > 0 && state.CapitalUSD*kelly < maxPos {
		maxPos = state.CapitalUSD * kelly
	}
	return Decision{Allowed: true, MaxPositionUSD: maxPos, Multiplier: mult}
}

// RegisterOpen counts a filled order against the layer's daily cap
func (g *Gate) RegisterOpen(state *storage.RiskState, layer string) {
	switch layer {
	case storage.LayerCore:
		state.TradesTodayCore++
	case storage.LayerSatellite:
		state.TradesTodaySatellite++
	}
	state.UpdatedAt = g.now().UTC()
}

// ApplyTradeResult folds a closed trade's pnl into the state: day and week
// pnl, the satellite loss streak with its cooldown, and the kill-switch
// pauses when a threshold is crossed.
func (g *Gate) ApplyTradeResult(state *storage.RiskState, layer string, pnl float64) {
	now := g.now().UTC()
	state.PnLToday += pnl
	state.PnLThisWeek += pnl

	if layer == storage.LayerSatellite {
		if pnl < 0 {
			state.ConsecutiveLossesSatellite++
			if state.ConsecutiveLossesSatellite >= g.cfg.SatelliteConsecLossLimit {
				until := now.Add(g.cfg.SatelliteCooldown)
				state.PauseUntil = &until
				state.PauseReason = satelliteCooldownReason
				g.log.Warn("satellite cooldown engaged",
					"losses", state.ConsecutiveLossesSatellite, "until", until)
			}
		} else if pnl > 0 {
			state.ConsecutiveLossesSatellite = 0
		}
	}

	if pct := lossPct(state.PnLToday, state.CapitalUSD); pct >= g.cfg.MaxDailyLossPct {
		g.pauseUntilTomorrow(state, fmt.Sprintf("%s: -%.2f%% (límite %.0f%%)",
			ReasonDailyLoss, pct, g.cfg.MaxDailyLossPct))
	} else if pct := lossPct(state.PnLThisWeek, state.CapitalUSD); pct >= g.cfg.MaxWeeklyLossPct {
		g.pauseUntilTomorrow(state, fmt.Sprintf("%s: -%.2f%% (límite %.0f%%)",
			ReasonWeeklyLoss, pct, g.cfg.MaxWeeklyLossPct))
	}

	state.UpdatedAt = now
}

// pauseUntilTomorrow pauses the user until the next UTC midnight
func (g *Gate) pauseUntilTomorrow(state *storage.RiskState, reason string) {
	now := g.now().UTC()
	until := startOfDay(now).Add(24 * time.Hour)
	state.IsPaused = true
	state.PauseReason = reason
	state.PauseUntil = &until
	g.log.Warn("risk pause engaged", "reason", reason, "until", until)
}

func (g *Gate) riskPct(layer string) float64 {
	if layer == storage.LayerSatellite {
		return g.cfg.SatelliteMaxRiskPerTradePct
	}
	return g.cfg.CoreMaxRiskPerTradePct
}

// lossPct is the loss side of pnl as a percentage of capital; gains count 0
func lossPct(pnl, capital float64) float64 {
	if pnl >= 0 || capital <= 0 {
		return 0
	}
	return -pnl / capital * 100
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek is the most recent Monday 00:00 UTC
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
