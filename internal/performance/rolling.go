// Package performance computes windowed metrics over closed paper trades:
// profit factor, expectancy, peak-based drawdown, friction averages,
// streaks and Kelly fractions. The risk gate and the forward predictor
// both feed from these numbers.
package performance

import (
	"math"
	"sort"
	"time"

	"dexpaper-trading-bot/internal/storage"
)

// Standard windows
const (
	Window7d  = 7 * 24 * time.Hour
	Window30d = 30 * 24 * time.Hour
)

// profitFactorCap stands in for "no losses yet" on a profitable book
const profitFactorCap = 10

// kellyCap caps the half-Kelly fraction
const kellyCap = 0.25

// LayerMetrics is the per-layer slice of a window's metrics
type LayerMetrics struct {
	Trades         int
	Wins           int
	WinRatePct     float64
	ProfitFactor   float64
	ExpectancyUSD  float64 // mean pnl net of fees
	Kelly          float64 // half-Kelly, capped
	GrossProfitUSD float64
	GrossLossUSD   float64 // positive magnitude
	NetPnLUSD      float64
}

// Metrics is everything the engine derives from one window of closed trades
type Metrics struct {
	Window    time.Duration
	Trades    int
	Core      LayerMetrics
	Satellite LayerMetrics

	// Global aggregates
	WinRatePct    float64
	ProfitFactor  float64
	ExpectancyUSD float64 // raw mean pnl, fees not deducted
	NetPnLUSD     float64 // net of fees
	AvgWinUSD     float64 // positive magnitude
	AvgLossUSD    float64 // positive magnitude

	// Peak-based drawdown over the equity path, percent of the peak
	MaxDrawdownPct     float64
	CurrentDrawdownPct float64

	// Friction averages
	AvgSlippagePct            float64 // fraction, as simulated
	AvgCompetitionSlippagePct float64
	AvgGasUSD                 float64
	AvgLatencyMs              float64

	SlippageAdjustedExpectancyUSD float64
	RecoveryFactor                float64

	LongestWinStreak  int
	LongestLossStreak int
	CurrentStreak     int // positive = wins, negative = losses

	ProjectedPnL7dUSD float64
}

// Compute derives metrics over the closed trades within the window ending
// now. Capital anchors the equity path for drawdown percentages.
func Compute(trades []*storage.Trade, window time.Duration, capital float64, now time.Time) *Metrics {
	m := &Metrics{Window: window}

	cutoff := now.Add(-window)
	closed := make([]*storage.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status != storage.StatusClosed || t.ClosedAt == nil || t.PnLAbs == nil {
			continue
		}
		if t.ClosedAt.Before(cutoff) {
			continue
		}
		closed = append(closed, t)
	}
	if len(closed) == 0 {
		return m
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ClosedAt.Before(*closed[j].ClosedAt) })

	m.Trades = len(closed)

	var (
		grossProfit, grossLoss float64
		sumPnL, sumNet         float64
		sumAbsPnL              float64
		wins, losses           int
		sumSlippage, sumGas    float64
		sumCompetition         float64
		sumLatency             float64
	)

	equity := capital
	peak := capital
	for _, t := range closed {
		pnl := *t.PnLAbs
		net := pnl - t.FeesAbs
		win := pnl > 0
		if t.IsWin != nil {
			win = *t.IsWin
		}

		sumPnL += pnl
		sumNet += net
		sumAbsPnL += math.Abs(pnl)
		if win {
			wins++
			grossProfit += pnl
		} else {
			losses++
			grossLoss += -pnl
		}

		sumSlippage += t.SlippageSimulated
		sumGas += t.GasSimulated
		sumLatency += float64(t.LatencyMs)
		if v, ok := metadataFloat(t.Metadata, "competition_slippage_pct"); ok {
			sumCompetition += v
		}

		accumulateLayer(layerOf(m, t.Layer), pnl, net, win)

		equity += net
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > m.MaxDrawdownPct {
				m.MaxDrawdownPct = dd
			}
		}
	}
	if peak > 0 {
		m.CurrentDrawdownPct = (peak - equity) / peak * 100
	}

	n := float64(m.Trades)
	m.WinRatePct = float64(wins) / n * 100
	m.ProfitFactor = profitFactor(grossProfit, grossLoss)
	m.ExpectancyUSD = sumPnL / n
	m.NetPnLUSD = sumNet
	if wins > 0 {
		m.AvgWinUSD = grossProfit / float64(wins)
	}
	if losses > 0 {
		m.AvgLossUSD = grossLoss / float64(losses)
	}

	m.AvgSlippagePct = sumSlippage / n
	m.AvgCompetitionSlippagePct = sumCompetition / n
	m.AvgGasUSD = sumGas / n
	m.AvgLatencyMs = sumLatency / n

	m.SlippageAdjustedExpectancyUSD = m.ExpectancyUSD - (m.AvgSlippagePct*(sumAbsPnL/n) + m.AvgGasUSD)

	if m.MaxDrawdownPct > 0 && capital > 0 {
		// net profit over the absolute drawdown behind the percentage
		m.RecoveryFactor = m.NetPnLUSD * 100 / (m.MaxDrawdownPct * capital)
	}

	finishLayer(&m.Core)
	finishLayer(&m.Satellite)
	m.LongestWinStreak, m.LongestLossStreak, m.CurrentStreak = streaks(closed)

	days := window.Hours() / 24
	if days > 0 {
		m.ProjectedPnL7dUSD = m.NetPnLUSD / days * 7
	}
	return m
}

func layerOf(m *Metrics, layer string) *LayerMetrics {
	if layer == storage.LayerSatellite {
		return &m.Satellite
	}
	return &m.Core
}

func accumulateLayer(lm *LayerMetrics, pnl, net float64, win bool) {
	lm.Trades++
	lm.NetPnLUSD += net
	lm.ExpectancyUSD += net // running sum, divided in finishLayer
	if win {
		lm.Wins++
		lm.GrossProfitUSD += pnl
	} else {
		lm.GrossLossUSD += -pnl
	}
}

func finishLayer(lm *LayerMetrics) {
	if lm.Trades == 0 {
		return
	}
	n := float64(lm.Trades)
	lm.WinRatePct = float64(lm.Wins) / n * 100
	lm.ProfitFactor = profitFactor(lm.GrossProfitUSD, lm.GrossLossUSD)
	lm.ExpectancyUSD /= n
	lm.Kelly = kelly(lm.WinRatePct/100, lm.ProfitFactor)
}

// profitFactor is gross profit over gross loss. With no losses it saturates
// at 10 for a profitable book and 0 otherwise.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss <= 0 {
		if grossProfit > 0 {
			return profitFactorCap
		}
		return 0
	}
	return grossProfit / grossLoss
}

// kelly is the capped half-Kelly fraction for win probability w and payoff
// ratio pf. Unknown pf (no losses recorded as 0) yields 0.
func kelly(w, pf float64) float64 {
	if pf <= 0 {
		return 0
	}
	k := 0.5 * (w - (1-w)/pf)
	if k < 0 {
		return 0
	}
	if k > kellyCap {
		return kellyCap
	}
	return k
}

// streaks walks the chronological win/loss sequence
func streaks(closed []*storage.Trade) (longestWin, longestLoss, current int) {
	for _, t := range closed {
		win := t.PnLAbs != nil && *t.PnLAbs > 0
		if t.IsWin != nil {
			win = *t.IsWin
		}
		if win {
			if current > 0 {
				current++
			} else {
				current = 1
			}
			if current > longestWin {
				longestWin = current
			}
		} else {
			if current < 0 {
				current--
			} else {
				current = -1
			}
			if -current > longestLoss {
				longestLoss = -current
			}
		}
	}
	return longestWin, longestLoss, current
}

func metadataFloat(meta map[string]interface{}, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
