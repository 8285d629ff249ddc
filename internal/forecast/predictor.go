// Package forecast runs a Monte Carlo over the rolling trade distribution
// to project the pnl path forward: percentiles, drawdown odds, loss-streak
// odds and risk of ruin. Magnitudes are drawn from a Student-t with three
// degrees of freedom so the tails stay fat, matching what small-cap DEX
// books actually produce.
package forecast

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/performance"
)

// Defaults
const (
	DefaultSimulations  = 5000
	DefaultTradesPerDay = 3

	// dailyTargetPct is the reference daily gain (percent of capital) the
	// "double target" probability is measured against.
	dailyTargetPct = 0.5

	// ruinLossPct is the equity drop that counts as ruin for this book
	ruinLossPct = 0.05

	studentTDf = 3
)

// Win/loss magnitude dispersion relative to the window averages
const (
	winStdFactor  = 0.6
	lossStdFactor = 0.5
)

// Percentiles of the simulated final pnl distribution
type Percentiles struct {
	P10 float64
	P25 float64
	P50 float64
	P75 float64
	P90 float64
}

// Prediction is the result of one Monte Carlo run
type Prediction struct {
	Window         time.Duration
	Simulations    int
	TradesPerPath  int
	WinProbability float64 // blended W actually used for the draws

	FinalPnL Percentiles

	ProbPositive        float64
	ProbDoubleTarget    float64
	ProbDrawdownOver5   float64
	ProbDrawdownOver10  float64
	ProbLossStreakOver5 float64
	RiskOfRuin          float64
}

// Predictor draws forward paths from rolling metrics
type Predictor struct {
	sims         int
	tradesPerDay int
	rng          *rand.Rand
	log          *logging.Logger
}

// NewPredictor creates a predictor. Non-positive arguments fall back to the
// defaults; rng must be injectable so tests can pin the seed.
func NewPredictor(sims, tradesPerDay int, rng *rand.Rand) *Predictor {
	if sims <= 0 {
		sims = DefaultSimulations
	}
	if tradesPerDay <= 0 {
		tradesPerDay = DefaultTradesPerDay
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Predictor{
		sims:         sims,
		tradesPerDay: tradesPerDay,
		rng:          rng,
		log:          logging.WithComponent("forecast"),
	}
}

// Run simulates the window forward from the given rolling metrics. Capital
// anchors the drawdown and ruin measurements.
func (p *Predictor) Run(m *performance.Metrics, capitalUSD float64, window time.Duration) *Prediction {
	days := window.Hours() / 24
	trades := int(days) * p.tradesPerDay

	w := clamp((m.Core.WinRatePct+m.Satellite.WinRatePct)/200, 0.1, 0.9)

	pred := &Prediction{
		Window:         window,
		Simulations:    p.sims,
		TradesPerPath:  trades,
		WinProbability: w,
	}
	if trades == 0 || p.sims == 0 {
		return pred
	}

	targetUSD := capitalUSD * dailyTargetPct / 100 * days
	ruinEquity := capitalUSD * (1 - ruinLossPct)

	finals := make([]float64, 0, p.sims)
	var positive, doubleTarget, ddOver5, ddOver10, streakOver5, ruined int

	for i := 0; i < p.sims; i++ {
		var (
			cum           float64
			peak          = capitalUSD
			maxDD         float64
			lossStreak    int
			maxLossStreak int
			hitRuin       bool
		)
		for j := 0; j < trades; j++ {
			var pnl float64
			if p.rng.Float64() < w {
				pnl = p.drawMagnitude(m.AvgWinUSD, m.AvgWinUSD*winStdFactor)
				lossStreak = 0
			} else {
				pnl = -p.drawMagnitude(m.AvgLossUSD, m.AvgLossUSD*lossStdFactor)
				lossStreak++
				if lossStreak > maxLossStreak {
					maxLossStreak = lossStreak
				}
			}
			pnl -= m.AvgSlippagePct*math.Abs(pnl) + m.AvgGasUSD

			cum += pnl
			equity := capitalUSD + cum
			if equity > peak {
				peak = equity
			}
			if peak > 0 {
				if dd := (peak - equity) / peak * 100; dd > maxDD {
					maxDD = dd
				}
			}
			if equity <= ruinEquity {
				hitRuin = true
			}
		}

		finals = append(finals, cum)
		if cum > 0 {
			positive++
		}
		if cum >= 2*targetUSD {
			doubleTarget++
		}
		if maxDD > 5 {
			ddOver5++
		}
		if maxDD > 10 {
			ddOver10++
		}
		if maxLossStreak > 5 {
			streakOver5++
		}
		if hitRuin {
			ruined++
		}
	}

	sort.Float64s(finals)
	pred.FinalPnL = Percentiles{
		P10: percentile(finals, 0.10),
		P25: percentile(finals, 0.25),
		P50: percentile(finals, 0.50),
		P75: percentile(finals, 0.75),
		P90: percentile(finals, 0.90),
	}

	n := float64(p.sims)
	pred.ProbPositive = float64(positive) / n
	pred.ProbDoubleTarget = float64(doubleTarget) / n
	pred.ProbDrawdownOver5 = float64(ddOver5) / n
	pred.ProbDrawdownOver10 = float64(ddOver10) / n
	pred.ProbLossStreakOver5 = float64(streakOver5) / n
	pred.RiskOfRuin = float64(ruined) / n

	p.log.Debug("forecast complete",
		"window_days", days, "p50", pred.FinalPnL.P50, "prob_positive", pred.ProbPositive)
	return pred
}

// drawMagnitude samples a non-negative magnitude around mean with the
// given dispersion from a Student-t (df=3).
func (p *Predictor) drawMagnitude(mean, std float64) float64 {
	v := mean + std*p.studentT()
	if v < 0 {
		return 0
	}
	return v
}

// studentT draws t(df) as Z / sqrt(chi²(df)/df)
func (p *Predictor) studentT() float64 {
	z := p.rng.NormFloat64()
	var chi2 float64
	for i := 0; i < studentTDf; i++ {
		n := p.rng.NormFloat64()
		chi2 += n * n
	}
	if chi2 == 0 {
		return z
	}
	return z / math.Sqrt(chi2/studentTDf)
}

// percentile is nearest-rank over an ascending slice
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
