// Package calibration closes the loop: it reads how recent signals
// actually resolved at the 24h window and nudges the detector and
// confluence thresholds toward their per-layer hit-rate targets.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/storage"
)

// Learning targets and bounds
const (
	maxOutcomes      = 200
	minLayerOutcomes = 10

	coreHitTarget      = 0.55
	satelliteHitTarget = 0.40
	loosenMargin       = 0.15

	momentumThresholdMin = 40
	momentumThresholdMax = 80
	earlyThresholdMin    = 35
	earlyThresholdMax    = 70
	coreConfidenceMin    = 60
	coreConfidenceMax    = 90
	satConfidenceMin     = 35
	satConfidenceMax     = 70

	exposureRebalancePct = 70
	biasProfitFactor     = 1.5

	profitFactorCap = 10
)

// Calibrator adapts thresholds from resolved outcomes
type Calibrator struct {
	store storage.Store
	det   config.DetectorConfig
	conf  config.ConfluenceConfig
	now   func() time.Time
	log   *logging.Logger
}

// NewCalibrator creates a calibrator. The config values seed the state the
// first time a user is calibrated; afterwards the persisted state rules.
func NewCalibrator(store storage.Store, det config.DetectorConfig, conf config.ConfluenceConfig, now func() time.Time) *Calibrator {
	if now == nil {
		now = time.Now
	}
	return &Calibrator{
		store: store,
		det:   det,
		conf:  conf,
		now:   now,
		log:   logging.WithComponent("calibration"),
	}
}

// Calibrate recomputes the user's thresholds from the last resolved
// outcomes and persists the new state.
func (c *Calibrator) Calibrate(ctx context.Context, userID string) (*storage.CalibrationState, error) {
	rows, err := c.store.OutcomesWithPnL24h(ctx, userID, maxOutcomes)
	if err != nil {
		return nil, fmt.Errorf("load resolved outcomes: %w", err)
	}

	state, err := c.store.GetCalibrationState(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		state = c.defaultState(userID)
	case err != nil:
		return nil, fmt.Errorf("load calibration state: %w", err)
	}

	stats := computeStats(rows)

	state.CoreHitRate = stats.core.hitRate()
	state.SatelliteHitRate = stats.satellite.hitRate()
	state.CoreProfitFactor = stats.core.profitFactor()
	state.SatelliteProfitFactor = stats.satellite.profitFactor()
	state.MomentumExposurePct = stats.momentumExposurePct
	state.EarlyExposurePct = stats.earlyExposurePct

	if delta := layerDelta(stats.core, coreHitTarget); delta != 0 {
		state.MomentumScoreThreshold += delta
		state.CoreMinConfidence += delta
	}
	if delta := layerDelta(stats.satellite, satelliteHitTarget); delta != 0 {
		state.EarlyScoreThreshold += delta
		state.SatelliteMinConfidence += delta
	}

	// Exposure rebalance: when one detector dominates the tape while the
	// other resolves better, shift a point between them.
	momPF := stats.momentum.profitFactor()
	earlyPF := stats.early.profitFactor()
	if stats.momentumExposurePct > exposureRebalancePct && earlyPF > momPF {
		state.MomentumScoreThreshold++
		state.EarlyScoreThreshold--
	} else if stats.earlyExposurePct > exposureRebalancePct && momPF > earlyPF {
		state.EarlyScoreThreshold++
		state.MomentumScoreThreshold--
	}

	dominant, bias := "", "balanced"
	switch {
	case stats.momentumExposurePct > 50:
		dominant = storage.SourceMomentum
		if momPF > biasProfitFactor {
			bias = "recommended"
			state.CoreMinConfidence--
		}
	case stats.earlyExposurePct > 50:
		dominant = storage.SourceEarly
		if earlyPF > biasProfitFactor {
			bias = "recommended"
			state.SatelliteMinConfidence--
		}
	}

	state.MomentumScoreThreshold = clampF(state.MomentumScoreThreshold, momentumThresholdMin, momentumThresholdMax)
	state.EarlyScoreThreshold = clampF(state.EarlyScoreThreshold, earlyThresholdMin, earlyThresholdMax)
	state.CoreMinConfidence = clampF(state.CoreMinConfidence, coreConfidenceMin, coreConfidenceMax)
	state.SatelliteMinConfidence = clampF(state.SatelliteMinConfidence, satConfidenceMin, satConfidenceMax)

	state.InteractionSummary = map[string]interface{}{
		"momentum_pf":           momPF,
		"early_pf":              earlyPF,
		"momentum_hit_rate":     stats.momentum.hitRate(),
		"early_hit_rate":        stats.early.hitRate(),
		"token_overlap_pct":     stats.overlapPct,
		"dominant_detector":     dominant,
		"bias":                  bias,
		"core_avg_pnl_pct":      stats.core.avgPnL(),
		"satellite_avg_pnl_pct": stats.satellite.avgPnL(),
		"outcomes_used":         len(rows),
	}
	state.LastCalibratedAt = c.now().UTC()

	if err := c.store.SaveCalibrationState(ctx, state); err != nil {
		return nil, fmt.Errorf("persist calibration state: %w", err)
	}

	c.log.Info("calibration applied",
		"user_id", userID, "outcomes", len(rows),
		"momentum_threshold", state.MomentumScoreThreshold,
		"early_threshold", state.EarlyScoreThreshold,
		"core_min_confidence", state.CoreMinConfidence,
		"satellite_min_confidence", state.SatelliteMinConfidence,
		"core_hit_rate", state.CoreHitRate,
		"satellite_hit_rate", state.SatelliteHitRate)
	return state, nil
}

func (c *Calibrator) defaultState(userID string) *storage.CalibrationState {
	return &storage.CalibrationState{
		UserID:                 userID,
		MomentumScoreThreshold: c.det.MinMomentumScore,
		EarlyScoreThreshold:    c.det.MinEarlyScore,
		CoreMinConfidence:      c.conf.CoreMinConfidence,
		SatelliteMinConfidence: c.conf.SatelliteMinConfidence,
	}
}

// layerDelta is the signed threshold adjustment for one layer: positive
// tightens when the hit rate runs under target, negative loosens when it
// runs hot. Thin layers (<10 resolved outcomes) are left alone.
func layerDelta(acc pnlAcc, target float64) float64 {
	if acc.count < minLayerOutcomes {
		return 0
	}
	rate := acc.hitRate()
	switch {
	case rate < target:
		return adaptiveStep(math.Abs(rate - target))
	case rate > target+loosenMargin:
		return -adaptiveStep(math.Abs(rate - target))
	default:
		return 0
	}
}

// adaptiveStep grows with the distance from target: 2, 3 past 0.10,
// 4 from 0.20 up.
func adaptiveStep(gap float64) float64 {
	step := 2.0
	if gap > 0.10 {
		step++
	}
	if gap >= 0.20 {
		step++
	}
	return step
}

// pnlAcc accumulates resolved 24h pnl for one bucket
type pnlAcc struct {
	count       int
	hits        int
	sum         float64
	grossProfit float64
	grossLoss   float64
}

func (a *pnlAcc) add(pnl float64) {
	a.count++
	a.sum += pnl
	if pnl > 0 {
		a.hits++
		a.grossProfit += pnl
	} else if pnl < 0 {
		a.grossLoss -= pnl
	}
}

func (a *pnlAcc) hitRate() float64 {
	if a.count == 0 {
		return 0
	}
	return float64(a.hits) / float64(a.count)
}

func (a *pnlAcc) avgPnL() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

func (a *pnlAcc) profitFactor() float64 {
	if a.grossLoss == 0 {
		if a.grossProfit > 0 {
			return profitFactorCap
		}
		return 0
	}
	pf := a.grossProfit / a.grossLoss
	if pf > profitFactorCap {
		return profitFactorCap
	}
	return pf
}

type calibStats struct {
	core                pnlAcc
	satellite           pnlAcc
	momentum            pnlAcc
	early               pnlAcc
	momentumExposurePct float64
	earlyExposurePct    float64
	overlapPct          float64
}

func computeStats(rows []*storage.SignalOutcome) calibStats {
	var st calibStats
	momTokens := map[string]bool{}
	earlyTokens := map[string]bool{}

	for _, o := range rows {
		if o.PnLPct24h == nil {
			continue
		}
		pnl := *o.PnLPct24h

		switch o.Layer {
		case storage.LayerCore:
			st.core.add(pnl)
		case storage.LayerSatellite:
			st.satellite.add(pnl)
		}
		switch o.SignalSource {
		case storage.SourceMomentum:
			st.momentum.add(pnl)
			momTokens[o.TokenAddress] = true
		case storage.SourceEarly:
			st.early.add(pnl)
			earlyTokens[o.TokenAddress] = true
		}
	}

	total := st.momentum.count + st.early.count
	if total > 0 {
		st.momentumExposurePct = float64(st.momentum.count) / float64(total) * 100
		st.earlyExposurePct = float64(st.early.count) / float64(total) * 100
	}

	distinct := map[string]bool{}
	overlap := 0
	for token := range momTokens {
		distinct[token] = true
		if earlyTokens[token] {
			overlap++
		}
	}
	for token := range earlyTokens {
		distinct[token] = true
	}
	if len(distinct) > 0 {
		st.overlapPct = float64(overlap) / float64(len(distinct)) * 100
	}

	return st
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
