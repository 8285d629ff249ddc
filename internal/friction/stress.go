package friction

import (
	"math/rand"
	"time"
)

// Stress event kinds
const (
	StressRugPull      = "rug_pull"
	StressFlashCrash   = "flash_crash"
	StressExploit      = "exploit"
	StressWhaleDump    = "whale_dump"
	StressOracleFail   = "oracle_failure"
	satelliteStressMul = 1.8
)

// stressSpec defines one event kind: per-cycle base probability and the
// severity range drawn on a hit.
type stressSpec struct {
	kind        string
	baseProb    float64
	minSeverity float64
	maxSeverity float64
}

// Rolled in this order; the first hit wins the cycle.
var stressTable = []stressSpec{
	{kind: StressRugPull, baseProb: 0.003, minSeverity: 0.6, maxSeverity: 1.0},
	{kind: StressFlashCrash, baseProb: 0.008, minSeverity: 0.3, maxSeverity: 0.8},
	{kind: StressExploit, baseProb: 0.001, minSeverity: 0.8, maxSeverity: 1.0},
	{kind: StressWhaleDump, baseProb: 0.020, minSeverity: 0.2, maxSeverity: 0.6},
	{kind: StressOracleFail, baseProb: 0.002, minSeverity: 0.4, maxSeverity: 0.7},
}

// StressInput scales the base probabilities: thin fresh pools on the
// satellite layer are the most exposed.
type StressInput struct {
	PoolLiquidityUSD float64
	PairAge          time.Duration
	Layer            string // "core" or "satellite"
}

// StressEvent is one drawn event. LiquidityImpact and PriceImpact are
// fractions applied to the quote before any other friction model.
type StressEvent struct {
	Kind            string
	Severity        float64
	LiquidityImpact float64 // fraction of liquidity removed
	PriceImpact     float64 // signed price shift fraction
}

// RollStressEvent evaluates the stress table for one order. Returns nil in
// the vast majority of cycles.
func RollStressEvent(in StressInput, rng *rand.Rand) *StressEvent {
	scale := liquidityBand(in.PoolLiquidityUSD) * ageBand(in.PairAge)
	if in.Layer == "satellite" {
		scale *= satelliteStressMul
	}

	for _, spec := range stressTable {
		if rng.Float64() >= spec.baseProb*scale {
			continue
		}
		severity := spec.minSeverity + rng.Float64()*(spec.maxSeverity-spec.minSeverity)
		event := &StressEvent{Kind: spec.kind, Severity: severity}
		event.LiquidityImpact, event.PriceImpact = eventImpacts(spec.kind, severity)
		return event
	}
	return nil
}

// eventImpacts maps kind x severity to deterministic impact fractions
func eventImpacts(kind string, severity float64) (liquidityImpact, priceImpact float64) {
	switch kind {
	case StressRugPull:
		return severity, -0.85 * severity
	case StressExploit:
		return 0.95 * severity, -0.90 * severity
	case StressFlashCrash:
		return 0.30 * severity, -0.50 * severity
	case StressWhaleDump:
		return 0.15 * severity, -0.25 * severity
	case StressOracleFail:
		return 0.10 * severity, -0.40 * severity
	default:
		return 0, 0
	}
}

func liquidityBand(liquidityUSD float64) float64 {
	switch {
	case liquidityUSD < 25_000:
		return 2.5
	case liquidityUSD < 50_000:
		return 2.0
	case liquidityUSD < 100_000:
		return 1.5
	case liquidityUSD < 500_000:
		return 1.0
	default:
		return 0.6
	}
}

func ageBand(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return 2.0
	case age < 72*time.Hour:
		return 1.5
	case age < 7*24*time.Hour:
		return 1.2
	default:
		return 1.0
	}
}
