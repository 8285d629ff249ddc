package friction

import (
	"math/rand"
)

// Per-network base MEV risk. Chains with open mempools and dense searcher
// activity sit at the top; solana's sealed leader schedule sits at the
// bottom.
var baseMEVRisk = map[string]float64{
	"ethereum":  0.35,
	"bsc":       0.25,
	"polygon":   0.20,
	"arbitrum":  0.15,
	"base":      0.12,
	"avalanche": 0.10,
	"solana":    0.05,
}

const defaultMEVRisk = 0.15

// CompetitionInput describes the visibility of one order to MEV actors
type CompetitionInput struct {
	Network          string
	PositionUSD      float64
	PoolLiquidityUSD float64
	Volume24hUSD     float64
}

// CompetitionResult is the extra slippage competition inflicted
type CompetitionResult struct {
	FrontrunOccurred bool
	BackrunOccurred  bool
	FrontrunProb     float64
	BackrunProb      float64
	ExtraSlippagePct float64
}

// BaseMEVRisk returns the per-network base probability
func BaseMEVRisk(network string) float64 {
	if risk, ok := baseMEVRisk[network]; ok {
		return risk
	}
	return defaultMEVRisk
}

// SimulateCompetition rolls for frontrun and backrun events. Size relative
// to pool depth drives frontrun exposure; 24h volume drives bot density and
// with it backrun exposure.
func SimulateCompetition(in CompetitionInput, rng *rand.Rand) CompetitionResult {
	base := BaseMEVRisk(in.Network)

	sizeVisibility := 0.0
	if in.PoolLiquidityUSD > 0 {
		sizeVisibility = in.PositionUSD / (in.PoolLiquidityUSD * 0.01)
		if sizeVisibility > 1 {
			sizeVisibility = 1
		}
	}

	botDensity := in.Volume24hUSD / 1e6
	if botDensity > 1 {
		botDensity = 1
	}
	botDensity *= 0.3

	result := CompetitionResult{
		FrontrunProb: base * sizeVisibility,
		BackrunProb:  base * botDensity * 0.5,
	}

	if rng.Float64() < result.FrontrunProb {
		result.FrontrunOccurred = true
		result.ExtraSlippagePct += 0.002 + rng.Float64()*0.008
	}
	if rng.Float64() < result.BackrunProb {
		result.BackrunOccurred = true
		result.ExtraSlippagePct += 0.001 + rng.Float64()*0.003
	}

	return result
}
