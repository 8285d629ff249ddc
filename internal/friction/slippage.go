// Package friction models the costs a real fill would suffer: AMM price
// impact, micro-volatility during latency, MEV competition and tail-risk
// stress events. Every model is a pure function of its inputs plus an
// injected random source.
package friction

import (
	"math"
	"math/rand"
)

// Trade side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Slippage bounds applied to every computed value
const (
	MinSlippagePct = 0.0001
	MaxSlippagePct = 0.15

	// DefaultFeeRate is the pool fee applied when the caller passes none
	DefaultFeeRate = 0.003

	// degradedSlippagePct is returned when the pool data is unusable
	degradedSlippagePct = 0.05
)

// SlippageInput describes one simulated swap against a constant-product pool
type SlippageInput struct {
	SizeUSD             float64
	PoolLiquidityUSD    float64
	CurrentPrice        float64
	Side                string
	FeeRate             float64 // 0 means DefaultFeeRate
	ConcentrationFactor float64 // >= 1, 0 means 1
}

// SlippageResult is the outcome of the constant-product model
type SlippageResult struct {
	SlippagePct    float64
	PriceImpactPct float64
	EffectivePrice float64
	Degraded       bool
}

// ComputeSlippage runs a swap through a symmetric constant-product pool
// (reserveQuote = reserveBase = liquidity * concentration / 2) and returns
// the total slippage: price impact plus fee plus a small noise term,
// clamped to [MinSlippagePct, MaxSlippagePct].
func ComputeSlippage(in SlippageInput, rng *rand.Rand) SlippageResult {
	fee := in.FeeRate
	if fee <= 0 {
		fee = DefaultFeeRate
	}
	conc := in.ConcentrationFactor
	if conc < 1 {
		conc = 1
	}

	if in.PoolLiquidityUSD <= 0 || in.CurrentPrice <= 0 {
		return SlippageResult{
			SlippagePct:    degradedSlippagePct,
			EffectivePrice: in.CurrentPrice,
			Degraded:       true,
		}
	}

	reserveQuote := in.PoolLiquidityUSD * conc / 2
	reserveBase := reserveQuote
	k := reserveQuote * reserveBase
	mid := reserveQuote / reserveBase

	var effectivePrice, priceImpact float64

	switch in.Side {
	case SideSell:
		tokens := in.SizeUSD / in.CurrentPrice
		amountIn := tokens * (1 - fee)
		newBase := reserveBase + amountIn
		newQuote := k / newBase
		out := reserveQuote - newQuote
		if out <= 0 {
			return saturated(in.CurrentPrice, SideSell)
		}
		effectivePrice = out / amountIn
		priceImpact = (mid - effectivePrice) / mid
	default: // buy
		amountIn := in.SizeUSD * (1 - fee)
		newQuote := reserveQuote + amountIn
		newBase := k / newQuote
		out := reserveBase - newBase
		if out <= 0 {
			return saturated(in.CurrentPrice, SideBuy)
		}
		effectivePrice = amountIn / out
		priceImpact = (effectivePrice - mid) / mid
	}

	// execution noise, at most 5 bps
	noise := rng.Float64() * 0.0005

	slippage := clamp(math.Abs(priceImpact)+fee+noise, MinSlippagePct, MaxSlippagePct)

	return SlippageResult{
		SlippagePct:    slippage,
		PriceImpactPct: priceImpact,
		EffectivePrice: effectivePrice,
	}
}

// saturated is the degenerate case where the swap would drain the pool
func saturated(currentPrice float64, side string) SlippageResult {
	price := currentPrice * (1 + MaxSlippagePct)
	if side == SideSell {
		price = currentPrice * (1 - MaxSlippagePct)
	}
	return SlippageResult{
		SlippagePct:    MaxSlippagePct,
		PriceImpactPct: MaxSlippagePct,
		EffectivePrice: price,
		Degraded:       true,
	}
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
