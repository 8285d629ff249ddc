package friction

import (
	"math"
	"math/rand"
)

// Annualised volatility bounds for the estimator, as fractions (0.5 = 50%)
const (
	MinAnnualVol = 0.5
	MaxAnnualVol = 20.0

	hoursPerYear = 24 * 365
)

// MicroVolResult is one GBM step over the simulated latency window
type MicroVolResult struct {
	AdjustedPrice float64
	NoisePct      float64
	AnnualVol     float64
}

// EstimateAnnualVol derives an annualised volatility fraction from the 1h
// price change percentage (feed units, 5.2 means 5.2%), clamped to
// [MinAnnualVol, MaxAnnualVol].
func EstimateAnnualVol(priceChange1hPct float64) float64 {
	hourly := math.Abs(priceChange1hPct) / 100
	return clamp(hourly*math.Sqrt(hoursPerYear), MinAnnualVol, MaxAnnualVol)
}

// ApplyMicroVolatility advances the price by one geometric-Brownian step
// covering latencyMs. annualVol <= 0 means "estimate from priceChange1hPct".
// The adjusted price never drops below half the input price.
func ApplyMicroVolatility(price float64, latencyMs int, annualVol, priceChange1hPct float64, rng *rand.Rand) MicroVolResult {
	if price <= 0 || latencyMs <= 0 {
		return MicroVolResult{AdjustedPrice: price, AnnualVol: annualVol}
	}

	sigma := annualVol
	if sigma <= 0 {
		sigma = EstimateAnnualVol(priceChange1hPct)
	}

	const mu = 0.0
	dtYears := float64(latencyMs) / 3600000.0 / 8760.0

	z := boxMuller(rng)
	noise := mu*dtYears + sigma*math.Sqrt(dtYears)*z

	adjusted := price * (1 + noise)
	if adjusted < price*0.5 {
		adjusted = price * 0.5
	}

	return MicroVolResult{
		AdjustedPrice: adjusted,
		NoisePct:      noise,
		AnnualVol:     sigma,
	}
}

// boxMuller draws one standard normal variate
func boxMuller(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
