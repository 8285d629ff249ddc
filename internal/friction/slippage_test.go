package friction

import (
	"math"
	"math/rand"
	"testing"
)

func TestComputeSlippageBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(0))

	tests := []struct {
		name      string
		sizeUSD   float64
		liquidity float64
		price     float64
		side      string
	}{
		{"small buy deep pool", 50, 5_000_000, 1.5, SideBuy},
		{"small sell deep pool", 50, 5_000_000, 1.5, SideSell},
		{"medium buy", 5_000, 250_000, 0.02, SideBuy},
		{"large buy thin pool", 25_000, 60_000, 0.0004, SideBuy},
		{"oversized sell", 100_000, 30_000, 0.000001, SideSell},
		{"tiny ticket", 15, 55_000, 3.2, SideBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ComputeSlippage(SlippageInput{
				SizeUSD:          tt.sizeUSD,
				PoolLiquidityUSD: tt.liquidity,
				CurrentPrice:     tt.price,
				Side:             tt.side,
			}, rng)

			if res.SlippagePct < MinSlippagePct || res.SlippagePct > MaxSlippagePct {
				t.Errorf("slippage %v outside [%v, %v]", res.SlippagePct, MinSlippagePct, MaxSlippagePct)
			}
		})
	}
}

func TestComputeSlippageDegradedInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(0))

	tests := []struct {
		name      string
		liquidity float64
		price     float64
	}{
		{"zero liquidity", 0, 1.0},
		{"negative liquidity", -5, 1.0},
		{"zero price", 100_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ComputeSlippage(SlippageInput{
				SizeUSD:          1_000,
				PoolLiquidityUSD: tt.liquidity,
				CurrentPrice:     tt.price,
				Side:             SideBuy,
			}, rng)

			if !res.Degraded {
				t.Fatal("expected degraded result")
			}
			if res.SlippagePct != 0.05 {
				t.Errorf("degraded slippage = %v, want 0.05", res.SlippagePct)
			}
		})
	}
}

func TestComputeSlippageSaturation(t *testing.T) {
	rng := rand.New(rand.NewSource(0))

	// selling a dollar amount that dwarfs the pool drains it
	res := ComputeSlippage(SlippageInput{
		SizeUSD:          10_000_000,
		PoolLiquidityUSD: 20_000,
		CurrentPrice:     0.000001,
		Side:             SideSell,
	}, rng)

	if res.SlippagePct != MaxSlippagePct {
		t.Errorf("saturated slippage = %v, want %v", res.SlippagePct, MaxSlippagePct)
	}
	want := 0.000001 * (1 - MaxSlippagePct)
	if math.Abs(res.EffectivePrice-want) > 1e-12 {
		t.Errorf("saturated sell effective price = %v, want %v", res.EffectivePrice, want)
	}
}

func TestComputeSlippageGrowsWithSize(t *testing.T) {
	small := ComputeSlippage(SlippageInput{
		SizeUSD: 100, PoolLiquidityUSD: 200_000, CurrentPrice: 1, Side: SideBuy,
	}, rand.New(rand.NewSource(7)))
	large := ComputeSlippage(SlippageInput{
		SizeUSD: 20_000, PoolLiquidityUSD: 200_000, CurrentPrice: 1, Side: SideBuy,
	}, rand.New(rand.NewSource(7)))

	if large.SlippagePct <= small.SlippagePct {
		t.Errorf("larger order should slip more: small=%v large=%v", small.SlippagePct, large.SlippagePct)
	}
}

func TestComputeSlippageIncludesFee(t *testing.T) {
	// a tiny order against a deep pool has negligible impact, so the
	// result is dominated by the fee term
	res := ComputeSlippage(SlippageInput{
		SizeUSD: 10, PoolLiquidityUSD: 50_000_000, CurrentPrice: 2500, Side: SideBuy,
	}, rand.New(rand.NewSource(3)))

	if res.SlippagePct < DefaultFeeRate {
		t.Errorf("slippage %v below the fee floor %v", res.SlippagePct, DefaultFeeRate)
	}
	if res.SlippagePct > DefaultFeeRate+0.001 {
		t.Errorf("tiny order slippage %v too far above fee %v", res.SlippagePct, DefaultFeeRate)
	}
}
