// Package detector scores DEX pools for trade candidates. The momentum
// detector works the trending feed looking for continuation; the early
// detector works the new-pool feed looking for organic first traction.
// Both emit 0-100 composite scores and drop anything under their minimum,
// which the calibrator re-tunes every cycle.
package detector

import (
	"context"

	"dexpaper-trading-bot/internal/marketdata"
)

// Momentum tiers
const (
	TierStrong   = "strong"
	TierModerate = "moderate"
	TierWeak     = "weak"
)

// Early tiers
const (
	TierHighPotential     = "high_potential"
	TierModeratePotential = "moderate_potential"
	TierSpeculative       = "speculative"
)

// PoolFeed is the slice of the pool feed client the detectors consume
type PoolFeed interface {
	TrendingPools(ctx context.Context, networks []string) (*marketdata.PoolFeedResult, error)
	NewPools(ctx context.Context, networks []string) (*marketdata.PoolFeedResult, error)
}

// MomentumSignal is one trending pool that passed the filters
type MomentumSignal struct {
	Pool        marketdata.Pool
	Score       float64
	Tier        string
	BuyPressure float64
	VolumeAccel float64
}

// EarlySignal is one new pool that passed the filters
type EarlySignal struct {
	Pool             marketdata.Pool
	Score            float64
	Tier             string
	BuyPressure      float64
	BuyerSellerRatio float64
	RatioKnown       bool
}

// ScanStats carries discovery counters for the cycle result
type ScanStats struct {
	PoolsScanned int
	Filtered     int
	FeedErrors   map[string]error
}

// volumeAcceleration compares the last hour's pace against the 6h pace,
// itself normalized against the 24h pace. >1 means volume is speeding up.
func volumeAcceleration(v1h, v6h, v24h float64) float64 {
	if v24h <= 0 {
		return 0
	}
	if v6h <= 0 {
		// no 6h history to normalise against: a live last hour on a dead
		// day still counts as acceleration
		if v1h > 0 {
			return 2
		}
		return 0
	}
	recent := v1h / (v6h / 6)
	base := v6h / (v24h / 24)
	if base <= 0 {
		return recent
	}
	return recent / base
}

// hourlyVolumeGrowth is the last hour against the 24h hourly average
func hourlyVolumeGrowth(v1h, v24h float64) float64 {
	if v24h <= 0 {
		return 0
	}
	return v1h / (v24h / 24)
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
