package detector

import (
	"context"
	"math"
	"sort"
	"time"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
)

// DefaultMinMomentumScore is the entry threshold before calibration
const DefaultMinMomentumScore = 55

// Momentum filter bounds
const (
	momMinLiquidityUSD = 50_000
	momMaxLiquidityUSD = 50_000_000
	momMinVolume24hUSD = 10_000
	momMinPairAge      = 48 * time.Hour
	momMaxAbsChange24h = 80
	momMinBuyPressure  = 1.2
)

// MomentumDetector scores trending pools for continuation
type MomentumDetector struct {
	feed     PoolFeed
	networks []string
	minScore float64
	now      func() time.Time
	log      *logging.Logger
}

// NewMomentumDetector creates a momentum detector over the given networks
func NewMomentumDetector(feed PoolFeed, networks []string, minScore float64, now func() time.Time) *MomentumDetector {
	if minScore <= 0 {
		minScore = DefaultMinMomentumScore
	}
	if now == nil {
		now = time.Now
	}
	return &MomentumDetector{
		feed:     feed,
		networks: networks,
		minScore: minScore,
		now:      now,
		log:      logging.WithComponent("detector.momentum"),
	}
}

// SetMinScore overrides the entry threshold. Called by the calibrator at
// the start of each cycle; the detector is owned by one cycle at a time.
func (d *MomentumDetector) SetMinScore(v float64) {
	if v > 0 {
		d.minScore = v
	}
}

// MinScore returns the active entry threshold
func (d *MomentumDetector) MinScore() float64 {
	return d.minScore
}

// Scan fetches trending pools, filters, scores and sorts them descending.
// Partial feed failures reduce coverage but never abort the scan.
func (d *MomentumDetector) Scan(ctx context.Context) ([]MomentumSignal, ScanStats, error) {
	stats := ScanStats{}

	result, err := d.feed.TrendingPools(ctx, d.networks)
	if result != nil {
		stats.FeedErrors = result.Errors
	}
	if err != nil {
		return nil, stats, err
	}

	now := d.now().UTC()
	stats.PoolsScanned = len(result.Pools)

	var signals []MomentumSignal
	for _, pool := range result.Pools {
		if !d.passesFilters(&pool, now) {
			continue
		}
		stats.Filtered++

		sig := d.scorePool(&pool)
		if sig.Score < d.minScore {
			continue
		}
		signals = append(signals, sig)
	}

	sort.Slice(signals, func(i, j int) bool { return signals[i].Score > signals[j].Score })

	d.log.Debug("momentum scan complete",
		"scanned", stats.PoolsScanned, "passed_filters", stats.Filtered, "signals", len(signals))
	return signals, stats, nil
}

func (d *MomentumDetector) passesFilters(pool *marketdata.Pool, now time.Time) bool {
	if pool.ReserveUSD < momMinLiquidityUSD || pool.ReserveUSD > momMaxLiquidityUSD {
		return false
	}
	if pool.VolumeH24USD < momMinVolume24hUSD {
		return false
	}
	if pool.Age(now) < momMinPairAge {
		return false
	}
	if math.Abs(pool.PriceChangeH24) > momMaxAbsChange24h {
		return false
	}
	return pool.BuyPressure24h() >= momMinBuyPressure
}

// scorePool builds the composite 0-100 momentum score. Weights: buy
// pressure 25, volume acceleration 20, price shape 20, turnover 15,
// transaction count 10, maturity 10.
func (d *MomentumDetector) scorePool(pool *marketdata.Pool) MomentumSignal {
	bp := pool.BuyPressure24h()
	acc := volumeAcceleration(pool.VolumeH1USD, pool.VolumeH6USD, pool.VolumeH24USD)

	score := clamp((bp-1)*12.5, 0, 25)
	score += clamp(acc*10, 0, 20)
	score += momentumShapePoints(pool.PriceChangeH1, pool.PriceChangeH6)

	if pool.ReserveUSD > 0 {
		turnover := pool.VolumeH24USD / pool.ReserveUSD
		score += clamp(turnover*7.5, 0, 15)
	}

	txs := float64(pool.TxH24.Buys + pool.TxH24.Sells)
	score += clamp(txs/100, 0, 10)

	score += maturityPoints(pool.Age(d.now().UTC()))

	score = clamp(score, 0, 100)

	return MomentumSignal{
		Pool:        *pool,
		Score:       score,
		Tier:        momentumTier(score),
		BuyPressure: bp,
		VolumeAccel: acc,
	}
}

// momentumShapePoints favours steady climbs over vertical candles: a pool
// up moderately on both the 1h and 6h windows has room left to run.
func momentumShapePoints(change1h, change6h float64) float64 {
	switch {
	case change1h > 0 && change6h > 0:
		if change1h <= 10 && change6h <= 25 {
			return 20
		}
		if change1h <= 20 {
			return 12
		}
		return 6
	case change1h > 0 || change6h > 0:
		return 6
	default:
		return 0
	}
}

func maturityPoints(age time.Duration) float64 {
	switch {
	case age >= 30*24*time.Hour:
		return 10
	case age >= 14*24*time.Hour:
		return 8
	case age >= 7*24*time.Hour:
		return 6
	default:
		return 4
	}
}

func momentumTier(score float64) string {
	switch {
	case score >= 80:
		return TierStrong
	case score >= 65:
		return TierModerate
	default:
		return TierWeak
	}
}
