package detector

import (
	"context"
	"math"
	"sort"
	"time"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
)

// DefaultMinEarlyScore is the entry threshold before calibration
const DefaultMinEarlyScore = 50

// Early filter bounds
const (
	earlyMinLiquidityUSD = 5_000
	earlyMaxLiquidityUSD = 2_000_000
	earlyMinVolume24hUSD = 3_000
	earlyMinPairAge      = time.Hour
	earlyMaxPairAge      = 72 * time.Hour
	earlyMaxAbsChange24h = 200
	earlyMinBuyPressure  = 1.3
	earlyMinBuyerRatio   = 1.2

	// neutralBuyerRatio stands in when the feed carried no wallet uniques
	neutralBuyerRatio = 1.2
)

// EarlyDetector scores new pools for organic first traction
type EarlyDetector struct {
	feed     PoolFeed
	networks []string
	minScore float64
	now      func() time.Time
	log      *logging.Logger
}

// NewEarlyDetector creates an early detector over the given networks
func NewEarlyDetector(feed PoolFeed, networks []string, minScore float64, now func() time.Time) *EarlyDetector {
	if minScore <= 0 {
		minScore = DefaultMinEarlyScore
	}
	if now == nil {
		now = time.Now
	}
	return &EarlyDetector{
		feed:     feed,
		networks: networks,
		minScore: minScore,
		now:      now,
		log:      logging.WithComponent("detector.early"),
	}
}

// SetMinScore overrides the entry threshold. Called by the calibrator at
// the start of each cycle.
func (d *EarlyDetector) SetMinScore(v float64) {
	if v > 0 {
		d.minScore = v
	}
}

// MinScore returns the active entry threshold
func (d *EarlyDetector) MinScore() float64 {
	return d.minScore
}

// Scan fetches new pools, filters, scores and sorts them descending
func (d *EarlyDetector) Scan(ctx context.Context) ([]EarlySignal, ScanStats, error) {
	stats := ScanStats{}

	result, err := d.feed.NewPools(ctx, d.networks)
	if result != nil {
		stats.FeedErrors = result.Errors
	}
	if err != nil {
		return nil, stats, err
	}

	now := d.now().UTC()
	stats.PoolsScanned = len(result.Pools)

	var signals []EarlySignal
	for _, pool := range result.Pools {
		if !d.passesFilters(&pool, now) {
			continue
		}
		stats.Filtered++

		sig := d.scorePool(&pool, now)
		if sig.Score < d.minScore {
			continue
		}
		signals = append(signals, sig)
	}

	sort.Slice(signals, func(i, j int) bool { return signals[i].Score > signals[j].Score })

	d.log.Debug("early scan complete",
		"scanned", stats.PoolsScanned, "passed_filters", stats.Filtered, "signals", len(signals))
	return signals, stats, nil
}

func (d *EarlyDetector) passesFilters(pool *marketdata.Pool, now time.Time) bool {
	if pool.ReserveUSD < earlyMinLiquidityUSD || pool.ReserveUSD > earlyMaxLiquidityUSD {
		return false
	}
	if pool.VolumeH24USD < earlyMinVolume24hUSD {
		return false
	}
	age := pool.Age(now)
	if age < earlyMinPairAge || age > earlyMaxPairAge {
		return false
	}
	if math.Abs(pool.PriceChangeH24) > earlyMaxAbsChange24h {
		return false
	}
	if pool.BuyPressure24h() < earlyMinBuyPressure {
		return false
	}
	ratio, known := pool.BuyerSellerRatio24h()
	if !known {
		ratio = neutralBuyerRatio
	}
	return ratio >= earlyMinBuyerRatio
}

// scorePool builds the composite 0-100 early score. Weights: buy pressure
// 20, buyer/seller ratio 20, short-vs-long volume growth 20, organic
// activity 15, liquidity growth per hour 15, age sweet spot 10.
func (d *EarlyDetector) scorePool(pool *marketdata.Pool, now time.Time) EarlySignal {
	bp := pool.BuyPressure24h()
	ratio, known := pool.BuyerSellerRatio24h()
	if !known {
		ratio = neutralBuyerRatio
	}
	age := pool.Age(now)

	score := clamp((bp-1)*10, 0, 20)
	score += clamp((ratio-1)*12.5, 0, 20)
	score += clamp(hourlyVolumeGrowth(pool.VolumeH1USD, pool.VolumeH24USD)*5, 0, 20)
	score += organicPoints(pool.TxH24.Buys, pool.TxH24.Buyers)
	score += liquidityGrowthPoints(pool.ReserveUSD, age)
	score += ageSweetSpotPoints(age)

	score = clamp(score, 0, 100)

	return EarlySignal{
		Pool:             *pool,
		Score:            score,
		Tier:             earlyTier(score),
		BuyPressure:      bp,
		BuyerSellerRatio: ratio,
		RatioKnown:       known,
	}
}

// organicPoints rewards breadth: many distinct buyers each buying once or
// twice reads organic, a few wallets hammering the pool reads like bots.
func organicPoints(buys, buyers int) float64 {
	if buys == 0 || buyers == 0 {
		return 0
	}
	perBuyer := float64(buys) / float64(buyers)

	var points float64
	switch {
	case perBuyer <= 1.5:
		points = 15
	case perBuyer <= 2.5:
		points = 10
	case perBuyer <= 4:
		points = 5
	default:
		points = 0
	}

	if buyers < 10 {
		points /= 2
	}
	return points
}

// liquidityGrowthPoints scores how fast the pool accumulated depth
func liquidityGrowthPoints(reserveUSD float64, age time.Duration) float64 {
	hours := age.Hours()
	if hours <= 0 {
		return 0
	}
	perHour := reserveUSD / hours
	return clamp(perHour/150, 0, 15)
}

// ageSweetSpotPoints peaks at 6-48h: old enough that the deploy rush is
// over, young enough that discovery is still early.
func ageSweetSpotPoints(age time.Duration) float64 {
	h := age.Hours()
	switch {
	case h >= 6 && h <= 48:
		return 10
	case h >= 3 && h < 6, h > 48 && h <= 60:
		return 6
	default:
		return 3
	}
}

func earlyTier(score float64) string {
	switch {
	case score >= 75:
		return TierHighPotential
	case score >= 60:
		return TierModeratePotential
	default:
		return TierSpeculative
	}
}
