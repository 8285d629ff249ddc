// Package health scores a token's tradability from its best pair: depth,
// turnover, spread, holder concentration and a set of risk flags. The
// confluence engine folds the score into every signal it evaluates.
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/storage"
)

// Risk flags raised during a check
const (
	FlagLowLiquidity = "low_liquidity"
	FlagLowVolume    = "low_volume"
	FlagZeroPrice    = "zero_price"
	FlagVeryNewPair  = "very_new_pair"
	FlagNoSells24h   = "no_sells_24h"
	FlagNoBuys24h    = "no_buys_24h"
)

// Flag thresholds
const (
	lowLiquidityUSD = 50_000
	lowVolumeUSD    = 10_000

	// Spread estimate bounds, percent
	minSpreadPct = 0.05
	maxSpreadPct = 10
)

// Report is the result of one health check
type Report struct {
	TokenAddress  string
	Network       string
	Symbol        string
	Score         float64
	LiquidityUSD  float64
	Volume24hUSD  float64
	PriceUSD      float64
	SpreadPct     float64
	Concentration *float64 // top-10 holder share, percent; nil when no holder feed
	RiskFlags     []string
	Pair          *marketdata.Pair
	CheckedAt     time.Time
}

// HasFlag reports whether the check raised the given flag
func (r *Report) HasFlag(flag string) bool {
	for _, f := range r.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// PairFeed is the slice of the pair lookup client the checker needs
type PairFeed interface {
	BestPair(ctx context.Context, network, tokenAddress string) (*marketdata.Pair, error)
}

// HolderFeed optionally provides top-10 holder concentration. A nil feed
// leaves concentration unknown, which is scored neutrally.
type HolderFeed interface {
	TopHolderConcentration(ctx context.Context, network, tokenAddress string) (float64, error)
}

// Checker runs per-token health checks and persists the snapshots
type Checker struct {
	pairs   PairFeed
	holders HolderFeed
	store   storage.Store
	now     func() time.Time
	log     *logging.Logger
}

// NewChecker creates a health checker. holders may be nil.
func NewChecker(pairs PairFeed, holders HolderFeed, store storage.Store, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{
		pairs:   pairs,
		holders: holders,
		store:   store,
		now:     now,
		log:     logging.WithComponent("health"),
	}
}

// Check fetches the token's best pair and scores it. The snapshot write and
// the token registry upsert are best-effort; their failure does not fail
// the check.
func (c *Checker) Check(ctx context.Context, network, tokenAddress string) (*Report, error) {
	pair, err := c.pairs.BestPair(ctx, network, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("health: best pair lookup for %s on %s: %w", tokenAddress, network, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("health: no pair listed for %s on %s", tokenAddress, network)
	}

	now := c.now().UTC()
	report := c.scorePair(ctx, pair, now)

	c.persist(ctx, report, pair)
	return report, nil
}

// ScorePair scores an already-fetched pair without hitting the feed. Used
// when the caller holds fresh pair data from discovery.
func (c *Checker) ScorePair(ctx context.Context, pair *marketdata.Pair) *Report {
	report := c.scorePair(ctx, pair, c.now().UTC())
	c.persist(ctx, report, pair)
	return report
}

func (c *Checker) scorePair(ctx context.Context, pair *marketdata.Pair, now time.Time) *Report {
	report := &Report{
		TokenAddress: pair.TokenAddress,
		Network:      pair.Network,
		Symbol:       pair.TokenSymbol,
		LiquidityUSD: pair.LiquidityUSD,
		Volume24hUSD: pair.Volume24hUSD,
		PriceUSD:     pair.PriceUSD,
		Pair:         pair,
		CheckedAt:    now,
	}

	report.SpreadPct = EstimateSpread(pair.LiquidityUSD, pair.Volume24hUSD)

	if c.holders != nil {
		if conc, err := c.holders.TopHolderConcentration(ctx, pair.Network, pair.TokenAddress); err == nil {
			report.Concentration = &conc
		} else {
			c.log.Debug("holder lookup failed", "token", pair.TokenAddress, "error", err)
		}
	}

	var age time.Duration
	if !pair.CreatedAt.IsZero() {
		age = now.Sub(pair.CreatedAt)
	}

	report.RiskFlags = collectFlags(pair, age)
	report.Score = score(report, age)
	return report
}

func collectFlags(pair *marketdata.Pair, age time.Duration) []string {
	var flags []string
	if pair.LiquidityUSD < lowLiquidityUSD {
		flags = append(flags, FlagLowLiquidity)
	}
	if pair.Volume24hUSD < lowVolumeUSD {
		flags = append(flags, FlagLowVolume)
	}
	if pair.PriceUSD <= 0 {
		flags = append(flags, FlagZeroPrice)
	}
	if age > 0 && age < 24*time.Hour {
		flags = append(flags, FlagVeryNewPair)
	}
	if pair.Sells24h == 0 {
		flags = append(flags, FlagNoSells24h)
	}
	if pair.Buys24h == 0 {
		flags = append(flags, FlagNoBuys24h)
	}
	return flags
}

// EstimateSpread derives an effective spread percentage from pool depth.
// Deeper pools trade tighter; active volume tightens the estimate further.
func EstimateSpread(liquidityUSD, volume24hUSD float64) float64 {
	if liquidityUSD <= 0 {
		return maxSpreadPct
	}
	volumeAdjust := 1.1
	if volume24hUSD > 0 {
		volumeAdjust = 0.9
	}
	spread := 1 / math.Sqrt(liquidityUSD/1000) * volumeAdjust
	return clamp(spread, minSpreadPct, maxSpreadPct)
}

// score applies the banded adjustments to the base of 50 and clamps the
// result to [0, 100].
func score(r *Report, age time.Duration) float64 {
	s := 50.0

	switch {
	case r.LiquidityUSD >= 1_000_000:
		s += 15
	case r.LiquidityUSD >= 250_000:
		s += 10
	case r.LiquidityUSD >= 50_000:
		s += 5
	case r.LiquidityUSD >= 25_000:
		// thin but tradable
	default:
		s -= 10
	}

	switch {
	case r.Volume24hUSD >= 500_000:
		s += 10
	case r.Volume24hUSD >= 100_000:
		s += 7
	case r.Volume24hUSD >= 10_000:
		s += 3
	default:
		s -= 8
	}

	switch {
	case r.SpreadPct <= 0.3:
		s += 10
	case r.SpreadPct <= 1:
		s += 5
	case r.SpreadPct <= 3:
		// acceptable
	default:
		s -= 8
	}

	if r.Concentration != nil {
		switch conc := *r.Concentration; {
		case conc <= 20:
			s += 8
		case conc <= 40:
			s += 3
		case conc <= 60:
			s -= 5
		default:
			s -= 12
		}
	}

	switch n := len(r.RiskFlags); {
	case n == 0:
		s += 5
	case n == 1:
		s -= 5
	case n == 2:
		s -= 12
	default:
		s -= 20
	}

	switch {
	case age >= 30*24*time.Hour:
		s += 7
	case age >= 7*24*time.Hour:
		s += 4
	case age >= 24*time.Hour:
		// settled in
	default:
		s -= 8
	}

	return clamp(s, 0, 100)
}

func (c *Checker) persist(ctx context.Context, report *Report, pair *marketdata.Pair) {
	snap := &storage.TokenHealthSnapshot{
		ID:            uuid.New().String(),
		TokenAddress:  report.TokenAddress,
		Network:       report.Network,
		Score:         report.Score,
		LiquidityUSD:  report.LiquidityUSD,
		Volume24hUSD:  report.Volume24hUSD,
		PriceUSD:      report.PriceUSD,
		SpreadPct:     report.SpreadPct,
		Concentration: report.Concentration,
		RiskFlags:     report.RiskFlags,
		CheckedAt:     report.CheckedAt,
	}
	if err := c.store.InsertHealthSnapshot(ctx, snap); err != nil {
		c.log.Warn("health snapshot write failed", "token", report.TokenAddress, "error", err)
	}

	token := &storage.Token{
		Address:   report.TokenAddress,
		Network:   report.Network,
		Symbol:    report.Symbol,
		Name:      pair.TokenName,
		FirstSeen: report.CheckedAt,
		UpdatedAt: report.CheckedAt,
	}
	if err := c.store.UpsertToken(ctx, token); err != nil {
		c.log.Warn("token registry upsert failed", "token", report.TokenAddress, "error", err)
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
