// Package regime classifies the overall market state from the fear & greed
// index and BTC dominance. The classification gates how aggressively the
// confluence engine scores signals in the current cycle.
package regime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/storage"
)

// Market regimes
const (
	RiskOn  = "risk_on"
	RiskOff = "risk_off"
	Neutral = "neutral"
)

// Snapshot is one cycle's regime reading
type Snapshot struct {
	Regime         string
	SentimentScore float64
	Classification string
	BTCDominance   float64
	TotalVolumeUSD float64
	DetectedAt     time.Time
}

// SentimentFeed is the slice of the sentiment client the detector needs
type SentimentFeed interface {
	FearGreed(ctx context.Context) marketdata.FearGreed
	GlobalMarket(ctx context.Context) marketdata.GlobalMarket
}

// Detector reads the sentiment feeds and classifies the regime
type Detector struct {
	feed SentimentFeed
	now  func() time.Time
}

// NewDetector creates a regime detector
func NewDetector(feed SentimentFeed, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{feed: feed, now: now}
}

// Detect reads the feeds and classifies the current regime. The sentiment
// client falls back to neutral values on feed failure, so Detect always
// returns a usable snapshot.
func (d *Detector) Detect(ctx context.Context) *Snapshot {
	fg := d.feed.FearGreed(ctx)
	gm := d.feed.GlobalMarket(ctx)

	return &Snapshot{
		Regime:         Classify(fg.Value, gm.BTCDominance),
		SentimentScore: fg.Value,
		Classification: fg.Classification,
		BTCDominance:   gm.BTCDominance,
		TotalVolumeUSD: gm.TotalVolumeUSD,
		DetectedAt:     d.now().UTC(),
	}
}

// Classify maps sentiment (0-100) and BTC dominance (percent) to a regime.
// Deep fear is risk-off on its own; greed only counts as risk-on while
// dominance shows capital rotating beyond BTC.
func Classify(sentiment, btcDominance float64) string {
	switch {
	case sentiment <= 30:
		return RiskOff
	case sentiment <= 42 && btcDominance >= 58:
		return RiskOff
	case sentiment >= 65 && btcDominance <= 55:
		return RiskOn
	case sentiment >= 55 && btcDominance <= 48:
		return RiskOn
	default:
		return Neutral
	}
}

// ToRecord converts a snapshot into its storage row
func (s *Snapshot) ToRecord() *storage.RegimeSnapshot {
	return &storage.RegimeSnapshot{
		ID:             uuid.New().String(),
		Regime:         s.Regime,
		SentimentScore: s.SentimentScore,
		BTCDominance:   s.BTCDominance,
		CreatedAt:      s.DetectedAt,
		Metadata: map[string]interface{}{
			"classification":   s.Classification,
			"total_volume_usd": s.TotalVolumeUSD,
		},
	}
}
