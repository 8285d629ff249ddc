package marketdata

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"dexpaper-trading-bot/config"
)

// SentimentClient reads the fear & greed index and the global market stats
// the regime detector consumes. Both calls fall back to neutral values when
// the feeds are down; sentiment must never block a cycle.
type SentimentClient struct {
	fngHTTP    *resty.Client
	globalHTTP *resty.Client
	guard      *feedGuard
	cache      *Cache
	ttl        time.Duration
	logger     zerolog.Logger
}

// NewSentimentClient creates the sentiment client
func NewSentimentClient(cfg config.MarketDataConfig, cache *Cache, logger zerolog.Logger) *SentimentClient {
	return &SentimentClient{
		fngHTTP:    newHTTPClient(cfg.SentimentBaseURL, cfg),
		globalHTTP: newHTTPClient(cfg.GlobalMarketBaseURL, cfg),
		guard:      newFeedGuard("sentiment", cfg.SentimentRPS),
		cache:      cache,
		ttl:        cfg.CacheTTL,
		logger:     logger.With().Str("component", "sentiment").Logger(),
	}
}

type fearGreedDocument struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

type globalMarketDocument struct {
	Data struct {
		TotalVolume         map[string]float64 `json:"total_volume"`
		MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
	} `json:"data"`
}

// FearGreed returns the current index value. Falls back to 50/Neutral.
func (c *SentimentClient) FearGreed(ctx context.Context) FearGreed {
	fallback := FearGreed{Value: 50, Classification: "Neutral"}

	var cached FearGreed
	if c.cache.GetJSON(ctx, FearGreedKey(), &cached) {
		return cached
	}

	var doc fearGreedDocument
	err := c.guard.do(ctx, func() error {
		resp, err := c.fngHTTP.R().
			SetContext(ctx).
			SetQueryParam("limit", "1").
			SetResult(&doc).
			Get("/fng/")
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil || len(doc.Data) == 0 {
		c.logger.Warn().Err(err).Msg("fear & greed unavailable, using neutral fallback")
		return fallback
	}

	out := FearGreed{
		Value:          parseFloat(doc.Data[0].Value),
		Classification: doc.Data[0].Classification,
	}
	c.cache.SetJSON(ctx, FearGreedKey(), out, c.ttl)
	return out
}

// GlobalMarket returns BTC dominance and total volume. Falls back to 50/0.
func (c *SentimentClient) GlobalMarket(ctx context.Context) GlobalMarket {
	fallback := GlobalMarket{BTCDominance: 50, TotalVolumeUSD: 0}

	var cached GlobalMarket
	if c.cache.GetJSON(ctx, GlobalMarketKey(), &cached) {
		return cached
	}

	var doc globalMarketDocument
	err := c.guard.do(ctx, func() error {
		resp, err := c.globalHTTP.R().
			SetContext(ctx).
			SetResult(&doc).
			Get("/global")
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("global market unavailable, using neutral fallback")
		return fallback
	}

	out := GlobalMarket{
		BTCDominance:   doc.Data.MarketCapPercentage["btc"],
		TotalVolumeUSD: doc.Data.TotalVolume["usd"],
	}
	if out.BTCDominance == 0 {
		out.BTCDominance = fallback.BTCDominance
	}
	c.cache.SetJSON(ctx, GlobalMarketKey(), out, c.ttl)
	return out
}
