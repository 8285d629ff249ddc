package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"dexpaper-trading-bot/config"
)

// PairLookupClient resolves a token to its best pair (highest USD
// liquidity) through a DexScreener-compatible API.
type PairLookupClient struct {
	http   *resty.Client
	guard  *feedGuard
	cache  *Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPairLookupClient creates the pair lookup client
func NewPairLookupClient(cfg config.MarketDataConfig, cache *Cache, logger zerolog.Logger) *PairLookupClient {
	return &PairLookupClient{
		http:   newHTTPClient(cfg.PairLookupBaseURL, cfg),
		guard:  newFeedGuard("pair_lookup", cfg.PairLookupRPS),
		cache:  cache,
		ttl:    cfg.CacheTTL,
		logger: logger.With().Str("component", "pair_lookup").Logger(),
	}
}

type pairDocument struct {
	SchemaVersion string        `json:"schemaVersion"`
	Pairs         []dexToolPair `json:"pairs"`
}

type dexToolPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"`
	Txns     struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H24 float64 `json:"h24"`
		H6  float64 `json:"h6"`
		H1  float64 `json:"h1"`
	} `json:"volume"`
	PriceChange struct {
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix ms
}

// BestPair returns the highest-liquidity pair of a token on a network, or
// nil when the token has no listed pair.
func (c *PairLookupClient) BestPair(ctx context.Context, network, tokenAddress string) (*Pair, error) {
	cacheKey := BestPairKey(network, tokenAddress)
	var cached Pair
	if c.cache.GetJSON(ctx, cacheKey, &cached) {
		if cached.PairAddress == "" {
			return nil, nil
		}
		return &cached, nil
	}

	var doc pairDocument
	err := c.guard.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&doc).
			Get(fmt.Sprintf("/latest/dex/tokens/%s", tokenAddress))
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		return nil, err
	}

	var best *dexToolPair
	for i := range doc.Pairs {
		p := &doc.Pairs[i]
		if p.ChainID != network {
			continue
		}
		if best == nil || p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}

	if best == nil {
		c.cache.SetJSON(ctx, cacheKey, Pair{}, c.ttl)
		return nil, nil
	}

	pair := normalizePair(best)
	c.cache.SetJSON(ctx, cacheKey, pair, c.ttl)

	c.logger.Debug().
		Str("network", network).
		Str("token", tokenAddress).
		Float64("liquidity_usd", pair.LiquidityUSD).
		Msg("best pair resolved")
	return &pair, nil
}

func normalizePair(p *dexToolPair) Pair {
	pair := Pair{
		Network:        p.ChainID,
		PairAddress:    p.PairAddress,
		TokenAddress:   p.BaseToken.Address,
		TokenSymbol:    p.BaseToken.Symbol,
		TokenName:      p.BaseToken.Name,
		PriceUSD:       parseFloat(p.PriceUsd),
		LiquidityUSD:   p.Liquidity.Usd,
		Volume24hUSD:   p.Volume.H24,
		Volume6hUSD:    p.Volume.H6,
		Volume1hUSD:    p.Volume.H1,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange24h: p.PriceChange.H24,
		Buys24h:        p.Txns.H24.Buys,
		Sells24h:       p.Txns.H24.Sells,
		FDVUSD:         p.Fdv,
	}
	if p.PairCreatedAt > 0 {
		pair.CreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}
	return pair
}
