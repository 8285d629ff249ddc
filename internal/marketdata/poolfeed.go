package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"dexpaper-trading-bot/config"
)

// PoolFeedClient reads trending and new pools per network from a
// GeckoTerminal-compatible API. Responses are JSON:API documents with
// string-encoded numerics.
type PoolFeedClient struct {
	http   *resty.Client
	guard  *feedGuard
	cache  *Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPoolFeedClient creates the pool feed client
func NewPoolFeedClient(cfg config.MarketDataConfig, cache *Cache, logger zerolog.Logger) *PoolFeedClient {
	return &PoolFeedClient{
		http:   newHTTPClient(cfg.PoolFeedBaseURL, cfg),
		guard:  newFeedGuard("pool_feed", cfg.PoolFeedRPS),
		cache:  cache,
		ttl:    cfg.CacheTTL,
		logger: logger.With().Str("component", "pool_feed").Logger(),
	}
}

// poolDocument is the JSON:API envelope of the pool endpoints
type poolDocument struct {
	Data []poolResource `json:"data"`
}

type poolResource struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes poolAttributes `json:"attributes"`
	Relations  poolRelations  `json:"relationships"`
}

type poolAttributes struct {
	Name              string             `json:"name"`
	Address           string             `json:"address"`
	BaseTokenPriceUSD string             `json:"base_token_price_usd"`
	PoolCreatedAt     string             `json:"pool_created_at"`
	ReserveInUSD      string             `json:"reserve_in_usd"`
	FDVUSD            *string            `json:"fdv_usd"`
	MarketCapUSD      *string            `json:"market_cap_usd"`
	Transactions      map[string]poolTx  `json:"transactions"`
	VolumeUSD         map[string]string  `json:"volume_usd"`
	PriceChangePct    map[string]string  `json:"price_change_percentage"`
}

type poolTx struct {
	Buys    int `json:"buys"`
	Sells   int `json:"sells"`
	Buyers  int `json:"buyers"`
	Sellers int `json:"sellers"`
}

type poolRelations struct {
	BaseToken struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"base_token"`
}

// TrendingPools fetches the trending pools of every requested network.
// Failed networks land in the result's error map; the scan continues.
func (c *PoolFeedClient) TrendingPools(ctx context.Context, networks []string) (*PoolFeedResult, error) {
	return c.fetchPools(ctx, networks, "trending_pools", TrendingPoolsKey)
}

// NewPools fetches the newest pools of every requested network
func (c *PoolFeedClient) NewPools(ctx context.Context, networks []string) (*PoolFeedResult, error) {
	return c.fetchPools(ctx, networks, "new_pools", NewPoolsKey)
}

func (c *PoolFeedClient) fetchPools(ctx context.Context, networks []string, endpoint string, cacheKey func(string) string) (*PoolFeedResult, error) {
	result := &PoolFeedResult{Errors: make(map[string]error)}

	// The guard serialises requests anyway, so walk networks in order to
	// keep pool ordering stable across runs.
	for _, network := range networks {
		pools, err := c.fetchNetworkPools(ctx, network, endpoint, cacheKey(network))
		if err != nil {
			c.logger.Warn().Str("network", network).Err(err).Msg("pool fetch failed")
			result.Errors[network] = err
		} else {
			result.Pools = append(result.Pools, pools...)
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	if len(result.Pools) == 0 && len(result.Errors) == len(networks) && len(networks) > 0 {
		return result, fmt.Errorf("%w: all networks failed", ErrFeedUnavailable)
	}
	return result, nil
}

func (c *PoolFeedClient) fetchNetworkPools(ctx context.Context, network, endpoint, cacheKey string) ([]Pool, error) {
	var cached []Pool
	if c.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var doc poolDocument
	err := c.guard.do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&doc).
			Get(fmt.Sprintf("/networks/%s/%s", network, endpoint))
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		return nil, err
	}

	pools := make([]Pool, 0, len(doc.Data))
	for _, res := range doc.Data {
		pools = append(pools, normalizePool(network, res))
	}
	c.cache.SetJSON(ctx, cacheKey, pools, c.ttl)

	c.logger.Debug().Str("network", network).Str("endpoint", endpoint).Int("pools", len(pools)).Msg("pools fetched")
	return pools, nil
}

func normalizePool(network string, res poolResource) Pool {
	attrs := res.Attributes
	pool := Pool{
		Network:      network,
		Address:      attrs.Address,
		Name:         attrs.Name,
		TokenAddress: tokenAddressFromID(res.Relations.BaseToken.Data.ID),
		TokenSymbol:  baseSymbolFromName(attrs.Name),
		PriceUSD:     parseFloat(attrs.BaseTokenPriceUSD),
		ReserveUSD:   parseFloat(attrs.ReserveInUSD),
		FDVUSD:       parseFloatPtr(attrs.FDVUSD),
		MarketCapUSD: parseFloatPtr(attrs.MarketCapUSD),
	}

	if attrs.PoolCreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, attrs.PoolCreatedAt); err == nil {
			pool.CreatedAt = t.UTC()
		}
	}

	pool.TxM5 = TxWindow(attrs.Transactions["m5"])
	pool.TxH1 = TxWindow(attrs.Transactions["h1"])
	pool.TxH6 = TxWindow(attrs.Transactions["h6"])
	pool.TxH24 = TxWindow(attrs.Transactions["h24"])

	pool.VolumeM5USD = parseFloat(attrs.VolumeUSD["m5"])
	pool.VolumeH1USD = parseFloat(attrs.VolumeUSD["h1"])
	pool.VolumeH6USD = parseFloat(attrs.VolumeUSD["h6"])
	pool.VolumeH24USD = parseFloat(attrs.VolumeUSD["h24"])

	pool.PriceChangeM5 = parseFloat(attrs.PriceChangePct["m5"])
	pool.PriceChangeH1 = parseFloat(attrs.PriceChangePct["h1"])
	pool.PriceChangeH6 = parseFloat(attrs.PriceChangePct["h6"])
	pool.PriceChangeH24 = parseFloat(attrs.PriceChangePct["h24"])

	return pool
}

// tokenAddressFromID strips the network prefix from a token resource ID
// like "base_0xabc...".
func tokenAddressFromID(id string) string {
	if idx := strings.Index(id, "_"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// baseSymbolFromName extracts the base symbol from a pool name like
// "WIF / SOL".
func baseSymbolFromName(name string) string {
	if idx := strings.Index(name, " / "); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	return strings.TrimSpace(name)
}
