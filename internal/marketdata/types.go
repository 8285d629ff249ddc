// Package marketdata provides the external feed clients the cycle engine
// discovers candidates through: a trending/new pool feed, a per-token best
// pair lookup and a global sentiment feed. All clients degrade gracefully;
// a feed failure means "no data this cycle", never a crash.
package marketdata

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when a feed answered 429 after retries.
	ErrRateLimited = errors.New("marketdata: rate limited")
	// ErrFeedUnavailable is returned when a feed could not be reached or
	// its circuit breaker is open.
	ErrFeedUnavailable = errors.New("marketdata: feed unavailable")
)

// TxWindow holds transaction counts for one time window
type TxWindow struct {
	Buys    int `json:"buys"`
	Sells   int `json:"sells"`
	Buyers  int `json:"buyers"`
	Sellers int `json:"sellers"`
}

// Pool is a normalized pool record from the trending or new-pool feed
type Pool struct {
	Network      string    `json:"network"`
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	TokenAddress string    `json:"token_address"`
	TokenSymbol  string    `json:"token_symbol"`
	PriceUSD     float64   `json:"price_usd"`
	ReserveUSD   float64   `json:"reserve_usd"`
	FDVUSD       float64   `json:"fdv_usd"`
	MarketCapUSD float64   `json:"market_cap_usd"`
	CreatedAt    time.Time `json:"created_at"`

	TxM5  TxWindow `json:"tx_m5"`
	TxH1  TxWindow `json:"tx_h1"`
	TxH6  TxWindow `json:"tx_h6"`
	TxH24 TxWindow `json:"tx_h24"`

	VolumeM5USD  float64 `json:"volume_m5_usd"`
	VolumeH1USD  float64 `json:"volume_h1_usd"`
	VolumeH6USD  float64 `json:"volume_h6_usd"`
	VolumeH24USD float64 `json:"volume_h24_usd"`

	PriceChangeM5  float64 `json:"price_change_m5"`
	PriceChangeH1  float64 `json:"price_change_h1"`
	PriceChangeH6  float64 `json:"price_change_h6"`
	PriceChangeH24 float64 `json:"price_change_h24"`
}

// Age returns the pool age relative to now
func (p *Pool) Age(now time.Time) time.Duration {
	if p.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(p.CreatedAt)
}

// BuyPressure24h is h24 buys over sells, 5 when there are buys but no sells
func (p *Pool) BuyPressure24h() float64 {
	if p.TxH24.Sells == 0 {
		if p.TxH24.Buys == 0 {
			return 0
		}
		return 5
	}
	return float64(p.TxH24.Buys) / float64(p.TxH24.Sells)
}

// BuyerSellerRatio24h is unique buyers over unique sellers for h24.
// The second return is false when the feed carried no wallet uniques.
func (p *Pool) BuyerSellerRatio24h() (float64, bool) {
	if p.TxH24.Buyers == 0 && p.TxH24.Sellers == 0 {
		return 0, false
	}
	if p.TxH24.Sellers == 0 {
		return 5, true
	}
	return float64(p.TxH24.Buyers) / float64(p.TxH24.Sellers), true
}

// PoolFeedResult carries the pools of all queried networks plus the
// networks that failed. A partially failed scan is still usable.
type PoolFeedResult struct {
	Pools  []Pool
	Errors map[string]error
}

// Pair is a normalized best-pair record from the per-token lookup
type Pair struct {
	Network        string    `json:"network"`
	PairAddress    string    `json:"pair_address"`
	TokenAddress   string    `json:"token_address"`
	TokenSymbol    string    `json:"token_symbol"`
	TokenName      string    `json:"token_name"`
	PriceUSD       float64   `json:"price_usd"`
	LiquidityUSD   float64   `json:"liquidity_usd"`
	Volume24hUSD   float64   `json:"volume_24h_usd"`
	Volume6hUSD    float64   `json:"volume_6h_usd"`
	Volume1hUSD    float64   `json:"volume_1h_usd"`
	PriceChange1h  float64   `json:"price_change_1h"`
	PriceChange24h float64   `json:"price_change_24h"`
	Buys24h        int       `json:"buys_24h"`
	Sells24h       int       `json:"sells_24h"`
	FDVUSD         float64   `json:"fdv_usd"`
	CreatedAt      time.Time `json:"created_at"`
}

// FearGreed is the sentiment feed reading
type FearGreed struct {
	Value          float64 `json:"value"`
	Classification string  `json:"classification"`
}

// GlobalMarket is the global market feed reading
type GlobalMarket struct {
	BTCDominance   float64 `json:"btc_dominance"`
	TotalVolumeUSD float64 `json:"total_volume_usd"`
}
