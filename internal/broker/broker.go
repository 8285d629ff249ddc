// Package broker fills orders against a simulated venue. A fill walks the
// full friction pipeline: gate check, live quote, stress roll, latency,
// micro-volatility, AMM slippage, MEV competition and spread, then lands as
// an open trade with every raw factor preserved in the metadata bag.
package broker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/internal/friction"
	"dexpaper-trading-bot/internal/health"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/risk"
	"dexpaper-trading-bot/internal/storage"
)

// Simulated latency window per order, milliseconds
const (
	minLatencyMs = 100
	maxLatencyMs = 1000
)

const ammFeeRate = 0.003

// gasRange is the per-network uniform gas draw in USD
type gasRange struct {
	min float64
	max float64
}

var gasTable = map[string]gasRange{
	"ethereum":  {3, 25},
	"bsc":       {0.1, 0.8},
	"polygon":   {0.01, 0.1},
	"arbitrum":  {0.05, 0.3},
	"base":      {0.01, 0.15},
	"avalanche": {0.05, 0.5},
	"solana":    {0.005, 0.05},
}

var defaultGasRange = gasRange{0.5, 5}

// PairFetcher resolves a token to its best live pair
type PairFetcher interface {
	BestPair(ctx context.Context, network, tokenAddress string) (*marketdata.Pair, error)
}

// GateChecker is the risk gate surface the broker needs
type GateChecker interface {
	Evaluate(state *storage.RiskState, layer string) risk.Decision
}

// Order is one fill request from the orchestrator
type Order struct {
	UserID       string
	TokenAddress string
	Network      string
	Symbol       string
	Side         string
	Layer        string
	PositionUSD  float64
	Confidence   float64
	SignalSource string
	EntryReason  string
}

// Result is the outcome of one Execute call. Rejections carry a reason and
// a nil trade; fills carry the persisted open trade.
type Result struct {
	Executed bool
	Reason   string
	Trade    *storage.Trade
	Stress   *friction.StressEvent
}

// Broker simulates fills and persists the resulting open trades
type Broker struct {
	store storage.Store
	pairs PairFetcher
	gate  GateChecker
	rng   *rand.Rand
	now   func() time.Time
	log   *logging.Logger
}

// New creates a broker. rng and now are injectable for tests; nil falls
// back to a time-seeded source and the wall clock.
func New(store storage.Store, pairs PairFetcher, gate GateChecker, rng *rand.Rand, now func() time.Time) *Broker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Broker{
		store: store,
		pairs: pairs,
		gate:  gate,
		rng:   rng,
		now:   now,
		log:   logging.WithComponent("broker"),
	}
}

// Execute runs one order through the fill pipeline. A rejection returns
// Executed=false with the reason; only a persistence failure is an error.
func (b *Broker) Execute(ctx context.Context, state *storage.RiskState, order Order) (*Result, error) {
	log := logging.TradeContext(order.Symbol, order.Network, order.Layer, order.PositionUSD)

	decision := b.gate.Evaluate(state, order.Layer)
	if !decision.Allowed {
		log.Info("order rejected by gate", "reason", decision.Reason)
		return &Result{Reason: decision.Reason}, nil
	}

	positionUSD := order.PositionUSD
	if positionUSD > decision.MaxPositionUSD {
		positionUSD = decision.MaxPositionUSD
	}
	if positionUSD <= 0 {
		return &Result{Reason: "position size zero after gate clamp"}, nil
	}

	pair, err := b.pairs.BestPair(ctx, order.Network, order.TokenAddress)
	if err != nil {
		log.Warn("quote fetch failed", "error", err)
		return &Result{Reason: fmt.Sprintf("quote unavailable: %v", err)}, nil
	}
	if pair == nil || pair.PriceUSD <= 0 {
		return &Result{Reason: "quote price is zero"}, nil
	}

	quotePrice := pair.PriceUSD
	liquidity := pair.LiquidityUSD

	// Tail events hit the quote before any of the friction models see it.
	stress := friction.RollStressEvent(friction.StressInput{
		PoolLiquidityUSD: liquidity,
		PairAge:          b.now().Sub(pair.CreatedAt),
		Layer:            order.Layer,
	}, b.rng)
	if stress != nil {
		liquidity *= 1 - stress.LiquidityImpact
		quotePrice *= 1 + stress.PriceImpact
		log.Warn("stress event on fill",
			"kind", stress.Kind, "severity", stress.Severity, "price_impact", stress.PriceImpact)
		if quotePrice <= 0 {
			return &Result{Reason: "stress event wiped the quote", Stress: stress}, nil
		}
	}

	latencyMs := minLatencyMs + b.rng.Intn(maxLatencyMs-minLatencyMs+1)

	noised := friction.ApplyMicroVolatility(quotePrice, latencyMs, 0, pair.PriceChange1h, b.rng)

	slip := friction.ComputeSlippage(friction.SlippageInput{
		SizeUSD:          positionUSD,
		PoolLiquidityUSD: liquidity,
		CurrentPrice:     noised.AdjustedPrice,
		Side:             order.Side,
		FeeRate:          ammFeeRate,
	}, b.rng)

	competition := friction.SimulateCompetition(friction.CompetitionInput{
		Network:          order.Network,
		PositionUSD:      positionUSD,
		PoolLiquidityUSD: liquidity,
		Volume24hUSD:     pair.Volume24hUSD,
	}, b.rng)

	totalSlippage := slip.SlippagePct + competition.ExtraSlippagePct
	spreadPct := health.EstimateSpread(liquidity, pair.Volume24hUSD)
	halfSpread := spreadPct / 200

	direction := 1.0
	if order.Side == storage.SideSell {
		direction = -1
	}
	entryPrice := noised.AdjustedPrice * (1 + direction*(totalSlippage+halfSpread))
	if entryPrice <= 0 {
		return &Result{Reason: "entry price collapsed under friction", Stress: stress}, nil
	}

	gas := b.drawGas(order.Network)
	enteredAt := b.now().UTC()

	trade := &storage.Trade{
		ID:                uuid.NewString(),
		UserID:            order.UserID,
		Symbol:            order.Symbol,
		TokenAddress:      order.TokenAddress,
		Network:           order.Network,
		Side:              order.Side,
		Status:            storage.StatusOpen,
		Layer:             order.Layer,
		Quantity:          positionUSD / entryPrice,
		EntryPrice:        entryPrice,
		FeesAbs:           gas,
		SlippageSimulated: totalSlippage,
		GasSimulated:      gas,
		LatencyMs:         latencyMs,
		EntryReason:       order.EntryReason,
		EnteredAt:         enteredAt,
		Metadata: map[string]interface{}{
			"confidence":               order.Confidence,
			"signal_source":            order.SignalSource,
			"quote_price":              pair.PriceUSD,
			"noised_price":             noised.AdjustedPrice,
			"micro_vol_noise_pct":      noised.NoisePct,
			"amm_slippage_pct":         slip.SlippagePct,
			"competition_slippage_pct": competition.ExtraSlippagePct,
			"frontrun":                 competition.FrontrunOccurred,
			"backrun":                  competition.BackrunOccurred,
			"spread_pct":               spreadPct,
			"entry_liquidity_usd":      liquidity,
			"entry_volume_24h":         pair.Volume24hUSD,
			"highest_price":            entryPrice,
			"position_usd":             positionUSD,
			"size_multiplier":          decision.Multiplier,
		},
	}
	if stress != nil {
		trade.Metadata["stress_event"] = stress.Kind
		trade.Metadata["stress_severity"] = stress.Severity
		trade.Metadata["stress_price_impact"] = stress.PriceImpact
		trade.Metadata["stress_liquidity_impact"] = stress.LiquidityImpact
	}

	if err := b.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	log.Info("order filled",
		"trade_id", trade.ID, "entry_price", entryPrice, "quantity", trade.Quantity,
		"slippage_pct", totalSlippage, "gas_usd", gas, "latency_ms", latencyMs)

	return &Result{Executed: true, Trade: trade, Stress: stress}, nil
}

// drawGas samples the per-network gas cost in USD
func (b *Broker) drawGas(network string) float64 {
	r, ok := gasTable[network]
	if !ok {
		r = defaultGasRange
	}
	return r.min + b.rng.Float64()*(r.max-r.min)
}
