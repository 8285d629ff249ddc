// Package engine sequences the trading pipeline: regime detection,
// discovery, smart-money synthesis, confluence scoring, risk gating,
// simulated fills, position management, outcome tracking and
// calibration. One cycle serves one user; the Manager fans users out.
package engine

import (
	"context"
	"math/rand"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/broker"
	"dexpaper-trading-bot/internal/calibration"
	"dexpaper-trading-bot/internal/confluence"
	"dexpaper-trading-bot/internal/detector"
	"dexpaper-trading-bot/internal/events"
	"dexpaper-trading-bot/internal/forecast"
	"dexpaper-trading-bot/internal/health"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/metrics"
	"dexpaper-trading-bot/internal/notification"
	"dexpaper-trading-bot/internal/outcomes"
	"dexpaper-trading-bot/internal/positions"
	"dexpaper-trading-bot/internal/regime"
	"dexpaper-trading-bot/internal/risk"
	"dexpaper-trading-bot/internal/smartmoney"
	"dexpaper-trading-bot/internal/storage"
)

// PairFetcher resolves a token to its best live pair. The same concrete
// client serves the health checker, broker, position manager and
// outcome tracker.
type PairFetcher interface {
	BestPair(ctx context.Context, network, tokenAddress string) (*marketdata.Pair, error)
}

// Deps holds the shared infrastructure one engine is built from. Feed
// clients and the store are process-wide; everything else is cheap and
// rebuilt per cycle so user cycles never share threshold state.
type Deps struct {
	Store     storage.Store
	PoolFeed  detector.PoolFeed
	Pairs     PairFetcher
	Holders   health.HolderFeed // optional
	Sentiment regime.SentimentFeed

	Config  config.Config
	Bus     *events.EventBus      // optional
	Notify  *notification.Manager // optional
	Metrics *metrics.Registry     // optional

	// RNG is shared by every engine built from these deps and rand.Rand is
	// not goroutine-safe: only set it when cycles run serially (tests).
	// When nil each engine seeds its own source from the clock.
	RNG *rand.Rand
	Now func() time.Time // optional, wall clock when nil
}

// Engine runs the per-user cycle. Build one per cycle via New; the
// calibrator retunes detector and confluence thresholds in place, so
// engines must not be shared across concurrent users.
type Engine struct {
	store storage.Store
	cfg   config.Config

	regimes    *regime.Detector
	momentum   *detector.MomentumDetector
	early      *detector.EarlyDetector
	wallets    *smartmoney.Simulator
	health     *health.Checker
	confluence *confluence.Engine
	gate       *risk.Gate
	broker     *broker.Broker
	positions  *positions.Manager
	outcomes   *outcomes.Tracker
	calibrator *calibration.Calibrator
	predictor  *forecast.Predictor

	bus     *events.EventBus
	notify  *notification.Manager
	metrics *metrics.Registry

	now func() time.Time
	log *logging.Logger

	pauseAnnounced bool
}

// New wires an engine from shared dependencies
func New(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	bus := deps.Bus
	if bus == nil {
		bus = newDefaultBus()
	}
	notify := deps.Notify
	if notify == nil {
		notify = newDisabledNotifier()
	}
	reg := deps.Metrics
	if reg == nil {
		reg = newDefaultMetrics()
	}

	cfg := deps.Config
	gate := risk.NewGate(cfg.RiskConfig, now)

	return &Engine{
		store:      deps.Store,
		cfg:        cfg,
		regimes:    regime.NewDetector(deps.Sentiment, now),
		momentum:   detector.NewMomentumDetector(deps.PoolFeed, cfg.EngineConfig.Networks, cfg.DetectorConfig.MinMomentumScore, now),
		early:      detector.NewEarlyDetector(deps.PoolFeed, cfg.EngineConfig.Networks, cfg.DetectorConfig.MinEarlyScore, now),
		wallets:    smartmoney.NewSimulator(deps.Store, nil, now),
		health:     health.NewChecker(deps.Pairs, deps.Holders, deps.Store, now),
		confluence: confluence.NewEngine(deps.Store, cfg.ConfluenceConfig.CoreMinConfidence, cfg.ConfluenceConfig.SatelliteMinConfidence, now),
		gate:       gate,
		broker:     broker.New(deps.Store, deps.Pairs, gate, deps.RNG, now),
		positions:  positions.NewManager(deps.Store, deps.Pairs, cfg.PositionConfig, now),
		outcomes:   outcomes.NewTracker(deps.Store, deps.Pairs, now),
		calibrator: calibration.NewCalibrator(deps.Store, cfg.DetectorConfig, cfg.ConfluenceConfig, now),
		predictor:  forecast.NewPredictor(cfg.MonteCarloConfig.Simulations, cfg.MonteCarloConfig.TradesPerDay, deps.RNG),
		bus:        bus,
		notify:     notify,
		metrics:    reg,
		now:        now,
		log:        logging.WithComponent("engine"),
	}
}

func newDefaultBus() *events.EventBus {
	return events.NewEventBus()
}

// newDisabledNotifier builds a manager with no channels configured, so
// every send is a silent no-op.
func newDisabledNotifier() *notification.Manager {
	return notification.NewManager(config.NotificationConfig{})
}

func newDefaultMetrics() *metrics.Registry {
	return metrics.NewRegistry()
}
