// Package confluence folds independent evidence — detector score, smart-money
// buying, token health, market regime — into a single 0-100 confidence and
// routes accepted signals to a risk layer.
package confluence

import (
	"context"
	"fmt"
	"math"
	"time"

	"dexpaper-trading-bot/internal/detector"
	"dexpaper-trading-bot/internal/health"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/regime"
	"dexpaper-trading-bot/internal/storage"
)

// Default layer routing thresholds, overridden per cycle by the calibrator
const (
	DefaultCoreMinConfidence      = 75
	DefaultSatelliteMinConfidence = 50

	// early signals promote to core only this high, and only with wallets
	earlyCorePromotionConfidence = 85
)

// Wallet confluence rules
const (
	walletLookback    = 6 * time.Hour
	walletMinScore    = 70
	walletMinCount    = 3
	walletPointsMom   = 25
	walletPointsEarly = 30
	walletEarlyBoost  = 1.5
)

// Points is the per-component breakdown behind a confidence value
type Points struct {
	Detector float64
	Wallets  float64
	Health   float64
	Organic  float64
	Regime   float64
}

// WalletConfluence summarises the smart-money buyers behind a signal
type WalletConfluence struct {
	Count     int
	AvgScore  float64
	TotalUSD  float64
	WalletIDs []string
}

// Order is the buy intent attached to an accepted evaluation
type Order struct {
	Side              string
	TokenAddress      string
	Network           string
	Symbol            string
	ReferencePriceUSD float64
}

// Evaluation is the full result of scoring one signal. Rejected signals
// carry a RejectReason and no layer; both shapes are recorded as outcomes.
type Evaluation struct {
	TokenAddress string
	Network      string
	Symbol       string
	Source       string
	Confidence   float64
	Layer        string
	Accepted     bool
	RejectReason string
	Reasons      []string
	Sources      []string
	Points       Points
	Wallets      *WalletConfluence
	Order        *Order
}

// Engine scores signals against the market context
type Engine struct {
	store   storage.Store
	coreMin float64
	satMin  float64
	now     func() time.Time
	log     *logging.Logger
}

// NewEngine creates a confluence engine with the given routing thresholds.
// Non-positive thresholds fall back to the defaults.
func NewEngine(store storage.Store, coreMin, satMin float64, now func() time.Time) *Engine {
	if coreMin <= 0 {
		coreMin = DefaultCoreMinConfidence
	}
	if satMin <= 0 {
		satMin = DefaultSatelliteMinConfidence
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   store,
		coreMin: coreMin,
		satMin:  satMin,
		now:     now,
		log:     logging.WithComponent("confluence"),
	}
}

// SetThresholds applies the calibrator's routing thresholds for this cycle
func (e *Engine) SetThresholds(coreMin, satMin float64) {
	if coreMin > 0 {
		e.coreMin = coreMin
	}
	if satMin > 0 {
		e.satMin = satMin
	}
}

// Thresholds returns the active (core, satellite) routing thresholds
func (e *Engine) Thresholds() (float64, float64) {
	return e.coreMin, e.satMin
}

// Evaluate scores a momentum signal. Components: detector ≤40, wallet
// confluence ≤25, health ±20 with −5 per risk flag, regime +15/+5/−8.
func (e *Engine) Evaluate(ctx context.Context, sig detector.MomentumSignal, report *health.Report, marketRegime string) *Evaluation {
	ev := &Evaluation{
		TokenAddress: sig.Pool.TokenAddress,
		Network:      sig.Pool.Network,
		Symbol:       sig.Pool.TokenSymbol,
		Source:       storage.SourceMomentum,
		Sources:      []string{storage.SourceMomentum},
	}

	ev.Points.Detector = math.Min(40, sig.Score*0.5)
	ev.Reasons = append(ev.Reasons, fmt.Sprintf("momentum score %.1f (%s)", sig.Score, sig.Tier))

	e.applyWalletConfluence(ctx, ev, walletPointsMom, 1)

	ev.Points.Health = momentumHealthPoints(report)
	ev.appendHealthReason(report)

	ev.Points.Regime = momentumRegimePoints(marketRegime)
	ev.Reasons = append(ev.Reasons, "regime "+marketRegime)

	ev.Confidence = clampConfidence(ev.Points.Detector + ev.Points.Wallets + ev.Points.Health + ev.Points.Regime)

	if ev.Confidence < e.satMin {
		ev.RejectReason = fmt.Sprintf("confidence %.1f below satellite minimum %.1f", ev.Confidence, e.satMin)
		return ev
	}

	ev.Accepted = true
	ev.Layer = storage.LayerSatellite
	if ev.Confidence >= e.coreMin {
		ev.Layer = storage.LayerCore
	}
	ev.Order = e.buildOrder(sig.Pool.TokenAddress, sig.Pool.Network, sig.Pool.TokenSymbol, sig.Pool.PriceUSD, report)

	e.log.Debug("momentum signal accepted",
		"token", ev.TokenAddress, "layer", ev.Layer, "confidence", ev.Confidence)
	return ev
}

// EvaluateEarly scores an early signal. Components: detector ≤35, wallet
// confluence ≤30 (×1.5 boost), health ≤15 with a hard floor, organic buyer
// ratio ≤10, regime +10/+3/−4. Critical health flags reject outright.
func (e *Engine) EvaluateEarly(ctx context.Context, sig detector.EarlySignal, report *health.Report, marketRegime string) *Evaluation {
	ev := &Evaluation{
		TokenAddress: sig.Pool.TokenAddress,
		Network:      sig.Pool.Network,
		Symbol:       sig.Pool.TokenSymbol,
		Source:       storage.SourceEarly,
		Sources:      []string{storage.SourceEarly},
	}

	if report != nil {
		for _, critical := range []string{health.FlagNoSells24h, health.FlagZeroPrice} {
			if report.HasFlag(critical) {
				ev.RejectReason = "critical health flag: " + critical
				ev.Reasons = append(ev.Reasons, ev.RejectReason)
				return ev
			}
		}
		if report.Score < earlyHealthFloor {
			ev.RejectReason = fmt.Sprintf("health %.0f below early floor %d", report.Score, earlyHealthFloor)
			ev.Reasons = append(ev.Reasons, ev.RejectReason)
			return ev
		}
	}

	ev.Points.Detector = math.Min(35, math.Round(sig.Score*0.4))
	ev.Reasons = append(ev.Reasons, fmt.Sprintf("early score %.1f (%s)", sig.Score, sig.Tier))

	e.applyWalletConfluence(ctx, ev, walletPointsEarly, walletEarlyBoost)

	ev.Points.Health = earlyHealthPoints(report)
	ev.appendHealthReason(report)

	ev.Points.Organic = organicRatioPoints(sig.BuyerSellerRatio)
	if ev.Points.Organic > 0 {
		ev.Reasons = append(ev.Reasons, fmt.Sprintf("organic buyer ratio %.2f", sig.BuyerSellerRatio))
	}

	ev.Points.Regime = earlyRegimePoints(marketRegime)
	ev.Reasons = append(ev.Reasons, "regime "+marketRegime)

	ev.Confidence = clampConfidence(ev.Points.Detector + ev.Points.Wallets + ev.Points.Health + ev.Points.Organic + ev.Points.Regime)

	if ev.Confidence < e.satMin {
		ev.RejectReason = fmt.Sprintf("confidence %.1f below satellite minimum %.1f", ev.Confidence, e.satMin)
		return ev
	}

	ev.Accepted = true
	ev.Layer = storage.LayerSatellite
	if ev.Confidence >= earlyCorePromotionConfidence && ev.Wallets != nil {
		ev.Layer = storage.LayerCore
		ev.Reasons = append(ev.Reasons, "promoted to core on wallet confluence")
	}
	ev.Order = e.buildOrder(sig.Pool.TokenAddress, sig.Pool.Network, sig.Pool.TokenSymbol, sig.Pool.PriceUSD, report)

	e.log.Debug("early signal accepted",
		"token", ev.TokenAddress, "layer", ev.Layer, "confidence", ev.Confidence)
	return ev
}

// applyWalletConfluence reads recent smart-money buys and, with at least
// walletMinCount distinct wallets scoring walletMinScore or better, adds
// min(maxPts, (6 + 3·count)·boost) points.
func (e *Engine) applyWalletConfluence(ctx context.Context, ev *Evaluation, maxPts, boost float64) {
	buyers, err := e.store.WalletBuyers(ctx, ev.TokenAddress, ev.Network, e.now().UTC().Add(-walletLookback))
	if err != nil {
		e.log.Warn("wallet buyer lookup failed", "token", ev.TokenAddress, "error", err)
		return
	}

	wc := &WalletConfluence{}
	var scoreSum float64
	for _, b := range buyers {
		if b.Score < walletMinScore {
			continue
		}
		wc.Count++
		wc.TotalUSD += b.TotalUSD
		wc.WalletIDs = append(wc.WalletIDs, b.WalletAddress)
		scoreSum += b.Score
	}
	if wc.Count < walletMinCount {
		return
	}
	wc.AvgScore = scoreSum / float64(wc.Count)

	ev.Wallets = wc
	ev.Points.Wallets = math.Min(maxPts, math.Round((6+3*float64(wc.Count))*boost))
	ev.Sources = append(ev.Sources, "wallet_confluence")
	ev.Reasons = append(ev.Reasons,
		fmt.Sprintf("wallet confluence: %d wallets avg score %.0f", wc.Count, wc.AvgScore))
}

func (e *Engine) buildOrder(token, network, symbol string, poolPrice float64, report *health.Report) *Order {
	price := poolPrice
	if report != nil && report.PriceUSD > 0 {
		price = report.PriceUSD
	}
	return &Order{
		Side:              storage.SideBuy,
		TokenAddress:      token,
		Network:           network,
		Symbol:            symbol,
		ReferencePriceUSD: price,
	}
}

func (ev *Evaluation) appendHealthReason(report *health.Report) {
	if report == nil {
		ev.Reasons = append(ev.Reasons, "health unknown")
		return
	}
	reason := fmt.Sprintf("token health %.0f", report.Score)
	if n := len(report.RiskFlags); n > 0 {
		reason = fmt.Sprintf("token health %.0f (%d risk flags)", report.Score, n)
	}
	ev.Reasons = append(ev.Reasons, reason)
}

// earlyHealthFloor rejects fragile new pools before any scoring
const earlyHealthFloor = 35

// momentumHealthPoints maps the health score onto ±20 and charges 5 points
// per raised risk flag.
func momentumHealthPoints(report *health.Report) float64 {
	if report == nil {
		return 0
	}
	var pts float64
	switch {
	case report.Score >= 80:
		pts = 20
	case report.Score >= 65:
		pts = 12
	case report.Score >= 50:
		pts = 5
	case report.Score >= 40:
		pts = 0
	case report.Score >= 30:
		pts = -10
	default:
		pts = -20
	}
	pts -= 5 * float64(len(report.RiskFlags))
	if pts < -20 {
		pts = -20
	}
	return pts
}

// earlyHealthPoints maps the health score onto [0, 15], 3 points off per
// risk flag. New pools never earn negative health; the floor and the
// critical flags already rejected the bad ones.
func earlyHealthPoints(report *health.Report) float64 {
	if report == nil {
		return 0
	}
	var pts float64
	switch {
	case report.Score >= 85:
		pts = 15
	case report.Score >= 70:
		pts = 12
	case report.Score >= 55:
		pts = 8
	case report.Score >= 45:
		pts = 4
	default:
		pts = 0
	}
	pts -= 3 * float64(len(report.RiskFlags))
	if pts < 0 {
		pts = 0
	}
	return pts
}

// organicRatioPoints rewards breadth of distinct buyers over sellers. The
// neutral stand-in ratio (1.2) earns nothing.
func organicRatioPoints(ratio float64) float64 {
	switch {
	case ratio >= 2.0:
		return 10
	case ratio >= 1.6:
		return 6
	case ratio >= 1.3:
		return 3
	default:
		return 0
	}
}

func momentumRegimePoints(r string) float64 {
	switch r {
	case regime.RiskOn:
		return 15
	case regime.RiskOff:
		return -8
	default:
		return 5
	}
}

func earlyRegimePoints(r string) float64 {
	switch r {
	case regime.RiskOn:
		return 10
	case regime.RiskOff:
		return -4
	default:
		return 3
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
