package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dexpaper-trading-bot/internal/broker"
	"dexpaper-trading-bot/internal/confluence"
	"dexpaper-trading-bot/internal/detector"
	"dexpaper-trading-bot/internal/forecast"
	"dexpaper-trading-bot/internal/health"
	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/outcomes"
	"dexpaper-trading-bot/internal/performance"
	"dexpaper-trading-bot/internal/regime"
	"dexpaper-trading-bot/internal/risk"
	"dexpaper-trading-bot/internal/smartmoney"
	"dexpaper-trading-bot/internal/storage"
)

// Entry sizing rules
const (
	confidenceBase     = 0.35
	confidenceSlope    = 0.65
	liquidityFactorRef = 250_000.0
	liquidityFactorMin = 0.4
	coreLiquidityCap   = 0.005
	satLiquidityCap    = 0.003
	minTicketCore      = 25.0
	minTicketSatellite = 15.0
)

// rollingWindow is the lookback feeding the adaptive gate and forecasts
const rollingWindow = 30 * 24 * time.Hour

// outcomeBatchLimit bounds how many pending outcomes one cycle revisits
const outcomeBatchLimit = 200

// CycleResult summarises one per-user cycle. Component failures land in
// Errors; the cycle itself never aborts on them.
type CycleResult struct {
	UserID      string    `json:"user_id"`
	CycleID     string    `json:"cycle_id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	Skipped     bool      `json:"skipped"`
	PauseReason string    `json:"pause_reason,omitempty"`

	Regime    string  `json:"regime,omitempty"`
	Sentiment float64 `json:"sentiment,omitempty"`

	MomentumCandidates int     `json:"momentum_candidates"`
	EarlyCandidates    int     `json:"early_candidates"`
	SignalsEvaluated   int     `json:"signals_evaluated"`
	SignalsAccepted    int     `json:"signals_accepted"`
	TradesOpened       int     `json:"trades_opened"`
	TradesClosed       int     `json:"trades_closed"`
	OutcomesChecked    int     `json:"outcomes_checked"`
	OutcomesCompleted  int     `json:"outcomes_completed"`
	RealizedPnLUSD     float64 `json:"realized_pnl_usd"`

	Forecast7d  *forecast.Prediction `json:"forecast_7d,omitempty"`
	Forecast30d *forecast.Prediction `json:"forecast_30d,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

func (r *CycleResult) addError(phase string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", phase, err))
}

// RunCycle executes one full cycle for the user. It always returns a
// result; failures of individual phases are captured in result.Errors
// and the remaining phases still run.
func (e *Engine) RunCycle(ctx context.Context, userID string) *CycleResult {
	ctx, log := logging.WithCycleContext(ctx, userID)
	started := e.now().UTC()
	result := &CycleResult{
		UserID:    userID,
		CycleID:   logging.CycleIDFromContext(ctx),
		StartedAt: started,
	}
	e.pauseAnnounced = false

	defer func() {
		result.DurationMs = e.now().UTC().Sub(started).Milliseconds()
		log.Info("cycle finished",
			"regime", result.Regime,
			"evaluated", result.SignalsEvaluated,
			"accepted", result.SignalsAccepted,
			"opened", result.TradesOpened,
			"closed", result.TradesClosed,
			"errors", len(result.Errors),
			"duration_ms", result.DurationMs)
	}()

	// Paused users are skipped before anything runs or writes, so the
	// risk state loads first even though adaptation precedes it in the
	// phase order.
	state, err := e.loadRiskState(ctx, userID)
	if err != nil {
		e.fail(result, "risk_state", err)
		return result
	}
	e.gate.Refresh(state)
	if state.IsPaused {
		result.Skipped = true
		result.PauseReason = state.PauseReason
		log.Info("cycle skipped, user paused", "reason", state.PauseReason)
		return result
	}
	e.saveState(ctx, state, result)

	e.phase("adapt", result, func() { e.adapt(ctx, state, result) })
	if e.cancelled(ctx, result) {
		return result
	}

	var snap *regime.Snapshot
	e.phase("regime", result, func() { snap = e.detectRegime(ctx, result) })
	if e.cancelled(ctx, result) {
		return result
	}

	handled := make(map[string]bool)
	e.phase("momentum", result, func() { e.momentumPipeline(ctx, state, snap, handled, result) })
	if e.cancelled(ctx, result) {
		return result
	}

	e.phase("early", result, func() { e.earlyPipeline(ctx, state, snap, handled, result) })
	if e.cancelled(ctx, result) {
		return result
	}

	e.phase("outcomes", result, func() { e.trackOutcomes(ctx, userID, result) })
	if e.cancelled(ctx, result) {
		return result
	}

	e.phase("positions", result, func() { e.sweepPositions(ctx, state, result) })

	return result
}

// loadRiskState loads the user's risk state, bootstrapping a fresh one
// with the configured initial capital on first sight.
func (e *Engine) loadRiskState(ctx context.Context, userID string) (*storage.RiskState, error) {
	state, err := e.store.GetRiskState(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		state = &storage.RiskState{
			UserID:     userID,
			CapitalUSD: e.cfg.RiskConfig.InitialCapitalUSD,
			UpdatedAt:  e.now().UTC(),
		}
		if err := e.store.SaveRiskState(ctx, state); err != nil {
			return nil, fmt.Errorf("bootstrap risk state: %w", err)
		}
		e.log.Info("risk state bootstrapped", "user", userID, "capital", state.CapitalUSD)
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load risk state: %w", err)
	}
	return state, nil
}

// adapt is phase 0: rolling metrics feed the adaptive gate and the
// forecasts, then the calibrator retunes the entry thresholds.
func (e *Engine) adapt(ctx context.Context, state *storage.RiskState, result *CycleResult) {
	now := e.now().UTC()

	trades, err := e.store.ClosedTradesSince(ctx, state.UserID, now.Add(-rollingWindow))
	if err != nil {
		e.fail(result, "rolling metrics", err)
	} else {
		m := performance.Compute(trades, rollingWindow, state.CapitalUSD, now)
		e.gate.SetRollingMetrics(&risk.RollingSnapshot{
			Trades:                m.Trades,
			CurrentDrawdownPct:    m.CurrentDrawdownPct,
			CoreProfitFactor:      m.Core.ProfitFactor,
			SatelliteProfitFactor: m.Satellite.ProfitFactor,
			CoreKelly:             m.Core.Kelly,
			SatelliteKelly:        m.Satellite.Kelly,
		})
		result.Forecast7d = e.predictor.Run(m, state.CapitalUSD, 7*24*time.Hour)
		result.Forecast30d = e.predictor.Run(m, state.CapitalUSD, rollingWindow)
	}

	calib, err := e.calibrator.Calibrate(ctx, state.UserID)
	if err != nil {
		e.fail(result, "calibration", err)
		return
	}
	e.momentum.SetMinScore(calib.MomentumScoreThreshold)
	e.early.SetMinScore(calib.EarlyScoreThreshold)
	e.confluence.SetThresholds(calib.CoreMinConfidence, calib.SatelliteMinConfidence)
	e.metrics.RecordCalibration(map[string]float64{
		"momentum_min_score":       calib.MomentumScoreThreshold,
		"early_min_score":          calib.EarlyScoreThreshold,
		"core_min_confidence":      calib.CoreMinConfidence,
		"satellite_min_confidence": calib.SatelliteMinConfidence,
	})
}

// detectRegime is phase 1. The detector always yields a snapshot; only
// the persist is best-effort.
func (e *Engine) detectRegime(ctx context.Context, result *CycleResult) *regime.Snapshot {
	snap := e.regimes.Detect(ctx)
	result.Regime = snap.Regime
	result.Sentiment = snap.SentimentScore

	if err := e.store.InsertRegimeSnapshot(ctx, snap.ToRecord()); err != nil {
		e.fail(result, "regime snapshot", err)
	}
	return snap
}

// momentumPipeline is phase 3: trending pools through smart money,
// health, confluence and entry, highest score first.
func (e *Engine) momentumPipeline(ctx context.Context, state *storage.RiskState, snap *regime.Snapshot, handled map[string]bool, result *CycleResult) {
	signals, stats, err := e.momentum.Scan(ctx)
	if err != nil {
		e.fail(result, "momentum scan", err)
		return
	}
	e.noteFeedErrors("momentum", stats, result)
	result.MomentumCandidates = len(signals)

	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		key := sig.Pool.Network + ":" + sig.Pool.TokenAddress
		if handled[key] {
			continue
		}
		handled[key] = true
		e.processMomentum(ctx, state, sig, snap, result)
	}
}

func (e *Engine) processMomentum(ctx context.Context, state *storage.RiskState, sig detector.MomentumSignal, snap *regime.Snapshot, result *CycleResult) {
	result.SignalsEvaluated++

	if _, err := e.wallets.Inject(ctx, smartmoney.Candidate{
		TokenAddress: sig.Pool.TokenAddress,
		Network:      sig.Pool.Network,
		Symbol:       sig.Pool.TokenSymbol,
		Score:        sig.Score,
		IsEarly:      false,
	}); err != nil {
		e.fail(result, "smart money", err)
	}

	report := e.checkHealth(ctx, sig.Pool.Network, sig.Pool.TokenAddress, result)
	ev := e.confluence.Evaluate(ctx, sig, report, snap.Regime)
	e.dispatch(ctx, state, ev, report, sig.Pool.PriceUSD, snap, result)
}

// earlyPipeline is phase 4: new pools, skipping tokens the momentum
// pass already handled.
func (e *Engine) earlyPipeline(ctx context.Context, state *storage.RiskState, snap *regime.Snapshot, handled map[string]bool, result *CycleResult) {
	signals, stats, err := e.early.Scan(ctx)
	if err != nil {
		e.fail(result, "early scan", err)
		return
	}
	e.noteFeedErrors("early", stats, result)
	result.EarlyCandidates = len(signals)

	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		key := sig.Pool.Network + ":" + sig.Pool.TokenAddress
		if handled[key] {
			continue
		}
		handled[key] = true
		e.processEarly(ctx, state, sig, snap, result)
	}
}

func (e *Engine) processEarly(ctx context.Context, state *storage.RiskState, sig detector.EarlySignal, snap *regime.Snapshot, result *CycleResult) {
	result.SignalsEvaluated++

	if _, err := e.wallets.Inject(ctx, smartmoney.Candidate{
		TokenAddress: sig.Pool.TokenAddress,
		Network:      sig.Pool.Network,
		Symbol:       sig.Pool.TokenSymbol,
		Score:        sig.Score,
		IsEarly:      true,
	}); err != nil {
		e.fail(result, "smart money", err)
	}

	report := e.checkHealth(ctx, sig.Pool.Network, sig.Pool.TokenAddress, result)
	ev := e.confluence.EvaluateEarly(ctx, sig, report, snap.Regime)
	e.dispatch(ctx, state, ev, report, sig.Pool.PriceUSD, snap, result)
}

// checkHealth fetches the token's health report. A feed failure means
// no data this cycle: the signal is still evaluated, but with zero
// known liquidity it cannot size a position.
func (e *Engine) checkHealth(ctx context.Context, network, tokenAddress string, result *CycleResult) *health.Report {
	report, err := e.health.Check(ctx, network, tokenAddress)
	if err != nil {
		e.fail(result, "health", err)
		e.metrics.RecordFeedError("pair_lookup")
		return nil
	}
	return report
}

// dispatch routes one evaluation: rejected ones are recorded as
// outcomes, accepted ones go through the entry sub-routine.
func (e *Engine) dispatch(ctx context.Context, state *storage.RiskState, ev *confluence.Evaluation, report *health.Report, poolPrice float64, snap *regime.Snapshot, result *CycleResult) {
	refPrice := poolPrice
	if report != nil && report.PriceUSD > 0 {
		refPrice = report.PriceUSD
	}

	if !ev.Accepted {
		e.metrics.RecordRejection("confluence")
		e.recordOutcome(ctx, outcomeSignal(state.UserID, ev, snap.Regime, refPrice), result)
		return
	}

	result.SignalsAccepted++
	e.metrics.RecordSignal(ev.Source, ev.Layer)
	e.bus.PublishSignal(state.UserID, ev.Symbol, ev.Network, ev.Source, ev.Layer, ev.Confidence)

	e.enter(ctx, state, ev, report, snap, result)
}

// enter is the entry sub-routine: gate, adaptive position size, broker
// execution, then the outcome record for whatever happened.
func (e *Engine) enter(ctx context.Context, state *storage.RiskState, ev *confluence.Evaluation, report *health.Report, snap *regime.Snapshot, result *CycleResult) {
	sig := outcomeSignal(state.UserID, ev, snap.Regime, ev.Order.ReferencePriceUSD)

	decision := e.gate.Evaluate(state, ev.Layer)
	e.notePause(ctx, state, result)
	if !decision.Allowed {
		e.metrics.RecordRejection("risk gate")
		sig.RejectReason = decision.Reason
		e.recordOutcome(ctx, sig, result)
		return
	}

	var liquidity float64
	if report != nil {
		liquidity = report.LiquidityUSD
	}
	size := positionSize(decision.MaxPositionUSD, ev.Confidence, liquidity, ev.Layer)
	minTicket := minTicketCore
	if ev.Layer == storage.LayerSatellite {
		minTicket = minTicketSatellite
	}
	if size < minTicket {
		e.metrics.RecordRejection("below min ticket")
		sig.RejectReason = fmt.Sprintf("position $%.2f below minimum ticket $%.0f", size, minTicket)
		e.recordOutcome(ctx, sig, result)
		return
	}

	res, err := e.broker.Execute(ctx, state, broker.Order{
		UserID:       state.UserID,
		TokenAddress: ev.TokenAddress,
		Network:      ev.Network,
		Symbol:       ev.Symbol,
		Side:         ev.Order.Side,
		Layer:        ev.Layer,
		PositionUSD:  size,
		Confidence:   ev.Confidence,
		SignalSource: ev.Source,
		EntryReason:  strings.Join(ev.Reasons, "; "),
	})
	if err != nil {
		e.fail(result, "broker", err)
		sig.RejectReason = "execution failed"
		e.recordOutcome(ctx, sig, result)
		return
	}
	if !res.Executed {
		e.metrics.RecordRejection("broker")
		sig.RejectReason = res.Reason
		e.recordOutcome(ctx, sig, result)
		return
	}

	trade := res.Trade
	e.gate.RegisterOpen(state, ev.Layer)
	e.saveState(ctx, state, result)

	sig.WasExecuted = true
	sig.EntryPrice = trade.EntryPrice
	e.recordOutcome(ctx, sig, result)

	result.TradesOpened++
	e.metrics.RecordTradeOpened(trade.Network, trade.Layer)
	e.bus.PublishTradeOpened(state.UserID, trade.Symbol, trade.Network, trade.Layer, trade.EntryPrice, size)
	if err := e.notify.SendTradeOpen(trade.Symbol, trade.Network, trade.Layer, trade.EntryPrice, size, trade.SlippageSimulated); err != nil {
		e.log.Warn("trade open notification failed", "error", err)
	}
}

// trackOutcomes is phase 5
func (e *Engine) trackOutcomes(ctx context.Context, userID string, result *CycleResult) {
	report, err := e.outcomes.UpdatePending(ctx, userID, outcomeBatchLimit)
	if err != nil {
		e.fail(result, "outcomes", err)
		return
	}
	result.OutcomesChecked = report.Updated
	result.OutcomesCompleted = report.FullyTracked
	for _, uerr := range report.Errors {
		e.fail(result, "outcomes", uerr)
	}
}

// sweepPositions is phase 6: run the exit rules, then fold each close
// into the risk state and persist it.
func (e *Engine) sweepPositions(ctx context.Context, state *storage.RiskState, result *CycleResult) {
	sweep, err := e.positions.Sweep(ctx, state.UserID)
	if err != nil {
		e.fail(result, "positions", err)
		return
	}
	for _, serr := range sweep.Errors {
		e.fail(result, "positions", serr)
	}

	for _, trade := range sweep.Closed {
		pnl := *trade.PnLAbs
		e.gate.ApplyTradeResult(state, trade.Layer, pnl)
		e.saveState(ctx, state, result)
		e.notePause(ctx, state, result)

		result.TradesClosed++
		result.RealizedPnLUSD += pnl

		reason := ""
		if trade.ExitReason != nil {
			reason = *trade.ExitReason
		}
		e.metrics.RecordTradeClosed(reason, trade.Layer, *trade.PnLPct)
		e.bus.PublishTradeClosed(state.UserID, trade.Symbol, trade.Network, reason, *trade.ExitPrice, pnl, *trade.PnLPct)
		if err := e.notify.SendTradeClose(trade.Symbol, trade.Network, reason, trade.EntryPrice, *trade.ExitPrice, pnl, *trade.PnLPct); err != nil {
			e.log.Warn("trade close notification failed", "error", err)
		}
	}

	e.updateOpenPositionGauges(ctx, state.UserID)
}

func (e *Engine) updateOpenPositionGauges(ctx context.Context, userID string) {
	open, err := e.store.OpenTrades(ctx, userID)
	if err != nil {
		return
	}
	counts := map[string]int{storage.LayerCore: 0, storage.LayerSatellite: 0}
	for _, t := range open {
		counts[t.Layer]++
	}
	for layer, n := range counts {
		e.metrics.SetOpenPositions(layer, n)
	}
}

// notePause announces a kill-switch pause once per cycle and persists
// the paused state so later cycles skip the user.
func (e *Engine) notePause(ctx context.Context, state *storage.RiskState, result *CycleResult) {
	if !state.IsPaused || e.pauseAnnounced {
		return
	}
	e.pauseAnnounced = true
	e.saveState(ctx, state, result)

	until := e.now().UTC()
	if state.PauseUntil != nil {
		until = *state.PauseUntil
	}
	e.log.Warn("user paused", "user", state.UserID, "reason", state.PauseReason, "until", until)
	e.bus.PublishUserPaused(state.UserID, state.PauseReason, until)
	if err := e.notify.SendPause(state.PauseReason, until); err != nil {
		e.log.Warn("pause notification failed", "error", err)
	}
}

// phase runs one cycle phase under a metrics timer. A phase counts as
// failed when it appended errors to the result.
func (e *Engine) phase(name string, result *CycleResult, fn func()) {
	timer := e.metrics.StartPhase(name)
	before := len(result.Errors)
	fn()
	status := "success"
	if len(result.Errors) > before {
		status = "error"
	}
	timer.Stop(status)
}

// fail captures a component failure: error list, error event, log line
func (e *Engine) fail(result *CycleResult, phase string, err error) {
	result.addError(phase, err)
	e.bus.PublishError(result.UserID, phase, err)
	e.log.Warn("phase error", "phase", phase, "error", err)
}

func (e *Engine) cancelled(ctx context.Context, result *CycleResult) bool {
	if err := ctx.Err(); err != nil {
		result.addError("cycle", err)
		return true
	}
	return false
}

func (e *Engine) saveState(ctx context.Context, state *storage.RiskState, result *CycleResult) {
	if err := e.store.SaveRiskState(ctx, state); err != nil {
		e.fail(result, "risk state save", err)
	}
}

func (e *Engine) recordOutcome(ctx context.Context, sig outcomes.Signal, result *CycleResult) {
	if _, err := e.outcomes.Record(ctx, sig); err != nil {
		e.fail(result, "outcome record", err)
	}
}

func (e *Engine) noteFeedErrors(source string, stats detector.ScanStats, result *CycleResult) {
	for network, err := range stats.FeedErrors {
		e.fail(result, fmt.Sprintf("%s feed %s", source, network), err)
		e.metrics.RecordFeedError("pool_feed")
	}
}

// positionSize is the adaptive sizing rule: the gate's maximum scaled
// by confidence and pool depth, capped by a per-layer share of the
// pool's liquidity.
func positionSize(gateMax, confidence, liquidity float64, layer string) float64 {
	confFactor := confidenceBase + confidenceSlope*confidence/100
	liqFactor := clamp(liquidity/liquidityFactorRef, liquidityFactorMin, 1)
	size := gateMax * confFactor * liqFactor

	capFraction := coreLiquidityCap
	if layer == storage.LayerSatellite {
		capFraction = satLiquidityCap
	}
	if liqCap := liquidity * capFraction; size > liqCap {
		size = liqCap
	}
	return size
}

func outcomeSignal(userID string, ev *confluence.Evaluation, regimeName string, refPrice float64) outcomes.Signal {
	return outcomes.Signal{
		UserID:       userID,
		TokenAddress: ev.TokenAddress,
		Network:      ev.Network,
		Symbol:       ev.Symbol,
		Layer:        ev.Layer,
		Confidence:   ev.Confidence,
		Regime:       regimeName,
		EntryPrice:   refPrice,
		RejectReason: ev.RejectReason,
		Reasons:      ev.Reasons,
		SignalSource: ev.Source,
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
