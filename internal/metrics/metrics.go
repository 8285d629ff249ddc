// Package metrics exposes Prometheus instrumentation for the trading
// engine. One Registry is created at startup and shared by the engine
// and the API layer.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the engine
type Registry struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	PhaseDuration *prometheus.HistogramVec
	PhaseErrors   *prometheus.CounterVec

	// Signal metrics
	SignalsGenerated *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec

	// Trade metrics
	TradesOpened    *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	OpenPositions   *prometheus.GaugeVec
	TradePnLPercent *prometheus.HistogramVec

	// Feed metrics
	FeedErrors *prometheus.CounterVec

	// Regime metrics
	ActiveRegime   prometheus.Gauge
	RegimeSwitches *prometheus.CounterVec

	// Calibration metrics
	CalibrationRuns prometheus.Counter
	Thresholds      *prometheus.GaugeVec
}

// NewRegistry creates a registry with all engine metrics registered.
// Each Registry owns its own Prometheus registry so repeated
// construction never collides on metric names.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_cycles_total",
				Help: "Total number of engine cycles by result",
			},
			[]string{"status"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dexpaper_cycle_duration_seconds",
				Help:    "Duration of full engine cycles in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexpaper_phase_duration_seconds",
				Help:    "Duration of each cycle phase in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"phase", "result"},
		),

		PhaseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_phase_errors_total",
				Help: "Total number of cycle phase errors",
			},
			[]string{"phase"},
		),

		SignalsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_signals_generated_total",
				Help: "Total number of confluence signals by source and layer",
			},
			[]string{"source", "layer"},
		),

		SignalsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_signals_rejected_total",
				Help: "Total number of signals rejected before fill",
			},
			[]string{"reason"},
		),

		TradesOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_trades_opened_total",
				Help: "Total number of simulated fills by network and layer",
			},
			[]string{"network", "layer"},
		),

		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_trades_closed_total",
				Help: "Total number of closed positions by exit reason and layer",
			},
			[]string{"reason", "layer"},
		),

		OpenPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexpaper_open_positions",
				Help: "Number of currently open paper positions by layer",
			},
			[]string{"layer"},
		),

		TradePnLPercent: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexpaper_trade_pnl_percent",
				Help:    "Realized PnL percent of closed trades",
				Buckets: []float64{-50, -25, -10, -5, 0, 5, 10, 25, 50, 100, 250},
			},
			[]string{"layer"},
		),

		FeedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_feed_errors_total",
				Help: "Total number of market data feed errors by provider",
			},
			[]string{"provider"},
		),

		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dexpaper_active_regime",
				Help: "Current market regime (0=risk_off, 1=neutral, 2=risk_on)",
			},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexpaper_regime_switches_total",
				Help: "Total number of regime switches by from/to regime",
			},
			[]string{"from_regime", "to_regime"},
		),

		CalibrationRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dexpaper_calibration_runs_total",
				Help: "Total number of calibration passes applied",
			},
		),

		Thresholds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexpaper_threshold_value",
				Help: "Current adaptive threshold values",
			},
			[]string{"threshold"},
		),
	}

	r.registry.MustRegister(
		r.CyclesTotal,
		r.CycleDuration,
		r.PhaseDuration,
		r.PhaseErrors,
		r.SignalsGenerated,
		r.SignalsRejected,
		r.TradesOpened,
		r.TradesClosed,
		r.OpenPositions,
		r.TradePnLPercent,
		r.FeedErrors,
		r.ActiveRegime,
		r.RegimeSwitches,
		r.CalibrationRuns,
		r.Thresholds,
	)

	return r
}

// PhaseTimer tracks execution time for one cycle phase
type PhaseTimer struct {
	registry *Registry
	phase    string
	start    time.Time
}

// StartPhase begins timing a cycle phase
func (r *Registry) StartPhase(phase string) *PhaseTimer {
	return &PhaseTimer{
		registry: r,
		phase:    phase,
		start:    time.Now(),
	}
}

// Stop completes the phase timing and records the metric
func (pt *PhaseTimer) Stop(result string) {
	duration := time.Since(pt.start)
	pt.registry.PhaseDuration.WithLabelValues(pt.phase, result).Observe(duration.Seconds())
	if result == "error" {
		pt.registry.PhaseErrors.WithLabelValues(pt.phase).Inc()
	}
}

// RecordCycle records a completed cycle
func (r *Registry) RecordCycle(status string, duration time.Duration) {
	r.CyclesTotal.WithLabelValues(status).Inc()
	r.CycleDuration.Observe(duration.Seconds())
}

// RecordSignal records a generated confluence signal
func (r *Registry) RecordSignal(source, layer string) {
	r.SignalsGenerated.WithLabelValues(source, layer).Inc()
}

// RecordRejection records a signal rejected before fill
func (r *Registry) RecordRejection(reason string) {
	r.SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordTradeOpened records a simulated fill
func (r *Registry) RecordTradeOpened(network, layer string) {
	r.TradesOpened.WithLabelValues(network, layer).Inc()
}

// RecordTradeClosed records a position exit with its realized PnL
func (r *Registry) RecordTradeClosed(reason, layer string, pnlPercent float64) {
	r.TradesClosed.WithLabelValues(reason, layer).Inc()
	r.TradePnLPercent.WithLabelValues(layer).Observe(pnlPercent)
}

// SetOpenPositions updates the open position gauge for a layer
func (r *Registry) SetOpenPositions(layer string, count int) {
	r.OpenPositions.WithLabelValues(layer).Set(float64(count))
}

// RecordFeedError records a market data provider failure
func (r *Registry) RecordFeedError(provider string) {
	r.FeedErrors.WithLabelValues(provider).Inc()
}

// RecordRegimeSwitch records a regime transition and updates the gauge
func (r *Registry) RecordRegimeSwitch(fromRegime, toRegime string) {
	r.RegimeSwitches.WithLabelValues(fromRegime, toRegime).Inc()
	r.ActiveRegime.Set(regimeToGaugeValue(toRegime))
}

// SetActiveRegime updates the current regime gauge
func (r *Registry) SetActiveRegime(regime string) {
	r.ActiveRegime.Set(regimeToGaugeValue(regime))
}

// RecordCalibration records a calibration pass and its new thresholds
func (r *Registry) RecordCalibration(thresholds map[string]float64) {
	r.CalibrationRuns.Inc()
	for name, value := range thresholds {
		r.Thresholds.WithLabelValues(name).Set(value)
	}
}

// Handler returns an HTTP handler serving this registry in the
// Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// regimeToGaugeValue converts a regime string to its gauge value
func regimeToGaugeValue(regime string) float64 {
	switch strings.ToLower(regime) {
	case "risk_off":
		return 0.0
	case "neutral":
		return 1.0
	case "risk_on":
		return 2.0
	default:
		return -1.0
	}
}
