package risk

import (
	"strings"
	"testing"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/storage"
)

// Wednesday
var gateNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func gateConfig() config.RiskConfig {
	return config.RiskConfig{
		InitialCapitalUSD:           10_000,
		CoreMaxRiskPerTradePct:      0.5,
		SatelliteMaxRiskPerTradePct: 0.25,
		MaxDailyLossPct:             2,
		MaxWeeklyLossPct:            6,
		CoreMaxTradesPerDay:         5,
		SatelliteMaxTradesPerDay:    2,
		SatelliteConsecLossLimit:    3,
		SatelliteCooldown:           24 * time.Hour,
	}
}

func freshState() *storage.RiskState {
	return &storage.RiskState{
		UserID:          "u1",
		CapitalUSD:      10_000,
		LastDailyReset:  time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		LastWeeklyReset: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestGate() *Gate {
	return NewGate(gateConfig(), func() time.Time { return gateNow })
}

func approx(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}

func TestEvaluateDailyKillSwitch(t *testing.T) {
	g := newTestGate()
	state := freshState()
	state.PnLToday = -210 // 2.1% of capital

	dec := g.Evaluate(state, storage.LayerCore)

	if dec.Allowed {
		t.Fatal("allowed past the daily kill-switch")
	}
	if !strings.Contains(dec.Reason, "Pérdida diaria") {
		t.Errorf("reason = %q, want the daily loss wording", dec.Reason)
	}
	if state.TradesTodayCore != 0 || state.TradesTodaySatellite != 0 {
		t.Error("evaluate mutated trade counters")
	}
	if !state.IsPaused || state.PauseUntil == nil {
		t.Error("kill-switch did not pause the user")
	}
	if want := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC); !state.PauseUntil.Equal(want) {
		t.Errorf("pause until %v, want next UTC midnight %v", state.PauseUntil, want)
	}
}

func TestEvaluateWeeklyKillSwitch(t *testing.T) {
	g := newTestGate()
	state := freshState()
	state.PnLThisWeek = -650 // 6.5%

	dec := g.Evaluate(state, storage.LayerSatellite)
	if dec.Allowed {
		t.Fatal("allowed past the weekly kill-switch")
	}
	if !strings.Contains(dec.Reason, "Pérdida semanal") {
		t.Errorf("reason = %q, want the weekly loss wording", dec.Reason)
	}
}

func TestEvaluateProfitNeverTripsKillSwitch(t *testing.T) {
	g := newTestGate()
	state := freshState()
	state.PnLToday = 900
	state.PnLThisWeek = 900

	if dec := g.Evaluate(state, storage.LayerCore); !dec.Allowed {
		t.Fatalf("denied on a profitable day: %s", dec.Reason)
	}
}

func TestEvaluateDailyTradeCaps(t *testing.T) {
	g := newTestGate()

	state := freshState()
	state.TradesTodayCore = 5
	if dec := g.Evaluate(state, storage.LayerCore); dec.Allowed {
		t.Error("core allowed past the 5-trade daily cap")
	}
	if dec := g.Evaluate(state, storage.LayerSatellite); !dec.Allowed {
		t.Errorf("core cap leaked into satellite: %s", dec.Reason)
	}

	state = freshState()
	state.TradesTodaySatellite = 2
	if dec := g.Evaluate(state, storage.LayerSatellite); dec.Allowed {
		t.Error("satellite allowed past the 2-trade daily cap")
	}
}

func TestEvaluateBaseSizing(t *testing.T) {
	g := newTestGate()
	state := freshState()

	core := g.Evaluate(state, storage.LayerCore)
	if !core.Allowed || !approx(core.MaxPositionUSD, 50) {
		t.Errorf("core sizing = %+v, want 0.5%% of 10k = 50", core)
	}
	sat := g.Evaluate(state, storage.LayerSatellite)
	if !sat.Allowed || !approx(sat.MaxPositionUSD, 25) {
		t.Errorf("satellite sizing = %+v, want 0.25%% of 10k = 25", sat)
	}
	if core.Multiplier != 1 || sat.Multiplier != 1 {
		t.Error("adaptive multiplier active without rolling metrics")
	}
}

func TestSatelliteCooldownAfterThreeLosses(t *testing.T) {
	g := newTestGate()
	state := freshState()

	for i := 0; i < 3; i++ {
		g.ApplyTradeResult(state, storage.LayerSatellite, -10)
	}

	if state.ConsecutiveLossesSatellite != 3 {
		t.Fatalf("streak = %d, want 3", state.ConsecutiveLossesSatellite)
	}
	if state.PauseUntil == nil || !state.PauseUntil.Equal(gateNow.Add(24*time.Hour)) {
		t.Fatalf("cooldown until %v, want now+24h", state.PauseUntil)
	}
	if state.IsPaused {
		t.Error("satellite cooldown set the global pause flag")
	}

	if dec := g.Evaluate(state, storage.LayerSatellite); dec.Allowed {
		t.Error("satellite allowed during cooldown")
	}
	if dec := g.Evaluate(state, storage.LayerCore); !dec.Allowed {
		t.Errorf("core blocked by the satellite cooldown: %s", dec.Reason)
	}

	// a win clears the streak
	g.ApplyTradeResult(state, storage.LayerSatellite, 5)
	if state.ConsecutiveLossesSatellite != 0 {
		t.Errorf("streak after win = %d, want 0", state.ConsecutiveLossesSatellite)
	}
}

func TestApplyTradeResultTriggersDailyPause(t *testing.T) {
	g := newTestGate()
	state := freshState()

	g.ApplyTradeResult(state, storage.LayerCore, -150)
	if state.IsPaused {
		t.Fatal("paused at 1.5% daily loss")
	}
	g.ApplyTradeResult(state, storage.LayerCore, -80)
	if !state.IsPaused {
		t.Fatal("not paused at 2.3% daily loss")
	}
	if !strings.Contains(state.PauseReason, "Pérdida diaria") {
		t.Errorf("pause reason = %q", state.PauseReason)
	}
	if !approx(state.PnLToday, -230) || !approx(state.PnLThisWeek, -230) {
		t.Errorf("pnl accounting: today %v week %v, want -230 both", state.PnLToday, state.PnLThisWeek)
	}
}

func TestEvaluatePausedUser(t *testing.T) {
	g := newTestGate()
	state := freshState()
	until := gateNow.Add(3 * time.Hour)
	state.IsPaused = true
	state.PauseReason = "x"
	state.PauseUntil = &until

	if dec := g.Evaluate(state, storage.LayerCore); dec.Allowed {
		t.Error("paused user allowed")
	}
}

func TestRefreshResets(t *testing.T) {
	g := newTestGate()
	state := freshState()
	state.LastDailyReset = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	state.LastWeeklyReset = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	state.TradesTodayCore = 4
	state.TradesTodaySatellite = 2
	state.PnLToday = -190
	state.PnLThisWeek = -400
	state.ConsecutiveLossesSatellite = 2
	expired := gateNow.Add(-time.Hour)
	state.IsPaused = true
	state.PauseReason = "stale"
	state.PauseUntil = &expired

	g.Refresh(state)

	if state.TradesTodayCore != 0 || state.TradesTodaySatellite != 0 || state.PnLToday != 0 {
		t.Errorf("daily reset incomplete: %+v", state)
	}
	if state.PnLThisWeek != 0 || state.ConsecutiveLossesSatellite != 0 {
		t.Errorf("weekly reset incomplete: %+v", state)
	}
	if state.IsPaused || state.PauseUntil != nil || state.PauseReason != "" {
		t.Errorf("expired pause not lifted: %+v", state)
	}
	if !state.LastDailyReset.Equal(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LastDailyReset = %v", state.LastDailyReset)
	}
	if !state.LastWeeklyReset.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LastWeeklyReset = %v, want Monday UTC", state.LastWeeklyReset)
	}
}

func TestRefreshKeepsSameDayState(t *testing.T) {
	g := newTestGate()
	state := freshState()
	state.TradesTodayCore = 3
	state.PnLToday = -100
	state.PnLThisWeek = -300

	g.Refresh(state)

	if state.TradesTodayCore != 3 || !approx(state.PnLToday, -100) || !approx(state.PnLThisWeek, -300) {
		t.Errorf("same-day refresh wiped state: %+v", state)
	}
}

func TestAdaptiveMultipliers(t *testing.T) {
	tests := []struct {
		name     string
		snap     RollingSnapshot
		layer    string
		wantMult float64
	}{
		{"weak core PF halves", RollingSnapshot{Trades: 20, CoreProfitFactor: 0.5}, storage.LayerCore, 0.5},
		{"strong core PF boosts", RollingSnapshot{Trades: 20, CoreProfitFactor: 2.0}, storage.LayerCore, 1.25},
		{"drawdown scales", RollingSnapshot{Trades: 20, CoreProfitFactor: 1.0, CurrentDrawdownPct: 4}, storage.LayerCore, 0.8},
		{"deep drawdown scales harder", RollingSnapshot{Trades: 20, CoreProfitFactor: 1.0, CurrentDrawdownPct: 9}, storage.LayerCore, 0.55},
		{"weak PF and drawdown compound", RollingSnapshot{Trades: 20, CoreProfitFactor: 0.5, CurrentDrawdownPct: 4}, storage.LayerCore, 0.4},
		{"satellite uses its own PF", RollingSnapshot{Trades: 20, CoreProfitFactor: 0.5, SatelliteProfitFactor: 2.0}, storage.LayerSatellite, 1.25},
		{"PF zero means no history, no penalty", RollingSnapshot{Trades: 20}, storage.LayerCore, 1},
		{"under 10 trades adaptive off", RollingSnapshot{Trades: 9, CoreProfitFactor: 0.5}, storage.LayerCore, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate()
			g.SetRollingMetrics(&tt.snap)
			dec := g.Evaluate(freshState(), tt.layer)
			if !dec.Allowed {
				t.Fatalf("denied: %s", dec.Reason)
			}
			if !approx(dec.Multiplier, tt.wantMult) {
				t.Errorf("multiplier = %v, want %v", dec.Multiplier, tt.wantMult)
			}
		})
	}
}

func TestAdaptiveDrawdownDeny(t *testing.T) {
	g := newTestGate()
	g.SetRollingMetrics(&RollingSnapshot{Trades: 15, CurrentDrawdownPct: 11})
	state := freshState()

	dec := g.Evaluate(state, storage.LayerCore)
	if dec.Allowed {
		t.Fatal("allowed at 11% drawdown")
	}
	if !state.IsPaused {
		t.Error("adaptive deny did not pause the user")
	}
}

func TestAdaptiveKellyCap(t *testing.T) {
	g := newTestGate()
	g.SetRollingMetrics(&RollingSnapshot{Trades: 20, CoreProfitFactor: 1.0, CoreKelly: 0.002})
	state := freshState()

	dec := g.Evaluate(state, storage.LayerCore)
	if !dec.Allowed {
		t.Fatalf("denied: %s", dec.Reason)
	}
	// base 50 capped by capital * 0.002 = 20
	if !approx(dec.MaxPositionUSD, 20) {
		t.Errorf("max position = %v, want the Kelly cap 20", dec.MaxPositionUSD)
	}
}
