package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCycle(t *testing.T) {
	r := NewRegistry()

	r.RecordCycle("ok", 2*time.Second)
	r.RecordCycle("ok", 500*time.Millisecond)
	r.RecordCycle("error", time.Second)

	if got := testutil.ToFloat64(r.CyclesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok cycles, got %v", got)
	}
	if got := testutil.ToFloat64(r.CyclesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error cycle, got %v", got)
	}
}

func TestTradeLifecycleCounters(t *testing.T) {
	r := NewRegistry()

	r.RecordTradeOpened("solana", "core")
	r.RecordTradeOpened("solana", "core")
	r.RecordTradeOpened("base", "satellite")
	r.RecordTradeClosed("take profit", "core", 18.5)
	r.SetOpenPositions("core", 1)
	r.SetOpenPositions("satellite", 1)

	if got := testutil.ToFloat64(r.TradesOpened.WithLabelValues("solana", "core")); got != 2 {
		t.Errorf("expected 2 solana core fills, got %v", got)
	}
	if got := testutil.ToFloat64(r.TradesClosed.WithLabelValues("take profit", "core")); got != 1 {
		t.Errorf("expected 1 take profit close, got %v", got)
	}
	if got := testutil.ToFloat64(r.OpenPositions.WithLabelValues("core")); got != 1 {
		t.Errorf("expected 1 open core position, got %v", got)
	}
}

func TestSignalCounters(t *testing.T) {
	r := NewRegistry()

	r.RecordSignal("momentum", "core")
	r.RecordSignal("early", "satellite")
	r.RecordSignal("momentum", "core")
	r.RecordRejection("risk gate")

	if got := testutil.ToFloat64(r.SignalsGenerated.WithLabelValues("momentum", "core")); got != 2 {
		t.Errorf("expected 2 momentum signals, got %v", got)
	}
	if got := testutil.ToFloat64(r.SignalsRejected.WithLabelValues("risk gate")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestRegimeGaugeValues(t *testing.T) {
	tests := []struct {
		regime string
		want   float64
	}{
		{"risk_off", 0},
		{"neutral", 1},
		{"risk_on", 2},
		{"RISK_ON", 2},
		{"unknown", -1},
	}

	r := NewRegistry()
	for _, tt := range tests {
		r.SetActiveRegime(tt.regime)
		if got := testutil.ToFloat64(r.ActiveRegime); got != tt.want {
			t.Errorf("regime %q: expected gauge %v, got %v", tt.regime, tt.want, got)
		}
	}
}

func TestRecordRegimeSwitch(t *testing.T) {
	r := NewRegistry()

	r.RecordRegimeSwitch("neutral", "risk_on")

	if got := testutil.ToFloat64(r.RegimeSwitches.WithLabelValues("neutral", "risk_on")); got != 1 {
		t.Errorf("expected 1 switch, got %v", got)
	}
	if got := testutil.ToFloat64(r.ActiveRegime); got != 2 {
		t.Errorf("expected gauge 2 after switch to risk_on, got %v", got)
	}
}

func TestPhaseTimerRecordsErrors(t *testing.T) {
	r := NewRegistry()

	r.StartPhase("discovery").Stop("success")
	r.StartPhase("discovery").Stop("error")

	if got := testutil.ToFloat64(r.PhaseErrors.WithLabelValues("discovery")); got != 1 {
		t.Errorf("expected 1 phase error, got %v", got)
	}
}

func TestRecordCalibration(t *testing.T) {
	r := NewRegistry()

	r.RecordCalibration(map[string]float64{
		"momentum_min_score":  62,
		"core_min_confidence": 71,
	})

	if got := testutil.ToFloat64(r.CalibrationRuns); got != 1 {
		t.Errorf("expected 1 calibration run, got %v", got)
	}
	if got := testutil.ToFloat64(r.Thresholds.WithLabelValues("momentum_min_score")); got != 62 {
		t.Errorf("expected threshold 62, got %v", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	r := NewRegistry()
	r.RecordCycle("ok", time.Second)
	r.RecordFeedError("dexscreener")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "dexpaper_cycles_total") {
		t.Error("exposition missing dexpaper_cycles_total")
	}
	if !strings.Contains(body, `dexpaper_feed_errors_total{provider="dexscreener"} 1`) {
		t.Error("exposition missing feed error sample")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.RecordCycle("ok", time.Second)

	if got := testutil.ToFloat64(b.CyclesTotal.WithLabelValues("ok")); got != 0 {
		t.Errorf("expected fresh registry at 0, got %v", got)
	}
}
