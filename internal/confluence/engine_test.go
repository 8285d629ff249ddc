package confluence

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"dexpaper-trading-bot/internal/detector"
	"dexpaper-trading-bot/internal/health"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/regime"
	"dexpaper-trading-bot/internal/storage"
	"dexpaper-trading-bot/internal/storage/memory"
)

var evalNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func momentumSignal(score float64) detector.MomentumSignal {
	return detector.MomentumSignal{
		Pool: marketdata.Pool{
			Network:      "base",
			TokenAddress: "0xmom",
			TokenSymbol:  "MOM",
			PriceUSD:     1.0,
		},
		Score: score,
		Tier:  "strong",
	}
}

func earlySignal(score, buyerRatio float64) detector.EarlySignal {
	return detector.EarlySignal{
		Pool: marketdata.Pool{
			Network:      "solana",
			TokenAddress: "0xearly",
			TokenSymbol:  "NEW",
			PriceUSD:     0.002,
		},
		Score:            score,
		Tier:             "moderate_potential",
		BuyerSellerRatio: buyerRatio,
	}
}

// seedBuyers inserts n wallets with the given score, each with one buy of
// the token inside the confluence lookback.
func seedBuyers(t *testing.T, store *memory.Store, n int, score float64, token, network string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("wallet-%s-%d", token, i)
		if err := store.UpsertTrackedWallet(ctx, &storage.TrackedWallet{
			Address: addr, Label: addr, Style: "alpha", WinRate: 0.6, Score: score, UpdatedAt: evalNow,
		}); err != nil {
			t.Fatalf("UpsertTrackedWallet: %v", err)
		}
		if err := store.InsertWalletMovement(ctx, &storage.WalletMovement{
			ID:            fmt.Sprintf("mov-%s-%d", token, i),
			WalletAddress: addr,
			TokenAddress:  token,
			Network:       network,
			Direction:     storage.SideBuy,
			AmountUSD:     800,
			ObservedAt:    evalNow.Add(-2 * time.Hour),
		}); err != nil {
			t.Fatalf("InsertWalletMovement: %v", err)
		}
	}
}

func newTestEngine(store *memory.Store) *Engine {
	return NewEngine(store, 0, 0, func() time.Time { return evalNow })
}

// A strong momentum signal on a healthy token in a risk-off market lands in
// the satellite book: 40 detector + 20 health − 8 regime = 52.
func TestEvaluateRiskOffRoutesSatellite(t *testing.T) {
	eng := newTestEngine(memory.New())
	report := &health.Report{Score: 85}

	ev := eng.Evaluate(context.Background(), momentumSignal(80), report, regime.RiskOff)

	if !ev.Accepted {
		t.Fatalf("rejected: %s", ev.RejectReason)
	}
	if ev.Confidence != 52 {
		t.Errorf("confidence = %v, want 52", ev.Confidence)
	}
	if ev.Layer != storage.LayerSatellite {
		t.Errorf("layer = %q, want satellite", ev.Layer)
	}
	if ev.Points.Detector != 40 || ev.Points.Health != 20 || ev.Points.Regime != -8 {
		t.Errorf("points = %+v, want detector 40, health 20, regime -8", ev.Points)
	}
}

// Four smart-money wallets behind an early signal: 25 detector +
// round(18·1.5)=27 wallets + 8 health + 10 regime = 70, still satellite.
func TestEvaluateEarlyWalletConfluenceBoost(t *testing.T) {
	store := memory.New()
	seedBuyers(t, store, 4, 75, "0xearly", "solana")
	eng := newTestEngine(store)
	report := &health.Report{Score: 55}

	ev := eng.EvaluateEarly(context.Background(), earlySignal(62, 1.2), report, regime.RiskOn)

	if !ev.Accepted {
		t.Fatalf("rejected: %s", ev.RejectReason)
	}
	if ev.Confidence != 70 {
		t.Errorf("confidence = %v, want 70", ev.Confidence)
	}
	if ev.Layer != storage.LayerSatellite {
		t.Errorf("layer = %q, want satellite (below the core promotion bar)", ev.Layer)
	}
	if ev.Points.Detector != 25 || ev.Points.Wallets != 27 || ev.Points.Health != 8 || ev.Points.Organic != 0 || ev.Points.Regime != 10 {
		t.Errorf("points = %+v, want 25/27/8/0/10", ev.Points)
	}
	if ev.Wallets == nil || ev.Wallets.Count != 4 {
		t.Fatalf("wallet confluence = %+v, want 4 wallets", ev.Wallets)
	}
	if ev.Wallets.AvgScore != 75 {
		t.Errorf("avg wallet score = %v, want 75", ev.Wallets.AvgScore)
	}
}

func TestEvaluateMomentumCoreRouting(t *testing.T) {
	store := memory.New()
	seedBuyers(t, store, 3, 80, "0xmom", "base")
	eng := newTestEngine(store)
	report := &health.Report{Score: 85, PriceUSD: 1.02}

	ev := eng.Evaluate(context.Background(), momentumSignal(95), report, regime.RiskOn)

	// 40 + 15 wallets + 20 health + 15 regime = 90
	if ev.Confidence != 90 {
		t.Errorf("confidence = %v, want 90", ev.Confidence)
	}
	if ev.Layer != storage.LayerCore {
		t.Errorf("layer = %q, want core", ev.Layer)
	}
	if ev.Order == nil {
		t.Fatal("accepted evaluation carries no order")
	}
	if ev.Order.Side != storage.SideBuy {
		t.Errorf("order side = %q, want buy", ev.Order.Side)
	}
	if ev.Order.ReferencePriceUSD != 1.02 {
		t.Errorf("order price = %v, want the health report price", ev.Order.ReferencePriceUSD)
	}
}

func TestEvaluateEarlyCorePromotion(t *testing.T) {
	store := memory.New()
	seedBuyers(t, store, 7, 82, "0xearly", "solana")
	eng := newTestEngine(store)
	report := &health.Report{Score: 90}

	ev := eng.EvaluateEarly(context.Background(), earlySignal(90, 2.5), report, regime.RiskOn)

	// 35 + 30 (capped) + 15 + 10 organic + 10 regime = 100
	if ev.Confidence != 100 {
		t.Errorf("confidence = %v, want 100", ev.Confidence)
	}
	if ev.Layer != storage.LayerCore {
		t.Errorf("layer = %q, want core at >=85 with wallets", ev.Layer)
	}
}

func TestEvaluateEarlyCriticalFlagRejects(t *testing.T) {
	store := memory.New()
	seedBuyers(t, store, 7, 82, "0xearly", "solana")
	eng := newTestEngine(store)

	for _, flag := range []string{health.FlagNoSells24h, health.FlagZeroPrice} {
		report := &health.Report{Score: 90, RiskFlags: []string{flag}}
		ev := eng.EvaluateEarly(context.Background(), earlySignal(90, 2.5), report, regime.RiskOn)
		if ev.Accepted {
			t.Errorf("flag %s: accepted with confidence %v, want rejection", flag, ev.Confidence)
		}
		if !strings.Contains(ev.RejectReason, flag) {
			t.Errorf("flag %s: reject reason %q does not name the flag", flag, ev.RejectReason)
		}
	}
}

func TestEvaluateEarlyHealthFloor(t *testing.T) {
	eng := newTestEngine(memory.New())
	report := &health.Report{Score: 30}

	ev := eng.EvaluateEarly(context.Background(), earlySignal(70, 2.0), report, regime.RiskOn)
	if ev.Accepted {
		t.Fatalf("accepted a new pool with health 30, want floor rejection")
	}
}

func TestEvaluateBelowSatelliteMinimum(t *testing.T) {
	eng := newTestEngine(memory.New())
	report := &health.Report{Score: 42}

	// 25 detector + 0 health + 5 regime = 30 < 50
	ev := eng.Evaluate(context.Background(), momentumSignal(50), report, regime.Neutral)
	if ev.Accepted {
		t.Fatalf("accepted at confidence %v, want rejection below 50", ev.Confidence)
	}
	if ev.RejectReason == "" {
		t.Error("rejection carries no reason")
	}
	if ev.Layer != "" {
		t.Errorf("rejected evaluation has layer %q", ev.Layer)
	}
}

func TestSetThresholdsTightensRouting(t *testing.T) {
	eng := newTestEngine(memory.New())
	eng.SetThresholds(80, 60)

	ev := eng.Evaluate(context.Background(), momentumSignal(80), &health.Report{Score: 85}, regime.RiskOff)
	if ev.Accepted {
		t.Fatalf("confidence 52 accepted after raising the satellite minimum to 60")
	}
}

func TestWalletConfluenceIgnoresLowScoresAndStaleBuys(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// three low-score wallets, fresh buys
	seedBuyers(t, store, 3, 60, "0xmom", "base")
	// one good wallet with a stale buy
	if err := store.UpsertTrackedWallet(ctx, &storage.TrackedWallet{Address: "old-whale", Score: 90}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertWalletMovement(ctx, &storage.WalletMovement{
		ID: "mov-old", WalletAddress: "old-whale", TokenAddress: "0xmom", Network: "base",
		Direction: storage.SideBuy, AmountUSD: 5000, ObservedAt: evalNow.Add(-7 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	eng := newTestEngine(store)
	ev := eng.Evaluate(ctx, momentumSignal(95), &health.Report{Score: 85}, regime.RiskOn)

	if ev.Points.Wallets != 0 {
		t.Errorf("wallet points = %v, want 0 (low scores and stale buys never count)", ev.Points.Wallets)
	}
	if ev.Wallets != nil {
		t.Errorf("wallet confluence = %+v, want none", ev.Wallets)
	}
}

func TestMomentumHealthFlagPenalty(t *testing.T) {
	report := &health.Report{Score: 85, RiskFlags: []string{"low_volume", "very_new_pair"}}
	if got := momentumHealthPoints(report); got != 10 {
		t.Errorf("momentumHealthPoints = %v, want 20 - 2*5 = 10", got)
	}
	poor := &health.Report{Score: 25, RiskFlags: []string{"low_liquidity", "low_volume", "no_buys_24h"}}
	if got := momentumHealthPoints(poor); got != -20 {
		t.Errorf("momentumHealthPoints floor = %v, want -20", got)
	}
}

func TestOrganicRatioPoints(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{2.5, 10},
		{2.0, 10},
		{1.7, 6},
		{1.4, 3},
		{1.2, 0},
		{0.9, 0},
	}
	for _, tt := range tests {
		if got := organicRatioPoints(tt.ratio); got != tt.want {
			t.Errorf("organicRatioPoints(%v) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}
