package calibration

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/storage"
	"dexpaper-trading-bot/internal/storage/memory"
)

var calNow = time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

func newTestCalibrator(store storage.Store) *Calibrator {
	det := config.DetectorConfig{MinMomentumScore: 55, MinEarlyScore: 50}
	conf := config.ConfluenceConfig{CoreMinConfidence: 75, SatelliteMinConfidence: 50, EarlyCorePromotion: 85}
	return NewCalibrator(store, det, conf, func() time.Time { return calNow })
}

func insertResolved(t *testing.T, store storage.Store, layer, source, token string, pnl float64) {
	t.Helper()
	p := pnl
	outcome := &storage.SignalOutcome{
		ID:           uuid.NewString(),
		UserID:       "user-1",
		SignalKey:    "base:" + token + ":" + source,
		TokenAddress: token,
		Network:      "base",
		Layer:        layer,
		SignalSource: source,
		PnLPct24h:    &p,
		CreatedAt:    calNow.Add(-time.Hour),
	}
	if err := store.InsertSignalOutcome(context.Background(), outcome); err != nil {
		t.Fatalf("seed outcome: %v", err)
	}
}

// seedBatch inserts wins then losses for one layer/source bucket
func seedBatch(t *testing.T, store storage.Store, layer, source string, wins int, winPnL float64, losses int, lossPnL float64) {
	t.Helper()
	for i := 0; i < wins; i++ {
		insertResolved(t, store, layer, source, fmt.Sprintf("0x%s-w%d", source, i), winPnL)
	}
	for i := 0; i < losses; i++ {
		insertResolved(t, store, layer, source, fmt.Sprintf("0x%s-l%d", source, i), lossPnL)
	}
}

func approxCal(t *testing.T, got, want float64, label string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

func TestCalibrateTightensColdCore(t *testing.T) {
	store := memory.New()
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 7, 5, 13, -3)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// Hit rate 0.35 against the 0.55 target is a 0.20 gap, the widest step.
	if state.MomentumScoreThreshold != 59 {
		t.Errorf("momentum threshold = %v, want 59", state.MomentumScoreThreshold)
	}
	if state.CoreMinConfidence != 79 {
		t.Errorf("core min confidence = %v, want 79", state.CoreMinConfidence)
	}
	approxCal(t, state.CoreHitRate, 0.35, "core hit rate")

	if state.EarlyScoreThreshold != 50 || state.SatelliteMinConfidence != 50 {
		t.Errorf("satellite track moved without satellite outcomes: %v/%v",
			state.EarlyScoreThreshold, state.SatelliteMinConfidence)
	}
	if state.InteractionSummary["bias"] != "balanced" {
		t.Errorf("bias = %v, want balanced", state.InteractionSummary["bias"])
	}

	persisted, err := store.GetCalibrationState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetCalibrationState: %v", err)
	}
	if persisted.MomentumScoreThreshold != 59 || !persisted.LastCalibratedAt.Equal(calNow) {
		t.Errorf("persisted state = %+v", persisted)
	}
}

func TestCalibrateLoosensHotCore(t *testing.T) {
	store := memory.New()
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 15, 2, 5, -15)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// 0.75 sits above target+0.15; the float gap lands a hair under 0.20,
	// so the step stays at 3.
	if state.MomentumScoreThreshold != 52 {
		t.Errorf("momentum threshold = %v, want 52", state.MomentumScoreThreshold)
	}
	if state.CoreMinConfidence != 72 {
		t.Errorf("core min confidence = %v, want 72", state.CoreMinConfidence)
	}
	approxCal(t, state.CoreHitRate, 0.75, "core hit rate")
}

func TestCalibrateThinLayerUntouched(t *testing.T) {
	store := memory.New()
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 0, 0, 9, -1)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if state.MomentumScoreThreshold != 55 || state.CoreMinConfidence != 75 {
		t.Errorf("thresholds moved on 9 outcomes: %v/%v",
			state.MomentumScoreThreshold, state.CoreMinConfidence)
	}
	if state.CoreHitRate != 0 {
		t.Errorf("core hit rate = %v, want 0", state.CoreHitRate)
	}
}

func TestCalibrateRespectsBounds(t *testing.T) {
	store := memory.New()
	if err := store.SaveCalibrationState(context.Background(), &storage.CalibrationState{
		UserID:                 "user-1",
		MomentumScoreThreshold: 79,
		EarlyScoreThreshold:    69,
		CoreMinConfidence:      89,
		SatelliteMinConfidence: 69,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 0, 0, 10, -2)
	seedBatch(t, store, storage.LayerSatellite, storage.SourceEarly, 0, 0, 10, -2)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if state.MomentumScoreThreshold != 80 {
		t.Errorf("momentum threshold = %v, want ceiling 80", state.MomentumScoreThreshold)
	}
	if state.CoreMinConfidence != 90 {
		t.Errorf("core min confidence = %v, want ceiling 90", state.CoreMinConfidence)
	}
	if state.EarlyScoreThreshold != 70 {
		t.Errorf("early threshold = %v, want ceiling 70", state.EarlyScoreThreshold)
	}
	if state.SatelliteMinConfidence != 70 {
		t.Errorf("satellite min confidence = %v, want ceiling 70", state.SatelliteMinConfidence)
	}
}

func TestCalibrateSatelliteTrack(t *testing.T) {
	store := memory.New()
	seedBatch(t, store, storage.LayerSatellite, storage.SourceEarly, 3, 10, 9, -10)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// 0.25 against the 0.40 target: gap 0.15 means step 3.
	if state.EarlyScoreThreshold != 53 {
		t.Errorf("early threshold = %v, want 53", state.EarlyScoreThreshold)
	}
	if state.SatelliteMinConfidence != 53 {
		t.Errorf("satellite min confidence = %v, want 53", state.SatelliteMinConfidence)
	}
	approxCal(t, state.SatelliteHitRate, 0.25, "satellite hit rate")
	if state.MomentumScoreThreshold != 55 || state.CoreMinConfidence != 75 {
		t.Errorf("core track moved without core outcomes: %v/%v",
			state.MomentumScoreThreshold, state.CoreMinConfidence)
	}
}

func TestCalibrateExposureRebalance(t *testing.T) {
	store := memory.New()
	// Momentum dominates the tape at 75% but resolves worse than early.
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 7, 2, 8, -4)
	seedBatch(t, store, storage.LayerCore, storage.SourceEarly, 4, 10, 1, -5)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// Core hit rate lands exactly on target, so only the rebalance moves.
	if state.MomentumScoreThreshold != 56 {
		t.Errorf("momentum threshold = %v, want 56", state.MomentumScoreThreshold)
	}
	if state.EarlyScoreThreshold != 49 {
		t.Errorf("early threshold = %v, want 49", state.EarlyScoreThreshold)
	}
	if state.CoreMinConfidence != 75 || state.SatelliteMinConfidence != 50 {
		t.Errorf("confidences moved: %v/%v", state.CoreMinConfidence, state.SatelliteMinConfidence)
	}
	approxCal(t, state.MomentumExposurePct, 75, "momentum exposure")
	approxCal(t, state.EarlyExposurePct, 25, "early exposure")
}

func TestCalibrateBiasBonus(t *testing.T) {
	store := memory.New()
	seedBatch(t, store, storage.LayerCore, storage.SourceMomentum, 11, 10, 9, -2)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	if state.CoreMinConfidence != 74 {
		t.Errorf("core min confidence = %v, want the bias point off 75", state.CoreMinConfidence)
	}
	if state.MomentumScoreThreshold != 55 {
		t.Errorf("momentum threshold = %v, want unchanged 55", state.MomentumScoreThreshold)
	}
	if state.InteractionSummary["bias"] != "recommended" {
		t.Errorf("bias = %v, want recommended", state.InteractionSummary["bias"])
	}
	if state.InteractionSummary["dominant_detector"] != storage.SourceMomentum {
		t.Errorf("dominant = %v, want momentum", state.InteractionSummary["dominant_detector"])
	}
}

func TestCalibrateFirstRunDefaults(t *testing.T) {
	store := memory.New()

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if state.MomentumScoreThreshold != 55 || state.EarlyScoreThreshold != 50 {
		t.Errorf("detector thresholds = %v/%v, want config defaults",
			state.MomentumScoreThreshold, state.EarlyScoreThreshold)
	}
	if state.CoreMinConfidence != 75 || state.SatelliteMinConfidence != 50 {
		t.Errorf("confidences = %v/%v, want config defaults",
			state.CoreMinConfidence, state.SatelliteMinConfidence)
	}
	if state.InteractionSummary["outcomes_used"] != 0 {
		t.Errorf("outcomes_used = %v, want 0", state.InteractionSummary["outcomes_used"])
	}
	if _, err := store.GetCalibrationState(context.Background(), "user-1"); err != nil {
		t.Errorf("first-run state not persisted: %v", err)
	}
}

func TestCalibrateTokenOverlap(t *testing.T) {
	store := memory.New()
	insertResolved(t, store, storage.LayerCore, storage.SourceMomentum, "0xaaa", 1)
	insertResolved(t, store, storage.LayerCore, storage.SourceMomentum, "0xbbb", 1)
	insertResolved(t, store, storage.LayerSatellite, storage.SourceEarly, "0xbbb", 1)
	insertResolved(t, store, storage.LayerSatellite, storage.SourceEarly, "0xccc", 1)

	state, err := newTestCalibrator(store).Calibrate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	overlap, ok := state.InteractionSummary["token_overlap_pct"].(float64)
	if !ok {
		t.Fatal("token_overlap_pct missing")
	}
	approxCal(t, overlap, 100.0/3, "token overlap")
}
