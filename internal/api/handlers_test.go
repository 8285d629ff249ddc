package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/detector"
	"dexpaper-trading-bot/internal/engine"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/metrics"
	"dexpaper-trading-bot/internal/storage"
	"dexpaper-trading-bot/internal/storage/memory"
)

const testSecret = "cron-secret-1"

var apiNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type quietPoolFeed struct{}

func (quietPoolFeed) TrendingPools(context.Context, []string) (*marketdata.PoolFeedResult, error) {
	return &marketdata.PoolFeedResult{}, nil
}

func (quietPoolFeed) NewPools(context.Context, []string) (*marketdata.PoolFeedResult, error) {
	return &marketdata.PoolFeedResult{}, nil
}

// blockingPoolFeed holds the first cycle inside the discovery phase until
// released, so overlap handling can be observed
type blockingPoolFeed struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPoolFeed() *blockingPoolFeed {
	return &blockingPoolFeed{entered: make(chan struct{}), release: make(chan struct{})}
}

func (f *blockingPoolFeed) TrendingPools(ctx context.Context, _ []string) (*marketdata.PoolFeedResult, error) {
	f.once.Do(func() { close(f.entered) })
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return &marketdata.PoolFeedResult{}, nil
}

func (f *blockingPoolFeed) NewPools(context.Context, []string) (*marketdata.PoolFeedResult, error) {
	return &marketdata.PoolFeedResult{}, nil
}

type quietPairs struct{}

func (quietPairs) BestPair(context.Context, string, string) (*marketdata.Pair, error) {
	return nil, errors.New("pair not found")
}

type calmSentiment struct{}

func (calmSentiment) FearGreed(context.Context) marketdata.FearGreed {
	return marketdata.FearGreed{Value: 75, Classification: "greed"}
}

func (calmSentiment) GlobalMarket(context.Context) marketdata.GlobalMarket {
	return marketdata.GlobalMarket{BTCDominance: 50, TotalVolumeUSD: 90e9}
}

type failingStore struct {
	storage.Store
}

func (failingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func apiConfig() config.Config {
	return config.Config{
		EngineConfig: config.EngineConfig{
			Networks:       []string{"polygon"},
			Users:          []string{"user-1", "user-2"},
			CycleInterval:  time.Minute,
			MaxConcurrency: 2,
		},
		RiskConfig: config.RiskConfig{
			InitialCapitalUSD:           10_000,
			CoreMaxRiskPerTradePct:      0.5,
			SatelliteMaxRiskPerTradePct: 0.25,
			MaxDailyLossPct:             2,
			MaxWeeklyLossPct:            6,
			CoreMaxTradesPerDay:         5,
			SatelliteMaxTradesPerDay:    2,
			SatelliteConsecLossLimit:    3,
			SatelliteCooldown:           24 * time.Hour,
		},
		ConfluenceConfig: config.ConfluenceConfig{
			CoreMinConfidence:      75,
			SatelliteMinConfidence: 50,
			EarlyCorePromotion:     85,
		},
		DetectorConfig: config.DetectorConfig{MinMomentumScore: 55, MinEarlyScore: 50},
		PositionConfig: config.PositionConfig{
			CoreTrailingStopPct:      0.05,
			SatelliteTrailingStopPct: 0.10,
			CoreMaxHoldHours:         48,
			SatelliteMaxHoldHours:    168,
			CoreTakeProfitPct:        0.15,
			SatelliteTakeProfitPct:   0.80,
			VolumeFadeRatio:          0.3,
			LiquidityFloorUSD:        30_000,
		},
		MonteCarloConfig: config.MonteCarloConfig{Simulations: 50, TradesPerDay: 3},
		ServerConfig: config.ServerConfig{
			Enabled:        true,
			Port:           8080,
			Host:           "127.0.0.1",
			AllowedOrigins: "*",
			ReadTimeout:    5,
			WriteTimeout:   5,
		},
		CronConfig: config.CronConfig{Secret: testSecret},
	}
}

type serverFixture struct {
	server  *Server
	manager *engine.Manager
	store   storage.Store
}

func newServerFixture(t *testing.T, feed detector.PoolFeed) *serverFixture {
	t.Helper()

	cfg := apiConfig()
	store := memory.New()
	deps := engine.Deps{
		Store:     store,
		PoolFeed:  feed,
		Pairs:     quietPairs{},
		Sentiment: calmSentiment{},
		Config:    cfg,
		Metrics:   metrics.NewRegistry(),
		Now:       func() time.Time { return apiNow },
	}
	manager := engine.NewManager(deps)
	server := NewServer(cfg.ServerConfig, cfg.CronConfig, cfg.EngineConfig.Users, manager, store, deps.Metrics)

	return &serverFixture{server: server, manager: manager, store: store}
}

func (f *serverFixture) request(method, target, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if secret != "" {
		req.Header.Set("X-Cron-Secret", secret)
	}
	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, w.Body.String())
	}
	return body
}

func TestTriggerCycleRejectsBadSecret(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	tests := []struct {
		name   string
		secret string
	}{
		{name: "missing secret", secret: ""},
		{name: "wrong secret", secret: "not-the-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fix.request(http.MethodPost, "/internal/cycle?user=user-1", tt.secret)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
			body := decodeBody(t, w)
			if body["error"] != true {
				t.Errorf("expected error response, got %v", body)
			}
		})
	}

	if _, ok := fix.manager.LastResult("user-1"); ok {
		t.Error("rejected trigger must not run a cycle")
	}
}

func TestTriggerCycleDisabledWithoutSecret(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})
	fix.server.cronSecret = ""

	w := fix.request(http.MethodPost, "/internal/cycle", "anything")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestTriggerCycleRunsSingleUser(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	w := fix.request(http.MethodPost, "/internal/cycle?user=user-1", testSecret)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("expected success response, got %v", body)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	if data["user_id"] != "user-1" {
		t.Errorf("expected user_id user-1, got %v", data["user_id"])
	}
	if data["cycle_id"] == "" || data["cycle_id"] == nil {
		t.Error("expected a cycle_id in the response")
	}
	if data["regime"] != "risk_on" {
		t.Errorf("expected regime risk_on, got %v", data["regime"])
	}

	if _, ok := fix.manager.LastResult("user-1"); !ok {
		t.Error("manager should record the triggered cycle")
	}
	if _, ok := fix.manager.LastResult("user-2"); ok {
		t.Error("scoped trigger must not run other users")
	}
}

func TestTriggerCycleUnknownUser(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	w := fix.request(http.MethodPost, "/internal/cycle?user=nobody", testSecret)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if _, ok := fix.manager.LastResult("nobody"); ok {
		t.Error("unknown user must not run a cycle")
	}
}

func TestTriggerCycleAllUsersWhenUnscoped(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	w := fix.request(http.MethodPost, "/internal/cycle", testSecret)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data, ok := body["data"].([]interface{})
	if !ok {
		t.Fatalf("expected data array, got %T", body["data"])
	}
	if len(data) != 2 {
		t.Fatalf("expected 2 cycle results, got %d", len(data))
	}

	seen := map[string]bool{}
	for _, raw := range data {
		result := raw.(map[string]interface{})
		seen[result["user_id"].(string)] = true
	}
	if !seen["user-1"] || !seen["user-2"] {
		t.Errorf("expected results for both users, got %v", seen)
	}
}

func TestTriggerCycleConflictsWhileInFlight(t *testing.T) {
	feed := newBlockingPoolFeed()
	fix := newServerFixture(t, feed)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- fix.request(http.MethodPost, "/internal/cycle?user=user-1", testSecret)
	}()

	select {
	case <-feed.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached the pool feed")
	}

	w := fix.request(http.MethodPost, "/internal/cycle?user=user-1", testSecret)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 while in flight, got %d", w.Code)
	}

	close(feed.release)

	select {
	case w := <-first:
		if w.Code != http.StatusOK {
			t.Errorf("expected first trigger to finish with 200, got %d", w.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first trigger never finished")
	}
}

func TestStatusReportsRegimeAndLastCycle(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	if w := fix.request(http.MethodPost, "/internal/cycle?user=user-1", testSecret); w.Code != http.StatusOK {
		t.Fatalf("trigger failed: %d", w.Code)
	}

	w := fix.request(http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["regime"] != "risk_on" {
		t.Errorf("expected regime risk_on, got %v", body["regime"])
	}

	users, ok := body["users"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected users map, got %T", body["users"])
	}
	if len(users) != 2 {
		t.Errorf("expected both configured users in status, got %d", len(users))
	}

	ran := users["user-1"].(map[string]interface{})
	if ran["in_flight"] != false {
		t.Errorf("expected user-1 not in flight, got %v", ran["in_flight"])
	}
	last, ok := ran["last_cycle"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected last_cycle for user-1, got %v", ran["last_cycle"])
	}
	if last["user_id"] != "user-1" {
		t.Errorf("expected last_cycle user_id user-1, got %v", last["user_id"])
	}

	idle := users["user-2"].(map[string]interface{})
	if _, ok := idle["last_cycle"]; ok {
		t.Error("user-2 never ran, last_cycle should be omitted")
	}
}

func TestHealthz(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	w := fix.request(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestHealthzStorageDown(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})
	fix.server.store = failingStore{}

	w := fix.request(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
}

func TestMetricsExposesCycleCounters(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	if w := fix.request(http.MethodPost, "/internal/cycle?user=user-1", testSecret); w.Code != http.StatusOK {
		t.Fatalf("trigger failed: %d", w.Code)
	}

	w := fix.request(http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "dexpaper_cycles_total") {
		t.Error("expected cycle counter in metrics exposition")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)

	if !limiter.Allow("/internal/cycle") {
		t.Error("first request should pass")
	}
	if !limiter.Allow("/internal/cycle") {
		t.Error("second request should pass")
	}
	if limiter.Allow("/internal/cycle") {
		t.Error("third request should be limited")
	}
	if !limiter.Allow("/status") {
		t.Error("limits are per endpoint, other keys should pass")
	}
}

func TestCORSPreflightAllowed(t *testing.T) {
	fix := newServerFixture(t, quietPoolFeed{})

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	fix.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected wildcard allow-origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
