package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dexpaper-trading-bot/internal/events"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/notification"
	"dexpaper-trading-bot/internal/regime"
	"dexpaper-trading-bot/internal/storage/memory"
)

// blockingPoolFeed parks the first trending scan until released, so tests
// can hold a cycle in flight.
type blockingPoolFeed struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPoolFeed() *blockingPoolFeed {
	return &blockingPoolFeed{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingPoolFeed) TrendingPools(ctx context.Context, _ []string) (*marketdata.PoolFeedResult, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &marketdata.PoolFeedResult{}, nil
}

func (b *blockingPoolFeed) NewPools(context.Context, []string) (*marketdata.PoolFeedResult, error) {
	return &marketdata.PoolFeedResult{}, nil
}

func TestManagerRunAllProcessesConfiguredUsers(t *testing.T) {
	store := memory.New()
	deps := testDeps(store, &stubPoolFeed{}, &stubPairs{byToken: map[string]*marketdata.Pair{}}, riskOnSentiment())
	deps.Config.EngineConfig.Users = []string{"user-1", "user-2"}
	deps.RNG = nil // concurrent cycles must not share one rand source

	m := NewManager(deps)
	results := m.RunAll(context.Background())

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Skipped || len(r.Errors) != 0 {
			t.Errorf("cycle %s skipped=%v errors=%v", r.UserID, r.Skipped, r.Errors)
		}
		if r.Regime != regime.RiskOn {
			t.Errorf("cycle %s regime = %q, want risk_on", r.UserID, r.Regime)
		}
	}

	byUser := m.Results()
	if len(byUser) != 2 || byUser["user-1"] == nil || byUser["user-2"] == nil {
		t.Errorf("Results() = %v, want both users", byUser)
	}
	if _, ok := m.LastResult("user-1"); !ok {
		t.Error("LastResult missing for user-1")
	}
	if got := m.CurrentRegime(); got != regime.RiskOn {
		t.Errorf("CurrentRegime = %q, want risk_on", got)
	}

	for _, user := range []string{"user-1", "user-2"} {
		if _, err := store.GetRiskState(context.Background(), user); err != nil {
			t.Errorf("risk state missing for %s: %v", user, err)
		}
	}
}

func TestManagerRejectsOverlappingCycles(t *testing.T) {
	feed := newBlockingPoolFeed()
	deps := testDeps(memory.New(), feed, &stubPairs{byToken: map[string]*marketdata.Pair{}}, riskOnSentiment())
	m := NewManager(deps)

	done := make(chan *CycleResult, 1)
	go func() {
		result, err := m.RunUser(context.Background(), "user-1")
		if err != nil {
			t.Errorf("RunUser: %v", err)
		}
		done <- result
	}()

	<-feed.entered
	if !m.InFlight("user-1") {
		t.Error("InFlight should report the running cycle")
	}
	if _, err := m.RunUser(context.Background(), "user-1"); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("overlapping RunUser error = %v, want ErrCycleInFlight", err)
	}

	close(feed.release)
	result := <-done
	if result == nil || result.Skipped {
		t.Fatalf("blocked cycle result = %+v", result)
	}
	if m.InFlight("user-1") {
		t.Error("InFlight should clear after the cycle returns")
	}
}

func TestManagerPublishesRegimeTransitions(t *testing.T) {
	sentiment := riskOnSentiment()
	deps := testDeps(memory.New(), &stubPoolFeed{}, &stubPairs{byToken: map[string]*marketdata.Pair{}}, sentiment)
	m := NewManager(deps)
	transitions := subscribe(deps.Bus, events.EventRegimeChanged)

	if _, err := m.RunUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if got := m.CurrentRegime(); got != regime.RiskOn {
		t.Fatalf("CurrentRegime = %q, want risk_on", got)
	}

	sentiment.value = 20
	sentiment.dominance = 60
	if _, err := m.RunUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	e := waitEvent(t, transitions, events.EventRegimeChanged)
	if e.Data["previous"] != regime.RiskOn || e.Data["current"] != regime.RiskOff {
		t.Errorf("transition = %v -> %v, want risk_on -> risk_off", e.Data["previous"], e.Data["current"])
	}
	if got := m.CurrentRegime(); got != regime.RiskOff {
		t.Errorf("CurrentRegime = %q, want risk_off", got)
	}
}

func TestManagerSummaryOnlyWhenBookMoved(t *testing.T) {
	store := memory.New()
	feed := &stubPoolFeed{}
	pairs := &stubPairs{byToken: map[string]*marketdata.Pair{"0xmom": deepPair("0xmom", 1.0)}}
	deps := testDeps(store, feed, pairs, riskOnSentiment())
	fake := captureNotifications(&deps)
	m := NewManager(deps)

	if _, err := m.RunUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("quiet cycle: %v", err)
	}
	if got := fake.count(notification.NotifyCycleSummary); got != 0 {
		t.Fatalf("summaries after quiet cycle = %d, want 0", got)
	}

	feed.trending = []marketdata.Pool{trendingPool("0xmom")}
	result, err := m.RunUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("active cycle: %v", err)
	}
	if result.TradesOpened != 1 {
		t.Fatalf("TradesOpened = %d, want 1", result.TradesOpened)
	}
	if got := fake.count(notification.NotifyCycleSummary); got != 1 {
		t.Errorf("summaries after active cycle = %d, want 1", got)
	}
}

func TestManagerRunTickerDisabled(t *testing.T) {
	deps := testDeps(memory.New(), &stubPoolFeed{}, &stubPairs{byToken: map[string]*marketdata.Pair{}}, riskOnSentiment())
	m := NewManager(deps)

	m.Run(context.Background())

	if got := len(m.Results()); got != 0 {
		t.Errorf("results = %d, want none with the ticker disabled", got)
	}
}

func TestManagerRunImmediatePassThenStops(t *testing.T) {
	deps := testDeps(memory.New(), &stubPoolFeed{}, &stubPairs{byToken: map[string]*marketdata.Pair{}}, riskOnSentiment())
	deps.Config.EngineConfig.TickerEnabled = true
	deps.Config.EngineConfig.CycleInterval = time.Minute
	m := NewManager(deps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	if _, ok := m.LastResult("user-1"); !ok {
		t.Fatal("immediate pass should have stored a result")
	}
}
