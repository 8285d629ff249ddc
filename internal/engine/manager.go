package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dexpaper-trading-bot/internal/logging"
)

// ErrCycleInFlight is returned when a user's previous cycle is still
// running. The caller retries on the next tick; cycles never queue.
var ErrCycleInFlight = errors.New("engine: cycle already running for this user")

// Manager fans cycles out across users. Each RunUser builds a fresh
// Engine from the shared deps, so per-cycle threshold state is never
// shared while the store and the rate-limited feed clients are.
type Manager struct {
	deps Deps

	now func() time.Time
	log *logging.Logger

	inflight    sync.Map // userID -> struct{}
	lastResults sync.Map // userID -> *CycleResult

	regimeMu   sync.Mutex
	lastRegime string
}

// NewManager normalises the shared deps and wraps them in a manager.
// Optional deps (bus, notifier, metrics, clock) are defaulted here once
// so every engine built from them publishes to the same place.
func NewManager(deps Deps) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bus == nil {
		deps.Bus = newDefaultBus()
	}
	if deps.Notify == nil {
		deps.Notify = newDisabledNotifier()
	}
	if deps.Metrics == nil {
		deps.Metrics = newDefaultMetrics()
	}
	return &Manager{
		deps: deps,
		now:  deps.Now,
		log:  logging.WithComponent("engine.manager"),
	}
}

// RunUser executes one cycle for the user. A second call for the same
// user while the first is running returns ErrCycleInFlight.
func (m *Manager) RunUser(ctx context.Context, userID string) (*CycleResult, error) {
	if _, loaded := m.inflight.LoadOrStore(userID, struct{}{}); loaded {
		return nil, ErrCycleInFlight
	}
	defer m.inflight.Delete(userID)

	result := New(m.deps).RunCycle(ctx, userID)
	m.lastResults.Store(userID, result)
	m.finishCycle(result)
	return result, nil
}

// RunAll runs one cycle per configured user, at most MaxConcurrency at
// a time. The returned slice holds only the cycles that started.
func (m *Manager) RunAll(ctx context.Context) []*CycleResult {
	users := m.deps.Config.EngineConfig.Users
	slots := make([]*CycleResult, len(users))

	var g errgroup.Group
	g.SetLimit(m.deps.Config.EngineConfig.MaxConcurrency)
	for i, userID := range users {
		i, userID := i, userID
		g.Go(func() error {
			result, err := m.RunUser(ctx, userID)
			if err != nil {
				m.log.Warn("cycle not started", "user", userID, "error", err)
				return nil
			}
			slots[i] = result
			return nil
		})
	}
	g.Wait()

	results := make([]*CycleResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	return results
}

// Run drives the internal ticker: one RunAll immediately, then one per
// interval until the context is cancelled. No-op when the ticker is
// disabled, so cron-triggered deployments just never call this.
func (m *Manager) Run(ctx context.Context) {
	if !m.deps.Config.EngineConfig.TickerEnabled {
		m.log.Info("internal ticker disabled, cycles run on external triggers only")
		return
	}

	interval := m.deps.Config.EngineConfig.CycleInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("engine ticker started",
		"interval", interval.String(), "users", len(m.deps.Config.EngineConfig.Users))
	m.RunAll(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunAll(ctx)
		case <-ctx.Done():
			m.log.Info("engine ticker stopped")
			return
		}
	}
}

// finishCycle publishes the cycle-level signals: metrics, the completion
// event, the regime transition and the chat summary.
func (m *Manager) finishCycle(result *CycleResult) {
	duration := time.Duration(result.DurationMs) * time.Millisecond
	status := "success"
	switch {
	case result.Skipped:
		status = "skipped"
	case len(result.Errors) > 0:
		status = "partial"
	}
	m.deps.Metrics.RecordCycle(status, duration)

	if result.Skipped {
		return
	}

	m.noteRegime(result.Regime, result.Sentiment)

	m.deps.Bus.PublishCycleCompleted(result.UserID, result.Regime,
		result.SignalsAccepted, result.TradesOpened, result.TradesClosed, duration)

	// Quiet cycles stay quiet: the summary only goes out when the book moved.
	if result.TradesOpened > 0 || result.TradesClosed > 0 {
		if err := m.deps.Notify.SendCycleSummary(result.Regime,
			result.SignalsAccepted, result.TradesOpened, result.TradesClosed, result.RealizedPnLUSD); err != nil {
			m.log.Warn("cycle summary notification failed", "error", err)
		}
	}
}

// noteRegime tracks the globally observed regime across all user cycles
// and publishes transitions once, not once per user.
func (m *Manager) noteRegime(current string, sentiment float64) {
	if current == "" {
		return
	}
	m.regimeMu.Lock()
	previous := m.lastRegime
	m.lastRegime = current
	m.regimeMu.Unlock()

	m.deps.Metrics.SetActiveRegime(current)
	if previous != "" && previous != current {
		m.log.Info("market regime changed", "from", previous, "to", current)
		m.deps.Metrics.RecordRegimeSwitch(previous, current)
		m.deps.Bus.PublishRegimeChanged(previous, current, sentiment)
	}
}

// LastResult returns the most recent cycle result for one user
func (m *Manager) LastResult(userID string) (*CycleResult, bool) {
	v, ok := m.lastResults.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*CycleResult), true
}

// Results returns the most recent cycle result per user
func (m *Manager) Results() map[string]*CycleResult {
	out := map[string]*CycleResult{}
	m.lastResults.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(*CycleResult)
		return true
	})
	return out
}

// CurrentRegime returns the last regime any cycle observed
func (m *Manager) CurrentRegime() string {
	m.regimeMu.Lock()
	defer m.regimeMu.Unlock()
	return m.lastRegime
}

// InFlight reports whether a cycle is currently running for the user
func (m *Manager) InFlight(userID string) bool {
	_, ok := m.inflight.Load(userID)
	return ok
}
