// Package outcomes follows every evaluated signal forward. Each signal
// gets a row at evaluation time, executed or not, and a sweeper fills the
// forward price windows as they elapse so the calibrator can learn from
// what the engine actually saw.
package outcomes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dexpaper-trading-bot/internal/logging"
	"dexpaper-trading-bot/internal/marketdata"
	"dexpaper-trading-bot/internal/storage"
)

// trackedWindows is how many forward windows a record carries
const trackedWindows = 5

// PairFetcher resolves a token to its best live pair
type PairFetcher interface {
	BestPair(ctx context.Context, network, tokenAddress string) (*marketdata.Pair, error)
}

// Signal is one evaluated signal to record
type Signal struct {
	UserID       string
	TokenAddress string
	Network      string
	Symbol       string
	Layer        string
	Confidence   float64
	Regime       string
	EntryPrice   float64
	WasExecuted  bool
	RejectReason string
	Reasons      []string
	SignalSource string
	Metadata     map[string]interface{}
}

// UpdateReport summarizes one tracking sweep
type UpdateReport struct {
	Scanned      int
	Updated      int
	FullyTracked int
	Errors       []error
}

// WindowStats is the hit rate and average pnl of one forward window
type WindowStats struct {
	Window    string
	Tracked   int
	Hits      int
	HitRate   float64
	AvgPnLPct float64
}

// Summary is the validation view over recent outcomes. Layer and regime
// breakdowns are measured on the 24h window, the one the calibrator reads.
type Summary struct {
	Total    int
	Windows  []WindowStats
	ByLayer  map[string]WindowStats
	ByRegime map[string]WindowStats
	Recent   []*storage.SignalOutcome
}

// Tracker records signals and fills their forward windows
type Tracker struct {
	store storage.Store
	pairs PairFetcher
	now   func() time.Time
	log   *logging.Logger
}

// NewTracker creates a tracker. now is injectable for tests.
func NewTracker(store storage.Store, pairs PairFetcher, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store: store,
		pairs: pairs,
		now:   now,
		log:   logging.WithComponent("outcomes"),
	}
}

// Record writes one outcome row for an evaluated signal
func (t *Tracker) Record(ctx context.Context, sig Signal) (*storage.SignalOutcome, error) {
	createdAt := t.now().UTC()
	outcome := &storage.SignalOutcome{
		ID:           uuid.NewString(),
		UserID:       sig.UserID,
		SignalKey:    fmt.Sprintf("%s:%s:%s:%d", sig.Network, sig.TokenAddress, sig.SignalSource, createdAt.Unix()),
		TokenAddress: sig.TokenAddress,
		Network:      sig.Network,
		Layer:        sig.Layer,
		Confidence:   sig.Confidence,
		Regime:       sig.Regime,
		EntryPrice:   sig.EntryPrice,
		WasExecuted:  sig.WasExecuted,
		RejectReason: sig.RejectReason,
		Reasons:      sig.Reasons,
		SignalSource: sig.SignalSource,
		CreatedAt:    createdAt,
		Metadata:     sig.Metadata,
	}
	if err := t.store.InsertSignalOutcome(ctx, outcome); err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}
	return outcome, nil
}

// UpdatePending revisits under-tracked records and fills every elapsed
// window that is still empty. The current price is fetched at most once
// per token per sweep; a record with nothing elapsed costs no fetch.
func (t *Tracker) UpdatePending(ctx context.Context, userID string, limit int) (*UpdateReport, error) {
	pending, err := t.store.PendingOutcomes(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending outcomes: %w", err)
	}

	report := &UpdateReport{Scanned: len(pending)}
	now := t.now().UTC()

	type priceResult struct {
		price float64
		err   error
	}
	prices := map[string]priceResult{}
	fetch := func(network, token string) (float64, error) {
		key := network + ":" + token
		if r, ok := prices[key]; ok {
			return r.price, r.err
		}
		var r priceResult
		pair, err := t.pairs.BestPair(ctx, network, token)
		switch {
		case err != nil:
			r.err = err
		case pair == nil || pair.PriceUSD <= 0:
			r.err = errors.New("no live price")
		default:
			r.price = pair.PriceUSD
		}
		prices[key] = r
		return r.price, r.err
	}

	for _, outcome := range pending {
		age := now.Sub(outcome.CreatedAt)

		var due []windowRef
		for _, ref := range windowRefs(outcome) {
			if age >= ref.age && *ref.price == nil {
				due = append(due, ref)
			}
		}
		if len(due) == 0 {
			continue
		}

		price, err := fetch(outcome.Network, outcome.TokenAddress)
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Errorf("%s/%s: %w", outcome.Network, outcome.TokenAddress, err))
			continue
		}

		for _, ref := range due {
			p := price
			pnl := 0.0
			if outcome.EntryPrice > 0 {
				pnl = (price - outcome.EntryPrice) / outcome.EntryPrice * 100
			}
			*ref.price = &p
			*ref.pnl = &pnl
		}
		outcome.ChecksDone++

		if err := t.store.UpdateOutcomeWindows(ctx, outcome); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("update %s: %w", outcome.ID, err))
			continue
		}
		report.Updated++
		if filledWindows(outcome) == trackedWindows {
			report.FullyTracked++
		}
	}

	if report.Updated > 0 || len(report.Errors) > 0 {
		t.log.Info("outcome sweep",
			"scanned", report.Scanned, "updated", report.Updated,
			"fully_tracked", report.FullyTracked, "errors", len(report.Errors))
	}
	return report, nil
}

// ValidationSummary aggregates hit rates over the most recent limit records
func (t *Tracker) ValidationSummary(ctx context.Context, userID string, limit int) (*Summary, error) {
	recent, err := t.store.RecentOutcomes(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent outcomes: %w", err)
	}

	summary := &Summary{
		Total:    len(recent),
		ByLayer:  map[string]WindowStats{},
		ByRegime: map[string]WindowStats{},
		Recent:   recent,
	}

	names := []string{"1h", "6h", "24h", "48h", "7d"}
	for i, name := range names {
		stats := WindowStats{Window: name}
		for _, o := range recent {
			refs := windowRefs(o)
			addSample(&stats, *refs[i].pnl)
		}
		finishStats(&stats)
		summary.Windows = append(summary.Windows, stats)
	}

	for _, o := range recent {
		pnl24 := o.PnLPct24h
		if o.Layer != "" {
			stats := summary.ByLayer[o.Layer]
			stats.Window = "24h"
			addSample(&stats, pnl24)
			summary.ByLayer[o.Layer] = stats
		}
		if o.Regime != "" {
			stats := summary.ByRegime[o.Regime]
			stats.Window = "24h"
			addSample(&stats, pnl24)
			summary.ByRegime[o.Regime] = stats
		}
	}
	for k, stats := range summary.ByLayer {
		finishStats(&stats)
		summary.ByLayer[k] = stats
	}
	for k, stats := range summary.ByRegime {
		finishStats(&stats)
		summary.ByRegime[k] = stats
	}

	return summary, nil
}

// windowRef points at one forward window of a record
type windowRef struct {
	name  string
	age   time.Duration
	price **float64
	pnl   **float64
}

func windowRefs(o *storage.SignalOutcome) []windowRef {
	return []windowRef{
		{"1h", time.Hour, &o.Price1h, &o.PnLPct1h},
		{"6h", 6 * time.Hour, &o.Price6h, &o.PnLPct6h},
		{"24h", 24 * time.Hour, &o.Price24h, &o.PnLPct24h},
		{"48h", 48 * time.Hour, &o.Price48h, &o.PnLPct48h},
		{"7d", 7 * 24 * time.Hour, &o.Price7d, &o.PnLPct7d},
	}
}

func filledWindows(o *storage.SignalOutcome) int {
	n := 0
	for _, ref := range windowRefs(o) {
		if *ref.price != nil {
			n++
		}
	}
	return n
}

// addSample accumulates tracked/hits/sum into stats; AvgPnLPct carries the
// running sum until finishStats divides it out.
func addSample(stats *WindowStats, pnl *float64) {
	if pnl == nil {
		return
	}
	stats.Tracked++
	if *pnl > 0 {
		stats.Hits++
	}
	stats.AvgPnLPct += *pnl
}

func finishStats(stats *WindowStats) {
	if stats.Tracked == 0 {
		return
	}
	stats.HitRate = float64(stats.Hits) / float64(stats.Tracked)
	stats.AvgPnLPct /= float64(stats.Tracked)
}
