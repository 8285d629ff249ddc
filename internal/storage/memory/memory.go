// Package memory provides an in-process Store used by tests and -dev runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dexpaper-trading-bot/internal/storage"
)

// Store keeps everything in maps guarded by one RWMutex. Values are copied
// on the way in and out so callers never alias internal state.
type Store struct {
	mu           sync.RWMutex
	riskStates   map[string]*storage.RiskState
	calibrations map[string]*storage.CalibrationState
	trades       map[string]*storage.Trade
	outcomes     map[string]*storage.SignalOutcome
	wallets      map[string]*storage.TrackedWallet
	movements    []*storage.WalletMovement
	regimes      []*storage.RegimeSnapshot
	healthSnaps  []*storage.TokenHealthSnapshot
	tokens       map[string]*storage.Token
}

func New() *Store {
	return &Store{
		riskStates:   make(map[string]*storage.RiskState),
		calibrations: make(map[string]*storage.CalibrationState),
		trades:       make(map[string]*storage.Trade),
		outcomes:     make(map[string]*storage.SignalOutcome),
		wallets:      make(map[string]*storage.TrackedWallet),
		tokens:       make(map[string]*storage.Token),
	}
}

func (s *Store) GetRiskState(ctx context.Context, userID string) (*storage.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.riskStates[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRiskState(state), nil
}

func (s *Store) SaveRiskState(ctx context.Context, state *storage.RiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riskStates[state.UserID] = copyRiskState(state)
	return nil
}

func (s *Store) GetCalibrationState(ctx context.Context, userID string) (*storage.CalibrationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.calibrations[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyCalibrationState(state), nil
}

func (s *Store) SaveCalibrationState(ctx context.Context, state *storage.CalibrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrations[state.UserID] = copyCalibrationState(state)
	return nil
}

func (s *Store) InsertTrade(ctx context.Context, trade *storage.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[trade.ID] = copyTrade(trade)
	return nil
}

func (s *Store) UpdateTrade(ctx context.Context, trade *storage.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trades[trade.ID]
	if !ok {
		return storage.ErrNotFound
	}
	updated := copyTrade(trade)
	updated.UserID = existing.UserID
	s.trades[trade.ID] = updated
	return nil
}

func (s *Store) CloseTrade(ctx context.Context, trade *storage.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trades[trade.ID]
	if !ok {
		return storage.ErrNotFound
	}
	updated := copyTrade(trade)
	updated.UserID = existing.UserID
	s.trades[trade.ID] = updated
	return nil
}

func (s *Store) OpenTrades(ctx context.Context, userID string) ([]*storage.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.Trade
	for _, t := range s.trades {
		if t.UserID == userID && t.Status == storage.StatusOpen {
			out = append(out, copyTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredAt.Before(out[j].EnteredAt) })
	return out, nil
}

func (s *Store) ClosedTradesSince(ctx context.Context, userID string, since time.Time) ([]*storage.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.Trade
	for _, t := range s.trades {
		if t.UserID != userID || t.Status != storage.StatusClosed || t.ClosedAt == nil {
			continue
		}
		if t.ClosedAt.Before(since) {
			continue
		}
		out = append(out, copyTrade(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(*out[j].ClosedAt) })
	return out, nil
}

func (s *Store) InsertSignalOutcome(ctx context.Context, outcome *storage.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.ID] = copyOutcome(outcome)
	return nil
}

func (s *Store) PendingOutcomes(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.SignalOutcome
	for _, o := range s.outcomes {
		if o.UserID == userID && !o.FullyTracked {
			out = append(out, copyOutcome(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateOutcomeWindows fills window fields that are still empty. A window
// already written is never overwritten.
func (s *Store) UpdateOutcomeWindows(ctx context.Context, outcome *storage.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.outcomes[outcome.ID]
	if !ok {
		return storage.ErrNotFound
	}
	fillWindow(&existing.Price1h, &existing.PnLPct1h, outcome.Price1h, outcome.PnLPct1h)
	fillWindow(&existing.Price6h, &existing.PnLPct6h, outcome.Price6h, outcome.PnLPct6h)
	fillWindow(&existing.Price24h, &existing.PnLPct24h, outcome.Price24h, outcome.PnLPct24h)
	fillWindow(&existing.Price48h, &existing.PnLPct48h, outcome.Price48h, outcome.PnLPct48h)
	fillWindow(&existing.Price7d, &existing.PnLPct7d, outcome.Price7d, outcome.PnLPct7d)
	if outcome.ChecksDone > existing.ChecksDone {
		existing.ChecksDone = outcome.ChecksDone
	}
	existing.FullyTracked = existing.Price1h != nil && existing.Price6h != nil &&
		existing.Price24h != nil && existing.Price48h != nil && existing.Price7d != nil
	return nil
}

func (s *Store) RecentOutcomes(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.SignalOutcome
	for _, o := range s.outcomes {
		if o.UserID == userID {
			out = append(out, copyOutcome(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) OutcomesWithPnL24h(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.SignalOutcome
	for _, o := range s.outcomes {
		if o.UserID == userID && o.PnLPct24h != nil {
			out = append(out, copyOutcome(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpsertTrackedWallet(ctx context.Context, wallet *storage.TrackedWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := *wallet
	s.wallets[wallet.Address] = &w
	return nil
}

func (s *Store) InsertWalletMovement(ctx context.Context, movement *storage.WalletMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := copyMovement(movement)
	// the simulator derives deterministic IDs; same-day re-injection
	// replaces the row instead of double-counting the buy
	for i, existing := range s.movements {
		if existing.ID == m.ID {
			s.movements[i] = m
			return nil
		}
	}
	s.movements = append(s.movements, m)
	return nil
}

func (s *Store) WalletBuyers(ctx context.Context, tokenAddress, network string, since time.Time) ([]*storage.WalletBuyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byWallet := make(map[string]*storage.WalletBuyer)
	for _, m := range s.movements {
		if m.Direction != storage.SideBuy || m.TokenAddress != tokenAddress || m.Network != network {
			continue
		}
		if m.ObservedAt.Before(since) {
			continue
		}
		buyer, ok := byWallet[m.WalletAddress]
		if !ok {
			buyer = &storage.WalletBuyer{WalletAddress: m.WalletAddress}
			byWallet[m.WalletAddress] = buyer
		}
		buyer.TotalUSD += m.AmountUSD
		if m.ObservedAt.After(buyer.LastBuyAt) {
			buyer.LastBuyAt = m.ObservedAt
		}
	}
	out := make([]*storage.WalletBuyer, 0, len(byWallet))
	for addr, buyer := range byWallet {
		if w, ok := s.wallets[addr]; ok {
			buyer.Score = w.Score
		}
		out = append(out, buyer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WalletAddress < out[j].WalletAddress })
	return out, nil
}

func (s *Store) InsertRegimeSnapshot(ctx context.Context, snapshot *storage.RegimeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *snapshot
	snap.Metadata = copyMetadata(snapshot.Metadata)
	s.regimes = append(s.regimes, &snap)
	return nil
}

func (s *Store) InsertHealthSnapshot(ctx context.Context, snapshot *storage.TokenHealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := *snapshot
	snap.RiskFlags = append([]string(nil), snapshot.RiskFlags...)
	s.healthSnaps = append(s.healthSnaps, &snap)
	return nil
}

func (s *Store) UpsertToken(ctx context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := token.Network + ":" + token.Address
	if existing, ok := s.tokens[key]; ok {
		existing.Symbol = token.Symbol
		if token.Name != "" {
			existing.Name = token.Name
		}
		existing.UpdatedAt = token.UpdatedAt
		return nil
	}
	t := *token
	s.tokens[key] = &t
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() {}

// RegimeSnapshots returns all persisted snapshots, oldest first. Test helper.
func (s *Store) RegimeSnapshots() []*storage.RegimeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.RegimeSnapshot, len(s.regimes))
	copy(out, s.regimes)
	return out
}

// HealthSnapshots returns all persisted health snapshots. Test helper.
func (s *Store) HealthSnapshots() []*storage.TokenHealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.TokenHealthSnapshot, len(s.healthSnaps))
	copy(out, s.healthSnaps)
	return out
}

// Movements returns all wallet movements. Test helper.
func (s *Store) Movements() []*storage.WalletMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*storage.WalletMovement, len(s.movements))
	for i, m := range s.movements {
		out[i] = copyMovement(m)
	}
	return out
}

func fillWindow(price, pnl **float64, newPrice, newPnL *float64) {
	if *price != nil || newPrice == nil || newPnL == nil {
		return
	}
	p := *newPrice
	n := *newPnL
	*price = &p
	*pnl = &n
}

func copyRiskState(in *storage.RiskState) *storage.RiskState {
	out := *in
	if in.PauseUntil != nil {
		t := *in.PauseUntil
		out.PauseUntil = &t
	}
	return &out
}

func copyCalibrationState(in *storage.CalibrationState) *storage.CalibrationState {
	out := *in
	out.InteractionSummary = copyMetadata(in.InteractionSummary)
	return &out
}

func copyTrade(in *storage.Trade) *storage.Trade {
	out := *in
	out.ExitPrice = copyFloat(in.ExitPrice)
	out.PnLAbs = copyFloat(in.PnLAbs)
	out.PnLPct = copyFloat(in.PnLPct)
	if in.IsWin != nil {
		b := *in.IsWin
		out.IsWin = &b
	}
	if in.ExitReason != nil {
		r := *in.ExitReason
		out.ExitReason = &r
	}
	if in.ClosedAt != nil {
		t := *in.ClosedAt
		out.ClosedAt = &t
	}
	out.Metadata = copyMetadata(in.Metadata)
	return &out
}

func copyOutcome(in *storage.SignalOutcome) *storage.SignalOutcome {
	out := *in
	out.Reasons = append([]string(nil), in.Reasons...)
	out.Price1h = copyFloat(in.Price1h)
	out.Price6h = copyFloat(in.Price6h)
	out.Price24h = copyFloat(in.Price24h)
	out.Price48h = copyFloat(in.Price48h)
	out.Price7d = copyFloat(in.Price7d)
	out.PnLPct1h = copyFloat(in.PnLPct1h)
	out.PnLPct6h = copyFloat(in.PnLPct6h)
	out.PnLPct24h = copyFloat(in.PnLPct24h)
	out.PnLPct48h = copyFloat(in.PnLPct48h)
	out.PnLPct7d = copyFloat(in.PnLPct7d)
	out.Metadata = copyMetadata(in.Metadata)
	return &out
}

func copyMovement(in *storage.WalletMovement) *storage.WalletMovement {
	out := *in
	out.Metadata = copyMetadata(in.Metadata)
	return &out
}

func copyFloat(in *float64) *float64 {
	if in == nil {
		return nil
	}
	f := *in
	return &f
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
