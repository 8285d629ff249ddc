package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dexpaper-trading-bot/internal/storage"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods backed by PostgreSQL. It
// implements storage.Store.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping performs a database health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Close releases the underlying connection pool
func (r *Repository) Close() {
	r.db.Close()
}

// ============================================================================
// RISK STATES
// ============================================================================

// GetRiskState retrieves the gate state for a user
func (r *Repository) GetRiskState(ctx context.Context, userID string) (*storage.RiskState, error) {
	query := `
		SELECT user_id, capital_usd, pnl_today, pnl_this_week, trades_today_core,
		       trades_today_satellite, consecutive_losses_satellite, is_paused,
		       COALESCE(pause_reason, ''), pause_until, last_daily_reset, last_weekly_reset, updated_at
		FROM risk_states
		WHERE user_id = $1
	`
	state := &storage.RiskState{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&state.UserID, &state.CapitalUSD, &state.PnLToday, &state.PnLThisWeek,
		&state.TradesTodayCore, &state.TradesTodaySatellite, &state.ConsecutiveLossesSatellite,
		&state.IsPaused, &state.PauseReason, &state.PauseUntil,
		&state.LastDailyReset, &state.LastWeeklyReset, &state.UpdatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return state, nil
}

// SaveRiskState inserts or replaces the gate state for a user
func (r *Repository) SaveRiskState(ctx context.Context, state *storage.RiskState) error {
	query := `
		INSERT INTO risk_states (user_id, capital_usd, pnl_today, pnl_this_week,
			trades_today_core, trades_today_satellite, consecutive_losses_satellite,
			is_paused, pause_reason, pause_until, last_daily_reset, last_weekly_reset, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			capital_usd = EXCLUDED.capital_usd,
			pnl_today = EXCLUDED.pnl_today,
			pnl_this_week = EXCLUDED.pnl_this_week,
			trades_today_core = EXCLUDED.trades_today_core,
			trades_today_satellite = EXCLUDED.trades_today_satellite,
			consecutive_losses_satellite = EXCLUDED.consecutive_losses_satellite,
			is_paused = EXCLUDED.is_paused,
			pause_reason = EXCLUDED.pause_reason,
			pause_until = EXCLUDED.pause_until,
			last_daily_reset = EXCLUDED.last_daily_reset,
			last_weekly_reset = EXCLUDED.last_weekly_reset,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		state.UserID, state.CapitalUSD, state.PnLToday, state.PnLThisWeek,
		state.TradesTodayCore, state.TradesTodaySatellite, state.ConsecutiveLossesSatellite,
		state.IsPaused, state.PauseReason, state.PauseUntil,
		state.LastDailyReset, state.LastWeeklyReset, state.UpdatedAt,
	)
	return err
}

// ============================================================================
// CALIBRATION STATES
// ============================================================================

// GetCalibrationState retrieves the adaptive thresholds for a user
func (r *Repository) GetCalibrationState(ctx context.Context, userID string) (*storage.CalibrationState, error) {
	query := `
		SELECT user_id, momentum_score_threshold, early_score_threshold,
		       core_min_confidence, satellite_min_confidence,
		       core_hit_rate, satellite_hit_rate, core_profit_factor, satellite_profit_factor,
		       momentum_exposure_pct, early_exposure_pct, interaction_summary, last_calibrated_at
		FROM calibration_states
		WHERE user_id = $1
	`
	state := &storage.CalibrationState{}
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&state.UserID, &state.MomentumScoreThreshold, &state.EarlyScoreThreshold,
		&state.CoreMinConfidence, &state.SatelliteMinConfidence,
		&state.CoreHitRate, &state.SatelliteHitRate, &state.CoreProfitFactor, &state.SatelliteProfitFactor,
		&state.MomentumExposurePct, &state.EarlyExposurePct, &state.InteractionSummary, &state.LastCalibratedAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return state, nil
}

// SaveCalibrationState inserts or replaces the adaptive thresholds for a user
func (r *Repository) SaveCalibrationState(ctx context.Context, state *storage.CalibrationState) error {
	query := `
		INSERT INTO calibration_states (user_id, momentum_score_threshold, early_score_threshold,
			core_min_confidence, satellite_min_confidence, core_hit_rate, satellite_hit_rate,
			core_profit_factor, satellite_profit_factor, momentum_exposure_pct, early_exposure_pct,
			interaction_summary, last_calibrated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			momentum_score_threshold = EXCLUDED.momentum_score_threshold,
			early_score_threshold = EXCLUDED.early_score_threshold,
			core_min_confidence = EXCLUDED.core_min_confidence,
			satellite_min_confidence = EXCLUDED.satellite_min_confidence,
			core_hit_rate = EXCLUDED.core_hit_rate,
			satellite_hit_rate = EXCLUDED.satellite_hit_rate,
			core_profit_factor = EXCLUDED.core_profit_factor,
			satellite_profit_factor = EXCLUDED.satellite_profit_factor,
			momentum_exposure_pct = EXCLUDED.momentum_exposure_pct,
			early_exposure_pct = EXCLUDED.early_exposure_pct,
			interaction_summary = EXCLUDED.interaction_summary,
			last_calibrated_at = EXCLUDED.last_calibrated_at
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		state.UserID, state.MomentumScoreThreshold, state.EarlyScoreThreshold,
		state.CoreMinConfidence, state.SatelliteMinConfidence,
		state.CoreHitRate, state.SatelliteHitRate, state.CoreProfitFactor, state.SatelliteProfitFactor,
		state.MomentumExposurePct, state.EarlyExposurePct, state.InteractionSummary, state.LastCalibratedAt,
	)
	return err
}

// ============================================================================
// TRADES
// ============================================================================

const tradeColumns = `id, user_id, symbol, token_address, network, side, status, layer,
	quantity, entry_price, exit_price, pnl_abs, pnl_pct, is_win, fees_abs,
	slippage_simulated, gas_simulated, latency_ms, COALESCE(entry_reason, ''), exit_reason,
	entered_at, closed_at, metadata`

// InsertTrade inserts a new simulated position
func (r *Repository) InsertTrade(ctx context.Context, trade *storage.Trade) error {
	query := `
		INSERT INTO paper_trades (id, user_id, symbol, token_address, network, side, status, layer,
			quantity, entry_price, exit_price, pnl_abs, pnl_pct, is_win, fees_abs,
			slippage_simulated, gas_simulated, latency_ms, entry_reason, exit_reason,
			entered_at, closed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		trade.ID, trade.UserID, trade.Symbol, trade.TokenAddress, trade.Network,
		trade.Side, trade.Status, trade.Layer, trade.Quantity, trade.EntryPrice,
		trade.ExitPrice, trade.PnLAbs, trade.PnLPct, trade.IsWin, trade.FeesAbs,
		trade.SlippageSimulated, trade.GasSimulated, trade.LatencyMs,
		trade.EntryReason, trade.ExitReason, trade.EnteredAt, trade.ClosedAt, trade.Metadata,
	)
	return err
}

// UpdateTrade replaces the mutable fields of an existing trade
func (r *Repository) UpdateTrade(ctx context.Context, trade *storage.Trade) error {
	query := `
		UPDATE paper_trades
		SET status = $2, quantity = $3, entry_price = $4, exit_price = $5, pnl_abs = $6,
		    pnl_pct = $7, is_win = $8, fees_abs = $9, slippage_simulated = $10,
		    gas_simulated = $11, latency_ms = $12, exit_reason = $13, closed_at = $14, metadata = $15
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		trade.ID, trade.Status, trade.Quantity, trade.EntryPrice, trade.ExitPrice,
		trade.PnLAbs, trade.PnLPct, trade.IsWin, trade.FeesAbs, trade.SlippageSimulated,
		trade.GasSimulated, trade.LatencyMs, trade.ExitReason, trade.ClosedAt, trade.Metadata,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CloseTrade writes the exit fields of a closed trade
func (r *Repository) CloseTrade(ctx context.Context, trade *storage.Trade) error {
	query := `
		UPDATE paper_trades
		SET status = $2, exit_price = $3, pnl_abs = $4, pnl_pct = $5, is_win = $6,
		    exit_reason = $7, closed_at = $8, metadata = $9
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		trade.ID, trade.Status, trade.ExitPrice, trade.PnLAbs, trade.PnLPct,
		trade.IsWin, trade.ExitReason, trade.ClosedAt, trade.Metadata,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// OpenTrades retrieves a user's open positions, oldest entry first
func (r *Repository) OpenTrades(ctx context.Context, userID string) ([]*storage.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM paper_trades
		WHERE user_id = $1 AND status = 'open'
		ORDER BY entered_at ASC
	`
	return r.queryTrades(ctx, query, userID)
}

// ClosedTradesSince retrieves a user's closed trades inside the lookback,
// oldest close first
func (r *Repository) ClosedTradesSince(ctx context.Context, userID string, since time.Time) ([]*storage.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM paper_trades
		WHERE user_id = $1 AND status = 'closed' AND closed_at >= $2
		ORDER BY closed_at ASC
	`
	return r.queryTrades(ctx, query, userID, since)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*storage.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*storage.Trade
	for rows.Next() {
		trade := &storage.Trade{}
		err := rows.Scan(
			&trade.ID, &trade.UserID, &trade.Symbol, &trade.TokenAddress, &trade.Network,
			&trade.Side, &trade.Status, &trade.Layer, &trade.Quantity, &trade.EntryPrice,
			&trade.ExitPrice, &trade.PnLAbs, &trade.PnLPct, &trade.IsWin, &trade.FeesAbs,
			&trade.SlippageSimulated, &trade.GasSimulated, &trade.LatencyMs,
			&trade.EntryReason, &trade.ExitReason, &trade.EnteredAt, &trade.ClosedAt, &trade.Metadata,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// ============================================================================
// SIGNAL OUTCOMES
// ============================================================================

const outcomeColumns = `id, user_id, signal_key, token_address, network, COALESCE(layer, ''),
	confidence, regime, entry_price, was_executed, COALESCE(reject_reason, ''), reasons, signal_source,
	price_1h, price_6h, price_24h, price_48h, price_7d,
	pnl_pct_1h, pnl_pct_6h, pnl_pct_24h, pnl_pct_48h, pnl_pct_7d,
	checks_done, fully_tracked, created_at, metadata`

// InsertSignalOutcome records one evaluated signal
func (r *Repository) InsertSignalOutcome(ctx context.Context, outcome *storage.SignalOutcome) error {
	query := `
		INSERT INTO signal_outcomes (id, user_id, signal_key, token_address, network, layer,
			confidence, regime, entry_price, was_executed, reject_reason, reasons, signal_source,
			price_1h, price_6h, price_24h, price_48h, price_7d,
			pnl_pct_1h, pnl_pct_6h, pnl_pct_24h, pnl_pct_48h, pnl_pct_7d,
			checks_done, fully_tracked, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, ''), $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		outcome.ID, outcome.UserID, outcome.SignalKey, outcome.TokenAddress, outcome.Network,
		outcome.Layer, outcome.Confidence, outcome.Regime, outcome.EntryPrice,
		outcome.WasExecuted, outcome.RejectReason, outcome.Reasons, outcome.SignalSource,
		outcome.Price1h, outcome.Price6h, outcome.Price24h, outcome.Price48h, outcome.Price7d,
		outcome.PnLPct1h, outcome.PnLPct6h, outcome.PnLPct24h, outcome.PnLPct48h, outcome.PnLPct7d,
		outcome.ChecksDone, outcome.FullyTracked, outcome.CreatedAt, outcome.Metadata,
	)
	return err
}

// PendingOutcomes retrieves outcomes that still have unfilled windows,
// oldest first
func (r *Repository) PendingOutcomes(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM signal_outcomes
		WHERE user_id = $1 AND NOT fully_tracked
		ORDER BY created_at ASC
	` + limitClause(limit)
	return r.queryOutcomes(ctx, query, userID)
}

// UpdateOutcomeWindows fills window fields that are still empty. A window
// already written is never overwritten.
func (r *Repository) UpdateOutcomeWindows(ctx context.Context, outcome *storage.SignalOutcome) error {
	query := `
		UPDATE signal_outcomes
		SET price_1h = COALESCE(price_1h, $2), pnl_pct_1h = COALESCE(pnl_pct_1h, $3),
		    price_6h = COALESCE(price_6h, $4), pnl_pct_6h = COALESCE(pnl_pct_6h, $5),
		    price_24h = COALESCE(price_24h, $6), pnl_pct_24h = COALESCE(pnl_pct_24h, $7),
		    price_48h = COALESCE(price_48h, $8), pnl_pct_48h = COALESCE(pnl_pct_48h, $9),
		    price_7d = COALESCE(price_7d, $10), pnl_pct_7d = COALESCE(pnl_pct_7d, $11),
		    checks_done = GREATEST(checks_done, $12),
		    fully_tracked = COALESCE(price_1h, $2) IS NOT NULL
		        AND COALESCE(price_6h, $4) IS NOT NULL
		        AND COALESCE(price_24h, $6) IS NOT NULL
		        AND COALESCE(price_48h, $8) IS NOT NULL
		        AND COALESCE(price_7d, $10) IS NOT NULL
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		outcome.ID,
		outcome.Price1h, outcome.PnLPct1h,
		outcome.Price6h, outcome.PnLPct6h,
		outcome.Price24h, outcome.PnLPct24h,
		outcome.Price48h, outcome.PnLPct48h,
		outcome.Price7d, outcome.PnLPct7d,
		outcome.ChecksDone,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecentOutcomes retrieves a user's outcomes, newest first
func (r *Repository) RecentOutcomes(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM signal_outcomes
		WHERE user_id = $1
		ORDER BY created_at DESC
	` + limitClause(limit)
	return r.queryOutcomes(ctx, query, userID)
}

// OutcomesWithPnL24h retrieves outcomes whose 24h window resolved, newest first
func (r *Repository) OutcomesWithPnL24h(ctx context.Context, userID string, limit int) ([]*storage.SignalOutcome, error) {
	query := `
		SELECT ` + outcomeColumns + `
		FROM signal_outcomes
		WHERE user_id = $1 AND pnl_pct_24h IS NOT NULL
		ORDER BY created_at DESC
	` + limitClause(limit)
	return r.queryOutcomes(ctx, query, userID)
}

func (r *Repository) queryOutcomes(ctx context.Context, query string, args ...interface{}) ([]*storage.SignalOutcome, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*storage.SignalOutcome
	for rows.Next() {
		o := &storage.SignalOutcome{}
		err := rows.Scan(
			&o.ID, &o.UserID, &o.SignalKey, &o.TokenAddress, &o.Network, &o.Layer,
			&o.Confidence, &o.Regime, &o.EntryPrice, &o.WasExecuted, &o.RejectReason,
			&o.Reasons, &o.SignalSource,
			&o.Price1h, &o.Price6h, &o.Price24h, &o.Price48h, &o.Price7d,
			&o.PnLPct1h, &o.PnLPct6h, &o.PnLPct24h, &o.PnLPct48h, &o.PnLPct7d,
			&o.ChecksDone, &o.FullyTracked, &o.CreatedAt, &o.Metadata,
		)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ============================================================================
// SMART MONEY
// ============================================================================

// UpsertTrackedWallet inserts or refreshes a roster wallet
func (r *Repository) UpsertTrackedWallet(ctx context.Context, wallet *storage.TrackedWallet) error {
	query := `
		INSERT INTO tracked_wallets (address, label, style, win_rate, score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			label = EXCLUDED.label,
			style = EXCLUDED.style,
			win_rate = EXCLUDED.win_rate,
			score = EXCLUDED.score,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		wallet.Address, wallet.Label, wallet.Style, wallet.WinRate, wallet.Score, wallet.UpdatedAt,
	)
	return err
}

// InsertWalletMovement writes one simulated movement. Movement IDs are
// deterministic, so a same-day re-injection replaces the row instead of
// double-counting the buy.
func (r *Repository) InsertWalletMovement(ctx context.Context, movement *storage.WalletMovement) error {
	query := `
		INSERT INTO wallet_movements (id, wallet_address, token_address, network, direction, amount_usd, observed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			amount_usd = EXCLUDED.amount_usd,
			observed_at = EXCLUDED.observed_at,
			metadata = EXCLUDED.metadata
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		movement.ID, movement.WalletAddress, movement.TokenAddress, movement.Network,
		movement.Direction, movement.AmountUSD, movement.ObservedAt, movement.Metadata,
	)
	return err
}

// WalletBuyers aggregates the unique wallets that bought a token inside the
// lookback window, with roster scores joined in
func (r *Repository) WalletBuyers(ctx context.Context, tokenAddress, network string, since time.Time) ([]*storage.WalletBuyer, error) {
	query := `
		SELECT m.wallet_address, COALESCE(w.score, 0), SUM(m.amount_usd), MAX(m.observed_at)
		FROM wallet_movements m
		LEFT JOIN tracked_wallets w ON w.address = m.wallet_address
		WHERE m.token_address = $1 AND m.network = $2 AND m.direction = 'buy' AND m.observed_at >= $3
		GROUP BY m.wallet_address, w.score
		ORDER BY m.wallet_address ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, tokenAddress, network, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buyers []*storage.WalletBuyer
	for rows.Next() {
		b := &storage.WalletBuyer{}
		if err := rows.Scan(&b.WalletAddress, &b.Score, &b.TotalUSD, &b.LastBuyAt); err != nil {
			return nil, err
		}
		buyers = append(buyers, b)
	}
	return buyers, rows.Err()
}

// ============================================================================
// SNAPSHOTS
// ============================================================================

// InsertRegimeSnapshot appends one per-cycle regime record
func (r *Repository) InsertRegimeSnapshot(ctx context.Context, snapshot *storage.RegimeSnapshot) error {
	query := `
		INSERT INTO market_regimes (id, regime, sentiment_score, btc_dominance, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		snapshot.ID, snapshot.Regime, snapshot.SentimentScore, snapshot.BTCDominance,
		snapshot.CreatedAt, snapshot.Metadata,
	)
	return err
}

// InsertHealthSnapshot appends one health check record
func (r *Repository) InsertHealthSnapshot(ctx context.Context, snapshot *storage.TokenHealthSnapshot) error {
	query := `
		INSERT INTO token_health_snapshots (id, token_address, network, score, liquidity_usd,
			volume_24h_usd, price_usd, spread_pct, concentration, risk_flags, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		snapshot.ID, snapshot.TokenAddress, snapshot.Network, snapshot.Score,
		snapshot.LiquidityUSD, snapshot.Volume24hUSD, snapshot.PriceUSD, snapshot.SpreadPct,
		snapshot.Concentration, snapshot.RiskFlags, snapshot.CheckedAt,
	)
	return err
}

// ============================================================================
// TOKENS
// ============================================================================

// UpsertToken registers a token on first sight and refreshes its symbol
// afterwards. An empty name never overwrites a known one.
func (r *Repository) UpsertToken(ctx context.Context, token *storage.Token) error {
	query := `
		INSERT INTO tokens (address, network, symbol, name, first_seen, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (network, address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = COALESCE(EXCLUDED.name, tokens.name),
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		token.Address, token.Network, token.Symbol, token.Name, token.FirstSeen, token.UpdatedAt,
	)
	return err
}

// mapNotFound converts pgx.ErrNoRows into the store sentinel
func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// limitClause renders an optional LIMIT. A non-positive limit means no cap,
// matching the in-memory store.
func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
