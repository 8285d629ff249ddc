package database

// migrations run in order on startup. Statements are idempotent so a
// restart against an existing schema is a no-op.
var migrations = []string{
	// Per-user risk gate state
	`CREATE TABLE IF NOT EXISTS risk_states (
		user_id VARCHAR(100) PRIMARY KEY,
		capital_usd DECIMAL(20, 8) NOT NULL,
		pnl_today DECIMAL(20, 8) NOT NULL DEFAULT 0,
		pnl_this_week DECIMAL(20, 8) NOT NULL DEFAULT 0,
		trades_today_core INT NOT NULL DEFAULT 0,
		trades_today_satellite INT NOT NULL DEFAULT 0,
		consecutive_losses_satellite INT NOT NULL DEFAULT 0,
		is_paused BOOLEAN NOT NULL DEFAULT FALSE,
		pause_reason TEXT,
		pause_until TIMESTAMPTZ,
		last_daily_reset TIMESTAMPTZ NOT NULL,
		last_weekly_reset TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Per-user adaptive thresholds
	`CREATE TABLE IF NOT EXISTS calibration_states (
		user_id VARCHAR(100) PRIMARY KEY,
		momentum_score_threshold DECIMAL(8, 3) NOT NULL,
		early_score_threshold DECIMAL(8, 3) NOT NULL,
		core_min_confidence DECIMAL(8, 3) NOT NULL,
		satellite_min_confidence DECIMAL(8, 3) NOT NULL,
		core_hit_rate DECIMAL(8, 4) NOT NULL DEFAULT 0,
		satellite_hit_rate DECIMAL(8, 4) NOT NULL DEFAULT 0,
		core_profit_factor DECIMAL(12, 4) NOT NULL DEFAULT 0,
		satellite_profit_factor DECIMAL(12, 4) NOT NULL DEFAULT 0,
		momentum_exposure_pct DECIMAL(8, 4) NOT NULL DEFAULT 0,
		early_exposure_pct DECIMAL(8, 4) NOT NULL DEFAULT 0,
		interaction_summary JSONB,
		last_calibrated_at TIMESTAMPTZ NOT NULL
	)`,

	// Simulated positions
	`CREATE TABLE IF NOT EXISTS paper_trades (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(100) NOT NULL,
		symbol VARCHAR(40) NOT NULL,
		token_address VARCHAR(100) NOT NULL,
		network VARCHAR(30) NOT NULL,
		side VARCHAR(4) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		layer VARCHAR(20) NOT NULL,
		quantity DECIMAL(30, 12) NOT NULL,
		entry_price DECIMAL(30, 18) NOT NULL,
		exit_price DECIMAL(30, 18),
		pnl_abs DECIMAL(20, 8),
		pnl_pct DECIMAL(12, 4),
		is_win BOOLEAN,
		fees_abs DECIMAL(20, 8) NOT NULL DEFAULT 0,
		slippage_simulated DECIMAL(12, 6) NOT NULL DEFAULT 0,
		gas_simulated DECIMAL(20, 8) NOT NULL DEFAULT 0,
		latency_ms INT NOT NULL DEFAULT 0,
		entry_reason TEXT,
		exit_reason TEXT,
		entered_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_user_status ON paper_trades(user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_closed_at ON paper_trades(closed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_token ON paper_trades(token_address, network)`,

	// Every evaluated signal and its forward windows
	`CREATE TABLE IF NOT EXISTS signal_outcomes (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(100) NOT NULL,
		signal_key VARCHAR(200) NOT NULL,
		token_address VARCHAR(100) NOT NULL,
		network VARCHAR(30) NOT NULL,
		layer VARCHAR(20),
		confidence DECIMAL(8, 3) NOT NULL,
		regime VARCHAR(20) NOT NULL,
		entry_price DECIMAL(30, 18) NOT NULL,
		was_executed BOOLEAN NOT NULL DEFAULT FALSE,
		reject_reason TEXT,
		reasons TEXT[],
		signal_source VARCHAR(20) NOT NULL,
		price_1h DECIMAL(30, 18),
		price_6h DECIMAL(30, 18),
		price_24h DECIMAL(30, 18),
		price_48h DECIMAL(30, 18),
		price_7d DECIMAL(30, 18),
		pnl_pct_1h DECIMAL(12, 4),
		pnl_pct_6h DECIMAL(12, 4),
		pnl_pct_24h DECIMAL(12, 4),
		pnl_pct_48h DECIMAL(12, 4),
		pnl_pct_7d DECIMAL(12, 4),
		checks_done INT NOT NULL DEFAULT 0,
		fully_tracked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_outcomes_pending ON signal_outcomes(user_id, created_at) WHERE NOT fully_tracked`,
	`CREATE INDEX IF NOT EXISTS idx_signal_outcomes_user_created ON signal_outcomes(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_outcomes_signal_key ON signal_outcomes(signal_key)`,

	// Synthetic smart-money roster
	`CREATE TABLE IF NOT EXISTS tracked_wallets (
		address VARCHAR(100) PRIMARY KEY,
		label VARCHAR(100) NOT NULL,
		style VARCHAR(30) NOT NULL,
		win_rate DECIMAL(8, 4) NOT NULL,
		score DECIMAL(8, 3) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Simulated wallet buys and sells. IDs are deterministic per wallet,
	// token and day so re-injection replaces instead of double-counting.
	`CREATE TABLE IF NOT EXISTS wallet_movements (
		id VARCHAR(80) PRIMARY KEY,
		wallet_address VARCHAR(100) NOT NULL,
		token_address VARCHAR(100) NOT NULL,
		network VARCHAR(30) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		amount_usd DECIMAL(20, 8) NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_movements_token ON wallet_movements(token_address, network, direction, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_movements_wallet ON wallet_movements(wallet_address)`,

	// Append-only per-cycle regime snapshots
	`CREATE TABLE IF NOT EXISTS market_regimes (
		id VARCHAR(36) PRIMARY KEY,
		regime VARCHAR(20) NOT NULL,
		sentiment_score DECIMAL(8, 3) NOT NULL,
		btc_dominance DECIMAL(8, 3) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_regimes_created ON market_regimes(created_at DESC)`,

	// Append-only health check snapshots
	`CREATE TABLE IF NOT EXISTS token_health_snapshots (
		id VARCHAR(36) PRIMARY KEY,
		token_address VARCHAR(100) NOT NULL,
		network VARCHAR(30) NOT NULL,
		score DECIMAL(8, 3) NOT NULL,
		liquidity_usd DECIMAL(20, 8) NOT NULL,
		volume_24h_usd DECIMAL(20, 8) NOT NULL,
		price_usd DECIMAL(30, 18) NOT NULL,
		spread_pct DECIMAL(12, 6) NOT NULL,
		concentration DECIMAL(8, 4),
		risk_flags TEXT[],
		checked_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_token_health_token ON token_health_snapshots(token_address, network, checked_at DESC)`,

	// Token registry, auto-created on first sight
	`CREATE TABLE IF NOT EXISTS tokens (
		address VARCHAR(100) NOT NULL,
		network VARCHAR(30) NOT NULL,
		symbol VARCHAR(40) NOT NULL,
		name VARCHAR(200),
		first_seen TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (network, address)
	)`,
}
