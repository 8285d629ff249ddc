package storage

import (
	"time"
)

// Risk layer constants
const (
	LayerCore      = "core"
	LayerSatellite = "satellite"
)

// Trade side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade status constants
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Signal source constants
const (
	SourceMomentum = "momentum"
	SourceEarly    = "early"
)

// RiskState is the per-user gate state, mutated after every open and close
// and reset daily / weekly (Monday UTC).
type RiskState struct {
	UserID                     string     `json:"user_id"`
	CapitalUSD                 float64    `json:"capital_usd"`
	PnLToday                   float64    `json:"pnl_today"`
	PnLThisWeek                float64    `json:"pnl_this_week"`
	TradesTodayCore            int        `json:"trades_today_core"`
	TradesTodaySatellite       int        `json:"trades_today_satellite"`
	ConsecutiveLossesSatellite int        `json:"consecutive_losses_satellite"`
	IsPaused                   bool       `json:"is_paused"`
	PauseReason                string     `json:"pause_reason,omitempty"`
	PauseUntil                 *time.Time `json:"pause_until,omitempty"`
	LastDailyReset             time.Time  `json:"last_daily_reset"`
	LastWeeklyReset            time.Time  `json:"last_weekly_reset"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// Trade is a simulated position. Open trades have no exit fields; closed
// trades have all of them.
type Trade struct {
	ID                string                 `json:"id"`
	UserID            string                 `json:"user_id"`
	Symbol            string                 `json:"symbol"`
	TokenAddress      string                 `json:"token_address"`
	Network           string                 `json:"network"`
	Side              string                 `json:"side"`
	Status            string                 `json:"status"`
	Layer             string                 `json:"layer"`
	Quantity          float64                `json:"quantity"`
	EntryPrice        float64                `json:"entry_price"`
	ExitPrice         *float64               `json:"exit_price,omitempty"`
	PnLAbs            *float64               `json:"pnl_abs,omitempty"`
	PnLPct            *float64               `json:"pnl_pct,omitempty"`
	IsWin             *bool                  `json:"is_win,omitempty"`
	FeesAbs           float64                `json:"fees_abs"`
	SlippageSimulated float64                `json:"slippage_simulated"`
	GasSimulated      float64                `json:"gas_simulated"`
	LatencyMs         int                    `json:"latency_ms"`
	EntryReason       string                 `json:"entry_reason"`
	ExitReason        *string                `json:"exit_reason,omitempty"`
	EnteredAt         time.Time              `json:"entered_at"`
	ClosedAt          *time.Time             `json:"closed_at,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// SignalOutcome records every evaluated signal (executed or not) and its
// forward price at fixed horizons. Each window is written at most once.
type SignalOutcome struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	SignalKey    string                 `json:"signal_key"`
	TokenAddress string                 `json:"token_address"`
	Network      string                 `json:"network"`
	Layer        string                 `json:"layer"`
	Confidence   float64                `json:"confidence"`
	Regime       string                 `json:"regime"`
	EntryPrice   float64                `json:"entry_price"`
	WasExecuted  bool                   `json:"was_executed"`
	RejectReason string                 `json:"reject_reason,omitempty"`
	Reasons      []string               `json:"reasons"`
	SignalSource string                 `json:"signal_source"`
	Price1h      *float64               `json:"price_1h,omitempty"`
	Price6h      *float64               `json:"price_6h,omitempty"`
	Price24h     *float64               `json:"price_24h,omitempty"`
	Price48h     *float64               `json:"price_48h,omitempty"`
	Price7d      *float64               `json:"price_7d,omitempty"`
	PnLPct1h     *float64               `json:"pnl_pct_1h,omitempty"`
	PnLPct6h     *float64               `json:"pnl_pct_6h,omitempty"`
	PnLPct24h    *float64               `json:"pnl_pct_24h,omitempty"`
	PnLPct48h    *float64               `json:"pnl_pct_48h,omitempty"`
	PnLPct7d     *float64               `json:"pnl_pct_7d,omitempty"`
	ChecksDone   int                    `json:"checks_done"`
	FullyTracked bool                   `json:"fully_tracked"`
	CreatedAt    time.Time              `json:"created_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// CalibrationState holds the per-user adaptive thresholds and the observed
// statistics the calibrator derived them from.
type CalibrationState struct {
	UserID                 string                 `json:"user_id"`
	MomentumScoreThreshold float64                `json:"momentum_score_threshold"`
	EarlyScoreThreshold    float64                `json:"early_score_threshold"`
	CoreMinConfidence      float64                `json:"core_min_confidence"`
	SatelliteMinConfidence float64                `json:"satellite_min_confidence"`
	CoreHitRate            float64                `json:"core_hit_rate"`
	SatelliteHitRate       float64                `json:"satellite_hit_rate"`
	CoreProfitFactor       float64                `json:"core_profit_factor"`
	SatelliteProfitFactor  float64                `json:"satellite_profit_factor"`
	MomentumExposurePct    float64                `json:"momentum_exposure_pct"`
	EarlyExposurePct       float64                `json:"early_exposure_pct"`
	InteractionSummary     map[string]interface{} `json:"interaction_summary,omitempty"`
	LastCalibratedAt       time.Time              `json:"last_calibrated_at"`
}

// TrackedWallet is a synthetic smart-money wallet row
type TrackedWallet struct {
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Style     string    `json:"style"`
	WinRate   float64   `json:"win_rate"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletMovement is a single simulated wallet buy or sell
type WalletMovement struct {
	ID            string                 `json:"id"`
	WalletAddress string                 `json:"wallet_address"`
	TokenAddress  string                 `json:"token_address"`
	Network       string                 `json:"network"`
	Direction     string                 `json:"direction"`
	AmountUSD     float64                `json:"amount_usd"`
	ObservedAt    time.Time              `json:"observed_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// WalletBuyer is the aggregated view the confluence engine reads: one row
// per unique wallet that bought a token inside the lookback window.
type WalletBuyer struct {
	WalletAddress string    `json:"wallet_address"`
	Score         float64   `json:"score"`
	TotalUSD      float64   `json:"total_usd"`
	LastBuyAt     time.Time `json:"last_buy_at"`
}

// RegimeSnapshot is an append-only record of each cycle's market regime
type RegimeSnapshot struct {
	ID             string                 `json:"id"`
	Regime         string                 `json:"regime"`
	SentimentScore float64                `json:"sentiment_score"`
	BTCDominance   float64                `json:"btc_dominance"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// TokenHealthSnapshot is an append-only record of a health check
type TokenHealthSnapshot struct {
	ID            string    `json:"id"`
	TokenAddress  string    `json:"token_address"`
	Network       string    `json:"network"`
	Score         float64   `json:"score"`
	LiquidityUSD  float64   `json:"liquidity_usd"`
	Volume24hUSD  float64   `json:"volume_24h_usd"`
	PriceUSD      float64   `json:"price_usd"`
	SpreadPct     float64   `json:"spread_pct"`
	Concentration *float64  `json:"concentration,omitempty"`
	RiskFlags     []string  `json:"risk_flags"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Token is a registry row auto-created the first time a token is seen
type Token struct {
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}
