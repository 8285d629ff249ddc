package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups when no row exists.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence boundary of the cycle engine. All writes are
// best-effort from the engine's point of view: a failed non-critical write
// is logged and surfaced in the cycle's error list, never fatal.
type Store interface {
	// Risk state, one row per user
	GetRiskState(ctx context.Context, userID string) (*RiskState, error)
	SaveRiskState(ctx context.Context, state *RiskState) error

	// Calibration state, one row per user
	GetCalibrationState(ctx context.Context, userID string) (*CalibrationState, error)
	SaveCalibrationState(ctx context.Context, state *CalibrationState) error

	// Trades
	InsertTrade(ctx context.Context, trade *Trade) error
	UpdateTrade(ctx context.Context, trade *Trade) error
	CloseTrade(ctx context.Context, trade *Trade) error
	OpenTrades(ctx context.Context, userID string) ([]*Trade, error)
	ClosedTradesSince(ctx context.Context, userID string, since time.Time) ([]*Trade, error)

	// Signal outcomes
	InsertSignalOutcome(ctx context.Context, outcome *SignalOutcome) error
	PendingOutcomes(ctx context.Context, userID string, limit int) ([]*SignalOutcome, error)
	UpdateOutcomeWindows(ctx context.Context, outcome *SignalOutcome) error
	RecentOutcomes(ctx context.Context, userID string, limit int) ([]*SignalOutcome, error)
	OutcomesWithPnL24h(ctx context.Context, userID string, limit int) ([]*SignalOutcome, error)

	// Smart-money tables
	UpsertTrackedWallet(ctx context.Context, wallet *TrackedWallet) error
	InsertWalletMovement(ctx context.Context, movement *WalletMovement) error
	WalletBuyers(ctx context.Context, tokenAddress, network string, since time.Time) ([]*WalletBuyer, error)

	// Append-only snapshots
	InsertRegimeSnapshot(ctx context.Context, snapshot *RegimeSnapshot) error
	InsertHealthSnapshot(ctx context.Context, snapshot *TokenHealthSnapshot) error

	// Token registry
	UpsertToken(ctx context.Context, token *Token) error

	Ping(ctx context.Context) error
	Close()
}
