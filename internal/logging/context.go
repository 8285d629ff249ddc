package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	cycleIDKey contextKey = "cycle_id"
)

// GenerateCycleID generates a new cycle identifier
func GenerateCycleID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithCycleContext tags the context with a fresh cycle ID and returns a logger carrying it
func WithCycleContext(ctx context.Context, userID string) (context.Context, *Logger) {
	cycleID := GenerateCycleID()
	l := Default().WithCycleID(cycleID).WithUser(userID)
	newCtx := context.WithValue(ctx, cycleIDKey, cycleID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// CycleIDFromContext returns the cycle ID stored in the context, if any
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// SignalContext creates a logger context for signal evaluation
func SignalContext(symbol, network string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"network":    network,
		"confidence": confidence,
	}).WithComponent("signal")
}

// TradeContext creates a logger context for paper trade operations
func TradeContext(symbol, network, layer string, positionUSD float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":       symbol,
		"network":      network,
		"layer":        layer,
		"position_usd": positionUSD,
	}).WithComponent("broker")
}

// RiskContext creates a logger context for risk gate decisions
func RiskContext(layer string, capital, positionUSD float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"layer":        layer,
		"capital":      capital,
		"position_usd": positionUSD,
	}).WithComponent("risk")
}

// FeedContext creates a logger context for market feed calls
func FeedContext(feed, network string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"feed":    feed,
		"network": network,
	}).WithComponent("marketdata")
}

// StorageContext creates a logger context for storage operations
func StorageContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("storage")
}
