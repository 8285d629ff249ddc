package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventCycleCompleted  EventType = "CYCLE_COMPLETED"
	EventRegimeChanged   EventType = "REGIME_CHANGED"
	EventUserPaused      EventType = "USER_PAUSED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(userID, symbol, network, layer string, entryPrice, positionUSD float64) {
	eb.Publish(Event{
		Type:   EventTradeOpened,
		UserID: userID,
		Data: map[string]interface{}{
			"symbol":       symbol,
			"network":      network,
			"layer":        layer,
			"entry_price":  entryPrice,
			"position_usd": positionUSD,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(userID, symbol, network, reason string, exitPrice, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type:   EventTradeClosed,
		UserID: userID,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"network":     network,
			"reason":      reason,
			"exit_price":  exitPrice,
			"pnl":         pnl,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(userID, symbol, network, source, layer string, confidence float64) {
	eb.Publish(Event{
		Type:   EventSignalGenerated,
		UserID: userID,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"network":    network,
			"source":     source,
			"layer":      layer,
			"confidence": confidence,
		},
	})
}

// PublishCycleCompleted publishes a cycle completed event
func (eb *EventBus) PublishCycleCompleted(userID, regime string, signals, executed, closed int, duration time.Duration) {
	eb.Publish(Event{
		Type:   EventCycleCompleted,
		UserID: userID,
		Data: map[string]interface{}{
			"regime":      regime,
			"signals":     signals,
			"executed":    executed,
			"closed":      closed,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishRegimeChanged publishes a regime change event
func (eb *EventBus) PublishRegimeChanged(previous, current string, sentiment float64) {
	eb.Publish(Event{
		Type: EventRegimeChanged,
		Data: map[string]interface{}{
			"previous":  previous,
			"current":   current,
			"sentiment": sentiment,
		},
	})
}

// PublishUserPaused publishes a kill-switch pause event
func (eb *EventBus) PublishUserPaused(userID, reason string, until time.Time) {
	eb.Publish(Event{
		Type:   EventUserPaused,
		UserID: userID,
		Data: map[string]interface{}{
			"reason": reason,
			"until":  until,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(userID, phase string, err error) {
	eb.Publish(Event{
		Type:   EventError,
		UserID: userID,
		Data: map[string]interface{}{
			"phase": phase,
			"error": err.Error(),
		},
	})
}
