package events

import (
	"errors"
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventTradeOpened, func(ev Event) { got <- ev })

	bus.Publish(Event{Type: EventTradeClosed, Data: map[string]interface{}{}})
	bus.Publish(Event{Type: EventTradeOpened, UserID: "u1", Data: map[string]interface{}{"symbol": "PEPE"}})

	ev := waitEvent(t, got)
	if ev.Type != EventTradeOpened {
		t.Fatalf("expected TRADE_OPENED, got %s", ev.Type)
	}
	if ev.UserID != "u1" {
		t.Errorf("expected user u1, got %q", ev.UserID)
	}
	if ev.Data["symbol"] != "PEPE" {
		t.Errorf("expected symbol PEPE, got %v", ev.Data["symbol"])
	}

	select {
	case extra := <-got:
		t.Fatalf("subscriber received foreign event %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDefaultsTimestamp(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventError, func(ev Event) { got <- ev })

	before := time.Now().UTC()
	bus.Publish(Event{Type: EventError, Data: map[string]interface{}{}})

	ev := waitEvent(t, got)
	if ev.Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}
	if ev.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("timestamp %v too far in the past", ev.Timestamp)
	}
}

func TestPublishKeepsProvidedTimestamp(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventError, func(ev Event) { got <- ev })

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: EventError, Timestamp: ts, Data: map[string]interface{}{}})

	ev := waitEvent(t, got)
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, ev.Timestamp)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()
	got := make(chan Event, 4)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.PublishRegimeChanged("neutral", "risk_on", 72.5)
	bus.PublishError("u1", "discovery", errors.New("feed down"))

	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		ev := waitEvent(t, got)
		seen[ev.Type] = true
	}
	if !seen[EventRegimeChanged] || !seen[EventError] {
		t.Fatalf("catch-all missed events, saw %v", seen)
	}
}

func TestTypedPublishers(t *testing.T) {
	bus := NewEventBus()

	opened := make(chan Event, 1)
	closed := make(chan Event, 1)
	signal := make(chan Event, 1)
	cycle := make(chan Event, 1)
	paused := make(chan Event, 1)
	bus.Subscribe(EventTradeOpened, func(ev Event) { opened <- ev })
	bus.Subscribe(EventTradeClosed, func(ev Event) { closed <- ev })
	bus.Subscribe(EventSignalGenerated, func(ev Event) { signal <- ev })
	bus.Subscribe(EventCycleCompleted, func(ev Event) { cycle <- ev })
	bus.Subscribe(EventUserPaused, func(ev Event) { paused <- ev })

	bus.PublishTradeOpened("u1", "WIF", "solana", "core", 0.0042, 150)
	bus.PublishTradeClosed("u1", "WIF", "solana", "take profit", 0.0051, 32.1, 21.4)
	bus.PublishSignal("u1", "WIF", "solana", "momentum", "core", 81)
	bus.PublishCycleCompleted("u1", "risk_on", 5, 2, 1, 1500*time.Millisecond)
	until := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bus.PublishUserPaused("u1", "daily loss limit", until)

	ev := waitEvent(t, opened)
	if ev.Data["layer"] != "core" || ev.Data["position_usd"] != 150.0 {
		t.Errorf("trade opened payload wrong: %v", ev.Data)
	}

	ev = waitEvent(t, closed)
	if ev.Data["reason"] != "take profit" || ev.Data["pnl"] != 32.1 {
		t.Errorf("trade closed payload wrong: %v", ev.Data)
	}

	ev = waitEvent(t, signal)
	if ev.Data["source"] != "momentum" || ev.Data["confidence"] != 81.0 {
		t.Errorf("signal payload wrong: %v", ev.Data)
	}

	ev = waitEvent(t, cycle)
	if ev.Data["executed"] != 2 || ev.Data["duration_ms"] != int64(1500) {
		t.Errorf("cycle payload wrong: %v", ev.Data)
	}

	ev = waitEvent(t, paused)
	if ev.Data["reason"] != "daily loss limit" {
		t.Errorf("pause payload wrong: %v", ev.Data)
	}
	if got, ok := ev.Data["until"].(time.Time); !ok || !got.Equal(until) {
		t.Errorf("pause until wrong: %v", ev.Data["until"])
	}
}

func TestMultipleSubscribersSameType(t *testing.T) {
	bus := NewEventBus()
	a := make(chan Event, 1)
	b := make(chan Event, 1)
	bus.Subscribe(EventCycleCompleted, func(ev Event) { a <- ev })
	bus.Subscribe(EventCycleCompleted, func(ev Event) { b <- ev })

	bus.PublishCycleCompleted("u1", "neutral", 0, 0, 0, time.Second)

	waitEvent(t, a)
	waitEvent(t, b)
}
