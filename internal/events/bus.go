// Package events carries match lifecycle notifications from the matcher and
// the fixture server to their observers, such as MQTT telemetry.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/smorey2/yojimbo/internal/util"
)

// HandlerFunc handles one event. A returned error is logged and otherwise
// ignored.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus delivers events to named subscribers. Each delivery runs in its
// own goroutine, so a slow observer never holds up a match attempt.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[string]HandlerFunc
	stopped  bool

	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType]map[string]HandlerFunc),
		logger:   util.ComponentLogger("events"),
	}
}

// Subscribe registers handler under name for eventType. Subscribing an
// existing name again replaces its handler.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	named, ok := eb.handlers[eventType]
	if !ok {
		named = make(map[string]HandlerFunc)
		eb.handlers[eventType] = named
	}
	named[name] = handler
	eb.logger.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed")
}

// Unsubscribe removes the handler registered under name, if any.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	delete(eb.handlers[eventType], name)
	if len(eb.handlers[eventType]) == 0 {
		delete(eb.handlers, eventType)
	}
}

// Emit hands event to every subscriber of its type and returns without
// waiting. Events emitted after Stop are dropped.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}
	for name, handler := range eb.handlers[event.Type] {
		eb.inflight.Add(1)
		go eb.deliver(ctx, name, handler, event)
	}
}

func (eb *EventBus) deliver(ctx context.Context, name string, handler HandlerFunc, event Event) {
	defer eb.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error().
				Str("event", string(event.Type)).
				Str("handler", name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err := handler(ctx, event); err != nil {
		eb.logger.Warn().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", name).
			Msg("handler failed")
	}
}

// Wait blocks until every delivery started so far has finished. The bus
// stays open.
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// Stop drops all later events and waits for in-flight deliveries. It is
// safe to call more than once.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	eb.stopped = true
	eb.mu.Unlock()

	eb.inflight.Wait()
}

// HandlerCount returns the number of subscribers for eventType.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
