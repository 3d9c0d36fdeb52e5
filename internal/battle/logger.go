package battle

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
	"github.com/cory-johannsen/combatfx/internal/observability"
)

// loggedEvents are the events an EventLogger subscribes to.
var loggedEvents = []string{
	effect.EventEffectApplied,
	effect.EventEffectExpired,
	effect.EventDOTTick,
	effect.EventHOTTick,
	effect.EventDOTKill,
	EventTurnEnd,
	EventBattleEnd,
}

// EventLogger writes every engine and battle event to a logger and counts them.
type EventLogger struct {
	logger *zap.Logger
	subs   []*eventbus.Subscription

	mu     sync.Mutex
	counts map[string]int
}

// NewEventLogger subscribes to bus. Kills and battle outcomes log at Info,
// everything else at Debug.
func NewEventLogger(bus *eventbus.Bus, logger *zap.Logger) *EventLogger {
	l := &EventLogger{
		logger: observability.Component(logger, "events"),
		counts: make(map[string]int),
	}
	for _, name := range loggedEvents {
		l.subs = append(l.subs, bus.Subscribe(name, func(args ...any) {
			l.handle(name, args)
		}))
	}
	return l
}

func (l *EventLogger) handle(event string, args []any) {
	l.mu.Lock()
	l.counts[event]++
	l.mu.Unlock()

	fields := []zap.Field{zap.String("event", event)}
	for i, a := range args {
		fields = append(fields, describe(fmt.Sprintf("arg%d", i), a))
	}
	switch event {
	case effect.EventDOTKill, EventBattleEnd:
		l.logger.Info("event", fields...)
	default:
		l.logger.Debug("event", fields...)
	}
}

// describe renders entities by id so log lines stay flat.
func describe(key string, v any) zap.Field {
	switch x := v.(type) {
	case effect.Entity:
		return zap.String(key, x.ID())
	case TurnResult:
		return zap.Int(key, len(x.Deaths))
	default:
		return zap.Any(key, x)
	}
}

// Counts returns how many times each event was seen.
func (l *EventLogger) Counts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Close unsubscribes from the bus.
func (l *EventLogger) Close() {
	for _, s := range l.subs {
		s.Close()
	}
	l.subs = nil
}
