// Package eventbus provides the in-process publish/subscribe channel used by
// the effect engine and everything that reacts to it (logging, UI, relics,
// cards). Delivery is synchronous (Emit), cooperative (EmitAsync) or queued
// (EmitBatched); every delivery is timed into per-event metrics.
package eventbus

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/observability"
)

// DefaultAsyncYield is the pause EmitAsync inserts after each subscriber.
const DefaultAsyncYield = 2 * time.Millisecond

// Handler receives the positional payload of one emitted event.
type Handler func(args ...any)

// Subscription is the handle returned by Subscribe. It stays registered until
// Unsubscribe or Close is called; Close is safe to defer from the subscriber's
// owner and safe to call more than once.
type Subscription struct {
	// ID uniquely identifies this registration.
	ID string
	// Event is the event name the handler is registered under.
	Event string
	// Name identifies the handler function in logs.
	Name string

	bus *Bus
	fn  Handler
}

// Close unsubscribes s from its bus.
//
// Postcondition: s no longer receives events.
func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Unsubscribe(s)
}

// Option configures a Bus.
type Option func(*Bus)

// WithAsyncYield sets the pause EmitAsync inserts after each subscriber.
// Non-positive values are ignored.
func WithAsyncYield(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.yield = d
		}
	}
}

// WithQueueHint sets the initial capacity of the batched-emission queue.
func WithQueueHint(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make([]queuedEvent, 0, n)
		}
	}
}

// Bus is a process-wide publish/subscribe channel.
// All methods are safe for concurrent use. Handlers are never invoked with
// any bus lock held, so a handler may subscribe, unsubscribe or emit.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	logger *zap.Logger
	yield  time.Duration

	metrics *metricsTable

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []queuedEvent
	pending   int
	closed    bool
	running   bool
	done      chan struct{}
}

type queuedEvent struct {
	event string
	args  []any
}

// New creates an empty Bus.
//
// Postcondition: Returns a non-nil Bus with no subscriptions and empty metrics.
func New(logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[string][]*Subscription),
		logger:  observability.Component(logger, "eventbus"),
		yield:   DefaultAsyncYield,
		metrics: newMetricsTable(),
		done:    make(chan struct{}),
	}
	b.queueCond = sync.NewCond(&b.queueMu)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn under event. Subscribing the same handler twice
// creates two registrations, and both fire.
//
// Precondition: fn must not be nil.
// Postcondition: Returns a handle that receives every later emission of event.
func (b *Bus) Subscribe(event string, fn Handler) *Subscription {
	sub := &Subscription{
		ID:    uuid.New().String(),
		Event: event,
		Name:  handlerName(fn),
		bus:   b,
		fn:    fn,
	}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes exactly the registration sub. It returns false when sub
// was not registered (already removed, or from another bus).
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.Event]
	for i, s := range list {
		if s == sub {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, sub.Event)
			} else {
				b.subs[sub.Event] = next
			}
			return true
		}
	}
	return false
}

// SubscriberCount returns the number of registrations for event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// snapshot returns the registrations for event at this instant. The returned
// slice is never mutated by the bus.
func (b *Bus) snapshot(event string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[event]
}

// Emit synchronously invokes every handler registered for event, in
// subscription order, on the calling goroutine. A panicking handler is
// recovered and logged and does not stop the remaining handlers.
//
// Postcondition: every handler registered when Emit began has returned.
func (b *Bus) Emit(event string, args ...any) {
	subs := b.snapshot(event)
	start := time.Now()
	failures := 0
	for _, sub := range subs {
		if !b.invoke(sub, args) {
			failures++
		}
	}
	b.metrics.record(event, time.Since(start), failures)
}

// EmitAsync delivers event like Emit but pauses for the configured yield
// after every handler (and at least once when there are none), handing the
// scheduler to unrelated work between deliveries. Handler time is recorded
// in the metrics, the pauses are not.
//
// Postcondition: returns ctx.Err() if ctx ends before delivery completes;
// handlers not yet reached are skipped in that case.
func (b *Bus) EmitAsync(ctx context.Context, event string, args ...any) error {
	subs := b.snapshot(event)
	var spent time.Duration
	failures := 0
	defer func() { b.metrics.record(event, spent, failures) }()

	if len(subs) == 0 {
		return b.pause(ctx)
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if !b.invoke(sub, args) {
			failures++
		}
		spent += time.Since(start)
		if err := b.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) pause(ctx context.Context) error {
	runtime.Gosched()
	t := time.NewTimer(b.yield)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// invoke runs one handler, recovering a panic. It reports whether the handler
// completed normally.
func (b *Bus) invoke(sub *Subscription, args []any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error("event subscriber panicked",
				zap.String("event", sub.Event),
				zap.String("subscription", sub.ID),
				zap.String("handler", sub.Name),
				zap.Any("panic", r),
			)
		}
	}()
	sub.fn(args...)
	return true
}

// Metrics returns a snapshot of the per-event delivery statistics.
func (b *Bus) Metrics() map[string]Stats {
	return b.metrics.snapshot()
}

// ClearMetrics discards all accumulated statistics.
func (b *Bus) ClearMetrics() {
	b.metrics.clear()
}

func handlerName(fn Handler) string {
	if fn == nil {
		return ""
	}
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
