package eventbus

import "context"

// EmitBatched queues event for delivery by the bus's dispatcher goroutine and
// returns immediately. Queued events are delivered with Emit semantics in the
// order they were queued, so per-event ordering matches synchronous emission.
// After Close, EmitBatched delivers synchronously.
func (b *Bus) EmitBatched(event string, args ...any) {
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		b.Emit(event, args...)
		return
	}
	b.queue = append(b.queue, queuedEvent{event: event, args: args})
	b.pending++
	if !b.running {
		b.running = true
		go b.dispatch()
	}
	b.queueMu.Unlock()
	b.queueCond.Broadcast()
}

// dispatch drains the queue until the bus is closed and empty. Everything
// queued since the last wake-up is delivered as one run.
func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		b.queueMu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.queueCond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.queueMu.Unlock()
			return
		}
		run := b.queue
		b.queue = make([]queuedEvent, 0, cap(run))
		b.queueMu.Unlock()

		for _, q := range run {
			b.Emit(q.event, q.args...)
		}

		b.queueMu.Lock()
		b.pending -= len(run)
		b.queueMu.Unlock()
		b.queueCond.Broadcast()
	}
}

// Pending returns the number of batched events not yet delivered.
func (b *Bus) Pending() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return b.pending
}

// Flush blocks until every event queued by EmitBatched before the call has
// been delivered, or ctx ends. Nothing keeps waiting once Flush returns.
//
// Precondition: not called from a handler delivered by EmitBatched; the run
// containing that handler is still pending, so such a Flush only returns
// when ctx ends.
func (b *Bus) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.queueMu.Lock()
		defer b.queueMu.Unlock()
		b.queueCond.Broadcast()
	})
	defer stop()

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	for b.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.queueCond.Wait()
	}
	return nil
}

// Close delivers everything still queued and stops the dispatcher. Emit and
// EmitAsync keep working after Close.
//
// Postcondition: Pending() == 0.
func (b *Bus) Close() {
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return
	}
	b.closed = true
	running := b.running
	b.queueMu.Unlock()
	b.queueCond.Broadcast()

	if running {
		<-b.done
	}
}
