// Implements Mailbox, the locked FIFO used to hand values into the orchestrator
// goroutine (commands) and back out of it (request outcomes).

package sim

import "sync"

// Mailbox is a FIFO queue safe for concurrent producers and a single consumer.
// Push never blocks, so the tick loop can post to it without stalling.
type Mailbox[T any] struct {
	mu    sync.Mutex
	queue []T
}

// Push appends v to the back of the queue.
func (mb *Mailbox[T]) Push(v T) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, v)
	mb.mu.Unlock()
}

// Len returns the number of queued values.
func (mb *Mailbox[T]) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// Drain removes and returns every queued value in FIFO order.
// Returns nil if the queue is empty.
func (mb *Mailbox[T]) Drain() []T {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil
	}
	out := mb.queue
	mb.queue = nil
	return out
}

// Reset discards every queued value.
func (mb *Mailbox[T]) Reset() {
	mb.mu.Lock()
	mb.queue = nil
	mb.mu.Unlock()
}
