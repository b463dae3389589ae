package session

import (
	"context"
	"sync"
)

// mailbox is a thread-safe FIFO queue of messages for one direction of a
// session.
//
// The queue is unbounded so a sender never blocks on a slow receiver; a
// protocol instance only suspends while waiting to receive.
//
// The queue uses a channel for signaling to enable context-aware waiting.
type mailbox struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	signal   chan struct{} // Signals message availability (buffered, size 1)
}

func newMailbox() *mailbox {
	return &mailbox{
		messages: make([]Message, 0, 8),
		signal:   make(chan struct{}, 1),
	}
}

// put adds a message to the back of the queue.
// Returns false if the mailbox is closed.
func (q *mailbox) put(m Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.messages = append(q.messages, m)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// tryTake removes and returns the front message without blocking.
// done is true once the mailbox is closed and drained.
func (q *mailbox) tryTake() (m Message, ok bool, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return Message{}, false, q.closed
	}

	m = q.messages[0]
	q.messages[0] = Message{} // release Tx for GC
	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}
	return m, true, false
}

// take blocks until a message is available, the mailbox is closed and
// drained, or ctx is done.
func (q *mailbox) take(ctx context.Context) (Message, error) {
	for {
		m, ok, done := q.tryTake()
		if ok {
			return m, nil
		}
		if done {
			return Message{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// close marks the mailbox closed. Queued messages remain readable.
func (q *mailbox) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal) // Wakes all waiters
}

func (q *mailbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
