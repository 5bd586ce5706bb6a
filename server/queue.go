package server

import (
	"context"
	"sync"

	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// receiptQueue is the unbounded hand-off between a connection's reader and
// processor tasks. Unbounded on purpose: the reader must keep framing so
// receipt timestamps stay honest even when the parser is backed up, which
// trades away TCP backpressure.
type receiptQueue struct {
	mu     sync.Mutex
	items  []message.ReceivedData
	wake   chan struct{}
	closed bool
}

func newReceiptQueue() *receiptQueue {
	return &receiptQueue{wake: make(chan struct{}, 1)}
}

// Push appends one received message. Pushes after Close are dropped.
func (q *receiptQueue) Push(item message.ReceivedData) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, item)
	}
	q.mu.Unlock()
	q.signal()
}

// Close marks the end of input. Items already queued remain poppable.
func (q *receiptQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *receiptQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (q *receiptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop returns the next message in receipt order. ok is false once the queue
// is closed and drained, or the context is cancelled.
func (q *receiptQueue) Pop(ctx context.Context) (message.ReceivedData, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return message.ReceivedData{}, false
		}

		select {
		case <-ctx.Done():
			return message.ReceivedData{}, false
		case <-q.wake:
		}
	}
}
