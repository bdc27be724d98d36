package execution

import (
	"sync"
	"time"
)

// queueEntry is either a real line or the end-of-stream marker.
type queueEntry struct {
	line Line
	eos  bool
}

// LineQueue is an unbounded FIFO of lines for a single stream. Push never
// blocks, so a reader can always keep its pipe drained regardless of how fast
// the consumer is. Close appends the end-of-stream marker.
type LineQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	closed  bool
	ready   chan struct{}
}

// NewLineQueue creates an empty queue.
func NewLineQueue() *LineQueue {
	return &LineQueue{
		ready: make(chan struct{}, 1),
	}
}

// Push appends a line. Pushes after Close are dropped.
func (q *LineQueue) Push(line Line) {
	q.put(queueEntry{line: line})
}

// Close appends the end-of-stream marker. Only the first call has an effect.
func (q *LineQueue) Close() {
	q.put(queueEntry{eos: true})
}

func (q *LineQueue) put(e queueEntry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries, e)
	if e.eos {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes the head of the queue without waiting. ok is false when the
// queue is empty; eos is true when the head was the end-of-stream marker.
func (q *LineQueue) TryPop() (line Line, eos bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Line{}, false, false
	}
	e := q.entries[0]
	q.entries[0] = queueEntry{}
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return e.line, e.eos, true
}

// Pop waits up to timeout for an entry. ok is false on timeout.
func (q *LineQueue) Pop(timeout time.Duration) (line Line, eos bool, ok bool) {
	if line, eos, ok = q.TryPop(); ok {
		return line, eos, ok
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.ready:
			if line, eos, ok = q.TryPop(); ok {
				return line, eos, ok
			}
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Ready is signalled after a push. A signal may be stale, so consumers must
// treat it as a hint and follow up with TryPop.
func (q *LineQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued entries, including the end-of-stream marker.
func (q *LineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
