package packet

import (
	"sync"
)

// Queue is a FIFO of framed chunks plus a counter of pending logical write
// sets. Chunks are enqueued by the framer and dequeued by the drain loop,
// which runs on the transport's callback context, so every operation is
// guarded by one mutex. The chunk sequence and the set counter share that
// mutex: a dequeue can never be observed alongside a stale counter.
type Queue struct {
	mu          sync.Mutex
	chunks      [][]byte
	pendingSets int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a chunk to the tail.
func (q *Queue) Enqueue(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunk)
}

// Dequeue removes and returns the head chunk. The second return value is
// false when the queue is empty.
func (q *Queue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return nil, false
	}
	head := q.chunks[0]
	q.chunks = q.chunks[1:]
	return head, true
}

// Len returns the number of queued chunks. The value is a point-in-time
// snapshot and may be stale by the time the caller acts on it.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// IsEmpty reports whether the queue currently holds no chunks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drops every queued chunk and returns how many were dropped. Pending
// sets are left untouched; the writer fails their callbacks itself.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.chunks)
	q.chunks = nil
	return dropped
}

// IncrementPendingSets records one more logical write waiting for the queue
// to fully drain.
func (q *Queue) IncrementPendingSets() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pendingSets++
}

// DecrementPendingSets records one delivered completion. The counter never
// goes below zero.
func (q *Queue) DecrementPendingSets() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pendingSets > 0 {
		q.pendingSets--
	}
}

// PendingSets returns the number of logical writes still awaiting
// completion.
func (q *Queue) PendingSets() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingSets
}
